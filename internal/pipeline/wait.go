package pipeline

import (
	"errors"
	"time"

	"golang.org/x/sys/unix"
)

// waitFunc reports whether fd became readable within timeout.
type waitFunc func(fd int, timeout time.Duration) (bool, error)

func pollReadable(fd int, timeout time.Duration) (bool, error) {
	if fd < 0 {
		return false, errors.New("display is not open")
	}
	fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
	for {
		n, err := unix.Poll(fds, int(timeout.Milliseconds()))
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return false, err
		}
		if n > 0 && fds[0].Revents&(unix.POLLERR|unix.POLLHUP|unix.POLLNVAL) != 0 {
			return false, errors.New("display descriptor hung up")
		}
		return n > 0 && fds[0].Revents&unix.POLLIN != 0, nil
	}
}
