package systemd

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

type sent struct {
	mu     sync.Mutex
	states []string
}

func (s *sent) notify(_ bool, state string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states = append(s.states, state)
	return true, nil
}

func (s *sent) count(state string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, st := range s.states {
		if st == state {
			n++
		}
	}
	return n
}

func testNotifier(s *sent, timeout time.Duration) *Notifier {
	return &Notifier{
		notify:   s.notify,
		interval: func() (time.Duration, error) { return timeout, nil },
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestNotifierMessages(t *testing.T) {
	s := &sent{}
	n := testNotifier(s, 0)

	n.Ready()
	n.Status("%d flips, %.2f Hz", 120, 59.94)
	n.Stopping()

	want := []string{"READY=1", "STATUS=120 flips, 59.94 Hz", "STOPPING=1"}
	if len(s.states) != len(want) {
		t.Fatalf("states = %v, want %v", s.states, want)
	}
	for i := range want {
		if s.states[i] != want[i] {
			t.Errorf("state %d = %q, want %q", i, s.states[i], want[i])
		}
	}
}

func TestWatchdogDisabled(t *testing.T) {
	s := &sent{}
	n := testNotifier(s, 0)

	done := make(chan struct{})
	go func() {
		n.Watchdog(context.Background(), func() bool { return true })
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Watchdog did not return without a watchdog timeout")
	}
}

func TestWatchdogPingsWhileHealthy(t *testing.T) {
	s := &sent{}
	n := testNotifier(s, 20*time.Millisecond)

	var mu sync.Mutex
	healthy := true
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		n.Watchdog(ctx, func() bool {
			mu.Lock()
			defer mu.Unlock()
			return healthy
		})
		close(done)
	}()

	time.Sleep(60 * time.Millisecond)
	mu.Lock()
	healthy = false
	mu.Unlock()
	pings := s.count("WATCHDOG=1")
	time.Sleep(60 * time.Millisecond)
	cancel()
	<-done

	if pings == 0 {
		t.Error("no watchdog pings while healthy")
	}
	if after := s.count("WATCHDOG=1"); after > pings+1 {
		t.Errorf("pinged %d times after turning unhealthy", after-pings)
	}
}
