package led

import (
	"os"
	"strings"

	"github.com/smazurov/framepipe/internal/logging"
)

const modelPath = "/proc/device-tree/model"

// boards maps a device-tree model substring to logical LED names and
// their sysfs nodes.
var boards = []struct {
	model string
	leds  map[string]string
}{
	{"NanoPC-T6", map[string]string{"system": "sys_led", "user": "usr_led"}},
	{"Orange Pi", map[string]string{"system": "green_led", "user": "blue_led"}},
	{"Raspberry Pi", map[string]string{"system": "ACT"}},
}

// New returns the controller for the running board, or a no-op one.
func New(logger logging.Logger) Controller {
	return forModel(readModel(modelPath), sysfsRoot, logger)
}

func forModel(model, root string, logger logging.Logger) Controller {
	for _, b := range boards {
		if strings.Contains(model, b.model) {
			logger.Info("Using board LEDs", "board", model)
			return newSysfs(root, b.leds)
		}
	}
	logger.Info("No LEDs known for board", "board", model)
	return noop{logger: logger}
}

func readModel(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return "unknown"
	}
	return strings.TrimRight(string(data), "\x00\n")
}
