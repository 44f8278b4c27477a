// Package led shows pipeline health on a board status LED.
package led

// Patterns understood by every Controller.
const (
	PatternSolid = "solid"
	PatternBlink = "blink"
	PatternOff   = "off"
)

// Controller drives the LEDs of one board. name is a logical LED such as
// "system"; Available lists the names the board has.
type Controller interface {
	Set(name string, pattern string) error
	Available() []string
	Patterns() []string
}
