package capture

// State is the lifecycle state of a capture device.
type State string

// Capture states.
const (
	StateClosed           State = "closed"
	StateOpened           State = "opened"
	StateNegotiated       State = "negotiated"
	StateBuffersAllocated State = "buffers_allocated"
	StateStreaming        State = "streaming"
	StateStopped          State = "stopped"
)

// Owner identifies who currently holds a buffer slot.
type Owner string

// Slot owners.
const (
	OwnerDriver      Owner = "driver"      // queued, the kernel may write it
	OwnerApplication Owner = "application" // dequeued, held by the pipeline
	OwnerDisplay     Owner = "display"     // bound to a framebuffer on screen
)
