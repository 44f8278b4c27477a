package events

// Event type constants for kelindar/event.
const (
	TypeCaptureState uint32 = iota + 1
	TypeDisplayState
	TypeFlipCompleted
	TypeFrameDropped
	TypeDeviceRemoved
	TypePipelineMetrics
	TypeLogEntry
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// CaptureStateEvent is published on every capture lifecycle transition.
type CaptureStateEvent struct {
	DevicePath string `json:"device_path" example:"/dev/video11" doc:"Capture device node"`
	From       string `json:"from" example:"buffers_allocated" doc:"Previous state"`
	To         string `json:"to" example:"streaming" doc:"New state"`
	Timestamp  string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Transition time"`
}

// Type returns the event type identifier for CaptureStateEvent.
func (e CaptureStateEvent) Type() uint32 { return TypeCaptureState }

// DisplayStateEvent is published on every display lifecycle transition.
// Used for LED control.
type DisplayStateEvent struct {
	DevicePath string `json:"device_path" example:"/dev/dri/card0" doc:"DRM device node"`
	From       string `json:"from" example:"mode_set" doc:"Previous state"`
	To         string `json:"to" example:"flip_pending" doc:"New state"`
	Scanning   bool   `json:"scanning" example:"true" doc:"Whether the CRTC is active"`
	Timestamp  string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Transition time"`
}

// Type returns the event type identifier for DisplayStateEvent.
func (e DisplayStateEvent) Type() uint32 { return TypeDisplayState }

// FlipCompletedEvent is published for every completed page flip.
type FlipCompletedEvent struct {
	Sequence      uint32  `json:"sequence" example:"1042" doc:"Vblank sequence of the flip"`
	Count         uint64  `json:"count" example:"600" doc:"Flips completed since modeset"`
	RefreshHz     float64 `json:"refresh_hz" example:"60.0" doc:"Refresh rate measured from the last two flips"`
	FramebufferID uint32  `json:"framebuffer_id" example:"87" doc:"Framebuffer now on screen"`
}

// Type returns the event type identifier for FlipCompletedEvent.
func (e FlipCompletedEvent) Type() uint32 { return TypeFlipCompleted }

// FrameDroppedEvent is published when a captured frame is not shown.
type FrameDroppedEvent struct {
	Sequence  uint32 `json:"sequence" example:"311" doc:"Capture sequence of the dropped frame"`
	Reason    string `json:"reason" example:"flip_pending" doc:"Why the frame was dropped"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Drop time"`
}

// Type returns the event type identifier for FrameDroppedEvent.
func (e FrameDroppedEvent) Type() uint32 { return TypeFrameDropped }

// DeviceRemovedEvent is published when a device used by the pipeline is
// unplugged.
type DeviceRemovedEvent struct {
	DevicePath string `json:"device_path" example:"/dev/video11" doc:"Removed device node"`
	Subsystem  string `json:"subsystem" example:"video4linux" doc:"Kernel subsystem"`
	Timestamp  string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Removal time"`
}

// Type returns the event type identifier for DeviceRemovedEvent.
func (e DeviceRemovedEvent) Type() uint32 { return TypeDeviceRemoved }

// PipelineMetricsEvent is a periodic snapshot of pipeline counters.
type PipelineMetricsEvent struct {
	EventType     string `json:"type"`
	RefreshHz     string `json:"refresh_hz"`
	Flips         string `json:"flips"`
	DroppedFrames string `json:"dropped_frames"`
	Dequeued      string `json:"dequeued"`
}

// Type returns the event type identifier for PipelineMetricsEvent.
func (e PipelineMetricsEvent) Type() uint32 { return TypePipelineMetrics }

// LogEntryEvent represents a log entry for SSE streaming.
type LogEntryEvent struct {
	Seq        uint64         `json:"seq" example:"42" doc:"Monotonic sequence number for deduplication"`
	Timestamp  string         `json:"timestamp" example:"2025-01-09T10:30:00.123Z" doc:"Log timestamp"`
	Level      string         `json:"level" example:"info" doc:"Log level"`
	Module     string         `json:"module" example:"pipeline" doc:"Source module"`
	Message    string         `json:"message" doc:"Log message"`
	Attributes map[string]any `json:"attributes,omitempty" doc:"Structured log attributes"`
}

// Type returns the event type identifier for LogEntryEvent.
func (e LogEntryEvent) Type() uint32 { return TypeLogEntry }
