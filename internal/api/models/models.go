// Package models holds the request and response bodies of the HTTP API.
package models

import (
	"time"

	"github.com/smazurov/framepipe/internal/logging"
	"github.com/smazurov/framepipe/internal/version"
)

// HealthData reports whether the pipeline is putting frames on screen.
type HealthData struct {
	Status   string `json:"status" example:"ok" enum:"ok,degraded" doc:"ok while the display is scanning out"`
	Scanning bool   `json:"scanning" doc:"CRTC is active"`
	Running  bool   `json:"running" doc:"Event loop is running"`
}

type HealthResponse struct {
	Body HealthData
}

type VersionResponse struct {
	Body version.Info
}

// DisplayStatus describes the selected output and flip counters.
type DisplayStatus struct {
	State        string  `json:"state" example:"flip_pending" doc:"Display state"`
	Device       string  `json:"device" example:"/dev/dri/card0" doc:"DRM node in use"`
	ConnectorID  uint32  `json:"connector_id" doc:"Selected connector object id"`
	CrtcID       uint32  `json:"crtc_id" doc:"Selected CRTC object id"`
	PlaneID      uint32  `json:"plane_id" doc:"Selected primary plane object id"`
	Mode         string  `json:"mode" example:"1920x1080@60" doc:"Active mode"`
	Flips        uint64  `json:"flips" doc:"Completed page flips"`
	Rejected     uint64  `json:"rejected" doc:"Updates refused while a flip was pending"`
	RefreshHz    float64 `json:"refresh_hz" example:"60.00" doc:"Measured flip rate"`
	Framebuffers int     `json:"framebuffers" doc:"Framebuffers held"`
}

// CaptureStatus describes the capture stream.
type CaptureStatus struct {
	State        string `json:"state" example:"streaming" doc:"Capture state"`
	Width        uint32 `json:"width" example:"1920"`
	Height       uint32 `json:"height" example:"1080"`
	PixelFormat  string `json:"pixel_format" example:"NV12"`
	PoolSize     int    `json:"pool_size" example:"5" doc:"Buffers granted by the driver"`
	Dequeued     uint64 `json:"dequeued" doc:"Frames dequeued"`
	LastSequence uint32 `json:"last_sequence" doc:"Driver sequence of the last frame"`
	Skipped      uint64 `json:"skipped" doc:"Sequence numbers the driver skipped"`
}

// PipelineData is the full pipeline snapshot.
type PipelineData struct {
	Running   bool           `json:"running"`
	StartedAt time.Time      `json:"started_at,omitempty"`
	Shown     uint64         `json:"shown" doc:"Frames shown"`
	Dropped   uint64         `json:"dropped" doc:"Frames dropped because a flip was pending"`
	Display   DisplayStatus  `json:"display"`
	Capture   *CaptureStatus `json:"capture,omitempty" doc:"Absent in display-only mode"`
}

type PipelineResponse struct {
	Body PipelineData
}

type LogsRequest struct {
	Limit  int    `query:"limit" default:"100" minimum:"0" maximum:"1000" doc:"Newest entries to return, 0 for all"`
	Module string `query:"module" doc:"Only entries from this module"`
	Level  string `query:"level" doc:"Minimum level: debug, info, warn or error"`
}

type LogsResponse struct {
	Body struct {
		Entries []logging.Entry `json:"entries"`
		Count   int             `json:"count"`
	}
}

type LogLevelsResponse struct {
	Body struct {
		Levels map[string]string `json:"levels" doc:"Effective level per module"`
	}
}

type SetLogLevelRequest struct {
	Body struct {
		Module string `json:"module,omitempty" doc:"Module to change; empty changes the default level"`
		Level  string `json:"level" enum:"debug,info,warn,error"`
	}
}

type LEDRequest struct {
	Body struct {
		Name    string `json:"name" example:"system" doc:"Logical LED name"`
		Pattern string `json:"pattern" enum:"solid,blink,off"`
	}
}

type LEDCapabilitiesResponse struct {
	Body struct {
		LEDs     []string `json:"leds" doc:"LEDs on this board"`
		Patterns []string `json:"patterns" doc:"Supported patterns"`
	}
}

type ServiceStatusResponse struct {
	Body struct {
		Unit   string `json:"unit" example:"framepipe.service"`
		Status string `json:"status" example:"active" doc:"systemd ActiveState"`
	}
}
