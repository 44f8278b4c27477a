package version

import (
	"strings"
	"testing"
)

func TestInfoString(t *testing.T) {
	tests := []struct {
		name string
		info Info
		want string
	}{
		{
			name: "long commit",
			info: Info{Version: "v1.2.0", GitCommit: "0123456789abcdef", GoVersion: "go1.24", Platform: "linux/arm64"},
			want: "framepipe v1.2.0 (0123456789ab) go1.24 linux/arm64",
		},
		{
			name: "no commit",
			info: Info{Version: "dev", GoVersion: "go1.24", Platform: "linux/amd64"},
			want: "framepipe dev (unknown) go1.24 linux/amd64",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.info.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestGet(t *testing.T) {
	info := Get()
	if info.Version != Version {
		t.Errorf("Version = %q, want %q", info.Version, Version)
	}
	if !strings.Contains(info.Platform, "/") || info.GoVersion == "" {
		t.Errorf("Get() = %+v", info)
	}
}
