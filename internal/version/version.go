// Package version holds build metadata injected with -ldflags -X.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

var (
	// Version is the release tag.
	Version = "dev"
	// GitCommit is the source revision.
	GitCommit = ""
	// BuildDate is the RFC 3339 build time.
	BuildDate = ""
)

// Info is build metadata as served by /api/version.
type Info struct {
	Version   string `json:"version" yaml:"version" example:"v0.3.0" doc:"Release version"`
	GitCommit string `json:"git_commit" yaml:"git_commit" doc:"Source revision"`
	BuildDate string `json:"build_date" yaml:"build_date" doc:"Build time"`
	GoVersion string `json:"go_version" yaml:"go_version" doc:"Go toolchain"`
	Platform  string `json:"platform" yaml:"platform" example:"linux/arm64" doc:"Target OS and architecture"`
}

// Get returns build metadata. Without ldflags the commit and date come
// from the module's VCS stamp when present.
func Get() Info {
	info := Info{
		Version:   Version,
		GitCommit: GitCommit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, s := range bi.Settings {
			switch {
			case s.Key == "vcs.revision" && info.GitCommit == "":
				info.GitCommit = s.Value
			case s.Key == "vcs.time" && info.BuildDate == "":
				info.BuildDate = s.Value
			}
		}
	}
	return info
}

// String formats Info for `framepipe version`.
func (i Info) String() string {
	commit := i.GitCommit
	if len(commit) > 12 {
		commit = commit[:12]
	}
	if commit == "" {
		commit = "unknown"
	}
	return fmt.Sprintf("framepipe %s (%s) %s %s", i.Version, commit, i.GoVersion, i.Platform)
}
