// Package version exposes build metadata injected at link time.
package version

import "runtime/debug"

// Populated via -ldflags at build time, e.g.
//
//	go build -ldflags "-X github.com/stampwise/passd/internal/version.version=v1.2.0"
var (
	version   = "dev"
	gitCommit = ""
	buildDate = "unknown"
)

// Info describes the running build.
type Info struct {
	Version   string `json:"version"`
	GitCommit string `json:"gitCommit"`
	BuildDate string `json:"buildDate"`
}

// Get returns the build information. When ldflags are not set, the git commit
// is taken from the embedded VCS build info if available.
func Get() Info {
	commit := gitCommit
	if commit == "" {
		if bi, ok := debug.ReadBuildInfo(); ok {
			for _, s := range bi.Settings {
				if s.Key == "vcs.revision" {
					commit = s.Value
					break
				}
			}
		}
	}
	if commit == "" {
		commit = "unknown"
	}

	return Info{
		Version:   version,
		GitCommit: commit,
		BuildDate: buildDate,
	}
}
