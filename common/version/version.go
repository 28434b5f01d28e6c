// Package version reports build metadata. The variables are set with
// -ldflags "-X github.com/bdobrica/nakama/common/version.Version=...";
// when they are not, GitCommit and BuildTime fall back to the VCS stamp Go
// embeds in the binary.
package version

import (
	"fmt"
	"runtime/debug"
)

var (
	Version   = "v0.0.0-dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

func init() {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	for _, s := range info.Settings {
		switch {
		case s.Key == "vcs.revision" && GitCommit == "unknown":
			GitCommit = s.Value
		case s.Key == "vcs.time" && BuildTime == "unknown":
			BuildTime = s.Value
		}
	}
}

// Info returns a one-line version string.
func Info() string {
	return fmt.Sprintf("%s (%s) built at %s", Version, GitCommit, BuildTime)
}

// Banner returns the multi-line startup banner.
func Banner(product string) string {
	return fmt.Sprintf("%s\nVersion: %s\nCommit: %s\nBuild Time: %s\n", product, Version, GitCommit, BuildTime)
}
