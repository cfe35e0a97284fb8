// Package version reports the hbootdbg build version.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Set at build time:
//
//	go build -ldflags="-X github.com/muurk/hbootdbg/internal/version.Version=v0.3.0 \
//	                   -X github.com/muurk/hbootdbg/internal/version.Commit=abc123"
var (
	// Version is the semantic version of the bridge
	Version = ""
	// Commit is the git commit hash
	Commit = ""
)

func init() {
	if Commit == "" {
		Commit = vcsRevision()
	}
	if Version == "" {
		Version = "dev"
	}
}

// vcsRevision returns the short VCS revision embedded by the go tool, or
// "unknown" when the binary was built outside a checkout.
func vcsRevision() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "unknown"
	}

	var rev string
	dirty := false
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			rev = setting.Value
		case "vcs.modified":
			dirty = setting.Value == "true"
		}
	}
	if rev == "" {
		return "unknown"
	}
	if len(rev) > 7 {
		rev = rev[:7]
	}
	if dirty {
		rev += "-dirty"
	}
	return rev
}

// Full returns the version string including commit and toolchain.
func Full() string {
	return fmt.Sprintf("%s (commit: %s, %s)", Version, Commit, runtime.Version())
}
