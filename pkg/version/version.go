// Package version derives the server's build identity from the Go build
// metadata stamped into the binary.
package version

import (
	"runtime/debug"
	"sync"
)

// AppName prefixes version strings in logs and User-Agent headers.
const AppName = "kazi"

// commitOverride is stamped via -ldflags for container builds where the
// .git directory is not present at compile time.
var commitOverride string

const shortLen = 8

// Build describes the binary's provenance.
type Build struct {
	// Commit is the short VCS revision, or "dev" when nothing is stamped
	// (go test, builds outside a checkout).
	Commit string

	// Dirty marks a build from a checkout with uncommitted changes.
	Dirty bool
}

var (
	once  sync.Once
	build Build
)

// Current returns the build identity, resolved once per process.
func Current() Build {
	once.Do(func() { build = resolve(debug.ReadBuildInfo) })
	return build
}

// String renders "kazi/<commit>", with a "+dirty" suffix for builds from a
// modified checkout.
func String() string {
	b := Current()
	s := AppName + "/" + b.Commit
	if b.Dirty {
		s += "+dirty"
	}
	return s
}

func resolve(readBuildInfo func() (*debug.BuildInfo, bool)) Build {
	if commitOverride != "" {
		return Build{Commit: short(commitOverride)}
	}

	info, ok := readBuildInfo()
	if !ok {
		return Build{Commit: "dev"}
	}

	b := Build{Commit: "dev"}
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			if s.Value != "" {
				b.Commit = short(s.Value)
			}
		case "vcs.modified":
			b.Dirty = s.Value == "true"
		}
	}
	return b
}

func short(rev string) string {
	if len(rev) > shortLen {
		return rev[:shortLen]
	}
	return rev
}
