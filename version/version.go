// Package version reports the build identity of the player binaries.
package version

import "runtime/debug"

// Version can be set at release build time:
//
//	go build -ldflags "-X github.com/hvirtane/sfplay/version.Version=$(git describe --dirty)"
var Version string

// String returns Version when it was stamped at build time, otherwise the
// short VCS revision the toolchain embedded, otherwise "unknown".
func String() string {
	if Version != "" {
		return Version
	}
	if hash := vcsHash(); hash != "" {
		return hash
	}
	return "unknown"
}

func vcsHash() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	var revision string
	var modified bool
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			revision = setting.Value
		case "vcs.modified":
			modified = setting.Value == "true"
		}
	}
	if len(revision) < 7 {
		return ""
	}
	if modified {
		return revision[:7] + "-dirty"
	}
	return revision[:7]
}
