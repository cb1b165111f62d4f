// Package version carries build metadata injected with -ldflags.
package version

import (
	"fmt"
	"runtime/debug"
)

// Version is the release version of the mozdata binary.
var Version = "dev"

// BinaryGitHash is the Git hash of the mozdata binary which is executing.
var BinaryGitHash = "<unknown>"

// BuildDate is the build timestamp in RFC 3339.
var BuildDate = ""

func init() {
	if BinaryGitHash != "<unknown>" {
		return
	}

	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}

	for _, setting := range info.Settings {
		if setting.Key == "vcs.revision" && setting.Value != "" {
			BinaryGitHash = setting.Value
		}
	}
}

// UserAgent is the default User-Agent sent to Mozilla services when the
// configuration does not name one.
func UserAgent() string {
	return fmt.Sprintf("mozdata/%s", Version)
}
