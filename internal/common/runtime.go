package common

import (
	"fmt"
	"runtime/debug"
)

var (
	// Git SHA commit (only first few characters)
	BuildCommit = "HEAD"

	// Build date and time
	BuildTime = "N/A"

	// BuildGoVersion carries Go version the binary was built with
	BuildGoVersion string
)

func init() {
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	BuildGoVersion = bi.GoVersion
	for _, bs := range bi.Settings {
		switch bs.Key {
		case "vcs.revision":
			if len(bs.Value) > 6 {
				BuildCommit = bs.Value[0:6]
			}
		case "vcs.time":
			BuildTime = bs.Value
		}
	}
}

// Version describes the running binary for --version.
func Version() string {
	return fmt.Sprintf("%s (built %s with %s)", BuildCommit, BuildTime, BuildGoVersion)
}
