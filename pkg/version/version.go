package version

import (
	"runtime/debug"
)

// Commit and Time come from the build info stamped by the Go toolchain.
var Commit, Time = func() (string, string) {
	var commit, t string
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, setting := range info.Settings {
			if setting.Key == "vcs.revision" {
				commit = setting.Value
			}
			if setting.Key == "vcs.time" {
				t = setting.Value
			}
		}
	}
	return commit, t
}()

// String renders the version for logs, "unknown" outside a VCS build.
func String() string {
	if Commit == "" {
		return "unknown"
	}
	return Commit + " (" + Time + ")"
}
