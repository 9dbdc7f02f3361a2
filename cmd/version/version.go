package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
)

// Default build-time variable.
// These values are overridden via ldflags
var (
	Version    = "unknown-version"
	GitCommit  = "unknown-commit"
	BuildTime  = "unknown-buildtime"
	APIVersion = "v1"
)

func init() {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	if Version == "unknown-version" && info.Main.Version != "" && info.Main.Version != "(devel)" {
		Version = info.Main.Version
	}
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			if GitCommit == "unknown-commit" {
				GitCommit = setting.Value
			}
		case "vcs.time":
			if BuildTime == "unknown-buildtime" {
				BuildTime = setting.Value
			}
		}
	}
}

func BuildInfo() string {
	var buildInfo strings.Builder
	buildInfo.WriteString(fmt.Sprintln("Version:\t", Version))
	buildInfo.WriteString(fmt.Sprintln("API version:\t", APIVersion))
	buildInfo.WriteString(fmt.Sprintln("Go version:\t", runtime.Version()))
	buildInfo.WriteString(fmt.Sprintln("Git commit:\t", GitCommit))
	buildInfo.WriteString(fmt.Sprintln("Built:\t\t", BuildTime))
	buildInfo.WriteString(fmt.Sprintf("OS/Arch:\t %s/%s\n", runtime.GOOS, runtime.GOARCH))
	return buildInfo.String()
}
