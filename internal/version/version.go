// Package version reports kombo build metadata. Release builds set the
// variables with -ldflags; other builds fall back to the embedded Go build
// info.
package version

import (
	"runtime"
	"runtime/debug"
)

var (
	Version = "dev"
	Commit  = ""
	Date    = ""
)

var readBuildInfo = debug.ReadBuildInfo

func String() string {
	version, commit, date := resolve()
	return "kombo " + version + " (commit=" + commit + ", date=" + date + ", go=" + runtime.Version() + ")"
}

func resolve() (version, commit, date string) {
	version, commit, date = Version, Commit, Date
	if info, ok := readBuildInfo(); ok && info != nil {
		if version == "dev" && info.Main.Version != "" && info.Main.Version != "(devel)" {
			version = info.Main.Version
		}
		for _, setting := range info.Settings {
			switch setting.Key {
			case "vcs.revision":
				if commit == "" {
					commit = setting.Value
				}
			case "vcs.time":
				if date == "" {
					date = setting.Value
				}
			}
		}
	}
	if commit == "" {
		commit = "none"
	}
	if date == "" {
		date = "unknown"
	}
	return version, commit, date
}
