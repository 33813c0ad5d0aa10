// Package version reports the build identity of a liveview binary.
package version

import (
	"runtime/debug"
	"strings"
)

// Set with -ldflags "-X github.com/kbukum/liveview/version.Version=v1.2.3".
var (
	Version   = "dev"
	GitCommit = ""
	BuildTime = ""
)

// Info is served on /version and logged at startup.
type Info struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit,omitempty"`
	BuildTime string `json:"build_time,omitempty"`
	GoVersion string `json:"go_version,omitempty"`
	Dirty     bool   `json:"dirty,omitempty"`
	Release   bool   `json:"release"`
}

// Get returns the linked values, filled in from the embedded VCS settings
// where the linker left them empty.
func Get() Info {
	bi, _ := debug.ReadBuildInfo()
	return resolve(Version, GitCommit, BuildTime, bi)
}

func resolve(ver, commit, built string, bi *debug.BuildInfo) Info {
	info := Info{Version: ver, GitCommit: commit, BuildTime: built}
	if bi != nil {
		info.GoVersion = bi.GoVersion
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				if info.GitCommit == "" {
					info.GitCommit = s.Value
				}
			case "vcs.time":
				if info.BuildTime == "" {
					info.BuildTime = s.Value
				}
			case "vcs.modified":
				info.Dirty = s.Value == "true"
			}
		}
	}
	if len(info.GitCommit) > 7 {
		info.GitCommit = info.GitCommit[:7]
	}
	info.Release = ver != "dev" && !info.Dirty && !strings.Contains(ver, "dirty")
	return info
}

// Short renders version-commit[-dirty].
func (i Info) Short() string {
	s := i.Version
	if i.GitCommit != "" {
		s += "-" + i.GitCommit
	}
	if i.Dirty {
		s += "-dirty"
	}
	return s
}
