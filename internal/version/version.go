package version

import (
	"flag"
	"runtime"
)

// Set at build time with -ldflags "-X".
var (
	Version   = "develop"
	GitCommit = ""
	BuildDate = ""
)

type BuildInfo struct {
	Version   string `json:"version,omitempty"`
	GitCommit string `json:"gitCommit,omitempty"`
	BuildDate string `json:"buildDate,omitempty"`
	GoVersion string `json:"goVersion,omitempty"`
}

func Get() BuildInfo {
	v := BuildInfo{
		Version:   Version,
		GitCommit: GitCommit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
	}

	// Keep test output stable across toolchains.
	if flag.Lookup("test.v") != nil {
		v.GoVersion = ""
	}
	return v
}
