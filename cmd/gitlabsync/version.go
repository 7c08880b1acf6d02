package gitlabsync

import (
	"fmt"
	"runtime"
)

// Set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

func versionTemplate() string {
	return fmt.Sprintf("gitlab-sync {{.Version}}\n  commit:  %s\n  built:   %s\n  go:      %s\n  os/arch: %s/%s\n",
		Commit, Date, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
