// Package version provides build-time version information for brickify.
//
// The variables below are injected at build time via ldflags:
//
//	go build -ldflags "-X github.com/jmylchreest/brickify/internal/version.Version=x.y.z \
//	                   -X github.com/jmylchreest/brickify/internal/version.Commit=$(git rev-parse HEAD) \
//	                   -X github.com/jmylchreest/brickify/internal/version.Branch=$(git rev-parse --abbrev-ref HEAD) \
//	                   -X github.com/jmylchreest/brickify/internal/version.Date=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
package version

import (
	"encoding/json"
	"fmt"
	"runtime"
	"strings"
)

// Build-time variables injected via ldflags.
var (
	// Version is the semantic version following SemVer 2.0.0.
	// Prerelease builds use "1.2.3-SNAPSHOT.abc1234".
	Version = "dev"

	// Commit is the full git commit SHA.
	Commit = "unknown"

	// Branch is the git branch the binary was built from.
	Branch = "unknown"

	// TreeState is "clean" or "dirty".
	TreeState = "unknown"

	// Date is the build timestamp in RFC3339 format.
	Date = "unknown"
)

// ApplicationName is the canonical name of this application.
const ApplicationName = "brickify"

const shortSHALen = 8

// Info contains structured version information.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	CommitSHA string `json:"commit_sha"`
	Branch    string `json:"branch"`
	TreeState string `json:"tree_state"`
	Date      string `json:"date"`
	GoVersion string `json:"go_version"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// GetInfo returns all version information as a structured type.
func GetInfo() Info {
	return Info{
		Version:   Version,
		Commit:    Commit,
		CommitSHA: shortCommit(),
		Branch:    Branch,
		TreeState: TreeState,
		Date:      Date,
		GoVersion: runtime.Version(),
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
}

// Platform returns "os/arch".
func (i Info) Platform() string {
	return i.OS + "/" + i.Arch
}

func shortCommit() string {
	if Commit == "unknown" || len(Commit) < shortSHALen {
		return ""
	}
	sha := Commit[:shortSHALen]
	if TreeState == "dirty" {
		sha += "*"
	}
	return sha
}

// String returns a human-readable version string.
func String() string {
	info := GetInfo()
	if info.CommitSHA == "" {
		return fmt.Sprintf("%s version %s (%s, %s)", ApplicationName, info.Version, info.GoVersion, info.Platform())
	}
	return fmt.Sprintf("%s version %s (commit: %s, branch: %s, built: %s, %s, %s)",
		ApplicationName, info.Version, info.CommitSHA, info.Branch, info.Date, info.GoVersion, info.Platform())
}

// Short returns a short version string suitable for cobra's --version output,
// which already prints the application name.
func Short() string {
	if sha := shortCommit(); sha != "" {
		return fmt.Sprintf("%s (%s)", Version, sha)
	}
	return Version
}

// JSON returns the version information as a JSON document.
func JSON() string {
	b, err := json.Marshal(GetInfo())
	if err != nil {
		return "{}"
	}
	return string(b)
}

// ServerHeader returns the value used for the HTTP Server header.
func ServerHeader() string {
	return fmt.Sprintf("%s/%s", ApplicationName, Version)
}

// IsSnapshot returns true if this is a snapshot/prerelease build.
func IsSnapshot() bool {
	return Version == "dev" || strings.Contains(Version, "-SNAPSHOT")
}

// IsRelease returns true if this is a tagged release build.
func IsRelease() bool {
	return !IsSnapshot()
}
