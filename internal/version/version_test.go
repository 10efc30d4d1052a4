package version

import (
	"encoding/json"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// restore snapshots the ldflags variables and resets them when the test ends.
func restore(t *testing.T) {
	t.Helper()
	v, c, b, ts, d := Version, Commit, Branch, TreeState, Date
	t.Cleanup(func() {
		Version, Commit, Branch, TreeState, Date = v, c, b, ts, d
	})
}

func TestGetInfo(t *testing.T) {
	info := GetInfo()

	assert.NotEmpty(t, info.Version)
	assert.NotEmpty(t, info.GoVersion)
	assert.Equal(t, runtime.GOOS, info.OS)
	assert.Equal(t, runtime.GOARCH, info.Arch)
	assert.Equal(t, runtime.GOOS+"/"+runtime.GOARCH, info.Platform())
}

func TestString(t *testing.T) {
	restore(t)
	Commit = "unknown"

	s := String()
	assert.True(t, strings.HasPrefix(s, ApplicationName+" version "), s)
	assert.NotContains(t, s, "commit:")
}

func TestStringWithCommit(t *testing.T) {
	restore(t)
	Version = "1.0.0"
	Commit = "abc123def456789"
	Date = "2024-01-15T10:30:00Z"
	Branch = "main"
	TreeState = "clean"

	s := String()
	assert.Contains(t, s, "commit: abc123de,")
	assert.Contains(t, s, "2024-01-15")
	assert.Contains(t, s, "branch: main")
}

func TestShort(t *testing.T) {
	restore(t)
	Version = "1.0.0"
	Commit = "unknown"
	assert.Equal(t, "1.0.0", Short())

	Commit = "abc123def456789"
	TreeState = "dirty"
	assert.Equal(t, "1.0.0 (abc123de*)", Short())
	assert.Contains(t, String(), "abc123de*")
}

func TestJSON(t *testing.T) {
	restore(t)
	Version = "1.2.3"
	Commit = "abc123def456789"
	Date = "2024-01-15T10:30:00Z"
	Branch = "feature-branch"
	TreeState = "clean"

	var info Info
	require.NoError(t, json.Unmarshal([]byte(JSON()), &info))
	assert.Equal(t, "1.2.3", info.Version)
	assert.Equal(t, "abc123def456789", info.Commit)
	assert.Equal(t, "abc123de", info.CommitSHA)
	assert.Equal(t, "feature-branch", info.Branch)
	assert.Equal(t, "clean", info.TreeState)
	assert.Equal(t, runtime.GOOS, info.OS)
}

func TestServerHeader(t *testing.T) {
	restore(t)
	Version = "0.4.0"
	assert.Equal(t, "brickify/0.4.0", ServerHeader())
}

func TestIsSnapshot(t *testing.T) {
	restore(t)

	tests := []struct {
		version  string
		snapshot bool
	}{
		{"dev", true},
		{"1.0.0", false},
		{"1.0.1-SNAPSHOT.abc1234", true},
		{"0.1.0", false},
		{"1.2.3-alpha.1", false},
	}

	for _, tt := range tests {
		t.Run(tt.version, func(t *testing.T) {
			Version = tt.version
			assert.Equal(t, tt.snapshot, IsSnapshot())
			assert.Equal(t, !tt.snapshot, IsRelease())
		})
	}
}
