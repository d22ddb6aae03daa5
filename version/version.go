// Package version holds build-time version information.
// These values are set via -ldflags at build time.
package version

var (
	// GitRelease is the release tag or branch name.
	GitRelease = "dev"

	// GitCommit is the git commit hash.
	GitCommit = "unknown"

	// BuildDate is the build timestamp.
	BuildDate = "unknown"
)
