// Package version carries build identification, set at link time with
// -ldflags "-X github.com/neuroflight/neuroflight/internal/version.Version=...".
package version

import "fmt"

var (
	// Version is the release version.
	Version = "dev"
	// GitSHA is the git commit the binary was built from.
	GitSHA = "unknown"
)

// String formats the build identification for startup logs.
func String() string {
	return fmt.Sprintf("%s (%s)", Version, GitSHA)
}
