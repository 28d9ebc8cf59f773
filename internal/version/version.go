package version

import "fmt"

// Set at build time with -ldflags "-X github.com/banshee-data/velodyne.proxy/internal/version.Version=...".
var (
	// Version is the current application version
	Version = "dev"
	// GitSHA is the git commit SHA
	GitSHA = "unknown"
	// BuildTime is the build timestamp
	BuildTime = "unknown"
)

// String formats the build information for -version and the debug page.
func String() string {
	sha := GitSHA
	if len(sha) > 12 {
		sha = sha[:12]
	}
	return fmt.Sprintf("velodyne-proxy %s (%s, built %s)", Version, sha, BuildTime)
}
