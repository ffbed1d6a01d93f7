// Package version holds the build version, overridable at link time with
// -ldflags "-X mikanlink/pkg/version.Version=...".
package version

// Version is the current release.
var Version = "v0.3.0"

// UserAgent identifies this build to the compositor and in HTTP responses.
func UserAgent() string {
	return "mikanlink/" + Version
}
