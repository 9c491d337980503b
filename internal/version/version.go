// Package version exposes the build version stamped in via ldflags.
package version

// version is set at build time via -ldflags "-X ...version.version=vX.Y.Z".
var version = ""

// Version returns the stamped build version, or v0.0.0 for unstamped builds.
func Version() string {
	if version == "" {
		return "v0.0.0"
	}
	return version
}
