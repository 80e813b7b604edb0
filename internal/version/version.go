// Package version holds the build identifier, injected via -ldflags.
package version

// Build is set with -ldflags "-X github.com/narvanalabs/pageserver-registrar/internal/version.Build=...".
var Build = "dev"

// UserAgent is the fixed client identifier sent on registration calls.
func UserAgent() string {
	return "pageserver-registrar/" + Build
}
