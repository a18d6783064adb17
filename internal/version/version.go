// Package version exposes build metadata, stamped via -ldflags at release
// build time. Defaults identify an untagged development build.
package version

var (
	Version = "dev"
	Commit  = "unknown"
)
