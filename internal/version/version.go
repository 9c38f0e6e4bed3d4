// Package version holds the build-time version information.
package version

// The values are replaced at build time using the -X linker flag.
var (
	// Version is the version number of the running server.
	Version = "0.0.0"

	// BuildDate is the date the executable was built.
	BuildDate string
)
