// Package version holds the symbolic version of the running code. It is
// overridden at build time with -ldflags.
package version

// Version is the symbolic version (if any) of the running code.
var Version = "v0.0.0-dev"
