// Package version provides version information for the Stellar client.
package version

import (
	"fmt"
	"strings"
)

// These variables are set at build time using -ldflags
var (
	// Name is the application name
	Name = "Stellar Client"

	// Version is the semantic version (set via -ldflags at build time)
	Version = "1.0.0"

	// BuildTime is the build timestamp (set via -ldflags at build time)
	BuildTime = ""

	// GitCommit is the git commit hash (set via -ldflags at build time)
	GitCommit = ""
)

// Info contains version information
type Info struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	BuildTime string `json:"buildTime,omitempty"`
	GitCommit string `json:"gitCommit,omitempty"`
}

// GetInfo returns the current version information
func GetInfo() Info {
	return Info{
		Name:      Name,
		Version:   Version,
		BuildTime: BuildTime,
		GitCommit: GitCommit,
	}
}

// String returns a formatted version string
func (i Info) String() string {
	s := fmt.Sprintf("%s v%s", i.Name, i.Version)
	if i.GitCommit != "" {
		s += fmt.Sprintf(" (%s)", i.GitCommit[:min(7, len(i.GitCommit))])
	}
	if i.BuildTime != "" {
		s += fmt.Sprintf(" built %s", i.BuildTime)
	}
	return s
}

// CacheName returns the resource cache name for the given prefix.
// Bumping Version produces a new name, which retires the previous cache.
func CacheName(prefix string) string {
	if prefix == "" {
		prefix = strings.ToLower(strings.ReplaceAll(Name, " ", "-"))
	}
	return prefix + "-v" + Version
}
