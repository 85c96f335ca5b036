// Package buildinfo exposes link-time build metadata.
//
//	go build -ldflags "-X github.com/xelth-com/eckclockgo/internal/buildinfo.CommitHash=$(git rev-parse --short HEAD)"
package buildinfo

import "time"

// Set via -ldflags at build time
var (
	BuildTime  string // when the binary was compiled
	CommitTime string // last git commit time
	CommitHash string // short git commit hash
)

// StartTime is recorded when the process starts
var StartTime = time.Now().UTC().Format(time.RFC3339)

// Version returns the commit hash, or "dev" for unstamped builds
func Version() string {
	if CommitHash == "" {
		return "dev"
	}
	return CommitHash
}

// Fields returns the metadata as reported by /health
func Fields() map[string]string {
	return map[string]string{
		"version":    Version(),
		"buildTime":  BuildTime,
		"commitTime": CommitTime,
		"startedAt":  StartTime,
	}
}
