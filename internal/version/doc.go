// Package version provides build-time information for bengproxy.
//
// Version, CommitHash and BuildTimestamp are injected at build time via
// -ldflags, e.g.:
//
//	go build -ldflags="\
//	  -X 'github.com/netresearch/bengproxy/internal/version.Version=v1.0.0' \
//	  -X 'github.com/netresearch/bengproxy/internal/version.CommitHash=$(git rev-parse --short HEAD)' \
//	  -X 'github.com/netresearch/bengproxy/internal/version.BuildTimestamp=$(date -u +%Y-%m-%dT%H:%M:%SZ)' \
//	" ./cmd/bengproxy
//
// Default values ("dev", "n/a", "n/a") apply to unflagged development builds.
package version
