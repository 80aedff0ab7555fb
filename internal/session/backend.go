package session

import (
	"github.com/gofiber/storage/bbolt/v2"
	"github.com/gofiber/storage/memory/v2"
)

// BackendConfig selects and configures a storage backend, mirroring the
// teacher's getSessionStorage (internal/web/server.go).
type BackendConfig struct {
	Persist  bool
	DBPath   string
	Bucket   string // defaults to "sessions"
}

// NewBackend returns the in-process memory backend, or a durable bbolt
// backend when Persist is set (spec §4.2 "[ADD] Session storage interface
// ... exactly as getSessionStorage does").
func NewBackend(cfg BackendConfig) Backend {
	if cfg.Persist {
		bucket := cfg.Bucket
		if bucket == "" {
			bucket = "sessions"
		}

		return bbolt.New(bbolt.Config{
			Database: cfg.DBPath,
			Bucket:   bucket,
			Reset:    false,
		})
	}

	return memory.New()
}
