package backend

import (
	"context"
	"time"

	"opticash/internal/overlay"
	"opticash/internal/store"
	"opticash/internal/store/cached"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult contains the store, the client state store and a cleanup
// function releasing both.
type BackendResult struct {
	Store store.Store
	State overlay.KV
	// Cache is nil when caching is disabled.
	Cache   *cached.Store
	Cleanup CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	// SQLite specific
	SQLiteDBPath string

	// Client state (payment overlay). Empty keeps state in memory.
	StateDBPath string

	// Memory specific
	SeedFile string

	// REST specific
	APIBaseURL string
	APIToken   string
	APITimeout time.Duration

	// Read cache; CacheSize 0 disables it
	CacheSize int
	CacheTTL  time.Duration
}

// BackendType represents the type of backend
type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	RESTBackend   BackendType = "rest"
	MemoryBackend BackendType = "memory"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, RESTBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
