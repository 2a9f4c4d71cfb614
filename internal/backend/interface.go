package backend

import (
	"context"

	"costmanager/internal/core"
	"costmanager/internal/settings"
)

// CostStore is the append and enumerate collection of entries.
type CostStore interface {
	Append(ctx context.Context, in core.CostInput) (core.CostEntry, error)
	ListAll(ctx context.Context) ([]core.CostEntry, error)
}

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult holds the opened stores and how to release them.
type BackendResult struct {
	Costs    CostStore
	Settings settings.Store
	Cleanup  CleanupFunc
	// Ready reports whether the store can serve requests.
	Ready func(ctx context.Context) error
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type         BackendType
	SQLiteDBPath string
}

// BackendType represents the type of backend
type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	MemoryBackend BackendType = "memory"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
