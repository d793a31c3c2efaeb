// Package blob is the entry point for report storage. Callers depend on Store;
// only this package wires the infra backends.
package blob

import (
	"context"
	"fmt"

	"transplantcore/internal/blob/core"
	fsstore "transplantcore/internal/infra/blob/fs"
	memorystore "transplantcore/internal/infra/blob/memory"
	s3store "transplantcore/internal/infra/blob/s3"
)

type (
	Driver           = core.Driver
	Store            = core.Store
	Info             = core.Info
	PutOptions       = core.PutOptions
	SignedURLOptions = core.SignedURLOptions
	S3Config         = s3store.Config
)

const (
	DriverFilesystem = core.DriverFilesystem
	DriverS3         = core.DriverS3
	DriverMemory     = core.DriverMemory
)

var (
	ErrUnsupported = core.ErrUnsupported
	ErrNotFound    = core.ErrNotFound
	ErrExists      = core.ErrExists
)

// Config selects and parameterises a backend.
type Config struct {
	Driver Driver   `mapstructure:"driver"`
	FSRoot string   `mapstructure:"fs_root"`
	S3     S3Config `mapstructure:"s3"`
}

// Open returns the Store described by cfg. An empty driver means fs.
func Open(ctx context.Context, cfg Config) (Store, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = DriverFilesystem
	}
	switch driver {
	case DriverFilesystem:
		return NewFilesystem(cfg.FSRoot)
	case DriverS3:
		return NewS3(ctx, cfg.S3)
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %q", driver)
	}
}

// NewMemory returns an in-memory Store.
func NewMemory() Store { return memorystore.New() }

// NewFilesystem returns a Store rooted at root (fs.DefaultRoot when empty).
func NewFilesystem(root string) (Store, error) { return fsstore.New(root) }

// NewS3 constructs an S3-backed Store.
func NewS3(ctx context.Context, cfg S3Config) (Store, error) { return s3store.New(ctx, cfg) }

// NewMockS3ForTests exposes the fake-bucket S3 store for cross-package tests.
func NewMockS3ForTests() Store { return s3store.NewMockForTests() }
