// Package blob selects and opens the blob store archived actions are written
// to. It is the only package allowed to import the infra implementations.
package blob

import (
	"context"
	"fmt"

	"microcosm/internal/blob/core"
	"microcosm/internal/config"
	fsstore "microcosm/internal/infra/blob/fs"
	memstore "microcosm/internal/infra/blob/memory"
	s3store "microcosm/internal/infra/blob/s3"
)

type (
	Store      = core.Store
	Info       = core.Info
	PutOptions = core.PutOptions
	Driver     = core.Driver
)

const (
	DriverFilesystem = core.DriverFilesystem
	DriverS3         = core.DriverS3
	DriverMemory     = core.DriverMemory
)

var (
	ErrNotFound   = core.ErrNotFound
	ErrExists     = core.ErrExists
	ErrInvalidKey = core.ErrInvalidKey
)

// Open constructs the store selected by cfg.Driver.
func Open(ctx context.Context, cfg config.BlobConfig) (Store, error) {
	switch Driver(cfg.Driver) {
	case DriverFilesystem, "":
		return fsstore.New(cfg.FSRoot)
	case DriverMemory:
		return memstore.New(), nil
	case DriverS3:
		return s3store.New(ctx, s3store.Config{
			Bucket:    cfg.S3.Bucket,
			Region:    cfg.S3.Region,
			Endpoint:  cfg.S3.Endpoint,
			PathStyle: cfg.S3.PathStyle,
		})
	default:
		return nil, fmt.Errorf("unknown blob driver %q", cfg.Driver)
	}
}

// NewMemory returns an in-memory store for tests and ephemeral processes.
func NewMemory() Store { return memstore.New() }

// NewS3Mock returns an s3 store backed by a fake transport, for tests.
func NewS3Mock() Store { return s3store.NewMockForTests() }
