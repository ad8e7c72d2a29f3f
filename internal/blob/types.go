// Package blob is the artifact store facade. Callers depend on Store and
// Open; the backends live under internal/infra/blob.
package blob

import (
	"context"
	"errors"

	"idsm/internal/blob/core"
)

type (
	// Driver identifies a blob backend driver.
	Driver = core.Driver
	// PutOptions configures a blob write.
	PutOptions = core.PutOptions
	// SignedURLOptions configures URL pre-signing.
	SignedURLOptions = core.SignedURLOptions
	// Info describes stored blob metadata.
	Info = core.Info
	// Store is the interface for blob storage backends.
	Store = core.Store
)

const (
	DriverFilesystem = core.DriverFilesystem
	DriverS3         = core.DriverS3
	DriverMemory     = core.DriverMemory
)

var (
	ErrUnsupported = core.ErrUnsupported
	ErrExists      = core.ErrExists
	ErrNotFound    = core.ErrNotFound
)

// Exists reports whether key is stored.
func Exists(ctx context.Context, s Store, key string) (bool, error) {
	_, err := s.Head(ctx, key)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

// ExistsAll reports whether every key is stored.
func ExistsAll(ctx context.Context, s Store, keys ...string) (bool, error) {
	for _, key := range keys {
		ok, err := Exists(ctx, s, key)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}
