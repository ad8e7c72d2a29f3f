package blob

import (
	"context"
	"fmt"

	"idsm/internal/infra/blob/fs"
	memorystore "idsm/internal/infra/blob/memory"
	infraS3 "idsm/internal/infra/blob/s3"
)

// S3Config re-exports the bucket configuration.
type S3Config = infraS3.Config

// Options selects and configures a backend. The env tags are read with the
// IDSM_BLOB_ prefix by the config package.
type Options struct {
	Driver Driver   `yaml:"driver" env:"DRIVER"`
	Root   string   `yaml:"root" env:"FS_ROOT"`
	S3     S3Config `yaml:"s3" envPrefix:"S3_"`
}

// Open constructs the configured store; the filesystem driver is the default.
func Open(ctx context.Context, opts Options) (Store, error) {
	driver := opts.Driver
	if driver == "" {
		driver = DriverFilesystem
	}
	switch driver {
	case DriverFilesystem:
		return NewFilesystem(opts.Root)
	case DriverS3:
		return NewS3(ctx, opts.S3)
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %q", driver)
	}
}

// NewFilesystem constructs a filesystem-backed store rooted at root.
func NewFilesystem(root string) (Store, error) {
	return fs.New(root)
}

// NewMemory returns an in-memory store.
func NewMemory() Store { return memorystore.New() }

// NewS3 constructs an S3-backed store.
func NewS3(ctx context.Context, cfg S3Config) (Store, error) {
	return infraS3.New(ctx, cfg)
}

// NewMockS3ForTests exposes the in-memory S3 fake for cross-package tests.
func NewMockS3ForTests() Store { return infraS3.NewMockForTests(2) }
