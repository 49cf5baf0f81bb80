package blob

import (
	"context"
	"fmt"
	"os"

	fsstore "lineagecore/internal/infra/blob/fs"
	memorystore "lineagecore/internal/infra/blob/memory"
	s3store "lineagecore/internal/infra/blob/s3"
)

// S3Config re-exports the infra S3 configuration type.
type S3Config = s3store.Config

// Open selects a blob.Store implementation using environment variables.
//
//	LINEAGECORE_BLOB_DRIVER: fs|s3|memory (default fs)
//	LINEAGECORE_BLOB_FS_ROOT: directory root when driver=fs (default ./blobdata)
//	(S3 specific variables documented in the s3 infra package)
func Open(ctx context.Context) (Store, error) {
	driver := os.Getenv("LINEAGECORE_BLOB_DRIVER")
	if driver == "" {
		driver = string(DriverFilesystem)
	}
	switch Driver(driver) {
	case DriverFilesystem:
		return NewFilesystem(os.Getenv("LINEAGECORE_BLOB_FS_ROOT"))
	case DriverS3:
		return s3store.OpenFromEnv(ctx)
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %s", driver)
	}
}

// NewMemory returns an in-memory blob.Store suitable for tests.
func NewMemory() Store { return memorystore.New() }

// NewFilesystem returns a filesystem blob.Store rooted at root.
func NewFilesystem(root string) (Store, error) { return fsstore.New(root) }

// NewS3 constructs an S3-backed blob.Store from the provided configuration.
func NewS3(ctx context.Context, cfg S3Config) (Store, error) { return s3store.New(ctx, cfg) }

// NewMockS3ForTests exposes the in-process S3 mock for cross-package tests.
func NewMockS3ForTests() Store { return s3store.NewMockForTests() }
