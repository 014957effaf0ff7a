// Package storage selects the blob store used to archive fetched pages.
package storage

import (
	"context"
	"fmt"

	gcsclient "cloud.google.com/go/storage"

	"github.com/JakeFAU/reverse411/internal/config"
	"github.com/JakeFAU/reverse411/internal/lookup"
	"github.com/JakeFAU/reverse411/internal/storage/gcs"
	"github.com/JakeFAU/reverse411/internal/storage/local"
	"github.com/JakeFAU/reverse411/internal/storage/memory"
)

// Closer releases resources held by an archive.
type Closer func() error

func noopCloser() error { return nil }

// NewArchive returns the blob store selected by cfg.Provider. A nil store means
// archiving is disabled. The closer is always non-nil.
func NewArchive(ctx context.Context, cfg config.ArchiveConfig) (lookup.BlobStore, Closer, error) {
	switch cfg.Provider {
	case "", config.ArchiveNone:
		return nil, noopCloser, nil
	case config.ArchiveMemory:
		return memory.NewBlobStore(), noopCloser, nil
	case config.ArchiveLocal:
		store, err := local.New(local.Config{BaseDir: cfg.BaseDir})
		if err != nil {
			return nil, noopCloser, fmt.Errorf("local archive: %w", err)
		}
		return store, noopCloser, nil
	case config.ArchiveGCS:
		client, err := gcsclient.NewClient(ctx)
		if err != nil {
			return nil, noopCloser, fmt.Errorf("gcs client: %w", err)
		}
		store, err := gcs.New(client, gcs.Config{Bucket: cfg.GCSBucket})
		if err != nil {
			_ = client.Close()
			return nil, noopCloser, fmt.Errorf("gcs archive: %w", err)
		}
		return store, client.Close, nil
	default:
		return nil, noopCloser, fmt.Errorf("unknown archive provider %q", cfg.Provider)
	}
}
