package storage_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/reverse411/internal/config"
	"github.com/JakeFAU/reverse411/internal/storage"
	"github.com/JakeFAU/reverse411/internal/storage/local"
	"github.com/JakeFAU/reverse411/internal/storage/memory"
)

func TestNewArchiveProviders(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store, closer, err := storage.NewArchive(ctx, config.ArchiveConfig{Provider: config.ArchiveNone})
	require.NoError(t, err)
	require.Nil(t, store)
	require.NoError(t, closer())

	store, closer, err = storage.NewArchive(ctx, config.ArchiveConfig{Provider: config.ArchiveMemory})
	require.NoError(t, err)
	require.IsType(t, &memory.BlobStore{}, store)
	require.NoError(t, closer())

	store, closer, err = storage.NewArchive(ctx, config.ArchiveConfig{Provider: config.ArchiveLocal, BaseDir: t.TempDir()})
	require.NoError(t, err)
	require.IsType(t, &local.BlobStore{}, store)
	uri, err := store.PutObject(ctx, "run/row-1.html", "text/html", strings.NewReader("<html/>"))
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(uri, "file://"))
	require.NoError(t, closer())
}

func TestNewArchiveRejectsUnknownProvider(t *testing.T) {
	t.Parallel()

	_, closer, err := storage.NewArchive(context.Background(), config.ArchiveConfig{Provider: "s3"})
	require.Error(t, err)
	require.NotNil(t, closer)
}
