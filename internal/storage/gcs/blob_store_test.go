package gcs

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewValidatesInput(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Config{Bucket: "pages"})
	require.Error(t, err)
}

func TestPutObjectWritesAndReturnsURI(t *testing.T) {
	t.Parallel()

	w := &fakeWriter{}
	var gotPath, gotType string
	s := &BlobStore{
		bucket: "pages",
		newWriter: func(_ context.Context, path, contentType string) objectWriter {
			gotPath, gotType = path, contentType
			return w
		},
	}

	uri, err := s.PutObject(context.Background(), "/run-1/row-3.html", "text/html", strings.NewReader("<html/>"))
	require.NoError(t, err)
	require.Equal(t, "gs://pages/run-1/row-3.html", uri)
	require.Equal(t, "run-1/row-3.html", gotPath)
	require.Equal(t, "text/html", gotType)
	require.Equal(t, "<html/>", w.buf.String())
	require.True(t, w.closed)
}

func TestPutObjectCloseError(t *testing.T) {
	t.Parallel()

	s := &BlobStore{
		bucket: "pages",
		newWriter: func(context.Context, string, string) objectWriter {
			return &fakeWriter{closeErr: errors.New("precondition failed")}
		},
	}
	_, err := s.PutObject(context.Background(), "row-1.html", "", strings.NewReader("x"))
	require.ErrorContains(t, err, "close writer")
}

func TestPutObjectEmptyPath(t *testing.T) {
	t.Parallel()

	s := &BlobStore{bucket: "pages"}
	_, err := s.PutObject(context.Background(), " ", "", strings.NewReader("x"))
	require.Error(t, err)
}

type fakeWriter struct {
	buf      bytes.Buffer
	closed   bool
	closeErr error
}

func (f *fakeWriter) Write(p []byte) (int, error) { return f.buf.Write(p) }

func (f *fakeWriter) Close() error {
	f.closed = true
	return f.closeErr
}
