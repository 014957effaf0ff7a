package lookup

import (
	"context"
	"io"
	"time"
)

// Sheet is the tabular store holding one address per row.
type Sheet interface {
	// LastRowIndex returns the zero-based index of the last row.
	LastRowIndex() int
	// Row returns the row at index, or false when the row does not exist.
	Row(index int) (Row, bool)
	// Flush persists all pending cell changes durably.
	Flush(ctx context.Context) error
}

// Row gives cell access within one sheet row.
type Row interface {
	Cell(col int) (string, bool)
	EnsureCell(col int)
	SetCell(col int, value string)
}

// Resolver turns a WorkItem into a ResultRecord. Implementations never fail.
type Resolver interface {
	Resolve(ctx context.Context, item WorkItem) ResultRecord
}

// FetchRequest describes a single page fetch.
type FetchRequest struct {
	Row int
	URL string
}

// FetchResponse carries the decoded page body and metadata.
type FetchResponse struct {
	URL        string
	StatusCode int
	Body       []byte
	Duration   time.Duration
}

// Fetcher fetches a URL and returns the body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}

// Publisher pushes completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}
