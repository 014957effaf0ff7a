// Package resolver turns one work item into a result record: fetch the lookup
// page, optionally archive it, and extract the listing. It never fails; every
// problem is folded into a fetch_failed or no_match record.
package resolver

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/reverse411/internal/lookup"
	"github.com/JakeFAU/reverse411/internal/metrics"
	"github.com/JakeFAU/reverse411/internal/parser"
)

const archiveContentType = "text/html; charset=utf-8"

// Parser extracts a listing from a result page.
type Parser interface {
	Parse(body []byte) (parser.Listing, error)
}

// Config controls archiving.
type Config struct {
	// ArchivePrefix is prepended to archived page paths.
	ArchivePrefix string
	RunID         string
}

// Resolver implements lookup.Resolver.
type Resolver struct {
	fetcher lookup.Fetcher
	parser  Parser
	archive lookup.BlobStore
	cfg     Config
	logger  *zap.Logger
	tracer  trace.Tracer
}

var _ lookup.Resolver = (*Resolver)(nil)

// New builds a Resolver. archive may be nil.
func New(fetcher lookup.Fetcher, p Parser, archive lookup.BlobStore, cfg Config, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	if p == nil {
		p = parser.New(parser.Selectors{})
	}
	return &Resolver{
		fetcher: fetcher,
		parser:  p,
		archive: archive,
		cfg:     cfg,
		logger:  logger,
		tracer:  otel.Tracer("github.com/JakeFAU/reverse411/internal/resolver"),
	}
}

// Resolve performs one lookup.
func (r *Resolver) Resolve(ctx context.Context, item lookup.WorkItem) (rec lookup.ResultRecord) {
	ctx, span := r.tracer.Start(ctx, "resolve", trace.WithAttributes(attribute.Int("row", item.Row)))
	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("lookup panicked", zap.Int("row", item.Row), zap.Any("panic", p))
			rec = r.failed(item, fmt.Errorf("lookup panic: %v", p), ReasonOther)
		}
		rec.Duration = time.Since(start)
		span.SetAttributes(attribute.String("outcome", string(rec.Outcome)))
		if rec.Err != nil {
			span.SetStatus(codes.Error, rec.Err.Error())
		}
		span.End()
	}()

	resp, err := r.fetcher.Fetch(ctx, lookup.FetchRequest{Row: item.Row, URL: item.Target})
	if err != nil {
		return r.failed(item, err, classify(err))
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return r.failed(item, fmt.Errorf("unexpected status %d", resp.StatusCode), ReasonStatus)
	}

	r.archivePage(ctx, item, resp.Body)

	listing, err := r.parser.Parse(resp.Body)
	switch {
	case errors.Is(err, parser.ErrNoListing):
		r.logger.Info("no listing found", zap.Int("row", item.Row))
		return lookup.NoMatch(item.Row)
	case err != nil:
		return r.failed(item, fmt.Errorf("parse result page: %w", err), ReasonParse)
	}

	first, last := lookup.SplitName(listing.Name)
	r.logger.Info("listing found",
		zap.Int("row", item.Row),
		zap.String("name", listing.Name),
		zap.String("phone", listing.Telephone),
	)
	return lookup.Resolved(item.Row, first, last, listing.Telephone)
}

func (r *Resolver) failed(item lookup.WorkItem, err error, reason string) lookup.ResultRecord {
	metrics.ObserveLookupFailure(reason)
	r.logger.Warn("lookup failed",
		zap.Int("row", item.Row),
		zap.String("reason", reason),
		zap.Error(err),
	)
	return lookup.FetchFailed(item.Row, err)
}

// archivePage stores the raw page. Failures are logged and otherwise ignored.
func (r *Resolver) archivePage(ctx context.Context, item lookup.WorkItem, body []byte) {
	if r.archive == nil {
		return
	}
	path := r.archivePath(item.Row)
	uri, err := r.archive.PutObject(ctx, path, archiveContentType, bytes.NewReader(body))
	if err != nil {
		metrics.ObserveArchiveFailure()
		r.logger.Warn("archive page failed", zap.Int("row", item.Row), zap.String("path", path), zap.Error(err))
		return
	}
	r.logger.Debug("page archived", zap.Int("row", item.Row), zap.String("uri", uri))
}

func (r *Resolver) archivePath(row int) string {
	name := fmt.Sprintf("row-%d.html", row)
	parts := make([]string, 0, 3)
	if prefix := strings.Trim(r.cfg.ArchivePrefix, "/"); prefix != "" {
		parts = append(parts, prefix)
	}
	if r.cfg.RunID != "" {
		parts = append(parts, r.cfg.RunID)
	}
	return strings.Join(append(parts, name), "/")
}
