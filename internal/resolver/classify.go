package resolver

import (
	"context"
	"errors"
	"net"
	"strings"
	"syscall"

	collyfetcher "github.com/JakeFAU/reverse411/internal/fetcher/colly"
)

// Failure reasons used as the metric label for fetch_failed outcomes.
const (
	ReasonTimeout   = "timeout"
	ReasonCanceled  = "canceled"
	ReasonStatus    = "status"
	ReasonTransient = "transient"
	ReasonParse     = "parse"
	ReasonOther     = "other"
)

var transientPatterns = []string{
	"connection reset by peer",
	"broken pipe",
	"temporary failure in name resolution",
	"no such host",
	"tls handshake timeout",
	"server closed idle connection",
	"transport connection broken",
}

// classify buckets a fetch error into a coarse failure reason.
func classify(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.Canceled) {
		return ReasonCanceled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ReasonTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ReasonTimeout
	}
	if collyfetcher.IsStatusError(err) {
		return ReasonStatus
	}
	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return ReasonTransient
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded") {
		return ReasonTimeout
	}
	for _, p := range transientPatterns {
		if strings.Contains(msg, p) {
			return ReasonTransient
		}
	}
	return ReasonOther
}
