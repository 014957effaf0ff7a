package lookup

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Fixed workbook column layout (zero-based).
const (
	ColStreetNumber = 0
	ColStreetName   = 2
	ColStreetType   = 3
	ColCity         = 7

	ColFirstName = 12
	ColLastName  = 13
	ColPhone     = 14
)

// OutputColumns lists the destination cells written for every processed row.
var OutputColumns = []int{ColFirstName, ColLastName, ColPhone}

// DefaultMode is the query mode flag appended to every lookup.
const DefaultMode = "reverse"

// Outcome classifies how a work item finished.
type Outcome string

// Outcome values recorded for each processed row.
const (
	OutcomeResolved    Outcome = "resolved"
	OutcomeNoMatch     Outcome = "no_match"
	OutcomeFetchFailed Outcome = "fetch_failed"
)

// Address holds the free-text query attributes read from a row.
type Address struct {
	StreetNumber string
	StreetName   string
	StreetType   string
	City         string
}

// WorkItem is one pending row to resolve. It is never mutated after creation.
type WorkItem struct {
	Row     int
	Address Address
	Target  string
}

// NewWorkItem builds a WorkItem whose Target is derived from the address.
func NewWorkItem(row int, addr Address, baseURL, mode string) WorkItem {
	return WorkItem{
		Row:     row,
		Address: addr,
		Target:  QueryTarget(baseURL, mode, addr),
	}
}

// QueryTarget renders {base}/search/?q={num}+{name}+{type}+{city}&st={mode}.
func QueryTarget(baseURL, mode string, addr Address) string {
	if mode == "" {
		mode = DefaultMode
	}
	parts := []string{addr.StreetNumber, addr.StreetName, addr.StreetType, addr.City}
	for i, p := range parts {
		parts[i] = url.QueryEscape(strings.TrimSpace(p))
	}
	return fmt.Sprintf("%s/search/?q=%s&st=%s",
		strings.TrimRight(baseURL, "/"),
		strings.Join(parts, "+"),
		url.QueryEscape(mode),
	)
}

// ResultRecord is the outcome of resolving one WorkItem.
type ResultRecord struct {
	Row       int
	Outcome   Outcome
	FirstName string
	LastName  string
	Phone     string
	// Err is set for FetchFailed outcomes and is informational only.
	Err      error
	Duration time.Duration
}

// Unresolved reports whether the record carries no usable phone number.
func (r ResultRecord) Unresolved() bool {
	return r.Outcome != OutcomeResolved
}

// Resolved builds a successful record.
func Resolved(row int, first, last, phone string) ResultRecord {
	return ResultRecord{Row: row, Outcome: OutcomeResolved, FirstName: first, LastName: last, Phone: phone}
}

// NoMatch builds a record for a lookup that returned no listing.
func NoMatch(row int) ResultRecord {
	return ResultRecord{Row: row, Outcome: OutcomeNoMatch}
}

// FetchFailed builds a record for a lookup that could not be completed.
func FetchFailed(row int, err error) ResultRecord {
	return ResultRecord{Row: row, Outcome: OutcomeFetchFailed, Err: err}
}
