package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/JakeFAU/reverse411/internal/lookup"
)

// Sheet is an in-memory lookup.Sheet for development and tests.
type Sheet struct {
	mu       sync.RWMutex
	rows     [][]*string
	flushes  int
	flushErr error
}

// NewSheet builds a Sheet from raw cell values. A nil row models a missing row.
func NewSheet(rows [][]string) *Sheet {
	s := &Sheet{rows: make([][]*string, len(rows))}
	for i, cells := range rows {
		if cells == nil {
			continue
		}
		s.rows[i] = make([]*string, len(cells))
		for j := range cells {
			v := cells[j]
			s.rows[i][j] = &v
		}
	}
	return s
}

// LastRowIndex returns the index of the last row.
func (s *Sheet) LastRowIndex() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rows) - 1
}

// Row returns a handle on the row at index.
func (s *Sheet) Row(index int) (lookup.Row, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if index < 0 || index >= len(s.rows) || s.rows[index] == nil {
		return nil, false
	}
	return &sheetRow{sheet: s, index: index}, true
}

// Flush records a durable save, or returns the configured failure.
func (s *Sheet) Flush(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.flushErr != nil {
		return s.flushErr
	}
	s.flushes++
	return nil
}

// FailFlush makes subsequent Flush calls return err.
func (s *Sheet) FailFlush(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushErr = err
}

// Flushes reports how many successful flushes occurred.
func (s *Sheet) Flushes() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.flushes
}

// Value returns the cell value, or "" for absent cells.
func (s *Sheet) Value(row, col int) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if row < 0 || row >= len(s.rows) || col < 0 || col >= len(s.rows[row]) {
		return ""
	}
	if p := s.rows[row][col]; p != nil {
		return *p
	}
	return ""
}

// HasCell reports whether the cell exists (blank or not).
func (s *Sheet) HasCell(row, col int) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if row < 0 || row >= len(s.rows) || col < 0 || col >= len(s.rows[row]) {
		return false
	}
	return s.rows[row][col] != nil
}

type sheetRow struct {
	sheet *Sheet
	index int
}

func (r *sheetRow) Cell(col int) (string, bool) {
	r.sheet.mu.RLock()
	defer r.sheet.mu.RUnlock()
	cells := r.sheet.rows[r.index]
	if col < 0 || col >= len(cells) || cells[col] == nil {
		return "", false
	}
	return *cells[col], true
}

func (r *sheetRow) EnsureCell(col int) {
	r.sheet.mu.Lock()
	defer r.sheet.mu.Unlock()
	r.ensure(col)
}

func (r *sheetRow) SetCell(col int, value string) {
	r.sheet.mu.Lock()
	defer r.sheet.mu.Unlock()
	r.ensure(col)
	v := strings.Clone(value)
	r.sheet.rows[r.index][col] = &v
}

func (r *sheetRow) ensure(col int) {
	cells := r.sheet.rows[r.index]
	for len(cells) <= col {
		cells = append(cells, nil)
	}
	if cells[col] == nil {
		blank := ""
		cells[col] = &blank
	}
	r.sheet.rows[r.index] = cells
}
