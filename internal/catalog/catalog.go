// Package catalog scans a sheet and builds the backlog of rows that still need a phone number.
package catalog

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/reverse411/internal/lookup"
)

// ErrStartRowOutOfRange is returned when the requested start row is past the last row.
var ErrStartRowOutOfRange = errors.New("start row exceeds the last row of the sheet")

// Target configures how query targets are rendered.
type Target struct {
	BaseURL string
	Mode    string
}

// Stats summarizes a catalog scan.
type Stats struct {
	Scanned         int
	AlreadyResolved int
	Missing         int
	BlankAddress    int
}

// BuildBacklog scans rows fromRow..last and returns the pending work items.
// Rows whose phone cell is already non-blank are skipped so reruns resume.
func BuildBacklog(
	sheet lookup.Sheet,
	fromRow int,
	target Target,
	logger *zap.Logger,
) ([]lookup.WorkItem, Stats, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if fromRow < 1 {
		fromRow = 1
	}
	last := sheet.LastRowIndex()
	if fromRow > last {
		return nil, Stats{}, fmt.Errorf("%w: start row %d, last row %d", ErrStartRowOutOfRange, fromRow, last)
	}

	var (
		backlog []lookup.WorkItem
		stats   Stats
	)
	for i := fromRow; i <= last; i++ {
		stats.Scanned++
		row, ok := sheet.Row(i)
		if !ok {
			stats.Missing++
			continue
		}
		if phone, ok := row.Cell(lookup.ColPhone); ok && strings.TrimSpace(phone) != "" {
			stats.AlreadyResolved++
			continue
		}

		addr := readAddress(row)
		if addr == (lookup.Address{}) {
			stats.BlankAddress++
			logger.Debug("skipping row without address", zap.Int("row", i))
			continue
		}

		for _, col := range lookup.OutputColumns {
			row.EnsureCell(col)
		}
		backlog = append(backlog, lookup.NewWorkItem(i, addr, target.BaseURL, target.Mode))
	}
	return backlog, stats, nil
}

func readAddress(row lookup.Row) lookup.Address {
	cell := func(col int) string {
		v, _ := row.Cell(col)
		return strings.TrimSpace(v)
	}
	return lookup.Address{
		StreetNumber: cell(lookup.ColStreetNumber),
		StreetName:   cell(lookup.ColStreetName),
		StreetType:   cell(lookup.ColStreetType),
		City:         cell(lookup.ColCity),
	}
}
