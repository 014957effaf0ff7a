// Package xlsx implements lookup.Sheet on top of an .xlsx workbook.
package xlsx

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/JakeFAU/reverse411/internal/lookup"
)

var (
	// ErrUnsupportedFormat is returned for paths that are not .xlsx workbooks.
	ErrUnsupportedFormat = errors.New("unsupported workbook format")
	// ErrWorkbookInUse is returned when another program holds the workbook open.
	ErrWorkbookInUse = errors.New("workbook is in use by another process: close the workbook before running")
)

// Workbook is a lookup.Sheet backed by the first sheet of an .xlsx file.
type Workbook struct {
	mu    sync.Mutex
	path  string
	file  *xlsx.File
	sheet *xlsx.Sheet
}

// Open loads the workbook at path for reading and later write-back.
func Open(path string) (*Workbook, error) {
	if err := checkPath(path); err != nil {
		return nil, err
	}

	fh, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, classifyOpenError(path, err)
	}
	if err := fh.Close(); err != nil {
		return nil, eris.Wrap(err, "xlsx: close probe handle")
	}

	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, classifyOpenError(path, err)
	}
	if len(f.Sheets) == 0 {
		return nil, eris.Errorf("xlsx: %s has no sheets", path)
	}

	return &Workbook{
		path:  path,
		file:  f,
		sheet: f.Sheets[0],
	}, nil
}

// Path returns the workbook location on disk.
func (w *Workbook) Path() string {
	return w.path
}

// LastRowIndex returns the zero-based index of the last row.
func (w *Workbook) LastRowIndex() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.sheet.Rows) - 1
}

// Row returns the row at index, or false when it is absent.
func (w *Workbook) Row(index int) (lookup.Row, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if index < 0 || index >= len(w.sheet.Rows) || w.sheet.Rows[index] == nil {
		return nil, false
	}
	return &row{wb: w, row: w.sheet.Rows[index]}, true
}

// Flush saves the workbook to a sibling temp file and renames it over the original.
func (w *Workbook) Flush(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return eris.Wrap(err, "xlsx: flush canceled")
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	dir, base := filepath.Split(w.path)
	tmp := filepath.Join(dir, ".reverse411-"+base)
	if err := w.file.Save(tmp); err != nil {
		_ = os.Remove(tmp)
		return eris.Wrap(err, "xlsx: save temp workbook")
	}
	if err := os.Rename(tmp, w.path); err != nil {
		_ = os.Remove(tmp)
		return classifyOpenError(w.path, err)
	}
	return nil
}

func checkPath(path string) error {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".xlsx":
	case ".xls":
		return eris.Wrapf(ErrUnsupportedFormat, "xlsx: %s is a legacy .xls workbook, save it as .xlsx", path)
	default:
		return eris.Wrapf(ErrUnsupportedFormat, "xlsx: %s is not an .xlsx workbook", path)
	}

	dir, base := filepath.Split(path)
	owner := filepath.Join(dir, "~$"+base)
	if _, err := os.Stat(owner); err == nil {
		return eris.Wrapf(ErrWorkbookInUse, "xlsx: owner file %s present", owner)
	}
	return nil
}

func classifyOpenError(path string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return eris.Wrapf(err, "xlsx: open %s", path)
	}
	msg := strings.ToLower(err.Error())
	if errors.Is(err, fs.ErrPermission) || strings.Contains(msg, "being used by another process") {
		return eris.Wrapf(ErrWorkbookInUse, "xlsx: open %s: %v", path, err)
	}
	return eris.Wrapf(err, "xlsx: open %s", path)
}

type row struct {
	wb  *Workbook
	row *xlsx.Row
}

func (r *row) Cell(col int) (string, bool) {
	r.wb.mu.Lock()
	defer r.wb.mu.Unlock()
	if col < 0 || col >= len(r.row.Cells) || r.row.Cells[col] == nil {
		return "", false
	}
	return r.row.Cells[col].String(), true
}

func (r *row) EnsureCell(col int) {
	r.wb.mu.Lock()
	defer r.wb.mu.Unlock()
	r.ensure(col)
}

func (r *row) SetCell(col int, value string) {
	r.wb.mu.Lock()
	defer r.wb.mu.Unlock()
	r.ensure(col).SetString(value)
}

func (r *row) ensure(col int) *xlsx.Cell {
	for len(r.row.Cells) <= col {
		r.row.AddCell()
	}
	if r.row.Cells[col] == nil {
		r.row.Cells[col] = &xlsx.Cell{Row: r.row}
	}
	return r.row.Cells[col]
}
