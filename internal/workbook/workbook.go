// Package workbook accumulates accepted emotion rows in memory and writes
// them to an .xlsx file in a single flush.
package workbook

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/andresmejia3/moodlog/internal/types"
	"github.com/xuri/excelize/v2"
)

// Header is the first row of every workbook.
var Header = []interface{}{"Time", "Emotion", "Confidence"}

// ErrAlreadySaved is returned when Save is called a second time.
var ErrAlreadySaved = errors.New("workbook: already saved")

// Workbook is an append-only sheet. Nothing reaches disk until Save.
type Workbook struct {
	f     *excelize.File
	sheet string
	path  string
	rows  int
	saved bool
}

// New prepares an empty workbook with the header row that will be written to path.
func New(path string) (*Workbook, error) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(f.GetActiveSheetIndex())

	if err := f.SetSheetRow(sheet, "A1", &Header); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write header: %w", err)
	}

	return &Workbook{f: f, sheet: sheet, path: path}, nil
}

// Append writes r below the previous row.
func (w *Workbook) Append(r types.LogRow) error {
	if w.saved {
		return ErrAlreadySaved
	}
	cell, err := excelize.CoordinatesToCellName(1, w.rows+2)
	if err != nil {
		return err
	}
	values := []interface{}{r.Time.Format(types.TimeLayout), r.Emotion, r.Confidence}
	if err := w.f.SetSheetRow(w.sheet, cell, &values); err != nil {
		return fmt.Errorf("failed to write row %d: %w", w.rows+2, err)
	}
	w.rows++
	return nil
}

// Rows returns the number of data rows appended so far.
func (w *Workbook) Rows() int { return w.rows }

// Path returns the destination file.
func (w *Workbook) Path() string { return w.path }

// Save writes the workbook to disk. It succeeds at most once.
func (w *Workbook) Save() error {
	if w.saved {
		return ErrAlreadySaved
	}
	if err := w.f.SaveAs(w.path); err != nil {
		return fmt.Errorf("failed to save %s: %w", w.path, err)
	}
	w.saved = true
	return nil
}

// Close releases the in-memory workbook. Unsaved rows are lost.
func (w *Workbook) Close() error {
	return w.f.Close()
}

// ReadRows loads the data rows of a saved workbook, skipping the header.
func ReadRows(path string) ([]types.LogRow, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	raw, err := f.GetRows(f.GetSheetName(f.GetActiveSheetIndex()))
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("%s: missing header row", path)
	}

	rows := make([]types.LogRow, 0, len(raw)-1)
	for i, cols := range raw[1:] {
		if len(cols) < 3 {
			return nil, fmt.Errorf("%s: row %d has %d columns", path, i+2, len(cols))
		}
		ts, err := time.ParseInLocation(types.TimeLayout, cols[0], time.Local)
		if err != nil {
			return nil, fmt.Errorf("%s: row %d: %w", path, i+2, err)
		}
		conf, err := strconv.ParseFloat(cols[2], 64)
		if err != nil {
			return nil, fmt.Errorf("%s: row %d: %w", path, i+2, err)
		}
		rows = append(rows, types.LogRow{Time: ts, Emotion: cols[1], Confidence: conf})
	}
	return rows, nil
}
