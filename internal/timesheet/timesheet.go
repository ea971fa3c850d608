// Package timesheet exports the weekly accumulators to CSV before a reset.
package timesheet

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Header is the first row of every timesheet.
var Header = []string{"name", "late_week_seconds", "worked_week_seconds"}

// Row is one member's line in the timesheet.
type Row struct {
	Name       string
	LateWeek   time.Duration
	WorkedWeek time.Duration
}

// FileName is the timesheet file name for day (YYYY-MM-DD).
func FileName(day string) string {
	return day + "-timesheet.csv"
}

// Encode writes the header and rows as CSV to w.
func Encode(w io.Writer, rows []Row) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(Header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, row := range rows {
		record := []string{row.Name, seconds(row.LateWeek), seconds(row.WorkedWeek)}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("write row %q: %w", row.Name, err)
		}
	}
	writer.Flush()
	return writer.Error()
}

// Write creates dir when needed and writes the timesheet for day into it,
// replacing any file from an earlier reset the same day. It returns the
// file's path.
func Write(dir, day string, rows []Row) (string, error) {
	if day == "" {
		return "", fmt.Errorf("day is required")
	}
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create timesheet dir: %w", err)
	}

	path := filepath.Join(dir, FileName(day))
	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create timesheet: %w", err)
	}

	if err := Encode(file, rows); err != nil {
		_ = file.Close()
		return "", err
	}
	if err := file.Close(); err != nil {
		return "", fmt.Errorf("close timesheet: %w", err)
	}

	return path, nil
}

func seconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 0, 64)
}
