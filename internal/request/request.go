// Package request parses extraction request files: CSV lists of the meters
// to pull from a source system and the time window to pull.
package request

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

// Column names used by request headers.
const (
	ColSourceID   = "SourceID"
	ColQuantityID = "QuantityID"
	ColStartDate  = "start_date"
	ColEndDate    = "end_date"
	ColUnit       = "unit"
)

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	time.RFC3339,
}

// Window is a half-open time range [Start, End).
type Window struct {
	Start time.Time
	End   time.Time
}

// MeterDescriptor identifies one meter, quantity and window to extract.
type MeterDescriptor struct {
	SourceID   int64
	QuantityID int64 // 0 when the source has no quantities
	UnitHint   string
	Window     Window
	Line       int
}

// FormatError means the request file cannot be used. It is reported before
// any database work starts.
type FormatError struct {
	Line int
	Msg  string
}

func (e *FormatError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("request file line %d: %s", e.Line, e.Msg)
	}
	return "request file: " + e.Msg
}

// ReadFile parses the request file at path against the expected header.
func ReadFile(path string, header []string) ([]MeterDescriptor, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f, header)
}

// Parse reads a request CSV. The first row must match header exactly (names
// are compared after trimming surrounding spaces).
func Parse(r io.Reader, header []string) ([]MeterDescriptor, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	first, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &FormatError{Msg: "missing header, expected " + strings.Join(header, ",")}
		}
		return nil, &FormatError{Line: 1, Msg: err.Error()}
	}
	if !matchHeader(first, header) {
		return nil, &FormatError{Line: 1, Msg: fmt.Sprintf("incorrect header %q, expected %q",
			strings.Join(first, ","), strings.Join(header, ","))}
	}

	col := make(map[string]int, len(header))
	for i, name := range header {
		col[name] = i
	}

	var out []MeterDescriptor
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				return nil, &FormatError{Line: pe.Line, Msg: pe.Err.Error()}
			}
			return nil, &FormatError{Msg: err.Error()}
		}
		line, _ := cr.FieldPos(0)
		if len(rec) == 1 && strings.TrimSpace(rec[0]) == "" {
			continue
		}
		if len(rec) != len(header) {
			return nil, &FormatError{Line: line, Msg: fmt.Sprintf("expected %d fields, found %d", len(header), len(rec))}
		}
		m, err := parseRow(rec, col)
		if err != nil {
			return nil, &FormatError{Line: line, Msg: err.Error()}
		}
		m.Line = line
		out = append(out, m)
	}
	return out, nil
}

func matchHeader(got, want []string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range want {
		if strings.TrimSpace(got[i]) != want[i] {
			return false
		}
	}
	return true
}

func parseRow(rec []string, col map[string]int) (MeterDescriptor, error) {
	field := func(name string) (string, bool) {
		i, ok := col[name]
		if !ok {
			return "", false
		}
		return strings.TrimSpace(rec[i]), true
	}

	var m MeterDescriptor
	raw, _ := field(ColSourceID)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return m, fmt.Errorf("invalid %s %q", ColSourceID, raw)
	}
	m.SourceID = id

	if raw, ok := field(ColQuantityID); ok {
		q, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return m, fmt.Errorf("invalid %s %q", ColQuantityID, raw)
		}
		m.QuantityID = q
	}

	if raw, ok := field(ColUnit); ok {
		if raw == "" {
			return m, fmt.Errorf("empty %s", ColUnit)
		}
		m.UnitHint = raw
	}

	raw, _ = field(ColStartDate)
	if m.Window.Start, err = parseDate(raw); err != nil {
		return m, fmt.Errorf("invalid %s: %w", ColStartDate, err)
	}
	raw, _ = field(ColEndDate)
	if m.Window.End, err = parseDate(raw); err != nil {
		return m, fmt.Errorf("invalid %s: %w", ColEndDate, err)
	}
	if !m.Window.Start.Before(m.Window.End) {
		return m, fmt.Errorf("%s must be before %s", ColStartDate, ColEndDate)
	}
	return m, nil
}

func parseDate(s string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}
