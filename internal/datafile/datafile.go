// Package datafile reads and writes extraction files, the self-describing
// CSV hand-off between the extractor and the loader.
//
// Row 1 is the header: description, unit, commodity, source system name,
// reading type. Every following row is a timestamp and a value, where a
// missing value is written as the literal NULL.
package datafile

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// HeaderFields is the number of fields in an extraction file header.
const HeaderFields = 5

// NullToken marks a reading without a value.
const NullToken = "NULL"

// TimestampLayout is the layout readings are written with (always UTC).
const TimestampLayout = "2006-01-02 15:04:05.999999999"

var timestampLayouts = []string{
	TimestampLayout,
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
}

// Header describes the meter whose readings follow it.
type Header struct {
	Description  string
	Unit         string
	Commodity    string
	SourceSystem string
	ReadingType  string
}

// Fields returns the header in file order.
func (h Header) Fields() []string {
	return []string{h.Description, h.Unit, h.Commodity, h.SourceSystem, h.ReadingType}
}

// HeaderError means the first row is not a valid extraction header.
type HeaderError struct {
	Path   string
	Fields int
	Err    error
}

func (e *HeaderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: incorrect file header: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("%s: incorrect file header: expected %d fields, found %d", e.Path, HeaderFields, e.Fields)
}

func (e *HeaderError) Unwrap() error { return e.Err }

// Row is one reading. Value is nil for NULL.
type Row struct {
	Timestamp time.Time
	Value     *decimal.Decimal
}

// Writer serializes an extraction file.
type Writer struct {
	w *csv.Writer
}

// NewWriter writes the header immediately.
func NewWriter(w io.Writer, h Header) (*Writer, error) {
	cw := csv.NewWriter(w)
	if err := cw.Write(h.Fields()); err != nil {
		return nil, fmt.Errorf("failed to write header: %w", err)
	}
	return &Writer{w: cw}, nil
}

// Write appends one reading.
func (w *Writer) Write(r Row) error {
	value := NullToken
	if r.Value != nil {
		value = r.Value.String()
	}
	return w.w.Write([]string{r.Timestamp.UTC().Format(TimestampLayout), value})
}

// Flush flushes buffered rows and reports any write error.
func (w *Writer) Flush() error {
	w.w.Flush()
	return w.w.Error()
}

// ParseHeader validates the header record of an extraction file.
func ParseHeader(fields []string) (Header, error) {
	if len(fields) != HeaderFields {
		return Header{}, &HeaderError{Fields: len(fields)}
	}
	return Header{
		Description:  fields[0],
		Unit:         fields[1],
		Commodity:    fields[2],
		SourceSystem: fields[3],
		ReadingType:  fields[4],
	}, nil
}

// ReadHeader opens path and parses only its header.
func ReadHeader(path string) (Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return Header{}, err
	}
	defer f.Close()

	r, err := NewReader(f)
	if err != nil {
		var he *HeaderError
		if errors.As(err, &he) {
			he.Path = path
		}
		return Header{}, err
	}
	return r.Header, nil
}

// Reader parses an extraction file row by row.
type Reader struct {
	Header Header
	r      *csv.Reader
	line   int
}

// NewReader reads and validates the header.
func NewReader(r io.Reader) (*Reader, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	rec, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			err = errors.New("file is empty")
		}
		return nil, &HeaderError{Err: err}
	}
	h, err := ParseHeader(rec)
	if err != nil {
		return nil, err
	}
	return &Reader{Header: h, r: cr, line: 1}, nil
}

// Next returns the next reading, or io.EOF after the last one.
func (r *Reader) Next() (Row, error) {
	rec, err := r.r.Read()
	if err != nil {
		return Row{}, err
	}
	r.line++
	if len(rec) != 2 {
		return Row{}, fmt.Errorf("line %d: expected 2 fields, found %d", r.line, len(rec))
	}

	ts, err := parseTimestamp(strings.TrimSpace(rec[0]))
	if err != nil {
		return Row{}, fmt.Errorf("line %d: %w", r.line, err)
	}

	raw := strings.TrimSpace(rec[1])
	if strings.EqualFold(raw, NullToken) {
		return Row{Timestamp: ts}, nil
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return Row{}, fmt.Errorf("line %d: invalid reading %q: %w", r.line, raw, err)
	}
	return Row{Timestamp: ts, Value: &v}, nil
}

func parseTimestamp(s string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
}

// FileName builds the deterministic name of an extraction file.
func FileName(source string, meterID int64, start, end time.Time) string {
	return fmt.Sprintf("%s_%d_%s_%s.csv", strings.ToUpper(source), meterID, formatBound(start), formatBound(end))
}

func formatBound(t time.Time) string {
	if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0 {
		return t.Format("2006-01-02")
	}
	return t.Format("2006-01-02T150405")
}
