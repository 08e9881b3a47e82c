// Package classify infers the physical semantics of a meter (unit, commodity
// and reading type) from its metadata and a bounded sample of its readings.
// It performs no I/O beyond pulling values from the sample it is handed.
package classify

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// SampleSize bounds how many readings the monotonicity test looks at.
const SampleSize = 100

// ReadingType tells whether a meter reports a running total or a rate.
type ReadingType string

const (
	Totalization ReadingType = "Totalization"
	Interval     ReadingType = "Interval"
)

// Commodity names as stored in the warehouse commodity dimension.
const (
	Electricity = "Electricity"
	Gas         = "Gas"
	Water       = "Water"
)

// Kind identifies why a meter could not be classified.
type Kind int

const (
	EmptySample Kind = iota + 1
	UnresolvedCommodity
	UnresolvedReadingType
)

var (
	ErrEmptySample           = errors.New("no readings in sample window")
	ErrUnresolvedCommodity   = errors.New("commodity cannot be resolved")
	ErrUnresolvedReadingType = errors.New("reading type cannot be determined")
)

func (k Kind) sentinel() error {
	switch k {
	case EmptySample:
		return ErrEmptySample
	case UnresolvedCommodity:
		return ErrUnresolvedCommodity
	default:
		return ErrUnresolvedReadingType
	}
}

func (k Kind) String() string { return k.sentinel().Error() }

// Error is returned for every classification failure. It is terminal for the
// meter: callers skip it rather than retry.
type Error struct {
	Kind    Kind
	MeterID int64
	Detail  string
	Err     error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("meter %d: %s", e.MeterID, e.Kind)
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Is lets errors.Is match the Kind sentinels.
func (e *Error) Is(target error) bool { return target == e.Kind.sentinel() }

func (e *Error) Unwrap() error { return e.Err }

// Result is a complete classification. There are no partial results.
type Result struct {
	Description string
	Unit        string
	Commodity   string
	ReadingType ReadingType
}

// Reading is one sampled observation. Value is nil for a NULL reading.
type Reading struct {
	Timestamp time.Time
	Value     *decimal.Decimal
}

// Sample yields readings in ascending timestamp order. Next reports false
// when the sample is exhausted or failed; Err tells the two apart.
type Sample interface {
	Next() bool
	Reading() Reading
	Err() error
}

// Classify resolves unit, commodity and reading type for one meter.
func Classify(meterID int64, hint, description string, sample Sample, policy UnitPolicy) (Result, error) {
	unit, commodity, err := policy.Resolve(hint, description)
	if err != nil {
		return Result{}, withMeter(err, meterID)
	}

	rt, err := InferReadingType(sample)
	if err != nil {
		return Result{}, withMeter(err, meterID)
	}

	return Result{
		Description: description,
		Unit:        unit,
		Commodity:   commodity,
		ReadingType: rt,
	}, nil
}

func withMeter(err error, meterID int64) error {
	var ce *Error
	if errors.As(err, &ce) {
		ce.MeterID = meterID
	}
	return err
}

// InferReadingType runs the monotonicity test over at most SampleSize
// readings. A single decrease between consecutive non-NULL values proves an
// interval meter and stops the walk; otherwise the meter is a totalizer.
func InferReadingType(sample Sample) (ReadingType, error) {
	var (
		prev     decimal.Decimal
		havePrev bool
		seen     int
	)

	for seen < SampleSize && sample.Next() {
		seen++
		v := sample.Reading().Value
		if v == nil {
			continue
		}
		if havePrev && v.Sub(prev).IsNegative() {
			return Interval, nil
		}
		prev, havePrev = *v, true
	}

	if err := sample.Err(); err != nil {
		return "", &Error{Kind: UnresolvedReadingType, Err: err}
	}
	if seen == 0 {
		return "", &Error{Kind: EmptySample}
	}
	if !havePrev {
		return "", &Error{Kind: UnresolvedReadingType, Detail: "all sampled readings are NULL"}
	}
	return Totalization, nil
}

// SliceSample adapts an in-memory slice to Sample.
type SliceSample struct {
	readings []Reading
	pos      int
}

func NewSliceSample(readings []Reading) *SliceSample {
	return &SliceSample{readings: readings, pos: -1}
}

func (s *SliceSample) Next() bool {
	if s.pos+1 >= len(s.readings) {
		return false
	}
	s.pos++
	return true
}

func (s *SliceSample) Reading() Reading { return s.readings[s.pos] }

func (s *SliceSample) Err() error { return nil }
