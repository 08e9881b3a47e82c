package classify

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingSample records how many readings were pulled.
type countingSample struct {
	*SliceSample
	pulled int
	err    error
}

func (c *countingSample) Next() bool {
	if !c.SliceSample.Next() {
		return false
	}
	c.pulled++
	return true
}

func (c *countingSample) Err() error { return c.err }

func readings(values ...float64) []Reading {
	start := time.Date(2014, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]Reading, len(values))
	for i, v := range values {
		d := decimal.NewFromFloat(v)
		out[i] = Reading{Timestamp: start.Add(time.Duration(i) * 15 * time.Minute), Value: &d}
	}
	return out
}

func sampleOf(values ...float64) *countingSample {
	return &countingSample{SliceSample: NewSliceSample(readings(values...))}
}

func TestInferReadingType(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		want   ReadingType
	}{
		{"single reading", []float64{5}, Totalization},
		{"strictly increasing", []float64{1, 2, 3, 4, 5}, Totalization},
		{"flat", []float64{7, 7, 7, 7}, Totalization},
		{"non-decreasing with plateaus", []float64{1, 1, 2, 2, 2, 9}, Totalization},
		{"one regression", []float64{10, 12, 9, 15}, Interval},
		{"regression at the end", []float64{1, 2, 3, 4, 3.99}, Interval},
		{"fluctuating", []float64{3, 1, 4, 1, 5, 9, 2, 6}, Interval},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := InferReadingType(sampleOf(tt.values...))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestInferReadingTypeStopsAtFirstDecrease(t *testing.T) {
	s := sampleOf(10, 12, 9, 15, 1, 0)

	got, err := InferReadingType(s)
	require.NoError(t, err)
	assert.Equal(t, Interval, got)
	assert.Equal(t, 3, s.pulled, "walk must stop at the first decreasing pair")
}

func TestInferReadingTypeScansWholeSampleForTotalizer(t *testing.T) {
	values := make([]float64, 40)
	for i := range values {
		values[i] = float64(i)
	}
	s := sampleOf(values...)

	got, err := InferReadingType(s)
	require.NoError(t, err)
	assert.Equal(t, Totalization, got)
	assert.Equal(t, 40, s.pulled)
}

func TestInferReadingTypeIsBoundedToSampleSize(t *testing.T) {
	values := make([]float64, SampleSize+20)
	for i := range values {
		values[i] = float64(i)
	}
	// A decrease beyond the sampled window is not seen.
	values[SampleSize+5] = -1
	s := sampleOf(values...)

	got, err := InferReadingType(s)
	require.NoError(t, err)
	assert.Equal(t, Totalization, got)
	assert.Equal(t, SampleSize, s.pulled)
}

func TestInferReadingTypeEmptySample(t *testing.T) {
	_, err := InferReadingType(sampleOf())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrEmptySample))

	var ce *Error
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, EmptySample, ce.Kind)
}

func TestInferReadingTypeNullValues(t *testing.T) {
	rs := readings(1, 5, 3)
	rs = append(rs[:1], append([]Reading{{Timestamp: rs[0].Timestamp.Add(time.Minute)}}, rs[1:]...)...)

	got, err := InferReadingType(NewSliceSample(rs))
	require.NoError(t, err)
	assert.Equal(t, Interval, got)

	_, err = InferReadingType(NewSliceSample([]Reading{{}, {}}))
	assert.True(t, errors.Is(err, ErrUnresolvedReadingType))
}

func TestInferReadingTypeSampleError(t *testing.T) {
	s := sampleOf(1, 2)
	s.err = errors.New("connection reset")

	_, err := InferReadingType(s)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnresolvedReadingType))
	assert.Contains(t, err.Error(), "connection reset")
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name        string
		hint        string
		description string
		policy      UnitPolicy
		values      []float64
		want        Result
	}{
		{
			name:        "energy quantity totalizer",
			hint:        "Real Energy Into the Load",
			description: "Building 90 main",
			policy:      NameBased{},
			values:      []float64{100, 101, 103, 110},
			want:        Result{"Building 90 main", "kWh", Electricity, Totalization},
		},
		{
			name:        "energy quantity interval",
			hint:        "Real Energy Into the Load",
			description: "Building 90 main",
			policy:      NameBased{},
			values:      []float64{10, 12, 9, 15},
			want:        Result{"Building 90 main", "kWh", Electricity, Interval},
		},
		{
			name:        "btu meter with unknown unit",
			hint:        "unknown",
			description: "B74 BTU meter",
			policy:      HintBased{},
			values:      []float64{1, 2},
			want:        Result{"B74 BTU meter", "unknown", Gas, Totalization},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Classify(42, tt.hint, tt.description, sampleOf(tt.values...), tt.policy)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClassifyFailuresCarryMeterID(t *testing.T) {
	_, err := Classify(7, "voltage a-b", "Feeder", sampleOf(1, 2), NameBased{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnresolvedCommodity))
	assert.Contains(t, err.Error(), "meter 7")

	_, err = Classify(8, "kWh", "Feeder", sampleOf(), HintBased{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrEmptySample))
	assert.Contains(t, err.Error(), "meter 8")
}

func TestClassifyDoesNotReadSampleWhenCommodityUnresolved(t *testing.T) {
	s := sampleOf(1, 2, 3)
	_, err := Classify(9, "therms", "Boiler", s, HintBased{})
	require.Error(t, err)
	assert.Zero(t, s.pulled)
}
