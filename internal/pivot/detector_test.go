package pivot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trading-profilev1/internal/model"
	"trading-profilev1/internal/series"
)

// load pushes bars oldest-first so the last value ends up at offset 0.
// Each bar gets high=low=v so the same series serves both directions.
func load(values ...float64) *series.Buffer {
	b := series.New(len(values) + 1)
	for i, v := range values {
		b.PushOrReplace(model.Bar{Open: v, High: v, Low: v, Close: v, Timestamp: int64(i) * 60_000})
	}
	return b
}

func TestDetector_High_Unimodal(t *testing.T) {
	const L = 3
	// 2L+1 bars, strictly rising then falling; the peak sits at offset L.
	b := load(1, 2, 3, 10, 3, 2, 1)
	d := New(b, L, L)

	p, ok := d.High()

	require.True(t, ok)
	assert.Equal(t, model.PivotHigh, p.Kind)
	assert.Equal(t, 10.0, p.Price())
	assert.Equal(t, int64(3*60_000), p.Timestamp())
}

func TestDetector_High_TieRejects(t *testing.T) {
	const L = 3
	cases := []struct {
		name   string
		values []float64
	}{
		{"newer neighbour ties", []float64{1, 2, 3, 10, 10, 2, 1}},
		{"newest ties", []float64{1, 2, 3, 10, 3, 2, 10}},
		{"older neighbour ties", []float64{1, 2, 10, 10, 3, 2, 1}},
		{"oldest ties", []float64{10, 2, 3, 10, 3, 2, 1}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := New(load(tc.values...), L, L)
			_, ok := d.High()
			assert.False(t, ok)
		})
	}
}

func TestDetector_Low_Unimodal(t *testing.T) {
	b := load(9, 8, 2, 8, 9)
	d := New(b, 2, 2)

	p, ok := d.Low()

	require.True(t, ok)
	assert.Equal(t, model.PivotLow, p.Kind)
	assert.Equal(t, 2.0, p.Price())

	_, ok = d.High()
	assert.False(t, ok)
}

func TestDetector_Low_TieRejects(t *testing.T) {
	d := New(load(9, 2, 2, 8, 9), 2, 2)
	_, ok := d.Low()
	assert.False(t, ok)
}

func TestDetector_NotEnoughBars(t *testing.T) {
	d := New(load(1, 2, 10, 2), 2, 2)
	_, ok := d.High()
	assert.False(t, ok)
	_, ok = d.Low()
	assert.False(t, ok)
}

func TestDetector_OnlyEvaluatesFixedOffset(t *testing.T) {
	// Peak at offset 4, not at offset right=2: no pivot this call even
	// though the peak would qualify with a wider scan.
	d := New(load(1, 2, 20, 3, 4, 5, 6), 2, 2)
	_, ok := d.High()
	assert.False(t, ok)
}

func TestDetector_UsesHighAndLowFields(t *testing.T) {
	b := series.New(4)
	b.PushOrReplace(model.Bar{High: 5, Low: 4, Timestamp: 1})
	b.PushOrReplace(model.Bar{High: 9, Low: 1, Timestamp: 2})
	b.PushOrReplace(model.Bar{High: 6, Low: 3, Timestamp: 3})
	d := New(b, 1, 1)

	hi, ok := d.High()
	require.True(t, ok)
	assert.Equal(t, 9.0, hi.Price())

	lo, ok := d.Low()
	require.True(t, ok)
	assert.Equal(t, 1.0, lo.Price())
	assert.Equal(t, hi.Bar, lo.Bar)
}

func TestDetector_Deterministic(t *testing.T) {
	d := New(load(1, 2, 10, 2, 1), 2, 2)
	first, ok1 := d.High()
	second, ok2 := d.High()
	assert.Equal(t, ok1, ok2)
	assert.Equal(t, first, second)
}
