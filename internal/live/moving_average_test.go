package live

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMovingAverage(t *testing.T) {
	m := NewMovingAverage(3)
	assert.Zero(t, m.Mean())

	tests := []struct {
		add  float64
		want float64
	}{
		{3, 3},
		{6, 4.5},
		{9, 6},
		{12, 9},
		{0, 7},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, m.Add(tt.add), 1e-12)
	}
}

func TestMovingAverage_MinimumWindow(t *testing.T) {
	m := NewMovingAverage(0)
	m.Add(5)
	assert.Equal(t, 7.0, m.Add(7))
}

func TestAngleAverage(t *testing.T) {
	tests := []struct {
		name string
		in   []float64
		want float64
	}{
		{"single", []float64{30}, 30},
		{"linear range", []float64{10, 20, 30}, 20},
		{"across +-180", []float64{170, -170}, 180},
		{"across 0", []float64{-10, 20}, 5},
		{"window drops oldest", []float64{90, 170, -170, -160}, -173.33},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewAngleAverage(3)
			var got float64
			for _, v := range tt.in {
				got = a.Add(v)
			}
			d := math.Mod(got-tt.want+540, 360) - 180
			assert.InDelta(t, 0, d, 0.1, "got %v", got)
		})
	}
}
