package live

import (
	"math"

	"github.com/banshee-data/imufusion/internal/units"
)

// MovingAverage is a fixed-window running mean.
type MovingAverage struct {
	samples []float64
	next    int
	count   int
	total   float64
}

// NewMovingAverage returns an average over the last n samples. n < 1 is
// treated as 1.
func NewMovingAverage(n int) *MovingAverage {
	if n < 1 {
		n = 1
	}
	return &MovingAverage{samples: make([]float64, n)}
}

// Add records v and returns the updated mean.
func (m *MovingAverage) Add(v float64) float64 {
	if m.count < len(m.samples) {
		m.count++
	} else {
		m.total -= m.samples[m.next]
	}
	m.samples[m.next] = v
	m.total += v
	m.next = (m.next + 1) % len(m.samples)
	return m.Mean()
}

// Mean returns the mean of the recorded samples, or 0 if there are none.
func (m *MovingAverage) Mean() float64 {
	if m.count == 0 {
		return 0
	}
	return m.total / float64(m.count)
}

// AngleAverage is a moving circular mean of angles in degrees. Samples on
// either side of ±180° average to a value near ±180°, not 0.
type AngleAverage struct {
	sin, cos *MovingAverage
}

// NewAngleAverage returns a circular average over the last n angles.
func NewAngleAverage(n int) *AngleAverage {
	return &AngleAverage{sin: NewMovingAverage(n), cos: NewMovingAverage(n)}
}

// Add records deg and returns the updated mean in (-180, 180].
func (a *AngleAverage) Add(deg float64) float64 {
	r := units.ToRadians(deg, units.Deg)
	s := a.sin.Add(math.Sin(r))
	c := a.cos.Add(math.Cos(r))
	return units.FromRadians(math.Atan2(s, c), units.Deg)
}
