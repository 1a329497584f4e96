package sweep

import (
	"fmt"

	"github.com/banshee-data/imufusion/internal/fusion"
	"github.com/banshee-data/imufusion/internal/quaternion"
)

// Variants is the column order of every per-gain output file.
var Variants = fusion.Kinds

// Trace is the trajectory of one gain: the reference orientation and each
// variant's estimate, sample by sample.
type Trace struct {
	Gain      float64
	Truth     []quaternion.Quaternion
	Estimates [][]quaternion.Quaternion // [variant][sample], in Variants order
}

// NewTrace allocates a trace for n samples.
func NewTrace(gain float64, n int) *Trace {
	t := &Trace{
		Gain:      gain,
		Truth:     make([]quaternion.Quaternion, 0, n),
		Estimates: make([][]quaternion.Quaternion, len(Variants)),
	}
	for i := range t.Estimates {
		t.Estimates[i] = make([]quaternion.Quaternion, 0, n)
	}
	return t
}

// Append adds one sample. est must hold one quaternion per variant.
func (t *Trace) Append(truth quaternion.Quaternion, est []quaternion.Quaternion) {
	t.Truth = append(t.Truth, truth)
	for v := range t.Estimates {
		t.Estimates[v] = append(t.Estimates[v], est[v])
	}
}

// Len returns the number of samples.
func (t *Trace) Len() int { return len(t.Truth) }

// QuatRow returns row i as truth(4), one quaternion per variant(4 each),
// gain.
func (t *Trace) QuatRow(i int) []float64 {
	row := make([]float64, 0, 4*(1+len(Variants))+1)
	row = append(row, t.Truth[i].Slice()...)
	for v := range t.Estimates {
		row = append(row, t.Estimates[v][i].Slice()...)
	}
	return append(row, t.Gain)
}

// EulerRow returns row i as roll, pitch, yaw in degrees of the conjugated
// truth and of each conjugated estimate, then gain.
func (t *Trace) EulerRow(i int) []float64 {
	row := make([]float64, 0, 3*(1+len(Variants))+1)
	row = appendEuler(row, t.Truth[i])
	for v := range t.Estimates {
		row = appendEuler(row, t.Estimates[v][i])
	}
	return append(row, t.Gain)
}

func appendEuler(row []float64, q quaternion.Quaternion) []float64 {
	r, p, y := q.Conj().EulerDegrees()
	return append(row, r, p, y)
}

// TraceFromRows rebuilds a trace from quaternion CSV rows.
func TraceFromRows(rows [][]float64) (*Trace, error) {
	width := 4*(1+len(Variants)) + 1
	if len(rows) == 0 {
		return nil, fmt.Errorf("no rows")
	}
	if len(rows[0]) != width {
		return nil, fmt.Errorf("row 0 has %d columns, want %d", len(rows[0]), width)
	}
	t := NewTrace(rows[0][width-1], len(rows))
	est := make([]quaternion.Quaternion, len(Variants))
	for i, r := range rows {
		if len(r) != width {
			return nil, fmt.Errorf("row %d has %d columns, want %d", i, len(r), width)
		}
		for v := range est {
			o := 4 * (v + 1)
			est[v] = quaternion.New(r[o], r[o+1], r[o+2], r[o+3])
		}
		t.Append(quaternion.New(r[0], r[1], r[2], r[3]), est)
	}
	return t, nil
}
