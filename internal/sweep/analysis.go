package sweep

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/imufusion/internal/quaternion"
)

// NotConverged marks a convergence time or accuracy that does not exist
// because the error was still above the threshold at the end of the run.
const NotConverged = -1.0

// AnalysisParams controls convergence detection.
type AnalysisParams struct {
	SamplePeriod float64 // seconds per row
	ThresholdDeg float64 // windowed RMS Euler error counted as converged
	Window       int     // moving window in samples
}

// DefaultAnalysisParams matches a 100 Hz recording with an 11-sample
// window and a 0.125° threshold.
func DefaultAnalysisParams() AnalysisParams {
	return AnalysisParams{SamplePeriod: 0.01, ThresholdDeg: 0.125, Window: 11}
}

// GainResult summarizes one gain. Slices are indexed in Variants order.
type GainResult struct {
	Gain        float64
	Convergence [][3]float64 // roll, pitch, yaw convergence time in seconds
	Accuracy    []float64    // mean geodesic error in degrees after convergence
	AccuracyStd []float64
}

// Converged reports whether every angle of variant v converged.
func (r GainResult) Converged(v int) bool {
	for _, c := range r.Convergence[v] {
		if c == NotConverged {
			return false
		}
	}
	return true
}

// ConvergenceTime is the slowest of the three angles of variant v, or
// NotConverged.
func (r GainResult) ConvergenceTime(v int) float64 {
	if !r.Converged(v) {
		return NotConverged
	}
	c := r.Convergence[v]
	return math.Max(c[0], math.Max(c[1], c[2]))
}

// Analyze measures convergence and accuracy of every variant in t.
func Analyze(t *Trace, p AnalysisParams) GainResult {
	res := GainResult{
		Gain:        t.Gain,
		Convergence: make([][3]float64, len(t.Estimates)),
		Accuracy:    make([]float64, len(t.Estimates)),
		AccuracyStd: make([]float64, len(t.Estimates)),
	}
	n := t.Len()
	truthEuler := make([][3]float64, n)
	for i, q := range t.Truth {
		truthEuler[i] = conjEuler(q)
	}

	sq := make([][3][]float64, len(t.Estimates))
	for v, est := range t.Estimates {
		for a := 0; a < 3; a++ {
			sq[v][a] = make([]float64, n)
		}
		for i, q := range est {
			e := conjEuler(q)
			for a := 0; a < 3; a++ {
				d := wrapDegrees(e[a] - truthEuler[i][a])
				sq[v][a][i] = d * d
			}
		}
		for a := 0; a < 3; a++ {
			rms := MovingRMS(sq[v][a], p.Window)
			res.Convergence[v][a] = ConvergenceTime(rms, p.ThresholdDeg, p.SamplePeriod)
		}

		res.Accuracy[v], res.AccuracyStd[v] = NotConverged, NotConverged
		if !res.Converged(v) {
			continue
		}
		start := int(math.Round(res.ConvergenceTime(v) / p.SamplePeriod))
		if start >= n {
			continue
		}
		errs := make([]float64, 0, n-start)
		for i := start; i < n; i++ {
			errs = append(errs, quaternion.AngleBetween(t.Truth[i], est[i]))
		}
		floats.Scale(180/math.Pi, errs)
		res.Accuracy[v], res.AccuracyStd[v] = stat.MeanStdDev(errs, nil)
		if len(errs) == 1 {
			res.AccuracyStd[v] = 0
		}
	}
	return res
}

func conjEuler(q quaternion.Quaternion) [3]float64 {
	r, p, y := q.Conj().EulerDegrees()
	return [3]float64{r, p, y}
}

// wrapDegrees maps d into [-180, 180).
func wrapDegrees(d float64) float64 {
	d = math.Mod(d+180, 360)
	if d < 0 {
		d += 360
	}
	return d - 180
}

// MovingRMS returns the square root of the trailing mean of squared over
// window samples. Samples before the start are taken equal to the first.
func MovingRMS(squared []float64, window int) []float64 {
	out := make([]float64, len(squared))
	if len(squared) == 0 {
		return out
	}
	if window < 1 {
		window = 1
	}
	buf := make([]float64, window)
	for i := range buf {
		buf[i] = squared[0]
	}
	sum := floats.Sum(buf)
	for i, v := range squared {
		slot := i % window
		sum += v - buf[slot]
		buf[slot] = v
		if sum < 0 {
			sum = 0
		}
		out[i] = math.Sqrt(sum / float64(window))
	}
	return out
}

// ConvergenceTime returns the time of the last sample whose rms exceeds
// threshold: zero when none does, NotConverged when the final sample
// still does. NaN counts as above the threshold.
func ConvergenceTime(rms []float64, threshold, dt float64) float64 {
	for i := len(rms) - 1; i >= 0; i-- {
		if rms[i] > threshold || math.IsNaN(rms[i]) {
			if i == len(rms)-1 {
				return NotConverged
			}
			return float64(i) * dt
		}
	}
	return 0
}

// Aggregate averages the results of several repetitions gain by gain.
// Repetitions that did not converge are left out of each average; a value
// stays NotConverged only when no repetition converged.
func Aggregate(reps [][]GainResult) []GainResult {
	if len(reps) == 0 {
		return nil
	}
	out := make([]GainResult, len(reps[0]))
	for g := range out {
		first := reps[0][g]
		nv := len(first.Convergence)
		agg := GainResult{
			Gain:        first.Gain,
			Convergence: make([][3]float64, nv),
			Accuracy:    make([]float64, nv),
			AccuracyStd: make([]float64, nv),
		}
		for v := 0; v < nv; v++ {
			for a := 0; a < 3; a++ {
				vals := make([]float64, 0, len(reps))
				for _, rep := range reps {
					vals = append(vals, rep[g].Convergence[v][a])
				}
				agg.Convergence[v][a] = meanConverged(vals)
			}
			acc := make([]float64, 0, len(reps))
			std := make([]float64, 0, len(reps))
			for _, rep := range reps {
				acc = append(acc, rep[g].Accuracy[v])
				std = append(std, rep[g].AccuracyStd[v])
			}
			agg.Accuracy[v] = meanConverged(acc)
			agg.AccuracyStd[v] = meanConverged(std)
		}
		out[g] = agg
	}
	return out
}

func meanConverged(vals []float64) float64 {
	kept := vals[:0:0]
	for _, v := range vals {
		if v != NotConverged {
			kept = append(kept, v)
		}
	}
	if len(kept) == 0 {
		return NotConverged
	}
	return stat.Mean(kept, nil)
}
