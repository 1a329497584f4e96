// Package sweep runs every fusion filter over a recording for a grid of
// gains, writes the estimated trajectories as flat CSV, and measures how
// fast and how accurately each variant converges.
package sweep

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

const maxGains = 10000

// LogGrid returns the 1..9 multiples of every decade from min while the
// decade does not exceed max: LogGrid(0.01, 1000) yields 0.01, 0.02, ...,
// 0.09, 0.1, ..., 9000 (54 values).
func LogGrid(min, max float64) []float64 {
	if min <= 0 || max < min {
		return nil
	}
	var out []float64
	// Decades are counted with an integer exponent so 0.01*10*10 does not
	// drift past max.
	for k := 0; ; k++ {
		base := min * math.Pow(10, float64(k))
		if base > max*(1+1e-12) || len(out) >= maxGains {
			break
		}
		for i := 1; i < 10; i++ {
			out = append(out, roundGain(base*float64(i)))
		}
	}
	return out
}

// roundGain trims floating noise from products such as 0.07*100.
func roundGain(v float64) float64 {
	r, err := strconv.ParseFloat(strconv.FormatFloat(v, 'g', 12, 64), 64)
	if err != nil {
		return v
	}
	return r
}

// RangeSpec defines a linear gain range.
type RangeSpec struct {
	Min  float64
	Max  float64
	Step float64
}

// ParseRangeSpec parses "min:max:step".
func ParseRangeSpec(s string) (RangeSpec, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return RangeSpec{}, fmt.Errorf("invalid range format %q: expected min:max:step", s)
	}
	var vals [3]float64
	for i, name := range []string{"min", "max", "step"} {
		v, err := strconv.ParseFloat(strings.TrimSpace(parts[i]), 64)
		if err != nil {
			return RangeSpec{}, fmt.Errorf("invalid %s value %q: %w", name, parts[i], err)
		}
		vals[i] = v
	}
	if vals[2] <= 0 {
		return RangeSpec{}, fmt.Errorf("step must be positive, got %f", vals[2])
	}
	return RangeSpec{Min: vals[0], Max: vals[1], Step: vals[2]}, nil
}

// GenerateRange returns min, min+step, ... up to max inclusive. Oversized
// or inverted ranges yield nil.
func GenerateRange(spec RangeSpec) []float64 {
	if spec.Step <= 0 || spec.Min > spec.Max {
		return nil
	}
	count := int((spec.Max-spec.Min)/spec.Step) + 1
	if count > maxGains || count < 0 {
		return nil
	}
	out := make([]float64, 0, count)
	for i := 0; i < count+1; i++ {
		v := roundGain(spec.Min + float64(i)*spec.Step)
		if v > spec.Max+spec.Step/1000 {
			break
		}
		out = append(out, v)
	}
	return out
}

// ParseCSVFloat64s parses a comma-separated list of floats. Empty input
// yields nil.
func ParseCSVFloat64s(s string) ([]float64, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid float '%s': %w", p, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// ParseGains accepts "a,b,c", "min:max" (decade grid) or "min:max:step"
// (linear range).
func ParseGains(s string) ([]float64, error) {
	s = strings.TrimSpace(s)
	switch strings.Count(s, ":") {
	case 0:
		return ParseCSVFloat64s(s)
	case 1:
		parts := strings.Split(s, ":")
		lo, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid min value %q: %w", parts[0], err)
		}
		hi, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid max value %q: %w", parts[1], err)
		}
		g := LogGrid(lo, hi)
		if len(g) == 0 {
			return nil, fmt.Errorf("empty decade grid %q", s)
		}
		return g, nil
	default:
		spec, err := ParseRangeSpec(s)
		if err != nil {
			return nil, err
		}
		return GenerateRange(spec), nil
	}
}
