package fusion

import (
	"errors"
	"fmt"
	"strings"

	"github.com/banshee-data/imufusion/internal/quaternion"
)

// Kind names a filter variant.
type Kind string

const (
	KindMadgwickOriginal Kind = "madgwick-original"
	KindMadgwickRevised  Kind = "madgwick-revised"
	KindWilson           Kind = "wilson"
	KindQGD              Kind = "qgd"
)

// Kinds lists every variant in the column order of sweep output.
var Kinds = []Kind{KindMadgwickOriginal, KindWilson, KindQGD, KindMadgwickRevised}

// ErrUnknownKind is returned for an unrecognised variant name.
var ErrUnknownKind = errors.New("unknown filter kind")

// ParseKind resolves a variant name. Short aliases "mo", "mr", "w" and the
// case of the name are accepted.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "madgwick-original", "madgwick", "mo":
		return KindMadgwickOriginal, nil
	case "madgwick-revised", "mr":
		return KindMadgwickRevised, nil
	case "wilson", "w":
		return KindWilson, nil
	case "qgd":
		return KindQGD, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// Options carries the settings that only some variants use.
type Options struct {
	// MagReference is the earth magnetic reference for Madgwick-original.
	MagReference quaternion.Quaternion
	// RejectField enables the Madgwick-original magnitude guard.
	RejectField bool
	// FieldMin and FieldMax bound the accepted field magnitude for the
	// guard and for the revised variant's validity gate.
	FieldMin float64
	FieldMax float64
	// LegacyFieldResidual selects the original closed-form residual.
	LegacyFieldResidual bool
	// DownwardAccelerometer marks readings that point along gravity.
	// Only the revised variant expects the opposite sign.
	DownwardAccelerometer bool
}

// DefaultOptions returns Options with the magnetic reference used by the
// sweep driver and a 0..80 field band.
func DefaultOptions() Options {
	return Options{
		MagReference:          quaternion.New(0, 0.391801903, 0, 0.920049601),
		FieldMin:              defaultFieldMin,
		FieldMax:              defaultFieldMax,
		DownwardAccelerometer: true,
	}
}

// New constructs a filter of the given kind.
func New(kind Kind, gain float64, opts Options) (Filter, error) {
	switch kind {
	case KindMadgwickOriginal:
		var mo []MadgwickOption
		if opts.RejectField {
			mo = append(mo, WithFieldRejection(opts.FieldMin, opts.FieldMax))
		}
		if opts.LegacyFieldResidual {
			mo = append(mo, WithLegacyFieldResidual())
		}
		f, err := NewMadgwickOriginal(gain, opts.MagReference, mo...)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s filter: %w", kind, err)
		}
		return f, nil
	case KindMadgwickRevised:
		ro := []RevisedOption{}
		if opts.FieldMax > 0 {
			ro = append(ro, WithFieldBounds(opts.FieldMin, opts.FieldMax))
		}
		if opts.DownwardAccelerometer {
			ro = append(ro, WithDownwardAccelerometer())
		}
		return NewMadgwickRevised(gain, ro...), nil
	case KindWilson:
		return NewWilson(gain), nil
	case KindQGD:
		return NewQGD(gain), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownKind, string(kind))
}
