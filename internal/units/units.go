// Package units provides shared constants and conversions for angle units
package units

import (
	"fmt"
	"math"
)

// Unit constants
const (
	Deg = "deg"
	Rad = "rad"
)

// ValidUnits contains all valid unit values
var ValidUnits = []string{Deg, Rad}

// IsValid checks if the given unit is in the list of valid units
func IsValid(unit string) bool {
	for _, validUnit := range ValidUnits {
		if unit == validUnit {
			return true
		}
	}
	return false
}

// GetValidUnitsString returns a comma-separated string of valid units for error messages
func GetValidUnitsString() string {
	return "deg, rad"
}

// Validate returns an error naming the accepted units when unit is unknown.
func Validate(unit string) error {
	if !IsValid(unit) {
		return fmt.Errorf("invalid angle unit %q: expected one of %s", unit, GetValidUnitsString())
	}
	return nil
}

// FromRadians converts an angle or rate in radians to the target units.
// Unknown units leave the value in radians.
func FromRadians(v float64, targetUnits string) float64 {
	if targetUnits == Deg {
		return v * 180 / math.Pi
	}
	return v
}

// ToRadians converts an angle or rate in the given units to radians.
func ToRadians(v float64, units string) float64 {
	if units == Deg {
		return v * math.Pi / 180
	}
	return v
}
