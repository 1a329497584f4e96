package main

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/imufusion/internal/sweep"
)

// parseVec parses "x,y,z".
func parseVec(s string) (r3.Vec, error) {
	vals, err := sweep.ParseCSVFloat64s(s)
	if err != nil {
		return r3.Vec{}, err
	}
	if len(vals) != 3 {
		return r3.Vec{}, fmt.Errorf("expected 3 components, got %d", len(vals))
	}
	return r3.Vec{X: vals[0], Y: vals[1], Z: vals[2]}, nil
}
