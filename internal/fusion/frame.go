package fusion

import (
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/imufusion/internal/quaternion"
)

// flipX is the 180° rotation about the x axis.
var flipX = quaternion.New(0, 1, 0, 0)

// FlipX expresses v in the frame rotated 180° about x, i.e. the vector part
// of flipX*⊗v⊗flipX, which is (vx, -vy, -vz). It converts readings from
// datasets recorded with z pointing the other way.
func FlipX(v r3.Vec) r3.Vec {
	return flipX.RotateInverse(v)
}
