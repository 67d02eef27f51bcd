package spatialmath

import (
	"fmt"
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

// Geometry is an entry point with which to access all types of spatial geometries.
type Geometry interface {
	// Pose returns the pose of the geometry.
	Pose() Pose

	// AlmostEqual returns whether this geometry is equivalent to the given one to numeric tolerance.
	AlmostEqual(Geometry) bool

	// Transform premultiplies the geometry's pose with the given transform, moving the geometry in space.
	Transform(Pose) Geometry

	// SetLabel sets the name of the geometry.
	SetLabel(label string)

	// Label returns the name of the geometry.
	Label() string

	fmt.Stringer
}

// box is a geometry that represents a 3D rectangular prism, it has a pose and half size that fully define it.
type box struct {
	pose     Pose
	halfSize [3]float64
	label    string
}

// NewBox instantiates a new box Geometry.
func NewBox(pose Pose, dims r3.Vector, label string) (Geometry, error) {
	// Negative dimensions not allowed. Zero dimensions are allowed for bounding boxes, etc.
	if dims.X < 0 || dims.Y < 0 || dims.Z < 0 {
		return nil, errors.Errorf("box dimensions can not be negative, got %v", dims)
	}
	halfSize := dims.Mul(0.5)
	return &box{
		pose:     pose,
		halfSize: [3]float64{halfSize.X, halfSize.Y, halfSize.Z},
		label:    label,
	}, nil
}

// String returns a human readable string that represents the box.
func (b *box) String() string {
	pt := b.pose.Point()
	return fmt.Sprintf("Type: Box | Position: X:%.1f, Y:%.1f, Z:%.1f | Dims: X:%.0f, Y:%.0f, Z:%.0f",
		pt.X, pt.Y, pt.Z, 2*b.halfSize[0], 2*b.halfSize[1], 2*b.halfSize[2])
}

// SetLabel sets the label of this box.
func (b *box) SetLabel(label string) {
	b.label = label
}

// Label returns the label of this box.
func (b *box) Label() string {
	return b.label
}

// Pose returns the pose of the box.
func (b *box) Pose() Pose {
	return b.pose
}

// AlmostEqual compares the box with another geometry and checks if they are equivalent.
func (b *box) AlmostEqual(g Geometry) bool {
	other, ok := g.(*box)
	if !ok {
		return false
	}
	for i := 0; i < 3; i++ {
		if math.Abs(b.halfSize[i]-other.halfSize[i]) > 1e-8 {
			return false
		}
	}
	return PoseAlmostEqualEps(b.pose, other.pose, 1e-6)
}

// Transform premultiplies the box pose with a transform, allowing the box to be moved in space.
func (b *box) Transform(toPremultiply Pose) Geometry {
	return &box{
		pose:     Compose(toPremultiply, b.pose),
		halfSize: b.halfSize,
		label:    b.label,
	}
}
