package spatialmath

import (
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"
)

// defaultDistanceEepsilon represents the acceptable discrepancy between two floats
// representing spatial coordinates wherein the coordinates should be considered equivalent.
const defaultDistanceEpsilon = 1e-8

// Pose represents a 6dof pose, position and orientation, of an object or a frame of reference.
type Pose interface {
	Point() r3.Vector
	Orientation() Orientation
}

// NewZeroPose returns a pose at (0,0,0) with same orientation as whatever frame it is placed in.
func NewZeroPose() Pose {
	return newDualQuaternion()
}

// NewPose takes in a position and orientation and returns a Pose.
func NewPose(p r3.Vector, o Orientation) Pose {
	if o == nil {
		return NewPoseFromPoint(p)
	}
	q := newDualQuaternionFromRotation(o)
	q.SetTranslation(p)
	return q
}

// NewPoseFromPoint takes in a cartesian (x,y,z) and stores it as a vector.
// It will have the same orientation as the frame it is in reference to.
func NewPoseFromPoint(point r3.Vector) Pose {
	return newDualQuaternionFromPoint(point)
}

// NewPoseFromOrientation takes in an orientation and returns a Pose.
// It will have the same position as the frame it is in reference to.
func NewPoseFromOrientation(o Orientation) Pose {
	if o == nil {
		return NewZeroPose()
	}
	return newDualQuaternionFromRotation(o)
}

// NewPoseFromMatrix creates a pose from a 4x4 homogeneous transformation matrix.
func NewPoseFromMatrix(m *mat.Dense) (Pose, error) {
	r, c := m.Dims()
	if r != 4 || c != 4 {
		return nil, errors.Errorf("pose matrix must be 4x4, got %dx%d", r, c)
	}
	rm, err := NewRotationMatrix([]float64{
		m.At(0, 0), m.At(0, 1), m.At(0, 2),
		m.At(1, 0), m.At(1, 1), m.At(1, 2),
		m.At(2, 0), m.At(2, 1), m.At(2, 2),
	})
	if err != nil {
		return nil, err
	}
	pt := r3.Vector{X: m.At(0, 3), Y: m.At(1, 3), Z: m.At(2, 3)}
	return NewPose(pt, rm), nil
}

// PoseToMatrix converts a pose to a 4x4 homogeneous transformation matrix.
func PoseToMatrix(p Pose) *mat.Dense {
	rm := p.Orientation().RotationMatrix()
	pt := p.Point()
	return mat.NewDense(4, 4, []float64{
		rm.At(0, 0), rm.At(0, 1), rm.At(0, 2), pt.X,
		rm.At(1, 0), rm.At(1, 1), rm.At(1, 2), pt.Y,
		rm.At(2, 0), rm.At(2, 1), rm.At(2, 2), pt.Z,
		0, 0, 0, 1,
	})
}

// TransformPoint applies a pose's rigid transformation to the given point.
func TransformPoint(p Pose, pt r3.Vector) r3.Vector {
	return newDualQuaternionFromPose(p).transformPoint(pt)
}

// Compose treats Poses as functions A(x) and B(x), and produces a new function C(x) = A(B(x)).
// It converts the poses to dual quaternions and multiplies them together, normalizes the transform
// and returns a new Pose. Composition does not commute in general, i.e. you cannot guarantee ABx == BAx.
func Compose(a, b Pose) Pose {
	aq := newDualQuaternionFromPose(a)
	result := &dualQuaternion{aq.Transformation(newDualQuaternionFromPose(b).Number)}

	// Normalization
	if vecLen := quat.Abs(result.Real); vecLen != 1 {
		result.Real = quat.Scale(1/vecLen, result.Real)
	}
	return result
}

// PoseBetween returns the difference between two poses, that is, the pose which if composed with
// one will give the other. Example: Compose(a, PoseBetween(a, b)) == b.
func PoseBetween(a, b Pose) Pose {
	aq := newDualQuaternionFromPose(a).Invert()
	result := &dualQuaternion{aq.Transformation(newDualQuaternionFromPose(b).Number)}

	// Normalization
	if vecLen := quat.Abs(result.Real); vecLen != 1 {
		result.Real = quat.Scale(1/vecLen, result.Real)
	}
	return result
}

// PoseDelta returns the difference between two poses. Useful for measuring distances, NOT to be
// used for spatial transformations. We use quaternion/angle axis for this because distances are
// well-defined.
func PoseDelta(a, b Pose) Pose {
	return NewPose(
		b.Point().Sub(a.Point()),
		OrientationBetween(a.Orientation(), b.Orientation()),
	)
}

// PoseInverse will return the inverse of a pose. So if a given pose p is the pose of A relative to B,
// PoseInverse(p) will give the pose of B relative to A.
func PoseInverse(p Pose) Pose {
	return newDualQuaternionFromPose(p).Invert()
}

// Interpolate will return a new Pose that is the interpolated pose between p1 and p2, with
// by=0 being p1 and by=1 being p2.
func Interpolate(p1, p2 Pose, by float64) Pose {
	intQ := newDualQuaternion()
	intQ.Real = slerp(p1.Orientation().Quaternion(), p2.Orientation().Quaternion(), by)

	intQ.SetTranslation(r3.Vector{
		X: (p1.Point().X + (p2.Point().X-p1.Point().X)*by),
		Y: (p1.Point().Y + (p2.Point().Y-p1.Point().Y)*by),
		Z: (p1.Point().Z + (p2.Point().Z-p1.Point().Z)*by),
	})
	return intQ
}

// PoseAlmostCoincident checks if two poses approximately are at the same 3D coordinate location.
// This uses a default distance epsilon.
func PoseAlmostCoincident(a, b Pose) bool {
	return PoseAlmostCoincidentEps(a, b, defaultDistanceEpsilon)
}

// PoseAlmostCoincidentEps checks if two poses approximately are at the same 3D coordinate location.
// This uses a passed in epsilon value.
func PoseAlmostCoincidentEps(a, b Pose, epsilon float64) bool {
	return R3VectorAlmostEqual(a.Point(), b.Point(), epsilon)
}

// PoseAlmostEqual checks if two poses are approximately the same, in position and orientation.
func PoseAlmostEqual(a, b Pose) bool {
	return PoseAlmostCoincident(a, b) && OrientationAlmostEqual(a.Orientation(), b.Orientation())
}

// PoseAlmostEqualEps checks if two poses are approximately the same, with the point comparison
// using the passed in epsilon.
func PoseAlmostEqualEps(a, b Pose, epsilon float64) bool {
	return PoseAlmostCoincidentEps(a, b, epsilon) && OrientationAlmostEqual(a.Orientation(), b.Orientation())
}
