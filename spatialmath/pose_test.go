package spatialmath

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
	"gonum.org/v1/gonum/mat"
)

func TestBasicPoseConstruction(t *testing.T) {
	p := NewZeroPose()
	test.That(t, p.Point(), test.ShouldResemble, r3.Vector{})
	test.That(t, OrientationAlmostEqual(p.Orientation(), NewZeroOrientation()), test.ShouldBeTrue)

	pt := r3.Vector{X: 1, Y: 2, Z: 3}
	p = NewPoseFromPoint(pt)
	test.That(t, R3VectorAlmostEqual(p.Point(), pt, 1e-8), test.ShouldBeTrue)
	test.That(t, OrientationAlmostEqual(p.Orientation(), NewZeroOrientation()), test.ShouldBeTrue)

	o := &EulerAngles{Roll: math.Pi / 4}
	p = NewPose(pt, o)
	test.That(t, R3VectorAlmostEqual(p.Point(), pt, 1e-8), test.ShouldBeTrue)
	test.That(t, OrientationAlmostEqual(p.Orientation(), o), test.ShouldBeTrue)

	p = NewPoseFromOrientation(o)
	test.That(t, p.Point(), test.ShouldResemble, r3.Vector{})
	test.That(t, OrientationAlmostEqual(p.Orientation(), o), test.ShouldBeTrue)
}

func TestComposeAndInverse(t *testing.T) {
	p := NewPose(r3.Vector{X: 5, Y: -2, Z: 13}, &R4AA{Theta: math.Pi / 3, RX: 0, RY: 1, RZ: 0})

	identity := Compose(p, PoseInverse(p))
	test.That(t, PoseAlmostEqual(identity, NewZeroPose()), test.ShouldBeTrue)

	a := NewPose(r3.Vector{X: 1, Y: 0, Z: 0}, &EulerAngles{Yaw: math.Pi / 2})
	b := NewPose(r3.Vector{X: 0, Y: 4, Z: 0}, &EulerAngles{Roll: math.Pi / 4})
	between := PoseBetween(a, b)
	test.That(t, PoseAlmostEqualEps(Compose(a, between), b, 1e-8), test.ShouldBeTrue)

	// composing with zero pose should change nothing
	test.That(t, PoseAlmostEqual(Compose(a, NewZeroPose()), a), test.ShouldBeTrue)
	test.That(t, PoseAlmostEqual(Compose(NewZeroPose(), a), a), test.ShouldBeTrue)
}

func TestTransformPoint(t *testing.T) {
	// pure rotation of 90 degrees about Z
	p := NewPoseFromOrientation(&EulerAngles{Yaw: math.Pi / 2})
	moved := TransformPoint(p, r3.Vector{X: 1, Y: 0, Z: 0})
	test.That(t, R3VectorAlmostEqual(moved, r3.Vector{X: 0, Y: 1, Z: 0}, 1e-8), test.ShouldBeTrue)

	// rotation preserves norm
	test.That(t, moved.Norm(), test.ShouldAlmostEqual, 1.)

	// rotation plus translation
	p = NewPose(r3.Vector{X: 1, Y: 2, Z: 3}, &EulerAngles{Yaw: math.Pi / 2})
	moved = TransformPoint(p, r3.Vector{X: 1, Y: 0, Z: 0})
	test.That(t, R3VectorAlmostEqual(moved, r3.Vector{X: 1, Y: 3, Z: 3}, 1e-8), test.ShouldBeTrue)

	// the rotation matrix fast path should agree with the dual quaternion path
	rm := p.Orientation().RotationMatrix()
	fast := rm.Mul(r3.Vector{X: 1, Y: 0, Z: 0}).Add(p.Point())
	test.That(t, R3VectorAlmostEqual(moved, fast, 1e-8), test.ShouldBeTrue)
}

func TestPoseInterpolation(t *testing.T) {
	p1 := NewPoseFromPoint(r3.Vector{X: 1, Y: 1, Z: 1})
	p2 := NewPoseFromPoint(r3.Vector{X: 3, Y: 3, Z: 3})
	intP := Interpolate(p1, p2, 0.5)
	test.That(t, R3VectorAlmostEqual(intP.Point(), r3.Vector{X: 2, Y: 2, Z: 2}, 1e-8), test.ShouldBeTrue)

	p1 = NewPoseFromPoint(r3.Vector{X: 0, Y: 0, Z: 0})
	p2 = NewPoseFromPoint(r3.Vector{X: 10, Y: 100, Z: 1000})
	intP = Interpolate(p1, p2, 0.33)
	test.That(t, R3VectorAlmostEqual(intP.Point(), r3.Vector{X: 3.3, Y: 33, Z: 330}, 1e-8), test.ShouldBeTrue)

	p1 = NewPose(r3.Vector{X: 100, Y: 100, Z: 200}, &R4AA{Theta: math.Pi / 2, RX: 0, RY: 0, RZ: 1})
	p2 = NewPose(r3.Vector{X: 100, Y: 200, Z: 200}, &R4AA{Theta: 0, RX: 0, RY: 0, RZ: 1})
	intP = Interpolate(p1, p2, 0.5)
	test.That(t, R3VectorAlmostEqual(intP.Point(), r3.Vector{X: 100, Y: 150, Z: 200}, 1e-8), test.ShouldBeTrue)
	test.That(t, intP.Orientation().AxisAngles().Theta, test.ShouldAlmostEqual, math.Pi/4)
}

func TestPoseDelta(t *testing.T) {
	p1 := NewPose(r3.Vector{X: 1, Y: 2, Z: 3}, &EulerAngles{Roll: math.Pi / 4})
	p2 := NewPose(r3.Vector{X: 2, Y: 4, Z: 6}, &EulerAngles{Roll: math.Pi / 4})
	delta := PoseDelta(p1, p2)
	test.That(t, R3VectorAlmostEqual(delta.Point(), r3.Vector{X: 1, Y: 2, Z: 3}, 1e-8), test.ShouldBeTrue)
	test.That(t, OrientationAlmostEqual(delta.Orientation(), NewZeroOrientation()), test.ShouldBeTrue)
}

func TestPoseMatrix(t *testing.T) {
	p := NewPose(r3.Vector{X: 1, Y: 2, Z: 3}, &EulerAngles{Yaw: math.Pi / 2})
	m := PoseToMatrix(p)

	r, c := m.Dims()
	test.That(t, r, test.ShouldEqual, 4)
	test.That(t, c, test.ShouldEqual, 4)
	test.That(t, m.At(0, 3), test.ShouldAlmostEqual, 1)
	test.That(t, m.At(1, 3), test.ShouldAlmostEqual, 2)
	test.That(t, m.At(2, 3), test.ShouldAlmostEqual, 3)
	test.That(t, m.At(3, 3), test.ShouldAlmostEqual, 1)
	test.That(t, m.At(0, 0), test.ShouldAlmostEqual, 0)
	test.That(t, m.At(1, 0), test.ShouldAlmostEqual, 1)

	p2, err := NewPoseFromMatrix(m)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, PoseAlmostEqualEps(p, p2, 1e-8), test.ShouldBeTrue)

	_, err = NewPoseFromMatrix(mat.NewDense(3, 3, nil))
	test.That(t, err, test.ShouldNotBeNil)
}
