package spatialmath

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
	"gonum.org/v1/gonum/num/quat"
)

func TestRotationMatrixConstruction(t *testing.T) {
	_, err := NewRotationMatrix([]float64{1, 0, 0})
	test.That(t, err, test.ShouldNotBeNil)

	// 90 degrees about Z in row major order
	rm, err := NewRotationMatrix([]float64{
		0, -1, 0,
		1, 0, 0,
		0, 0, 1,
	})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, rm.At(0, 1), test.ShouldEqual, -1)
	test.That(t, rm.Row(1), test.ShouldResemble, r3.Vector{X: 1, Y: 0, Z: 0})
}

func TestRotationMatrixConversions(t *testing.T) {
	for _, o := range []Orientation{
		&EulerAngles{Yaw: math.Pi / 2},
		&EulerAngles{Roll: math.Pi / 4},
		&R4AA{Theta: math.Pi / 3, RX: 0, RY: 1, RZ: 0},
		&R4AA{Theta: 2 * math.Pi / 3, RX: 1. / math.Sqrt(3), RY: 1. / math.Sqrt(3), RZ: 1. / math.Sqrt(3)},
	} {
		rm := o.RotationMatrix()
		test.That(t, QuaternionAlmostEqual(rm.Quaternion(), o.Quaternion(), 1e-8), test.ShouldBeTrue)
	}
}

func TestRotationMatrixMul(t *testing.T) {
	rm := QuatToRotationMatrix(quat.Number{Real: math.Cos(math.Pi / 4), Kmag: math.Sin(math.Pi / 4)})
	moved := rm.Mul(r3.Vector{X: 1, Y: 0, Z: 0})
	test.That(t, R3VectorAlmostEqual(moved, r3.Vector{X: 0, Y: 1, Z: 0}, 1e-8), test.ShouldBeTrue)

	// rotations preserve vector norms
	v := r3.Vector{X: -3, Y: 7, Z: 2}
	test.That(t, rm.Mul(v).Norm(), test.ShouldAlmostEqual, v.Norm())
}
