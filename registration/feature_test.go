package registration

import (
	"math"
	"testing"

	"go.viam.com/test"
)

func TestNewFeature(t *testing.T) {
	f, err := NewFeature(3, 4)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, f.Num(), test.ShouldEqual, 3)
	test.That(t, f.Dim(), test.ShouldEqual, 4)
	for i := 0; i < 3; i++ {
		for _, v := range f.Vector(i) {
			test.That(t, v, test.ShouldEqual, 0)
		}
	}

	_, err = NewFeature(0, 4)
	test.That(t, err, test.ShouldNotBeNil)
	_, err = NewFeature(3, -1)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestFeatureSetVector(t *testing.T) {
	f, err := NewFeature(2, 3)
	test.That(t, err, test.ShouldBeNil)

	test.That(t, f.SetVector(0, []float32{1, 2, 3}), test.ShouldBeNil)
	test.That(t, f.Vector(0), test.ShouldResemble, []float32{1, 2, 3})
	test.That(t, f.Vector(1), test.ShouldResemble, []float32{0, 0, 0})

	err = f.SetVector(1, []float32{1, 2})
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "dimension")

	err = f.SetVector(1, []float32{1, float32(math.NaN()), 3})
	test.That(t, err, test.ShouldNotBeNil)
	err = f.SetVector(1, []float32{1, float32(math.Inf(1)), 3})
	test.That(t, err, test.ShouldNotBeNil)
}

func TestFeatureFromSlice(t *testing.T) {
	f, err := FeatureFromSlice([][]float32{{1, 0}, {0, 1}, {1, 1}})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, f.Num(), test.ShouldEqual, 3)
	test.That(t, f.Dim(), test.ShouldEqual, 2)
	test.That(t, f.Vector(2), test.ShouldResemble, []float32{1, 1})

	_, err = FeatureFromSlice(nil)
	test.That(t, err, test.ShouldNotBeNil)
	_, err = FeatureFromSlice([][]float32{{1, 0}, {0}})
	test.That(t, err, test.ShouldNotBeNil)
}

func TestFeatureVectorAliases(t *testing.T) {
	f, err := NewFeature(2, 2)
	test.That(t, err, test.ShouldBeNil)
	f.Vector(1)[0] = 5
	test.That(t, f.Vector(1), test.ShouldResemble, []float32{5, 0})
	test.That(t, f.Vector(0), test.ShouldResemble, []float32{0, 0})
}
