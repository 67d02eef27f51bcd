package pointcloud

import (
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
)

func TestVoxelDownsample(t *testing.T) {
	cloud := New()
	// two tight clusters far apart
	for _, p := range []r3.Vector{
		{X: 0, Y: 0, Z: 0}, {X: 0.1, Y: 0, Z: 0}, {X: 0, Y: 0.1, Z: 0},
		{X: 10, Y: 10, Z: 10}, {X: 10.1, Y: 10, Z: 10},
	} {
		test.That(t, cloud.Set(p, NewBasicData()), test.ShouldBeNil)
	}

	down, err := VoxelDownsample(cloud, 1.0)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, down.Size(), test.ShouldEqual, 2)

	// cluster means survive
	centers := Positions(down)
	test.That(t, centers[0].X, test.ShouldAlmostEqual, 0.1/3., 1e-9)
	test.That(t, centers[0].Y, test.ShouldAlmostEqual, 0.1/3., 1e-9)
	test.That(t, centers[0].Z, test.ShouldAlmostEqual, 0)
	test.That(t, centers[1].X, test.ShouldAlmostEqual, 10.05, 1e-9)
	test.That(t, centers[1].Y, test.ShouldAlmostEqual, 10, 1e-9)
	test.That(t, centers[1].Z, test.ShouldAlmostEqual, 10, 1e-9)
}

func TestVoxelDownsampleEdgeCases(t *testing.T) {
	empty := New()
	down, err := VoxelDownsample(empty, 1.0)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, down.Size(), test.ShouldEqual, 0)

	_, err = VoxelDownsample(empty, 0)
	test.That(t, err, test.ShouldNotBeNil)

	// a voxel larger than the cloud collapses it to the centroid
	clouds := makeClouds(t)
	down, err = VoxelDownsample(clouds[0], 100)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, down.Size(), test.ShouldEqual, 1)
	test.That(t, CloudContains(down, 0, 0.5, 0.5), test.ShouldBeTrue)
}
