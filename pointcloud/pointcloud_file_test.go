package pointcloud

import (
	"bytes"
	"image/color"
	"strings"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
)

func newPCDCloud(t *testing.T, colored bool) PointCloud {
	t.Helper()
	cloud := New()
	var d Data
	if colored {
		d = NewColoredData(color.NRGBA{255, 1, 2, 255})
	}
	test.That(t, cloud.Set(r3.Vector{X: -1000, Y: 0, Z: 2000}, d), test.ShouldBeNil)
	test.That(t, cloud.Set(r3.Vector{X: 3000, Y: 4000, Z: -5000}, d), test.ShouldBeNil)
	return cloud
}

func testPCDRoundTrip(t *testing.T, pcdType PCDType, colored bool) {
	t.Helper()
	cloud := newPCDCloud(t, colored)

	var buf bytes.Buffer
	test.That(t, ToPCD(cloud, &buf, pcdType), test.ShouldBeNil)

	got, err := ReadPCD(&buf)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, got.Size(), test.ShouldEqual, cloud.Size())
	test.That(t, got.MetaData().HasColor, test.ShouldEqual, colored)
	test.That(t, CloudContains(got, -1000, 0, 2000), test.ShouldBeTrue)
	test.That(t, CloudContains(got, 3000, 4000, -5000), test.ShouldBeTrue)

	if colored {
		d, ok := got.At(-1000, 0, 2000)
		test.That(t, ok, test.ShouldBeTrue)
		r, g, b := d.RGB255()
		test.That(t, r, test.ShouldEqual, 255)
		test.That(t, g, test.ShouldEqual, 1)
		test.That(t, b, test.ShouldEqual, 2)
	}
}

func TestPCDRoundTripAscii(t *testing.T) {
	testPCDRoundTrip(t, PCDAscii, false)
	testPCDRoundTrip(t, PCDAscii, true)
}

func TestPCDRoundTripBinary(t *testing.T) {
	testPCDRoundTrip(t, PCDBinary, false)
	testPCDRoundTrip(t, PCDBinary, true)
}

func TestReadPCDBadHeader(t *testing.T) {
	_, err := ReadPCD(strings.NewReader("VERSION .6\n"))
	test.That(t, err, test.ShouldNotBeNil)
}

func TestReadPLY(t *testing.T) {
	ply := `ply
format ascii 1.0
element vertex 3
property float x
property float y
property float z
end_header
0 0 0
1 2 3
-1 -2 -3
`
	cloud, err := ReadPLY(strings.NewReader(ply))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cloud.Size(), test.ShouldEqual, 3)
	test.That(t, CloudContains(cloud, 1, 2, 3), test.ShouldBeTrue)
	test.That(t, cloud.MetaData().HasColor, test.ShouldBeFalse)
}

func TestReadPLYColor(t *testing.T) {
	ply := `ply
format ascii 1.0
element vertex 1
property float x
property float y
property float z
property uchar red
property uchar green
property uchar blue
end_header
5 6 7 255 0 127
`
	cloud, err := ReadPLY(strings.NewReader(ply))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cloud.Size(), test.ShouldEqual, 1)
	d, ok := cloud.At(5, 6, 7)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, d.HasColor(), test.ShouldBeTrue)
	r, _, b := d.RGB255()
	test.That(t, r, test.ShouldEqual, 255)
	test.That(t, b, test.ShouldEqual, 127)
}
