package pointcloud

import (
	"context"
	"math"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/cloudreg/spatialmath"
	"go.viam.com/cloudreg/utils"
)

// BoundingBoxFromPointCloud returns a Geometry object that encompasses all the points in the given point cloud.
func BoundingBoxFromPointCloud(cloud PointCloud) (spatialmath.Geometry, error) {
	return BoundingBoxFromPointCloudWithLabel(cloud, "")
}

// BoundingBoxFromPointCloudWithLabel returns a labeled Geometry object that encompasses all the points in the given point cloud.
func BoundingBoxFromPointCloudWithLabel(cloud PointCloud, label string) (spatialmath.Geometry, error) {
	if cloud.Size() == 0 {
		return nil, nil
	}

	// calculate extents of point cloud
	meta := cloud.MetaData()
	dims := r3.Vector{X: meta.MaxX - meta.MinX, Y: meta.MaxY - meta.MinY, Z: meta.MaxZ - meta.MinZ}

	// calculate the spatial average center of a given point cloud
	numPoints := cloud.Size()
	center := CloudCentroid(cloud)

	// padding the bounding box slightly is useful for gestalting multiple clouds
	if numPoints > 1 {
		dims = dims.Mul(float64(numPoints+1) / float64(numPoints))
	}
	return spatialmath.NewBox(spatialmath.NewPoseFromPoint(center), dims, label)
}

// CloudCentroid returns the centroid of a pointcloud as a vector.
func CloudCentroid(pc PointCloud) r3.Vector {
	// the meta data carries the running totals of all merged points
	meta := pc.MetaData()
	return meta.Center()
}

// CloudContains is a silly helper method.
func CloudContains(cloud PointCloud, x, y, z float64) bool {
	_, got := cloud.At(x, y, z)
	return got
}

// MaxRadius returns the largest distance from the given center to any point in
// the cloud. Zero for an empty cloud.
func MaxRadius(cloud PointCloud, center r3.Vector) float64 {
	maxSq := 0.0
	cloud.Iterate(0, 0, func(p r3.Vector, d Data) bool {
		distSq := p.Sub(center).Norm2()
		if distSq > maxSq {
			maxSq = distSq
		}
		return true
	})
	return math.Sqrt(maxSq)
}

// ApplyOffset takes a point cloud and an offset pose and applies the offset to each of the points in the source point cloud.
func ApplyOffset(srcpc PointCloud, offset spatialmath.Pose, logger golog.Logger) (PointCloud, error) {
	if offset == nil || spatialmath.PoseAlmostEqual(offset, spatialmath.NewZeroPose()) {
		return srcpc, nil
	}
	outputBatches := make([][]PointAndData, utils.ParallelFactor)
	err := utils.GroupWorkParallel(
		context.Background(),
		srcpc.Size(),
		func(numGroups int) {},
		func(groupNum, groupSize, from, to int) (utils.MemberWorkFunc, utils.GroupWorkDoneFunc) {
			batch := make([]PointAndData, 0, groupSize)
			srcpc.Iterate(utils.ParallelFactor, groupNum, func(p r3.Vector, d Data) bool {
				batch = append(batch, PointAndData{P: spatialmath.TransformPoint(offset, p), D: d})
				return true
			})
			outputBatches[groupNum] = batch
			return nil, nil
		},
	)
	if err != nil {
		return nil, err
	}
	result := NewWithPrealloc(srcpc.Size())
	for _, batch := range outputBatches {
		for _, pd := range batch {
			if err := result.Set(pd.P, pd.D); err != nil {
				return nil, err
			}
		}
	}
	return result, nil
}

// MergePointClouds combines the given clouds into one, with points of
// later clouds overwriting coincident points of earlier ones.
func MergePointClouds(clouds []PointCloud) (PointCloud, error) {
	size := 0
	for _, c := range clouds {
		size += c.Size()
	}
	merged := NewWithPrealloc(size)
	var err error
	for _, c := range clouds {
		c.Iterate(0, 0, func(p r3.Vector, d Data) bool {
			err = merged.Set(p, d)
			return err == nil
		})
		if err != nil {
			return nil, err
		}
	}
	return merged, nil
}

// PrunePointClouds removes point clouds from a slice if the point cloud has less than nMinPoints points.
func PrunePointClouds(clouds []PointCloud, nMinPoints int) []PointCloud {
	pruned := make([]PointCloud, 0, len(clouds))
	for _, c := range clouds {
		if c.Size() >= nMinPoints {
			pruned = append(pruned, c)
		}
	}
	return pruned
}

// CloudMatrix Returns a Matrix representation of a Cloud along with a list of labels for the columns.
// The matrix is organized one point per row with columns x, y, z, then optionally
// r, g, b and/or v depending on what the cloud's points carry.
func CloudMatrix(pc PointCloud) (*mat.Dense, []CloudMatrixCol) {
	if pc.Size() == 0 {
		return nil, nil
	}
	header := []CloudMatrixCol{CloudMatrixColX, CloudMatrixColY, CloudMatrixColZ}
	pointSize := 3
	if pc.MetaData().HasColor {
		header = append(header, CloudMatrixColR, CloudMatrixColG, CloudMatrixColB)
		pointSize += 3
	}
	if pc.MetaData().HasValue {
		header = append(header, CloudMatrixColV)
		pointSize++
	}

	matData := make([]float64, 0, pc.Size()*pointSize)
	pc.Iterate(0, 0, func(p r3.Vector, d Data) bool {
		matData = append(matData, p.X, p.Y, p.Z)
		if pc.MetaData().HasColor {
			if d != nil && d.HasColor() {
				r, g, b := d.RGB255()
				matData = append(matData, float64(r), float64(g), float64(b))
			} else {
				matData = append(matData, 0, 0, 0)
			}
		}
		if pc.MetaData().HasValue {
			if d != nil && d.HasValue() {
				matData = append(matData, float64(d.Value()))
			} else {
				matData = append(matData, 0)
			}
		}
		return true
	})
	return mat.NewDense(pc.Size(), pointSize, matData), header
}

// CloudMatrixCol is a type that represents the columns of a CloudMatrix.
type CloudMatrixCol string

const (
	// CloudMatrixColX is the x column in the cloud matrix.
	CloudMatrixColX CloudMatrixCol = "x"
	// CloudMatrixColY is the y column in the cloud matrix.
	CloudMatrixColY CloudMatrixCol = "y"
	// CloudMatrixColZ is the z column in the cloud matrix.
	CloudMatrixColZ CloudMatrixCol = "z"
	// CloudMatrixColR is the r column in the cloud matrix.
	CloudMatrixColR CloudMatrixCol = "r"
	// CloudMatrixColG is the g column in the cloud matrix.
	CloudMatrixColG CloudMatrixCol = "g"
	// CloudMatrixColB is the b column in the cloud matrix.
	CloudMatrixColB CloudMatrixCol = "b"
	// CloudMatrixColV is the value column in the cloud matrix.
	CloudMatrixColV CloudMatrixCol = "v"
)
