package pointcloud

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

// VoxelCoords stores voxel coordinates in voxel grid axes.
type VoxelCoords struct {
	I, J, K int64
}

// IsEqual tests if two VoxelCoords are the same.
func (c VoxelCoords) IsEqual(c2 VoxelCoords) bool {
	return c.I == c2.I && c.J == c2.J && c.K == c2.K
}

// GetVoxelCoords computes the voxel coordinates of a point, given the minimum
// bound of the cloud and the voxel side length.
func GetVoxelCoords(pt, ptMin r3.Vector, voxelSize float64) VoxelCoords {
	return VoxelCoords{
		I: int64(math.Floor((pt.X - ptMin.X) / voxelSize)),
		J: int64(math.Floor((pt.Y - ptMin.Y) / voxelSize)),
		K: int64(math.Floor((pt.Z - ptMin.Z) / voxelSize)),
	}
}

// VoxelDownsample returns a new cloud with one point per occupied voxel, at
// the mean position of the voxel's points. The data of the first point seen
// in each voxel is kept. Voxel visit order follows cloud iteration order, so
// the result is deterministic.
func VoxelDownsample(cloud PointCloud, voxelSize float64) (PointCloud, error) {
	if voxelSize <= 0 {
		return nil, errors.Errorf("voxelSize must be positive, got %f", voxelSize)
	}
	if cloud.Size() == 0 {
		return New(), nil
	}

	type voxelAccum struct {
		sum   r3.Vector
		count int
		data  Data
	}
	meta := cloud.MetaData()
	ptMin := r3.Vector{X: meta.MinX, Y: meta.MinY, Z: meta.MinZ}

	accums := map[VoxelCoords]*voxelAccum{}
	order := make([]VoxelCoords, 0, cloud.Size())
	cloud.Iterate(0, 0, func(p r3.Vector, d Data) bool {
		coords := GetVoxelCoords(p, ptMin, voxelSize)
		accum, ok := accums[coords]
		if !ok {
			accum = &voxelAccum{data: d}
			accums[coords] = accum
			order = append(order, coords)
		}
		accum.sum = accum.sum.Add(p)
		accum.count++
		return true
	})

	downsampled := NewWithPrealloc(len(order))
	for _, coords := range order {
		accum := accums[coords]
		center := accum.sum.Mul(1 / float64(accum.count))
		if err := downsampled.Set(center, accum.data); err != nil {
			return nil, err
		}
	}
	return downsampled, nil
}
