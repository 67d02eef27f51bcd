package pointcloud

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

// Constants defining the range of floats that can be used as points without
// losing precision when encoded as float32.
const (
	maxPreciseFloat64 = float64(16777216)
	minPreciseFloat64 = float64(-16777216)
)

// newOutOfRangeErr returns an error for points that are out of the allowed range.
func newOutOfRangeErr(dim string, val float64) error {
	return errors.Errorf("%s component (%v) is out of range [%v,%v]", dim, val, minPreciseFloat64, maxPreciseFloat64)
}

// matrixStorage stores points in insertion order in a slice, with a map from
// position to slice index for constant-time lookup. Iteration order is
// deterministic as a result.
type matrixStorage struct {
	points   []PointAndData
	indexMap map[r3.Vector]uint
}

func (ms *matrixStorage) Size() int {
	return len(ms.points)
}

// Set validates that the point can be precisely stored before setting it in the cloud.
func (ms *matrixStorage) Set(p r3.Vector, d Data) error {
	if math.IsNaN(p.X) || math.IsNaN(p.Y) || math.IsNaN(p.Z) ||
		math.IsInf(p.X, 0) || math.IsInf(p.Y, 0) || math.IsInf(p.Z, 0) {
		return errors.New("point components must be finite")
	}
	if p.X > maxPreciseFloat64 || p.X < minPreciseFloat64 {
		return newOutOfRangeErr("x", p.X)
	}
	if p.Y > maxPreciseFloat64 || p.Y < minPreciseFloat64 {
		return newOutOfRangeErr("y", p.Y)
	}
	if p.Z > maxPreciseFloat64 || p.Z < minPreciseFloat64 {
		return newOutOfRangeErr("z", p.Z)
	}
	if i, found := ms.indexMap[p]; found {
		ms.points[i].D = d
		return nil
	}
	ms.points = append(ms.points, PointAndData{p, d})
	ms.indexMap[p] = uint(len(ms.points) - 1)
	return nil
}

func (ms *matrixStorage) At(x, y, z float64) (Data, bool) {
	i, found := ms.indexMap[r3.Vector{X: x, Y: y, Z: z}]
	if !found {
		return nil, false
	}
	return ms.points[i].D, true
}

func (ms *matrixStorage) Iterate(numBatches, myBatch int, fn func(p r3.Vector, d Data) bool) {
	if numBatches > 0 && myBatch >= numBatches {
		return
	}
	lowerBound := 0
	upperBound := ms.Size()
	if numBatches > 0 {
		batchSize := (ms.Size() + numBatches - 1) / numBatches
		lowerBound = myBatch * batchSize
		upperBound = (myBatch + 1) * batchSize
	}
	if upperBound > ms.Size() {
		upperBound = ms.Size()
	}
	for i := lowerBound; i < upperBound; i++ {
		if cont := fn(ms.points[i].P, ms.points[i].D); !cont {
			return
		}
	}
}

func (ms *matrixStorage) EditSupported() bool {
	return true
}

func (ms *matrixStorage) IsOrdered() bool {
	return true
}
