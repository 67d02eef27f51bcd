package pointcloud

import (
	"math"
	"sort"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/spatial/kdtree"
)

// KDTree extends PointCloud and orders the points in a KD tree for quick nearest-neighbor access.
type KDTree struct {
	cloud PointCloud
	tree  *kdtree.Tree
}

type kdValue struct {
	p r3.Vector
	d Data
}

func (v kdValue) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	other := c.(kdValue)
	switch d {
	case 0:
		return v.p.X - other.p.X
	case 1:
		return v.p.Y - other.p.Y
	default:
		return v.p.Z - other.p.Z
	}
}

func (v kdValue) Dims() int {
	return 3
}

// Distance returns the squared Euclidean distance, as the tree search squares
// hyperplane offsets before comparing them against it.
func (v kdValue) Distance(c kdtree.Comparable) float64 {
	return v.p.Sub(c.(kdValue).p).Norm2()
}

type kdValues []kdValue

func (vs kdValues) Index(i int) kdtree.Comparable { return vs[i] }

func (vs kdValues) Len() int { return len(vs) }

func (vs kdValues) Pivot(d kdtree.Dim) int {
	return kdPlane{values: vs, dim: d}.Pivot()
}

func (vs kdValues) Slice(start, end int) kdtree.Interface { return vs[start:end] }

type kdPlane struct {
	dim    kdtree.Dim
	values kdValues
}

func (p kdPlane) Less(i, j int) bool {
	return p.values[i].Compare(p.values[j], p.dim) < 0
}

func (p kdPlane) Pivot() int {
	return kdtree.Partition(p, kdtree.MedianOfMedians(p))
}

func (p kdPlane) Slice(start, end int) kdtree.SortSlicer {
	return kdPlane{values: p.values[start:end], dim: p.dim}
}

func (p kdPlane) Swap(i, j int) {
	p.values[i], p.values[j] = p.values[j], p.values[i]
}

func (p kdPlane) Len() int {
	return len(p.values)
}

// ToKDTree creates a KDTree from a PointCloud.
func ToKDTree(cloud PointCloud) *KDTree {
	values := make(kdValues, 0, cloud.Size())
	cloud.Iterate(0, 0, func(p r3.Vector, d Data) bool {
		values = append(values, kdValue{p, d})
		return true
	})
	return &KDTree{
		cloud: cloud,
		tree:  kdtree.New(values, false),
	}
}

// Size returns the size of the underlying point cloud.
func (kd *KDTree) Size() int {
	return kd.cloud.Size()
}

// MetaData returns the meta data of the underlying point cloud.
func (kd *KDTree) MetaData() MetaData {
	return kd.cloud.MetaData()
}

// Set returns an error, as the tree would need to be rebuilt.
func (kd *KDTree) Set(p r3.Vector, d Data) error {
	return errors.New("a KDTree is read-only, build a new one instead")
}

// At returns the data at a given position in the underlying point cloud.
func (kd *KDTree) At(x, y, z float64) (Data, bool) {
	return kd.cloud.At(x, y, z)
}

// Iterate iterates over the underlying point cloud.
func (kd *KDTree) Iterate(numBatches, myBatch int, fn func(p r3.Vector, d Data) bool) {
	kd.cloud.Iterate(numBatches, myBatch, fn)
}

// NearestNeighbor returns the nearest point to the given point, its data, and
// the Euclidean distance between them.
func (kd *KDTree) NearestNeighbor(p r3.Vector) (r3.Vector, Data, float64, bool) {
	c, distSq := kd.tree.Nearest(kdValue{p: p})
	if c == nil {
		return r3.Vector{}, nil, 0, false
	}
	v := c.(kdValue)
	return v.p, v.d, math.Sqrt(distSq), true
}

// KNearestNeighbors returns the k nearest points ordered by ascending distance.
// If includeSelf is true and the query point is in the cloud, it counts as a neighbor.
func (kd *KDTree) KNearestNeighbors(p r3.Vector, k int, includeSelf bool) []*PointAndData {
	keep := k
	if !includeSelf {
		keep++
	}
	keeper := kdtree.NewNKeeper(keep)
	kd.tree.NearestSet(keeper, kdValue{p: p})

	nearestPoints := collectKeeperPoints(keeper.Heap, p, includeSelf)
	if len(nearestPoints) > k {
		nearestPoints = nearestPoints[:k]
	}
	return nearestPoints
}

// RadiusNearestNeighbors returns all points within r of the given point ordered
// by ascending distance. If includeSelf is true and the query point is in the
// cloud, it counts as a neighbor.
func (kd *KDTree) RadiusNearestNeighbors(p r3.Vector, r float64, includeSelf bool) []*PointAndData {
	keeper := kdtree.NewDistKeeper(r * r)
	kd.tree.NearestSet(keeper, kdValue{p: p})

	return collectKeeperPoints(keeper.Heap, p, includeSelf)
}

// collectKeeperPoints turns a keeper's heap into points sorted by ascending
// distance from the query point, dropping the sentinel entry and, optionally,
// the query point itself.
func collectKeeperPoints(heap []kdtree.ComparableDist, query r3.Vector, includeSelf bool) []*PointAndData {
	kept := make([]kdtree.ComparableDist, 0, len(heap))
	for _, c := range heap {
		if c.Comparable == nil {
			continue
		}
		v := c.Comparable.(kdValue)
		if !includeSelf && v.p.ApproxEqual(query) {
			continue
		}
		kept = append(kept, c)
	}
	// Ties on distance are broken by point coordinates so repeated queries
	// always return neighbors in the same order.
	sort.Slice(kept, func(i, j int) bool {
		if kept[i].Dist != kept[j].Dist {
			return kept[i].Dist < kept[j].Dist
		}
		pi := kept[i].Comparable.(kdValue).p
		pj := kept[j].Comparable.(kdValue).p
		if pi.X != pj.X {
			return pi.X < pj.X
		}
		if pi.Y != pj.Y {
			return pi.Y < pj.Y
		}
		return pi.Z < pj.Z
	})

	nearestPoints := make([]*PointAndData, 0, len(kept))
	for _, c := range kept {
		v := c.Comparable.(kdValue)
		nearestPoints = append(nearestPoints, &PointAndData{P: v.p, D: v.d})
	}
	return nearestPoints
}
