package registration

import (
	"context"
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"go.viam.com/cloudreg/pointcloud"
	"go.viam.com/cloudreg/utils"
)

// fpfhBins is the bin count per pair-feature angle; three angles make the 33-dim descriptor.
const fpfhBins = 11

// FPFHDim is the dimension of the fast point feature histogram descriptor.
const FPFHDim = 3 * fpfhBins

// ComputeFPFHFeature computes the 33-bin fast point feature histogram of every
// point: a simplified histogram of the Darboux-frame angles against each
// neighbor within radius (capped at maxNeighbors), then aggregated over the
// neighborhood with inverse-distance weights. The normals must be index-aligned
// with the cloud's points.
func ComputeFPFHFeature(
	cloud pointcloud.PointCloud,
	normals []r3.Vector,
	radius float64,
	maxNeighbors int,
) (*Feature, error) {
	if cloud == nil || cloud.Size() == 0 {
		return nil, errors.New("cannot compute features of an empty point cloud")
	}
	if len(normals) != cloud.Size() {
		return nil, errors.Errorf("have %d normals for %d points", len(normals), cloud.Size())
	}
	if radius <= 0 {
		return nil, errors.Errorf("radius must be positive, got %f", radius)
	}
	if maxNeighbors < 2 {
		return nil, errors.Errorf("maxNeighbors must be at least 2, got %d", maxNeighbors)
	}

	pts := pointcloud.Positions(cloud)
	kd, ok := cloud.(*pointcloud.KDTree)
	if !ok {
		kd = pointcloud.ToKDTree(cloud)
	}
	indexOf := make(map[r3.Vector]int, len(pts))
	for i, p := range pts {
		indexOf[p] = i
	}

	// neighbor index lists, reused by both passes
	neighborIdx := make([][]int, len(pts))
	neighborDist := make([][]float64, len(pts))
	collectNeighbors := func(i int) {
		ns := kd.RadiusNearestNeighbors(pts[i], radius, false)
		if len(ns) > maxNeighbors {
			ns = ns[:maxNeighbors]
		}
		idxs := make([]int, 0, len(ns))
		dists := make([]float64, 0, len(ns))
		for _, n := range ns {
			idxs = append(idxs, indexOf[n.P])
			dists = append(dists, n.P.Sub(pts[i]).Norm())
		}
		neighborIdx[i] = idxs
		neighborDist[i] = dists
	}

	spfh := make([][]float32, len(pts))
	computeSPFH := func(i int) {
		hist := make([]float32, FPFHDim)
		idxs := neighborIdx[i]
		if len(idxs) > 1 {
			histIncr := float32(100.0 / float64(len(idxs)-1))
			for _, j := range idxs {
				if j == i {
					continue
				}
				f1, f2, f3, ok := pairFeatures(pts[i], normals[i], pts[j], normals[j])
				if !ok {
					continue
				}
				hist[angleBin(f1, -math.Pi, math.Pi)] += histIncr
				hist[fpfhBins+angleBin(f2, -1, 1)] += histIncr
				hist[2*fpfhBins+angleBin(f3, -1, 1)] += histIncr
			}
		}
		spfh[i] = hist
	}

	if err := forEachPoint(len(pts), func(i int) {
		collectNeighbors(i)
		computeSPFH(i)
	}); err != nil {
		return nil, err
	}

	feature, err := NewFeature(len(pts), FPFHDim)
	if err != nil {
		return nil, err
	}
	if err := forEachPoint(len(pts), func(i int) {
		out := feature.Vector(i)
		copy(out, spfh[i])
		for k, j := range neighborIdx[i] {
			d := neighborDist[i][k]
			if j == i || d == 0 {
				continue
			}
			w := float32(1.0 / d)
			for b := 0; b < FPFHDim; b++ {
				out[b] += w * spfh[j][b]
			}
		}
	}); err != nil {
		return nil, err
	}
	return feature, nil
}

// forEachPoint maps fn over point indices, in parallel for large clouds. fn
// must only write state owned by its own index.
func forEachPoint(n int, fn func(i int)) error {
	if n < descriptorsBeforeParallelization {
		for i := 0; i < n; i++ {
			fn(i)
		}
		return nil
	}
	return utils.GroupWorkParallel(
		context.Background(),
		n,
		func(numGroups int) {},
		func(groupNum, groupSize, from, to int) (utils.MemberWorkFunc, utils.GroupWorkDoneFunc) {
			return func(memberNum, workNum int) {
				fn(workNum)
			}, nil
		},
	)
}

// pairFeatures computes the three Darboux-frame angles between an oriented
// point pair. Reports false for coincident points or degenerate frames.
func pairFeatures(ps, ns, pt, nt r3.Vector) (f1, f2, f3 float64, ok bool) {
	dp := pt.Sub(ps)
	dist := dp.Norm()
	if dist == 0 {
		return 0, 0, 0, false
	}
	n1, n2 := ns, nt
	angle1 := n1.Dot(dp) / dist
	angle2 := n2.Dot(dp) / dist
	// the frame is anchored at the point whose normal deviates least from the pair axis
	if math.Acos(math.Abs(angle1)) > math.Acos(math.Abs(angle2)) {
		n1, n2 = n2, n1
		dp = dp.Mul(-1)
		f3 = angle2
	} else {
		f3 = angle1
	}
	v := dp.Cross(n1)
	vNorm := v.Norm()
	if vNorm == 0 {
		return 0, 0, 0, false
	}
	v = v.Mul(1 / vNorm)
	w := n1.Cross(v)
	f2 = v.Dot(n2)
	f1 = math.Atan2(w.Dot(n2), n1.Dot(n2))
	return f1, f2, f3, true
}

// angleBin maps a value in [lo, hi] onto one of the histogram's bins.
func angleBin(v, lo, hi float64) int {
	bin := int(math.Floor(fpfhBins * (v - lo) / (hi - lo)))
	if bin < 0 {
		bin = 0
	}
	if bin >= fpfhBins {
		bin = fpfhBins - 1
	}
	return bin
}
