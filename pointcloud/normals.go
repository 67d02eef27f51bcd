package pointcloud

import (
	"context"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/cloudreg/utils"
)

// Parallelizing the per-point neighborhood work only pays off past this size.
const neighborsBeforeParallelization = 1000

// Positions returns the points of the cloud as a slice in iteration order.
func Positions(cloud PointCloud) []r3.Vector {
	pts := make([]r3.Vector, 0, cloud.Size())
	cloud.Iterate(0, 0, func(p r3.Vector, d Data) bool {
		pts = append(pts, p)
		return true
	})
	return pts
}

// EstimateNormals computes a surface normal for every point of the cloud by
// fitting a plane to its k nearest neighbors. The normals are returned in
// iteration order and their signs are arbitrary; use OrientNormals to fix them.
func EstimateNormals(cloud PointCloud, k int) ([]r3.Vector, error) {
	if k < 3 {
		return nil, errors.Errorf("need at least 3 neighbors to estimate a normal, got %d", k)
	}
	if cloud.Size() == 0 {
		return nil, errors.New("cannot estimate normals on an empty point cloud")
	}
	kd, ok := cloud.(*KDTree)
	if !ok {
		kd = ToKDTree(cloud)
	}
	pts := Positions(cloud)

	normals := make([]r3.Vector, len(pts))
	if len(pts) < neighborsBeforeParallelization {
		for i, p := range pts {
			normals[i] = planeNormal(kd.KNearestNeighbors(p, k, true))
		}
		return normals, nil
	}
	err := utils.GroupWorkParallel(
		context.Background(),
		len(pts),
		func(numGroups int) {},
		func(groupNum, groupSize, from, to int) (utils.MemberWorkFunc, utils.GroupWorkDoneFunc) {
			return func(memberNum, workNum int) {
				neighbors := kd.KNearestNeighbors(pts[workNum], k, true)
				normals[workNum] = planeNormal(neighbors)
			}, nil
		},
	)
	if err != nil {
		return nil, err
	}
	return normals, nil
}

// planeNormal fits a plane to the neighborhood by PCA and returns the
// eigenvector of the smallest eigenvalue of the covariance matrix.
func planeNormal(neighbors []*PointAndData) r3.Vector {
	if len(neighbors) < 3 {
		return r3.Vector{Z: 1}
	}
	mean := r3.Vector{}
	for _, n := range neighbors {
		mean = mean.Add(n.P)
	}
	mean = mean.Mul(1 / float64(len(neighbors)))

	cov := mat.NewSymDense(3, nil)
	for _, n := range neighbors {
		d := n.P.Sub(mean)
		v := [3]float64{d.X, d.Y, d.Z}
		for i := 0; i < 3; i++ {
			for j := i; j < 3; j++ {
				cov.SetSym(i, j, cov.At(i, j)+v[i]*v[j])
			}
		}
	}

	var eig mat.EigenSym
	if ok := eig.Factorize(cov, true); !ok {
		return r3.Vector{Z: 1}
	}
	var vecs mat.Dense
	eig.VectorsTo(&vecs)
	// eigenvalues come back in ascending order, so the first eigenvector
	// spans the direction of least variance
	normal := r3.Vector{X: vecs.At(0, 0), Y: vecs.At(1, 0), Z: vecs.At(2, 0)}
	if n := normal.Norm(); n > 0 {
		normal = normal.Mul(1 / n)
	}
	return normal
}

// OrientNormals flips normals so that every one points from its point towards
// the given viewpoint. Normals at points coincident with the viewpoint are kept as is.
func OrientNormals(normals, pts []r3.Vector, viewpoint r3.Vector) error {
	if len(normals) != len(pts) {
		return errors.Errorf("have %d normals for %d points", len(normals), len(pts))
	}
	for i, n := range normals {
		toView := viewpoint.Sub(pts[i])
		if n.Dot(toView) < 0 {
			normals[i] = n.Mul(-1)
		}
	}
	return nil
}
