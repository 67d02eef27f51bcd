package registration

import (
	"math"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/cloudreg/pointcloud"
	"go.viam.com/cloudreg/spatialmath"
)

// ICPConvergenceCriteria tells the ICP loop when to stop early: when the
// relative change of both fitness and inlier RMSE drops below the bounds, or
// after MaxIteration iterations.
type ICPConvergenceCriteria struct {
	RelativeFitness float64 `json:"relative_fitness"`
	RelativeRMSE    float64 `json:"relative_rmse"`
	MaxIteration    int     `json:"max_iteration"`
}

// DefaultICPConvergenceCriteria returns the standard stopping bounds.
func DefaultICPConvergenceCriteria() ICPConvergenceCriteria {
	return ICPConvergenceCriteria{RelativeFitness: 1e-6, RelativeRMSE: 1e-6, MaxIteration: 30}
}

// TransformationEstimation computes a pose update from matched point pairs.
type TransformationEstimation interface {
	// ComputeTransformation returns the pose moving the source points onto
	// their corresponding target points.
	ComputeTransformation(srcPts, tgtPts []r3.Vector, corres CorrespondenceSet) (spatialmath.Pose, error)
}

// NewPointToPointEstimation estimates a free rigid transform per iteration
// from the matched pairs alone.
func NewPointToPointEstimation() TransformationEstimation {
	return &estimationPointToPoint{}
}

// NewPointToPlaneEstimation minimizes the distance of each source point to
// the tangent plane of its target point. The normals must be index-aligned
// with the target cloud's points.
func NewPointToPlaneEstimation(targetNormals []r3.Vector) TransformationEstimation {
	return &estimationPointToPlane{normals: targetNormals}
}

type estimationPointToPoint struct{}

// ComputeTransformation solves the weighted orthogonal Procrustes problem via
// SVD of the pair covariance, with the usual determinant correction so the
// result is a proper rotation.
func (e *estimationPointToPoint) ComputeTransformation(
	srcPts, tgtPts []r3.Vector, corres CorrespondenceSet,
) (spatialmath.Pose, error) {
	if len(corres) < 3 {
		return nil, errors.Errorf("need at least 3 correspondences, got %d", len(corres))
	}
	var srcMean, tgtMean r3.Vector
	for _, c := range corres {
		srcMean = srcMean.Add(srcPts[c.SourceIndex])
		tgtMean = tgtMean.Add(tgtPts[c.TargetIndex])
	}
	n := float64(len(corres))
	srcMean = srcMean.Mul(1 / n)
	tgtMean = tgtMean.Mul(1 / n)

	h := mat.NewDense(3, 3, nil)
	for _, c := range corres {
		s := srcPts[c.SourceIndex].Sub(srcMean)
		t := tgtPts[c.TargetIndex].Sub(tgtMean)
		sv := [3]float64{s.X, s.Y, s.Z}
		tv := [3]float64{t.X, t.Y, t.Z}
		for i := 0; i < 3; i++ {
			for j := 0; j < 3; j++ {
				h.Set(i, j, h.At(i, j)+tv[i]*sv[j])
			}
		}
	}

	var svd mat.SVD
	if ok := svd.Factorize(h, mat.SVDFull); !ok {
		return nil, errors.New("could not factorize correspondence covariance")
	}
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	// R = U diag(1,1,det(UV^T)) V^T
	var uvt mat.Dense
	uvt.Mul(&u, v.T())
	d := mat.Det(&uvt)
	diag := mat.NewDiagDense(3, []float64{1, 1, d})
	var ud, rot mat.Dense
	ud.Mul(&u, diag)
	rot.Mul(&ud, v.T())

	rm, err := spatialmath.NewRotationMatrix([]float64{
		rot.At(0, 0), rot.At(0, 1), rot.At(0, 2),
		rot.At(1, 0), rot.At(1, 1), rot.At(1, 2),
		rot.At(2, 0), rot.At(2, 1), rot.At(2, 2),
	})
	if err != nil {
		return nil, err
	}
	translation := tgtMean.Sub(rm.Mul(srcMean))
	return spatialmath.NewPose(translation, rm), nil
}

type estimationPointToPlane struct {
	normals []r3.Vector
}

// ComputeTransformation solves the linearized point-to-plane system: residual
// n·(p-q) with jacobian [p x n | n] over a small (omega, t) update.
func (e *estimationPointToPlane) ComputeTransformation(
	srcPts, tgtPts []r3.Vector, corres CorrespondenceSet,
) (spatialmath.Pose, error) {
	if len(e.normals) != len(tgtPts) {
		return nil, errors.Errorf("have %d normals for %d target points", len(e.normals), len(tgtPts))
	}
	if len(corres) < 6 {
		return nil, errors.Errorf("need at least 6 correspondences, got %d", len(corres))
	}
	jtj := mat.NewSymDense(6, nil)
	jtr := mat.NewVecDense(6, nil)
	for _, c := range corres {
		p := srcPts[c.SourceIndex]
		q := tgtPts[c.TargetIndex]
		nrm := e.normals[c.TargetIndex]

		res := p.Sub(q).Dot(nrm)
		cross := p.Cross(nrm)
		row := [6]float64{cross.X, cross.Y, cross.Z, nrm.X, nrm.Y, nrm.Z}
		for i := 0; i < 6; i++ {
			for j := i; j < 6; j++ {
				jtj.SetSym(i, j, jtj.At(i, j)+row[i]*row[j])
			}
			jtr.SetVec(i, jtr.AtVec(i)-row[i]*res)
		}
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(jtj); !ok {
		return nil, errors.New("singular point-to-plane system")
	}
	var delta mat.VecDense
	if err := chol.SolveVecTo(&delta, jtr); err != nil {
		return nil, err
	}
	if !vecFinite(&delta) {
		return nil, errors.New("non-finite point-to-plane update")
	}
	return spatialmath.NewPose(
		r3.Vector{X: delta.AtVec(3), Y: delta.AtVec(4), Z: delta.AtVec(5)},
		&spatialmath.EulerAngles{Roll: delta.AtVec(0), Pitch: delta.AtVec(1), Yaw: delta.AtVec(2)},
	), nil
}

// RegistrationICP refines an initial alignment with iterative closest point.
// Each iteration matches every transformed source point to its nearest target
// point within maxDist, re-estimates the transform over the matches, and stops
// once fitness and RMSE plateau per the criteria.
func RegistrationICP(
	source, target pointcloud.PointCloud,
	maxDist float64,
	init spatialmath.Pose,
	estimation TransformationEstimation,
	criteria ICPConvergenceCriteria,
	logger golog.Logger,
) (*RegistrationResult, error) {
	if source == nil || target == nil || source.Size() == 0 || target.Size() == 0 {
		return nil, errors.New("source and target clouds must be non-empty")
	}
	if maxDist <= 0 {
		return nil, errors.Errorf("maxDist must be positive, got %f", maxDist)
	}
	if estimation == nil {
		estimation = NewPointToPointEstimation()
	}
	if init == nil {
		init = spatialmath.NewZeroPose()
	}

	srcPts := pointcloud.Positions(source)
	kd := targetKDTree(target)
	tgtPts := pointcloud.Positions(target)

	pose := init
	result := evaluateAgainstTree(srcPts, kd, maxDist, pose)
	for itr := 0; itr < criteria.MaxIteration; itr++ {
		if len(result.Correspondences) == 0 {
			logger.Debugf("no correspondences within %f at iteration %d", maxDist, itr)
			break
		}
		transformed := make([]r3.Vector, len(srcPts))
		for i, p := range srcPts {
			transformed[i] = spatialmath.TransformPoint(pose, p)
		}
		update, err := estimation.ComputeTransformation(transformed, tgtPts, result.Correspondences)
		if err != nil {
			logger.Debugf("estimation failed at iteration %d: %v", itr, err)
			break
		}
		pose = spatialmath.Compose(update, pose)

		next := evaluateAgainstTree(srcPts, kd, maxDist, pose)
		if math.Abs(next.Fitness-result.Fitness) < criteria.RelativeFitness &&
			math.Abs(next.InlierRMSE-result.InlierRMSE) < criteria.RelativeRMSE {
			result = next
			break
		}
		result = next
	}
	return result, nil
}
