package registration

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"go.viam.com/cloudreg/pointcloud"
	"go.viam.com/cloudreg/spatialmath"
)

// EvaluateRegistration measures how well the given pose aligns source onto
// target: every source point is paired with its nearest target point after
// transforming, pairs within maxDist count as inliers, and fitness/RMSE are
// computed over them.
func EvaluateRegistration(
	source, target pointcloud.PointCloud,
	maxDist float64,
	pose spatialmath.Pose,
) (*RegistrationResult, error) {
	if source == nil || target == nil || source.Size() == 0 || target.Size() == 0 {
		return nil, errors.New("source and target clouds must be non-empty")
	}
	if maxDist <= 0 {
		return nil, errors.Errorf("maxDist must be positive, got %f", maxDist)
	}
	if pose == nil {
		pose = spatialmath.NewZeroPose()
	}
	kd := targetKDTree(target)
	return evaluateAgainstTree(pointcloud.Positions(source), kd, maxDist, pose), nil
}

// targetIndexedTree pairs a kd-tree over a cloud's points with the insertion
// index of each point, so neighbor lookups can report correspondences.
type targetIndexedTree struct {
	tree    *pointcloud.KDTree
	indexOf map[r3.Vector]int
}

func targetKDTree(target pointcloud.PointCloud) *targetIndexedTree {
	t := &targetIndexedTree{
		tree:    pointcloud.ToKDTree(target),
		indexOf: make(map[r3.Vector]int, target.Size()),
	}
	for i, p := range pointcloud.Positions(target) {
		t.indexOf[p] = i
	}
	return t
}

func evaluateAgainstTree(srcPts []r3.Vector, kd *targetIndexedTree, maxDist float64, pose spatialmath.Pose) *RegistrationResult {
	inliers := make(CorrespondenceSet, 0, len(srcPts))
	sumSq := 0.0
	for i, p := range srcPts {
		nearest, _, d, ok := kd.tree.NearestNeighbor(spatialmath.TransformPoint(pose, p))
		if !ok || d > maxDist {
			continue
		}
		inliers = append(inliers, Correspondence{SourceIndex: i, TargetIndex: kd.indexOf[nearest]})
		sumSq += d * d
	}
	result := &RegistrationResult{
		Transformation:  pose,
		Correspondences: inliers,
	}
	if len(srcPts) > 0 {
		result.Fitness = float64(len(inliers)) / float64(len(srcPts))
	}
	if len(inliers) > 0 {
		result.InlierRMSE = math.Sqrt(sumSq / float64(len(inliers)))
	}
	return result
}
