// Package registration aligns 3D point clouds. Its global method is fast
// global registration: descriptor matching, tuple-consistency filtering, then
// graduated non-convexity optimization of a robust point-to-point objective.
// The result can be refined locally with ICP.
package registration

import (
	"context"
	"math"
	"math/rand"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/cloudreg/pointcloud"
	"go.viam.com/cloudreg/spatialmath"
	"go.viam.com/cloudreg/utils"
)

// mu may never anneal all the way to zero or the robust weights degenerate.
const minMu = 1e-12

// tuple sampling tries at most this many triples per candidate correspondence.
const tupleTrialsPerCandidate = 100

// assembling the normal equations only pays for goroutines past this many correspondences.
const correspondencesBeforeParallelization = 2048

// RegistrationResult is the outcome of a registration call: the pose aligning
// source onto target, the correspondences classified as inliers under it, and
// the usual fitness (inlier fraction) and inlier RMSE summary values.
type RegistrationResult struct {
	Transformation  spatialmath.Pose
	Correspondences CorrespondenceSet
	Fitness         float64
	InlierRMSE      float64
}

// FastGlobalRegistrationConfig holds the tuning parameters of fast global registration.
type FastGlobalRegistrationConfig struct {
	// DivisionFactor divides mu on annealing iterations.
	DivisionFactor float64 `json:"division_factor"`
	// UseAbsoluteScale measures distances in input units rather than relative
	// to the larger cloud radius.
	UseAbsoluteScale bool `json:"use_absolute_scale"`
	// DecreaseMu turns the graduated non-convexity annealing on.
	DecreaseMu bool `json:"decrease_mu"`
	// MaxCorrespondenceDistance is the inlier threshold, in input units when
	// UseAbsoluteScale and as a fraction of the cloud radius otherwise.
	MaxCorrespondenceDistance float64 `json:"max_correspondence_distance"`
	// IterationNumber is how many optimization iterations run.
	IterationNumber int `json:"iteration_number"`
	// TupleScale is the lower bound on the pairwise distance ratios of an
	// accepted correspondence triple.
	TupleScale float64 `json:"tuple_scale"`
	// MaximumTupleCount caps how many triples are accepted.
	MaximumTupleCount int `json:"maximum_tuple_count"`
	// MutualFilter keeps only reciprocal nearest-descriptor matches.
	MutualFilter bool `json:"mutual_filter"`
	// Seed seeds the tuple sampling so results reproduce.
	Seed int64 `json:"seed"`
}

// DefaultFastGlobalRegistrationConfig returns the standard parameters.
func DefaultFastGlobalRegistrationConfig() *FastGlobalRegistrationConfig {
	return &FastGlobalRegistrationConfig{
		DivisionFactor:            1.4,
		UseAbsoluteScale:          false,
		DecreaseMu:                true,
		MaxCorrespondenceDistance: 0.025,
		IterationNumber:           64,
		TupleScale:                0.95,
		MaximumTupleCount:         1000,
		MutualFilter:              true,
	}
}

// CheckValid returns an error if any parameter is out of range.
func (cfg *FastGlobalRegistrationConfig) CheckValid() error {
	if cfg.DivisionFactor <= 1 {
		return errors.Errorf("division_factor must be greater than 1, got %f", cfg.DivisionFactor)
	}
	if cfg.MaxCorrespondenceDistance <= 0 {
		return errors.Errorf("max_correspondence_distance must be positive, got %f", cfg.MaxCorrespondenceDistance)
	}
	if cfg.IterationNumber <= 0 {
		return errors.Errorf("iteration_number must be positive, got %d", cfg.IterationNumber)
	}
	if cfg.TupleScale <= 0 || cfg.TupleScale > 1 {
		return errors.Errorf("tuple_scale must be in (0,1], got %f", cfg.TupleScale)
	}
	if cfg.MaximumTupleCount <= 0 {
		return errors.Errorf("maximum_tuple_count must be positive, got %d", cfg.MaximumTupleCount)
	}
	return nil
}

// FastGlobalRegistration estimates the rigid transform aligning source onto
// target from per-point feature descriptors alone, without an initial guess.
// Degenerate-but-legal inputs (no usable correspondence structure) yield an
// identity transform with zero fitness rather than an error; only malformed
// inputs fail.
func FastGlobalRegistration(
	source, target pointcloud.PointCloud,
	sourceFeature, targetFeature *Feature,
	cfg *FastGlobalRegistrationConfig,
	logger golog.Logger,
) (*RegistrationResult, error) {
	if cfg == nil {
		cfg = DefaultFastGlobalRegistrationConfig()
	}
	if err := cfg.CheckValid(); err != nil {
		return nil, err
	}
	if source == nil || target == nil || source.Size() == 0 || target.Size() == 0 {
		return nil, errors.New("source and target clouds must be non-empty")
	}
	if sourceFeature == nil || targetFeature == nil {
		return nil, errors.New("source and target features must be non-nil")
	}
	if sourceFeature.Num() != source.Size() {
		return nil, errors.Errorf("source has %d points but %d descriptors", source.Size(), sourceFeature.Num())
	}
	if targetFeature.Num() != target.Size() {
		return nil, errors.Errorf("target has %d points but %d descriptors", target.Size(), targetFeature.Num())
	}
	if sourceFeature.Dim() != targetFeature.Dim() {
		return nil, errors.Errorf("descriptor dimensions differ: %d vs %d", sourceFeature.Dim(), targetFeature.Dim())
	}

	srcPts := pointcloud.Positions(source)
	tgtPts := pointcloud.Positions(target)

	scale := 1.0
	if !cfg.UseAbsoluteScale {
		srcRadius := pointcloud.MaxRadius(source, pointcloud.CloudCentroid(source))
		tgtRadius := pointcloud.MaxRadius(target, pointcloud.CloudCentroid(target))
		scale = math.Max(srcRadius, tgtRadius)
		if scale <= 0 {
			scale = 1.0
		}
	}

	candidates := matchFeatures(sourceFeature, targetFeature, cfg.MutualFilter)
	logger.Debugf("matched %d candidate correspondences (mutual filter: %t)", len(candidates), cfg.MutualFilter)

	rng := rand.New(rand.NewSource(cfg.Seed))
	tupled := sampleTuples(candidates, srcPts, tgtPts, cfg.TupleScale, cfg.MaximumTupleCount, rng)
	if len(tupled) == 0 {
		logger.Debug("no consistent correspondence tuples found, returning identity")
		return &RegistrationResult{
			Transformation:  spatialmath.NewZeroPose(),
			Correspondences: CorrespondenceSet{},
		}, nil
	}
	logger.Debugf("accepted %d tuples", len(tupled)/3)

	pose := optimizeGNC(tupled, srcPts, tgtPts, cfg, scale, logger)
	result := classifyInliers(candidates, srcPts, tgtPts, pose, cfg.MaxCorrespondenceDistance*scale)
	return result, nil
}

// sampleTuples draws random triples of candidate correspondences and keeps
// those whose three pairwise source/target length ratios all lie within
// [tupleScale, 1/tupleScale]. Every correspondence of an accepted triple is
// appended to the returned multiset; duplicates across triples act as weights
// in the optimization.
func sampleTuples(
	candidates CorrespondenceSet,
	srcPts, tgtPts []r3.Vector,
	tupleScale float64,
	maxCount int,
	rng *rand.Rand,
) CorrespondenceSet {
	if len(candidates) < 3 {
		return nil
	}
	lower := tupleScale
	upper := 1.0 / tupleScale

	var tupled CorrespondenceSet
	accepted := 0
	trials := tupleTrialsPerCandidate * len(candidates)
	for trial := 0; trial < trials && accepted < maxCount; trial++ {
		a := utils.SampleRandomIntRange(0, len(candidates)-1, rng)
		b := utils.SampleRandomIntRange(0, len(candidates)-1, rng)
		c := utils.SampleRandomIntRange(0, len(candidates)-1, rng)
		if a == b || b == c || a == c {
			continue
		}
		if tupleConsistent(candidates[a], candidates[b], candidates[c], srcPts, tgtPts, lower, upper) {
			tupled = append(tupled, candidates[a], candidates[b], candidates[c])
			accepted++
		}
	}
	return tupled
}

func tupleConsistent(ca, cb, cc Correspondence, srcPts, tgtPts []r3.Vector, lower, upper float64) bool {
	pairs := [3][2]Correspondence{{ca, cb}, {cb, cc}, {cc, ca}}
	for _, pair := range pairs {
		dSrc := srcPts[pair[0].SourceIndex].Sub(srcPts[pair[1].SourceIndex]).Norm()
		dTgt := tgtPts[pair[0].TargetIndex].Sub(tgtPts[pair[1].TargetIndex]).Norm()
		if dSrc == 0 || dTgt == 0 {
			return false
		}
		ratio := dSrc / dTgt
		if ratio < lower || ratio > upper {
			return false
		}
	}
	return true
}

// optimizeGNC runs the graduated non-convexity iterations: Geman-McClure
// weights with scale mu, a weighted Gauss-Newton solve for the 6-DOF update,
// and mu annealed towards the correspondence-distance floor.
func optimizeGNC(
	corres CorrespondenceSet,
	srcPts, tgtPts []r3.Vector,
	cfg *FastGlobalRegistrationConfig,
	scale float64,
	logger golog.Logger,
) spatialmath.Pose {
	pose := spatialmath.NewZeroPose()
	mu := scale * scale
	muFloor := math.Max(utils.Square(cfg.MaxCorrespondenceDistance*scale), minMu)

	for itr := 0; itr < cfg.IterationNumber; itr++ {
		if cfg.DecreaseMu && itr%4 == 0 && itr > 0 {
			mu = nextMu(mu, muFloor, cfg.DivisionFactor)
		}

		jtj, jtr := buildNormalEquations(corres, srcPts, tgtPts, pose, mu)

		var chol mat.Cholesky
		if ok := chol.Factorize(jtj); !ok {
			logger.Debugf("singular system at iteration %d, skipping update", itr)
			continue
		}
		var delta mat.VecDense
		if err := chol.SolveVecTo(&delta, jtr); err != nil {
			logger.Debugf("solve failed at iteration %d: %v", itr, err)
			continue
		}
		if !vecFinite(&delta) {
			logger.Debugf("non-finite update at iteration %d, reverting", itr)
			continue
		}

		update := spatialmath.NewPose(
			r3.Vector{X: delta.AtVec(3), Y: delta.AtVec(4), Z: delta.AtVec(5)},
			&spatialmath.EulerAngles{Roll: delta.AtVec(0), Pitch: delta.AtVec(1), Yaw: delta.AtVec(2)},
		)
		pose = spatialmath.Compose(update, pose)
	}
	return pose
}

// nextMu anneals mu by the division factor without crossing the floor.
func nextMu(mu, floor, divisionFactor float64) float64 {
	if mu <= floor {
		return mu
	}
	mu /= divisionFactor
	if mu < minMu {
		mu = minMu
	}
	return mu
}

// buildNormalEquations accumulates the weighted 6x6 Gauss-Newton system over
// all correspondences. The linearization of the residual T(p)-q at the current
// pose is J = [-skew(T(p)) | I] over an (omega, t) update.
func buildNormalEquations(
	corres CorrespondenceSet,
	srcPts, tgtPts []r3.Vector,
	pose spatialmath.Pose,
	mu float64,
) (*mat.SymDense, *mat.VecDense) {
	var acc normalEquations
	if len(corres) < correspondencesBeforeParallelization {
		for _, c := range corres {
			acc.add(c, srcPts, tgtPts, pose, mu)
		}
	} else {
		// sum of independent per-correspondence contributions, merged per group
		groupAccs := make([]normalEquations, utils.ParallelFactor)
		err := utils.GroupWorkParallel(
			context.Background(),
			len(corres),
			func(numGroups int) {},
			func(groupNum, groupSize, from, to int) (utils.MemberWorkFunc, utils.GroupWorkDoneFunc) {
				return func(memberNum, workNum int) {
					groupAccs[groupNum].add(corres[workNum], srcPts, tgtPts, pose, mu)
				}, nil
			},
		)
		if err == nil {
			for i := range groupAccs {
				acc.merge(&groupAccs[i])
			}
		} else {
			acc = normalEquations{}
			for _, c := range corres {
				acc.add(c, srcPts, tgtPts, pose, mu)
			}
		}
	}

	jtj := mat.NewSymDense(6, nil)
	jtr := mat.NewVecDense(6, nil)
	idx := 0
	for i := 0; i < 6; i++ {
		for j := i; j < 6; j++ {
			jtj.SetSym(i, j, acc.jtj[idx])
			idx++
		}
		jtr.SetVec(i, acc.jtr[i])
	}
	return jtj, jtr
}

// normalEquations is a 6x6 upper-triangle plus right-hand side accumulator.
type normalEquations struct {
	jtj [21]float64
	jtr [6]float64
}

func (ne *normalEquations) add(c Correspondence, srcPts, tgtPts []r3.Vector, pose spatialmath.Pose, mu float64) {
	p := spatialmath.TransformPoint(pose, srcPts[c.SourceIndex])
	q := tgtPts[c.TargetIndex]
	r := p.Sub(q)

	w := utils.Square(mu / (mu + r.Norm2()))

	// rows of J for residual components x, y, z
	rows := [3][6]float64{
		{0, p.Z, -p.Y, 1, 0, 0},
		{-p.Z, 0, p.X, 0, 1, 0},
		{p.Y, -p.X, 0, 0, 0, 1},
	}
	res := [3]float64{r.X, r.Y, r.Z}
	for k := 0; k < 3; k++ {
		idx := 0
		for i := 0; i < 6; i++ {
			for j := i; j < 6; j++ {
				ne.jtj[idx] += w * rows[k][i] * rows[k][j]
				idx++
			}
			ne.jtr[i] -= w * rows[k][i] * res[k]
		}
	}
}

func (ne *normalEquations) merge(other *normalEquations) {
	for i := range ne.jtj {
		ne.jtj[i] += other.jtj[i]
	}
	for i := range ne.jtr {
		ne.jtr[i] += other.jtr[i]
	}
}

// classifyInliers marks every candidate correspondence whose residual under
// the final pose is below threshold as an inlier and summarizes the result.
func classifyInliers(
	candidates CorrespondenceSet,
	srcPts, tgtPts []r3.Vector,
	pose spatialmath.Pose,
	threshold float64,
) *RegistrationResult {
	inliers := make(CorrespondenceSet, 0, len(candidates))
	sumSq := 0.0
	for _, c := range candidates {
		d := spatialmath.TransformPoint(pose, srcPts[c.SourceIndex]).Sub(tgtPts[c.TargetIndex]).Norm()
		if d < threshold {
			inliers = append(inliers, c)
			sumSq += d * d
		}
	}
	result := &RegistrationResult{
		Transformation:  pose,
		Correspondences: inliers,
	}
	if len(candidates) > 0 {
		result.Fitness = float64(len(inliers)) / float64(len(candidates))
	}
	if len(inliers) > 0 {
		result.InlierRMSE = math.Sqrt(sumSq / float64(len(inliers)))
	}
	return result
}

func vecFinite(v *mat.VecDense) bool {
	for i := 0; i < v.Len(); i++ {
		x := v.AtVec(i)
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}
