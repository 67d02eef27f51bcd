package registration

import (
	"context"

	"go.viam.com/cloudreg/utils"
)

// Correspondence pairs a source point index with a target point index.
type Correspondence struct {
	SourceIndex int
	TargetIndex int
}

// CorrespondenceSet is an ordered list of correspondences.
type CorrespondenceSet []Correspondence

// Matching only pays for goroutines past this many descriptors.
const descriptorsBeforeParallelization = 512

// matchFeatures pairs every target descriptor with its nearest source
// descriptor by squared Euclidean distance. With mutualFilter, only reciprocal
// pairs survive: the source descriptor's own nearest target must close the
// loop. The result is ordered by target index and deterministic.
func matchFeatures(source, target *Feature, mutualFilter bool) CorrespondenceSet {
	nearestSource := nearestRows(target, source)
	var nearestTarget []int
	if mutualFilter {
		nearestTarget = nearestRows(source, target)
	}

	matches := make(CorrespondenceSet, 0, target.Num())
	for j := 0; j < target.Num(); j++ {
		i := nearestSource[j]
		if mutualFilter && nearestTarget[i] != j {
			continue
		}
		matches = append(matches, Correspondence{SourceIndex: i, TargetIndex: j})
	}
	return matches
}

// nearestRows returns, for each descriptor of from, the index of its nearest
// descriptor in to.
func nearestRows(from, to *Feature) []int {
	nearest := make([]int, from.Num())
	if from.Num() < descriptorsBeforeParallelization {
		for i := range nearest {
			nearest[i] = nearestRow(from.Vector(i), to)
		}
		return nearest
	}
	// each member writes only its own index, so the merge is free
	err := utils.GroupWorkParallel(
		context.Background(),
		from.Num(),
		func(numGroups int) {},
		func(groupNum, groupSize, fromIdx, toIdx int) (utils.MemberWorkFunc, utils.GroupWorkDoneFunc) {
			return func(memberNum, workNum int) {
				nearest[workNum] = nearestRow(from.Vector(workNum), to)
			}, nil
		},
	)
	if err != nil {
		for i := range nearest {
			nearest[i] = nearestRow(from.Vector(i), to)
		}
	}
	return nearest
}

func nearestRow(query []float32, to *Feature) int {
	best := 0
	bestDist := float32(0)
	for i := 0; i < to.Num(); i++ {
		d := squaredDistance(query, to.Vector(i))
		if i == 0 || d < bestDist {
			best = i
			bestDist = d
		}
	}
	return best
}

func squaredDistance(a, b []float32) float32 {
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}
