package registration

import (
	"math"

	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// Feature holds one fixed-dimension descriptor vector per point of a cloud,
// stored as a float32 matrix of shape (num, dim). Row i describes point i of
// the cloud the feature was computed on.
type Feature struct {
	data *tensor.Dense
	num  int
	dim  int
}

// NewFeature returns a zeroed feature matrix for num points of dim-dimensional descriptors.
func NewFeature(num, dim int) (*Feature, error) {
	if num <= 0 || dim <= 0 {
		return nil, errors.Errorf("feature shape must be positive, got (%d, %d)", num, dim)
	}
	return &Feature{
		data: tensor.New(tensor.WithShape(num, dim), tensor.Of(tensor.Float32)),
		num:  num,
		dim:  dim,
	}, nil
}

// FeatureFromSlice builds a Feature from per-point descriptor vectors, which
// must all have the same nonzero length and contain no NaN/Inf entries.
func FeatureFromSlice(vecs [][]float32) (*Feature, error) {
	if len(vecs) == 0 {
		return nil, errors.New("no descriptor vectors given")
	}
	f, err := NewFeature(len(vecs), len(vecs[0]))
	if err != nil {
		return nil, err
	}
	for i, v := range vecs {
		if err := f.SetVector(i, v); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// Num returns how many descriptor vectors the feature holds.
func (f *Feature) Num() int {
	return f.num
}

// Dim returns the dimension of each descriptor vector.
func (f *Feature) Dim() int {
	return f.dim
}

// Vector returns the descriptor of point i. The slice aliases the underlying storage.
func (f *Feature) Vector(i int) []float32 {
	backing := f.data.Data().([]float32)
	return backing[i*f.dim : (i+1)*f.dim]
}

// SetVector overwrites the descriptor of point i.
func (f *Feature) SetVector(i int, v []float32) error {
	if len(v) != f.dim {
		return errors.Errorf("descriptor %d has dimension %d, want %d", i, len(v), f.dim)
	}
	for j, x := range v {
		if math.IsNaN(float64(x)) || math.IsInf(float64(x), 0) {
			return errors.Errorf("descriptor %d component %d is not finite", i, j)
		}
	}
	copy(f.Vector(i), v)
	return nil
}
