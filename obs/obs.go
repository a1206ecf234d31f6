// Package obs holds the observation records an assimilation cycle
// compares the ensemble against: per-species values, locations, and
// error covariance.
package obs

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// ObservationError reports malformed observation input: mismatched
// vector lengths or non-finite values that should have been filtered
// out before construction.
type ObservationError struct {
	Species string
	Reason  string
}

func (e *ObservationError) Error() string {
	return fmt.Sprintf("obs: species %s: %s", e.Species, e.Reason)
}

// Set is one species' observation record: values, their locations,
// and the error covariance between them.
type Set struct {
	Species  string
	Y        []float64
	Lat, Lon []float64
	R        *mat.SymDense
}

func checkLengths(species string, y, lat, lon []float64) error {
	if len(y) != len(lat) || len(y) != len(lon) {
		return &ObservationError{Species: species, Reason: fmt.Sprintf("value/lat/lon length mismatch: %d/%d/%d", len(y), len(lat), len(lon))}
	}
	for i, v := range y {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return &ObservationError{Species: species, Reason: fmt.Sprintf("non-finite value at index %d", i)}
		}
	}
	return nil
}

// NewDiag builds a Set whose error covariance is diagonal, with
// diagonal entries y[i]*sigmaRel — the same "value times relative
// error fraction" convention the reference toolkit uses (not a
// squared variance; matched here for exact parity).
func NewDiag(species string, y, lat, lon []float64, sigmaRel float64) (*Set, error) {
	if err := checkLengths(species, y, lat, lon); err != nil {
		return nil, err
	}
	r := mat.NewSymDense(len(y), nil)
	for i, v := range y {
		r.SetSym(i, i, v*sigmaRel)
	}
	return &Set{Species: species, Y: y, Lat: lat, Lon: lon, R: r}, nil
}

// NewDense builds a Set with a caller-supplied dense error covariance
// matrix, e.g. loaded from an OBS_ERROR_MATRICES file.
func NewDense(species string, y, lat, lon []float64, r *mat.SymDense) (*Set, error) {
	if err := checkLengths(species, y, lat, lon); err != nil {
		return nil, err
	}
	if n, _ := r.Dims(); n != len(y) {
		return nil, &ObservationError{Species: species, Reason: fmt.Sprintf("covariance is %dx%d, want %dx%d", n, n, len(y), len(y))}
	}
	return &Set{Species: species, Y: y, Lat: lat, Lon: lon, R: r}, nil
}

// Subset extracts the observations at the given indices, including the
// corresponding rows/columns of R, preserving index order.
func (s *Set) Subset(indices []int) *Set {
	n := len(indices)
	y := make([]float64, n)
	lat := make([]float64, n)
	lon := make([]float64, n)
	for i, idx := range indices {
		y[i] = s.Y[idx]
		lat[i] = s.Lat[idx]
		lon[i] = s.Lon[idx]
	}
	if n == 0 {
		// mat.NewSymDense rejects a zero dimension; an empty subset gets
		// an empty 0x0 covariance instead.
		return &Set{Species: s.Species, Y: y, Lat: lat, Lon: lon, R: &mat.SymDense{}}
	}
	r := mat.NewSymDense(n, nil)
	for i, gi := range indices {
		for j, gj := range indices {
			if j < i {
				continue
			}
			r.SetSym(i, j, s.R.At(gi, gj))
		}
	}
	return &Set{Species: s.Species, Y: y, Lat: lat, Lon: lon, R: r}
}
