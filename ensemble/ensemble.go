// Package ensemble assembles per-column state and observation-space
// quantities across ensemble members, ready for the LETKF kernel.
package ensemble

import (
	"fmt"

	"github.com/spatialmodel/chemda/fieldstore"
	"github.com/spatialmodel/chemda/grid"
	"github.com/spatialmodel/chemda/statevector"
)

// AssemblyError reports a failure combining members into a column's
// state or observation space: a shape mismatch between members, or an
// empty ensemble.
type AssemblyError struct {
	Op     string
	Reason string
}

func (e *AssemblyError) Error() string {
	return fmt.Sprintf("ensemble: %s: %s", e.Op, e.Reason)
}

// Member pairs one ensemble member's resident fields with its
// flattened state vector, both built from the same Layout.
type Member struct {
	FieldStore *fieldstore.FieldStore
	State      *statevector.StateVector
}

// Assembler combines a set of members into the per-column quantities
// the LETKF kernel needs.
type Assembler struct {
	Layout   *statevector.Layout
	Members  []*Member
	RadiusKm float64
}

// Combine returns X in R^{n_patch x k}: each column is one member's
// state vector restricted to the localization patch around (latIdx,
// lonIdx). Rows are ordered as LocalizedIndices orders them; Patch is
// returned alongside since callers need it (e.g. to find the center
// column via statevector.Layout.ColumnWithinPatch).
func (a *Assembler) Combine(latIdx, lonIdx int) (x [][]float64, patch *grid.Patch, err error) {
	if len(a.Members) == 0 {
		return nil, nil, &AssemblyError{Op: "Combine", Reason: "no ensemble members"}
	}
	positions, patch, err := a.Layout.LocalizedIndices(latIdx, lonIdx, a.RadiusKm)
	if err != nil {
		return nil, nil, err
	}
	n := len(positions)
	k := len(a.Members)
	x = make([][]float64, n)
	for i, pos := range positions {
		x[i] = make([]float64, k)
		for m, member := range a.Members {
			if pos < 0 || pos >= len(member.State.Values) {
				return nil, nil, &AssemblyError{Op: "Combine", Reason: fmt.Sprintf("position %d out of range for member %d's state vector (len %d)", pos, m, len(member.State.Values))}
			}
			x[i][m] = member.State.Values[pos]
		}
	}
	return x, patch, nil
}

// MeanAndPert returns xbar (the row-wise mean) and Xpert = X - xbar*1^T.
func MeanAndPert(x [][]float64) (xbar []float64, xpert [][]float64) {
	n := len(x)
	xbar = make([]float64, n)
	xpert = make([][]float64, n)
	for i, row := range x {
		k := len(row)
		var sum float64
		for _, v := range row {
			sum += v
		}
		mean := sum / float64(k)
		xbar[i] = mean
		xpert[i] = make([]float64, k)
		for m, v := range row {
			xpert[i][m] = v - mean
		}
	}
	return xbar, xpert
}
