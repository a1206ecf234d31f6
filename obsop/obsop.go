// Package obsop maps a model concentration field into observation
// space: surface/column sums of a gridded field, or a satellite
// column retrieval applying an averaging kernel.
package obsop

import (
	"fmt"

	"github.com/ctessum/sparse"
)

// OperatorError reports a malformed operator evaluation: a shape
// mismatch between the field and the requested indices, or an
// unresolvable satellite-column configuration.
type OperatorError struct {
	Operator string
	Reason   string
}

func (e *OperatorError) Error() string {
	return fmt.Sprintf("obsop: %s: %s", e.Operator, e.Reason)
}

// Operator maps a member's [lev,lat,lon] concentration field,
// restricted to a set of horizontal cells, into observation-space
// values at those cells.
type Operator interface {
	// H evaluates the operator at the given horizontal indices (all
	// levels of conc3D are visible; the operator picks which it needs).
	// If latInds/lonInds are nil, SurfaceOperator and SumOperator
	// flatten the entire horizontal grid instead of a patch.
	H(conc3D *sparse.DenseArray, latInds, lonInds []int) ([]float64, error)

	// Name identifies the operator kind, e.g. for error messages and
	// config round-tripping.
	Name() string
}

// flatIndex converts a [lev,lat,lon]-shaped DenseArray's (lev,lat,lon)
// triple into an index into its flat Elements slice.
func flatIndex(shape []int, lev, lat, lon int) int {
	return (lev*shape[1]+lat)*shape[2] + lon
}

func allCells(nlat, nlon int) (latInds, lonInds []int) {
	latInds = make([]int, 0, nlat*nlon)
	lonInds = make([]int, 0, nlat*nlon)
	for i := 0; i < nlat; i++ {
		for j := 0; j < nlon; j++ {
			latInds = append(latInds, i)
			lonInds = append(lonInds, j)
		}
	}
	return latInds, lonInds
}

// SurfaceOperator observes the bottom model level.
type SurfaceOperator struct{}

func (SurfaceOperator) Name() string { return "Surface" }

func (SurfaceOperator) H(conc3D *sparse.DenseArray, latInds, lonInds []int) ([]float64, error) {
	shape := conc3D.Shape
	if len(shape) != 3 {
		return nil, &OperatorError{Operator: "Surface", Reason: fmt.Sprintf("expected a 3-D [lev,lat,lon] field, got shape %v", shape)}
	}
	if latInds == nil {
		latInds, lonInds = allCells(shape[1], shape[2])
	}
	if len(latInds) != len(lonInds) {
		return nil, &OperatorError{Operator: "Surface", Reason: "latInds/lonInds length mismatch"}
	}
	out := make([]float64, len(latInds))
	for i := range latInds {
		out[i] = conc3D.Elements[flatIndex(shape, 0, latInds[i], lonInds[i])]
	}
	return out, nil
}

// SumOperator sums over all vertical levels at each cell.
type SumOperator struct{}

func (SumOperator) Name() string { return "Sum" }

func (SumOperator) H(conc3D *sparse.DenseArray, latInds, lonInds []int) ([]float64, error) {
	shape := conc3D.Shape
	if len(shape) != 3 {
		return nil, &OperatorError{Operator: "Sum", Reason: fmt.Sprintf("expected a 3-D [lev,lat,lon] field, got shape %v", shape)}
	}
	if latInds == nil {
		latInds, lonInds = allCells(shape[1], shape[2])
	}
	if len(latInds) != len(lonInds) {
		return nil, &OperatorError{Operator: "Sum", Reason: "latInds/lonInds length mismatch"}
	}
	out := make([]float64, len(latInds))
	for i := range latInds {
		var sum float64
		for lev := 0; lev < shape[0]; lev++ {
			sum += conc3D.Elements[flatIndex(shape, lev, latInds[i], lonInds[i])]
		}
		out[i] = sum
	}
	return out, nil
}

// ensembleMember is a [lev,lat,lon]-shaped field for one member; Stack
// of these is the conc4D[lev,lat,lon,member] the spec describes,
// represented here as a per-member slice rather than a single 4-D
// array, since each member's FieldStore already owns its own
// DenseArray.
type ensembleMember = *sparse.DenseArray

// EnsembleObsMeanAndPert evaluates op at (latInds, lonInds) for every
// member, stacking the results into Y ∈ R^{p x k}; it returns the
// per-row mean ybar and the perturbation matrix Ypert = Y - ybar*1^T,
// both stored row-major as [p][k]float64.
func EnsembleObsMeanAndPert(op Operator, members []ensembleMember, latInds, lonInds []int) (ybar []float64, ypert [][]float64, err error) {
	k := len(members)
	if k == 0 {
		return nil, nil, &OperatorError{Operator: op.Name(), Reason: "no ensemble members supplied"}
	}
	y := make([][]float64, k)
	for m, conc := range members {
		vals, err := op.H(conc, latInds, lonInds)
		if err != nil {
			return nil, nil, err
		}
		y[m] = vals
	}
	p := len(y[0])
	for m := range y {
		if len(y[m]) != p {
			return nil, nil, &OperatorError{Operator: op.Name(), Reason: "members produced differently-sized observation vectors"}
		}
	}

	ybar = make([]float64, p)
	for i := 0; i < p; i++ {
		var sum float64
		for m := 0; m < k; m++ {
			sum += y[m][i]
		}
		ybar[i] = sum / float64(k)
	}

	ypert = make([][]float64, p)
	for i := 0; i < p; i++ {
		ypert[i] = make([]float64, k)
		for m := 0; m < k; m++ {
			ypert[i][m] = y[m][i] - ybar[i]
		}
	}
	return ybar, ypert, nil
}

// ObsDiff returns yObs - ybar, elementwise; yObs and ybar must already
// be restricted to the same patch/ordering.
func ObsDiff(yObs, ybar []float64) ([]float64, error) {
	if len(yObs) != len(ybar) {
		return nil, &OperatorError{Operator: "ObsDiff", Reason: fmt.Sprintf("length mismatch: %d observed vs %d background", len(yObs), len(ybar))}
	}
	d := make([]float64, len(yObs))
	for i := range yObs {
		d[i] = yObs[i] - ybar[i]
	}
	return d, nil
}
