package obsop

import (
	"fmt"

	"github.com/ctessum/sparse"
)

// Physical constants used by SatelliteColumnOperator's number-density
// conversion, matching the retrieval toolkit's own constants exactly.
const (
	avogadro    = 6.0221408e23   // molec/mol
	gasConstant = 8.31446261815324 // J/(mol*K)
)

// SatelliteFootprint is one satellite observation's geometry and
// retrieval auxiliary data: which grid cell it overlays, the model
// levels it needs (mid-level pressure/temperature/box height), the
// tropopause cutoff, and the retrieval's scattering-weight profile.
type SatelliteFootprint struct {
	LatIdx, LonIdx int

	// TropLevel is the number of model levels, counting from the
	// surface, that lie below the tropopause; levels at or above this
	// index are masked out of the column sum.
	TropLevel int

	// PressureMid, TemperatureK, and BoxHeightM are per-level model
	// profiles at (LatIdx, LonIdx): mid-level pressure in Pa,
	// temperature in K, and box height in meters.
	PressureMid  []float64
	TemperatureK []float64
	BoxHeightM   []float64

	// SWPressure/SWWeight are the retrieval's scattering-weight curve:
	// weight as a function of pressure (Pa), to be linearly
	// interpolated onto PressureMid with zero-fill outside its range.
	SWPressure []float64
	SWWeight   []float64

	// ObsAMF and ObsVCD reconstruct the retrieval's own SCD
	// (obsAMF*obsVCD) for the caller to compare modelSCD against; this
	// operator does not use them itself.
	ObsAMF, ObsVCD float64
}

// SatelliteColumnOperator evaluates a column retrieval with an
// averaging kernel (e.g. OMI-style NO2 slant column density) at a
// fixed set of footprints.
type SatelliteColumnOperator struct {
	Footprints []SatelliteFootprint
}

func (*SatelliteColumnOperator) Name() string { return "SatelliteColumn" }

func (op *SatelliteColumnOperator) H(conc3D *sparse.DenseArray, latInds, lonInds []int) ([]float64, error) {
	var allowed map[[2]int]bool
	if latInds != nil {
		allowed = make(map[[2]int]bool, len(latInds))
		for i := range latInds {
			allowed[[2]int{latInds[i], lonInds[i]}] = true
		}
	}

	var out []float64
	for _, fp := range op.Footprints {
		if allowed != nil && !allowed[[2]int{fp.LatIdx, fp.LonIdx}] {
			continue
		}
		scd, err := evalFootprint(conc3D, fp)
		if err != nil {
			return nil, err
		}
		out = append(out, scd)
	}
	return out, nil
}

// evalFootprint implements the averaging-kernel pipeline: mask above
// the tropopause, convert dry mixing ratio to number density, build
// the partial column, interpolate scattering weights onto model
// pressure levels, and sum to VCD/SCD.
func evalFootprint(conc3D *sparse.DenseArray, fp SatelliteFootprint) (float64, error) {
	shape := conc3D.Shape
	if len(shape) != 3 {
		return 0, &OperatorError{Operator: "SatelliteColumn", Reason: fmt.Sprintf("expected a 3-D [lev,lat,lon] field, got shape %v", shape)}
	}
	nlev := shape[0]
	if fp.TropLevel < 0 || fp.TropLevel > nlev {
		return 0, &OperatorError{Operator: "SatelliteColumn", Reason: fmt.Sprintf("tropopause level %d out of range [0,%d]", fp.TropLevel, nlev)}
	}
	if len(fp.PressureMid) != nlev || len(fp.TemperatureK) != nlev || len(fp.BoxHeightM) != nlev {
		return 0, &OperatorError{Operator: "SatelliteColumn", Reason: "footprint profile length does not match the field's level count"}
	}

	var vcd, scd float64
	for lev := 0; lev < fp.TropLevel; lev++ {
		x := conc3D.Elements[flatIndex(shape, lev, fp.LatIdx, fp.LonIdx)]
		nd := (x * avogadro) / (gasConstant * fp.TemperatureK[lev]) * fp.PressureMid[lev] * 1e-6
		pc := nd * fp.BoxHeightM[lev] * 1e2 // m -> cm
		sw := interpZeroExtrap(fp.SWPressure, fp.SWWeight, fp.PressureMid[lev])
		vcd += pc
		scd += pc * sw
	}
	if vcd == 0 {
		return 0, &OperatorError{Operator: "SatelliteColumn", Reason: "zero vertical column density; cannot form an AMF"}
	}
	return scd, nil
}

// interpZeroExtrap linearly interpolates y(x) at xq, returning 0 for
// xq outside [min(x),max(x)] (matching the retrieval toolkit's
// bounds_error=False, fill_value=0 convention). x need not be sorted
// ascending; it is used as given, searching both directions.
func interpZeroExtrap(x, y []float64, xq float64) float64 {
	n := len(x)
	if n == 0 {
		return 0
	}
	if n == 1 {
		if x[0] == xq {
			return y[0]
		}
		return 0
	}
	ascending := x[n-1] > x[0]

	inRange := func(v float64) bool {
		if ascending {
			return v >= x[0] && v <= x[n-1]
		}
		return v <= x[0] && v >= x[n-1]
	}
	if !inRange(xq) {
		return 0
	}
	for i := 0; i < n-1; i++ {
		lo, hi := x[i], x[i+1]
		within := (ascending && xq >= lo && xq <= hi) || (!ascending && xq <= lo && xq >= hi)
		if !within {
			continue
		}
		if hi == lo {
			return y[i]
		}
		frac := (xq - lo) / (hi - lo)
		return y[i] + frac*(y[i+1]-y[i])
	}
	return 0
}
