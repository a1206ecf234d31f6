package obsop

import (
	"math"
	"testing"

	"github.com/ctessum/sparse"
)

func fieldWithRamp(nlev, nlat, nlon int) *sparse.DenseArray {
	arr := sparse.ZerosDense(nlev, nlat, nlon)
	for i := range arr.Elements {
		arr.Elements[i] = float64(i)
	}
	return arr
}

func TestSurfaceOperatorWholeGrid(t *testing.T) {
	arr := fieldWithRamp(2, 3, 4)
	vals, err := SurfaceOperator{}.H(arr, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(vals) != 12 {
		t.Fatalf("len(vals) = %d, want 12", len(vals))
	}
	for i, v := range vals {
		if v != float64(i) {
			t.Fatalf("vals[%d] = %v, want %v (bottom level only)", i, v, float64(i))
		}
	}
}

func TestSurfaceOperatorPatch(t *testing.T) {
	arr := fieldWithRamp(2, 3, 4)
	vals, err := SurfaceOperator{}.H(arr, []int{1}, []int{2})
	if err != nil {
		t.Fatal(err)
	}
	want := arr.Elements[flatIndex(arr.Shape, 0, 1, 2)]
	if len(vals) != 1 || vals[0] != want {
		t.Fatalf("vals = %v, want [%v]", vals, want)
	}
}

func TestSumOperator(t *testing.T) {
	arr := fieldWithRamp(2, 3, 4)
	vals, err := SumOperator{}.H(arr, []int{1}, []int{2})
	if err != nil {
		t.Fatal(err)
	}
	want := arr.Elements[flatIndex(arr.Shape, 0, 1, 2)] + arr.Elements[flatIndex(arr.Shape, 1, 1, 2)]
	if len(vals) != 1 || vals[0] != want {
		t.Fatalf("vals = %v, want [%v]", vals, want)
	}
}

func TestEnsembleObsMeanAndPert(t *testing.T) {
	members := []ensembleMember{
		fieldWithRamp(1, 2, 2),
		fieldWithRamp(1, 2, 2),
	}
	for i := range members[1].Elements {
		members[1].Elements[i] *= 3
	}
	ybar, ypert, err := EnsembleObsMeanAndPert(SurfaceOperator{}, members, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	for i := range ybar {
		want := (members[0].Elements[i] + members[1].Elements[i]) / 2
		if ybar[i] != want {
			t.Fatalf("ybar[%d] = %v, want %v", i, ybar[i], want)
		}
		if ypert[i][0]+ypert[i][1] > 1e-9 || ypert[i][0]+ypert[i][1] < -1e-9 {
			t.Fatalf("perturbations at row %d do not sum to zero: %v", i, ypert[i])
		}
	}
}

func TestObsDiffLengthMismatch(t *testing.T) {
	_, err := ObsDiff([]float64{1, 2}, []float64{1})
	if err == nil {
		t.Fatal("expected a length-mismatch OperatorError")
	}
}

func TestInterpZeroExtrapAscending(t *testing.T) {
	x := []float64{100, 200, 300}
	y := []float64{1, 2, 3}
	if got := interpZeroExtrap(x, y, 150); math.Abs(got-1.5) > 1e-9 {
		t.Fatalf("interp(150) = %v, want 1.5", got)
	}
	if got := interpZeroExtrap(x, y, 50); got != 0 {
		t.Fatalf("interp(50) = %v, want 0 (below range)", got)
	}
	if got := interpZeroExtrap(x, y, 400); got != 0 {
		t.Fatalf("interp(400) = %v, want 0 (above range)", got)
	}
}

func TestInterpZeroExtrapDescending(t *testing.T) {
	x := []float64{300, 200, 100}
	y := []float64{3, 2, 1}
	if got := interpZeroExtrap(x, y, 150); math.Abs(got-1.5) > 1e-9 {
		t.Fatalf("interp(150) = %v, want 1.5", got)
	}
	if got := interpZeroExtrap(x, y, 400); got != 0 {
		t.Fatalf("interp(400) = %v, want 0 (above range)", got)
	}
}

func TestSatelliteColumnOperatorBasic(t *testing.T) {
	// A single-footprint column of constant mixing ratio 2e-9 with a
	// scattering weight of exactly 1.0 at every level (so modelSCD
	// equals modelVCD) must give one positive modelSCD.
	nlev := 3
	arr := sparse.ZerosDense(nlev, 1, 1)
	for i := range arr.Elements {
		arr.Elements[i] = 2e-9
	}
	fp := SatelliteFootprint{
		LatIdx: 0, LonIdx: 0,
		TropLevel:    nlev,
		PressureMid:  []float64{95000, 80000, 60000},
		TemperatureK: []float64{290, 280, 270},
		BoxHeightM:   []float64{100, 150, 200},
		SWPressure:   []float64{100000, 50000},
		SWWeight:     []float64{1, 1},
	}
	op := &SatelliteColumnOperator{Footprints: []SatelliteFootprint{fp}}
	vals, err := op.H(arr, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(vals) != 1 {
		t.Fatalf("len(vals) = %d, want 1", len(vals))
	}
	if vals[0] <= 0 {
		t.Fatalf("modelSCD = %v, want a positive value", vals[0])
	}
}

func TestSatelliteColumnOperatorMasksAboveTropopause(t *testing.T) {
	nlev := 3
	full := sparse.ZerosDense(nlev, 1, 1)
	for i := range full.Elements {
		full.Elements[i] = 2e-9
	}
	baseFp := SatelliteFootprint{
		LatIdx: 0, LonIdx: 0,
		PressureMid:  []float64{95000, 80000, 60000},
		TemperatureK: []float64{290, 280, 270},
		BoxHeightM:   []float64{100, 150, 200},
		SWPressure:   []float64{100000, 50000},
		SWWeight:     []float64{1, 1},
	}

	fpAll := baseFp
	fpAll.TropLevel = nlev
	opAll := &SatelliteColumnOperator{Footprints: []SatelliteFootprint{fpAll}}
	vAll, err := opAll.H(full, nil, nil)
	if err != nil {
		t.Fatal(err)
	}

	fpTrunc := baseFp
	fpTrunc.TropLevel = 1
	opTrunc := &SatelliteColumnOperator{Footprints: []SatelliteFootprint{fpTrunc}}
	vTrunc, err := opTrunc.H(full, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if vTrunc[0] >= vAll[0] {
		t.Fatalf("masking levels above the tropopause should shrink the column: got %v (truncated) vs %v (full)", vTrunc[0], vAll[0])
	}
}

func TestSatelliteColumnOperatorFiltersByPatch(t *testing.T) {
	arr := sparse.ZerosDense(1, 2, 2)
	for i := range arr.Elements {
		arr.Elements[i] = 1e-9
	}
	mk := func(lat, lon int) SatelliteFootprint {
		return SatelliteFootprint{
			LatIdx: lat, LonIdx: lon, TropLevel: 1,
			PressureMid: []float64{90000}, TemperatureK: []float64{288}, BoxHeightM: []float64{100},
			SWPressure: []float64{100000, 50000}, SWWeight: []float64{1, 1},
		}
	}
	op := &SatelliteColumnOperator{Footprints: []SatelliteFootprint{mk(0, 0), mk(1, 1)}}
	vals, err := op.H(arr, []int{0}, []int{0})
	if err != nil {
		t.Fatal(err)
	}
	if len(vals) != 1 {
		t.Fatalf("len(vals) = %d, want 1 (only the footprint inside the patch)", len(vals))
	}
}
