package letkf

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func almostEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func TestNoObservationsEdgeCase(t *testing.T) {
	xbar := []float64{1, 2, 3}
	xpert := [][]float64{{0.1, -0.1}, {0.2, -0.2}, {0.3, -0.3}}
	res, err := Analyze(xbar, xpert, nil, nil, nil, 0, 2, nil)
	if err != nil {
		t.Fatal(err)
	}
	k, _ := res.W.Dims()
	for i := 0; i < k; i++ {
		for j := 0; j < k; j++ {
			want := 0.0
			if i == j {
				want = 1.0
			}
			if res.W.At(i, j) != want {
				t.Fatalf("W[%d,%d] = %v, want %v (identity when p=0)", i, j, res.W.At(i, j), want)
			}
		}
	}
	for i := range xbar {
		for m := range xpert[i] {
			want := xbar[i] + xpert[i][m]
			if res.Xa[i][m] != want {
				t.Fatalf("Xa[%d][%d] = %v, want %v (analysis == background when p=0)", i, m, res.Xa[i][m], want)
			}
		}
	}
}

func TestScalarUpdateK2(t *testing.T) {
	// One observation, k=2 members, Ypert = [1,-1], R=1, d=1 (y_obs=1,
	// ybar_bg=0). Hand-derived: C = [[1],[-1]] (k x p), CY = C*Ypert =
	// [[1,-1],[-1,1]], Ptilde = (I2 + CY)^-1 = (1/3)[[2,1],[1,2]],
	// wbar = Ptilde*C*d = (1/3)[1,-1]^T.
	xbar := []float64{0}
	xpert := [][]float64{{1, -1}}
	ypert := [][]float64{{1, -1}}
	d := []float64{1}
	r := mat.NewSymDense(1, []float64{1})

	res, err := Analyze(xbar, xpert, ypert, d, r, 0, 2, nil)
	if err != nil {
		t.Fatal(err)
	}
	want := []float64{1.0 / 3.0, -1.0 / 3.0}
	for i, w := range want {
		if !almostEqual(res.Wbar[i], w, 1e-9) {
			t.Fatalf("Wbar[%d] = %v, want %v", i, res.Wbar[i], w)
		}
	}
}

func TestPerfectObservationZeroInnovation(t *testing.T) {
	xbar := []float64{5}
	xpert := [][]float64{{1, -1, 0.5, -0.5}}
	ypert := [][]float64{{1, -1, 0.5, -0.5}}
	d := []float64{0}
	r := mat.NewSymDense(1, []float64{1})

	res, err := Analyze(xbar, xpert, ypert, d, r, 0, 4, nil)
	if err != nil {
		t.Fatal(err)
	}
	var meanXa float64
	for _, v := range res.Xa[0] {
		meanXa += v
	}
	meanXa /= 4
	if !almostEqual(meanXa, xbar[0], 1e-9) {
		t.Fatalf("analysis mean = %v, want background mean %v when d=0", meanXa, xbar[0])
	}
}

func TestInflationIncreasesSpread(t *testing.T) {
	xbar := []float64{0}
	xpert := [][]float64{{1, -1, 0.5, -0.5}}
	ypert := [][]float64{{0, 0, 0, 0}}
	d := []float64{0}
	r := mat.NewSymDense(1, []float64{1e6}) // huge R => negligible innovation

	base, err := Analyze(xbar, xpert, ypert, d, r, 0, 4, nil)
	if err != nil {
		t.Fatal(err)
	}
	inflated, err := Analyze(xbar, xpert, ypert, d, r, 0.1, 4, nil)
	if err != nil {
		t.Fatal(err)
	}

	spread := func(xa [][]float64) float64 {
		var sumSq float64
		for _, v := range xa[0] {
			sumSq += v * v
		}
		return math.Sqrt(sumSq)
	}
	baseSpread := spread(base.Xa)
	inflatedSpread := spread(inflated.Xa)
	if inflatedSpread < baseSpread*math.Sqrt(1.1)-1e-3 {
		t.Fatalf("inflated spread %v should be at least baseSpread*sqrt(1.1)=%v", inflatedSpread, baseSpread*math.Sqrt(1.1))
	}
}

func TestDeterminism(t *testing.T) {
	xbar := []float64{1, 2}
	xpert := [][]float64{{1, -1, 0.3}, {2, -2, 0.1}}
	ypert := [][]float64{{1, -1, 0.3}, {0.5, 0.5, -1}}
	d := []float64{0.2, -0.1}
	r := mat.NewSymDense(2, []float64{1, 0.1, 0.1, 1})

	res1, err := Analyze(xbar, xpert, ypert, d, r, 0.05, 3, nil)
	if err != nil {
		t.Fatal(err)
	}
	res2, err := Analyze(xbar, xpert, ypert, d, r, 0.05, 3, nil)
	if err != nil {
		t.Fatal(err)
	}
	for i := range res1.Xa {
		for m := range res1.Xa[i] {
			if res1.Xa[i][m] != res2.Xa[i][m] {
				t.Fatalf("non-deterministic analysis at [%d][%d]: %v vs %v", i, m, res1.Xa[i][m], res2.Xa[i][m])
			}
		}
	}
}

func TestNonSPDFallbackCounter(t *testing.T) {
	xbar := []float64{0}
	xpert := [][]float64{{1, -1}}
	ypert := [][]float64{{1, -1}, {1, -1}}
	d := []float64{0.1, 0.1}
	// Not positive definite: eigenvalues are 3 and -1.
	r := mat.NewSymDense(2, []float64{1, 2, 2, 1})

	events := &NumericEvents{}
	_, err := Analyze(xbar, xpert, ypert, d, r, 0, 2, events)
	if err != nil {
		t.Fatal(err)
	}
	if events.NonSPDFallbacks() == 0 {
		t.Fatal("expected at least one non-SPD fallback to be recorded")
	}
}

func TestAnalyzeDimensionMismatch(t *testing.T) {
	xbar := []float64{0, 0}
	xpert := [][]float64{{1, 2}, {1, 2, 3}}
	if _, err := Analyze(xbar, xpert, nil, nil, nil, 0, 2, nil); err == nil {
		t.Fatal("expected a dimension-mismatch error")
	}
}
