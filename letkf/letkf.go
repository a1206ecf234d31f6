// Package letkf implements the Local Ensemble Transform Kalman Filter
// analysis step (Hunt, Kostelich & Szunyogh 2007) with multiplicative
// prior covariance inflation, evaluated one localization column at a
// time.
package letkf

import (
	"fmt"
	"sync/atomic"

	"gonum.org/v1/gonum/mat"
)

// NumericEvents counts numerically exceptional paths taken during
// analysis, so a caller can log/alert without the kernel itself
// depending on a logging library. Safe for concurrent use across
// worker goroutines.
type NumericEvents struct {
	nonSPDFallbacks int64
}

// NonSPDFallback records that an observation covariance (or its
// projection onto the state/obs cross term) was not symmetric positive
// definite and a pseudoinverse was used instead.
func (n *NumericEvents) NonSPDFallback() {
	if n == nil {
		return
	}
	atomic.AddInt64(&n.nonSPDFallbacks, 1)
}

// NonSPDFallbacks returns the running count.
func (n *NumericEvents) NonSPDFallbacks() int64 {
	if n == nil {
		return 0
	}
	return atomic.LoadInt64(&n.nonSPDFallbacks)
}

// NumericError reports a sweep that accumulated more numerically
// exceptional fallbacks than its caller's threshold allows. A single
// non-SPD fallback is recoverable (Analyze substitutes a pseudoinverse
// and continues); this is only raised once a caller has compared
// NumericEvents.NonSPDFallbacks against a per-sweep budget and decided
// the run is no longer trustworthy.
type NumericError struct {
	Op     string
	Reason string
}

func (e *NumericError) Error() string {
	return fmt.Sprintf("letkf: %s: %s", e.Op, e.Reason)
}

// Result is one column's analysis: the updated ensemble of state
// vectors (n x k, same shape as the Xpert/Xbar inputs), the transform
// matrix W actually applied, and the mean weight vector Wbar folded
// into every column of W (nil when p=0, since no observations means
// no mean shift).
type Result struct {
	Xa   [][]float64
	W    *mat.Dense
	Wbar []float64
}

// Analyze runs the LETKF update for a single localization column.
//
// xbar has length n (the local state dimension); xpert is n x k
// (each row a state component, each column a member's perturbation
// from xbar). ypert is p x k and d has length p, both in observation
// space; r is the p x p observation error covariance. inflation is the
// multiplicative prior inflation factor rho >= 0; k is the ensemble
// size (must equal the column count of xpert/ypert).
//
// p == 0 (no local observations) is a normal input, not an error: the
// analysis equals the background and W is the identity.
func Analyze(xbar []float64, xpert [][]float64, ypert [][]float64, d []float64, r *mat.SymDense, inflation float64, k int, events *NumericEvents) (*Result, error) {
	n := len(xpert)
	p := len(ypert)
	if k <= 0 {
		return nil, fmt.Errorf("letkf: ensemble size must be positive, got %d", k)
	}
	for i, row := range xpert {
		if len(row) != k {
			return nil, fmt.Errorf("letkf: Xpert row %d has %d columns, want %d", i, len(row), k)
		}
	}
	if len(xbar) != n {
		return nil, fmt.Errorf("letkf: len(xbar) = %d, want %d (Xpert row count)", len(xbar), n)
	}

	if p == 0 {
		w := mat.NewDense(k, k, nil)
		for i := 0; i < k; i++ {
			w.Set(i, i, 1)
		}
		return &Result{Xa: scatter(xbar, xpert, w), W: w}, nil
	}
	for i, row := range ypert {
		if len(row) != k {
			return nil, fmt.Errorf("letkf: Ypert row %d has %d columns, want %d", i, len(row), k)
		}
	}
	if len(d) != p {
		return nil, fmt.Errorf("letkf: len(d) = %d, want %d (Ypert row count)", len(d), p)
	}
	if rn, _ := r.Dims(); rn != p {
		return nil, fmt.Errorf("letkf: R is %dx%d, want %dx%d", rn, rn, p, p)
	}

	yp := mat.NewDense(p, k, nil)
	for i, row := range ypert {
		yp.SetRow(i, row)
	}
	dv := mat.NewVecDense(p, d)

	// Step 1: C = Ypert^T R^-1, via Z = R^-1 Ypert so C = Z^T.
	z, fellBack, err := solveSPD(r, yp)
	if err != nil {
		return nil, fmt.Errorf("letkf: solving for C: %w", err)
	}
	if fellBack {
		events.NonSPDFallback()
	}
	var c mat.Dense
	c.CloneFrom(z.T())

	// Step 2: Ptilde = ((k-1)/(1+rho) I_k + C Ypert)^-1.
	var cy mat.Dense
	cy.Mul(&c, yp)
	inner := mat.NewSymDense(k, nil)
	scale := float64(k-1) / (1 + inflation)
	for i := 0; i < k; i++ {
		for j := i; j < k; j++ {
			v := cy.At(i, j)
			if i == j {
				v += scale
			}
			inner.SetSym(i, j, v)
		}
	}
	identity := mat.NewDense(k, k, nil)
	for i := 0; i < k; i++ {
		identity.Set(i, i, 1)
	}
	ptildeDense, fellBack2, err := solveSPD(inner, identity)
	if err != nil {
		return nil, fmt.Errorf("letkf: inverting Ptilde: %w", err)
	}
	if fellBack2 {
		events.NonSPDFallback()
	}
	ptilde := symmetrize(ptildeDense, k)

	// Step 3: W = sqrtm((k-1) Ptilde).
	scaled := mat.NewSymDense(k, nil)
	for i := 0; i < k; i++ {
		for j := i; j < k; j++ {
			scaled.SetSym(i, j, float64(k-1)*ptilde.At(i, j))
		}
	}
	w, err := symSqrt(scaled, k)
	if err != nil {
		return nil, fmt.Errorf("letkf: matrix square root: %w", err)
	}

	// Step 4: wbar = Ptilde C d.
	var cd mat.VecDense
	cd.MulVec(&c, dv)
	var wbar mat.VecDense
	wbar.MulVec(ptilde, &cd)

	// Step 5: W += wbar * 1^T.
	wbarSlice := make([]float64, k)
	for i := 0; i < k; i++ {
		wi := wbar.AtVec(i)
		wbarSlice[i] = wi
		for j := 0; j < k; j++ {
			w.Set(i, j, w.At(i, j)+wi)
		}
	}

	return &Result{Xa: scatter(xbar, xpert, w), W: w, Wbar: wbarSlice}, nil
}

// scatter computes Xa = xbar*1^T + Xpert*W as a row-major [][]float64.
func scatter(xbar []float64, xpert [][]float64, w *mat.Dense) [][]float64 {
	n := len(xbar)
	k, _ := w.Dims()
	xp := mat.NewDense(n, k, nil)
	for i, row := range xpert {
		xp.SetRow(i, row)
	}
	var prod mat.Dense
	prod.Mul(xp, w)
	xa := make([][]float64, n)
	for i := 0; i < n; i++ {
		xa[i] = make([]float64, k)
		for m := 0; m < k; m++ {
			xa[i][m] = xbar[i] + prod.At(i, m)
		}
	}
	return xa
}

// symmetrize returns a SymDense view of a Dense matrix, averaging off
// any numerical asymmetry accumulated from the solve above.
func symmetrize(d *mat.Dense, n int) *mat.SymDense {
	s := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			s.SetSym(i, j, (d.At(i, j)+d.At(j, i))/2)
		}
	}
	return s
}
