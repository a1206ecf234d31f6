package letkf

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// solveSPD solves A X = B for X, where A is expected to be symmetric
// positive definite. It prefers a Cholesky solve; if A fails to
// factorize (not SPD, e.g. from accumulated floating-point error or a
// genuinely singular observation network), it falls back to a
// pseudoinverse built from A's eigendecomposition, dropping
// near-zero eigenvalues. The bool return reports whether the
// fallback was used.
func solveSPD(a *mat.SymDense, b mat.Matrix) (*mat.Dense, bool, error) {
	var chol mat.Cholesky
	if chol.Factorize(a) {
		var x mat.Dense
		if err := chol.SolveTo(&x, b); err != nil {
			return nil, false, err
		}
		return &x, false, nil
	}

	n, _ := a.Dims()
	pinv, err := symPseudoInverse(a, n)
	if err != nil {
		return nil, true, err
	}
	var x mat.Dense
	x.Mul(pinv, b)
	return &x, true, nil
}

// symPseudoInverse builds the Moore-Penrose pseudoinverse of a
// symmetric matrix via its eigendecomposition: V diag(1/lambda_i) V^T,
// dropping eigenvalues too small relative to the largest in magnitude
// to be trusted.
func symPseudoInverse(a *mat.SymDense, n int) (*mat.Dense, error) {
	var eig mat.EigenSym
	if !eig.Factorize(a, true) {
		return nil, fmt.Errorf("eigendecomposition failed")
	}
	values := eig.Values(nil)
	var vectors mat.Dense
	eig.VectorsTo(&vectors)
	canonicalizeSigns(&vectors, n)

	maxAbs := 0.0
	for _, v := range values {
		if math.Abs(v) > maxAbs {
			maxAbs = math.Abs(v)
		}
	}
	const relTol = 1e-10
	tol := relTol * maxAbs

	inv := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			var sum float64
			for c := 0; c < n; c++ {
				if math.Abs(values[c]) <= tol {
					continue
				}
				sum += vectors.At(i, c) * vectors.At(j, c) / values[c]
			}
			inv.Set(i, j, sum)
		}
	}
	return inv, nil
}

// symSqrt computes the symmetric matrix square root of a symmetric
// positive semi-definite matrix via eigendecomposition, U sqrt(Lambda)
// U^T. Tiny negative eigenvalues (numerical noise) are clamped to
// zero rather than treated as an error.
func symSqrt(a *mat.SymDense, n int) (*mat.Dense, error) {
	var eig mat.EigenSym
	if !eig.Factorize(a, true) {
		return nil, fmt.Errorf("eigendecomposition failed")
	}
	values := eig.Values(nil)
	var vectors mat.Dense
	eig.VectorsTo(&vectors)
	canonicalizeSigns(&vectors, n)

	sqrtVal := make([]float64, n)
	for i, v := range values {
		if v < 0 {
			v = 0
		}
		sqrtVal[i] = math.Sqrt(v)
	}

	out := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			var sum float64
			for c := 0; c < n; c++ {
				sum += vectors.At(i, c) * sqrtVal[c] * vectors.At(j, c)
			}
			out.Set(i, j, sum)
		}
	}
	return out, nil
}

// canonicalizeSigns fixes the sign ambiguity of eigenvectors returned
// by EigenSym: for each column, if its largest-magnitude component is
// negative, flip the whole column. This does not change any V
// diag(.) V^T product, but keeps intermediate decompositions
// deterministic run to run.
func canonicalizeSigns(vectors *mat.Dense, n int) {
	for c := 0; c < n; c++ {
		maxAbs, maxIdx := 0.0, 0
		for i := 0; i < n; i++ {
			if v := math.Abs(vectors.At(i, c)); v > maxAbs {
				maxAbs, maxIdx = v, i
			}
		}
		if vectors.At(maxIdx, c) < 0 {
			for i := 0; i < n; i++ {
				vectors.Set(i, c, -vectors.At(i, c))
			}
		}
	}
}
