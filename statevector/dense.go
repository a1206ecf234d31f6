package statevector

import "github.com/ctessum/sparse"

func newDense2D(nlat, nlon int, flat []float64) *sparse.DenseArray {
	arr := sparse.ZerosDense(nlat, nlon)
	copy(arr.Elements, flat)
	return arr
}

func newDense3D(nlev, nlat, nlon int, flat []float64) *sparse.DenseArray {
	arr := sparse.ZerosDense(nlev, nlat, nlon)
	copy(arr.Elements, flat)
	return arr
}
