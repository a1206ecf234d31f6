package ensemble

import (
	"gonum.org/v1/gonum/mat"

	"github.com/ctessum/sparse"
	"github.com/spatialmodel/chemda/obs"
	"github.com/spatialmodel/chemda/obsop"
)

// ObsSpace composes obsop.Operator evaluation over every observed
// species, localized to the patch around (latIdx, lonIdx), and
// concatenates the per-species results along the row axis: ybar, Ypert
// (rows = observations, cols = members), d = yObs - ybar, and the
// block-diagonal observation error covariance R. Species with no
// observations inside the patch contribute nothing (p=0 per species
// is normal, not an error; an entirely empty result across all species
// is also valid and must be handled by the caller per the LETKF
// kernel's p=0 edge case).
func (a *Assembler) ObsSpace(observations obs.Collection, operators map[string]obsop.Operator, species []string, latIdx, lonIdx int) (ybar []float64, ypert [][]float64, d []float64, r *mat.SymDense, err error) {
	g := a.Layout.Grid

	var blocks []*obs.Set
	for _, sp := range species {
		op, ok := operators[sp]
		if !ok {
			continue
		}
		localSet, lerr := observations.LocalSet(g, latIdx, lonIdx, sp, a.RadiusKm)
		if lerr != nil {
			return nil, nil, nil, nil, lerr
		}
		p := len(localSet.Y)
		if p == 0 {
			continue
		}

		latInds := make([]int, p)
		lonInds := make([]int, p)
		for i := range localSet.Y {
			latInds[i], lonInds[i] = g.NearestIndex(localSet.Lat[i], localSet.Lon[i])
		}

		members := make([]*sparse.DenseArray, len(a.Members))
		for m, mem := range a.Members {
			conc, cerr := mem.FieldStore.GetConc3D(sp)
			if cerr != nil {
				return nil, nil, nil, nil, cerr
			}
			members[m] = conc
		}

		spYbar, spYpert, herr := obsop.EnsembleObsMeanAndPert(op, members, latInds, lonInds)
		if herr != nil {
			return nil, nil, nil, nil, herr
		}
		spD, derr := obsop.ObsDiff(localSet.Y, spYbar)
		if derr != nil {
			return nil, nil, nil, nil, derr
		}

		ybar = append(ybar, spYbar...)
		ypert = append(ypert, spYpert...)
		d = append(d, spD...)
		blocks = append(blocks, localSet)
	}

	r = blockDiagR(blocks)
	return ybar, ypert, d, r, nil
}

// blockDiagR stacks each species' local observation covariance along
// the diagonal of a single dense matrix, in the same order the
// species were concatenated above.
func blockDiagR(blocks []*obs.Set) *mat.SymDense {
	n := 0
	for _, b := range blocks {
		n += len(b.Y)
	}
	if n == 0 {
		// No local observations: an empty 0x0 R (mat.NewSymDense rejects
		// a zero dimension).
		return &mat.SymDense{}
	}
	r := mat.NewSymDense(n, nil)
	offset := 0
	for _, b := range blocks {
		p := len(b.Y)
		for i := 0; i < p; i++ {
			for j := i; j < p; j++ {
				r.SetSym(offset+i, offset+j, b.R.At(i, j))
			}
		}
		offset += p
	}
	return r
}
