package statevector

import (
	"fmt"

	"github.com/spatialmodel/chemda/grid"
)

// LocalizedIndices returns the global state-vector positions of the
// localization patch centered on (latIdx, lonIdx): for each state
// species, all levels crossed with the patch's horizontal cells
// (levels slowest-varying, patch cells in patch order); for each
// emission species, the patch's horizontal cells alone. It also
// returns the Patch itself, since ColumnWithinPatch needs it to locate
// the center cell inside the positions this function produced.
func (l *Layout) LocalizedIndices(latIdx, lonIdx int, radiusKm float64) ([]int, *grid.Patch, error) {
	patch, err := l.Grid.IndicesWithin(latIdx, lonIdx, radiusKm)
	if err != nil {
		return nil, nil, err
	}
	m := len(patch.LatInds)
	nlat, nlon := l.Grid.NLat(), l.Grid.NLon()

	var positions []int
	for _, seg := range l.segments() {
		if seg.isEmis {
			for k := 0; k < m; k++ {
				positions = append(positions, seg.offset+patch.LatInds[k]*nlon+patch.LonInds[k])
			}
			continue
		}
		for lev := 0; lev < l.Grid.NLev; lev++ {
			levOffset := seg.offset + lev*nlat*nlon
			for k := 0; k < m; k++ {
				positions = append(positions, levOffset+patch.LatInds[k]*nlon+patch.LonInds[k])
			}
		}
	}
	return positions, patch, nil
}

// ColumnWithinPatch returns the positions inside the local patch
// vector (as produced by LocalizedIndices, i.e. indices into that
// returned slice, not into the global state vector) that hold the
// full vertical column at (latIdx, lonIdx): one per state-species
// level, plus one per emission species. It is used to scatter an
// analysis patch's central column back without touching the
// surrounding cells that only exist to localize the update.
func (l *Layout) ColumnWithinPatch(patch *grid.Patch, latIdx, lonIdx int) ([]int, error) {
	m := len(patch.LatInds)
	center := -1
	for k := 0; k < m; k++ {
		if patch.LatInds[k] == latIdx && patch.LonInds[k] == lonIdx {
			center = k
			break
		}
	}
	if center < 0 {
		return nil, fmt.Errorf("statevector: ColumnWithinPatch: (%d,%d) is not a cell of the given patch", latIdx, lonIdx)
	}

	var local []int
	localOffset := 0
	for _, seg := range l.segments() {
		if seg.isEmis {
			local = append(local, localOffset+center)
			localOffset += m
			continue
		}
		for lev := 0; lev < l.Grid.NLev; lev++ {
			local = append(local, localOffset+lev*m+center)
		}
		localOffset += l.Grid.NLev * m
	}
	return local, nil
}

// GlobalColumnIndices returns the global state-vector positions of the
// single column at (latIdx, lonIdx), in the same per-segment order
// ColumnWithinPatch uses (one per state-species level, then one per
// emission species). It is the scatter target for the central-column
// rows ColumnWithinPatch locates inside a patch's analysis.
func (l *Layout) GlobalColumnIndices(latIdx, lonIdx int) []int {
	nlat, nlon := l.Grid.NLat(), l.Grid.NLon()
	var positions []int
	for _, seg := range l.segments() {
		if seg.isEmis {
			positions = append(positions, seg.offset+latIdx*nlon+lonIdx)
			continue
		}
		for lev := 0; lev < l.Grid.NLev; lev++ {
			positions = append(positions, seg.offset+lev*nlat*nlon+latIdx*nlon+lonIdx)
		}
	}
	return positions
}
