package obs

import (
	"fmt"

	"github.com/spatialmodel/chemda/grid"
)

// Collection is a multi-species set of observations for one
// assimilation cycle, keyed by model species name (the value side of
// an OBSERVED_SPECIES entry, not its user tag).
type Collection map[string]*Set

// Localize returns the indices, within Collection[species], of the
// observations that fall within radiusKm of the grid cell (latIdx,
// lonIdx). An empty (nil) result is not an error: a column with no
// nearby observations still updates to its background.
func (c Collection) Localize(g *grid.Spec, latIdx, lonIdx int, species string, radiusKm float64) ([]int, error) {
	set, ok := c[species]
	if !ok {
		return nil, &ObservationError{Species: species, Reason: "no observations loaded for this species"}
	}
	if latIdx < 0 || latIdx >= g.NLat() || lonIdx < 0 || lonIdx >= g.NLon() {
		return nil, fmt.Errorf("obs: Localize: cell (%d,%d) is outside the grid", latIdx, lonIdx)
	}
	centerLat, centerLon := g.Lat[latIdx], g.Lon[lonIdx]

	var indices []int
	for i := range set.Y {
		if grid.GreatCircleKm(centerLat, centerLon, set.Lat[i], set.Lon[i]) <= radiusKm {
			indices = append(indices, i)
		}
	}
	return indices, nil
}

// LocalSet is a convenience wrapper around Localize+Subset: the
// observation subset actually used to update one column.
func (c Collection) LocalSet(g *grid.Spec, latIdx, lonIdx int, species string, radiusKm float64) (*Set, error) {
	indices, err := c.Localize(g, latIdx, lonIdx, species, radiusKm)
	if err != nil {
		return nil, err
	}
	return c[species].Subset(indices), nil
}
