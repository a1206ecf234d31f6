package grid

import (
	"context"
	"fmt"
	"runtime"

	"github.com/ctessum/requestcache"
)

// Patch is the result of a localization search: parallel index arrays
// into the horizontal grid for all cells within a radius of a center
// cell. LatInds[k]/LonInds[k] together name one surrounding cell; the
// two arrays are not a cross product.
type Patch struct {
	LatInds, LonInds []int
}

// IndicesWithin returns the cells of s within radiusKm (inclusive) of
// (latIdx, lonIdx), by the GreatCircleKm distance from the center cell
// to every cell center of the grid. That distance is periodic in
// longitude, so on a global grid a patch near the antimeridian or a
// pole includes cells on the far side of it; a center cell near a
// regional-grid boundary gets a truncated patch.
//
// Results are memoized per (latIdx, lonIdx, radiusKm) using the same
// on-demand cache pattern the teacher uses for other expensive
// lookups, since a sweep worker visits the same columns repeatedly.
func (s *Spec) IndicesWithin(latIdx, lonIdx int, radiusKm float64) (*Patch, error) {
	if latIdx < 0 || latIdx >= len(s.Lat) || lonIdx < 0 || lonIdx >= len(s.Lon) {
		return nil, fmt.Errorf("grid: index (%d,%d) out of bounds for grid %q", latIdx, lonIdx, s.Tag)
	}
	key := fmt.Sprintf("%d_%d_%g", latIdx, lonIdx, radiusKm)
	s.cacheOnce.Do(s.initCache)
	r := s.cache.NewRequest(context.Background(), localizeRequest{s: s, latIdx: latIdx, lonIdx: lonIdx, radiusKm: radiusKm}, key)
	result, err := r.Result()
	if err != nil {
		return nil, err
	}
	return result.(*Patch), nil
}

type localizeRequest struct {
	s              *Spec
	latIdx, lonIdx int
	radiusKm       float64
}

func (s *Spec) initCache() {
	s.cache = requestcache.NewCache(computeIndicesWithin, runtime.GOMAXPROCS(-1), requestcache.Memory(10000))
}

func computeIndicesWithin(_ context.Context, reqI interface{}) (interface{}, error) {
	req := reqI.(localizeRequest)
	s := req.s
	latVal, lonVal := s.Lat[req.latIdx], s.Lon[req.lonIdx]
	var patch Patch
	for i, la := range s.Lat {
		for j, lo := range s.Lon {
			if GreatCircleKm(latVal, lonVal, la, lo) <= req.radiusKm {
				patch.LatInds = append(patch.LatInds, i)
				patch.LonInds = append(patch.LonInds, j)
			}
		}
	}
	return &patch, nil
}
