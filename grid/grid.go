// Package grid defines the lat/lon grids that chemda can assimilate on
// and the great-circle geodesy used to localize the LETKF update.
package grid

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/ctessum/requestcache"
)

// EarthRadiusKm is the radius of the earth used for great-circle
// distance calculations.
const EarthRadiusKm = 6371.0

// Spec describes an immutable lat/lon grid. It is constructed once from
// a resolution tag and never mutated afterward.
type Spec struct {
	Tag string

	// Lat and Lon are the ordered cell-center coordinates, in degrees.
	// Lat is strictly ascending and within [-90, 90]; Lon is strictly
	// ascending.
	Lat, Lon []float64

	// NLev is the number of vertical levels on this grid.
	NLev int

	cacheOnce sync.Once
	cache     *requestcache.Cache
}

// UnsupportedGridError is returned by NewSpec when the requested
// resolution tag is not one of the known grids.
type UnsupportedGridError struct {
	Tag string
}

func (e *UnsupportedGridError) Error() string {
	return fmt.Sprintf("grid: unsupported resolution tag %q", e.Tag)
}

func arange(start, stop, step float64) []float64 {
	var out []float64
	for v := start; v < stop-1e-9; v += step {
		out = append(out, v)
	}
	return out
}

// axes returns the (lon, lat) center coordinates for the given
// resolution tag, following the same grid tables as CHEEREIO's
// initialize_scaling_factors utility.
func axes(tag string) (lon, lat []float64, ok bool) {
	switch tag {
	case "4.0x5.0":
		lon = arange(-180.0, 176.0, 5.0)
		lat = append([]float64{-89.0}, arange(-86.0, 87.0, 4.0)...)
		lat = append(lat, 89.0)
	case "2.0x2.5":
		lon = arange(-180.0, 178.0, 2.5)
		lat = append([]float64{-89.5}, arange(-88.0, 89.0, 2.0)...)
		lat = append(lat, 89.5)
	case "1x1":
		lon = arange(-179.5, 180.0, 1.0)
		lat = arange(-89.5, 90.0, 1.0)
	case "0.5x0.625", "MERRA2":
		lon = scaledRange(-180.0, 0.625, 576)
		lat = scaledRange(-90.0, 0.5, 361)
	case "AS_MERRA2":
		lon = arange(60.0, 150.01, 0.625)
		lat = arange(-11.0, 55.01, 0.5)
	case "EU_MERRA2":
		lon = arange(-30.0, 50.01, 0.625)
		lat = arange(30.0, 70.01, 0.5)
	case "NA_MERRA2":
		lon = arange(-140.0, -39.99, 0.625)
		lat = arange(10.0, 70.01, 0.5)
	case "0.25x0.3125", "GEOSFP":
		lon = scaledRange(-180.0, 0.3125, 1152)
		lat = scaledRange(-90.0, 0.25, 721)
	case "CH_GEOSFP":
		lon = arange(70.0, 140.01, 0.3125)
		lat = arange(15.0, 55.01, 0.25)
	case "EU_GEOSFP":
		lon = arange(-15.0, 40.01, 0.3125)
		lat = arange(32.75, 61.26, 0.25)
	case "NA_GEOSFP":
		lon = arange(-130.0, -59.99, 0.3125)
		lat = arange(9.75, 60.01, 0.25)
	default:
		return nil, nil, false
	}
	return lon, lat, true
}

// scaledRange returns n evenly-spaced values start+i*step, i=0..n-1. It
// is used for the native MERRA2/GEOS-FP grids, whose centers are given
// as an index-scaled offset from a corner rather than an arange.
func scaledRange(start, step float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + step*float64(i)
	}
	return out
}

// NewSpec constructs a GridSpec for the given resolution tag, or for a
// regional cutout tagged "{region}_{met}" (e.g. "NA_GEOSFP").
func NewSpec(tag string, nlev int) (*Spec, error) {
	lon, lat, ok := axes(tag)
	if !ok {
		return nil, &UnsupportedGridError{Tag: tag}
	}
	if !sort.Float64sAreSorted(lat) {
		return nil, fmt.Errorf("grid: tag %q produced non-ascending latitudes", tag)
	}
	if !sort.Float64sAreSorted(lon) {
		return nil, fmt.Errorf("grid: tag %q produced non-ascending longitudes", tag)
	}
	for _, l := range lat {
		if math.Abs(l) > 90 {
			return nil, fmt.Errorf("grid: tag %q produced out-of-range latitude %v", tag, l)
		}
	}
	return &Spec{Tag: tag, Lat: lat, Lon: lon, NLev: nlev}, nil
}

// RegionTag builds the "{region}_{met}" style tag used when REGION is
// non-empty in the configuration.
func RegionTag(region, met string) string {
	if region == "" {
		return met
	}
	return region + "_" + met
}

// NearestIndex returns the grid cell whose center is closest to
// (lat, lon), by independent search on each axis (the grids this
// package builds are separable lat x lon products, so this is exact,
// not an approximation across a curved surface).
func (s *Spec) NearestIndex(lat, lon float64) (latIdx, lonIdx int) {
	return nearest(s.Lat, lat), nearest(s.Lon, lon)
}

func nearest(axis []float64, v float64) int {
	i := sort.SearchFloat64s(axis, v)
	if i == 0 {
		return 0
	}
	if i >= len(axis) {
		return len(axis) - 1
	}
	if math.Abs(axis[i]-v) < math.Abs(axis[i-1]-v) {
		return i
	}
	return i - 1
}

// NLat returns the number of latitude centers.
func (s *Spec) NLat() int { return len(s.Lat) }

// NLon returns the number of longitude centers.
func (s *Spec) NLon() int { return len(s.Lon) }

// GreatCircleKm returns the great-circle distance in kilometers between
// two lat/lon points (degrees), using the spherical law of cosines
// variant also used by CHEEREIO's calcDist_km.
func GreatCircleKm(lat1, lon1, lat2, lon2 float64) float64 {
	rad := math.Pi / 180
	dLat := (lat2 - lat1) * rad
	dLon := (lon2 - lon1) * rad
	sinDLat2 := math.Sin(dLat / 2)
	sinDLon2 := math.Sin(dLon / 2)
	a := sinDLat2*sinDLat2 + math.Cos(lat1*rad)*math.Cos(lat2*rad)*sinDLon2*sinDLon2
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadiusKm * c
}
