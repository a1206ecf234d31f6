package assim

import (
	"math/rand"

	"github.com/spatialmodel/chemda/chemdacfg"
	"github.com/spatialmodel/chemda/fieldstore"
	"github.com/spatialmodel/chemda/grid"
	"github.com/spatialmodel/chemda/obs"
	"github.com/spatialmodel/chemda/obsop"
)

// SynthesizeObservations builds one Collection entry per observed
// species by applying that species' NATURE_H_FUNCTIONS operator to the
// nature member's full concentration field (every grid cell, not just
// a patch), then perturbing the result with its configured
// observation error. This stands in for reading a real observation
// record, matching the reference toolkit's simulated-nature mode
// (NATURE_OPERATOR != "NA", the only mode chemda implements).
//
// This is distinct from OBS_OPERATORS/cfg.ObsOperators: that list
// maps an ensemble member's field into observation space during
// assimilation, while NATURE_H_FUNCTIONS is the (possibly different)
// operator used once, up front, to generate the truth the ensemble is
// assimilated against.
func SynthesizeObservations(cfg *chemdacfg.Config, nature *fieldstore.FieldStore, g *grid.Spec, rng *rand.Rand) (obs.Collection, error) {
	natureOps, err := obsop.OperatorsFor(cfg.ObservedSpecies, cfg.NatureHFunctions)
	if err != nil {
		return nil, err
	}
	errStats, err := RelativeErrors(cfg.ObsErrorMatrices)
	if err != nil {
		return nil, err
	}

	nlat, nlon := g.NLat(), g.NLon()
	lat, lon := allCellCoords(g)

	collection := make(obs.Collection, len(cfg.ObservedSpecies))
	for i, sp := range cfg.ObservedSpecies {
		conc, err := nature.GetConc3D(sp)
		if err != nil {
			return nil, err
		}
		op := natureOps[sp]
		truth, err := op.H(conc, nil, nil)
		if err != nil {
			return nil, err
		}
		if len(truth) != nlat*nlon {
			return nil, &obs.ObservationError{Species: sp, Reason: "nature-H operator did not return one value per grid cell"}
		}

		sigmaRel := errStats[i]
		y := make([]float64, len(truth))
		for j, v := range truth {
			y[j] = v * (1 + sigmaRel*(2*rng.Float64()-1))
		}

		set, err := obs.NewDiag(sp, y, lat, lon, sigmaRel)
		if err != nil {
			return nil, err
		}
		collection[sp] = set
	}
	return collection, nil
}

// allCellCoords returns every grid cell's (lat,lon) center, ordered to
// match obsop.allCells: lat-major, matching Operator.H's whole-grid
// flattening when latInds/lonInds are nil.
func allCellCoords(g *grid.Spec) (lat, lon []float64) {
	nlat, nlon := g.NLat(), g.NLon()
	lat = make([]float64, 0, nlat*nlon)
	lon = make([]float64, 0, nlat*nlon)
	for i := 0; i < nlat; i++ {
		for j := 0; j < nlon; j++ {
			lat = append(lat, g.Lat[i])
			lon = append(lon, g.Lon[j])
		}
	}
	return lat, lon
}
