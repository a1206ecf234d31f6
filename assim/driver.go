// Package assim drives one assimilation cycle: sweeping every grid
// column through the LETKF kernel and scattering the results back
// into each ensemble member's FieldStore.
package assim

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/spatialmodel/chemda/ensemble"
	"github.com/spatialmodel/chemda/grid"
	"github.com/spatialmodel/chemda/letkf"
	"github.com/spatialmodel/chemda/obs"
	"github.com/spatialmodel/chemda/obsop"
)

// Driver runs the sweep phase: constructing each column's local
// ensemble and observation-space quantities, running the LETKF
// kernel, and extracting the central-column analysis.
type Driver struct {
	Assembler          *ensemble.Assembler
	Observations       obs.Collection
	Operators          map[string]obsop.Operator
	ObservedSpecies    []string
	Inflation          float64
	AssimIntervalHours float64
	Events             *letkf.NumericEvents
}

// ColumnWork is one grid cell a worker is assigned to process.
type ColumnWork struct {
	LatIdx, LonIdx int
}

// Partition stripes every grid cell across nworkers the same way the
// teacher's Calculations striped grid cells across GOMAXPROCS
// goroutines: worker i gets cells i, i+nworkers, i+2*nworkers, ....
func Partition(g *grid.Spec, workerIdx, nworkers int) []ColumnWork {
	nlon := g.NLon()
	total := g.NLat() * nlon
	var cells []ColumnWork
	for ii := workerIdx; ii < total; ii += nworkers {
		cells = append(cells, ColumnWork{LatIdx: ii / nlon, LonIdx: ii % nlon})
	}
	return cells
}

// SweepColumn runs the LETKF update for a single column and returns
// the shard of central-column analysis rows to be persisted.
func (d *Driver) SweepColumn(latIdx, lonIdx int) (*ColumnShard, error) {
	x, patch, err := d.Assembler.Combine(latIdx, lonIdx)
	if err != nil {
		return nil, err
	}
	xbar, xpert := ensemble.MeanAndPert(x)

	_, ypert, dvec, r, err := d.Assembler.ObsSpace(d.Observations, d.Operators, d.ObservedSpecies, latIdx, lonIdx)
	if err != nil {
		return nil, err
	}

	k := len(d.Assembler.Members)
	res, err := letkf.Analyze(xbar, xpert, ypert, dvec, r, d.Inflation, k, d.Events)
	if err != nil {
		return nil, err
	}

	colLocal, err := d.Assembler.Layout.ColumnWithinPatch(patch, latIdx, lonIdx)
	if err != nil {
		return nil, err
	}
	values := make([][]float64, len(colLocal))
	for i, li := range colLocal {
		values[i] = append([]float64(nil), res.Xa[li]...)
	}
	positions := d.Assembler.Layout.GlobalColumnIndices(latIdx, lonIdx)
	return &ColumnShard{LatIdx: latIdx, LonIdx: lonIdx, Positions: positions, Values: values}, nil
}

// Sweep runs SweepColumn over every cell assigned to this worker,
// fanning out across GOMAXPROCS goroutines the same way the teacher's
// Calculations fans out over grid cells, and writes one shard file per
// column, keyed by (ensnum, corenum).
func (d *Driver) Sweep(scratchDir string, ensnum, corenum int, tsTag string, cells []ColumnWork) error {
	nprocs := runtime.GOMAXPROCS(0)
	var wg sync.WaitGroup
	errs := make([]error, nprocs)

	wg.Add(nprocs)
	for pp := 0; pp < nprocs; pp++ {
		go func(pp int) {
			defer wg.Done()
			for ii := pp; ii < len(cells); ii += nprocs {
				cell := cells[ii]
				shard, err := d.SweepColumn(cell.LatIdx, cell.LonIdx)
				if err != nil {
					errs[pp] = fmt.Errorf("assim: Sweep: column (%d,%d): %w", cell.LatIdx, cell.LonIdx, err)
					return
				}
				if err := WriteShard(scratchDir, ensnum, corenum, tsTag, shard); err != nil {
					errs[pp] = err
					return
				}
			}
		}(pp)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
