package assim

import (
	"fmt"
	"path/filepath"

	"github.com/spatialmodel/chemda/fieldstore"
	"github.com/spatialmodel/chemda/grid"
	"github.com/spatialmodel/chemda/statevector"
)

// MissingShardError reports a grid cell no worker's sweep produced a
// shard for, so Gather has no analysis to scatter into it.
type MissingShardError struct {
	LatIdx, LonIdx int
}

func (e *MissingShardError) Error() string {
	return fmt.Sprintf("assim: Gather: no shard covers cell (%d,%d)", e.LatIdx, e.LonIdx)
}

// Gather collects every worker's shards for tsTag, scatters their
// central-column rows into one full-length analysis vector per
// ensemble member, and reconstructs each member's FieldStore from its
// analysis vector. It returns an error if any grid cell was never
// covered by a shard, since that leaves part of the domain with a
// stale background instead of an analysis.
func Gather(scratchDir, tsTag string, g *grid.Spec, layout *statevector.Layout, members []*fieldstore.FieldStore, assimIntervalHours float64) error {
	paths, err := filepath.Glob(shardGlobPattern(scratchDir, tsTag))
	if err != nil {
		return &IOError{Path: scratchDir, Op: "glob shards", Err: err}
	}

	k := len(members)
	total := layout.TotalLength()
	analyses := make([][]float64, k)
	for m := range analyses {
		analyses[m] = make([]float64, total)
	}

	nlat, nlon := g.NLat(), g.NLon()
	covered := make([][]bool, nlat)
	for i := range covered {
		covered[i] = make([]bool, nlon)
	}

	for _, path := range paths {
		shard, err := ReadShard(path)
		if err != nil {
			return err
		}
		if len(shard.Values) != len(shard.Positions) {
			return fmt.Errorf("assim: Gather: shard %s: %d positions but %d value rows", path, len(shard.Positions), len(shard.Values))
		}
		for i, pos := range shard.Positions {
			row := shard.Values[i]
			if len(row) != k {
				return fmt.Errorf("assim: Gather: shard %s: row %d has %d members, want %d", path, i, len(row), k)
			}
			for m := 0; m < k; m++ {
				analyses[m][pos] = row[m]
			}
		}
		covered[shard.LatIdx][shard.LonIdx] = true
	}

	for i := 0; i < nlat; i++ {
		for j := 0; j < nlon; j++ {
			if !covered[i][j] {
				return &MissingShardError{LatIdx: i, LonIdx: j}
			}
		}
	}

	for m, fs := range members {
		sv := &statevector.StateVector{Layout: layout}
		if err := sv.Reconstruct(analyses[m], fs, assimIntervalHours); err != nil {
			return err
		}
		if err := fs.Save(); err != nil {
			return err
		}
	}
	return nil
}
