package main

import (
	"fmt"
	"math/rand"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/spatialmodel/chemda/assim"
	"github.com/spatialmodel/chemda/chemdacfg"
	"github.com/spatialmodel/chemda/ensemble"
	"github.com/spatialmodel/chemda/fieldstore"
	"github.com/spatialmodel/chemda/grid"
	"github.com/spatialmodel/chemda/letkf"
	"github.com/spatialmodel/chemda/obsop"
	"github.com/spatialmodel/chemda/statevector"
)

var runCmd = &cobra.Command{
	Use:   "run <ensnum> <corenum> <timestamp>",
	Short: "Run one assimilation cycle's sweep over this worker's assigned columns.",
	Long: `run partitions the grid across ensnum workers the way the
teacher's Calculations partitions columns across GOMAXPROCS goroutines,
sweeps corenum's share of columns through the LETKF kernel, and writes
one scratch shard per column. The caller is responsible for invoking
run once per (ensnum, corenum) pair. The last worker (corenum ==
ensnum-1) gathers every worker's shards into the member files after
its own sweep; there is no separate gather subcommand.

Each invocation of run is a separate OS process, so the corenum ==
ensnum-1 worker calling Gather inline is only a convenience, not a
barrier: nothing here blocks until sibling (ensnum, corenum) processes
have written their shards. The caller (a job scheduler, a shell script
fanning out ensnum processes and waiting on all of them) must ensure
every other worker's run has exited successfully before the last
worker's run is invoked.
Gather fails safe with a MissingShardError rather than assembling a
partial analysis, but that failure means the barrier was violated.`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		ensnum, err := strconv.Atoi(args[0])
		if err != nil {
			return &ConfigUsageError{Reason: fmt.Sprintf("ensnum must be an integer, got %q: %v", args[0], err)}
		}
		corenum, err := strconv.Atoi(args[1])
		if err != nil {
			return &ConfigUsageError{Reason: fmt.Sprintf("corenum must be an integer, got %q: %v", args[1], err)}
		}
		timestamp, err := time.Parse("2006010215", args[2])
		if err != nil {
			return &ConfigUsageError{Reason: fmt.Sprintf("timestamp must be YYYYMMDDHH, got %q: %v", args[2], err)}
		}
		tsTag := timestamp.Format("2006010215")

		cfg, err := chemdacfg.Load(configFile)
		if err != nil {
			return err
		}

		g, err := grid.NewSpec(cfg.GridTag(), cfg.NLev)
		if err != nil {
			return err
		}

		layout := &statevector.Layout{
			Grid:         g,
			StateSpecies: cfg.StateVectorConc,
			ControlConc:  controlConcSet(cfg),
			EmisSpecies:  cfg.EmisSpecies,
		}

		nature, err := loadMember(cfg, g, 0, timestamp)
		if err != nil {
			return err
		}
		rng := rand.New(rand.NewSource(timestamp.Unix()))
		observations, err := assim.SynthesizeObservations(cfg, nature, g, rng)
		if err != nil {
			return err
		}

		members := make([]*ensemble.Member, cfg.NEnsemble)
		for m := 1; m <= cfg.NEnsemble; m++ {
			fs, err := loadMember(cfg, g, m, timestamp)
			if err != nil {
				return err
			}
			state, err := statevector.Build(layout, fs)
			if err != nil {
				return err
			}
			members[m-1] = &ensemble.Member{FieldStore: fs, State: state}
		}

		operators, err := obsop.OperatorsFor(cfg.ObservedSpecies, cfg.ObsOperators)
		if err != nil {
			return err
		}

		assembler := &ensemble.Assembler{
			Layout:   layout,
			Members:  members,
			RadiusKm: cfg.LocalizationRadiusKm,
		}
		driver := &assim.Driver{
			Assembler:          assembler,
			Observations:       observations,
			Operators:          operators,
			ObservedSpecies:    cfg.ObservedSpecies,
			Inflation:          cfg.InflationFactor,
			AssimIntervalHours: cfg.AssimTimeHours,
			Events:             &letkf.NumericEvents{},
		}

		cells := assim.Partition(g, corenum, ensnum)
		scratchDir := scratchDirPath(cfg)
		log.WithFields(map[string]interface{}{
			"component": "AssimilationDriver",
			"ensnum":    ensnum,
			"corenum":   corenum,
			"timestamp": tsTag,
			"columns":   len(cells),
		}).Info("sweeping assigned columns")

		if err := driver.Sweep(scratchDir, ensnum, corenum, tsTag, cells); err != nil {
			return err
		}

		if fallbacks := driver.Events.NonSPDFallbacks(); fallbacks > numericFallbackThreshold {
			return &letkf.NumericError{Op: "run", Reason: fmt.Sprintf("%d non-SPD covariance fallbacks exceeds the per-sweep threshold of %d", fallbacks, numericFallbackThreshold)}
		}

		if corenum != ensnum-1 {
			return nil
		}
		log.WithFields(map[string]interface{}{
			"component": "AssimilationDriver",
			"timestamp": tsTag,
		}).Info("last worker: gathering shards")

		fieldStores := make([]*fieldstore.FieldStore, len(members))
		for i, mem := range members {
			fieldStores[i] = mem.FieldStore
		}
		return assim.Gather(scratchDir, tsTag, g, layout, fieldStores, cfg.AssimTimeHours)
	},
}

// numericFallbackThreshold caps how many non-SPD covariance fallbacks
// one sweep may absorb before it is treated as a NumericError rather
// than a transient degeneracy, matching spec.md §7's "only fatal if
// the counter exceeds a threshold per sweep".
const numericFallbackThreshold = 100

func controlConcSet(cfg *chemdacfg.Config) map[string]bool {
	m := make(map[string]bool, len(cfg.ControlVectorConc))
	for _, s := range cfg.ControlVectorConc {
		m[s] = true
	}
	return m
}

func loadMember(cfg *chemdacfg.Config, g *grid.Spec, member int, timestamp time.Time) (*fieldstore.FieldStore, error) {
	return fieldstore.Load(g, member, restartFilePath(cfg, member, timestamp), cfg.StateVectorConc, emisFilePaths(cfg, member), cfg.StartDate, timestamp)
}

func scratchDirPath(cfg *chemdacfg.Config) string {
	return ensembleRunsDir(cfg) + "_scratch"
}
