package main

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ctessum/sparse"
	"github.com/spf13/cobra"

	"github.com/spatialmodel/chemda/chemdacfg"
	"github.com/spatialmodel/chemda/fieldstore"
	"github.com/spatialmodel/chemda/grid"
)

var initScalingFactorsCmd = &cobra.Command{
	Use:   "initialize-scaling-factors <YYYYMMDD>",
	Short: "Write the initial per-member emission scaling-factor files.",
	Long: `initialize-scaling-factors seeds every non-nature ensemble
member's "{EMIS}_SCALEFACTOR.nc" file with a single hour-0 scaling
factor drawn uniformly from [1-pPERT, 1+pPERT], one draw per emission
species shared across every member (so the ensemble's initial emission
spread comes entirely from the subsequent randomized restart perturbation,
not from the scaling factors themselves).`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		startDate, err := time.Parse("20060102", args[0])
		if err != nil {
			return &ConfigUsageError{Reason: fmt.Sprintf("expected YYYYMMDD, got %q: %v", args[0], err)}
		}

		cfg, err := chemdacfg.Load(configFile)
		if err != nil {
			return err
		}

		g, err := grid.NewSpec(cfg.GridTag(), cfg.NLev)
		if err != nil {
			return err
		}

		memberDirs, err := nonNatureMemberDirs(cfg)
		if err != nil {
			return err
		}
		if len(memberDirs) == 0 {
			return &fieldstore.IOError{Path: ensembleRunsDir(cfg), Op: "list", Member: -1, Err: fmt.Errorf("no ensemble member directories found")}
		}

		rng := rand.New(rand.NewSource(int64(startDate.Unix())))
		offset := 1 - cfg.PPert
		scale := cfg.PPert * 2

		for i, species := range cfg.EmisSpecies {
			arr := sparse.ZerosDense(g.NLat(), g.NLon())
			for j := range arr.Elements {
				arr.Elements[j] = offset + scale*rng.Float64()
			}
			for _, dir := range memberDirs {
				path := filepath.Join(dir, species+"_SCALEFACTOR.nc")
				fs := fieldstore.New(g, memberNumber(dir), "", map[string]string{species: path}, startDate, startDate)
				if err := fs.InitEmisSF(species, cloneDense(arr)); err != nil {
					return err
				}
				if err := fs.SaveEmisOnly(); err != nil {
					return err
				}
			}
			log.WithFields(map[string]interface{}{
				"species": species,
				"tag":     cfg.EmisTags[i],
				"members": len(memberDirs),
			}).Info("initialized scaling factors")
		}
		return nil
	},
}

// ConfigUsageError reports a malformed CLI argument, distinct from a
// malformed configuration file.
type ConfigUsageError struct {
	Reason string
}

func (e *ConfigUsageError) Error() string {
	return fmt.Sprintf("chemda: invalid argument: %s", e.Reason)
}

func ensembleRunsDir(cfg *chemdacfg.Config) string {
	return filepath.Join(cfg.MyPath, cfg.RunName, "ensemble_runs")
}

// nonNatureMemberDirs lists every "{RUN_NAME}_{NNN}" ensemble member
// directory except the nature run (NNN == "000") and the "logs" entry,
// matching the original's directory-name parsing in
// initialize_scaling_factors.py.
func nonNatureMemberDirs(cfg *chemdacfg.Config) ([]string, error) {
	parent := ensembleRunsDir(cfg)
	entries, err := os.ReadDir(parent)
	if err != nil {
		return nil, &fieldstore.IOError{Path: parent, Op: "list", Member: -1, Err: err}
	}
	var dirs []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		name := e.Name()
		if name == "logs" {
			continue
		}
		numstring := name[strings.LastIndex(name, "_")+1:]
		if numstring == "000" {
			continue
		}
		dirs = append(dirs, filepath.Join(parent, name))
	}
	return dirs, nil
}

func memberNumber(dir string) int {
	name := filepath.Base(dir)
	numstring := name[strings.LastIndex(name, "_")+1:]
	n, err := strconv.Atoi(numstring)
	if err != nil {
		return -1
	}
	return n
}

func cloneDense(arr *sparse.DenseArray) *sparse.DenseArray {
	out := sparse.ZerosDense(arr.Shape...)
	copy(out.Elements, arr.Elements)
	return out
}
