package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spatialmodel/chemda/chemdacfg"
)

// memberDirPath returns "{MY_PATH}/{RUN_NAME}/ensemble_runs/{RUN_NAME}_{NNN}",
// the same "{RUN_NAME}_{NNN}" naming nonNatureMemberDirs parses back
// apart; member 0 is the nature run.
func memberDirPath(cfg *chemdacfg.Config, member int) string {
	return filepath.Join(ensembleRunsDir(cfg), fmt.Sprintf("%s_%03d", cfg.RunName, member))
}

func restartFilePath(cfg *chemdacfg.Config, member int, timestamp time.Time) string {
	return filepath.Join(memberDirPath(cfg, member), fmt.Sprintf("GEOSChem.Restart.%sz.nc4", timestamp.Format("20060102_1504")))
}

func emisFilePaths(cfg *chemdacfg.Config, member int) map[string]string {
	dir := memberDirPath(cfg, member)
	paths := make(map[string]string, len(cfg.EmisSpecies))
	for _, sp := range cfg.EmisSpecies {
		paths[sp] = filepath.Join(dir, sp+"_SCALEFACTOR.nc")
	}
	return paths
}
