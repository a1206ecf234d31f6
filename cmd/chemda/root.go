package main

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// Exit codes distinguish why a run failed, per spec.md §6: 0 is
// success, everything else is a category of failure a calling script
// can branch on.
const (
	ExitOK = iota
	ExitConfigError
	ExitMissingInput
	ExitNumericFailure
	ExitOther
)

var configFile string

var log = logrus.StandardLogger()

var rootCmd = &cobra.Command{
	Use:   "chemda",
	Short: "LETKF data assimilation for atmospheric chemistry transport ensembles.",
	Long: `chemda runs Local Ensemble Transform Kalman Filter assimilation
cycles over a GEOS-Chem ensemble, reconciling each member's restart and
emission-scaling-factor files against observations.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "./chemda.yaml", "configuration file location")
	rootCmd.AddCommand(initScalingFactorsCmd)
	rootCmd.AddCommand(runCmd)
}
