// Command chemda runs LETKF data assimilation cycles over a
// GEOS-Chem ensemble.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spatialmodel/chemda/assim"
	"github.com/spatialmodel/chemda/chemdacfg"
	"github.com/spatialmodel/chemda/fieldstore"
	"github.com/spatialmodel/chemda/letkf"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCode(err))
	}
}

// exitCode maps a returned error to one of spec.md §6's exit codes,
// per spec.md §7's "(component, member?, latIdx?, lonIdx?, timestamp)"
// error taxonomy: configuration/argument mistakes, missing input
// files, and numeric failures are each distinguishable so a calling
// script can branch without scraping the error text.
func exitCode(err error) int {
	var configErr *chemdacfg.ConfigError
	var usageErr *ConfigUsageError
	if errors.As(err, &configErr) || errors.As(err, &usageErr) {
		return ExitConfigError
	}

	var fsIOErr *fieldstore.IOError
	var assimIOErr *assim.IOError
	var missingShardErr *assim.MissingShardError
	if errors.As(err, &fsIOErr) || errors.As(err, &assimIOErr) || errors.As(err, &missingShardErr) {
		return ExitMissingInput
	}

	var numErr *letkf.NumericError
	if errors.As(err, &numErr) {
		return ExitNumericFailure
	}

	return ExitOther
}
