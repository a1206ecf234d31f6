// Package chemdacfg reads chemda's startup configuration: the
// enumerated set of grid, state-vector, observation, and run-control
// settings a LETKF cycle needs before it can assemble an ensemble.
package chemdacfg

import (
	"fmt"
	"os"
	"time"

	"github.com/lnashier/viper"
	"github.com/spf13/cast"

	"github.com/spatialmodel/chemda/grid"
)

// ConfigError reports an invalid or inconsistent configuration value:
// an unknown grid tag, an out-of-range perturbation fraction, mismatched
// parallel list lengths, or a missing key. Fatal at startup.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("chemdacfg: %s: %s", e.Field, e.Reason)
}

// Config is the fully validated, typed configuration for one chemda
// run.
//
// Two of the original tool's settings, OBSERVED_SPECIES and
// CONTROL_VECTOR_EMIS, are "ordered maps": a user tag associated with
// a model species or a scaling-factor tag, where the order in which
// entries are declared matters (it is the order OBS_OPERATORS and
// OBS_ERROR_MATRICES line up against). Go's map type does not preserve
// insertion order, so we carry these as parallel slices instead of a
// map — ObservedTags[i]/ObservedSpecies[i]/ObsOperators[i]/
// ObsErrorMatrices[i] all describe the same observed quantity.
type Config struct {
	MyPath  string
	RunName string

	Res     string
	Region  string
	MetName string

	// NLev is the number of vertical levels in the GEOS-Chem restart
	// files this run reads. It is not one of the original tool's
	// enumerated settings (spec.md §6 carries no vertical-level
	// count), but chemda's FieldStore needs it before it can open a
	// restart file at all (the concentration shape a GridSpec expects
	// is derived from it), so it is a required addition here rather
	// than an inferred one.
	NLev int

	StateVectorConc   []string
	ControlVectorConc []string

	// EmisSpecies[i] is updated using scaling-factor tag EmisTags[i].
	EmisSpecies []string
	EmisTags    []string

	ObservedTags    []string
	ObservedSpecies []string
	ObsOperators    []string

	NatureOperator   string
	NatureHFunctions []string

	// ObsErrorMatrices[i] is either a relative-error scalar (parses as
	// a float) or a path to a dense covariance file, parallel to
	// ObservedTags.
	ObsErrorMatrices []string

	LocalizationRadiusKm float64
	InflationFactor      float64
	PPert                float64
	AssimTimeHours       float64
	StartDate            time.Time
	NEnsemble            int
	DoControlRun         bool
}

// GridTag returns the GridSpec resolution tag this configuration
// selects: RES alone for the global grid, or REGION_met_name for a
// regional cutout.
func (c *Config) GridTag() string {
	if c.Region == "" {
		return c.Res
	}
	return fmt.Sprintf("%s_%s", c.Region, c.MetName)
}

// Load reads and validates a chemda configuration file (any format
// lnashier/viper supports: YAML, JSON, TOML). Path-like fields are
// expanded with os.ExpandEnv, matching inmaputil/config.go's
// conventions.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(os.ExpandEnv(path))
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("chemdacfg: reading configuration file: %w", err)
	}

	emisSpecies, emisTags, err := stringMapKeysValues(v, "CONTROL_VECTOR_EMIS")
	if err != nil {
		return nil, &ConfigError{Field: "CONTROL_VECTOR_EMIS", Reason: err.Error()}
	}
	obsTags, obsSpecies, err := stringMapKeysValues(v, "OBSERVED_SPECIES")
	if err != nil {
		return nil, &ConfigError{Field: "OBSERVED_SPECIES", Reason: err.Error()}
	}

	cfg := &Config{
		MyPath:  os.ExpandEnv(v.GetString("MY_PATH")),
		RunName: os.ExpandEnv(v.GetString("RUN_NAME")),

		Res:     v.GetString("RES"),
		Region:  v.GetString("REGION"),
		MetName: v.GetString("met_name"),
		NLev:    v.GetInt("NLEV"),

		StateVectorConc:   cast.ToStringSlice(v.Get("STATE_VECTOR_CONC")),
		ControlVectorConc: cast.ToStringSlice(v.Get("CONTROL_VECTOR_CONC")),

		EmisSpecies: emisSpecies,
		EmisTags:    emisTags,

		ObservedTags:    obsTags,
		ObservedSpecies: obsSpecies,
		ObsOperators:    cast.ToStringSlice(v.Get("OBS_OPERATORS")),

		NatureOperator:   v.GetString("NATURE_OPERATOR"),
		NatureHFunctions: cast.ToStringSlice(v.Get("NATURE_H_FUNCTIONS")),

		ObsErrorMatrices: stringSliceOfScalarsOrPaths(v.Get("OBS_ERROR_MATRICES")),

		LocalizationRadiusKm: v.GetFloat64("LOCALIZATION_RADIUS_km"),
		InflationFactor:      v.GetFloat64("INFLATION_FACTOR"),
		PPert:                v.GetFloat64("pPERT"),
		AssimTimeHours:       v.GetFloat64("ASSIM_TIME"),
		NEnsemble:            v.GetInt("nEnsemble"),
		DoControlRun:         v.GetBool("DO_CONTROL_RUN"),
	}

	startDate, err := time.Parse("20060102", v.GetString("START_DATE"))
	if err != nil {
		return nil, &ConfigError{Field: "START_DATE", Reason: fmt.Sprintf("expected YYYYMMDD: %v", err)}
	}
	cfg.StartDate = startDate

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.MyPath == "" {
		return &ConfigError{Field: "MY_PATH", Reason: "must not be empty"}
	}
	if c.RunName == "" {
		return &ConfigError{Field: "RUN_NAME", Reason: "must not be empty"}
	}
	if c.NLev <= 0 {
		return &ConfigError{Field: "NLEV", Reason: "must be positive"}
	}
	if _, err := grid.NewSpec(c.GridTag(), c.NLev); err != nil {
		return &ConfigError{Field: "RES/REGION/met_name", Reason: err.Error()}
	}
	if len(c.StateVectorConc) == 0 {
		return &ConfigError{Field: "STATE_VECTOR_CONC", Reason: "must list at least one species"}
	}
	stateSet := make(map[string]bool, len(c.StateVectorConc))
	for _, s := range c.StateVectorConc {
		stateSet[s] = true
	}
	for _, s := range c.ControlVectorConc {
		if !stateSet[s] {
			return &ConfigError{Field: "CONTROL_VECTOR_CONC", Reason: fmt.Sprintf("species %q is not in STATE_VECTOR_CONC", s)}
		}
	}
	if len(c.EmisSpecies) != len(c.EmisTags) {
		return &ConfigError{Field: "CONTROL_VECTOR_EMIS", Reason: "species and tags lists have different lengths"}
	}
	n := len(c.ObservedTags)
	if len(c.ObservedSpecies) != n {
		return &ConfigError{Field: "OBSERVED_SPECIES", Reason: "tags and model species lists have different lengths"}
	}
	if len(c.ObsOperators) != n {
		return &ConfigError{Field: "OBS_OPERATORS", Reason: fmt.Sprintf("has %d entries, want %d (one per observed species)", len(c.ObsOperators), n)}
	}
	if len(c.ObsErrorMatrices) != n {
		return &ConfigError{Field: "OBS_ERROR_MATRICES", Reason: fmt.Sprintf("has %d entries, want %d (one per observed species)", len(c.ObsErrorMatrices), n)}
	}
	if c.NatureOperator == "" {
		return &ConfigError{Field: "NATURE_OPERATOR", Reason: "must be set"}
	}
	if c.NatureOperator == "NA" {
		return &ConfigError{Field: "NATURE_OPERATOR", Reason: `"NA" (assimilating real, non-simulated observations) is not implemented`}
	}
	if c.PPert <= 0 || c.PPert >= 1 {
		return &ConfigError{Field: "pPERT", Reason: "must be in (0,1)"}
	}
	if c.LocalizationRadiusKm <= 0 {
		return &ConfigError{Field: "LOCALIZATION_RADIUS_km", Reason: "must be positive"}
	}
	if c.AssimTimeHours <= 0 {
		return &ConfigError{Field: "ASSIM_TIME", Reason: "must be positive"}
	}
	if c.NEnsemble <= 0 {
		return &ConfigError{Field: "nEnsemble", Reason: "must be positive"}
	}
	return nil
}


// stringMapKeysValues reads an ordered-map-shaped config field as two
// parallel slices. Declaration order matters for these fields (it is
// the order OBS_OPERATORS and OBS_ERROR_MATRICES line up against), and
// a plain YAML/JSON map does not preserve it once decoded into a Go
// map[string]interface{}, so the expected shape in the config file is
// a sequence of single-entry maps, e.g.:
//
//	OBSERVED_SPECIES:
//	  - NO2_COLUMN: NO2
//	  - O3_COLUMN: O3
//
// A sequence preserves order even though each of its elements is a
// map. A bare map is still accepted for the common single-entry case,
// or when the caller has already verified ordering does not matter.
func stringMapKeysValues(v *viper.Viper, key string) (keys, values []string, err error) {
	raw := v.Get(key)
	if raw == nil {
		return nil, nil, nil
	}
	if seq, ok := raw.([]interface{}); ok {
		for _, item := range seq {
			entry, ierr := cast.ToStringMapStringE(item)
			if ierr != nil {
				return nil, nil, fmt.Errorf("entry %v: %w", item, ierr)
			}
			if len(entry) != 1 {
				return nil, nil, fmt.Errorf("entry %v: expected exactly one key", item)
			}
			for k, val := range entry {
				keys = append(keys, k)
				values = append(values, val)
			}
		}
		return keys, values, nil
	}
	m, err := cast.ToStringMapStringE(raw)
	if err != nil {
		return nil, nil, err
	}
	for k, val := range m {
		keys = append(keys, k)
		values = append(values, val)
	}
	return keys, values, nil
}

// stringSliceOfScalarsOrPaths accepts OBS_ERROR_MATRICES in either of
// its two documented shapes (a list of relative-error scalars, or a
// list of file paths) and normalizes both to strings: scalars are
// formatted back to their decimal text, paths are expanded with
// os.ExpandEnv.
func stringSliceOfScalarsOrPaths(raw interface{}) []string {
	items := cast.ToSlice(raw)
	out := make([]string, len(items))
	for i, item := range items {
		switch v := item.(type) {
		case string:
			out[i] = os.ExpandEnv(v)
		default:
			out[i] = cast.ToString(v)
		}
	}
	return out
}
