package chemdacfg

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTestConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

const validConfig = `
MY_PATH: /data/chemda
RUN_NAME: test_run
RES: 4.0x5.0
REGION: ""
met_name: ""
NLEV: 1
STATE_VECTOR_CONC:
  - O3
  - NO2
CONTROL_VECTOR_CONC:
  - O3
CONTROL_VECTOR_EMIS:
  - NO: CV001
OBSERVED_SPECIES:
  - O3_SURFACE: O3
OBS_OPERATORS:
  - Surface
NATURE_OPERATOR: GEOSChemNature
NATURE_H_FUNCTIONS: []
OBS_ERROR_MATRICES:
  - "0.1"
LOCALIZATION_RADIUS_km: 500
INFLATION_FACTOR: 1.1
pPERT: 0.15
ASSIM_TIME: 6
START_DATE: "20190101"
nEnsemble: 10
DO_CONTROL_RUN: true
`

func TestLoadValidConfig(t *testing.T) {
	path := writeTestConfig(t, validConfig)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.GridTag() != "4.0x5.0" {
		t.Fatalf("GridTag() = %q, want 4.0x5.0", cfg.GridTag())
	}
	if len(cfg.StateVectorConc) != 2 {
		t.Fatalf("StateVectorConc = %v", cfg.StateVectorConc)
	}
	if len(cfg.EmisSpecies) != 1 || cfg.EmisSpecies[0] != "NO" || cfg.EmisTags[0] != "CV001" {
		t.Fatalf("emis species/tags = %v/%v", cfg.EmisSpecies, cfg.EmisTags)
	}
	if len(cfg.ObservedTags) != 1 || cfg.ObservedTags[0] != "O3_SURFACE" || cfg.ObservedSpecies[0] != "O3" {
		t.Fatalf("observed tags/species = %v/%v", cfg.ObservedTags, cfg.ObservedSpecies)
	}
	if cfg.StartDate.Year() != 2019 || cfg.StartDate.Month() != 1 || cfg.StartDate.Day() != 1 {
		t.Fatalf("StartDate = %v", cfg.StartDate)
	}
}

func TestLoadRejectsRealObservationNature(t *testing.T) {
	path := writeTestConfig(t, `
MY_PATH: /data/chemda
RUN_NAME: test_run
RES: 4.0x5.0
REGION: ""
met_name: ""
NLEV: 1
STATE_VECTOR_CONC: [O3]
CONTROL_VECTOR_CONC: [O3]
CONTROL_VECTOR_EMIS: []
OBSERVED_SPECIES: []
OBS_OPERATORS: []
NATURE_OPERATOR: NA
OBS_ERROR_MATRICES: []
LOCALIZATION_RADIUS_km: 500
INFLATION_FACTOR: 1.1
pPERT: 0.15
ASSIM_TIME: 6
START_DATE: "20190101"
nEnsemble: 10
DO_CONTROL_RUN: true
`)
	if _, err := Load(path); err == nil {
		t.Fatal(`expected a ConfigError: NATURE_OPERATOR="NA" (real observations) is not implemented`)
	} else if _, ok := err.(*ConfigError); !ok {
		t.Fatalf("expected *ConfigError, got %T: %v", err, err)
	}
}

func TestLoadRejectsUnknownGrid(t *testing.T) {
	path := writeTestConfig(t, `
MY_PATH: /data/chemda
RUN_NAME: test_run
RES: not_a_real_grid
REGION: ""
met_name: ""
NLEV: 1
STATE_VECTOR_CONC: [O3]
CONTROL_VECTOR_CONC: [O3]
CONTROL_VECTOR_EMIS: []
OBSERVED_SPECIES: []
OBS_OPERATORS: []
NATURE_OPERATOR: GEOSChemNature
OBS_ERROR_MATRICES: []
LOCALIZATION_RADIUS_km: 500
INFLATION_FACTOR: 1.1
pPERT: 0.15
ASSIM_TIME: 6
START_DATE: "20190101"
nEnsemble: 10
DO_CONTROL_RUN: true
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected a ConfigError for an unsupported grid tag")
	} else if _, ok := err.(*ConfigError); !ok {
		t.Fatalf("expected *ConfigError, got %T: %v", err, err)
	}
}

func TestLoadRejectsPPertOutOfRange(t *testing.T) {
	path := writeTestConfig(t, `
MY_PATH: /data/chemda
RUN_NAME: test_run
RES: 4.0x5.0
REGION: ""
met_name: ""
NLEV: 1
STATE_VECTOR_CONC: [O3]
CONTROL_VECTOR_CONC: [O3]
CONTROL_VECTOR_EMIS: []
OBSERVED_SPECIES: []
OBS_OPERATORS: []
NATURE_OPERATOR: GEOSChemNature
OBS_ERROR_MATRICES: []
LOCALIZATION_RADIUS_km: 500
INFLATION_FACTOR: 1.1
pPERT: 1.5
ASSIM_TIME: 6
START_DATE: "20190101"
nEnsemble: 10
DO_CONTROL_RUN: true
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected a ConfigError for pPERT outside (0,1)")
	}
}

func TestLoadRejectsMismatchedObsLists(t *testing.T) {
	path := writeTestConfig(t, `
MY_PATH: /data/chemda
RUN_NAME: test_run
RES: 4.0x5.0
REGION: ""
met_name: ""
NLEV: 1
STATE_VECTOR_CONC: [O3]
CONTROL_VECTOR_CONC: [O3]
CONTROL_VECTOR_EMIS: []
OBSERVED_SPECIES:
  - O3_SURFACE: O3
OBS_OPERATORS: []
NATURE_OPERATOR: GEOSChemNature
OBS_ERROR_MATRICES:
  - "0.1"
LOCALIZATION_RADIUS_km: 500
INFLATION_FACTOR: 1.1
pPERT: 0.15
ASSIM_TIME: 6
START_DATE: "20190101"
nEnsemble: 10
DO_CONTROL_RUN: true
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected a ConfigError: OBS_OPERATORS has a different length than OBSERVED_SPECIES")
	}
}

func TestLoadRejectsControlConcNotInStateVector(t *testing.T) {
	path := writeTestConfig(t, `
MY_PATH: /data/chemda
RUN_NAME: test_run
RES: 4.0x5.0
REGION: ""
met_name: ""
NLEV: 1
STATE_VECTOR_CONC: [O3]
CONTROL_VECTOR_CONC: [NO2]
CONTROL_VECTOR_EMIS: []
OBSERVED_SPECIES: []
OBS_OPERATORS: []
NATURE_OPERATOR: GEOSChemNature
OBS_ERROR_MATRICES: []
LOCALIZATION_RADIUS_km: 500
INFLATION_FACTOR: 1.1
pPERT: 0.15
ASSIM_TIME: 6
START_DATE: "20190101"
nEnsemble: 10
DO_CONTROL_RUN: true
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected a ConfigError: CONTROL_VECTOR_CONC references a species not in STATE_VECTOR_CONC")
	}
}

func TestGridTagRegional(t *testing.T) {
	cfg := &Config{Region: "NA", MetName: "GEOSFP"}
	if got := cfg.GridTag(); got != "NA_GEOSFP" {
		t.Fatalf("GridTag() = %q, want NA_GEOSFP", got)
	}
}
