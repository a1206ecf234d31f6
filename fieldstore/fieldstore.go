// Package fieldstore holds, per ensemble member, the gridded
// concentration and emission-scaling-factor fields that the LETKF
// update reads and overwrites, and handles their on-disk GEOS-Chem
// restart / COARDS scaling-factor representation.
package fieldstore

import (
	"fmt"
	"time"

	"github.com/ctessum/sparse"
	"github.com/spatialmodel/chemda/grid"
)

// EmisSeries is the time-ordered history of a single emission species'
// scaling factor. Hours[i] is "hours since START_DATE 00:00:00" for
// Values[i]; both are ascending/parallel, as written to and read from
// a "{EMIS}_SCALEFACTOR.nc" file.
type EmisSeries struct {
	Hours  []float64
	Values []*sparse.DenseArray // each [lat,lon]
}

// Current returns the last (most recent) scaling factor slice.
func (e *EmisSeries) Current() *sparse.DenseArray {
	return e.Values[len(e.Values)-1]
}

// CurrentHour returns the hour-since-start stamp of the last slice.
func (e *EmisSeries) CurrentHour() float64 {
	return e.Hours[len(e.Hours)-1]
}

// IOError wraps a failure talking to the ensemble directory, carrying
// the file path that failed and, where known, the member it belongs
// to.
type IOError struct {
	Path   string
	Op     string
	Member int // -1 if not associated with a specific member
	Err    error
}

func (e *IOError) Error() string {
	if e.Member >= 0 {
		return fmt.Sprintf("fieldstore: member %d: %s %s: %v", e.Member, e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("fieldstore: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// InputShapeError is returned when a field's shape does not match the
// grid it is supposed to live on, or does not match a previously set
// field of the same species.
type InputShapeError struct {
	Component string
	Species   string
	Member    int // -1 if not associated with a specific member
	Want, Got []int
}

func (e *InputShapeError) Error() string {
	return fmt.Sprintf("fieldstore: %s: member %d species %s has shape %v, want %v", e.Component, e.Member, e.Species, e.Got, e.Want)
}

// FieldStore is one ensemble member's gridded state at a single
// assimilation time. It is created by Load, mutated in place by
// SetConc3D/AppendEmisSF, and written back by Save.
type FieldStore struct {
	Grid *grid.Spec

	// Member is the ensemble member number this store belongs to; 0 is
	// reserved for the nature (truth) run.
	Member int

	// RestartPath is the GEOSChem.Restart.{timestamp}z.nc4 file this
	// store was loaded from and will be saved to.
	RestartPath string

	// EmisPaths maps emission species to their "{EMIS}_SCALEFACTOR.nc"
	// file path.
	EmisPaths map[string]string

	// RestartTimestamp is the wall-clock stamp used for the restart
	// file's on-disk time coordinate.
	RestartTimestamp time.Time

	// StartDate anchors the "hours since START_DATE" time axis used by
	// the emission scaling-factor files.
	StartDate time.Time

	conc map[string]*sparse.DenseArray
	emis map[string]*EmisSeries
}

// New creates an empty FieldStore for the given grid; used by Load and
// by tests that construct fields synthetically.
func New(g *grid.Spec, member int, restartPath string, emisPaths map[string]string, startDate, restartTimestamp time.Time) *FieldStore {
	return &FieldStore{
		Grid:             g,
		Member:           member,
		RestartPath:      restartPath,
		EmisPaths:        emisPaths,
		StartDate:        startDate,
		RestartTimestamp: restartTimestamp,
		conc:             make(map[string]*sparse.DenseArray),
		emis:             make(map[string]*EmisSeries),
	}
}

func (f *FieldStore) concShape() []int {
	return []int{f.Grid.NLev, f.Grid.NLat(), f.Grid.NLon()}
}

func (f *FieldStore) emisShape() []int {
	return []int{f.Grid.NLat(), f.Grid.NLon()}
}

func shapeEqual(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// GetConc3D returns the [lev,lat,lon] concentration field for species.
func (f *FieldStore) GetConc3D(species string) (*sparse.DenseArray, error) {
	a, ok := f.conc[species]
	if !ok {
		return nil, fmt.Errorf("fieldstore: species %q not loaded", species)
	}
	return a, nil
}

// SetConc3D replaces the concentration field for species in place; arr
// must match the grid's [lev,lat,lon] shape.
func (f *FieldStore) SetConc3D(species string, arr *sparse.DenseArray) error {
	want := f.concShape()
	if !shapeEqual(arr.Shape, want) {
		return &InputShapeError{Component: "SetConc3D", Species: species, Member: f.Member, Want: want, Got: arr.Shape}
	}
	f.conc[species] = arr
	return nil
}

// GetCurrentEmisSF returns the most recent [lat,lon] scaling factor
// slice for an emission species.
func (f *FieldStore) GetCurrentEmisSF(species string) (*sparse.DenseArray, error) {
	e, ok := f.emis[species]
	if !ok {
		return nil, fmt.Errorf("fieldstore: emission species %q not loaded", species)
	}
	return e.Current(), nil
}

// AppendEmisSF appends a new scaling-factor time slice for species,
// stamped assimIntervalHours after the current last time. It never
// mutates past slices.
func (f *FieldStore) AppendEmisSF(species string, arr2D *sparse.DenseArray, assimIntervalHours float64) error {
	want := f.emisShape()
	if !shapeEqual(arr2D.Shape, want) {
		return &InputShapeError{Component: "AppendEmisSF", Species: species, Member: f.Member, Want: want, Got: arr2D.Shape}
	}
	e, ok := f.emis[species]
	if !ok {
		return fmt.Errorf("fieldstore: emission species %q not loaded", species)
	}
	newHour := e.CurrentHour() + assimIntervalHours
	e.Hours = append(e.Hours, newHour)
	e.Values = append(e.Values, arr2D)
	return nil
}

// InitEmisSF seeds the first scaling-factor time slice for an emission
// species at hour 0, used by the initialize-scaling-factors CLI
// subcommand (and by tests) before any assimilation cycle has run and
// there is no on-disk history yet to Load.
func (f *FieldStore) InitEmisSF(species string, arr2D *sparse.DenseArray) error {
	want := f.emisShape()
	if !shapeEqual(arr2D.Shape, want) {
		return &InputShapeError{Component: "InitEmisSF", Species: species, Member: f.Member, Want: want, Got: arr2D.Shape}
	}
	f.emis[species] = &EmisSeries{Hours: []float64{0}, Values: []*sparse.DenseArray{arr2D}}
	return nil
}

// EmisSeriesFor exposes the full time history for species, e.g. for
// StateVector.Reconstruct or tests.
func (f *FieldStore) EmisSeriesFor(species string) (*EmisSeries, error) {
	e, ok := f.emis[species]
	if !ok {
		return nil, fmt.Errorf("fieldstore: emission species %q not loaded", species)
	}
	return e, nil
}

// setConcRaw and setEmisRaw are used by Load to populate fields read
// from disk without re-checking shapes the reader already trusts.
func (f *FieldStore) setConcRaw(species string, arr *sparse.DenseArray) {
	f.conc[species] = arr
}

func (f *FieldStore) setEmisRaw(species string, series *EmisSeries) {
	f.emis[species] = series
}
