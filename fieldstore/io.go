package fieldstore

import (
	"fmt"
	"os"
	"time"

	"github.com/ctessum/cdf"
	"github.com/ctessum/sparse"
	"github.com/spatialmodel/chemda/grid"
)

// restartVarName is the GEOS-Chem restart-file naming convention for a
// species' 3D concentration variable.
func restartVarName(species string) string {
	return "SpeciesRst_" + species
}

// Scalar is the data variable name used by CHEEREIO-style scaling
// factor files; Time is its accompanying "hours since START_DATE
// 00:00:00" coordinate.
const (
	scalarVar = "Scalar"
	timeVar   = "time"
	latVar    = "lat"
	lonVar    = "lon"
	levVar    = "lev"
)

// Load opens the restart file and every emission species' scaling
// factor file named in emisPaths, and returns a populated FieldStore.
// Species not present in the restart file produce an *IOError.
func Load(g *grid.Spec, member int, restartPath string, concSpecies []string, emisPaths map[string]string, startDate, restartTimestamp time.Time) (*FieldStore, error) {
	fs := New(g, member, restartPath, emisPaths, startDate, restartTimestamp)

	rf, err := os.Open(restartPath)
	if err != nil {
		return nil, &IOError{Path: restartPath, Op: "open", Member: member, Err: err}
	}
	defer rf.Close()
	ff, err := cdf.Open(rf)
	if err != nil {
		return nil, &IOError{Path: restartPath, Op: "open netcdf header", Member: member, Err: err}
	}
	for _, species := range concSpecies {
		arr, err := readRestartSpecies(ff, species)
		if err != nil {
			return nil, &IOError{Path: restartPath, Op: "read " + restartVarName(species), Member: member, Err: err}
		}
		want := fs.concShape()
		if !shapeEqual(arr.Shape, want) {
			return nil, &InputShapeError{Component: "Load", Species: species, Member: member, Want: want, Got: arr.Shape}
		}
		fs.setConcRaw(species, arr)
	}

	for species, path := range emisPaths {
		series, err := loadEmisSeries(path, g)
		if err != nil {
			return nil, &IOError{Path: path, Op: "read scaling factors for " + species, Member: member, Err: err}
		}
		fs.setEmisRaw(species, series)
	}

	return fs, nil
}

// readRestartSpecies reads a single time-record ([1,lev,lat,lon])
// concentration variable and squeezes off its leading time dimension,
// following the teacher preprocessor's readNCF convention.
func readRestartSpecies(ff *cdf.File, species string) (*sparse.DenseArray, error) {
	name := restartVarName(species)
	dims := ff.Header.Lengths(name)
	if len(dims) == 0 {
		return nil, fmt.Errorf("variable %s not in file", name)
	}
	dims = dims[1:] // drop the length-1 time record dimension
	nread := 1
	for _, d := range dims {
		nread *= d
	}
	start := make([]int, len(dims)+1)
	end := make([]int, len(dims)+1)
	start[0], end[0] = 0, 1
	for i, d := range dims {
		end[i+1] = d
	}
	r := ff.Reader(name, start, end)
	buf := r.Zero(nread)
	if _, err := r.Read(buf); err != nil {
		return nil, fmt.Errorf("reading variable %s: %v", name, err)
	}
	data := sparse.ZerosDense(dims...)
	if err := copyInto(data, buf); err != nil {
		return nil, fmt.Errorf("variable %s: %v", name, err)
	}
	return data, nil
}

// loadEmisSeries reads the full on-disk scaling-factor time series for
// one emission species.
func loadEmisSeries(path string, g *grid.Spec) (*EmisSeries, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	ff, err := cdf.Open(f)
	if err != nil {
		return nil, err
	}

	timeDims := ff.Header.Lengths(timeVar)
	if len(timeDims) != 1 {
		return nil, fmt.Errorf("unexpected time coordinate shape %v", timeDims)
	}
	nt := timeDims[0]
	tr := ff.Reader(timeVar, []int{0}, []int{nt})
	tbuf := tr.Zero(nt)
	if _, err := tr.Read(tbuf); err != nil {
		return nil, fmt.Errorf("reading time coordinate: %v", err)
	}
	hours, err := toFloat64Slice(tbuf)
	if err != nil {
		return nil, err
	}

	dims := ff.Header.Lengths(scalarVar)
	if len(dims) != 3 {
		return nil, fmt.Errorf("unexpected %s shape %v", scalarVar, dims)
	}
	nlat, nlon := dims[1], dims[2]
	if nlat != g.NLat() || nlon != g.NLon() {
		return nil, fmt.Errorf("%s shape [%d,%d] does not match grid %q [%d,%d]", scalarVar, nlat, nlon, g.Tag, g.NLat(), g.NLon())
	}

	series := &EmisSeries{Hours: hours, Values: make([]*sparse.DenseArray, nt)}
	for t := 0; t < nt; t++ {
		start := []int{t, 0, 0}
		end := []int{t + 1, nlat, nlon}
		r := ff.Reader(scalarVar, start, end)
		buf := r.Zero(nlat * nlon)
		if _, err := r.Read(buf); err != nil {
			return nil, fmt.Errorf("reading %s record %d: %v", scalarVar, t, err)
		}
		slice := sparse.ZerosDense(nlat, nlon)
		if err := copyInto(slice, buf); err != nil {
			return nil, err
		}
		series.Values[t] = slice
	}
	return series, nil
}

// copyInto converts a []float32/[]float64 buffer read off disk into
// arr's Elements, converting to float64 as needed.
func copyInto(arr *sparse.DenseArray, buf interface{}) error {
	vals, err := toFloat64Slice(buf)
	if err != nil {
		return err
	}
	if len(vals) != len(arr.Elements) {
		return fmt.Errorf("read %d values, want %d", len(vals), len(arr.Elements))
	}
	copy(arr.Elements, vals)
	return nil
}

func toFloat64Slice(buf interface{}) ([]float64, error) {
	switch b := buf.(type) {
	case []float64:
		return b, nil
	case []float32:
		out := make([]float64, len(b))
		for i, v := range b {
			out[i] = float64(v)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported netcdf element type %T", buf)
	}
}

// Save writes the restart file's concentration fields and every
// emission species' full accumulated scaling-factor history back to
// disk, overwriting the files this FieldStore was loaded from. It
// rewrites each emission file whole, matching the reference toolkit's
// concatenate-then-rewrite behavior rather than appending in place.
func (f *FieldStore) Save() error {
	if err := f.saveRestart(); err != nil {
		return err
	}
	for species := range f.emis {
		if err := f.saveEmis(species); err != nil {
			return err
		}
	}
	return nil
}

// SaveEmisOnly writes every emission species' accumulated
// scaling-factor history back to disk without touching the restart
// file, used by the initialize-scaling-factors CLI subcommand to seed
// a member's scaling-factor files before any assimilation cycle (and
// so before any restart file) exists for it.
func (f *FieldStore) SaveEmisOnly() error {
	for species := range f.emis {
		if err := f.saveEmis(species); err != nil {
			return err
		}
	}
	return nil
}

func (f *FieldStore) saveRestart() error {
	w, err := os.Create(f.RestartPath)
	if err != nil {
		return &IOError{Path: f.RestartPath, Op: "create", Member: f.Member, Err: err}
	}
	defer w.Close()

	nlev, nlat, nlon := f.Grid.NLev, f.Grid.NLat(), f.Grid.NLon()
	h := cdf.NewHeader(
		[]string{"time", "lev", "lat", "lon"},
		[]int{1, nlev, nlat, nlon})
	h.AddAttribute("", "Conventions", "COARDS")
	h.AddAttribute("", "comment", "chemda ensemble-member restart file")
	h.AddAttribute("", "grid_tag", f.Grid.Tag)
	h.AddVariable(timeVar, []string{"time"}, []float64{0})
	h.AddAttribute(timeVar, "long_name", "time")
	h.AddAttribute(timeVar, "calendar", "standard")
	h.AddAttribute(timeVar, "units", fmt.Sprintf("hours since %s", f.RestartTimestamp.Format("2006-01-02 15:04:05")))
	h.AddVariable(levVar, []string{"lev"}, []float64{0})
	h.AddAttribute(levVar, "long_name", "Level")
	h.AddAttribute(levVar, "units", "1")
	h.AddVariable(latVar, []string{"lat"}, []float64{0})
	h.AddAttribute(latVar, "long_name", "Latitude")
	h.AddAttribute(latVar, "units", "degrees_north")
	h.AddVariable(lonVar, []string{"lon"}, []float64{0})
	h.AddAttribute(lonVar, "long_name", "Longitude")
	h.AddAttribute(lonVar, "units", "degrees_east")
	for species := range f.conc {
		name := restartVarName(species)
		h.AddVariable(name, []string{"time", "lev", "lat", "lon"}, []float32{0})
		h.AddAttribute(name, "units", "mol mol-1 dry")
	}
	h.Define()

	cf, err := cdf.Create(w, h)
	if err != nil {
		return &IOError{Path: f.RestartPath, Op: "write header", Member: f.Member, Err: err}
	}
	if err := writeWholeVar(cf, timeVar, []int{1}, []float64{0}); err != nil {
		return &IOError{Path: f.RestartPath, Op: "write time", Member: f.Member, Err: err}
	}
	lev := make([]float64, nlev)
	for i := range lev {
		lev[i] = float64(i + 1)
	}
	if err := writeWholeVar(cf, levVar, []int{nlev}, lev); err != nil {
		return &IOError{Path: f.RestartPath, Op: "write lev", Member: f.Member, Err: err}
	}
	if err := writeWholeVar(cf, latVar, []int{nlat}, f.Grid.Lat); err != nil {
		return &IOError{Path: f.RestartPath, Op: "write lat", Member: f.Member, Err: err}
	}
	if err := writeWholeVar(cf, lonVar, []int{nlon}, f.Grid.Lon); err != nil {
		return &IOError{Path: f.RestartPath, Op: "write lon", Member: f.Member, Err: err}
	}
	for species, arr := range f.conc {
		name := restartVarName(species)
		if err := writeWholeVar(cf, name, []int{1, nlev, nlat, nlon}, arr.Elements); err != nil {
			return &IOError{Path: f.RestartPath, Op: "write " + name, Member: f.Member, Err: err}
		}
	}
	if err := cdf.UpdateNumRecs(w); err != nil {
		return &IOError{Path: f.RestartPath, Op: "update record count", Member: f.Member, Err: err}
	}
	return nil
}

func (f *FieldStore) saveEmis(species string) error {
	path := f.EmisPaths[species]
	series := f.emis[species]
	w, err := os.Create(path)
	if err != nil {
		return &IOError{Path: path, Op: "create", Member: f.Member, Err: err}
	}
	defer w.Close()

	nt := len(series.Hours)
	nlat, nlon := f.Grid.NLat(), f.Grid.NLon()
	h := cdf.NewHeader([]string{"time", "lat", "lon"}, []int{nt, nlat, nlon})
	h.AddAttribute("", "Conventions", "COARDS")
	h.AddAttribute("", "species", species)
	h.AddVariable(timeVar, []string{"time"}, []float64{0})
	h.AddAttribute(timeVar, "long_name", "time")
	h.AddAttribute(timeVar, "calendar", "standard")
	h.AddAttribute(timeVar, "units", fmt.Sprintf("hours since %s", f.StartDate.Format("2006-01-02 15:04:05")))
	h.AddVariable(latVar, []string{"lat"}, []float64{0})
	h.AddAttribute(latVar, "long_name", "Latitude")
	h.AddAttribute(latVar, "units", "degrees_north")
	h.AddVariable(lonVar, []string{"lon"}, []float64{0})
	h.AddAttribute(lonVar, "long_name", "Longitude")
	h.AddAttribute(lonVar, "units", "degrees_east")
	h.AddVariable(scalarVar, []string{"time", "lat", "lon"}, []float32{0})
	h.AddAttribute(scalarVar, "long_name", species+" emission scaling factor")
	h.AddAttribute(scalarVar, "units", "1")
	h.Define()

	cf, err := cdf.Create(w, h)
	if err != nil {
		return &IOError{Path: path, Op: "write header", Member: f.Member, Err: err}
	}
	if err := writeWholeVar(cf, timeVar, []int{nt}, series.Hours); err != nil {
		return &IOError{Path: path, Op: "write time", Member: f.Member, Err: err}
	}
	if err := writeWholeVar(cf, latVar, []int{nlat}, f.Grid.Lat); err != nil {
		return &IOError{Path: path, Op: "write lat", Member: f.Member, Err: err}
	}
	if err := writeWholeVar(cf, lonVar, []int{nlon}, f.Grid.Lon); err != nil {
		return &IOError{Path: path, Op: "write lon", Member: f.Member, Err: err}
	}
	flat := make([]float64, 0, nt*nlat*nlon)
	for _, slice := range series.Values {
		flat = append(flat, slice.Elements...)
	}
	if err := writeWholeVar(cf, scalarVar, []int{nt, nlat, nlon}, flat); err != nil {
		return &IOError{Path: path, Op: "write scalar", Member: f.Member, Err: err}
	}
	if err := cdf.UpdateNumRecs(w); err != nil {
		return &IOError{Path: path, Op: "update record count", Member: f.Member, Err: err}
	}
	return nil
}

// writeWholeVar writes all of vals to the named variable in one shot,
// converting to float32 unless the variable was declared as a double
// (the "time"/"lat"/"lon"/"lev" coordinates, matching the teacher's
// writeNCF convention of storing science data as float32).
func writeWholeVar(f *cdf.File, name string, shape []int, vals []float64) error {
	n := 1
	for _, s := range shape {
		n *= s
	}
	if len(vals) != n {
		return fmt.Errorf("variable %s: have %d values, want %d", name, len(vals), n)
	}
	end := f.Header.Lengths(name)
	start := make([]int, len(end))
	w := f.Writer(name, start, end)
	switch name {
	case timeVar, latVar, lonVar, levVar:
		_, err := w.Write(vals)
		return err
	}
	vals32 := make([]float32, len(vals))
	for i, v := range vals {
		vals32[i] = float32(v)
	}
	_, err := w.Write(vals32)
	return err
}
