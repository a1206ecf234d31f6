// Package statevector flattens a FieldStore's concentration and
// emission-scaling-factor fields into the single vector the LETKF
// kernel operates on, and reconstructs an analysis vector back into a
// FieldStore.
package statevector

import (
	"fmt"

	"github.com/spatialmodel/chemda/fieldstore"
	"github.com/spatialmodel/chemda/grid"
)

// InputShapeError is returned when a FieldStore's fields don't match
// the shapes a Layout expects.
type InputShapeError struct {
	Component string
	Species   string
	Want, Got []int
}

func (e *InputShapeError) Error() string {
	return fmt.Sprintf("statevector: %s: species %s has shape %v, want %v", e.Component, e.Species, e.Got, e.Want)
}

// Layout describes how a state vector is assembled: which species
// contribute 3-D concentration segments, which of those are actually
// written back on reconstruction (the concentration control vector),
// and which species contribute 2-D emission-scaling-factor segments
// (the emission control vector).
//
// The emission segment count is derived from EmisSpecies alone. The
// reference toolkit this was ported from instead re-used the
// concentration state species count for this purpose, which produces
// wrong segment boundaries whenever the two lists differ in length;
// we intentionally do not reproduce that coupling.
type Layout struct {
	Grid *grid.Spec

	// StateSpecies are the 3-D concentration species making up the
	// state vector, in segment order.
	StateSpecies []string

	// ControlConc is the subset of StateSpecies actually updated by
	// Reconstruct; the rest are read-only passengers.
	ControlConc map[string]bool

	// EmisSpecies are the 2-D emission-scaling-factor species making
	// up the state vector's tail, in segment order.
	EmisSpecies []string
}

// segment describes one contiguous run of the flattened vector.
type segment struct {
	species string
	isEmis  bool
	offset  int
	length  int
}

func (l *Layout) segments() []segment {
	nlevlatlon := l.Grid.NLev * l.Grid.NLat() * l.Grid.NLon()
	nlatlon := l.Grid.NLat() * l.Grid.NLon()
	segs := make([]segment, 0, len(l.StateSpecies)+len(l.EmisSpecies))
	offset := 0
	for _, s := range l.StateSpecies {
		segs = append(segs, segment{species: s, offset: offset, length: nlevlatlon})
		offset += nlevlatlon
	}
	for _, e := range l.EmisSpecies {
		segs = append(segs, segment{species: e, isEmis: true, offset: offset, length: nlatlon})
		offset += nlatlon
	}
	return segs
}

// SegmentLengths returns the length of each segment in vector order
// (state species first, then emission species), so unflattening is
// exact.
func (l *Layout) SegmentLengths() []int {
	segs := l.segments()
	lens := make([]int, len(segs))
	for i, s := range segs {
		lens[i] = s.length
	}
	return lens
}

// TotalLength is the full state-vector length: sum of every segment.
func (l *Layout) TotalLength() int {
	n := 0
	for _, l := range l.SegmentLengths() {
		n += l
	}
	return n
}

// StateVector is a concrete flattened vector built from one
// FieldStore, plus the layout that produced it.
type StateVector struct {
	Layout *Layout
	Values []float64
}

// Build concatenates, in order, every state species' flattened
// [lev,lat,lon] concentration field followed by every emission
// species' flattened current [lat,lon] scaling factor.
func Build(l *Layout, fs *fieldstore.FieldStore) (*StateVector, error) {
	total := l.TotalLength()
	values := make([]float64, 0, total)
	for _, s := range l.StateSpecies {
		arr, err := fs.GetConc3D(s)
		if err != nil {
			return nil, err
		}
		want := []int{l.Grid.NLev, l.Grid.NLat(), l.Grid.NLon()}
		if !shapeEqual(arr.Shape, want) {
			return nil, &InputShapeError{Component: "Build", Species: s, Want: want, Got: arr.Shape}
		}
		values = append(values, arr.Elements...)
	}
	for _, e := range l.EmisSpecies {
		arr, err := fs.GetCurrentEmisSF(e)
		if err != nil {
			return nil, err
		}
		want := []int{l.Grid.NLat(), l.Grid.NLon()}
		if !shapeEqual(arr.Shape, want) {
			return nil, &InputShapeError{Component: "Build", Species: e, Want: want, Got: arr.Shape}
		}
		values = append(values, arr.Elements...)
	}
	return &StateVector{Layout: l, Values: values}, nil
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

// Reconstruct writes an analysis vector of full state length back into
// fs: each concentration-control-vector species' segment is reshaped
// to [lev,lat,lon] and written back (other state species are left
// untouched); each emission species' segment is reshaped to [lat,lon]
// and appended as a new scaling-factor time slice.
func (sv *StateVector) Reconstruct(analysis []float64, fs *fieldstore.FieldStore, assimIntervalHours float64) error {
	l := sv.Layout
	if len(analysis) != l.TotalLength() {
		return fmt.Errorf("statevector: Reconstruct: analysis vector has length %d, want %d", len(analysis), l.TotalLength())
	}
	nlev, nlat, nlon := l.Grid.NLev, l.Grid.NLat(), l.Grid.NLon()
	for _, seg := range l.segments() {
		chunk := analysis[seg.offset : seg.offset+seg.length]
		if seg.isEmis {
			arr := newDense2D(nlat, nlon, chunk)
			if err := fs.AppendEmisSF(seg.species, arr, assimIntervalHours); err != nil {
				return err
			}
			continue
		}
		if !l.ControlConc[seg.species] {
			continue // read-only passenger, not written back
		}
		arr := newDense3D(nlev, nlat, nlon, chunk)
		if err := fs.SetConc3D(seg.species, arr); err != nil {
			return err
		}
	}
	return nil
}
