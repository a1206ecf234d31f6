package obs

import (
	"math"
	"testing"

	"github.com/spatialmodel/chemda/grid"
)

func TestNewDiagLengthMismatch(t *testing.T) {
	_, err := NewDiag("NO2", []float64{1, 2}, []float64{0, 1}, []float64{0}, 0.1)
	if err == nil {
		t.Fatal("expected a length-mismatch ObservationError")
	}
}

func TestNewDiagNonFinite(t *testing.T) {
	_, err := NewDiag("NO2", []float64{1, math.NaN()}, []float64{0, 1}, []float64{0, 1}, 0.1)
	if err == nil {
		t.Fatal("expected a non-finite-value ObservationError")
	}
}

func TestNewDiagCovariance(t *testing.T) {
	s, err := NewDiag("NO2", []float64{10, 20}, []float64{0, 1}, []float64{0, 1}, 0.1)
	if err != nil {
		t.Fatal(err)
	}
	if got := s.R.At(0, 0); got != 1.0 {
		t.Fatalf("R[0,0] = %v, want 1.0", got)
	}
	if got := s.R.At(1, 1); got != 2.0 {
		t.Fatalf("R[1,1] = %v, want 2.0", got)
	}
	if got := s.R.At(0, 1); got != 0 {
		t.Fatalf("R[0,1] = %v, want 0 (diagonal)", got)
	}
}

func TestSubset(t *testing.T) {
	s, err := NewDiag("NO2", []float64{10, 20, 30}, []float64{0, 1, 2}, []float64{0, 1, 2}, 0.1)
	if err != nil {
		t.Fatal(err)
	}
	sub := s.Subset([]int{0, 2})
	if len(sub.Y) != 2 || sub.Y[0] != 10 || sub.Y[1] != 30 {
		t.Fatalf("unexpected subset Y: %v", sub.Y)
	}
	if sub.R.At(1, 1) != 3.0 {
		t.Fatalf("subset R[1,1] = %v, want 3.0", sub.R.At(1, 1))
	}
}

func TestCollectionLocalize(t *testing.T) {
	g, err := grid.NewSpec("4.0x5.0", 1)
	if err != nil {
		t.Fatal(err)
	}
	latIdx, lonIdx := 5, 5
	centerLat, centerLon := g.Lat[latIdx], g.Lon[lonIdx]

	s, err := NewDiag("NO2",
		[]float64{1, 2, 3},
		[]float64{centerLat, centerLat + 0.01, 80},
		[]float64{centerLon, centerLon + 0.01, -170},
		0.1)
	if err != nil {
		t.Fatal(err)
	}
	c := Collection{"NO2": s}

	indices, err := c.Localize(g, latIdx, lonIdx, "NO2", 500)
	if err != nil {
		t.Fatal(err)
	}
	if len(indices) != 2 {
		t.Fatalf("len(indices) = %d, want 2 (the two nearby obs, not the far one)", len(indices))
	}

	localSet, err := c.LocalSet(g, latIdx, lonIdx, "NO2", 500)
	if err != nil {
		t.Fatal(err)
	}
	if len(localSet.Y) != 2 {
		t.Fatalf("len(localSet.Y) = %d, want 2", len(localSet.Y))
	}
}

func TestCollectionLocalizeUnknownSpecies(t *testing.T) {
	g, err := grid.NewSpec("4.0x5.0", 1)
	if err != nil {
		t.Fatal(err)
	}
	c := Collection{}
	if _, err := c.Localize(g, 0, 0, "NO2", 500); err == nil {
		t.Fatal("expected ObservationError for unknown species")
	}
}

func TestCollectionLocalizeEmptyIsNotError(t *testing.T) {
	g, err := grid.NewSpec("4.0x5.0", 1)
	if err != nil {
		t.Fatal(err)
	}
	s, err := NewDiag("NO2", []float64{1}, []float64{80}, []float64{-170}, 0.1)
	if err != nil {
		t.Fatal(err)
	}
	c := Collection{"NO2": s}
	indices, err := c.Localize(g, 5, 5, "NO2", 100)
	if err != nil {
		t.Fatal(err)
	}
	if len(indices) != 0 {
		t.Fatalf("expected no observations within range, got %d", len(indices))
	}
}
