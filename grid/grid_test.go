package grid

import (
	"math"
	"testing"
)

func TestGreatCircleKm(t *testing.T) {
	cases := []struct {
		lat1, lon1, lat2, lon2, want float64
	}{
		{0, 0, 0, 180, 20015.09},
		{90, 0, -90, 0, 20015.09},
		{0, 0, 0, 0, 0},
	}
	for _, c := range cases {
		got := GreatCircleKm(c.lat1, c.lon1, c.lat2, c.lon2)
		if math.Abs(got-c.want) > 1 {
			t.Errorf("GreatCircleKm(%v,%v,%v,%v) = %v, want %v ± 1", c.lat1, c.lon1, c.lat2, c.lon2, got, c.want)
		}
	}
}

func TestNewSpecUnsupported(t *testing.T) {
	if _, err := NewSpec("bogus", 1); err == nil {
		t.Fatal("expected UnsupportedGridError")
	} else if _, ok := err.(*UnsupportedGridError); !ok {
		t.Fatalf("expected *UnsupportedGridError, got %T", err)
	}
}

func TestNewSpecInvariants(t *testing.T) {
	for _, tag := range []string{"4.0x5.0", "2.0x2.5", "1x1", "0.5x0.625", "0.25x0.3125", "NA_GEOSFP"} {
		s, err := NewSpec(tag, 47)
		if err != nil {
			t.Fatalf("NewSpec(%q): %v", tag, err)
		}
		for i := 1; i < len(s.Lat); i++ {
			if s.Lat[i] <= s.Lat[i-1] {
				t.Errorf("%s: lat not strictly ascending at %d", tag, i)
			}
		}
		for i := 1; i < len(s.Lon); i++ {
			if s.Lon[i] <= s.Lon[i-1] {
				t.Errorf("%s: lon not strictly ascending at %d", tag, i)
			}
		}
		for _, l := range s.Lat {
			if math.Abs(l) > 90 {
				t.Errorf("%s: |lat|>90: %v", tag, l)
			}
		}
	}
}

func TestIndicesWithinIncludesCenterAndIsSymmetricLength(t *testing.T) {
	s, err := NewSpec("4.0x5.0", 1)
	if err != nil {
		t.Fatal(err)
	}
	p, err := s.IndicesWithin(10, 20, 500)
	if err != nil {
		t.Fatal(err)
	}
	if len(p.LatInds) != len(p.LonInds) {
		t.Fatalf("patch index arrays have different lengths: %d vs %d", len(p.LatInds), len(p.LonInds))
	}
	found := false
	for k := range p.LatInds {
		if p.LatInds[k] == 10 && p.LonInds[k] == 20 {
			found = true
		}
	}
	if !found {
		t.Error("patch does not include its own center cell")
	}
	// Repeated lookups must be memoized and return identical results.
	p2, err := s.IndicesWithin(10, 20, 500)
	if err != nil {
		t.Fatal(err)
	}
	if len(p2.LatInds) != len(p.LatInds) {
		t.Error("memoized patch differs in length from first computation")
	}
}
