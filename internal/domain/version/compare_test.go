package version

import (
	"errors"
	"testing"
)

func TestCompare(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want int
	}{
		{"equal", "1.0.0", "1.0.0", 0},
		{"v prefix ignored", "v1.2.3", "1.2.3", 0},
		{"major", "2.0.0", "1.9.9", 1},
		{"minor", "1.2.0", "1.10.0", -1},
		{"patch", "1.0.1", "1.0.0", 1},
		{"missing segments are zero", "1.2", "1.2.0", 0},
		{"single segment", "2", "1.9.9", 1},
		{"four segments", "1.2.3.4", "1.2.3", 1},
		{"four segments equal with padding", "1.2.3.0", "v1.2.3", 0},
		{"prerelease below release", "1.0.0-beta.1", "1.0.0", -1},
		{"prerelease ordering", "1.0.0-alpha", "1.0.0-beta", -1},
		{"prerelease numeric ordering", "1.0.0-rc.2", "1.0.0-rc.10", -1},
		{"build metadata ignored", "1.0.0+build.5", "1.0.0", 0},
		{"non numeric segment is zero", "1.x.0", "1.0.0", 0},
		{"empty equals zero", "", "0.0.0", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Compare(tt.a, tt.b); got != tt.want {
				t.Errorf("Compare(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
			}
			if got := Compare(tt.b, tt.a); got != -tt.want {
				t.Errorf("Compare(%q, %q) = %d, want %d", tt.b, tt.a, got, -tt.want)
			}
		})
	}
}

func TestCompareStrictWeakOrdering(t *testing.T) {
	versions := []string{
		"v0.9.0", "1.0.0-alpha", "1.0.0-beta", "1.0.0", "v1.0", "1.0.0.1",
		"1.1", "2", "v2.0.0", "10.0.0", "garbage", "",
	}

	for _, a := range versions {
		if Compare(a, a) != 0 {
			t.Errorf("Compare(%q, %q) should be 0 (irreflexive)", a, a)
		}
		for _, b := range versions {
			if Compare(a, b) != -Compare(b, a) {
				t.Errorf("Compare(%q, %q) is not antisymmetric", a, b)
			}
			for _, c := range versions {
				if Compare(a, b) < 0 && Compare(b, c) < 0 && Compare(a, c) >= 0 {
					t.Errorf("ordering not transitive for %q < %q < %q", a, b, c)
				}
				if Compare(a, b) == 0 && Compare(b, c) == 0 && Compare(a, c) != 0 {
					t.Errorf("equivalence not transitive for %q, %q, %q", a, b, c)
				}
			}
		}
	}
}

func TestIsNewer(t *testing.T) {
	if !IsNewer("v2.0.0", "v1.0.0") {
		t.Error("IsNewer(v2.0.0, v1.0.0) should be true")
	}
	if IsNewer("v1.0.0", "1.0") {
		t.Error("IsNewer(v1.0.0, 1.0) should be false for equal versions")
	}
}

func TestLatest(t *testing.T) {
	tests := []struct {
		name     string
		versions []string
		want     string
	}{
		{"picks greatest", []string{"v1.0.0", "v2.0.0", "v0.9.0"}, "v2.0.0"},
		{"single element", []string{"v1.0.0"}, "v1.0.0"},
		{"first maximal element wins", []string{"1.0", "v1.0.0", "1.0.0"}, "1.0"},
		{"release beats prerelease", []string{"2.0.0-rc.1", "2.0.0", "1.9.9"}, "2.0.0"},
		{"numeric not lexical", []string{"v1.9.0", "v1.10.0", "v1.2.0"}, "v1.10.0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Latest(tt.versions)
			if err != nil {
				t.Fatalf("Latest() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Latest(%v) = %q, want %q", tt.versions, got, tt.want)
			}
		})
	}
}

func TestLatest_Empty(t *testing.T) {
	_, err := Latest(nil)
	if !errors.Is(err, ErrNoVersions) {
		t.Errorf("Latest(nil) error = %v, want ErrNoVersions", err)
	}
}
