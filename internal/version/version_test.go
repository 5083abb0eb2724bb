package version

import (
	"strings"
	"testing"
)

func TestInfoDefaults(t *testing.T) {
	v, c, d := Info()
	if v == "" || c == "" || d == "" {
		t.Fatalf("build metadata must not be empty: version=%q commit=%q date=%q", v, c, d)
	}
}

func TestGetVersionMatchesInfo(t *testing.T) {
	v, _, _ := Info()
	if got := GetVersion(); got != v {
		t.Errorf("GetVersion returned %q, Info returned %q", got, v)
	}
}

func TestStringFormat(t *testing.T) {
	s := String()
	for _, part := range []string{"version=", "commit=", "date="} {
		if !strings.Contains(s, part) {
			t.Errorf("String %q is missing %q", s, part)
		}
	}
}
