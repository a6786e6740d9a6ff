package report

import (
	"strings"
	"testing"
)

func TestSanitize_ReplacesEveryKnownMarker(t *testing.T) {
	for marker, label := range MarkerLabels {
		got := Sanitize("before " + marker + " after")
		if !strings.Contains(got, label) {
			t.Errorf("marker %q: label %q missing in %q", marker, label, got)
		}
		if strings.Contains(got, marker) {
			t.Errorf("marker %q survived sanitization: %q", marker, got)
		}
	}
}

func TestSanitize_StripsInvisibles(t *testing.T) {
	in := "plain\u200b text\ufe0f with\u200d joiners\ufeff"
	got := Sanitize(in)
	if got != "plain text with joiners" {
		t.Errorf("invisibles: got %q", got)
	}
}

func TestSanitize_StripsUnknownPictographs(t *testing.T) {
	// Not in the marker table, still outside the core font range.
	got := Sanitize("rocket \U0001F680 launch")
	if got != "rocket  launch" {
		t.Errorf("unknown emoji: got %q", got)
	}
}

func TestSanitize_PassesOrdinaryTextThrough(t *testing.T) {
	in := "Leaf 1: Tomato, Early Blight (91.00%), coverage 22.50%"
	if got := Sanitize(in); got != in {
		t.Errorf("ordinary text changed: %q", got)
	}
}

func TestSanitize_VariationSelectorSequences(t *testing.T) {
	// Markers often arrive with an emoji variation selector attached.
	got := Sanitize("status \u2705\ufe0f done")
	if got != "status [OK] done" {
		t.Errorf("selector sequence: got %q", got)
	}
}
