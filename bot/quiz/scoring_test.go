package quiz

import (
	"reflect"
	"strings"
	"testing"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"a", "a"},
		{"A", "a"},
		{" b ", "b"},
		{"\tC\n", "c"},
		{"а Б в", "абв"},
		{"", ""},
		{"  ", ""},
	}
	for _, tc := range cases {
		if got := Normalize(tc.in); got != tc.want {
			t.Errorf("Normalize(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	for _, in := range []string{" A b C ", "абв", "x\ty\nz"} {
		once := Normalize(in)
		if twice := Normalize(once); twice != once {
			t.Errorf("Normalize not idempotent on %q: %q != %q", in, twice, once)
		}
	}
}

func TestScorePositionWise(t *testing.T) {
	key := []string{"A", "b", "C"}
	report, vector := Score([]string{"a", "B", "c"}, key)

	if want := []int{1, 1, 1}; !reflect.DeepEqual(vector, want) {
		t.Fatalf("vector = %v, want %v", vector, want)
	}
	lines := strings.Split(report, "\n")
	if len(lines) != 3 {
		t.Fatalf("report lines = %d, want 3", len(lines))
	}
	if lines[0] != "1. a ✅" {
		t.Errorf("line 1 = %q", lines[0])
	}
	if lines[2] != "3. c ✅" {
		t.Errorf("line 3 = %q", lines[2])
	}
}

func TestScoreWrongAnswers(t *testing.T) {
	key := []string{"a", "b"}
	report, vector := Score([]string{"b", "b"}, key)

	if want := []int{0, 1}; !reflect.DeepEqual(vector, want) {
		t.Fatalf("vector = %v, want %v", vector, want)
	}
	lines := strings.Split(report, "\n")
	if lines[0] != "1. b ❌" {
		t.Errorf("line 1 = %q", lines[0])
	}
	if lines[1] != "2. b ✅" {
		t.Errorf("line 2 = %q", lines[1])
	}
}

func TestScoreKeepsOriginalCharacters(t *testing.T) {
	report, _ := Score([]string{"D"}, []string{"d"})
	if !strings.Contains(report, "1. D ✅") {
		t.Errorf("report should show the submitted character verbatim: %q", report)
	}
}

func TestSplitAnswers(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{"abc", []string{"a", "b", "c"}},
		{"  ab  ", []string{"a", "b"}},
		{"", nil},
		{"аб", []string{"а", "б"}},
	}
	for _, tc := range cases {
		got := SplitAnswers(tc.in)
		if len(got) == 0 && len(tc.want) == 0 {
			continue
		}
		if !reflect.DeepEqual(got, tc.want) {
			t.Errorf("SplitAnswers(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}
