package util

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skipf("no home directory available: %v", err)
	}

	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "Bare tilde", input: "~", expected: home},
		{name: "Tilde prefix", input: "~/Documents/*.txt", expected: filepath.Join(home, "Documents/*.txt")},
		{name: "Absolute path", input: "/var/backups", expected: "/var/backups"},
		{name: "Tilde user form is untouched", input: "~alice/docs", expected: "~alice/docs"},
		{name: "Tilde in the middle", input: "/data/~/x", expected: "/data/~/x"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ExpandPath(tc.input)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.expected {
				t.Errorf("ExpandPath(%q) = %q, want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestInvertMap(t *testing.T) {
	in := map[string]int{"a": 1, "b": 2}
	got := InvertMap(in)
	want := map[int]string{1: "a", 2: "b"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("InvertMap() = %v, want %v", got, want)
	}
}

func TestMergeAndDeduplicate(t *testing.T) {
	got := MergeAndDeduplicate([]string{"b", "a"}, nil, []string{"a", "c", "b"})
	want := []string{"b", "a", "c"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("MergeAndDeduplicate() = %v, want %v", got, want)
	}

	if got := MergeAndDeduplicate(); len(got) != 0 {
		t.Errorf("expected empty result for no input, got %v", got)
	}
}

func TestPluralize(t *testing.T) {
	if got := Pluralize(1, "day", "days"); got != "day" {
		t.Errorf("Pluralize(1) = %q, want day", got)
	}
	for _, n := range []int{0, 2, 30} {
		if got := Pluralize(n, "day", "days"); got != "days" {
			t.Errorf("Pluralize(%d) = %q, want days", n, got)
		}
	}
}
