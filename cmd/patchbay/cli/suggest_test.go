// Copyright 2026 The Patchbay Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"testing"

	"github.com/spf13/pflag"
)

func TestLevenshtein(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"run", "run", 0},
		{"run", "", 3},
		{"scan", "scna", 2},
		{"aply", "apply", 1},
		{"version", "verison", 2},
		{"run", "apply", 5},
	}
	for _, test := range tests {
		if got := levenshtein(test.a, test.b); got != test.want {
			t.Errorf("levenshtein(%q, %q) = %d, want %d", test.a, test.b, got, test.want)
		}
	}
}

func TestSuggestCommand(t *testing.T) {
	commands := []*Command{
		{Name: "run"},
		{Name: "scan"},
		{Name: "apply"},
		{Name: "version"},
	}

	tests := []struct {
		input string
		want  string
	}{
		{"rnu", "run"},
		{"scna", "scan"},
		{"aply", "apply"},
		{"completely-wrong", ""},
	}
	for _, test := range tests {
		if got := suggestCommand(test.input, commands); got != test.want {
			t.Errorf("suggestCommand(%q) = %q, want %q", test.input, got, test.want)
		}
	}
}

func TestSuggestFlag(t *testing.T) {
	newFlags := func() *pflag.FlagSet {
		flagSet := pflag.NewFlagSet("test", pflag.ContinueOnError)
		flagSet.String("manifest", "", "")
		flagSet.String("workers", "", "")
		flagSet.StringP("output", "o", "", "")
		return flagSet
	}

	tests := []struct {
		args []string
		want string
	}{
		{[]string{"--manifets", "x"}, "--manifest"},
		{[]string{"--workes=2"}, "--workers"},
		{[]string{"--manifest", "x"}, ""},
		{[]string{"positional"}, ""},
		{[]string{"--utterly-unrelated"}, ""},
	}
	for _, test := range tests {
		if got := suggestFlag(test.args, newFlags()); got != test.want {
			t.Errorf("suggestFlag(%v) = %q, want %q", test.args, got, test.want)
		}
	}
}
