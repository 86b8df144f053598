package main

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunCommandRejectsUnknownCommand(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	err := runCommand("sideways", nil, strings.NewReader(""))
	require.ErrorContains(t, err, "sideways")
}

func TestConfirmDrop(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{"yes confirms", "yes\n", true},
		{"yes with whitespace", "  yes  \n", true},
		{"y is not enough", "y\n", false},
		{"no declines", "no\n", false},
		{"empty input declines", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, confirmDrop(strings.NewReader(tt.input)))
		})
	}
}
