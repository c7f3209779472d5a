package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPurgeOrdersCmd_Guards(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "no confirmation", args: []string{"purge-orders"}, want: "without --yes"},
		{name: "bad date", args: []string{"purge-orders", "--before", "soon", "--yes"}, want: "parse --before"},
		{name: "no database", args: []string{"purge-orders", "--yes"}, want: "database URL is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("DATABASE_URL", "")
			t.Setenv("STOCKROOM_DATABASE_URL", "")
			cmd := rootCmd()
			cmd.SetOut(&bytes.Buffer{})
			cmd.SetErr(&bytes.Buffer{})
			cmd.SetArgs(tt.args)
			err := cmd.Execute()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
