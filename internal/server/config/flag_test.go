package config

import (
	"os"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlags(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	tests := []struct {
		expected    *Config
		name        string
		args        []string
		expectPanic bool
	}{
		{
			name: "all flags",
			args: []string{"cmd",
				"-d", "db", "-k", "00ff", "-l", "zap", "-t", "3s", "-b", "50", "-w", "8", "-x",
			},
			expected: &Config{
				DatabaseDSN:        "db",
				MasterKey:          "00ff",
				LogBackend:         "zap",
				OperationTimeout:   3 * time.Second,
				MigrationBatchSize: 50,
				MigrationWorkers:   8,
				HardDeleteNotes:    true,
			},
		},
		{
			name:     "foreign flags ignored",
			args:     []string{"cmd", "-c", "conf.json", "-z", "1"},
			expected: &Config{},
		},
		{
			name:        "bad duration",
			args:        []string{"cmd", "-t", "soon"},
			expectPanic: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Args = tt.args
			config := &Config{}

			if tt.expectPanic {
				require.Panics(t, func() { parseFlags(config) })
				return
			}
			require.NotPanics(t, func() { parseFlags(config) })
			assert.Empty(t, cmp.Diff(tt.expected, config))
		})
	}
}
