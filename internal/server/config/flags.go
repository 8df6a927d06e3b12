package config

import (
	"flag"
	"os"

	"github.com/dmitrijs2005/notevault/internal/flagx"
)

// parseFlags populates Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-d string     PostgreSQL DSN
//	-k string     master key, 64 hex chars
//	-l string     log backend: slog or zap
//	-t duration   operation timeout (e.g. "5s")
//	-b int        re-encryption batch size
//	-w int        re-encryption worker count
//	-x bool       hard-delete notes
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-d", "-k", "-l", "-t", "-b", "-w"}, "-x")

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.MasterKey, "k", config.MasterKey, "master encryption key (hex)")
	fs.StringVar(&config.LogBackend, "l", config.LogBackend, "log backend (slog|zap)")
	fs.DurationVar(&config.OperationTimeout, "t", config.OperationTimeout, "operation timeout")
	fs.IntVar(&config.MigrationBatchSize, "b", config.MigrationBatchSize, "re-encryption batch size")
	fs.IntVar(&config.MigrationWorkers, "w", config.MigrationWorkers, "re-encryption workers")
	fs.BoolVar(&config.HardDeleteNotes, "x", config.HardDeleteNotes, "hard-delete notes")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}
}
