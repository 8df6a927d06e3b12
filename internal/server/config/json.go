package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/notevault/internal/flagx"
	"github.com/dmitrijs2005/notevault/internal/timex"
)

// JsonConfig is the on-disk shape of the config file. Zero values mean
// "not set"; HardDeleteNotes is a pointer so false can still be set explicitly.
type JsonConfig struct {
	DatabaseDSN        string         `json:"database_dsn"`
	MasterKey          string         `json:"master_key"`
	LogBackend         string         `json:"log_backend"`
	OperationTimeout   timex.Duration `json:"operation_timeout"`
	MigrationBatchSize int            `json:"migration_batch_size"`
	MigrationWorkers   int            `json:"migration_workers"`
	HardDeleteNotes    *bool          `json:"hard_delete_notes"`
}

// parseJson loads the file named by -c / -config, if any, over config.
// If the file cannot be read or contains invalid JSON, the function panics.
func parseJson(config *Config) {
	jsonConfigFile := flagx.ConfigFile()
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	if c.DatabaseDSN != "" {
		config.DatabaseDSN = c.DatabaseDSN
	}
	if c.MasterKey != "" {
		config.MasterKey = c.MasterKey
	}
	if c.LogBackend != "" {
		config.LogBackend = c.LogBackend
	}
	if c.OperationTimeout.Duration != 0 {
		config.OperationTimeout = c.OperationTimeout.Duration
	}
	if c.MigrationBatchSize != 0 {
		config.MigrationBatchSize = c.MigrationBatchSize
	}
	if c.MigrationWorkers != 0 {
		config.MigrationWorkers = c.MigrationWorkers
	}
	if c.HardDeleteNotes != nil {
		config.HardDeleteNotes = *c.HardDeleteNotes
	}
}
