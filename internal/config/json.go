package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/openpos/companysync/internal/flagx"
	"github.com/openpos/companysync/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. It relies
// on timex.Duration so JSON can specify intervals either as strings like
// "60s" or as integer nanoseconds. After parsing, values are copied into
// the runtime Config.
type JsonConfig struct {
	DatabaseDSN  string         `json:"database_dsn"`
	Relays       []string       `json:"relays"`
	JoinBaseURL  string         `json:"join_base_url"`
	LogLevel     string         `json:"log_level"`
	SyncInterval timex.Duration `json:"sync_interval"`
}

// parseJson overlays Config with values loaded from a JSON file. The file
// path comes from the -c or -config flags; when absent, nothing is
// loaded. Read or unmarshal errors panic, matching the fail-fast startup
// contract.
func parseJson(cfg *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	var jc JsonConfig

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	if jc.DatabaseDSN != "" {
		cfg.DatabaseDSN = jc.DatabaseDSN
	}
	if len(jc.Relays) > 0 {
		cfg.Relays = jc.Relays
	}
	if jc.JoinBaseURL != "" {
		cfg.JoinBaseURL = jc.JoinBaseURL
	}
	if jc.LogLevel != "" {
		cfg.LogLevel = jc.LogLevel
	}
	if jc.SyncInterval.Duration > 0 {
		cfg.SyncInterval = time.Duration(jc.SyncInterval.Duration)
	}
}
