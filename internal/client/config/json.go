package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/altair/internal/flagx"
	"github.com/dmitrijs2005/altair/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling.
type JsonConfig struct {
	ServerEndpointAddr  string         `json:"server_endpoint_addr"`
	OnlineCheckInterval timex.Duration `json:"online_check_interval"`
	DatabasePath        string         `json:"database_path"`
	Timezone            string         `json:"timezone"`
	LogLevel            string         `json:"log_level"`
}

// parseJson overlays Config with values loaded from the file named by -c or
// -config. Keys absent from the file keep their current value. Panics on
// read or unmarshal errors.
func parseJson(config *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	if c.ServerEndpointAddr != "" {
		config.ServerEndpointAddr = c.ServerEndpointAddr
	}
	if c.OnlineCheckInterval.Duration != 0 {
		config.OnlineCheckInterval = c.OnlineCheckInterval.Duration
	}
	if c.DatabasePath != "" {
		config.DatabasePath = c.DatabasePath
	}
	if c.Timezone != "" {
		config.Timezone = c.Timezone
	}
	if c.LogLevel != "" {
		config.LogLevel = c.LogLevel
	}
}
