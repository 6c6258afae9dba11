package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dmitrijs2005/altair/internal/flagx"
	"github.com/dmitrijs2005/altair/internal/timex"
)

// JsonConfig is the on-disk form of Config. Durations accept either Go
// duration strings ("15m") or integer nanoseconds.
type JsonConfig struct {
	EndpointAddrGRPC             string         `json:"endpoint_addr_grpc"`
	MetricsAddr                  string         `json:"metrics_addr"`
	DatabaseDSN                  string         `json:"database_dsn"`
	SecretKey                    string         `json:"secret_key"`
	AccessTokenValidityDuration  timex.Duration `json:"access_token_validity_duration"`
	RefreshTokenValidityDuration timex.Duration `json:"refresh_token_validity_duration"`
	S3RootUser                   string         `json:"s3_root_user"`
	S3RootPassword               string         `json:"s3_root_password"`
	S3Bucket                     string         `json:"s3_bucket"`
	S3Region                     string         `json:"s3_region"`
	S3BaseEndpoint               string         `json:"s3_base_endpoint"`
	PresignExpiry                timex.Duration `json:"presign_expiry"`
	RoutineInterval              timex.Duration `json:"routine_interval"`
	Timezone                     string         `json:"timezone"`
	DefaultDailyBudget           int            `json:"default_daily_budget"`
	LogLevel                     string         `json:"log_level"`
}

// parseJson overlays the file named by -c/-config onto config. Keys absent
// from the file keep their current value. Unreadable or invalid files panic.
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

	str := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	dur := func(dst *time.Duration, v timex.Duration) {
		if v.Duration != 0 {
			*dst = v.Duration
		}
	}

	str(&config.EndpointAddrGRPC, c.EndpointAddrGRPC)
	str(&config.MetricsAddr, c.MetricsAddr)
	str(&config.DatabaseDSN, c.DatabaseDSN)
	str(&config.SecretKey, c.SecretKey)
	dur(&config.AccessTokenValidityDuration, c.AccessTokenValidityDuration)
	dur(&config.RefreshTokenValidityDuration, c.RefreshTokenValidityDuration)
	str(&config.S3RootUser, c.S3RootUser)
	str(&config.S3RootPassword, c.S3RootPassword)
	str(&config.S3Bucket, c.S3Bucket)
	str(&config.S3Region, c.S3Region)
	str(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	dur(&config.PresignExpiry, c.PresignExpiry)
	dur(&config.RoutineInterval, c.RoutineInterval)
	str(&config.Timezone, c.Timezone)
	str(&config.LogLevel, c.LogLevel)
	if c.DefaultDailyBudget != 0 {
		config.DefaultDailyBudget = c.DefaultDailyBudget
	}
}
