package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const envPrefix = "ALTAIR_"

// parseEnv loads .env when present and overlays every ALTAIR_* variable
// that is set. Malformed durations and numbers are ignored.
func parseEnv(config *Config) {
	_ = godotenv.Load()

	str := func(name string, dst *string) {
		if v, ok := os.LookupEnv(envPrefix + name); ok {
			*dst = v
		}
	}
	dur := func(name string, dst *time.Duration) {
		if v, ok := os.LookupEnv(envPrefix + name); ok {
			if d, err := time.ParseDuration(v); err == nil {
				*dst = d
			}
		}
	}

	str("GRPC_ADDR", &config.EndpointAddrGRPC)
	str("METRICS_ADDR", &config.MetricsAddr)
	str("DATABASE_DSN", &config.DatabaseDSN)
	str("SECRET_KEY", &config.SecretKey)
	dur("ACCESS_TOKEN_TTL", &config.AccessTokenValidityDuration)
	dur("REFRESH_TOKEN_TTL", &config.RefreshTokenValidityDuration)
	str("S3_ROOT_USER", &config.S3RootUser)
	str("S3_ROOT_PASSWORD", &config.S3RootPassword)
	str("S3_BUCKET", &config.S3Bucket)
	str("S3_REGION", &config.S3Region)
	str("S3_BASE_ENDPOINT", &config.S3BaseEndpoint)
	dur("PRESIGN_EXPIRY", &config.PresignExpiry)
	dur("ROUTINE_INTERVAL", &config.RoutineInterval)
	str("TIMEZONE", &config.Timezone)
	str("LOG_LEVEL", &config.LogLevel)
	if v, ok := os.LookupEnv(envPrefix + "DEFAULT_DAILY_BUDGET"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			config.DefaultDailyBudget = n
		}
	}
}
