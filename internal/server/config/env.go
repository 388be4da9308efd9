package config

import (
	"os"
	"strconv"
	"time"

	"github.com/dmitrijs2005/rollkeeper/internal/flagx"
	"github.com/joho/godotenv"
)

// envPrefix namespaces every environment variable read by the server.
const envPrefix = "ROLLKEEPER_"

// parseEnv overlays values from ROLLKEEPER_* environment variables.
//
// When -env points to a dotenv file it is loaded first and must exist;
// otherwise a .env in the working directory is loaded if present. Variables
// already set in the process environment take precedence over the file.
func parseEnv(config *Config) {
	if file := flagx.EnvFileFlags(); file != "" {
		if err := godotenv.Load(file); err != nil {
			panic(err)
		}
	} else {
		_ = godotenv.Load()
	}

	envString(&config.EndpointAddrGRPC, "GRPC_ADDR")
	envString(&config.DatabaseDSN, "DATABASE_DSN")
	envString(&config.SecretKey, "SECRET_KEY")
	envDuration(&config.AccessTokenValidityDuration, "ACCESS_TOKEN_VALIDITY")
	envDuration(&config.DefaultSessionDuration, "SESSION_DURATION")
	envString(&config.LogLevel, "LOG_LEVEL")
	envString(&config.StorageBackend, "STORAGE_BACKEND")
	envString(&config.StorageDir, "STORAGE_DIR")
	envInt(&config.SelfieMaxSide, "SELFIE_MAX_SIDE")
	envString(&config.S3RootUser, "S3_ROOT_USER")
	envString(&config.S3RootPassword, "S3_ROOT_PASSWORD")
	envString(&config.S3Bucket, "S3_BUCKET")
	envString(&config.S3Region, "S3_REGION")
	envString(&config.S3BaseEndpoint, "S3_BASE_ENDPOINT")
}

func envString(dst *string, key string) {
	if v, ok := os.LookupEnv(envPrefix + key); ok && v != "" {
		*dst = v
	}
}

func envInt(dst *int, key string) {
	if v, ok := os.LookupEnv(envPrefix + key); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			panic(err)
		}
		*dst = n
	}
}

func envDuration(dst *time.Duration, key string) {
	if v, ok := os.LookupEnv(envPrefix + key); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			panic(err)
		}
		*dst = d
	}
}
