package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/rollkeeper/internal/flagx"
	"github.com/dmitrijs2005/rollkeeper/internal/timex"
)

// JsonConfig is the on-disk shape of the JSON configuration file. Duration
// fields use timex.Duration so both "5m" and integer nanoseconds parse.
// Only keys present in the file override the current configuration.
type JsonConfig struct {
	EndpointAddrGRPC            *string         `json:"endpoint_addr_grpc"`
	DatabaseDSN                 *string         `json:"database_dsn"`
	SecretKey                   *string         `json:"secret_key"`
	AccessTokenValidityDuration *timex.Duration `json:"access_token_validity_duration"`
	DefaultSessionDuration      *timex.Duration `json:"default_session_duration"`
	LogLevel                    *string         `json:"log_level"`
	StorageBackend              *string         `json:"storage_backend"`
	StorageDir                  *string         `json:"storage_dir"`
	SelfieMaxSide               *int            `json:"selfie_max_side"`
	S3RootUser                  *string         `json:"s3_root_user"`
	S3RootPassword              *string         `json:"s3_root_password"`
	S3Bucket                    *string         `json:"s3_bucket"`
	S3Region                    *string         `json:"s3_region"`
	S3BaseEndpoint              *string         `json:"s3_base_endpoint"`
}

// parseJson loads configuration values from the JSON file named by the -c or
// -config flag. Without the flag nothing is loaded. An unreadable file or
// invalid JSON panics.
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

	setString(&config.EndpointAddrGRPC, c.EndpointAddrGRPC)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.SecretKey, c.SecretKey)
	if c.AccessTokenValidityDuration != nil {
		config.AccessTokenValidityDuration = c.AccessTokenValidityDuration.Duration
	}
	if c.DefaultSessionDuration != nil {
		config.DefaultSessionDuration = c.DefaultSessionDuration.Duration
	}
	setString(&config.LogLevel, c.LogLevel)
	setString(&config.StorageBackend, c.StorageBackend)
	setString(&config.StorageDir, c.StorageDir)
	if c.SelfieMaxSide != nil {
		config.SelfieMaxSide = *c.SelfieMaxSide
	}
	setString(&config.S3RootUser, c.S3RootUser)
	setString(&config.S3RootPassword, c.S3RootPassword)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}
