package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/openchat-im/openchat/internal/flagx"
)

// JsonConfig defines a configuration structure tailored for JSON
// unmarshalling. Durations are expressed as integer minutes.
//
// This struct is an intermediate DTO used only for reading JSON
// configuration files. After unmarshalling, its fields are copied into the
// runtime Config struct.
type JsonConfig struct {
	EndpointAddr                 string `json:"endpoint_addr"`
	DirectoryDSN                 string `json:"directory_dsn"`
	StoreBaseDSN                 string `json:"store_base_dsn"`
	PublicStoreBaseDSN           string `json:"public_store_base_dsn"`
	SecretKey                    string `json:"secret_key"`
	SessionTokenValidityMinutes  int    `json:"session_token_validity_minutes"`
	FallbackCachePath            string `json:"fallback_cache_path"`
	S3RootUser                   string `json:"s3_root_user"`
	S3RootPassword               string `json:"s3_root_password"`
	S3Bucket                     string `json:"s3_bucket"`
	S3Region                     string `json:"s3_region"`
	S3BaseEndpoint               string `json:"s3_base_endpoint"`
}

// parseJson loads configuration values from a JSON file into the provided
// Config instance.
//
// The JSON file path comes from the -c or -config command-line flags; when
// neither is set, no JSON file is loaded. If the file cannot be read or
// contains invalid JSON, the function panics. Empty fields in the file leave
// the corresponding Config values untouched.
func parseJson(config *Config) {

	jsonConfigFile := flagx.JsonConfigFlags()

	// nothing to load
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

	if c.EndpointAddr != "" {
		config.EndpointAddr = c.EndpointAddr
	}
	if c.DirectoryDSN != "" {
		config.DirectoryDSN = c.DirectoryDSN
	}
	if c.StoreBaseDSN != "" {
		config.StoreBaseDSN = c.StoreBaseDSN
	}
	if c.PublicStoreBaseDSN != "" {
		config.PublicStoreBaseDSN = c.PublicStoreBaseDSN
	}
	if c.SecretKey != "" {
		config.SecretKey = c.SecretKey
	}
	if c.SessionTokenValidityMinutes > 0 {
		config.SessionTokenValidityDuration = time.Duration(c.SessionTokenValidityMinutes) * time.Minute
	}
	if c.FallbackCachePath != "" {
		config.FallbackCachePath = c.FallbackCachePath
	}
	if c.S3RootUser != "" {
		config.S3RootUser = c.S3RootUser
	}
	if c.S3RootPassword != "" {
		config.S3RootPassword = c.S3RootPassword
	}
	if c.S3Bucket != "" {
		config.S3Bucket = c.S3Bucket
	}
	if c.S3Region != "" {
		config.S3Region = c.S3Region
	}
	if c.S3BaseEndpoint != "" {
		config.S3BaseEndpoint = c.S3BaseEndpoint
	}
}
