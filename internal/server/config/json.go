package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Duration is a time.Duration that unmarshals from either a duration string
// ("15m") or integer nanoseconds.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch value := v.(type) {
	case float64:
		d.Duration = time.Duration(value)
		return nil
	case string:
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		d.Duration = parsed
		return nil
	default:
		return fmt.Errorf("invalid duration: %v", v)
	}
}

// jsonConfig is an intermediate DTO used only for reading JSON configuration
// files. After unmarshalling, its fields are copied into the runtime Config.
// Pointer fields distinguish "absent" from zero values.
type jsonConfig struct {
	EndpointAddrGRPC                 *string   `json:"endpoint_addr_grpc"`
	DatabaseDSN                      *string   `json:"database_dsn"`
	SecretKey                        *string   `json:"secret_key"`
	TokenIssuer                      *string   `json:"token_issuer"`
	TokenAudience                    *string   `json:"token_audience"`
	PlatformPrivateKeyFile           *string   `json:"platform_private_key_file"`
	PlatformIssuer                   *string   `json:"platform_issuer"`
	PlatformAudience                 *string   `json:"platform_audience"`
	AccessTokenValidityDuration      *Duration `json:"access_token_validity_duration"`
	RefreshTokenValidityDuration     *Duration `json:"refresh_token_validity_duration"`
	PlatformTokenValidityDuration    *Duration `json:"platform_token_validity_duration"`
	VerificationCodeValidityDuration *Duration `json:"verification_code_validity_duration"`
	MaxConcurrentHashes              *int      `json:"max_concurrent_hashes"`
	NotifyTimeout                    *Duration `json:"notify_timeout"`
}

// parseJson loads configuration values from the JSON file named by the
// -c/-config flag, if any, and overlays them onto config. An unreadable or
// invalid file is a startup failure.
func parseJson(config *Config) {
	path := jsonConfigFile()
	if path == "" {
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		panic(fmt.Sprintf("reading config file: %v", err))
	}

	c := &jsonConfig{}
	if err := json.Unmarshal(data, c); err != nil {
		panic(fmt.Sprintf("parsing config file: %v", err))
	}

	applyJson(config, c)
}

func applyJson(config *Config, c *jsonConfig) {
	if c.EndpointAddrGRPC != nil {
		config.EndpointAddrGRPC = *c.EndpointAddrGRPC
	}
	if c.DatabaseDSN != nil {
		config.DatabaseDSN = *c.DatabaseDSN
	}
	if c.SecretKey != nil {
		config.SecretKey = *c.SecretKey
	}
	if c.TokenIssuer != nil {
		config.TokenIssuer = *c.TokenIssuer
	}
	if c.TokenAudience != nil {
		config.TokenAudience = *c.TokenAudience
	}
	if c.PlatformPrivateKeyFile != nil {
		config.PlatformPrivateKeyFile = *c.PlatformPrivateKeyFile
	}
	if c.PlatformIssuer != nil {
		config.PlatformIssuer = *c.PlatformIssuer
	}
	if c.PlatformAudience != nil {
		config.PlatformAudience = *c.PlatformAudience
	}
	if c.AccessTokenValidityDuration != nil {
		config.AccessTokenValidityDuration = c.AccessTokenValidityDuration.Duration
	}
	if c.RefreshTokenValidityDuration != nil {
		config.RefreshTokenValidityDuration = c.RefreshTokenValidityDuration.Duration
	}
	if c.PlatformTokenValidityDuration != nil {
		config.PlatformTokenValidityDuration = c.PlatformTokenValidityDuration.Duration
	}
	if c.VerificationCodeValidityDuration != nil {
		config.VerificationCodeValidityDuration = c.VerificationCodeValidityDuration.Duration
	}
	if c.MaxConcurrentHashes != nil {
		config.MaxConcurrentHashes = *c.MaxConcurrentHashes
	}
	if c.NotifyTimeout != nil {
		config.NotifyTimeout = c.NotifyTimeout.Duration
	}
}
