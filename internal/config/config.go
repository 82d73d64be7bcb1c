// Package config loads the tapestry configuration file and applies
// TAPESTRY_* environment overrides on top of it.
package config

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is the file read when no path is given.
const DefaultPath = "tapestry.yaml"

// Config is the process configuration.
type Config struct {
	// Debounce is the history coalescing window.
	Debounce time.Duration `yaml:"debounce" json:"debounce"`
	LogLevel string        `yaml:"log_level" json:"log_level"`
	Server   ServerConfig  `yaml:"server" json:"server"`
	Redis    RedisConfig   `yaml:"redis" json:"redis"`
}

type ServerConfig struct {
	Port int `yaml:"port" json:"port"`
}

// RedisConfig enables the Redis history store when Addr is set.
type RedisConfig struct {
	Addr     string        `yaml:"addr" json:"addr"`
	Password string        `yaml:"password" json:"password"`
	DB       int           `yaml:"db" json:"db"`
	Prefix   string        `yaml:"prefix" json:"prefix"`
	TTL      time.Duration `yaml:"ttl" json:"ttl"`

	// EncryptionKey, when set, seals entries at rest. Base64 of 32 bytes.
	EncryptionKey string `yaml:"encryption_key" json:"encryption_key"`
	// FallbackKeys open entries sealed before a key rotation.
	FallbackKeys []string `yaml:"fallback_keys" json:"fallback_keys"`
}

// Enabled reports whether a Redis address is configured.
func (r RedisConfig) Enabled() bool {
	return r.Addr != ""
}

// Keys decodes the encryption keys. It returns a nil active key when
// encryption is off.
func (r RedisConfig) Keys() (active []byte, fallbacks [][]byte, err error) {
	if r.EncryptionKey == "" {
		return nil, nil, nil
	}
	decode := func(name, s string) ([]byte, error) {
		k, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		if len(k) != 32 {
			return nil, fmt.Errorf("%s must decode to 32 bytes, got %d", name, len(k))
		}
		return k, nil
	}
	if active, err = decode("redis.encryption_key", r.EncryptionKey); err != nil {
		return nil, nil, err
	}
	for i, s := range r.FallbackKeys {
		k, err := decode(fmt.Sprintf("redis.fallback_keys[%d]", i), s)
		if err != nil {
			return nil, nil, err
		}
		fallbacks = append(fallbacks, k)
	}
	return active, fallbacks, nil
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Debounce: 500 * time.Millisecond,
		LogLevel: "info",
		Server:   ServerConfig{Port: 8080},
		Redis:    RedisConfig{Prefix: "tapestry:history:"},
	}
}

// Load reads path (YAML, or JSON by extension) over the defaults and applies
// environment overrides. A missing file is not an error.
func Load(path string) (Config, error) {
	return load(path, os.LookupEnv)
}

func load(path string, lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()

	if path != "" {
		if err := readFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	if err := applyEnv(&cfg, lookup); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func readFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config: %w", err)
	}

	if strings.ToLower(filepath.Ext(path)) == ".json" {
		var raw struct {
			Config
			Debounce string `json:"debounce"`
		}
		raw.Config = *cfg
		if err := json.Unmarshal(data, &raw); err != nil {
			return fmt.Errorf("failed to parse %s: %w", path, err)
		}
		*cfg = raw.Config
		if raw.Debounce != "" {
			d, err := time.ParseDuration(raw.Debounce)
			if err != nil {
				return fmt.Errorf("failed to parse %s: debounce: %w", path, err)
			}
			cfg.Debounce = d
		}
		return nil
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		v, ok := lookup(key)
		if !ok {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = n
		return nil
	}
	dur := func(key string, dst *time.Duration) error {
		v, ok := lookup(key)
		if !ok {
			return nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = d
		return nil
	}

	str("TAPESTRY_LOG_LEVEL", &cfg.LogLevel)
	str("TAPESTRY_REDIS_ADDR", &cfg.Redis.Addr)
	str("TAPESTRY_REDIS_PASSWORD", &cfg.Redis.Password)
	str("TAPESTRY_REDIS_PREFIX", &cfg.Redis.Prefix)
	str("TAPESTRY_REDIS_ENCRYPTION_KEY", &cfg.Redis.EncryptionKey)
	for _, err := range []error{
		dur("TAPESTRY_DEBOUNCE", &cfg.Debounce),
		dur("TAPESTRY_REDIS_TTL", &cfg.Redis.TTL),
		num("TAPESTRY_PORT", &cfg.Server.Port),
		num("TAPESTRY_REDIS_DB", &cfg.Redis.DB),
	} {
		if err != nil {
			return fmt.Errorf("invalid environment override: %w", err)
		}
	}
	return nil
}

// Validate rejects values no component can run with.
func (c Config) Validate() error {
	if c.Debounce <= 0 {
		return fmt.Errorf("debounce must be positive, got %s", c.Debounce)
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if c.Redis.TTL < 0 {
		return fmt.Errorf("redis.ttl must not be negative, got %s", c.Redis.TTL)
	}
	if _, _, err := c.Redis.Keys(); err != nil {
		return err
	}
	return nil
}
