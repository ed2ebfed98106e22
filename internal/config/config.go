// Package config loads the immutable, process-wide server configuration
// from a JSON file, hashing the password to its digest at load time and
// never retaining the plaintext.
package config

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/GreaterFire/trojan/internal/digest"
)

// RunType selects client or server behavior. This repository implements
// the server role only; Load accepts client so a shared config file format
// round-trips, and cmd/trojan-server rejects any run_type other than server.
type RunType string

const (
	RunServer RunType = "server"
	RunClient RunType = "client"
)

// Config is the read-only, shared configuration consumed by every session
// for the process lifetime.
type Config struct {
	RunType RunType `mapstructure:"run_type"`

	LocalAddr  string `mapstructure:"local_addr"`
	LocalPort  uint16 `mapstructure:"local_port"`
	RemoteAddr string `mapstructure:"remote_addr"`
	RemotePort uint16 `mapstructure:"remote_port"`

	// PasswordDigest is the 56-character lowercase hex SHA-224 of the
	// configured password. The plaintext password never reaches this
	// struct; Load discards it immediately after hashing.
	PasswordDigest string `mapstructure:"-"`

	CertFile           string `mapstructure:"certfile"`
	KeyFile            string `mapstructure:"keyfile"`
	KeyFilePassword    string `mapstructure:"keyfile_password"`
	SSLVerify          bool   `mapstructure:"ssl_verify"`
	SSLVerifyHostname  bool   `mapstructure:"ssl_verify_hostname"`
	CACerts            string `mapstructure:"ca_certs"`
	LogLevel           int    `mapstructure:"log_level"`

	// Operational additions, all optional. metrics_addr defaults to
	// 127.0.0.1:9090; the Kubernetes Secret fields default to empty.
	MetricsAddr        string `mapstructure:"metrics_addr"`
	TLSSecretName      string `mapstructure:"tls_secret_name"`
	TLSSecretNamespace string `mapstructure:"tls_secret_namespace"`
}

// defaults sets the configuration's default values.
func defaults(v *viper.Viper) {
	v.SetDefault("run_type", string(RunClient))
	v.SetDefault("local_port", 0)
	v.SetDefault("remote_port", 0)
	v.SetDefault("password", "")
	v.SetDefault("ssl_verify", true)
	v.SetDefault("ssl_verify_hostname", true)
	v.SetDefault("log_level", 1)
	v.SetDefault("metrics_addr", "127.0.0.1:9090")
}

// Load reads the JSON config file at path, validates it, and returns the
// immutable Config. The plaintext password is read into a local variable,
// hashed, and never copied into the returned struct.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")
	v.SetEnvPrefix("trojan")
	v.AutomaticEnv()
	defaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	for _, key := range []string{"local_port", "remote_port"} {
		if p := v.GetUint(key); p > 65535 {
			return nil, fmt.Errorf("config: %s %d is out of range", key, p)
		}
	}

	cfg := &Config{
		RunType:            RunType(v.GetString("run_type")),
		LocalAddr:          v.GetString("local_addr"),
		LocalPort:          uint16(v.GetUint("local_port")),
		RemoteAddr:         v.GetString("remote_addr"),
		RemotePort:         uint16(v.GetUint("remote_port")),
		CertFile:           v.GetString("certfile"),
		KeyFile:            v.GetString("keyfile"),
		KeyFilePassword:    v.GetString("keyfile_password"),
		SSLVerify:          v.GetBool("ssl_verify"),
		SSLVerifyHostname:  v.GetBool("ssl_verify_hostname"),
		CACerts:            v.GetString("ca_certs"),
		LogLevel:           v.GetInt("log_level"),
		MetricsAddr:        v.GetString("metrics_addr"),
		TLSSecretName:      v.GetString("tls_secret_name"),
		TLSSecretNamespace: v.GetString("tls_secret_namespace"),
	}

	password := []byte(v.GetString("password"))
	cfg.PasswordDigest = digest.Compute(password)
	zero(password)
	// viper holds its own copy of the string internally; there is no way
	// to scrub that from a map[string]any short of dropping the whole
	// Viper instance, which happens here since v does not escape Load.

	if cfg.LogLevel < 0 {
		cfg.LogLevel = 0
	}
	if cfg.LogLevel > 4 {
		cfg.LogLevel = 4
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.RunType != RunServer && c.RunType != RunClient {
		return fmt.Errorf("config: invalid run_type %q", c.RunType)
	}
	if c.RunType == RunServer {
		if c.LocalPort == 0 {
			return fmt.Errorf("config: local_port is required for run_type=server")
		}
		if c.RemoteAddr == "" || c.RemotePort == 0 {
			return fmt.Errorf("config: remote_addr/remote_port (fallback origin) are required for run_type=server")
		}
		if c.CertFile == "" && c.KeyFile == "" && c.TLSSecretName == "" {
			return fmt.Errorf("config: one of certfile/keyfile or tls_secret_name must be set for run_type=server")
		}
	}
	return nil
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
