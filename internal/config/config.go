// Package config provides configuration management for htmlstream using
// Viper for loading from files, environment variables, and command-line flags.
//
// Configuration lives in .htmlstream.yml by default; every key can be
// overridden with an HTMLSTREAM_ prefixed environment variable, for example
// HTMLSTREAM_UPSTREAM_API_KEY or HTMLSTREAM_SERVER_PORT.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/SawyerHood/openai-html-stream/internal/errors"
	"github.com/SawyerHood/openai-html-stream/internal/logging"
)

type Config struct {
	Upstream UpstreamConfig `mapstructure:"upstream" yaml:"upstream"`
	Stream   StreamConfig   `mapstructure:"stream" yaml:"stream"`
	Server   ServerConfig   `mapstructure:"server" yaml:"server"`
	Log      LogConfig      `mapstructure:"log" yaml:"log"`
}

// UpstreamConfig describes the OpenAI-compatible chat completions endpoint
// that produces the text deltas.
type UpstreamConfig struct {
	BaseURL           string        `mapstructure:"base_url" yaml:"base_url"`
	APIKey            string        `mapstructure:"api_key" yaml:"api_key"`
	Model             string        `mapstructure:"model" yaml:"model"`
	SystemPrompt      string        `mapstructure:"system_prompt" yaml:"system_prompt"`
	// Timeout bounds the wait for response headers. A stream that has started
	// runs until it ends or the caller cancels it.
	Timeout           time.Duration `mapstructure:"timeout" yaml:"timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second" yaml:"requests_per_second"`
	Burst             int           `mapstructure:"burst" yaml:"burst"`
}

type StreamConfig struct {
	InjectIntoHead string `mapstructure:"inject_into_head" yaml:"inject_into_head"`
	Charset        string `mapstructure:"charset" yaml:"charset"`
}

type ServerConfig struct {
	Host           string   `mapstructure:"host" yaml:"host"`
	Port           int      `mapstructure:"port" yaml:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins" yaml:"allowed_origins"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

const (
	DefaultBaseURL      = "https://api.openai.com/v1"
	DefaultModel        = "gpt-4o-mini"
	DefaultSystemPrompt = "You are a web developer. Reply with a single complete HTML document and nothing else."
	DefaultTimeout      = 2 * time.Minute
)

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	// Keys without a default are invisible to Unmarshal when they only come
	// from the environment, so every key gets one.
	v.SetDefault("upstream.base_url", DefaultBaseURL)
	v.SetDefault("upstream.api_key", "")
	v.SetDefault("upstream.model", DefaultModel)
	v.SetDefault("upstream.system_prompt", DefaultSystemPrompt)
	v.SetDefault("upstream.timeout", DefaultTimeout)
	v.SetDefault("upstream.requests_per_second", 2.0)
	v.SetDefault("upstream.burst", 4)

	v.SetDefault("stream.inject_into_head", "")
	v.SetDefault("stream.charset", "utf-8")

	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{})

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Load reads the configuration from the global viper instance.
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom reads and validates the configuration held by v.
func LoadFrom(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.WrapConfig(err, "decoding configuration")
	}

	if err := config.Validate(); err != nil {
		return nil, errors.WrapConfig(err, "invalid configuration")
	}

	return &config, nil
}

// Addr returns the host:port the server listens on.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Redacted returns a copy safe to print, with the API key masked down to
// its last four characters.
func (c Config) Redacted() Config {
	c.Upstream.APIKey = logging.SanitizeForLog(c.Upstream.APIKey)
	c.Server.AllowedOrigins = append([]string(nil), c.Server.AllowedOrigins...)
	return c
}

// YAML renders the redacted configuration as a .htmlstream.yml document.
func (c Config) YAML() ([]byte, error) {
	return yaml.Marshal(c.Redacted())
}
