package config

import (
	"net/url"
	"strings"

	"github.com/SawyerHood/openai-html-stream/internal/charset"
	"github.com/SawyerHood/openai-html-stream/internal/errors"
	"github.com/SawyerHood/openai-html-stream/internal/logging"
)

// Validate checks configuration values for correctness. All problems are
// reported at once.
func (c *Config) Validate() error {
	var vec errors.ValidationErrorCollection

	validateUpstream(&c.Upstream, &vec)
	validateStream(&c.Stream, &vec)
	validateServer(&c.Server, &vec)
	validateLog(&c.Log, &vec)

	if vec.HasErrors() {
		return vec.ToStreamError()
	}
	return nil
}

func validateUpstream(u *UpstreamConfig, vec *errors.ValidationErrorCollection) {
	parsed, err := url.Parse(u.BaseURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		vec.AddField("upstream.base_url", u.BaseURL, "must be an absolute http(s) URL",
			"use "+DefaultBaseURL+" or the /v1 root of a compatible server")
	}
	if strings.TrimSpace(u.Model) == "" {
		vec.AddField("upstream.model", u.Model, "must not be empty")
	}
	if u.Timeout <= 0 {
		vec.AddField("upstream.timeout", u.Timeout, "must be positive", "e.g. 2m")
	}
	if u.RequestsPerSecond <= 0 {
		vec.AddField("upstream.requests_per_second", u.RequestsPerSecond, "must be positive")
	}
	if u.Burst < 1 {
		vec.AddField("upstream.burst", u.Burst, "must be at least 1")
	}
}

func validateStream(s *StreamConfig, vec *errors.ValidationErrorCollection) {
	if _, _, err := charset.Lookup(s.Charset); err != nil {
		vec.AddField("stream.charset", s.Charset, "unknown charset", "utf-8", "windows-1252")
	}
}

func validateServer(s *ServerConfig, vec *errors.ValidationErrorCollection) {
	// 0 lets the OS pick a port.
	if s.Port < 0 || s.Port > 65535 {
		vec.AddField("server.port", s.Port, "must be in range 0-65535")
	}
	if strings.ContainsAny(s.Host, " /;&|$`<>\"'\\") {
		vec.AddField("server.host", s.Host, "contains invalid characters")
	}
	for _, origin := range s.AllowedOrigins {
		u, err := url.Parse(origin)
		if err != nil || u.Host == "" {
			vec.AddField("server.allowed_origins", origin, "must be a URL such as http://localhost:3000")
		}
	}
}

func validateLog(l *LogConfig, vec *errors.ValidationErrorCollection) {
	if _, err := logging.ParseLevel(l.Level); err != nil {
		vec.AddField("log.level", l.Level, "unknown level", "debug", "info", "warn", "error")
	}
	if l.Format != "" && l.Format != "text" && l.Format != "json" {
		vec.AddField("log.format", l.Format, "must be text or json")
	}
}
