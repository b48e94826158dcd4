package config

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	rperrors "github.com/relicta-tech/installkit/internal/errors"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantErr   string
		wantWarn  string
		wantValid bool
	}{
		{name: "defaults", mutate: func(*Config) {}, wantValid: true},
		{name: "zero interval", mutate: func(c *Config) { c.Poller.Interval = 0 }, wantErr: "poller.interval"},
		{name: "short interval warns", mutate: func(c *Config) { c.Poller.Interval = 10 * time.Millisecond }, wantWarn: "poller.interval", wantValid: true},
		{name: "negative retries", mutate: func(c *Config) { c.Releases.RetryAttempts = -1 }, wantErr: "releases.retry_attempts"},
		{name: "max wait below initial", mutate: func(c *Config) { c.Releases.RetryMaxWait = time.Millisecond }, wantErr: "releases.retry_max_wait"},
		{name: "breaker threshold", mutate: func(c *Config) { c.Releases.CircuitBreakerThreshold = 0 }, wantErr: "releases.circuit_breaker_threshold"},
		{name: "breaker disabled skips checks", mutate: func(c *Config) {
			c.Releases.CircuitBreakerEnabled = false
			c.Releases.CircuitBreakerThreshold = 0
		}, wantValid: true},
		{name: "bundle polls", mutate: func(c *Config) { c.Bundle.MaxConcurrentPolls = 0 }, wantErr: "bundle.max_concurrent_polls"},
		{name: "missing catalog", mutate: func(c *Config) { c.Sandbox.Catalog = filepath.Join("nowhere", "catalog.yaml") }, wantErr: "sandbox.catalog"},
		{name: "bad addr", mutate: func(c *Config) { c.Server.Addr = "8089" }, wantErr: "server.addr"},
		{name: "wildcard origin warns", mutate: func(c *Config) { c.Server.AllowedOrigins = []string{"*"} }, wantWarn: "allowed_origins", wantValid: true},
		{name: "host version warns", mutate: func(c *Config) { c.Host.Version = "latest" }, wantWarn: "host.version", wantValid: true},
		{name: "bad format", mutate: func(c *Config) { c.Output.Format = "xml" }, wantErr: "output.format"},
		{name: "bad level", mutate: func(c *Config) { c.Output.LogLevel = "loud" }, wantErr: "output.log_level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			warnings, err := Validate(cfg)
			if tt.wantValid != (err == nil) {
				t.Fatalf("Validate() error = %v, wantValid %v", err, tt.wantValid)
			}
			if tt.wantErr != "" {
				if !rperrors.IsKind(err, rperrors.KindConfig) {
					t.Errorf("error kind = %v, want config", rperrors.GetKind(err))
				}
				var verr *ValidationError
				if !errors.As(err, &verr) {
					t.Fatalf("error %v does not wrap *ValidationError", err)
				}
				if !strings.Contains(strings.Join(verr.Errors, "\n"), tt.wantErr) {
					t.Errorf("errors %v do not mention %q", verr.Errors, tt.wantErr)
				}
			}
			if tt.wantWarn != "" && !strings.Contains(strings.Join(warnings, "\n"), tt.wantWarn) {
				t.Errorf("warnings %v do not mention %q", warnings, tt.wantWarn)
			}
		})
	}
}

func TestValidationErrorString(t *testing.T) {
	e := &ValidationError{}
	e.Addf("a: %s", "broken")
	e.Warnf("b: %s", "odd")

	msg := e.Error()
	if !strings.Contains(msg, "a: broken") || !strings.Contains(msg, "b: odd") {
		t.Errorf("Error() = %q", msg)
	}
	if !e.HasErrors() || !e.HasWarnings() {
		t.Error("HasErrors/HasWarnings should both be true")
	}
}
