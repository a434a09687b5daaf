package sdk

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "probekit.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfigFile(t, `
projectId: shop-frontend
serverUrl: https://collect.example.com/v1/reports/batch
apiKey: secret
env: production
sampleRate: 0.25
errorFilterPatterns:
  - "Script error"
behaviorQueueLimit: 30
reportQueueLimit: 200
flushIntervalMs: 3000
batchSize: 25
maxRetries: 5
retryBaseDelayMs: 500
slowRequestThresholdMs: 1500
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.ProjectID != "shop-frontend" || cfg.APIKey != "secret" {
		t.Errorf("identity fields wrong: %+v", cfg)
	}
	if cfg.SampleRate != 0.25 {
		t.Errorf("SampleRate = %v", cfg.SampleRate)
	}
	if cfg.FlushInterval != 3*time.Second {
		t.Errorf("FlushInterval = %v", cfg.FlushInterval)
	}
	if cfg.RetryBaseDelay != 500*time.Millisecond {
		t.Errorf("RetryBaseDelay = %v", cfg.RetryBaseDelay)
	}
	if cfg.SlowRequestThreshold != 1500*time.Millisecond {
		t.Errorf("SlowRequestThreshold = %v", cfg.SlowRequestThreshold)
	}
	if len(cfg.ErrorFilterPatterns) != 1 {
		t.Errorf("filter patterns = %v", cfg.ErrorFilterPatterns)
	}
}

func TestLoadConfigAppliesDefaults(t *testing.T) {
	path := writeConfigFile(t, `
projectId: p
serverUrl: http://localhost:8080/v1/reports/batch
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.SampleRate != DefaultSampleRate {
		t.Errorf("SampleRate = %v, want default %v", cfg.SampleRate, DefaultSampleRate)
	}
	if cfg.FlushInterval != DefaultFlushInterval {
		t.Errorf("FlushInterval = %v, want default %v", cfg.FlushInterval, DefaultFlushInterval)
	}
	if cfg.BatchSize != DefaultBatchSize {
		t.Errorf("BatchSize = %v, want default %v", cfg.BatchSize, DefaultBatchSize)
	}
}

func TestLoadConfigExplicitZeroSampleRate(t *testing.T) {
	path := writeConfigFile(t, `
projectId: p
serverUrl: http://localhost:8080/v1/reports/batch
sampleRate: 0
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.SampleRate != 0 {
		t.Errorf("explicit sampleRate 0 overridden to %v", cfg.SampleRate)
	}
}

func TestLoadConfigRejectsUnknownKeys(t *testing.T) {
	path := writeConfigFile(t, `
projectId: p
serverUrl: http://localhost:8080/v1/reports/batch
sampelRate: 0.5
`)

	if _, err := LoadConfig(path); err == nil {
		t.Fatal("LoadConfig() accepted an unknown key")
	} else if !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("error = %v, want ErrInvalidConfig", err)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("LoadConfig() on a missing file succeeded")
	}
}

func TestValidateRequiredFields(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{name: "missing project id", cfg: Config{ServerURL: "http://x/v1"}},
		{name: "missing server url", cfg: Config{ProjectID: "p"}},
		{name: "both missing", cfg: Config{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.cfg.validate(); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("validate() error = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestValidateBadFilterPattern(t *testing.T) {
	cfg := Config{ProjectID: "p", ServerURL: "http://x/v1", ErrorFilterPatterns: []string{"("}}
	if _, err := cfg.validate(); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("validate() error = %v, want ErrInvalidConfig", err)
	}
}
