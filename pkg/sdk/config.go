package sdk

import (
	"errors"
	"fmt"
	"log"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/probekit/probekit/pkg/storage"
)

// ErrInvalidConfig is wrapped by every configuration error surfaced
// from Init. It is the only error class Init can return.
var ErrInvalidConfig = errors.New("invalid config")

// Defaults for every optional knob. ProjectID and ServerURL have no
// default: missing either is fatal at Init.
const (
	DefaultSampleRate           = 1.0
	DefaultBehaviorQueueLimit   = 20
	DefaultReportQueueLimit     = 100
	DefaultFlushInterval        = 5 * time.Second
	DefaultBatchSize            = 10
	DefaultMaxRetries           = 3
	DefaultRetryBaseDelay       = 1 * time.Second
	DefaultSlowRequestThreshold = 2 * time.Second
)

// Config is the complete, explicit configuration surface. Every
// recognized option is listed here; there is no structural merging of
// partial configs, and unknown keys in a config file are rejected.
// Immutable once handed to Init.
type Config struct {
	// ProjectID identifies the reporting project. Required.
	ProjectID string

	// ServerURL is the HTTP(S) batch ingest endpoint. Required.
	ServerURL string

	// StreamURL, when set, is a ws:// endpoint preferred for
	// ordinary flushes.
	StreamURL string

	// APIKey, when set, authenticates reports as a bearer token.
	APIKey string

	// Env and Scene tag every report (e.g. "production", "wechat").
	Env   string
	Scene string

	// SampleRate is the probability in [0,1] that an error-class
	// event is emitted. Note the zero value suppresses every sampled
	// error; start from DefaultConfig and override.
	SampleRate float64

	// ErrorFilterPatterns suppress matching error messages regardless
	// of SampleRate.
	ErrorFilterPatterns []string

	// IncludeBehaviorMethods and ExcludeBehaviorMethods narrow what
	// the breadcrumb buffer records. A non-empty inclusion list wins;
	// otherwise the exclusion list applies.
	IncludeBehaviorMethods []string
	ExcludeBehaviorMethods []string

	BehaviorQueueLimit int
	ReportQueueLimit   int

	// PersistLimit caps the durable snapshot prefix. Zero means the
	// queue package default.
	PersistLimit int

	FlushInterval  time.Duration
	BatchSize      int
	MaxRetries     int
	RetryBaseDelay time.Duration

	// SlowRequestThreshold marks an otherwise-healthy HTTP event slow
	// enough to report rather than just breadcrumb.
	SlowRequestThreshold time.Duration

	// StoragePath, when set, enables the durable BadgerDB store at
	// that directory. Empty means in-memory persistence only (reports
	// do not survive a restart).
	StoragePath string

	// Store overrides the durable store outright. Mostly for tests.
	Store storage.Store

	// Logger receives all internally swallowed errors. Nil means a
	// stderr logger with a "[probekit]" prefix.
	Logger *log.Logger
}

// DefaultConfig returns a Config with every optional knob at its
// default. ProjectID and ServerURL must still be filled in.
func DefaultConfig() Config {
	return Config{
		SampleRate:           DefaultSampleRate,
		BehaviorQueueLimit:   DefaultBehaviorQueueLimit,
		ReportQueueLimit:     DefaultReportQueueLimit,
		FlushInterval:        DefaultFlushInterval,
		BatchSize:            DefaultBatchSize,
		MaxRetries:           DefaultMaxRetries,
		RetryBaseDelay:       DefaultRetryBaseDelay,
		SlowRequestThreshold: DefaultSlowRequestThreshold,
	}
}

// validate checks the required fields and compiles filter patterns.
func (c *Config) validate() ([]*regexp.Regexp, error) {
	if c.ProjectID == "" {
		return nil, fmt.Errorf("%w: projectId is required", ErrInvalidConfig)
	}
	if c.ServerURL == "" {
		return nil, fmt.Errorf("%w: serverUrl is required", ErrInvalidConfig)
	}

	patterns := make([]*regexp.Regexp, 0, len(c.ErrorFilterPatterns))
	for _, p := range c.ErrorFilterPatterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("%w: bad error filter pattern %q: %v", ErrInvalidConfig, p, err)
		}
		patterns = append(patterns, re)
	}
	return patterns, nil
}

// normalize fills zero-valued structural knobs with defaults.
// SampleRate is deliberately left alone: zero is a meaningful value.
func (c *Config) normalize() {
	if c.BehaviorQueueLimit <= 0 {
		c.BehaviorQueueLimit = DefaultBehaviorQueueLimit
	}
	if c.ReportQueueLimit <= 0 {
		c.ReportQueueLimit = DefaultReportQueueLimit
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = DefaultFlushInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = DefaultRetryBaseDelay
	}
	if c.SlowRequestThreshold <= 0 {
		c.SlowRequestThreshold = DefaultSlowRequestThreshold
	}
	if c.Logger == nil {
		c.Logger = log.New(os.Stderr, "[probekit] ", log.LstdFlags|log.Lmsgprefix)
	}
}

// fileConfig is the YAML shape of a config file. Durations are
// expressed in milliseconds, matching the ingest schema's field
// naming.
type fileConfig struct {
	ProjectID              string   `yaml:"projectId"`
	ServerURL              string   `yaml:"serverUrl"`
	StreamURL              string   `yaml:"streamUrl"`
	APIKey                 string   `yaml:"apiKey"`
	Env                    string   `yaml:"env"`
	Scene                  string   `yaml:"scene"`
	SampleRate             *float64 `yaml:"sampleRate"`
	ErrorFilterPatterns    []string `yaml:"errorFilterPatterns"`
	IncludeBehaviorMethods []string `yaml:"includeBehaviorMethods"`
	ExcludeBehaviorMethods []string `yaml:"excludeBehaviorMethods"`
	BehaviorQueueLimit     int      `yaml:"behaviorQueueLimit"`
	ReportQueueLimit       int      `yaml:"reportQueueLimit"`
	PersistLimit           int      `yaml:"persistLimit"`
	FlushIntervalMs        int      `yaml:"flushIntervalMs"`
	BatchSize              int      `yaml:"batchSize"`
	MaxRetries             int      `yaml:"maxRetries"`
	RetryBaseDelayMs       int      `yaml:"retryBaseDelayMs"`
	SlowRequestThresholdMs int      `yaml:"slowRequestThresholdMs"`
	StoragePath            string   `yaml:"storagePath"`
}

// LoadConfig reads a YAML config file. Unknown keys are an error, not
// silently merged. Fields absent from the file keep their defaults.
func LoadConfig(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)

	var fc fileConfig
	if err := dec.Decode(&fc); err != nil {
		return Config{}, fmt.Errorf("%w: parse %s: %v", ErrInvalidConfig, path, err)
	}

	cfg := DefaultConfig()
	cfg.ProjectID = fc.ProjectID
	cfg.ServerURL = fc.ServerURL
	cfg.StreamURL = fc.StreamURL
	cfg.APIKey = fc.APIKey
	cfg.Env = fc.Env
	cfg.Scene = fc.Scene
	if fc.SampleRate != nil {
		cfg.SampleRate = *fc.SampleRate
	}
	cfg.ErrorFilterPatterns = fc.ErrorFilterPatterns
	cfg.IncludeBehaviorMethods = fc.IncludeBehaviorMethods
	cfg.ExcludeBehaviorMethods = fc.ExcludeBehaviorMethods
	if fc.BehaviorQueueLimit > 0 {
		cfg.BehaviorQueueLimit = fc.BehaviorQueueLimit
	}
	if fc.ReportQueueLimit > 0 {
		cfg.ReportQueueLimit = fc.ReportQueueLimit
	}
	if fc.PersistLimit > 0 {
		cfg.PersistLimit = fc.PersistLimit
	}
	if fc.FlushIntervalMs > 0 {
		cfg.FlushInterval = time.Duration(fc.FlushIntervalMs) * time.Millisecond
	}
	if fc.BatchSize > 0 {
		cfg.BatchSize = fc.BatchSize
	}
	if fc.MaxRetries > 0 {
		cfg.MaxRetries = fc.MaxRetries
	}
	if fc.RetryBaseDelayMs > 0 {
		cfg.RetryBaseDelay = time.Duration(fc.RetryBaseDelayMs) * time.Millisecond
	}
	if fc.SlowRequestThresholdMs > 0 {
		cfg.SlowRequestThreshold = time.Duration(fc.SlowRequestThresholdMs) * time.Millisecond
	}
	cfg.StoragePath = fc.StoragePath

	return cfg, nil
}
