// Package config loads hoard settings from YAML and HOARD_* environment
// variables and turns them into engine options.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/tanq16/hoard/internal/engine"
	"github.com/tanq16/hoard/internal/fetchers"
	"github.com/tanq16/hoard/internal/utils"
	"gopkg.in/yaml.v3"
)

type Config struct {
	BalancerURL          string
	BalancerToken        string
	OriginBase           string
	TempDir              string
	ChunkSize            int64
	ParallelChunks       int
	MaxConsecutiveErrors int
	LowProviderThreshold int
	FetchWeight          float64
	PollInterval         time.Duration
	Retry                RetryConfig
	HTTP                 HTTPConfig
	S3                   S3Config
}

type RetryConfig struct {
	Attempts  int
	BaseDelay time.Duration
}

type HTTPConfig struct {
	Timeout          time.Duration
	ResolveTimeout   time.Duration
	KeepAliveTimeout time.Duration
	UserAgent        string
	Proxy            string
	Headers          map[string]string
	ResolveRetries   int
}

type S3Config struct {
	Profile  string
	Region   string
	Endpoint string
}

func Default() Config {
	return Config{
		ChunkSize:            utils.DefaultChunkSize,
		ParallelChunks:       utils.DefaultParallelChunks,
		MaxConsecutiveErrors: utils.DefaultMaxConsecutiveErrors,
		LowProviderThreshold: utils.DefaultLowProviderThreshold,
		FetchWeight:          utils.DefaultFetchWeight,
		PollInterval:         utils.DefaultPollInterval,
		Retry: RetryConfig{
			Attempts:  utils.DefaultMaxAttempts,
			BaseDelay: utils.DefaultBaseDelay,
		},
		HTTP: HTTPConfig{
			Timeout:          utils.DefaultRequestTimeout,
			ResolveTimeout:   utils.DefaultResolveTimeout,
			KeepAliveTimeout: utils.DefaultKATimeout,
			UserAgent:        utils.ToolUserAgent,
			Headers:          map[string]string{},
		},
	}
}

// yamlConfig mirrors Config with sizes and durations as strings.
type yamlConfig struct {
	BalancerURL          string         `yaml:"balancer_url"`
	BalancerToken        string         `yaml:"balancer_token"`
	OriginBase           string         `yaml:"origin_base"`
	TempDir              string         `yaml:"temp_dir"`
	ChunkSize            string         `yaml:"chunk_size"`
	ParallelChunks       int            `yaml:"parallel_chunks"`
	MaxConsecutiveErrors int            `yaml:"max_consecutive_errors"`
	LowProviderThreshold int            `yaml:"low_provider_threshold"`
	FetchWeight          float64        `yaml:"fetch_weight"`
	PollInterval         string         `yaml:"poll_interval"`
	Retry                yamlRetry      `yaml:"retry"`
	HTTP                 yamlHTTPConfig `yaml:"http"`
	S3                   yamlS3Config   `yaml:"s3"`
}

type yamlRetry struct {
	Attempts  int    `yaml:"attempts"`
	BaseDelay string `yaml:"base_delay"`
}

type yamlHTTPConfig struct {
	Timeout          string            `yaml:"timeout"`
	ResolveTimeout   string            `yaml:"resolve_timeout"`
	KeepAliveTimeout string            `yaml:"keep_alive_timeout"`
	UserAgent        string            `yaml:"user_agent"`
	Proxy            string            `yaml:"proxy"`
	Headers          map[string]string `yaml:"headers"`
	ResolveRetries   int               `yaml:"resolve_retries"`
}

type yamlS3Config struct {
	Profile  string `yaml:"profile"`
	Region   string `yaml:"region"`
	Endpoint string `yaml:"endpoint"`
}

// LoadFromFile reads a YAML file on top of Default(). Keys left out keep
// their default.
func LoadFromFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}
	var yc yamlConfig
	if err := yaml.Unmarshal(data, &yc); err != nil {
		return Config{}, fmt.Errorf("parse config file: %w", err)
	}

	cfg := Default()
	setString(&cfg.BalancerURL, yc.BalancerURL)
	setString(&cfg.BalancerToken, yc.BalancerToken)
	setString(&cfg.OriginBase, yc.OriginBase)
	setString(&cfg.TempDir, yc.TempDir)
	setInt(&cfg.ParallelChunks, yc.ParallelChunks)
	setInt(&cfg.MaxConsecutiveErrors, yc.MaxConsecutiveErrors)
	setInt(&cfg.LowProviderThreshold, yc.LowProviderThreshold)
	setInt(&cfg.Retry.Attempts, yc.Retry.Attempts)
	setInt(&cfg.HTTP.ResolveRetries, yc.HTTP.ResolveRetries)
	setString(&cfg.HTTP.UserAgent, yc.HTTP.UserAgent)
	setString(&cfg.HTTP.Proxy, yc.HTTP.Proxy)
	setString(&cfg.S3.Profile, yc.S3.Profile)
	setString(&cfg.S3.Region, yc.S3.Region)
	setString(&cfg.S3.Endpoint, yc.S3.Endpoint)
	if yc.FetchWeight != 0 {
		cfg.FetchWeight = yc.FetchWeight
	}
	for k, v := range yc.HTTP.Headers {
		cfg.HTTP.Headers[k] = v
	}
	if yc.ChunkSize != "" {
		size, err := ParseSize(yc.ChunkSize)
		if err != nil {
			return Config{}, fmt.Errorf("parse chunk_size: %w", err)
		}
		cfg.ChunkSize = size
	}
	for key, d := range map[string]struct {
		raw string
		dst *time.Duration
	}{
		"poll_interval":           {yc.PollInterval, &cfg.PollInterval},
		"retry.base_delay":        {yc.Retry.BaseDelay, &cfg.Retry.BaseDelay},
		"http.timeout":            {yc.HTTP.Timeout, &cfg.HTTP.Timeout},
		"http.resolve_timeout":    {yc.HTTP.ResolveTimeout, &cfg.HTTP.ResolveTimeout},
		"http.keep_alive_timeout": {yc.HTTP.KeepAliveTimeout, &cfg.HTTP.KeepAliveTimeout},
	} {
		if d.raw == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.raw)
		if err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", key, err)
		}
		*d.dst = parsed
	}
	return cfg, nil
}

// LoadFromEnv applies HOARD_* environment variables.
func (c *Config) LoadFromEnv() error {
	setString(&c.BalancerURL, os.Getenv("HOARD_BALANCER_URL"))
	setString(&c.BalancerToken, os.Getenv("HOARD_BALANCER_TOKEN"))
	setString(&c.OriginBase, os.Getenv("HOARD_ORIGIN_BASE"))
	setString(&c.TempDir, os.Getenv("HOARD_TEMP_DIR"))
	if v := os.Getenv("HOARD_CHUNK_SIZE"); v != "" {
		size, err := ParseSize(v)
		if err != nil {
			return fmt.Errorf("parse HOARD_CHUNK_SIZE: %w", err)
		}
		c.ChunkSize = size
	}
	if v := os.Getenv("HOARD_PARALLEL_CHUNKS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse HOARD_PARALLEL_CHUNKS: %w", err)
		}
		c.ParallelChunks = n
	}
	return nil
}

func (c *Config) Validate() error {
	if c.ChunkSize <= 0 {
		return errors.New("config: chunk_size must be positive")
	}
	if c.ParallelChunks <= 0 {
		return errors.New("config: parallel_chunks must be positive")
	}
	if c.MaxConsecutiveErrors <= 0 {
		return errors.New("config: max_consecutive_errors must be positive")
	}
	if c.LowProviderThreshold <= 0 {
		return errors.New("config: low_provider_threshold must be positive")
	}
	if c.FetchWeight < 0 || c.FetchWeight > 100 {
		return errors.New("config: fetch_weight must be within 0..100")
	}
	if c.Retry.Attempts <= 0 {
		return errors.New("config: retry.attempts must be positive")
	}
	if c.Retry.BaseDelay < 0 {
		return errors.New("config: retry.base_delay must not be negative")
	}
	if c.PollInterval <= 0 {
		return errors.New("config: poll_interval must be positive")
	}
	if c.HTTP.Timeout <= 0 || c.HTTP.ResolveTimeout <= 0 {
		return errors.New("config: http timeouts must be positive")
	}
	if c.HTTP.ResolveRetries < 0 {
		return errors.New("config: http.resolve_retries must not be negative")
	}
	return nil
}

// HTTPClient builds the shared transfer client settings. Credentials inside
// the proxy URL are split out for the transport.
func (c *Config) HTTPClient() utils.HTTPClientConfig {
	hc := utils.HTTPClientConfig{
		Timeout:        c.HTTP.Timeout,
		KATimeout:      c.HTTP.KeepAliveTimeout,
		ProxyURL:       c.HTTP.Proxy,
		UserAgent:      c.HTTP.UserAgent,
		Headers:        c.HTTP.Headers,
		HighThreadMode: c.ParallelChunks > 8,
	}
	hc.ProxyURL, hc.ProxyUsername, hc.ProxyPassword = splitProxyAuth(c.HTTP.Proxy)
	return hc
}

func (c *Config) EngineOptions() engine.Options {
	return engine.Options{
		BalancerURL:          c.BalancerURL,
		BalancerToken:        c.BalancerToken,
		ChunkSize:            c.ChunkSize,
		ParallelChunks:       c.ParallelChunks,
		MaxConsecutiveErrors: c.MaxConsecutiveErrors,
		LowProviderThreshold: c.LowProviderThreshold,
		FetchWeight:          c.FetchWeight,
		PollInterval:         c.PollInterval,
		MaxAttempts:          c.Retry.Attempts,
		BaseDelay:            c.Retry.BaseDelay,
		ResolveTimeout:       c.HTTP.ResolveTimeout,
		ResolveRetries:       c.HTTP.ResolveRetries,
		HTTP:                 c.HTTPClient(),
		S3: fetchers.S3Options{
			Profile:  c.S3.Profile,
			Region:   c.S3.Region,
			Endpoint: c.S3.Endpoint,
		},
	}
}

// ParseSize accepts human sizes ("4MiB", "512KB") or plain byte counts.
func ParseSize(s string) (int64, error) {
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, err
	}
	if n == 0 || n > 1<<40 {
		return 0, fmt.Errorf("size %q out of range", s)
	}
	return int64(n), nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

// splitProxyAuth moves user:pass out of the proxy URL.
func splitProxyAuth(proxy string) (string, string, string) {
	if proxy == "" {
		return "", "", ""
	}
	parsed, err := url.Parse(proxy)
	if err != nil || parsed.User == nil {
		return proxy, "", ""
	}
	username := parsed.User.Username()
	password, _ := parsed.User.Password()
	parsed.User = nil
	return parsed.String(), username, password
}
