// Package config loads engine, logging and server settings from defaults,
// an optional YAML file, a .env file and PDFREMEDY_* environment variables,
// in that order.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/wudi/pdfremedy/metadata"
	"github.com/wudi/pdfremedy/observability"
	"github.com/wudi/pdfremedy/structure"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "PDFREMEDY_"

// ErrInvalid is wrapped by every Validate failure.
var ErrInvalid = errors.New("config: invalid configuration")

type Config struct {
	Engine  EngineConfig            `yaml:"engine"`
	Extract ExtractConfig           `yaml:"extract"`
	Log     observability.LogConfig `yaml:"log"`
	Server  ServerConfig            `yaml:"server"`
}

type EngineConfig struct {
	DefaultLanguage     string        `yaml:"default_language"`
	DefaultTitle        string        `yaml:"default_title"`
	HeadingPolicy       string        `yaml:"heading_policy"`
	Workers             int           `yaml:"workers"`
	PageWorkers         int           `yaml:"page_workers"`
	BaseBudget          time.Duration `yaml:"base_budget"`
	PerPageBudget       time.Duration `yaml:"per_page_budget"`
	Compress            bool          `yaml:"compress"`
	MaxCentroidDistance float64       `yaml:"max_centroid_distance"`
	PDFUAPart           int           `yaml:"pdfua_part"`
}

// ExtractConfig holds the block heuristic thresholds.
type ExtractConfig struct {
	TableMinColumns  int     `yaml:"table_min_columns"`
	TableMinRows     int     `yaml:"table_min_rows"`
	HeadingSizeRatio float64 `yaml:"heading_size_ratio"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
	// MaxUploadMB bounds the request body of upload endpoints.
	MaxUploadMB int `yaml:"max_upload_mb"`
	// RateLimit is the sustained number of requests per second; 0 disables
	// limiting.
	RateLimit   float64  `yaml:"rate_limit"`
	RateBurst   int      `yaml:"rate_burst"`
	CORSOrigins []string `yaml:"cors_origins"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Engine: EngineConfig{
			DefaultLanguage:     metadata.DefaultLanguage,
			DefaultTitle:        metadata.DefaultTitle,
			HeadingPolicy:       string(structure.HeadingAutoInsert),
			Workers:             4,
			PageWorkers:         4,
			BaseBudget:          30 * time.Second,
			PerPageBudget:       2 * time.Second,
			Compress:            true,
			MaxCentroidDistance: 72,
			PDFUAPart:           1,
		},
		Extract: ExtractConfig{
			TableMinColumns:  2,
			TableMinRows:     2,
			HeadingSizeRatio: 1.2,
		},
		Log: observability.DefaultLogConfig(),
		Server: ServerConfig{
			Addr:        ":8080",
			MaxUploadMB: 50,
			RateLimit:   5,
			RateBurst:   10,
			CORSOrigins: []string{"*"},
		},
	}
}

// Load reads path (skipped when empty), then .env in the working
// directory, then the process environment.
func Load(path string) (*Config, error) {
	return LoadFiles(path, ".env")
}

// LoadFiles is Load with an explicit .env path. Variables already set in
// the process environment win over the .env file. A missing .env file is
// not an error; a missing YAML file is.
func LoadFiles(path, envFile string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	dotenv := map[string]string{}
	if envFile != "" {
		m, err := godotenv.Read(envFile)
		switch {
		case err == nil:
			dotenv = m
		case !errors.Is(err, fs.ErrNotExist):
			return nil, fmt.Errorf("config: read %s: %w", envFile, err)
		}
	}
	lookup := func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok
	}
	if err := cfg.applyEnv(lookup); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	var errs []error
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = v
		}
	}
	integer := func(name string, dst *int) {
		if v, ok := lookup(EnvPrefix + name); ok {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("config: %s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = n
		}
	}
	float := func(name string, dst *float64) {
		if v, ok := lookup(EnvPrefix + name); ok {
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("config: %s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = f
		}
	}
	duration := func(name string, dst *time.Duration) {
		if v, ok := lookup(EnvPrefix + name); ok {
			d, err := time.ParseDuration(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("config: %s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = d
		}
	}
	boolean := func(name string, dst *bool) {
		if v, ok := lookup(EnvPrefix + name); ok {
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("config: %s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = b
		}
	}

	str("DEFAULT_LANGUAGE", &c.Engine.DefaultLanguage)
	str("DEFAULT_TITLE", &c.Engine.DefaultTitle)
	str("HEADING_POLICY", &c.Engine.HeadingPolicy)
	integer("WORKERS", &c.Engine.Workers)
	integer("PAGE_WORKERS", &c.Engine.PageWorkers)
	duration("BASE_BUDGET", &c.Engine.BaseBudget)
	duration("PER_PAGE_BUDGET", &c.Engine.PerPageBudget)
	boolean("COMPRESS", &c.Engine.Compress)
	float("MAX_CENTROID_DISTANCE", &c.Engine.MaxCentroidDistance)

	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_ENCODING", &c.Log.Encoding)
	if v, ok := lookup(EnvPrefix + "LOG_OUTPUTS"); ok {
		c.Log.OutputPaths = splitList(v)
	}

	str("SERVER_ADDR", &c.Server.Addr)
	integer("MAX_UPLOAD_MB", &c.Server.MaxUploadMB)
	float("RATE_LIMIT", &c.Server.RateLimit)
	integer("RATE_BURST", &c.Server.RateBurst)
	if v, ok := lookup(EnvPrefix + "CORS_ORIGINS"); ok {
		c.Server.CORSOrigins = splitList(v)
	}
	return errors.Join(errs...)
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Validate checks ranges and names. All problems are reported together.
func (c *Config) Validate() error {
	var problems []string
	bad := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}
	if _, ok := metadata.ValidLanguage(c.Engine.DefaultLanguage); !ok {
		bad("engine.default_language %q is not a BCP-47 tag", c.Engine.DefaultLanguage)
	}
	if strings.TrimSpace(c.Engine.DefaultTitle) == "" {
		bad("engine.default_title is empty")
	}
	if _, err := structure.ParseHeadingPolicy(c.Engine.HeadingPolicy); err != nil {
		bad("engine.heading_policy %q is not auto-insert or flag", c.Engine.HeadingPolicy)
	}
	if c.Engine.Workers < 1 {
		bad("engine.workers must be at least 1")
	}
	if c.Engine.PageWorkers < 1 {
		bad("engine.page_workers must be at least 1")
	}
	if c.Engine.BaseBudget <= 0 || c.Engine.PerPageBudget < 0 {
		bad("engine budgets must be positive")
	}
	if c.Engine.MaxCentroidDistance < 0 {
		bad("engine.max_centroid_distance is negative")
	}
	if c.Extract.TableMinColumns < 2 || c.Extract.TableMinRows < 2 {
		bad("extract table minimums must be at least 2")
	}
	if c.Extract.HeadingSizeRatio <= 1 {
		bad("extract.heading_size_ratio must be greater than 1")
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		bad("log.level %q is unknown", c.Log.Level)
	}
	if c.Log.Encoding != "json" && c.Log.Encoding != "console" {
		bad("log.encoding %q is not json or console", c.Log.Encoding)
	}
	if c.Server.MaxUploadMB < 1 {
		bad("server.max_upload_mb must be at least 1")
	}
	if c.Server.RateLimit < 0 {
		bad("server.rate_limit is negative")
	}
	if c.Server.RateLimit > 0 && c.Server.RateBurst < 1 {
		bad("server.rate_burst must be at least 1 when rate limiting")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}
