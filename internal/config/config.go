package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	DataDir    string `toml:"data_dir"`
	LogDir     string `toml:"log_dir"`
	LibraryDir string `toml:"library_dir"`
	CacheDir   string `toml:"cache_dir"`
}

// AcoustID contains configuration for the fingerprint lookup service.
type AcoustID struct {
	APIKey            string  `toml:"api_key"`
	BaseURL           string  `toml:"base_url"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
	TimeoutSeconds    int     `toml:"timeout_seconds"`
	CacheTTLSeconds   int     `toml:"cache_ttl_seconds"`
	PersistCache      bool    `toml:"persist_cache"`
}

// Fingerprint contains configuration for audio decoding and signature generation.
type Fingerprint struct {
	Backend              string `toml:"backend"`
	MaxSeconds           int    `toml:"max_seconds"`
	DecodeTimeoutSeconds int    `toml:"decode_timeout_seconds"`
	SampleRate           int    `toml:"sample_rate"`
	FFmpegBinary         string `toml:"ffmpeg_binary"`
	FFprobeBinary        string `toml:"ffprobe_binary"`
	FpcalcBinary         string `toml:"fpcalc_binary"`
}

// Matching contains the acceptance thresholds for each identification strategy.
type Matching struct {
	FingerprintThreshold  float64 `toml:"fingerprint_threshold"`
	TagThreshold          float64 `toml:"tag_threshold"`
	TagMinSimilarity      float64 `toml:"tag_min_similarity"`
	FilenameMinSimilarity float64 `toml:"filename_min_similarity"`
}

// Scheduler contains configuration for job concurrency and retries.
type Scheduler struct {
	MaxConcurrentJobs       int `toml:"max_concurrent_jobs"`
	MaxRetries              int `toml:"max_retries"`
	RetryBackoffBaseSeconds int `toml:"retry_backoff_base_seconds"`
	RescanIntervalSeconds   int `toml:"rescan_interval_seconds"`
}

// Catalog contains configuration for the local recording catalog.
type Catalog struct {
	SeedPath string `toml:"seed_path"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format             string            `toml:"format"`
	Level              string            `toml:"level"`
	RetentionDays      int               `toml:"retention_days"`
	ComponentOverrides map[string]string `toml:"component_overrides"`
}

// Config encapsulates all configuration values for tonearm.
//
// Configuration sections by subsystem:
//   - Paths: data, log, library, and cache directories
//   - AcoustID: fingerprint lookup credentials, rate limit, and cache TTL
//   - Fingerprint: decoder bounds and backend selection
//   - Matching: per-strategy acceptance thresholds
//   - Scheduler: concurrency bound, retry policy, and rescan interval
//   - Catalog: optional seed file imported on first start
//   - Logging: log format, level, and retention
type Config struct {
	Paths       Paths       `toml:"paths"`
	AcoustID    AcoustID    `toml:"acoustid"`
	Fingerprint Fingerprint `toml:"fingerprint"`
	Matching    Matching    `toml:"matching"`
	Scheduler   Scheduler   `toml:"scheduler"`
	Catalog     Catalog     `toml:"catalog"`
	Logging     Logging     `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("tonearm.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
// LibraryDir is only checked by preflight; it may live on storage that is
// temporarily offline.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir, c.Paths.CacheDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the sqlite database location.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "tonearm.db")
}

// SocketPath returns the daemon IPC socket location.
func (c *Config) SocketPath() string {
	return filepath.Join(c.Paths.DataDir, "tonearm.sock")
}

// LockPath returns the daemon single-instance lock file location.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "tonearm.lock")
}

// PIDPath returns the file the daemon process writes its pid to.
func (c *Config) PIDPath() string {
	return filepath.Join(c.Paths.DataDir, "tonearm.pid")
}

// LookupCachePath returns the persisted AcoustID lookup cache location.
func (c *Config) LookupCachePath() string {
	return filepath.Join(c.Paths.CacheDir, "acoustid_cache.json")
}

// AcoustIDTimeout returns the per-request HTTP timeout.
func (c *Config) AcoustIDTimeout() time.Duration {
	return time.Duration(c.AcoustID.TimeoutSeconds) * time.Second
}

// CacheTTL returns the lookup cache time-to-live.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.AcoustID.CacheTTLSeconds) * time.Second
}

// DecodeTimeout returns the upper bound for a single decode.
func (c *Config) DecodeTimeout() time.Duration {
	return time.Duration(c.Fingerprint.DecodeTimeoutSeconds) * time.Second
}

// RetryBackoffBase returns the scheduler's first retry delay.
func (c *Config) RetryBackoffBase() time.Duration {
	return time.Duration(c.Scheduler.RetryBackoffBaseSeconds) * time.Second
}

// RescanInterval returns the periodic rescan interval; zero disables it.
func (c *Config) RescanInterval() time.Duration {
	return time.Duration(c.Scheduler.RescanIntervalSeconds) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

func defaultCacheDir() string {
	if base, ok := os.LookupEnv("XDG_CACHE_HOME"); ok && strings.TrimSpace(base) != "" {
		return filepath.Join(base, "tonearm")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "~/.cache/tonearm"
	}
	return filepath.Join(home, ".cache", "tonearm")
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
