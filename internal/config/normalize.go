package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeAcoustID()
	c.normalizeFingerprint()
	if err := c.normalizeCatalog(); err != nil {
		return err
	}
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if c.Paths.LibraryDir, err = expandPath(strings.TrimSpace(c.Paths.LibraryDir)); err != nil {
		return fmt.Errorf("paths.library_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.CacheDir) == "" {
		c.Paths.CacheDir = defaultCacheDir()
	}
	if c.Paths.CacheDir, err = expandPath(c.Paths.CacheDir); err != nil {
		return fmt.Errorf("paths.cache_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeAcoustID() {
	c.AcoustID.APIKey = strings.TrimSpace(c.AcoustID.APIKey)
	if c.AcoustID.APIKey == "" {
		if value, ok := os.LookupEnv("ACOUSTID_API_KEY"); ok {
			c.AcoustID.APIKey = strings.TrimSpace(value)
		}
	}
	c.AcoustID.BaseURL = strings.TrimRight(strings.TrimSpace(c.AcoustID.BaseURL), "/")
	if c.AcoustID.BaseURL == "" {
		c.AcoustID.BaseURL = defaultAcoustIDBaseURL
	}
}

func (c *Config) normalizeFingerprint() {
	c.Fingerprint.Backend = strings.ToLower(strings.TrimSpace(c.Fingerprint.Backend))
	if c.Fingerprint.Backend == "" {
		c.Fingerprint.Backend = defaultFingerprintBackend
	}
	if strings.TrimSpace(c.Fingerprint.FFmpegBinary) == "" {
		c.Fingerprint.FFmpegBinary = defaultFFmpegBinary
	}
	if strings.TrimSpace(c.Fingerprint.FFprobeBinary) == "" {
		c.Fingerprint.FFprobeBinary = defaultFFprobeBinary
	}
	if strings.TrimSpace(c.Fingerprint.FpcalcBinary) == "" {
		c.Fingerprint.FpcalcBinary = defaultFpcalcBinary
	}
}

func (c *Config) normalizeCatalog() error {
	var err error
	if c.Catalog.SeedPath, err = expandPath(strings.TrimSpace(c.Catalog.SeedPath)); err != nil {
		return fmt.Errorf("catalog.seed_path: %w", err)
	}
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
	if len(c.Logging.ComponentOverrides) > 0 {
		overrides := make(map[string]string, len(c.Logging.ComponentOverrides))
		for component, level := range c.Logging.ComponentOverrides {
			key := strings.ToLower(strings.TrimSpace(component))
			value := strings.ToLower(strings.TrimSpace(level))
			if key == "" || value == "" {
				continue
			}
			overrides[key] = value
		}
		c.Logging.ComponentOverrides = overrides
	}
}
