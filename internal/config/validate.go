package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable. A missing AcoustID key is
// not an error here: the fingerprint strategy reports it when it runs, and
// the tag and filename strategies still work without it.
func (c *Config) Validate() error {
	if err := c.validateAcoustID(); err != nil {
		return err
	}
	if err := c.validateFingerprint(); err != nil {
		return err
	}
	if err := c.validateMatching(); err != nil {
		return err
	}
	if err := c.validateScheduler(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateAcoustID() error {
	if c.AcoustID.RequestsPerSecond <= 0 {
		return errors.New("acoustid.requests_per_second must be positive")
	}
	return ensurePositiveMap(map[string]int{
		"acoustid.timeout_seconds":   c.AcoustID.TimeoutSeconds,
		"acoustid.cache_ttl_seconds": c.AcoustID.CacheTTLSeconds,
	})
}

func (c *Config) validateFingerprint() error {
	switch c.Fingerprint.Backend {
	case "auto", "chromaprint", "spectral":
	default:
		return fmt.Errorf("fingerprint.backend must be one of auto, chromaprint, spectral (got %q)", c.Fingerprint.Backend)
	}
	return ensurePositiveMap(map[string]int{
		"fingerprint.max_seconds":            c.Fingerprint.MaxSeconds,
		"fingerprint.decode_timeout_seconds": c.Fingerprint.DecodeTimeoutSeconds,
		"fingerprint.sample_rate":            c.Fingerprint.SampleRate,
	})
}

func (c *Config) validateMatching() error {
	for key, value := range map[string]float64{
		"matching.fingerprint_threshold":   c.Matching.FingerprintThreshold,
		"matching.tag_threshold":           c.Matching.TagThreshold,
		"matching.tag_min_similarity":      c.Matching.TagMinSimilarity,
		"matching.filename_min_similarity": c.Matching.FilenameMinSimilarity,
	} {
		if value < 0 || value > 1 {
			return fmt.Errorf("%s must be between 0 and 1", key)
		}
	}
	return nil
}

func (c *Config) validateScheduler() error {
	if err := ensurePositiveMap(map[string]int{
		"scheduler.max_concurrent_jobs":        c.Scheduler.MaxConcurrentJobs,
		"scheduler.retry_backoff_base_seconds": c.Scheduler.RetryBackoffBaseSeconds,
	}); err != nil {
		return err
	}
	if c.Scheduler.MaxRetries < 0 {
		return errors.New("scheduler.max_retries must be >= 0")
	}
	if c.Scheduler.RescanIntervalSeconds < 0 {
		return errors.New("scheduler.rescan_interval_seconds must be >= 0")
	}
	return nil
}

func (c *Config) validateLogging() error {
	for component, level := range c.Logging.ComponentOverrides {
		switch level {
		case "debug", "info", "warn", "error":
		default:
			return fmt.Errorf("logging.component_overrides.%s: unsupported level %q", component, level)
		}
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
