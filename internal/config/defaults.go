package config

const (
	defaultConfigPath              = "~/.config/tonearm/config.toml"
	defaultDataDir                 = "~/.local/share/tonearm"
	defaultLogDir                  = "~/.local/share/tonearm/logs"
	defaultLibraryDir              = "~/Music"
	defaultAcoustIDBaseURL         = "https://api.acoustid.org/v2"
	defaultAcoustIDRequestsPerSec  = 3.0
	defaultAcoustIDTimeoutSeconds  = 10
	defaultAcoustIDCacheTTLSeconds = 86400
	defaultFingerprintBackend      = "auto"
	defaultFingerprintMaxSeconds   = 120
	defaultDecodeTimeoutSeconds    = 60
	defaultSampleRate              = 11025
	defaultFFmpegBinary            = "ffmpeg"
	defaultFFprobeBinary           = "ffprobe"
	defaultFpcalcBinary            = "fpcalc"
	defaultFingerprintThreshold    = 0.7
	defaultTagThreshold            = 0.5
	defaultTagMinSimilarity        = 0.5
	defaultFilenameMinSimilarity   = 0.6
	defaultMaxConcurrentJobs       = 4
	defaultMaxRetries              = 3
	defaultRetryBackoffBaseSeconds = 2
	defaultLogFormat               = "console"
	defaultLogLevel                = "info"
	defaultLogRetentionDays        = 60
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:    defaultDataDir,
			LogDir:     defaultLogDir,
			LibraryDir: defaultLibraryDir,
			CacheDir:   defaultCacheDir(),
		},
		AcoustID: AcoustID{
			BaseURL:           defaultAcoustIDBaseURL,
			RequestsPerSecond: defaultAcoustIDRequestsPerSec,
			TimeoutSeconds:    defaultAcoustIDTimeoutSeconds,
			CacheTTLSeconds:   defaultAcoustIDCacheTTLSeconds,
			PersistCache:      true,
		},
		Fingerprint: Fingerprint{
			Backend:              defaultFingerprintBackend,
			MaxSeconds:           defaultFingerprintMaxSeconds,
			DecodeTimeoutSeconds: defaultDecodeTimeoutSeconds,
			SampleRate:           defaultSampleRate,
			FFmpegBinary:         defaultFFmpegBinary,
			FFprobeBinary:        defaultFFprobeBinary,
			FpcalcBinary:         defaultFpcalcBinary,
		},
		Matching: Matching{
			FingerprintThreshold:  defaultFingerprintThreshold,
			TagThreshold:          defaultTagThreshold,
			TagMinSimilarity:      defaultTagMinSimilarity,
			FilenameMinSimilarity: defaultFilenameMinSimilarity,
		},
		Scheduler: Scheduler{
			MaxConcurrentJobs:       defaultMaxConcurrentJobs,
			MaxRetries:              defaultMaxRetries,
			RetryBackoffBaseSeconds: defaultRetryBackoffBaseSeconds,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
