package config

import (
	"runtime"
	"time"
)

const (
	defaultMetaDir            = "~/.local/share/mediaprep/meta"
	defaultProcessedDir       = "~/.local/share/mediaprep/processed"
	defaultStagingDir         = "~/.local/share/mediaprep/staging"
	defaultLogDir             = "~/.local/share/mediaprep/logs"
	defaultLogRetentionDays   = 60
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
	defaultOrder              = OrderSorted
	defaultToolTimeoutSeconds = 7200
	defaultSubtitleFontSize   = 16
	defaultFFmpegBinary       = "ffmpeg"
	defaultFFprobeBinary      = "ffprobe"
	defaultRequestTimeout     = 10
	defaultDebounceSeconds    = 10
)

// Processing orders accepted by encode.order.
const (
	OrderSorted = "sorted"
	OrderRandom = "random"
	OrderNone   = "none"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			MetaDir:      defaultMetaDir,
			ProcessedDir: defaultProcessedDir,
			StagingDir:   defaultStagingDir,
			LogDir:       defaultLogDir,
		},
		Encode: Encode{
			Order:              defaultOrder,
			ToolTimeoutSeconds: defaultToolTimeoutSeconds,
			SubtitleFontSize:   defaultSubtitleFontSize,
		},
		Tools: Tools{
			FFmpeg:  defaultFFmpegBinary,
			FFprobe: defaultFFprobeBinary,
		},
		Notifications: Notifications{
			RequestTimeout: defaultRequestTimeout,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
		Watch: Watch{
			DebounceSeconds: defaultDebounceSeconds,
		},
	}
}

// WorkerCount resolves encode.workers: zero means one worker per CPU, and
// values are capped at twice the CPU count.
func (c *Config) WorkerCount() int {
	cpus := runtime.NumCPU()
	workers := c.Encode.Workers
	if workers <= 0 {
		workers = cpus
	}
	if limit := 2 * cpus; workers > limit {
		workers = limit
	}
	return workers
}

// ToolTimeout returns the per-invocation limit for external tools; zero disables it.
func (c *Config) ToolTimeout() time.Duration {
	if c.Encode.ToolTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(c.Encode.ToolTimeoutSeconds) * time.Second
}

// DebounceInterval returns the watch quiet period.
func (c *Config) DebounceInterval() time.Duration {
	return time.Duration(c.Watch.DebounceSeconds) * time.Second
}

// NotificationTimeout returns the ntfy HTTP timeout.
func (c *Config) NotificationTimeout() time.Duration {
	return time.Duration(c.Notifications.RequestTimeout) * time.Second
}
