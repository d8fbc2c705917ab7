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
	c.normalizeEncode()
	c.normalizeTools()
	c.normalizeNotifications()
	c.normalizeLogging()
	c.Metrics.Bind = strings.TrimSpace(c.Metrics.Bind)
	return nil
}

func (c *Config) normalizePaths() error {
	if strings.TrimSpace(c.Paths.SourceDir) == "" {
		if value, ok := os.LookupEnv("MEDIAPREP_SOURCE_DIR"); ok {
			c.Paths.SourceDir = strings.TrimSpace(value)
		}
	}
	fields := []struct {
		key   string
		value *string
		def   string
	}{
		{"paths.source_dir", &c.Paths.SourceDir, ""},
		{"paths.meta_dir", &c.Paths.MetaDir, defaultMetaDir},
		{"paths.processed_dir", &c.Paths.ProcessedDir, defaultProcessedDir},
		{"paths.staging_dir", &c.Paths.StagingDir, defaultStagingDir},
		{"paths.log_dir", &c.Paths.LogDir, defaultLogDir},
	}
	for _, field := range fields {
		trimmed := strings.TrimSpace(*field.value)
		if trimmed == "" {
			trimmed = field.def
		}
		expanded, err := expandPath(trimmed)
		if err != nil {
			return fmt.Errorf("%s: %w", field.key, err)
		}
		*field.value = expanded
	}
	return nil
}

func (c *Config) normalizeEncode() {
	c.Encode.Order = strings.ToLower(strings.TrimSpace(c.Encode.Order))
	if c.Encode.Order == "" {
		c.Encode.Order = defaultOrder
	}
	if c.Encode.SubtitleFontSize == 0 {
		c.Encode.SubtitleFontSize = defaultSubtitleFontSize
	}
}

func (c *Config) normalizeTools() {
	c.Tools.FFmpeg = strings.TrimSpace(c.Tools.FFmpeg)
	if c.Tools.FFmpeg == "" {
		c.Tools.FFmpeg = defaultFFmpegBinary
	}
	c.Tools.FFprobe = strings.TrimSpace(c.Tools.FFprobe)
	if c.Tools.FFprobe == "" {
		c.Tools.FFprobe = defaultFFprobeBinary
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.NtfyTopic == "" {
		if value, ok := os.LookupEnv("MEDIAPREP_NTFY_TOPIC"); ok {
			c.Notifications.NtfyTopic = strings.TrimSpace(value)
		}
	}
	if c.Notifications.RequestTimeout == 0 {
		c.Notifications.RequestTimeout = defaultRequestTimeout
	}
}

func (c *Config) normalizeLogging() {
	format := strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if format == "" {
		format = defaultLogFormat
	}
	c.Logging.Format = format

	level := strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if level == "" {
		level = defaultLogLevel
	}
	c.Logging.Level = level
}
