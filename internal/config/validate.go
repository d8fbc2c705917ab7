package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateEncode(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	if err := c.validateTimers(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.SourceDir) == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = defaultConfigPath
		}
		return fmt.Errorf("paths.source_dir is required. Set MEDIAPREP_SOURCE_DIR env var or edit %s (create with 'mediaprep config init')", defaultPath)
	}
	seen := map[string]string{}
	for key, dir := range map[string]string{
		"paths.meta_dir":      c.Paths.MetaDir,
		"paths.processed_dir": c.Paths.ProcessedDir,
		"paths.staging_dir":   c.Paths.StagingDir,
	} {
		if dir == "" {
			return fmt.Errorf("%s must be set", key)
		}
		if dir == c.Paths.SourceDir {
			return fmt.Errorf("%s must differ from paths.source_dir", key)
		}
		if other, ok := seen[dir]; ok {
			return fmt.Errorf("%s and %s must not share a directory", other, key)
		}
		seen[dir] = key
	}
	return nil
}

func (c *Config) validateEncode() error {
	switch c.Encode.Order {
	case OrderSorted, OrderRandom, OrderNone:
	default:
		return fmt.Errorf("encode.order: unsupported value %q (want sorted, random or none)", c.Encode.Order)
	}
	if c.Encode.Workers < 0 {
		return errors.New("encode.workers must be >= 0")
	}
	if c.Encode.ToolTimeoutSeconds < 0 {
		return errors.New("encode.tool_timeout_seconds must be >= 0")
	}
	if c.Encode.SubtitleFontSize <= 0 {
		return errors.New("encode.subtitle_font_size must be positive")
	}
	if c.Encode.ImageVideoSeconds < 0 {
		return errors.New("encode.image_video_seconds must be >= 0")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	if c.Logging.RetentionDays < 0 {
		return errors.New("logging.retention_days must be >= 0")
	}
	return nil
}

func (c *Config) validateTimers() error {
	return ensurePositiveMap(map[string]int{
		"notifications.request_timeout": c.Notifications.RequestTimeout,
		"watch.debounce_seconds":        c.Watch.DebounceSeconds,
	})
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
