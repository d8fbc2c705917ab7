// Package config loads, normalizes, and validates mediaprep configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// MEDIAPREP_SOURCE_DIR. The Config type centralizes every knob the batch runner,
// watcher and CLI need, so the source tree, meta sidecars and processed store
// are discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
