// Package ffprobe provides a typed wrapper around ffprobe JSON output.
//
// Key types:
//   - Result: parsed ffprobe output containing streams and format metadata
//   - Stream: individual audio/video stream properties
//   - Format: container-level metadata (duration, size, bitrate)
//
// Inspect executes ffprobe and returns a parsed Result; Parse decodes output
// captured elsewhere. Helper methods pick the primary video stream and derive
// duration, dimensions and codec with stream-level fallbacks.
package ffprobe
