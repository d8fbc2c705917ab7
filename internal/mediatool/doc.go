// Package mediatool defines the external media operations the encoder needs
// and implements them with ffmpeg and ffprobe.
//
// Tool has one method per operation: probe, image to video, audio render,
// subtitle burn-in, mux, preview and frame extraction. Every FFmpeg call runs
// under the configured tool timeout and fails with faults.ErrExternalTool
// carrying the tail of ffmpeg's stderr; probe failures carry faults.ErrProbe.
package mediatool
