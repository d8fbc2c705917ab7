package mediatool

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"mediaprep/internal/config"
	"mediaprep/internal/faults"
	"mediaprep/internal/logging"
	"mediaprep/internal/media/ffprobe"
	"mediaprep/internal/metrics"
)

const (
	stderrTailLines = 6
	previewHeight   = 360
	stillFrameRate  = "24"
	waitDelay       = 10 * time.Second
)

var (
	commandContext = exec.CommandContext
	inspect        = ffprobe.Inspect
)

// FFmpeg implements Tool by shelling out to ffmpeg and ffprobe.
type FFmpeg struct {
	ffmpeg  string
	ffprobe string
	timeout time.Duration
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// Option customizes an FFmpeg tool.
type Option func(*FFmpeg)

// WithMetrics records every invocation on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(f *FFmpeg) {
		f.metrics = m
	}
}

// WithTimeout overrides the per-invocation timeout. Zero disables it.
func WithTimeout(timeout time.Duration) Option {
	return func(f *FFmpeg) {
		f.timeout = timeout
	}
}

// NewFFmpeg builds the tool from configuration.
func NewFFmpeg(cfg *config.Config, logger *slog.Logger, opts ...Option) *FFmpeg {
	if logger == nil {
		logger = logging.NewNop()
	}
	f := &FFmpeg{
		ffmpeg:  "ffmpeg",
		ffprobe: "ffprobe",
		logger:  logger.With(logging.String(logging.FieldComponent, "mediatool")),
	}
	if cfg != nil {
		f.ffmpeg = cfg.FFmpegBinary()
		f.ffprobe = cfg.FFprobeBinary()
		f.timeout = cfg.ToolTimeout()
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Probe inspects path with ffprobe. A file without a usable duration is not an
// error here; callers decide whether duration is mandatory.
func (f *FFmpeg) Probe(ctx context.Context, path string) (Details, error) {
	ctx, cancel := f.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	result, err := inspect(ctx, f.ffprobe, path)
	f.metrics.ObserveTool(OpProbe, time.Since(start), err)
	if err != nil {
		return Details{}, faults.Wrap(faults.ErrProbe, "mediatool", OpProbe, filepath.Base(path), err)
	}

	_, hasVideo := result.VideoStream()
	width, height := result.Dimensions()
	return Details{
		Width:    width,
		Height:   height,
		Duration: result.DurationSeconds(),
		Codec:    result.VideoCodec(),
		HasVideo: hasVideo,
		HasAudio: result.AudioStreamCount() > 0,
	}, nil
}

// ImageToVideo loops a still image into a video of the given length.
func (f *FFmpeg) ImageToVideo(ctx context.Context, image string, seconds float64, out string) error {
	if seconds <= 0 {
		return faults.Wrap(faults.ErrProbe, "mediatool", OpImageToVideo, "still image needs a positive duration", nil)
	}
	return f.run(ctx, OpImageToVideo, "",
		"-loop", "1",
		"-i", image,
		"-r", stillFrameRate,
		"-t", formatSeconds(seconds),
		"-vf", "scale=trunc(iw/2)*2:trunc(ih/2)*2",
		"-c:v", "libx264",
		"-tune", "stillimage",
		"-pix_fmt", "yuv420p",
		out,
	)
}

// RenderAudio extracts the first audio stream of source and normalizes its
// loudness into AAC.
func (f *FFmpeg) RenderAudio(ctx context.Context, source, out string) error {
	return f.run(ctx, OpRenderAudio, "",
		"-i", source,
		"-vn",
		"-map", "0:a:0",
		"-af", "loudnorm",
		"-c:a", "aac",
		"-b:a", "192k",
		out,
	)
}

// RenderVideo encodes the video stream of source, burning in overlay when set.
// The overlay is referenced relative to its directory so the path needs no
// filter escaping beyond its base name.
func (f *FFmpeg) RenderVideo(ctx context.Context, source, overlay, out string) error {
	filters := []string{"scale=trunc(iw/2)*2:trunc(ih/2)*2"}
	dir := ""
	if overlay != "" {
		dir = filepath.Dir(overlay)
		filters = append([]string{"ass=" + escapeFilterValue(filepath.Base(overlay))}, filters...)
	}
	return f.run(ctx, OpRenderVideo, dir,
		"-i", source,
		"-an",
		"-map", "0:v:0",
		"-vf", strings.Join(filters, ","),
		"-c:v", "libx264",
		"-preset", "medium",
		"-crf", "21",
		"-pix_fmt", "yuv420p",
		out,
	)
}

// Mux combines the video stream of video with the audio stream of audio.
func (f *FFmpeg) Mux(ctx context.Context, video, audio, out string) error {
	return f.run(ctx, OpMux, "",
		"-i", video,
		"-i", audio,
		"-map", "0:v:0",
		"-map", "1:a:0",
		"-c", "copy",
		"-shortest",
		"-movflags", "+faststart",
		out,
	)
}

// RenderPreview re-encodes source into a small low bitrate preview.
func (f *FFmpeg) RenderPreview(ctx context.Context, source, out string) error {
	return f.run(ctx, OpPreview, "",
		"-i", source,
		"-vf", fmt.Sprintf("scale=-2:%d", previewHeight),
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-crf", "32",
		"-c:a", "aac",
		"-b:a", "64k",
		"-ac", "1",
		"-movflags", "+faststart",
		out,
	)
}

// ExtractFrame writes the frame at offset seconds as a JPEG.
func (f *FFmpeg) ExtractFrame(ctx context.Context, source string, at float64, out string) error {
	if at < 0 {
		at = 0
	}
	return f.run(ctx, OpExtractFrame, "",
		"-ss", formatSeconds(at),
		"-i", source,
		"-frames:v", "1",
		"-an",
		"-q:v", "3",
		out,
	)
}

func (f *FFmpeg) run(ctx context.Context, op, dir string, args ...string) error {
	ctx, cancel := f.withTimeout(ctx)
	defer cancel()

	full := append([]string{"-y", "-hide_banner", "-nostdin", "-loglevel", "error"}, args...)
	cmd := commandContext(ctx, f.ffmpeg, full...)
	cmd.Dir = dir
	cmd.WaitDelay = waitDelay
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	f.logger.Debug("running ffmpeg",
		logging.String("operation", op),
		logging.String("args", strings.Join(full, " ")),
	)

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)
	f.metrics.ObserveTool(op, elapsed, err)
	if err == nil {
		f.logger.Debug("ffmpeg finished",
			logging.String("operation", op),
			logging.Duration("elapsed", elapsed),
		)
		return nil
	}

	detail := tail(stderr.String(), stderrTailLines)
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		detail = fmt.Sprintf("timed out after %s", f.timeout)
	}
	return faults.Wrap(faults.ErrExternalTool, "ffmpeg", op, detail, err)
}

func (f *FFmpeg) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if f.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, f.timeout)
}

func formatSeconds(seconds float64) string {
	return strconv.FormatFloat(seconds, 'f', 3, 64)
}

func escapeFilterValue(value string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `'`, `\'`, `:`, `\:`, `,`, `\,`, `[`, `\[`, `]`, `\]`)
	return replacer.Replace(value)
}

func tail(output string, lines int) string {
	trimmed := strings.TrimSpace(output)
	if trimmed == "" {
		return ""
	}
	parts := strings.Split(trimmed, "\n")
	if len(parts) > lines {
		parts = parts[len(parts)-lines:]
	}
	return strings.Join(parts, " | ")
}
