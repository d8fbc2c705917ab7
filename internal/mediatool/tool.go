package mediatool

import "context"

// Details are the probed properties of a source file.
type Details struct {
	Width    int
	Height   int
	Duration float64
	Codec    string
	HasVideo bool
	HasAudio bool
}

// Tool is the set of external operations used to build artifacts. Output paths
// are always scratch paths; publication is the caller's job.
type Tool interface {
	Probe(ctx context.Context, path string) (Details, error)
	ImageToVideo(ctx context.Context, image string, seconds float64, out string) error
	RenderAudio(ctx context.Context, source, out string) error
	// RenderVideo re-encodes the video stream of source without audio,
	// burning in the SSA overlay when one is given.
	RenderVideo(ctx context.Context, source, overlay, out string) error
	Mux(ctx context.Context, video, audio, out string) error
	RenderPreview(ctx context.Context, source, out string) error
	ExtractFrame(ctx context.Context, source string, at float64, out string) error
}

// Operation names used for logging and metrics.
const (
	OpProbe        = "probe"
	OpImageToVideo = "image_to_video"
	OpRenderAudio  = "render_audio"
	OpRenderVideo  = "render_video"
	OpMux          = "mux"
	OpPreview      = "preview"
	OpExtractFrame = "extract_frame"
)
