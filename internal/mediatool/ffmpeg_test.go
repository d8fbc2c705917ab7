package mediatool

import (
	"context"
	"errors"
	"os/exec"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"mediaprep/internal/config"
	"mediaprep/internal/faults"
	"mediaprep/internal/logging"
	"mediaprep/internal/media/ffprobe"
	"mediaprep/internal/metrics"
)

type invocation struct {
	name string
	args []string
	dir  string
}

func stubCommand(t *testing.T, script string) *[]invocation {
	t.Helper()
	var calls []invocation
	orig := commandContext
	commandContext = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		calls = append(calls, invocation{name: name, args: args})
		return exec.CommandContext(ctx, "sh", "-c", script)
	}
	t.Cleanup(func() { commandContext = orig })
	return &calls
}

func newTestTool(t *testing.T, opts ...Option) *FFmpeg {
	t.Helper()
	cfg := config.Default()
	cfg.Tools.FFmpeg = "/opt/ffmpeg/bin/ffmpeg"
	return NewFFmpeg(&cfg, logging.NewNop(), opts...)
}

func TestRenderVideoBurnsOverlay(t *testing.T) {
	calls := stubCommand(t, "exit 0")
	tool := newTestTool(t)

	if err := tool.RenderVideo(context.Background(), "/src/song.mkv", "/work/song-1/sub's.ssa", "/work/song-1/video.mp4"); err != nil {
		t.Fatalf("RenderVideo: %v", err)
	}
	if len(*calls) != 1 {
		t.Fatalf("expected one invocation, got %d", len(*calls))
	}
	call := (*calls)[0]
	if call.name != "/opt/ffmpeg/bin/ffmpeg" {
		t.Fatalf("unexpected binary %q", call.name)
	}
	vf := call.args[slices.Index(call.args, "-vf")+1]
	if !strings.HasPrefix(vf, `ass=sub\'s.ssa,`) {
		t.Fatalf("expected escaped ass filter first, got %q", vf)
	}
	if call.args[len(call.args)-1] != "/work/song-1/video.mp4" {
		t.Fatalf("output must be last argument: %v", call.args)
	}
	if !slices.Contains(call.args, "-an") {
		t.Fatalf("video render must drop audio: %v", call.args)
	}
}

func TestRenderVideoWithoutOverlay(t *testing.T) {
	calls := stubCommand(t, "exit 0")
	tool := newTestTool(t)

	if err := tool.RenderVideo(context.Background(), "/src/a.mp4", "", "/work/v.mp4"); err != nil {
		t.Fatalf("RenderVideo: %v", err)
	}
	vf := (*calls)[0].args[slices.Index((*calls)[0].args, "-vf")+1]
	if strings.Contains(vf, "ass=") {
		t.Fatalf("unexpected overlay filter %q", vf)
	}
}

func TestExtractFrameSeeksBeforeInput(t *testing.T) {
	calls := stubCommand(t, "exit 0")
	tool := newTestTool(t)

	if err := tool.ExtractFrame(context.Background(), "/p/video.mp4", 40.5, "/w/0.jpg"); err != nil {
		t.Fatalf("ExtractFrame: %v", err)
	}
	args := (*calls)[0].args
	ss := slices.Index(args, "-ss")
	in := slices.Index(args, "-i")
	if ss < 0 || ss > in || args[ss+1] != "40.500" {
		t.Fatalf("unexpected seek args %v", args)
	}
}

func TestImageToVideoRequiresDuration(t *testing.T) {
	calls := stubCommand(t, "exit 0")
	tool := newTestTool(t)

	err := tool.ImageToVideo(context.Background(), "/src/cover.jpg", 0, "/w/still.mp4")
	if !errors.Is(err, faults.ErrProbe) {
		t.Fatalf("expected ErrProbe, got %v", err)
	}
	if len(*calls) != 0 {
		t.Fatal("ffmpeg should not run without a duration")
	}

	if err := tool.ImageToVideo(context.Background(), "/src/cover.jpg", 12.25, "/w/still.mp4"); err != nil {
		t.Fatalf("ImageToVideo: %v", err)
	}
	args := (*calls)[0].args
	if args[slices.Index(args, "-t")+1] != "12.250" {
		t.Fatalf("unexpected duration args %v", args)
	}
}

func TestFailureCarriesStderrTail(t *testing.T) {
	stubCommand(t, "echo 'line one' >&2; echo 'Invalid data found' >&2; exit 1")
	m := metrics.New()
	tool := newTestTool(t, WithMetrics(m))

	err := tool.Mux(context.Background(), "/w/v.mp4", "/w/a.m4a", "/w/out.mp4")
	if !errors.Is(err, faults.ErrExternalTool) {
		t.Fatalf("expected ErrExternalTool, got %v", err)
	}
	if !strings.Contains(err.Error(), "line one | Invalid data found") {
		t.Fatalf("expected stderr tail in error, got %v", err)
	}
	if got := testutil.ToFloat64(m.ToolInvocations.WithLabelValues(OpMux, "failure")); got != 1 {
		t.Fatalf("expected failure metric, got %v", got)
	}
}

func TestTimeoutIsReported(t *testing.T) {
	stubCommand(t, "exec sleep 5")
	tool := newTestTool(t, WithTimeout(50*time.Millisecond))

	err := tool.RenderPreview(context.Background(), "/p/v.mp4", "/w/preview.mp4")
	if !errors.Is(err, faults.ErrExternalTool) || !strings.Contains(err.Error(), "timed out") {
		t.Fatalf("expected timeout error, got %v", err)
	}
}

func TestProbeMapsDetails(t *testing.T) {
	orig := inspect
	inspect = func(ctx context.Context, binary, path string) (ffprobe.Result, error) {
		if path == "/src/broken.mkv" {
			return ffprobe.Result{}, errors.New("moov atom not found")
		}
		return ffprobe.Parse([]byte(`{"streams":[{"codec_type":"video","codec_name":"h264","width":640,"height":480},{"codec_type":"audio","codec_name":"aac"}],"format":{"duration":"61.2"}}`))
	}
	t.Cleanup(func() { inspect = orig })
	tool := newTestTool(t)

	details, err := tool.Probe(context.Background(), "/src/song.mkv")
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	want := Details{Width: 640, Height: 480, Duration: 61.2, Codec: "h264", HasVideo: true, HasAudio: true}
	if details != want {
		t.Fatalf("details = %+v, want %+v", details, want)
	}

	if _, err := tool.Probe(context.Background(), "/src/broken.mkv"); !errors.Is(err, faults.ErrProbe) {
		t.Fatalf("expected ErrProbe, got %v", err)
	}
}

func TestTail(t *testing.T) {
	if got := tail("a\nb\nc\n", 2); got != "b | c" {
		t.Fatalf("tail = %q", got)
	}
	if got := tail("  ", 2); got != "" {
		t.Fatalf("tail of blank = %q", got)
	}
}
