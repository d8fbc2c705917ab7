package testsupport

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"mediaprep/internal/faults"
	"mediaprep/internal/mediatool"
)

// ToolCall is one recorded FakeTool invocation.
type ToolCall struct {
	Op   string
	Args []string
}

// FakeTool is an in-process mediatool.Tool. Every render writes a small
// placeholder naming the operation and its inputs to the output path.
type FakeTool struct {
	mu    sync.Mutex
	calls []ToolCall

	// Details maps a source base name to its probe result. Unknown names
	// probe as Default.
	Details map[string]mediatool.Details
	Default mediatool.Details
	// Fail makes the named operation return an ErrExternalTool error.
	Fail map[string]error
}

var _ mediatool.Tool = (*FakeTool)(nil)

// NewFakeTool returns a tool whose default probe is a 1280x720 video with
// audio lasting two minutes.
func NewFakeTool() *FakeTool {
	return &FakeTool{
		Details: map[string]mediatool.Details{},
		Default: mediatool.Details{Width: 1280, Height: 720, Duration: 120, Codec: "h264", HasVideo: true, HasAudio: true},
		Fail:    map[string]error{},
	}
}

// Calls returns a copy of the recorded invocations.
func (f *FakeTool) Calls() []ToolCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]ToolCall, len(f.calls))
	copy(out, f.calls)
	return out
}

// Count returns how many times op ran. An empty op counts every call.
func (f *FakeTool) Count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if op == "" || c.Op == op {
			n++
		}
	}
	return n
}

// Reset forgets recorded calls.
func (f *FakeTool) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}

func (f *FakeTool) record(op string, args ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, ToolCall{Op: op, Args: args})
	if err := f.Fail[op]; err != nil {
		return faults.Wrap(faults.ErrExternalTool, "fake", op, "", err)
	}
	return nil
}

func (f *FakeTool) render(op, out string, inputs ...string) error {
	if err := f.record(op, append(inputs, out)...); err != nil {
		return err
	}
	for _, in := range inputs {
		if in == "" {
			continue
		}
		if _, err := os.Stat(in); err != nil {
			return faults.Wrap(faults.ErrExternalTool, "fake", op, "input missing", err)
		}
	}
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return err
	}
	content := fmt.Sprintf("%s|%s\n", op, strings.Join(inputs, "|"))
	return os.WriteFile(out, []byte(content), 0o644)
}

// Probe returns the configured details for the base name of path.
func (f *FakeTool) Probe(_ context.Context, path string) (mediatool.Details, error) {
	if err := f.record(mediatool.OpProbe, path); err != nil {
		return mediatool.Details{}, faults.Wrap(faults.ErrProbe, "fake", mediatool.OpProbe, path, err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if d, ok := f.Details[filepath.Base(path)]; ok {
		return d, nil
	}
	return f.Default, nil
}

func (f *FakeTool) ImageToVideo(_ context.Context, image string, seconds float64, out string) error {
	if seconds <= 0 {
		return faults.Wrap(faults.ErrProbe, "fake", mediatool.OpImageToVideo, "no duration", nil)
	}
	return f.render(mediatool.OpImageToVideo, out, image)
}

func (f *FakeTool) RenderAudio(_ context.Context, source, out string) error {
	return f.render(mediatool.OpRenderAudio, out, source)
}

func (f *FakeTool) RenderVideo(_ context.Context, source, overlay, out string) error {
	return f.render(mediatool.OpRenderVideo, out, source, overlay)
}

func (f *FakeTool) Mux(_ context.Context, video, audio, out string) error {
	return f.render(mediatool.OpMux, out, video, audio)
}

func (f *FakeTool) RenderPreview(_ context.Context, source, out string) error {
	return f.render(mediatool.OpPreview, out, source)
}

func (f *FakeTool) ExtractFrame(_ context.Context, source string, at float64, out string) error {
	if err := f.render(mediatool.OpExtractFrame, out, source); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	last := &f.calls[len(f.calls)-1]
	last.Args = append(last.Args, fmt.Sprintf("%.3f", at))
	return nil
}
