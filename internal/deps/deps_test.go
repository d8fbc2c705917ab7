package deps

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"
)

func TestCheckBinaries(t *testing.T) {
	binDir := t.TempDir()
	present := filepath.Join(binDir, "present")
	script := []byte("#!/bin/sh\nexit 0\n")
	if err := os.WriteFile(present, script, 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	reqs := []Requirement{
		{Name: "Present", Command: present},
		{Name: "Missing", Command: "clearly-not-present-binary"},
	}

	results := CheckBinaries(reqs)
	if len(results) != len(reqs) {
		t.Fatalf("expected %d results, got %d", len(reqs), len(results))
	}

	if !results[0].Available {
		t.Fatalf("expected first requirement to be available, got %#v", results[0])
	}

	if results[1].Available {
		t.Fatalf("expected missing binary to be unavailable")
	}
	if results[1].Detail == "" {
		t.Fatalf("expected detail message for missing binary")
	}

	if results[1].Command != "clearly-not-present-binary" {
		t.Fatalf("unexpected command recorded: %s", results[1].Command)
	}

	if results[0].Detail != "" {
		t.Fatalf("unexpected detail for available dependency: %s", results[0].Detail)
	}
}

func TestVersionReadsFirstLine(t *testing.T) {
	orig := commandContext
	commandContext = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		if name != "ffmpeg" || len(args) != 1 || args[0] != "-version" {
			t.Fatalf("unexpected invocation %s %v", name, args)
		}
		return exec.CommandContext(ctx, "printf", "ffmpeg version 7.1 Copyright\nbuilt with gcc\n")
	}
	t.Cleanup(func() { commandContext = orig })

	if got := Version(context.Background(), "ffmpeg"); got != "ffmpeg version 7.1 Copyright" {
		t.Fatalf("unexpected version %q", got)
	}
	if got := Version(context.Background(), " "); got != "" {
		t.Fatalf("expected empty version for blank binary, got %q", got)
	}
}

func TestCheckWithVersion(t *testing.T) {
	binDir := t.TempDir()
	tool := filepath.Join(binDir, executableName("ffprobe"))
	script := []byte("#!/bin/sh\necho \"ffprobe version test\"\n")
	if err := os.WriteFile(tool, script, 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}

	results := CheckWithVersion(context.Background(), []Requirement{
		{Name: "FFprobe", Command: tool},
		{Name: "FFmpeg", Command: "clearly-not-present-binary"},
	})
	if !results[0].Available || results[0].Detail != "ffprobe version test" {
		t.Fatalf("unexpected status %#v", results[0])
	}
	if results[1].Available || results[1].Detail == "" {
		t.Fatalf("expected missing binary detail, got %#v", results[1])
	}
}

func TestCheckWithVersionVerifiesEncodersAndFilters(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell stub")
	}
	binDir := t.TempDir()
	tool := filepath.Join(binDir, "ffmpeg")
	script := []byte(`#!/bin/sh
case "$2" in
-encoders)
  echo "Encoders:"
  echo " ------"
  echo " V....D libx264              libx264 H.264 / AVC"
  ;;
-filters)
  echo " ... ass               V->V       Render ASS subtitles"
  echo " ... scale             V->V       Scale the input video size"
  ;;
*)
  echo "ffmpeg version test"
  ;;
esac
`)
	if err := os.WriteFile(tool, script, 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}

	results := CheckWithVersion(context.Background(), []Requirement{
		{Name: "FFmpeg", Command: tool, Encoders: []string{"libx264"}, Filters: []string{"ass", "scale"}},
		{Name: "FFmpeg AAC", Command: tool, Encoders: []string{"libx264", "aac"}},
	})
	if !results[0].Available || results[0].Path != tool || results[0].Detail != "ffmpeg version test" {
		t.Fatalf("unexpected status %#v", results[0])
	}
	if results[1].Available {
		t.Fatalf("expected build without aac to be unavailable")
	}
	if len(results[1].Missing) != 1 || results[1].Missing[0] != "encoder aac" {
		t.Fatalf("unexpected missing list %v", results[1].Missing)
	}
	if results[1].Detail != "build lacks encoder aac" {
		t.Fatalf("unexpected detail %q", results[1].Detail)
	}
}

func executableName(base string) string {
	if runtime.GOOS == "windows" {
		return base + ".exe"
	}
	return base
}
