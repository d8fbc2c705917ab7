package staging

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"mediaprep/internal/faults"
	"mediaprep/internal/logging"
)

func TestCleanStaleInvalidPaths(t *testing.T) {
	for _, dir := range []string{"", "   ", "/nonexistent/path/12345"} {
		result := CleanStale(context.Background(), dir, time.Hour, logging.NewNop())
		if len(result.Removed) != 0 || len(result.Errors) != 0 {
			t.Errorf("expected empty result for path %q", dir)
		}
	}
}

func TestCleanStaleRemovesOldDirectories(t *testing.T) {
	tmpDir := t.TempDir()

	oldDir := filepath.Join(tmpDir, "song-123")
	if err := os.Mkdir(oldDir, 0o755); err != nil {
		t.Fatalf("create old dir: %v", err)
	}
	oldTime := time.Now().Add(-48 * time.Hour)
	if err := os.Chtimes(oldDir, oldTime, oldTime); err != nil {
		t.Fatalf("set old time: %v", err)
	}
	recentDir := filepath.Join(tmpDir, "song-456")
	if err := os.Mkdir(recentDir, 0o755); err != nil {
		t.Fatalf("create recent dir: %v", err)
	}
	foreignDir := filepath.Join(tmpDir, "notes")
	if err := os.Mkdir(foreignDir, 0o755); err != nil {
		t.Fatalf("create foreign dir: %v", err)
	}
	if err := os.Chtimes(foreignDir, oldTime, oldTime); err != nil {
		t.Fatalf("set foreign time: %v", err)
	}
	busyDir := filepath.Join(tmpDir, "clip-789")
	if err := os.Mkdir(busyDir, 0o755); err != nil {
		t.Fatalf("create busy dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(busyDir, "video.mp4"), []byte("frames"), 0o644); err != nil {
		t.Fatalf("create busy file: %v", err)
	}
	if err := os.Chtimes(busyDir, oldTime, oldTime); err != nil {
		t.Fatalf("set busy time: %v", err)
	}
	oldFile := filepath.Join(tmpDir, "leftover.txt")
	if err := os.WriteFile(oldFile, []byte("x"), 0o644); err != nil {
		t.Fatalf("create file: %v", err)
	}
	if err := os.Chtimes(oldFile, oldTime, oldTime); err != nil {
		t.Fatalf("set file time: %v", err)
	}

	result := CleanStale(context.Background(), tmpDir, 24*time.Hour, nil)

	if len(result.Removed) != 1 || result.Removed[0] != oldDir {
		t.Fatalf("expected only %s removed, got %v", oldDir, result.Removed)
	}
	if _, err := os.Stat(oldDir); !os.IsNotExist(err) {
		t.Error("old directory should have been removed")
	}
	if _, err := os.Stat(recentDir); err != nil {
		t.Error("recent directory should still exist")
	}
	if _, err := os.Stat(oldFile); err != nil {
		t.Error("plain files are never removed")
	}
	if _, err := os.Stat(foreignDir); err != nil {
		t.Error("directories not named like work dirs are never removed")
	}
	if _, err := os.Stat(busyDir); err != nil {
		t.Error("work dir with recent file activity should still exist")
	}
}

func TestCleanStaleStopsOnCancelledContext(t *testing.T) {
	tmpDir := t.TempDir()
	oldDir := filepath.Join(tmpDir, "old-1")
	if err := os.Mkdir(oldDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	oldTime := time.Now().Add(-48 * time.Hour)
	if err := os.Chtimes(oldDir, oldTime, oldTime); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := CleanStale(ctx, tmpDir, time.Hour, logging.NewNop())
	if len(result.Removed) != 0 {
		t.Fatalf("expected nothing removed after cancel, got %v", result.Removed)
	}
}

func TestWorkDirLifecycle(t *testing.T) {
	stagingDir := filepath.Join(t.TempDir(), "staging")

	first, err := NewWorkDir(stagingDir, "My Song/../x")
	if err != nil {
		t.Fatalf("NewWorkDir: %v", err)
	}
	second, err := NewWorkDir(stagingDir, "My Song/../x")
	if err != nil {
		t.Fatalf("NewWorkDir second: %v", err)
	}
	if first.Path() == second.Path() {
		t.Fatal("expected distinct work dirs for the same item")
	}
	if filepath.Dir(first.Path()) != stagingDir {
		t.Fatalf("work dir escaped staging dir: %s", first.Path())
	}
	if !strings.HasPrefix(filepath.Base(first.Path()), "My_Song_") {
		t.Fatalf("unexpected work dir name %s", filepath.Base(first.Path()))
	}
	if item, ok := ItemFromWorkDir(filepath.Base(first.Path())); !ok || item != "My_Song_.._x" {
		t.Fatalf("ItemFromWorkDir(%s) = %q, %v", filepath.Base(first.Path()), item, ok)
	}
	if _, ok := ItemFromWorkDir("notes"); ok {
		t.Fatal("plain directory names are not work dirs")
	}

	scratch := first.File("audio.wav")
	if err := os.WriteFile(scratch, []byte("pcm"), 0o644); err != nil {
		t.Fatalf("write scratch: %v", err)
	}
	if err := first.Remove(); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := os.Stat(first.Path()); !os.IsNotExist(err) {
		t.Fatal("work dir should be gone")
	}
	if err := first.Remove(); err != nil {
		t.Fatalf("second Remove should be a no-op: %v", err)
	}
	_ = second.Remove()
}

func TestNewWorkDirRequiresStagingDir(t *testing.T) {
	if _, err := NewWorkDir("  ", "song"); !errors.Is(err, faults.ErrStorage) {
		t.Fatalf("expected ErrStorage, got %v", err)
	}
}

func TestListDirectoriesInvalidPaths(t *testing.T) {
	for _, path := range []string{"", "/nonexistent/path/12345"} {
		dirs, err := ListDirectories(path)
		if err != nil {
			t.Fatalf("unexpected error for %q: %v", path, err)
		}
		if dirs != nil {
			t.Errorf("expected nil for path %q, got %v", path, dirs)
		}
	}
}

func TestListDirectories(t *testing.T) {
	tmpDir := t.TempDir()

	dir1 := filepath.Join(tmpDir, "song-1")
	if err := os.Mkdir(dir1, 0o755); err != nil {
		t.Fatalf("create dir1: %v", err)
	}
	if err := os.Mkdir(filepath.Join(tmpDir, "song-2"), 0o755); err != nil {
		t.Fatalf("create dir2: %v", err)
	}
	if err := os.Mkdir(filepath.Join(tmpDir, "scratch"), 0o755); err != nil {
		t.Fatalf("create foreign dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(tmpDir, "not-a-dir.txt"), []byte("test"), 0o644); err != nil {
		t.Fatalf("create file: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir1, "data.bin"), []byte("12345"), 0o644); err != nil {
		t.Fatalf("create inner file: %v", err)
	}

	dirs, err := ListDirectories(tmpDir)
	if err != nil {
		t.Fatalf("ListDirectories: %v", err)
	}
	if len(dirs) != 2 {
		t.Fatalf("expected 2 directories, got %d", len(dirs))
	}
	for _, d := range dirs {
		if d.Item != "song" {
			t.Errorf("%s item = %q, want song", d.Name, d.Item)
		}
		if d.Name == "song-1" {
			if d.Size != 5 {
				t.Errorf("song-1 size = %d, want 5", d.Size)
			}
			if d.Path != dir1 || d.LastActivity.IsZero() {
				t.Errorf("unexpected info %+v", d)
			}
		}
	}
}
