package processed_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"mediaprep/internal/faults"
	"mediaprep/internal/fileutil"
	"mediaprep/internal/processed"
	"mediaprep/internal/testsupport"
)

func newStore(t *testing.T) *processed.Store {
	t.Helper()
	store, err := processed.NewStore(filepath.Join(t.TempDir(), "processed"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return store
}

func TestFileIsPureAndOrderIndependent(t *testing.T) {
	store := newStore(t)
	a := store.File("abc", processed.KindVideo)
	b := store.File("abc", processed.KindVideo)
	if a != b {
		t.Fatalf("expected identical handles, got %+v and %+v", a, b)
	}
	if a.Hash != fileutil.HashSorted("video", "", "abc", "") {
		t.Fatalf("hash is not the sorted digest of its inputs: %s", a.Hash)
	}
	if a.Path != filepath.Join(store.Dir(), a.Hash+".mp4") {
		t.Fatalf("unexpected path %s", a.Path)
	}

	other, err := processed.NewStore(filepath.Join(t.TempDir(), "elsewhere"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if other.File("abc", processed.KindVideo).Hash != a.Hash {
		t.Fatal("hash must not depend on the store location")
	}
}

func TestKindsAndOrdinalsAreDistinct(t *testing.T) {
	store := newStore(t)
	seen := map[string]bool{}
	for _, f := range store.AllFor("abc") {
		if seen[f.Path] {
			t.Fatalf("duplicate artifact path %s", f.Path)
		}
		seen[f.Path] = true
	}
	if len(seen) != 3+processed.ThumbnailCount+1 {
		t.Fatalf("expected %d artifacts, got %d", 3+processed.ThumbnailCount+1, len(seen))
	}
	if store.File("abc", processed.KindVideo).Path == store.File("abd", processed.KindVideo).Path {
		t.Fatal("different source hashes must give different paths")
	}
	thumbs := store.Thumbnails("abc")
	if thumbs[0].Ext != "jpg" || thumbs[0].Ordinal != "0" || thumbs[3].Ordinal != "3" {
		t.Fatalf("unexpected thumbnails: %+v", thumbs)
	}
	if store.Required("") != nil || store.AllFor("") != nil {
		t.Fatal("empty source hash owns no artifacts")
	}
}

func TestMovePublishesAndExists(t *testing.T) {
	store := newStore(t)
	f := store.File("abc", processed.KindSubtitle)
	if f.Exists() {
		t.Fatal("artifact should not exist yet")
	}

	staged := filepath.Join(t.TempDir(), "subs.srt")
	testsupport.WriteText(t, staged, "1\n00:00:00,000 --> 00:00:01,000\nhi\n")
	if err := f.Move(staged); err != nil {
		t.Fatalf("Move: %v", err)
	}
	if !f.Exists() {
		t.Fatal("artifact should exist after move")
	}
	if _, err := os.Stat(staged); !os.IsNotExist(err) {
		t.Fatal("staged file should be gone")
	}

	if err := f.Move(staged); !errors.Is(err, faults.ErrMissingSource) {
		t.Fatalf("expected ErrMissingSource for vanished staging file, got %v", err)
	}
	if missing := processed.Missing(store.Required("abc")); len(missing) != len(store.Required("abc"))-1 {
		t.Fatalf("expected all but the subtitle missing, got %d", len(missing))
	}
}

func TestCopyLeavesSource(t *testing.T) {
	store := newStore(t)
	src := filepath.Join(t.TempDir(), "tags.txt")
	testsupport.WriteText(t, src, "artist:someone\n")

	f := store.File("abc", processed.KindTags)
	if err := f.Copy(src); err != nil {
		t.Fatalf("Copy: %v", err)
	}
	got, err := os.ReadFile(f.Path)
	if err != nil || string(got) != "artist:someone\n" {
		t.Fatalf("unexpected copy %q %v", got, err)
	}
	if _, err := os.Stat(src); err != nil {
		t.Fatalf("source removed: %v", err)
	}
}

func TestUnreferenced(t *testing.T) {
	store := newStore(t)
	keep := store.File("abc", processed.KindVideo)
	testsupport.WriteText(t, keep.Path, "v")
	stray := filepath.Join(store.Dir(), strings.Repeat("f", 64)+".mp4")
	testsupport.WriteText(t, stray, "old")
	testsupport.WriteText(t, filepath.Join(store.Dir(), ".partial"), "x")

	got, err := store.Unreferenced(map[string]struct{}{keep.Path: {}})
	if err != nil {
		t.Fatalf("Unreferenced: %v", err)
	}
	if len(got) != 1 || got[0] != stray {
		t.Fatalf("unexpected unreferenced set: %v", got)
	}
}
