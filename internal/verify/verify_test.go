package verify_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"mediaprep/internal/config"
	"mediaprep/internal/logging"
	"mediaprep/internal/mediatool"
	"mediaprep/internal/meta"
	"mediaprep/internal/processed"
	"mediaprep/internal/scan"
	"mediaprep/internal/testsupport"
	"mediaprep/internal/verify"
	"mediaprep/internal/workflow"
)

// encoded runs a batch over the named video items with a fake media tool.
func encoded(t *testing.T, names ...string) *config.Config {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	for _, name := range names {
		testsupport.WriteFile(t, filepath.Join(cfg.Paths.SourceDir, name+".mkv"), 512)
	}
	runner := workflow.New(cfg, logging.NewNop(), workflow.WithTool(testsupport.NewFakeTool()))
	summary, err := runner.Run(context.Background(), workflow.Request{})
	if err != nil || !summary.OK() {
		t.Fatalf("batch: %v %+v", err, summary.Failed)
	}
	return cfg
}

func load(t *testing.T, cfg *config.Config, name string) *meta.Record {
	t.Helper()
	store, err := meta.NewStore(cfg.Paths.MetaDir, logging.NewNop())
	if err != nil {
		t.Fatalf("meta store: %v", err)
	}
	return store.Load(name)
}

func TestCheckCompleteItems(t *testing.T) {
	cfg := encoded(t, "alpha", "beta")

	report, err := verify.Check(context.Background(), cfg, false, logging.NewNop())
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if report.Checked != 2 || report.Complete != 2 || len(report.Incomplete) != 0 {
		t.Fatalf("unexpected report: %+v", report)
	}
}

func TestCheckReflagsMissingArtifacts(t *testing.T) {
	cfg := encoded(t, "alpha")
	rec := load(t, cfg, "alpha")
	store, err := processed.NewStore(cfg.Paths.ProcessedDir)
	if err != nil {
		t.Fatalf("processed store: %v", err)
	}
	for _, f := range []processed.File{
		store.File(rec.SourceHash, processed.KindPreview),
		store.Ordinal(rec.SourceHash, processed.KindImage, 0),
		store.Ordinal(rec.SourceHash, processed.KindImage, 3),
	} {
		if err := os.Remove(f.Path); err != nil {
			t.Fatalf("remove %s: %v", f.Path, err)
		}
	}

	report, err := verify.Check(context.Background(), cfg, true, logging.NewNop())
	if err != nil {
		t.Fatalf("dry-run Check: %v", err)
	}
	if len(report.Incomplete) != 1 {
		t.Fatalf("expected one incomplete item, got %+v", report.Incomplete)
	}
	finding := report.Incomplete[0]
	if len(finding.Missing) != 3 {
		t.Fatalf("expected 3 missing files, got %d", len(finding.Missing))
	}
	want := []meta.Action{meta.ActionPreview, meta.ActionThumbnails}
	if diff := cmp.Diff(want, finding.Actions); diff != "" {
		t.Fatalf("actions mismatch (-want +got):\n%s", diff)
	}
	if got := load(t, cfg, "alpha").Actions; len(got) != 0 {
		t.Fatalf("dry run must not save, got %v", got)
	}

	if _, err := verify.Check(context.Background(), cfg, false, logging.NewNop()); err != nil {
		t.Fatalf("Check: %v", err)
	}
	if diff := cmp.Diff(want, load(t, cfg, "alpha").Actions); diff != "" {
		t.Fatalf("saved actions mismatch (-want +got):\n%s", diff)
	}
}

func TestCheckExpectsTagCopyOnlyWithTagSource(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	testsupport.WriteFile(t, filepath.Join(cfg.Paths.SourceDir, "song.mkv"), 512)
	testsupport.WriteText(t, filepath.Join(cfg.Paths.SourceDir, "song.txt"), "artist:Someone\n")
	testsupport.WriteFile(t, filepath.Join(cfg.Paths.SourceDir, "plain.mkv"), 512)
	runner := workflow.New(cfg, logging.NewNop(), workflow.WithTool(testsupport.NewFakeTool()))
	if _, err := runner.Run(context.Background(), workflow.Request{}); err != nil {
		t.Fatalf("batch: %v", err)
	}

	store, err := processed.NewStore(cfg.Paths.ProcessedDir)
	if err != nil {
		t.Fatalf("processed store: %v", err)
	}
	tags := store.File(load(t, cfg, "song").SourceHash, processed.KindTags)
	if err := os.Remove(tags.Path); err != nil {
		t.Fatalf("remove tag copy: %v", err)
	}

	report, err := verify.Check(context.Background(), cfg, false, logging.NewNop())
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if report.Complete != 1 || len(report.Incomplete) != 1 || report.Incomplete[0].Name != "song" {
		t.Fatalf("unexpected report: %+v", report)
	}
	if diff := cmp.Diff([]meta.Action{meta.ActionTags}, load(t, cfg, "song").Actions); diff != "" {
		t.Fatalf("saved actions mismatch (-want +got):\n%s", diff)
	}
}

func TestCheckReportsUnhashed(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	testsupport.WriteText(t, filepath.Join(cfg.Paths.MetaDir, "fresh.json"), `{"scan":{},"actions":["video"]}`+"\n")

	report, err := verify.Check(context.Background(), cfg, false, logging.NewNop())
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if diff := cmp.Diff([]string{"fresh"}, report.Unhashed); diff != "" {
		t.Fatalf("unhashed mismatch (-want +got):\n%s", diff)
	}
}

func TestCheckHonoursBatchLock(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	lock, err := workflow.AcquireLock(cfg.Paths.MetaDir)
	if err != nil {
		t.Fatalf("AcquireLock: %v", err)
	}
	defer func() { _ = lock.Unlock() }()

	if _, err := verify.Check(context.Background(), cfg, false, logging.NewNop()); !errors.Is(err, workflow.ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
	if _, err := verify.Prune(context.Background(), cfg, false, logging.NewNop()); !errors.Is(err, workflow.ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
}

func TestPruneRemovesUnreferencedFiles(t *testing.T) {
	cfg := encoded(t, "alpha")
	stray := filepath.Join(cfg.Paths.ProcessedDir, "deadbeef.mp4")
	testsupport.WriteText(t, stray, "old")
	hidden := filepath.Join(cfg.Paths.ProcessedDir, ".keep")
	testsupport.WriteText(t, hidden, "")

	dry, err := verify.Prune(context.Background(), cfg, true, logging.NewNop())
	if err != nil {
		t.Fatalf("dry-run Prune: %v", err)
	}
	if diff := cmp.Diff([]string{stray}, dry.Unreferenced); diff != "" {
		t.Fatalf("unreferenced mismatch (-want +got):\n%s", diff)
	}
	if len(dry.Removed) != 0 {
		t.Fatal("dry run removed files")
	}
	if _, err := os.Stat(stray); err != nil {
		t.Fatalf("stray file removed during dry run: %v", err)
	}

	result, err := verify.Prune(context.Background(), cfg, false, logging.NewNop())
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if diff := cmp.Diff([]string{stray}, result.Removed); diff != "" {
		t.Fatalf("removed mismatch (-want +got):\n%s", diff)
	}
	if _, err := os.Stat(stray); !os.IsNotExist(err) {
		t.Fatalf("stray file still present: %v", err)
	}
	if _, err := os.Stat(hidden); err != nil {
		t.Fatalf("hidden file must survive: %v", err)
	}

	again, err := verify.Check(context.Background(), cfg, true, logging.NewNop())
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if again.Complete != 1 {
		t.Fatalf("prune removed referenced artifacts: %+v", again)
	}
}

func TestPruneKeepsArtifactsOfPendingItems(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	testsupport.WriteFile(t, filepath.Join(cfg.Paths.SourceDir, "song.mkv"), 512)
	tool := testsupport.NewFakeTool()
	tool.Fail[mediatool.OpPreview] = errors.New("exit status 1")

	summary, err := workflow.New(cfg, logging.NewNop(), workflow.WithTool(tool)).
		Run(context.Background(), workflow.Request{})
	if err != nil {
		t.Fatalf("batch: %v", err)
	}
	if len(summary.Failed) != 1 {
		t.Fatalf("expected the preview failure, got %+v", summary)
	}

	scanned, err := scan.NewScanner(logging.NewNop()).Scan(context.Background(), cfg.Paths.SourceDir)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	hash, err := scanned.Collections["song"].SourceHash()
	if err != nil {
		t.Fatalf("SourceHash: %v", err)
	}
	store, err := processed.NewStore(cfg.Paths.ProcessedDir)
	if err != nil {
		t.Fatalf("processed store: %v", err)
	}
	video := store.File(hash, processed.KindVideo)
	if !video.Exists() {
		t.Fatal("expected the primary video to be published before the failure")
	}

	result, err := verify.Prune(context.Background(), cfg, false, logging.NewNop())
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if len(result.Removed) != 0 {
		t.Fatalf("prune removed in-progress artifacts: %v", result.Removed)
	}
	if !video.Exists() {
		t.Fatal("primary video removed")
	}
}

func TestUnmatchedListsOrphanSidecars(t *testing.T) {
	cfg := encoded(t, "alpha", "beta")
	if err := os.Remove(filepath.Join(cfg.Paths.SourceDir, "beta.mkv")); err != nil {
		t.Fatalf("remove source: %v", err)
	}

	orphans, err := verify.Unmatched(context.Background(), cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("Unmatched: %v", err)
	}
	want := []string{filepath.Join(cfg.Paths.MetaDir, "beta.json")}
	if diff := cmp.Diff(want, orphans); diff != "" {
		t.Fatalf("orphans mismatch (-want +got):\n%s", diff)
	}
}
