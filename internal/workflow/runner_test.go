package workflow_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"

	"mediaprep/internal/config"
	"mediaprep/internal/faults"
	"mediaprep/internal/ledger"
	"mediaprep/internal/logging"
	"mediaprep/internal/mediatool"
	"mediaprep/internal/meta"
	"mediaprep/internal/processed"
	"mediaprep/internal/scan"
	"mediaprep/internal/testsupport"
	"mediaprep/internal/workflow"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type recordingNotifier struct {
	mu        sync.Mutex
	started   []int
	completed [][2]int
	errors    []error
}

func (n *recordingNotifier) NotifyBatchStarted(_ context.Context, pending int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.started = append(n.started, pending)
	return nil
}

func (n *recordingNotifier) NotifyBatchCompleted(_ context.Context, succeeded, failed int, _ time.Duration) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.completed = append(n.completed, [2]int{succeeded, failed})
	return nil
}

func (n *recordingNotifier) NotifyError(_ context.Context, err error, _ string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.errors = append(n.errors, err)
	return nil
}

func (n *recordingNotifier) TestNotification(context.Context) error { return nil }

type fixture struct {
	cfg      *config.Config
	tool     *testsupport.FakeTool
	ledger   *ledger.Store
	notifier *recordingNotifier
}

func newFixture(t *testing.T, opts ...testsupport.ConfigOption) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	return &fixture{
		cfg:      cfg,
		tool:     testsupport.NewFakeTool(),
		ledger:   testsupport.MustOpenLedger(t, cfg),
		notifier: &recordingNotifier{},
	}
}

func (f *fixture) runner(extra ...workflow.Option) *workflow.Runner {
	opts := []workflow.Option{
		workflow.WithTool(f.tool),
		workflow.WithLedger(f.ledger),
		workflow.WithNotifier(f.notifier),
	}
	return workflow.New(f.cfg, logging.NewNop(), append(opts, extra...)...)
}

func (f *fixture) addVideo(t *testing.T, name string) {
	t.Helper()
	testsupport.WriteFile(t, filepath.Join(f.cfg.Paths.SourceDir, name+".mkv"), 1024)
}

func (f *fixture) record(t *testing.T, name string) *meta.Record {
	t.Helper()
	store, err := meta.NewStore(f.cfg.Paths.MetaDir, logging.NewNop())
	if err != nil {
		t.Fatalf("meta store: %v", err)
	}
	return store.Load(name)
}

func TestRunEncodesPendingItems(t *testing.T) {
	f := newFixture(t)
	f.addVideo(t, "alpha")
	f.addVideo(t, "beta")

	summary, err := f.runner().Run(context.Background(), workflow.Request{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !summary.OK() {
		t.Fatalf("expected clean summary, got %+v", summary.Failed)
	}
	if summary.RunID == "" {
		t.Fatal("expected run id")
	}
	if diff := cmp.Diff([]string{"alpha", "beta"}, summary.Selected); diff != "" {
		t.Fatalf("selected mismatch (-want +got):\n%s", diff)
	}
	succeeded := slices.Clone(summary.Succeeded)
	slices.Sort(succeeded)
	if diff := cmp.Diff([]string{"alpha", "beta"}, succeeded); diff != "" {
		t.Fatalf("succeeded mismatch (-want +got):\n%s", diff)
	}

	for _, name := range []string{"alpha", "beta"} {
		rec := f.record(t, name)
		if rec.SourceHash == "" || len(rec.Actions) != 0 {
			t.Fatalf("%s: expected hashed record without actions, got %+v", name, rec)
		}
	}

	runs, err := f.ledger.RecentRuns(context.Background(), 5)
	if err != nil {
		t.Fatalf("RecentRuns: %v", err)
	}
	if len(runs) != 1 || runs[0].Status != ledger.RunCompleted || runs[0].Succeeded != 2 || runs[0].ID != summary.RunID {
		t.Fatalf("unexpected runs: %+v", runs)
	}
	results, err := f.ledger.LatestResults(context.Background())
	if err != nil {
		t.Fatalf("LatestResults: %v", err)
	}
	if len(results) != 2 || results[0].Status != ledger.ItemSucceeded || results[0].Published == 0 {
		t.Fatalf("unexpected results: %+v", results)
	}

	if diff := cmp.Diff([]int{2}, f.notifier.started); diff != "" {
		t.Fatalf("start notifications (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([][2]int{{2, 0}}, f.notifier.completed); diff != "" {
		t.Fatalf("completion notifications (-want +got):\n%s", diff)
	}
}

func TestRunSecondPassSelectsNothing(t *testing.T) {
	f := newFixture(t)
	f.addVideo(t, "alpha")

	if _, err := f.runner().Run(context.Background(), workflow.Request{}); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	f.tool.Reset()

	summary, err := f.runner().Run(context.Background(), workflow.Request{})
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if len(summary.Selected) != 0 {
		t.Fatalf("expected nothing selected, got %v", summary.Selected)
	}
	if n := f.tool.Count(""); n != 0 {
		t.Fatalf("expected no tool calls, got %d", n)
	}
	if len(f.notifier.started) != 1 {
		t.Fatalf("idle batch must not notify, got %v", f.notifier.started)
	}
}

func TestRunReselectsItemWithMissingArtifact(t *testing.T) {
	f := newFixture(t)
	f.addVideo(t, "alpha")

	if _, err := f.runner().Run(context.Background(), workflow.Request{}); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	rec := f.record(t, "alpha")
	store, err := processed.NewStore(f.cfg.Paths.ProcessedDir)
	if err != nil {
		t.Fatalf("processed store: %v", err)
	}
	thumb := store.Ordinal(rec.SourceHash, processed.KindImage, 2)
	if err := os.Remove(thumb.Path); err != nil {
		t.Fatalf("remove thumbnail: %v", err)
	}
	f.tool.Reset()

	summary, err := f.runner().Run(context.Background(), workflow.Request{})
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if diff := cmp.Diff([]string{"alpha"}, summary.Selected); diff != "" {
		t.Fatalf("selected mismatch (-want +got):\n%s", diff)
	}
	if n := f.tool.Count(mediatool.OpExtractFrame); n != 1 {
		t.Fatalf("expected one frame extraction, got %d", n)
	}
	if !thumb.Exists() {
		t.Fatal("thumbnail not restored")
	}
}

func TestRunRestoresMissingTagCopy(t *testing.T) {
	f := newFixture(t)
	f.addVideo(t, "song")
	testsupport.WriteText(t, filepath.Join(f.cfg.Paths.SourceDir, "song.txt"), "title:Song\n")
	f.addVideo(t, "plain")

	if _, err := f.runner().Run(context.Background(), workflow.Request{}); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	store, err := processed.NewStore(f.cfg.Paths.ProcessedDir)
	if err != nil {
		t.Fatalf("processed store: %v", err)
	}
	tags := store.File(f.record(t, "song").SourceHash, processed.KindTags)
	if err := os.Remove(tags.Path); err != nil {
		t.Fatalf("remove tag copy: %v", err)
	}
	f.tool.Reset()

	summary, err := f.runner().Run(context.Background(), workflow.Request{})
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if diff := cmp.Diff([]string{"song"}, summary.Selected); diff != "" {
		t.Fatalf("selected mismatch (-want +got):\n%s", diff)
	}
	if n := f.tool.Count(""); n != 0 {
		t.Fatalf("expected no tool calls, got %d", n)
	}
	if !tags.Exists() {
		t.Fatal("tag copy not restored")
	}
}

func TestRunItemFailureStaysLocal(t *testing.T) {
	f := newFixture(t)
	f.addVideo(t, "alpha")
	f.addVideo(t, "beta")
	f.tool.Details["beta.mkv"] = mediatool.Details{Width: 640, Height: 480, HasVideo: true}

	summary, err := f.runner().Run(context.Background(), workflow.Request{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if diff := cmp.Diff([]string{"alpha"}, summary.Succeeded); diff != "" {
		t.Fatalf("succeeded mismatch (-want +got):\n%s", diff)
	}
	if len(summary.Failed) != 1 {
		t.Fatalf("expected one failure, got %+v", summary.Failed)
	}
	failure := summary.Failed[0]
	if failure.Name != "beta" || failure.Kind != "probe" || failure.Step != "video" {
		t.Fatalf("unexpected failure: %+v", failure)
	}
	if !errors.Is(failure.Err, faults.ErrProbe) {
		t.Fatalf("expected ErrProbe, got %v", failure.Err)
	}
	if summary.OK() {
		t.Fatal("summary with failures must not be OK")
	}

	if rec := f.record(t, "beta"); len(rec.Actions) == 0 {
		t.Fatal("failed item must keep its pending actions")
	}
	results, err := f.ledger.LatestResults(context.Background())
	if err != nil {
		t.Fatalf("LatestResults: %v", err)
	}
	var beta ledger.ItemResult
	for _, r := range results {
		if r.Item == "beta" {
			beta = r
		}
	}
	if beta.Status != ledger.ItemFailed || beta.ErrorKind != "probe" || beta.FailedStep != "video" {
		t.Fatalf("unexpected ledger row: %+v", beta)
	}
	if diff := cmp.Diff([][2]int{{1, 1}}, f.notifier.completed); diff != "" {
		t.Fatalf("completion notifications (-want +got):\n%s", diff)
	}
}

func TestRunNamedItemsOnly(t *testing.T) {
	f := newFixture(t)
	f.addVideo(t, "alpha")
	f.addVideo(t, "beta")

	summary, err := f.runner().Run(context.Background(), workflow.Request{Names: []string{"beta", "missing"}})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if diff := cmp.Diff([]string{"beta"}, summary.Selected); diff != "" {
		t.Fatalf("selected mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"missing"}, summary.Unknown); diff != "" {
		t.Fatalf("unknown mismatch (-want +got):\n%s", diff)
	}
	if rec := f.record(t, "alpha"); rec.SourceHash != "" {
		t.Fatal("unselected item must not be encoded")
	}
}

func TestRunRandomOrderUsesShuffle(t *testing.T) {
	f := newFixture(t, testsupport.WithWorkers(1))
	for _, name := range []string{"a", "b", "c"} {
		f.addVideo(t, name)
	}

	reverse := workflow.WithShuffle(func(names []string) { slices.Reverse(names) })
	summary, err := f.runner(reverse).Run(context.Background(), workflow.Request{Order: config.OrderRandom})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if diff := cmp.Diff([]string{"c", "b", "a"}, summary.Selected); diff != "" {
		t.Fatalf("order mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"c", "b", "a"}, summary.Succeeded); diff != "" {
		t.Fatalf("single worker must encode in order (-want +got):\n%s", diff)
	}
}

func TestRunStorageFaultAbortsBatch(t *testing.T) {
	f := newFixture(t, testsupport.WithWorkers(1))
	f.addVideo(t, "alpha")
	f.addVideo(t, "beta")
	f.tool.Fail[mediatool.OpMux] = faults.Wrap(faults.ErrStorage, "test", "mux", "disk full", nil)

	summary, err := f.runner().Run(context.Background(), workflow.Request{})
	if !errors.Is(err, faults.ErrStorage) {
		t.Fatalf("expected ErrStorage, got %v", err)
	}
	if !summary.Aborted {
		t.Fatal("expected aborted summary")
	}
	if n := f.tool.Count(mediatool.OpMux); n != 1 {
		t.Fatalf("batch must stop after the fatal item, mux ran %d times", n)
	}
	runs, err := f.ledger.RecentRuns(context.Background(), 1)
	if err != nil {
		t.Fatalf("RecentRuns: %v", err)
	}
	if len(runs) != 1 || runs[0].Status != ledger.RunAborted || runs[0].Error == "" {
		t.Fatalf("unexpected run row: %+v", runs)
	}
	if len(f.notifier.errors) != 1 {
		t.Fatalf("expected error notification, got %d", len(f.notifier.errors))
	}
}

func TestRunRefusesConcurrentBatch(t *testing.T) {
	f := newFixture(t)
	lock := flock.New(filepath.Join(f.cfg.Paths.MetaDir, workflow.LockFileName))
	locked, err := lock.TryLock()
	if err != nil || !locked {
		t.Fatalf("TryLock: %v %v", locked, err)
	}
	defer func() { _ = lock.Unlock() }()

	_, err = f.runner().Run(context.Background(), workflow.Request{})
	if !errors.Is(err, workflow.ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
}

func TestRunFailsOnMissingSourceDir(t *testing.T) {
	f := newFixture(t)
	if err := os.Remove(f.cfg.Paths.SourceDir); err != nil {
		t.Fatalf("remove source: %v", err)
	}

	_, err := f.runner().Run(context.Background(), workflow.Request{})
	if !errors.Is(err, faults.ErrStorage) {
		t.Fatalf("expected preflight storage error, got %v", err)
	}
}

func TestRunCancelledBeforeStart(t *testing.T) {
	f := newFixture(t)
	f.addVideo(t, "alpha")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := f.runner().Run(ctx, workflow.Request{}); err == nil {
		t.Fatal("expected error for cancelled context")
	}
	if n := f.tool.Count(""); n != 0 {
		t.Fatalf("expected no tool calls, got %d", n)
	}
}

func TestNeedsWork(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store, err := processed.NewStore(cfg.Paths.ProcessedDir)
	if err != nil {
		t.Fatalf("processed store: %v", err)
	}
	metaStore, err := meta.NewStore(cfg.Paths.MetaDir, logging.NewNop())
	if err != nil {
		t.Fatalf("meta store: %v", err)
	}

	rec := metaStore.Load("item")
	if !workflow.NeedsWork(rec, nil, store) {
		t.Fatal("record without source hash needs work")
	}
	rec.SourceHash = "abc"
	if !workflow.NeedsWork(rec, nil, store) {
		t.Fatal("record with missing artifacts needs work")
	}
	for _, file := range store.Required("abc") {
		testsupport.WriteText(t, file.Path, "x")
	}
	if workflow.NeedsWork(rec, nil, store) {
		t.Fatal("complete record needs no work")
	}
	c := &scan.Collection{Name: "item", Files: []*scan.SourceFile{{Name: "item.txt", Ext: "txt"}}}
	if !workflow.NeedsWork(rec, c, store) {
		t.Fatal("missing tag copy needs work when a tag source exists")
	}
	rec.AddActions(meta.ActionTags)
	if !workflow.NeedsWork(rec, nil, store) {
		t.Fatal("pending action needs work")
	}
	if workflow.NeedsWork(nil, nil, store) {
		t.Fatal("nil record needs no work")
	}
}

func TestRunPrunesExpiredRunHistory(t *testing.T) {
	f := newFixture(t)
	f.cfg.Logging.RetentionDays = 7
	ctx := context.Background()

	old := ledger.Run{ID: "expired", Trigger: "manual", StartedAt: time.Now().AddDate(0, 0, -30)}
	if err := f.ledger.StartRun(ctx, old); err != nil {
		t.Fatalf("StartRun: %v", err)
	}

	summary, err := f.runner().Run(ctx, workflow.Request{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	runs, err := f.ledger.RecentRuns(ctx, 10)
	if err != nil {
		t.Fatalf("RecentRuns: %v", err)
	}
	if len(runs) != 1 || runs[0].ID != summary.RunID {
		t.Fatalf("expected only the new run to remain, got %+v", runs)
	}
}
