package metrics

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/goleak"

	"mediaprep/internal/logging"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestObserveItem(t *testing.T) {
	m := New()
	m.ObserveItem(true, "")
	m.ObserveItem(false, "parse")
	m.ObserveItem(false, "parse")

	if got := testutil.ToFloat64(m.ItemsTotal.WithLabelValues("success", "")); got != 1 {
		t.Fatalf("expected 1 success, got %v", got)
	}
	if got := testutil.ToFloat64(m.ItemsTotal.WithLabelValues("failure", "parse")); got != 2 {
		t.Fatalf("expected 2 parse failures, got %v", got)
	}
}

func TestObserveToolAndStep(t *testing.T) {
	m := New()
	m.ObserveTool("probe", 20*time.Millisecond, nil)
	m.ObserveTool("render_video", time.Second, errors.New("exit status 1"))
	m.ObserveStep("thumbnails", 2*time.Second)

	if got := testutil.ToFloat64(m.ToolInvocations.WithLabelValues("render_video", "failure")); got != 1 {
		t.Fatalf("expected 1 failed render, got %v", got)
	}
	if count := testutil.CollectAndCount(m.ToolDuration); count != 2 {
		t.Fatalf("expected 2 tool duration series, got %d", count)
	}
	if count := testutil.CollectAndCount(m.StepDuration); count != 1 {
		t.Fatalf("expected 1 step series, got %d", count)
	}
}

func TestRunGauges(t *testing.T) {
	m := New()
	m.StartRun(5, 1)
	at := time.Unix(1_700_000_000, 0)
	m.FinishRun(at)

	if got := testutil.ToFloat64(m.PendingItems); got != 5 {
		t.Fatalf("pending = %v", got)
	}
	if got := testutil.ToFloat64(m.ScanRejected); got != 1 {
		t.Fatalf("rejected = %v", got)
	}
	if got := testutil.ToFloat64(m.LastRunSuccess); got != float64(at.Unix()) {
		t.Fatalf("last success = %v", got)
	}
	if got := testutil.ToFloat64(m.RunsTotal); got != 1 {
		t.Fatalf("runs = %v", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveItem(true, "")
	m.ObserveTool("probe", time.Second, nil)
	m.ObserveStep("video", time.Second)
	m.StartRun(1, 0)
	m.FinishRun(time.Now())
	if m.Registry() != nil {
		t.Fatal("nil metrics should have no registry")
	}
}

func TestServeExposesRegistry(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("reserve port: %v", err)
	}
	addr := listener.Addr().String()
	_ = listener.Close()

	m := New()
	m.ObserveItem(true, "")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Serve(ctx, addr, m, logging.NewNop())
	}()

	var body string
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get("http://" + addr + "/metrics")
		if err == nil {
			data, _ := io.ReadAll(resp.Body)
			_ = resp.Body.Close()
			body = string(data)
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	http.DefaultClient.CloseIdleConnections()

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Serve: %v", err)
	}
	if !strings.Contains(body, `mediaprep_items_total{kind="",result="success"} 1`) {
		t.Fatalf("metrics body missing item counter:\n%s", body)
	}
}

func TestServeDisabled(t *testing.T) {
	if err := Serve(context.Background(), "", New(), nil); err != nil {
		t.Fatalf("expected nil for empty bind, got %v", err)
	}
}
