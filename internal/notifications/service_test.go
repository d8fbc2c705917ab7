package notifications_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"mediaprep/internal/config"
	"mediaprep/internal/notifications"
)

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = ""
	svc := notifications.NewService(&cfg)
	if err := svc.NotifyBatchStarted(context.Background(), 3); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
	if err := notifications.NewService(nil).NotifyError(context.Background(), errors.New("x"), "scan"); err != nil {
		t.Fatalf("expected noop for nil config, got %v", err)
	}
}

type captured struct {
	title    string
	tags     string
	priority string
	body     string
}

func newCapture(t *testing.T, status int) (*httptest.Server, *captured) {
	t.Helper()
	var got captured
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method: %s", r.Method)
		}
		got.title = r.Header.Get("Title")
		got.tags = r.Header.Get("Tags")
		got.priority = r.Header.Get("Priority")
		body, _ := io.ReadAll(r.Body)
		got.body = string(body)
		w.WriteHeader(status)
	}))
	t.Cleanup(server.Close)
	return server, &got
}

func TestNtfyServiceFormatsPayloads(t *testing.T) {
	tests := []struct {
		name           string
		send           func(notifications.Service) error
		expectTitle    string
		expectMessage  string
		expectTags     string
		expectPriority string
	}{
		{
			name:          "batch started",
			send:          func(s notifications.Service) error { return s.NotifyBatchStarted(context.Background(), 1) },
			expectTitle:   "mediaprep - Encode Started",
			expectMessage: "Encoding 1 pending item",
			expectTags:    "mediaprep,encode,started",
		},
		{
			name: "batch completed",
			send: func(s notifications.Service) error {
				return s.NotifyBatchCompleted(context.Background(), 4, 0, 90*time.Second+400*time.Millisecond)
			},
			expectTitle:   "mediaprep - Encode Complete",
			expectMessage: "Encode complete: 4 items processed in 1m30s",
			expectTags:    "mediaprep,encode,completed",
		},
		{
			name: "batch completed with failures",
			send: func(s notifications.Service) error {
				return s.NotifyBatchCompleted(context.Background(), 2, 1, 5*time.Second)
			},
			expectTitle:   "mediaprep - Encode Complete (with errors)",
			expectMessage: "Encode complete: 2 succeeded, 1 failed in 5s",
			expectTags:    "mediaprep,encode,warning",
		},
		{
			name: "error",
			send: func(s notifications.Service) error {
				return s.NotifyError(context.Background(), errors.New("storage error: meta dir unwritable"), "encode")
			},
			expectTitle:    "mediaprep - Error",
			expectMessage:  "❌ Error with encode: storage error: meta dir unwritable",
			expectTags:     "mediaprep,error,alert",
			expectPriority: "high",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			server, got := newCapture(t, http.StatusOK)

			cfg := config.Default()
			cfg.Notifications.NtfyTopic = server.URL
			cfg.Notifications.RequestTimeout = 5

			if err := tc.send(notifications.NewService(&cfg)); err != nil {
				t.Fatalf("notification returned error: %v", err)
			}
			if got.title != tc.expectTitle {
				t.Fatalf("expected title %q, got %q", tc.expectTitle, got.title)
			}
			if got.body != tc.expectMessage {
				t.Fatalf("expected message %q, got %q", tc.expectMessage, got.body)
			}
			if got.tags != tc.expectTags {
				t.Fatalf("expected tags %q, got %q", tc.expectTags, got.tags)
			}
			if got.priority != tc.expectPriority {
				t.Fatalf("expected priority %q, got %q", tc.expectPriority, got.priority)
			}
		})
	}
}

func TestNtfyServiceReportsHTTPErrors(t *testing.T) {
	server, _ := newCapture(t, http.StatusTooManyRequests)

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL

	err := notifications.NewService(&cfg).TestNotification(context.Background())
	if err == nil || !strings.Contains(err.Error(), "429") {
		t.Fatalf("expected status error, got %v", err)
	}
}
