package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recordingSender struct {
	name  string
	err   error
	calls atomic.Int32
}

func (r *recordingSender) Send(context.Context, string, string) error {
	r.calls.Add(1)
	return r.err
}

func (r *recordingSender) Name() string { return r.name }

func TestNotifyFiltersEvents(t *testing.T) {
	s := &recordingSender{name: "rec"}
	n := NewNotifier([]Sender{s}, []string{EventBigWin, " "}, discardLogger())

	if err := n.Notify(context.Background(), EventFeedStale, "stale", "x"); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if got := s.calls.Load(); got != 0 {
		t.Errorf("filtered event delivered %d times", got)
	}
	if err := n.Notify(context.Background(), EventBigWin, "win", "x"); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if got := s.calls.Load(); got != 1 {
		t.Errorf("calls = %d, want 1", got)
	}
}

func TestNotifyContinuesPastFailingSender(t *testing.T) {
	bad := &recordingSender{name: "bad", err: errors.New("boom")}
	good := &recordingSender{name: "good"}
	n := NewNotifier([]Sender{bad, good}, nil, discardLogger())

	err := n.Notify(context.Background(), EventError, "t", "m")
	if err == nil || !strings.Contains(err.Error(), "bad: boom") {
		t.Errorf("Notify err = %v, want bad: boom", err)
	}
	if good.calls.Load() != 1 {
		t.Error("good sender was skipped")
	}
}

func TestNilNotifierDisabled(t *testing.T) {
	var n *Notifier
	if n.Enabled(EventBigWin) {
		t.Error("nil notifier reports enabled")
	}
}

func TestTelegramSender(t *testing.T) {
	var got map[string]string
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewTelegramSender("tok", "42").WithBaseURL(srv.URL + "/")
	if err := s.Send(context.Background(), "Big win", "u1 won 500"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if path != "/bottok/sendMessage" {
		t.Errorf("path = %q, want %q", path, "/bottok/sendMessage")
	}
	if got["chat_id"] != "42" {
		t.Errorf("chat_id = %q, want %q", got["chat_id"], "42")
	}
	if got["text"] != "*Big win*\nu1 won 500" {
		t.Errorf("text = %q", got["text"])
	}
}

func TestDiscordSenderErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	err := NewDiscordSender(srv.URL).Send(context.Background(), "t", "m")
	if err == nil || !strings.Contains(err.Error(), "429") {
		t.Errorf("Send err = %v, want status 429", err)
	}
}
