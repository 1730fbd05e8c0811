package telegram_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DieForGlory/portal-analytics-sub000/internal/adapters/telegram"
	"github.com/DieForGlory/portal-analytics-sub000/internal/core"
)

func TestConfigured(t *testing.T) {
	if telegram.New("", 0).Configured() {
		t.Error("empty credentials must not count as configured")
	}
	if !telegram.New("token", 42).Configured() {
		t.Error("expected configured client")
	}
}

func TestSendMessage(t *testing.T) {
	var gotPath string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := telegram.NewWithURL("test-token", 42, srv.URL)
	if err := c.SendMessage(context.Background(), "<b>Скидки обновлены</b>"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	if gotPath != "/bottest-token/sendMessage" {
		t.Errorf("unexpected path %q", gotPath)
	}
	if gotBody["parse_mode"] != "HTML" {
		t.Errorf("expected HTML parse mode, got %v", gotBody["parse_mode"])
	}
	if gotBody["chat_id"] != float64(42) {
		t.Errorf("expected chat_id 42, got %v", gotBody["chat_id"])
	}
}

func TestSendMessageAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"ok":false,"description":"chat not found"}`))
	}))
	defer srv.Close()

	c := telegram.NewWithURL("test-token", 42, srv.URL)
	err := c.SendMessage(context.Background(), "hi")
	if !errors.Is(err, core.ErrExternalFailure) {
		t.Errorf("expected ErrExternalFailure, got %v", err)
	}
}
