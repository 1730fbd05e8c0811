package cbu_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DieForGlory/portal-analytics-sub000/internal/adapters/cbu"
)

func TestCurrentParsesFirstEntry(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ua := r.Header.Get("User-Agent"); ua == "" {
			t.Error("expected a browser User-Agent header")
		}
		w.Write([]byte(`[{"Rate":"12720.53"},{"Rate":"9999.99"}]`))
	}))
	defer srv.Close()

	rate, err := cbu.NewWithURL(srv.URL + "/").Current(context.Background())
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	if rate.String() != "12720.53" {
		t.Errorf("expected 12720.53, got %s", rate)
	}
}

func TestOnDateAppendsDateSuffix(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Write([]byte(`[{"Rate":"12650"}]`))
	}))
	defer srv.Close()

	day := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	if _, err := cbu.NewWithURL(srv.URL + "/").OnDate(context.Background(), day); err != nil {
		t.Fatalf("OnDate: %v", err)
	}
	if gotPath != "/2026-03-15/" {
		t.Errorf("expected date-suffixed path, got %q", gotPath)
	}
}

func TestFetchErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		code int
	}{
		{"EmptyList", `[]`, http.StatusOK},
		{"BadRate", `[{"Rate":"not-a-number"}]`, http.StatusOK},
		{"ServerError", ``, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.code)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			if _, err := cbu.NewWithURL(srv.URL + "/").Current(context.Background()); err == nil {
				t.Error("expected an error")
			}
		})
	}
}
