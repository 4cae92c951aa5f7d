package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/project-ncl/sbomer-sub004/internal/generation"
	"github.com/project-ncl/sbomer-sub004/internal/generation/memory"
)

type StubLeader bool

func (l StubLeader) IsLeader() bool { return bool(l) }

func newTestHandler(tb testing.TB) (*handler, *memory.Database, *prometheus.Registry) {
	tb.Helper()
	db := memory.NewDatabase()
	reg := prometheus.NewRegistry()
	return newHandler(db, StubLeader(true), reg, slog.Default()), db, reg
}

func TestHandler(t *testing.T) {
	t.Run("reports health", func(t *testing.T) {
		h, _, _ := newTestHandler(t)

		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

		if got, want := w.Code, http.StatusOK; got != want {
			t.Fatalf("got %d, want %d", got, want)
		}
		if got, want := strings.TrimSpace(w.Body.String()), `{"status":"ok","leader":true}`; got != want {
			t.Fatalf("got %s, want %s", got, want)
		}
	})

	t.Run("gets a generation", func(t *testing.T) {
		h, db, _ := newTestHandler(t)
		g, err := db.CreateGeneration(context.Background(), &generation.DatabaseCreateGenerationParams{
			Target:    generation.Target{Type: generation.TargetTypeBrewRPM, Identifier: "nvr-1.0-1"},
			Generator: generation.Generator{Name: "rpm"},
		})
		if err != nil {
			t.Fatalf("didn't want %q", err)
		}

		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/generations/"+g.ID.String(), nil))

		if got, want := w.Code, http.StatusOK; got != want {
			t.Fatalf("got %d, want %d", got, want)
		}
		var got Generation
		if err = json.NewDecoder(w.Body).Decode(&got); err != nil {
			t.Fatalf("didn't want %q", err)
		}
		if got.ID != g.ID || got.Status != "NEW" || got.Identifier != "nvr-1.0-1" || got.Generator != "rpm" {
			t.Fatalf("got %+v", got)
		}
	})

	t.Run("reports a missing generation", func(t *testing.T) {
		h, _, _ := newTestHandler(t)

		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/generations/aaaaaaaa-0000-0000-0000-000000000000", nil))

		if got, want := w.Code, http.StatusNotFound; got != want {
			t.Fatalf("got %d, want %d", got, want)
		}
	})

	t.Run("rejects an invalid id", func(t *testing.T) {
		h, _, _ := newTestHandler(t)

		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/generations/not-a-uuid", nil))

		if got, want := w.Code, http.StatusUnprocessableEntity; got != want {
			t.Fatalf("got %d, want %d", got, want)
		}
	})

	t.Run("serves metrics", func(t *testing.T) {
		h, _, reg := newTestHandler(t)
		counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "sbomer_test_total", Help: "Test counter."})
		reg.MustRegister(counter)
		counter.Inc()

		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

		if got, want := w.Code, http.StatusOK; got != want {
			t.Fatalf("got %d, want %d", got, want)
		}
		if !strings.Contains(w.Body.String(), "sbomer_test_total 1") {
			t.Fatalf("got %s", w.Body.String())
		}
	})
}
