package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/project-ncl/sbomer-sub004/internal/generation"
)

type Database interface {
	GetGeneration(ctx context.Context, params *generation.DatabaseGetGenerationParams) (*generation.Generation, error)
}

type Leader interface {
	IsLeader() bool
}

type handler struct {
	router chi.Router
	db     Database
	leader Leader
	log    *slog.Logger
}

func newHandler(db Database, leader Leader, gatherer prometheus.Gatherer, log *slog.Logger) *handler {
	r := chi.NewRouter()
	h := &handler{router: r, db: db, leader: leader, log: log}

	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	r.Get("/health", h.GetHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	r.Get("/generations/{id}", h.GetGeneration)

	return h
}

func (h *handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	type response struct {
		Status string `json:"status"`
		Leader bool   `json:"leader"`
	}

	h.writeJSON(w, http.StatusOK, response{Status: "ok", Leader: h.leader.IsLeader()})
}

type Generation struct {
	ID         uuid.UUID `json:"id"`
	TargetType string    `json:"target_type"`
	Identifier string    `json:"identifier"`
	Generator  string    `json:"generator"`
	Status     string    `json:"status"`
	Result     string    `json:"result,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	RetryCount int       `json:"retry_count"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (h *handler) GetGeneration(w http.ResponseWriter, r *http.Request) {
	// Path value id
	const pathValueID = "id"
	id, err := uuid.Parse(chi.URLParam(r, pathValueID))
	if err != nil {
		http.Error(w, fmt.Errorf("invalid %q request path value: %w", pathValueID, err).Error(), http.StatusUnprocessableEntity)
		return
	}

	g, err := h.db.GetGeneration(r.Context(), &generation.DatabaseGetGenerationParams{ID: id})
	if errors.Is(err, generation.ErrNotFound) {
		http.Error(w, "generation not found", http.StatusNotFound)
		return
	} else if err != nil {
		h.log.Error("didn't get generation", "generation_id", id, "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, Generation{
		ID:         g.ID,
		TargetType: string(g.Target.Type),
		Identifier: g.Target.Identifier,
		Generator:  g.Generator.Name,
		Status:     g.Status.String(),
		Result:     g.Result.String(),
		Reason:     g.Reason,
		RetryCount: g.RetryCount,
		CreatedAt:  g.CreatedAt,
		UpdatedAt:  g.UpdatedAt,
	})
}

func (h *handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error("didn't write response", "error", err)
	}
}
