package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/tendant/simple-photo-pipeline/internal/config"
	"github.com/tendant/simple-photo-pipeline/internal/coordinator"
	"github.com/tendant/simple-photo-pipeline/pkg/pipeline"
)

// Controller is the pipeline surface exposed over HTTP
type Controller interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Status() coordinator.Status
	Printers(ctx context.Context) []string
	Events(since int64) []coordinator.Event
	Forget(ctx context.Context, path string) error
}

// stopTimeout bounds how long POST /v1/stop waits for the queue to drain
const stopTimeout = 2 * time.Minute

// ControlHandler handles pipeline control requests
type ControlHandler struct {
	ctrl Controller
}

// NewControlHandler creates a new control handler
func NewControlHandler(ctrl Controller) *ControlHandler {
	return &ControlHandler{ctrl: ctrl}
}

// NewRouter mounts the control API. metrics may be nil.
func NewRouter(ctrl Controller, metrics http.Handler) http.Handler {
	h := NewControlHandler(ctrl)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", h.HandleHealth)
	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics)
	}
	r.Route("/v1", func(r chi.Router) {
		r.Get("/status", h.HandleStatus)
		r.Get("/printers", h.HandlePrinters)
		r.Get("/events", h.HandleEvents)
		r.Post("/start", h.HandleStart)
		r.Post("/stop", h.HandleStop)
		r.Post("/reprocess", h.HandleReprocess)
	})
	return r
}

// HandleHealth handles GET /health
func (h *ControlHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"state":  string(h.ctrl.Status().State),
	})
}

// HandleStatus handles GET /v1/status
func (h *ControlHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse(h.ctrl.Status()))
}

// HandlePrinters handles GET /v1/printers
func (h *ControlHandler) HandlePrinters(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, pipeline.PrintersResponse{Printers: h.ctrl.Printers(r.Context())})
}

// HandleEvents handles GET /v1/events?since=N
func (h *ControlHandler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	var since int64
	if v := r.URL.Query().Get("since"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid since %q", v))
			return
		}
		since = n
	}
	events := h.ctrl.Events(since)
	if events == nil {
		events = []coordinator.Event{}
	}
	writeJSON(w, http.StatusOK, pipeline.EventsResponse{Events: events})
}

// HandleStart handles POST /v1/start
func (h *ControlHandler) HandleStart(w http.ResponseWriter, r *http.Request) {
	if err := h.ctrl.Start(r.Context()); err != nil {
		log.Printf("Start failed: %v", err)
		var cerr *config.Error
		if errors.As(err, &cerr) {
			writeJSON(w, http.StatusUnprocessableEntity, pipeline.ErrorResponse{Error: err.Error(), Field: cerr.Field})
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse(h.ctrl.Status()))
}

// HandleStop handles POST /v1/stop
func (h *ControlHandler) HandleStop(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), stopTimeout)
	defer cancel()

	if err := h.ctrl.Stop(ctx); err != nil {
		log.Printf("Stop did not drain: %v", err)
		writeError(w, http.StatusGatewayTimeout, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse(h.ctrl.Status()))
}

// HandleReprocess handles POST /v1/reprocess
func (h *ControlHandler) HandleReprocess(w http.ResponseWriter, r *http.Request) {
	var req pipeline.ReprocessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request: %w", err))
		return
	}
	if req.Path == "" {
		writeError(w, http.StatusBadRequest, errors.New("path is required"))
		return
	}

	log.Printf("Reprocess requested: %s", req.Path)
	if err := h.ctrl.Forget(r.Context(), req.Path); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func statusResponse(s coordinator.Status) pipeline.StatusResponse {
	return pipeline.StatusResponse{
		State:      s.State,
		Settings:   s.Config.Settings(),
		QueueDepth: s.QueueDepth,
		Settling:   s.Settling,
		Recent:     s.Recent,
		LastEvent:  s.LastEvent,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Failed to write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, pipeline.ErrorResponse{Error: err.Error()})
}
