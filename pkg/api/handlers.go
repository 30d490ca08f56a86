package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/pulse/pkg/aggregator"
	"github.com/platinummonkey/pulse/pkg/httputil"
	"github.com/platinummonkey/pulse/pkg/pipeline"
	"github.com/platinummonkey/pulse/pkg/users"
)

const defaultTopActions = 10

// Handlers exposes the administrative reporting and ingestion endpoints
type Handlers struct {
	aggregator *aggregator.Aggregator
	pipeline   *pipeline.Pipeline
	registry   *users.Registry
	history    *users.ConversationHistory
	logger     *logrus.Logger
}

// NewHandlers creates a new API handlers instance
func NewHandlers(agg *aggregator.Aggregator, pipe *pipeline.Pipeline, registry *users.Registry, history *users.ConversationHistory, logger *logrus.Logger) *Handlers {
	if logger == nil {
		logger = logrus.New()
	}
	return &Handlers{
		aggregator: agg,
		pipeline:   pipe,
		registry:   registry,
		history:    history,
		logger:     logger,
	}
}

// RegisterRoutes registers API routes
func (h *Handlers) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/api/v1/status", h.getSystemStatus).Methods("GET")
	r.HandleFunc("/api/v1/stats/users", h.getUserStatistics).Methods("GET")
	r.HandleFunc("/api/v1/users/{id}", h.getUserStats).Methods("GET")
	r.HandleFunc("/api/v1/users/{id}/context", h.getUserContext).Methods("GET")
	r.HandleFunc("/api/v1/users/{id}/context", h.clearUserContext).Methods("DELETE")
	r.HandleFunc("/api/v1/events", h.submitEvent).Methods("POST")
}

// getSystemStatus handles GET /api/v1/status
func (h *Handlers) getSystemStatus(w http.ResponseWriter, r *http.Request) {
	status := h.aggregator.SystemStatus(r.Context())
	httputil.WriteSuccess(w, status)
}

// getUserStatistics handles GET /api/v1/stats/users
func (h *Handlers) getUserStatistics(w http.ResponseWriter, r *http.Request) {
	topN, err := httputil.ParseQueryInt(r, "top", defaultTopActions)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	if topN < 1 {
		httputil.WriteBadRequest(w, "top must be positive")
		return
	}

	stats := h.aggregator.UserStatistics(time.Now(), topN)
	httputil.WriteSuccess(w, stats)
}

// getUserStats handles GET /api/v1/users/{id}
func (h *Handlers) getUserStats(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	stats, found := h.registry.Stats(id, time.Now())
	if !found {
		httputil.WriteNotFound(w, "user not found")
		return
	}

	httputil.WriteSuccess(w, stats)
}

// getUserContext handles GET /api/v1/users/{id}/context
func (h *Handlers) getUserContext(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	entries := h.history.Context(id)
	if entries == nil {
		entries = []string{}
	}
	httputil.WriteSuccess(w, map[string][]string{"context": entries})
}

// clearUserContext handles DELETE /api/v1/users/{id}/context
func (h *Handlers) clearUserContext(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	h.history.Clear(id)
	w.WriteHeader(http.StatusNoContent)
}

// SubmitEventRequest contains the request body for event ingestion
type SubmitEventRequest struct {
	Actor     int64  `json:"actor"`
	Action    string `json:"action"`
	Scope     string `json:"scope"`
	Username  string `json:"username,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	// Text and Reply, when both set, are retained in the actor's
	// conversation context.
	Text  string `json:"text,omitempty"`
	Reply string `json:"reply,omitempty"`
}

// SubmitEventResponse contains the response for an ingested event
type SubmitEventResponse struct {
	RequestID string `json:"request_id"`
	Admitted  bool   `json:"admitted"`
	LatencyMS int64  `json:"latency_ms"`
}

// submitEvent handles POST /api/v1/events by running the event through
// the full admission and reporting pipeline
func (h *Handlers) submitEvent(w http.ResponseWriter, r *http.Request) {
	var req SubmitEventRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Actor == 0 {
		httputil.WriteBadRequest(w, "actor is required")
		return
	}
	if req.Action == "" {
		httputil.WriteBadRequest(w, "action is required")
		return
	}

	now := time.Now()
	ev := pipeline.Event{
		Actor:     req.Actor,
		Action:    req.Action,
		Scope:     req.Scope,
		Timestamp: now,
	}

	result := h.pipeline.Process(r.Context(), ev, func(ctx context.Context, e pipeline.Event) error {
		if err := h.registry.Register(e.Actor, req.Username, req.FirstName, req.LastName, now); err != nil {
			return err
		}
		if err := h.registry.RecordActivity(e.Actor, now); err != nil {
			return err
		}
		if req.Text != "" && req.Reply != "" {
			h.history.Append(e.Actor, req.Text, req.Reply)
		}
		return nil
	})

	if !result.Admitted {
		httputil.WriteRateLimited(w, result.RetryAfter)
		return
	}
	if result.Err != nil {
		h.logger.Errorf("Failed to process event: %v", result.Err)
		httputil.WriteInternalError(w, result.Err)
		return
	}

	httputil.WriteJSON(w, http.StatusAccepted, SubmitEventResponse{
		RequestID: result.RequestID,
		Admitted:  true,
		LatencyMS: result.Latency.Milliseconds(),
	})
}
