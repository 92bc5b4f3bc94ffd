package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/scoutlabs/researcher/internal/engine"
	"github.com/scoutlabs/researcher/internal/research"
	"github.com/scoutlabs/researcher/internal/streaming"
)

// Handler exposes the research engine over HTTP: a synchronous endpoint, a
// streaming NDJSON endpoint, and a health probe.
type Handler struct {
	engine *engine.Engine
	stream *streaming.Manager
	logger *zap.Logger
}

func NewHandler(eng *engine.Engine, stream *streaming.Manager, logger *zap.Logger) *Handler {
	return &Handler{engine: eng, stream: stream, logger: logger}
}

// Register attaches all routes to the mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/research", h.handleResearch)
	mux.HandleFunc("/research/stream", h.handleResearchStream)
	mux.HandleFunc("/health", h.handleHealth)
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (h *Handler) decodeRequest(w http.ResponseWriter, r *http.Request) (research.Request, bool) {
	var req research.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body: " + err.Error()})
		return req, false
	}
	req.ApplyDefaults()
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return req, false
	}
	return req, true
}

// handleResearch runs a research request to completion and returns the full
// result.
func (h *Handler) handleResearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "POST required"})
		return
	}
	req, ok := h.decodeRequest(w, r)
	if !ok {
		return
	}

	researchID := uuid.NewString()
	defer h.stream.Release(researchID)

	result, err := h.engine.Run(r.Context(), researchID, req)
	if err != nil {
		status := http.StatusBadGateway
		if r.Context().Err() != nil {
			status = http.StatusRequestTimeout
		}
		writeJSON(w, status, errorResponse{Error: err.Error()})
		return
	}
	w.Header().Set("X-Research-ID", researchID)
	writeJSON(w, http.StatusOK, result)
}

// handleResearchStream runs a research request while streaming progress
// events as newline-delimited JSON. The subscription is attached before the
// run starts so no events are missed.
func (h *Handler) handleResearchStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "POST required"})
		return
	}
	req, ok := h.decodeRequest(w, r)
	if !ok {
		return
	}

	researchID := uuid.NewString()
	events, cancel := h.stream.Subscribe(researchID)
	defer cancel()
	defer h.stream.Release(researchID)

	go func() {
		// the run publishes a terminal event itself; errors are already
		// on the stream as error events
		_, _ = h.engine.Run(context.WithoutCancel(r.Context()), researchID, req)
	}()

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Research-ID", researchID)
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	enc := json.NewEncoder(w)
	for {
		select {
		case ev, open := <-events:
			if !open {
				return
			}
			if err := enc.Encode(ev); err != nil {
				h.logger.Debug("stream write failed, client gone",
					zap.String("research_id", researchID), zap.Error(err))
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
		case <-r.Context().Done():
			return
		}
	}
}

type healthResponse struct {
	Status           string `json:"status"`
	ActiveResearches int    `json:"active_researches"`
	Timestamp        string `json:"timestamp"`
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:           "ok",
		ActiveResearches: h.stream.Active(),
		Timestamp:        time.Now().UTC().Format(time.RFC3339),
	})
}
