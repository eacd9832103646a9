// Package adminapi exposes a small operational HTTP surface over the
// event store: a health check and read-only stream diagnostics (events
// and current version) for operators. It is deliberately thin and is not the wire
// contract the event store's own clients use; it is ambient ops tooling
// shipped alongside the service, not the domain API.
package adminapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/ILLUVRSE/eventcore/internal/events"
	"github.com/ILLUVRSE/eventcore/internal/eventstore"
)

// Server wires the admin HTTP surface.
type Server struct {
	store    eventstore.Store
	verifier *TokenVerifier
}

// New builds a Server over store. verifier may be nil to disable auth
// (e.g. local development).
func New(store eventstore.Store, verifier *TokenVerifier) *Server {
	return &Server{store: store, verifier: verifier}
}

// Router builds the chi router for this surface.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/health", s.handleHealth)

	r.Route("/streams/{streamID}", func(r chi.Router) {
		if s.verifier != nil {
			r.Use(s.verifier.Middleware)
		}
		r.Get("/", s.handleReadStream)
		r.Get("/version", s.handleStreamVersion)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"ok":   true,
		"time": time.Now().UTC().Format(time.RFC3339Nano),
	})
}

func (s *Server) handleReadStream(w http.ResponseWriter, r *http.Request) {
	streamID, err := uuid.Parse(chi.URLParam(r, "streamID"))
	if err != nil {
		http.Error(w, "invalid stream id", http.StatusBadRequest)
		return
	}

	fromVersion := int64(0)
	if v := r.URL.Query().Get("from"); v != "" {
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			http.Error(w, "invalid from", http.StatusBadRequest)
			return
		}
		fromVersion = parsed
	}
	maxCount := 100
	if v := r.URL.Query().Get("max"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err == nil && parsed > 0 {
			maxCount = parsed
		}
	}

	cur, err := s.store.ReadStream(r.Context(), eventstore.ReadStreamRequest{
		StreamID:    streamID,
		FromVersion: fromVersion,
		MaxCount:    maxCount,
	})
	if err != nil {
		respondError(w, err)
		return
	}
	defer cur.Close()

	type envelopeView struct {
		EventID       uuid.UUID   `json:"event_id"`
		EventName     string      `json:"event_name"`
		StreamVersion int64       `json:"stream_version"`
		Sequence      int64       `json:"sequence"`
		OccurredOn    time.Time   `json:"occurred_on"`
		Payload       interface{} `json:"payload"`
	}

	out := []envelopeView{}
	for cur.Next(r.Context()) {
		env := cur.Value()
		out = append(out, envelopeView{
			EventID:       env.EventID,
			EventName:     env.EventName,
			StreamVersion: env.StreamVersion,
			Sequence:      env.Sequence,
			OccurredOn:    env.OccurredOn,
			Payload:       env.Event,
		})
	}
	if err := cur.Err(); err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"events": out})
}

func (s *Server) handleStreamVersion(w http.ResponseWriter, r *http.Request) {
	streamID, err := uuid.Parse(chi.URLParam(r, "streamID"))
	if err != nil {
		http.Error(w, "invalid stream id", http.StatusBadRequest)
		return
	}
	version, err := s.store.StreamVersion(r.Context(), streamID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"stream_id": streamID, "version": version})
}

func respondJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func respondError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, events.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, events.ErrInvalidArgument), errors.Is(err, events.ErrStreamDeleted):
		status = http.StatusBadRequest
	}
	var conflict *events.ConcurrencyConflict
	if errors.As(err, &conflict) {
		status = http.StatusConflict
	}
	respondJSON(w, status, map[string]interface{}{"error": err.Error()})
}
