package httpapi

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/hyperkishore/cupido/internal/config"
	"github.com/hyperkishore/cupido/internal/contextmem"
	"github.com/hyperkishore/cupido/internal/observability"
	"github.com/hyperkishore/cupido/internal/store"
)

var errEmptyBody = errors.New("empty request body")

type Server struct {
	cfg      config.Config
	manager  *contextmem.Manager
	store    store.Store
	metrics  *observability.Metrics
	upgrader websocket.Upgrader
}

func New(cfg config.Config, manager *contextmem.Manager, st store.Store, metrics *observability.Metrics) *Server {
	return &Server{
		cfg:     cfg,
		manager: manager,
		store:   st,
		metrics: metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleHealth)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Post("/v1/conversations/{id}/turns", s.handleAppendTurn)
	r.Get("/v1/conversations/{id}/context", s.handleGetContext)
	r.Get("/v1/conversations/{id}/stats", s.handleStats)
	r.Delete("/v1/conversations/{id}/context", s.handleEvict)
	r.Get("/v1/conversations/{id}/ws", s.handleConversationWS)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":            "ok",
		"resident_contexts": s.manager.ResidentCount(),
	})
}

type appendTurnRequest struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	RefTags []string `json:"ref_tags,omitempty"`
	Weight  float64  `json:"weight,omitempty"`
}

type appendTurnResponse struct {
	TurnID          string    `json:"turn_id"`
	EstimatedTokens int       `json:"estimated_tokens"`
	CreatedAt       time.Time `json:"created_at"`
	Persisted       bool      `json:"persisted"`
}

func (s *Server) handleAppendTurn(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "id")

	var req appendTurnRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "content is required")
		return
	}

	resp, status, err := s.appendTurn(r, conversationID, req)
	if err != nil {
		respondError(w, status, "append_failed", err.Error())
		return
	}
	respondJSON(w, status, resp)
}

// appendTurn runs the full append flow: window append (with transparent
// compaction), durable turn write, and provisional-id reconciliation. A
// failed durable write never fails the append; the turn stays live in the
// window with its provisional id.
func (s *Server) appendTurn(r *http.Request, conversationID string, req appendTurnRequest) (appendTurnResponse, int, error) {
	turn, err := s.manager.AddTurn(r.Context(), conversationID, contextmem.Role(req.Role), req.Content, contextmem.TurnMeta{
		RefTags: req.RefTags,
		Weight:  req.Weight,
	})
	if err != nil {
		// A load failure is the server's problem; only caller mistakes are 400s.
		status := http.StatusInternalServerError
		if errors.Is(err, contextmem.ErrInvalidTurn) {
			status = http.StatusBadRequest
		}
		return appendTurnResponse{}, status, err
	}

	persisted := false
	if realID, err := s.store.SaveTurn(r.Context(), conversationID, turn); err != nil {
		log.Printf("httpapi: turn persist failed for %s: %v", conversationID, err)
	} else {
		s.manager.UpdateTurnID(conversationID, turn.ID, realID)
		turn.ID = realID
		persisted = true
	}

	return appendTurnResponse{
		TurnID:          turn.ID,
		EstimatedTokens: turn.EstimatedTokens,
		CreatedAt:       turn.CreatedAt,
		Persisted:       persisted,
	}, http.StatusCreated, nil
}

func (s *Server) handleGetContext(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "id")

	assembly, err := s.manager.Assemble(r.Context(), conversationID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "assemble_failed", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, assembly)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "id")

	stats, err := s.manager.Stats(conversationID)
	if err != nil {
		if errors.Is(err, contextmem.ErrNotResident) {
			respondError(w, http.StatusNotFound, "not_resident", err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, "stats_failed", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

func (s *Server) handleEvict(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "id")
	evicted := s.manager.Evict(conversationID)
	respondJSON(w, http.StatusOK, map[string]any{"evicted": evicted})
}

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
