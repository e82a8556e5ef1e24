package httpapi

import (
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/hyperkishore/cupido/internal/contextmem"
)

// wsTurnEvent is one inbound message on the live chat feed.
type wsTurnEvent struct {
	Type    string   `json:"type"`
	Role    string   `json:"role"`
	Content string   `json:"content"`
	RefTags []string `json:"ref_tags,omitempty"`
	Weight  float64  `json:"weight,omitempty"`
}

// wsAck confirms an appended turn and carries the refreshed prompt-ready
// context, so the chat client always generates against current state.
type wsAck struct {
	Type    string              `json:"type"`
	TurnID  string              `json:"turn_id,omitempty"`
	Context contextmem.Assembly `json:"context"`
}

type wsError struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// handleConversationWS runs the live feed for one conversation: each turn
// event is appended and persisted like the REST path, then acked with the new
// assembly.
func (s *Server) handleConversationWS(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "id")
	if strings.TrimSpace(conversationID) == "" {
		respondError(w, http.StatusBadRequest, "invalid_conversation_id", "missing conversation id")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	for {
		var ev wsTurnEvent
		if err := conn.ReadJSON(&ev); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("httpapi: ws read failed for %s: %v", conversationID, err)
			}
			return
		}
		if ev.Type != "turn" {
			_ = conn.WriteJSON(wsError{Type: "error", Error: "unsupported event type"})
			continue
		}
		if strings.TrimSpace(ev.Content) == "" {
			_ = conn.WriteJSON(wsError{Type: "error", Error: "content is required"})
			continue
		}

		resp, _, err := s.appendTurn(r, conversationID, appendTurnRequest{
			Role:    ev.Role,
			Content: ev.Content,
			RefTags: ev.RefTags,
			Weight:  ev.Weight,
		})
		if err != nil {
			_ = conn.WriteJSON(wsError{Type: "error", Error: err.Error()})
			continue
		}

		assembly, err := s.manager.Assemble(r.Context(), conversationID)
		if err != nil {
			_ = conn.WriteJSON(wsError{Type: "error", Error: err.Error()})
			continue
		}
		if err := conn.WriteJSON(wsAck{Type: "ack", TurnID: resp.TurnID, Context: assembly}); err != nil {
			return
		}
	}
}
