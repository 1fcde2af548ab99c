package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ewrenn/greenie/internal/engine"
	"github.com/ewrenn/greenie/internal/protocol"
)

// handleChatWS runs chat turns over a websocket. The client sends
// client_chat envelopes; each turn streams back assistant_text_delta
// frames followed by assistant_turn_end. Writes stay single-threaded:
// turns run inline in the read loop, one at a time per connection.
func (s *Server) handleChatWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	who := owner(r)

	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		return nil
	})

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		if msgType != websocket.TextMessage {
			continue
		}

		parsed, err := protocol.ParseClientMessage(data)
		if err != nil {
			s.writeWS(conn, protocol.ErrorEvent{
				Type:      protocol.TypeErrorEvent,
				Code:      "invalid_client_message",
				Retryable: false,
				Detail:    err.Error(),
			})
			continue
		}
		chat, ok := parsed.(protocol.ClientChat)
		if !ok {
			continue
		}

		req := engine.TurnRequest{
			Owner:            who,
			SessionID:        chat.SessionID,
			Message:          chat.Message,
			Model:            chat.Model,
			Fast:             chat.Fast,
			Save:             chat.Save,
			Recent:           chat.Recent,
			IncludeKnowledge: chat.IncludeKnowledge,
			KnowledgeN:       chat.KnowledgeN,
			IncludeSystem:    chat.IncludeSystem,
			ConversationMode: chat.ConversationMode,
		}

		res, err := s.engine.RespondStream(r.Context(), req, func(fragment string) error {
			return s.writeWS(conn, protocol.AssistantTextDelta{
				Type:      protocol.TypeAssistantTextDelta,
				SessionID: chat.SessionID,
				TextDelta: fragment,
			})
		})
		if err != nil {
			f := turnError(err)
			s.writeWS(conn, protocol.ErrorEvent{
				Type:      protocol.TypeErrorEvent,
				SessionID: chat.SessionID,
				Code:      f.Code,
				Retryable: f.Code == "rate_limited" || f.Code == "timeout",
				Detail:    f.Message,
			})
			continue
		}

		s.writeWS(conn, protocol.AssistantTurnEnd{
			Type:      protocol.TypeAssistantTurnEnd,
			SessionID: chat.SessionID,
			TurnID:    res.TurnID,
			Reply:     res.Reply,
			Model:     res.Model,
			Reason:    "complete",
		})
	}
}

func (s *Server) writeWS(conn *websocket.Conn, msg any) error {
	_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return conn.WriteJSON(msg)
}
