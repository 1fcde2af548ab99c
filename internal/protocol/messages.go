package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// MessageType identifies websocket payload variants.
type MessageType string

const (
	TypeClientChat         MessageType = "client_chat"
	TypeAssistantTextDelta MessageType = "assistant_text_delta"
	TypeAssistantTurnEnd   MessageType = "assistant_turn_end"
	TypeErrorEvent         MessageType = "error_event"
)

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

// ClientChat is a single user turn sent over the websocket. Optional
// fields default to the same values as the HTTP chat endpoint.
type ClientChat struct {
	Type             MessageType `json:"type"`
	SessionID        string      `json:"session_id"`
	Message          string      `json:"message"`
	Model            string      `json:"model,omitempty"`
	Fast             bool        `json:"fast,omitempty"`
	Save             *bool       `json:"save,omitempty"`
	Recent           *int        `json:"recent,omitempty"`
	IncludeKnowledge *bool       `json:"include_knowledge,omitempty"`
	KnowledgeN       *int        `json:"knowledge_n,omitempty"`
	IncludeSystem    *bool       `json:"include_system,omitempty"`
	ConversationMode *bool       `json:"conversation_mode,omitempty"`
}

type AssistantTextDelta struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	TextDelta string      `json:"text_delta"`
}

type AssistantTurnEnd struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	TurnID    string      `json:"turn_id"`
	Reply     string      `json:"reply"`
	Model     string      `json:"model"`
	Reason    string      `json:"reason"`
}

type ErrorEvent struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Code      string      `json:"code"`
	Retryable bool        `json:"retryable"`
	Detail    string      `json:"detail"`
}

func ParseClientMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeClientChat:
		var msg ClientChat
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.Message == "" {
			return nil, errors.New("invalid client_chat: empty message")
		}
		return msg, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, env.Type)
	}
}
