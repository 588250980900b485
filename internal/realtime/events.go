package realtime

import (
	"encoding/json"
	"time"

	"github.com/BusyMan009/my-thrift-backend/internal/model"
	"github.com/google/uuid"
)

// Event names pushed to clients.
const (
	EventNewMessage             = "new_message"
	EventConversationListUpdate = "conversation_list_update"
)

// Envelope is the outbound frame format.
type Envelope struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// NewMessagePayload is delivered to every client in the chat room,
// the sender included.
type NewMessagePayload struct {
	ChatID       uuid.UUID          `json:"chatId"`
	Message      model.ChatMessage  `json:"message"`
	LastMessage  *model.LastMessage `json:"lastMessage,omitempty"`
	LastActivity time.Time          `json:"lastActivity"`
}

// ConversationListUpdatePayload is delivered once per chat participant so
// their chat list can re-render without a refetch.
type ConversationListUpdatePayload struct {
	UserID       uuid.UUID          `json:"userId"`
	ChatID       uuid.UUID          `json:"chatId"`
	LastMessage  *model.LastMessage `json:"lastMessage,omitempty"`
	LastActivity time.Time          `json:"lastActivity"`
}

// clientCommand is the inbound frame format.
type clientCommand struct {
	Event  string `json:"event"`
	ChatID string `json:"chatId"`
}

// Inbound event names.
const (
	commandJoin      = "join"
	commandJoinChat  = "join_chat"
	commandLeaveChat = "leave_chat"
)

func marshalEnvelope(event string, data any) ([]byte, error) {
	return json.Marshal(Envelope{Event: event, Data: data})
}
