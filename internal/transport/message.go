// Package transport implements the coordination core's Message Transport:
// at-least-once delivery between agents over a broker-backed primary path
// with an append-only fallback log, selected per call (§4.1 of the design).
package transport

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Intent is the speech-act label on a Message.
type Intent string

const (
	IntentRequest        Intent = "REQUEST"
	IntentInform         Intent = "INFORM"
	IntentPropose        Intent = "PROPOSE"
	IntentAcceptProposal Intent = "ACCEPT_PROPOSAL"
	IntentRejectProposal Intent = "REJECT_PROPOSAL"
	IntentReportStatus   Intent = "REPORT_STATUS"
	IntentError          Intent = "ERROR"
	IntentAck            Intent = "ACK"
)

// Broadcast is the sentinel recipient_id denoting "every registered agent".
const Broadcast = "*"

// Message is the unit of inter-agent communication. Messages are immutable
// once constructed; redelivery of the same MessageID MUST be treated by
// recipients as a no-op (enforced by the Runtime's dedup set, not here).
type Message struct {
	MessageID   string         `json:"message_id"`
	SenderID    string         `json:"sender_id"`
	RecipientID string         `json:"recipient_id"`
	Intent      Intent         `json:"intent"`
	TaskID      string         `json:"task_id"`
	Payload     map[string]any `json:"payload"`
	Timestamp   time.Time      `json:"timestamp"`
	RetryCount  int            `json:"retry_count"`
}

// New constructs a Message with a generated id and the current UTC time.
func New(sender, recipient string, intent Intent, taskID string, payload map[string]any) *Message {
	if payload == nil {
		payload = map[string]any{}
	}
	return &Message{
		MessageID:   uuid.New().String(),
		SenderID:    sender,
		RecipientID: recipient,
		Intent:      intent,
		TaskID:      taskID,
		Payload:     payload,
		Timestamp:   time.Now().UTC(),
		RetryCount:  0,
	}
}

// IsBroadcast reports whether the message targets every agent.
func (m *Message) IsBroadcast() bool {
	return m.RecipientID == Broadcast
}

// Marshal serializes the message to a single JSON line for the fallback
// log or broker payload.
func (m *Message) Marshal() ([]byte, error) {
	return json.Marshal(m)
}

// Unmarshal parses a single JSON line into a Message.
func Unmarshal(data []byte) (*Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// PayloadType returns payload["type"] as a string, or "" if absent. Payload
// shapes are dispatched on this field.
func (m *Message) PayloadType() string {
	if m.Payload == nil {
		return ""
	}
	if t, ok := m.Payload["type"].(string); ok {
		return t
	}
	return ""
}

// Ack constructs the ACK message sent back to sender after a handler for
// this message completes successfully.
func (m *Message) Ack(from string) *Message {
	return New(from, m.SenderID, IntentAck, "ack", map[string]any{
		"original_message_id": m.MessageID,
		"timestamp":           time.Now().UTC().Format(time.RFC3339),
	})
}

// ErrorReply constructs the ERROR message sent back to sender when a
// handler for this message fails.
func (m *Message) ErrorReply(from string, cause error) *Message {
	return New(from, m.SenderID, IntentError, m.TaskID, map[string]any{
		"error":               cause.Error(),
		"original_message_id": m.MessageID,
	})
}
