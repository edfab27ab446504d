package notification

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrUnknownEventKind is returned when an envelope names a kind this
	// service does not handle.
	ErrUnknownEventKind = errors.New("unknown event kind")
	// ErrInvalidEvent is returned when an envelope is missing required fields.
	ErrInvalidEvent = errors.New("invalid event")
)

// EventKind discriminates the two inbound event shapes.
type EventKind string

const (
	KindMessageCreated EventKind = "message_created"
	KindUserUpdated    EventKind = "user_updated"
)

// MessageCreated fires when a message document is created in a chat.
type MessageCreated struct {
	ChatID  string  `json:"chatId"`
	Message Message `json:"message"`
}

// UserUpdated fires when a user document changes. Before and After are
// full snapshots of the document around the change.
type UserUpdated struct {
	UserID string     `json:"userId"`
	Before UserRecord `json:"before"`
	After  UserRecord `json:"after"`
}

// Event is the envelope delivered by the change-feed trigger, either over
// Pub/Sub or as an HTTP push. Exactly one of MessageCreated or UserUpdated
// is set after a successful decode.
type Event struct {
	Kind           EventKind
	MessageCreated *MessageCreated
	UserUpdated    *UserUpdated
}

type rawEvent struct {
	Kind    EventKind   `json:"kind"`
	ChatID  string      `json:"chatId,omitempty"`
	Message *Message    `json:"message,omitempty"`
	UserID  string      `json:"userId,omitempty"`
	Before  *UserRecord `json:"before,omitempty"`
	After   *UserRecord `json:"after,omitempty"`
}

// UnmarshalJSON decodes and validates an envelope.
func (e *Event) UnmarshalJSON(data []byte) error {
	var raw rawEvent
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	switch raw.Kind {
	case KindMessageCreated:
		if raw.ChatID == "" || raw.Message == nil {
			return fmt.Errorf("%w: message_created requires chatId and message", ErrInvalidEvent)
		}
		if raw.Message.SenderID == "" {
			return fmt.Errorf("%w: message has no senderId", ErrInvalidEvent)
		}
		*e = Event{
			Kind:           raw.Kind,
			MessageCreated: &MessageCreated{ChatID: raw.ChatID, Message: *raw.Message},
		}
	case KindUserUpdated:
		if raw.UserID == "" || raw.After == nil {
			return fmt.Errorf("%w: user_updated requires userId and after", ErrInvalidEvent)
		}
		upd := &UserUpdated{UserID: raw.UserID, After: *raw.After}
		if raw.Before != nil {
			upd.Before = *raw.Before
		}
		upd.Before.ID = raw.UserID
		upd.After.ID = raw.UserID
		*e = Event{Kind: raw.Kind, UserUpdated: upd}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownEventKind, raw.Kind)
	}
	return nil
}

// MarshalJSON encodes the envelope in the same flat shape UnmarshalJSON reads.
func (e Event) MarshalJSON() ([]byte, error) {
	raw := rawEvent{Kind: e.Kind}
	switch {
	case e.MessageCreated != nil:
		raw.ChatID = e.MessageCreated.ChatID
		raw.Message = &e.MessageCreated.Message
	case e.UserUpdated != nil:
		raw.UserID = e.UserUpdated.UserID
		raw.Before = &e.UserUpdated.Before
		raw.After = &e.UserUpdated.After
	}
	return json.Marshal(raw)
}
