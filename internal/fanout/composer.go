package fanout

import (
	"fmt"

	"github.com/tinywideclouds/go-fanout-notifier/pkg/notification"
)

// Strings holds the client-facing text of every notification. Title and
// body templates take a single %s for the resolved display name.
type Strings struct {
	FallbackName       string
	ChatTitle          string
	PhotoBody          string
	ChatClickAction    string
	FriendRequestTitle string
	FriendRequestBody  string
}

// DefaultStrings are the strings the mobile clients were built against.
func DefaultStrings() Strings {
	return Strings{
		FallbackName:       "Qualcuno",
		ChatTitle:          "Nuovo messaggio da %s",
		PhotoBody:          "📷 Foto inviata",
		ChatClickAction:    "FLUTTER_NOTIFICATION_CLICK",
		FriendRequestTitle: "Nuova richiesta di amicizia",
		FriendRequestBody:  "%s vuole stringere amicizia!",
	}
}

// Composer builds notification payloads. It has no side effects.
type Composer struct {
	strings Strings
}

// NewComposer returns a Composer; empty fields in s fall back to DefaultStrings.
func NewComposer(s Strings) *Composer {
	def := DefaultStrings()
	fill := func(v *string, d string) {
		if *v == "" {
			*v = d
		}
	}
	fill(&s.FallbackName, def.FallbackName)
	fill(&s.ChatTitle, def.ChatTitle)
	fill(&s.PhotoBody, def.PhotoBody)
	fill(&s.ChatClickAction, def.ChatClickAction)
	fill(&s.FriendRequestTitle, def.FriendRequestTitle)
	fill(&s.FriendRequestBody, def.FriendRequestBody)
	return &Composer{strings: s}
}

// DisplayName returns the user's first name, or the fallback placeholder
// when the user is unknown or has no name.
func (c *Composer) DisplayName(profile *notification.UserProfile) string {
	if profile == nil || profile.FirstName == "" {
		return c.strings.FallbackName
	}
	return profile.FirstName
}

// ChatMessage builds the payload for a new chat message.
func (c *Composer) ChatMessage(chatID, senderName string, msg notification.Message) notification.NotificationPayload {
	body := msg.Text
	if msg.Type == notification.MessageTypeImage {
		body = c.strings.PhotoBody
	}
	return notification.NotificationPayload{
		Notification: notification.Content{
			Title:       fmt.Sprintf(c.strings.ChatTitle, senderName),
			Body:        body,
			ClickAction: c.strings.ChatClickAction,
		},
		Data: map[string]string{
			"type":     notification.DataTypeChatMessage,
			"chatId":   chatID,
			"senderId": msg.SenderID,
		},
	}
}

// FriendRequest builds the payload for a newly received friend request.
func (c *Composer) FriendRequest(requesterID, requesterName string) notification.NotificationPayload {
	return notification.NotificationPayload{
		Notification: notification.Content{
			Title: c.strings.FriendRequestTitle,
			Body:  fmt.Sprintf(c.strings.FriendRequestBody, requesterName),
		},
		Data: map[string]string{
			"type":        notification.DataTypeFriendRequest,
			"requesterId": requesterID,
		},
	}
}
