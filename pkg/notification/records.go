// Package notification contains the public domain models for the
// notification service.
package notification

// Message types the composer distinguishes. Anything other than
// MessageTypeImage is rendered with its raw text.
const (
	MessageTypeText  = "text"
	MessageTypeImage = "image"
)

// ChatRecord is the read-only view of a chat document.
type ChatRecord struct {
	Participants []string `firestore:"participants" json:"participants"`
}

// Message is a chat message as stored under chats/{chatId}/messages.
type Message struct {
	SenderID string `firestore:"senderId" json:"senderId"`
	Type     string `firestore:"type" json:"type"`
	Text     string `firestore:"text,omitempty" json:"text,omitempty"`
}

// UserRecord is the subset of a user document this service reads.
// Tokens is the only field the service ever mutates, and only by removal.
type UserRecord struct {
	ID             string   `firestore:"-" json:"id"`
	FirstName      string   `firestore:"firstName" json:"firstName"`
	Tokens         []string `firestore:"fcmTokens" json:"fcmTokens"`
	FriendRequests []string `firestore:"friendRequests" json:"friendRequests"`
}

// UserProfile is the display part of a user document. Unlike the token
// list it changes rarely, so it is the only user data that may be cached.
type UserProfile struct {
	ID        string `json:"id"`
	FirstName string `json:"firstName"`
}
