package notification

// Values of the "type" discriminant carried in every payload's data map.
const (
	DataTypeChatMessage   = "chat_message"
	DataTypeFriendRequest = "friend_request"
)

// Content is the visible part of a push notification.
type Content struct {
	Title       string `json:"title"`
	Body        string `json:"body"`
	ClickAction string `json:"clickAction,omitempty"`
}

// NotificationPayload is built fresh for every send and never persisted.
// Its JSON encoding is the wire shape clients parse:
//
//	{"notification":{"title":"..","body":"..","clickAction":".."},"data":{"type":"..",...}}
type NotificationPayload struct {
	Notification Content           `json:"notification"`
	Data         map[string]string `json:"data"`
}
