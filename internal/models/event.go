package models

// Event kinds delivered over websocket connections.
const (
	EventChatMessage  = "chat_message"
	EventNotification = "notification"
)

// ChatMessageEvent mirrors an accepted message to the sender's and the
// receiver's connection groups.
type ChatMessageEvent struct {
	Type      string  `json:"type"`
	Message   string  `json:"message"`
	Photo     *string `json:"photo"`
	Sender    string  `json:"sender"`
	Timestamp string  `json:"timestamp"`
}

// NotificationEvent carries a human-readable unread summary, sent to the
// receiver's group only.
type NotificationEvent struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// ErrorEvent is returned to the originating connection only, never broadcast.
type ErrorEvent struct {
	Error string `json:"error"`
}
