package delivery

import (
	"context"
	"encoding/json"
	"time"

	"github.com/sirupsen/logrus"

	"messaging-service/internal/models"
	"messaging-service/internal/observability"
	"messaging-service/internal/repositories"
)

// Registry is the fan-out side of the connection hub.
type Registry interface {
	Send(userID int, event any)
}

// Engine validates inbound frames, persists them and fans the resulting
// events out to the sender's and receiver's groups.
type Engine struct {
	store    repositories.MessageRepository
	registry Registry
}

// NewEngine constructs an Engine.
func NewEngine(store repositories.MessageRepository, registry Registry) *Engine {
	return &Engine{store: store, registry: registry}
}

type inboundFrame struct {
	Message    string `json:"message"`
	ReceiverID int    `json:"receiver_id"`
	Photo      string `json:"photo"`
}

// HandleInbound processes one frame from an accepted connection. A non-nil
// return is reported to the sending connection only; on success the
// chat_message event reaches both groups and a notification reaches the
// receiver's group while the stored message is unread. The store call is made
// without any registry lock held.
func (e *Engine) HandleInbound(ctx context.Context, sender models.Identity, frame []byte) *Error {
	var in inboundFrame
	if len(frame) > 0 {
		if err := json.Unmarshal(frame, &in); err != nil {
			return newError(KindInvalidPayload, "Invalid JSON", err)
		}
	}

	if !sender.Authenticated {
		return newError(KindUnauthenticated, "User not authenticated", nil)
	}
	if in.ReceiverID == 0 {
		return newError(KindMissingReceiver, "Missing receiver_id or content (message/photo)", nil)
	}
	if in.Message == "" && in.Photo == "" {
		return newError(KindEmptyContent, "Missing receiver_id or content (message/photo)", nil)
	}

	var photo *string
	if in.Photo != "" {
		photo = &in.Photo
	}

	msg, err := e.store.CreateMessage(ctx, sender.ID, in.ReceiverID, in.Message, photo)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"sender_id":   sender.ID,
			"receiver_id": in.ReceiverID,
		}).WithError(err).Error("store message failed")
		return newError(KindStore, "Failed to process message", err)
	}

	event := models.ChatMessageEvent{
		Type:      models.EventChatMessage,
		Message:   msg.Content,
		Photo:     msg.Photo,
		Sender:    sender.Username,
		Timestamp: msg.CreatedAt.Format(time.RFC3339Nano),
	}
	e.registry.Send(msg.ReceiverID, event)
	// Mirror to the sender's group so their other devices see the outgoing
	// message too.
	e.registry.Send(sender.ID, event)

	if !msg.IsRead {
		e.registry.Send(msg.ReceiverID, models.NotificationEvent{
			Type:    models.EventNotification,
			Message: "New message from " + sender.Username,
		})
	}

	observability.IncMessageDelivered()
	_ = observability.PublishEvent(ctx, "messages.delivered", observability.EventEnvelope{
		EventType: "message_events",
		EventName: "message_delivered",
		Payload: map[string]interface{}{
			"message_id":  msg.ID,
			"sender_id":   msg.SenderID,
			"receiver_id": msg.ReceiverID,
			"has_photo":   msg.Photo != nil,
		},
	}, nil)
	return nil
}
