package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"messaging-service/internal/observability"
)

// Hub groups live connections by user id and fans events out to them. It is
// the only shared mutable state in the delivery path; the lock guards the
// group map only and is never held across a write to a connection.
type Hub struct {
	groups map[int]map[*Client]bool
	mu     sync.RWMutex
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{groups: make(map[int]map[*Client]bool)}
}

// Join registers a client under a user's group, creating it when absent.
func (h *Hub) Join(userID int, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.groups[userID]; !ok {
		h.groups[userID] = make(map[*Client]bool)
	}
	h.groups[userID][client] = true
}

// Leave removes a client from a user's group; the group entry is removed once
// its last client leaves. No-op when the client or group is absent.
func (h *Hub) Leave(userID int, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if clients, ok := h.groups[userID]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.groups, userID)
		}
	}
}

// Send delivers event to every connection currently in userID's group.
// Membership is snapshotted at call time; a nonexistent group is a silent
// no-op since receivers may simply be offline. A client whose queue is full
// is closed, which removes only that connection.
func (h *Hub) Send(userID int, event any) {
	payload, err := json.Marshal(event)
	if err != nil {
		logrus.WithError(err).Error("marshal outbound event")
		return
	}

	h.mu.RLock()
	targets := make([]*Client, 0, len(h.groups[userID]))
	for client := range h.groups[userID] {
		targets = append(targets, client)
	}
	h.mu.RUnlock()

	for _, client := range targets {
		if !client.Enqueue(payload) {
			logrus.WithFields(logrus.Fields{
				"conn_id": client.info.ConnID,
				"user_id": client.info.UserID,
			}).Warn("send queue full, dropping connection")
			client.Close()
			h.Leave(userID, client)
			h.publishWSError(client, "send queue full")
		}
	}
}

// GroupSize reports the current number of connections for a user.
func (h *Hub) GroupSize(userID int) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.groups[userID])
}

func (h *Hub) publishWSError(client *Client, reason string) {
	info := client.Info()
	observability.IncWSEvent("ws_error")
	_ = observability.PublishEvent(context.Background(), "ws_events.chat", observability.EventEnvelope{
		EventType: "ws_events",
		EventName: "ws_error",
		Payload: map[string]interface{}{
			"ws": map[string]interface{}{
				"event":       "ws_error",
				"conn_id":     info.ConnID,
				"duration_ms": time.Since(info.ConnectedAt).Milliseconds(),
				"reason":      reason,
			},
			"identity": map[string]interface{}{
				"user_id":   info.UserID,
				"device_id": info.DeviceID,
				"ip":        info.IP,
			},
		},
	}, observability.BuildHeaders(info.RequestID, info.TraceID))
}
