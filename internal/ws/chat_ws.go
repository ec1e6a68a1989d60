package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"

	"messaging-service/internal/auth"
	"messaging-service/internal/delivery"
	"messaging-service/internal/models"
	"messaging-service/internal/observability"
)

// InboundHandler consumes message frames read from accepted connections.
type InboundHandler interface {
	HandleInbound(ctx context.Context, sender models.Identity, frame []byte) *delivery.Error
}

// ChatWebSocketHandler is the accept/reject boundary for messaging
// connections. It resolves the handshake token, rejects anonymous identities
// before the upgrade, and runs the per-connection read loop.
type ChatWebSocketHandler struct {
	hub      *Hub
	resolver auth.Resolver
	engine   InboundHandler
}

// NewChatWebSocketHandler constructs a ChatWebSocketHandler.
func NewChatWebSocketHandler(hub *Hub, resolver auth.Resolver, engine InboundHandler) *ChatWebSocketHandler {
	return &ChatWebSocketHandler{hub: hub, resolver: resolver, engine: engine}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle performs the handshake and registers the connection.
func (h *ChatWebSocketHandler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("messaging-service/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	identity := h.resolver.Resolve(ctx, tokenFromRequest(c))
	if !identity.Authenticated || identity.ID == 0 {
		observability.IncWSEvent("ws_reject")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	traceID := span.SpanContext().TraceID().String()
	requestID := observability.RequestIDFromRequest(c.Request)
	info := ConnInfo{
		ConnID:      newConnID(),
		UserID:      identity.ID,
		Username:    identity.Username,
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   requestID,
		TraceID:     traceID,
		ConnectedAt: time.Now(),
	}

	client := NewClient(conn, info)
	h.hub.Join(identity.ID, client)
	go client.WritePump()

	logrus.WithFields(logrus.Fields{
		"user_id":  identity.ID,
		"username": identity.Username,
		"conn_id":  info.ConnID,
	}).Info("websocket connected")
	observability.IncWSActive()
	observability.IncWSEvent("ws_connect")
	_ = observability.PublishEvent(ctx, "ws_events.chat", observability.EventEnvelope{
		EventType: "ws_events",
		EventName: "ws_connect",
		Payload:   wsEventPayload(info, "ws_connect", 0, ""),
	}, observability.BuildHeaders(requestID, traceID))

	// net/http cancels the request context once Handle returns; the
	// connection outlives the handshake, so the read loop keeps the trace
	// values without the request's cancellation.
	go h.readLoop(context.WithoutCancel(ctx), identity, client, conn)
}

// readLoop consumes frames in arrival order, which preserves per-sender
// delivery order. Cleanup is unconditional and idempotent; an in-flight
// HandleInbound for an accepted frame completes even if the peer has
// disconnected meanwhile.
func (h *ChatWebSocketHandler) readLoop(ctx context.Context, identity models.Identity, client *Client, conn *websocket.Conn) {
	info := client.Info()
	var closeReason string
	defer func() {
		h.hub.Leave(identity.ID, client)
		client.Close()
		conn.Close()
		observability.DecWSActive()
		observability.IncWSEvent("ws_disconnect")
		_ = observability.PublishEvent(ctx, "ws_events.chat", observability.EventEnvelope{
			EventType: "ws_events",
			EventName: "ws_disconnect",
			Payload:   wsEventPayload(info, "ws_disconnect", time.Since(info.ConnectedAt).Milliseconds(), closeReason),
		}, observability.BuildHeaders(info.RequestID, info.TraceID))
		logrus.WithFields(logrus.Fields{
			"user_id": identity.ID,
			"conn_id": info.ConnID,
			"reason":  closeReason,
		}).Info("websocket disconnected")
	}()

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			closeReason = err.Error()
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				observability.IncWSEvent("ws_error")
			}
			return
		}

		if derr := h.engine.HandleInbound(ctx, identity, frame); derr != nil {
			h.replyError(client, derr)
		}
	}
}

// replyError surfaces a delivery failure to the originating connection only.
func (h *ChatWebSocketHandler) replyError(client *Client, derr *delivery.Error) {
	observability.IncDeliveryError(string(derr.Kind))
	payload, err := json.Marshal(models.ErrorEvent{Error: derr.ClientMessage})
	if err != nil {
		return
	}
	client.Enqueue(payload)
}

func tokenFromRequest(c *gin.Context) string {
	if token := c.Query("token"); token != "" {
		return token
	}
	return bearerToken(c.GetHeader("Authorization"))
}

func wsEventPayload(info ConnInfo, event string, durationMS int64, reason string) map[string]interface{} {
	return map[string]interface{}{
		"ws": map[string]interface{}{
			"event":       event,
			"conn_id":     info.ConnID,
			"duration_ms": durationMS,
			"reason":      reason,
		},
		"identity": map[string]interface{}{
			"user_id":   info.UserID,
			"device_id": info.DeviceID,
			"ip":        info.IP,
		},
	}
}
