package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"messaging-service/internal/delivery"
	"messaging-service/internal/mocks"
	"messaging-service/internal/models"
)

func setupGateway(t *testing.T, store *mocks.MessageRepositoryMock) (*httptest.Server, *Hub) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	resolver := new(mocks.ResolverMock)
	resolver.On("Resolve", mock.Anything, "token-a").Return(models.Identity{ID: 1, Username: "alice", Authenticated: true})
	resolver.On("Resolve", mock.Anything, "token-b").Return(models.Identity{ID: 2, Username: "bob", Authenticated: true})
	resolver.On("Resolve", mock.Anything, mock.Anything).Return(models.Anonymous)

	hub := NewHub()
	engine := delivery.NewEngine(store, hub)
	handler := NewChatWebSocketHandler(hub, resolver, engine)

	router := gin.New()
	router.GET("/ws/chat", handler.Handle)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, hub
}

func dialWS(t *testing.T, srv *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/chat?token=" + token
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)
	var event map[string]any
	require.NoError(t, json.Unmarshal(payload, &event))
	return event
}

func assertSilent(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
}

func TestAnonymousConnectionRejected(t *testing.T) {
	srv, hub := setupGateway(t, new(mocks.MessageRepositoryMock))

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/chat?token=bogus"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.Nil(t, conn)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	hub.mu.RLock()
	defer hub.mu.RUnlock()
	assert.Empty(t, hub.groups)
}

func TestMessageReachesBothGroups(t *testing.T) {
	store := new(mocks.MessageRepositoryMock)
	stored := models.Message{ID: 1, SenderID: 1, ReceiverID: 2, Content: "hi", CreatedAt: time.Now()}
	store.On("CreateMessage", mock.Anything, 1, 2, "hi", (*string)(nil)).Return(stored, nil).Once()

	srv, hub := setupGateway(t, store)
	alice := dialWS(t, srv, "token-a")
	bob := dialWS(t, srv, "token-b")

	require.Eventually(t, func() bool {
		return hub.GroupSize(1) == 1 && hub.GroupSize(2) == 1
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, alice.WriteMessage(websocket.TextMessage, []byte(`{"message":"hi","receiver_id":2}`)))

	event := readEvent(t, bob)
	assert.Equal(t, "chat_message", event["type"])
	assert.Equal(t, "hi", event["message"])
	assert.Equal(t, "alice", event["sender"])

	notification := readEvent(t, bob)
	assert.Equal(t, "notification", notification["type"])
	assert.Equal(t, "New message from alice", notification["message"])

	echo := readEvent(t, alice)
	assert.Equal(t, "chat_message", echo["type"])
	assert.Equal(t, "hi", echo["message"])
	assertSilent(t, alice)

	store.AssertExpectations(t)
}

// Frames arrive after the handshake handler has returned, so the store must
// see a context that outlives the upgrade request.
func TestStoreContextOutlivesHandshakeRequest(t *testing.T) {
	store := new(mocks.MessageRepositoryMock)
	stored := models.Message{ID: 1, SenderID: 1, ReceiverID: 2, Content: "hi", CreatedAt: time.Now()}
	ctxErr := make(chan error, 1)
	store.On("CreateMessage", mock.Anything, 1, 2, "hi", (*string)(nil)).
		Run(func(args mock.Arguments) {
			ctxErr <- args.Get(0).(context.Context).Err()
		}).
		Return(stored, nil).Once()

	srv, hub := setupGateway(t, store)
	alice := dialWS(t, srv, "token-a")
	bob := dialWS(t, srv, "token-b")

	require.Eventually(t, func() bool {
		return hub.GroupSize(1) == 1 && hub.GroupSize(2) == 1
	}, time.Second, 10*time.Millisecond)

	// Give the upgrade handler time to return and the request context to die.
	time.Sleep(200 * time.Millisecond)
	require.NoError(t, alice.WriteMessage(websocket.TextMessage, []byte(`{"message":"hi","receiver_id":2}`)))

	select {
	case err := <-ctxErr:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("store was never called")
	}

	event := readEvent(t, bob)
	assert.Equal(t, "chat_message", event["type"])
	store.AssertExpectations(t)
}

func TestValidationErrorReturnedToSenderOnly(t *testing.T) {
	store := new(mocks.MessageRepositoryMock)
	srv, hub := setupGateway(t, store)
	alice := dialWS(t, srv, "token-a")
	bob := dialWS(t, srv, "token-b")

	require.Eventually(t, func() bool {
		return hub.GroupSize(1) == 1 && hub.GroupSize(2) == 1
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, alice.WriteMessage(websocket.TextMessage, []byte(`{"receiver_id":2}`)))

	event := readEvent(t, alice)
	assert.Equal(t, "Missing receiver_id or content (message/photo)", event["error"])

	assertSilent(t, bob)
	store.AssertNotCalled(t, "CreateMessage", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestDisconnectRemovesConnectionFromGroup(t *testing.T) {
	srv, hub := setupGateway(t, new(mocks.MessageRepositoryMock))
	alice := dialWS(t, srv, "token-a")

	require.Eventually(t, func() bool {
		return hub.GroupSize(1) == 1
	}, time.Second, 10*time.Millisecond)

	alice.Close()

	require.Eventually(t, func() bool {
		return hub.GroupSize(1) == 0
	}, time.Second, 10*time.Millisecond)
}
