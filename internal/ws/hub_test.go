package ws_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orderstream/internal/auth"
	"orderstream/internal/models"
	"orderstream/internal/ws"
)

const testSecret = "test-secret"

// startHub starts a test HTTP server serving the WebSocket endpoint with a
// running hub. Returns the ws:// URL and the hub.
func startHub(t *testing.T) (string, *ws.Hub) {
	t.Helper()

	hub := ws.NewHub()
	authSvc := auth.New(testSecret, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws.ServeWS(hub, authSvc, w, r)
	}))

	t.Cleanup(func() {
		cancel()
		srv.Close()
	})

	return "ws" + strings.TrimPrefix(srv.URL, "http"), hub
}

func dial(t *testing.T, wsURL string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err, "dial %s", wsURL)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readFrame reads one frame and decodes it into a generic map.
func readFrame(t *testing.T, conn *websocket.Conn) map[string]interface{} {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err, "ReadMessage")

	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &m))
	return m
}

// expectNoFrame asserts that nothing arrives on conn within the window.
func expectNoFrame(t *testing.T, conn *websocket.Conn, window time.Duration) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(window))
	_, _, err := conn.ReadMessage()
	require.Error(t, err, "expected no frame, got one")
}

// joinOrder sends join_order and consumes the ack.
func joinOrder(t *testing.T, conn *websocket.Conn, orderID string) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(models.ClientMessage{Type: models.TypeJoinOrder, OrderID: orderID}))
	ack := readFrame(t, conn)
	require.Equal(t, models.TypeJoinedOrder, ack["type"])
	require.Equal(t, orderID, ack["orderId"])
}

// authenticate sends authenticate and consumes the ack.
func authenticate(t *testing.T, conn *websocket.Conn, userID, userType string) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(models.ClientMessage{
		Type:     models.TypeAuthenticate,
		UserID:   userID,
		UserType: userType,
	}))
	ack := readFrame(t, conn)
	require.Equal(t, models.TypeAuthenticated, ack["type"])
	require.Equal(t, userID, ack["userId"])
	require.Equal(t, userType, ack["userType"])
}

// --- tests ------------------------------------------------------------------

func TestServeWS_SendsConnectionAck(t *testing.T) {
	wsURL, _ := startHub(t)

	conn := dial(t, wsURL)
	ack := readFrame(t, conn)

	assert.Equal(t, models.TypeConnection, ack["type"])
	assert.NotEmpty(t, ack["connectionId"])
}

func TestAuthenticate_BindsIdentity(t *testing.T) {
	wsURL, hub := startHub(t)

	conn := dial(t, wsURL)
	readFrame(t, conn)
	authenticate(t, conn, "user-1", models.UserTypeCustomer)

	assert.Equal(t, 1, hub.UserConnections("user-1"))
}

func TestAuthenticate_ReauthOverwritesIdentity(t *testing.T) {
	wsURL, hub := startHub(t)

	conn := dial(t, wsURL)
	readFrame(t, conn)
	authenticate(t, conn, "user-1", models.UserTypeCustomer)
	authenticate(t, conn, "user-2", models.UserTypeRestaurant)

	assert.Equal(t, 0, hub.UserConnections("user-1"))
	assert.Equal(t, 1, hub.UserConnections("user-2"))
}

func TestJoinOrder_WithoutAuthenticate(t *testing.T) {
	wsURL, hub := startHub(t)

	conn := dial(t, wsURL)
	readFrame(t, conn)
	joinOrder(t, conn, "order-42")

	assert.Equal(t, 1, hub.RoomMembers("order-42"))
}

func TestBroadcast_ReachesExactlyRoomMembers(t *testing.T) {
	wsURL, hub := startHub(t)

	connA := dial(t, wsURL)
	connB := dial(t, wsURL)
	connC := dial(t, wsURL)
	for _, conn := range []*websocket.Conn{connA, connB, connC} {
		readFrame(t, conn)
	}

	joinOrder(t, connA, "order-42")
	joinOrder(t, connB, "order-42")
	joinOrder(t, connC, "order-7")

	payload, err := json.Marshal(map[string]string{
		"type":    models.TypeOrderStatusUpdated,
		"orderId": "order-42",
		"status":  string(models.StatusPreparing),
	})
	require.NoError(t, err)
	hub.Broadcast("order-42", payload)

	for _, conn := range []*websocket.Conn{connA, connB} {
		frame := readFrame(t, conn)
		assert.Equal(t, models.TypeOrderStatusUpdated, frame["type"])
		assert.Equal(t, string(models.StatusPreparing), frame["status"])
	}

	expectNoFrame(t, connC, 150*time.Millisecond)
}

func TestSendToUser_ReachesAllConnections(t *testing.T) {
	wsURL, hub := startHub(t)

	tab1 := dial(t, wsURL)
	tab2 := dial(t, wsURL)
	other := dial(t, wsURL)
	for _, conn := range []*websocket.Conn{tab1, tab2, other} {
		readFrame(t, conn)
	}

	authenticate(t, tab1, "user-1", models.UserTypeCustomer)
	authenticate(t, tab2, "user-1", models.UserTypeCustomer)
	authenticate(t, other, "user-2", models.UserTypeCustomer)

	payload, err := json.Marshal(map[string]string{
		"type":   models.TypeStatusUpdated,
		"status": string(models.StatusReady),
	})
	require.NoError(t, err)
	hub.SendToUser("user-1", payload)

	for _, conn := range []*websocket.Conn{tab1, tab2} {
		frame := readFrame(t, conn)
		assert.Equal(t, models.TypeStatusUpdated, frame["type"])
	}

	expectNoFrame(t, other, 150*time.Millisecond)
}

func TestClose_RemovesAllMemberships(t *testing.T) {
	wsURL, hub := startHub(t)

	conn := dial(t, wsURL)
	readFrame(t, conn)
	authenticate(t, conn, "user-1", models.UserTypeCustomer)
	joinOrder(t, conn, "order-42")
	joinOrder(t, conn, "order-7")

	require.Equal(t, 1, hub.Connections())
	require.Equal(t, 1, hub.RoomMembers("order-42"))
	require.Equal(t, 1, hub.RoomMembers("order-7"))

	conn.Close()

	assert.Eventually(t, func() bool {
		return hub.Connections() == 0 &&
			hub.RoomMembers("order-42") == 0 &&
			hub.RoomMembers("order-7") == 0 &&
			hub.UserConnections("user-1") == 0
	}, 2*time.Second, 10*time.Millisecond, "close must remove the connection everywhere")
}

func TestMalformedInbound_DoesNotDisconnect(t *testing.T) {
	wsURL, _ := startHub(t)

	conn := dial(t, wsURL)
	readFrame(t, conn)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json at all{{{")))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"no":"type field"}`)))

	// The connection is still usable afterwards.
	joinOrder(t, conn, "order-42")
}

func TestGenericHandler_ReceivesUnknownTypes(t *testing.T) {
	hub := ws.NewHub()
	authSvc := auth.New(testSecret, time.Hour)

	got := make(chan string, 1)
	hub.SetGenericHandler(func(c *ws.Client, msgType string, raw []byte) {
		got <- msgType
	})

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws.ServeWS(hub, authSvc, w, r)
	}))
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})

	conn := dial(t, "ws"+strings.TrimPrefix(srv.URL, "http"))
	readFrame(t, conn)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "typing_started"}))

	select {
	case msgType := <-got:
		assert.Equal(t, "typing_started", msgType)
	case <-time.After(2 * time.Second):
		t.Fatal("generic handler was not invoked")
	}
}

func TestServeWS_ValidTokenPreAuthenticates(t *testing.T) {
	wsURL, hub := startHub(t)

	authSvc := auth.New(testSecret, time.Hour)
	token, _, err := authSvc.GenerateToken("user-9", models.UserTypeRestaurant)
	require.NoError(t, err)

	conn := dial(t, wsURL+"?token="+token)
	readFrame(t, conn)

	assert.Eventually(t, func() bool {
		return hub.UserConnections("user-9") == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestServeWS_InvalidTokenRejected(t *testing.T) {
	wsURL, _ := startHub(t)

	_, resp, err := websocket.DefaultDialer.Dial(wsURL+"?token=garbage", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
