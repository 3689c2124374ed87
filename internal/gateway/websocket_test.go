package gateway

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/internal/model"
)

func dialObserver(t *testing.T, server *httptest.Server, orderID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/orders/" + orderID
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readJSON(t *testing.T, conn *websocket.Conn, out any) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(payload, out))
}

func newTestServer(t *testing.T, registry *Registry) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.Handle("GET /ws/orders/{id}", Handler(registry))
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestWebsocketConnectedAck(t *testing.T) {
	registry := NewRegistry(nil)
	server := newTestServer(t, registry)
	conn := dialObserver(t, server, "o1")

	var ack connectedPayload
	readJSON(t, conn, &ack)
	assert.Equal(t, "connected", ack.Type)
	assert.Equal(t, "o1", ack.OrderID)
}

func TestWebsocketReceivesDeliveredEvents(t *testing.T) {
	registry := NewRegistry(nil)
	server := newTestServer(t, registry)
	conn := dialObserver(t, server, "o1")

	var ack connectedPayload
	readJSON(t, conn, &ack)

	// the ack is written before Subscribe returns on the server side, so
	// the observer may not be registered yet; wait for it
	require.Eventually(t, func() bool {
		return registry.Observers("o1") == 1
	}, time.Second, 5*time.Millisecond)

	ref := "0xdeadbeef"
	registry.Deliver(model.StatusEvent{
		OrderID:       "o1",
		Status:        model.StatusConfirmed,
		SettlementRef: &ref,
	})

	var payload statusPayload
	readJSON(t, conn, &payload)
	assert.Equal(t, "status", payload.Type)
	assert.Equal(t, model.StatusConfirmed, payload.Status)
	require.NotNil(t, payload.SettlementRef)
	assert.Equal(t, ref, *payload.SettlementRef)
}

func TestWebsocketDisconnectRemovesObserver(t *testing.T) {
	registry := NewRegistry(nil)
	server := newTestServer(t, registry)
	conn := dialObserver(t, server, "o1")

	var ack connectedPayload
	readJSON(t, conn, &ack)
	require.Eventually(t, func() bool {
		return registry.Observers("o1") == 1
	}, time.Second, 5*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool {
		return registry.Observers("o1") == 0
	}, time.Second, 5*time.Millisecond)
}
