package gateway

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/yanun0323/logs"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type connectedPayload struct {
	Type    string `json:"type"`
	OrderID string `json:"orderId"`
}

// Handler upgrades observer connections and registers them for the order
// id in the path. The route is expected to be "GET /ws/orders/{id}".
func Handler(registry *Registry) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		orderID := r.PathValue("id")
		if orderID == "" {
			http.Error(w, "order id required", http.StatusBadRequest)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logs.Errorf("upgrade observer connection for order %s: %v", orderID, err)
			return
		}

		observer := &wsObserver{conn: conn}
		ack, _ := json.Marshal(connectedPayload{Type: "connected", OrderID: orderID})
		if err := observer.Send(ack); err != nil {
			conn.Close()
			return
		}
		registry.Subscribe(orderID, observer)
		logs.Infof("observer connected for order %s", orderID)

		go func() {
			defer func() {
				registry.Unsubscribe(orderID, observer)
				conn.Close()
				logs.Infof("observer disconnected for order %s", orderID)
			}()
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()
	})
}

// wsObserver serializes writes to a single websocket connection.
type wsObserver struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (o *wsObserver) Send(payload []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.conn.WriteMessage(websocket.TextMessage, payload)
}
