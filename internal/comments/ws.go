package comments

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/mygrant-hub/mygrant-api/internal/db"
	"github.com/mygrant-hub/mygrant-api/internal/httperr"
)

type wsEvent struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type hub struct {
	serviceID string
	clients   map[*websocket.Conn]bool
	mu        sync.RWMutex
}

var (
	hubsMu sync.RWMutex
	hubs   = make(map[string]*hub)
)

func getHub(serviceID string) *hub {
	hubsMu.Lock()
	defer hubsMu.Unlock()
	if h, ok := hubs[serviceID]; ok {
		return h
	}
	h := &hub{serviceID: serviceID, clients: make(map[*websocket.Conn]bool)}
	hubs[serviceID] = h
	return h
}

func (h *hub) broadcast(evt wsEvent) {
	payload, _ := json.Marshal(evt)
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		_ = c.WriteMessage(websocket.TextMessage, payload)
	}
}

func (h *hub) register(c *websocket.Conn) {
	h.mu.Lock()
	h.clients[c] = true
	h.mu.Unlock()
}

func (h *hub) unregister(c *websocket.Conn) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Stream - websocket for realtime updates on a service's comment thread
// GET /services/:id/comments/stream
func Stream(c echo.Context) error {
	userID, ok := c.Get("user_id").(string)
	if !ok || userID == "" {
		return httperr.Unauthorized(c, "unauthorized")
	}

	serviceID := c.Param("id")
	var exists bool
	err := db.Conn.QueryRow(context.Background(),
		`SELECT EXISTS (SELECT 1 FROM services WHERE id = $1)`, serviceID,
	).Scan(&exists)
	if err != nil || !exists {
		return httperr.NotFound(c, "service not found")
	}

	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	h := getHub(serviceID)
	h.register(ws)
	h.broadcast(wsEvent{Type: "presence_join", Data: echo.Map{"user_id": userID}})

	// Read loop (discard client messages; protocol is server push for now)
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			h.unregister(ws)
			_ = ws.Close()
			h.broadcast(wsEvent{Type: "presence_leave", Data: echo.Map{"user_id": userID}})
			break
		}
	}
	return nil
}

// broadcastNewComment publishes a new comment to the service's hub.
func broadcastNewComment(serviceID string, comment interface{}) {
	getHub(serviceID).broadcast(wsEvent{Type: "comment_new", Data: comment})
}

// broadcastCommentEdited publishes an edit to the service's hub.
func broadcastCommentEdited(serviceID string, comment interface{}) {
	getHub(serviceID).broadcast(wsEvent{Type: "comment_edited", Data: comment})
}

// broadcastCommentDeleted publishes a deletion to the service's hub.
func broadcastCommentDeleted(serviceID, commentID string) {
	getHub(serviceID).broadcast(wsEvent{Type: "comment_deleted", Data: echo.Map{"comment_id": commentID}})
}
