package websocket

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"

	"github.com/printworks/jobtrack/internal/broadcast"
	"github.com/printworks/jobtrack/internal/model"
)

// Client represents a WebSocket client
type Client struct {
	Topic string
	Conn  *websocket.Conn
	Send  chan []byte
}

// Hub maintains active WebSocket connections
type Hub struct {
	// Clients grouped by topic ("jobs" or "job:<id>")
	clients map[string]map[*Client]bool

	// Register requests
	register chan *Client

	// Unregister requests
	unregister chan *Client

	// Broadcast messages to topic subscribers
	broadcast chan *BroadcastMessage

	mu sync.RWMutex
}

// BroadcastMessage represents a message to broadcast. An empty Topic
// reaches every client.
type BroadcastMessage struct {
	Topic   string
	Message []byte
}

// NewHub creates a new Hub
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *BroadcastMessage, 256),
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if h.clients[client.Topic] == nil {
				h.clients[client.Topic] = make(map[*Client]bool)
			}
			h.clients[client.Topic][client] = true
			h.mu.Unlock()
			log.Printf("Client registered for %s", client.Topic)

		case client := <-h.unregister:
			h.mu.Lock()
			h.remove(client)
			h.mu.Unlock()
			log.Printf("Client unregistered from %s", client.Topic)

		case msg := <-h.broadcast:
			h.mu.Lock()
			if msg.Topic == "" {
				for _, clients := range h.clients {
					h.deliver(clients, msg.Message)
				}
			} else if clients, ok := h.clients[msg.Topic]; ok {
				h.deliver(clients, msg.Message)
			}
			h.mu.Unlock()
		}
	}
}

// deliver drops a client whose buffer is full; it will reconnect and re-fetch.
func (h *Hub) deliver(clients map[*Client]bool, message []byte) {
	for client := range clients {
		select {
		case client.Send <- message:
		default:
			h.remove(client)
		}
	}
}

func (h *Hub) remove(client *Client) {
	clients, ok := h.clients[client.Topic]
	if !ok {
		return
	}
	if _, ok := clients[client]; !ok {
		return
	}
	delete(clients, client)
	close(client.Send)
	if len(clients) == 0 {
		delete(h.clients, client.Topic)
	}
}

// Register adds a new client
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister removes a client
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, clients := range h.clients {
		n += len(clients)
	}
	return n
}

// Consume forwards broker events to connected clients until ctx is done or
// the subscription closes. A gap in the subscription turns into a resync
// message for every client.
func (h *Hub) Consume(ctx context.Context, broker *broadcast.Broker) {
	sub := broker.Subscribe(model.TopicAllJobs)
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-sub.Events():
			if !ok {
				return
			}
			h.BroadcastJobUpdated(event)
		case <-sub.Gaps():
			h.BroadcastResync("", "missed events, re-fetch jobs")
		}
	}
}

// BroadcastJobUpdated sends a lifecycle event to the global and per-job topics
func (h *Hub) BroadcastJobUpdated(event model.LifecycleEvent) {
	msg := model.WSJobUpdatedMessage{
		Type:  model.WSMessageTypeJobUpdated,
		Event: event,
	}

	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("Failed to marshal job update message: %v", err)
		return
	}

	h.broadcast <- &BroadcastMessage{Topic: model.TopicAllJobs, Message: data}
	h.broadcast <- &BroadcastMessage{Topic: model.TopicJob(event.JobID), Message: data}
}

// BroadcastUrgent flags a job that entered the urgency window
func (h *Hub) BroadcastUrgent(job *model.JobView) {
	msg := model.WSJobUrgentMessage{
		Type:        model.WSMessageTypeJobUrgent,
		JobID:       job.ID,
		DisplayCode: job.DisplayCode,
		Status:      job.Status,
		Priority:    job.Priority,
	}
	if job.DaysUntilDue != nil {
		msg.DaysUntilDue = *job.DaysUntilDue
	}

	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("Failed to marshal urgent message: %v", err)
		return
	}

	h.broadcast <- &BroadcastMessage{Topic: model.TopicAllJobs, Message: data}
	h.broadcast <- &BroadcastMessage{Topic: model.TopicJob(job.ID), Message: data}
}

// BroadcastResync tells clients to reload state. An empty topic reaches everyone.
func (h *Hub) BroadcastResync(topic, reason string) {
	msg := model.WSResyncMessage{
		Type:   model.WSMessageTypeResync,
		Topic:  topic,
		Reason: reason,
	}

	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("Failed to marshal resync message: %v", err)
		return
	}

	h.broadcast <- &BroadcastMessage{Topic: topic, Message: data}
}

// HandleConnection handles a WebSocket connection
func (h *Hub) HandleConnection(c *websocket.Conn, topic string) {
	client := &Client{
		Topic: topic,
		Conn:  c,
		Send:  make(chan []byte, 256),
	}

	h.Register(client)
	defer h.Unregister(client)

	// pong replies go through the writer; Send may already be closed by the hub
	pongs := make(chan struct{}, 1)
	pong, _ := json.Marshal(model.WSMessage{Type: model.WSMessageTypePong})

	// Start writer goroutine
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case message, ok := <-client.Send:
				if !ok {
					c.WriteMessage(websocket.CloseMessage, []byte{})
					return
				}
				if err := c.WriteMessage(websocket.TextMessage, message); err != nil {
					return
				}

			case <-pongs:
				if err := c.WriteMessage(websocket.TextMessage, pong); err != nil {
					return
				}

			case <-ticker.C:
				// Send ping for keep-alive
				if err := c.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	// Reader loop
	for {
		_, message, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}

		// Handle client messages (ping/pong)
		var msg model.WSMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}

		if msg.Type == model.WSMessageTypePing {
			select {
			case pongs <- struct{}{}:
			default:
			}
		}
	}
}
