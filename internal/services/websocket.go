package services

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/unipool/unipool-backend/internal/engine"
	"github.com/unipool/unipool-backend/internal/models"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for development
	},
}

// Subscription channels a client can watch.
const (
	ChannelCarpools        = "carpools"
	ChannelRiderBookings   = "rider_bookings"
	ChannelCarpoolBookings = "carpool_bookings"
	ChannelMessages        = "messages"
)

// SnapshotSource serves the full current state matching a subscription
// filter. A subscriber that connects (or reconnects) gets a snapshot first
// and deltas after; there is no replay of missed deltas.
type SnapshotSource interface {
	ListCarpools(ctx context.Context, location string) ([]models.Carpool, error)
	GetCarpool(ctx context.Context, carpoolID uint) (*models.Carpool, error)
	RiderBookings(ctx context.Context, riderID uint) ([]models.BookingRequest, error)
	CarpoolBookings(ctx context.Context, carpoolID uint) ([]models.BookingRequest, error)
	ListMessages(ctx context.Context, carpoolID, callerID, peerID uint) ([]models.Message, error)
}

// Subscription is one filter predicate held by a connected client.
type Subscription struct {
	ID        string `json:"id"`
	Channel   string `json:"channel"`
	CarpoolID uint   `json:"carpoolId,omitempty"`
	PeerID    uint   `json:"peerId,omitempty"`
}

// matches reports whether a delta is relevant to this subscription for the
// client identified by userID.
func (s *Subscription) matches(userID uint, d engine.Delta) bool {
	switch s.Channel {
	case ChannelCarpools:
		switch d.Type {
		case engine.DeltaCarpoolCreated, engine.DeltaCarpoolUpdated, engine.DeltaCarpoolDeleted:
			return true
		}
	case ChannelRiderBookings:
		switch d.Type {
		case engine.DeltaBookingCreated, engine.DeltaBookingUpdated, engine.DeltaBookingRemoved, engine.DeltaRideRemoved:
			return d.RiderID == userID
		}
	case ChannelCarpoolBookings:
		switch d.Type {
		case engine.DeltaBookingCreated, engine.DeltaBookingUpdated, engine.DeltaBookingRemoved, engine.DeltaCarpoolDeleted:
			return d.CarpoolID == s.CarpoolID
		}
	case ChannelMessages:
		if d.Type != engine.DeltaMessagePosted || d.CarpoolID != s.CarpoolID {
			return false
		}
		return (d.SenderID == userID && d.ReceiverID == s.PeerID) ||
			(d.SenderID == s.PeerID && d.ReceiverID == userID)
	}
	return false
}

// Client represents a WebSocket client
type Client struct {
	ID   uint
	Conn *websocket.Conn
	Send chan []byte
	Hub  *Hub

	mu   sync.Mutex
	subs map[string]*Subscription
}

// Hub maintains the set of active clients and fans committed deltas out to
// every subscription whose filter matches. Delivery is fire-and-forget:
// mutators never block on a slow client.
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan engine.Delta
	snapshots  SnapshotSource
	mutex      sync.RWMutex
}

// NewHub creates a new WebSocket hub backed by a snapshot source.
func NewHub(snapshots SnapshotSource) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan engine.Delta, 256),
		snapshots:  snapshots,
	}
}

// Run starts the hub
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true
			h.mutex.Unlock()
			log.Printf("Client %d connected", client.ID)

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.Send)
			}
			h.mutex.Unlock()
			log.Printf("Client %d disconnected", client.ID)

		case delta := <-h.broadcast:
			h.dispatch(delta)
		}
	}
}

// Publish enqueues a delta for fan-out. It never blocks the caller; if the
// hub itself is saturated the delta cannot be delivered, so every client is
// disconnected and picks the change up from its reconnect snapshot. A client
// that stays connected must see every delta its subscriptions match.
func (h *Hub) Publish(delta engine.Delta) {
	select {
	case h.broadcast <- delta:
	default:
		log.Printf("Warning: delta queue full, dropping %s for carpool %d and forcing resync", delta.Type, delta.CarpoolID)
		h.disconnectAll()
	}
}

func (h *Hub) dispatch(delta engine.Delta) {
	frame, err := json.Marshal(WebSocketMessage{Type: "delta", Data: delta})
	if err != nil {
		log.Printf("Error marshaling delta: %v", err)
		return
	}

	h.mutex.Lock()
	defer h.mutex.Unlock()

	for client := range h.clients {
		if !client.subscribedTo(delta) {
			continue
		}
		select {
		case client.Send <- frame:
		default:
			// A connected subscriber that misses a delta would stay stale
			// without knowing it. Drop the connection instead; the client
			// reconnects and resyncs from a fresh snapshot.
			log.Printf("Client %d too slow, disconnecting for resync", client.ID)
			close(client.Send)
			delete(h.clients, client)
		}
	}
}

// disconnectAll closes every client so each one resyncs via snapshot.
func (h *Hub) disconnectAll() {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	for client := range h.clients {
		close(client.Send)
		delete(h.clients, client)
	}
}

// GetConnectedClients returns the number of connected clients
func (h *Hub) GetConnectedClients() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// WebSocketMessage is the envelope for every frame in either direction.
type WebSocketMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// SubscribeRequest is the client-to-server control frame payload.
type SubscribeRequest struct {
	Channel   string `json:"channel"`
	CarpoolID uint   `json:"carpoolId"`
	PeerID    uint   `json:"peerId"`
	ID        string `json:"id"` // subscription id, for unsubscribe
}

// Snapshot is sent immediately after a successful subscribe and again on
// every resubscribe, carrying the full state matching the filter.
type Snapshot struct {
	SubscriptionID string      `json:"subscriptionId"`
	Channel        string      `json:"channel"`
	Items          interface{} `json:"items"`
}

// HandleWebSocket handles WebSocket connections
func HandleWebSocket(hub *Hub, w http.ResponseWriter, r *http.Request, userID uint) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		return
	}

	client := &Client{
		ID:   userID,
		Conn: conn,
		Send: make(chan []byte, 256),
		Hub:  hub,
		subs: make(map[string]*Subscription),
	}

	client.Hub.register <- client

	// Start goroutines for reading and writing
	go client.writePump()
	go client.readPump()
}

func (c *Client) subscribedTo(d engine.Delta) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, sub := range c.subs {
		if sub.matches(c.ID, d) {
			return true
		}
	}
	return false
}

// readPump pumps control frames from the websocket connection to the hub
func (c *Client) readPump() {
	defer func() {
		c.Hub.unregister <- c
		c.Conn.Close()
	}()

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}

		var wsMessage WebSocketMessage
		if err := json.Unmarshal(message, &wsMessage); err != nil {
			log.Printf("Error unmarshaling WebSocket message: %v", err)
			continue
		}

		switch wsMessage.Type {
		case "subscribe":
			c.handleSubscribe(wsMessage.Data)
		case "unsubscribe":
			c.handleUnsubscribe(wsMessage.Data)
		}
	}
}

// writePump pumps messages from the hub to the websocket connection
func (c *Client) writePump() {
	defer c.Conn.Close()

	for message := range c.Send {
		if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
			log.Printf("WebSocket write error: %v", err)
			return
		}
	}
	c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
}

// handleSubscribe validates the requested filter, registers it and sends the
// matching snapshot back on the client's own connection.
func (c *Client) handleSubscribe(data interface{}) {
	req, err := decodeSubscribe(data)
	if err != nil {
		c.sendError(err.Error())
		return
	}

	switch req.Channel {
	case ChannelCarpools, ChannelRiderBookings, ChannelCarpoolBookings, ChannelMessages:
	default:
		c.sendError("unknown channel: " + req.Channel)
		return
	}

	// The filter goes live before the snapshot is read. A delta committed
	// while the snapshot query runs then arrives as a duplicate of snapshot
	// state rather than falling into a gap the client can never detect.
	sub := &Subscription{
		ID:        uuid.NewString(),
		Channel:   req.Channel,
		CarpoolID: req.CarpoolID,
		PeerID:    req.PeerID,
	}
	c.mu.Lock()
	c.subs[sub.ID] = sub
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var items interface{}
	switch req.Channel {
	case ChannelCarpools:
		items, err = c.Hub.snapshots.ListCarpools(ctx, "")
	case ChannelRiderBookings:
		items, err = c.Hub.snapshots.RiderBookings(ctx, c.ID)
	case ChannelCarpoolBookings:
		var carpool *models.Carpool
		carpool, err = c.Hub.snapshots.GetCarpool(ctx, req.CarpoolID)
		if err == nil && carpool.DriverID != c.ID {
			c.dropSub(sub.ID)
			c.sendError("not the driver of this carpool")
			return
		}
		if err == nil {
			items, err = c.Hub.snapshots.CarpoolBookings(ctx, req.CarpoolID)
		}
	case ChannelMessages:
		items, err = c.Hub.snapshots.ListMessages(ctx, req.CarpoolID, c.ID, req.PeerID)
	}
	if err != nil {
		c.dropSub(sub.ID)
		c.sendError("snapshot failed: " + err.Error())
		return
	}

	frame, err := json.Marshal(WebSocketMessage{Type: "snapshot", Data: Snapshot{
		SubscriptionID: sub.ID,
		Channel:        sub.Channel,
		Items:          items,
	}})
	if err != nil {
		log.Printf("Error marshaling snapshot: %v", err)
		return
	}
	select {
	case c.Send <- frame:
	default:
		log.Printf("Warning: Could not send snapshot to client %d (channel full)", c.ID)
	}
}

func (c *Client) handleUnsubscribe(data interface{}) {
	req, err := decodeSubscribe(data)
	if err != nil || req.ID == "" {
		c.sendError("unsubscribe requires a subscription id")
		return
	}
	c.dropSub(req.ID)
}

func (c *Client) dropSub(id string) {
	c.mu.Lock()
	delete(c.subs, id)
	c.mu.Unlock()
}

func (c *Client) sendError(msg string) {
	frame, err := json.Marshal(WebSocketMessage{Type: "error", Data: msg})
	if err != nil {
		return
	}
	select {
	case c.Send <- frame:
	default:
	}
}

func decodeSubscribe(data interface{}) (*SubscribeRequest, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	var req SubscribeRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, err
	}
	return &req, nil
}
