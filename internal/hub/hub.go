// Package hub pushes live station updates to local WebSocket clients
// (the device's browser view). It is a fan-out only surface: clients
// never mutate anything over the socket, all mutations go through the
// HTTP handlers.
package hub

import (
	"encoding/json"
	"time"

	"github.com/sirupsen/logrus"
)

// WebSocket timing and size limits shared by hub and client.
const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512
)

// Frame is the envelope for every message pushed to a client.
type Frame struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// HubMessage is the internal unit of work on the hub's channel.
type HubMessage struct {
	Type   string // "register", "unregister", "broadcast"
	Client *Client
	Raw    []byte
}

// SnapshotFunc produces the full current view sent to a client right
// after it registers, so a freshly opened browser tab starts from the
// same state the event frames then update.
type SnapshotFunc func() interface{}

// Hub maintains the set of connected local clients and serializes all
// register/unregister/broadcast work on one loop.
type Hub struct {
	messageChan chan HubMessage
	clients     map[*Client]bool
	snapshotFn  SnapshotFunc
}

// NewHub creates a Hub. snapshotFn may be nil, in which case new
// clients receive events only.
func NewHub(snapshotFn SnapshotFunc) *Hub {
	return &Hub{
		messageChan: make(chan HubMessage, 256),
		clients:     make(map[*Client]bool),
		snapshotFn:  snapshotFn,
	}
}

// Run is the hub loop. It should run in its own goroutine and exits
// when the hub channel is closed.
func (h *Hub) Run() {
	log := logrus.WithField("component", "hub")
	log.Info("Hub is running...")

	for msg := range h.messageChan {
		switch msg.Type {
		case "register":
			h.registerClient(msg.Client)
		case "unregister":
			h.unregisterClient(msg.Client)
		case "broadcast":
			h.broadcast(msg.Raw)
		default:
			log.Warnf("Hub: received unknown message type: %s", msg.Type)
		}
	}
	log.Info("Hub is shutting down...")
}

// BroadcastEvent fans a typed frame out to every connected client.
// Non-blocking: if the hub queue is full the frame is dropped, the
// next full snapshot heals any gap.
func (h *Hub) BroadcastEvent(eventType string, data interface{}) {
	raw, err := json.Marshal(Frame{Type: eventType, Data: data})
	if err != nil {
		logrus.WithError(err).WithField("event_type", eventType).Error("Failed to marshal hub frame")
		return
	}
	h.queue(HubMessage{Type: "broadcast", Raw: raw})
}

// queue enqueues hub work without blocking the caller.
func (h *Hub) queue(msg HubMessage) bool {
	select {
	case h.messageChan <- msg:
		return true
	default:
		logrus.WithField("message_type", msg.Type).Warn("Hub message channel full, dropping message")
		return false
	}
}

func (h *Hub) registerClient(client *Client) {
	if client == nil {
		logrus.Error("Hub: attempted to register a nil client")
		return
	}
	h.clients[client] = true
	logrus.WithField("remote", client.RemoteAddr()).Info("Local client registered to hub")

	if h.snapshotFn == nil {
		return
	}
	raw, err := json.Marshal(Frame{Type: "hello", Data: h.snapshotFn()})
	if err != nil {
		logrus.WithError(err).Error("Failed to marshal hello frame")
		return
	}
	select {
	case client.send <- raw:
	default:
		logrus.Warn("Client send channel full when sending hello frame")
	}
}

func (h *Hub) unregisterClient(client *Client) {
	if client == nil {
		logrus.Error("Hub: attempted to unregister a nil client")
		return
	}
	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	close(client.send)
	logrus.WithField("remote", client.RemoteAddr()).Info("Local client unregistered from hub")
}

func (h *Hub) broadcast(raw []byte) {
	for client := range h.clients {
		select {
		case client.send <- raw:
		default:
			// A slow client misses the frame; its pumps handle any
			// real disconnect.
			logrus.WithField("remote", client.RemoteAddr()).Warn("Client send channel full during broadcast, skipping")
		}
	}
}
