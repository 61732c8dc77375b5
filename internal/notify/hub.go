package notify

import (
	"context"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"
)

// Sink receives outbound payloads. A Publisher forwards them to Redis; the
// hub falls back to local-only delivery when no sink is attached.
type Sink interface {
	Publish(ctx context.Context, msg Message) error
}

// Hub tracks connected websocket clients and fans messages out to them. New
// clients receive a bounded replay of recent messages before live traffic.
type Hub struct {
	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte

	clients map[*Client]struct{}

	// history keys are an increasing sequence so Keys() yields messages
	// oldest first; the LRU bound evicts the oldest once full.
	history *lru.Cache[uint64, []byte]
	seq     uint64
	mu      sync.Mutex

	sink Sink
	log  *logrus.Logger
}

// NewHub creates a hub with a replay history of historySize messages.
func NewHub(historySize int, sink Sink, logger *logrus.Logger) (*Hub, error) {
	if historySize < 1 {
		historySize = 1
	}
	history, err := lru.New[uint64, []byte](historySize)
	if err != nil {
		return nil, err
	}
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, 64),
		clients:    make(map[*Client]struct{}),
		history:    history,
		sink:       sink,
		log:        logger,
	}, nil
}

// Run dispatches registrations and broadcasts until the context is
// cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			return

		case client := <-h.register:
			for _, payload := range h.replay() {
				client.send <- payload
			}
			h.clients[client] = struct{}{}
			h.log.WithField("clients", len(h.clients)).Debug("Websocket client connected")

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				h.log.WithField("clients", len(h.clients)).Debug("Websocket client disconnected")
			}

		case payload := <-h.broadcast:
			h.remember(payload)
			for client := range h.clients {
				select {
				case client.send <- payload:
				default:
					// Slow consumer, drop it.
					delete(h.clients, client)
					close(client.send)
				}
			}
		}
	}
}

// Broadcast queues a payload for delivery to every connected client.
func (h *Hub) Broadcast(payload []byte) {
	h.broadcast <- payload
}

// Submit routes a client-originated message. With a sink attached the message
// goes through Redis and comes back via the subscription, so every node
// delivers it; without one it is broadcast locally.
func (h *Hub) Submit(ctx context.Context, msg Message) error {
	if h.sink != nil {
		return h.sink.Publish(ctx, msg)
	}
	payload, err := msg.Encode()
	if err != nil {
		return err
	}
	h.Broadcast(payload)
	return nil
}

func (h *Hub) remember(payload []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seq++
	h.history.Add(h.seq, payload)
}

func (h *Hub) replay() [][]byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	keys := h.history.Keys()
	payloads := make([][]byte, 0, len(keys))
	for _, key := range keys {
		if payload, ok := h.history.Peek(key); ok {
			payloads = append(payloads, payload)
		}
	}
	return payloads
}
