package liveserver

import (
	"context"
	"sync/atomic"

	"market_client/internal/core"
)

const clientBuffer = 256

// replayOrder is the order retained messages are sent to a new client
var replayOrder = []string{TypeSessionState, TypeBalance, TypeListing, TypeWishList}

// Client is one websocket subscriber. Only the hub goroutine writes to or closes its outbox.
type Client struct {
	id     string
	outbox chan Message
}

func NewClient(id string) *Client {
	return &Client{id: id, outbox: make(chan Message, clientBuffer)}
}

// Outbox is drained by the connection's write pump; it is closed when the hub lets go of the client
func (c *Client) Outbox() <-chan Message {
	return c.outbox
}

func (c *Client) offer(msg Message) bool {
	select {
	case c.outbox <- msg:
		return true
	default:
		return false
	}
}

// Hub fans feed messages out to every connected client and remembers the latest message of
// each retained type so a new client starts from the current session picture.
type Hub struct {
	joins  chan *Client
	leaves chan *Client
	events chan Message
	done   chan struct{}
	count  atomic.Int64
	logger core.ILogger
}

// NewHub creates a hub. Run must be started before clients register.
func NewHub(logger core.ILogger) *Hub {
	return &Hub{
		joins:  make(chan *Client),
		leaves: make(chan *Client),
		events: make(chan Message, clientBuffer),
		done:   make(chan struct{}),
		logger: logger.WithField("component", "feed_hub"),
	}
}

// Run owns the client set until ctx is done, then closes every outbox.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)

	clients := make(map[*Client]struct{})
	latest := make(map[string]Message, len(replayOrder))

	drop := func(c *Client) bool {
		if _, ok := clients[c]; !ok {
			return false
		}
		delete(clients, c)
		close(c.outbox)
		h.count.Store(int64(len(clients)))
		return true
	}

	for {
		select {
		case <-ctx.Done():
			for c := range clients {
				drop(c)
			}
			return nil

		case c := <-h.joins:
			clients[c] = struct{}{}
			h.count.Store(int64(len(clients)))
			for _, kind := range replayOrder {
				if msg, ok := latest[kind]; ok {
					c.offer(msg)
				}
			}
			h.logger.Info("feed client joined", "client_id", c.id, "total_clients", len(clients))

		case c := <-h.leaves:
			if drop(c) {
				h.logger.Info("feed client left", "client_id", c.id, "total_clients", len(clients))
			}

		case msg := <-h.events:
			if retained(msg.Type) {
				latest[msg.Type] = msg
			}
			for c := range clients {
				if !c.offer(msg) {
					drop(c)
					h.logger.Warn("dropped slow feed client", "client_id", c.id)
				}
			}
		}
	}
}

// Register adds client. It reports false once the hub has stopped.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.joins <- client:
		return true
	case <-h.done:
		return false
	}
}

// Unregister closes client's outbox. Unknown or already dropped clients are ignored.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.leaves <- client:
	case <-h.done:
	}
}

// Broadcast queues msg for every client. The message is dropped when the queue is full.
func (h *Hub) Broadcast(msg Message) {
	select {
	case h.events <- msg:
	default:
		h.logger.Warn("feed queue full, dropping message", "type", msg.Type)
	}
}

func (h *Hub) ClientCount() int {
	return int(h.count.Load())
}
