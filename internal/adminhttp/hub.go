package adminhttp

import (
	"context"
	"sync"
)

// Hub is the pub/sub broker for /debug/ws clients. Registry mutations are
// serialized through Run's event loop via channels so no mutex is needed
// there; Publish takes a short read-lock to copy the target set before
// sending, so a slow client never blocks the event loop.
type Hub struct {
	clients map[*wsClient]struct{}
	topics  map[string]map[*wsClient]struct{}

	mu sync.RWMutex

	register   chan *wsClient
	unregister chan *wsClient
}

// NewHub returns an idle Hub. Call Run in its own goroutine to start it.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*wsClient]struct{}),
		topics:     make(map[string]map[*wsClient]struct{}),
		register:   make(chan *wsClient, 16),
		unregister: make(chan *wsClient, 16),
	}
}

// Run drives the hub's event loop until ctx is canceled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			for _, topic := range c.topics {
				if h.topics[topic] == nil {
					h.topics[topic] = make(map[*wsClient]struct{})
				}
				h.topics[topic][c] = struct{}{}
			}
			h.mu.Unlock()

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				for _, topic := range c.topics {
					delete(h.topics[topic], c)
					if len(h.topics[topic]) == 0 {
						delete(h.topics, topic)
					}
				}
				close(c.send)
			}
			h.mu.Unlock()

		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
			}
			h.clients = make(map[*wsClient]struct{})
			h.topics = make(map[string]map[*wsClient]struct{})
			h.mu.Unlock()
			return
		}
	}
}

// Publish sends msg to every client subscribed to topic. Safe to call from
// any goroutine (e.g. jobs.Manager's observer callbacks).
func (h *Hub) Publish(topic string, msg Message) {
	h.mu.RLock()
	targets := h.topics[topic]
	clients := make([]*wsClient, 0, len(targets))
	for c := range targets {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		select {
		case c.send <- msg:
		default:
			// c is too slow to keep up; drop it rather than stall every
			// other subscriber on this topic.
			h.unregister <- c
		}
	}
}

// ConnectedCount reports the number of currently connected clients.
func (h *Hub) ConnectedCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) subscribe(c *wsClient)   { h.register <- c }
func (h *Hub) unsubscribe(c *wsClient) { h.unregister <- c }
