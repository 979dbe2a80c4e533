// Package ws – Hub
//
// Live event fan-out for dealer dashboards. Agents open one WebSocket per
// configuration and receive session, message, and handoff events as they
// happen. The hub owns all subscription state on a single goroutine; the
// pipeline publishes through Notify, which never blocks: when the hub is
// saturated the event is dropped, because the dashboard can always re-read
// the conversation over REST.
package ws

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"
)

// Envelope is the wire form of one event.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type event struct {
	configID string
	data     []byte
}

// Hub routes events to the clients subscribed to each configuration.
type Hub struct {
	log zerolog.Logger

	register   chan *Client
	unregister chan *Client
	events     chan event

	// done is closed when Run exits, so registration and removal cannot
	// block against a hub that no longer drains its channels.
	done chan struct{}

	// clients is only touched from Run.
	clients map[string]map[*Client]bool
}

// NewHub constructs a Hub. Call Run before registering clients.
func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		log:        log,
		register:   make(chan *Client),
		unregister: make(chan *Client),
		events:     make(chan event, 256),
		done:       make(chan struct{}),
		clients:    make(map[string]map[*Client]bool),
	}
}

// Run processes registrations and event delivery until ctx is done, then
// closes every client send channel.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for _, set := range h.clients {
				for c := range set {
					close(c.send)
				}
			}
			h.clients = make(map[string]map[*Client]bool)
			return

		case c := <-h.register:
			set := h.clients[c.configID]
			if set == nil {
				set = make(map[*Client]bool)
				h.clients[c.configID] = set
			}
			set[c] = true
			h.log.Debug().Str("config_id", c.configID).Int("clients", len(set)).Msg("ws client registered")

		case c := <-h.unregister:
			if set, ok := h.clients[c.configID]; ok && set[c] {
				delete(set, c)
				close(c.send)
				if len(set) == 0 {
					delete(h.clients, c.configID)
				}
			}

		case ev := <-h.events:
			for c := range h.clients[ev.configID] {
				select {
				case c.send <- ev.data:
				default:
					// Slow consumer; drop it rather than stall the hub.
					delete(h.clients[ev.configID], c)
					close(c.send)
				}
			}
		}
	}
}

// add hands a client to Run, or closes its send channel when the hub has
// already shut down so the write pump still terminates.
func (h *Hub) add(c *Client) {
	select {
	case h.register <- c:
	case <-h.done:
		close(c.send)
	}
}

// remove detaches a client. After shutdown Run has already closed every send
// channel, so there is nothing left to do.
func (h *Hub) remove(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Notify implements the pipeline's notifier. It marshals the event and hands
// it to the hub without blocking the calling goroutine.
func (h *Hub) Notify(configID, eventType string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		h.log.Error().Err(err).Str("event", eventType).Msg("marshal ws event payload")
		return
	}
	data, err := json.Marshal(Envelope{Type: eventType, Payload: raw})
	if err != nil {
		h.log.Error().Err(err).Str("event", eventType).Msg("marshal ws envelope")
		return
	}
	select {
	case h.events <- event{configID: configID, data: data}:
	default:
		h.log.Warn().Str("event", eventType).Msg("ws event queue full, dropping")
	}
}
