// Cordon - Threat Correlation Engine for Video Analytics
// Copyright 2026 Cordon Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cordon-watch/cordon

// Package api serves the diagnostic HTTP surface: status and alert
// queries, health, metrics, and a websocket feed of live alerts.
package api

import (
	"context"
	"sync"

	"github.com/cordon-watch/cordon/internal/logging"
	"github.com/cordon-watch/cordon/internal/pipeline"
	"github.com/cordon-watch/cordon/internal/synthesis"
)

// Websocket message types.
const (
	MessageTypeThreatAlert  = "threat_alert"
	MessageTypeStatusUpdate = "status_update"
	MessageTypePing         = "ping"
	MessageTypePong         = "pong"
)

// Message is the websocket envelope.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Hub maintains the set of connected websocket clients and fans
// messages out to them.
type Hub struct {
	mu         sync.RWMutex
	clients    map[*Client]bool
	broadcast  chan Message
	register   chan *Client
	unregister chan *Client
}

// NewHub creates an idle hub; start it with Run.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan Message, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// Run pumps the hub until the context is cancelled, then closes every
// client. Lifecycle events take priority over broadcasts so client
// state is settled before messages fan out.
func (h *Hub) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return ctx.Err()
		default:
		}

		select {
		case client := <-h.register:
			h.add(client)
			continue
		case client := <-h.unregister:
			h.remove(client)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			h.closeAll()
			return ctx.Err()
		case client := <-h.register:
			h.add(client)
		case client := <-h.unregister:
			h.remove(client)
		case msg := <-h.broadcast:
			h.send(msg)
		}
	}
}

func (h *Hub) add(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	total := len(h.clients)
	h.mu.Unlock()
	logging.Info().Int("total_clients", total).Msg("Websocket client connected")
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
	total := len(h.clients)
	h.mu.Unlock()
	logging.Info().Int("total_clients", total).Msg("Websocket client disconnected")
}

// send fans a message out, dropping it for clients whose buffers are
// full rather than blocking the hub.
func (h *Hub) send(msg Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		select {
		case client.send <- msg:
		default:
			logging.Warn().Uint64("client_id", client.id).Msg("Websocket client buffer full, dropping message")
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		close(client.send)
		delete(h.clients, client)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// BroadcastAlert pushes a synthesized alert to every client.
func (h *Hub) BroadcastAlert(alert *synthesis.Alert) {
	select {
	case h.broadcast <- Message{Type: MessageTypeThreatAlert, Data: alert}:
	default:
		logging.Warn().Msg("Hub broadcast buffer full, dropping alert message")
	}
}

// BroadcastStatus pushes a status snapshot to every client.
func (h *Hub) BroadcastStatus(statuses []pipeline.ObjectStatus) {
	select {
	case h.broadcast <- Message{Type: MessageTypeStatusUpdate, Data: statuses}:
	default:
	}
}

// Notify implements pipeline.Notifier so the hub can sit directly in
// the pipeline's notifier fan-out.
func (h *Hub) Notify(_ context.Context, alert *synthesis.Alert) error {
	h.BroadcastAlert(alert)
	return nil
}
