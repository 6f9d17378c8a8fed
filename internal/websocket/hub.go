package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/tournament-engine/internal/domain"
)

// Message types
const (
	MessageTypeLeaderboardUpdate = "leaderboard_update"
	MessageTypeSubscribe         = "subscribe"
	MessageTypeUnsubscribe       = "unsubscribe"
	MessageTypeSubscribed        = "subscribed"
	MessageTypeUnsubscribed      = "unsubscribed"
	MessageTypePing              = "ping"
	MessageTypePong              = "pong"
	MessageTypeError             = "error"
)

// Message represents a WebSocket message
type Message struct {
	Type         string    `json:"type"`
	TournamentID string    `json:"tournament_id,omitempty"`
	Data         any       `json:"data,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// LeaderboardUpdate is the cached top of a tournament after a refresh
type LeaderboardUpdate struct {
	TournamentID string            `json:"tournament_id"`
	Standings    []domain.Standing `json:"standings"`
	TotalPlayers int               `json:"total_players"`
}

// Hub tracks connected clients and their tournament subscriptions
type Hub struct {
	// Subscribed clients by lower-cased tournament id
	clients map[string]map[*Client]bool

	// All connected clients
	allClients map[*Client]bool

	register    chan *Client
	unregister  chan *Client
	broadcast   chan *Message
	subscribe   chan *subscriptionRequest
	unsubscribe chan *subscriptionRequest

	mu     sync.RWMutex
	logger *slog.Logger
	done   chan struct{}
	now    func() time.Time
}

type subscriptionRequest struct {
	client       *Client
	tournamentID string
}

// NewHub creates a new Hub
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients:     make(map[string]map[*Client]bool),
		allClients:  make(map[*Client]bool),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		broadcast:   make(chan *Message, 256),
		subscribe:   make(chan *subscriptionRequest, 64),
		unsubscribe: make(chan *subscriptionRequest, 64),
		logger:      logger,
		done:        make(chan struct{}),
		now:         time.Now,
	}
}

// Run serves hub requests until ctx is cancelled, then disconnects
// every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	h.logger.Info("WebSocket hub started")

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			h.logger.Info("WebSocket hub stopped")
			return

		case client := <-h.register:
			h.mu.Lock()
			h.allClients[client] = true
			h.mu.Unlock()
			h.logger.Debug("client registered", "client_id", client.id)

		case client := <-h.unregister:
			h.mu.Lock()
			h.drop(client)
			h.mu.Unlock()
			h.logger.Debug("client unregistered", "client_id", client.id)

		case req := <-h.subscribe:
			h.mu.Lock()
			if _, ok := h.allClients[req.client]; ok {
				if _, ok := h.clients[req.tournamentID]; !ok {
					h.clients[req.tournamentID] = make(map[*Client]bool)
				}
				h.clients[req.tournamentID][req.client] = true
			}
			h.mu.Unlock()
			h.logger.Debug("client subscribed", "client_id", req.client.id, "tournament_id", req.tournamentID)

		case req := <-h.unsubscribe:
			h.mu.Lock()
			h.removeSubscription(req.client, req.tournamentID)
			h.mu.Unlock()
			h.logger.Debug("client unsubscribed", "client_id", req.client.id, "tournament_id", req.tournamentID)

		case message := <-h.broadcast:
			h.broadcastMessage(message)
		}
	}
}

// drop forgets a client and closes its send channel. Callers hold mu.
func (h *Hub) drop(client *Client) {
	if _, ok := h.allClients[client]; !ok {
		return
	}
	delete(h.allClients, client)
	for id := range h.clients {
		h.removeSubscription(client, id)
	}
	close(client.send)
}

func (h *Hub) removeSubscription(client *Client, id string) {
	clients, ok := h.clients[id]
	if !ok {
		return
	}
	delete(clients, client)
	if len(clients) == 0 {
		delete(h.clients, id)
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.allClients {
		h.drop(client)
	}
}

// broadcastMessage sends a message to the tournament's subscribers
func (h *Hub) broadcastMessage(message *Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	clients, ok := h.clients[tournamentKey(message.TournamentID)]
	if !ok {
		return
	}

	data, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("failed to marshal message", "error", err)
		return
	}
	for client := range clients {
		select {
		case client.send <- data:
		default:
			// Client's buffer is full, skip
			h.logger.Warn("client buffer full, skipping", "client_id", client.id)
		}
	}
}

// PublishLeaderboard queues a leaderboard update for the tournament's
// subscribers. It never blocks; updates are dropped when the hub is
// saturated.
func (h *Hub) PublishLeaderboard(tournamentID string, standings []domain.Standing, total int) {
	message := &Message{
		Type:         MessageTypeLeaderboardUpdate,
		TournamentID: tournamentID,
		Data: LeaderboardUpdate{
			TournamentID: tournamentID,
			Standings:    standings,
			TotalPlayers: total,
		},
		Timestamp: h.now(),
	}

	select {
	case h.broadcast <- message:
	default:
		h.logger.Warn("broadcast channel full, dropping message", "tournament_id", tournamentID)
	}
}

// Register adds a client to the hub. It reports false once the hub has
// stopped.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

// Unregister removes a client from the hub
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Subscribe adds a client to a tournament's updates
func (h *Hub) Subscribe(client *Client, tournamentID string) {
	select {
	case h.subscribe <- &subscriptionRequest{client: client, tournamentID: tournamentKey(tournamentID)}:
	case <-h.done:
	}
}

// Unsubscribe removes a client from a tournament's updates
func (h *Hub) Unsubscribe(client *Client, tournamentID string) {
	select {
	case h.unsubscribe <- &subscriptionRequest{client: client, tournamentID: tournamentKey(tournamentID)}:
	case <-h.done:
	}
}

// SubscriberCount returns the number of subscribers for a tournament
func (h *Hub) SubscriberCount(tournamentID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[tournamentKey(tournamentID)])
}

// TotalConnections returns the total number of connected clients
func (h *Hub) TotalConnections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.allClients)
}

func tournamentKey(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}
