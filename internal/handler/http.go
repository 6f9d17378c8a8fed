package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/tournament-engine/internal/domain"
	"github.com/tournament-engine/internal/tournament"
	"github.com/tournament-engine/internal/websocket"
)

const (
	defaultLeaderboardLimit = 10
	maxLeaderboardLimit     = 1000
	maxEventBatch           = 1000
)

// Tournaments is the administrative surface of the tournament manager
type Tournaments interface {
	List(ctx context.Context) ([]tournament.Info, error)
	Get(ctx context.Context, id string) (*tournament.Info, error)
	Leaderboard(ctx context.Context, id string, limit int) ([]domain.Standing, int, error)
	PlayerStanding(ctx context.Context, id string, player uuid.UUID) (*domain.Standing, error)
	ForceUpdate(ctx context.Context) (int, error)
	Start(ctx context.Context, id string) error
	End(ctx context.Context, id string) error
	Clear(ctx context.Context, id string) error
	ClearPlayer(ctx context.Context, id string, player uuid.UUID) error
	ForceJoin(ctx context.Context, id string, player uuid.UUID) error
	ForceJoinAll(ctx context.Context, id string) (int, error)
	Join(ctx context.Context, id string, player uuid.UUID) error
	RandomStart(ctx context.Context) (string, error)
	Reload(ctx context.Context) error
	HandleEvents(ctx context.Context, events []domain.Event) error
}

// Handler provides HTTP handlers for the tournament admin API
type Handler struct {
	tournaments Tournaments
	hub         *websocket.Hub
	logger      *slog.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(tournaments Tournaments, hub *websocket.Hub, logger *slog.Logger) *Handler {
	return &Handler{
		tournaments: tournaments,
		hub:         hub,
		logger:      logger,
	}
}

// APIResponse represents a standard API response
type APIResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// LeaderboardResponse is a page of a tournament's cached ranking
type LeaderboardResponse struct {
	TournamentID string            `json:"tournament_id"`
	Standings    []domain.Standing `json:"standings"`
	Total        int               `json:"total"`
}

// Router creates and configures the HTTP router
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(corsMiddleware)

	// Health check
	r.Get("/health", h.HealthCheck)

	// WebSocket endpoint
	r.Get("/ws", h.HandleWebSocket)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/events", h.SubmitEvents)
		r.Post("/reload", h.Reload)
		r.Get("/ws/stats", h.GetWebSocketStats)

		r.Route("/tournaments", func(r chi.Router) {
			r.Get("/", h.ListTournaments)
			r.Post("/update", h.ForceUpdate)
			r.Post("/random", h.RandomStart)

			r.Route("/{tournamentID}", func(r chi.Router) {
				r.Get("/", h.GetTournament)
				r.Get("/leaderboard", h.GetLeaderboard)
				r.Get("/players/{playerID}", h.GetPlayerStanding)
				r.Post("/players/{playerID}/join", h.Join)
				r.Post("/start", h.Start)
				r.Post("/end", h.End)
				r.Post("/clear", h.Clear)
				r.Post("/clear/{playerID}", h.ClearPlayer)
				r.Post("/join/{playerID}", h.ForceJoin)
			})
		})
	})

	return r
}

// corsMiddleware adds CORS headers
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-Request-ID")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeSuccess writes a successful JSON response
func (h *Handler) writeSuccess(w http.ResponseWriter, data any) {
	h.writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    data,
	})
}

// writeError writes an error JSON response
func (h *Handler) writeError(w http.ResponseWriter, status int, err error) {
	h.writeJSON(w, status, APIResponse{
		Success: false,
		Error:   err.Error(),
	})
}

// writeManagerError maps a manager error onto a status code. Unexpected
// errors are logged and hidden behind ErrInternalError.
func (h *Handler) writeManagerError(w http.ResponseWriter, op string, err error) {
	switch {
	case domain.IsNotFoundError(err):
		h.writeError(w, http.StatusNotFound, err)
	case domain.IsConflictError(err):
		h.writeError(w, http.StatusConflict, err)
	case errors.Is(err, domain.ErrNoPermission):
		h.writeError(w, http.StatusForbidden, err)
	case errors.Is(err, domain.ErrInsufficientFunds):
		h.writeError(w, http.StatusPaymentRequired, err)
	case errors.Is(err, domain.ErrInvalidRequest), errors.Is(err, domain.ErrInvalidDefinition):
		h.writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, domain.ErrManagerStopped), errors.Is(err, context.DeadlineExceeded):
		h.writeError(w, http.StatusServiceUnavailable, domain.ErrManagerStopped)
	default:
		h.logger.Error("request failed", "operation", op, "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
	}
}

func tournamentID(r *http.Request) string {
	return strings.TrimSpace(chi.URLParam(r, "tournamentID"))
}

func playerID(r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "playerID"))
	if err != nil || id == uuid.Nil {
		return uuid.Nil, false
	}
	return id, true
}

// HandleWebSocket handles WebSocket upgrade requests
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	websocket.ServeWs(h.hub, h.logger, w, r)
}

// GetWebSocketStats returns WebSocket connection statistics
func (h *Handler) GetWebSocketStats(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]any{
		"total_connections": h.hub.TotalConnections(),
	})
}

// HealthCheck returns service health status
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]string{"status": "healthy"})
}

// SubmitEvents feeds a batch of game events to the manager. It serves
// hosts that do not publish to Kafka.
func (h *Handler) SubmitEvents(w http.ResponseWriter, r *http.Request) {
	var events []domain.Event
	if err := json.NewDecoder(r.Body).Decode(&events); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}
	if len(events) == 0 || len(events) > maxEventBatch {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}
	for _, ev := range events {
		if !ev.Valid() {
			h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
			return
		}
	}

	if err := h.tournaments.HandleEvents(r.Context(), events); err != nil {
		h.writeManagerError(w, "submit events", err)
		return
	}

	h.writeSuccess(w, map[string]any{
		"status":   "accepted",
		"received": len(events),
	})
}

// ListTournaments returns every active tournament
func (h *Handler) ListTournaments(w http.ResponseWriter, r *http.Request) {
	infos, err := h.tournaments.List(r.Context())
	if err != nil {
		h.writeManagerError(w, "list tournaments", err)
		return
	}
	if infos == nil {
		infos = []tournament.Info{}
	}
	h.writeSuccess(w, infos)
}

// GetTournament returns one tournament's info
func (h *Handler) GetTournament(w http.ResponseWriter, r *http.Request) {
	info, err := h.tournaments.Get(r.Context(), tournamentID(r))
	if err != nil {
		h.writeManagerError(w, "get tournament", err)
		return
	}
	h.writeSuccess(w, info)
}

// GetLeaderboard returns the top of a tournament's cached ranking
func (h *Handler) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit := defaultLeaderboardLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
			return
		}
		limit = min(n, maxLeaderboardLimit)
	}

	id := tournamentID(r)
	standings, total, err := h.tournaments.Leaderboard(r.Context(), id, limit)
	if err != nil {
		h.writeManagerError(w, "get leaderboard", err)
		return
	}
	if standings == nil {
		standings = []domain.Standing{}
	}

	h.writeSuccess(w, LeaderboardResponse{
		TournamentID: id,
		Standings:    standings,
		Total:        total,
	})
}

// GetPlayerStanding returns a player's position and score
func (h *Handler) GetPlayerStanding(w http.ResponseWriter, r *http.Request) {
	player, ok := playerID(r)
	if !ok {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	standing, err := h.tournaments.PlayerStanding(r.Context(), tournamentID(r), player)
	if err != nil {
		h.writeManagerError(w, "get player standing", err)
		return
	}
	h.writeSuccess(w, standing)
}

// ForceUpdate runs an update pass and refreshes every ranking
func (h *Handler) ForceUpdate(w http.ResponseWriter, r *http.Request) {
	n, err := h.tournaments.ForceUpdate(r.Context())
	if err != nil {
		h.writeManagerError(w, "force update", err)
		return
	}
	h.writeSuccess(w, map[string]any{"status": "updated", "updated": n})
}

// RandomStart activates a random pooled tournament
func (h *Handler) RandomStart(w http.ResponseWriter, r *http.Request) {
	id, err := h.tournaments.RandomStart(r.Context())
	if err != nil {
		h.writeManagerError(w, "random start", err)
		return
	}
	h.writeSuccess(w, map[string]string{"status": "started", "tournament_id": id})
}

// Reload re-reads every tournament definition
func (h *Handler) Reload(w http.ResponseWriter, r *http.Request) {
	if err := h.tournaments.Reload(r.Context()); err != nil {
		h.writeManagerError(w, "reload", err)
		return
	}
	h.writeSuccess(w, map[string]string{"status": "reloaded"})
}

// Start forces a tournament active
func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	if err := h.tournaments.Start(r.Context(), tournamentID(r)); err != nil {
		h.writeManagerError(w, "start tournament", err)
		return
	}
	h.writeSuccess(w, map[string]string{"status": "started"})
}

// End forces a tournament to end
func (h *Handler) End(w http.ResponseWriter, r *http.Request) {
	if err := h.tournaments.End(r.Context(), tournamentID(r)); err != nil {
		h.writeManagerError(w, "end tournament", err)
		return
	}
	h.writeSuccess(w, map[string]string{"status": "ended"})
}

// Clear removes every participant and stored score
func (h *Handler) Clear(w http.ResponseWriter, r *http.Request) {
	if err := h.tournaments.Clear(r.Context(), tournamentID(r)); err != nil {
		h.writeManagerError(w, "clear tournament", err)
		return
	}
	h.writeSuccess(w, map[string]string{"status": "cleared"})
}

// ClearPlayer removes one player's score
func (h *Handler) ClearPlayer(w http.ResponseWriter, r *http.Request) {
	player, ok := playerID(r)
	if !ok {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}
	if err := h.tournaments.ClearPlayer(r.Context(), tournamentID(r), player); err != nil {
		h.writeManagerError(w, "clear player", err)
		return
	}
	h.writeSuccess(w, map[string]string{"status": "cleared"})
}

// ForceJoin enrolls an online player, or every online player for "all"
func (h *Handler) ForceJoin(w http.ResponseWriter, r *http.Request) {
	id := tournamentID(r)
	if strings.EqualFold(chi.URLParam(r, "playerID"), "all") {
		n, err := h.tournaments.ForceJoinAll(r.Context(), id)
		if err != nil {
			h.writeManagerError(w, "force join all", err)
			return
		}
		h.writeSuccess(w, map[string]any{"status": "joined", "joined": n})
		return
	}

	player, ok := playerID(r)
	if !ok {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}
	if err := h.tournaments.ForceJoin(r.Context(), id, player); err != nil {
		h.writeManagerError(w, "force join", err)
		return
	}
	h.writeSuccess(w, map[string]any{"status": "joined", "joined": 1})
}

// Join is a player's own enrollment, subject to permission and cost
func (h *Handler) Join(w http.ResponseWriter, r *http.Request) {
	player, ok := playerID(r)
	if !ok {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}
	if err := h.tournaments.Join(r.Context(), tournamentID(r), player); err != nil {
		h.writeManagerError(w, "join", err)
		return
	}
	h.writeSuccess(w, map[string]string{"status": "joined"})
}
