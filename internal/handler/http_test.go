package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/tournament-engine/internal/domain"
	"github.com/tournament-engine/internal/tournament"
	"github.com/tournament-engine/internal/websocket"
)

type fakeTournaments struct {
	infos     map[string]tournament.Info
	standings []domain.Standing
	events    []domain.Event
	joined    []uuid.UUID
	joinErr   error
	startErr  error
	limit     int
	joinedAll bool
}

func (f *fakeTournaments) lookup(id string) (tournament.Info, error) {
	info, ok := f.infos[strings.ToLower(id)]
	if !ok {
		return tournament.Info{}, domain.ErrTournamentNotFound
	}
	return info, nil
}

func (f *fakeTournaments) List(context.Context) ([]tournament.Info, error) {
	var out []tournament.Info
	for _, info := range f.infos {
		out = append(out, info)
	}
	return out, nil
}

func (f *fakeTournaments) Get(_ context.Context, id string) (*tournament.Info, error) {
	info, err := f.lookup(id)
	if err != nil {
		return nil, err
	}
	return &info, nil
}

func (f *fakeTournaments) Leaderboard(_ context.Context, id string, limit int) ([]domain.Standing, int, error) {
	if _, err := f.lookup(id); err != nil {
		return nil, 0, err
	}
	f.limit = limit
	return f.standings, len(f.standings), nil
}

func (f *fakeTournaments) PlayerStanding(_ context.Context, id string, player uuid.UUID) (*domain.Standing, error) {
	if _, err := f.lookup(id); err != nil {
		return nil, err
	}
	for _, s := range f.standings {
		if s.PlayerID == player {
			return &s, nil
		}
	}
	return nil, domain.ErrPlayerNotFound
}

func (f *fakeTournaments) ForceUpdate(context.Context) (int, error) { return len(f.infos), nil }

func (f *fakeTournaments) Start(_ context.Context, id string) error {
	if _, err := f.lookup(id); err != nil {
		return err
	}
	return f.startErr
}

func (f *fakeTournaments) End(_ context.Context, id string) error {
	_, err := f.lookup(id)
	return err
}

func (f *fakeTournaments) Clear(_ context.Context, id string) error {
	_, err := f.lookup(id)
	return err
}

func (f *fakeTournaments) ClearPlayer(_ context.Context, id string, _ uuid.UUID) error {
	_, err := f.lookup(id)
	return err
}

func (f *fakeTournaments) ForceJoin(_ context.Context, id string, player uuid.UUID) error {
	if _, err := f.lookup(id); err != nil {
		return err
	}
	f.joined = append(f.joined, player)
	return nil
}

func (f *fakeTournaments) ForceJoinAll(_ context.Context, id string) (int, error) {
	if _, err := f.lookup(id); err != nil {
		return 0, err
	}
	f.joinedAll = true
	return 3, nil
}

func (f *fakeTournaments) Join(_ context.Context, id string, _ uuid.UUID) error {
	if _, err := f.lookup(id); err != nil {
		return err
	}
	return f.joinErr
}

func (f *fakeTournaments) RandomStart(context.Context) (string, error) {
	return "", domain.ErrNoRandomTournaments
}

func (f *fakeTournaments) Reload(context.Context) error { return nil }

func (f *fakeTournaments) HandleEvents(_ context.Context, events []domain.Event) error {
	f.events = append(f.events, events...)
	return nil
}

func newTestServer(t *testing.T) (*httptest.Server, *fakeTournaments) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	fake := &fakeTournaments{
		infos: map[string]tournament.Info{
			"daily": {Identifier: "Daily", Status: domain.StatusActive, Objective: "BLOCK_BREAK"},
		},
		standings: []domain.Standing{
			{Position: 1, PlayerID: uuid.MustParse("11111111-1111-1111-1111-111111111111"), PlayerName: "Steve", Score: 40},
			{Position: 2, PlayerID: uuid.MustParse("22222222-2222-2222-2222-222222222222"), PlayerName: "Alex", Score: 12},
		},
	}

	hub := websocket.NewHub(logger)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	srv := httptest.NewServer(NewHandler(fake, hub, logger).Router())
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return srv, fake
}

func doRequest(t *testing.T, method, url, body string) (int, APIResponse) {
	t.Helper()

	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	var out APIResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return resp.StatusCode, out
}

func TestHealthCheck(t *testing.T) {
	srv, _ := newTestServer(t)

	status, resp := doRequest(t, http.MethodGet, srv.URL+"/health", "")
	if status != http.StatusOK || !resp.Success {
		t.Fatalf("expected healthy response, got %d %+v", status, resp)
	}
}

func TestGetTournament(t *testing.T) {
	srv, _ := newTestServer(t)

	status, resp := doRequest(t, http.MethodGet, srv.URL+"/api/v1/tournaments/DAILY", "")
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	data, _ := resp.Data.(map[string]any)
	if data["identifier"] != "Daily" {
		t.Fatalf("expected identifier Daily, got %v", data["identifier"])
	}

	status, resp = doRequest(t, http.MethodGet, srv.URL+"/api/v1/tournaments/weekly", "")
	if status != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", status)
	}
	if resp.Error != domain.ErrTournamentNotFound.Error() {
		t.Fatalf("expected not found error, got %q", resp.Error)
	}
}

func TestGetLeaderboard(t *testing.T) {
	srv, fake := newTestServer(t)

	status, resp := doRequest(t, http.MethodGet, srv.URL+"/api/v1/tournaments/daily/leaderboard", "")
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	if fake.limit != defaultLeaderboardLimit {
		t.Fatalf("expected default limit %d, got %d", defaultLeaderboardLimit, fake.limit)
	}
	data, _ := resp.Data.(map[string]any)
	if total, _ := data["total"].(float64); total != 2 {
		t.Fatalf("expected total 2, got %v", data["total"])
	}

	doRequest(t, http.MethodGet, srv.URL+"/api/v1/tournaments/daily/leaderboard?limit=5000", "")
	if fake.limit != maxLeaderboardLimit {
		t.Fatalf("expected limit capped at %d, got %d", maxLeaderboardLimit, fake.limit)
	}

	status, _ = doRequest(t, http.MethodGet, srv.URL+"/api/v1/tournaments/daily/leaderboard?limit=abc", "")
	if status != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad limit, got %d", status)
	}
}

func TestGetPlayerStanding(t *testing.T) {
	srv, _ := newTestServer(t)

	status, resp := doRequest(t, http.MethodGet,
		srv.URL+"/api/v1/tournaments/daily/players/22222222-2222-2222-2222-222222222222", "")
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	data, _ := resp.Data.(map[string]any)
	if pos, _ := data["position"].(float64); pos != 2 {
		t.Fatalf("expected position 2, got %v", data["position"])
	}

	status, _ = doRequest(t, http.MethodGet, srv.URL+"/api/v1/tournaments/daily/players/not-a-uuid", "")
	if status != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", status)
	}

	status, _ = doRequest(t, http.MethodGet, srv.URL+"/api/v1/tournaments/daily/players/"+uuid.NewString(), "")
	if status != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", status)
	}
}

func TestAdminErrorMapping(t *testing.T) {
	srv, fake := newTestServer(t)

	fake.startErr = fmt.Errorf("starting Daily: %w", domain.ErrAlreadyActive)
	status, _ := doRequest(t, http.MethodPost, srv.URL+"/api/v1/tournaments/daily/start", "")
	if status != http.StatusConflict {
		t.Fatalf("expected 409, got %d", status)
	}

	status, _ = doRequest(t, http.MethodPost, srv.URL+"/api/v1/tournaments/random", "")
	if status != http.StatusConflict {
		t.Fatalf("expected 409 with no random tournaments, got %d", status)
	}

	player := uuid.NewString()
	fake.joinErr = domain.ErrNoPermission
	status, _ = doRequest(t, http.MethodPost, srv.URL+"/api/v1/tournaments/daily/players/"+player+"/join", "")
	if status != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", status)
	}

	fake.joinErr = fmt.Errorf("%w: %w", domain.ErrInsufficientFunds, fmt.Errorf("balance 0"))
	status, _ = doRequest(t, http.MethodPost, srv.URL+"/api/v1/tournaments/daily/players/"+player+"/join", "")
	if status != http.StatusPaymentRequired {
		t.Fatalf("expected 402, got %d", status)
	}

	fake.joinErr = fmt.Errorf("withdraw: %w", io.ErrUnexpectedEOF)
	status, resp := doRequest(t, http.MethodPost, srv.URL+"/api/v1/tournaments/daily/players/"+player+"/join", "")
	if status != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", status)
	}
	if resp.Error != domain.ErrInternalError.Error() {
		t.Fatalf("expected internal error to be masked, got %q", resp.Error)
	}
}

func TestForceJoin(t *testing.T) {
	srv, fake := newTestServer(t)

	player := uuid.New()
	status, _ := doRequest(t, http.MethodPost, srv.URL+"/api/v1/tournaments/daily/join/"+player.String(), "")
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	if len(fake.joined) != 1 || fake.joined[0] != player {
		t.Fatalf("expected %s force joined, got %v", player, fake.joined)
	}

	status, resp := doRequest(t, http.MethodPost, srv.URL+"/api/v1/tournaments/daily/join/ALL", "")
	if status != http.StatusOK || !fake.joinedAll {
		t.Fatalf("expected everyone joined, got %d", status)
	}
	data, _ := resp.Data.(map[string]any)
	if joined, _ := data["joined"].(float64); joined != 3 {
		t.Fatalf("expected 3 joined, got %v", data["joined"])
	}
}

func TestSubmitEvents(t *testing.T) {
	srv, fake := newTestServer(t)

	body := `[{"kind":"block_break","player":{"id":"11111111-1111-1111-1111-111111111111","name":"Steve"},"block":"STONE"}]`
	status, _ := doRequest(t, http.MethodPost, srv.URL+"/api/v1/events", body)
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	if len(fake.events) != 1 {
		t.Fatalf("expected 1 event forwarded, got %d", len(fake.events))
	}

	status, _ = doRequest(t, http.MethodPost, srv.URL+"/api/v1/events", `{"broken"`)
	if status != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed body, got %d", status)
	}

	status, _ = doRequest(t, http.MethodPost, srv.URL+"/api/v1/events", `[{"kind":"block_break"}]`)
	if status != http.StatusBadRequest {
		t.Fatalf("expected 400 for event without player, got %d", status)
	}
	if len(fake.events) != 1 {
		t.Fatalf("expected rejected batch not to be forwarded, got %d events", len(fake.events))
	}

	status, _ = doRequest(t, http.MethodPost, srv.URL+"/api/v1/events", `[]`)
	if status != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty batch, got %d", status)
	}
}
