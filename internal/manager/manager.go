// Package manager owns the set of known tournaments and coordinates the
// in-memory participant cache with the score store.
//
// Every tournament, registry map and online-player record is owned by a
// single loop goroutine (Run). Public methods marshal their work onto
// that loop and wait for it. Storage I/O runs on a bounded pool and
// reports back to the loop with a message, never by touching state
// directly.
package manager

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tournament-engine/internal/action"
	"github.com/tournament-engine/internal/config"
	"github.com/tournament-engine/internal/domain"
	"github.com/tournament-engine/internal/objective"
	"github.com/tournament-engine/internal/tournament"
)

// ScoreStore is the durable store for scores and deferred actions
type ScoreStore interface {
	CreateTable(ctx context.Context, tournamentID string) error
	GetScore(ctx context.Context, tournamentID string, player uuid.UUID) (int64, bool, error)
	SetScore(ctx context.Context, tournamentID string, player uuid.UUID, score int64) error
	DeleteScores(ctx context.Context, tournamentID string) error
	DeleteScore(ctx context.Context, tournamentID string, player uuid.UUID) error
	QueuedActions(ctx context.Context, player uuid.UUID) ([]string, error)
	QueueActions(ctx context.Context, player uuid.UUID, actions []string) error
	ClearQueuedActions(ctx context.Context, player uuid.UUID) error
	Close() error
}

// Publisher receives a tournament's top standings after each ranking refresh
type Publisher interface {
	PublishLeaderboard(tournamentID string, standings []domain.Standing, total int)
}

// Scheduler runs the periodic update task
type Scheduler interface {
	Start(task func(ctx context.Context)) error
	Stop() error
}

// Economy charges participation costs
type Economy interface {
	Withdraw(ctx context.Context, player domain.Player, amount float64) error
	Deposit(ctx context.Context, player domain.Player, amount float64) error
}

type session struct {
	player domain.Player
	gen    uint64
}

// Manager is the tournament registry
type Manager struct {
	store      ScoreStore
	objectives *objective.Registry
	builder    *tournament.Builder
	executor   action.Executor
	names      *PlayerNames
	publisher  Publisher
	scheduler  Scheduler
	economy    Economy
	io         *ioPool
	cfg        config.ManagerConfig
	dir        string
	logger     *slog.Logger
	now        func() time.Time
	pick       func(n int) int

	cmds chan func()
	done chan struct{}

	// Owned by the loop goroutine.
	loopCtx      context.Context
	active       map[string]*tournament.Tournament
	pool         map[string]*tournament.Definition
	online       map[uuid.UUID]*session
	provisioning map[string]int
	nextGen      uint64
}

// New creates a manager. Run must be started before any other method
// is called.
func New(
	store ScoreStore,
	objectives *objective.Registry,
	executor action.Executor,
	names *PlayerNames,
	cfg config.ManagerConfig,
	dir string,
	logger *slog.Logger,
) *Manager {
	if names == nil {
		names = NewPlayerNames()
	}
	return &Manager{
		store:        store,
		objectives:   objectives,
		builder:      tournament.NewBuilder(objectives),
		executor:     executor,
		names:        names,
		io:           newIOPool(cfg.IOWorkers),
		cfg:          cfg,
		dir:          dir,
		logger:       logger,
		now:          time.Now,
		pick:         rand.IntN,
		cmds:         make(chan func(), 256),
		done:         make(chan struct{}),
		loopCtx:      context.Background(),
		active:       make(map[string]*tournament.Tournament),
		pool:         make(map[string]*tournament.Definition),
		online:       make(map[uuid.UUID]*session),
		provisioning: make(map[string]int),
	}
}

// SetPublisher sets the live leaderboard publisher
func (m *Manager) SetPublisher(p Publisher) { m.publisher = p }

// SetScheduler sets the periodic update scheduler
func (m *Manager) SetScheduler(s Scheduler) { m.scheduler = s }

// SetEconomy enables participation costs
func (m *Manager) SetEconomy(e Economy) { m.economy = e }

// SetClock replaces the time source
func (m *Manager) SetClock(now func() time.Time) { m.now = now }

// Run drains the command queue until ctx is cancelled
func (m *Manager) Run(ctx context.Context) error {
	defer close(m.done)
	m.loopCtx = ctx

	m.logger.Info("tournament manager started")
	for {
		select {
		case <-ctx.Done():
			m.logger.Info("tournament manager stopped")
			return ctx.Err()
		case fn := <-m.cmds:
			fn()
		}
	}
}

// call runs fn on the loop and waits for its result
func (m *Manager) call(ctx context.Context, fn func() error) error {
	if m.cfg.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.cfg.CallTimeout)
		defer cancel()
	}

	errc := make(chan error, 1)
	select {
	case m.cmds <- func() { errc <- fn() }:
	case <-m.done:
		return domain.ErrManagerStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-errc:
		return err
	case <-m.done:
		return domain.ErrManagerStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// post delivers an I/O completion to the loop. Completions arriving
// after the loop stopped are dropped.
func (m *Manager) post(fn func()) {
	select {
	case m.cmds <- fn:
	case <-m.done:
	}
}

// lookup finds an active tournament by case-insensitive identifier
func (m *Manager) lookup(id string) (*tournament.Tournament, error) {
	t, ok := m.active[key(id)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrTournamentNotFound, id)
	}
	return t, nil
}

// sortedActive returns active tournaments ordered by identifier
func (m *Manager) sortedActive() []*tournament.Tournament {
	out := make([]*tournament.Tournament, 0, len(m.active))
	for _, t := range m.active {
		out = append(out, t)
	}
	slices.SortFunc(out, func(a, b *tournament.Tournament) int {
		return strings.Compare(key(a.Identifier()), key(b.Identifier()))
	})
	return out
}

// onlinePlayers returns a snapshot of connected players ordered by name
func (m *Manager) onlinePlayers() []domain.Player {
	out := make([]domain.Player, 0, len(m.online))
	for _, s := range m.online {
		out = append(out, s.player)
	}
	slices.SortFunc(out, func(a, b domain.Player) int {
		if c := strings.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return strings.Compare(a.ID.String(), b.ID.String())
	})
	return out
}

func (m *Manager) execute(player *domain.Player, items []string, t *tournament.Tournament) {
	if len(items) == 0 || m.executor == nil {
		return
	}
	req := action.Request{Player: player, Items: items, Tournament: t, Now: m.now()}
	if player == nil {
		req.Online = m.onlinePlayers()
	}
	m.executor.Execute(m.loopCtx, req)
}

func key(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

func playerKey(id uuid.UUID) string {
	return id.String()
}

// PlayerNames remembers the display names of every player seen. Reads
// and writes happen on the manager loop.
type PlayerNames struct {
	names map[uuid.UUID]string
}

// NewPlayerNames creates an empty name book
func NewPlayerNames() *PlayerNames {
	return &PlayerNames{names: make(map[uuid.UUID]string)}
}

// PlayerName implements placeholder.NameLookup
func (n *PlayerNames) PlayerName(id uuid.UUID) (string, bool) {
	name, ok := n.names[id]
	return name, ok
}

func (n *PlayerNames) remember(p domain.Player) {
	if p.Name != "" {
		n.names[p.ID] = p.Name
	}
}
