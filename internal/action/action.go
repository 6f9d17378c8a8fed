// Package action runs configured action lines such as
// "[MESSAGE] Welcome {PLAYER}" against the game host.
package action

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tournament-engine/internal/domain"
	"github.com/tournament-engine/internal/placeholder"
	"github.com/tournament-engine/internal/tournament"
)

// Host delivers side effects to the game
type Host interface {
	SendMessage(ctx context.Context, player uuid.UUID, message string) error
	Broadcast(ctx context.Context, message string) error
	// RunCommand runs command as player, or as the console when player is nil.
	RunCommand(ctx context.Context, player *uuid.UUID, command string) error
	PlaySound(ctx context.Context, player uuid.UUID, sound string) error
}

// Request is one batch of action lines to run
type Request struct {
	Player     *domain.Player // nil runs the actions without a target
	Items      []string
	Tournament *tournament.Tournament
	Online     []domain.Player // fan-out targets for {PLAYER} lines without a target
	Now        time.Time
}

// Executor runs action lists
type Executor interface {
	Execute(ctx context.Context, req Request)
	// Render resolves placeholders for req.Player without running
	// anything. Used to store actions for later delivery.
	Render(req Request) []string
}

// handler performs one action; player may be nil
type handler func(ctx context.Context, host Host, player *domain.Player, payload string) error

// Action names
const (
	Message   = "MESSAGE"
	Broadcast = "BROADCAST"
	Command   = "COMMAND"
	Console   = "CONSOLE"
	Sound     = "SOUND"
)

// Dispatcher is the default Executor
type Dispatcher struct {
	host     Host
	resolver *placeholder.Resolver
	handlers map[string]handler
	logger   *slog.Logger
}

// NewDispatcher creates a dispatcher with the built-in actions
func NewDispatcher(host Host, resolver *placeholder.Resolver, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		host:     host,
		resolver: resolver,
		logger:   logger,
		handlers: map[string]handler{
			Message: func(ctx context.Context, h Host, p *domain.Player, payload string) error {
				if p == nil {
					return nil
				}
				return h.SendMessage(ctx, p.ID, payload)
			},
			Broadcast: func(ctx context.Context, h Host, _ *domain.Player, payload string) error {
				return h.Broadcast(ctx, payload)
			},
			Command: func(ctx context.Context, h Host, p *domain.Player, payload string) error {
				if p == nil {
					return nil
				}
				id := p.ID
				return h.RunCommand(ctx, &id, payload)
			},
			Console: func(ctx context.Context, h Host, _ *domain.Player, payload string) error {
				return h.RunCommand(ctx, nil, payload)
			},
			Sound: func(ctx context.Context, h Host, p *domain.Player, payload string) error {
				if p == nil {
					return nil
				}
				return h.PlaySound(ctx, p.ID, payload)
			},
		},
	}
}

// Execute runs every line in req.Items. Lines with an unknown or missing
// action name are skipped. Host failures are logged and do not stop
// the remaining lines.
func (d *Dispatcher) Execute(ctx context.Context, req Request) {
	for _, item := range req.Items {
		name, payload, ok := Parse(item)
		if !ok {
			continue
		}
		h, ok := d.handlers[name]
		if !ok {
			d.logger.Warn("unknown action", "action", name)
			continue
		}

		switch {
		case req.Player != nil:
			d.run(ctx, h, name, req.Player, d.apply(payload, req.Player, req))
		case name == Broadcast:
			d.run(ctx, h, name, nil, d.apply(payload, nil, req))
		case strings.Contains(payload, "{PLAYER}"):
			for i := range req.Online {
				p := &req.Online[i]
				d.run(ctx, h, name, p, d.apply(payload, p, req))
			}
		default:
			d.run(ctx, h, name, nil, d.apply(payload, nil, req))
		}
	}
}

// Render implements Executor
func (d *Dispatcher) Render(req Request) []string {
	out := make([]string, 0, len(req.Items))
	for _, item := range req.Items {
		name, payload, ok := Parse(item)
		if !ok {
			out = append(out, item)
			continue
		}
		rendered := "[" + name + "]"
		if payload = d.apply(payload, req.Player, req); payload != "" {
			rendered += " " + payload
		}
		out = append(out, rendered)
	}
	return out
}

func (d *Dispatcher) apply(payload string, p *domain.Player, req Request) string {
	if p != nil {
		payload = strings.ReplaceAll(payload, "{PLAYER}", p.Name)
	}
	if d.resolver == nil {
		return payload
	}
	return d.resolver.Apply(payload, p, req.Tournament, req.Now)
}

func (d *Dispatcher) run(ctx context.Context, h handler, name string, p *domain.Player, payload string) {
	if err := h(ctx, d.host, p, payload); err != nil {
		attrs := []any{"action", name, "error", err}
		if p != nil {
			attrs = append(attrs, "player_id", p.ID)
		}
		d.logger.Error("action failed", attrs...)
	}
}

// Parse splits "[NAME] payload" into an upper-cased name and payload
func Parse(item string) (name, payload string, ok bool) {
	open := strings.Index(item, "[")
	if open < 0 {
		return "", "", false
	}
	closing := strings.Index(item[open+1:], "]")
	if closing < 0 {
		return "", "", false
	}
	name = strings.ToUpper(strings.TrimSpace(item[open+1 : open+1+closing]))
	if name == "" {
		return "", "", false
	}
	if _, rest, found := strings.Cut(item, " "); found {
		payload = rest
	}
	return name, payload, true
}
