package action

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

// LogHost is a Host that only logs. It is used when no game host
// transport is configured.
type LogHost struct {
	logger *slog.Logger
}

// NewLogHost creates a logging host
func NewLogHost(logger *slog.Logger) *LogHost {
	return &LogHost{logger: logger}
}

func (h *LogHost) SendMessage(_ context.Context, player uuid.UUID, message string) error {
	h.logger.Info("message", "player_id", player, "message", message)
	return nil
}

func (h *LogHost) Broadcast(_ context.Context, message string) error {
	h.logger.Info("broadcast", "message", message)
	return nil
}

func (h *LogHost) RunCommand(_ context.Context, player *uuid.UUID, command string) error {
	if player == nil {
		h.logger.Info("console command", "command", command)
		return nil
	}
	h.logger.Info("player command", "player_id", *player, "command", command)
	return nil
}

func (h *LogHost) PlaySound(_ context.Context, player uuid.UUID, sound string) error {
	h.logger.Info("sound", "player_id", player, "sound", sound)
	return nil
}
