package manager

import (
	"context"

	"github.com/google/uuid"
)

// WaitIO blocks until pending storage jobs have finished and their
// completions have been applied on the loop.
func (m *Manager) WaitIO(ctx context.Context) error {
	for range 3 {
		m.io.Wait()
		if err := m.call(ctx, func() error { return nil }); err != nil {
			return err
		}
	}
	return nil
}

// SetPick replaces the random pool selection
func (m *Manager) SetPick(pick func(n int) int) { m.pick = pick }

// IsOnline reports whether the player has a live session
func (m *Manager) IsOnline(ctx context.Context, id uuid.UUID) bool {
	var online bool
	_ = m.call(ctx, func() error {
		_, online = m.online[id]
		return nil
	})
	return online
}
