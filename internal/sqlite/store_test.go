package sqlite

import (
	"context"
	"path/filepath"
	"slices"
	"testing"

	"github.com/google/uuid"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "scores.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open("  "); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestScoreRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	player := uuid.New()

	if err := store.CreateTable(ctx, "weekly"); err != nil {
		t.Fatalf("create table: %v", err)
	}
	if err := store.CreateTable(ctx, "weekly"); err != nil {
		t.Fatalf("create table twice: %v", err)
	}

	if _, found, err := store.GetScore(ctx, "weekly", player); err != nil || found {
		t.Fatalf("expected no score, got found=%v err=%v", found, err)
	}

	if err := store.SetScore(ctx, "weekly", player, 12); err != nil {
		t.Fatalf("set score: %v", err)
	}
	if err := store.SetScore(ctx, "weekly", player, 30); err != nil {
		t.Fatalf("overwrite score: %v", err)
	}
	score, found, err := store.GetScore(ctx, "weekly", player)
	if err != nil || !found || score != 30 {
		t.Fatalf("expected 30, got %d found=%v err=%v", score, found, err)
	}

	// Scores are scoped per tournament.
	if _, found, _ := store.GetScore(ctx, "monthly", player); found {
		t.Fatal("expected no score in another tournament")
	}

	ids, err := store.Tournaments(ctx)
	if err != nil {
		t.Fatalf("tournaments: %v", err)
	}
	if !slices.Equal(ids, []string{"weekly"}) {
		t.Fatalf("expected [weekly], got %v", ids)
	}
}

func TestDeleteScores(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	a, b := uuid.New(), uuid.New()

	for _, p := range []uuid.UUID{a, b} {
		if err := store.SetScore(ctx, "weekly", p, 5); err != nil {
			t.Fatalf("set score: %v", err)
		}
	}
	if err := store.SetScore(ctx, "monthly", a, 9); err != nil {
		t.Fatalf("set score: %v", err)
	}

	if err := store.DeleteScore(ctx, "weekly", a); err != nil {
		t.Fatalf("delete score: %v", err)
	}
	if _, found, _ := store.GetScore(ctx, "weekly", a); found {
		t.Fatal("expected score removed")
	}
	if _, found, _ := store.GetScore(ctx, "weekly", b); !found {
		t.Fatal("expected other player kept")
	}

	if err := store.DeleteScores(ctx, "weekly"); err != nil {
		t.Fatalf("delete scores: %v", err)
	}
	if _, found, _ := store.GetScore(ctx, "weekly", b); found {
		t.Fatal("expected tournament scores removed")
	}
	if score, found, _ := store.GetScore(ctx, "monthly", a); !found || score != 9 {
		t.Fatalf("expected other tournament untouched, got %d %v", score, found)
	}
}

func TestQueuedActionsKeepOrder(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	player, other := uuid.New(), uuid.New()

	if err := store.QueueActions(ctx, player, []string{"[MESSAGE] first", "[CONSOLE] second"}); err != nil {
		t.Fatalf("queue: %v", err)
	}
	if err := store.QueueActions(ctx, player, []string{"[SOUND] third"}); err != nil {
		t.Fatalf("queue: %v", err)
	}
	if err := store.QueueActions(ctx, other, []string{"[MESSAGE] elsewhere"}); err != nil {
		t.Fatalf("queue: %v", err)
	}
	if err := store.QueueActions(ctx, player, nil); err != nil {
		t.Fatalf("queue nothing: %v", err)
	}

	actions, err := store.QueuedActions(ctx, player)
	if err != nil {
		t.Fatalf("queued actions: %v", err)
	}
	want := []string{"[MESSAGE] first", "[CONSOLE] second", "[SOUND] third"}
	if !slices.Equal(actions, want) {
		t.Fatalf("expected %v, got %v", want, actions)
	}

	if err := store.ClearQueuedActions(ctx, player); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if actions, _ := store.QueuedActions(ctx, player); len(actions) != 0 {
		t.Fatalf("expected empty queue, got %v", actions)
	}
	if actions, _ := store.QueuedActions(ctx, other); len(actions) != 1 {
		t.Fatalf("expected other player's queue kept, got %v", actions)
	}
}

func TestScoresSurviveReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scores.db")
	ctx := context.Background()
	player := uuid.New()

	store, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := store.SetScore(ctx, "weekly", player, 42); err != nil {
		t.Fatalf("set score: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	if score, found, _ := reopened.GetScore(ctx, "weekly", player); !found || score != 42 {
		t.Fatalf("expected 42 after reopen, got %d %v", score, found)
	}
}
