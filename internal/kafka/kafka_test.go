package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/google/uuid"

	"github.com/tournament-engine/internal/config"
	"github.com/tournament-engine/internal/domain"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type batchRecorder struct {
	mu      sync.Mutex
	batches [][]domain.Event
}

func (r *batchRecorder) HandleEvents(_ context.Context, events []domain.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, append([]domain.Event(nil), events...))
	return nil
}

type fakeSession struct {
	sarama.ConsumerGroupSession
	ctx    context.Context
	mu     sync.Mutex
	marked []int64
}

func (s *fakeSession) Context() context.Context { return s.ctx }

func (s *fakeSession) MarkMessage(msg *sarama.ConsumerMessage, _ string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.marked = append(s.marked, msg.Offset)
}

type fakeClaim struct {
	sarama.ConsumerGroupClaim
	messages chan *sarama.ConsumerMessage
}

func (c *fakeClaim) Messages() <-chan *sarama.ConsumerMessage { return c.messages }

func (c *fakeClaim) Partition() int32 { return 0 }

func message(t *testing.T, offset int64, ev domain.Event) *sarama.ConsumerMessage {
	t.Helper()
	_, value, err := EncodeEvent(ev)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return &sarama.ConsumerMessage{Offset: offset, Value: value, Timestamp: time.Unix(100, 0)}
}

func TestDecodeEvent(t *testing.T) {
	id := uuid.New()
	ev, err := DecodeEvent([]byte(fmt.Sprintf(`{"kind":"block_break","player":{"id":%q,"name":"Steve"},"block":"STONE"}`, id)))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev.Kind != domain.EventBlockBreak || ev.Player.ID != id || ev.Block != "STONE" {
		t.Fatalf("unexpected event %+v", ev)
	}

	if _, err := DecodeEvent([]byte(`{"kind":"block_break"}`)); !errors.Is(err, domain.ErrInvalidRequest) {
		t.Fatalf("expected invalid request for missing player, got %v", err)
	}
	if _, err := DecodeEvent([]byte(`not json`)); err == nil {
		t.Fatal("expected error for malformed payload")
	}
}

func TestConsumeClaimBatchesInOrder(t *testing.T) {
	recorder := &batchRecorder{}
	consumer := &Consumer{
		config:  &config.KafkaConfig{BatchSize: 2, BatchTimeout: time.Hour},
		handler: recorder,
		logger:  discard,
	}
	handler := &consumerGroupHandler{consumer: consumer}

	player := domain.Player{ID: uuid.New(), Name: "Steve"}
	claim := &fakeClaim{messages: make(chan *sarama.ConsumerMessage, 4)}
	claim.messages <- message(t, 1, domain.Event{Kind: domain.EventPlayerJoin, Player: player})
	claim.messages <- &sarama.ConsumerMessage{Offset: 2, Value: []byte("garbage")}
	claim.messages <- message(t, 3, domain.Event{Kind: domain.EventBlockBreak, Player: player, Block: "STONE"})
	claim.messages <- message(t, 4, domain.Event{Kind: domain.EventPlayerQuit, Player: player})
	close(claim.messages)

	session := &fakeSession{ctx: context.Background()}
	if err := handler.ConsumeClaim(session, claim); err != nil {
		t.Fatalf("consume claim: %v", err)
	}

	if len(recorder.batches) != 2 {
		t.Fatalf("expected a full batch and a trailing batch, got %d", len(recorder.batches))
	}
	var kinds []domain.EventKind
	for _, batch := range recorder.batches {
		for _, ev := range batch {
			kinds = append(kinds, ev.Kind)
		}
	}
	want := []domain.EventKind{domain.EventPlayerJoin, domain.EventBlockBreak, domain.EventPlayerQuit}
	if fmt.Sprint(kinds) != fmt.Sprint(want) {
		t.Fatalf("expected %v, got %v", want, kinds)
	}
	if got := recorder.batches[0][0].Timestamp; !got.Equal(time.Unix(100, 0)) {
		t.Fatalf("expected broker timestamp to fill the event time, got %v", got)
	}
	if len(session.marked) != 4 {
		t.Fatalf("expected every message marked, got %v", session.marked)
	}
}

type failingHandler struct{ err error }

func (h failingHandler) HandleEvents(context.Context, []domain.Event) error {
	return h.err
}

func TestConsumeClaimKeepsOffsetsWhenBatchNotHandedOver(t *testing.T) {
	for _, want := range []error{
		domain.ErrManagerStopped,
		fmt.Errorf("queueing events: %w", context.DeadlineExceeded),
	} {
		consumer := &Consumer{
			config:  &config.KafkaConfig{BatchSize: 1, BatchTimeout: time.Hour},
			handler: failingHandler{err: want},
			logger:  discard,
		}
		handler := &consumerGroupHandler{consumer: consumer}

		claim := &fakeClaim{messages: make(chan *sarama.ConsumerMessage, 1)}
		claim.messages <- message(t, 7, domain.Event{Kind: domain.EventPlayerJoin, Player: domain.Player{ID: uuid.New()}})

		session := &fakeSession{ctx: context.Background()}
		if err := handler.ConsumeClaim(session, claim); !errors.Is(err, want) {
			t.Fatalf("expected %v, got %v", want, err)
		}
		if len(session.marked) != 0 {
			t.Fatalf("expected no offsets marked after %v, got %v", want, session.marked)
		}
	}
}

func TestConsumeClaimMarksBatchAfterHandlerError(t *testing.T) {
	consumer := &Consumer{
		config:  &config.KafkaConfig{BatchSize: 1, BatchTimeout: time.Hour},
		handler: failingHandler{err: errors.New("boom")},
		logger:  discard,
	}
	handler := &consumerGroupHandler{consumer: consumer}

	claim := &fakeClaim{messages: make(chan *sarama.ConsumerMessage, 1)}
	claim.messages <- message(t, 9, domain.Event{Kind: domain.EventPlayerJoin, Player: domain.Player{ID: uuid.New()}})
	close(claim.messages)

	session := &fakeSession{ctx: context.Background()}
	if err := handler.ConsumeClaim(session, claim); err != nil {
		t.Fatalf("consume claim: %v", err)
	}
	if len(session.marked) != 1 {
		t.Fatalf("expected the rejected batch to be marked, got %v", session.marked)
	}
}

func TestCommandPublisher(t *testing.T) {
	producer := mocks.NewAsyncProducer(t, nil)
	player := uuid.New()

	expect := func(typ, payload string, withPlayer bool) {
		producer.ExpectInputWithCheckerFunctionAndSucceed(func(val []byte) error {
			var cmd Command
			if err := json.Unmarshal(val, &cmd); err != nil {
				return err
			}
			if cmd.Type != typ || cmd.Payload != payload {
				return fmt.Errorf("expected %s %q, got %s %q", typ, payload, cmd.Type, cmd.Payload)
			}
			if withPlayer != (cmd.PlayerID != nil) {
				return fmt.Errorf("unexpected player %v", cmd.PlayerID)
			}
			return nil
		})
	}
	expect(CommandMessage, "hello", true)
	expect(CommandBroadcast, "tournament started", false)
	expect(CommandRun, "give Steve diamond 1", false)
	expect(CommandSound, "LEVEL_UP", true)

	pub := newCommandPublisher(producer, "game-commands", discard)
	ctx := context.Background()
	if err := pub.SendMessage(ctx, player, "hello"); err != nil {
		t.Fatalf("send message: %v", err)
	}
	if err := pub.Broadcast(ctx, "tournament started"); err != nil {
		t.Fatalf("broadcast: %v", err)
	}
	if err := pub.RunCommand(ctx, nil, "give Steve diamond 1"); err != nil {
		t.Fatalf("run command: %v", err)
	}
	if err := pub.PlaySound(ctx, player, "LEVEL_UP"); err != nil {
		t.Fatalf("play sound: %v", err)
	}
	if err := pub.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}
