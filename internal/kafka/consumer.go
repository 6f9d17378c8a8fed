package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/IBM/sarama"

	"github.com/tournament-engine/internal/config"
	"github.com/tournament-engine/internal/domain"
)

// EventHandler applies game events in order
type EventHandler interface {
	HandleEvents(ctx context.Context, events []domain.Event) error
}

// Consumer feeds game events from a Kafka topic to an EventHandler.
// Offsets are committed only after the handler accepted the batch that
// contains them.
type Consumer struct {
	config  *config.KafkaConfig
	handler EventHandler
	logger  *slog.Logger
	group   sarama.ConsumerGroup
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewConsumer joins the configured consumer group
func NewConsumer(cfg *config.KafkaConfig, handler EventHandler, logger *slog.Logger) (*Consumer, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.V3_0_0_0
	// Sticky keeps partitions, and so players, on the same member across rebalances
	saramaConfig.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategySticky()}
	saramaConfig.Consumer.Offsets.Initial = sarama.OffsetNewest
	saramaConfig.Consumer.Return.Errors = true

	group, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("creating consumer group: %w", err)
	}

	return &Consumer{
		config:  cfg,
		handler: handler,
		logger:  logger,
		group:   group,
	}, nil
}

// Start joins the group and returns once the first session is set up
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("starting Kafka consumer",
		"brokers", c.config.Brokers,
		"topic", c.config.Topic,
		"group_id", c.config.GroupID,
	)

	ctx, c.cancel = context.WithCancel(ctx)
	ready := make(chan struct{})
	var once sync.Once

	c.wg.Add(2)
	go func() {
		defer c.wg.Done()
		// Consume returns on every rebalance and is called again
		for ctx.Err() == nil {
			h := &consumerGroupHandler{consumer: c, setup: func() { once.Do(func() { close(ready) }) }}
			err := c.group.Consume(ctx, []string{c.config.Topic}, h)
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return
			}
			if err != nil {
				c.logger.Error("consumer session failed", "error", err)
			}
		}
	}()
	go func() {
		defer c.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case err, ok := <-c.group.Errors():
				if !ok {
					return
				}
				c.logger.Error("consumer group error", "error", err)
			}
		}
	}()

	select {
	case <-ready:
		c.logger.Info("Kafka consumer ready")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop leaves the group. In-flight batches are handed over first.
func (c *Consumer) Stop() error {
	c.logger.Info("stopping Kafka consumer")
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
	return c.group.Close()
}

// consumerGroupHandler implements sarama.ConsumerGroupHandler
type consumerGroupHandler struct {
	consumer *Consumer
	setup    func()
}

func (h *consumerGroupHandler) Setup(sarama.ConsumerGroupSession) error {
	if h.setup != nil {
		h.setup()
	}
	return nil
}

func (h *consumerGroupHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

// eventBatch collects decoded events and every message they were read
// from, undecodable ones included, so that all of them are marked
// together.
type eventBatch struct {
	events   []domain.Event
	messages []*sarama.ConsumerMessage
}

func (b *eventBatch) reset() {
	b.events = b.events[:0]
	b.messages = b.messages[:0]
}

// ConsumeClaim hands events to the handler in batches. Messages are keyed
// by player, so one player's events keep their order within a partition.
func (h *consumerGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	c := h.consumer
	batch := &eventBatch{events: make([]domain.Event, 0, c.config.BatchSize)}
	timer := time.NewTimer(c.config.BatchTimeout)
	defer timer.Stop()

	flush := func() error {
		defer timer.Reset(c.config.BatchTimeout)
		if len(batch.messages) == 0 {
			return nil
		}
		if len(batch.events) > 0 {
			// The session context is already done during the final flush
			ctx, cancel := context.WithTimeout(context.WithoutCancel(session.Context()), 10*time.Second)
			err := c.handler.HandleEvents(ctx, batch.events)
			cancel()
			if errors.Is(err, domain.ErrManagerStopped) || errors.Is(err, context.DeadlineExceeded) {
				// The batch may not have reached the manager. Leave the
				// offsets uncommitted so the events are redelivered.
				c.logger.Warn("game events not handed over", "error", err, "batch_size", len(batch.events))
				return err
			}
			if err != nil {
				c.logger.Error("failed to handle game events", "error", err, "batch_size", len(batch.events))
			}
		}
		for _, msg := range batch.messages {
			session.MarkMessage(msg, "")
		}
		c.logger.Debug("handled game events", "batch_size", len(batch.events), "partition", claim.Partition())
		batch.reset()
		return nil
	}

	for {
		select {
		case <-session.Context().Done():
			return flush()

		case <-timer.C:
			if err := flush(); err != nil {
				return err
			}

		case msg, ok := <-claim.Messages():
			if !ok {
				return flush()
			}
			batch.messages = append(batch.messages, msg)

			event, err := DecodeEvent(msg.Value)
			if err != nil {
				c.logger.Warn("dropping game event",
					"error", err,
					"offset", msg.Offset,
					"partition", msg.Partition,
				)
				continue
			}
			if event.Timestamp.IsZero() {
				event.Timestamp = msg.Timestamp
			}
			batch.events = append(batch.events, event)

			if len(batch.events) >= c.config.BatchSize {
				if err := flush(); err != nil {
					return err
				}
			}
		}
	}
}

// DecodeEvent parses one JSON game event
func DecodeEvent(data []byte) (domain.Event, error) {
	var event domain.Event
	if err := json.Unmarshal(data, &event); err != nil {
		return domain.Event{}, fmt.Errorf("unmarshal event: %w", err)
	}
	if !event.Valid() {
		return domain.Event{}, fmt.Errorf("%w: event needs a kind and a player id", domain.ErrInvalidRequest)
	}
	return event, nil
}

// EncodeEvent serializes an event and returns its partition key
func EncodeEvent(event domain.Event) (key string, value []byte, err error) {
	value, err = json.Marshal(event)
	if err != nil {
		return "", nil, fmt.Errorf("marshal event: %w", err)
	}
	return event.Player.ID.String(), value, nil
}
