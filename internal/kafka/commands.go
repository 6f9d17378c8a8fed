package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"

	"github.com/tournament-engine/internal/config"
)

// Command types sent to the game host
const (
	CommandMessage   = "message"
	CommandBroadcast = "broadcast"
	CommandRun       = "command"
	CommandSound     = "sound"
)

// Command is one instruction for the game host
type Command struct {
	Type      string     `json:"type"`
	PlayerID  *uuid.UUID `json:"player_id,omitempty"`
	Payload   string     `json:"payload"`
	Timestamp time.Time  `json:"timestamp"`
}

// CommandPublisher delivers action output to the game host over Kafka.
// It implements action.Host.
type CommandPublisher struct {
	producer sarama.AsyncProducer
	topic    string
	logger   *slog.Logger
	now      func() time.Time
	wg       sync.WaitGroup
}

// NewCommandPublisher connects an async producer to the command topic
func NewCommandPublisher(cfg *config.KafkaConfig, logger *slog.Logger) (*CommandPublisher, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Producer.RequiredAcks = sarama.WaitForLocal
	saramaConfig.Producer.Compression = sarama.CompressionSnappy
	saramaConfig.Producer.Flush.Frequency = 100 * time.Millisecond
	saramaConfig.Producer.Return.Errors = true

	producer, err := sarama.NewAsyncProducer(cfg.Brokers, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("creating producer: %w", err)
	}
	return newCommandPublisher(producer, cfg.CommandTopic, logger), nil
}

func newCommandPublisher(producer sarama.AsyncProducer, topic string, logger *slog.Logger) *CommandPublisher {
	p := &CommandPublisher{
		producer: producer,
		topic:    topic,
		logger:   logger,
		now:      time.Now,
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for err := range producer.Errors() {
			p.logger.Error("failed to publish command", "topic", p.topic, "error", err.Err)
		}
	}()
	return p
}

// Close flushes pending commands and closes the producer
func (p *CommandPublisher) Close() error {
	p.producer.AsyncClose()
	p.wg.Wait()
	return nil
}

func (p *CommandPublisher) SendMessage(ctx context.Context, player uuid.UUID, message string) error {
	return p.publish(ctx, Command{Type: CommandMessage, PlayerID: &player, Payload: message})
}

func (p *CommandPublisher) Broadcast(ctx context.Context, message string) error {
	return p.publish(ctx, Command{Type: CommandBroadcast, Payload: message})
}

func (p *CommandPublisher) RunCommand(ctx context.Context, player *uuid.UUID, command string) error {
	return p.publish(ctx, Command{Type: CommandRun, PlayerID: player, Payload: command})
}

func (p *CommandPublisher) PlaySound(ctx context.Context, player uuid.UUID, sound string) error {
	return p.publish(ctx, Command{Type: CommandSound, PlayerID: &player, Payload: sound})
}

func (p *CommandPublisher) publish(ctx context.Context, cmd Command) error {
	cmd.Timestamp = p.now()
	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshal command: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Value: sarama.ByteEncoder(data),
	}
	// Per-player ordering; console and broadcast lines share one key.
	if cmd.PlayerID != nil {
		msg.Key = sarama.StringEncoder(cmd.PlayerID.String())
	} else {
		msg.Key = sarama.StringEncoder("server")
	}

	select {
	case p.producer.Input() <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
