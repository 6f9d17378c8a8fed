package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand/v2"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"

	"github.com/tournament-engine/internal/domain"
	"github.com/tournament-engine/internal/kafka"
)

var playerPrefixes = []string{
	"Phoenix", "Shadow", "Thunder", "Storm", "Blaze", "Ninja", "Dragon", "Wolf", "Hawk", "Viper",
	"Ghost", "Titan", "Frost", "Cyber", "Nova", "Raven", "Omega", "Alpha", "Delta", "Sigma",
}

var (
	blocks   = []string{"STONE", "DIRT", "COAL_ORE", "IRON_ORE", "DIAMOND_ORE", "OAK_LOG", "WHEAT"}
	items    = []string{"STICK", "TORCH", "CRAFTING_TABLE", "IRON_PICKAXE", "BREAD"}
	entities = []string{"ZOMBIE", "SKELETON", "CREEPER", "SPIDER", "COW"}
	worlds   = []string{"world", "world_nether"}
)

func playerName(idx int) string {
	prefixIdx := idx % len(playerPrefixes)
	suffix := idx/len(playerPrefixes) + 1
	return fmt.Sprintf("%s%d", playerPrefixes[prefixIdx], suffix)
}

// simPlayer is a synthetic player with a stable identifier
type simPlayer struct {
	player domain.Player
	online bool
}

func newPlayers(n int) []*simPlayer {
	players := make([]*simPlayer, n)
	for i := range players {
		name := playerName(i)
		players[i] = &simPlayer{
			player: domain.Player{
				// Stable ids let restarted runs reuse stored scores
				ID:          uuid.NewSHA1(uuid.NameSpaceOID, []byte(name)),
				Name:        name,
				World:       worlds[0],
				GameMode:    "SURVIVAL",
				Permissions: []string{"tournament.participate"},
			},
		}
	}
	return players
}

// randomEvent produces a gameplay event for p
func randomEvent(p *simPlayer, players []*simPlayer) domain.Event {
	ev := domain.Event{Player: p.player, Timestamp: time.Now()}
	switch rand.IntN(10) {
	case 0, 1, 2, 3:
		block := blocks[rand.IntN(len(blocks))]
		ev.Kind = domain.EventBlockBreak
		ev.Block = block
		ev.Location = &domain.Location{World: p.player.World, X: rand.IntN(512), Y: rand.IntN(128), Z: rand.IntN(512)}
		if block == "WHEAT" {
			ev.Crop = true
			ev.Grown = rand.IntN(2) == 0
		}
	case 4, 5:
		ev.Kind = domain.EventBlockPlace
		ev.Block = blocks[rand.IntN(len(blocks)-1)]
		ev.Location = &domain.Location{World: p.player.World, X: rand.IntN(512), Y: rand.IntN(128), Z: rand.IntN(512)}
	case 6:
		ev.Kind = domain.EventItemCraft
		ev.Item = items[rand.IntN(len(items))]
		ev.Amount = rand.IntN(4) + 1
	case 7, 8:
		ev.Kind = domain.EventMobKill
		ev.Entity = entities[rand.IntN(len(entities))]
	default:
		victim := players[rand.IntN(len(players))]
		if victim == p || !victim.online {
			ev.Kind = domain.EventMobKill
			ev.Entity = entities[0]
			break
		}
		ev.Kind = domain.EventPlayerKill
		ev.Victim = &victim.player.ID
	}
	return ev
}

func main() {
	// Command line flags
	brokers := flag.String("brokers", "localhost:9094", "Kafka brokers (comma-separated)")
	topic := flag.String("topic", "game-events", "Kafka topic")
	totalPlayers := flag.Int("players", 100, "Number of simulated players")
	eventsPerSecond := flag.Int("rate", 50, "Events per second")
	churn := flag.Float64("churn", 0.01, "Chance per event that a player quits or rejoins")
	duration := flag.Duration("duration", 0, "Duration to run (0 = forever)")
	flag.Parse()

	if *totalPlayers < 1 || *eventsPerSecond < 1 {
		log.Fatalf("players and rate must be positive")
	}

	brokerList := strings.Split(*brokers, ",")

	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println("  Tournament Game Event Producer")
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Printf("  Brokers:          %s\n", *brokers)
	fmt.Printf("  Topic:            %s\n", *topic)
	fmt.Printf("  Players:          %d\n", *totalPlayers)
	fmt.Printf("  Events/sec:       %d\n", *eventsPerSecond)
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println()

	// Configure Sarama producer
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForLocal
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Flush.Frequency = 100 * time.Millisecond
	config.Producer.Flush.Messages = 100
	config.Producer.Return.Successes = true
	config.Producer.Return.Errors = true

	producer, err := sarama.NewAsyncProducer(brokerList, config)
	if err != nil {
		log.Fatalf("Failed to create producer: %v", err)
	}

	var successCount, errorCount int64
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for range producer.Successes() {
			atomic.AddInt64(&successCount, 1)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for err := range producer.Errors() {
			atomic.AddInt64(&errorCount, 1)
			log.Printf("Producer error: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan struct{})
	send := func(ev domain.Event) {
		key, value, err := kafka.EncodeEvent(ev)
		if err != nil {
			log.Printf("Failed to encode event: %v", err)
			return
		}

		msg := &sarama.ProducerMessage{
			Topic: *topic,
			Key:   sarama.StringEncoder(key),
			Value: sarama.ByteEncoder(value),
		}

		select {
		case producer.Input() <- msg:
		case <-done:
		}
	}

	stop := func() {
		close(done)
		producer.AsyncClose()
		wg.Wait()
		fmt.Printf("\nCompleted. Sent: %d, Errors: %d\n", atomic.LoadInt64(&successCount), atomic.LoadInt64(&errorCount))
	}

	players := newPlayers(*totalPlayers)
	fmt.Printf("Connecting %d players...\n", len(players))
	for _, p := range players {
		p.online = true
		send(domain.Event{Kind: domain.EventPlayerJoin, Player: p.player, Timestamp: time.Now()})
	}

	fmt.Println("Press Ctrl+C to stop")
	fmt.Println()

	ticker := time.NewTicker(time.Second / time.Duration(*eventsPerSecond))
	defer ticker.Stop()

	statsTicker := time.NewTicker(5 * time.Second)
	defer statsTicker.Stop()

	var endTime time.Time
	if *duration > 0 {
		endTime = time.Now().Add(*duration)
	}

	for {
		select {
		case <-sigChan:
			fmt.Println("\nShutting down...")
			stop()
			return

		case <-ticker.C:
			if *duration > 0 && time.Now().After(endTime) {
				fmt.Println("\nDuration reached, shutting down...")
				stop()
				return
			}

			p := players[rand.IntN(len(players))]
			if rand.Float64() < *churn {
				kind := domain.EventPlayerQuit
				if !p.online {
					kind = domain.EventPlayerJoin
				}
				p.online = !p.online
				send(domain.Event{Kind: kind, Player: p.player, Timestamp: time.Now()})
				continue
			}
			if !p.online {
				continue
			}
			send(randomEvent(p, players))

		case <-statsTicker.C:
			online := 0
			for _, p := range players {
				if p.online {
					online++
				}
			}
			fmt.Printf("  Sent: %d  Errors: %d  Online: %d\n",
				atomic.LoadInt64(&successCount), atomic.LoadInt64(&errorCount), online)
		}
	}
}
