package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/elara-health/chat-service/internal/chat"
	"github.com/elara-health/chat-service/internal/config"
	"github.com/elara-health/chat-service/internal/store"
	"github.com/elara-health/chat-service/internal/store/rabbitmq"
)

// The sweeper reclaims placeholder rows orphaned by clients that died
// mid-stream. Sweep messages arrive here after sitting in the delay queue
// for the configured TTL; rows whose stream finished normally no longer
// match the conditional delete and are left alone.

func sweeperConcurrency() int {
	v := os.Getenv("SWEEPER_CONCURRENCY")
	if v == "" {
		return 2
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 2
	}
	if n > 50 {
		return 50
	}
	return n
}

func main() {
	cfg := config.Load()

	gdb := store.Connect(cfg.DBDSN)
	repo := chat.NewRepo(gdb, nil) // sweeps are not broadcast

	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		log.Fatalf("rabbit dial: %v", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		log.Fatalf("rabbit channel: %v", err)
	}
	defer ch.Close()

	// matches the publisher's declaration of the main queue
	if _, err := ch.QueueDeclare(cfg.SweepQueue, true, false, false, false, nil); err != nil {
		log.Fatalf("queue declare: %v", err)
	}

	concurrency := sweeperConcurrency()
	if err := ch.Qos(concurrency, 0, false); err != nil {
		log.Fatalf("qos: %v", err)
	}

	msgs, err := ch.Consume(cfg.SweepQueue, "", false, false, false, false, nil)
	if err != nil {
		log.Fatalf("consume: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Printf("sweeper started, queue=%s concurrency=%d delay=%s", cfg.SweepQueue, concurrency, cfg.SweepDelay)

	jobs := make(chan amqp.Delivery, concurrency*2)

	var wg sync.WaitGroup
	wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func(workerID int) {
			defer wg.Done()
			for d := range jobs {
				var m rabbitmq.SweepMessage
				if err := json.Unmarshal(d.Body, &m); err != nil || m.MessageID == "" {
					log.Printf("worker=%d bad message: %v", workerID, err)
					_ = d.Nack(false, false)
					continue
				}

				deleted, err := repo.DeleteStalePlaceholder(ctx, m.MessageID)
				if err != nil {
					log.Printf("worker=%d sweep failed message_id=%s err=%v", workerID, m.MessageID, err)
					_ = d.Nack(false, true) // store hiccup: retry later
					continue
				}
				if deleted {
					log.Printf("worker=%d reclaimed orphaned placeholder message_id=%s", workerID, m.MessageID)
				}

				if err := d.Ack(false); err != nil {
					log.Printf("worker=%d ack failed message_id=%s err=%v", workerID, m.MessageID, err)
				}
			}
		}(i)
	}

	for {
		select {
		case <-ctx.Done():
			log.Printf("sweeper shutting down")
			close(jobs)
			wg.Wait()
			return

		case d, ok := <-msgs:
			if !ok {
				log.Printf("delivery channel closed")
				time.Sleep(1 * time.Second)
				continue
			}
			jobs <- d
		}
	}
}
