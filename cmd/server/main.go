package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/elara-health/chat-service/internal/ai"
	"github.com/elara-health/chat-service/internal/chat"
	"github.com/elara-health/chat-service/internal/config"
	"github.com/elara-health/chat-service/internal/httpapi"
	"github.com/elara-health/chat-service/internal/httpapi/handlers"
	"github.com/elara-health/chat-service/internal/profile"
	"github.com/elara-health/chat-service/internal/store"
	"github.com/elara-health/chat-service/internal/store/rabbitmq"
	"github.com/elara-health/chat-service/internal/store/realtime"
	"github.com/elara-health/chat-service/internal/store/redisfeed"
)

// insertFeed is both halves of the realtime feed: the repo publishes into
// it, session controllers subscribe out of it.
type insertFeed interface {
	chat.FeedPublisher
	chat.FeedSubscriber
}

func main() {
	cfg := config.Load()

	gdb := store.Connect(cfg.DBDSN)

	var feed insertFeed
	switch cfg.FeedBackend {
	case "local":
		feed = realtime.NewBroadcaster()
	default:
		feed = redisfeed.New(redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}))
	}

	repo := chat.NewRepo(gdb, feed)
	profiles := profile.NewRepo(gdb)
	assistant := ai.NewClient(cfg.AssistantBaseURL, cfg.AssistantAPIKey)

	var sweeps chat.SweepScheduler
	if cfg.RabbitURL != "" {
		pub, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.SweepQueue, cfg.SweepDelay)
		if err != nil {
			log.Fatalf("rabbit publisher: %v", err)
		}
		defer pub.Close()
		sweeps = pub
	}

	mgr := chat.NewManager(chat.Deps{
		Store:    repo,
		Profiles: profiles,
		Streamer: assistant,
		Sweeps:   sweeps,
		Feed:     feed,
	})

	h := handlers.NewHandler(cfg, repo, profiles, mgr)
	router := httpapi.NewRouter(cfg, h)

	srv := &http.Server{
		Addr:        cfg.HTTPAddr,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		// no write timeout: SSE responses stay open
		IdleTimeout: 120 * time.Second,
	}

	go func() {
		log.Printf("server listening on %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("shutdown: %v", err)
	}
	log.Println("server exited")
}
