package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"rollcall/internal/config"
	"rollcall/internal/queue"
	"rollcall/internal/session"
	"rollcall/internal/store"
)

// Worker consumes committed-scan events and maintains the Redis present-count
// projection per session. The ledger in Postgres stays authoritative; losing
// this projection loses nothing but a dashboard number.
func main() {
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutdown signal received")
		cancel()
	}()

	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer db.Close()

	redisClient := store.NewRedis(cfg.RedisAddr)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "rollcall:scans")
	}

	sessions := session.NewRepository(db.Client)

	messages, err := q.Consume(ctx)
	if err != nil {
		log.Fatalf("queue consume init failed: %v", err)
	}

	log.Println("worker started, waiting for scan events...")
	for msg := range messages {
		if msg.Type != queue.TypeScan {
			continue
		}

		evt, err := queue.DecodeScanEvent(msg)
		if err != nil {
			log.Printf("bad scan event: %v", err)
			continue
		}

		s, err := sessions.GetByCode(ctx, evt.SessionCode)
		if err != nil {
			log.Printf("fetch session %s failed: %v", evt.SessionCode, err)
			continue
		}

		if err := redisClient.IncrPresent(ctx, evt.SessionCode); err != nil {
			log.Printf("projection update failed for %s: %v", evt.SessionCode, err)
			continue
		}
		log.Printf("marked %s present for class %d subject %d (%s)",
			evt.StudentID, s.Scope.ClassID, s.Scope.SubjectID, s.Scope.SessionType)
	}

	log.Println("worker stopped")
}
