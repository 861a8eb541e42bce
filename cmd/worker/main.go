package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ignite/audience-core/internal/app"
	"github.com/ignite/audience-core/internal/config"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the configuration file")
	flag.Parse()

	log.Println("Starting audience-core job worker (cmd/worker)")

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config:\n%v", err)
	}
	if cfg.Queue.Driver != "sqs" {
		log.Fatalf("cmd/worker consumes SQS; queue.driver is %q (the server runs local jobs itself)", cfg.Queue.Driver)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize services: %v", err)
	}
	defer a.Close()

	consumer, err := a.Consumer()
	if err != nil {
		log.Fatalf("Failed to create consumer: %v", err)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		log.Println("Shutting down worker...")
		cancel()
	}()

	log.Printf("Worker consuming %s", cfg.Queue.SQSQueueURL)
	if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("Consumer stopped with error: %v", err)
	}
	log.Println("Worker stopped")
}
