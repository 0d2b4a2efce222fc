package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Aksor9/AI-GameMaster/internal/config"
	"github.com/Aksor9/AI-GameMaster/internal/logger"
	"github.com/Aksor9/AI-GameMaster/internal/services"
	"github.com/Aksor9/AI-GameMaster/internal/services/events"
	queuesvc "github.com/Aksor9/AI-GameMaster/internal/services/queue"
	"github.com/Aksor9/AI-GameMaster/internal/storage"
	"github.com/Aksor9/AI-GameMaster/internal/worker"
	"github.com/Aksor9/AI-GameMaster/pkg/rules"
)

func main() {
	cfg := config.Load()
	log := logger.Setup(cfg)

	log.Info("Starting game master worker",
		"environment", cfg.Environment,
		"redis_url", cfg.RedisURL)

	// Initialize queue service
	queueClient, err := queuesvc.NewClient(cfg.RedisURL, log)
	if err != nil {
		log.Error("Failed to create queue client", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := queueClient.Close(); err != nil {
			log.Error("Error closing queue client", "error", err)
		}
	}()

	taskQueue := queuesvc.NewTaskQueue(queueClient)
	log.Info("Queue service initialized successfully")

	// Initialize session storage
	storageService, err := storage.NewRedisStorage(cfg.RedisURL, log)
	if err != nil {
		log.Error("Failed to create storage service", "error", err)
		os.Exit(1)
	}
	storageCtx, storageCancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer storageCancel()

	if err := storageService.WaitForConnection(storageCtx); err != nil {
		log.Error("Failed to connect to storage", "error", err)
		os.Exit(1)
	}
	log.Info("Storage service initialized successfully")

	// Initialize narrator / intent classifier
	var (
		narrator   services.Narrator
		classifier services.IntentClassifier
	)
	switch strings.ToLower(cfg.LLMProvider) {
	case "anthropic":
		if cfg.AnthropicAPIKey == "" {
			log.Error("Anthropic API key is required when using anthropic provider")
			os.Exit(1)
		}
		anthropic := services.NewAnthropicService(cfg.AnthropicAPIKey, cfg.ModelName, log)
		narrator = anthropic
		classifier = anthropic
		log.Info("Using Anthropic narrator", "model", cfg.ModelName)
	case "mock":
		mock := services.NewMockNarrator()
		narrator = mock
		classifier = mock
		log.Info("Using mock narrator")
	default:
		log.Error("Invalid LLM provider specified", "provider", cfg.LLMProvider, "supported", []string{"anthropic", "mock"})
		os.Exit(1)
	}

	// Initialize turn memory. Without a Postgres URL the game runs with no
	// long-term recall.
	var memory services.Memory = services.NoopMemory{}
	if cfg.PostgresURL != "" {
		embedder, err := services.NewOllamaEmbedder(cfg.OllamaURL, cfg.EmbeddingModel)
		if err != nil {
			log.Error("Failed to create embedder", "error", err)
			os.Exit(1)
		}
		memCtx, memCancel := context.WithTimeout(context.Background(), time.Minute)
		pgMemory, err := services.NewPostgresMemory(memCtx, cfg.PostgresURL, embedder, log)
		memCancel()
		if err != nil {
			log.Error("Failed to initialize turn memory", "error", err)
			os.Exit(1)
		}
		defer pgMemory.Close()
		memory = pgMemory
		log.Info("Turn memory initialized", "embedding_model", cfg.EmbeddingModel)
	} else {
		log.Info("No Postgres URL configured, turn memory disabled")
	}

	// Redis client for session locks and result pub/sub
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Error("Invalid Redis URL", "error", err)
		os.Exit(1)
	}
	redisClient := redis.NewClient(redisOpts)

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer pingCancel()
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		log.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			log.Error("Failed to close Redis client", "error", err)
		}
	}()

	broadcaster := events.NewBroadcaster(redisClient, log)

	processor := worker.NewActionProcessor(
		storageService,
		narrator,
		classifier,
		memory,
		rules.NewEngine(rules.NewRoller()),
		taskQueue,
		broadcaster,
		log,
	)
	log.Info("Action processor initialized successfully")

	w := worker.New(taskQueue, processor, broadcaster, redisClient, log, cfg.WorkerID)

	// Handle graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := w.Start(); err != nil {
			log.Error("Worker error", "error", err)
			os.Exit(1)
		}
	}()

	log.Info("Worker started, waiting for tasks...")

	<-quit
	log.Info("Worker shutdown signal received")

	w.Stop()

	// Give the worker time to finish the current task
	time.Sleep(2 * time.Second)

	log.Info("Worker exited")
}
