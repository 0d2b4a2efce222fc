package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/Aksor9/AI-GameMaster/pkg/queue"
	"github.com/Aksor9/AI-GameMaster/pkg/state"
)

func main() {
	redisURL := flag.String("redis", "redis://localhost:6379", "Redis URL")
	sessionArg := flag.String("session", "", "session id (created if empty)")
	action := flag.String("action", "start", "action text to enqueue")
	flag.Parse()

	redisOpts, err := redis.ParseURL(*redisURL)
	if err != nil {
		log.Fatal("Failed to parse Redis URL:", err)
	}
	client := redis.NewClient(redisOpts)
	defer client.Close()

	ctx := context.Background()

	if err := client.Ping(ctx).Err(); err != nil {
		log.Fatal("Failed to connect to Redis:", err)
	}

	fmt.Println("Connected to Redis successfully!")

	var sessionID uuid.UUID
	if *sessionArg == "" {
		// Seed a fresh session so the worker has something to load
		sessionID = uuid.New()
		raw, err := json.Marshal(state.NewGameState(sessionID))
		if err != nil {
			log.Fatal("Failed to marshal session:", err)
		}
		if err := client.Set(ctx, "gamestate:"+sessionID.String(), raw, time.Hour).Err(); err != nil {
			log.Fatal("Failed to seed session:", err)
		}
		fmt.Printf("Seeded session %s\n", sessionID)
	} else {
		sessionID, err = uuid.Parse(*sessionArg)
		if err != nil {
			log.Fatal("Invalid session id:", err)
		}
	}

	task := queue.NewPlayerActionTask(sessionID, "test-client", "", queue.ClientAction{
		ActionType: *action,
	}, "en")

	data, err := task.ToJSON()
	if err != nil {
		log.Fatal("Failed to marshal task:", err)
	}
	if err := client.RPush(ctx, "tasks", data).Err(); err != nil {
		log.Fatal("Failed to enqueue task:", err)
	}

	fmt.Printf("Enqueued task %s (%q)\n", task.TaskID, *action)

	depth, err := client.LLen(ctx, "tasks").Result()
	if err != nil {
		log.Fatal("Failed to get queue depth:", err)
	}

	fmt.Printf("\nQueue depth: %d tasks\n", depth)
	fmt.Println("\nNow start the worker to see it process the task:")
	fmt.Println("   go run ./cmd/worker")
}
