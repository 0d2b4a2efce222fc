package main

import (
	"context"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"

	"github.com/Aksor9/AI-GameMaster/pkg/lang"
	"github.com/Aksor9/AI-GameMaster/pkg/queue"
)

type ConsoleConfig struct {
	APIBaseURL string
	Language   string
	Timeout    time.Duration
}

func main() {
	cfg := &ConsoleConfig{
		APIBaseURL: getEnv("API_BASE_URL", "http://localhost:8080"),
		Language:   lang.Normalize(getEnv("GAME_LANGUAGE", lang.Default)),
		Timeout:    30 * time.Second,
	}

	api := NewAPIClient(cfg.APIBaseURL, cfg.Timeout)

	if !api.TestConnection() {
		fmt.Fprintf(os.Stderr, "Could not connect to API. Please ensure the API is running.\nTry: docker-compose up -d\n")
		os.Exit(1)
	}

	sessionID, err := api.CreateSession()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create session: %v\n", err)
		os.Exit(1)
	}

	clientID := "console-" + uuid.New().String()[:8]

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := make(chan queue.Result, 16)
	go func() {
		if err := api.StreamEvents(ctx, clientID, events); err != nil && ctx.Err() == nil {
			fmt.Fprintf(os.Stderr, "Event stream error: %v\n", err)
		}
	}()

	p := tea.NewProgram(NewConsoleUI(cfg, api, sessionID, clientID, events),
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
		tea.WithMouseAllMotion())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error running program: %v\n", err)
		os.Exit(1)
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
