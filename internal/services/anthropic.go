package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/Aksor9/AI-GameMaster/pkg/actor"
	"github.com/Aksor9/AI-GameMaster/pkg/rules"
	"github.com/Aksor9/AI-GameMaster/pkg/state"
)

const (
	anthropicBaseURL = "https://api.anthropic.com/v1"
	anthropicVersion = "2023-06-01"

	DefaultAnthropicTemperature = 0.7
	DefaultAnthropicMaxTokens   = 2048
)

var digitPattern = regexp.MustCompile(`\d+`)

// AnthropicService implements Narrator and IntentClassifier using the
// Anthropic messages API.
type AnthropicService struct {
	apiKey     string
	modelName  string
	httpClient *http.Client
	logger     *slog.Logger
}

var (
	_ Narrator         = (*AnthropicService)(nil)
	_ IntentClassifier = (*AnthropicService)(nil)
)

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicChatRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature *float64           `json:"temperature,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	System      string             `json:"system,omitempty"`
	Stream      bool               `json:"stream,omitempty"`
}

type anthropicContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicChatResponse struct {
	ID         string                  `json:"id"`
	Type       string                  `json:"type"`
	Role       string                  `json:"role"`
	Content    []anthropicContentBlock `json:"content"`
	Model      string                  `json:"model"`
	StopReason string                  `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func NewAnthropicService(apiKey string, modelName string, logger *slog.Logger) *AnthropicService {
	return &AnthropicService{
		apiKey:    apiKey,
		modelName: modelName,
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
		logger: logger,
	}
}

// chatCompletion makes one messages-API request and returns the text content.
// All transport and API failures come back wrapped as ExternalServiceError so
// the worker can retry them.
func (a *AnthropicService) chatCompletion(ctx context.Context, system string, userPrompt string) (string, error) {
	temperature := DefaultAnthropicTemperature
	anthropicReq := anthropicChatRequest{
		Model:       a.modelName,
		MaxTokens:   DefaultAnthropicMaxTokens,
		Temperature: &temperature,
		System:      system,
		Messages: []anthropicMessage{
			{Role: "user", Content: userPrompt},
		},
		Stream: false,
	}

	reqBody, err := json.Marshal(anthropicReq)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", anthropicBaseURL+"/messages", bytes.NewBuffer(reqBody))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("x-api-key", a.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)
	req.Header.Set("content-type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", state.NewExternalServiceError("anthropic", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", state.NewExternalServiceError("anthropic", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", state.NewExternalServiceError("anthropic",
			fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body)))
	}

	var anthropicResp anthropicChatResponse
	if err := json.Unmarshal(body, &anthropicResp); err != nil {
		return "", state.NewExternalServiceError("anthropic", fmt.Errorf("failed to parse response: %w", err))
	}

	if anthropicResp.Error != nil {
		return "", state.NewExternalServiceError("anthropic", fmt.Errorf("API error: %s", anthropicResp.Error.Message))
	}

	var responseText string
	for _, content := range anthropicResp.Content {
		if content.Type == "text" {
			responseText += content.Text
		}
	}

	if responseText == "" {
		return "", state.NewExternalServiceError("anthropic", fmt.Errorf("empty response"))
	}

	return responseText, nil
}

// extractJSON strips markdown fences and surrounding prose so the model's
// JSON payload can be unmarshalled.
func extractJSON(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
		text = strings.TrimSpace(text)
	}

	objStart := strings.IndexAny(text, "{[")
	if objStart < 0 {
		return text
	}
	var objEnd int
	if text[objStart] == '{' {
		objEnd = strings.LastIndex(text, "}")
	} else {
		objEnd = strings.LastIndex(text, "]")
	}
	if objEnd <= objStart {
		return text
	}
	return text[objStart : objEnd+1]
}

func (a *AnthropicService) systemPrompt(language string) string {
	return GMSystemPrompt + "\n\n" + languageInstruction(language)
}

func (a *AnthropicService) GenerateWorldOptions(ctx context.Context, language string) ([]actor.WorldOption, error) {
	content, err := a.chatCompletion(ctx, a.systemPrompt(language), worldOptionsPrompt)
	if err != nil {
		return nil, err
	}

	var options []actor.WorldOption
	if err := json.Unmarshal([]byte(extractJSON(content)), &options); err != nil {
		a.logger.Error("Failed to parse world options", "error", err)
		return nil, state.NewExternalServiceError("anthropic", fmt.Errorf("invalid world options payload: %w", err))
	}
	if len(options) == 0 {
		return nil, state.NewExternalServiceError("anthropic", fmt.Errorf("no world options returned"))
	}
	return options, nil
}

func (a *AnthropicService) GenerateClassOptions(ctx context.Context, world *actor.WorldOption, language string) ([]actor.ClassOption, error) {
	prompt := fmt.Sprintf(classOptionsPrompt, world.Name, world.Description)
	content, err := a.chatCompletion(ctx, a.systemPrompt(language), prompt)
	if err != nil {
		return nil, err
	}

	var options []actor.ClassOption
	if err := json.Unmarshal([]byte(extractJSON(content)), &options); err != nil {
		a.logger.Error("Failed to parse class options", "error", err)
		return nil, state.NewExternalServiceError("anthropic", fmt.Errorf("invalid class options payload: %w", err))
	}
	if len(options) == 0 {
		return nil, state.NewExternalServiceError("anthropic", fmt.Errorf("no class options returned"))
	}
	return options, nil
}

func (a *AnthropicService) NarrateOpening(ctx context.Context, gs *state.GameState, language string) (*TurnNarration, error) {
	prompt := fmt.Sprintf(openingPrompt, gameStateJSON(gs))
	content, err := a.chatCompletion(ctx, a.systemPrompt(language), prompt)
	if err != nil {
		return nil, err
	}
	return parseTurnNarration(content)
}

func (a *AnthropicService) NarrateTurn(ctx context.Context, req NarrationRequest) (*TurnNarration, error) {
	content, err := a.chatCompletion(ctx, a.systemPrompt(req.Language), buildTurnPrompt(req))
	if err != nil {
		return nil, err
	}
	return parseTurnNarration(content)
}

func (a *AnthropicService) ChooseNPCAction(ctx context.Context, gs *state.GameState, npc *actor.PlayerCharacter) (*NPCDecision, error) {
	prompt := buildNPCPrompt(gs, npc.Name, npc.Backstory)
	content, err := a.chatCompletion(ctx, "You decide tactics for monsters in a turn-based RPG.", prompt)
	if err != nil {
		return nil, err
	}

	var decision NPCDecision
	if err := json.Unmarshal([]byte(extractJSON(content)), &decision); err != nil {
		a.logger.Warn("Failed to parse NPC decision", "error", err)
		return nil, state.NewExternalServiceError("anthropic", fmt.Errorf("invalid NPC decision payload: %w", err))
	}
	return &decision, nil
}

func (a *AnthropicService) ClassifyIntent(ctx context.Context, actionText string, gs *state.GameState) (*rules.Intent, error) {
	content, err := a.chatCompletion(ctx, "You are an intent classifier for a turn-based RPG.", buildIntentPrompt(actionText, gs))
	if err != nil {
		return nil, err
	}

	var intent rules.Intent
	if err := json.Unmarshal([]byte(extractJSON(content)), &intent); err != nil {
		a.logger.Warn("Failed to parse intent payload", "error", err)
		return nil, state.NewExternalServiceError("anthropic", fmt.Errorf("invalid intent payload: %w", err))
	}
	if intent.ActionDescription == "" {
		intent.ActionDescription = actionText
	}
	return &intent, nil
}

func (a *AnthropicService) ResolveChoice(ctx context.Context, text string, options []string) (int, error) {
	content, err := a.chatCompletion(ctx, "You are an intent classifier for a turn-based RPG.", buildChoicePrompt(text, options))
	if err != nil {
		return 0, err
	}
	return parseChoiceReply(content, len(options))
}

// parseChoiceReply reads the model's 1-based option number, tolerating
// surrounding prose. Zero and out-of-range numbers mean no match.
func parseChoiceReply(content string, optionCount int) (int, error) {
	n, err := strconv.Atoi(digitPattern.FindString(content))
	if err != nil || n < 1 || n > optionCount {
		return 0, state.NewExternalServiceError("anthropic", fmt.Errorf("unresolvable choice reply: %q", content))
	}
	return n - 1, nil
}

// parseTurnNarration accepts either the strict JSON payload or, as a
// fallback, raw prose from a model that ignored the schema.
func parseTurnNarration(content string) (*TurnNarration, error) {
	var tn TurnNarration
	if err := json.Unmarshal([]byte(extractJSON(content)), &tn); err == nil && tn.Narrative != "" {
		return &tn, nil
	}
	text := strings.TrimSpace(content)
	if text == "" {
		return nil, state.NewExternalServiceError("anthropic", fmt.Errorf("empty narration"))
	}
	return &TurnNarration{Narrative: text}, nil
}
