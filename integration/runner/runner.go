package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Aksor9/AI-GameMaster/pkg/queue"
	"github.com/Aksor9/AI-GameMaster/pkg/state"
)

// Runner executes test suites against a live API and worker.
type Runner struct {
	BaseURL           string
	Client            *http.Client
	Timeout           time.Duration
	ErrorHandlingMode ErrorHandlingMode
	Logger            func(format string, args ...interface{})
}

func NewRunner(baseURL string) *Runner {
	return &Runner{
		BaseURL:           baseURL,
		Client:            &http.Client{Timeout: 30 * time.Second},
		Timeout:           ResultTimeout,
		ErrorHandlingMode: ErrorHandlingContinue,
		Logger:            func(string, ...interface{}) {},
	}
}

// LoadTestSuite reads a suite definition from a JSON case file.
func LoadTestSuite(path string) (TestSuite, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return TestSuite{}, fmt.Errorf("failed to read case file: %w", err)
	}
	var suite TestSuite
	if err := json.Unmarshal(data, &suite); err != nil {
		return TestSuite{}, fmt.Errorf("failed to parse case file %s: %w", path, err)
	}
	if suite.Name == "" {
		suite.Name = path
	}
	return suite, nil
}

// RunSuite creates a fresh session and drives it through the suite's steps.
func (r *Runner) RunSuite(ctx context.Context, suite TestSuite) (TestRunResult, error) {
	start := time.Now()
	result := TestRunResult{Suite: suite}

	sessionID, err := CreateSession(ctx, r.Client, r.BaseURL)
	if err != nil {
		result.Error = fmt.Errorf("failed to create session: %w", err)
		result.Duration = time.Since(start)
		return result, result.Error
	}
	result.SessionID = sessionID
	clientID := "itest-" + uuid.New().String()[:8]

	streamCtx, cancelStream := context.WithCancel(ctx)
	defer cancelStream()
	events, err := OpenEventStream(streamCtx, r.BaseURL, clientID)
	if err != nil {
		result.Error = fmt.Errorf("failed to open event stream: %w", err)
		result.Duration = time.Since(start)
		return result, result.Error
	}

	var gs *state.GameState
	for i, step := range suite.Steps {
		stepName := step.Name
		if stepName == "" {
			stepName = fmt.Sprintf("step %d", i+1)
		}
		r.Logger("  → %s", stepName)

		stepResult := r.runStep(ctx, sessionID, clientID, gs, step, events)
		stepResult.SuiteName = suite.Name
		stepResult.StepName = stepName
		result.Results = append(result.Results, stepResult)

		if !stepResult.Success {
			if result.Error == nil {
				result.Error = fmt.Errorf("step %q failed: %w", stepName, stepResult.Error)
			}
			if r.ErrorHandlingMode == ErrorHandlingExit {
				break
			}
		}

		// Re-fetch so the next step targets the actor whose turn it is.
		if updated, err := GetGameState(ctx, r.Client, r.BaseURL, sessionID); err == nil {
			gs = updated
		}
	}

	result.Duration = time.Since(start)
	return result, result.Error
}

func (r *Runner) runStep(ctx context.Context, sessionID uuid.UUID, clientID string, gs *state.GameState, step TestStep, events <-chan queue.Result) TestResult {
	start := time.Now()

	actionType := "PLAYER_INPUT"
	var payload json.RawMessage
	actorID := ""

	if step.ConfirmRoll {
		actionType = queue.ActionConfirmDiceRoll
		if step.Roll != nil {
			payload = json.RawMessage(fmt.Sprintf(`{"roll": %d}`, *step.Roll))
		}
		if gs != nil && gs.PendingAction != nil {
			actorID = gs.PendingAction.ActingCharacterID
		}
	} else {
		body, _ := json.Marshal(map[string]string{"text": step.Input})
		payload = body
		if gs != nil && (gs.Phase == state.PhaseGameInProgress || gs.Phase == state.PhaseInCombat) {
			actorID = gs.CurrentTurnEntityID
		}
	}

	if _, err := PostAction(ctx, r.Client, r.BaseURL, sessionID, clientID, actorID, actionType, payload); err != nil {
		return TestResult{Success: false, Error: err, Duration: time.Since(start)}
	}

	ev, err := AwaitResult(ctx, events, r.Timeout)
	if err != nil {
		return TestResult{Success: false, Error: err, Duration: time.Since(start)}
	}

	if err := checkExpectations(step.Expectations, ev); err != nil {
		return TestResult{
			Success:      false,
			Error:        err,
			Duration:     time.Since(start),
			ResponseText: ev.Narrative,
		}
	}

	return TestResult{Success: true, Duration: time.Since(start), ResponseText: ev.Narrative}
}

func checkExpectations(expect Expectations, ev *queue.ResultEvent) error {
	if expect.IsError != nil {
		gotError := ev.EventType == queue.EventError
		if gotError != *expect.IsError {
			return fmt.Errorf("expected is_error=%t, got event %q (error: %s)", *expect.IsError, ev.EventType, ev.Error)
		}
	}

	if expect.EventType != nil && ev.EventType != *expect.EventType {
		return fmt.Errorf("expected event type %q, got %q", *expect.EventType, ev.EventType)
	}

	if expect.Phase != nil {
		if ev.NewGameState == nil {
			return fmt.Errorf("expected phase %q but result carried no game state", *expect.Phase)
		}
		if string(ev.NewGameState.Phase) != *expect.Phase {
			return fmt.Errorf("expected phase %q, got %q", *expect.Phase, ev.NewGameState.Phase)
		}
	}

	if expect.PartySize != nil {
		if ev.NewGameState == nil {
			return fmt.Errorf("expected party size %d but result carried no game state", *expect.PartySize)
		}
		if len(ev.NewGameState.Party) != *expect.PartySize {
			return fmt.Errorf("expected party size %d, got %d", *expect.PartySize, len(ev.NewGameState.Party))
		}
	}

	if expect.LocationName != nil {
		if ev.NewGameState == nil {
			return fmt.Errorf("expected location %q but result carried no game state", *expect.LocationName)
		}
		if ev.NewGameState.SceneContext.LocationName != *expect.LocationName {
			return fmt.Errorf("expected location %q, got %q", *expect.LocationName, ev.NewGameState.SceneContext.LocationName)
		}
	}

	if expect.WorldChosen != nil {
		if ev.NewGameState == nil {
			return fmt.Errorf("expected world_chosen=%t but result carried no game state", *expect.WorldChosen)
		}
		chosen := ev.NewGameState.World != nil
		if chosen != *expect.WorldChosen {
			return fmt.Errorf("expected world_chosen=%t, got %t", *expect.WorldChosen, chosen)
		}
	}

	for _, want := range expect.NarrativeContains {
		if !strings.Contains(strings.ToLower(ev.Narrative), strings.ToLower(want)) {
			return fmt.Errorf("narrative does not contain %q: %s", want, truncate(ev.Narrative, 200))
		}
	}
	for _, unwanted := range expect.NarrativeNotContains {
		if strings.Contains(strings.ToLower(ev.Narrative), strings.ToLower(unwanted)) {
			return fmt.Errorf("narrative contains forbidden %q: %s", unwanted, truncate(ev.Narrative, 200))
		}
	}
	if expect.NarrativeMinLength != nil && len(ev.Narrative) < *expect.NarrativeMinLength {
		return fmt.Errorf("narrative length %d below minimum %d", len(ev.Narrative), *expect.NarrativeMinLength)
	}

	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
