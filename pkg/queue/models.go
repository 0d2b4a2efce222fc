package queue

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/Aksor9/AI-GameMaster/pkg/actor"
	"github.com/Aksor9/AI-GameMaster/pkg/state"
)

// TaskType identifies the type of task in the queue.
type TaskType string

const (
	// TaskTypePlayerAction is a player-initiated session action.
	TaskTypePlayerAction TaskType = "player_action"

	// TaskTypeNPCTurn is a scheduler-enqueued non-player combat turn.
	TaskTypeNPCTurn TaskType = "npc_turn"
)

// Reserved action types. Any other action type is treated as the player's
// free-text action.
const (
	// ActionConfirmDiceRoll is the only input accepted while the session
	// awaits a skill-check confirmation.
	ActionConfirmDiceRoll = "CONFIRM_DICE_ROLL"

	// ActionForceGameState bypasses the dispatcher and overwrites the
	// session wholesale with the action payload. Debug/test escape hatch.
	ActionForceGameState = "FORCE_GAME_STATE"
)

// ClientAction is the player's submitted action.
type ClientAction struct {
	ActionType string          `json:"action_type"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// Task is a unit of work on the session action queue. Delivery is
// at-least-once: handlers re-fetch the latest persisted state and must be
// safe to re-run with identical input.
type Task struct {
	TaskID    string    `json:"task_id"`
	Type      TaskType  `json:"type"`
	SessionID uuid.UUID `json:"session_id"`
	ClientID  string    `json:"client_id"`

	// ActorID is the character the client believes holds the turn. It is
	// re-validated against the freshly loaded state before dispatch.
	ActorID string `json:"actor_id,omitempty"`

	Action   ClientAction `json:"client_action"`
	Language string       `json:"language,omitempty"`

	// Snapshot is advisory only; the dispatcher always re-resolves the
	// latest persisted state.
	Snapshot *state.GameState `json:"game_state_snapshot,omitempty"`

	// Depth counts consecutive NPC-turn re-enqueues, capped by the
	// combatant count.
	Depth int `json:"depth,omitempty"`

	// Attempts counts deliveries of this task, for bounded retry of
	// recoverable failures.
	Attempts int `json:"attempts,omitempty"`

	EnqueuedAt time.Time `json:"enqueued_at"`
}

// NewPlayerActionTask builds a player action task.
func NewPlayerActionTask(sessionID uuid.UUID, clientID, actorID string, action ClientAction, lang string) *Task {
	return &Task{
		TaskID:     uuid.New().String(),
		Type:       TaskTypePlayerAction,
		SessionID:  sessionID,
		ClientID:   clientID,
		ActorID:    actorID,
		Action:     action,
		Language:   lang,
		EnqueuedAt: time.Now().UTC(),
	}
}

// NewNPCTurnTask builds an NPC-turn task at the given chain depth.
func NewNPCTurnTask(sessionID uuid.UUID, clientID, lang string, depth int) *Task {
	return &Task{
		TaskID:     uuid.New().String(),
		Type:       TaskTypeNPCTurn,
		SessionID:  sessionID,
		ClientID:   clientID,
		Language:   lang,
		Depth:      depth,
		EnqueuedAt: time.Now().UTC(),
	}
}

// ToJSON serializes the task for queue storage.
func (t *Task) ToJSON() ([]byte, error) {
	return json.Marshal(t)
}

// TaskFromJSON parses a task from queue storage.
func TaskFromJSON(data []byte) (*Task, error) {
	var t Task
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// EventType values pushed to the result channel.
const (
	EventWorldOptions    = "WORLD_OPTIONS_PRESENTED"
	EventClassOptions    = "CLASS_OPTIONS_PRESENTED"
	EventPromptUser      = "STATE_UPDATE_PROMPT_USER"
	EventNarrativeUpdate = "NARRATIVE_UPDATE"
	EventDiceRollRequest = "DICE_ROLL_REQUESTED"
	EventStateForced     = "STATE_FORCED"
	EventError           = "ERROR"
)

// ResultEvent is the outcome of one processed task.
type ResultEvent struct {
	EventType     string              `json:"event_type"`
	Narrative     string              `json:"narrative,omitempty"`
	NewGameState  *state.GameState    `json:"new_game_state,omitempty"`
	WorldOptions  []actor.WorldOption `json:"world_options,omitempty"`
	ClassOptions  []actor.ClassOption `json:"class_options,omitempty"`
	PromptUserFor string              `json:"prompt_user_for,omitempty"`
	ImagePrompt   string              `json:"image_prompt,omitempty"`
	Error         string              `json:"error,omitempty"`
}

// Result is the envelope pushed to the result channel, keyed by client id.
type Result struct {
	ClientID string      `json:"client_id"`
	Result   ResultEvent `json:"result"`
}
