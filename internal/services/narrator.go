package services

import (
	"context"

	"github.com/Aksor9/AI-GameMaster/pkg/actor"
	"github.com/Aksor9/AI-GameMaster/pkg/rules"
	"github.com/Aksor9/AI-GameMaster/pkg/state"
)

// NarrationRequest carries everything the narrator needs to describe one
// resolved turn. The mechanical outcome is already decided; the narrator
// only dresses it in prose.
type NarrationRequest struct {
	GameState  *state.GameState
	ActorName  string
	ActionText string

	// Outcome is the rules engine's mechanical result text. The narrative
	// must agree with it.
	Outcome string

	// Focus hints which part of the scene the narration should center on,
	// such as the target of an attack.
	Focus string

	// History holds relevant past-turn snippets retrieved from memory.
	History []string

	Language string
}

// TurnNarration is the narrator's rendering of a resolved turn.
type TurnNarration struct {
	Narrative   string `json:"narrative"`
	ImagePrompt string `json:"image_prompt,omitempty"`

	// StorySummary, when non-empty, replaces the session's rolling summary.
	StorySummary string `json:"story_summary,omitempty"`
}

// NPCDecision is the tactical choice made for a non-player combat turn.
type NPCDecision struct {
	ActionText string `json:"action_text"`
	TargetID   string `json:"target_id"`
}

// Narrator generates prose for session setup and resolved turns.
type Narrator interface {
	// GenerateWorldOptions produces the world choices offered at session
	// start.
	GenerateWorldOptions(ctx context.Context, language string) ([]actor.WorldOption, error)

	// GenerateClassOptions produces the class choices for the chosen world.
	GenerateClassOptions(ctx context.Context, world *actor.WorldOption, language string) ([]actor.ClassOption, error)

	// NarrateOpening produces the opening scene once the party is formed.
	NarrateOpening(ctx context.Context, gs *state.GameState, language string) (*TurnNarration, error)

	// NarrateTurn produces the narrative for a single resolved turn.
	NarrateTurn(ctx context.Context, req NarrationRequest) (*TurnNarration, error)

	// ChooseNPCAction picks what a non-player combatant does on its turn.
	ChooseNPCAction(ctx context.Context, gs *state.GameState, npc *actor.PlayerCharacter) (*NPCDecision, error)
}

// IntentClassifier maps free-text player actions onto mechanical intents
// and resolves offered choices.
type IntentClassifier interface {
	ClassifyIntent(ctx context.Context, actionText string, gs *state.GameState) (*rules.Intent, error)

	// ResolveChoice maps the player's free text onto one of the offered
	// option names, returning a zero-based index.
	ResolveChoice(ctx context.Context, text string, options []string) (int, error)
}
