package state

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Aksor9/AI-GameMaster/pkg/actor"
)

// PendingAction stores the complete context of a skill check while the
// session awaits player confirmation. The roll and its outcome are fixed
// at creation time and never recomputed on reveal.
type PendingAction struct {
	ActingCharacterID string `json:"acting_character_id"`
	ActionText        string `json:"action_text"`
	StatName          string `json:"stat_name"`
	Modifier          int    `json:"modifier"`
	DC                int    `json:"dc"`
	DiceRoll          int    `json:"dice_roll"`
	IsSuccess         bool   `json:"is_success"`
}

// GameState is the single source of truth for a game session. It is
// loaded fresh at the start of every task, mutated only within that task,
// and overwritten wholesale in the session store afterwards.
type GameState struct {
	SessionID uuid.UUID `json:"session_id"`
	Phase     Phase     `json:"game_phase"`

	World *actor.WorldOption `json:"world,omitempty"`
	Party Party              `json:"players"`

	SceneContext          actor.SceneContext      `json:"scene_context"`
	QuestLog              []actor.Quest           `json:"quest_log,omitempty"`
	StorySummary          string                  `json:"story_summary,omitempty"`
	PreviousTurnNarrative string                  `json:"previous_turn_narrative,omitempty"`
	MainPlot              *actor.MainPlot         `json:"main_plot,omitempty"`
	Bestiary              map[string]actor.Entity `json:"bestiary,omitempty"`

	// Turn management
	CurrentTurnEntityID string         `json:"current_turn_entity_id,omitempty"`
	InitiativeOrder     []string       `json:"initiative_order,omitempty"`
	PendingAction       *PendingAction `json:"pending_action,omitempty"`

	// Setup-flow scratch fields, cleared once consumed.
	WorldSelectionOptions []actor.WorldOption `json:"world_selection_options,omitempty"`
	ClassSelectionOptions []actor.ClassOption `json:"class_selection_options,omitempty"`
	NumPlayersToCreate    int                 `json:"num_players_to_create,omitempty"`
	CharactersCreated     int                 `json:"characters_created,omitempty"`
	PendingCharacterClass *actor.ClassOption  `json:"pending_character_class,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// NewGameState creates a fresh session in the NEW_GAME phase.
func NewGameState(sessionID uuid.UUID) *GameState {
	return &GameState{
		SessionID:    sessionID,
		Phase:        PhaseNewGame,
		StorySummary: "The story is just beginning.",
		CreatedAt:    time.Now().UTC(),
	}
}

// FindPlayer returns the party member with the given id, or nil.
func (gs *GameState) FindPlayer(characterID string) *actor.PlayerCharacter {
	return gs.Party.Get(characterID)
}

// FindActor resolves an id against players first, then scene entities.
// NPC turns are processed through the same rules pipeline as players, so
// scene entities are surfaced as transient PlayerCharacter views.
func (gs *GameState) FindActor(id string) *actor.PlayerCharacter {
	if pc := gs.Party.Get(id); pc != nil {
		return pc
	}
	if e := gs.SceneContext.FindEntityByID(id); e != nil {
		return e.AsCharacter()
	}
	return nil
}

// CheckInvariants verifies the structural invariants that must hold after
// every phase transition.
func (gs *GameState) CheckInvariants() error {
	if !gs.Phase.Valid() {
		return &InvariantError{Msg: fmt.Sprintf("unrecognized phase %q", gs.Phase)}
	}
	hasPending := gs.PendingAction != nil
	awaiting := gs.Phase == PhaseAwaitingRollConfirm
	if hasPending != awaiting {
		return &InvariantError{Msg: fmt.Sprintf(
			"pending_action presence (%t) does not match phase %q", hasPending, gs.Phase)}
	}
	if gs.Phase == PhaseInCombat && len(gs.InitiativeOrder) == 0 {
		return &InvariantError{Msg: "in combat with empty initiative order"}
	}
	return nil
}

// PublicView is the client-visible projection of the session: the secret
// plot outline and the concealed roll of a pending skill check are
// stripped. Returns nil only if the state cannot be copied.
func (gs *GameState) PublicView() *GameState {
	cp, err := gs.DeepCopy()
	if err != nil {
		return nil
	}
	cp.MainPlot = nil
	if cp.World != nil {
		cp.World.MainPlot = actor.MainPlot{}
	}
	if cp.PendingAction != nil {
		cp.PendingAction.DiceRoll = 0
		cp.PendingAction.IsSuccess = false
	}
	return cp
}

// DeepCopy returns an independent copy of the game state via a JSON
// round trip.
func (gs *GameState) DeepCopy() (*GameState, error) {
	data, err := json.Marshal(gs)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal gamestate for copy: %w", err)
	}
	var cp GameState
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal gamestate copy: %w", err)
	}
	return &cp, nil
}
