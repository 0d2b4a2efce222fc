package services

import (
	"context"
	"errors"
	"sync"

	"github.com/Aksor9/AI-GameMaster/pkg/actor"
	"github.com/Aksor9/AI-GameMaster/pkg/rules"
	"github.com/Aksor9/AI-GameMaster/pkg/state"
)

// MockNarrator is a configurable Narrator and IntentClassifier for testing.
type MockNarrator struct {
	mu sync.Mutex

	WorldOptions []actor.WorldOption
	ClassOptions []actor.ClassOption
	Opening      *TurnNarration
	Turn         *TurnNarration
	Intent       *rules.Intent
	NPCDecision  *NPCDecision

	// Choice, when non-nil, is returned from ResolveChoice. Left nil,
	// ResolveChoice fails so callers exercise their local fallback.
	Choice *int

	// NPCErr, when set, fails only ChooseNPCAction.
	NPCErr error

	// Err, when set, is returned from every call.
	Err error

	// NarrateTurnFunc overrides the canned Turn response when set.
	NarrateTurnFunc func(req NarrationRequest) (*TurnNarration, error)

	// LastRequest records the most recent NarrateTurn input.
	LastRequest *NarrationRequest
}

var (
	_ Narrator         = (*MockNarrator)(nil)
	_ IntentClassifier = (*MockNarrator)(nil)
)

// NewMockNarrator returns a mock with workable defaults.
func NewMockNarrator() *MockNarrator {
	return &MockNarrator{
		WorldOptions: []actor.WorldOption{
			{
				Name:         "Eldoria",
				Description:  "A realm of broken towers and old magic.",
				MainPlotHook: "The king's seal has been stolen.",
				MainPlot: actor.MainPlot{
					Synopsis:      "Recover the seal before the usurper crowns himself.",
					KeyMilestones: []string{"Find the thief", "Cross the marsh", "Enter the citadel"},
					FinalBoss:     "The Usurper",
				},
				InitialBestiary: []actor.Entity{
					{
						Name:        "Goblin",
						Description: "Small and vicious.",
						Health:      15,
						Stats: actor.Stats{
							Strength: 8, Dexterity: 14, Constitution: 10,
							Intelligence: 8, Wisdom: 8, Charisma: 6,
						},
						IsHostile: true,
					},
					{
						Name:        "Wraith",
						Description: "A cold shadow.",
						Health:      30,
						Stats: actor.Stats{
							Strength: 12, Dexterity: 16, Constitution: 12,
							Intelligence: 12, Wisdom: 14, Charisma: 10,
						},
						IsHostile: true,
					},
				},
			},
		},
		ClassOptions: []actor.ClassOption{
			{
				Name:              "Warrior",
				Description:       "Steel and stubbornness.",
				PositiveAttribute: "strength",
				StartingWeapon:    "Iron Sword",
				StartingObject:    "Torch",
				StartingCurrency:  10,
				BaseStats: actor.Stats{
					Strength: 14, Dexterity: 10, Constitution: 13,
					Intelligence: 8, Wisdom: 10, Charisma: 9,
				},
				InitialAbilities: []string{"Cleave", "Shield Wall"},
			},
		},
		Opening: &TurnNarration{Narrative: "The adventure begins."},
		Turn:    &TurnNarration{Narrative: "The moment passes."},
		Intent:  &rules.Intent{Type: rules.IntentObserve},
	}
}

func (m *MockNarrator) GenerateWorldOptions(ctx context.Context, language string) ([]actor.WorldOption, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	return m.WorldOptions, nil
}

func (m *MockNarrator) GenerateClassOptions(ctx context.Context, world *actor.WorldOption, language string) ([]actor.ClassOption, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	return m.ClassOptions, nil
}

func (m *MockNarrator) NarrateOpening(ctx context.Context, gs *state.GameState, language string) (*TurnNarration, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Opening, nil
}

func (m *MockNarrator) NarrateTurn(ctx context.Context, req NarrationRequest) (*TurnNarration, error) {
	m.mu.Lock()
	m.LastRequest = &req
	m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	if m.NarrateTurnFunc != nil {
		return m.NarrateTurnFunc(req)
	}
	return m.Turn, nil
}

func (m *MockNarrator) ChooseNPCAction(ctx context.Context, gs *state.GameState, npc *actor.PlayerCharacter) (*NPCDecision, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	if m.NPCErr != nil {
		return nil, m.NPCErr
	}
	if m.NPCDecision != nil {
		return m.NPCDecision, nil
	}
	if len(gs.Party) > 0 {
		return &NPCDecision{
			ActionText: "lunges at the nearest foe",
			TargetID:   gs.Party[0].CharacterID,
		}, nil
	}
	return &NPCDecision{ActionText: "snarls at the empty air"}, nil
}

func (m *MockNarrator) ResolveChoice(ctx context.Context, text string, options []string) (int, error) {
	if m.Err != nil {
		return 0, m.Err
	}
	if m.Choice != nil {
		return *m.Choice, nil
	}
	return 0, errors.New("no canned choice")
}

func (m *MockNarrator) ClassifyIntent(ctx context.Context, actionText string, gs *state.GameState) (*rules.Intent, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	if m.Intent != nil && m.Intent.ActionDescription == "" {
		intent := *m.Intent
		intent.ActionDescription = actionText
		return &intent, nil
	}
	return m.Intent, nil
}
