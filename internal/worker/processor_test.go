package worker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aksor9/AI-GameMaster/internal/services"
	"github.com/Aksor9/AI-GameMaster/internal/storage"
	"github.com/Aksor9/AI-GameMaster/pkg/actor"
	"github.com/Aksor9/AI-GameMaster/pkg/queue"
	"github.com/Aksor9/AI-GameMaster/pkg/rules"
	"github.com/Aksor9/AI-GameMaster/pkg/state"
)

type fakeEnqueuer struct {
	mu    sync.Mutex
	tasks []*queue.Task
	err   error
}

func (f *fakeEnqueuer) Enqueue(ctx context.Context, task *queue.Task) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.tasks = append(f.tasks, task)
	return nil
}

type publishedEvent struct {
	ClientID string
	Event    queue.ResultEvent
}

type fakePublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (f *fakePublisher) Publish(ctx context.Context, clientID string, event queue.ResultEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, publishedEvent{ClientID: clientID, Event: event})
	return nil
}

func (f *fakePublisher) last(t *testing.T) publishedEvent {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.events)
	return f.events[len(f.events)-1]
}

type processorFixture struct {
	processor *ActionProcessor
	storage   *storage.MockStorage
	narrator  *services.MockNarrator
	memory    *services.MockMemory
	enqueuer  *fakeEnqueuer
	publisher *fakePublisher
}

func newFixture(rolls ...int) *processorFixture {
	store := storage.NewMockStorage()
	narrator := services.NewMockNarrator()
	memory := services.NewMockMemory()
	enqueuer := &fakeEnqueuer{}
	publisher := &fakePublisher{}
	engine := rules.NewEngine(&rules.SequenceRoller{Rolls: rolls})
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	return &processorFixture{
		processor: NewActionProcessor(store, narrator, narrator, memory, engine, enqueuer, publisher, logger),
		storage:   store,
		narrator:  narrator,
		memory:    memory,
		enqueuer:  enqueuer,
		publisher: publisher,
	}
}

func (f *processorFixture) seed(t *testing.T, gs *state.GameState) {
	t.Helper()
	require.NoError(t, f.storage.SaveGameState(context.Background(), gs.SessionID, gs))
}

func (f *processorFixture) reload(t *testing.T, sessionID uuid.UUID) *state.GameState {
	t.Helper()
	gs, err := f.storage.LoadGameState(context.Background(), sessionID)
	require.NoError(t, err)
	require.NotNil(t, gs)
	return gs
}

func playerTask(sessionID uuid.UUID, actorID, text string) *queue.Task {
	payload, _ := json.Marshal(map[string]string{"text": text})
	return queue.NewPlayerActionTask(sessionID, "client-1", actorID,
		queue.ClientAction{ActionType: "PLAYER_INPUT", Payload: payload}, "en")
}

// inProgressState builds a single-player session already past setup, with
// a hostile goblin in the scene.
func inProgressState(sessionID uuid.UUID) (*state.GameState, *actor.PlayerCharacter, *actor.SceneEntity) {
	narrator := services.NewMockNarrator()
	world := narrator.WorldOptions[0]
	class := narrator.ClassOptions[0]

	gs := state.NewGameState(sessionID)
	gs.Phase = state.PhaseGameInProgress
	gs.World = &world
	gs.MainPlot = &world.MainPlot

	pc := actor.NewPlayerCharacter("client-1", "Aria", 27, "female", "a wandering scholar", class)
	gs.Party = state.Party{pc}
	gs.CurrentTurnEntityID = pc.CharacterID

	goblin := actor.NewSceneEntity(world.InitialBestiary[0])
	gs.SceneContext = actor.SceneContext{
		LocationName: world.Name,
		Entities:     []actor.SceneEntity{goblin},
	}
	return gs, pc, &gs.SceneContext.Entities[0]
}

func TestProcessSetupFlow(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	sessionID := uuid.New()
	f.seed(t, state.NewGameState(sessionID))

	freeText := func(text string) *queue.Task {
		return playerTask(sessionID, "", text)
	}

	// NEW_GAME: any action triggers world generation.
	require.NoError(t, f.processor.Process(ctx, freeText("begin")))
	ev := f.publisher.last(t)
	assert.Equal(t, "client-1", ev.ClientID)
	assert.Equal(t, queue.EventWorldOptions, ev.Event.EventType)
	require.Len(t, ev.Event.WorldOptions, 1)
	assert.Equal(t, "Eldoria", ev.Event.WorldOptions[0].Name)

	gs := f.reload(t, sessionID)
	assert.Equal(t, state.PhaseWorldSelection, gs.Phase)
	assert.Len(t, gs.WorldSelectionOptions, 1)

	// World selection by number.
	require.NoError(t, f.processor.Process(ctx, freeText("1")))
	ev = f.publisher.last(t)
	assert.Equal(t, queue.EventPromptUser, ev.Event.EventType)
	assert.Contains(t, ev.Event.Narrative, "Eldoria")
	assert.Contains(t, ev.Event.Narrative, "How many heroes")

	gs = f.reload(t, sessionID)
	assert.Equal(t, state.PhaseCreationNumPlayers, gs.Phase)
	require.NotNil(t, gs.World)
	assert.Equal(t, "Eldoria", gs.World.Name)
	assert.Nil(t, gs.WorldSelectionOptions)
	assert.Contains(t, gs.Bestiary, "goblin")
	assert.Contains(t, gs.Bestiary, "wraith")

	// Party size.
	require.NoError(t, f.processor.Process(ctx, freeText("1")))
	ev = f.publisher.last(t)
	assert.Equal(t, queue.EventClassOptions, ev.Event.EventType)
	require.Len(t, ev.Event.ClassOptions, 1)

	gs = f.reload(t, sessionID)
	assert.Equal(t, state.PhaseCreationClasses, gs.Phase)
	assert.Equal(t, 1, gs.NumPlayersToCreate)

	// Class selection by name.
	require.NoError(t, f.processor.Process(ctx, freeText("the warrior, please")))
	ev = f.publisher.last(t)
	assert.Equal(t, queue.EventPromptUser, ev.Event.EventType)
	assert.Contains(t, ev.Event.Narrative, "name, age, gender, backstory")

	gs = f.reload(t, sessionID)
	assert.Equal(t, state.PhaseCreationDetails, gs.Phase)
	require.NotNil(t, gs.PendingCharacterClass)
	assert.Equal(t, "Warrior", gs.PendingCharacterClass.Name)

	// Character details complete the party and open the story.
	require.NoError(t, f.processor.Process(ctx,
		freeText("Aria, 27, female, a wandering scholar searching for her lost brother")))
	ev = f.publisher.last(t)
	assert.Equal(t, queue.EventNarrativeUpdate, ev.Event.EventType)
	assert.Equal(t, "The adventure begins.", ev.Event.Narrative)

	gs = f.reload(t, sessionID)
	assert.Equal(t, state.PhaseGameInProgress, gs.Phase)
	require.Len(t, gs.Party, 1)
	pc := gs.Party[0]
	assert.Equal(t, "Aria", pc.Name)
	assert.Equal(t, 27, pc.Age)
	assert.Equal(t, "Warrior", pc.Class)
	assert.Equal(t, pc.CharacterID, gs.CurrentTurnEntityID)
	assert.Nil(t, gs.PendingCharacterClass)
	assert.Nil(t, gs.ClassSelectionOptions)
	assert.Equal(t, "Eldoria", gs.SceneContext.LocationName)
	assert.Equal(t, "The adventure begins.", gs.PreviousTurnNarrative)

	// Opening narration lands in session memory.
	assert.Equal(t, []string{"The adventure begins."}, f.memory.Appended())

	// Every published event carries the public view of the state, with
	// plot secrets stripped.
	require.NotNil(t, ev.Event.NewGameState)
	assert.Nil(t, ev.Event.NewGameState.MainPlot)
}

func TestProcessMultiPlayerCreationLoops(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	sessionID := uuid.New()

	narrator := services.NewMockNarrator()
	gs := state.NewGameState(sessionID)
	gs.Phase = state.PhaseCreationClasses
	gs.World = &narrator.WorldOptions[0]
	gs.MainPlot = &narrator.WorldOptions[0].MainPlot
	gs.NumPlayersToCreate = 2
	gs.ClassSelectionOptions = narrator.ClassOptions
	f.seed(t, gs)

	require.NoError(t, f.processor.Process(ctx, playerTask(sessionID, "", "1")))
	require.NoError(t, f.processor.Process(ctx, playerTask(sessionID, "", "Aria, 27, female, scholar")))

	ev := f.publisher.last(t)
	assert.Equal(t, queue.EventClassOptions, ev.Event.EventType)
	assert.Contains(t, ev.Event.Narrative, "hero 2 of 2")

	loaded := f.reload(t, sessionID)
	assert.Equal(t, state.PhaseCreationClasses, loaded.Phase)
	assert.Equal(t, 1, loaded.CharactersCreated)
	require.Len(t, loaded.Party, 1)

	require.NoError(t, f.processor.Process(ctx, playerTask(sessionID, "", "1")))
	require.NoError(t, f.processor.Process(ctx, playerTask(sessionID, "", "Bram, 31, male, blacksmith")))

	loaded = f.reload(t, sessionID)
	assert.Equal(t, state.PhaseGameInProgress, loaded.Phase)
	require.Len(t, loaded.Party, 2)
	assert.Equal(t, loaded.Party[0].CharacterID, loaded.CurrentTurnEntityID)
}

func TestProcessValidationErrorsLeaveStateUntouched(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	sessionID := uuid.New()

	gs := state.NewGameState(sessionID)
	gs.Phase = state.PhaseCreationNumPlayers
	narrator := services.NewMockNarrator()
	gs.World = &narrator.WorldOptions[0]
	gs.MainPlot = &narrator.WorldOptions[0].MainPlot
	f.seed(t, gs)

	err := f.processor.Process(ctx, playerTask(sessionID, "", "9"))
	var vErr *state.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Contains(t, vErr.Error(), "between 1 and 4")

	loaded := f.reload(t, sessionID)
	assert.Equal(t, state.PhaseCreationNumPlayers, loaded.Phase)
	assert.Zero(t, loaded.NumPlayersToCreate)
	assert.Empty(t, f.publisher.events)
}

func TestProcessSessionNotFound(t *testing.T) {
	f := newFixture()

	err := f.processor.Process(context.Background(), playerTask(uuid.New(), "", "hello"))
	var nfErr *state.NotFoundError
	require.ErrorAs(t, err, &nfErr)
	assert.Equal(t, "session", nfErr.What)
	assert.Empty(t, f.publisher.events)
}

func TestProcessForceGameState(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	sessionID := uuid.New()

	forced, _, _ := inProgressState(uuid.New())
	payload, err := json.Marshal(forced)
	require.NoError(t, err)

	task := queue.NewPlayerActionTask(sessionID, "client-1", "",
		queue.ClientAction{ActionType: queue.ActionForceGameState, Payload: payload}, "en")
	require.NoError(t, f.processor.Process(ctx, task))

	ev := f.publisher.last(t)
	assert.Equal(t, queue.EventStateForced, ev.Event.EventType)
	require.NotNil(t, ev.Event.NewGameState)
	assert.Nil(t, ev.Event.NewGameState.MainPlot)

	// The overwrite keys the state to the task's session, not the
	// payload's.
	loaded := f.reload(t, sessionID)
	assert.Equal(t, sessionID, loaded.SessionID)
	assert.Equal(t, state.PhaseGameInProgress, loaded.Phase)
	require.Len(t, loaded.Party, 1)
}

func TestProcessForceGameStateRejectsBadPayload(t *testing.T) {
	f := newFixture()

	task := queue.NewPlayerActionTask(uuid.New(), "client-1", "",
		queue.ClientAction{ActionType: queue.ActionForceGameState, Payload: json.RawMessage(`{not json`)}, "en")
	err := f.processor.Process(context.Background(), task)

	var vErr *state.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Empty(t, f.publisher.events)
}

func TestProcessRejectsOutOfTurnAction(t *testing.T) {
	f := newFixture(50)
	ctx := context.Background()
	sessionID := uuid.New()

	gs, _, _ := inProgressState(sessionID)
	class := services.NewMockNarrator().ClassOptions[0]
	second := actor.NewPlayerCharacter("client-2", "Bram", 31, "male", "blacksmith", class)
	gs.Party = append(gs.Party, second)
	f.seed(t, gs)

	err := f.processor.Process(ctx, playerTask(sessionID, second.CharacterID, "I act out of turn"))
	var staleErr *state.StaleActionError
	require.ErrorAs(t, err, &staleErr)
	assert.Contains(t, staleErr.Error(), "Bram")

	loaded := f.reload(t, sessionID)
	assert.Equal(t, gs.CurrentTurnEntityID, loaded.CurrentTurnEntityID)
	assert.Empty(t, f.publisher.events)
}

func TestProcessObserveTurn(t *testing.T) {
	f := newFixture(50)
	ctx := context.Background()
	sessionID := uuid.New()

	gs, pc, _ := inProgressState(sessionID)
	f.seed(t, gs)
	f.memory.Snippets = []string{"Earlier, Aria crossed the marsh."}

	require.NoError(t, f.processor.Process(ctx, playerTask(sessionID, pc.CharacterID, "look around the ruins")))

	ev := f.publisher.last(t)
	assert.Equal(t, queue.EventNarrativeUpdate, ev.Event.EventType)
	assert.Equal(t, "The moment passes.", ev.Event.Narrative)

	req := f.narrator.LastRequest
	require.NotNil(t, req)
	assert.Equal(t, "Aria", req.ActorName)
	assert.Equal(t, "look around the ruins", req.ActionText)
	assert.Contains(t, req.Outcome, "surroundings")
	assert.Equal(t, []string{"Earlier, Aria crossed the marsh."}, req.History)

	// A single-member party keeps the turn.
	loaded := f.reload(t, sessionID)
	assert.Equal(t, pc.CharacterID, loaded.CurrentTurnEntityID)
	assert.Equal(t, []string{"The moment passes."}, f.memory.Appended())
}

func TestProcessDangerSignalReachesNarrator(t *testing.T) {
	// d100 = 3 trips the danger signal for a non-observe action.
	f := newFixture(3)
	ctx := context.Background()
	sessionID := uuid.New()

	gs, pc, _ := inProgressState(sessionID)
	f.seed(t, gs)
	f.narrator.Intent = &rules.Intent{
		Type:          rules.IntentInventory,
		ItemName:      "Sturdy Rope",
		IsAcquisition: true,
	}

	require.NoError(t, f.processor.Process(ctx, playerTask(sessionID, pc.CharacterID, "pick up the rope")))

	req := f.narrator.LastRequest
	require.NotNil(t, req)
	assert.Contains(t, req.Outcome, "unexpected danger")

	loaded := f.reload(t, sessionID)
	assert.True(t, loaded.Party[0].HasItem("Sturdy Rope"))
}

func TestProcessSkillCheckPausesForConfirmation(t *testing.T) {
	// d100 = 50 (no danger), then the secret d20 = 17.
	f := newFixture(50, 17)
	ctx := context.Background()
	sessionID := uuid.New()

	gs, pc, _ := inProgressState(sessionID)
	f.seed(t, gs)
	f.narrator.Intent = &rules.Intent{
		Type:         rules.IntentSkill,
		RelevantStat: "dexterity",
		RequiredDC:   14,
	}

	require.NoError(t, f.processor.Process(ctx, playerTask(sessionID, pc.CharacterID, "leap across the chasm")))

	ev := f.publisher.last(t)
	assert.Equal(t, queue.EventDiceRollRequest, ev.Event.EventType)
	assert.Contains(t, ev.Event.Narrative, "Dexterity")
	assert.NotContains(t, ev.Event.Narrative, "17")

	loaded := f.reload(t, sessionID)
	assert.Equal(t, state.PhaseAwaitingRollConfirm, loaded.Phase)
	require.NotNil(t, loaded.PendingAction)
	assert.Equal(t, pc.CharacterID, loaded.PendingAction.ActingCharacterID)

	// The published view hides the secret roll, the stored state keeps it.
	require.NotNil(t, ev.Event.NewGameState)
	require.NotNil(t, ev.Event.NewGameState.PendingAction)
	assert.Zero(t, ev.Event.NewGameState.PendingAction.DiceRoll)
	assert.Equal(t, 17, loaded.PendingAction.DiceRoll)

	// No turn advance and no narration while the check is pending.
	assert.Equal(t, pc.CharacterID, loaded.CurrentTurnEntityID)
	assert.Empty(t, f.memory.Appended())
}

func confirmTask(sessionID uuid.UUID, actorID string, roll int) *queue.Task {
	var payload json.RawMessage
	if roll != 0 {
		payload, _ = json.Marshal(map[string]int{"roll": roll})
	}
	return queue.NewPlayerActionTask(sessionID, "client-1", actorID,
		queue.ClientAction{ActionType: queue.ActionConfirmDiceRoll, Payload: payload}, "en")
}

func TestProcessRollConfirmation(t *testing.T) {
	// Sequence: d100 = 50, secret d20 = 17, then the failure d4 = 2 in the
	// manual-roll subtest.
	setup := func(t *testing.T) (*processorFixture, uuid.UUID, *actor.PlayerCharacter) {
		f := newFixture(50, 17, 2)
		sessionID := uuid.New()
		gs, pc, _ := inProgressState(sessionID)
		f.seed(t, gs)
		f.narrator.Intent = &rules.Intent{
			Type:         rules.IntentSkill,
			RelevantStat: "dexterity",
			RequiredDC:   14,
		}
		require.NoError(t, f.processor.Process(context.Background(),
			playerTask(sessionID, pc.CharacterID, "leap across the chasm")))
		return f, sessionID, pc
	}

	t.Run("secret roll succeeds", func(t *testing.T) {
		f, sessionID, pc := setup(t)

		// 17 + dex modifier 0 beats DC 14.
		require.NoError(t, f.processor.Process(context.Background(), confirmTask(sessionID, pc.CharacterID, 0)))

		ev := f.publisher.last(t)
		assert.Equal(t, queue.EventNarrativeUpdate, ev.Event.EventType)

		loaded := f.reload(t, sessionID)
		assert.Equal(t, state.PhaseGameInProgress, loaded.Phase)
		assert.Nil(t, loaded.PendingAction)
		assert.Equal(t, actor.DefaultHealth, loaded.Party[0].Health)
	})

	t.Run("manual roll overrides and fails", func(t *testing.T) {
		f, sessionID, pc := setup(t)

		require.NoError(t, f.processor.Process(context.Background(), confirmTask(sessionID, pc.CharacterID, 3)))

		req := f.narrator.LastRequest
		require.NotNil(t, req)
		assert.Contains(t, req.Outcome, "fail and take")

		// The failed attempt costs the d4 = 2.
		loaded := f.reload(t, sessionID)
		assert.Equal(t, state.PhaseGameInProgress, loaded.Phase)
		assert.Equal(t, actor.DefaultHealth-2, loaded.Party[0].Health)
	})

	t.Run("manual roll out of range", func(t *testing.T) {
		f, sessionID, pc := setup(t)

		err := f.processor.Process(context.Background(), confirmTask(sessionID, pc.CharacterID, 25))
		var vErr *state.ValidationError
		require.ErrorAs(t, err, &vErr)

		loaded := f.reload(t, sessionID)
		assert.Equal(t, state.PhaseAwaitingRollConfirm, loaded.Phase)
		require.NotNil(t, loaded.PendingAction)
		assert.Equal(t, 17, loaded.PendingAction.DiceRoll)
	})

	t.Run("wrong actor", func(t *testing.T) {
		f, sessionID, _ := setup(t)

		err := f.processor.Process(context.Background(), confirmTask(sessionID, "char_someone_else", 0))
		var staleErr *state.StaleActionError
		require.ErrorAs(t, err, &staleErr)

		loaded := f.reload(t, sessionID)
		assert.Equal(t, state.PhaseAwaitingRollConfirm, loaded.Phase)
	})

	t.Run("other actions rejected while awaiting", func(t *testing.T) {
		f, sessionID, pc := setup(t)

		err := f.processor.Process(context.Background(),
			playerTask(sessionID, pc.CharacterID, "I run away instead"))
		var vErr *state.ValidationError
		require.ErrorAs(t, err, &vErr)
		assert.Contains(t, vErr.Error(), "awaits confirmation")
	})
}

func TestProcessConfirmationOutsideAwaitingPhase(t *testing.T) {
	f := newFixture()
	sessionID := uuid.New()
	gs, pc, _ := inProgressState(sessionID)
	f.seed(t, gs)

	// A late duplicate confirmation is stale, not malformed, so the
	// client resynchronizes.
	err := f.processor.Process(context.Background(), confirmTask(sessionID, pc.CharacterID, 12))
	var staleErr *state.StaleActionError
	require.ErrorAs(t, err, &staleErr)
	assert.Contains(t, staleErr.Error(), "no dice roll awaits confirmation")
}

func TestProcessAttackInitiatesCombat(t *testing.T) {
	t.Run("top-initiative player keeps the opening turn", func(t *testing.T) {
		// Initiative d20s: player rolls 18 (dex mod 0), goblin rolls 5
		// (dex mod +2). The initiator won the roll and acts next; no turn
		// advance happens on the turn that entered combat.
		f := newFixture(18, 5)
		sessionID := uuid.New()

		gs, pc, goblin := inProgressState(sessionID)
		f.seed(t, gs)
		f.narrator.Intent = &rules.Intent{Type: rules.IntentAttack, Target: "Goblin"}

		require.NoError(t, f.processor.Process(context.Background(),
			playerTask(sessionID, pc.CharacterID, "attack the goblin")))

		loaded := f.reload(t, sessionID)
		assert.Equal(t, state.PhaseInCombat, loaded.Phase)
		assert.Equal(t, []string{pc.CharacterID, goblin.InstanceID}, loaded.InitiativeOrder)
		assert.Equal(t, pc.CharacterID, loaded.CurrentTurnEntityID)

		// Combat entry defers the swing; the goblin is untouched.
		assert.Equal(t, 15, loaded.SceneContext.Entities[0].Health)

		req := f.narrator.LastRequest
		require.NotNil(t, req)
		assert.Equal(t, rules.CombatBeginsMessage, req.Outcome)

		f.enqueuer.mu.Lock()
		defer f.enqueuer.mu.Unlock()
		assert.Empty(t, f.enqueuer.tasks)
	})

	t.Run("top-initiative hostile gets an NPC task", func(t *testing.T) {
		// Player rolls 5, goblin rolls 18 (+2 dex). The goblin opens the
		// fighting, so its turn is enqueued at depth zero.
		f := newFixture(5, 18)
		sessionID := uuid.New()

		gs, pc, goblin := inProgressState(sessionID)
		f.seed(t, gs)
		f.narrator.Intent = &rules.Intent{Type: rules.IntentAttack, Target: "Goblin"}

		require.NoError(t, f.processor.Process(context.Background(),
			playerTask(sessionID, pc.CharacterID, "attack the goblin")))

		loaded := f.reload(t, sessionID)
		assert.Equal(t, []string{goblin.InstanceID, pc.CharacterID}, loaded.InitiativeOrder)
		assert.Equal(t, goblin.InstanceID, loaded.CurrentTurnEntityID)

		f.enqueuer.mu.Lock()
		defer f.enqueuer.mu.Unlock()
		require.Len(t, f.enqueuer.tasks, 1)
		npcTask := f.enqueuer.tasks[0]
		assert.Equal(t, queue.TaskTypeNPCTurn, npcTask.Type)
		assert.Equal(t, sessionID, npcTask.SessionID)
		assert.Equal(t, "client-1", npcTask.ClientID)
		assert.Zero(t, npcTask.Depth)
	})
}

func TestProcessAttackEndsCombat(t *testing.T) {
	// d100 = 50 (no danger), attack d6 = 6. 14/2 + 6 = 13 damage.
	f := newFixture(50, 6)
	ctx := context.Background()
	sessionID := uuid.New()

	gs, pc, goblin := inProgressState(sessionID)
	gs.Phase = state.PhaseInCombat
	gs.SceneContext.Entities[0].Health = 10
	gs.InitiativeOrder = []string{pc.CharacterID, goblin.InstanceID}
	f.seed(t, gs)
	f.narrator.Intent = &rules.Intent{Type: rules.IntentAttack, Target: "Goblin"}

	require.NoError(t, f.processor.Process(ctx, playerTask(sessionID, pc.CharacterID, "finish the goblin")))

	req := f.narrator.LastRequest
	require.NotNil(t, req)
	assert.Contains(t, req.Outcome, "Combat has ended")

	loaded := f.reload(t, sessionID)
	assert.Equal(t, state.PhaseGameInProgress, loaded.Phase)
	assert.Empty(t, loaded.InitiativeOrder)
	assert.Equal(t, pc.CharacterID, loaded.CurrentTurnEntityID)
	assert.LessOrEqual(t, loaded.SceneContext.Entities[0].Health, 0)

	f.enqueuer.mu.Lock()
	defer f.enqueuer.mu.Unlock()
	assert.Empty(t, f.enqueuer.tasks)
}

func npcTask(sessionID uuid.UUID, depth int) *queue.Task {
	return queue.NewNPCTurnTask(sessionID, "client-1", "en", depth)
}

func TestProcessNPCTurn(t *testing.T) {
	combatState := func(sessionID uuid.UUID) (*state.GameState, *actor.PlayerCharacter, *actor.SceneEntity) {
		gs, pc, goblin := inProgressState(sessionID)
		gs.Phase = state.PhaseInCombat
		gs.InitiativeOrder = []string{goblin.InstanceID, pc.CharacterID}
		gs.CurrentTurnEntityID = goblin.InstanceID
		return gs, pc, goblin
	}

	t.Run("attacks and hands the turn back", func(t *testing.T) {
		// Goblin strength 8: damage = 8/2 + d6(4) = 8.
		f := newFixture(4)
		sessionID := uuid.New()
		gs, pc, _ := combatState(sessionID)
		f.seed(t, gs)

		require.NoError(t, f.processor.Process(context.Background(), npcTask(sessionID, 0)))

		ev := f.publisher.last(t)
		assert.Equal(t, queue.EventNarrativeUpdate, ev.Event.EventType)

		req := f.narrator.LastRequest
		require.NotNil(t, req)
		assert.Equal(t, "Goblin", req.ActorName)
		assert.Equal(t, "lunges at the nearest foe", req.ActionText)
		assert.Contains(t, req.Outcome, "Aria")

		loaded := f.reload(t, sessionID)
		assert.Equal(t, actor.DefaultHealth-8, loaded.Party[0].Health)
		assert.Equal(t, pc.CharacterID, loaded.CurrentTurnEntityID)

		// The next combatant is a player, so no follow-up task.
		f.enqueuer.mu.Lock()
		defer f.enqueuer.mu.Unlock()
		assert.Empty(t, f.enqueuer.tasks)
	})

	t.Run("dropped outside combat", func(t *testing.T) {
		f := newFixture()
		sessionID := uuid.New()
		gs, _, _ := inProgressState(sessionID)
		f.seed(t, gs)

		require.NoError(t, f.processor.Process(context.Background(), npcTask(sessionID, 0)))
		assert.Empty(t, f.publisher.events)
	})

	t.Run("dropped when a player holds the turn", func(t *testing.T) {
		f := newFixture()
		sessionID := uuid.New()
		gs, pc, _ := combatState(sessionID)
		gs.CurrentTurnEntityID = pc.CharacterID
		f.seed(t, gs)

		require.NoError(t, f.processor.Process(context.Background(), npcTask(sessionID, 0)))
		assert.Empty(t, f.publisher.events)

		loaded := f.reload(t, sessionID)
		assert.Equal(t, pc.CharacterID, loaded.CurrentTurnEntityID)
	})

	t.Run("defeated combatant stays down", func(t *testing.T) {
		f := newFixture()
		sessionID := uuid.New()
		gs, pc, _ := combatState(sessionID)
		gs.SceneContext.Entities[0].Health = 0
		narrator := services.NewMockNarrator()
		wraith := actor.NewSceneEntity(narrator.WorldOptions[0].InitialBestiary[1])
		gs.SceneContext.Entities = append(gs.SceneContext.Entities, wraith)
		f.seed(t, gs)

		require.NoError(t, f.processor.Process(context.Background(), npcTask(sessionID, 0)))

		req := f.narrator.LastRequest
		require.NotNil(t, req)
		assert.Contains(t, req.Outcome, "lies defeated")

		loaded := f.reload(t, sessionID)
		assert.Equal(t, state.PhaseInCombat, loaded.Phase)
		assert.Equal(t, actor.DefaultHealth, loaded.Party[0].Health)
		assert.Equal(t, pc.CharacterID, loaded.CurrentTurnEntityID)
	})

	t.Run("ends combat when no hostiles stand", func(t *testing.T) {
		// A forced state can enter an NPC turn with every hostile already
		// at zero health. The turn must close combat instead of cycling
		// the initiative order forever.
		f := newFixture()
		sessionID := uuid.New()
		gs, pc, _ := combatState(sessionID)
		gs.SceneContext.Entities[0].Health = 0
		f.seed(t, gs)

		require.NoError(t, f.processor.Process(context.Background(), npcTask(sessionID, 0)))

		req := f.narrator.LastRequest
		require.NotNil(t, req)
		assert.Contains(t, req.Outcome, "Combat has ended")

		loaded := f.reload(t, sessionID)
		assert.Equal(t, state.PhaseGameInProgress, loaded.Phase)
		assert.Empty(t, loaded.InitiativeOrder)
		assert.Equal(t, pc.CharacterID, loaded.CurrentTurnEntityID)

		f.enqueuer.mu.Lock()
		defer f.enqueuer.mu.Unlock()
		assert.Empty(t, f.enqueuer.tasks)
	})

	t.Run("tactical failure degrades to hesitation", func(t *testing.T) {
		f := newFixture()
		sessionID := uuid.New()
		gs, _, _ := combatState(sessionID)
		f.seed(t, gs)
		f.narrator.NPCErr = errors.New("model unavailable")

		require.NoError(t, f.processor.Process(context.Background(), npcTask(sessionID, 0)))

		req := f.narrator.LastRequest
		require.NotNil(t, req)
		assert.Equal(t, "hesitates", req.ActionText)

		loaded := f.reload(t, sessionID)
		assert.Equal(t, actor.DefaultHealth, loaded.Party[0].Health)
	})

	t.Run("narration failure falls back to the mechanical outcome", func(t *testing.T) {
		f := newFixture(4)
		sessionID := uuid.New()
		gs, _, _ := combatState(sessionID)
		f.seed(t, gs)
		f.narrator.NarrateTurnFunc = func(req services.NarrationRequest) (*services.TurnNarration, error) {
			return nil, errors.New("model unavailable")
		}

		require.NoError(t, f.processor.Process(context.Background(), npcTask(sessionID, 0)))

		ev := f.publisher.last(t)
		assert.Equal(t, queue.EventNarrativeUpdate, ev.Event.EventType)
		assert.Contains(t, ev.Event.Narrative, "Goblin")
		assert.Contains(t, ev.Event.Narrative, "Aria")

		loaded := f.reload(t, sessionID)
		assert.Equal(t, actor.DefaultHealth-8, loaded.Party[0].Health)
	})

	t.Run("chains to the next combatant within the depth cap", func(t *testing.T) {
		f := newFixture(4)
		sessionID := uuid.New()
		gs, pc, goblin := combatState(sessionID)
		narrator := services.NewMockNarrator()
		wraith := actor.NewSceneEntity(narrator.WorldOptions[0].InitialBestiary[1])
		gs.SceneContext.Entities = append(gs.SceneContext.Entities, wraith)
		gs.InitiativeOrder = []string{goblin.InstanceID, wraith.InstanceID, pc.CharacterID}
		f.seed(t, gs)

		require.NoError(t, f.processor.Process(context.Background(), npcTask(sessionID, 0)))

		f.enqueuer.mu.Lock()
		defer f.enqueuer.mu.Unlock()
		require.Len(t, f.enqueuer.tasks, 1)
		assert.Equal(t, queue.TaskTypeNPCTurn, f.enqueuer.tasks[0].Type)
		assert.Equal(t, 1, f.enqueuer.tasks[0].Depth)
	})

	t.Run("depth cap stops the chain", func(t *testing.T) {
		f := newFixture(4)
		sessionID := uuid.New()
		gs, pc, goblin := combatState(sessionID)
		narrator := services.NewMockNarrator()
		wraith := actor.NewSceneEntity(narrator.WorldOptions[0].InitialBestiary[1])
		gs.SceneContext.Entities = append(gs.SceneContext.Entities, wraith)
		gs.InitiativeOrder = []string{goblin.InstanceID, wraith.InstanceID, pc.CharacterID}
		f.seed(t, gs)

		// Depth 2 of a 3-combatant order: 2+1 is not below the cap.
		require.NoError(t, f.processor.Process(context.Background(), npcTask(sessionID, 2)))

		f.enqueuer.mu.Lock()
		defer f.enqueuer.mu.Unlock()
		assert.Empty(t, f.enqueuer.tasks)
	})
}

func TestProcessRoundRobinOutsideCombat(t *testing.T) {
	f := newFixture(50)
	ctx := context.Background()
	sessionID := uuid.New()

	gs, pc, _ := inProgressState(sessionID)
	class := services.NewMockNarrator().ClassOptions[0]
	second := actor.NewPlayerCharacter("client-2", "Bram", 31, "male", "blacksmith", class)
	gs.Party = append(gs.Party, second)
	f.seed(t, gs)

	require.NoError(t, f.processor.Process(ctx, playerTask(sessionID, pc.CharacterID, "look around")))

	loaded := f.reload(t, sessionID)
	assert.Equal(t, second.CharacterID, loaded.CurrentTurnEntityID)
}

func TestProcessIntentClassificationFallback(t *testing.T) {
	f := newFixture(50)
	ctx := context.Background()
	sessionID := uuid.New()

	gs, pc, _ := inProgressState(sessionID)
	f.seed(t, gs)

	// A failing classifier downgrades the action to an observation
	// instead of failing the turn.
	f.narrator.Err = errors.New("model unavailable")
	err := f.processor.Process(ctx, playerTask(sessionID, pc.CharacterID, "do something strange"))

	// The narrator itself also fails here, so the turn errors after the
	// fallback. What matters is the classification failure alone did not
	// mutate anything.
	require.Error(t, err)
	loaded := f.reload(t, sessionID)
	assert.Equal(t, pc.CharacterID, loaded.CurrentTurnEntityID)
	assert.Empty(t, loaded.PreviousTurnNarrative)
}

func TestProcessChoiceViaClassifier(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	sessionID := uuid.New()

	icy := actor.WorldOption{
		Name:         "Frosthold",
		Description:  "Glaciers and buried keeps.",
		MainPlotHook: "The eternal winter is spreading south.",
	}
	f.narrator.WorldOptions = append(f.narrator.WorldOptions, icy)

	gs := state.NewGameState(sessionID)
	gs.Phase = state.PhaseWorldSelection
	gs.WorldSelectionOptions = f.narrator.WorldOptions
	f.seed(t, gs)

	// The classifier maps text that names no option onto an index.
	choice := 1
	f.narrator.Choice = &choice

	require.NoError(t, f.processor.Process(ctx, playerTask(sessionID, "", "the icy one")))

	loaded := f.reload(t, sessionID)
	require.NotNil(t, loaded.World)
	assert.Equal(t, "Frosthold", loaded.World.Name)
	assert.Equal(t, state.PhaseCreationNumPlayers, loaded.Phase)
}

func TestMatchChoice(t *testing.T) {
	names := []string{"Eldoria", "The Ashen Vale"}

	tests := []struct {
		name    string
		input   string
		want    int
		wantErr bool
	}{
		{"exact name", "Eldoria", 0, false},
		{"name inside a sentence", "I choose the ashen vale", 1, false},
		{"number", "2", 1, false},
		{"number inside a sentence", "option 1 sounds good", 0, false},
		{"number out of range", "3", 0, true},
		{"gibberish", "the moon", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := matchChoice(tt.input, names)
			if tt.wantErr {
				var vErr *state.ValidationError
				require.ErrorAs(t, err, &vErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseCharacterDetails(t *testing.T) {
	name, age, gender, backstory, err := parseCharacterDetails("Aria, 27, female, a wandering scholar")
	require.NoError(t, err)
	assert.Equal(t, "Aria", name)
	assert.Equal(t, 27, age)
	assert.Equal(t, "female", gender)
	assert.Equal(t, "a wandering scholar", backstory)

	// Commas in the name survive the right-to-left split.
	name, _, _, _, err = parseCharacterDetails("Urzoth, Eater of Worlds, 400, male, ancient")
	require.NoError(t, err)
	assert.Equal(t, "Urzoth, Eater of Worlds", name)

	_, _, _, _, err = parseCharacterDetails("Aria, twenty-seven, female, scholar")
	var vErr *state.ValidationError
	require.ErrorAs(t, err, &vErr)

	_, _, _, _, err = parseCharacterDetails("Aria")
	require.ErrorAs(t, err, &vErr)
}

func TestActionText(t *testing.T) {
	withPayload := playerTask(uuid.New(), "", "open the door")
	assert.Equal(t, "open the door", actionText(withPayload))

	bare := queue.NewPlayerActionTask(uuid.New(), "client-1", "",
		queue.ClientAction{ActionType: "look around"}, "en")
	assert.Equal(t, "look around", actionText(bare))
}
