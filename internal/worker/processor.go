package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/Aksor9/AI-GameMaster/internal/services"
	"github.com/Aksor9/AI-GameMaster/internal/storage"
	"github.com/Aksor9/AI-GameMaster/pkg/actor"
	"github.com/Aksor9/AI-GameMaster/pkg/queue"
	"github.com/Aksor9/AI-GameMaster/pkg/rules"
	"github.com/Aksor9/AI-GameMaster/pkg/state"
)

const (
	maxPartySize = 4

	// historyLimit bounds how many past-turn snippets are retrieved from
	// memory per narration.
	historyLimit = 3

	dangerNotice = "Suddenly, something in the scene shifts. An unexpected danger reveals itself."
)

var numberPattern = regexp.MustCompile(`\d+`)

// TaskEnqueuer schedules follow-up tasks, such as NPC combat turns.
type TaskEnqueuer interface {
	Enqueue(ctx context.Context, task *queue.Task) error
}

// ResultPublisher delivers a task's result to the originating client.
type ResultPublisher interface {
	Publish(ctx context.Context, clientID string, event queue.ResultEvent) error
}

type phaseHandler func(ctx context.Context, task *queue.Task, gs *state.GameState) (*queue.ResultEvent, error)

// ActionProcessor is the phase dispatcher. Each task loads the latest
// persisted state, routes it through the handler for the session's
// current phase, persists the mutated state, and publishes one result
// event. Handlers mutate only the task-local copy, so a failed task
// leaves the persisted session untouched.
type ActionProcessor struct {
	storage    storage.Storage
	narrator   services.Narrator
	classifier services.IntentClassifier
	memory     services.Memory
	engine     *rules.Engine
	tasks      TaskEnqueuer
	results    ResultPublisher
	logger     *slog.Logger

	handlers map[state.Phase]phaseHandler
}

// NewActionProcessor wires the dispatcher.
func NewActionProcessor(
	store storage.Storage,
	narrator services.Narrator,
	classifier services.IntentClassifier,
	memory services.Memory,
	engine *rules.Engine,
	tasks TaskEnqueuer,
	results ResultPublisher,
	logger *slog.Logger,
) *ActionProcessor {
	p := &ActionProcessor{
		storage:    store,
		narrator:   narrator,
		classifier: classifier,
		memory:     memory,
		engine:     engine,
		tasks:      tasks,
		results:    results,
		logger:     logger,
	}
	p.handlers = map[state.Phase]phaseHandler{
		state.PhaseNewGame:             p.handleNewGame,
		state.PhaseWorldSelection:      p.handleWorldSelection,
		state.PhaseCreationNumPlayers:  p.handleNumPlayers,
		state.PhaseCreationClasses:     p.handleClassSelection,
		state.PhaseCreationDetails:     p.handleCharacterDetails,
		state.PhaseGameInProgress:      p.handleGameTurn,
		state.PhaseInCombat:            p.handleGameTurn,
		state.PhaseAwaitingRollConfirm: p.handleRollConfirmation,
	}
	return p
}

// Process runs one task to completion. Mutated state is persisted and the
// result published only when the handler succeeds end to end.
func (p *ActionProcessor) Process(ctx context.Context, task *queue.Task) error {
	if task.Action.ActionType == queue.ActionForceGameState {
		return p.handleForceState(ctx, task)
	}

	gs, err := p.storage.LoadGameState(ctx, task.SessionID)
	if err != nil {
		return fmt.Errorf("failed to load session: %w", err)
	}
	if gs == nil {
		return &state.NotFoundError{What: "session", ID: task.SessionID.String()}
	}

	var (
		event   *queue.ResultEvent
		handler phaseHandler
	)
	if task.Type == queue.TaskTypeNPCTurn {
		handler = p.handleNPCTurn
	} else {
		var ok bool
		handler, ok = p.handlers[gs.Phase]
		if !ok {
			return state.NewInvariantError("no handler for phase %q", gs.Phase)
		}
	}

	event, err = handler(ctx, task, gs)
	if err != nil {
		return err
	}
	if event == nil {
		// Stale follow-up task. Nothing changed, nothing to publish.
		return nil
	}

	if err := gs.CheckInvariants(); err != nil {
		return err
	}
	if err := p.storage.SaveGameState(ctx, task.SessionID, gs); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}

	event.NewGameState = gs.PublicView()
	if err := p.results.Publish(ctx, task.ClientID, *event); err != nil {
		p.logger.Error("Failed to publish result", "error", err, "session_id", task.SessionID)
	}
	return nil
}

// handleForceState overwrites the session with the payload, bypassing the
// phase machine entirely.
func (p *ActionProcessor) handleForceState(ctx context.Context, task *queue.Task) error {
	var gs state.GameState
	if err := json.Unmarshal(task.Action.Payload, &gs); err != nil {
		return state.NewValidationError("forced game state is not valid JSON: %v", err)
	}
	gs.SessionID = task.SessionID

	if err := p.storage.SaveGameState(ctx, task.SessionID, &gs); err != nil {
		return fmt.Errorf("failed to save forced session: %w", err)
	}

	event := queue.ResultEvent{
		EventType:    queue.EventStateForced,
		Narrative:    "The game state has been overwritten.",
		NewGameState: gs.PublicView(),
	}
	if err := p.results.Publish(ctx, task.ClientID, event); err != nil {
		p.logger.Error("Failed to publish result", "error", err, "session_id", task.SessionID)
	}
	return nil
}

func (p *ActionProcessor) handleNewGame(ctx context.Context, task *queue.Task, gs *state.GameState) (*queue.ResultEvent, error) {
	options, err := p.narrator.GenerateWorldOptions(ctx, task.Language)
	if err != nil {
		return nil, err
	}

	gs.WorldSelectionOptions = options
	gs.Phase = state.PhaseWorldSelection

	return &queue.ResultEvent{
		EventType:    queue.EventWorldOptions,
		Narrative:    "Choose the world where your adventure will unfold.",
		WorldOptions: options,
	}, nil
}

func (p *ActionProcessor) handleWorldSelection(ctx context.Context, task *queue.Task, gs *state.GameState) (*queue.ResultEvent, error) {
	names := make([]string, len(gs.WorldSelectionOptions))
	for i, w := range gs.WorldSelectionOptions {
		names[i] = w.Name
	}
	idx, err := p.resolveChoice(ctx, actionText(task), names)
	if err != nil {
		return nil, err
	}

	world := gs.WorldSelectionOptions[idx]
	gs.World = &world
	gs.MainPlot = &world.MainPlot
	gs.Bestiary = make(map[string]actor.Entity, len(world.InitialBestiary))
	for _, e := range world.InitialBestiary {
		gs.Bestiary[strings.ToLower(e.Name)] = e
	}
	gs.WorldSelectionOptions = nil
	gs.Phase = state.PhaseCreationNumPlayers

	return &queue.ResultEvent{
		EventType: queue.EventPromptUser,
		Narrative: fmt.Sprintf("The world of %s awaits. How many heroes will form the party? (1-%d)",
			world.Name, maxPartySize),
		PromptUserFor: "num_players",
	}, nil
}

func (p *ActionProcessor) handleNumPlayers(ctx context.Context, task *queue.Task, gs *state.GameState) (*queue.ResultEvent, error) {
	text := strings.TrimSpace(actionText(task))
	n, err := strconv.Atoi(text)
	if err != nil {
		if m := numberPattern.FindString(text); m != "" {
			n, _ = strconv.Atoi(m)
		}
	}
	if n < 1 || n > maxPartySize {
		return nil, state.NewValidationError("party size must be between 1 and %d", maxPartySize)
	}

	options, err := p.narrator.GenerateClassOptions(ctx, gs.World, task.Language)
	if err != nil {
		return nil, err
	}

	gs.NumPlayersToCreate = n
	gs.ClassSelectionOptions = options
	gs.Phase = state.PhaseCreationClasses

	return &queue.ResultEvent{
		EventType:    queue.EventClassOptions,
		Narrative:    fmt.Sprintf("Choose a class for hero 1 of %d.", n),
		ClassOptions: options,
	}, nil
}

func (p *ActionProcessor) handleClassSelection(ctx context.Context, task *queue.Task, gs *state.GameState) (*queue.ResultEvent, error) {
	names := make([]string, len(gs.ClassSelectionOptions))
	for i, c := range gs.ClassSelectionOptions {
		names[i] = c.Name
	}
	idx, err := p.resolveChoice(ctx, actionText(task), names)
	if err != nil {
		return nil, err
	}

	class := gs.ClassSelectionOptions[idx]
	gs.PendingCharacterClass = &class
	gs.Phase = state.PhaseCreationDetails

	return &queue.ResultEvent{
		EventType: queue.EventPromptUser,
		Narrative: fmt.Sprintf("A %s it is. Describe your hero: name, age, gender, backstory (comma separated).",
			class.Name),
		PromptUserFor: "character_details",
	}, nil
}

func (p *ActionProcessor) handleCharacterDetails(ctx context.Context, task *queue.Task, gs *state.GameState) (*queue.ResultEvent, error) {
	if gs.PendingCharacterClass == nil {
		return nil, state.NewInvariantError("awaiting character details with no pending class")
	}

	name, age, gender, backstory, err := parseCharacterDetails(actionText(task))
	if err != nil {
		return nil, err
	}

	pc := actor.NewPlayerCharacter(task.ClientID, name, age, gender, backstory, *gs.PendingCharacterClass)
	gs.Party = append(gs.Party, pc)
	gs.CharactersCreated++
	gs.PendingCharacterClass = nil

	if gs.CharactersCreated < gs.NumPlayersToCreate {
		gs.Phase = state.PhaseCreationClasses
		return &queue.ResultEvent{
			EventType: queue.EventClassOptions,
			Narrative: fmt.Sprintf("Welcome, %s. Choose a class for hero %d of %d.",
				pc.Name, gs.CharactersCreated+1, gs.NumPlayersToCreate),
			ClassOptions: gs.ClassSelectionOptions,
		}, nil
	}

	// Party complete. Open the story.
	gs.ClassSelectionOptions = nil
	gs.Phase = state.PhaseGameInProgress
	gs.CurrentTurnEntityID = gs.Party[0].CharacterID
	gs.SceneContext = actor.SceneContext{
		LocationName: gs.World.Name,
		Description:  gs.World.MainPlotHook,
	}

	narration, err := p.narrator.NarrateOpening(ctx, gs, task.Language)
	if err != nil {
		return nil, err
	}
	gs.PreviousTurnNarrative = narration.Narrative
	if narration.StorySummary != "" {
		gs.StorySummary = narration.StorySummary
	}
	p.appendMemory(ctx, gs, "narrator", narration.Narrative)

	return &queue.ResultEvent{
		EventType:   queue.EventNarrativeUpdate,
		Narrative:   narration.Narrative,
		ImagePrompt: narration.ImagePrompt,
	}, nil
}

// handleGameTurn processes a player action in GAME_IN_PROGRESS or
// IN_COMBAT.
func (p *ActionProcessor) handleGameTurn(ctx context.Context, task *queue.Task, gs *state.GameState) (*queue.ResultEvent, error) {
	if task.Action.ActionType == queue.ActionConfirmDiceRoll {
		return nil, &state.StaleActionError{Reason: "no dice roll awaits confirmation"}
	}

	pc := gs.FindPlayer(task.ActorID)
	if pc == nil {
		return nil, &state.NotFoundError{What: "player", ID: task.ActorID}
	}
	if gs.CurrentTurnEntityID != "" && gs.CurrentTurnEntityID != pc.CharacterID {
		return nil, &state.StaleActionError{Reason: fmt.Sprintf(
			"it is not %s's turn", pc.Name)}
	}

	text := actionText(task)
	intent, err := p.classifier.ClassifyIntent(ctx, text, gs)
	if err != nil {
		p.logger.Warn("Intent classification failed, treating action as observation",
			"error", err, "session_id", gs.SessionID)
		intent = rules.ObserveIntent(text)
	}

	initialPhase := gs.Phase
	outcome, danger := p.engine.ProcessTurn(intent, gs, pc)
	combatStarted := initialPhase != state.PhaseInCombat && gs.Phase == state.PhaseInCombat

	if gs.Phase == state.PhaseAwaitingRollConfirm {
		// Phase 1 of a skill check: pause for confirmation, no narration,
		// no turn advance.
		return &queue.ResultEvent{
			EventType: queue.EventDiceRollRequest,
			Narrative: outcome,
		}, nil
	}

	narration, err := p.narrate(ctx, task, gs, pc.Name, text, outcome, intent, danger)
	if err != nil {
		return nil, err
	}

	if err := p.scheduleNext(ctx, task, gs, combatStarted); err != nil {
		return nil, err
	}

	return &queue.ResultEvent{
		EventType:   queue.EventNarrativeUpdate,
		Narrative:   narration.Narrative,
		ImagePrompt: narration.ImagePrompt,
	}, nil
}

// handleRollConfirmation is phase 2 of a skill check. Only
// CONFIRM_DICE_ROLL is accepted; a numeric payload substitutes a
// physically rolled d20 for the stored roll.
func (p *ActionProcessor) handleRollConfirmation(ctx context.Context, task *queue.Task, gs *state.GameState) (*queue.ResultEvent, error) {
	if task.Action.ActionType != queue.ActionConfirmDiceRoll {
		return nil, state.NewValidationError("a dice roll awaits confirmation; confirm it before acting")
	}

	pending := gs.PendingAction
	if pending == nil {
		return nil, state.NewInvariantError("awaiting roll confirmation with no pending action")
	}
	if task.ActorID != pending.ActingCharacterID {
		return nil, &state.StaleActionError{Reason: "the pending roll belongs to another character"}
	}

	if len(task.Action.Payload) > 0 {
		var payload struct {
			Roll int `json:"roll"`
		}
		if err := json.Unmarshal(task.Action.Payload, &payload); err != nil {
			return nil, state.NewValidationError("confirmation payload is not valid JSON: %v", err)
		}
		if payload.Roll != 0 {
			if payload.Roll < 1 || payload.Roll > 20 {
				return nil, state.NewValidationError("a d20 roll must be between 1 and 20")
			}
			pending.DiceRoll = payload.Roll
			pending.IsSuccess = payload.Roll+pending.Modifier >= pending.DC
		}
	}

	pendingText := pending.ActionText
	outcome, err := p.engine.ResolvePendingAction(gs)
	if err != nil {
		return nil, err
	}

	pc := gs.FindPlayer(task.ActorID)
	if pc == nil {
		return nil, &state.NotFoundError{What: "player", ID: task.ActorID}
	}

	intent := &rules.Intent{Type: rules.IntentSkill, ActionDescription: pendingText}
	narration, err := p.narrate(ctx, task, gs, pc.Name, pendingText, outcome, intent, false)
	if err != nil {
		return nil, err
	}

	if err := p.scheduleNext(ctx, task, gs, false); err != nil {
		return nil, err
	}

	return &queue.ResultEvent{
		EventType:   queue.EventNarrativeUpdate,
		Narrative:   narration.Narrative,
		ImagePrompt: narration.ImagePrompt,
	}, nil
}

// handleNPCTurn resolves one non-player combat turn. The turn always
// advances: a failed tactical call degrades to hesitation, a failed
// narration falls back to the mechanical outcome text.
func (p *ActionProcessor) handleNPCTurn(ctx context.Context, task *queue.Task, gs *state.GameState) (*queue.ResultEvent, error) {
	if gs.Phase != state.PhaseInCombat {
		p.logger.Info("Dropping NPC turn task outside combat",
			"session_id", gs.SessionID, "phase", gs.Phase)
		return nil, nil
	}

	ent := gs.SceneContext.FindEntityByID(gs.CurrentTurnEntityID)
	if ent == nil {
		p.logger.Info("Dropping NPC turn task: current turn belongs to a player",
			"session_id", gs.SessionID, "current", gs.CurrentTurnEntityID)
		return nil, nil
	}
	npc := ent.AsCharacter()

	var action, outcome string
	switch {
	case ent.Health <= 0:
		action = "stays down"
		outcome = fmt.Sprintf("%s lies defeated and cannot act.", ent.Name)
	default:
		decision, err := p.narrator.ChooseNPCAction(ctx, gs, npc)
		if err != nil {
			p.logger.Warn("NPC tactical call failed, falling back to hesitation",
				"error", err, "session_id", gs.SessionID)
			action = "hesitates"
			outcome = fmt.Sprintf("%s hesitates, unsure of its next move.", ent.Name)
			break
		}
		action = decision.ActionText
		target := gs.FindPlayer(decision.TargetID)
		if target == nil {
			for _, member := range gs.Party {
				if member.Health > 0 {
					target = member
					break
				}
			}
		}
		if target == nil {
			outcome = fmt.Sprintf("%s finds no one left standing to fight.", ent.Name)
		} else {
			outcome = p.engine.NPCAttack(npc, target)
		}
	}

	// A forced or scripted state can leave combat with no hostiles alive.
	combatOver := !gs.SceneContext.HasLivingHostiles()
	if combatOver {
		gs.Phase = state.PhaseGameInProgress
		gs.InitiativeOrder = nil
		if len(gs.Party) > 0 {
			gs.CurrentTurnEntityID = gs.Party[0].CharacterID
		}
		outcome += rules.CombatEndedNotice
	}

	narration, err := p.narrator.NarrateTurn(ctx, services.NarrationRequest{
		GameState:  gs,
		ActorName:  ent.Name,
		ActionText: action,
		Outcome:    outcome,
		Language:   task.Language,
	})
	if err != nil {
		p.logger.Warn("NPC narration failed, using mechanical outcome",
			"error", err, "session_id", gs.SessionID)
		narration = &services.TurnNarration{Narrative: outcome}
	}
	gs.PreviousTurnNarrative = narration.Narrative
	if narration.StorySummary != "" {
		gs.StorySummary = narration.StorySummary
	}
	p.appendMemory(ctx, gs, ent.Name, narration.Narrative)

	if !combatOver {
		_, isNPC, err := gs.AdvanceCombatTurn()
		if err != nil {
			return nil, err
		}
		if isNPC && task.Depth+1 < gs.NPCChainLimit() {
			next := queue.NewNPCTurnTask(gs.SessionID, task.ClientID, task.Language, task.Depth+1)
			if err := p.tasks.Enqueue(ctx, next); err != nil {
				p.logger.Error("Failed to enqueue follow-up NPC turn", "error", err, "session_id", gs.SessionID)
			}
		}
	}

	return &queue.ResultEvent{
		EventType:   queue.EventNarrativeUpdate,
		Narrative:   narration.Narrative,
		ImagePrompt: narration.ImagePrompt,
	}, nil
}

// narrate runs the narrator for a resolved player turn and records the
// result in session memory. Memory failures are advisory; narrator
// failures are not.
func (p *ActionProcessor) narrate(ctx context.Context, task *queue.Task, gs *state.GameState, actorName, actionTxt, outcome string, intent *rules.Intent, danger bool) (*services.TurnNarration, error) {
	if danger {
		outcome += " " + dangerNotice
	}

	history, err := p.memory.History(ctx, gs.SessionID, actionTxt, historyLimit)
	if err != nil {
		p.logger.Warn("Memory retrieval failed, narrating without history",
			"error", err, "session_id", gs.SessionID)
		history = nil
	}

	narration, err := p.narrator.NarrateTurn(ctx, services.NarrationRequest{
		GameState:  gs,
		ActorName:  actorName,
		ActionText: actionTxt,
		Outcome:    outcome,
		Focus:      narrativeFocus(gs, intent),
		History:    history,
		Language:   task.Language,
	})
	if err != nil {
		return nil, err
	}

	gs.PreviousTurnNarrative = narration.Narrative
	if narration.StorySummary != "" {
		gs.StorySummary = narration.StorySummary
	}
	p.appendMemory(ctx, gs, actorName, narration.Narrative)
	return narration, nil
}

func (p *ActionProcessor) appendMemory(ctx context.Context, gs *state.GameState, actorName, narrative string) {
	if err := p.memory.AppendTurn(ctx, gs.SessionID, actorName, narrative); err != nil {
		p.logger.Warn("Failed to append turn to memory", "error", err, "session_id", gs.SessionID)
	}
}

// scheduleNext hands the turn to the next actor: initiative order in
// combat (enqueueing an NPC task when a non-player is up), round robin
// otherwise. The turn that entered combat does not advance; the top
// initiative roller keeps the opening turn.
func (p *ActionProcessor) scheduleNext(ctx context.Context, task *queue.Task, gs *state.GameState, combatStarted bool) error {
	if gs.Phase == state.PhaseInCombat {
		isNPC := !gs.Party.Contains(gs.CurrentTurnEntityID)
		if !combatStarted {
			var err error
			_, isNPC, err = gs.AdvanceCombatTurn()
			if err != nil {
				return err
			}
		}
		if isNPC {
			next := queue.NewNPCTurnTask(gs.SessionID, task.ClientID, task.Language, 0)
			if err := p.tasks.Enqueue(ctx, next); err != nil {
				p.logger.Error("Failed to enqueue NPC turn", "error", err, "session_id", gs.SessionID)
			}
		}
		return nil
	}
	gs.AdvanceRoundRobin()
	return nil
}

// narrativeFocus derives what the narration should center on: an attack
// target first, then the party's active quest, then the next main-plot
// milestone.
func narrativeFocus(gs *state.GameState, intent *rules.Intent) string {
	if intent != nil && intent.Target != "" {
		return intent.Target
	}
	for _, q := range gs.QuestLog {
		if q.Status == actor.QuestActive {
			return "the quest: " + q.Title
		}
	}
	if gs.MainPlot != nil && len(gs.MainPlot.KeyMilestones) > 0 {
		return gs.MainPlot.KeyMilestones[0]
	}
	return ""
}

// actionText extracts the player's free text. A payload "text" field wins;
// otherwise the action type itself carries the text.
func actionText(task *queue.Task) string {
	if len(task.Action.Payload) > 0 {
		var p struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal(task.Action.Payload, &p); err == nil && p.Text != "" {
			return p.Text
		}
	}
	return task.Action.ActionType
}

// resolveChoice interprets the player's text as one of the offered
// option names. The classifier is asked first; when it fails or returns
// an out-of-range index, matching degrades to matchChoice.
func (p *ActionProcessor) resolveChoice(ctx context.Context, text string, names []string) (int, error) {
	idx, err := p.classifier.ResolveChoice(ctx, text, names)
	if err == nil && idx >= 0 && idx < len(names) {
		return idx, nil
	}
	if err != nil {
		p.logger.Debug("Classifier choice resolution failed, matching locally",
			"error", err)
	}
	return matchChoice(text, names)
}

// matchChoice maps the player's text onto one of the offered option
// names: case-insensitive name match first, then the first number in the
// text as a 1-based index.
func matchChoice(text string, names []string) (int, error) {
	trimmed := strings.TrimSpace(text)
	lower := strings.ToLower(trimmed)
	for i, name := range names {
		if strings.Contains(lower, strings.ToLower(name)) {
			return i, nil
		}
	}
	if m := numberPattern.FindString(trimmed); m != "" {
		n, err := strconv.Atoi(m)
		if err == nil && n >= 1 && n <= len(names) {
			return n - 1, nil
		}
	}
	return 0, state.NewValidationError(
		"could not understand the choice %q; answer with a name or a number between 1 and %d",
		trimmed, len(names))
}

// parseCharacterDetails splits "name, age, gender, backstory" from the
// right, so commas inside the name survive.
func parseCharacterDetails(text string) (name string, age int, gender, backstory string, err error) {
	parts := rsplitN(text, ",", 4)
	if len(parts) != 4 {
		return "", 0, "", "", state.NewValidationError(
			"character details must be: name, age, gender, backstory")
	}
	name = strings.TrimSpace(parts[0])
	gender = strings.TrimSpace(parts[2])
	backstory = strings.TrimSpace(parts[3])
	age, ageErr := strconv.Atoi(strings.TrimSpace(parts[1]))
	if name == "" || ageErr != nil {
		return "", 0, "", "", state.NewValidationError(
			"character details must be: name, age, gender, backstory (age must be a number)")
	}
	return name, age, gender, backstory, nil
}

// rsplitN splits s on sep from the right into at most n parts.
func rsplitN(s, sep string, n int) []string {
	parts := strings.Split(s, sep)
	if len(parts) <= n {
		return parts
	}
	head := strings.Join(parts[:len(parts)-n+1], sep)
	out := []string{head}
	return append(out, parts[len(parts)-n+1:]...)
}

