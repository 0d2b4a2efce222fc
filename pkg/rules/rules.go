// Package rules implements the deterministic rules engine: combat
// initiation and resolution, the two-phase skill-check protocol,
// inventory handling, rewards and leveling, and combat-end detection.
// All functions operate on a task-local GameState and perform no I/O.
package rules

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/Aksor9/AI-GameMaster/pkg/actor"
	"github.com/Aksor9/AI-GameMaster/pkg/state"
)

var titleCaser = cases.Title(language.English)

const (
	// DefaultSkillCheckDC is used when the classified intent carries no DC.
	DefaultSkillCheckDC = 12

	// CombatBeginsMessage is the fixed outcome of a combat-initiating turn.
	// The triggering attack itself is deferred to the attacker's next turn.
	CombatBeginsMessage = "Combat begins! The air crackles with tension as initiative is rolled."

	// CombatEndedNotice is appended to the outcome of the turn on which the
	// last hostile falls.
	CombatEndedNotice = "\n\n**Combat has ended!**"

	dangerChancePercent = 5
)

// incoherentItemKeywords rejects acquisition of objects foreign to the
// setting.
var incoherentItemKeywords = []string{"laser", "pistol", "spaceship", "computer", "phone", "gun"}

// Engine is the rules engine. It is stateless apart from its dice roller
// and safe to share across tasks.
type Engine struct {
	roller Roller
}

// NewEngine creates a rules engine using the given dice roller.
func NewEngine(roller Roller) *Engine {
	if roller == nil {
		roller = NewRoller()
	}
	return &Engine{roller: roller}
}

// InitiateCombat rolls initiative for all players and all hostile scene
// entities and enters the IN_COMBAT phase. Entities are included
// regardless of remaining health; whoever manages combat entry decides
// who belongs in the scene.
//
// Ties keep the original combatant ordering: players in creation order
// first, then scene entities in list order.
func (e *Engine) InitiateCombat(gs *state.GameState) {
	type entrant struct {
		id   string
		roll int
	}

	var entrants []entrant
	for _, pc := range gs.Party {
		entrants = append(entrants, entrant{
			id:   pc.CharacterID,
			roll: e.roller.Roll(20) + actor.Modifier(pc.Stats.Dexterity),
		})
	}
	for i := range gs.SceneContext.Entities {
		ent := &gs.SceneContext.Entities[i]
		if !ent.IsHostile {
			continue
		}
		entrants = append(entrants, entrant{
			id:   ent.InstanceID,
			roll: e.roller.Roll(20) + actor.Modifier(ent.Stats.Dexterity),
		})
	}

	sort.SliceStable(entrants, func(i, j int) bool {
		return entrants[i].roll > entrants[j].roll
	})

	order := make([]string, len(entrants))
	for i, en := range entrants {
		order[i] = en.id
	}

	gs.Phase = state.PhaseInCombat
	gs.InitiativeOrder = order
	if len(order) > 0 {
		gs.CurrentTurnEntityID = order[0]
	}
}

// SkillCheck performs phase 1 of the two-phase skill-check protocol: the
// roll happens now, in secret, and the session pauses for confirmation.
// The returned text is the challenge shown to the player; it states the
// stat and DC but never the roll or its result.
func (e *Engine) SkillCheck(intent *Intent, gs *state.GameState, pc *actor.PlayerCharacter) string {
	statName := strings.ToLower(intent.RelevantStat)
	if _, ok := pc.Stats.Get(statName); !ok {
		statName = "dexterity"
	}

	dc := intent.RequiredDC
	if dc == 0 {
		dc = DefaultSkillCheckDC
	}

	totalModifier := pc.StatModifier(statName) + pc.EffectModifier(statName)
	roll := e.roller.Roll(20)

	gs.Phase = state.PhaseAwaitingRollConfirm
	gs.PendingAction = &state.PendingAction{
		ActingCharacterID: pc.CharacterID,
		ActionText:        intent.ActionDescription,
		StatName:          statName,
		Modifier:          totalModifier,
		DC:                dc,
		DiceRoll:          roll,
		IsSuccess:         roll+totalModifier >= dc,
	}

	return fmt.Sprintf(
		"You prepare to '%s'. This will require a %s check against a Difficulty Class (DC) of %d. "+
			"(Your character's total modifier for this is %+d).",
		intent.ActionDescription, titleCaser.String(statName), dc, totalModifier)
}

// ResolvePendingAction performs phase 2 of a skill check: the stored roll
// is revealed and narrated. The outcome was fixed when the pending action
// was created; this never re-rolls. A failed check costs the actor d4
// health with no mechanical floor. The session returns to
// GAME_IN_PROGRESS either way.
func (e *Engine) ResolvePendingAction(gs *state.GameState) (string, error) {
	pending := gs.PendingAction
	if pending == nil {
		return "", state.NewValidationError("no skill check was pending for confirmation")
	}

	pc := gs.FindPlayer(pending.ActingCharacterID)
	if pc == nil {
		return "", &state.NotFoundError{What: "acting player", ID: pending.ActingCharacterID}
	}

	total := pending.DiceRoll + pending.Modifier
	var outcome string
	if pending.IsSuccess {
		outcome = fmt.Sprintf(
			"The dice roll is a %d! With your modifier of %+d, your total is %d. A success against the DC of %d!",
			pending.DiceRoll, pending.Modifier, total, pending.DC)
	} else {
		damage := e.roller.Roll(4)
		pc.Health -= damage
		outcome = fmt.Sprintf(
			"The dice roll is a %d. With your modifier of %+d, your total is %d. "+
				"Unfortunately, that's not enough to beat the DC of %d. You fail and take %d damage.",
			pending.DiceRoll, pending.Modifier, total, pending.DC, damage)
	}

	gs.PendingAction = nil
	gs.Phase = state.PhaseGameInProgress
	return outcome, nil
}

// Attack resolves an attack against a named scene entity. Missing or
// non-hostile targets produce a narrated rejection and no state change.
// A defeated target stays in the scene and in the initiative order.
func (e *Engine) Attack(intent *Intent, gs *state.GameState, pc *actor.PlayerCharacter) string {
	if intent.Target == "" {
		return "The player wanted to attack, but did not specify a target."
	}
	target := gs.SceneContext.FindEntityByName(intent.Target)
	if target == nil {
		return fmt.Sprintf("The player tried to attack '%s', but there is no such target.", intent.Target)
	}
	if !target.IsHostile {
		return fmt.Sprintf("The player attacks '%s', but they are not hostile.", intent.Target)
	}

	damage := pc.Stats.Strength/2 + e.roller.Roll(6)
	target.Health -= damage

	if target.Health <= 0 {
		return fmt.Sprintf("With a final blow, the player defeats %s!", target.Name)
	}
	return fmt.Sprintf("The player attacks %s, dealing %d damage. It has %d health remaining.",
		target.Name, damage, target.Health)
}

// NPCAttack resolves a non-player combatant's attack on a party member.
// Same damage formula as a player attack. Health has no floor.
func (e *Engine) NPCAttack(npc *actor.PlayerCharacter, target *actor.PlayerCharacter) string {
	damage := npc.Stats.Strength/2 + e.roller.Roll(6)
	target.Health -= damage

	if target.Health <= 0 {
		return fmt.Sprintf("%s strikes %s down with a brutal blow dealing %d damage!",
			npc.Name, target.Name, damage)
	}
	return fmt.Sprintf("%s attacks %s, dealing %d damage. %s has %d health remaining.",
		npc.Name, target.Name, damage, target.Name, target.Health)
}

// ManageInventory handles item acquisition and removal. Acquisition is
// idempotent per case-insensitive item name, and names matching the
// anachronism denylist are rejected narratively. Removal requires an
// exact case-insensitive match.
func (e *Engine) ManageInventory(intent *Intent, pc *actor.PlayerCharacter) string {
	if intent.ItemName == "" {
		return "The player specified no item."
	}
	itemName := titleCaser.String(strings.ToLower(intent.ItemName))

	if intent.IsAcquisition {
		lower := strings.ToLower(itemName)
		for _, keyword := range incoherentItemKeywords {
			if strings.Contains(lower, keyword) {
				return fmt.Sprintf(
					"The player's attempt to find a '%s' failed because such an object is entirely foreign to this world.",
					itemName)
			}
		}
		if pc.HasItem(itemName) {
			return fmt.Sprintf("The player already has a '%s'.", itemName)
		}
		pc.AddItem(actor.Item{Name: itemName, Description: "A newly found item.", Category: "misc"})
		return fmt.Sprintf("The player successfully acquired the '%s'.", itemName)
	}

	if pc.RemoveItem(itemName) {
		return fmt.Sprintf("The player has used or discarded the '%s'.", itemName)
	}
	return fmt.Sprintf("The player tried to use a '%s', but they don't have one.", itemName)
}

// ApplyRewards grants xp, currency and items to a character, then applies
// the leveling rule (at most one level per application). Returns a
// composed description of everything received.
func (e *Engine) ApplyRewards(pc *actor.PlayerCharacter, rewards actor.QuestRewards) string {
	pc.XP += rewards.XP
	pc.Currency += rewards.Currency
	pc.Inventory = append(pc.Inventory, rewards.Items...)

	text := fmt.Sprintf("Received %d XP, %d currency.", rewards.XP, rewards.Currency)
	if len(rewards.Items) > 0 {
		names := make([]string, len(rewards.Items))
		for i, item := range rewards.Items {
			names[i] = item.Name
		}
		text += " Items: " + strings.Join(names, ", ")
	}

	if msg := pc.CheckLevelUp(); msg != "" {
		text += " " + msg
	}
	return text
}

// ProcessTurn is the per-turn pipeline. In order: combat initiation when
// an attack targets a hostile outside combat (the attack itself waits for
// the next turn); the random danger signal; intent dispatch; combat-end
// detection. It returns the updated outcome text and the danger flag,
// which is narrative flavor only.
func (e *Engine) ProcessTurn(intent *Intent, gs *state.GameState, pc *actor.PlayerCharacter) (outcome string, isDanger bool) {
	if intent.Type == IntentAttack && gs.Phase != state.PhaseInCombat && intent.Target != "" {
		if target := gs.SceneContext.FindEntityByName(intent.Target); target != nil && target.IsHostile {
			e.InitiateCombat(gs)
			return CombatBeginsMessage, false
		}
	}

	isDanger = e.roller.Roll(100) <= dangerChancePercent &&
		intent.Type != IntentObserve && intent.Type != IntentSocial

	switch intent.Type {
	case IntentInventory:
		outcome = e.ManageInventory(intent, pc)
	case IntentSkill:
		outcome = e.SkillCheck(intent, gs, pc)
	case IntentAttack:
		// Only reached while already in combat.
		outcome = e.Attack(intent, gs, pc)
	default:
		outcome = "The player takes a moment to interact with their surroundings."
	}

	if gs.Phase == state.PhaseInCombat && !gs.SceneContext.HasLivingHostiles() {
		gs.Phase = state.PhaseGameInProgress
		gs.InitiativeOrder = nil
		gs.CurrentTurnEntityID = pc.CharacterID
		outcome += CombatEndedNotice
	}

	return outcome, isDanger
}
