package state

import "fmt"

// AdvanceCombatTurn moves CurrentTurnEntityID to the next id in the
// initiative order, wrapping circularly. It reports whether the new
// holder of the turn is a non-player entity.
//
// An empty initiative order or a current id that is no longer in the
// order indicates corrupted combat state and is surfaced as an
// InvariantError rather than silently repaired.
func (gs *GameState) AdvanceCombatTurn() (nextID string, isNPC bool, err error) {
	if len(gs.InitiativeOrder) == 0 {
		return "", false, &InvariantError{Msg: "cannot advance turn: initiative order is empty"}
	}
	current := -1
	for i, id := range gs.InitiativeOrder {
		if id == gs.CurrentTurnEntityID {
			current = i
			break
		}
	}
	if current < 0 {
		return "", false, &InvariantError{Msg: fmt.Sprintf(
			"current turn entity %q is not in the initiative order", gs.CurrentTurnEntityID)}
	}
	nextID = gs.InitiativeOrder[(current+1)%len(gs.InitiativeOrder)]
	gs.CurrentTurnEntityID = nextID
	return nextID, !gs.Party.Contains(nextID), nil
}

// AdvanceRoundRobin moves the turn to the next party member in insertion
// order. Used outside combat, after narration of the current action has
// completed. Sessions with a single player keep the same turn holder.
func (gs *GameState) AdvanceRoundRobin() {
	ids := gs.Party.IDs()
	if len(ids) < 2 {
		return
	}
	for i, id := range ids {
		if id == gs.CurrentTurnEntityID {
			gs.CurrentTurnEntityID = ids[(i+1)%len(ids)]
			return
		}
	}
	// Current holder is not a player (or unset); hand the turn to the
	// first created character.
	gs.CurrentTurnEntityID = ids[0]
}

// NPCChainLimit returns the maximum number of consecutive NPC-turn tasks
// that may be chained before a player must act. Bounding the chain by the
// combatant count guards against a corrupted initiative list causing
// unbounded re-enqueue.
func (gs *GameState) NPCChainLimit() int {
	return len(gs.InitiativeOrder)
}
