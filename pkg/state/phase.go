package state

// Phase is the discrete named state of a session's state machine. It
// controls which handler processes the next action.
type Phase string

const (
	PhaseNewGame             Phase = "NEW_GAME"
	PhaseWorldSelection      Phase = "WORLD_SELECTION"
	PhaseCreationNumPlayers  Phase = "CHARACTER_CREATION_NUM_PLAYERS"
	PhaseCreationClasses     Phase = "CHARACTER_CREATION_CLASSES"
	PhaseCreationDetails     Phase = "CHARACTER_CREATION_DETAILS"
	PhaseGameInProgress      Phase = "GAME_IN_PROGRESS"
	PhaseInCombat            Phase = "IN_COMBAT"
	PhaseAwaitingRollConfirm Phase = "AWAITING_DICE_ROLL_CONFIRMATION"
)

// Valid reports whether p is a member of the closed phase set. Unknown
// values are rejected at the boundary rather than dispatched.
func (p Phase) Valid() bool {
	switch p {
	case PhaseNewGame, PhaseWorldSelection, PhaseCreationNumPlayers,
		PhaseCreationClasses, PhaseCreationDetails, PhaseGameInProgress,
		PhaseInCombat, PhaseAwaitingRollConfirm:
		return true
	}
	return false
}
