package rules

// IntentType is the classified category of a player's free-text action.
type IntentType string

const (
	IntentAttack    IntentType = "ATTACK"
	IntentSkill     IntentType = "SKILL_CHECK"
	IntentInventory IntentType = "MANAGE_INVENTORY"
	IntentSocial    IntentType = "SOCIAL"
	IntentObserve   IntentType = "OBSERVE"
)

// Intent is the structured result of classifying a player's action text.
type Intent struct {
	Type              IntentType `json:"intent_type"`
	ActionDescription string     `json:"action_description"`
	ItemName          string     `json:"item_name,omitempty"`
	IsAcquisition     bool       `json:"is_acquisition,omitempty"`
	Target            string     `json:"target,omitempty"`
	RelevantStat      string     `json:"relevant_stat,omitempty"`
	RequiredDC        int        `json:"required_dc,omitempty"`
}

// ObserveIntent is the fallback intent when classification fails.
func ObserveIntent(actionText string) *Intent {
	return &Intent{Type: IntentObserve, ActionDescription: actionText}
}
