package actor

// Item is a single inventory item.
type Item struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Category    string `json:"category,omitempty"` // e.g. "weapon", "misc"
}

// Effect is a temporary status effect on a character.
// Modifiers are keyed by stat name; the key "all" applies to every roll.
type Effect struct {
	Name          string         `json:"name"`
	Description   string         `json:"description,omitempty"`
	DurationTurns int            `json:"duration_turns"` // -1 for permanent
	Modifiers     map[string]int `json:"modifiers,omitempty"`
}
