package actor

import (
	"fmt"

	"github.com/google/uuid"
)

// Quest status values.
const (
	QuestOffered   = "offered"
	QuestActive    = "active"
	QuestCompleted = "completed"
	QuestFailed    = "failed"
	QuestRejected  = "rejected"
)

// QuestRewards standardizes rewards for completing quests.
type QuestRewards struct {
	XP       int    `json:"xp"`
	Currency int    `json:"currency"`
	Items    []Item `json:"items,omitempty"`
}

// Quest is an objective offered to or pursued by the party.
type Quest struct {
	QuestID     string       `json:"quest_id"`
	Title       string       `json:"title"`
	Description string       `json:"description,omitempty"`
	Objectives  []string     `json:"objectives,omitempty"`
	Rewards     QuestRewards `json:"rewards"`
	Status      string       `json:"status"`
}

// NewQuestID generates a unique quest id.
func NewQuestID() string {
	return fmt.Sprintf("qst_%s", uuid.New().String()[:8])
}
