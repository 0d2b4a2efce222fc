package actor

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const (
	DefaultHealth       = 100
	LevelUpHealthBonus  = 10
	XPPerLevelThreshold = 1000
)

// PlayerCharacter is the state of a single player character.
type PlayerCharacter struct {
	CharacterID string   `json:"character_id"`
	ClientID    string   `json:"client_id,omitempty"`
	Name        string   `json:"name"`
	Age         int      `json:"age,omitempty"`
	Gender      string   `json:"gender,omitempty"`
	Backstory   string   `json:"backstory,omitempty"`
	Class       string   `json:"character_class,omitempty"`
	Level       int      `json:"level"`
	XP          int      `json:"xp"`
	Stats       Stats    `json:"stats"`
	Skills      []string `json:"skills,omitempty"`
	Effects     []Effect `json:"effects,omitempty"`
	Health      int      `json:"health"`
	MaxHealth   int      `json:"max_health"`
	Inventory   []Item   `json:"inventory,omitempty"`
	Currency    int      `json:"currency"`
}

// NewCharacterID generates a unique player character id.
func NewCharacterID() string {
	return fmt.Sprintf("char_%s", uuid.New().String()[:8])
}

// NewPlayerCharacter creates a level-1 character from a chosen class option
// and the player-provided details.
func NewPlayerCharacter(clientID, name string, age int, gender, backstory string, class ClassOption) *PlayerCharacter {
	return &PlayerCharacter{
		CharacterID: NewCharacterID(),
		ClientID:    clientID,
		Name:        name,
		Age:         age,
		Gender:      gender,
		Backstory:   backstory,
		Class:       class.Name,
		Level:       1,
		Stats:       class.BaseStats,
		Skills:      append([]string(nil), class.InitialAbilities...),
		Health:      DefaultHealth,
		MaxHealth:   DefaultHealth,
		Currency:    class.StartingCurrency,
		Inventory: []Item{
			{Name: class.StartingWeapon, Description: "A basic starting weapon.", Category: "weapon"},
			{Name: class.StartingObject, Description: "A curious starting object.", Category: "misc"},
		},
	}
}

// StatModifier returns the character's modifier for the named stat.
// Unknown stat names are treated as the neutral value 10.
func (p *PlayerCharacter) StatModifier(name string) int {
	v, ok := p.Stats.Get(name)
	if !ok {
		v = 10
	}
	return Modifier(v)
}

// EffectModifier sums the active effect modifiers that apply to a roll of
// the named stat. A modifier keyed by the stat name and one keyed "all"
// both contribute when present on the same effect.
func (p *PlayerCharacter) EffectModifier(statName string) int {
	total := 0
	for _, e := range p.Effects {
		if statName != "" {
			if m, ok := e.Modifiers[statName]; ok {
				total += m
			}
		}
		if m, ok := e.Modifiers["all"]; ok {
			total += m
		}
	}
	return total
}

// HasItem reports whether the inventory contains an item with the given
// name, compared case-insensitively.
func (p *PlayerCharacter) HasItem(name string) bool {
	return p.findItem(name) >= 0
}

// AddItem appends an item to the inventory.
func (p *PlayerCharacter) AddItem(item Item) {
	p.Inventory = append(p.Inventory, item)
}

// RemoveItem removes the first inventory item matching name
// case-insensitively. Returns false if no such item exists.
func (p *PlayerCharacter) RemoveItem(name string) bool {
	i := p.findItem(name)
	if i < 0 {
		return false
	}
	p.Inventory = append(p.Inventory[:i], p.Inventory[i+1:]...)
	return true
}

func (p *PlayerCharacter) findItem(name string) int {
	for i, item := range p.Inventory {
		if strings.EqualFold(item.Name, name) {
			return i
		}
	}
	return -1
}

// CheckLevelUp applies at most one level gain: if xp has reached
// level*1000, the level increments, max health grows, health is restored
// to the new max and the threshold is subtracted from xp. Returns a
// description of the level-up, or "" if none occurred.
func (p *PlayerCharacter) CheckLevelUp() string {
	threshold := p.Level * XPPerLevelThreshold
	if p.XP < threshold {
		return ""
	}
	p.Level++
	p.MaxHealth += LevelUpHealthBonus
	p.Health = p.MaxHealth
	p.XP -= threshold
	return fmt.Sprintf("%s has reached Level %d! Their health increases.", p.Name, p.Level)
}
