package actor

import "strings"

// Stats represents the six core ability scores.
type Stats struct {
	Strength     int `json:"strength"`
	Dexterity    int `json:"dexterity"`
	Constitution int `json:"constitution"`
	Intelligence int `json:"intelligence"`
	Wisdom       int `json:"wisdom"`
	Charisma     int `json:"charisma"`
}

// StatNames lists the recognized stat names in canonical order.
var StatNames = []string{
	"strength", "dexterity", "constitution",
	"intelligence", "wisdom", "charisma",
}

// Get returns the value of the named stat. Unknown names return false.
func (s Stats) Get(name string) (int, bool) {
	switch strings.ToLower(name) {
	case "strength":
		return s.Strength, true
	case "dexterity":
		return s.Dexterity, true
	case "constitution":
		return s.Constitution, true
	case "intelligence":
		return s.Intelligence, true
	case "wisdom":
		return s.Wisdom, true
	case "charisma":
		return s.Charisma, true
	default:
		return 0, false
	}
}

// ToAttributes converts Stats to a map keyed by canonical stat name.
func (s Stats) ToAttributes() map[string]int {
	return map[string]int{
		"strength":     s.Strength,
		"dexterity":    s.Dexterity,
		"constitution": s.Constitution,
		"intelligence": s.Intelligence,
		"wisdom":       s.Wisdom,
		"charisma":     s.Charisma,
	}
}

// Modifier returns the ability modifier for a raw stat value:
// floor((value-10)/2). The result is negative for values below 10.
func Modifier(value int) int {
	d := value - 10
	if d < 0 {
		d-- // integer division truncates toward zero; force floor
	}
	return d / 2
}
