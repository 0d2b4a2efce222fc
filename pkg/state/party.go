package state

import "github.com/Aksor9/AI-GameMaster/pkg/actor"

// Party holds the session's player characters in creation order. The
// order is significant: it drives round-robin turn taking and breaks
// initiative ties, so lookups never reorder the slice.
type Party []*actor.PlayerCharacter

// Get returns the character with the given id, or nil.
func (p Party) Get(characterID string) *actor.PlayerCharacter {
	for _, pc := range p {
		if pc.CharacterID == characterID {
			return pc
		}
	}
	return nil
}

// Contains reports whether the id belongs to a party member.
func (p Party) Contains(characterID string) bool {
	return p.Get(characterID) != nil
}

// IDs returns the character ids in insertion order.
func (p Party) IDs() []string {
	ids := make([]string, len(p))
	for i, pc := range p {
		ids[i] = pc.CharacterID
	}
	return ids
}
