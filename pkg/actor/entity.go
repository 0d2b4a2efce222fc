package actor

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Entity is a non-player character or monster template, as it appears in
// a world's bestiary.
type Entity struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Health      int      `json:"health"`
	Stats       Stats    `json:"stats"`
	IsHostile   bool     `json:"is_hostile"`
	Abilities   []string `json:"abilities,omitempty"`
}

// SceneEntity is a specific instance of an Entity placed in a scene.
// Its health is tracked independently of the template; driving it to zero
// or below does not remove it from the scene.
type SceneEntity struct {
	Entity
	InstanceID string `json:"instance_id"`
}

// NewSceneEntity instantiates an entity template with a fresh instance id.
func NewSceneEntity(template Entity) SceneEntity {
	return SceneEntity{
		Entity:     template,
		InstanceID: fmt.Sprintf("ent_inst_%s", uuid.New().String()[:8]),
	}
}

// AsCharacter builds a transient PlayerCharacter view of the entity so the
// rules engine can process an NPC turn with the same pipeline as a player.
func (e *SceneEntity) AsCharacter() *PlayerCharacter {
	return &PlayerCharacter{
		CharacterID: e.InstanceID,
		Name:        e.Name,
		Stats:       e.Stats,
		Health:      e.Health,
		MaxHealth:   e.Health,
	}
}

// SceneContext describes the current location and the entities present.
type SceneContext struct {
	LocationName string        `json:"location_name"`
	Description  string        `json:"description,omitempty"`
	Entities     []SceneEntity `json:"entities,omitempty"`
}

// FindEntityByName returns the first scene entity whose name matches
// case-insensitively, or nil.
func (sc *SceneContext) FindEntityByName(name string) *SceneEntity {
	for i := range sc.Entities {
		if strings.EqualFold(sc.Entities[i].Name, name) {
			return &sc.Entities[i]
		}
	}
	return nil
}

// FindEntityByID returns the scene entity with the given instance id, or nil.
func (sc *SceneContext) FindEntityByID(instanceID string) *SceneEntity {
	for i := range sc.Entities {
		if sc.Entities[i].InstanceID == instanceID {
			return &sc.Entities[i]
		}
	}
	return nil
}

// HasLivingHostiles reports whether any hostile entity in the scene still
// has health above zero.
func (sc *SceneContext) HasLivingHostiles() bool {
	for i := range sc.Entities {
		if sc.Entities[i].IsHostile && sc.Entities[i].Health > 0 {
			return true
		}
	}
	return false
}
