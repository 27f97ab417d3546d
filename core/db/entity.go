package db

import (
	"maps"

	"github.com/google/uuid"
)

// IDField is the key every stored entity is addressed by.
const IDField = "_id"

// Entity is a stored document.
type Entity map[string]any

// ID returns the entity id, or "" when it has none or it is not a string.
func (e Entity) ID() string {
	id, _ := e[IDField].(string)
	return id
}

// EnsureID assigns a random id when the entity has none and returns the id.
func (e Entity) EnsureID() string {
	if id := e.ID(); id != "" {
		return id
	}
	id := uuid.NewString()
	e[IDField] = id
	return id
}

// Clone returns a shallow copy.
func (e Entity) Clone() Entity {
	return maps.Clone(e)
}
