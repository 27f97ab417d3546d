package db

import "fmt"

// Model is the field metadata a module registers for one collection.
type Model struct {
	Name string `json:"name"`
	// Origin is the module that registered the model.
	Origin string  `json:"origin,omitempty"`
	Fields []Field `json:"fields"`
}

// NewModel returns a model without fields.
func NewModel(name string) *Model {
	return &Model{Name: name}
}

// AddField appends a field, replacing an earlier one with the same name.
func (m *Model) AddField(name string, meta FieldMeta) *Model {
	for i := range m.Fields {
		if m.Fields[i].Name == name {
			m.Fields[i].Meta = meta
			return m
		}
	}
	m.Fields = append(m.Fields, Field{Name: name, Meta: meta})
	return m
}

// Field looks a field up by name.
func (m *Model) Field(name string) (FieldMeta, bool) {
	for _, field := range m.Fields {
		if field.Name == name {
			return field.Meta, true
		}
	}
	return FieldMeta{}, false
}

// Check validates entity against the field metadata. Keys without metadata
// and the id key are not checked.
func (m *Model) Check(entity Entity) error {
	for _, field := range m.Fields {
		value, ok := entity[field.Name]
		if !ok || value == nil {
			if field.Meta.Optional {
				continue
			}
			return fmt.Errorf("%w: %s.%s is required", ErrInvalidEntity, m.Name, field.Name)
		}

		if reason := field.Meta.check(value); reason != "" {
			return fmt.Errorf("%w: %s.%s: %s", ErrInvalidEntity, m.Name, field.Name, reason)
		}
	}
	return nil
}
