package db

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memoryConn struct {
	mu       sync.Mutex
	prepared []string
	rows     []Entity
	fail     error
	closed   bool
}

func (c *memoryConn) PrepareModel(_ context.Context, model *Model) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prepared = append(c.prepared, model.Name)
	return nil
}

func (c *memoryConn) NewQuery(model *Model) *Query {
	return NewQuery(model.Name)
}

func (c *memoryConn) ExecFirst(ctx context.Context, model *Model, query *Query) (Entity, error) {
	all, err := c.ExecAll(ctx, model, query.Limit(1))
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return nil, ErrNotFound
	}
	return all[0], nil
}

func (c *memoryConn) ExecAll(_ context.Context, _ *Model, query *Query) ([]Entity, error) {
	if c.fail != nil {
		return nil, c.fail
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []Entity
	for _, row := range c.rows {
		if query.Matches(row) {
			out = append(out, query.Project(row))
		}
		if query.MaxResults() > 0 && len(out) == query.MaxResults() {
			break
		}
	}
	return out, nil
}

func (c *memoryConn) Insert(_ context.Context, _ *Model, entity Entity) (Entity, error) {
	if c.fail != nil {
		return nil, c.fail
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	stored := entity.Clone()
	stored.EnsureID()
	c.rows = append(c.rows, stored)
	return stored, nil
}

func (c *memoryConn) Close(context.Context) error {
	c.closed = true
	return nil
}

func userModel() *Model {
	return NewModel("users").
		AddField("name", FieldMeta{Type: FieldString, Length: 8}).
		AddField("age", FieldMeta{Type: FieldU8}).
		AddField("role", FieldMeta{Type: FieldEnum, EnumValues: []string{"admin", "user"}}).
		AddField("tags", FieldMeta{Type: FieldArray, Optional: true})
}

func TestModelCheck(t *testing.T) {
	model := userModel()

	tests := []struct {
		name   string
		entity Entity
		ok     bool
	}{
		{"valid", Entity{"name": "ann", "age": float64(30), "role": "admin"}, true},
		{"valid with optional", Entity{"name": "ann", "age": 30, "role": "user", "tags": []any{"a"}}, true},
		{"missing required", Entity{"name": "ann", "role": "user"}, false},
		{"string too long", Entity{"name": "annabellee", "age": 1, "role": "user"}, false},
		{"u8 overflow", Entity{"name": "ann", "age": 256, "role": "user"}, false},
		{"u8 negative", Entity{"name": "ann", "age": -1, "role": "user"}, false},
		{"u8 fraction", Entity{"name": "ann", "age": 1.5, "role": "user"}, false},
		{"enum mismatch", Entity{"name": "ann", "age": 1, "role": "root"}, false},
		{"array type", Entity{"name": "ann", "age": 1, "role": "user", "tags": "a"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := model.Check(tt.entity)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidEntity)
			}
		})
	}
}

func TestFieldTypeOrder(t *testing.T) {
	assert.Equal(t, FieldType(0), FieldUnknown)
	assert.Equal(t, FieldType(5), FieldF32)
	assert.Equal(t, FieldType(11), FieldBool)
	assert.Equal(t, FieldType(14), FieldEnum)
	assert.Equal(t, "i64", FieldI64.String())
}

func TestQuery(t *testing.T) {
	q := NewQuery("users").
		Where(map[string]any{"age": 30}).
		Select("name").
		Limit(5)

	assert.True(t, q.Matches(Entity{"age": float64(30), "name": "ann"}))
	assert.False(t, q.Matches(Entity{"age": float64(31)}))
	assert.False(t, q.Matches(Entity{"name": "ann"}))

	projected := q.Project(Entity{IDField: "1", "name": "ann", "age": 30})
	assert.Equal(t, Entity{IDField: "1", "name": "ann"}, projected)

	assert.Equal(t, `find users where {"age":30} select name limit 5`, q.Debug())
}

func TestRegistryFirstRegistrationWins(t *testing.T) {
	reg := NewRegistry(zap.NewNop())
	first, second := &memoryConn{}, &memoryConn{}

	require.NoError(t, reg.Register("primary", first))
	require.NoError(t, reg.Register("primary", second))

	conn, ok := reg.Find("primary")
	require.True(t, ok)
	assert.Same(t, first, conn)
	assert.Equal(t, 1, reg.Len())
}

func TestRegistryFreeze(t *testing.T) {
	reg := NewRegistry(zap.NewNop())
	require.NoError(t, reg.Register("primary", &memoryConn{}))
	reg.Freeze()

	assert.ErrorIs(t, reg.Register("secondary", &memoryConn{}), ErrRegistryFrozen)

	_, ok := reg.Find("primary")
	assert.True(t, ok)
	_, ok = reg.Find("secondary")
	assert.False(t, ok)
	assert.Nil(t, reg.Handle("secondary"))
}

func TestRegistryConcurrentFind(t *testing.T) {
	reg := NewRegistry(zap.NewNop())
	require.NoError(t, reg.Register("primary", &memoryConn{}))
	reg.Freeze()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_, ok := reg.Find("primary")
				assert.True(t, ok)
			}
		}()
	}
	wg.Wait()
}

func TestScopeTagsModels(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(zap.NewNop())
	conn := &memoryConn{}
	require.NoError(t, reg.Register("primary", conn))

	scope := reg.Scope("accounts")
	require.NoError(t, scope.PrepareModel(ctx, "primary", userModel()))

	model, ok := reg.Model("users")
	require.True(t, ok)
	assert.Equal(t, "accounts", model.Origin)
	assert.Equal(t, []string{"users"}, conn.prepared)
	assert.Len(t, reg.Models(), 1)

	err := scope.PrepareModel(ctx, "missing", NewModel("posts"))
	assert.ErrorIs(t, err, ErrUnknownConnection)
}

func TestHandleSwallowsQueryErrors(t *testing.T) {
	ctx := context.Background()
	model := userModel()
	conn := &memoryConn{fail: errors.New("connection reset")}
	handle := NewHandle("primary", conn, zap.NewNop())

	entity, ok := handle.First(ctx, model, handle.NewQuery(model))
	assert.False(t, ok)
	assert.Nil(t, entity)

	all := handle.All(ctx, model, handle.NewQuery(model))
	assert.NotNil(t, all)
	assert.Empty(t, all)

	_, ok = handle.Insert(ctx, model, Entity{"name": "ann", "age": 1, "role": "user"})
	assert.False(t, ok)
}

func TestHandleInsertAndFind(t *testing.T) {
	ctx := context.Background()
	model := userModel()
	handle := NewHandle("primary", &memoryConn{}, zap.NewNop())

	_, ok := handle.Insert(ctx, model, Entity{"name": "ann", "age": 300, "role": "user"})
	assert.False(t, ok, "invalid entity must be rejected")

	stored, ok := handle.Insert(ctx, model, Entity{"name": "ann", "age": 30, "role": "user"})
	require.True(t, ok)
	assert.NotEmpty(t, stored.ID())

	found, ok := handle.First(ctx, model, handle.NewQuery(model).Where(map[string]any{"name": "ann"}))
	require.True(t, ok)
	assert.Equal(t, stored.ID(), found.ID())

	_, ok = handle.First(ctx, model, handle.NewQuery(model).Where(map[string]any{"name": "bob"}))
	assert.False(t, ok)
}

func TestRegistryClose(t *testing.T) {
	reg := NewRegistry(zap.NewNop())
	conn := &memoryConn{}
	require.NoError(t, reg.Register("primary", conn))
	reg.Freeze()

	require.NoError(t, reg.Close(context.Background()))
	assert.True(t, conn.closed)
}
