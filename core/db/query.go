package db

import (
	"encoding/json"
	"fmt"
	"reflect"
	"slices"
	"strings"
)

// Query selects entities of one collection. Conditions are equality matches
// on top-level keys.
type Query struct {
	Collection string
	fields     []string
	conditions map[string]any
	limit      int
}

// NewQuery starts a query over collection.
func NewQuery(collection string) *Query {
	return &Query{Collection: collection}
}

// Select restricts the returned keys. The id key is always returned.
func (q *Query) Select(fields ...string) *Query {
	q.fields = append(q.fields, fields...)
	return q
}

// Where adds equality conditions.
func (q *Query) Where(conditions map[string]any) *Query {
	if q.conditions == nil {
		q.conditions = make(map[string]any, len(conditions))
	}
	for key, value := range conditions {
		q.conditions[key] = value
	}
	return q
}

// Limit caps the number of results. Zero means no cap.
func (q *Query) Limit(n int) *Query {
	q.limit = n
	return q
}

func (q *Query) Fields() []string { return q.fields }

func (q *Query) Conditions() map[string]any { return q.conditions }

func (q *Query) MaxResults() int { return q.limit }

// Matches reports whether entity satisfies every condition.
func (q *Query) Matches(entity Entity) bool {
	for key, want := range q.conditions {
		got, ok := entity[key]
		if !ok || !equalValues(got, want) {
			return false
		}
	}
	return true
}

// Project applies the selection to entity.
func (q *Query) Project(entity Entity) Entity {
	if len(q.fields) == 0 {
		return entity
	}

	out := Entity{IDField: entity[IDField]}
	for _, field := range q.fields {
		if value, ok := entity[field]; ok {
			out[field] = value
		}
	}
	return out
}

// Debug renders the query for logs.
func (q *Query) Debug() string {
	var b strings.Builder
	fmt.Fprintf(&b, "find %s", q.Collection)

	if len(q.conditions) > 0 {
		where, err := json.Marshal(q.conditions)
		if err != nil {
			where = []byte(fmt.Sprint(q.conditions))
		}
		fmt.Fprintf(&b, " where %s", where)
	}
	if len(q.fields) > 0 {
		fields := slices.Clone(q.fields)
		slices.Sort(fields)
		fmt.Fprintf(&b, " select %s", strings.Join(fields, ","))
	}
	if q.limit > 0 {
		fmt.Fprintf(&b, " limit %d", q.limit)
	}
	return b.String()
}

func equalValues(a, b any) bool {
	af, aNum := toFloat(a)
	bf, bNum := toFloat(b)
	if aNum && bNum {
		return af == bf
	}
	return reflect.DeepEqual(a, b)
}
