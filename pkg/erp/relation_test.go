package erp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDecodeRelation(t *testing.T) {
	tests := []struct {
		name string
		in   interface{}
		want Relation
	}{
		{"empty false", false, Relation{}},
		{"nil", nil, Relation{}},
		{"id name pair", []interface{}{int64(5), "Alice"}, Relation{ID: 5, Name: "Alice", Valid: true}},
		{"bare id", int64(9), Relation{ID: 9, Valid: true}},
		{"malformed pair", []interface{}{"x"}, Relation{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DecodeRelation(tt.in))
		})
	}
}

func TestRecordAccessors(t *testing.T) {
	rec := Record{
		"name":            "Internship Contract",
		"state":           false,
		"employee_id":     []interface{}{int64(42), "Bob"},
		"wage":            2500.5,
		"active":          true,
		"date_end":        "2026-09-15",
		"write_date":      "2026-08-24 10:30:00",
		"remaining_hours": false,
		"allocated_hours": 12.0,
	}

	assert.Equal(t, "Internship Contract", rec.Str("name"))
	assert.Empty(t, rec.Str("state"))
	assert.Equal(t, Relation{ID: 42, Name: "Bob", Valid: true}, rec.Rel("employee_id"))
	assert.False(t, rec.Rel("state").Valid)
	assert.Equal(t, 2500.5, rec.Float("wage"))
	assert.True(t, rec.Bool("active"))

	assert.Equal(t, time.Date(2026, 9, 15, 0, 0, 0, 0, time.UTC), rec.Date("date_end"))
	assert.Equal(t, time.Date(2026, 8, 24, 10, 30, 0, 0, time.UTC), rec.Date("write_date"))
	assert.True(t, rec.Date("missing").IsZero())

	// deployment-dependent hour fields fall back in order
	assert.Equal(t, 12.0, rec.FloatOr("remaining_hours", "allocated_hours", "planned_hours"))
}

func TestRecordRels(t *testing.T) {
	rec := Record{
		"user_ids":   []interface{}{int64(3), int64(7)},
		"tag_ids":    []interface{}{[]interface{}{int64(1), "Urgent"}, []interface{}{int64(2), "Backend"}},
		"stage_id":   []interface{}{int64(5), "Doing"},
		"company_id": false,
	}

	assert.Equal(t, []int64{3, 7}, rec.Rels("user_ids"))
	assert.Equal(t, []int64{1, 2}, rec.Rels("tag_ids"))
	assert.Nil(t, rec.Rels("company_id"))
	assert.Nil(t, rec.Rels("missing"))
}
