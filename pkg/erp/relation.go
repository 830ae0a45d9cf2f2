package erp

import (
	"time"
)

// ERP date layouts. Odoo serializes dates as "2006-01-02" and datetimes as
// "2006-01-02 15:04:05" (UTC, no zone marker).
const (
	DateLayout     = "2006-01-02"
	DateTimeLayout = "2006-01-02 15:04:05"
)

// Relation is the normalized form of an ERP many2one value. The wire
// encoding is either the literal boolean false (empty) or a two-element
// list [id, display_name].
type Relation struct {
	ID    int64
	Name  string
	Valid bool
}

// DecodeRelation maps a raw ERP relation value to a Relation. Unrecognized
// shapes decode as empty rather than erroring: upper layers treat a broken
// relation the same as an absent one.
func DecodeRelation(v interface{}) Relation {
	switch val := v.(type) {
	case []interface{}:
		if len(val) != 2 {
			return Relation{}
		}
		id, ok := toInt64(val[0])
		if !ok {
			return Relation{}
		}
		name, _ := val[1].(string)
		return Relation{ID: id, Name: name, Valid: true}
	case int64:
		return Relation{ID: val, Valid: true}
	case int:
		return Relation{ID: int64(val), Valid: true}
	default:
		// false, nil, or anything else: empty relation
		return Relation{}
	}
}

// Record is a single ERP record: field name to raw value. The typed
// accessors absorb the ERP quirk of encoding "no value" as boolean false.
type Record map[string]interface{}

// Str returns the string value of a field, or "" when absent or false.
func (r Record) Str(field string) string {
	if s, ok := r[field].(string); ok {
		return s
	}
	return ""
}

// Int returns the integer value of a field, or 0 when absent or false.
func (r Record) Int(field string) int64 {
	if n, ok := toInt64(r[field]); ok {
		return n
	}
	return 0
}

// Float returns the float value of a field, or 0 when absent or false.
// Integer-encoded values are widened.
func (r Record) Float(field string) float64 {
	switch v := r[field].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int64:
		return float64(v)
	case int:
		return float64(v)
	default:
		return 0
	}
}

// Bool returns the boolean value of a field.
func (r Record) Bool(field string) bool {
	b, _ := r[field].(bool)
	return b
}

// Rel returns the normalized relation value of a field.
func (r Record) Rel(field string) Relation {
	return DecodeRelation(r[field])
}

// Rels returns the ids of a x2many field. Both encodings occur in the
// wild: a flat list of ids, or a list of [id, name] pairs.
func (r Record) Rels(field string) []int64 {
	list, ok := r[field].([]interface{})
	if !ok {
		return nil
	}
	ids := make([]int64, 0, len(list))
	for _, item := range list {
		if id, ok := toInt64(item); ok {
			ids = append(ids, id)
			continue
		}
		if pair, ok := item.([]interface{}); ok && len(pair) == 2 {
			if id, ok := toInt64(pair[0]); ok {
				ids = append(ids, id)
			}
		}
	}
	return ids
}

// Date parses a date or datetime field. The zero time is returned for
// absent or unparseable values; callers check with IsZero.
func (r Record) Date(field string) time.Time {
	s := r.Str(field)
	if s == "" {
		return time.Time{}
	}
	if t, err := time.Parse(DateTimeLayout, s); err == nil {
		return t
	}
	if t, err := time.Parse(DateLayout, s); err == nil {
		return t
	}
	return time.Time{}
}

// FloatOr returns the first present non-zero float among fields. Used for
// deployment-dependent fields like remaining_hours vs allocated_hours.
func (r Record) FloatOr(fields ...string) float64 {
	for _, f := range fields {
		if v := r.Float(f); v != 0 {
			return v
		}
	}
	return 0
}

func toInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case float64:
		return int64(n), true
	default:
		return 0, false
	}
}
