package models

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cast"
)

// Value is the decoded value of a field on a card. The set of
// implementations is closed: TextValue, NumberValue, BoolValue, SetValue,
// TimeValue and EmptyValue.
type Value interface {
	IsEmpty() bool
	value()
}

type TextValue struct{ Text string }

type NumberValue struct{ Number float64 }

type BoolValue struct{ Bool bool }

// SetValue holds identifiers: dropdown/label option ids, user ids or card
// ids. Single-valued fields hold at most one.
type SetValue struct{ IDs []string }

// TimeValue holds a date or a datetime. DateOnly values are midnight in the
// decoding location.
type TimeValue struct {
	Time     time.Time
	DateOnly bool
}

type EmptyValue struct{}

func (TextValue) value()   {}
func (NumberValue) value() {}
func (BoolValue) value()   {}
func (SetValue) value()    {}
func (TimeValue) value()   {}
func (EmptyValue) value()  {}

func (v TextValue) IsEmpty() bool   { return v.Text == "" }
func (v NumberValue) IsEmpty() bool { return false }
func (v BoolValue) IsEmpty() bool   { return false }
func (v SetValue) IsEmpty() bool    { return len(v.IDs) == 0 }
func (v TimeValue) IsEmpty() bool   { return v.Time.IsZero() }
func (v EmptyValue) IsEmpty() bool  { return true }

// Contains reports whether id is in the set.
func (v SetValue) Contains(id string) bool {
	for _, x := range v.IDs {
		if x == id {
			return true
		}
	}
	return false
}

const dateLayout = "2006-01-02"

// DecodeValue converts a raw JSON value stored on a card into the typed
// value for field f. A nil raw value decodes to EmptyValue.
func DecodeValue(f Field, raw any) (Value, error) {
	return DecodeValueIn(f, raw, time.UTC)
}

// DecodeValueIn is DecodeValue with dates interpreted in loc.
func DecodeValueIn(f Field, raw any, loc *time.Location) (Value, error) {
	if raw == nil {
		return EmptyValue{}, nil
	}
	switch f.Type {
	case FieldText, FieldRichText:
		s, err := cast.ToStringE(raw)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", f.ID, err)
		}
		if s == "" {
			return EmptyValue{}, nil
		}
		return TextValue{Text: s}, nil
	case FieldNumber:
		if s, ok := raw.(string); ok && strings.TrimSpace(s) == "" {
			return EmptyValue{}, nil
		}
		n, err := cast.ToFloat64E(raw)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", f.ID, err)
		}
		return NumberValue{Number: n}, nil
	case FieldCheckbox:
		b, err := cast.ToBoolE(raw)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", f.ID, err)
		}
		return BoolValue{Bool: b}, nil
	case FieldDropdown, FieldLabel, FieldUser, FieldCardRef:
		ids, err := decodeIDs(raw)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", f.ID, err)
		}
		if len(ids) == 0 {
			return EmptyValue{}, nil
		}
		return SetValue{IDs: ids}, nil
	case FieldDate, FieldDateTime:
		t, err := ParseTime(raw, loc)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", f.ID, err)
		}
		if t.IsZero() {
			return EmptyValue{}, nil
		}
		if f.Type == FieldDate {
			y, m, d := t.In(loc).Date()
			return TimeValue{Time: time.Date(y, m, d, 0, 0, 0, 0, loc), DateOnly: true}, nil
		}
		return TimeValue{Time: t}, nil
	}
	return nil, fmt.Errorf("field %s: unknown field type %q", f.ID, f.Type)
}

// ParseTime accepts RFC 3339 timestamps, plain dates and anything cast can
// turn into a time. Plain dates are midnight in loc.
func ParseTime(raw any, loc *time.Location) (time.Time, error) {
	if s, ok := raw.(string); ok {
		s = strings.TrimSpace(s)
		if s == "" {
			return time.Time{}, nil
		}
		if t, err := time.ParseInLocation(dateLayout, s, loc); err == nil {
			return t, nil
		}
	}
	return cast.ToTimeInDefaultLocationE(raw, loc)
}

func decodeIDs(raw any) ([]string, error) {
	switch v := raw.(type) {
	case string:
		if v == "" {
			return nil, nil
		}
		return []string{v}, nil
	case []string:
		return compactIDs(v), nil
	case []any:
		ids := make([]string, 0, len(v))
		for _, item := range v {
			s, err := cast.ToStringE(item)
			if err != nil {
				return nil, err
			}
			ids = append(ids, s)
		}
		return compactIDs(ids), nil
	}
	s, err := cast.ToStringE(raw)
	if err != nil {
		return nil, err
	}
	return compactIDs([]string{s}), nil
}

func compactIDs(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// SortedIDs returns a sorted copy of the set's identifiers.
func (v SetValue) SortedIDs() []string {
	ids := append([]string(nil), v.IDs...)
	sort.Strings(ids)
	return ids
}
