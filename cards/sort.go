package cards

import (
	"fmt"
	"strings"

	"github.com/CrowderSoup/workboard/filters"
	"github.com/CrowderSoup/workboard/models"
)

// FieldOrder sorts by the card's manual position in the list.
const FieldOrder = "order"

// InvalidSortError is returned when sorting by a field that cannot be
// ordered.
type InvalidSortError struct {
	Field  string
	Reason string
}

func (e *InvalidSortError) Error() string {
	return fmt.Sprintf("cannot sort by %s: %s", e.Field, e.Reason)
}

// Comparator builds the ordering for s. Cards without a value sort last in
// both directions and ties are broken by card id ascending, so pages stay
// stable across concurrent inserts with equal keys.
func Comparator(s models.SortOption, fields map[string]models.Field) (func(a, b models.ListCard) bool, error) {
	s = s.Normalized()
	desc := s.Direction == models.SortDesc

	var key func(models.ListCard) sortKey
	if s.Field == FieldOrder {
		key = func(lc models.ListCard) sortKey { return sortKey{num: lc.Membership.Order, ok: true} }
	} else {
		acc, ok := filters.Lookup(s.Field, fields, nil)
		if !ok {
			return nil, &InvalidSortError{Field: s.Field, Reason: "unknown field"}
		}
		switch acc.Field.Type {
		case models.FieldText, models.FieldNumber, models.FieldCheckbox, models.FieldDate, models.FieldDateTime:
		default:
			return nil, &InvalidSortError{Field: s.Field, Reason: string(acc.Field.Type) + " fields are not sortable"}
		}
		key = func(lc models.ListCard) sortKey { return keyOf(acc.Get(lc)) }
	}

	return func(a, b models.ListCard) bool {
		ka, kb := key(a), key(b)
		if ka.ok != kb.ok {
			return ka.ok
		}
		if ka.ok {
			if c := ka.compare(kb); c != 0 {
				if desc {
					return c > 0
				}
				return c < 0
			}
		}
		return a.Card.ID < b.Card.ID
	}, nil
}

type sortKey struct {
	num  float64
	text string
	ok   bool
}

func (k sortKey) compare(o sortKey) int {
	switch {
	case k.num < o.num:
		return -1
	case k.num > o.num:
		return 1
	}
	return strings.Compare(k.text, o.text)
}

func keyOf(v models.Value) sortKey {
	switch x := v.(type) {
	case models.TextValue:
		return sortKey{text: strings.ToLower(x.Text), ok: true}
	case models.NumberValue:
		return sortKey{num: x.Number, ok: true}
	case models.BoolValue:
		if x.Bool {
			return sortKey{num: 1, ok: true}
		}
		return sortKey{ok: true}
	case models.TimeValue:
		return sortKey{num: float64(x.Time.UnixMicro()), ok: true}
	case models.SetValue, models.EmptyValue:
		return sortKey{}
	}
	return sortKey{}
}
