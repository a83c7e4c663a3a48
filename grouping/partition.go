// Package grouping computes the ordered, mutually exclusive groups a list's
// cards are split into for a group-by selection.
package grouping

import (
	"errors"
	"fmt"
	"sort"

	"github.com/CrowderSoup/workboard/filters"
	"github.com/CrowderSoup/workboard/models"
)

// noneID is the entity id of the "no stage" and "no value" groups.
const noneID = "none"

// ErrMissingField is returned when FIELD grouping has no field to group by.
var ErrMissingField = errors.New("group by field requires a field")

// UnsupportedGroupFieldError is returned when grouping by a field whose
// values are not discrete.
type UnsupportedGroupFieldError struct {
	FieldID   string
	FieldType models.FieldType
}

func (e *UnsupportedGroupFieldError) Error() string {
	return fmt.Sprintf("cannot group by %s field %s", e.FieldType, e.FieldID)
}

// Input is the list state a partition is computed from.
type Input struct {
	ListID string
	Stages []models.Stage
	// Field is the field to group by, for FIELD grouping.
	Field *models.Field
	// Values are the distinct values of Field across the list's cards, in
	// first-seen order.
	Values []string
	// HasEmpty is set when at least one card has no value for Field.
	HasEmpty bool
}

// Distinct is what a store reports about a field's values in a list.
type Distinct struct {
	Values   []string
	HasEmpty bool
}

// Definition is one computed group.
type Definition struct {
	Key      string             `json:"key"`
	Type     models.GroupByType `json:"type"`
	EntityID string             `json:"entityId,omitempty"`
	FieldID  string             `json:"fieldId,omitempty"`
	Name     string             `json:"name"`
	Color    string             `json:"color,omitempty"`
	Icon     string             `json:"icon,omitempty"`
	NoValue  bool               `json:"noValue,omitempty"`

	// Predicate selects the members of the group. Nil for ALL.
	Predicate filters.Predicate `json:"-"`
}

// Key builds the identity of a group within its list.
func Key(t models.GroupByType, fieldID, entityID string) string {
	switch t {
	case models.GroupStage:
		return string(t) + ":" + entityID
	case models.GroupField:
		return string(t) + ":" + fieldID + ":" + entityID
	}
	return string(models.GroupAll)
}

// StageKey is the key of the group for a stage id; nil means no stage.
func StageKey(stageID *string) string {
	if stageID == nil || *stageID == "" {
		return Key(models.GroupStage, "", noneID)
	}
	return Key(models.GroupStage, "", *stageID)
}

// Partition computes the ordered groups of in for by. It is a pure function
// of its input: equal inputs give identical groups in identical order.
func Partition(in Input, by models.GroupBy) ([]Definition, error) {
	by = by.Normalized()
	switch by.Type {
	case models.GroupAll:
		return []Definition{{Key: Key(models.GroupAll, "", ""), Type: models.GroupAll, Name: "All"}}, nil
	case models.GroupStage:
		return partitionStages(in.Stages), nil
	case models.GroupField:
		if in.Field == nil {
			return nil, ErrMissingField
		}
		if !in.Field.Type.Discrete() {
			return nil, &UnsupportedGroupFieldError{FieldID: in.Field.ID, FieldType: in.Field.Type}
		}
		return partitionField(*in.Field, in.Values, in.HasEmpty), nil
	}
	return nil, fmt.Errorf("unknown group by type %q", by.Type)
}

func partitionStages(stages []models.Stage) []Definition {
	ordered := append([]models.Stage(nil), stages...)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Order != ordered[j].Order {
			return ordered[i].Order < ordered[j].Order
		}
		return ordered[i].ID < ordered[j].ID
	})

	known := make(map[string]bool, len(ordered))
	defs := make([]Definition, 0, len(ordered)+1)
	for _, s := range ordered {
		id := s.ID
		known[id] = true
		defs = append(defs, Definition{
			Key:      Key(models.GroupStage, "", id),
			Type:     models.GroupStage,
			EntityID: id,
			Name:     s.Name,
			Color:    s.Color,
			Icon:     s.Icon,
			Predicate: func(lc models.ListCard) bool {
				return lc.StageID() == id
			},
		})
	}

	// Cards without a stage, or whose stage no longer exists, must still
	// land in exactly one group.
	defs = append(defs, Definition{
		Key:      Key(models.GroupStage, "", noneID),
		Type:     models.GroupStage,
		EntityID: noneID,
		Name:     "No stage",
		NoValue:  true,
		Predicate: func(lc models.ListCard) bool {
			return !known[lc.StageID()]
		},
	})
	return defs
}

func partitionField(f models.Field, observed []string, hasEmpty bool) []Definition {
	values := orderValues(f, observed)
	position := make(map[string]int, len(values))
	for i, v := range values {
		position[v] = i
	}

	acc, _ := filters.Lookup(f.ID, map[string]models.Field{f.ID: f}, nil)

	// primary is the first value, in group order, that the card holds. A
	// card with several values is a member of that group only.
	primary := func(lc models.ListCard) (string, bool) {
		set, ok := acc.Get(lc).(models.SetValue)
		if !ok {
			return "", false
		}
		best, found := "", false
		for _, id := range set.IDs {
			p, ok := position[id]
			if !ok {
				continue
			}
			if !found || p < position[best] {
				best, found = id, true
			}
		}
		return best, found
	}

	defs := make([]Definition, 0, len(values)+1)
	for _, v := range values {
		value := v
		def := Definition{
			Key:      Key(models.GroupField, f.ID, value),
			Type:     models.GroupField,
			EntityID: value,
			FieldID:  f.ID,
			Name:     value,
			Predicate: func(lc models.ListCard) bool {
				p, ok := primary(lc)
				return ok && p == value
			},
		}
		if o, ok := f.Option(value); ok {
			def.Name = o.Name
			def.Color = o.Color
		}
		defs = append(defs, def)
	}

	if hasEmpty {
		defs = append(defs, Definition{
			Key:      Key(models.GroupField, f.ID, noneID),
			Type:     models.GroupField,
			EntityID: noneID,
			FieldID:  f.ID,
			Name:     "No " + f.Name,
			NoValue:  true,
			Predicate: func(lc models.ListCard) bool {
				_, ok := primary(lc)
				return !ok
			},
		})
	}
	return defs
}

// orderValues puts configured options first, by option order with ties
// broken by id, followed by ad hoc values in first-seen order.
func orderValues(f models.Field, observed []string) []string {
	present := make(map[string]bool, len(observed))
	for _, v := range observed {
		present[v] = true
	}

	options := append([]models.FieldOption(nil), f.Options...)
	sort.SliceStable(options, func(i, j int) bool {
		if options[i].Order != options[j].Order {
			return options[i].Order < options[j].Order
		}
		return options[i].ID < options[j].ID
	})

	values := make([]string, 0, len(observed))
	seen := make(map[string]bool, len(observed))
	for _, o := range options {
		if present[o.ID] && !seen[o.ID] {
			seen[o.ID] = true
			values = append(values, o.ID)
		}
	}
	for _, v := range observed {
		if v != "" && !seen[v] {
			seen[v] = true
			values = append(values, v)
		}
	}
	return values
}

// FirstSeen flattens the values observed on each card, in card order, into
// distinct values in first-seen order. Values first seen on the same card
// are ordered by id.
func FirstSeen(observed [][]string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, ids := range observed {
		fresh := make([]string, 0, len(ids))
		for _, id := range ids {
			if id != "" && !seen[id] {
				seen[id] = true
				fresh = append(fresh, id)
			}
		}
		sort.Strings(fresh)
		out = append(out, fresh...)
	}
	return out
}

// Find returns the group with the given key.
func Find(defs []Definition, key string) (Definition, bool) {
	for _, d := range defs {
		if d.Key == key {
			return d, true
		}
	}
	return Definition{}, false
}

// Locate returns the group a card belongs to.
func Locate(defs []Definition, lc models.ListCard) (Definition, bool) {
	for _, d := range defs {
		if d.Predicate == nil || d.Predicate(lc) {
			return d, true
		}
	}
	return Definition{}, false
}
