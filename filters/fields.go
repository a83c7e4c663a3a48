package filters

import (
	"time"

	"github.com/CrowderSoup/workboard/models"
)

// Built-in field references that read card attributes instead of custom
// field values.
const (
	FieldTitle     = "title"
	FieldCreatedAt = "createdAt"
	FieldUpdatedAt = "updatedAt"
	FieldStageID   = "stageId"
	FieldParentID  = "parentId"
	FieldTypeID    = "typeId"
)

// Accessor reads one field from cards.
type Accessor struct {
	Field models.Field
	Get   func(models.ListCard) models.Value
}

var builtins = map[string]Accessor{
	FieldTitle: {
		Field: models.Field{ID: FieldTitle, Name: "Title", Type: models.FieldText},
		Get: func(lc models.ListCard) models.Value {
			if lc.Card.Title == "" {
				return models.EmptyValue{}
			}
			return models.TextValue{Text: lc.Card.Title}
		},
	},
	FieldCreatedAt: {
		Field: models.Field{ID: FieldCreatedAt, Name: "Created", Type: models.FieldDateTime},
		Get:   func(lc models.ListCard) models.Value { return timeValue(lc.Card.CreatedAt) },
	},
	FieldUpdatedAt: {
		Field: models.Field{ID: FieldUpdatedAt, Name: "Updated", Type: models.FieldDateTime},
		Get:   func(lc models.ListCard) models.Value { return timeValue(lc.Card.UpdatedAt) },
	},
	FieldStageID: {
		Field: models.Field{ID: FieldStageID, Name: "Stage", Type: models.FieldDropdown},
		Get:   func(lc models.ListCard) models.Value { return idValue(lc.Membership.StageID) },
	},
	FieldParentID: {
		Field: models.Field{ID: FieldParentID, Name: "Parent", Type: models.FieldCardRef},
		Get:   func(lc models.ListCard) models.Value { return idValue(lc.Card.ParentID) },
	},
	FieldTypeID: {
		Field: models.Field{ID: FieldTypeID, Name: "Type", Type: models.FieldDropdown},
		Get: func(lc models.ListCard) models.Value {
			return idValue(&lc.Card.TypeID)
		},
	},
}

func timeValue(t time.Time) models.Value {
	if t.IsZero() {
		return models.EmptyValue{}
	}
	return models.TimeValue{Time: t}
}

func idValue(id *string) models.Value {
	if id == nil || *id == "" {
		return models.EmptyValue{}
	}
	return models.SetValue{IDs: []string{*id}}
}

// Lookup resolves a field reference to an accessor, checking built-in
// references first and then the custom fields in fields.
func Lookup(ref string, fields map[string]models.Field, loc *time.Location) (Accessor, bool) {
	if a, ok := builtins[ref]; ok {
		return a, true
	}
	f, ok := fields[ref]
	if !ok {
		return Accessor{}, false
	}
	if loc == nil {
		loc = time.UTC
	}
	return Accessor{
		Field: f,
		Get: func(lc models.ListCard) models.Value {
			v, err := models.DecodeValueIn(f, lc.Card.Values[f.ID], loc)
			if err != nil {
				// Values that no longer fit the field type read as empty.
				return models.EmptyValue{}
			}
			return v
		},
	}, true
}
