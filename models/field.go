package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// FieldType is the type of a custom field.
type FieldType string

const (
	FieldText     FieldType = "text"
	FieldNumber   FieldType = "number"
	FieldCheckbox FieldType = "checkbox"
	FieldDropdown FieldType = "dropdown"
	FieldLabel    FieldType = "label"
	FieldUser     FieldType = "user"
	FieldDate     FieldType = "date"
	FieldDateTime FieldType = "datetime"
	FieldCardRef  FieldType = "card-reference"
	FieldRichText FieldType = "rich-text"
)

// Valid reports whether t is one of the known field types.
func (t FieldType) Valid() bool {
	switch t {
	case FieldText, FieldNumber, FieldCheckbox, FieldDropdown, FieldLabel,
		FieldUser, FieldDate, FieldDateTime, FieldCardRef, FieldRichText:
		return true
	}
	return false
}

// Ordinal reports whether values of t can be ordered (gt, lt, between).
func (t FieldType) Ordinal() bool {
	return t == FieldNumber || t == FieldDate || t == FieldDateTime
}

// Discrete reports whether cards can be grouped by values of t.
func (t FieldType) Discrete() bool {
	return t == FieldDropdown || t == FieldLabel || t == FieldUser
}

// SetValued reports whether values of t are identifiers (options, users, cards).
func (t FieldType) SetValued() bool {
	return t == FieldDropdown || t == FieldLabel || t == FieldUser || t == FieldCardRef
}

// FieldOption is one configured choice of a dropdown or label field.
type FieldOption struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
	Order int    `json:"order"`
}

// Field is a typed attribute attached to a card type (intrinsic) or to a
// list (extrinsic, shared by every card type in the list).
type Field struct {
	ID            string                           `gorm:"primaryKey" json:"id"`
	WorkspaceID   string                           `gorm:"index" json:"workspaceId"`
	CardTypeID    *string                          `gorm:"index" json:"cardTypeId,omitempty"`
	ListID        *string                          `gorm:"index" json:"listId,omitempty"`
	Name          string                           `json:"name"`
	Type          FieldType                        `json:"type"`
	Multiple      bool                             `json:"multiple"`
	Options       datatypes.JSONSlice[FieldOption] `json:"options,omitempty"`
	IsTitle       bool                             `json:"isTitle"`
	IsDescription bool                             `json:"isDescription"`
	IsPhoto       bool                             `json:"isPhoto"`
	IsPinned      bool                             `json:"isPinned"`
	CreatedAt     time.Time                        `json:"createdAt"`
	UpdatedAt     time.Time                        `json:"updatedAt"`
	DeletedAt     gorm.DeletedAt                   `gorm:"index" json:"-"`
}

// Intrinsic reports whether the field belongs to a card type.
func (f Field) Intrinsic() bool { return f.CardTypeID != nil }

// Extrinsic reports whether the field is attached at the list level.
func (f Field) Extrinsic() bool { return f.CardTypeID == nil && f.ListID != nil }

// Option returns the configured option with the given id.
func (f Field) Option(id string) (FieldOption, bool) {
	for _, o := range f.Options {
		if o.ID == id {
			return o, true
		}
	}
	return FieldOption{}, false
}
