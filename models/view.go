package models

import (
	"time"

	"gorm.io/datatypes"
)

// GroupByType selects how a list's cards are partitioned.
type GroupByType string

const (
	GroupAll   GroupByType = "ALL"
	GroupStage GroupByType = "LIST_STAGE"
	GroupField GroupByType = "FIELD"
)

// GroupBy is a group-by selection. FieldID is only used with GroupField.
type GroupBy struct {
	Type    GroupByType `json:"type"`
	FieldID string      `json:"fieldId,omitempty"`
}

// Normalized returns g with an empty type turned into GroupAll.
func (g GroupBy) Normalized() GroupBy {
	if g.Type == "" {
		return GroupBy{Type: GroupAll}
	}
	if g.Type != GroupField {
		g.FieldID = ""
	}
	return g
}

type SortDirection string

const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

// SortOption orders cards inside a group. The zero value means createdAt
// descending.
type SortOption struct {
	Field     string        `json:"field"`
	Direction SortDirection `json:"direction"`
}

// Normalized fills the defaults of s.
func (s SortOption) Normalized() SortOption {
	if s.Field == "" {
		s.Field = "createdAt"
		if s.Direction == "" {
			s.Direction = SortDesc
		}
	}
	if s.Direction != SortDesc {
		s.Direction = SortAsc
	}
	return s
}

type Combinator string

const (
	And Combinator = "and"
	Or  Combinator = "or"
)

type Operator string

const (
	OpEq      Operator = "eq"
	OpNe      Operator = "ne"
	OpGt      Operator = "gt"
	OpLt      Operator = "lt"
	OpGte     Operator = "gte"
	OpLte     Operator = "lte"
	OpIn      Operator = "in"
	OpNin     Operator = "nin"
	OpLike    Operator = "like"
	OpBetween Operator = "between"
	OpIsNull  Operator = "isNull"
)

// FilterNode is either an internal node (Combinator set) or a leaf
// comparing Field with Value using Operator.
type FilterNode struct {
	Combinator Combinator   `json:"combinator,omitempty"`
	Children   []FilterNode `json:"children,omitempty"`
	Field      string       `json:"field,omitempty"`
	Operator   Operator     `json:"operator,omitempty"`
	Value      any          `json:"value,omitempty"`
}

// IsLeaf reports whether n compares a field.
func (n FilterNode) IsLeaf() bool { return n.Combinator == "" }

// Filters holds the two filter trees of a view. They are ANDed together.
type Filters struct {
	Quick    *FilterNode `json:"quick,omitempty"`
	Advanced *FilterNode `json:"advanced,omitempty"`
}

// DisplayOptions are view options that hide cards.
type DisplayOptions struct {
	HideCompleted bool `json:"hideCompleted"`
	HideChildren  bool `json:"hideChildren"`
}

// View is a saved presentation of a list.
type View struct {
	ID        string                      `gorm:"primaryKey" json:"id"`
	ListID    string                      `gorm:"index;not null" json:"listId"`
	Name      string                      `json:"name"`
	GroupBy   GroupBy                     `gorm:"serializer:json" json:"groupBy"`
	Sort      SortOption                  `gorm:"serializer:json" json:"sort"`
	Filters   Filters                     `gorm:"serializer:json" json:"filters"`
	Display   DisplayOptions              `gorm:"embedded" json:"display"`
	Columns   datatypes.JSONSlice[string] `json:"columns,omitempty"`
	CreatedAt time.Time                   `json:"createdAt"`
	UpdatedAt time.Time                   `json:"updatedAt"`
}
