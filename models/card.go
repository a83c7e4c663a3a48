package models

import (
	"time"

	"gorm.io/datatypes"
)

// MaxParentDepth bounds every walk up a card's parent chain.
const MaxParentDepth = 32

// Card is a unit of work or record (task, contact, deal).
type Card struct {
	ID          string            `gorm:"primaryKey" json:"id"`
	WorkspaceID string            `gorm:"index;not null" json:"workspaceId"`
	TypeID      string            `gorm:"index;not null" json:"typeId"`
	Title       string            `json:"title"`
	Values      datatypes.JSONMap `json:"values"`
	ParentID    *string           `gorm:"index" json:"parentId,omitempty"`
	CreatedAt   time.Time         `json:"createdAt"`
	UpdatedAt   time.Time         `json:"updatedAt"`
}

// CardList is a card's membership in a list.
type CardList struct {
	ID        string    `gorm:"primaryKey" json:"id"`
	CardID    string    `gorm:"uniqueIndex:idx_card_list;not null" json:"cardId"`
	ListID    string    `gorm:"uniqueIndex:idx_card_list;index;not null" json:"listId"`
	StageID   *string   `gorm:"index" json:"stageId,omitempty"`
	Order     float64   `json:"order"`
	CreatedAt time.Time `json:"createdAt"`
}

// ListCard is a card as seen through one of its list memberships.
type ListCard struct {
	Card       Card     `json:"card"`
	Membership CardList `json:"membership"`
}

// StageID returns the membership stage or "" when the card has none.
func (lc ListCard) StageID() string {
	if lc.Membership.StageID == nil {
		return ""
	}
	return *lc.Membership.StageID
}

// List is a named collection of cards with ordered stages.
type List struct {
	ID                string    `gorm:"primaryKey" json:"id"`
	WorkspaceID       string    `gorm:"index;not null" json:"workspaceId"`
	Name              string    `json:"name"`
	DefaultCardTypeID string    `json:"defaultCardTypeId"`
	Stages            []Stage   `gorm:"foreignKey:ListID;constraint:OnDelete:CASCADE" json:"stages,omitempty"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// Stage is an ordered lifecycle state of a list. Terminal stages hold
// completed cards.
type Stage struct {
	ID        string    `gorm:"primaryKey" json:"id"`
	ListID    string    `gorm:"index;not null" json:"listId"`
	Name      string    `json:"name"`
	Color     string    `json:"color,omitempty"`
	Icon      string    `json:"icon,omitempty"`
	Order     int       `json:"order"`
	Terminal  bool      `json:"terminal"`
	CreatedAt time.Time `json:"createdAt"`
}

// TerminalStageIDs returns the ids of the completed stages.
func TerminalStageIDs(stages []Stage) []string {
	var ids []string
	for _, s := range stages {
		if s.Terminal {
			ids = append(ids, s.ID)
		}
	}
	return ids
}

// CardType describes a kind of card and how it is laid out.
type CardType struct {
	ID          string    `gorm:"primaryKey" json:"id"`
	WorkspaceID string    `gorm:"index;not null" json:"workspaceId"`
	Name        string    `json:"name"`
	Layout      Layout    `json:"layout"`
	CreatedAt   time.Time `json:"createdAt"`
}
