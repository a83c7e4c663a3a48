package models

type ChangeKind string

const (
	CardCreated    ChangeKind = "created"
	CardUpdated    ChangeKind = "updated"
	CardMovedStage ChangeKind = "movedStage"
	CardDeleted    ChangeKind = "deleted"
)

// CardEvent describes one card mutation. It only carries what is needed to
// find the groups a mutation touches.
type CardEvent struct {
	WorkspaceID      string     `json:"workspaceId,omitempty"`
	CardID           string     `json:"cardId"`
	ListID           string     `json:"listId"`
	Kind             ChangeKind `json:"changeKind"`
	BeforeStageID    *string    `json:"beforeStageId,omitempty"`
	AfterStageID     *string    `json:"afterStageId,omitempty"`
	FieldID          string     `json:"fieldId,omitempty"`
	BeforeFieldValue any        `json:"beforeFieldValue,omitempty"`
	AfterFieldValue  any        `json:"afterFieldValue,omitempty"`
}
