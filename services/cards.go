package services

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/google/uuid"

	"github.com/CrowderSoup/workboard/catalog"
	"github.com/CrowderSoup/workboard/database"
	"github.com/CrowderSoup/workboard/models"
)

var (
	ErrInvalidCard   = errors.New("invalid card")
	ErrParentCycle   = errors.New("parent would create a cycle")
	ErrParentTooDeep = errors.New("parent chain is too deep")
)

// CardStore is the persistence the card service needs.
type CardStore interface {
	GetList(ctx context.Context, id string) (models.List, error)
	GetCardType(ctx context.Context, id string) (models.CardType, error)
	CreateCard(ctx context.Context, c *models.Card, m *models.CardList) error
	GetCard(ctx context.Context, id string) (models.Card, error)
	SaveCard(ctx context.Context, c *models.Card) error
	MoveCard(ctx context.Context, listID, cardID string, stageID *string) (models.CardList, error)
	Memberships(ctx context.Context, cardID string) ([]models.CardList, error)
	DeleteCard(ctx context.Context, id string) error
}

// EventSink receives every card mutation.
type EventSink interface {
	PublishEvent(ev models.CardEvent)
}

// CardInput creates a card in a list.
type CardInput struct {
	ListID   string         `json:"listId"`
	TypeID   string         `json:"typeId,omitempty"`
	StageID  *string        `json:"stageId,omitempty"`
	ParentID *string        `json:"parentId,omitempty"`
	Title    string         `json:"title,omitempty"`
	Values   map[string]any `json:"values,omitempty"`
	Order    float64        `json:"order"`
}

// CardUpdate changes a card. A nil entry in Values clears that field and
// an empty ParentID detaches the card from its parent.
type CardUpdate struct {
	Title    *string        `json:"title,omitempty"`
	Values   map[string]any `json:"values,omitempty"`
	ParentID *string        `json:"parentId,omitempty"`
}

type CardService struct {
	store   CardStore
	catalog *catalog.Catalog
	events  EventSink
}

func NewCardService(store CardStore, cat *catalog.Catalog, events EventSink) *CardService {
	return &CardService{store: store, catalog: cat, events: events}
}

func (s *CardService) publish(ev models.CardEvent) {
	if s.events != nil {
		s.events.PublishEvent(ev)
	}
}

func (s *CardService) list(ctx context.Context, workspaceID, listID string) (models.List, error) {
	l, err := s.store.GetList(ctx, listID)
	if err != nil {
		return models.List{}, err
	}
	if l.WorkspaceID != workspaceID {
		return models.List{}, database.ErrNotFound
	}
	return l, nil
}

func (s *CardService) card(ctx context.Context, workspaceID, cardID string) (models.Card, error) {
	c, err := s.store.GetCard(ctx, cardID)
	if err != nil {
		return models.Card{}, err
	}
	if c.WorkspaceID != workspaceID {
		return models.Card{}, database.ErrNotFound
	}
	return c, nil
}

// fields returns the fields a card of typeID can hold in listID.
func (s *CardService) fields(ctx context.Context, typeID, listID string) (typeFields []models.Field, all map[string]models.Field, err error) {
	typeFields, err = s.catalog.ListFields(ctx, catalog.Scope{CardTypeID: typeID})
	if err != nil {
		return nil, nil, err
	}
	all = catalog.Index(typeFields)
	if listID != "" {
		listFields, err := s.catalog.ListFields(ctx, catalog.Scope{ListID: listID})
		if err != nil {
			return nil, nil, err
		}
		for _, f := range listFields {
			all[f.ID] = f
		}
	}
	return typeFields, all, nil
}

func validateValues(values map[string]any, fields map[string]models.Field) error {
	for id, raw := range values {
		f, ok := fields[id]
		if !ok {
			return fmt.Errorf("%w: unknown field %s", ErrInvalidCard, id)
		}
		if _, err := models.DecodeValue(f, raw); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidCard, err)
		}
	}
	return nil
}

func stageInList(l models.List, stageID *string) bool {
	if stageID == nil {
		return true
	}
	for _, st := range l.Stages {
		if st.ID == *stageID {
			return true
		}
	}
	return false
}

// Create adds a card to a list.
func (s *CardService) Create(ctx context.Context, workspaceID string, in CardInput) (models.ListCard, error) {
	l, err := s.list(ctx, workspaceID, in.ListID)
	if err != nil {
		return models.ListCard{}, err
	}
	typeID := in.TypeID
	if typeID == "" {
		typeID = l.DefaultCardTypeID
	}
	if typeID == "" {
		return models.ListCard{}, fmt.Errorf("%w: card type is required", ErrInvalidCard)
	}
	ct, err := s.store.GetCardType(ctx, typeID)
	if err != nil {
		return models.ListCard{}, err
	}
	if ct.WorkspaceID != workspaceID {
		return models.ListCard{}, database.ErrNotFound
	}
	if !stageInList(l, in.StageID) {
		return models.ListCard{}, fmt.Errorf("%w: stage %s is not part of list %s", ErrInvalidCard, *in.StageID, l.ID)
	}

	typeFields, all, err := s.fields(ctx, ct.ID, l.ID)
	if err != nil {
		return models.ListCard{}, err
	}
	if err := validateValues(in.Values, all); err != nil {
		return models.ListCard{}, err
	}

	c := models.Card{
		ID:          uuid.NewString(),
		WorkspaceID: workspaceID,
		TypeID:      ct.ID,
		Title:       strings.TrimSpace(in.Title),
		Values:      in.Values,
	}
	if c.Values == nil {
		c.Values = map[string]any{}
	}
	if c.Title == "" {
		c.Title = models.DeriveTitle(ct.Layout, typeFields, c.Values)
	}
	if in.ParentID != nil && *in.ParentID != "" {
		if err := s.checkParent(ctx, workspaceID, c.ID, *in.ParentID); err != nil {
			return models.ListCard{}, err
		}
		c.ParentID = in.ParentID
	}

	m := models.CardList{
		ID:      uuid.NewString(),
		CardID:  c.ID,
		ListID:  l.ID,
		StageID: in.StageID,
		Order:   in.Order,
	}
	if err := s.store.CreateCard(ctx, &c, &m); err != nil {
		return models.ListCard{}, err
	}

	s.publish(models.CardEvent{
		WorkspaceID:  workspaceID,
		CardID:       c.ID,
		ListID:       l.ID,
		Kind:         models.CardCreated,
		AfterStageID: m.StageID,
	})
	return models.ListCard{Card: c, Membership: m}, nil
}

// Update changes a card's title, values or parent. One event is emitted
// per list membership and changed field.
func (s *CardService) Update(ctx context.Context, workspaceID, cardID string, up CardUpdate) (models.Card, error) {
	c, err := s.card(ctx, workspaceID, cardID)
	if err != nil {
		return models.Card{}, err
	}
	ct, err := s.store.GetCardType(ctx, c.TypeID)
	if err != nil {
		return models.Card{}, err
	}
	memberships, err := s.store.Memberships(ctx, c.ID)
	if err != nil {
		return models.Card{}, err
	}

	typeFields, all, err := s.fields(ctx, c.TypeID, "")
	if err != nil {
		return models.Card{}, err
	}
	for _, m := range memberships {
		_, listFields, err := s.fields(ctx, c.TypeID, m.ListID)
		if err != nil {
			return models.Card{}, err
		}
		for id, f := range listFields {
			all[id] = f
		}
	}
	if err := validateValues(up.Values, all); err != nil {
		return models.Card{}, err
	}

	if up.ParentID != nil {
		if *up.ParentID == "" {
			c.ParentID = nil
		} else {
			if err := s.checkParent(ctx, workspaceID, c.ID, *up.ParentID); err != nil {
				return models.Card{}, err
			}
			parent := *up.ParentID
			c.ParentID = &parent
		}
	}

	values := make(map[string]any, len(c.Values)+len(up.Values))
	for k, v := range c.Values {
		values[k] = v
	}
	type change struct {
		field         string
		before, after any
	}
	var changes []change
	for id, after := range up.Values {
		before := values[id]
		if reflect.DeepEqual(before, after) {
			continue
		}
		changes = append(changes, change{field: id, before: before, after: after})
		if after == nil {
			delete(values, id)
		} else {
			values[id] = after
		}
	}
	c.Values = values

	switch {
	case up.Title != nil:
		c.Title = strings.TrimSpace(*up.Title)
	case len(changes) > 0:
		if derived := models.DeriveTitle(ct.Layout, typeFields, c.Values); derived != "" {
			c.Title = derived
		}
	}

	if err := s.store.SaveCard(ctx, &c); err != nil {
		return models.Card{}, err
	}

	for _, m := range memberships {
		if len(changes) == 0 {
			s.publish(models.CardEvent{WorkspaceID: workspaceID, CardID: c.ID, ListID: m.ListID, Kind: models.CardUpdated})
			continue
		}
		for _, ch := range changes {
			s.publish(models.CardEvent{
				WorkspaceID:      workspaceID,
				CardID:           c.ID,
				ListID:           m.ListID,
				Kind:             models.CardUpdated,
				FieldID:          ch.field,
				BeforeFieldValue: ch.before,
				AfterFieldValue:  ch.after,
			})
		}
	}
	return c, nil
}

// Move puts a card in another stage of a list. A nil stage moves it out of
// every stage.
func (s *CardService) Move(ctx context.Context, workspaceID, cardID, listID string, stageID *string) (models.CardList, error) {
	l, err := s.list(ctx, workspaceID, listID)
	if err != nil {
		return models.CardList{}, err
	}
	if _, err := s.card(ctx, workspaceID, cardID); err != nil {
		return models.CardList{}, err
	}
	if stageID != nil && *stageID == "" {
		stageID = nil
	}
	if !stageInList(l, stageID) {
		return models.CardList{}, fmt.Errorf("%w: stage %s is not part of list %s", ErrInvalidCard, *stageID, l.ID)
	}

	before, err := s.store.MoveCard(ctx, listID, cardID, stageID)
	if err != nil {
		return models.CardList{}, err
	}
	after := before
	after.StageID = stageID

	if sameStage(before.StageID, stageID) {
		return after, nil
	}
	s.publish(models.CardEvent{
		WorkspaceID:   workspaceID,
		CardID:        cardID,
		ListID:        listID,
		Kind:          models.CardMovedStage,
		BeforeStageID: before.StageID,
		AfterStageID:  stageID,
	})
	return after, nil
}

func sameStage(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// Delete removes a card from every list it belongs to.
func (s *CardService) Delete(ctx context.Context, workspaceID, cardID string) error {
	if _, err := s.card(ctx, workspaceID, cardID); err != nil {
		return err
	}
	memberships, err := s.store.Memberships(ctx, cardID)
	if err != nil {
		return err
	}
	if err := s.store.DeleteCard(ctx, cardID); err != nil {
		return err
	}
	for _, m := range memberships {
		s.publish(models.CardEvent{
			WorkspaceID:   workspaceID,
			CardID:        cardID,
			ListID:        m.ListID,
			Kind:          models.CardDeleted,
			BeforeStageID: m.StageID,
		})
	}
	return nil
}

// checkParent walks up from parentID and fails if it reaches cardID or
// does not end within models.MaxParentDepth steps.
func (s *CardService) checkParent(ctx context.Context, workspaceID, cardID, parentID string) error {
	cur := parentID
	for depth := 0; cur != ""; depth++ {
		if cur == cardID {
			return ErrParentCycle
		}
		if depth >= models.MaxParentDepth {
			return ErrParentTooDeep
		}
		p, err := s.store.GetCard(ctx, cur)
		if err != nil {
			if errors.Is(err, database.ErrNotFound) && depth > 0 {
				// A dangling ancestor ends the chain.
				return nil
			}
			if errors.Is(err, database.ErrNotFound) {
				return fmt.Errorf("%w: parent %s does not exist", ErrInvalidCard, parentID)
			}
			return err
		}
		if depth == 0 && p.WorkspaceID != workspaceID {
			return fmt.Errorf("%w: parent %s does not exist", ErrInvalidCard, parentID)
		}
		if p.ParentID == nil {
			return nil
		}
		cur = *p.ParentID
	}
	return nil
}
