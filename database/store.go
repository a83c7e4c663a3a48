package database

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"gorm.io/gorm"

	"github.com/CrowderSoup/workboard/cards"
	"github.com/CrowderSoup/workboard/catalog"
	"github.com/CrowderSoup/workboard/grouping"
	"github.com/CrowderSoup/workboard/models"
)

// Store handles database operations for lists, cards, fields and views.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// loadListCards returns every card of a list joined with its membership,
// in membership creation order.
func (s *Store) loadListCards(ctx context.Context, listID string) ([]models.ListCard, error) {
	var memberships []models.CardList
	err := s.db.WithContext(ctx).
		Where("list_id = ?", listID).
		Order("created_at ASC, id ASC").
		Find(&memberships).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query memberships: %w", err)
	}
	if len(memberships) == 0 {
		return nil, nil
	}

	ids := make([]string, len(memberships))
	for i, m := range memberships {
		ids[i] = m.CardID
	}
	var found []models.Card
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&found).Error; err != nil {
		return nil, fmt.Errorf("failed to query cards: %w", err)
	}
	byID := make(map[string]models.Card, len(found))
	for _, c := range found {
		byID[c.ID] = c
	}

	rows := make([]models.ListCard, 0, len(memberships))
	for _, m := range memberships {
		c, ok := byID[m.CardID]
		if !ok {
			continue
		}
		rows = append(rows, models.ListCard{Card: c, Membership: m})
	}
	return rows, nil
}

// QueryCards runs a compiled card query. Predicates are Go functions, so
// the list's cards are loaded and q is evaluated in memory.
func (s *Store) QueryCards(ctx context.Context, q cards.Query) ([]models.ListCard, error) {
	rows, err := s.loadListCards(ctx, q.ListID)
	if err != nil {
		return nil, err
	}
	return cards.Apply(rows, q), nil
}

func (s *Store) FindListCard(ctx context.Context, listID, cardID string) (models.ListCard, bool, error) {
	var m models.CardList
	err := s.db.WithContext(ctx).Where("list_id = ? AND card_id = ?", listID, cardID).First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.ListCard{}, false, nil
		}
		return models.ListCard{}, false, fmt.Errorf("failed to query membership: %w", err)
	}
	c, err := s.GetCard(ctx, cardID)
	if errors.Is(err, ErrNotFound) {
		return models.ListCard{}, false, nil
	}
	if err != nil {
		return models.ListCard{}, false, err
	}
	return models.ListCard{Card: c, Membership: m}, true, nil
}

// QueryDistinctFieldValues reports the values of f held by the list's
// cards in first-seen order, and whether any card has none.
func (s *Store) QueryDistinctFieldValues(ctx context.Context, listID string, f models.Field) (grouping.Distinct, error) {
	rows, err := s.loadListCards(ctx, listID)
	if err != nil {
		return grouping.Distinct{}, err
	}
	var d grouping.Distinct
	observed := make([][]string, 0, len(rows))
	for _, r := range rows {
		v, err := models.DecodeValue(f, r.Card.Values[f.ID])
		if err != nil {
			d.HasEmpty = true
			continue
		}
		set, ok := v.(models.SetValue)
		if !ok || len(set.IDs) == 0 {
			d.HasEmpty = true
			continue
		}
		observed = append(observed, set.IDs)
	}
	d.Values = grouping.FirstSeen(observed)
	return d, nil
}

// QueryFieldsByScope returns the live fields of a scope. A list sees its
// own fields and the intrinsic fields of every card type used in it.
func (s *Store) QueryFieldsByScope(ctx context.Context, scope catalog.Scope) ([]models.Field, error) {
	var fields []models.Field
	q := s.db.WithContext(ctx)
	switch {
	case scope.WorkspaceID != "":
		q = q.Where("workspace_id = ?", scope.WorkspaceID)
	case scope.CardTypeID != "":
		q = q.Where("card_type_id = ?", scope.CardTypeID)
	default:
		typeIDs, err := s.cardTypesOfList(ctx, scope.ListID)
		if err != nil {
			return nil, err
		}
		if len(typeIDs) > 0 {
			q = q.Where("list_id = ? OR card_type_id IN ?", scope.ListID, typeIDs)
		} else {
			q = q.Where("list_id = ?", scope.ListID)
		}
	}
	if err := q.Order("created_at ASC, id ASC").Find(&fields).Error; err != nil {
		return nil, fmt.Errorf("failed to query fields: %w", err)
	}
	return fields, nil
}

func (s *Store) cardTypesOfList(ctx context.Context, listID string) ([]string, error) {
	var typeIDs []string
	err := s.db.WithContext(ctx).Model(&models.Card{}).
		Distinct("type_id").
		Where("id IN (?)", s.db.Model(&models.CardList{}).Select("card_id").Where("list_id = ?", listID)).
		Pluck("type_id", &typeIDs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query card types of list: %w", err)
	}

	var list models.List
	err = s.db.WithContext(ctx).Select("default_card_type_id").Where("id = ?", listID).First(&list).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to query list: %w", err)
	}
	if list.DefaultCardTypeID != "" {
		typeIDs = append(typeIDs, list.DefaultCardTypeID)
	}
	return typeIDs, nil
}

func (s *Store) CreateCardType(ctx context.Context, ct *models.CardType, fields []models.Field) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(ct).Error; err != nil {
			return fmt.Errorf("failed to insert card type: %w", err)
		}
		if len(fields) > 0 {
			if err := tx.Create(&fields).Error; err != nil {
				return fmt.Errorf("failed to insert system fields: %w", err)
			}
		}
		return nil
	})
}

func (s *Store) GetCardType(ctx context.Context, id string) (models.CardType, error) {
	var ct models.CardType
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&ct).Error; err != nil {
		return models.CardType{}, notFound(err)
	}
	return ct, nil
}

func (s *Store) CreateField(ctx context.Context, f *models.Field) error {
	if err := s.db.WithContext(ctx).Create(f).Error; err != nil {
		return fmt.Errorf("failed to insert field: %w", err)
	}
	return nil
}

// DeleteField soft-deletes a field.
func (s *Store) DeleteField(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Field{})
	if res.Error != nil {
		return fmt.Errorf("failed to delete field: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateList inserts a list together with its stages.
func (s *Store) CreateList(ctx context.Context, l *models.List) error {
	if err := s.db.WithContext(ctx).Create(l).Error; err != nil {
		return fmt.Errorf("failed to insert list: %w", err)
	}
	return nil
}

func (s *Store) GetList(ctx context.Context, id string) (models.List, error) {
	var l models.List
	if err := s.db.WithContext(ctx).Preload("Stages").Where("id = ?", id).First(&l).Error; err != nil {
		return models.List{}, notFound(err)
	}
	sortStages(l.Stages)
	return l, nil
}

// DeleteList removes a list with its stages, memberships and views. Cards
// stay, they may belong to other lists.
func (s *Store) DeleteList(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ?", id).Delete(&models.List{})
		if res.Error != nil {
			return fmt.Errorf("failed to delete list: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		for _, model := range []any{&models.Stage{}, &models.CardList{}, &models.View{}} {
			if err := tx.Where("list_id = ?", id).Delete(model).Error; err != nil {
				return fmt.Errorf("failed to delete list records: %w", err)
			}
		}
		return nil
	})
}

func (s *Store) CreateStage(ctx context.Context, st *models.Stage) error {
	if err := s.db.WithContext(ctx).Create(st).Error; err != nil {
		return fmt.Errorf("failed to insert stage: %w", err)
	}
	return nil
}

func (s *Store) QueryStagesByList(ctx context.Context, listID string) ([]models.Stage, error) {
	var stages []models.Stage
	if err := s.db.WithContext(ctx).Where("list_id = ?", listID).Find(&stages).Error; err != nil {
		return nil, fmt.Errorf("failed to query stages: %w", err)
	}
	sortStages(stages)
	return stages, nil
}

func sortStages(stages []models.Stage) {
	sort.SliceStable(stages, func(i, j int) bool {
		if stages[i].Order != stages[j].Order {
			return stages[i].Order < stages[j].Order
		}
		return stages[i].ID < stages[j].ID
	})
}

// CreateCard inserts a card and its membership in one list.
func (s *Store) CreateCard(ctx context.Context, c *models.Card, m *models.CardList) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(c).Error; err != nil {
			return fmt.Errorf("failed to insert card: %w", err)
		}
		if err := tx.Create(m).Error; err != nil {
			return fmt.Errorf("failed to insert membership: %w", err)
		}
		return nil
	})
}

func (s *Store) GetCard(ctx context.Context, id string) (models.Card, error) {
	var c models.Card
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&c).Error; err != nil {
		return models.Card{}, notFound(err)
	}
	return c, nil
}

func (s *Store) SaveCard(ctx context.Context, c *models.Card) error {
	if err := s.db.WithContext(ctx).Save(c).Error; err != nil {
		return fmt.Errorf("failed to save card: %w", err)
	}
	return nil
}

// MoveCard sets a card's stage in a list and returns the membership as it
// was before the move.
func (s *Store) MoveCard(ctx context.Context, listID, cardID string, stageID *string) (models.CardList, error) {
	var before models.CardList
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("list_id = ? AND card_id = ?", listID, cardID).First(&before).Error; err != nil {
			return notFound(err)
		}
		return tx.Model(&models.CardList{}).Where("id = ?", before.ID).Update("stage_id", stageID).Error
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return models.CardList{}, err
		}
		return models.CardList{}, fmt.Errorf("failed to move card: %w", err)
	}
	return before, nil
}

// Memberships returns every list membership of a card.
func (s *Store) Memberships(ctx context.Context, cardID string) ([]models.CardList, error) {
	var ms []models.CardList
	if err := s.db.WithContext(ctx).Where("card_id = ?", cardID).Find(&ms).Error; err != nil {
		return nil, fmt.Errorf("failed to query memberships: %w", err)
	}
	return ms, nil
}

// DeleteCard removes a card and all of its memberships. Children keep
// their parent id.
func (s *Store) DeleteCard(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ?", id).Delete(&models.Card{})
		if res.Error != nil {
			return fmt.Errorf("failed to delete card: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		if err := tx.Where("card_id = ?", id).Delete(&models.CardList{}).Error; err != nil {
			return fmt.Errorf("failed to delete memberships: %w", err)
		}
		return nil
	})
}

func (s *Store) LoadView(ctx context.Context, id string) (models.View, error) {
	var v models.View
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&v).Error; err != nil {
		return models.View{}, notFound(err)
	}
	return v, nil
}

// SaveView inserts or updates a view.
func (s *Store) SaveView(ctx context.Context, v *models.View) error {
	if err := s.db.WithContext(ctx).Save(v).Error; err != nil {
		return fmt.Errorf("failed to save view: %w", err)
	}
	return nil
}

func (s *Store) ListViews(ctx context.Context, listID string) ([]models.View, error) {
	views := []models.View{}
	err := s.db.WithContext(ctx).Where("list_id = ?", listID).Order("created_at ASC, id ASC").Find(&views).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query views: %w", err)
	}
	return views, nil
}

// AllViews returns every saved view.
func (s *Store) AllViews(ctx context.Context) ([]models.View, error) {
	var views []models.View
	if err := s.db.WithContext(ctx).Order("created_at ASC, id ASC").Find(&views).Error; err != nil {
		return nil, fmt.Errorf("failed to query views: %w", err)
	}
	return views, nil
}

func (s *Store) DeleteView(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&models.View{})
	if res.Error != nil {
		return fmt.Errorf("failed to delete view: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
