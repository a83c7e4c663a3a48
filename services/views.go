package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/CrowderSoup/workboard/cards"
	"github.com/CrowderSoup/workboard/database"
	"github.com/CrowderSoup/workboard/filters"
	"github.com/CrowderSoup/workboard/grouping"
	"github.com/CrowderSoup/workboard/models"
	"github.com/CrowderSoup/workboard/views"
)

// ErrInvalidView is returned for a view that cannot be saved or resolved.
var ErrInvalidView = errors.New("invalid view")

// ViewStore is the persistence the view service needs.
type ViewStore interface {
	GetList(ctx context.Context, id string) (models.List, error)
	LoadView(ctx context.Context, id string) (models.View, error)
	SaveView(ctx context.Context, v *models.View) error
	ListViews(ctx context.Context, listID string) ([]models.View, error)
	DeleteView(ctx context.Context, id string) error
	AllViews(ctx context.Context) ([]models.View, error)
}

// ViewQuery is an ad hoc view of a list, or a reference to a saved one.
type ViewQuery struct {
	ViewID        string            `json:"viewId,omitempty"`
	ListID        string            `json:"listId,omitempty"`
	GroupBy       models.GroupBy    `json:"groupBy"`
	HideCompleted bool              `json:"hideCompleted"`
	HideChildren  bool              `json:"hideChildren"`
	SortCardsBy   models.SortOption `json:"sortCardsBy"`
	Filters       models.Filters    `json:"filters"`
	PageSize      int               `json:"pageSize,omitempty"`
}

type ViewService struct {
	store    ViewStore
	composer *views.Composer
}

func NewViewService(store ViewStore, composer *views.Composer) *ViewService {
	return &ViewService{store: store, composer: composer}
}

func (s *ViewService) Composer() *views.Composer { return s.composer }

// list loads a list of the caller's workspace. Lists of other workspaces
// are reported as not found.
func (s *ViewService) list(ctx context.Context, workspaceID, listID string) (models.List, error) {
	l, err := s.store.GetList(ctx, listID)
	if err != nil {
		return models.List{}, err
	}
	if l.WorkspaceID != workspaceID {
		return models.List{}, database.ErrNotFound
	}
	return l, nil
}

// BuildView turns q into the view to resolve.
func (s *ViewService) BuildView(ctx context.Context, workspaceID string, q ViewQuery) (models.View, error) {
	if q.ViewID != "" {
		v, err := s.Get(ctx, workspaceID, q.ViewID)
		if err != nil {
			return models.View{}, err
		}
		if q.ListID != "" && v.ListID != q.ListID {
			return models.View{}, database.ErrNotFound
		}
		return v, nil
	}

	if _, err := s.list(ctx, workspaceID, q.ListID); err != nil {
		return models.View{}, err
	}
	v := models.View{
		ListID:  q.ListID,
		GroupBy: q.GroupBy,
		Sort:    q.SortCardsBy,
		Filters: q.Filters,
		Display: models.DisplayOptions{HideCompleted: q.HideCompleted, HideChildren: q.HideChildren},
	}
	if err := validateGroupBy(v.GroupBy); err != nil {
		return models.View{}, err
	}
	return v, nil
}

func validateGroupBy(g models.GroupBy) error {
	switch g.Normalized().Type {
	case models.GroupAll, models.GroupStage:
		return nil
	case models.GroupField:
		if strings.TrimSpace(g.FieldID) == "" {
			return fmt.Errorf("%w: %v", ErrInvalidView, grouping.ErrMissingField)
		}
		return nil
	}
	return fmt.Errorf("%w: unknown group by type %q", ErrInvalidView, g.Type)
}

// Resolve computes the groups of q and the first page of each.
func (s *ViewService) Resolve(ctx context.Context, workspaceID string, q ViewQuery) (views.Resolution, error) {
	v, err := s.BuildView(ctx, workspaceID, q)
	if err != nil {
		return views.Resolution{}, err
	}
	return s.composer.Resolve(ctx, v, q.PageSize)
}

// FetchGroup returns one page of one group of q.
func (s *ViewService) FetchGroup(ctx context.Context, workspaceID string, q ViewQuery, key string, page, limit int) (grouping.Definition, cards.Page, error) {
	v, err := s.BuildView(ctx, workspaceID, q)
	if err != nil {
		return grouping.Definition{}, cards.Page{}, err
	}
	return s.composer.FetchGroup(ctx, v, key, page, limit)
}

// FetchCards returns one page of a list's cards without grouping.
func (s *ViewService) FetchCards(ctx context.Context, workspaceID, listID string, f models.Filters, sort models.SortOption, page, limit int) (cards.Page, error) {
	q := ViewQuery{ListID: listID, GroupBy: models.GroupBy{Type: models.GroupAll}, Filters: f, SortCardsBy: sort}
	_, p, err := s.FetchGroup(ctx, workspaceID, q, string(models.GroupAll), page, limit)
	return p, err
}

func (s *ViewService) Get(ctx context.Context, workspaceID, id string) (models.View, error) {
	v, err := s.store.LoadView(ctx, id)
	if err != nil {
		return models.View{}, err
	}
	if _, err := s.list(ctx, workspaceID, v.ListID); err != nil {
		return models.View{}, err
	}
	return v, nil
}

func (s *ViewService) List(ctx context.Context, workspaceID, listID string) ([]models.View, error) {
	if _, err := s.list(ctx, workspaceID, listID); err != nil {
		return nil, err
	}
	return s.store.ListViews(ctx, listID)
}

// Create validates and saves a new view of listID.
func (s *ViewService) Create(ctx context.Context, workspaceID, listID string, v models.View) (models.View, error) {
	if _, err := s.list(ctx, workspaceID, listID); err != nil {
		return models.View{}, err
	}
	v.ID = uuid.NewString()
	v.ListID = listID
	if err := s.validate(ctx, v); err != nil {
		return models.View{}, err
	}
	if err := s.store.SaveView(ctx, &v); err != nil {
		return models.View{}, err
	}
	return v, nil
}

// Update replaces the definition of a saved view.
func (s *ViewService) Update(ctx context.Context, workspaceID, id string, v models.View) (models.View, error) {
	existing, err := s.Get(ctx, workspaceID, id)
	if err != nil {
		return models.View{}, err
	}
	v.ID = existing.ID
	v.ListID = existing.ListID
	v.CreatedAt = existing.CreatedAt
	if err := s.validate(ctx, v); err != nil {
		return models.View{}, err
	}
	if err := s.store.SaveView(ctx, &v); err != nil {
		return models.View{}, err
	}
	return v, nil
}

func (s *ViewService) Delete(ctx context.Context, workspaceID, id string) error {
	if _, err := s.Get(ctx, workspaceID, id); err != nil {
		return err
	}
	return s.store.DeleteView(ctx, id)
}

// validate compiles v without fetching cards, so a view that could never
// resolve is not saved.
func (s *ViewService) validate(ctx context.Context, v models.View) error {
	if strings.TrimSpace(v.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidView)
	}
	if err := validateGroupBy(v.GroupBy); err != nil {
		return err
	}
	_, _, err := s.composer.Groups(ctx, v)
	return err
}

// RelativeDateViews returns the saved views whose results change with the
// current date.
func (s *ViewService) RelativeDateViews(ctx context.Context) ([]models.View, error) {
	all, err := s.store.AllViews(ctx)
	if err != nil {
		return nil, err
	}
	var out []models.View
	for _, v := range all {
		if filters.UsesRelativeDates(v.Filters) {
			out = append(out, v)
		}
	}
	return out, nil
}

// WorkspaceOf returns the workspace a list belongs to.
func (s *ViewService) WorkspaceOf(ctx context.Context, listID string) (string, error) {
	l, err := s.store.GetList(ctx, listID)
	if err != nil {
		return "", err
	}
	return l.WorkspaceID, nil
}
