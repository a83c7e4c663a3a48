package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/CrowderSoup/workboard/catalog"
	"github.com/CrowderSoup/workboard/database"
	"github.com/CrowderSoup/workboard/models"
)

var ErrInvalidList = errors.New("invalid list")

// ListStore is the persistence the list service needs.
type ListStore interface {
	CreateList(ctx context.Context, l *models.List) error
	GetList(ctx context.Context, id string) (models.List, error)
	DeleteList(ctx context.Context, id string) error
	CreateStage(ctx context.Context, st *models.Stage) error
	GetCardType(ctx context.Context, id string) (models.CardType, error)
}

// StageInput describes a stage to create.
type StageInput struct {
	Name     string `json:"name"`
	Color    string `json:"color,omitempty"`
	Icon     string `json:"icon,omitempty"`
	Order    int    `json:"order"`
	Terminal bool   `json:"terminal"`
}

// ListInput describes a list to create.
type ListInput struct {
	Name              string       `json:"name"`
	DefaultCardTypeID string       `json:"defaultCardTypeId"`
	Stages            []StageInput `json:"stages"`
}

// ListService manages lists, their stages and the field catalog of a
// workspace.
type ListService struct {
	store   ListStore
	catalog *catalog.Catalog
}

func NewListService(store ListStore, cat *catalog.Catalog) *ListService {
	return &ListService{store: store, catalog: cat}
}

func (s *ListService) Create(ctx context.Context, workspaceID string, in ListInput) (models.List, error) {
	if strings.TrimSpace(in.Name) == "" {
		return models.List{}, fmt.Errorf("%w: name is required", ErrInvalidList)
	}
	if in.DefaultCardTypeID != "" {
		ct, err := s.store.GetCardType(ctx, in.DefaultCardTypeID)
		if err != nil {
			return models.List{}, err
		}
		if ct.WorkspaceID != workspaceID {
			return models.List{}, database.ErrNotFound
		}
	}

	l := models.List{
		ID:                uuid.NewString(),
		WorkspaceID:       workspaceID,
		Name:              in.Name,
		DefaultCardTypeID: in.DefaultCardTypeID,
	}
	for _, st := range in.Stages {
		stage, err := newStage(l.ID, st)
		if err != nil {
			return models.List{}, err
		}
		l.Stages = append(l.Stages, stage)
	}
	if err := s.store.CreateList(ctx, &l); err != nil {
		return models.List{}, err
	}
	return l, nil
}

func newStage(listID string, in StageInput) (models.Stage, error) {
	if strings.TrimSpace(in.Name) == "" {
		return models.Stage{}, fmt.Errorf("%w: stage name is required", ErrInvalidList)
	}
	return models.Stage{
		ID:       uuid.NewString(),
		ListID:   listID,
		Name:     in.Name,
		Color:    in.Color,
		Icon:     in.Icon,
		Order:    in.Order,
		Terminal: in.Terminal,
	}, nil
}

func (s *ListService) Get(ctx context.Context, workspaceID, id string) (models.List, error) {
	l, err := s.store.GetList(ctx, id)
	if err != nil {
		return models.List{}, err
	}
	if l.WorkspaceID != workspaceID {
		return models.List{}, database.ErrNotFound
	}
	return l, nil
}

func (s *ListService) Delete(ctx context.Context, workspaceID, id string) error {
	if _, err := s.Get(ctx, workspaceID, id); err != nil {
		return err
	}
	return s.store.DeleteList(ctx, id)
}

func (s *ListService) AddStage(ctx context.Context, workspaceID, listID string, in StageInput) (models.Stage, error) {
	if _, err := s.Get(ctx, workspaceID, listID); err != nil {
		return models.Stage{}, err
	}
	st, err := newStage(listID, in)
	if err != nil {
		return models.Stage{}, err
	}
	if err := s.store.CreateStage(ctx, &st); err != nil {
		return models.Stage{}, err
	}
	return st, nil
}

func (s *ListService) CreateCardType(ctx context.Context, workspaceID, name string, layout models.Layout) (models.CardType, []models.Field, error) {
	return s.catalog.CreateCardType(ctx, workspaceID, name, layout)
}

// Fields lists the fields of a scope inside the caller's workspace.
func (s *ListService) Fields(ctx context.Context, workspaceID string, scope catalog.Scope) ([]models.Field, error) {
	switch {
	case scope.WorkspaceID != "" && scope.WorkspaceID != workspaceID:
		return nil, database.ErrNotFound
	case scope.ListID != "":
		if _, err := s.Get(ctx, workspaceID, scope.ListID); err != nil {
			return nil, err
		}
	case scope.CardTypeID != "":
		if err := s.ownCardType(ctx, workspaceID, scope.CardTypeID); err != nil {
			return nil, err
		}
	}
	return s.catalog.ListFields(ctx, scope)
}

func (s *ListService) ownCardType(ctx context.Context, workspaceID, id string) error {
	ct, err := s.store.GetCardType(ctx, id)
	if err != nil {
		return err
	}
	if ct.WorkspaceID != workspaceID {
		return database.ErrNotFound
	}
	return nil
}

func (s *ListService) CreateField(ctx context.Context, workspaceID string, f models.Field) (models.Field, error) {
	f.WorkspaceID = workspaceID
	if f.ListID != nil {
		if _, err := s.Get(ctx, workspaceID, *f.ListID); err != nil {
			return models.Field{}, err
		}
	}
	if f.CardTypeID != nil {
		if err := s.ownCardType(ctx, workspaceID, *f.CardTypeID); err != nil {
			return models.Field{}, err
		}
	}
	return s.catalog.CreateField(ctx, f)
}

func (s *ListService) DeleteField(ctx context.Context, workspaceID, id string) error {
	fields, err := s.catalog.ListFields(ctx, catalog.Scope{WorkspaceID: workspaceID})
	if err != nil {
		return err
	}
	if _, ok := catalog.Index(fields)[id]; !ok {
		return database.ErrNotFound
	}
	return s.catalog.DeleteField(ctx, id)
}
