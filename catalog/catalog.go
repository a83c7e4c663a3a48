// Package catalog describes the custom fields attached to card types and
// lists.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/CrowderSoup/workboard/models"
)

var (
	ErrInvalidScope        = errors.New("scope needs exactly one of workspaceId, listId or cardTypeId")
	ErrDuplicateTitleField = errors.New("card type already has a title field")
	ErrInvalidField        = errors.New("invalid field")
	ErrUnknownLayout       = errors.New("unknown card type layout")
)

// Scope selects the fields visible from a workspace, a list or a card type.
type Scope struct {
	WorkspaceID string `json:"workspaceId,omitempty"`
	ListID      string `json:"listId,omitempty"`
	CardTypeID  string `json:"cardTypeId,omitempty"`
}

func (s Scope) valid() bool {
	n := 0
	for _, id := range []string{s.WorkspaceID, s.ListID, s.CardTypeID} {
		if id != "" {
			n++
		}
	}
	return n == 1
}

// Store is the persistence the catalog needs.
type Store interface {
	// QueryFieldsByScope returns the live fields of a scope. For a list this
	// is the list's own fields plus the intrinsic fields of the card types
	// used in it.
	QueryFieldsByScope(ctx context.Context, scope Scope) ([]models.Field, error)
	CreateCardType(ctx context.Context, ct *models.CardType, fields []models.Field) error
	CreateField(ctx context.Context, f *models.Field) error
	DeleteField(ctx context.Context, id string) error
}

// Catalog manages fields and card types.
type Catalog struct {
	store Store
	now   func() time.Time
}

func New(store Store) *Catalog {
	return &Catalog{store: store, now: time.Now}
}

// ListFields returns the fields of a scope in creation order. A scope with
// no fields gives an empty slice, not an error.
func (c *Catalog) ListFields(ctx context.Context, scope Scope) ([]models.Field, error) {
	if !scope.valid() {
		return nil, ErrInvalidScope
	}
	fields, err := c.store.QueryFieldsByScope(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("failed to list fields: %w", err)
	}
	SortByCreation(fields)
	if fields == nil {
		fields = []models.Field{}
	}
	return fields, nil
}

// SortByCreation orders fields by creation time, then id.
func SortByCreation(fields []models.Field) {
	sort.SliceStable(fields, func(i, j int) bool {
		if !fields[i].CreatedAt.Equal(fields[j].CreatedAt) {
			return fields[i].CreatedAt.Before(fields[j].CreatedAt)
		}
		return fields[i].ID < fields[j].ID
	})
}

// Index maps fields by id.
func Index(fields []models.Field) map[string]models.Field {
	idx := make(map[string]models.Field, len(fields))
	for _, f := range fields {
		idx[f.ID] = f
	}
	return idx
}

// CreateCardType creates a card type together with the system fields its
// layout provides.
func (c *Catalog) CreateCardType(ctx context.Context, workspaceID, name string, layout models.Layout) (models.CardType, []models.Field, error) {
	if layout == "" {
		layout = models.LayoutDefault
	}
	caps, ok := models.Capabilities(layout)
	if !ok {
		return models.CardType{}, nil, fmt.Errorf("%w: %s", ErrUnknownLayout, layout)
	}
	if strings.TrimSpace(name) == "" || workspaceID == "" {
		return models.CardType{}, nil, fmt.Errorf("%w: card type needs a workspace and a name", ErrInvalidField)
	}

	now := c.now()
	ct := models.CardType{
		ID:          uuid.NewString(),
		WorkspaceID: workspaceID,
		Name:        name,
		Layout:      layout,
		CreatedAt:   now,
	}

	fields := make([]models.Field, 0, len(caps.Fields))
	for i, tmpl := range caps.Fields {
		typeID := ct.ID
		fields = append(fields, models.Field{
			ID:            uuid.NewString(),
			WorkspaceID:   workspaceID,
			CardTypeID:    &typeID,
			Name:          tmpl.Name,
			Type:          tmpl.Type,
			IsTitle:       tmpl.IsTitle,
			IsDescription: tmpl.IsDescription,
			IsPhoto:       tmpl.IsPhoto,
			IsPinned:      tmpl.IsPinned,
			// System fields keep their template order as creation order.
			CreatedAt: now.Add(time.Duration(i) * time.Microsecond),
		})
	}

	if err := c.store.CreateCardType(ctx, &ct, fields); err != nil {
		return models.CardType{}, nil, fmt.Errorf("failed to create card type: %w", err)
	}
	return ct, fields, nil
}

// CreateField validates and stores a user-defined field.
func (c *Catalog) CreateField(ctx context.Context, f models.Field) (models.Field, error) {
	if err := c.validate(ctx, &f); err != nil {
		return models.Field{}, err
	}
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	f.CreatedAt = c.now()
	if err := c.store.CreateField(ctx, &f); err != nil {
		return models.Field{}, fmt.Errorf("failed to create field: %w", err)
	}
	return f, nil
}

// DeleteField soft-deletes a field. Values stay on cards; filters still
// referencing it match nothing.
func (c *Catalog) DeleteField(ctx context.Context, id string) error {
	if err := c.store.DeleteField(ctx, id); err != nil {
		return fmt.Errorf("failed to delete field: %w", err)
	}
	return nil
}

func (c *Catalog) validate(ctx context.Context, f *models.Field) error {
	if strings.TrimSpace(f.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidField)
	}
	if !f.Type.Valid() {
		return fmt.Errorf("%w: unknown type %q", ErrInvalidField, f.Type)
	}
	if (f.CardTypeID == nil) == (f.ListID == nil) {
		return fmt.Errorf("%w: a field belongs to exactly one card type or list", ErrInvalidField)
	}
	if f.IsTitle && f.CardTypeID == nil {
		return fmt.Errorf("%w: only card type fields can be the title", ErrInvalidField)
	}

	for i := range f.Options {
		if f.Options[i].ID == "" {
			f.Options[i].ID = uuid.NewString()
		}
	}

	if f.IsTitle {
		existing, err := c.store.QueryFieldsByScope(ctx, Scope{CardTypeID: *f.CardTypeID})
		if err != nil {
			return fmt.Errorf("failed to check title field: %w", err)
		}
		for _, e := range existing {
			if e.IsTitle && e.Intrinsic() {
				return ErrDuplicateTitleField
			}
		}
	}
	return nil
}
