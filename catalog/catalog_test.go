package catalog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/CrowderSoup/workboard/models"
)

type fakeStore struct {
	fields    []models.Field
	cardTypes []models.CardType
}

func (s *fakeStore) QueryFieldsByScope(_ context.Context, scope Scope) ([]models.Field, error) {
	var out []models.Field
	for _, f := range s.fields {
		switch {
		case scope.CardTypeID != "" && f.CardTypeID != nil && *f.CardTypeID == scope.CardTypeID:
			out = append(out, f)
		case scope.ListID != "" && f.ListID != nil && *f.ListID == scope.ListID:
			out = append(out, f)
		case scope.WorkspaceID != "" && f.WorkspaceID == scope.WorkspaceID:
			out = append(out, f)
		}
	}
	return out, nil
}

func (s *fakeStore) CreateCardType(_ context.Context, ct *models.CardType, fields []models.Field) error {
	s.cardTypes = append(s.cardTypes, *ct)
	s.fields = append(s.fields, fields...)
	return nil
}

func (s *fakeStore) CreateField(_ context.Context, f *models.Field) error {
	s.fields = append(s.fields, *f)
	return nil
}

func (s *fakeStore) DeleteField(_ context.Context, id string) error {
	for i, f := range s.fields {
		if f.ID == id {
			s.fields = append(s.fields[:i], s.fields[i+1:]...)
			return nil
		}
	}
	return errors.New("not found")
}

func strPtr(s string) *string { return &s }

func TestListFields_InvalidScope(t *testing.T) {
	c := New(&fakeStore{})
	for _, scope := range []Scope{{}, {ListID: "l", CardTypeID: "t"}} {
		if _, err := c.ListFields(context.Background(), scope); !errors.Is(err, ErrInvalidScope) {
			t.Errorf("ListFields(%+v) error = %v, want ErrInvalidScope", scope, err)
		}
	}
}

func TestListFields_EmptyScopeIsNotAnError(t *testing.T) {
	fields, err := New(&fakeStore{}).ListFields(context.Background(), Scope{ListID: "nothing"})
	if err != nil {
		t.Fatalf("ListFields() error: %v", err)
	}
	if fields == nil || len(fields) != 0 {
		t.Errorf("fields = %v, want empty non-nil slice", fields)
	}
}

func TestListFields_CreationOrder(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	store := &fakeStore{fields: []models.Field{
		{ID: "c", WorkspaceID: "w", ListID: strPtr("l"), CreatedAt: t0.Add(2 * time.Hour)},
		{ID: "b", WorkspaceID: "w", ListID: strPtr("l"), CreatedAt: t0},
		{ID: "a", WorkspaceID: "w", ListID: strPtr("l"), CreatedAt: t0},
	}}
	fields, err := New(store).ListFields(context.Background(), Scope{ListID: "l"})
	if err != nil {
		t.Fatal(err)
	}
	got := []string{fields[0].ID, fields[1].ID, fields[2].ID}
	if got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Errorf("order = %v, want [a b c]", got)
	}
}

func TestCreateCardType_SystemFields(t *testing.T) {
	store := &fakeStore{}
	c := New(store)

	ct, fields, err := c.CreateCardType(context.Background(), "w1", "Contacts", models.LayoutPerson)
	if err != nil {
		t.Fatalf("CreateCardType() error: %v", err)
	}
	if ct.Layout != models.LayoutPerson {
		t.Errorf("Layout = %s, want person", ct.Layout)
	}
	if len(fields) != 5 {
		t.Fatalf("fields = %d, want 5", len(fields))
	}
	for _, f := range fields {
		if !f.Intrinsic() || *f.CardTypeID != ct.ID {
			t.Errorf("field %s should be intrinsic to %s", f.Name, ct.ID)
		}
	}

	listed, _ := c.ListFields(context.Background(), Scope{CardTypeID: ct.ID})
	if listed[0].Name != "First name" || listed[4].Name != "Photo" {
		t.Errorf("system fields out of template order: %s ... %s", listed[0].Name, listed[4].Name)
	}
}

func TestCreateCardType_UnknownLayout(t *testing.T) {
	_, _, err := New(&fakeStore{}).CreateCardType(context.Background(), "w1", "X", "spreadsheet")
	if !errors.Is(err, ErrUnknownLayout) {
		t.Errorf("error = %v, want ErrUnknownLayout", err)
	}
}

func TestCreateField_SingleTitlePerCardType(t *testing.T) {
	store := &fakeStore{}
	c := New(store)
	ct, _, err := c.CreateCardType(context.Background(), "w1", "Tasks", models.LayoutDefault)
	if err != nil {
		t.Fatal(err)
	}

	_, err = c.CreateField(context.Background(), models.Field{
		WorkspaceID: "w1", CardTypeID: strPtr(ct.ID), Name: "Headline", Type: models.FieldText, IsTitle: true,
	})
	if !errors.Is(err, ErrDuplicateTitleField) {
		t.Errorf("error = %v, want ErrDuplicateTitleField", err)
	}
}

func TestCreateField_Validation(t *testing.T) {
	c := New(&fakeStore{})
	tests := []struct {
		name  string
		field models.Field
	}{
		{"no name", models.Field{Type: models.FieldText, ListID: strPtr("l")}},
		{"bad type", models.Field{Name: "x", Type: "blob", ListID: strPtr("l")}},
		{"no owner", models.Field{Name: "x", Type: models.FieldText}},
		{"two owners", models.Field{Name: "x", Type: models.FieldText, ListID: strPtr("l"), CardTypeID: strPtr("t")}},
		{"list title", models.Field{Name: "x", Type: models.FieldText, ListID: strPtr("l"), IsTitle: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := c.CreateField(context.Background(), tt.field); !errors.Is(err, ErrInvalidField) {
				t.Errorf("error = %v, want ErrInvalidField", err)
			}
		})
	}
}

func TestCreateField_AssignsOptionIDs(t *testing.T) {
	f, err := New(&fakeStore{}).CreateField(context.Background(), models.Field{
		WorkspaceID: "w1", ListID: strPtr("l1"), Name: "Priority", Type: models.FieldDropdown,
		Options: []models.FieldOption{{Name: "High"}, {ID: "low", Name: "Low"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if f.Options[0].ID == "" || f.Options[1].ID != "low" {
		t.Errorf("options = %+v", f.Options)
	}
	if !f.Extrinsic() {
		t.Error("list field should be extrinsic")
	}
}
