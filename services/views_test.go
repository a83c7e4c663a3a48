package services

import (
	"context"
	"errors"
	"testing"

	"github.com/CrowderSoup/workboard/database"
	"github.com/CrowderSoup/workboard/models"
)

func seedCards(t *testing.T, e *testEnv, l models.List, perStage []int) {
	t.Helper()
	ctx := context.Background()
	for i, n := range perStage {
		var stage *string
		if i < len(l.Stages) {
			stage = strPtr(l.Stages[i].ID)
		}
		for j := 0; j < n; j++ {
			if _, err := e.cards.Create(ctx, testWorkspace, CardInput{ListID: l.ID, Title: "card", StageID: stage, Order: float64(j)}); err != nil {
				t.Fatalf("Create() error: %v", err)
			}
		}
	}
	e.sink.take()
}

func TestViewResolve_AdHocStageGroups(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	l, _ := e.board(t, models.LayoutDefault)
	seedCards(t, e, l, []int{3, 1, 2})

	res, err := e.views.Resolve(ctx, testWorkspace, ViewQuery{
		ListID:  l.ID,
		GroupBy: models.GroupBy{Type: models.GroupStage},
	})
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if len(res.Groups) != 3 {
		t.Fatalf("got %d groups, want 3", len(res.Groups))
	}
	total := 0
	for _, g := range res.Groups {
		total += len(g.Cards)
	}
	if total != 6 {
		t.Errorf("groups hold %d cards, want 6", total)
	}

	hidden, err := e.views.Resolve(ctx, testWorkspace, ViewQuery{
		ListID:        l.ID,
		GroupBy:       models.GroupBy{Type: models.GroupAll},
		HideCompleted: true,
	})
	if err != nil {
		t.Fatalf("Resolve() hide completed error: %v", err)
	}
	if n := len(hidden.Groups[0].Cards); n != 5 {
		t.Errorf("hide completed left %d cards, want 5", n)
	}

	if _, err := e.views.Resolve(ctx, "w2", ViewQuery{ListID: l.ID}); !errors.Is(err, database.ErrNotFound) {
		t.Errorf("Resolve() from another workspace error = %v, want ErrNotFound", err)
	}
}

func TestViewCRUD(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	l, _ := e.board(t, models.LayoutDefault)

	if _, err := e.views.Create(ctx, testWorkspace, l.ID, models.View{}); !errors.Is(err, ErrInvalidView) {
		t.Errorf("Create() without a name error = %v, want ErrInvalidView", err)
	}
	if _, err := e.views.Create(ctx, testWorkspace, l.ID, models.View{Name: "x", GroupBy: models.GroupBy{Type: models.GroupField}}); !errors.Is(err, ErrInvalidView) {
		t.Errorf("Create() field grouping without a field error = %v, want ErrInvalidView", err)
	}

	v, err := e.views.Create(ctx, testWorkspace, l.ID, models.View{Name: "Board", GroupBy: models.GroupBy{Type: models.GroupStage}})
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	v.Name = "Renamed"
	v.ListID = "other"
	updated, err := e.views.Update(ctx, testWorkspace, v.ID, v)
	if err != nil {
		t.Fatalf("Update() error: %v", err)
	}
	if updated.Name != "Renamed" || updated.ListID != l.ID {
		t.Errorf("Update() = %+v", updated)
	}

	list, err := e.views.List(ctx, testWorkspace, l.ID)
	if err != nil || len(list) != 1 {
		t.Fatalf("List() = %v, %v", list, err)
	}
	if _, err := e.views.Get(ctx, "w2", v.ID); !errors.Is(err, database.ErrNotFound) {
		t.Errorf("Get() from another workspace error = %v, want ErrNotFound", err)
	}

	if err := e.views.Delete(ctx, testWorkspace, v.ID); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	if _, err := e.views.Get(ctx, testWorkspace, v.ID); !errors.Is(err, database.ErrNotFound) {
		t.Errorf("Get() after delete error = %v, want ErrNotFound", err)
	}
}

func TestRelativeDateViews(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	l, _ := e.board(t, models.LayoutDefault)

	field, err := e.lists.CreateField(ctx, testWorkspace, models.Field{ListID: strPtr(l.ID), Name: "Due", Type: models.FieldDate})
	if err != nil {
		t.Fatalf("CreateField() error: %v", err)
	}
	relative := models.View{Name: "Due today", Filters: models.Filters{
		Quick: &models.FilterNode{Field: field.ID, Operator: models.OpLte, Value: ":endOfDay"},
	}}
	if _, err := e.views.Create(ctx, testWorkspace, l.ID, relative); err != nil {
		t.Fatalf("Create() relative view error: %v", err)
	}
	if _, err := e.views.Create(ctx, testWorkspace, l.ID, models.View{Name: "Plain"}); err != nil {
		t.Fatalf("Create() plain view error: %v", err)
	}

	got, err := e.views.RelativeDateViews(ctx)
	if err != nil {
		t.Fatalf("RelativeDateViews() error: %v", err)
	}
	if len(got) != 1 || got[0].Name != "Due today" {
		t.Errorf("RelativeDateViews() = %+v", got)
	}

	ws, err := e.views.WorkspaceOf(ctx, l.ID)
	if err != nil || ws != testWorkspace {
		t.Errorf("WorkspaceOf() = %q, %v", ws, err)
	}
}
