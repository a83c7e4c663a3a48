package services

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/CrowderSoup/workboard/catalog"
	"github.com/CrowderSoup/workboard/database"
	"github.com/CrowderSoup/workboard/models"
	"github.com/CrowderSoup/workboard/views"
)

const testWorkspace = "w1"

type recordingSink struct {
	mu     sync.Mutex
	events []models.CardEvent
}

func (s *recordingSink) PublishEvent(ev models.CardEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *recordingSink) take() []models.CardEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.events
	s.events = nil
	return out
}

type testEnv struct {
	store *database.Store
	lists *ListService
	cards *CardService
	views *ViewService
	sink  *recordingSink
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := database.InitDB(filepath.Join(t.TempDir(), "services.db"))
	if err != nil {
		t.Fatalf("InitDB() error: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	store := database.NewStore(db)
	cat := catalog.New(store)
	sink := &recordingSink{}
	composer := views.NewComposer(store, cat, views.Config{PageSize: 10})
	return &testEnv{
		store: store,
		lists: NewListService(store, cat),
		cards: NewCardService(store, cat, sink),
		views: NewViewService(store, composer),
		sink:  sink,
	}
}

// board creates a list with a to do and a done stage whose default card
// type uses layout.
func (e *testEnv) board(t *testing.T, layout models.Layout) (models.List, []models.Field) {
	t.Helper()
	ctx := context.Background()
	ct, fields, err := e.lists.CreateCardType(ctx, testWorkspace, "Card", layout)
	if err != nil {
		t.Fatalf("CreateCardType() error: %v", err)
	}
	l, err := e.lists.Create(ctx, testWorkspace, ListInput{
		Name:              "Board",
		DefaultCardTypeID: ct.ID,
		Stages: []StageInput{
			{Name: "To do", Order: 1},
			{Name: "Done", Order: 2, Terminal: true},
		},
	})
	if err != nil {
		t.Fatalf("Create() list error: %v", err)
	}
	l, err = e.lists.Get(ctx, testWorkspace, l.ID)
	if err != nil {
		t.Fatalf("Get() list error: %v", err)
	}
	return l, fields
}

func fieldNamed(t *testing.T, fields []models.Field, name string) models.Field {
	t.Helper()
	for _, f := range fields {
		if f.Name == name {
			return f
		}
	}
	t.Fatalf("no field named %q", name)
	return models.Field{}
}

func strPtr(s string) *string { return &s }
