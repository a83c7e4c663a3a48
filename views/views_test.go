package views

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/CrowderSoup/workboard/cards"
	"github.com/CrowderSoup/workboard/catalog"
	"github.com/CrowderSoup/workboard/filters"
	"github.com/CrowderSoup/workboard/grouping"
	"github.com/CrowderSoup/workboard/models"
)

type fakeStore struct {
	mu      sync.Mutex
	lists   map[string]models.List
	stages  map[string][]models.Stage
	rows    []models.ListCard
	fetches map[string]int
	fail    map[string]error
	// block makes queries on a list wait for their context; started is
	// signalled once such a query is running.
	block   map[string]bool
	started chan struct{}
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		lists:   map[string]models.List{},
		stages:  map[string][]models.Stage{},
		fetches: map[string]int{},
		fail:    map[string]error{},
		block:   map[string]bool{},
		started: make(chan struct{}, 16),
	}
}

func (s *fakeStore) QueryCards(ctx context.Context, q cards.Query) ([]models.ListCard, error) {
	s.mu.Lock()
	s.fetches[q.Group]++
	err := s.fail[q.Group]
	block := s.block[q.ListID]
	var rows []models.ListCard
	for _, r := range s.rows {
		if r.Membership.ListID == q.ListID {
			rows = append(rows, r)
		}
	}
	s.mu.Unlock()

	if block {
		s.started <- struct{}{}
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}
	return cards.Apply(rows, q), nil
}

func (s *fakeStore) GetList(_ context.Context, id string) (models.List, error) {
	l, ok := s.lists[id]
	if !ok {
		return models.List{}, errors.New("not found")
	}
	return l, nil
}

func (s *fakeStore) QueryStagesByList(_ context.Context, listID string) ([]models.Stage, error) {
	return s.stages[listID], nil
}

func (s *fakeStore) QueryDistinctFieldValues(_ context.Context, listID string, f models.Field) (grouping.Distinct, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var d grouping.Distinct
	var observed [][]string
	for _, r := range s.rows {
		if r.Membership.ListID != listID {
			continue
		}
		v, _ := models.DecodeValue(f, r.Card.Values[f.ID])
		set, ok := v.(models.SetValue)
		if !ok {
			d.HasEmpty = true
			continue
		}
		observed = append(observed, set.IDs)
	}
	d.Values = grouping.FirstSeen(observed)
	return d, nil
}

func (s *fakeStore) FindListCard(_ context.Context, listID, cardID string) (models.ListCard, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.rows {
		if r.Membership.ListID == listID && r.Card.ID == cardID {
			return r, true, nil
		}
	}
	return models.ListCard{}, false, nil
}

func (s *fakeStore) moveCard(cardID string, stage *string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.rows {
		if s.rows[i].Card.ID == cardID {
			s.rows[i].Membership.StageID = stage
		}
	}
}

func (s *fakeStore) setValue(cardID, fieldID string, v any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.rows {
		if s.rows[i].Card.ID == cardID {
			s.rows[i].Card.Values[fieldID] = v
		}
	}
}

func (s *fakeStore) resetFetches() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetches = map[string]int{}
}

func (s *fakeStore) fetchCount(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetches[key]
}

func (s *fakeStore) totalFetches() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.fetches {
		n += c
	}
	return n
}

type fakeFields []models.Field

func (f fakeFields) ListFields(context.Context, catalog.Scope) ([]models.Field, error) {
	return append([]models.Field{}, f...), nil
}

var t0 = time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

func strPtr(s string) *string { return &s }

// boardFixture is a list with three stages and ten cards, two of them
// without a stage.
func boardFixture() *fakeStore {
	s := newFakeStore()
	s.lists["l1"] = models.List{ID: "l1", WorkspaceID: "w1", Name: "Board"}
	s.stages["l1"] = []models.Stage{
		{ID: "todo", ListID: "l1", Name: "To do", Order: 1},
		{ID: "doing", ListID: "l1", Name: "Doing", Order: 2},
		{ID: "done", ListID: "l1", Name: "Done", Order: 3, Terminal: true},
	}
	stages := []*string{
		strPtr("todo"), strPtr("todo"), strPtr("todo"), strPtr("todo"),
		strPtr("doing"), strPtr("doing"), strPtr("done"), strPtr("done"),
		nil, nil,
	}
	labels := []any{"red", "red", []any{"blue", "red"}, "blue", nil, "green", nil, "red", "blue", nil}
	for i, st := range stages {
		id := fmt.Sprintf("c%d", i)
		s.rows = append(s.rows, models.ListCard{
			Card: models.Card{
				ID:        id,
				Title:     "Card " + id,
				CreatedAt: t0.Add(time.Duration(i) * time.Minute),
				Values:    map[string]any{"labels": labels[i], "points": i},
			},
			Membership: models.CardList{ID: "m" + id, CardID: id, ListID: "l1", StageID: st},
		})
	}
	return s
}

var testFields = fakeFields{
	{ID: "labels", Name: "Labels", Type: models.FieldLabel, ListID: strPtr("l1"), Options: []models.FieldOption{
		{ID: "red", Name: "Red", Order: 1}, {ID: "blue", Name: "Blue", Order: 2}, {ID: "green", Name: "Green", Order: 3},
	}},
	{ID: "points", Name: "Points", Type: models.FieldNumber, ListID: strPtr("l1")},
}

func newComposer(s *fakeStore) *Composer {
	return NewComposer(s, testFields, Config{Now: func() time.Time { return t0 }, PageSize: 10})
}

func stageView() models.View {
	return models.View{ID: "v1", ListID: "l1", GroupBy: models.GroupBy{Type: models.GroupStage}}
}

func TestResolve_StageGroupsCoverEveryCard(t *testing.T) {
	res, err := newComposer(boardFixture()).Resolve(context.Background(), stageView(), 0)
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if len(res.Groups) != 4 {
		t.Fatalf("groups = %d, want 4", len(res.Groups))
	}
	want := map[string]int{"LIST_STAGE:todo": 4, "LIST_STAGE:doing": 2, "LIST_STAGE:done": 2, "LIST_STAGE:none": 2}
	total := 0
	for _, g := range res.Groups {
		if g.State != StateLoaded {
			t.Errorf("group %s state = %s, want loaded", g.Definition.Key, g.State)
		}
		if len(g.Cards) != want[g.Definition.Key] {
			t.Errorf("group %s has %d cards, want %d", g.Definition.Key, len(g.Cards), want[g.Definition.Key])
		}
		total += len(g.Cards)
	}
	if total != 10 {
		t.Errorf("total cards = %d, want 10", total)
	}
	if res.Version == "" {
		t.Error("Version should be set")
	}
}

func TestResolve_OneGroupFailing(t *testing.T) {
	store := boardFixture()
	store.fail["LIST_STAGE:doing"] = errors.New("disk I/O error")

	res, err := newComposer(store).Resolve(context.Background(), stageView(), 0)
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	for _, g := range res.Groups {
		wantErr := g.Definition.Key == "LIST_STAGE:doing"
		if (g.State == StateError) != wantErr {
			t.Errorf("group %s state = %s", g.Definition.Key, g.State)
		}
		if wantErr && g.Error == "" {
			t.Error("failed group should carry its error")
		}
	}
}

func TestResolve_FieldGroupsAndFallback(t *testing.T) {
	c := newComposer(boardFixture())

	res, err := c.Resolve(context.Background(), models.View{ListID: "l1", GroupBy: models.GroupBy{Type: models.GroupField, FieldID: "labels"}}, 0)
	if err != nil {
		t.Fatal(err)
	}
	var keys []string
	for _, g := range res.Groups {
		keys = append(keys, g.Definition.Key)
	}
	if got := fmt.Sprint(keys); got != "[FIELD:labels:red FIELD:labels:blue FIELD:labels:green FIELD:labels:none]" {
		t.Errorf("keys = %s", got)
	}

	res, err = c.Resolve(context.Background(), models.View{ListID: "l1", GroupBy: models.GroupBy{Type: models.GroupField, FieldID: "points"}}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Groups) != 1 || res.Groups[0].Definition.Key != "ALL" || len(res.Groups[0].Cards) != 10 {
		t.Fatalf("number field should fall back to a single ALL group, got %+v", res.Groups)
	}
	if len(res.Warnings) != 1 {
		t.Fatalf("warnings = %v, want one", res.Warnings)
	}
	var gErr *grouping.UnsupportedGroupFieldError
	if !errors.As(res.Warnings[0].Err, &gErr) {
		t.Errorf("warning error = %v, want *UnsupportedGroupFieldError", res.Warnings[0].Err)
	}
}

func TestResolve_UnsupportedOperatorRejectsView(t *testing.T) {
	view := stageView()
	view.Filters.Advanced = &models.FilterNode{Field: "labels", Operator: models.OpLike, Value: "r%"}

	store := boardFixture()
	_, err := newComposer(store).Resolve(context.Background(), view, 0)
	var opErr *filters.UnsupportedOperatorError
	if !errors.As(err, &opErr) {
		t.Fatalf("error = %v, want *UnsupportedOperatorError", err)
	}
	if n := store.totalFetches(); n != 0 {
		t.Errorf("fetches = %d, want none", n)
	}
}

func TestResolve_InvalidPageSize(t *testing.T) {
	_, err := newComposer(boardFixture()).Resolve(context.Background(), stageView(), -1)
	var pErr *cards.InvalidPaginationError
	if !errors.As(err, &pErr) {
		t.Errorf("error = %v, want *InvalidPaginationError", err)
	}
}

func TestFetchGroup(t *testing.T) {
	c := newComposer(boardFixture())
	def, page, err := c.FetchGroup(context.Background(), stageView(), "LIST_STAGE:todo", 2, 3)
	if err != nil {
		t.Fatal(err)
	}
	if def.Name != "To do" || len(page.Cards) != 1 || page.HasMore {
		t.Errorf("page 2 of todo = %d cards hasMore=%v", len(page.Cards), page.HasMore)
	}

	if _, _, err := c.FetchGroup(context.Background(), stageView(), "LIST_STAGE:gone", 1, 3); !errors.Is(err, ErrUnknownGroup) {
		t.Errorf("error = %v, want ErrUnknownGroup", err)
	}
}

func TestSession_PaginationIsPerGroup(t *testing.T) {
	store := boardFixture()
	s := NewSession(newComposer(store), 2)
	if _, err := s.Resolve(context.Background(), stageView()); err != nil {
		t.Fatal(err)
	}
	before := s.Snapshot()
	store.resetFetches()

	g, err := s.LoadMore(context.Background(), "LIST_STAGE:todo")
	if err != nil {
		t.Fatalf("LoadMore() error: %v", err)
	}
	if g.Page != 2 || len(g.Cards) != 4 || g.HasMore {
		t.Errorf("todo after LoadMore: page=%d cards=%d hasMore=%v", g.Page, len(g.Cards), g.HasMore)
	}
	if n := store.totalFetches(); n != 1 {
		t.Errorf("fetches = %d, want 1", n)
	}

	after := s.Snapshot()
	for i, grp := range after.Groups {
		if grp.Definition.Key == "LIST_STAGE:todo" {
			continue
		}
		if grp.Page != before.Groups[i].Page || len(grp.Cards) != len(before.Groups[i].Cards) {
			t.Errorf("group %s changed: page %d -> %d", grp.Definition.Key, before.Groups[i].Page, grp.Page)
		}
	}
}

func TestSession_LoadMoreConcurrentCallsAreSerialized(t *testing.T) {
	store := boardFixture()
	s := NewSession(newComposer(store), 1)
	if _, err := s.Resolve(context.Background(), stageView()); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.LoadMore(context.Background(), "LIST_STAGE:todo"); err != nil {
				t.Errorf("LoadMore() error: %v", err)
			}
		}()
	}
	wg.Wait()

	for _, g := range s.Snapshot().Groups {
		if g.Definition.Key != "LIST_STAGE:todo" {
			continue
		}
		seen := map[string]bool{}
		for _, c := range g.Cards {
			if seen[c.Card.ID] {
				t.Errorf("card %s loaded twice", c.Card.ID)
			}
			seen[c.Card.ID] = true
		}
		if g.Page != 4 || len(g.Cards) != 4 {
			t.Errorf("page=%d cards=%d, want 4/4", g.Page, len(g.Cards))
		}
	}
}

func TestSession_ApplyStageMoveRefetchesPriorAndNewOnly(t *testing.T) {
	store := boardFixture()
	s := NewSession(newComposer(store), 10)
	if _, err := s.Resolve(context.Background(), stageView()); err != nil {
		t.Fatal(err)
	}
	store.resetFetches()

	store.moveCard("c0", strPtr("doing"))
	impact, err := s.Apply(context.Background(), models.CardEvent{
		CardID: "c0", ListID: "l1", Kind: models.CardMovedStage,
		BeforeStageID: strPtr("todo"), AfterStageID: strPtr("doing"),
	})
	if err != nil {
		t.Fatalf("Apply() error: %v", err)
	}
	if got := fmt.Sprint(impact.Keys); got != "[LIST_STAGE:todo LIST_STAGE:doing]" || impact.Repartition {
		t.Errorf("impact = %+v", impact)
	}
	for key, want := range map[string]int{
		"LIST_STAGE:todo": 1, "LIST_STAGE:doing": 1, "LIST_STAGE:done": 0, "LIST_STAGE:none": 0,
	} {
		if got := store.fetchCount(key); got != want {
			t.Errorf("fetches of %s = %d, want %d", key, got, want)
		}
	}

	for _, g := range s.Snapshot().Groups {
		if g.Definition.Key == "LIST_STAGE:doing" && len(g.Cards) != 3 {
			t.Errorf("doing has %d cards after the move, want 3", len(g.Cards))
		}
	}
}

func TestSession_ApplyDropsEmptiedValueGroup(t *testing.T) {
	store := boardFixture()
	c := newComposer(store)
	view := models.View{ID: "v2", ListID: "l1", GroupBy: models.GroupBy{Type: models.GroupField, FieldID: "labels"}}
	s := NewSession(c, 10)
	if _, err := s.Resolve(context.Background(), view); err != nil {
		t.Fatal(err)
	}

	// c5 is the only green card.
	store.setValue("c5", "labels", "red")
	impact, err := s.Apply(context.Background(), models.CardEvent{
		CardID: "c5", ListID: "l1", Kind: models.CardUpdated, FieldID: "labels",
		BeforeFieldValue: "green", AfterFieldValue: "red",
	})
	if err != nil {
		t.Fatalf("Apply() error: %v", err)
	}
	if !impact.Repartition {
		t.Errorf("impact = %+v, want a repartition", impact)
	}

	fresh, err := c.Resolve(context.Background(), view, 10)
	if err != nil {
		t.Fatal(err)
	}
	var want, got []string
	for _, g := range fresh.Groups {
		want = append(want, g.Definition.Key)
	}
	for _, g := range s.Snapshot().Groups {
		got = append(got, g.Definition.Key)
	}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("session groups = %v, want %v", got, want)
	}
	if fmt.Sprint(got) != "[FIELD:labels:red FIELD:labels:blue FIELD:labels:none]" {
		t.Errorf("groups = %v", got)
	}
}

func TestSession_ApplyKeepsValueGroupStillInUse(t *testing.T) {
	store := boardFixture()
	view := models.View{ID: "v2", ListID: "l1", GroupBy: models.GroupBy{Type: models.GroupField, FieldID: "labels"}}
	s := NewSession(newComposer(store), 10)
	if _, err := s.Resolve(context.Background(), view); err != nil {
		t.Fatal(err)
	}

	// c3 leaves blue, which c2 and c8 still hold.
	store.setValue("c3", "labels", "red")
	impact, err := s.Apply(context.Background(), models.CardEvent{
		CardID: "c3", ListID: "l1", Kind: models.CardUpdated, FieldID: "labels",
		BeforeFieldValue: "blue", AfterFieldValue: "red",
	})
	if err != nil {
		t.Fatal(err)
	}
	if impact.Repartition || fmt.Sprint(impact.Keys) != "[FIELD:labels:red FIELD:labels:blue]" {
		t.Errorf("impact = %+v", impact)
	}
}

func TestSession_ApplyInPlaceUpdateRefetchesOneGroup(t *testing.T) {
	store := boardFixture()
	s := NewSession(newComposer(store), 10)
	if _, err := s.Resolve(context.Background(), stageView()); err != nil {
		t.Fatal(err)
	}
	store.resetFetches()

	impact, err := s.Apply(context.Background(), models.CardEvent{CardID: "c6", ListID: "l1", Kind: models.CardUpdated, FieldID: "points"})
	if err != nil {
		t.Fatal(err)
	}
	if len(impact.Keys) != 1 || impact.Keys[0] != "LIST_STAGE:done" {
		t.Errorf("keys = %v, want [LIST_STAGE:done]", impact.Keys)
	}
	if n := store.totalFetches(); n != 1 {
		t.Errorf("fetches = %d, want 1", n)
	}
}

func TestSession_ApplyOtherListIgnored(t *testing.T) {
	store := boardFixture()
	s := NewSession(newComposer(store), 10)
	if _, err := s.Resolve(context.Background(), stageView()); err != nil {
		t.Fatal(err)
	}
	store.resetFetches()

	impact, err := s.Apply(context.Background(), models.CardEvent{CardID: "x", ListID: "other", Kind: models.CardCreated})
	if err != nil || len(impact.Keys) != 0 || store.totalFetches() != 0 {
		t.Errorf("impact = %+v err = %v fetches = %d", impact, err, store.totalFetches())
	}
}

func TestSession_SupersededResolutionIsDiscarded(t *testing.T) {
	store := boardFixture()
	store.lists["slow"] = models.List{ID: "slow", WorkspaceID: "w1"}
	store.block["slow"] = true
	s := NewSession(newComposer(store), 10)

	done := make(chan error, 1)
	go func() {
		_, err := s.Resolve(context.Background(), models.View{ID: "slow-view", ListID: "slow"})
		done <- err
	}()
	<-store.started

	res, err := s.Resolve(context.Background(), stageView())
	if err != nil {
		t.Fatalf("second Resolve() error: %v", err)
	}
	if err := <-done; !errors.Is(err, ErrSuperseded) {
		t.Errorf("first Resolve() error = %v, want ErrSuperseded", err)
	}

	snap := s.Snapshot()
	if snap.ListID != "l1" || snap.ViewID != "v1" || len(snap.Groups) != len(res.Groups) {
		t.Errorf("snapshot belongs to %s/%s, want l1/v1", snap.ListID, snap.ViewID)
	}
}

func TestSession_UsesRelativeDates(t *testing.T) {
	s := NewSession(newComposer(boardFixture()), 10)
	view := stageView()
	view.Filters.Quick = &models.FilterNode{Field: "createdAt", Operator: models.OpGte, Value: ":startOfWeek"}
	if _, err := s.Resolve(context.Background(), view); err != nil {
		t.Fatal(err)
	}
	if !s.UsesRelativeDates() {
		t.Error("UsesRelativeDates() = false, want true")
	}
}

func TestAffected(t *testing.T) {
	store := boardFixture()
	c := newComposer(store)
	labels := models.View{ListID: "l1", GroupBy: models.GroupBy{Type: models.GroupField, FieldID: "labels"}}
	defs, _, err := c.Groups(context.Background(), labels)
	if err != nil {
		t.Fatal(err)
	}
	current := store.rows[0]

	tests := []struct {
		name        string
		ev          models.CardEvent
		current     *models.ListCard
		keys        string
		repartition bool
	}{
		{
			name: "grouping value changed", current: &current,
			ev:   models.CardEvent{Kind: models.CardUpdated, FieldID: "labels", BeforeFieldValue: "red", AfterFieldValue: "green"},
			keys: "[FIELD:labels:red FIELD:labels:green]",
		},
		{
			name: "value cleared", current: &current,
			ev:   models.CardEvent{Kind: models.CardUpdated, FieldID: "labels", BeforeFieldValue: "blue", AfterFieldValue: nil},
			keys: "[FIELD:labels:blue FIELD:labels:none]",
		},
		{
			name: "new value", current: &current,
			ev:          models.CardEvent{Kind: models.CardUpdated, FieldID: "labels", BeforeFieldValue: "red", AfterFieldValue: "purple"},
			keys:        "[FIELD:labels:red]",
			repartition: true,
		},
		{
			name: "other field", current: &current,
			ev:   models.CardEvent{Kind: models.CardUpdated, FieldID: "points"},
			keys: "[FIELD:labels:red]",
		},
		{
			name: "created",
			ev:   models.CardEvent{Kind: models.CardCreated, FieldID: "labels", AfterFieldValue: []any{"green", "blue"}},
			keys: "[FIELD:labels:blue]",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			im := Affected(defs, labels.GroupBy, tt.ev, tt.current)
			if got := fmt.Sprint(im.Keys); got != tt.keys || im.Repartition != tt.repartition {
				t.Errorf("Affected() = %s repartition=%v, want %s repartition=%v", got, im.Repartition, tt.keys, tt.repartition)
			}
		})
	}

	all := []grouping.Definition{{Key: "ALL", Type: models.GroupAll}}
	if im := Affected(all, models.GroupBy{}, models.CardEvent{Kind: models.CardDeleted}, nil); fmt.Sprint(im.Keys) != "[ALL]" {
		t.Errorf("ALL grouping keys = %v", im.Keys)
	}

	stages, _, _ := c.Groups(context.Background(), stageView())
	im := Affected(stages, models.GroupBy{Type: models.GroupStage}, models.CardEvent{Kind: models.CardMovedStage, BeforeStageID: strPtr("todo"), AfterStageID: strPtr("new-stage")}, nil)
	if !im.Repartition {
		t.Error("moving into a stage with no group should repartition")
	}
}
