package views

import (
	"context"
	"errors"
	"log"
	"sync"

	"github.com/CrowderSoup/workboard/filters"
	"github.com/CrowderSoup/workboard/grouping"
	"github.com/CrowderSoup/workboard/models"
)

// ErrSuperseded is returned by a resolution that a newer one replaced
// before it finished.
var ErrSuperseded = errors.New("resolution superseded")

// ErrNotResolved is returned when a session is used before Resolve.
var ErrNotResolved = errors.New("session has no resolved view")

var transitions = map[State][]State{
	StateIdle:    {StateLoading},
	StateLoading: {StateLoaded, StateError},
	StateLoaded:  {StateLoading},
	StateError:   {StateLoading},
}

func canTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

type group struct {
	// fetching serializes pagination of this group.
	fetching sync.Mutex

	// The fields below are guarded by Session.mu.
	def     grouping.Definition
	state   State
	cards   []models.ListCard
	page    int
	hasMore bool
	err     error
}

// Session is the live state of one view for one client: the partition and
// the pages loaded so far for each group.
type Session struct {
	composer *Composer
	pageSize int

	mu     sync.Mutex
	gen    uint64
	ctx    context.Context
	cancel context.CancelFunc
	plan   *plan
	groups []*group
	byKey  map[string]*group
}

func NewSession(c *Composer, pageSize int) *Session {
	if pageSize <= 0 {
		pageSize = c.pageSize
	}
	return &Session{composer: c, pageSize: pageSize, ctx: context.Background()}
}

// Resolve replaces the session's view. Any resolution still running is
// cancelled and whatever it fetches afterwards is dropped.
func (s *Session) Resolve(ctx context.Context, view models.View) (Resolution, error) {
	s.mu.Lock()
	s.gen++
	gen := s.gen
	if s.cancel != nil {
		s.cancel()
	}
	ctx, cancel := context.WithCancel(ctx)
	s.ctx, s.cancel = ctx, cancel
	s.mu.Unlock()

	p, err := s.composer.prepare(ctx, view)
	if err != nil {
		if s.stale(gen) {
			return Resolution{}, ErrSuperseded
		}
		return Resolution{}, err
	}

	groups := make([]*group, len(p.defs))
	byKey := make(map[string]*group, len(p.defs))
	for i, d := range p.defs {
		g := &group{def: d, state: StateIdle}
		groups[i] = g
		byKey[d.Key] = g
	}

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return Resolution{}, ErrSuperseded
	}
	s.plan, s.groups, s.byKey = p, groups, byKey
	s.mu.Unlock()

	var wg sync.WaitGroup
	for _, g := range groups {
		wg.Add(1)
		go func(g *group) {
			defer wg.Done()
			s.load(ctx, gen, p, g, 1, true)
		}(g)
	}
	wg.Wait()

	if s.stale(gen) {
		return Resolution{}, ErrSuperseded
	}
	return s.Snapshot(), nil
}

// Refresh resolves the current view again.
func (s *Session) Refresh(ctx context.Context) (Resolution, error) {
	s.mu.Lock()
	p := s.plan
	s.mu.Unlock()
	if p == nil {
		return Resolution{}, ErrNotResolved
	}
	return s.Resolve(ctx, p.view)
}

// LoadMore fetches the next page of one group and appends it. Calls for
// the same group run one after the other; other groups are not touched.
func (s *Session) LoadMore(ctx context.Context, key string) (GroupResult, error) {
	s.mu.Lock()
	gen, p, g, resCtx := s.gen, s.plan, s.byKey[key], s.ctx
	s.mu.Unlock()
	if p == nil {
		return GroupResult{}, ErrNotResolved
	}
	if g == nil {
		return GroupResult{}, ErrUnknownGroup
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(resCtx, cancel)
	defer stop()

	g.fetching.Lock()
	defer g.fetching.Unlock()

	s.mu.Lock()
	next, more := g.page+1, g.hasMore || g.state == StateError
	s.mu.Unlock()
	if !more {
		return s.group(g), nil
	}
	if next <= 1 {
		// The first page failed or never loaded.
		s.load(ctx, gen, p, g, 1, true)
	} else {
		s.load(ctx, gen, p, g, next, false)
	}
	if s.stale(gen) {
		return GroupResult{}, ErrSuperseded
	}
	res := s.group(g)
	if res.State == StateError {
		return res, errors.New(res.Error)
	}
	return res, nil
}

// Apply invalidates the groups a card event touches and refetches their
// first pages. When the event adds or removes a group the whole view is
// resolved again. Events for other lists are ignored.
func (s *Session) Apply(ctx context.Context, ev models.CardEvent) (Impact, error) {
	s.mu.Lock()
	gen, p, resCtx := s.gen, s.plan, s.ctx
	var cached *models.ListCard
	if p != nil && p.list.ID == ev.ListID {
		cached = s.cachedCard(ev.CardID)
	}
	s.mu.Unlock()
	if p == nil || p.list.ID != ev.ListID {
		return Impact{Keys: []string{}}, nil
	}

	lc, found, err := s.composer.store.FindListCard(ctx, ev.ListID, ev.CardID)
	if err != nil {
		return Impact{}, err
	}
	current := cached
	if found {
		current = &lc
	}
	impact := Affected(p.defs, p.groupBy, ev, current)

	// The card may have left a group the event does not name.
	if found && cached != nil {
		if prior, ok := grouping.Locate(p.defs, *cached); ok && !contains(impact.Keys, prior.Key) {
			impact.Keys = orderKeys(p.defs, append(impact.Keys, prior.Key))
		}
	}

	// A value group vanishes when its last card loses the value.
	if !impact.Repartition && p.groupBy.Type == models.GroupField &&
		(ev.FieldID == p.groupBy.FieldID || ev.Kind == models.CardDeleted) {
		changed, err := s.composer.partitionChanged(ctx, p)
		if err != nil {
			return Impact{}, err
		}
		impact.Repartition = changed
	}

	if impact.Repartition {
		_, err := s.Resolve(ctx, p.view)
		return impact, err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(resCtx, cancel)
	defer stop()

	var wg sync.WaitGroup
	for _, key := range impact.Keys {
		s.mu.Lock()
		g := s.byKey[key]
		s.mu.Unlock()
		if g == nil {
			continue
		}
		wg.Add(1)
		go func(g *group) {
			defer wg.Done()
			g.fetching.Lock()
			defer g.fetching.Unlock()
			s.load(ctx, gen, p, g, 1, true)
		}(g)
	}
	wg.Wait()

	if s.stale(gen) {
		return impact, ErrSuperseded
	}
	return impact, nil
}

// UsesRelativeDates reports whether the session's filters depend on the
// current date.
func (s *Session) UsesRelativeDates() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.plan != nil && filters.UsesRelativeDates(s.plan.view.Filters)
}

// View returns the view the session last resolved.
func (s *Session) View() (models.View, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.plan == nil {
		return models.View{}, false
	}
	return s.plan.view, true
}

// Close cancels any work still running for the session.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	if s.cancel != nil {
		s.cancel()
	}
}

// Snapshot returns the state of every group.
func (s *Session) Snapshot() Resolution {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.plan == nil {
		return Resolution{Groups: []GroupResult{}}
	}
	res := Resolution{
		ViewID:   s.plan.view.ID,
		ListID:   s.plan.list.ID,
		GroupBy:  s.plan.groupBy,
		Version:  s.plan.version,
		Groups:   make([]GroupResult, 0, len(s.groups)),
		Warnings: s.plan.warnings,
	}
	for _, g := range s.groups {
		res.Groups = append(res.Groups, s.groupLocked(g))
	}
	return res
}

func (s *Session) group(g *group) GroupResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.groupLocked(g)
}

func (s *Session) groupLocked(g *group) GroupResult {
	r := GroupResult{
		Definition: g.def,
		State:      g.state,
		Cards:      append([]models.ListCard{}, g.cards...),
		Page:       g.page,
		PageSize:   s.pageSize,
		HasMore:    g.hasMore,
	}
	if g.err != nil {
		r.Error = g.err.Error()
	}
	return r
}

// load fetches one page of g and commits it unless gen was superseded.
// reset replaces the loaded cards instead of appending. The caller holds
// g.fetching or owns g exclusively.
func (s *Session) load(ctx context.Context, gen uint64, p *plan, g *group, page int, reset bool) {
	if !s.transition(gen, g, StateLoading) {
		return
	}
	result, err := s.composer.fetch(ctx, p, g.def, page, s.pageSize)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return
	}
	if err != nil {
		log.Printf("Failed to load page %d of group %s: %v", page, g.def.Key, err)
		s.setState(g, StateError)
		g.err = err
		return
	}
	s.setState(g, StateLoaded)
	g.err = nil
	if reset {
		g.cards = nil
	}
	g.cards = append(g.cards, result.Cards...)
	g.page = result.Page
	g.hasMore = result.HasMore
}

func (s *Session) transition(gen uint64, g *group, to State) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return false
	}
	s.setState(g, to)
	return true
}

func (s *Session) setState(g *group, to State) {
	if !canTransition(g.state, to) {
		log.Printf("Ignoring transition of group %s from %s to %s", g.def.Key, g.state, to)
		return
	}
	g.state = to
}

func (s *Session) stale(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen != gen
}

func (s *Session) cachedCard(cardID string) *models.ListCard {
	for _, g := range s.groups {
		for i := range g.cards {
			if g.cards[i].Card.ID == cardID {
				lc := g.cards[i]
				return &lc
			}
		}
	}
	return nil
}

func contains(keys []string, key string) bool {
	for _, k := range keys {
		if k == key {
			return true
		}
	}
	return false
}

func orderKeys(defs []grouping.Definition, keys []string) []string {
	out := make([]string, 0, len(keys))
	for _, d := range defs {
		if contains(keys, d.Key) {
			out = append(out, d.Key)
		}
	}
	return out
}
