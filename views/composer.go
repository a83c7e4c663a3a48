// Package views resolves a saved or ad hoc view of a list into groups and
// their first pages, and keeps live per-client sessions of those groups.
package views

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/CrowderSoup/workboard/cards"
	"github.com/CrowderSoup/workboard/catalog"
	"github.com/CrowderSoup/workboard/filters"
	"github.com/CrowderSoup/workboard/grouping"
	"github.com/CrowderSoup/workboard/models"
)

// DefaultPageSize is used when a resolution does not ask for a page size.
const DefaultPageSize = 25

// ErrUnknownGroup is returned when a group key is not part of the view's
// current partition.
var ErrUnknownGroup = errors.New("unknown group")

// Store is the persistence the composer reads from.
type Store interface {
	cards.Querier
	GetList(ctx context.Context, id string) (models.List, error)
	QueryStagesByList(ctx context.Context, listID string) ([]models.Stage, error)
	QueryDistinctFieldValues(ctx context.Context, listID string, f models.Field) (grouping.Distinct, error)
	// FindListCard returns a card through its membership in a list. found is
	// false when the card is not (or no longer) in the list.
	FindListCard(ctx context.Context, listID, cardID string) (lc models.ListCard, found bool, err error)
}

// FieldLister lists the fields visible from a scope.
type FieldLister interface {
	ListFields(ctx context.Context, scope catalog.Scope) ([]models.Field, error)
}

type State string

const (
	StateIdle    State = "idle"
	StateLoading State = "loading"
	StateLoaded  State = "loaded"
	StateError   State = "error"
)

// GroupResult is a group with the cards loaded for it so far.
type GroupResult struct {
	Definition grouping.Definition `json:"definition"`
	State      State               `json:"state"`
	Cards      []models.ListCard   `json:"cards"`
	Page       int                 `json:"page"`
	PageSize   int                 `json:"pageSize"`
	HasMore    bool                `json:"hasMore"`
	Error      string              `json:"error,omitempty"`
}

// Resolution is a resolved view.
type Resolution struct {
	ViewID   string            `json:"viewId,omitempty"`
	ListID   string            `json:"listId"`
	GroupBy  models.GroupBy    `json:"groupBy"`
	Version  string            `json:"version"`
	Groups   []GroupResult     `json:"groups"`
	Warnings []filters.Warning `json:"warnings,omitempty"`
}

type Config struct {
	// Location resolves relative dates and date-only values.
	Location *time.Location
	PageSize int
	Now      func() time.Time
}

// Composer turns views into groups and pages. It holds no card data
// between calls.
type Composer struct {
	store    Store
	fields   FieldLister
	fetcher  *cards.Fetcher
	loc      *time.Location
	pageSize int
	now      func() time.Time
}

func NewComposer(store Store, fields FieldLister, cfg Config) *Composer {
	c := &Composer{
		store:    store,
		fields:   fields,
		fetcher:  cards.NewFetcher(store),
		loc:      cfg.Location,
		pageSize: cfg.PageSize,
		now:      cfg.Now,
	}
	if c.loc == nil {
		c.loc = time.UTC
	}
	if c.pageSize <= 0 {
		c.pageSize = DefaultPageSize
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

// plan is everything derived from a view before any card is fetched.
type plan struct {
	view     models.View
	list     models.List
	stages   []models.Stage
	terminal []string
	fields   map[string]models.Field
	filter   filters.Predicate
	groupBy  models.GroupBy
	defs     []grouping.Definition
	version  string
	warnings []filters.Warning
}

func (c *Composer) prepare(ctx context.Context, view models.View) (*plan, error) {
	list, err := c.store.GetList(ctx, view.ListID)
	if err != nil {
		return nil, fmt.Errorf("failed to load list %s: %w", view.ListID, err)
	}
	stages, err := c.store.QueryStagesByList(ctx, list.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load stages of list %s: %w", list.ID, err)
	}
	fields, err := c.fields.ListFields(ctx, catalog.Scope{ListID: list.ID})
	if err != nil {
		return nil, err
	}

	p := &plan{
		view:     view,
		list:     list,
		stages:   stages,
		terminal: models.TerminalStageIDs(stages),
		fields:   catalog.Index(fields),
	}

	// Sort errors surface before any group is fetched.
	if _, err := cards.Comparator(view.Sort, p.fields); err != nil {
		return nil, err
	}

	filter, warnings, err := filters.CompileFilters(view.Filters, filters.Env{
		Fields:   p.fields,
		Now:      c.now(),
		Location: c.loc,
	})
	if err != nil {
		return nil, err
	}
	p.filter = filter
	p.warnings = warnings

	if err := c.partition(ctx, p, view.GroupBy.Normalized()); err != nil {
		return nil, err
	}
	for _, w := range p.warnings {
		log.Printf("View %s on list %s: %s", view.ID, list.ID, w.Message)
	}
	return p, nil
}

// partition computes the groups of p. FIELD grouping falls back to ALL when
// the field is unknown or cannot be grouped by.
func (c *Composer) partition(ctx context.Context, p *plan, by models.GroupBy) error {
	in := grouping.Input{ListID: p.list.ID, Stages: p.stages}

	if by.Type == models.GroupField {
		f, ok := p.fields[by.FieldID]
		switch {
		case !ok:
			err := &filters.UnknownFieldReferenceError{Field: by.FieldID}
			p.warnings = append(p.warnings, filters.Warning{Field: by.FieldID, Message: err.Error() + ", grouping by ALL", Err: err})
			by = models.GroupBy{Type: models.GroupAll}
		case !f.Type.Discrete():
			err := &grouping.UnsupportedGroupFieldError{FieldID: f.ID, FieldType: f.Type}
			p.warnings = append(p.warnings, filters.Warning{Field: f.ID, Message: err.Error() + ", grouping by ALL", Err: err})
			by = models.GroupBy{Type: models.GroupAll}
		default:
			distinct, err := c.store.QueryDistinctFieldValues(ctx, p.list.ID, f)
			if err != nil {
				return fmt.Errorf("failed to load values of field %s: %w", f.ID, err)
			}
			in.Field = &f
			in.Values = distinct.Values
			in.HasEmpty = distinct.HasEmpty
		}
	}

	defs, err := grouping.Partition(in, by)
	if err != nil {
		return err
	}
	p.groupBy = by
	p.defs = defs
	p.version = grouping.Fingerprint(in, by)
	return nil
}

// partitionChanged reports whether the list's current partition differs
// from the one p was planned with.
func (c *Composer) partitionChanged(ctx context.Context, p *plan) (bool, error) {
	next := *p
	if err := c.partition(ctx, &next, p.groupBy); err != nil {
		return false, err
	}
	return next.version != p.version, nil
}

func (c *Composer) fetch(ctx context.Context, p *plan, def grouping.Definition, page, pageSize int) (cards.Page, error) {
	return c.fetcher.Fetch(ctx, cards.Request{
		ListID:         p.list.ID,
		GroupKey:       def.Key,
		Group:          def.Predicate,
		Filter:         p.filter,
		Display:        p.view.Display,
		TerminalStages: p.terminal,
		Sort:           p.view.Sort,
		Fields:         p.fields,
		Page:           page,
		PageSize:       pageSize,
	})
}

// Resolve partitions the view's list and fetches the first page of every
// group concurrently. A failing group is returned in StateError and does
// not affect its siblings. pageSize 0 means the configured default.
func (c *Composer) Resolve(ctx context.Context, view models.View, pageSize int) (Resolution, error) {
	if pageSize == 0 {
		pageSize = c.pageSize
	}
	if pageSize < 0 || pageSize > cards.MaxPageSize {
		return Resolution{}, &cards.InvalidPaginationError{Page: 1, PageSize: pageSize}
	}

	p, err := c.prepare(ctx, view)
	if err != nil {
		return Resolution{}, err
	}

	res := p.resolution()
	var wg sync.WaitGroup
	for i := range res.Groups {
		wg.Add(1)
		go func(g *GroupResult) {
			defer wg.Done()
			page, err := c.fetch(ctx, p, g.Definition, 1, pageSize)
			g.fill(page, pageSize, err)
		}(&res.Groups[i])
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return Resolution{}, err
	}
	return res, nil
}

// FetchGroup returns one page of one group of the view. pageSize 0 means
// the configured default.
func (c *Composer) FetchGroup(ctx context.Context, view models.View, key string, page, pageSize int) (grouping.Definition, cards.Page, error) {
	if pageSize == 0 {
		pageSize = c.pageSize
	}
	p, err := c.prepare(ctx, view)
	if err != nil {
		return grouping.Definition{}, cards.Page{}, err
	}
	def, ok := grouping.Find(p.defs, key)
	if !ok {
		return grouping.Definition{}, cards.Page{}, fmt.Errorf("%w: %s", ErrUnknownGroup, key)
	}
	result, err := c.fetch(ctx, p, def, page, pageSize)
	if err != nil {
		return def, cards.Page{}, err
	}
	return def, result, nil
}

// Groups returns the current partition of the view without fetching cards.
func (c *Composer) Groups(ctx context.Context, view models.View) ([]grouping.Definition, []filters.Warning, error) {
	p, err := c.prepare(ctx, view)
	if err != nil {
		return nil, nil, err
	}
	return p.defs, p.warnings, nil
}

func (p *plan) resolution() Resolution {
	res := Resolution{
		ViewID:   p.view.ID,
		ListID:   p.list.ID,
		GroupBy:  p.groupBy,
		Version:  p.version,
		Groups:   make([]GroupResult, len(p.defs)),
		Warnings: p.warnings,
	}
	for i, d := range p.defs {
		res.Groups[i] = GroupResult{Definition: d, State: StateLoading, Cards: []models.ListCard{}}
	}
	return res
}

func (g *GroupResult) fill(page cards.Page, pageSize int, err error) {
	g.PageSize = pageSize
	if err != nil {
		log.Printf("Failed to fetch group %s: %v", g.Definition.Key, err)
		g.State = StateError
		g.Error = err.Error()
		return
	}
	g.State = StateLoaded
	g.Error = ""
	g.Cards = page.Cards
	g.Page = page.Page
	g.HasMore = page.HasMore
}
