// Package cards fetches sorted, offset-paginated slices of a list's cards
// for one group at a time.
package cards

import (
	"context"
	"fmt"
	"math"

	"github.com/CrowderSoup/workboard/filters"
	"github.com/CrowderSoup/workboard/models"
)

// MaxPageSize is the largest page a caller may ask for.
const MaxPageSize = 200

// InvalidPaginationError is returned for a page or page size out of range.
// No default is ever substituted.
type InvalidPaginationError struct {
	Page     int
	PageSize int
}

func (e *InvalidPaginationError) Error() string {
	return fmt.Sprintf("invalid pagination: page=%d pageSize=%d (page >= 1, 1 <= pageSize <= %d)", e.Page, e.PageSize, MaxPageSize)
}

// Query is what the store is asked to execute: the cards of ListID matching
// Match, ordered by Less, skipping Offset and returning at most Limit.
type Query struct {
	ListID string
	// Group is the key of the group being fetched, for logging and tracing.
	Group  string
	Match  filters.Predicate
	Less   func(a, b models.ListCard) bool
	Offset int
	Limit  int
}

// Querier runs card queries against the persistent store.
type Querier interface {
	QueryCards(ctx context.Context, q Query) ([]models.ListCard, error)
}

// Request asks for one page of one group.
type Request struct {
	ListID   string
	GroupKey string

	// Group selects the group's members; nil means every card.
	Group filters.Predicate
	// Filter is the compiled view filter; nil means no filter.
	Filter filters.Predicate

	Display        models.DisplayOptions
	TerminalStages []string
	Sort           models.SortOption
	// Fields resolves custom fields used as sort keys.
	Fields map[string]models.Field

	Page     int
	PageSize int
}

// Page is one page of a group.
type Page struct {
	Cards    []models.ListCard `json:"cards"`
	Page     int               `json:"page"`
	PageSize int               `json:"pageSize"`
	HasMore  bool              `json:"hasMore"`
}

// Fetcher runs paginated group queries.
type Fetcher struct {
	store Querier
}

func NewFetcher(store Querier) *Fetcher {
	return &Fetcher{store: store}
}

// Fetch returns page req.Page of the cards matching the display options,
// the group and the view filter, in that order.
//
// Pagination is offset based and each group paginates on its own. Page N is
// stable only while no card matching the same predicates is inserted or
// removed with a sort key before the last card of page N-1; otherwise cards
// can be skipped or repeated across pages.
func (f *Fetcher) Fetch(ctx context.Context, req Request) (Page, error) {
	if req.Page <= 0 || req.PageSize <= 0 || req.PageSize > MaxPageSize || req.Page > math.MaxInt/req.PageSize {
		return Page{}, &InvalidPaginationError{Page: req.Page, PageSize: req.PageSize}
	}

	less, err := Comparator(req.Sort, req.Fields)
	if err != nil {
		return Page{}, err
	}

	match := filters.And(
		displayPredicate(req.Display, req.TerminalStages),
		req.Group,
		req.Filter,
	)

	rows, err := f.store.QueryCards(ctx, Query{
		ListID: req.ListID,
		Group:  req.GroupKey,
		Match:  match,
		Less:   less,
		Offset: (req.Page - 1) * req.PageSize,
		Limit:  req.PageSize + 1,
	})
	if err != nil {
		return Page{}, fmt.Errorf("failed to fetch cards for group %s: %w", req.GroupKey, err)
	}

	page := Page{Page: req.Page, PageSize: req.PageSize}
	if len(rows) > req.PageSize {
		page.HasMore = true
		rows = rows[:req.PageSize]
	}
	page.Cards = rows
	if page.Cards == nil {
		page.Cards = []models.ListCard{}
	}
	return page, nil
}

// displayPredicate turns hideCompleted and hideChildren into predicate
// terms. It returns nil when neither is set.
func displayPredicate(d models.DisplayOptions, terminalStages []string) filters.Predicate {
	var terms []filters.Predicate
	if d.HideCompleted && len(terminalStages) > 0 {
		terminal := make(map[string]bool, len(terminalStages))
		for _, id := range terminalStages {
			terminal[id] = true
		}
		terms = append(terms, func(lc models.ListCard) bool {
			return !terminal[lc.StageID()]
		})
	}
	if d.HideChildren {
		terms = append(terms, func(lc models.ListCard) bool {
			return lc.Card.ParentID == nil || *lc.Card.ParentID == ""
		})
	}
	if len(terms) == 0 {
		return nil
	}
	return filters.And(terms...)
}
