package cards

import (
	"sort"

	"github.com/CrowderSoup/workboard/models"
)

// Apply evaluates q over rows in memory: filter, sort, then slice. Stores
// that cannot push a predicate down use it after loading a list's cards.
func Apply(rows []models.ListCard, q Query) []models.ListCard {
	matched := make([]models.ListCard, 0, len(rows))
	for _, r := range rows {
		if q.Match == nil || q.Match(r) {
			matched = append(matched, r)
		}
	}

	if q.Less != nil {
		sort.SliceStable(matched, func(i, j int) bool { return q.Less(matched[i], matched[j]) })
	}

	if q.Offset < 0 || q.Offset >= len(matched) {
		return []models.ListCard{}
	}
	end := len(matched)
	if q.Limit > 0 && q.Limit < end-q.Offset {
		end = q.Offset + q.Limit
	}
	return matched[q.Offset:end]
}
