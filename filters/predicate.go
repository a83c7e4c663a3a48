package filters

import "github.com/CrowderSoup/workboard/models"

// Predicate decides whether a card, seen through one list membership,
// matches.
type Predicate func(models.ListCard) bool

// True matches every card.
func True(models.ListCard) bool { return true }

// False matches no card.
func False(models.ListCard) bool { return false }

// And matches when every predicate matches. Nil predicates are skipped and
// no predicates at all match everything.
func And(ps ...Predicate) Predicate {
	ps = compact(ps)
	switch len(ps) {
	case 0:
		return True
	case 1:
		return ps[0]
	}
	return func(lc models.ListCard) bool {
		for _, p := range ps {
			if !p(lc) {
				return false
			}
		}
		return true
	}
}

// Or matches when any predicate matches. No predicates match nothing.
func Or(ps ...Predicate) Predicate {
	ps = compact(ps)
	switch len(ps) {
	case 0:
		return False
	case 1:
		return ps[0]
	}
	return func(lc models.ListCard) bool {
		for _, p := range ps {
			if p(lc) {
				return true
			}
		}
		return false
	}
}

// Not negates p.
func Not(p Predicate) Predicate {
	if p == nil {
		return False
	}
	return func(lc models.ListCard) bool { return !p(lc) }
}

func compact(ps []Predicate) []Predicate {
	out := ps[:0:0]
	for _, p := range ps {
		if p != nil {
			out = append(out, p)
		}
	}
	return out
}
