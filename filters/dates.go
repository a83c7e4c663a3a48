package filters

import (
	"strings"
	"time"

	"github.com/jinzhu/now"

	"github.com/CrowderSoup/workboard/models"
)

// relativeDates maps tokens such as ":startOfDay" to their resolution
// relative to an evaluation time. Weeks start on Monday.
var relativeDates = map[string]func(cfg *now.Config, at time.Time) time.Time{
	":now":              func(_ *now.Config, at time.Time) time.Time { return at },
	":startOfDay":       func(c *now.Config, at time.Time) time.Time { return c.With(at).BeginningOfDay() },
	":endOfDay":         func(c *now.Config, at time.Time) time.Time { return c.With(at).EndOfDay() },
	":startOfYesterday": func(c *now.Config, at time.Time) time.Time { return c.With(at.AddDate(0, 0, -1)).BeginningOfDay() },
	":endOfYesterday":   func(c *now.Config, at time.Time) time.Time { return c.With(at.AddDate(0, 0, -1)).EndOfDay() },
	":startOfTomorrow":  func(c *now.Config, at time.Time) time.Time { return c.With(at.AddDate(0, 0, 1)).BeginningOfDay() },
	":endOfTomorrow":    func(c *now.Config, at time.Time) time.Time { return c.With(at.AddDate(0, 0, 1)).EndOfDay() },
	":startOfWeek":      func(c *now.Config, at time.Time) time.Time { return c.With(at).BeginningOfWeek() },
	":endOfWeek":        func(c *now.Config, at time.Time) time.Time { return c.With(at).EndOfWeek() },
	":startOfLastWeek":  func(c *now.Config, at time.Time) time.Time { return c.With(at.AddDate(0, 0, -7)).BeginningOfWeek() },
	":endOfLastWeek":    func(c *now.Config, at time.Time) time.Time { return c.With(at.AddDate(0, 0, -7)).EndOfWeek() },
	":startOfNextWeek":  func(c *now.Config, at time.Time) time.Time { return c.With(at.AddDate(0, 0, 7)).BeginningOfWeek() },
	":endOfNextWeek":    func(c *now.Config, at time.Time) time.Time { return c.With(at.AddDate(0, 0, 7)).EndOfWeek() },
	":startOfMonth":     func(c *now.Config, at time.Time) time.Time { return c.With(at).BeginningOfMonth() },
	":endOfMonth":       func(c *now.Config, at time.Time) time.Time { return c.With(at).EndOfMonth() },
	":startOfLastMonth": func(c *now.Config, at time.Time) time.Time { return c.With(shiftMonth(c, at, -1)).BeginningOfMonth() },
	":endOfLastMonth":   func(c *now.Config, at time.Time) time.Time { return c.With(shiftMonth(c, at, -1)).EndOfMonth() },
	":startOfNextMonth": func(c *now.Config, at time.Time) time.Time { return c.With(shiftMonth(c, at, 1)).BeginningOfMonth() },
	":endOfNextMonth":   func(c *now.Config, at time.Time) time.Time { return c.With(shiftMonth(c, at, 1)).EndOfMonth() },
	":startOfYear":      func(c *now.Config, at time.Time) time.Time { return c.With(at).BeginningOfYear() },
	":endOfYear":        func(c *now.Config, at time.Time) time.Time { return c.With(at).EndOfYear() },
}

// shiftMonth moves from the first of at's month so that e.g. January 31st
// plus one month stays in February.
func shiftMonth(c *now.Config, at time.Time, months int) time.Time {
	return c.With(at).BeginningOfMonth().AddDate(0, months, 0)
}

// IsRelativeDate reports whether s is a known relative date token.
func IsRelativeDate(s string) bool {
	_, ok := relativeDates[strings.TrimSpace(s)]
	return ok
}

// ResolveRelativeDate resolves token against at in loc.
func ResolveRelativeDate(token string, at time.Time, loc *time.Location) (time.Time, bool) {
	fn, ok := relativeDates[strings.TrimSpace(token)]
	if !ok {
		return time.Time{}, false
	}
	if loc == nil {
		loc = time.UTC
	}
	cfg := &now.Config{WeekStartDay: time.Monday, TimeLocation: loc}
	return fn(cfg, at.In(loc)), true
}

// UsesRelativeDates reports whether any leaf of f compares against a
// relative date token, i.e. whether its result changes as time passes.
func UsesRelativeDates(f models.Filters) bool {
	return nodeUsesRelativeDates(f.Quick) || nodeUsesRelativeDates(f.Advanced)
}

func nodeUsesRelativeDates(n *models.FilterNode) bool {
	if n == nil {
		return false
	}
	if !n.IsLeaf() {
		for i := range n.Children {
			if nodeUsesRelativeDates(&n.Children[i]) {
				return true
			}
		}
		return false
	}
	return valueUsesRelativeDates(n.Value)
}

func valueUsesRelativeDates(v any) bool {
	switch x := v.(type) {
	case string:
		return IsRelativeDate(x)
	case []any:
		for _, item := range x {
			if valueUsesRelativeDates(item) {
				return true
			}
		}
	case []string:
		for _, item := range x {
			if IsRelativeDate(item) {
				return true
			}
		}
	}
	return false
}
