package filters

import (
	"regexp"
	"strings"
	"time"

	"github.com/spf13/cast"

	"github.com/CrowderSoup/workboard/models"
)

// Env is what a filter tree is compiled against. Relative date tokens are
// resolved against Now once, at compile time.
type Env struct {
	Fields   map[string]models.Field
	Now      time.Time
	Location *time.Location
}

type compiler struct {
	env      Env
	warnings []Warning
}

// CompileFilters compiles both trees of a view and ANDs them:
// and(compile(advanced), compile(quick)).
func CompileFilters(f models.Filters, env Env) (Predicate, []Warning, error) {
	c := newCompiler(env)
	advanced, err := c.tree(f.Advanced)
	if err != nil {
		return nil, nil, err
	}
	quick, err := c.tree(f.Quick)
	if err != nil {
		return nil, nil, err
	}
	return And(advanced, quick), c.warnings, nil
}

// Compile compiles a single filter tree. A nil tree matches every card.
func Compile(n *models.FilterNode, env Env) (Predicate, []Warning, error) {
	c := newCompiler(env)
	p, err := c.tree(n)
	if err != nil {
		return nil, nil, err
	}
	return p, c.warnings, nil
}

func newCompiler(env Env) *compiler {
	if env.Location == nil {
		env.Location = time.UTC
	}
	if env.Now.IsZero() {
		env.Now = time.Now()
	}
	return &compiler{env: env}
}

func (c *compiler) tree(n *models.FilterNode) (Predicate, error) {
	if n == nil {
		return True, nil
	}
	return c.node(*n)
}

func (c *compiler) node(n models.FilterNode) (Predicate, error) {
	if n.IsLeaf() {
		return c.leaf(n)
	}

	children := make([]Predicate, 0, len(n.Children))
	for _, child := range n.Children {
		p, err := c.node(child)
		if err != nil {
			return nil, err
		}
		children = append(children, p)
	}

	switch n.Combinator {
	case models.And:
		return And(children...), nil
	case models.Or:
		return Or(children...), nil
	}
	return nil, &InvalidFilterError{Reason: "unknown combinator " + string(n.Combinator)}
}

func (c *compiler) leaf(n models.FilterNode) (Predicate, error) {
	if n.Field == "" {
		return nil, &InvalidFilterError{Reason: "leaf without field"}
	}
	if !knownOperator(n.Operator) {
		return nil, &UnsupportedOperatorError{Field: n.Field, Operator: n.Operator}
	}

	acc, ok := Lookup(n.Field, c.env.Fields, c.env.Location)
	if !ok {
		c.warnings = append(c.warnings, warningFor(&UnknownFieldReferenceError{Field: n.Field}, n.Field))
		return False, nil
	}

	match, err := c.matcher(acc.Field, n.Operator, n.Value)
	if err != nil {
		return nil, err
	}
	get := acc.Get
	return func(lc models.ListCard) bool { return match(get(lc)) }, nil
}

func knownOperator(op models.Operator) bool {
	switch op {
	case models.OpEq, models.OpNe, models.OpGt, models.OpLt, models.OpGte, models.OpLte,
		models.OpIn, models.OpNin, models.OpLike, models.OpBetween, models.OpIsNull:
		return true
	}
	return false
}

type valueMatcher func(models.Value) bool

func (c *compiler) matcher(f models.Field, op models.Operator, raw any) (valueMatcher, error) {
	unsupported := &UnsupportedOperatorError{Field: f.ID, FieldType: f.Type, Operator: op}

	switch op {
	case models.OpEq, models.OpNe:
		m, err := c.equals(f, raw)
		if err != nil {
			return nil, err
		}
		if op == models.OpNe {
			return negate(m), nil
		}
		return m, nil

	case models.OpGt, models.OpLt, models.OpGte, models.OpLte:
		if !f.Type.Ordinal() {
			return nil, unsupported
		}
		bound, err := c.ordinal(f, raw)
		if err != nil {
			return nil, err
		}
		return func(v models.Value) bool {
			key, ok := ordinalKey(v)
			if !ok {
				return false
			}
			switch op {
			case models.OpGt:
				return key > bound
			case models.OpLt:
				return key < bound
			case models.OpGte:
				return key >= bound
			}
			return key <= bound
		}, nil

	case models.OpBetween:
		if !f.Type.Ordinal() {
			return nil, unsupported
		}
		bounds, err := toList(raw)
		if err != nil || len(bounds) != 2 {
			return nil, &InvalidFilterError{Field: f.ID, Reason: "between needs exactly two values"}
		}
		lo, err := c.ordinal(f, bounds[0])
		if err != nil {
			return nil, err
		}
		hi, err := c.ordinal(f, bounds[1])
		if err != nil {
			return nil, err
		}
		return func(v models.Value) bool {
			key, ok := ordinalKey(v)
			return ok && key >= lo && key <= hi
		}, nil

	case models.OpIn, models.OpNin:
		items, err := toList(raw)
		if err != nil {
			return nil, &InvalidFilterError{Field: f.ID, Reason: err.Error()}
		}
		ms := make([]valueMatcher, 0, len(items))
		for _, item := range items {
			m, err := c.equals(f, item)
			if err != nil {
				return nil, err
			}
			ms = append(ms, m)
		}
		in := func(v models.Value) bool {
			for _, m := range ms {
				if m(v) {
					return true
				}
			}
			return false
		}
		if op == models.OpNin {
			return negate(in), nil
		}
		return in, nil

	case models.OpLike:
		if f.Type != models.FieldText {
			return nil, unsupported
		}
		pattern, err := cast.ToStringE(raw)
		if err != nil {
			return nil, &InvalidFilterError{Field: f.ID, Reason: "like needs a string"}
		}
		return likeMatcher(pattern), nil

	case models.OpIsNull:
		want := true
		if raw != nil {
			b, err := cast.ToBoolE(raw)
			if err != nil {
				return nil, &InvalidFilterError{Field: f.ID, Reason: "isNull takes a boolean"}
			}
			want = b
		}
		return func(v models.Value) bool { return v.IsEmpty() == want }, nil
	}
	return nil, unsupported
}

// equals builds a type-aware equality matcher against raw.
func (c *compiler) equals(f models.Field, raw any) (valueMatcher, error) {
	invalid := func(reason string) error { return &InvalidFilterError{Field: f.ID, Reason: reason} }

	switch f.Type {
	case models.FieldText, models.FieldRichText:
		want, err := cast.ToStringE(raw)
		if err != nil {
			return nil, invalid("expected a string")
		}
		return func(v models.Value) bool {
			switch x := v.(type) {
			case models.TextValue:
				return x.Text == want
			case models.EmptyValue:
				return want == ""
			}
			return false
		}, nil

	case models.FieldNumber:
		want, err := cast.ToFloat64E(raw)
		if err != nil {
			return nil, invalid("expected a number")
		}
		return func(v models.Value) bool {
			x, ok := v.(models.NumberValue)
			return ok && x.Number == want
		}, nil

	case models.FieldCheckbox:
		want, err := cast.ToBoolE(raw)
		if err != nil {
			return nil, invalid("expected a boolean")
		}
		return func(v models.Value) bool {
			switch x := v.(type) {
			case models.BoolValue:
				return x.Bool == want
			case models.EmptyValue:
				return !want
			}
			return false
		}, nil

	case models.FieldDropdown, models.FieldLabel, models.FieldUser, models.FieldCardRef:
		wants, err := toList(raw)
		if err != nil {
			return nil, invalid(err.Error())
		}
		ids := make([]string, 0, len(wants))
		for _, w := range wants {
			id, err := cast.ToStringE(w)
			if err != nil {
				return nil, invalid("expected identifiers")
			}
			ids = append(ids, id)
		}
		return func(v models.Value) bool {
			set, ok := v.(models.SetValue)
			if !ok {
				return len(ids) == 0
			}
			for _, id := range ids {
				if !set.Contains(id) {
					return false
				}
			}
			return len(ids) > 0
		}, nil

	case models.FieldDate, models.FieldDateTime:
		want, err := c.instant(f, raw)
		if err != nil {
			return nil, err
		}
		if f.Type == models.FieldDate {
			y, m, d := want.In(c.env.Location).Date()
			return func(v models.Value) bool {
				x, ok := v.(models.TimeValue)
				if !ok {
					return false
				}
				vy, vm, vd := x.Time.In(c.env.Location).Date()
				return vy == y && vm == m && vd == d
			}, nil
		}
		return func(v models.Value) bool {
			x, ok := v.(models.TimeValue)
			return ok && x.Time.Equal(want)
		}, nil
	}
	return nil, invalid("unknown field type " + string(f.Type))
}

// ordinal turns a filter value into the same key space as ordinalKey.
func (c *compiler) ordinal(f models.Field, raw any) (float64, error) {
	if f.Type == models.FieldNumber {
		n, err := cast.ToFloat64E(raw)
		if err != nil {
			return 0, &InvalidFilterError{Field: f.ID, Reason: "expected a number"}
		}
		return n, nil
	}
	t, err := c.instant(f, raw)
	if err != nil {
		return 0, err
	}
	return float64(t.UnixMicro()), nil
}

// instant resolves relative date tokens against the compile time, or parses
// an absolute date.
func (c *compiler) instant(f models.Field, raw any) (time.Time, error) {
	if s, ok := raw.(string); ok && strings.HasPrefix(strings.TrimSpace(s), ":") {
		t, ok := ResolveRelativeDate(s, c.env.Now, c.env.Location)
		if !ok {
			return time.Time{}, &InvalidFilterError{Field: f.ID, Reason: "unknown relative date " + s}
		}
		return t, nil
	}
	t, err := models.ParseTime(raw, c.env.Location)
	if err != nil || t.IsZero() {
		return time.Time{}, &InvalidFilterError{Field: f.ID, Reason: "expected a date"}
	}
	return t, nil
}

func ordinalKey(v models.Value) (float64, bool) {
	switch x := v.(type) {
	case models.NumberValue:
		return x.Number, true
	case models.TimeValue:
		return float64(x.Time.UnixMicro()), true
	case models.TextValue, models.BoolValue, models.SetValue, models.EmptyValue:
		return 0, false
	}
	return 0, false
}

func likeMatcher(pattern string) valueMatcher {
	if !strings.ContainsAny(pattern, "%_") {
		needle := strings.ToLower(pattern)
		return func(v models.Value) bool {
			x, ok := v.(models.TextValue)
			return ok && strings.Contains(strings.ToLower(x.Text), needle)
		}
	}

	var b strings.Builder
	b.WriteString("(?is)^")
	for _, r := range pattern {
		switch r {
		case '%':
			b.WriteString(".*")
		case '_':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString("$")
	re := regexp.MustCompile(b.String())
	return func(v models.Value) bool {
		x, ok := v.(models.TextValue)
		return ok && re.MatchString(x.Text)
	}
}

func negate(m valueMatcher) valueMatcher {
	return func(v models.Value) bool { return !m(v) }
}

func toList(raw any) ([]any, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case []any:
		return v, nil
	case []string:
		out := make([]any, len(v))
		for i, s := range v {
			out[i] = s
		}
		return out, nil
	}
	return []any{raw}, nil
}
