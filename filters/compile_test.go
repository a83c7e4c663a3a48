package filters

import (
	"errors"
	"testing"
	"time"

	"github.com/CrowderSoup/workboard/models"
)

func testFields() map[string]models.Field {
	return map[string]models.Field{
		"status":   {ID: "status", Name: "Status", Type: models.FieldDropdown},
		"priority": {ID: "priority", Name: "Priority", Type: models.FieldDropdown},
		"labels":   {ID: "labels", Name: "Labels", Type: models.FieldLabel, Multiple: true},
		"notes":    {ID: "notes", Name: "Notes", Type: models.FieldText},
		"amount":   {ID: "amount", Name: "Amount", Type: models.FieldNumber},
		"dueAt":    {ID: "dueAt", Name: "Due", Type: models.FieldDateTime},
		"done":     {ID: "done", Name: "Done", Type: models.FieldCheckbox},
	}
}

func card(values map[string]any) models.ListCard {
	return models.ListCard{Card: models.Card{ID: "c1", Title: "Call Alice", Values: values}}
}

func leaf(field string, op models.Operator, value any) *models.FilterNode {
	return &models.FilterNode{Field: field, Operator: op, Value: value}
}

func mustCompile(t *testing.T, n *models.FilterNode) Predicate {
	t.Helper()
	p, _, err := Compile(n, Env{Fields: testFields(), Now: time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)})
	if err != nil {
		t.Fatalf("Compile() error: %v", err)
	}
	return p
}

func TestCompileFilters_QuickAndAdvancedAreANDed(t *testing.T) {
	f := models.Filters{
		Advanced: leaf("status", models.OpEq, "open"),
		Quick: &models.FilterNode{Combinator: models.Or, Children: []models.FilterNode{
			{Field: "priority", Operator: models.OpEq, Value: "high"},
			{Field: "priority", Operator: models.OpEq, Value: "urgent"},
		}},
	}
	p, warnings, err := CompileFilters(f, Env{Fields: testFields()})
	if err != nil {
		t.Fatalf("CompileFilters() error: %v", err)
	}
	if len(warnings) != 0 {
		t.Errorf("warnings = %v, want none", warnings)
	}

	if !p(card(map[string]any{"status": "open", "priority": "high"})) {
		t.Error("open/high should match")
	}
	if p(card(map[string]any{"status": "closed", "priority": "high"})) {
		t.Error("closed/high should not match")
	}
	if p(card(map[string]any{"status": "open", "priority": "low"})) {
		t.Error("open/low should not match")
	}
}

func TestCompile_RelativeDateBetween(t *testing.T) {
	p := mustCompile(t, leaf("dueAt", models.OpBetween, []any{":startOfDay", ":endOfDay"}))

	if !p(card(map[string]any{"dueAt": "2024-06-01T23:00:00Z"})) {
		t.Error("2024-06-01T23:00 should be today")
	}
	if p(card(map[string]any{"dueAt": "2024-06-02T01:00:00Z"})) {
		t.Error("2024-06-02T01:00 should not be today")
	}
	if p(card(map[string]any{})) {
		t.Error("missing due date should not match")
	}
}

func TestCompile_RelativeDatesResolveAtCompileTime(t *testing.T) {
	n := leaf("dueAt", models.OpBetween, []any{":startOfDay", ":endOfDay"})
	c := card(map[string]any{"dueAt": "2024-06-02T09:00:00Z"})

	day1, _, err := Compile(n, Env{Fields: testFields(), Now: time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)})
	if err != nil {
		t.Fatal(err)
	}
	day2, _, err := Compile(n, Env{Fields: testFields(), Now: time.Date(2024, 6, 2, 8, 0, 0, 0, time.UTC)})
	if err != nil {
		t.Fatal(err)
	}
	if day1(c) {
		t.Error("compiled on June 1st, a June 2nd card should not be today")
	}
	if !day2(c) {
		t.Error("compiled on June 2nd, a June 2nd card should be today")
	}
}

func TestCompile_OrderingOnLabelFailsClosed(t *testing.T) {
	_, _, err := Compile(leaf("labels", models.OpGt, "a"), Env{Fields: testFields()})
	if err == nil {
		t.Fatal("expected an error for gt on a label field")
	}
	var opErr *UnsupportedOperatorError
	if !errors.As(err, &opErr) {
		t.Fatalf("error = %T, want *UnsupportedOperatorError", err)
	}
	if opErr.FieldType != models.FieldLabel || opErr.Operator != models.OpGt {
		t.Errorf("error = %+v, want label/gt", opErr)
	}
}

func TestCompile_UnsupportedOperatorRejectsWholeTree(t *testing.T) {
	n := &models.FilterNode{Combinator: models.Or, Children: []models.FilterNode{
		{Field: "status", Operator: models.OpEq, Value: "open"},
		{Field: "notes", Operator: models.OpBetween, Value: []any{"a", "b"}},
	}}
	p, _, err := Compile(n, Env{Fields: testFields()})
	if err == nil {
		t.Fatal("expected an error")
	}
	if p != nil {
		t.Error("no predicate should be returned with an error")
	}
}

func TestCompile_UnknownOperator(t *testing.T) {
	_, _, err := Compile(leaf("status", "startsWith", "o"), Env{Fields: testFields()})
	var opErr *UnsupportedOperatorError
	if !errors.As(err, &opErr) {
		t.Fatalf("error = %v, want *UnsupportedOperatorError", err)
	}
}

func TestCompile_UnknownFieldMatchesNothing(t *testing.T) {
	p, warnings, err := Compile(leaf("deleted-field", models.OpEq, "x"), Env{Fields: testFields()})
	if err != nil {
		t.Fatalf("Compile() error: %v", err)
	}
	if len(warnings) != 1 {
		t.Fatalf("warnings = %d, want 1", len(warnings))
	}
	var ref *UnknownFieldReferenceError
	if !errors.As(warnings[0].Err, &ref) || ref.Field != "deleted-field" {
		t.Errorf("warning = %+v, want unknown field deleted-field", warnings[0])
	}
	if p(card(map[string]any{"deleted-field": "x"})) {
		t.Error("unknown field leaf should never match")
	}
}

func TestCompile_EmptyCombinators(t *testing.T) {
	and := mustCompile(t, &models.FilterNode{Combinator: models.And})
	or := mustCompile(t, &models.FilterNode{Combinator: models.Or})
	c := card(nil)

	if !and(c) {
		t.Error("empty and should be true")
	}
	if or(c) {
		t.Error("empty or should be false")
	}
}

func TestCompile_Operators(t *testing.T) {
	c := card(map[string]any{
		"status": "open",
		"labels": []any{"bug", "ui"},
		"notes":  "Follow up with the Design team",
		"amount": 1500.0,
		"done":   true,
	})

	tests := []struct {
		name string
		node *models.FilterNode
		want bool
	}{
		{"eq dropdown", leaf("status", models.OpEq, "open"), true},
		{"ne dropdown", leaf("status", models.OpNe, "open"), false},
		{"eq multiple contains", leaf("labels", models.OpEq, "ui"), true},
		{"eq multiple missing", leaf("labels", models.OpEq, "backend"), false},
		{"in intersects", leaf("labels", models.OpIn, []any{"backend", "bug"}), true},
		{"nin intersects", leaf("labels", models.OpNin, []any{"backend", "bug"}), false},
		{"in scalar", leaf("status", models.OpIn, []any{"done", "open"}), true},
		{"number string coercion", leaf("amount", models.OpEq, "1500"), true},
		{"gt number", leaf("amount", models.OpGt, 1000), true},
		{"lte number", leaf("amount", models.OpLte, 1000), false},
		{"between number inclusive", leaf("amount", models.OpBetween, []any{1500, 2000}), true},
		{"like substring case-insensitive", leaf("notes", models.OpLike, "design"), true},
		{"like pattern", leaf("notes", models.OpLike, "follow%team"), true},
		{"like pattern anchored", leaf("notes", models.OpLike, "design%"), false},
		{"like on title", leaf(FieldTitle, models.OpLike, "alice"), true},
		{"checkbox", leaf("done", models.OpEq, true), true},
		{"isNull present", leaf("status", models.OpIsNull, nil), false},
		{"isNull absent", leaf("priority", models.OpIsNull, nil), true},
		{"isNull false", leaf("status", models.OpIsNull, false), true},
		{"parent is null", leaf(FieldParentID, models.OpIsNull, true), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mustCompile(t, tt.node)(c)
			if got != tt.want {
				t.Errorf("match = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCompile_IsNullEmptyArray(t *testing.T) {
	p := mustCompile(t, leaf("labels", models.OpIsNull, nil))
	if !p(card(map[string]any{"labels": []any{}})) {
		t.Error("empty array should be null")
	}
}

func TestCompile_IsNullWhitespaceTextIsPresent(t *testing.T) {
	p := mustCompile(t, leaf("notes", models.OpIsNull, nil))
	if p(card(map[string]any{"notes": "   "})) {
		t.Error("whitespace text should not be null")
	}
	if !p(card(map[string]any{"notes": ""})) {
		t.Error("empty text should be null")
	}
}

func TestCompile_LikeOnlyOnText(t *testing.T) {
	_, _, err := Compile(leaf("amount", models.OpLike, "1"), Env{Fields: testFields()})
	var opErr *UnsupportedOperatorError
	if !errors.As(err, &opErr) {
		t.Fatalf("error = %v, want *UnsupportedOperatorError", err)
	}
}

func TestCompile_StageBuiltin(t *testing.T) {
	stage := "todo"
	p := mustCompile(t, leaf(FieldStageID, models.OpEq, "todo"))
	lc := card(nil)
	if p(lc) {
		t.Error("card without stage should not match")
	}
	lc.Membership.StageID = &stage
	if !p(lc) {
		t.Error("card in todo should match")
	}
}

func TestCompile_InvalidLeaf(t *testing.T) {
	_, _, err := Compile(&models.FilterNode{Operator: models.OpEq}, Env{Fields: testFields()})
	var invalid *InvalidFilterError
	if !errors.As(err, &invalid) {
		t.Fatalf("error = %v, want *InvalidFilterError", err)
	}
}

func TestCompile_NilTreeMatchesAll(t *testing.T) {
	p, _, err := CompileFilters(models.Filters{}, Env{})
	if err != nil {
		t.Fatal(err)
	}
	if !p(card(nil)) {
		t.Error("no filters should match every card")
	}
}
