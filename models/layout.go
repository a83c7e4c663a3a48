package models

import (
	"regexp"
	"strings"

	"github.com/spf13/cast"
)

// Layout selects how cards of a type are presented and which system fields
// the type starts with.
type Layout string

const (
	LayoutDefault      Layout = "default"
	LayoutPerson       Layout = "person"
	LayoutOrganization Layout = "organization"
	LayoutDeal         Layout = "deal"
)

// FieldTemplate is a system field created together with a card type.
type FieldTemplate struct {
	Name          string
	Type          FieldType
	IsTitle       bool
	IsDescription bool
	IsPhoto       bool
	IsPinned      bool
}

// LayoutCapabilities is what a layout provides.
type LayoutCapabilities struct {
	Fields []FieldTemplate
	// TitleTemplate builds the title from field names in braces. Empty means
	// the title field's value is the title.
	TitleTemplate string
}

var placeholderPattern = regexp.MustCompile(`\{[^}]*\}`)

var layoutCapabilities = map[Layout]LayoutCapabilities{
	LayoutDefault: {
		Fields: []FieldTemplate{
			{Name: "Title", Type: FieldText, IsTitle: true},
			{Name: "Description", Type: FieldRichText, IsDescription: true},
		},
	},
	LayoutPerson: {
		Fields: []FieldTemplate{
			{Name: "First name", Type: FieldText},
			{Name: "Last name", Type: FieldText},
			{Name: "Email", Type: FieldText, IsPinned: true},
			{Name: "Phone", Type: FieldText},
			{Name: "Photo", Type: FieldText, IsPhoto: true},
		},
		TitleTemplate: "{First name} {Last name}",
	},
	LayoutOrganization: {
		Fields: []FieldTemplate{
			{Name: "Name", Type: FieldText, IsTitle: true},
			{Name: "Domain", Type: FieldText, IsPinned: true},
			{Name: "Logo", Type: FieldText, IsPhoto: true},
		},
	},
	LayoutDeal: {
		Fields: []FieldTemplate{
			{Name: "Name", Type: FieldText, IsTitle: true},
			{Name: "Amount", Type: FieldNumber, IsPinned: true},
			{Name: "Close date", Type: FieldDate},
			{Name: "Owner", Type: FieldUser},
		},
	},
}

// Capabilities looks up what layout l provides.
func Capabilities(l Layout) (LayoutCapabilities, bool) {
	c, ok := layoutCapabilities[l]
	return c, ok
}

// DeriveTitle computes a card title from its values using the layout's
// template, or the title field when the layout has none.
func DeriveTitle(l Layout, fields []Field, values map[string]any) string {
	caps, ok := Capabilities(l)
	if !ok {
		caps = layoutCapabilities[LayoutDefault]
	}

	if caps.TitleTemplate == "" {
		for _, f := range fields {
			if f.IsTitle {
				return strings.TrimSpace(cast.ToString(values[f.ID]))
			}
		}
		return ""
	}

	title := caps.TitleTemplate
	for _, f := range fields {
		placeholder := "{" + f.Name + "}"
		if strings.Contains(title, placeholder) {
			title = strings.ReplaceAll(title, placeholder, cast.ToString(values[f.ID]))
		}
	}
	title = placeholderPattern.ReplaceAllString(title, "")
	return strings.Join(strings.Fields(title), " ")
}
