package notion

import (
	"sort"
	"strconv"
	"strings"
)

// Object is a generic Notion object (page or database)
type Object struct {
	Object         string              `json:"object"`
	ID             string              `json:"id"`
	CreatedTime    string              `json:"created_time"`
	LastEditedTime string              `json:"last_edited_time"`
	Archived       bool                `json:"archived,omitempty"`
	Title          []RichText          `json:"title,omitempty"`
	Properties     map[string]Property `json:"properties,omitempty"`
	URL            string              `json:"url,omitempty"`
	Parent         Parent              `json:"parent,omitempty"`
}

// RichText is a Notion rich text object
type RichText struct {
	Type      string `json:"type"`
	PlainText string `json:"plain_text"`
}

// Parent describes the parent of an object
type Parent struct {
	Type       string `json:"type"`
	DatabaseID string `json:"database_id,omitempty"`
	PageID     string `json:"page_id,omitempty"`
	Workspace  bool   `json:"workspace,omitempty"`
}

// Property is a Notion property value (simplified)
type Property struct {
	ID          string         `json:"id"`
	Type        string         `json:"type"`
	Title       []RichText     `json:"title,omitempty"`
	RichText    []RichText     `json:"rich_text,omitempty"`
	Number      *float64       `json:"number,omitempty"`
	Select      *SelectOption  `json:"select,omitempty"`
	MultiSelect []SelectOption `json:"multi_select,omitempty"`
	Date        *DateProperty  `json:"date,omitempty"`
	Checkbox    bool           `json:"checkbox,omitempty"`
	URL         string         `json:"url,omitempty"`
	Status      *SelectOption  `json:"status,omitempty"`
}

type SelectOption struct {
	ID    string `json:"id,omitempty"`
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
}

type DateProperty struct {
	Start string `json:"start"`
	End   string `json:"end,omitempty"`
}

func joinText(rt []RichText) string {
	var b strings.Builder
	for _, t := range rt {
		b.WriteString(t.PlainText)
	}
	return b.String()
}

// GetTitle extracts the plain text title from a page or database
func (o *Object) GetTitle() string {
	if len(o.Title) > 0 {
		return joinText(o.Title)
	}
	for _, prop := range o.Properties {
		if prop.Type == "title" {
			return joinText(prop.Title)
		}
	}
	return ""
}

// GetPropertyText gets the text value of a property
func (o *Object) GetPropertyText(name string) string {
	prop, ok := o.Properties[name]
	if !ok {
		return ""
	}

	switch prop.Type {
	case "title":
		return joinText(prop.Title)
	case "rich_text":
		return joinText(prop.RichText)
	case "select":
		if prop.Select != nil {
			return prop.Select.Name
		}
	case "status":
		if prop.Status != nil {
			return prop.Status.Name
		}
	case "url":
		return prop.URL
	case "number":
		if prop.Number != nil {
			return strconv.FormatFloat(*prop.Number, 'f', -1, 64)
		}
	case "checkbox":
		return strconv.FormatBool(prop.Checkbox)
	case "date":
		if prop.Date != nil {
			return prop.Date.Start
		}
	case "multi_select":
		names := make([]string, 0, len(prop.MultiSelect))
		for _, opt := range prop.MultiSelect {
			names = append(names, opt.Name)
		}
		return strings.Join(names, ", ")
	}
	return ""
}

// Status returns the page's task status: the first status-typed property,
// else a select property named Status. Empty when the page has neither.
func (o *Object) Status() string {
	for _, name := range o.sortedProps() {
		if p := o.Properties[name]; p.Type == "status" && p.Status != nil {
			return p.Status.Name
		}
	}
	for _, name := range o.sortedProps() {
		if p := o.Properties[name]; p.Type == "select" && strings.EqualFold(name, "status") && p.Select != nil {
			return p.Select.Name
		}
	}
	return ""
}

// Labels returns the options of a Tags or Labels multi-select property.
func (o *Object) Labels() []string {
	out := []string{}
	for _, name := range o.sortedProps() {
		p := o.Properties[name]
		if p.Type != "multi_select" {
			continue
		}
		if !strings.EqualFold(name, "tags") && !strings.EqualFold(name, "labels") {
			continue
		}
		for _, opt := range p.MultiSelect {
			out = append(out, opt.Name)
		}
		break
	}
	return out
}

func (o *Object) sortedProps() []string {
	names := make([]string, 0, len(o.Properties))
	for name := range o.Properties {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var doneStatuses = map[string]bool{
	"done": true, "complete": true, "completed": true,
	"closed": true, "archived": true, "cancelled": true, "canceled": true,
}

// IsDone reports whether status names a finished task.
func IsDone(status string) bool {
	return doneStatuses[strings.ToLower(strings.TrimSpace(status))]
}

// NormalizeID strips the dashes of a Notion UUID.
func NormalizeID(id string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(id), "-", ""))
}

// ValidID reports whether id is a 32-digit hex Notion id, dashed or not.
func ValidID(id string) bool {
	id = NormalizeID(id)
	if len(id) != 32 {
		return false
	}
	for _, r := range id {
		if !strings.ContainsRune("0123456789abcdef", r) {
			return false
		}
	}
	return true
}
