// api/internal/models/funnel.go
package models

import "time"

// FilterCondition is one of the comparison operators the funnel builder
// offers. The string family compares coerced strings, the numeric family
// coerced numbers.
type FilterCondition string

const (
	CondIs         FilterCondition = "is"
	CondIsNot      FilterCondition = "is-not"
	CondContains   FilterCondition = "contains"
	CondStartsWith FilterCondition = "starts-with"
	CondEndsWith   FilterCondition = "ends-with"
	CondEq         FilterCondition = "="
	CondNeq        FilterCondition = "!="
	CondLt         FilterCondition = "<"
	CondLte        FilterCondition = "<="
	CondGt         FilterCondition = ">"
	CondGte        FilterCondition = ">="
)

// IsNumericCondition reports whether the condition compares numbers.
func IsNumericCondition(c FilterCondition) bool {
	switch c {
	case CondEq, CondNeq, CondLt, CondLte, CondGt, CondGte:
		return true
	default:
		return false
	}
}

// FieldFilter is a per-step predicate on one event field.
type FieldFilter struct {
	Field          string          `json:"targetField"`
	Condition      FilterCondition `json:"condition"`
	Value          string          `json:"value"`
	SecondaryValue string          `json:"secondaryValue,omitempty"`
}

// FunnelStep targets one event type, optionally narrowed by field filters.
// A step with no filters matches on id alone.
type FunnelStep struct {
	EventID string        `json:"id"`
	Filters []FieldFilter `json:"filters,omitempty"`
}

// Funnel is a saved, ordered funnel definition.
type Funnel struct {
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	Steps     []FunnelStep `json:"steps"`
	CreatedAt time.Time    `json:"createdAt"`
	UpdatedAt time.Time    `json:"updatedAt"`
}

// Settings carries the analysis options the dashboard sends alongside a
// funnel. Date range and view mode select the session batch; the rest
// shapes the computed outputs.
type Settings struct {
	ViewMode                string    `json:"viewMode,omitempty"`
	MaxStep                 int       `json:"maxStep,omitempty"`
	MinPlayersSharePercent  float64   `json:"minPlayersSharePercent,omitempty"`
	MaxSessionLengthSeconds float64   `json:"maxSessionLengthSeconds,omitempty"`
	HiddenEventIDs          []string  `json:"hiddenEventIds,omitempty"`
	From                    time.Time `json:"from,omitempty"`
	To                      time.Time `json:"to,omitempty"`
}
