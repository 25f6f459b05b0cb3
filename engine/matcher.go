// Package engine is the session aggregation and funnel analytics core:
// funnel matching, occurrence-weighted session trees, presence correlation
// and churn/property analysis. It is a pure computation library; every
// entry point takes a finite in-memory batch and returns a materialized
// result. Malformed events degrade to non-matches rather than errors.
package engine

import (
	"strconv"
	"strings"
	"time"

	"questmetrics/api/models"
)

// Mode selects how a session is evaluated against a funnel.
type Mode string

const (
	// ModeAll accepts any session that satisfies the first step, whatever
	// happens afterwards. Used for "any path through this event" trees.
	ModeAll Mode = "all"
	// ModeConversion requires every step to match in order.
	ModeConversion Mode = "conversion"
	// ModeDropoff accepts sessions that entered the funnel but failed a
	// later step.
	ModeDropoff Mode = "dropoff"
)

// ParseMode maps a wire view-mode string onto a Mode, defaulting to
// conversion for anything unknown.
func ParseMode(s string) Mode {
	switch Mode(s) {
	case ModeAll, ModeConversion, ModeDropoff:
		return Mode(s)
	default:
		return ModeConversion
	}
}

// Matcher evaluates sessions against ordered funnel definitions.
// MaxSessionLength, when positive, excludes overlong sessions from
// non-dropoff evaluation before any step is considered.
type Matcher struct {
	MaxSessionLength time.Duration
}

// Matches reports whether the session satisfies the funnel under the given
// mode. Matching is an ordered, non-overlapping subsequence search: each
// step consumes the first event after the previous match whose id equals
// the step's event id, and that single candidate must pass all of the
// step's filters.
func (m Matcher) Matches(s models.Session, steps []models.FunnelStep, mode Mode) bool {
	if mode != ModeDropoff && m.excluded(s) {
		return false
	}
	if len(steps) == 0 {
		// Nothing to fail; a session cannot drop off an empty funnel.
		return mode != ModeDropoff
	}

	last := -1
	matched := 0
	for _, step := range steps {
		idx := nextEvent(s, step.EventID, last)
		if idx < 0 || !filtersPass(s.Events[idx], step.Filters) {
			if mode == ModeDropoff {
				return matched > 0
			}
			return false
		}
		matched++
		last = idx
		if mode == ModeAll {
			return true
		}
	}
	// Full match is a conversion, not a dropoff.
	return mode != ModeDropoff
}

// PrefixLength returns how many leading funnel steps the session satisfies
// before the first failure, applying the same session-length exclusion as
// conversion matching. By construction a failed prefix never recovers, so
// the session is "reached step i" exactly when PrefixLength > i.
func (m Matcher) PrefixLength(s models.Session, steps []models.FunnelStep) int {
	if m.excluded(s) {
		return 0
	}
	last := -1
	for i, step := range steps {
		idx := nextEvent(s, step.EventID, last)
		if idx < 0 || !filtersPass(s.Events[idx], step.Filters) {
			return i
		}
		last = idx
	}
	return len(steps)
}

// MatchedIndexes returns, per step, the index of the event that satisfied
// it, or -1 from the first failed step onward.
func (m Matcher) MatchedIndexes(s models.Session, steps []models.FunnelStep) []int {
	out := make([]int, len(steps))
	for i := range out {
		out[i] = -1
	}
	if m.excluded(s) {
		return out
	}
	last := -1
	for i, step := range steps {
		idx := nextEvent(s, step.EventID, last)
		if idx < 0 || !filtersPass(s.Events[idx], step.Filters) {
			break
		}
		out[i] = idx
		last = idx
	}
	return out
}

func (m Matcher) excluded(s models.Session) bool {
	return m.MaxSessionLength > 0 && s.Duration() > m.MaxSessionLength
}

func nextEvent(s models.Session, eventID string, after int) int {
	for i := after + 1; i < len(s.Events); i++ {
		if s.Events[i].ID == eventID {
			return i
		}
	}
	return -1
}

func filtersPass(ev models.EventRecord, filters []models.FieldFilter) bool {
	for _, f := range filters {
		if !filterPasses(ev, f) {
			return false
		}
	}
	return true
}

// filterPasses evaluates one predicate. A missing target field or a failed
// coercion is a filter failure, never a panic; this includes the negative
// conditions, so "is-not" on an absent field does not match.
func filterPasses(ev models.EventRecord, f models.FieldFilter) bool {
	if models.IsNumericCondition(f.Condition) {
		got, ok := ev.Fields.Number(f.Field)
		if !ok {
			return false
		}
		want, err := strconv.ParseFloat(f.Value, 64)
		if err != nil {
			return false
		}
		switch f.Condition {
		case models.CondEq:
			return got == want
		case models.CondNeq:
			return got != want
		case models.CondLt:
			return got < want
		case models.CondLte:
			return got <= want
		case models.CondGt:
			return got > want
		case models.CondGte:
			return got >= want
		}
		return false
	}

	got, ok := ev.Fields.Str(f.Field)
	if !ok {
		return false
	}
	switch f.Condition {
	case models.CondIs:
		return got == f.Value
	case models.CondIsNot:
		return got != f.Value
	case models.CondContains:
		return strings.Contains(got, f.Value)
	case models.CondStartsWith:
		return strings.HasPrefix(got, f.Value)
	case models.CondEndsWith:
		return strings.HasSuffix(got, f.Value)
	default:
		return false
	}
}
