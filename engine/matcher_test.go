package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"questmetrics/api/models"
)

func purchaseSession() models.Session {
	return sess("s1",
		ev("newSession", 0, nil),
		ev("levelStart", 10, models.Attributes{"level": float64(1)}),
		ev("adEvent", 25, models.Attributes{"network": "admob", "type": "rewarded"}),
		ev("purchase", 40, models.Attributes{"price": float64(5), "store": "appstore"}),
	)
}

func TestMatchesConversionInOrder(t *testing.T) {
	s := purchaseSession()
	steps := []models.FunnelStep{step("newSession"), step("levelStart"), step("purchase")}

	assert.True(t, Matcher{}.Matches(s, steps, ModeConversion))
}

func TestMatchesConversionRespectsOrder(t *testing.T) {
	s := purchaseSession()
	// purchase before levelStart never happens in this session
	steps := []models.FunnelStep{step("purchase"), step("levelStart")}

	assert.False(t, Matcher{}.Matches(s, steps, ModeConversion))
}

func TestMatchesSameEventCannotSatisfyTwoSteps(t *testing.T) {
	s := sess("s1", ev("newSession", 0, nil), ev("levelStart", 5, nil))
	steps := []models.FunnelStep{step("levelStart"), step("levelStart")}

	assert.False(t, Matcher{}.Matches(s, steps, ModeConversion))
}

func TestMatchesFilters(t *testing.T) {
	s := purchaseSession()

	tests := []struct {
		name string
		f    models.FieldFilter
		want bool
	}{
		{"is match", filter("store", models.CondIs, "appstore"), true},
		{"is mismatch", filter("store", models.CondIs, "playstore"), false},
		{"is-not", filter("store", models.CondIsNot, "playstore"), true},
		{"contains", filter("store", models.CondContains, "app"), true},
		{"starts-with", filter("store", models.CondStartsWith, "app"), true},
		{"ends-with", filter("store", models.CondEndsWith, "store"), true},
		{"numeric eq", filter("price", models.CondEq, "5"), true},
		{"numeric neq", filter("price", models.CondNeq, "5"), false},
		{"numeric lt", filter("price", models.CondLt, "10"), true},
		{"numeric gte", filter("price", models.CondGte, "6"), false},
		{"missing field fails", filter("nope", models.CondIs, "x"), false},
		{"missing field fails negated", filter("nope", models.CondIsNot, "x"), false},
		{"non-numeric value fails numeric cond", filter("store", models.CondGt, "1"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			steps := []models.FunnelStep{step("newSession"), step("purchase", tt.f)}
			assert.Equal(t, tt.want, Matcher{}.Matches(s, steps, ModeConversion))
		})
	}
}

func TestMatchesFilterOnlyChecksFirstCandidate(t *testing.T) {
	// Two adEvents; the first has the wrong network. The first id match is
	// the only candidate, so the step fails even though a later event
	// would have passed.
	s := sess("s1",
		ev("newSession", 0, nil),
		ev("adEvent", 10, models.Attributes{"network": "admob"}),
		ev("adEvent", 20, models.Attributes{"network": "unity"}),
	)
	steps := []models.FunnelStep{step("adEvent", filter("network", models.CondIs, "unity"))}

	assert.False(t, Matcher{}.Matches(s, steps, ModeConversion))
}

func TestMatchesAllModeShortCircuits(t *testing.T) {
	s := purchaseSession()
	steps := []models.FunnelStep{step("newSession"), step("doesNotExist")}

	assert.True(t, Matcher{}.Matches(s, steps, ModeAll))
	assert.False(t, Matcher{}.Matches(s, steps, ModeConversion))
}

func TestMatchesAllModeFirstStepMustMatch(t *testing.T) {
	s := purchaseSession()
	steps := []models.FunnelStep{step("doesNotExist"), step("newSession")}

	assert.False(t, Matcher{}.Matches(s, steps, ModeAll))
}

func TestMatchesDropoff(t *testing.T) {
	s := purchaseSession()

	// entered the funnel, failed the second step
	assert.True(t, Matcher{}.Matches(s, []models.FunnelStep{step("newSession"), step("doesNotExist")}, ModeDropoff))
	// never entered the funnel
	assert.False(t, Matcher{}.Matches(s, []models.FunnelStep{step("doesNotExist"), step("newSession")}, ModeDropoff))
	// full conversion is not a dropoff
	assert.False(t, Matcher{}.Matches(s, []models.FunnelStep{step("newSession"), step("purchase")}, ModeDropoff))
}

func TestMatchesEmptyFunnel(t *testing.T) {
	s := purchaseSession()

	assert.True(t, Matcher{}.Matches(s, nil, ModeConversion))
	assert.True(t, Matcher{}.Matches(s, nil, ModeAll))
	assert.False(t, Matcher{}.Matches(s, nil, ModeDropoff))
}

func TestMatchesMaxSessionLength(t *testing.T) {
	s := purchaseSession() // spans 40s
	steps := []models.FunnelStep{step("newSession")}
	m := Matcher{MaxSessionLength: 30 * time.Second}

	assert.False(t, m.Matches(s, steps, ModeConversion))
	assert.False(t, m.Matches(s, steps, ModeAll))
	// dropoff evaluation ignores the length cap
	assert.True(t, m.Matches(s, []models.FunnelStep{step("newSession"), step("doesNotExist")}, ModeDropoff))
}

func TestMatchingIsMonotonic(t *testing.T) {
	s := purchaseSession()
	steps := []models.FunnelStep{
		step("newSession"),
		step("missing"),
		step("purchase"),
	}
	m := Matcher{}
	for k := range steps {
		if !m.Matches(s, steps[:k], ModeConversion) {
			assert.False(t, Matcher{}.Matches(s, steps[:k+1], ModeConversion),
				"a failed prefix must not succeed with more steps")
		}
	}
}

func TestPrefixLength(t *testing.T) {
	s := purchaseSession()
	steps := []models.FunnelStep{step("newSession"), step("missing"), step("purchase")}

	assert.Equal(t, 1, Matcher{}.PrefixLength(s, steps))
	assert.Equal(t, 3, Matcher{}.PrefixLength(s, []models.FunnelStep{step("newSession"), step("levelStart"), step("purchase")}))
}

func TestMatchedIndexes(t *testing.T) {
	s := purchaseSession()
	steps := []models.FunnelStep{step("newSession"), step("adEvent"), step("missing")}

	idxs := Matcher{}.MatchedIndexes(s, steps)
	require.Len(t, idxs, 3)
	assert.Equal(t, []int{0, 2, -1}, idxs)
}

func TestMatchesMalformedEventDoesNotPanic(t *testing.T) {
	s := sess("s1", models.EventRecord{}, ev("levelStart", 5, nil))
	steps := []models.FunnelStep{step("levelStart")}

	assert.NotPanics(t, func() {
		assert.True(t, Matcher{}.Matches(s, steps, ModeConversion))
	})
}
