package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"questmetrics/api/models"
)

func treeSessions() []models.Session {
	return []models.Session{
		sess("s1",
			ev("newSession", 0, nil),
			ev("levelStart", 10, models.Attributes{"level": float64(1)}),
			ev("purchase", 40, models.Attributes{"price": float64(5)}),
		),
		sess("s2",
			ev("newSession", 0, nil),
			ev("levelStart", 12, models.Attributes{"level": float64(1)}),
		),
	}
}

func TestBuildTreeMergesPrefixes(t *testing.T) {
	root := NewTreeBuilder(nil).Build(treeSessions())
	require.NotNil(t, root)

	assert.Equal(t, "newSession", root.EventID)
	assert.Equal(t, 2, root.Occurrence)
	require.Len(t, root.Children, 1)

	level := root.Children[0]
	assert.Equal(t, "levelStart", level.EventID)
	assert.Equal(t, 2, level.Occurrence)
	require.Len(t, level.Children, 1)

	purchase := level.Children[0]
	assert.Equal(t, "purchase", purchase.EventID)
	assert.Equal(t, 1, purchase.Occurrence)
	assert.Empty(t, purchase.Children)
	assert.Equal(t, []any{float64(5)}, purchase.Values["price"])
}

func TestBuildTreeOccurrenceConservation(t *testing.T) {
	sessions := append(treeSessions(),
		sess("s3", ev("newSession", 0, nil), ev("settings", 4, nil)),
		sess("s4", ev("newSession", 0, nil)),
	)
	root := NewTreeBuilder(nil).Build(sessions)
	require.NotNil(t, root)
	assert.Equal(t, len(sessions), root.Occurrence)

	var check func(n *AggregationNode)
	check = func(n *AggregationNode) {
		sum := 0
		for _, c := range n.Children {
			sum += c.Occurrence
		}
		assert.LessOrEqual(t, sum, n.Occurrence)
		for _, c := range n.Children {
			check(c)
		}
	}
	check(root)
}

func TestBuildTreeIdempotent(t *testing.T) {
	sessions := treeSessions()
	a := NewTreeBuilder(nil).Build(sessions)
	b := NewTreeBuilder(nil).Build(sessions)
	assert.Equal(t, a, b)
}

func TestBuildTreeBranches(t *testing.T) {
	sessions := []models.Session{
		sess("s1", ev("newSession", 0, nil), ev("levelStart", 1, nil)),
		sess("s2", ev("newSession", 0, nil), ev("settings", 1, nil)),
	}
	root := NewTreeBuilder(nil).Build(sessions)
	require.NotNil(t, root)
	require.Len(t, root.Children, 2)
	assert.Equal(t, 50.0, root.ConversionRate(root.Children[0]))
}

func TestBuildTreeMergeRulesSplitByIdentity(t *testing.T) {
	sessions := []models.Session{
		sess("s1", ev("newSession", 0, nil), ev("crash", 5, models.Attributes{"message": "null deref"})),
		sess("s2", ev("newSession", 0, nil), ev("crash", 5, models.Attributes{"message": "oom"})),
		sess("s3", ev("newSession", 0, nil), ev("crash", 5, models.Attributes{"message": "oom"})),
	}
	root := NewTreeBuilder(nil).Build(sessions)
	require.NotNil(t, root)
	require.Len(t, root.Children, 2, "different crash messages must not merge")

	byKey := map[string]int{}
	for _, c := range root.Children {
		byKey[c.MergeKey] = c.Occurrence
	}
	assert.Equal(t, map[string]int{"null deref": 1, "oom": 2}, byKey)
}

func TestBuildTreeRuleTypesAccumulateStatFieldsOnly(t *testing.T) {
	sessions := []models.Session{
		sess("s1", ev("newSession", 0, nil), ev("offerShown", 5, models.Attributes{
			"offerID": "starter", "price": float64(3), "placement": "home",
		})),
	}
	root := NewTreeBuilder(nil).Build(sessions)
	require.Len(t, root.Children, 1)

	offer := root.Children[0]
	assert.Equal(t, []any{float64(3)}, offer.Values["price"])
	assert.NotContains(t, offer.Values, "placement")
}

func TestBuildTreeReseedsOnDifferentRoot(t *testing.T) {
	sessions := []models.Session{
		sess("s1", ev("newSession", 0, nil), ev("levelStart", 1, nil)),
		sess("s2", ev("appOpen", 0, nil), ev("levelStart", 1, nil)),
	}
	root := NewTreeBuilder(nil).Build(sessions)
	require.NotNil(t, root)
	assert.Equal(t, "appOpen", root.EventID)
	assert.Equal(t, 1, root.Occurrence)
}

func TestBuildTreeEmpty(t *testing.T) {
	assert.Nil(t, NewTreeBuilder(nil).Build(nil))
	assert.Nil(t, NewTreeBuilder(nil).Build([]models.Session{sess("s1")}))
}

func TestMostCommonValue(t *testing.T) {
	n := &AggregationNode{Values: map[string][]any{
		"difficulty": {"hard", "easy", "hard"},
		"tied":       {"b", "a"},
	}}

	v, count := n.MostCommonValue("difficulty")
	assert.Equal(t, "hard", v)
	assert.Equal(t, 2, count)

	// ties break lexicographically, not by insertion order
	v, count = n.MostCommonValue("tied")
	assert.Equal(t, "a", v)
	assert.Equal(t, 1, count)

	v, count = n.MostCommonValue("absent")
	assert.Equal(t, "", v)
	assert.Equal(t, 0, count)
}

func TestMedianTime(t *testing.T) {
	n := &AggregationNode{Times: []time.Time{
		testBase.Add(30 * time.Second),
		testBase,
		testBase.Add(10 * time.Second),
	}}
	assert.Equal(t, testBase.Add(10*time.Second), n.MedianTime())

	empty := &AggregationNode{}
	assert.True(t, empty.MedianTime().IsZero())
}

func TestPrune(t *testing.T) {
	sessions := []models.Session{
		sess("s1", ev("newSession", 0, nil), ev("levelStart", 1, nil)),
		sess("s2", ev("newSession", 0, nil), ev("levelStart", 1, nil)),
		sess("s3", ev("newSession", 0, nil), ev("levelStart", 1, nil)),
		sess("s4", ev("newSession", 0, nil), ev("settings", 1, nil)),
	}
	root := NewTreeBuilder(nil).Build(sessions)
	root = Prune(root, 50)

	require.Len(t, root.Children, 1)
	assert.Equal(t, "levelStart", root.Children[0].EventID)
}
