package engine

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"questmetrics/api/models"
)

func TestValueDistributionsNumericBuckets(t *testing.T) {
	// 9 sessions with bet values 1..9 at the only step; 4 convert
	var sessions []models.Session
	for i := 1; i <= 9; i++ {
		events := []models.EventRecord{
			ev("spin", 0, models.Attributes{"bet": float64(i)}),
		}
		if i <= 4 {
			events = append(events, ev("cashout", 5, nil))
		}
		sessions = append(sessions, models.Session{ID: fmt.Sprintf("s%d", i), Events: events})
	}
	steps := []models.FunnelStep{step("spin"), step("cashout")}
	props := DiscoverProperties(sessions)

	dists := ChurnAnalyzer{}.ValueDistributions(sessions, steps, props)
	require.NotEmpty(t, dists)

	var betDist *models.ValueDistribution
	for i := range dists {
		if dists[i].Property == "bet" && dists[i].StepIndex == 0 {
			betDist = &dists[i]
		}
	}
	require.NotNil(t, betDist)

	// n=9 -> ceil(sqrt(9)) = 3 buckets
	assert.Len(t, betDist.Buckets, 3)

	var conv, churn int
	for _, b := range betDist.Buckets {
		conv += b.ConvertedCount
		churn += b.ChurnedCount
	}
	assert.Equal(t, 4, conv)
	assert.Equal(t, 5, churn)
}

func TestValueDistributionsBucketCountCap(t *testing.T) {
	var sessions []models.Session
	for i := 0; i < 200; i++ {
		sessions = append(sessions, sess(fmt.Sprintf("s%d", i),
			ev("spin", 0, models.Attributes{"bet": float64(i)}),
		))
	}
	steps := []models.FunnelStep{step("spin")}
	props := DiscoverProperties(sessions)

	dists := ChurnAnalyzer{}.ValueDistributions(sessions, steps, props)
	require.Len(t, dists, 1)
	assert.Len(t, dists[0].Buckets, 10, "bucket count caps at 10")
}

func TestValueDistributionsSingleValue(t *testing.T) {
	sessions := []models.Session{
		sess("s1", ev("spin", 0, models.Attributes{"bet": float64(7)})),
		sess("s2", ev("spin", 0, models.Attributes{"bet": float64(7)})),
	}
	steps := []models.FunnelStep{step("spin")}
	props := DiscoverProperties(sessions)

	dists := ChurnAnalyzer{}.ValueDistributions(sessions, steps, props)
	require.Len(t, dists, 1)
	require.Len(t, dists[0].Buckets, 1)
	assert.Equal(t, 2, dists[0].Buckets[0].ConvertedCount)
}

func TestValueDistributionsCategoricalTop20(t *testing.T) {
	var sessions []models.Session
	for i := 0; i < 30; i++ {
		sessions = append(sessions, sess(fmt.Sprintf("s%d", i),
			ev("spin", 0, models.Attributes{"theme": fmt.Sprintf("theme-%02d", i)}),
		))
	}
	// make one theme dominant
	for i := 0; i < 5; i++ {
		sessions = append(sessions, sess(fmt.Sprintf("x%d", i),
			ev("spin", 0, models.Attributes{"theme": "theme-00"}),
		))
	}
	steps := []models.FunnelStep{step("spin")}
	props := DiscoverProperties(sessions)

	dists := ChurnAnalyzer{}.ValueDistributions(sessions, steps, props)
	require.Len(t, dists, 1)
	assert.Len(t, dists[0].Buckets, 20, "categorical buckets cap at top 20")
	assert.Equal(t, "theme-00", dists[0].Buckets[0].Label)
}

func TestValueDistributionsBooleanBuckets(t *testing.T) {
	sessions := []models.Session{
		sess("s1", ev("spin", 0, models.Attributes{"auto": true}), ev("cashout", 5, nil)),
		sess("s2", ev("spin", 0, models.Attributes{"auto": false})),
	}
	steps := []models.FunnelStep{step("spin"), step("cashout")}
	props := DiscoverProperties(sessions)

	dists := ChurnAnalyzer{}.ValueDistributions(sessions, steps, props)
	require.NotEmpty(t, dists)

	labels := map[string]bool{}
	for _, b := range dists[0].Buckets {
		labels[b.Label] = true
	}
	assert.True(t, labels["true"])
	assert.True(t, labels["false"])
}
