// api/internal/models/reports.go
package models

// PropertyType classifies a dynamic event field.
type PropertyType string

const (
	PropertyNumeric     PropertyType = "numeric"
	PropertyBoolean     PropertyType = "boolean"
	PropertyCategorical PropertyType = "categorical"
	PropertyNull        PropertyType = "null"
)

// PropertyDescriptor is the discovered shape of one dynamic field.
type PropertyDescriptor struct {
	Name             string       `json:"name"`
	Type             PropertyType `json:"type"`
	SampleValues     []any        `json:"sampleValues"`
	EventTypesSeen   []string     `json:"eventTypesSeen"`
	TotalOccurrences int          `json:"totalOccurrences"`
}

// StepStat is the per-funnel-step slice of a churn report. Rates are
// percentages of the total session count.
type StepStat struct {
	EventID               string  `json:"eventId"`
	StepIndex             int     `json:"stepIndex"`
	ConvertedSessionCount int     `json:"convertedSessionCount"`
	ConversionRate        float64 `json:"conversionRate"`
	ChurnRate             float64 `json:"churnRate"`
	ChurnedSessionCount   int     `json:"churnedSessionCount"`
	AvgTimeToReachSec     float64 `json:"avgTimeToReachSec"`
}

// ChurnReport is the per-step conversion/churn summary for one funnel over
// one session batch.
type ChurnReport struct {
	TotalSessions         int        `json:"totalSessions"`
	FunnelSteps           []StepStat `json:"funnelSteps"`
	CriticalPoints        []StepStat `json:"criticalPoints"`
	OverallConversionRate float64    `json:"overallConversionRate"`
}

// CategoryImpact compares how often converted vs churned sessions carry a
// categorical value.
type CategoryImpact struct {
	Value         string  `json:"value"`
	ConvertedRate float64 `json:"convertedRate"`
	ChurnedRate   float64 `json:"churnedRate"`
	Impact        float64 `json:"impact"`
}

// PropertyImpact measures how one property differs between the sessions
// that pass a step and those that churn there. Which fields are populated
// depends on Type.
type PropertyImpact struct {
	Property      string       `json:"property"`
	Type          PropertyType `json:"type"`
	ConvertedMean float64      `json:"convertedMean,omitempty"`
	ChurnedMean   float64      `json:"churnedMean,omitempty"`
	ImpactPercent float64      `json:"impactPercent,omitempty"`
	Significance  string       `json:"significance,omitempty"`
	ConvertedTrue float64      `json:"convertedTrueRate,omitempty"`
	ChurnedTrue   float64      `json:"churnedTrueRate,omitempty"`
	TrueRateDiff  float64      `json:"trueRateDiff,omitempty"`
	// Categories is sorted by absolute impact, largest first.
	Categories []CategoryImpact `json:"categories,omitempty"`
}

// StepPropertyImpact groups property impacts under one funnel step.
type StepPropertyImpact struct {
	EventID   string           `json:"eventId"`
	StepIndex int              `json:"stepIndex"`
	Impacts   []PropertyImpact `json:"impacts"`
}

// ValueBucket is one histogram bin or category bucket, split by cohort.
type ValueBucket struct {
	Label          string `json:"label"`
	ConvertedCount int    `json:"convertedCount"`
	ChurnedCount   int    `json:"churnedCount"`
}

// ValueDistribution is the converted-vs-churned distribution of one
// property at one funnel step.
type ValueDistribution struct {
	EventID   string        `json:"eventId"`
	StepIndex int           `json:"stepIndex"`
	Property  string        `json:"property"`
	Type      PropertyType  `json:"type"`
	Buckets   []ValueBucket `json:"buckets"`
}

// FeatureScore is a mean-difference importance score for one session
// feature. Direction is the sign of (converted mean - churned mean).
type FeatureScore struct {
	Feature    string  `json:"feature"`
	Importance float64 `json:"importance"`
	Direction  int     `json:"direction"`
}

// ImportanceReport ranks session features by how differently they average
// across converted and churned sessions. Accuracy is the majority-class
// baseline; this is a heuristic score, not a trained model.
type ImportanceReport struct {
	ConvertedCount int            `json:"convertedCount"`
	ChurnedCount   int            `json:"churnedCount"`
	Accuracy       float64        `json:"accuracy"`
	Features       []FeatureScore `json:"features"`
}
