package domain

import "strings"

// Metric names as they appear in scorecard responses.
const (
	MetricDeploymentFrequency = "deploymentFrequency"
	MetricLeadTime            = "leadTime"
	MetricChangeFailureRate   = "changeFailureRate"
	MetricMTTR                = "mttr"
)

// Performance tiers, ordered Elite > High > Medium > Low.
const (
	TierElite  = "Elite"
	TierHigh   = "High"
	TierMedium = "Medium"
	TierLow    = "Low"
)

// Deployment conclusions derived from the latest deployment status.
const (
	ConclusionSuccess = "success"
	ConclusionFailure = "failure"
	ConclusionPending = "pending"
)

// Deployment is one production deployment observed on a repository.
type Deployment struct {
	CreatedAt  string `json:"created_at"`
	Conclusion string `json:"conclusion"`
}

// PullRequest is a closed PR against the main branch. MergedAt is nil for
// PRs closed without merging.
type PullRequest struct {
	CreatedAt string  `json:"created_at"`
	MergedAt  *string `json:"merged_at"`
}

// Issue is a failure-labeled issue. ClosedAt is nil while still open.
type Issue struct {
	CreatedAt string  `json:"created_at"`
	ClosedAt  *string `json:"closed_at"`
}

// RawData holds everything fetched for one service in one sync cycle.
// It is never persisted; daily aggregates are derived from it.
type RawData struct {
	Deployments []Deployment
	PRs         []PullRequest
	Issues      []Issue
}

// DailyMetrics is one day's aggregate for a service.
type DailyMetrics struct {
	DeploymentCount int
	FailureCount    int
	LeadTimeSeconds int
	MTTRSeconds     int
}

// Targets are per-service goal values, in scorecard units
// (deploys/week, hours, percent, minutes).
type Targets struct {
	DeploymentFrequency float64 `json:"deploymentFrequency"`
	LeadTime            float64 `json:"leadTime"`
	ChangeFailureRate   float64 `json:"changeFailureRate"`
	MTTR                float64 `json:"mttr"`
}

// MetricData is one metric's slice of a scorecard.
type MetricData struct {
	Current  float64 `json:"current"`
	Previous float64 `json:"previous"`
	Change   float64 `json:"change"`
	Target   float64 `json:"target"`
	Tier     string  `json:"tier"`
	History  []int   `json:"history"`
}

type ScorecardMetrics struct {
	DeploymentFrequency MetricData `json:"deploymentFrequency"`
	LeadTime            MetricData `json:"leadTime"`
	ChangeFailureRate   MetricData `json:"changeFailureRate"`
	MTTR                MetricData `json:"mttr"`
}

type Scorecard struct {
	Service      string           `json:"service"`
	Period       string           `json:"period"`
	Metrics      ScorecardMetrics `json:"metrics"`
	OverallScore int              `json:"overallScore"`
	OverallTier  string           `json:"overallTier"`
}

// ServiceRef maps a catalog component to its repository coordinate ("org/repo").
// Repo is empty when the component carries no usable repository annotation.
type ServiceRef struct {
	Name string
	Repo string
}

// EntityRef is the catalog-style key used for all stored rows.
func EntityRef(name string) string {
	return strings.ToLower("component:default/" + name)
}
