package reporting

import "time"

// TimeRange filters calls by creation time. A zero bound is open.
type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

func (r TimeRange) contains(t time.Time) bool {
	if !r.From.IsZero() && t.Before(r.From) {
		return false
	}
	if !r.To.IsZero() && !t.Before(r.To) {
		return false
	}
	return true
}

type SummaryRequest struct {
	UserID string    `json:"userId"`
	Range  TimeRange `json:"range"`
}

// Summary aggregates QA results over one user's calls.
type Summary struct {
	UserID string `json:"userId"`

	TotalCalls      int            `json:"totalCalls"`
	ByStatus        map[string]int `json:"byStatus"`
	AnalyzedCalls   int            `json:"analyzedCalls"`
	FailedCalls     int            `json:"failedCalls"`
	InProgressCalls int            `json:"inProgressCalls"`

	TotalDurationSeconds   float64 `json:"totalDurationSeconds"`
	AverageDurationSeconds float64 `json:"averageDurationSeconds"`

	// Averages over analyzed calls only.
	AverageScores AverageScores `json:"averageScores"`

	// StagePresence is the share of analyzed calls in which each stage was
	// present, keyed by stage key.
	StagePresence map[string]float64 `json:"stagePresence"`

	// CallTypes counts predicted call types; SalesInsights counts insight
	// types. Both are sorted by count, then name.
	CallTypes     []CategoryCount `json:"callTypes"`
	SalesInsights []CategoryCount `json:"salesInsights"`

	MissedOpportunities int `json:"missedOpportunities"`
}

type AverageScores struct {
	ComplianceOverall float64 `json:"complianceOverall"`
	Clarity           float64 `json:"clarity"`
	Empathy           float64 `json:"empathy"`
	Professionalism   float64 `json:"professionalism"`
}

type CategoryCount struct {
	Category string `json:"category"`
	Count    int    `json:"count"`
}
