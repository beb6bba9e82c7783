package analysis

import "time"

type Quality string

const (
	QualityPoor      Quality = "poor"
	QualityOK        Quality = "ok"
	QualityGood      Quality = "good"
	QualityExcellent Quality = "excellent"
)

// Evidence is a quote backing a stage evaluation, optionally anchored to a
// transcript moment in seconds.
type Evidence struct {
	Quote     string   `json:"quote" validate:"required"`
	Timestamp *float64 `json:"timestamp,omitempty" validate:"omitempty,gte=0"`
}

type StageEvaluation struct {
	Present  bool       `json:"present"`
	Quality  Quality    `json:"quality" validate:"oneof=poor ok good excellent"`
	Evidence []Evidence `json:"evidence" validate:"dive"`
	Notes    string     `json:"notes,omitempty"`
}

// Stages is the fixed set of six conversation phases scored on every call.
type Stages struct {
	Introduction        StageEvaluation `json:"introduction"`
	Diagnosis           StageEvaluation `json:"diagnosis"`
	SolutionExplanation StageEvaluation `json:"solutionExplanation"`
	Upsell              StageEvaluation `json:"upsell"`
	MaintenancePlan     StageEvaluation `json:"maintenancePlan"`
	Closing             StageEvaluation `json:"closing"`
}

// StageKeys lists the JSON names of Stages in rubric order.
var StageKeys = []string{
	"introduction",
	"diagnosis",
	"solutionExplanation",
	"upsell",
	"maintenancePlan",
	"closing",
}

// ByKey returns the evaluation for a JSON stage name.
func (s *Stages) ByKey(key string) (*StageEvaluation, bool) {
	switch key {
	case "introduction":
		return &s.Introduction, true
	case "diagnosis":
		return &s.Diagnosis, true
	case "solutionExplanation":
		return &s.SolutionExplanation, true
	case "upsell":
		return &s.Upsell, true
	case "maintenancePlan":
		return &s.MaintenancePlan, true
	case "closing":
		return &s.Closing, true
	}
	return nil, false
}

type Scores struct {
	ComplianceOverall int `json:"complianceOverall" validate:"min=0,max=100"`
	Clarity           int `json:"clarity" validate:"min=0,max=100"`
	Empathy           int `json:"empathy" validate:"min=0,max=100"`
	Professionalism   int `json:"professionalism" validate:"min=0,max=100"`
}

// ScoreKeys lists the JSON names of Scores.
var ScoreKeys = []string{"complianceOverall", "clarity", "empathy", "professionalism"}

type SalesInsight struct {
	Type        string   `json:"type" validate:"required"`
	Description string   `json:"description" validate:"required"`
	Timestamp   *float64 `json:"timestamp,omitempty" validate:"omitempty,gte=0"`
}

type MissedOpportunity struct {
	Description    string   `json:"description" validate:"required"`
	Recommendation string   `json:"recommendation"`
	Timestamp      *float64 `json:"timestamp,omitempty" validate:"omitempty,gte=0"`
}

type ChecklistItem struct {
	ID        string   `json:"id" validate:"required"`
	Label     string   `json:"label" validate:"required"`
	Passed    bool     `json:"passed"`
	Evidence  string   `json:"evidence,omitempty"`
	Timestamp *float64 `json:"timestamp,omitempty" validate:"omitempty,gte=0"`
}

// Analysis is the rubric result attached to a call after a successful run.
type Analysis struct {
	Summary             string              `json:"summary"`
	GeneralFeedback     string              `json:"generalFeedback"`
	Scores              Scores              `json:"scores"`
	CallTypePrediction  string              `json:"callTypePrediction"`
	Stages              Stages              `json:"stages"`
	SalesInsights       []SalesInsight      `json:"salesInsights" validate:"dive"`
	MissedOpportunities []MissedOpportunity `json:"missedOpportunities" validate:"dive"`
	Checklist           []ChecklistItem     `json:"checklist" validate:"unique=ID,dive"`
	CreatedAt           *time.Time          `json:"createdAt,omitempty"`
}

// PresentStages counts stages marked present.
func (a *Analysis) PresentStages() int {
	n := 0
	for _, k := range StageKeys {
		if st, _ := a.Stages.ByKey(k); st.Present {
			n++
		}
	}
	return n
}
