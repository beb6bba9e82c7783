package reporting

import (
	"context"
	"errors"
	"sort"
	"strings"

	"callqa/internal/analysis"
	"callqa/internal/calls"
)

var ErrInvalidRequest = errors.New("reporting: invalid request")

// Repository is the read side reporting needs. calls.MemoryRepo and
// calls.PostgresRepo satisfy it.
type Repository interface {
	ListByUser(ctx context.Context, userID string) ([]*calls.Call, error)
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service { return &Service{repo: repo} }

// Summary aggregates a user's calls. Score and stage figures only count
// calls with an attached analysis.
func (s *Service) Summary(ctx context.Context, req SummaryRequest) (Summary, error) {
	if strings.TrimSpace(req.UserID) == "" {
		return Summary{}, ErrInvalidRequest
	}
	if !req.Range.From.IsZero() && !req.Range.To.IsZero() && !req.Range.To.After(req.Range.From) {
		return Summary{}, ErrInvalidRequest
	}
	if s.repo == nil {
		return Summary{}, errors.New("reporting: repository not configured")
	}

	rows, err := s.repo.ListByUser(ctx, req.UserID)
	if err != nil {
		return Summary{}, err
	}

	out := Summary{
		UserID:        req.UserID,
		ByStatus:      map[string]int{},
		StagePresence: map[string]float64{},
	}
	var (
		withDuration int
		scores       AverageScores
		stages       = map[string]int{}
		callTypes    = map[string]int{}
		insights     = map[string]int{}
	)
	for _, c := range rows {
		if !req.Range.contains(c.CreatedAt) {
			continue
		}
		out.TotalCalls++
		out.ByStatus[string(c.Status)]++
		switch c.Status {
		case calls.StatusFailed:
			out.FailedCalls++
		case calls.StatusUploading, calls.StatusTranscribing, calls.StatusTranscribed, calls.StatusAnalyzing:
			out.InProgressCalls++
		}
		if c.DurationSec != nil {
			out.TotalDurationSeconds += *c.DurationSec
			withDuration++
		}

		a := c.Analysis
		if a == nil {
			continue
		}
		out.AnalyzedCalls++
		scores.ComplianceOverall += float64(a.Scores.ComplianceOverall)
		scores.Clarity += float64(a.Scores.Clarity)
		scores.Empathy += float64(a.Scores.Empathy)
		scores.Professionalism += float64(a.Scores.Professionalism)
		for _, k := range analysis.StageKeys {
			if st, ok := a.Stages.ByKey(k); ok && st.Present {
				stages[k]++
			}
		}
		if t := strings.TrimSpace(a.CallTypePrediction); t != "" {
			callTypes[strings.ToLower(t)]++
		}
		for _, in := range a.SalesInsights {
			insights[strings.ToLower(strings.TrimSpace(in.Type))]++
		}
		out.MissedOpportunities += len(a.MissedOpportunities)
	}

	if withDuration > 0 {
		out.AverageDurationSeconds = out.TotalDurationSeconds / float64(withDuration)
	}
	if n := float64(out.AnalyzedCalls); n > 0 {
		out.AverageScores = AverageScores{
			ComplianceOverall: round1(scores.ComplianceOverall / n),
			Clarity:           round1(scores.Clarity / n),
			Empathy:           round1(scores.Empathy / n),
			Professionalism:   round1(scores.Professionalism / n),
		}
		for _, k := range analysis.StageKeys {
			out.StagePresence[k] = float64(stages[k]) / n
		}
	}
	out.CallTypes = ranked(callTypes)
	out.SalesInsights = ranked(insights)
	return out, nil
}

func ranked(m map[string]int) []CategoryCount {
	out := make([]CategoryCount, 0, len(m))
	for k, v := range m {
		out = append(out, CategoryCount{Category: k, Count: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Category < out[j].Category
	})
	return out
}

func round1(v float64) float64 {
	return float64(int64(v*10+0.5)) / 10
}
