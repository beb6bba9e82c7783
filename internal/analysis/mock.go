package analysis

import (
	"context"
	"fmt"
	"strings"

	"callqa/internal/transcription"
)

// Mock derives a deterministic rubric result from keywords in the transcript.
// It is the reference analyzer when no model credentials are configured.
type Mock struct{}

var stageKeywords = map[string][]string{
	"introduction":        {"this is", "my name", "with ", "from "},
	"diagnosis":           {"when did", "how long", "have you", "what happens", "?"},
	"solutionExplanation": {"the problem", "is dirty", "needs to be", "i can", "we can", "replace", "clean"},
	"upsell":              {"upgrade", "also offer", "we also have", "add-on", "new unit"},
	"maintenancePlan":     {"maintenance plan", "membership", "tune-up", "service plan"},
	"closing":             {"walk you through", "anything else", "thank you", "thanks for", "next steps"},
}

func (Mock) Analyze(_ context.Context, in Input) (*Analysis, error) {
	segs := in.Segments
	if len(segs) == 0 && strings.TrimSpace(in.FullText) != "" {
		segs = []transcription.Segment{{Speaker: transcription.SpeakerTech, Text: in.FullText}}
	}

	a := &Analysis{
		CallTypePrediction:  predictCallType(in),
		SalesInsights:       []SalesInsight{},
		MissedOpportunities: []MissedOpportunity{},
	}

	present := 0
	for _, k := range StageKeys {
		st, _ := a.Stages.ByKey(k)
		*st = evaluateStage(segs, stageKeywords[k])
		if st.Present {
			present++
			continue
		}
		a.MissedOpportunities = append(a.MissedOpportunities, MissedOpportunity{
			Description:    fmt.Sprintf("No %s stage detected.", humanize(k)),
			Recommendation: fmt.Sprintf("Add a clear %s step to the call.", humanize(k)),
		})
	}

	for _, k := range StageKeys {
		st, _ := a.Stages.ByKey(k)
		item := ChecklistItem{ID: snake(k), Label: strings.ToUpper(humanize(k)[:1]) + humanize(k)[1:], Passed: st.Present}
		if len(st.Evidence) > 0 {
			item.Evidence = st.Evidence[0].Quote
			item.Timestamp = st.Evidence[0].Timestamp
		}
		a.Checklist = append(a.Checklist, item)
	}

	if a.Stages.Upsell.Present || a.Stages.MaintenancePlan.Present {
		ev := a.Stages.MaintenancePlan.Evidence
		if len(ev) == 0 {
			ev = a.Stages.Upsell.Evidence
		}
		a.SalesInsights = append(a.SalesInsights, SalesInsight{
			Type:        "offer",
			Description: "Technician presented an additional service.",
			Timestamp:   ev[0].Timestamp,
		})
	}

	compliance := present * 100 / len(StageKeys)
	a.Scores = Scores{
		ComplianceOverall: compliance,
		Clarity:           clamp(60 + present*6),
		Empathy:           clamp(55 + present*5),
		Professionalism:   clamp(65 + present*5),
	}
	a.Summary = fmt.Sprintf("%d of %d call stages detected across %d transcript segments.", present, len(StageKeys), len(segs))
	a.GeneralFeedback = feedback(present)
	return a, nil
}

func evaluateStage(segs []transcription.Segment, keywords []string) StageEvaluation {
	ev := StageEvaluation{Quality: QualityPoor, Evidence: []Evidence{}}
	for _, s := range segs {
		if s.Speaker == transcription.SpeakerCustomer {
			continue
		}
		text := strings.ToLower(s.Text)
		for _, kw := range keywords {
			if !strings.Contains(text, kw) {
				continue
			}
			ts := s.Start
			ev.Evidence = append(ev.Evidence, Evidence{Quote: strings.TrimSpace(s.Text), Timestamp: &ts})
			break
		}
	}
	switch n := len(ev.Evidence); {
	case n == 0:
		return ev
	case n == 1:
		ev.Quality = QualityOK
	case n == 2:
		ev.Quality = QualityGood
	default:
		ev.Quality = QualityExcellent
	}
	ev.Present = true
	return ev
}

func predictCallType(in Input) string {
	if in.Metadata.CallType != "" {
		return in.Metadata.CallType
	}
	text := strings.ToLower(in.FullText)
	switch {
	case strings.Contains(text, "install"):
		return "installation"
	case strings.Contains(text, "tune-up") || strings.Contains(text, "maintenance"):
		return "maintenance"
	case strings.Contains(text, "estimate") || strings.Contains(text, "quote"):
		return "estimate"
	default:
		return "repair"
	}
}

func feedback(present int) string {
	switch {
	case present == len(StageKeys):
		return "Complete call flow. Keep it up."
	case present >= 4:
		return "Solid call. Cover the missing stages to reach full compliance."
	default:
		return "Several stages were skipped. Follow the six-stage call process."
	}
}

func humanize(key string) string {
	var b strings.Builder
	for i, r := range key {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte(' ')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}

func snake(key string) string {
	return strings.ReplaceAll(humanize(key), " ", "_")
}

func clamp(n int) int {
	if n < 0 {
		return 0
	}
	if n > 100 {
		return 100
	}
	return n
}
