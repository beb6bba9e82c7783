package analysis

import (
	"fmt"
	"strings"

	"callqa/internal/transcription"
)

const systemPrompt = `You are a quality-assurance reviewer for a home-services company (HVAC, plumbing, electrical).
You score recorded phone and on-site conversations between a technician and a customer.

Evaluate these six stages. Every stage must appear in "stages" even when it did not happen (present=false, quality="poor"):
- introduction: technician greets, gives their name and the company name, states the purpose of the visit.
- diagnosis: technician asks questions about symptoms, history and equipment before concluding.
- solutionExplanation: technician explains the problem and the proposed fix in plain language, including price.
- upsell: technician offers relevant upgrades or additional services without pressure.
- maintenancePlan: technician offers a maintenance or membership plan.
- closing: technician summarizes, confirms next steps and thanks the customer.

Scores are integers from 0 to 100:
- complianceOverall: how closely the technician followed the six-stage process.
- clarity: how understandable the explanations were.
- empathy: acknowledgement of the customer's situation and concerns.
- professionalism: courtesy, tone and confidence.

Checklist items use stable snake_case ids, each id at most once.
Use transcript timestamps (seconds) for evidence, insights, missed opportunities and checklist items when a moment can be identified; otherwise use null.
Quote the transcript verbatim for evidence. Do not invent statements that are not in the transcript.
Respond with a single JSON object that matches the provided schema.`

const repairInstruction = `Your previous response was rejected because it did not match the required schema.
Error: %s

Return ONLY a JSON object that strictly follows the schema: include all six stages, integer scores between 0 and 100, quality one of poor|ok|good|excellent, and unique checklist ids.`

func userPrompt(in Input) string {
	var b strings.Builder
	b.WriteString("Call metadata:\n")
	if in.Metadata.DurationSec != nil {
		fmt.Fprintf(&b, "- duration: %s\n", clock(*in.Metadata.DurationSec))
	}
	if in.Metadata.CallType != "" {
		fmt.Fprintf(&b, "- suspected call type: %s\n", in.Metadata.CallType)
	}
	fmt.Fprintf(&b, "- segments: %d\n\n", len(in.Segments))

	b.WriteString("Transcript:\n")
	if len(in.Segments) == 0 {
		b.WriteString(in.FullText)
		b.WriteByte('\n')
		return b.String()
	}
	for _, s := range in.Segments {
		fmt.Fprintf(&b, "[%s] %s: %s\n", clock(s.Start), roleLabel(s.Speaker), strings.TrimSpace(s.Text))
	}
	return b.String()
}

func roleLabel(s transcription.Speaker) string {
	switch s {
	case transcription.SpeakerTech:
		return "TECH"
	case transcription.SpeakerCustomer:
		return "CUSTOMER"
	default:
		return "UNKNOWN"
	}
}

// clock formats seconds as mm:ss.
func clock(sec float64) string {
	if sec < 0 {
		sec = 0
	}
	total := int(sec)
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}
