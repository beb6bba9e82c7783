package transcription

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"callqa/internal/llm"
)

// RoleResolver maps anonymous diarization tags to semantic roles.
// Implementations must not fail: role inference never aborts the pipeline.
type RoleResolver interface {
	Resolve(ctx context.Context, segs []TaggedSegment) map[string]Speaker
}

// PositionalRoles assumes the first tag heard is the technician and every
// other tag is the customer.
type PositionalRoles struct{}

func (PositionalRoles) Resolve(_ context.Context, segs []TaggedSegment) map[string]Speaker {
	return rolesWithTech(Tags(segs), "")
}

func rolesWithTech(tags []string, tech string) map[string]Speaker {
	out := make(map[string]Speaker, len(tags))
	if tech == "" && len(tags) > 0 {
		tech = tags[0]
	}
	for _, t := range tags {
		if t == tech {
			out[t] = SpeakerTech
			continue
		}
		out[t] = SpeakerCustomer
	}
	return out
}

const (
	roleSamplesPerTag = 6
	roleSampleChars   = 240
)

// LLMRoles classifies tags by what each speaker says, using a language model.
// Any failure falls back to PositionalRoles.
type LLMRoles struct {
	Client llm.Client
	Log    *slog.Logger
}

const rolesSystemPrompt = `You label speakers in a phone call between a field-service technician (or office dispatcher acting for the technician's company) and a customer.
The technician typically introduces themselves and the company, asks diagnostic questions, explains repairs, quotes prices, and schedules visits.
The customer describes the problem, asks about cost, and agrees to or declines work.
Respond with a JSON object: {"technicianSpeaker": "<one of the given speaker labels>"}.`

type rolesAnswer struct {
	TechnicianSpeaker string `json:"technicianSpeaker"`
}

func (r LLMRoles) Resolve(ctx context.Context, segs []TaggedSegment) map[string]Speaker {
	tags := Tags(segs)
	fallback := func(reason string, err error) map[string]Speaker {
		if r.Log != nil {
			r.Log.Warn("speaker role inference fell back to positional", "reason", reason, "err", err)
		}
		return rolesWithTech(tags, "")
	}

	if len(tags) < 2 {
		return rolesWithTech(tags, "")
	}
	if r.Client == nil {
		return fallback("no_client", nil)
	}

	content, err := r.Client.Complete(ctx, llm.Request{
		System:      rolesSystemPrompt,
		User:        rolesUserPrompt(segs, tags),
		Temperature: 0,
	})
	if err != nil {
		return fallback("llm_error", err)
	}

	var ans rolesAnswer
	if err := json.Unmarshal([]byte(llm.ExtractJSON(content)), &ans); err != nil {
		return fallback("malformed_response", err)
	}
	tech := strings.TrimSpace(ans.TechnicianSpeaker)
	for _, t := range tags {
		if strings.EqualFold(t, tech) {
			return rolesWithTech(tags, t)
		}
	}
	return fallback("unknown_speaker", fmt.Errorf("model answered %q", ans.TechnicianSpeaker))
}

func rolesUserPrompt(segs []TaggedSegment, tags []string) string {
	samples := make(map[string][]string, len(tags))
	for _, s := range segs {
		if len(samples[s.Tag]) >= roleSamplesPerTag {
			continue
		}
		txt := truncateRunes(strings.TrimSpace(s.Text), roleSampleChars)
		if txt == "" {
			continue
		}
		samples[s.Tag] = append(samples[s.Tag], txt)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Speaker labels: %s\n\n", strings.Join(tags, ", "))
	for _, t := range tags {
		fmt.Fprintf(&b, "Speaker %s:\n", t)
		for _, line := range samples[t] {
			fmt.Fprintf(&b, "- %s\n", line)
		}
		b.WriteByte('\n')
	}
	b.WriteString("Which speaker label is the technician?")
	return b.String()
}

// truncateRunes cuts s to at most n runes.
func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
