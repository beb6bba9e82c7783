package transcription

import (
	"fmt"
	"strings"
)

// Speaker is the semantic role attached to a transcript segment.
// Providers only know anonymous diarization tags; roles are derived.
type Speaker string

const (
	SpeakerTech     Speaker = "tech"
	SpeakerCustomer Speaker = "customer"
	SpeakerUnknown  Speaker = "unknown"
)

// ParseSpeaker maps free-form role labels onto the three known roles.
func ParseSpeaker(s string) Speaker {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "tech", "technician", "agent":
		return SpeakerTech
	case "customer", "client", "caller":
		return SpeakerCustomer
	default:
		return SpeakerUnknown
	}
}

// Segment is one chronologically ordered span of speech. Times are seconds.
type Segment struct {
	Start   float64 `json:"start" validate:"gte=0"`
	End     float64 `json:"end" validate:"gtefield=Start"`
	Speaker Speaker `json:"speaker" validate:"oneof=tech customer unknown"`
	Text    string  `json:"text"`
}

// Transcript is immutable once attached to a call.
type Transcript struct {
	Text       string    `json:"text"`
	Segments   []Segment `json:"segments" validate:"dive"`
	Provider   string    `json:"provider" validate:"required"`
	Confidence *float64  `json:"confidence,omitempty" validate:"omitempty,gte=0,lte=1"`
}

// Validate checks segment bounds and speaker values. Unknown speaker labels are
// coerced to SpeakerUnknown before the check so only timing errors fail.
func (t *Transcript) Validate() error {
	if t == nil {
		return fmt.Errorf("transcription: transcript is nil")
	}
	for i := range t.Segments {
		t.Segments[i].Speaker = ParseSpeaker(string(t.Segments[i].Speaker))
	}
	if strings.TrimSpace(t.Provider) == "" {
		t.Provider = "other"
	}
	if t.Text == "" && len(t.Segments) > 0 {
		t.Text = JoinText(t.Segments)
	}
	return validate.Struct(t)
}

// JoinText concatenates segment text with single spaces.
func JoinText(segs []Segment) string {
	parts := make([]string, 0, len(segs))
	for _, s := range segs {
		if txt := strings.TrimSpace(s.Text); txt != "" {
			parts = append(parts, txt)
		}
	}
	return strings.Join(parts, " ")
}

// JobStatus is the provider-agnostic job lifecycle.
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// NormalizeStatus maps vendor status strings onto JobStatus.
func NormalizeStatus(s string) JobStatus {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "completed", "complete", "success", "succeeded", "done":
		return JobStatusCompleted
	case "error", "failed", "failure":
		return JobStatusFailed
	case "processing", "in_progress", "running":
		return JobStatusProcessing
	default:
		return JobStatusQueued
	}
}

func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}
