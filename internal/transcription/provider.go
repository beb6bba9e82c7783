package transcription

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Provider is the transcription port used by the call pipeline.
//
// Rules:
// - No vendor HTTP calls outside adapters.
// - Adapters return provider-agnostic types; speaker roles are already resolved
//   on any Transcript they return.
type Provider interface {
	Name() string

	StartJob(ctx context.Context, req JobRequest) (JobHandle, error)

	// VerifyWebhook reports whether signature authenticates raw.
	VerifyWebhook(signature string, raw []byte) bool
	ParseWebhook(raw []byte) (WebhookEvent, error)

	JobStatus(ctx context.Context, jobID string) (JobResult, error)
}

type JobRequest struct {
	AudioURL          string
	WebhookURL        string
	LanguageCode      string
	EnableDiarization bool
}

type JobHandle struct {
	JobID  string    `json:"jobId"`
	Status JobStatus `json:"status,omitempty"`
}

// WebhookEvent is a parsed provider callback.
type WebhookEvent struct {
	JobID      string      `json:"jobId"`
	Status     JobStatus   `json:"status"`
	Transcript *Transcript `json:"transcript,omitempty"`
	Error      string      `json:"error,omitempty"`
}

type JobResult struct {
	Status     JobStatus   `json:"status"`
	Transcript *Transcript `json:"transcript,omitempty"`
	Error      string      `json:"error,omitempty"`
}

var (
	ErrInvalidPayload = errors.New("transcription: invalid webhook payload")
	ErrJobNotFound    = errors.New("transcription: job not found")
)

// genericPayload is the provider-neutral callback body:
// {jobId, status, transcript?, error?}.
type genericPayload struct {
	JobID      string      `json:"jobId"`
	Status     string      `json:"status"`
	Transcript *Transcript `json:"transcript,omitempty"`
	Error      string      `json:"error,omitempty"`
}

// ParseGenericWebhook decodes the provider-neutral callback body.
func ParseGenericWebhook(raw []byte) (WebhookEvent, error) {
	var p genericPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return WebhookEvent{}, ErrInvalidPayload
	}
	if strings.TrimSpace(p.JobID) == "" || strings.TrimSpace(p.Status) == "" {
		return WebhookEvent{}, ErrInvalidPayload
	}
	// Transcript content is checked on ingestion so a bad transcript fails
	// the call instead of bouncing the delivery.
	return WebhookEvent{
		JobID:      p.JobID,
		Status:     NormalizeStatus(p.Status),
		Transcript: p.Transcript,
		Error:      p.Error,
	}, nil
}
