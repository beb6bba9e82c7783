package calls

import (
	"time"

	"callqa/internal/analysis"
	"callqa/internal/transcription"
)

// Call is one uploaded recording and its full processing record. It owns its
// Transcript and Analysis; deleting the call deletes both.
//
// Invariants:
//   - Transcript is set exactly once, on the transcribing -> transcribed edge.
//   - Analysis is set only when Status is complete.
//   - TranscriptionJobID is non-nil iff a job was ever started.
type Call struct {
	ID     string `json:"id"`
	UserID string `json:"userId"`

	// AudioPath is the storage locator; immutable once set.
	AudioPath   string   `json:"audioPath"`
	DurationSec *float64 `json:"durationSec,omitempty"`

	Status             Status  `json:"status"`
	TranscriptionJobID *string `json:"transcriptionJobId,omitempty"`

	// FailureReason is operator-facing detail for the last failure.
	FailureReason string `json:"failureReason,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	Transcript *transcription.Transcript `json:"transcript,omitempty"`
	Analysis   *analysis.Analysis        `json:"analysis,omitempty"`
}

type Status string

const (
	StatusCreated      Status = "created"
	StatusUploading    Status = "uploading"
	StatusTranscribing Status = "transcribing"
	StatusTranscribed  Status = "transcribed"
	StatusAnalyzing    Status = "analyzing"
	StatusComplete     Status = "complete"
	StatusFailed       Status = "failed"
)

// transitions lists the edges of the call state machine. Analysis may be
// re-run manually from complete or failed once a transcript exists.
var transitions = map[Status][]Status{
	StatusCreated:      {StatusUploading, StatusTranscribing},
	StatusUploading:    {StatusTranscribing},
	StatusTranscribing: {StatusTranscribed, StatusFailed},
	StatusTranscribed:  {StatusAnalyzing},
	StatusAnalyzing:    {StatusComplete, StatusFailed},
	StatusComplete:     {StatusAnalyzing},
	StatusFailed:       {StatusAnalyzing},
}

// CanTransition reports whether from -> to is a valid edge.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// clone returns a copy safe to hand out of a repository. Transcript and
// Analysis are immutable once attached, so they are shared.
func (c *Call) clone() *Call {
	cp := *c
	if c.DurationSec != nil {
		d := *c.DurationSec
		cp.DurationSec = &d
	}
	if c.TranscriptionJobID != nil {
		j := *c.TranscriptionJobID
		cp.TranscriptionJobID = &j
	}
	return &cp
}

func (c *Call) jobID() string {
	if c.TranscriptionJobID == nil {
		return ""
	}
	return *c.TranscriptionJobID
}
