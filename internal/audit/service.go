package audit

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for audit events. It is append-only.
type Repository interface {
	Append(ctx context.Context, e Event) error
	ListByCall(ctx context.Context, callID string) ([]Event, error)
}

// Service records call lifecycle events. Recording is best-effort: failures
// are logged and never returned to the pipeline.
type Service struct {
	repo  Repository
	clock func() time.Time
	log   *slog.Logger
}

func NewService(repo Repository, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{repo: repo, clock: time.Now, log: log.With("component", "audit")}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s == nil || s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.CallID == "" || e.Type == "" {
		return ErrInvalidEvent
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}
	return s.repo.Append(ctx, e)
}

// Record appends e and logs instead of failing.
func (s *Service) Record(ctx context.Context, e Event) {
	if s == nil {
		return
	}
	if err := s.Append(ctx, e); err != nil {
		s.log.Warn("audit append failed", "call_id", e.CallID, "type", e.Type, "err", err)
	}
}

func (s *Service) StatusChanged(ctx context.Context, callID, userID, from, to, message string) {
	s.Record(ctx, Event{
		CallID:     callID,
		UserID:     userID,
		Type:       EventTypeStatusChanged,
		FromStatus: from,
		ToStatus:   to,
		Message:    message,
	})
}

// IngestDecision records how a webhook or poll delivery was handled.
func (s *Service) IngestDecision(ctx context.Context, callID, jobID, source, outcome string) {
	meta, _ := json.Marshal(map[string]string{"source": source, "outcome": outcome})
	s.Record(ctx, Event{
		CallID:   callID,
		Type:     EventTypeIngestDecision,
		JobID:    jobID,
		Message:  outcome,
		Metadata: string(meta),
	})
}

func (s *Service) History(ctx context.Context, callID string) ([]Event, error) {
	if s == nil || s.repo == nil {
		return nil, errors.New("audit: repository not configured")
	}
	return s.repo.ListByCall(ctx, callID)
}
