package calls

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"callqa/internal/analysis"
	"callqa/internal/audit"
	"callqa/internal/metrics"
	"callqa/internal/storage"
	"callqa/internal/transcription"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Deps are the collaborators of the pipeline. Variants (real vendor or
// reference adapter) are chosen by the caller at construction.
type Deps struct {
	Repo        Repository
	Storage     storage.Provider
	Transcriber transcription.Provider
	Analyzer    analysis.Analyzer
	Ledger      JobLedger

	Audit   *audit.Service
	Metrics *metrics.Metrics
	Log     *slog.Logger
}

type Options struct {
	// WebhookURL is handed to the transcription provider as the callback.
	WebhookURL   string
	LanguageCode string

	// EnforceWebhookAuth rejects unauthenticated callbacks. Outside
	// production a failed check is logged and bypassed.
	EnforceWebhookAuth bool

	Dispatcher DispatcherConfig
}

// Service is the call orchestrator: it drives a call through
// upload -> transcription -> analysis and maps failures onto call status.
type Service struct {
	repo        Repository
	storage     storage.Provider
	transcriber transcription.Provider
	analyzer    analysis.Analyzer
	ledger      JobLedger
	audit       *audit.Service
	metrics     *metrics.Metrics
	log         *slog.Logger
	opts        Options
	now         func() time.Time

	dispatcher *Dispatcher
}

func NewService(d Deps, opts Options) (*Service, error) {
	var missing []string
	if d.Repo == nil {
		missing = append(missing, "repository")
	}
	if d.Storage == nil {
		missing = append(missing, "storage")
	}
	if d.Transcriber == nil {
		missing = append(missing, "transcriber")
	}
	if d.Analyzer == nil {
		missing = append(missing, "analyzer")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing %s", ErrServerConfiguration, strings.Join(missing, ", "))
	}
	if d.Ledger == nil {
		d.Ledger = NewMemoryJobLedger()
	}
	if d.Log == nil {
		d.Log = slog.Default()
	}
	if opts.LanguageCode == "" {
		opts.LanguageCode = "en_us"
	}

	s := &Service{
		repo:        d.Repo,
		storage:     d.Storage,
		transcriber: d.Transcriber,
		analyzer:    d.Analyzer,
		ledger:      d.Ledger,
		audit:       d.Audit,
		metrics:     d.Metrics,
		log:         d.Log.With("component", "calls"),
		opts:        opts,
		now:         time.Now,
	}
	s.dispatcher = NewDispatcher(s.runQueuedAnalysis, opts.Dispatcher, d.Log, d.Metrics)
	return s, nil
}

// Close drains queued analysis work.
func (s *Service) Close(ctx context.Context) error {
	return s.dispatcher.Close(ctx)
}

// WaitForAnalysis blocks until all queued analysis runs have finished.
func (s *Service) WaitForAnalysis() {
	s.dispatcher.Wait()
}

type CreateCallInput struct {
	FileName    string   `json:"fileName" validate:"required,max=255"`
	ContentType string   `json:"contentType" validate:"required,startswith=audio/"`
	DurationSec *float64 `json:"durationSec,omitempty" validate:"omitempty,gte=0"`
}

type CreateCallResult struct {
	CallID      string    `json:"callId"`
	UploadURL   string    `json:"uploadUrl"`
	StoragePath string    `json:"storagePath"`
	PublicURL   string    `json:"publicUrl,omitempty"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// CreateCall registers a new call and returns where to upload its audio.
func (s *Service) CreateCall(ctx context.Context, userID string, in CreateCallInput) (CreateCallResult, error) {
	in.FileName = strings.TrimSpace(in.FileName)
	in.ContentType = strings.ToLower(strings.TrimSpace(in.ContentType))
	if err := validateInput(in); err != nil {
		return CreateCallResult{}, err
	}

	callID := uuid.NewString()
	target, err := s.storage.UploadURL(ctx, storage.UploadRequest{
		FileName:    in.FileName,
		ContentType: in.ContentType,
		UserID:      userID,
		CallID:      callID,
	})
	if err != nil {
		s.log.Error("upload url failed", "call_id", callID, "err", err)
		return CreateCallResult{}, fmt.Errorf("%w: storage: %v", ErrServerConfiguration, err)
	}

	now := s.now().UTC()
	c := &Call{
		ID:          callID,
		UserID:      userID,
		AudioPath:   target.StoragePath,
		DurationSec: in.DurationSec,
		Status:      StatusCreated,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.Create(ctx, c); err != nil {
		return CreateCallResult{}, err
	}

	s.metrics.CallCreated()
	s.metrics.Transition(string(StatusCreated))
	s.audit.StatusChanged(ctx, c.ID, userID, "", string(StatusCreated), "call created")
	s.log.Info("call created", "call_id", c.ID, "user_id", userID, "path", c.AudioPath)

	return CreateCallResult{
		CallID:      c.ID,
		UploadURL:   target.UploadURL,
		StoragePath: target.StoragePath,
		PublicURL:   target.PublicURL,
		ExpiresAt:   target.ExpiresAt,
	}, nil
}

// MarkUploading records that the client began transferring audio.
func (s *Service) MarkUploading(ctx context.Context, callID string) (*Call, error) {
	c, err := s.repo.Get(ctx, callID)
	if err != nil {
		return nil, err
	}
	if c.Status == StatusUploading {
		return c, nil
	}
	if err := s.transition(ctx, c, StatusUploading, ""); err != nil {
		return nil, err
	}
	return c, nil
}

type StartTranscriptionResult struct {
	JobID  string                  `json:"jobId"`
	Status transcription.JobStatus `json:"status,omitempty"`
}

// StartTranscription submits the uploaded audio for transcription. A
// provider failure leaves the call where it was so the client can retry.
func (s *Service) StartTranscription(ctx context.Context, callID string) (StartTranscriptionResult, error) {
	c, err := s.repo.Get(ctx, callID)
	if err != nil {
		return StartTranscriptionResult{}, err
	}
	log := s.log.With("call_id", c.ID)

	if c.Status == StatusTranscribing && c.TranscriptionJobID != nil {
		return StartTranscriptionResult{JobID: *c.TranscriptionJobID, Status: transcription.JobStatusProcessing}, nil
	}
	if c.Status != StatusCreated && c.Status != StatusUploading {
		return StartTranscriptionResult{}, preconditionf("transcription cannot start from status %s", c.Status)
	}

	if ec, ok := s.storage.(storage.ExistenceChecker); ok {
		exists, err := ec.Exists(ctx, c.AudioPath)
		if err != nil {
			return StartTranscriptionResult{}, &ProviderError{Op: "storage lookup", Err: err}
		}
		if !exists {
			return StartTranscriptionResult{}, preconditionf("audio not uploaded yet")
		}
	}

	audioURL, err := s.storage.DownloadURL(ctx, c.AudioPath)
	if err != nil {
		return StartTranscriptionResult{}, fmt.Errorf("%w: storage: %v", ErrServerConfiguration, err)
	}

	h, err := s.transcriber.StartJob(ctx, transcription.JobRequest{
		AudioURL:          audioURL,
		WebhookURL:        s.opts.WebhookURL,
		LanguageCode:      s.opts.LanguageCode,
		EnableDiarization: true,
	})
	s.metrics.TranscriptionStarted(s.transcriber.Name(), err)
	if err != nil {
		log.Error("transcription start failed", "err", err)
		return StartTranscriptionResult{}, &ProviderError{Op: "transcription start", Err: err}
	}

	jobID := h.JobID
	c.TranscriptionJobID = &jobID
	if err := s.transition(ctx, c, StatusTranscribing, ""); err != nil {
		return StartTranscriptionResult{}, err
	}
	log.Info("transcription started", "job_id", jobID, "provider", s.transcriber.Name())
	return StartTranscriptionResult{JobID: jobID, Status: h.Status}, nil
}

type IngestOutcome string

const (
	OutcomeProcessed        IngestOutcome = "processed"
	OutcomeAlreadyProcessed IngestOutcome = "already_processed"
	OutcomeIgnored          IngestOutcome = "ignored"
)

const (
	SourceWebhook = "webhook"
	SourcePoll    = "poll"
)

// IngestTranscription applies a job result to its call. Webhook deliveries
// and polls converge here; the job ledger collapses duplicates so a job is
// applied at most once.
func (s *Service) IngestTranscription(ctx context.Context, ev transcription.WebhookEvent, source string) (IngestOutcome, error) {
	if strings.TrimSpace(ev.JobID) == "" {
		v := &ValidationError{}
		v.add("jobId", "required")
		return "", v
	}
	log := s.log.With("job_id", ev.JobID, "source", source)

	c, err := s.repo.GetByJobID(ctx, ev.JobID)
	if err != nil {
		return "", err
	}

	claimed, err := s.ledger.Claim(ctx, ev.JobID)
	if err != nil {
		return "", fmt.Errorf("calls: claim job: %w", err)
	}
	if !claimed {
		return s.ingested(ctx, c.ID, ev.JobID, source, OutcomeAlreadyProcessed), nil
	}

	outcome, err := s.applyJobResult(ctx, ev, source)
	switch {
	case err != nil:
		s.release(ctx, ev.JobID)
		log.Error("transcription ingest failed", "call_id", c.ID, "err", err)
		return "", err
	case outcome == OutcomeIgnored:
		s.release(ctx, ev.JobID)
	default:
		if err := s.ledger.Complete(ctx, ev.JobID); err != nil {
			log.Warn("job ledger complete failed", "err", err)
		}
	}
	return s.ingested(ctx, c.ID, ev.JobID, source, outcome), nil
}

// applyJobResult runs with the job claimed.
func (s *Service) applyJobResult(ctx context.Context, ev transcription.WebhookEvent, source string) (IngestOutcome, error) {
	// Re-read under the claim; the pre-claim copy may predate another
	// holder's write.
	c, err := s.repo.GetByJobID(ctx, ev.JobID)
	if err != nil {
		return "", err
	}
	if c.Status != StatusTranscribing {
		return OutcomeAlreadyProcessed, nil
	}

	switch ev.Status {
	case transcription.JobStatusCompleted:
		tr := ev.Transcript
		if tr == nil {
			res, err := s.transcriber.JobStatus(ctx, ev.JobID)
			if err != nil {
				return "", &ProviderError{Op: "transcription status", Err: err}
			}
			if res.Status != transcription.JobStatusCompleted || res.Transcript == nil {
				return OutcomeIgnored, nil
			}
			tr = res.Transcript
		}
		if err := tr.Validate(); err != nil {
			c.FailureReason = "invalid transcript: " + err.Error()
			if err := s.transition(ctx, c, StatusFailed, source); err != nil {
				return "", err
			}
			return OutcomeProcessed, nil
		}

		c.Transcript = tr
		c.FailureReason = ""
		if err := s.transition(ctx, c, StatusTranscribed, source); err != nil {
			return "", err
		}
		s.enqueueAnalysis(ctx, c.ID)
		return OutcomeProcessed, nil

	case transcription.JobStatusFailed:
		c.FailureReason = strings.TrimSpace(ev.Error)
		if c.FailureReason == "" {
			c.FailureReason = "transcription failed"
		}
		if err := s.transition(ctx, c, StatusFailed, source); err != nil {
			return "", err
		}
		return OutcomeProcessed, nil

	default:
		return OutcomeIgnored, nil
	}
}

// enqueueAnalysis hands the call to the dispatcher. Failure is logged only:
// the webhook caller must get a fast success regardless.
func (s *Service) enqueueAnalysis(ctx context.Context, callID string) {
	if err := s.dispatcher.Enqueue(callID); err != nil {
		s.log.Error("analysis enqueue failed", "call_id", callID, "err", err)
		s.audit.Record(ctx, audit.Event{CallID: callID, Type: audit.EventTypeAnalysisDropped, Message: err.Error()})
		return
	}
	s.audit.Record(ctx, audit.Event{CallID: callID, Type: audit.EventTypeAnalysisQueued})
}

func (s *Service) release(ctx context.Context, jobID string) {
	if err := s.ledger.Release(context.WithoutCancel(ctx), jobID); err != nil {
		s.log.Warn("job ledger release failed", "job_id", jobID, "err", err)
	}
}

func (s *Service) ingested(ctx context.Context, callID, jobID, source string, outcome IngestOutcome) IngestOutcome {
	s.metrics.Ingested(source, string(outcome))
	s.audit.IngestDecision(ctx, callID, jobID, source, string(outcome))
	s.log.Info("transcription delivery handled", "call_id", callID, "job_id", jobID, "source", source, "outcome", outcome)
	return outcome
}

// VerifyWebhook applies the webhook authentication policy.
func (s *Service) VerifyWebhook(ctx context.Context, signature string, raw []byte) error {
	if s.transcriber.VerifyWebhook(signature, raw) {
		return nil
	}
	if s.opts.EnforceWebhookAuth {
		s.metrics.Ingested(SourceWebhook, "rejected")
		return ErrWebhookAuth
	}
	s.log.Warn("webhook signature check failed, bypassed outside production")
	return nil
}

// ParseWebhook decodes a provider callback body.
func (s *Service) ParseWebhook(raw []byte) (transcription.WebhookEvent, error) {
	ev, err := s.transcriber.ParseWebhook(raw)
	if err != nil {
		v := &ValidationError{}
		v.add("body", err.Error())
		return transcription.WebhookEvent{}, v
	}
	return ev, nil
}

type PollResult struct {
	Status     Status                    `json:"status"`
	JobStatus  transcription.JobStatus   `json:"jobStatus,omitempty"`
	Transcript *transcription.Transcript `json:"transcript,omitempty"`
}

// PollTranscription asks the provider for the job state and ingests a
// terminal result. Safe to call repeatedly and alongside webhook delivery.
func (s *Service) PollTranscription(ctx context.Context, callID string) (PollResult, error) {
	c, err := s.repo.Get(ctx, callID)
	if err != nil {
		return PollResult{}, err
	}
	if c.Status != StatusTranscribing || c.TranscriptionJobID == nil {
		return PollResult{Status: c.Status, Transcript: c.Transcript}, nil
	}

	jobID := *c.TranscriptionJobID
	res, err := s.transcriber.JobStatus(ctx, jobID)
	if err != nil {
		return PollResult{}, &ProviderError{Op: "transcription status", Err: err}
	}
	if !res.Status.Terminal() {
		return PollResult{Status: c.Status, JobStatus: res.Status}, nil
	}

	if _, err := s.IngestTranscription(ctx, transcription.WebhookEvent{
		JobID:      jobID,
		Status:     res.Status,
		Transcript: res.Transcript,
		Error:      res.Error,
	}, SourcePoll); err != nil {
		return PollResult{}, err
	}

	c, err = s.repo.Get(ctx, callID)
	if err != nil {
		return PollResult{}, err
	}
	return PollResult{Status: c.Status, JobStatus: res.Status, Transcript: c.Transcript}, nil
}

// RunAnalysis scores the call's transcript. A failed run moves the call to
// failed before the error is returned.
func (s *Service) RunAnalysis(ctx context.Context, callID string) (*Call, error) {
	c, err := s.repo.Get(ctx, callID)
	if err != nil {
		return nil, err
	}
	if c.Transcript == nil {
		return nil, preconditionf("call has no transcript")
	}
	if !CanTransition(c.Status, StatusAnalyzing) {
		return nil, preconditionf("analysis cannot start from status %s", c.Status)
	}
	log := s.log.With("call_id", c.ID)

	// A re-run hints the model with the previous prediction.
	var suspected string
	if c.Analysis != nil {
		suspected = c.Analysis.CallTypePrediction
	}
	c.Analysis = nil
	if err := s.transition(ctx, c, StatusAnalyzing, ""); err != nil {
		return nil, err
	}

	start := time.Now()
	result, err := s.analyzer.Analyze(ctx, analysis.Input{
		Segments: c.Transcript.Segments,
		FullText: c.Transcript.Text,
		Metadata: analysis.Metadata{DurationSec: c.DurationSec, CallType: suspected},
	})
	s.metrics.AnalysisFinished(time.Since(start), err)

	if err != nil {
		log.Error("analysis failed", "err", err)
		c.FailureReason = "analysis: " + err.Error()
		if perr := s.transition(context.WithoutCancel(ctx), c, StatusFailed, ""); perr != nil {
			log.Error("persisting analysis failure failed", "err", perr)
			return nil, errors.Join(err, perr)
		}
		var schemaErr *analysis.SchemaError
		if errors.As(err, &schemaErr) {
			return nil, err
		}
		return nil, &ProviderError{Op: "analysis", Err: err}
	}

	created := s.now().UTC()
	result.CreatedAt = &created
	analysis.Sanitize(result)
	c.Analysis = result
	c.FailureReason = ""
	if err := s.transition(ctx, c, StatusComplete, ""); err != nil {
		return nil, err
	}
	log.Info("analysis complete", "compliance", result.Scores.ComplianceOverall, "stages_present", result.PresentStages())
	return c, nil
}

func (s *Service) runQueuedAnalysis(ctx context.Context, callID string) error {
	_, err := s.RunAnalysis(ctx, callID)
	return err
}

func (s *Service) GetCall(ctx context.Context, callID string) (*Call, error) {
	return s.repo.Get(ctx, callID)
}

func (s *Service) ListCalls(ctx context.Context, userID string) ([]*Call, error) {
	return s.repo.ListByUser(ctx, userID)
}

// DeleteCall removes the call with its transcript and analysis. The audio
// object is removed best-effort.
func (s *Service) DeleteCall(ctx context.Context, callID string) error {
	c, err := s.repo.Get(ctx, callID)
	if err != nil {
		return err
	}
	if err := s.storage.Delete(ctx, c.AudioPath); err != nil {
		s.log.Warn("audio delete failed", "call_id", c.ID, "path", c.AudioPath, "err", err)
	}
	if err := s.repo.Delete(ctx, c.ID); err != nil {
		return err
	}
	s.audit.Record(ctx, audit.Event{CallID: c.ID, UserID: c.UserID, Type: audit.EventTypeCallDeleted})
	s.log.Info("call deleted", "call_id", c.ID)
	return nil
}

// AnalysisTask reports the latest queued analysis run for a call.
func (s *Service) AnalysisTask(ctx context.Context, callID string) (Task, error) {
	if _, err := s.repo.Get(ctx, callID); err != nil {
		return Task{}, err
	}
	t, ok := s.dispatcher.Task(callID)
	if !ok {
		return Task{}, fmt.Errorf("%w: no analysis task for call", ErrNotFound)
	}
	return t, nil
}

// History returns the call's audit trail.
func (s *Service) History(ctx context.Context, callID string) ([]audit.Event, error) {
	if _, err := s.repo.Get(ctx, callID); err != nil {
		return nil, err
	}
	return s.audit.History(ctx, callID)
}

// transition moves c to status and persists it. updatedAt never goes
// backwards.
func (s *Service) transition(ctx context.Context, c *Call, to Status, source string) error {
	from := c.Status
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	now := s.now().UTC()
	if now.Before(c.UpdatedAt) {
		now = c.UpdatedAt
	}
	c.Status = to
	c.UpdatedAt = now
	if err := s.repo.Update(ctx, c); err != nil {
		c.Status = from
		return err
	}

	s.metrics.Transition(string(to))
	msg := c.FailureReason
	if source != "" {
		msg = strings.TrimSpace("via " + source + " " + msg)
	}
	s.audit.StatusChanged(ctx, c.ID, c.UserID, string(from), string(to), msg)
	return nil
}

func validateInput(in any) error {
	err := validate.Struct(in)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	v := &ValidationError{}
	for _, fe := range verrs {
		v.add(jsonName(fe.Field()), describe(fe))
	}
	return v.orNil()
}

func jsonName(field string) string {
	if field == "" {
		return field
	}
	return strings.ToLower(field[:1]) + field[1:]
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "required"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "startswith":
		return "must start with " + fe.Param()
	case "gte":
		return "must be >= " + fe.Param()
	default:
		return "failed " + fe.Tag()
	}
}
