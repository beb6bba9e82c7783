package calls

import (
	"context"
	"errors"
	"io"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"

	"callqa/internal/analysis"
	"callqa/internal/audit"
	"callqa/internal/storage"
	"callqa/internal/transcription"
	"callqa/pkg/logger"
)

// fakeTranscriber returns scripted results and counts calls.
type fakeTranscriber struct {
	mu         sync.Mutex
	startErr   error
	result     transcription.JobResult
	statusErr  error
	rejectHook bool

	starts      int
	statusCalls int
	nextID      int
}

func (f *fakeTranscriber) Name() string { return "fake" }

func (f *fakeTranscriber) StartJob(_ context.Context, _ transcription.JobRequest) (transcription.JobHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return transcription.JobHandle{}, f.startErr
	}
	f.starts++
	f.nextID++
	return transcription.JobHandle{JobID: "job-" + strconv.Itoa(f.nextID), Status: transcription.JobStatusQueued}, nil
}

func (f *fakeTranscriber) VerifyWebhook(string, []byte) bool { return !f.rejectHook }

func (f *fakeTranscriber) ParseWebhook(raw []byte) (transcription.WebhookEvent, error) {
	return transcription.ParseGenericWebhook(raw)
}

func (f *fakeTranscriber) JobStatus(_ context.Context, _ string) (transcription.JobResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusCalls++
	if f.statusErr != nil {
		return transcription.JobResult{}, f.statusErr
	}
	return f.result, nil
}

func (f *fakeTranscriber) set(fn func(f *fakeTranscriber)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

// countingAnalyzer wraps the keyword analyzer and counts runs.
type countingAnalyzer struct {
	runs atomic.Int32
	err  error

	mu       sync.Mutex
	lastMeta analysis.Metadata
}

func (a *countingAnalyzer) Analyze(ctx context.Context, in analysis.Input) (*analysis.Analysis, error) {
	a.runs.Add(1)
	a.mu.Lock()
	a.lastMeta = in.Metadata
	a.mu.Unlock()
	if a.err != nil {
		return nil, a.err
	}
	return analysis.Mock{}.Analyze(ctx, in)
}

// countingRepo counts transcript writes on top of MemoryRepo.
type countingRepo struct {
	*MemoryRepo
	transcriptWrites atomic.Int32
	failUpdate       atomic.Bool
}

func (r *countingRepo) Update(ctx context.Context, c *Call) error {
	if r.failUpdate.Load() {
		return errors.New("update failed")
	}
	if c.Status == StatusTranscribed {
		r.transcriptWrites.Add(1)
	}
	return r.MemoryRepo.Update(ctx, c)
}

type fixture struct {
	svc      *Service
	repo     *countingRepo
	store    *storage.Local
	tr       *fakeTranscriber
	an       *countingAnalyzer
	ledger   *MemoryJobLedger
	auditLog *audit.MemoryRepo
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	signer, err := storage.NewSigner("test-signing-secret")
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	log := logger.NewWithWriter("test", io.Discard)
	f := &fixture{
		repo:     &countingRepo{MemoryRepo: NewMemoryRepo()},
		store:    storage.NewLocal("http://callqa.test", signer, log),
		tr:       &fakeTranscriber{},
		an:       &countingAnalyzer{},
		ledger:   NewMemoryJobLedger(),
		auditLog: audit.NewMemoryRepo(),
	}
	f.svc, err = NewService(Deps{
		Repo:        f.repo,
		Storage:     f.store,
		Transcriber: f.tr,
		Analyzer:    f.an,
		Ledger:      f.ledger,
		Audit:       audit.NewService(f.auditLog, log),
		Log:         log,
	}, opts)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	t.Cleanup(func() { _ = f.svc.Close(context.Background()) })
	return f
}

// createUploaded creates a call and stores its audio.
func (f *fixture) createUploaded(t *testing.T) *Call {
	t.Helper()
	ctx := context.Background()
	res, err := f.svc.CreateCall(ctx, "u1", CreateCallInput{FileName: "visit.mp3", ContentType: "audio/mpeg"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	f.store.Put(res.StoragePath, "audio/mpeg", []byte("audio"))
	c, err := f.svc.GetCall(ctx, res.CallID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	return c
}

// transcribing returns a call with a started job.
func (f *fixture) transcribing(t *testing.T) (*Call, string) {
	t.Helper()
	c := f.createUploaded(t)
	res, err := f.svc.StartTranscription(context.Background(), c.ID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	return c, res.JobID
}

func sampleTranscript() *transcription.Transcript {
	return &transcription.Transcript{
		Text:     "Hi, this is Sam from Acme Plumbing. The drain is clogged.",
		Provider: "fake",
		Segments: []transcription.Segment{
			{Start: 0, End: 3.5, Speaker: transcription.SpeakerTech, Text: "Hi, this is Sam from Acme Plumbing."},
			{Start: 3.6, End: 6, Speaker: transcription.SpeakerCustomer, Text: "The drain is clogged."},
		},
	}
}

func (a *countingAnalyzer) metadata() analysis.Metadata {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastMeta
}
