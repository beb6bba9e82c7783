package transcription

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Mock is the reference transcription adapter used when no vendor credentials
// are configured. Jobs complete immediately with a canned two-speaker call,
// which lets the whole pipeline run without live infrastructure.
type Mock struct {
	roles RoleResolver

	mu   sync.Mutex
	jobs map[string]JobRequest
}

func NewMock(roles RoleResolver) *Mock {
	if roles == nil {
		roles = PositionalRoles{}
	}
	return &Mock{roles: roles, jobs: map[string]JobRequest{}}
}

func (m *Mock) Name() string { return "mock" }

func (m *Mock) StartJob(_ context.Context, req JobRequest) (JobHandle, error) {
	id := "mock-" + uuid.NewString()
	m.mu.Lock()
	m.jobs[id] = req
	m.mu.Unlock()
	return JobHandle{JobID: id, Status: JobStatusQueued}, nil
}

// VerifyWebhook accepts every callback; the mock has no shared secret.
func (m *Mock) VerifyWebhook(string, []byte) bool { return true }

func (m *Mock) ParseWebhook(raw []byte) (WebhookEvent, error) {
	return ParseGenericWebhook(raw)
}

func (m *Mock) JobStatus(ctx context.Context, jobID string) (JobResult, error) {
	m.mu.Lock()
	_, ok := m.jobs[jobID]
	m.mu.Unlock()
	if !ok && !strings.HasPrefix(jobID, "mock-") {
		return JobResult{}, ErrJobNotFound
	}

	tagged := MergeWords(sampleWords)
	segs := ApplyRoles(tagged, m.roles.Resolve(ctx, tagged))
	conf := 0.92
	return JobResult{
		Status: JobStatusCompleted,
		Transcript: &Transcript{
			Text:       JoinText(segs),
			Segments:   segs,
			Provider:   m.Name(),
			Confidence: &conf,
		},
	}, nil
}

var sampleWords = wordsFromLines([]sampleLine{
	{"A", 0, "Hi, this is Mike with Northside Heating and Air, I'm here about the furnace."},
	{"B", 6, "Thanks for coming. It keeps shutting off after a few minutes."},
	{"A", 12, "Got it. When did it start, and have you changed the filter recently?"},
	{"B", 18, "About a week ago. The filter is probably a few months old."},
	{"A", 24, "The flame sensor is dirty, so the furnace shuts down for safety. I can clean it today."},
	{"B", 32, "Okay, how much is that?"},
	{"A", 35, "It's eighty nine dollars. We also have a maintenance plan with two tune-ups a year."},
	{"B", 42, "Let's just do the repair for now."},
	{"A", 45, "No problem. I'll get started, and I'll walk you through it when I'm done."},
})

type sampleLine struct {
	tag   string
	start float64
	text  string
}

// wordsFromLines spreads each line's words evenly over 0.4s slots.
func wordsFromLines(lines []sampleLine) []Word {
	var out []Word
	for _, l := range lines {
		t := l.start
		for _, w := range strings.Fields(l.text) {
			out = append(out, Word{Text: w, Start: t, End: t + 0.35, Tag: l.tag})
			t += 0.4
		}
	}
	return out
}
