package transcription

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func newTestAssemblyAI(t *testing.T, h http.HandlerFunc) *AssemblyAI {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewAssemblyAI(AssemblyAIConfig{
		APIKey:        "key",
		BaseURL:       srv.URL,
		WebhookSecret: "s3cret",
		MaxElapsed:    2 * time.Second,
	}, nil, nil)
}

func TestAssemblyAI_StartJob(t *testing.T) {
	var got aaiSubmitRequest
	p := newTestAssemblyAI(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v2/transcript" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Authorization") != "key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"id":"tx_1","status":"queued"}`))
	})

	h, err := p.StartJob(context.Background(), JobRequest{
		AudioURL:          "https://example.com/a.mp3",
		WebhookURL:        "https://app.example.com/webhooks/transcription",
		EnableDiarization: true,
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if h.JobID != "tx_1" || h.Status != JobStatusQueued {
		t.Fatalf("unexpected handle: %+v", h)
	}
	if !got.SpeakerLabels || got.WebhookAuthHeaderName != DefaultWebhookHeader || got.WebhookAuthHeaderValue != "s3cret" {
		t.Fatalf("unexpected submit body: %+v", got)
	}
}

func TestAssemblyAI_RetriesServerErrors(t *testing.T) {
	var calls int32
	p := newTestAssemblyAI(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"id":"tx_2","status":"processing"}`))
	})
	res, err := p.JobStatus(context.Background(), "tx_2")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if res.Status != JobStatusProcessing || res.Transcript != nil {
		t.Fatalf("unexpected result: %+v", res)
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Fatalf("expected 2 attempts, got %d", calls)
	}
}

func TestAssemblyAI_NotFoundIsPermanent(t *testing.T) {
	var calls int32
	p := newTestAssemblyAI(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	})
	_, err := p.JobStatus(context.Background(), "missing")
	if !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected a single attempt, got %d", calls)
	}
}

func TestAssemblyAI_CompletedFromUtterances(t *testing.T) {
	p := newTestAssemblyAI(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{
			"id":"tx_3","status":"completed","text":"hello there hi","confidence":0.9,
			"utterances":[
				{"speaker":"A","start":0,"end":1500,"text":"hello there"},
				{"speaker":"B","start":1600,"end":2100,"text":"hi"}
			]
		}`))
	})
	res, err := p.JobStatus(context.Background(), "tx_3")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	tr := res.Transcript
	if tr == nil || len(tr.Segments) != 2 {
		t.Fatalf("expected 2 segments, got %+v", tr)
	}
	if tr.Segments[0].Speaker != SpeakerTech || tr.Segments[1].Speaker != SpeakerCustomer {
		t.Fatalf("unexpected speakers: %+v", tr.Segments)
	}
	if tr.Segments[0].End != 1.5 || tr.Segments[1].Start != 1.6 {
		t.Fatalf("expected ms converted to seconds: %+v", tr.Segments)
	}
	if tr.Provider != "assemblyai" {
		t.Fatalf("unexpected provider %q", tr.Provider)
	}
}

func TestAssemblyAI_CompletedFromWords(t *testing.T) {
	p := newTestAssemblyAI(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{
			"id":"tx_4","status":"completed",
			"words":[
				{"text":"hi","start":0,"end":300,"speaker":"A"},
				{"text":"there","start":350,"end":700,"speaker":"A"},
				{"text":"yes","start":900,"end":1100,"speaker":"B"}
			]
		}`))
	})
	res, err := p.JobStatus(context.Background(), "tx_4")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	segs := res.Transcript.Segments
	if len(segs) != 2 || segs[0].Text != "hi there" || segs[0].End != 0.7 {
		t.Fatalf("unexpected merged segments: %+v", segs)
	}
	if res.Transcript.Text != "hi there yes" {
		t.Fatalf("expected text joined from segments, got %q", res.Transcript.Text)
	}
}

func TestAssemblyAI_Webhook(t *testing.T) {
	p := NewAssemblyAI(AssemblyAIConfig{APIKey: "k", WebhookSecret: "s3cret"}, nil, nil)
	if !p.VerifyWebhook("s3cret", nil) {
		t.Fatalf("expected matching secret to verify")
	}
	if p.VerifyWebhook("nope", nil) || p.VerifyWebhook("", nil) {
		t.Fatalf("expected mismatched secret to fail")
	}

	ev, err := p.ParseWebhook([]byte(`{"transcript_id":"tx_9","status":"completed"}`))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if ev.JobID != "tx_9" || ev.Status != JobStatusCompleted || ev.Transcript != nil {
		t.Fatalf("unexpected event: %+v", ev)
	}

	ev, err = p.ParseWebhook([]byte(`{"jobId":"tx_10","status":"error","error":"bad audio"}`))
	if err != nil {
		t.Fatalf("expected generic body to parse, got %v", err)
	}
	if ev.Status != JobStatusFailed || ev.Error != "bad audio" {
		t.Fatalf("unexpected event: %+v", ev)
	}
}

func TestSecretMatches_EmptySecretNeverMatches(t *testing.T) {
	if SecretMatches("", "") {
		t.Fatalf("expected empty secret to never match")
	}
}
