package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"callqa/internal/config"
	"callqa/pkg/logger"

	"github.com/gin-gonic/gin"
)

func newTestServer(t *testing.T) (*httptest.Server, *app) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	var handler http.Handler
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handler.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)

	cfg := config.Config{App: config.AppConfig{Env: "local", PublicBaseURL: srv.URL}}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	log := logger.NewWithWriter("local", io.Discard)

	a, err := wire(context.Background(), cfg, log)
	if err != nil {
		t.Fatalf("wire: %v", err)
	}
	t.Cleanup(a.close)

	r := gin.New()
	r.Use(logger.Middleware(log))
	registerRoutes(r, a)
	handler = r
	return srv, a
}

func do(t *testing.T, method, url string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		rd = bytes.NewReader(b)
	}
	req, _ := http.NewRequest(method, url, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	out := map[string]any{}
	raw, _ := io.ReadAll(resp.Body)
	_ = json.Unmarshal(raw, &out)
	return resp, out
}

func TestPipeline_EndToEndWithReferenceAdapters(t *testing.T) {
	srv, a := newTestServer(t)

	resp, created := do(t, http.MethodPost, srv.URL+"/v1/calls", map[string]any{"fileName": "visit.mp3", "contentType": "audio/mpeg"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d %v", resp.StatusCode, created)
	}
	callID, _ := created["callId"].(string)
	uploadURL, _ := created["uploadUrl"].(string)
	if callID == "" || uploadURL == "" {
		t.Fatalf("create: missing callId/uploadUrl: %v", created)
	}

	// Transcription needs the audio to exist first.
	resp, body := do(t, http.MethodPost, srv.URL+"/v1/calls/"+callID+"/transcription", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("start before upload: expected 400, got %d %v", resp.StatusCode, body)
	}

	req, _ := http.NewRequest(http.MethodPut, uploadURL, bytes.NewReader([]byte("ID3 fake audio")))
	req.Header.Set("Content-Type", "audio/mpeg")
	put, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	put.Body.Close()
	if put.StatusCode != http.StatusOK {
		t.Fatalf("upload: expected 200, got %d", put.StatusCode)
	}

	if resp, body := do(t, http.MethodPost, srv.URL+"/v1/calls/"+callID+"/uploading", nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("uploading: expected 200, got %d %v", resp.StatusCode, body)
	}

	resp, started := do(t, http.MethodPost, srv.URL+"/v1/calls/"+callID+"/transcription", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("start: expected 200, got %d %v", resp.StatusCode, started)
	}
	jobID, _ := started["jobId"].(string)
	if jobID == "" {
		t.Fatalf("start: missing jobId: %v", started)
	}

	resp, polled := do(t, http.MethodGet, srv.URL+"/v1/calls/"+callID+"/transcription", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("poll: expected 200, got %d %v", resp.StatusCode, polled)
	}
	if polled["status"] == "failed" || polled["status"] == "transcribing" {
		t.Fatalf("poll: expected transcript ingested, got %v", polled["status"])
	}

	// A late webhook for the same job is acknowledged without effect.
	resp, hook := do(t, http.MethodPost, srv.URL+"/webhooks/transcription", map[string]any{"jobId": jobID, "status": "completed"})
	if resp.StatusCode != http.StatusOK || hook["status"] != "already_processed" {
		t.Fatalf("webhook: expected already_processed, got %d %v", resp.StatusCode, hook)
	}

	a.calls.WaitForAnalysis()

	resp, call := do(t, http.MethodGet, srv.URL+"/v1/calls/"+callID, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get: expected 200, got %d", resp.StatusCode)
	}
	if call["status"] != "complete" {
		t.Fatalf("get: expected complete, got %v (%v)", call["status"], call["failureReason"])
	}
	if call["transcript"] == nil || call["analysis"] == nil {
		t.Fatalf("get: expected transcript and analysis attached")
	}

	resp, rerun := do(t, http.MethodPost, srv.URL+"/v1/calls/"+callID+"/analysis", nil)
	if resp.StatusCode != http.StatusOK || rerun["success"] != true || rerun["callId"] != callID {
		t.Fatalf("re-analysis: expected success for %s, got %d %v", callID, resp.StatusCode, rerun)
	}

	resp, report := do(t, http.MethodGet, srv.URL+"/v1/reports/summary", nil)
	if resp.StatusCode != http.StatusOK || report["analyzedCalls"] != float64(1) {
		t.Fatalf("report: expected 1 analyzed call, got %d %v", resp.StatusCode, report)
	}

	if resp, _ := do(t, http.MethodDelete, srv.URL+"/v1/calls/"+callID, nil); resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete: expected 204, got %d", resp.StatusCode)
	}
	if resp, _ := do(t, http.MethodGet, srv.URL+"/v1/calls/"+callID, nil); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("get after delete: expected 404, got %d", resp.StatusCode)
	}
}

func TestHealthzAndMetrics(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, body := do(t, http.MethodGet, srv.URL+"/healthz", nil)
	if resp.StatusCode != http.StatusOK || body["status"] != "ok" {
		t.Fatalf("healthz: got %d %v", resp.StatusCode, body)
	}

	do(t, http.MethodPost, srv.URL+"/v1/calls", map[string]any{"fileName": "a.wav", "contentType": "audio/wav"})

	m, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	defer m.Body.Close()
	raw, _ := io.ReadAll(m.Body)
	if !bytes.Contains(raw, []byte("callqa_calls_created_total")) {
		t.Fatalf("metrics: expected calls created counter in scrape")
	}
}
