package transcription

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	assemblyAIBaseURL    = "https://api.assemblyai.com"
	DefaultWebhookHeader = "X-Webhook-Secret"
)

// AssemblyAIConfig controls the AssemblyAI adapter.
type AssemblyAIConfig struct {
	APIKey  string
	BaseURL string

	// WebhookSecret is sent to the vendor as the auth header value and
	// compared against inbound callbacks.
	WebhookSecret string
	WebhookHeader string

	Timeout    time.Duration
	MaxElapsed time.Duration
}

// AssemblyAI implements Provider against the AssemblyAI v2 REST API.
type AssemblyAI struct {
	cfg   AssemblyAIConfig
	http  *http.Client
	roles RoleResolver
	log   *slog.Logger
}

func NewAssemblyAI(cfg AssemblyAIConfig, roles RoleResolver, log *slog.Logger) *AssemblyAI {
	if cfg.BaseURL == "" {
		cfg.BaseURL = assemblyAIBaseURL
	}
	if cfg.WebhookHeader == "" {
		cfg.WebhookHeader = DefaultWebhookHeader
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	if cfg.MaxElapsed <= 0 {
		cfg.MaxElapsed = 30 * time.Second
	}
	if roles == nil {
		roles = PositionalRoles{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &AssemblyAI{
		cfg:   cfg,
		http:  &http.Client{Timeout: cfg.Timeout},
		roles: roles,
		log:   log.With("component", "transcription", "provider", "assemblyai"),
	}
}

func (p *AssemblyAI) Name() string { return "assemblyai" }

type aaiSubmitRequest struct {
	AudioURL               string `json:"audio_url"`
	SpeakerLabels          bool   `json:"speaker_labels"`
	LanguageCode           string `json:"language_code,omitempty"`
	WebhookURL             string `json:"webhook_url,omitempty"`
	WebhookAuthHeaderName  string `json:"webhook_auth_header_name,omitempty"`
	WebhookAuthHeaderValue string `json:"webhook_auth_header_value,omitempty"`
}

type aaiWord struct {
	Text    string `json:"text"`
	Start   int64  `json:"start"`
	End     int64  `json:"end"`
	Speaker string `json:"speaker"`
}

type aaiUtterance struct {
	Speaker string `json:"speaker"`
	Start   int64  `json:"start"`
	End     int64  `json:"end"`
	Text    string `json:"text"`
}

type aaiTranscript struct {
	ID         string         `json:"id"`
	Status     string         `json:"status"`
	Text       string         `json:"text"`
	Error      string         `json:"error"`
	Confidence *float64       `json:"confidence"`
	Utterances []aaiUtterance `json:"utterances"`
	Words      []aaiWord      `json:"words"`
}

type aaiWebhook struct {
	TranscriptID string `json:"transcript_id"`
	Status       string `json:"status"`
}

func (p *AssemblyAI) StartJob(ctx context.Context, req JobRequest) (JobHandle, error) {
	if strings.TrimSpace(req.AudioURL) == "" {
		return JobHandle{}, errors.New("transcription: audio url required")
	}
	body := aaiSubmitRequest{
		AudioURL:      req.AudioURL,
		SpeakerLabels: req.EnableDiarization,
		LanguageCode:  req.LanguageCode,
	}
	if req.WebhookURL != "" {
		body.WebhookURL = req.WebhookURL
		if p.cfg.WebhookSecret != "" {
			body.WebhookAuthHeaderName = p.cfg.WebhookHeader
			body.WebhookAuthHeaderValue = p.cfg.WebhookSecret
		}
	}

	var out aaiTranscript
	if err := p.doJSON(ctx, http.MethodPost, "/v2/transcript", body, &out); err != nil {
		return JobHandle{}, err
	}
	if out.ID == "" {
		return JobHandle{}, errors.New("transcription: assemblyai returned no transcript id")
	}
	p.log.Info("transcription job submitted", "job_id", out.ID, "status", out.Status)
	return JobHandle{JobID: out.ID, Status: NormalizeStatus(out.Status)}, nil
}

func (p *AssemblyAI) VerifyWebhook(signature string, _ []byte) bool {
	return SecretMatches(p.cfg.WebhookSecret, signature)
}

// ParseWebhook accepts both the vendor callback ({transcript_id, status}) and
// the provider-neutral body. Vendor callbacks never carry a transcript.
func (p *AssemblyAI) ParseWebhook(raw []byte) (WebhookEvent, error) {
	var v aaiWebhook
	if err := json.Unmarshal(raw, &v); err == nil && v.TranscriptID != "" {
		return WebhookEvent{JobID: v.TranscriptID, Status: NormalizeStatus(v.Status)}, nil
	}
	return ParseGenericWebhook(raw)
}

func (p *AssemblyAI) JobStatus(ctx context.Context, jobID string) (JobResult, error) {
	if strings.TrimSpace(jobID) == "" {
		return JobResult{}, ErrJobNotFound
	}
	var out aaiTranscript
	if err := p.doJSON(ctx, http.MethodGet, "/v2/transcript/"+jobID, nil, &out); err != nil {
		return JobResult{}, err
	}

	res := JobResult{Status: NormalizeStatus(out.Status), Error: out.Error}
	if res.Status == JobStatusCompleted {
		res.Transcript = p.buildTranscript(ctx, out)
	}
	return res, nil
}

func (p *AssemblyAI) buildTranscript(ctx context.Context, t aaiTranscript) *Transcript {
	var tagged []TaggedSegment
	if len(t.Utterances) > 0 {
		tagged = make([]TaggedSegment, 0, len(t.Utterances))
		for _, u := range t.Utterances {
			tagged = append(tagged, TaggedSegment{
				Start: msToSeconds(u.Start),
				End:   msToSeconds(u.End),
				Tag:   u.Speaker,
				Text:  strings.TrimSpace(u.Text),
			})
		}
	} else {
		words := make([]Word, 0, len(t.Words))
		for _, w := range t.Words {
			words = append(words, Word{Text: w.Text, Start: msToSeconds(w.Start), End: msToSeconds(w.End), Tag: w.Speaker})
		}
		tagged = MergeWords(words)
	}

	roles := p.roles.Resolve(ctx, tagged)
	segs := ApplyRoles(tagged, roles)

	text := strings.TrimSpace(t.Text)
	if text == "" {
		text = JoinText(segs)
	}
	return &Transcript{
		Text:       text,
		Segments:   segs,
		Provider:   p.Name(),
		Confidence: t.Confidence,
	}
}

func (p *AssemblyAI) doJSON(ctx context.Context, method, path string, in, out any) error {
	if strings.TrimSpace(p.cfg.APIKey) == "" {
		return errors.New("transcription: assemblyai api key not configured")
	}
	var payload []byte
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		payload = b
	}
	endpoint := strings.TrimRight(p.cfg.BaseURL, "/") + path

	op := func() error {
		var body io.Reader
		if payload != nil {
			body = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Authorization", p.cfg.APIKey)
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := p.http.Do(req)
		if err != nil {
			p.log.Warn("assemblyai request failed", "path", path, "err", err)
			return err
		}
		defer resp.Body.Close()
		raw, _ := io.ReadAll(resp.Body)

		switch {
		case resp.StatusCode == http.StatusNotFound:
			return backoff.Permanent(ErrJobNotFound)
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			return fmt.Errorf("assemblyai: status %d: %s", resp.StatusCode, string(raw))
		case resp.StatusCode >= 400:
			return backoff.Permanent(fmt.Errorf("assemblyai: status %d: %s", resp.StatusCode, string(raw)))
		}
		if err := json.Unmarshal(raw, out); err != nil {
			return backoff.Permanent(fmt.Errorf("assemblyai: decode: %w", err))
		}
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = p.cfg.MaxElapsed
	return backoff.Retry(op, backoff.WithContext(bo, ctx))
}

// SecretMatches compares a shared webhook secret in constant time.
// An unset secret never matches.
func SecretMatches(secret, got string) bool {
	if secret == "" || got == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(secret), []byte(got)) == 1
}

func msToSeconds(ms int64) float64 {
	return float64(ms) / 1000
}
