package storage

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func TestObjectPath_DeterministicAndSanitized(t *testing.T) {
	a := ObjectPath("demo-user", "c1", "call 1.mp3")
	b := ObjectPath("demo-user", "c1", "call 1.mp3")
	if a != b {
		t.Fatalf("expected deterministic path, got %q and %q", a, b)
	}
	if a != "calls/demo-user/c1/call_1.mp3" {
		t.Fatalf("unexpected path %q", a)
	}
	if got := ObjectPath("u", "c", "../../etc/passwd"); got != "calls/u/c/passwd" {
		t.Fatalf("expected traversal stripped, got %q", got)
	}
	if got := ObjectPath("", "", ""); got != "calls/anonymous/call/audio" {
		t.Fatalf("unexpected fallback path %q", got)
	}
}

func TestSigner(t *testing.T) {
	s, err := NewSigner("secret")
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	now := time.Unix(1700000000, 0).UTC()
	tok, err := s.Issue(now, "calls/u/c/a.mp3", http.MethodPut, UploadTTL)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	if err := s.Verify(tok, "calls/u/c/a.mp3", http.MethodPut, now.Add(time.Minute)); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if err := s.Verify(tok, "calls/u/c/a.mp3", http.MethodPut, now.Add(UploadTTL+time.Minute)); !errors.Is(err, ErrUploadExpired) {
		t.Fatalf("expected ErrUploadExpired, got %v", err)
	}
	if err := s.Verify(tok, "calls/u/c/b.mp3", http.MethodPut, now); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for other path, got %v", err)
	}
	if err := s.Verify(tok, "calls/u/c/a.mp3", http.MethodGet, now); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for other method, got %v", err)
	}

	if _, err := NewSigner(""); err == nil {
		t.Fatalf("expected error for empty secret")
	}
}

func newLocalRouter(t *testing.T) (*Local, *gin.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	s, _ := NewSigner("secret")
	l := NewLocal("http://api.test", s, nil)
	r := gin.New()
	r.PUT(ObjectsRoute+"/*path", l.HandlePut)
	r.GET(ObjectsRoute+"/*path", l.HandleGet)
	return l, r
}

func requestPath(t *testing.T, signed string) string {
	t.Helper()
	u, err := url.Parse(signed)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	return u.RequestURI()
}

func TestLocal_UploadThenDownload(t *testing.T) {
	l, r := newLocalRouter(t)
	ctx := context.Background()

	target, err := l.UploadURL(ctx, UploadRequest{FileName: "call1.mp3", ContentType: "audio/mpeg", UserID: "u", CallID: "c"})
	if err != nil {
		t.Fatalf("upload url: %v", err)
	}
	if target.StoragePath != "calls/u/c/call1.mp3" || !strings.HasPrefix(target.UploadURL, "http://api.test/storage/objects/calls/u/c/call1.mp3?token=") {
		t.Fatalf("unexpected target: %+v", target)
	}

	if ok, _ := l.Exists(ctx, target.StoragePath); ok {
		t.Fatalf("expected object absent before upload")
	}

	req := httptest.NewRequest(http.MethodPut, requestPath(t, target.UploadURL), strings.NewReader("RIFF"))
	req.Header.Set("Content-Type", "audio/mpeg")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if ok, _ := l.Exists(ctx, target.StoragePath); !ok {
		t.Fatalf("expected object present after upload")
	}

	dl, err := l.DownloadURL(ctx, target.StoragePath)
	if err != nil {
		t.Fatalf("download url: %v", err)
	}
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, requestPath(t, dl), nil))
	if w.Code != http.StatusOK || w.Body.String() != "RIFF" || w.Header().Get("Content-Type") != "audio/mpeg" {
		t.Fatalf("unexpected download: %d %q %q", w.Code, w.Body.String(), w.Header().Get("Content-Type"))
	}

	// An upload token must not authorize a download.
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, requestPath(t, target.UploadURL), nil))
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", w.Code)
	}

	if err := l.Delete(ctx, target.StoragePath); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if ok, _ := l.Exists(ctx, target.StoragePath); ok {
		t.Fatalf("expected object removed")
	}
}

func TestLocal_ExpiredUploadIsGone(t *testing.T) {
	l, r := newLocalRouter(t)
	issued := time.Unix(1700000000, 0).UTC()
	l.now = func() time.Time { return issued }

	target, err := l.UploadURL(context.Background(), UploadRequest{FileName: "a.wav", UserID: "u", CallID: "c"})
	if err != nil {
		t.Fatalf("upload url: %v", err)
	}

	l.now = func() time.Time { return issued.Add(UploadTTL + time.Second) }
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPut, requestPath(t, target.UploadURL), strings.NewReader("x")))
	if w.Code != http.StatusGone {
		t.Fatalf("expected 410, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "upload_expired") {
		t.Fatalf("expected upload_expired body, got %s", w.Body.String())
	}
	if ok, _ := l.Exists(context.Background(), target.StoragePath); ok {
		t.Fatalf("expired upload must not store the object")
	}
}

func TestLocal_NotConfigured(t *testing.T) {
	l := NewLocal("", nil, nil)
	if _, err := l.UploadURL(context.Background(), UploadRequest{FileName: "a.mp3"}); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}
