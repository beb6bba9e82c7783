package storage

import (
	"context"
	"errors"
	"path"
	"strings"
	"time"
)

// Provider is the storage port: it hands out time-bounded URLs so audio bytes
// never pass through the pipeline itself.
type Provider interface {
	UploadURL(ctx context.Context, req UploadRequest) (UploadTarget, error)
	DownloadURL(ctx context.Context, storagePath string) (string, error)
	Delete(ctx context.Context, storagePath string) error
}

// ExistenceChecker is implemented by adapters that can confirm an object was
// actually uploaded.
type ExistenceChecker interface {
	Exists(ctx context.Context, storagePath string) (bool, error)
}

type UploadRequest struct {
	FileName    string
	ContentType string
	UserID      string
	CallID      string
}

type UploadTarget struct {
	UploadURL   string    `json:"uploadUrl"`
	StoragePath string    `json:"storagePath"`
	PublicURL   string    `json:"publicUrl,omitempty"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

const (
	UploadTTL   = 15 * time.Minute
	DownloadTTL = 60 * time.Minute
)

var (
	ErrNotConfigured = errors.New("storage: backend not configured")
	ErrUploadExpired = errors.New("storage: upload url expired")
	ErrInvalidToken  = errors.New("storage: invalid signed url")
)

// ObjectPath is the deterministic location of a call recording:
// calls/{userId}/{callId}/{fileName}, each part sanitized.
func ObjectPath(userID, callID, fileName string) string {
	return path.Join("calls", cleanPart(userID, "anonymous"), cleanPart(callID, "call"), cleanPart(fileName, "audio"))
}

func cleanPart(s, fallback string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexAny(s, `/\`); i >= 0 {
		s = s[i+1:]
	}
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	out := strings.TrimLeft(b.String(), ".")
	if len(out) > 200 {
		out = out[len(out)-200:]
	}
	if out == "" {
		return fallback
	}
	return out
}
