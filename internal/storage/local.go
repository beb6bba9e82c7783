package storage

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"callqa/pkg/logger"

	"github.com/gin-gonic/gin"
)

// ObjectsRoute is where the API serves Local objects.
const ObjectsRoute = "/storage/objects"

const maxObjectBytes = 200 << 20

// Local is the reference storage adapter: an in-process object store whose
// signed URLs point back at this service.
type Local struct {
	baseURL string
	signer  *Signer
	now     func() time.Time
	log     *slog.Logger

	mu      sync.RWMutex
	objects map[string]object
}

type object struct {
	data        []byte
	contentType string
	updatedAt   time.Time
}

func NewLocal(baseURL string, signer *Signer, log *slog.Logger) *Local {
	if log == nil {
		log = slog.Default()
	}
	return &Local{
		baseURL: strings.TrimRight(baseURL, "/"),
		signer:  signer,
		now:     time.Now,
		log:     log.With("component", "storage", "provider", "local"),
		objects: map[string]object{},
	}
}

func (l *Local) UploadURL(_ context.Context, req UploadRequest) (UploadTarget, error) {
	if l.signer == nil || l.baseURL == "" {
		return UploadTarget{}, ErrNotConfigured
	}
	p := ObjectPath(req.UserID, req.CallID, req.FileName)
	now := l.now()
	u, err := l.signedURL(now, p, http.MethodPut, UploadTTL)
	if err != nil {
		return UploadTarget{}, err
	}
	return UploadTarget{UploadURL: u, StoragePath: p, ExpiresAt: now.Add(UploadTTL)}, nil
}

func (l *Local) DownloadURL(_ context.Context, storagePath string) (string, error) {
	if l.signer == nil || l.baseURL == "" {
		return "", ErrNotConfigured
	}
	return l.signedURL(l.now(), storagePath, http.MethodGet, DownloadTTL)
}

func (l *Local) Delete(_ context.Context, storagePath string) error {
	l.mu.Lock()
	delete(l.objects, storagePath)
	l.mu.Unlock()
	return nil
}

func (l *Local) Exists(_ context.Context, storagePath string) (bool, error) {
	l.mu.RLock()
	_, ok := l.objects[storagePath]
	l.mu.RUnlock()
	return ok, nil
}

// Put stores data directly, bypassing signed URLs.
func (l *Local) Put(storagePath, contentType string, data []byte) {
	l.mu.Lock()
	l.objects[storagePath] = object{data: data, contentType: contentType, updatedAt: l.now()}
	l.mu.Unlock()
}

func (l *Local) signedURL(now time.Time, storagePath, method string, ttl time.Duration) (string, error) {
	tok, err := l.signer.Issue(now, storagePath, method, ttl)
	if err != nil {
		return "", err
	}
	return l.baseURL + ObjectsRoute + "/" + storagePath + "?token=" + url.QueryEscape(tok), nil
}

// HandlePut receives a direct upload.
func (l *Local) HandlePut(c *gin.Context) {
	log := logger.FromGin(c)
	p, ok := l.authorize(c, http.MethodPut)
	if !ok {
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxObjectBytes))
	if err != nil {
		log.Warn("object upload read failed", "path", p, "err", err)
		c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, errorBody("upload_failed", "could not read upload body"))
		return
	}
	l.Put(p, c.GetHeader("Content-Type"), body)
	log.Info("object uploaded", "path", p, "bytes", len(body))
	c.Status(http.StatusOK)
}

// HandleGet serves a stored object to the holder of a download URL.
func (l *Local) HandleGet(c *gin.Context) {
	p, ok := l.authorize(c, http.MethodGet)
	if !ok {
		return
	}
	l.mu.RLock()
	obj, found := l.objects[p]
	l.mu.RUnlock()
	if !found {
		c.AbortWithStatusJSON(http.StatusNotFound, errorBody("not_found", "object not found"))
		return
	}
	ct := obj.contentType
	if ct == "" {
		ct = "application/octet-stream"
	}
	c.Data(http.StatusOK, ct, obj.data)
}

func (l *Local) authorize(c *gin.Context, method string) (string, bool) {
	p := strings.TrimPrefix(c.Param("path"), "/")
	if p == "" {
		c.AbortWithStatusJSON(http.StatusNotFound, errorBody("not_found", "object not found"))
		return "", false
	}
	err := l.signer.Verify(c.Query("token"), p, method, l.now())
	switch {
	case errors.Is(err, ErrUploadExpired):
		c.AbortWithStatusJSON(http.StatusGone, errorBody("upload_expired", "signed url expired, request a new one"))
		return "", false
	case err != nil:
		c.AbortWithStatusJSON(http.StatusForbidden, errorBody("forbidden", "invalid signed url"))
		return "", false
	}
	return p, true
}

func errorBody(typ, msg string) gin.H {
	return gin.H{"error": gin.H{"type": typ, "message": msg}}
}
