package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// GCS issues V4 signed URLs against a Google Cloud Storage bucket.
type GCS struct {
	client *gcs.Client
	bucket string
	now    func() time.Time
	log    *slog.Logger
}

// NewGCS opens a client with the service-account key at credentialsFile.
// The key is also used to sign URLs.
func NewGCS(ctx context.Context, bucket, credentialsFile string, log *slog.Logger) (*GCS, error) {
	if bucket == "" || credentialsFile == "" {
		return nil, ErrNotConfigured
	}
	client, err := gcs.NewClient(ctx, option.WithCredentialsFile(credentialsFile))
	if err != nil {
		return nil, fmt.Errorf("storage: gcs client: %w", err)
	}
	if log == nil {
		log = slog.Default()
	}
	return &GCS{
		client: client,
		bucket: bucket,
		now:    time.Now,
		log:    log.With("component", "storage", "provider", "gcs"),
	}, nil
}

func (g *GCS) Close() error { return g.client.Close() }

func (g *GCS) UploadURL(_ context.Context, req UploadRequest) (UploadTarget, error) {
	p := ObjectPath(req.UserID, req.CallID, req.FileName)
	expires := g.now().Add(UploadTTL)
	u, err := g.client.Bucket(g.bucket).SignedURL(p, &gcs.SignedURLOptions{
		Scheme:      gcs.SigningSchemeV4,
		Method:      http.MethodPut,
		ContentType: req.ContentType,
		Expires:     expires,
	})
	if err != nil {
		return UploadTarget{}, fmt.Errorf("storage: sign upload url: %w", err)
	}
	return UploadTarget{
		UploadURL:   u,
		StoragePath: p,
		PublicURL:   fmt.Sprintf("https://storage.googleapis.com/%s/%s", g.bucket, p),
		ExpiresAt:   expires,
	}, nil
}

func (g *GCS) DownloadURL(_ context.Context, storagePath string) (string, error) {
	u, err := g.client.Bucket(g.bucket).SignedURL(storagePath, &gcs.SignedURLOptions{
		Scheme:  gcs.SigningSchemeV4,
		Method:  http.MethodGet,
		Expires: g.now().Add(DownloadTTL),
	})
	if err != nil {
		return "", fmt.Errorf("storage: sign download url: %w", err)
	}
	return u, nil
}

func (g *GCS) Delete(ctx context.Context, storagePath string) error {
	err := g.client.Bucket(g.bucket).Object(storagePath).Delete(ctx)
	if errors.Is(err, gcs.ErrObjectNotExist) {
		return nil
	}
	return err
}

func (g *GCS) Exists(ctx context.Context, storagePath string) (bool, error) {
	_, err := g.client.Bucket(g.bucket).Object(storagePath).Attrs(ctx)
	if errors.Is(err, gcs.ErrObjectNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
