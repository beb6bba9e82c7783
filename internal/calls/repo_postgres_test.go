package calls

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"callqa/internal/analysis"
	"callqa/pkg/utils"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// TestPostgresRepo runs against a real database when POSTGRES_TEST_DSN is set.
func TestPostgresRepo(t *testing.T) {
	dsn := os.Getenv("POSTGRES_TEST_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_TEST_DSN not set")
	}
	ctx := context.Background()
	db, err := utils.OpenPostgres(ctx, dsn, utils.PostgresPoolConfig{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()
	if err := utils.ApplySchema(ctx, db, Schema); err != nil {
		t.Fatalf("schema: %v", err)
	}
	repo := NewPostgresRepo(db)

	now := time.Now().UTC().Truncate(time.Millisecond)
	user := "pg-" + uuid.NewString()
	c := &Call{ID: uuid.NewString(), UserID: user, AudioPath: "calls/x/y/a.mp3", Status: StatusCreated, CreatedAt: now, UpdatedAt: now}
	if err := repo.Create(ctx, c); err != nil {
		t.Fatalf("create: %v", err)
	}
	t.Cleanup(func() { _ = repo.Delete(context.Background(), c.ID) })

	job := "job-" + uuid.NewString()
	c.TranscriptionJobID = &job
	c.Status = StatusComplete
	c.Transcript = sampleTranscript()
	ts := 1.5
	c.Analysis = &analysis.Analysis{
		Summary:             "ok",
		MissedOpportunities: []analysis.MissedOpportunity{{Description: "no plan offered", Timestamp: &ts}},
	}
	if err := repo.Update(ctx, c); err != nil {
		t.Fatalf("update: %v", err)
	}

	got, err := repo.GetByJobID(ctx, job)
	if err != nil {
		t.Fatalf("get by job: %v", err)
	}
	if got.ID != c.ID || got.Status != StatusComplete || got.Transcript == nil || len(got.Transcript.Segments) != 2 {
		t.Fatalf("unexpected round trip: %+v", got)
	}
	if got.Analysis == nil || len(got.Analysis.MissedOpportunities) != 1 || *got.Analysis.MissedOpportunities[0].Timestamp != 1.5 {
		t.Fatalf("analysis did not round trip: %+v", got.Analysis)
	}

	list, err := repo.ListByUser(ctx, user)
	if err != nil || len(list) != 1 {
		t.Fatalf("list: %v %v", list, err)
	}

	if err := repo.Delete(ctx, c.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := repo.Get(ctx, c.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}
