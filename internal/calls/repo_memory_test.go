package calls

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryRepo_RoundTripAndIsolation(t *testing.T) {
	repo := NewMemoryRepo()
	ctx := context.Background()
	now := time.Unix(1700000000, 0).UTC()

	c := &Call{ID: "c1", UserID: "u1", AudioPath: "calls/u1/c1/a.mp3", Status: StatusCreated, CreatedAt: now, UpdatedAt: now}
	if err := repo.Create(ctx, c); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := repo.Create(ctx, c); err == nil {
		t.Fatalf("expected duplicate id error")
	}

	// Callers mutating their copy must not affect the store.
	c.Status = StatusFailed
	got, err := repo.Get(ctx, "c1")
	if err != nil || got.Status != StatusCreated {
		t.Fatalf("expected stored status created, got %v %v", got, err)
	}
	got.Status = StatusComplete
	if again, _ := repo.Get(ctx, "c1"); again.Status != StatusCreated {
		t.Fatalf("returned call must be a copy")
	}

	if _, err := repo.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := repo.Update(ctx, &Call{ID: "missing"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on update, got %v", err)
	}
}

func TestMemoryRepo_JobIndex(t *testing.T) {
	repo := NewMemoryRepo()
	ctx := context.Background()
	c := &Call{ID: "c1", UserID: "u1", Status: StatusCreated}
	if err := repo.Create(ctx, c); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := repo.GetByJobID(ctx, "job-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected no job index before start")
	}

	job := "job-1"
	c.TranscriptionJobID = &job
	c.Status = StatusTranscribing
	if err := repo.Update(ctx, c); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, err := repo.GetByJobID(ctx, "job-1")
	if err != nil || got.ID != "c1" {
		t.Fatalf("expected c1 by job, got %v %v", got, err)
	}

	if err := repo.Delete(ctx, "c1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := repo.GetByJobID(ctx, "job-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("job index must be dropped with the call")
	}
	if err := repo.Delete(ctx, "c1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestMemoryRepo_ListByUserNewestFirst(t *testing.T) {
	repo := NewMemoryRepo()
	ctx := context.Background()
	base := time.Unix(1700000000, 0).UTC()
	for i, id := range []string{"old", "mid", "new"} {
		_ = repo.Create(ctx, &Call{ID: id, UserID: "u1", CreatedAt: base.Add(time.Duration(i) * time.Minute)})
	}
	_ = repo.Create(ctx, &Call{ID: "other", UserID: "u2", CreatedAt: base})

	list, err := repo.ListByUser(ctx, "u1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 3 || list[0].ID != "new" || list[2].ID != "old" {
		t.Fatalf("unexpected order: %v", ids(list))
	}
	if empty, _ := repo.ListByUser(ctx, "nobody"); empty == nil || len(empty) != 0 {
		t.Fatalf("expected empty non-nil list")
	}
}

func ids(cs []*Call) []string {
	out := make([]string, 0, len(cs))
	for _, c := range cs {
		out = append(out, c.ID)
	}
	return out
}

func TestCanTransition(t *testing.T) {
	allowed := [][2]Status{
		{StatusCreated, StatusUploading},
		{StatusCreated, StatusTranscribing},
		{StatusUploading, StatusTranscribing},
		{StatusTranscribing, StatusTranscribed},
		{StatusTranscribing, StatusFailed},
		{StatusTranscribed, StatusAnalyzing},
		{StatusAnalyzing, StatusComplete},
		{StatusAnalyzing, StatusFailed},
		{StatusComplete, StatusAnalyzing},
		{StatusFailed, StatusAnalyzing},
	}
	for _, e := range allowed {
		if !CanTransition(e[0], e[1]) {
			t.Fatalf("expected %s -> %s allowed", e[0], e[1])
		}
	}
	denied := [][2]Status{
		{StatusCreated, StatusComplete},
		{StatusTranscribed, StatusTranscribing},
		{StatusComplete, StatusCreated},
		{StatusFailed, StatusTranscribing},
		{StatusUploading, StatusCreated},
	}
	for _, e := range denied {
		if CanTransition(e[0], e[1]) {
			t.Fatalf("expected %s -> %s denied", e[0], e[1])
		}
	}
	if Status("bogus").Valid() {
		t.Fatalf("unknown status must be invalid")
	}
}
