package calls

import (
	"context"
	"sync"
	"time"

	"callqa/pkg/utils"

	"github.com/redis/go-redis/v9"
)

// JobLedger is the idempotency store for transcription jobs. Claim is an
// atomic check-and-set: exactly one concurrent caller wins a job id.
//
// A won claim must be followed by Complete (the job was applied, or needs no
// further work) or Release (nothing was applied; a later delivery may retry).
type JobLedger interface {
	Claim(ctx context.Context, jobID string) (bool, error)
	Complete(ctx context.Context, jobID string) error
	Release(ctx context.Context, jobID string) error
}

type ledgerState uint8

const (
	ledgerProcessing ledgerState = iota + 1
	ledgerDone
)

// MemoryJobLedger is a process-local ledger. It does not survive restarts
// and is only safe for a single instance.
type MemoryJobLedger struct {
	mu   sync.Mutex
	jobs map[string]ledgerState
}

func NewMemoryJobLedger() *MemoryJobLedger {
	return &MemoryJobLedger{jobs: map[string]ledgerState{}}
}

func (l *MemoryJobLedger) Claim(_ context.Context, jobID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.jobs[jobID]; ok {
		return false, nil
	}
	l.jobs[jobID] = ledgerProcessing
	return true, nil
}

func (l *MemoryJobLedger) Complete(_ context.Context, jobID string) error {
	l.mu.Lock()
	l.jobs[jobID] = ledgerDone
	l.mu.Unlock()
	return nil
}

func (l *MemoryJobLedger) Release(_ context.Context, jobID string) error {
	l.mu.Lock()
	if l.jobs[jobID] == ledgerProcessing {
		delete(l.jobs, jobID)
	}
	l.mu.Unlock()
	return nil
}

// Done reports whether jobID has been completed.
func (l *MemoryJobLedger) Done(jobID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.jobs[jobID] == ledgerDone
}

const (
	redisLedgerPrefix = "callqa:transcription-job:"

	// claimTTL bounds how long a crashed holder blocks a job id.
	claimTTL = 2 * time.Minute
	doneTTL  = 30 * 24 * time.Hour
)

// RedisJobLedger shares the ledger across instances and restarts.
type RedisJobLedger struct {
	rdb redis.Scripter
}

func NewRedisJobLedger(rdb redis.Scripter) *RedisJobLedger {
	return &RedisJobLedger{rdb: rdb}
}

func (l *RedisJobLedger) Claim(ctx context.Context, jobID string) (bool, error) {
	return utils.ClaimOnce(ctx, l.rdb, redisLedgerPrefix+jobID, claimTTL)
}

func (l *RedisJobLedger) Complete(ctx context.Context, jobID string) error {
	return utils.MarkDone(ctx, l.rdb, redisLedgerPrefix+jobID, doneTTL)
}

func (l *RedisJobLedger) Release(ctx context.Context, jobID string) error {
	return utils.ReleaseClaim(ctx, l.rdb, redisLedgerPrefix+jobID)
}
