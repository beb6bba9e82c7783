package calls

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// MemoryRepo keeps calls in process memory. Used for local runs and tests.
type MemoryRepo struct {
	mu    sync.RWMutex
	calls map[string]*Call
	jobs  map[string]string
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{calls: map[string]*Call{}, jobs: map[string]string{}}
}

func (r *MemoryRepo) Create(_ context.Context, c *Call) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.calls[c.ID]; ok {
		return errors.New("calls: duplicate id")
	}
	r.calls[c.ID] = c.clone()
	if j := c.jobID(); j != "" {
		r.jobs[j] = c.ID
	}
	return nil
}

func (r *MemoryRepo) Get(_ context.Context, id string) (*Call, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.calls[id]
	if !ok {
		return nil, ErrNotFound
	}
	return c.clone(), nil
}

func (r *MemoryRepo) GetByJobID(_ context.Context, jobID string) (*Call, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.jobs[jobID]
	if !ok {
		return nil, ErrNotFound
	}
	c, ok := r.calls[id]
	if !ok {
		return nil, ErrNotFound
	}
	return c.clone(), nil
}

func (r *MemoryRepo) Update(_ context.Context, c *Call) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev, ok := r.calls[c.ID]
	if !ok {
		return ErrNotFound
	}
	if j := prev.jobID(); j != "" && j != c.jobID() {
		delete(r.jobs, j)
	}
	r.calls[c.ID] = c.clone()
	if j := c.jobID(); j != "" {
		r.jobs[j] = c.ID
	}
	return nil
}

func (r *MemoryRepo) ListByUser(_ context.Context, userID string) ([]*Call, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Call, 0)
	for _, c := range r.calls {
		if c.UserID == userID {
			out = append(out, c.clone())
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (r *MemoryRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.calls[id]
	if !ok {
		return ErrNotFound
	}
	if j := c.jobID(); j != "" {
		delete(r.jobs, j)
	}
	delete(r.calls, id)
	return nil
}
