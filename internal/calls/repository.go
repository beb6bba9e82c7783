package calls

import "context"

// Repository persists calls. Implementations return copies; callers mutate
// and write back with Update.
type Repository interface {
	Create(ctx context.Context, c *Call) error
	Get(ctx context.Context, id string) (*Call, error)
	// GetByJobID looks a call up by its transcription job, the only key a
	// provider callback carries.
	GetByJobID(ctx context.Context, jobID string) (*Call, error)
	Update(ctx context.Context, c *Call) error
	// ListByUser returns the user's calls, newest first.
	ListByUser(ctx context.Context, userID string) ([]*Call, error)
	Delete(ctx context.Context, id string) error
}
