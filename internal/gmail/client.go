package gmail

import "context"

// Client is the narrow Gmail surface required by threadpurge.
type Client interface {
	// ListThreads returns up to pageSize thread IDs matching q, from the
	// start of the result set.
	ListThreads(ctx context.Context, q Query, pageSize int) ([]ThreadID, error)
	// CountThreads estimates the total number of threads matching q.
	// Used for reporting only, never for control flow.
	CountThreads(ctx context.Context, q Query) (int, error)
	// GetThread fetches the full thread so eligibility can be re-verified.
	GetThread(ctx context.Context, id ThreadID) (ThreadDetail, error)
	// TrashThread moves the thread to trash. The only mutation we perform.
	TrashThread(ctx context.Context, id ThreadID) error
}
