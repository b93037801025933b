package gmail

import "time"

type ThreadID string

// Query carries an already-formed Gmail search string
// (e.g., `in:inbox -is:starred -is:important -has:attachment older_than:90d`).
type Query struct {
	Raw string
}

// ThreadDetail is the re-fetched view of a single thread, used to verify
// eligibility immediately before trashing. Search-time predicates are not
// authoritative for attachments, so Attachments is recounted from the
// thread's actual messages.
type ThreadDetail struct {
	ID          ThreadID
	LastMessage time.Time // timestamp of the newest message in the thread
	Attachments int       // total attachment count across all messages
	Messages    int
	Starred     bool
	Important   bool
}
