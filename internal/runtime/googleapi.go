// internal/runtime/googleapi.go — adapts *gmail.Service to our small interface
package runtime

import (
	"context"
	"fmt"
	"time"

	gapi "google.golang.org/api/gmail/v1"

	gc "github.com/joshsymonds/threadpurge/internal/gmail"
)

type googleClient struct{ svc *gapi.Service }

func NewGoogleAPIClient(svc *gapi.Service) gc.Client { return &googleClient{svc} }

func (g *googleClient) ListThreads(ctx context.Context, q gc.Query, pageSize int) ([]gc.ThreadID, error) {
	res, err := g.svc.Users.Threads.List("me").
		Q(q.Raw).
		MaxResults(int64(pageSize)).
		Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("list threads: %w", err)
	}
	ids := make([]gc.ThreadID, 0, len(res.Threads))
	for _, t := range res.Threads {
		ids = append(ids, gc.ThreadID(t.Id))
	}
	return ids, nil
}

func (g *googleClient) CountThreads(ctx context.Context, q gc.Query) (int, error) {
	// ResultSizeEstimate is Gmail's own estimate; good enough for the
	// reporting this feeds.
	res, err := g.svc.Users.Threads.List("me").Q(q.Raw).MaxResults(1).Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("count threads: %w", err)
	}
	return int(res.ResultSizeEstimate), nil
}

func (g *googleClient) GetThread(ctx context.Context, id gc.ThreadID) (gc.ThreadDetail, error) {
	th, err := g.svc.Users.Threads.Get("me", string(id)).Format("full").Context(ctx).Do()
	if err != nil {
		return gc.ThreadDetail{}, fmt.Errorf("get thread %s: %w", id, err)
	}
	detail := gc.ThreadDetail{ID: id, Messages: len(th.Messages)}
	for _, msg := range th.Messages {
		ts := time.UnixMilli(msg.InternalDate)
		if ts.After(detail.LastMessage) {
			detail.LastMessage = ts
		}
		detail.Attachments += countAttachments(msg.Payload)
		for _, label := range msg.LabelIds {
			switch label {
			case "STARRED":
				detail.Starred = true
			case "IMPORTANT":
				detail.Important = true
			}
		}
	}
	return detail, nil
}

func (g *googleClient) TrashThread(ctx context.Context, id gc.ThreadID) error {
	if _, err := g.svc.Users.Threads.Trash("me", string(id)).Context(ctx).Do(); err != nil {
		return fmt.Errorf("trash thread %s: %w", id, err)
	}
	return nil
}

// countAttachments walks a message part tree counting real attachments:
// parts that carry both a filename and an attachment body ID. Inline images
// without filenames do not count.
func countAttachments(part *gapi.MessagePart) int {
	if part == nil {
		return 0
	}
	n := 0
	if part.Filename != "" && part.Body != nil && part.Body.AttachmentId != "" {
		n++
	}
	for _, p := range part.Parts {
		n += countAttachments(p)
	}
	return n
}
