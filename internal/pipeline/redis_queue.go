package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	rerrors "github.com/shanehull/resultalert/internal/errors"
	"github.com/shanehull/resultalert/internal/period"
	"github.com/shanehull/resultalert/internal/types"
)

const DefaultQueueKey = "extraction_queue"

// popWait bounds each BRPOP so cancellation is noticed.
const popWait = time.Second

// wireAnnouncement is the cross-process queue payload.
type wireAnnouncement struct {
	Source         string    `json:"source"`
	Symbol         string    `json:"symbol"`
	Date           time.Time `json:"date"`
	Description    string    `json:"description"`
	AttachmentURL  string    `json:"attachment_url"`
	Timestamp      time.Time `json:"timestamp"`
	AttachmentText string    `json:"attachment_text,omitempty"`
	CompanyName    string    `json:"company_name,omitempty"`
}

func encodeWire(ann types.Announcement) ([]byte, error) {
	return json.Marshal(wireAnnouncement{
		Source:         ann.Source,
		Symbol:         ann.Symbol,
		Date:           ann.Date,
		Description:    ann.Description,
		AttachmentURL:  ann.AttachmentURL,
		Timestamp:      ann.DiscoveredAt,
		AttachmentText: ann.AttachmentText,
		CompanyName:    ann.CompanyName,
	})
}

// decodeWire restores an announcement and recomputes its identity key, which
// is not part of the payload.
func decodeWire(data []byte) (types.Announcement, error) {
	var w wireAnnouncement
	if err := json.Unmarshal(data, &w); err != nil {
		return types.Announcement{}, fmt.Errorf("failed to decode queued announcement: %w", err)
	}
	ann := types.Announcement{
		Source:         w.Source,
		Symbol:         w.Symbol,
		Date:           w.Date,
		Description:    w.Description,
		AttachmentURL:  w.AttachmentURL,
		AttachmentText: w.AttachmentText,
		CompanyName:    w.CompanyName,
		DiscoveredAt:   w.Timestamp,
	}
	ref := ann.Date
	if ref.IsZero() {
		ref = ann.DiscoveredAt
	}
	q, fy := period.Guess(ann.Description+" "+ann.AttachmentText, ref)
	ann.Identity = types.IdentityKey{Symbol: ann.Symbol, Quarter: q, FiscalYear: fy}
	if err := types.Validate(ann); err != nil {
		return ann, rerrors.New("queue", rerrors.InvalidInput, ann.Symbol, err)
	}
	return ann, nil
}

// RedisQueue is a FIFO list shared between a poller process and worker
// processes: LPUSH on one end, BRPOP on the other. The bound is enforced on
// push against LLEN.
type RedisQueue struct {
	client  *redis.Client
	key     string
	size    int
	policy  Policy
	timeout time.Duration
}

func NewRedisQueue(client *redis.Client, key string, size int, policy Policy, timeout time.Duration) *RedisQueue {
	if key == "" {
		key = DefaultQueueKey
	}
	return &RedisQueue{client: client, key: key, size: size, policy: policy, timeout: timeout}
}

func (q *RedisQueue) Push(ctx context.Context, ann types.Announcement) error {
	payload, err := encodeWire(ann)
	if err != nil {
		return fmt.Errorf("failed to encode announcement: %w", err)
	}

	deadline := time.Now().Add(q.timeout)
	for {
		n, err := q.client.LLen(ctx, q.key).Result()
		if err != nil {
			return fmt.Errorf("failed to read queue length: %w", err)
		}
		if q.size <= 0 || int(n) < q.size {
			break
		}
		if q.policy == PolicyDrop || time.Now().After(deadline) {
			return rerrors.ErrQueueFull
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(25 * time.Millisecond):
		}
	}

	if err := q.client.LPush(ctx, q.key, payload).Err(); err != nil {
		return fmt.Errorf("failed to push to %s: %w", q.key, err)
	}
	return nil
}

func (q *RedisQueue) Pop(ctx context.Context) (types.Announcement, error) {
	for {
		if err := ctx.Err(); err != nil {
			return types.Announcement{}, err
		}
		res, err := q.client.BRPop(ctx, popWait, q.key).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return types.Announcement{}, ctx.Err()
			}
			return types.Announcement{}, fmt.Errorf("failed to pop from %s: %w", q.key, err)
		}
		// res is [key, value]
		return decodeWire([]byte(res[1]))
	}
}

func (q *RedisQueue) Len(ctx context.Context) int {
	n, err := q.client.LLen(ctx, q.key).Result()
	if err != nil {
		return 0
	}
	return int(n)
}

// Close leaves the shared client open; its owner closes it.
func (q *RedisQueue) Close() error {
	return nil
}
