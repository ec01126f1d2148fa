package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	rerrors "github.com/shanehull/resultalert/internal/errors"
	"github.com/shanehull/resultalert/internal/types"
)

var ErrQueueClosed = errors.New("work queue closed")

// Queue is the bounded hand-off between the poller and the workers.
type Queue interface {
	Push(ctx context.Context, ann types.Announcement) error
	Pop(ctx context.Context) (types.Announcement, error)
	Len(ctx context.Context) int
	Close() error
}

type Policy string

const (
	// PolicyBlock waits up to the enqueue timeout for space.
	PolicyBlock Policy = "block"
	// PolicyDrop rejects immediately when full.
	PolicyDrop Policy = "drop"
)

func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case PolicyBlock, "":
		return PolicyBlock, nil
	case PolicyDrop:
		return PolicyDrop, nil
	}
	return "", fmt.Errorf("%w: unknown queue policy %q", rerrors.ErrConfigInvalid, s)
}

// ChanQueue is the in-process queue, a buffered channel.
type ChanQueue struct {
	ch      chan types.Announcement
	policy  Policy
	timeout time.Duration
	done    chan struct{}
	once    sync.Once
}

func NewChanQueue(size int, policy Policy, timeout time.Duration) *ChanQueue {
	if size <= 0 {
		size = 1
	}
	return &ChanQueue{
		ch:      make(chan types.Announcement, size),
		policy:  policy,
		timeout: timeout,
		done:    make(chan struct{}),
	}
}

func (q *ChanQueue) Push(ctx context.Context, ann types.Announcement) error {
	select {
	case <-q.done:
		return ErrQueueClosed
	default:
	}

	if q.policy == PolicyDrop || q.timeout <= 0 {
		select {
		case q.ch <- ann:
			return nil
		default:
			return rerrors.ErrQueueFull
		}
	}

	timer := time.NewTimer(q.timeout)
	defer timer.Stop()
	select {
	case q.ch <- ann:
		return nil
	case <-timer.C:
		return rerrors.ErrQueueFull
	case <-q.done:
		return ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pop waits for the next announcement. After Close it drains what is left
// and then returns ErrQueueClosed.
func (q *ChanQueue) Pop(ctx context.Context) (types.Announcement, error) {
	select {
	case ann := <-q.ch:
		return ann, nil
	case <-ctx.Done():
		return types.Announcement{}, ctx.Err()
	case <-q.done:
		select {
		case ann := <-q.ch:
			return ann, nil
		default:
			return types.Announcement{}, ErrQueueClosed
		}
	}
}

func (q *ChanQueue) Len(context.Context) int {
	return len(q.ch)
}

func (q *ChanQueue) Close() error {
	q.once.Do(func() { close(q.done) })
	return nil
}
