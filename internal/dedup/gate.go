/*
Package dedup provides the admission gate that lets each announcement identity
through at most once per expiry window.
*/
package dedup

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	rerrors "github.com/shanehull/resultalert/internal/errors"
	"github.com/shanehull/resultalert/internal/types"
)

const (
	DefaultKeyPrefix = "processed"
	DefaultTTL       = time.Hour
)

// Store is a key-value store with an atomic set-if-absent and expiry.
// Exactly one concurrent caller of SetIfAbsent for a live key gets true.
// Deleting a missing key is not an error.
type Store interface {
	SetIfAbsent(ctx context.Context, key string, value string, ttl time.Duration) (bool, error)
	Delete(ctx context.Context, key string) error
	DeletePrefix(ctx context.Context, prefix string) (int, error)
	Close() error
}

type Gate struct {
	store  Store
	ttl    time.Duration
	prefix string
	log    zerolog.Logger
	now    func() time.Time
}

type Option func(*Gate)

func WithTTL(ttl time.Duration) Option {
	return func(g *Gate) {
		if ttl > 0 {
			g.ttl = ttl
		}
	}
}

func WithPrefix(prefix string) Option {
	return func(g *Gate) {
		if prefix != "" {
			g.prefix = prefix
		}
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(g *Gate) { g.log = l }
}

func NewGate(store Store, opts ...Option) *Gate {
	g := &Gate{
		store:  store,
		ttl:    DefaultTTL,
		prefix: DefaultKeyPrefix,
		log:    zerolog.Nop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Key renders the wire key, e.g. "processed:RELIANCE:Q3FY2025".
func (g *Gate) Key(id types.IdentityKey) string {
	return fmt.Sprintf("%s:%s:%s", g.prefix, strings.ToUpper(id.Symbol), id.Suffix())
}

// Admit marks id as seen and reports whether this caller is the first.
// A store failure admits nothing.
func (g *Gate) Admit(ctx context.Context, id types.IdentityKey) (bool, error) {
	key := g.Key(id)
	ok, err := g.store.SetIfAbsent(ctx, key, g.now().UTC().Format(time.RFC3339), g.ttl)
	if err != nil {
		return false, rerrors.Wrapf(err, "failed to admit %s", key)
	}
	if !ok {
		g.log.Debug().Str("key", key).Msg("dedup rejected")
	}
	return ok, nil
}

// Claim is Admit for callers that branch on errors: a duplicate comes back
// as ErrDedupRejected with the DedupRejected kind.
func (g *Gate) Claim(ctx context.Context, id types.IdentityKey) error {
	ok, err := g.Admit(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return rerrors.New("admit", rerrors.DedupRejected, id.Symbol, rerrors.ErrDedupRejected)
	}
	return nil
}

// Release drops the record for id so it can be admitted again, for an
// admitted announcement that was never queued.
func (g *Gate) Release(ctx context.Context, id types.IdentityKey) error {
	key := g.Key(id)
	if err := g.store.Delete(ctx, key); err != nil {
		return rerrors.Wrapf(err, "failed to release %s", key)
	}
	return nil
}

// Clear removes live records for one symbol, or all records when symbol is empty.
func (g *Gate) Clear(ctx context.Context, symbol string) (int, error) {
	prefix := g.prefix + ":"
	if symbol != "" {
		prefix += strings.ToUpper(symbol) + ":"
	}
	n, err := g.store.DeletePrefix(ctx, prefix)
	if err != nil {
		return 0, fmt.Errorf("failed to clear %s*: %w", prefix, err)
	}
	return n, nil
}

func (g *Gate) Close() error {
	return g.store.Close()
}
