package session

import (
	"context"
	"log/slog"

	"github.com/roach88/uow/internal/ir"
	"github.com/roach88/uow/internal/key"
	"github.com/roach88/uow/internal/persist"
	"github.com/roach88/uow/internal/schema"
)

// Reader loads stored rows and collection membership. *store.Store
// satisfies it.
type Reader interface {
	Load(ctx context.Context, t *schema.TypeInfo, keyValues ir.Tuple) (*schema.TypeInfo, ir.Tuple, error)
	Members(ctx context.Context, f *schema.FieldInfo, owner ir.Tuple) ([]ir.Tuple, *schema.TypeInfo, error)
}

// Option configures a Session.
type Option func(*Session)

// WithKeyMode selects temporary or durable keys for new entities.
//
// Default: key.ModeDurable
func WithKeyMode(mode key.Mode) Option {
	return func(s *Session) {
		s.mode = mode
	}
}

// WithSortedActions chooses the dependency-sorting action generator. With
// false, actions are emitted unordered, which only works against storage
// that defers foreign key checks.
//
// Default: true
func WithSortedActions(sorted bool) Option {
	return func(s *Session) {
		s.sorted = sorted
	}
}

// WithKeyCache shares an identity cache between sessions.
//
// Default: a cache of key.DefaultCacheSize owned by the session
func WithKeyCache(c *key.Cache) Option {
	return func(s *Session) {
		s.cache = c
	}
}

// WithGenerator registers a durable key generator under name, the value a
// hierarchy's generator setting refers to.
func WithGenerator(name string, gen key.Generator) Option {
	return func(s *Session) {
		s.named[name] = gen
	}
}

// WithExecutor sets where flushed plans go.
//
// Default: persist.Discard
func WithExecutor(e persist.Executor) Option {
	return func(s *Session) {
		s.executor = e
	}
}

// WithReader sets where Get and Sync read stored state from.
func WithReader(r Reader) Option {
	return func(s *Session) {
		s.reader = r
	}
}

// WithMetrics reports flushes to m.
//
// Default: unregistered collectors
func WithMetrics(m *Metrics) Option {
	return func(s *Session) {
		s.metrics = m
	}
}

// WithTransactionalCollections keeps the collection state of the last
// flush so Rollback can restore it.
//
// Default: true
func WithTransactionalCollections(enabled bool) Option {
	return func(s *Session) {
		s.transactional = enabled
	}
}

// WithCollectionCacheSize bounds the confirmed members cached per
// collection.
//
// Default: delta.DefaultCapacity
func WithCollectionCacheSize(n int) Option {
	return func(s *Session) {
		s.collectionCap = n
	}
}

// WithLogger sets the session logger.
//
// Default: slog.Default()
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		s.logger = l
	}
}

// WithClock numbers flushes from c.
func WithClock(c *Clock) Option {
	return func(s *Session) {
		s.clock = c
	}
}
