package app

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Option customizes a workflow service.
type Option func(*runtime)

// runtime holds the collaborators shared by both workflow services.
type runtime struct {
	now          Clock
	newID        IDGenerator
	locker       Locker
	events       EventPublisher
	log          zerolog.Logger
	hub          *StatsHub
	strictAnswer bool
}

func newRuntime(component string, opts []Option) runtime {
	rt := runtime{
		now:    time.Now,
		newID:  uuid.NewString,
		locker: newLocalLocker(),
		events: NopPublisher{},
		log:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(&rt)
	}
	rt.log = rt.log.With().Str("component", component).Logger()
	return rt
}

// WithClock overrides time.Now, mainly for deterministic tests.
func WithClock(now Clock) Option {
	return func(rt *runtime) { rt.now = now }
}

// WithIDGenerator overrides the UUID generator.
func WithIDGenerator(gen IDGenerator) Option {
	return func(rt *runtime) { rt.newID = gen }
}

// WithLocker sets the per-entity lock provider.
func WithLocker(l Locker) Option {
	return func(rt *runtime) { rt.locker = l }
}

// WithEvents sets the event publisher.
func WithEvents(p EventPublisher) Option {
	return func(rt *runtime) { rt.events = p }
}

// WithLogger sets the base logger.
func WithLogger(log zerolog.Logger) Option {
	return func(rt *runtime) { rt.log = log }
}

// WithStatsHub makes submissions broadcast updated statistics to h.
func WithStatsHub(h *StatsHub) Option {
	return func(rt *runtime) { rt.hub = h }
}

// WithStrictCorrectOptions rejects questions whose correct options are not
// among their options. The default accepts them.
func WithStrictCorrectOptions(strict bool) Option {
	return func(rt *runtime) { rt.strictAnswer = strict }
}

func (rt runtime) publish(ctx context.Context, event Event) {
	event.OccurredAt = rt.now()
	if err := rt.events.Publish(ctx, event); err != nil {
		rt.log.Warn().Err(err).Str("event", event.Type).Str("entity_id", event.EntityID).Msg("publish event failed")
	}
}

// localLocker is the fallback Locker when none is configured.
type localLocker struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	ch   chan struct{}
	refs int
}

func newLocalLocker() *localLocker {
	return &localLocker{locks: make(map[string]*keyLock)}
}

func (l *localLocker) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	kl, ok := l.locks[key]
	if !ok {
		kl = &keyLock{ch: make(chan struct{}, 1)}
		l.locks[key] = kl
	}
	kl.refs++
	l.mu.Unlock()

	select {
	case kl.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(key, kl)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-kl.ch
			l.release(key, kl)
		})
	}, nil
}

func (l *localLocker) release(key string, kl *keyLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	kl.refs--
	if kl.refs == 0 {
		delete(l.locks, key)
	}
}
