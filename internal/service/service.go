package service

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"stockroom/backend/internal/cache"
	"stockroom/backend/internal/domain"
	"stockroom/backend/internal/events"
	"stockroom/backend/internal/search"
	"stockroom/backend/internal/sequence"
	"stockroom/backend/internal/stock"
	"stockroom/backend/internal/store"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

var systemActor = domain.Actor{ID: "system", Username: "system", Role: "system"}

func actorOrSystem(ctx context.Context) domain.Actor {
	if actor, ok := ActorFromContext(ctx); ok && actor.Username != "" {
		return actor
	}
	return systemActor
}

const (
	scopeInventory      = "inventory"
	scopePurchaseOrders = "purchase_orders"
	scopeAcquisitions   = "acquisitions"

	defaultRestockThreshold = 20
	poNumberAttempts        = 3
)

type Options struct {
	Audit    events.AuditLogger
	Notifier events.Notifier
	Cache    cache.ListingCache
	Logger   *logrus.Logger

	// DefaultRestockThreshold applies to items created without one.
	DefaultRestockThreshold int
	// StrictReceive rejects receipts above a line's remaining quantity
	// instead of absorbing the excess, and expiration dates sent without a
	// quantity instead of dropping them.
	StrictReceive   bool
	ListingCacheTTL time.Duration
	SearchThreshold float64
	Now             func() time.Time
}

type Service struct {
	repo      store.Repository
	ledger    *stock.Ledger
	allocator sequence.Allocator
	locker    stock.Locker
	audit     events.AuditLogger
	notifier  events.Notifier
	cache     cache.ListingCache
	matcher   search.Matcher
	log       *logrus.Entry
	now       func() time.Time

	defaultRestockThreshold int
	strictReceive           bool
	listingCacheTTL         time.Duration
}

func New(repo store.Repository, ledger *stock.Ledger, allocator sequence.Allocator, opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.Audit == nil {
		opts.Audit = discard{}
	}
	if opts.Notifier == nil {
		opts.Notifier = discard{}
	}
	if opts.Cache == nil {
		opts.Cache = cache.NoopListingCache{}
	}
	if opts.DefaultRestockThreshold <= 0 {
		opts.DefaultRestockThreshold = defaultRestockThreshold
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	if allocator == nil {
		allocator = sequence.NewCounter(repo)
	}

	return &Service{
		repo:                    repo,
		ledger:                  ledger,
		allocator:               allocator,
		locker:                  ledger.Locker(),
		audit:                   opts.Audit,
		notifier:                opts.Notifier,
		cache:                   opts.Cache,
		matcher:                 search.NewMatcher(opts.SearchThreshold),
		log:                     opts.Logger.WithField("component", "service"),
		now:                     opts.Now,
		defaultRestockThreshold: opts.DefaultRestockThreshold,
		strictReceive:           opts.StrictReceive,
		listingCacheTTL:         opts.ListingCacheTTL,
	}
}

func (s *Service) logAudit(ctx context.Context, action string, module string, description string) {
	s.audit.Log(ctx, action, module, description, actorOrSystem(ctx))
}

func (s *Service) notify(ctx context.Context, message string, severity domain.Severity, audience domain.Audience) {
	s.notifier.Notify(ctx, message, severity, audience)
}

// invalidate bumps a listing scope. A failure only means a stale page can be
// served until its TTL runs out.
func (s *Service) invalidate(ctx context.Context, scope string) {
	if err := s.cache.Invalidate(ctx, scope); err != nil {
		s.log.WithError(err).WithField("scope", scope).Warn("listing cache invalidation failed")
	}
}

type discard struct{}

func (discard) Log(context.Context, string, string, string, domain.Actor) {}

func (discard) Notify(context.Context, string, domain.Severity, domain.Audience) {}
