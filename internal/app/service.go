// Package service orchestrates the submission pipeline: intake, review,
// the rating store and the leaderboard, plus the post-commit side effects
// each of them triggers on the chat platform.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/okian/tierboard/internal/adapters/repository"
	"github.com/okian/tierboard/internal/domain/classify"
	"github.com/okian/tierboard/internal/domain/dedupe"
	"github.com/okian/tierboard/internal/domain/hook"
	"github.com/okian/tierboard/internal/domain/intake"
	"github.com/okian/tierboard/internal/domain/model"
	"github.com/okian/tierboard/internal/domain/ratings"
	"github.com/okian/tierboard/internal/domain/review"
	"github.com/okian/tierboard/pkg/logger"
	"github.com/okian/tierboard/pkg/metrics"
)

// ErrRedelivered reports an inbound message that was already handled.
var ErrRedelivered = errors.New("message already handled")

// Service wires the domain components to a store and a platform.
type Service struct {
	mu sync.RWMutex

	store      repository.Store
	classifier *classify.Classifier
	gate       *intake.Gate
	machine    *review.Machine
	ratings    *ratings.Store
	deduper    dedupe.Deduper
	platform   Platform
	runner     hook.Runner

	// Configuration
	floors     [model.TierCount]int
	cooldown   time.Duration
	expiry     time.Duration
	reasonMax  int
	retention  time.Duration
	dedupeSize int
	now        func() time.Time
	newID      func() string

	started bool
	logger  logger.Logger
}

// New constructs a Service over store.
func New(store repository.Store, opts ...Option) *Service {
	s := &Service{
		store:      store,
		floors:     classify.DefaultFloors,
		cooldown:   intake.DefaultCooldown,
		expiry:     review.DefaultExpiry,
		reasonMax:  review.DefaultReasonMax,
		dedupeSize: 10_000,
		platform:   nopPlatform{},
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	if s.runner == nil {
		s.runner = hook.NewInline(s.logger.Named("hook"))
	}
	if s.deduper == nil {
		s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	}

	s.classifier = classify.New(classify.WithFloors(s.floors))
	s.ratings = ratings.New(s.classifier, ratings.WithClock(s.now))
	gateOpts := []intake.Option{intake.WithCooldown(s.cooldown), intake.WithClock(s.now)}
	if s.newID != nil {
		gateOpts = append(gateOpts, intake.WithIDGenerator(s.newID))
	}
	s.gate = intake.New(s.classifier, gateOpts...)
	s.machine = review.New(s.classifier, s.ratings,
		review.WithExpiry(s.expiry),
		review.WithReasonMax(s.reasonMax),
		review.WithClock(s.now),
	)
	return s
}

// SetPlatform attaches the chat-platform collaborator after construction.
func (s *Service) SetPlatform(p Platform) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p == nil {
		p = nopPlatform{}
	}
	s.platform = p
}

func (s *Service) plat() Platform {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.platform
}

// Classifier exposes the classifier the service was built with.
func (s *Service) Classifier() *classify.Classifier { return s.classifier }

// Start re-syncs tier roles and the leaderboard index. It is safe to call
// more than once.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	s.mu.Unlock()

	s.logger.Info(ctx, "starting tierboard service",
		logger.Any("floors", s.floors),
		logger.Duration("cooldown", s.cooldown),
		logger.Duration("expiry", s.expiry),
	)
	if err := s.SyncRoles(ctx); err != nil {
		return fmt.Errorf("sync roles: %w", err)
	}
	b := hook.NewBatch("start")
	b.Add("leaderboard", s.publishLeaderboard)
	s.runner.Run(ctx, b)
	if _, err := s.GetStats(ctx); err != nil {
		s.logger.Warn(ctx, "initial stats refresh failed", logger.Error(err))
	}
	return nil
}

// Stop marks the service stopped. The store and runner are owned by the caller.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return
	}
	s.started = false
	s.logger.Info(context.Background(), "tierboard service stopped")
}

// GetStats returns counts for monitoring and refreshes the gauges.
func (s *Service) GetStats(ctx context.Context) (map[string]any, error) {
	var (
		counts map[model.Status]int
		rated  []model.Rating
	)
	err := s.store.View(ctx, func(tx repository.Tx) error {
		var err error
		if counts, err = tx.CountSubmissions(ctx); err != nil {
			return err
		}
		rated, err = tx.Ratings(ctx)
		return err
	})
	if err != nil {
		return nil, model.WrapKind("service.stats", model.ErrCollaborator, err)
	}

	perTier := make(map[string]int, model.TierCount)
	for t := model.Tier(1); t <= model.TierCount; t++ {
		perTier[t.String()] = 0
	}
	for _, r := range rated {
		perTier[r.Tier.String()]++
	}
	for tier, n := range perTier {
		metrics.UpdateRatingsPerTier(tier, n)
	}
	metrics.UpdateRatingsTotal(len(rated))
	metrics.UpdatePendingTotal(counts[model.StatusPending])

	s.mu.RLock()
	started := s.started
	s.mu.RUnlock()

	return map[string]any{
		"started":     started,
		"ratings":     len(rated),
		"ratingsTier": perTier,
		"pending":     counts[model.StatusPending],
		"approved":    counts[model.StatusApproved],
		"rejected":    counts[model.StatusRejected],
		"expired":     counts[model.StatusExpired],
		"dedupeSize":  s.deduper.Size(),
	}, nil
}

// requireModerator refuses actors without moderator capability.
func requireModerator(op string, actor model.Actor) error {
	if actor.Moderator || actor.System {
		return nil
	}
	return model.NewKind(op, model.ErrForbidden)
}

// storeErr tags a persistence failure that is not already a domain error.
func storeErr(op string, err error) error {
	if err == nil || model.KindOf(err) != nil {
		return err
	}
	return model.WrapKind(op, model.ErrCollaborator, err)
}
