package service

import (
	"time"

	"github.com/okian/tierboard/internal/domain/dedupe"
	"github.com/okian/tierboard/internal/domain/hook"
	"github.com/okian/tierboard/internal/domain/model"
	"github.com/okian/tierboard/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithFloors sets the five tier floors.
func WithFloors(floors [model.TierCount]int) Option {
	return func(s *Service) {
		s.floors = floors
	}
}

// WithCooldown sets the gap between two accepted submissions of a member.
// Zero disables the cooldown.
func WithCooldown(d time.Duration) Option {
	return func(s *Service) {
		if d >= 0 {
			s.cooldown = d
		}
	}
}

// WithExpiry sets the age after which a pending submission expires.
func WithExpiry(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.expiry = d
		}
	}
}

// WithReasonMax bounds stored rejection reasons, in characters.
func WithReasonMax(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.reasonMax = n
		}
	}
}

// WithRetention enables pruning of resolved submissions older than d.
func WithRetention(d time.Duration) Option {
	return func(s *Service) {
		if d >= 0 {
			s.retention = d
		}
	}
}

// WithDedupeSize sets the size of the inbound message deduplication cache.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithDeduper replaces the inbound message deduplication cache.
func WithDeduper(d dedupe.Deduper) Option {
	return func(s *Service) {
		if d != nil {
			s.deduper = d
		}
	}
}

// WithPlatform attaches the chat-platform collaborator.
func WithPlatform(p Platform) Option {
	return func(s *Service) {
		if p != nil {
			s.platform = p
		}
	}
}

// WithRunner sets how post-commit hook batches are executed.
func WithRunner(r hook.Runner) Option {
	return func(s *Service) {
		if r != nil {
			s.runner = r
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator overrides submission id generation.
func WithIDGenerator(gen func() string) Option {
	return func(s *Service) {
		if gen != nil {
			s.newID = gen
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}
