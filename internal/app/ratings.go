package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/okian/tierboard/internal/adapters/repository"
	"github.com/okian/tierboard/internal/domain/hook"
	"github.com/okian/tierboard/internal/domain/leaderboard"
	"github.com/okian/tierboard/internal/domain/model"
	"github.com/okian/tierboard/internal/domain/ratings"
	"github.com/okian/tierboard/pkg/logger"
	"github.com/okian/tierboard/pkg/metrics"
)

// MaxLabelLength bounds a tier label.
const MaxLabelLength = 32

// RatingOf returns the member's published rating.
func (s *Service) RatingOf(ctx context.Context, memberID string) (model.Rating, error) {
	const op = "service.rating_of"

	var (
		r  model.Rating
		ok bool
	)
	err := s.store.View(ctx, func(tx repository.Tx) error {
		var err error
		r, ok, err = tx.Rating(ctx, memberID)
		return err
	})
	if err != nil {
		return model.Rating{}, storeErr(op, err)
	}
	if !ok {
		return model.Rating{}, model.NewKind(op, model.ErrNotFound)
	}
	return r, nil
}

// Leaderboard renders the current rating store.
func (s *Service) Leaderboard(ctx context.Context) (leaderboard.Board, error) {
	board, _, err := s.board(ctx)
	if err != nil {
		return leaderboard.Board{}, storeErr("service.leaderboard", err)
	}
	return board, nil
}

// Remove deletes a member's rating, their card and their tier role.
func (s *Service) Remove(ctx context.Context, actor model.Actor, memberID string) (model.Rating, error) {
	const op = "service.remove"

	if err := requireModerator(op, actor); err != nil {
		return model.Rating{}, err
	}
	var removed model.Rating
	err := s.store.Update(ctx, func(tx repository.Tx) error {
		var err error
		removed, err = s.ratings.Remove(ctx, tx, memberID)
		return err
	})
	if err != nil {
		return model.Rating{}, storeErr(op, err)
	}

	s.logger.Info(ctx, "rating removed", logger.String("member_id", memberID), logger.String("actor", actor.Tag))
	b := hook.NewBatch(op)
	b.Add("delete_card", s.deleteCardHook(removed.Card))
	b.Add("release_role", s.roleHook(memberID, false))
	b.Add("audit", s.auditHook(fmt.Sprintf("REMOVED %s score=%d by %s", memberID, removed.Score, actor.Tag)))
	b.Add("leaderboard", s.publishLeaderboard)
	s.runner.Run(ctx, b)
	return removed, nil
}

// Wipe deletes every rating. confirm must equal ratings.ConfirmToken.
func (s *Service) Wipe(ctx context.Context, actor model.Actor, mode ratings.WipeMode, confirm string) (int, error) {
	const op = "service.wipe"

	if err := requireModerator(op, actor); err != nil {
		return 0, err
	}
	var wiped []model.Rating
	err := s.store.Update(ctx, func(tx repository.Tx) error {
		var err error
		wiped, err = s.ratings.WipeAll(ctx, tx, mode, confirm)
		return err
	})
	if err != nil {
		return 0, storeErr(op, err)
	}

	s.logger.Warn(ctx, "ratings wiped",
		logger.String("mode", string(mode)),
		logger.Int("count", len(wiped)),
		logger.String("actor", actor.Tag))
	b := hook.NewBatch(op)
	for _, r := range wiped {
		if mode == ratings.WipeHard {
			b.Add("delete_card", s.deleteCardHook(r.Card))
		}
		b.Add("release_role", s.roleHook(r.MemberID, false))
	}
	b.Add("audit", s.auditHook(fmt.Sprintf("WIPE_RATINGS mode=%s count=%d by %s", mode, len(wiped), actor.Tag)))
	b.Add("leaderboard", s.publishLeaderboard)
	s.runner.Run(ctx, b)
	return len(wiped), nil
}

// SetLabels replaces all five tier labels.
func (s *Service) SetLabels(ctx context.Context, actor model.Actor, labels [model.TierCount]string) (model.Settings, error) {
	const op = "service.set_labels"

	if err := requireModerator(op, actor); err != nil {
		return model.Settings{}, err
	}
	for i := range labels {
		labels[i] = strings.TrimSpace(labels[i])
		if labels[i] == "" || len([]rune(labels[i])) > MaxLabelLength {
			return model.Settings{}, model.WrapKind(op, model.ErrInvalidInput,
				fmt.Errorf("label for tier %d must be 1..%d characters", i+1, MaxLabelLength))
		}
	}

	var settings model.Settings
	err := s.store.Update(ctx, func(tx repository.Tx) error {
		var err error
		if settings, err = tx.Settings(ctx); err != nil {
			return err
		}
		settings.TierLabels = labels
		return tx.PutSettings(ctx, settings)
	})
	if err != nil {
		return model.Settings{}, storeErr(op, err)
	}

	b := hook.NewBatch(op)
	b.Add("audit", s.auditHook(fmt.Sprintf("LABELS %s by %s", strings.Join(labels[:], " | "), actor.Tag)))
	b.Add("leaderboard", s.publishLeaderboard)
	s.runner.Run(ctx, b)
	return settings, nil
}

// Rebuild re-renders every rating card and the leaderboard index.
func (s *Service) Rebuild(ctx context.Context, actor model.Actor) (int, error) {
	const op = "service.rebuild"

	if err := requireModerator(op, actor); err != nil {
		return 0, err
	}
	var rated []model.Rating
	err := s.store.View(ctx, func(tx repository.Tx) error {
		var err error
		rated, err = tx.Ratings(ctx)
		return err
	})
	if err != nil {
		return 0, storeErr(op, err)
	}

	b := hook.NewBatch(op)
	for _, r := range rated {
		b.Add("publish_card", s.publishCardHook(r.MemberID, ""))
	}
	b.Add("leaderboard", s.publishLeaderboard)
	s.runner.Run(ctx, b)
	return len(rated), nil
}

// SyncRoles grants the tier participant role to every rated member.
func (s *Service) SyncRoles(ctx context.Context) error {
	var rated []model.Rating
	err := s.store.View(ctx, func(tx repository.Tx) error {
		var err error
		rated, err = tx.Ratings(ctx)
		return err
	})
	if err != nil {
		return storeErr("service.sync_roles", err)
	}
	if len(rated) == 0 {
		return nil
	}
	b := hook.NewBatch("service.sync_roles")
	for _, r := range rated {
		b.Add("grant_role", s.roleHook(r.MemberID, true))
	}
	s.runner.Run(ctx, b)
	return nil
}

// Prune deletes resolved submissions older than the retention window.
// It is a no-op when retention is disabled.
func (s *Service) Prune(ctx context.Context) (int, error) {
	if s.retention <= 0 {
		return 0, nil
	}
	cutoff := s.now().Add(-s.retention)
	var n int
	err := s.store.Update(ctx, func(tx repository.Tx) error {
		var err error
		n, err = tx.PruneSubmissions(ctx, cutoff)
		return err
	})
	if err != nil {
		return 0, storeErr("service.prune", err)
	}
	if n > 0 {
		metrics.RecordPruned(n)
		s.logger.Info(ctx, "pruned resolved submissions", logger.Int("count", n), logger.Time("cutoff", cutoff))
	}
	return n, nil
}

// Settings returns the current tier labels and index pointer.
func (s *Service) Settings(ctx context.Context) (model.Settings, error) {
	var st model.Settings
	err := s.store.View(ctx, func(tx repository.Tx) error {
		var err error
		st, err = tx.Settings(ctx)
		return err
	})
	if err != nil {
		return model.Settings{}, storeErr("service.settings", err)
	}
	return st, nil
}
