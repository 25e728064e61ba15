package service

import (
	"context"
	"fmt"

	"github.com/okian/tierboard/internal/adapters/repository"
	"github.com/okian/tierboard/internal/domain/hook"
	"github.com/okian/tierboard/internal/domain/leaderboard"
	"github.com/okian/tierboard/internal/domain/model"
	"github.com/okian/tierboard/pkg/metrics"
)

// Hooks read the latest committed state when they run, so a batch that
// executes late still renders what is current.

func (s *Service) submission(ctx context.Context, id string) (model.Submission, bool, error) {
	var (
		sub model.Submission
		ok  bool
	)
	err := s.store.View(ctx, func(tx repository.Tx) error {
		var err error
		sub, ok, err = tx.Submission(ctx, id)
		return err
	})
	return sub, ok, err
}

func (s *Service) publishReviewHook(id string) hook.Func {
	return func(ctx context.Context) error {
		sub, ok, err := s.submission(ctx, id)
		if err != nil || !ok {
			return err
		}
		ref, err := s.plat().PublishReview(ctx, sub)
		if err != nil {
			return fmt.Errorf("publish review %s: %w", id, err)
		}
		if ref.IsZero() {
			return nil
		}
		return s.store.Update(ctx, func(tx repository.Tx) error {
			cur, ok, err := tx.Submission(ctx, id)
			if err != nil || !ok {
				return err
			}
			cur.Review = ref
			return tx.PutSubmission(ctx, cur)
		})
	}
}

func (s *Service) updateReviewHook(id string) hook.Func {
	return func(ctx context.Context) error {
		sub, ok, err := s.submission(ctx, id)
		if err != nil || !ok {
			return err
		}
		if sub.Review.IsZero() {
			return nil
		}
		return s.plat().UpdateReview(ctx, sub)
	}
}

func (s *Service) notifyHook(sub model.Submission) hook.Func {
	return func(ctx context.Context) error {
		return s.plat().NotifyMember(ctx, sub)
	}
}

func (s *Service) auditHook(line string) hook.Func {
	return func(ctx context.Context) error {
		return s.plat().Audit(ctx, line)
	}
}

func (s *Service) roleHook(memberID string, grant bool) hook.Func {
	return func(ctx context.Context) error {
		return s.plat().SetTierRole(ctx, memberID, grant)
	}
}

func (s *Service) deleteCardHook(ref model.SurfaceRef) hook.Func {
	if ref.IsZero() {
		return nil
	}
	return func(ctx context.Context) error {
		return s.plat().DeleteCard(ctx, ref)
	}
}

func (s *Service) publishCardHook(memberID, reviewer string) hook.Func {
	return func(ctx context.Context) error {
		var (
			r        model.Rating
			ok       bool
			settings model.Settings
		)
		err := s.store.View(ctx, func(tx repository.Tx) error {
			var err error
			if r, ok, err = tx.Rating(ctx, memberID); err != nil {
				return err
			}
			settings, err = tx.Settings(ctx)
			return err
		})
		if err != nil || !ok {
			return err
		}
		ref, err := s.plat().PublishCard(ctx, r, reviewer, settings)
		if err != nil {
			return fmt.Errorf("publish card %s: %w", memberID, err)
		}
		if ref == r.Card || ref.IsZero() {
			return nil
		}
		return s.store.Update(ctx, func(tx repository.Tx) error {
			cur, ok, err := tx.Rating(ctx, memberID)
			if err != nil || !ok {
				return err
			}
			cur.Card = ref
			return tx.PutRating(ctx, cur)
		})
	}
}

// publishLeaderboard re-renders the index message from the whole store.
func (s *Service) publishLeaderboard(ctx context.Context) error {
	board, settings, err := s.board(ctx)
	if err != nil {
		return err
	}
	ref, err := s.plat().PublishLeaderboard(ctx, board, settings.Index)
	if err != nil {
		return fmt.Errorf("publish leaderboard: %w", err)
	}
	if ref == settings.Index || ref.IsZero() {
		return nil
	}
	return s.store.Update(ctx, func(tx repository.Tx) error {
		cur, err := tx.Settings(ctx)
		if err != nil {
			return err
		}
		cur.Index = ref
		return tx.PutSettings(ctx, cur)
	})
}

func (s *Service) board(ctx context.Context) (leaderboard.Board, model.Settings, error) {
	var (
		rated    []model.Rating
		settings model.Settings
	)
	err := s.store.View(ctx, func(tx repository.Tx) error {
		var err error
		if rated, err = tx.Ratings(ctx); err != nil {
			return err
		}
		settings, err = tx.Settings(ctx)
		return err
	})
	if err != nil {
		return leaderboard.Board{}, model.Settings{}, err
	}
	metrics.RecordLeaderboardRender()
	return leaderboard.Render(rated, settings), settings, nil
}
