package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/okian/tierboard/internal/adapters/repository"
	"github.com/okian/tierboard/internal/domain/hook"
	"github.com/okian/tierboard/internal/domain/model"
	"github.com/okian/tierboard/internal/domain/review"
	"github.com/okian/tierboard/pkg/logger"
	"github.com/okian/tierboard/pkg/metrics"
)

// PendingLimit is how many pending submissions a listing shows.
const PendingLimit = 15

// PendingView is a page of the review queue.
type PendingView struct {
	// Items holds the newest pending submissions, at most PendingLimit.
	Items []model.Submission
	// Total counts every pending submission.
	Total int
	// Expired counts stale submissions expired while listing.
	Expired int
}

// Review applies a moderator request. When the submission has outlived the
// expiry window the expiry is committed and the returned error wraps
// model.ErrExpired. A *review.ResolvedError carries the current state in
// the returned Result.
func (s *Service) Review(ctx context.Context, actor model.Actor, req review.Request) (review.Result, error) {
	const op = "service.review"

	var (
		res      review.Result
		applyErr error
	)
	err := s.store.Update(ctx, func(tx repository.Tx) error {
		res, applyErr = s.machine.Apply(ctx, tx, actor, req)
		if applyErr != nil && !errors.Is(applyErr, model.ErrExpired) {
			return applyErr
		}
		return nil
	})
	if err != nil {
		// A failed commit discards the expiry as well.
		if applyErr == nil || errors.Is(applyErr, model.ErrExpired) {
			err = storeErr(op, err)
			res = review.Result{}
		}
		metrics.RecordReviewFailure(kindLabel(err))
		s.logger.Debug(ctx, "review refused",
			logger.String("submission_id", req.SubmissionID()),
			logger.String("actor", actor.Tag),
			logger.Error(err))
		return res, err
	}

	metrics.RecordTransition(string(res.Outcome))
	s.logger.Info(ctx, "submission reviewed",
		logger.String("submission_id", res.Submission.ID),
		logger.String("member_id", res.Submission.MemberID),
		logger.String("outcome", string(res.Outcome)),
		logger.String("actor", actor.Tag))

	s.runner.Run(ctx, s.reviewHooks(actor, res))
	return res, applyErr
}

// BeginReview checks that actor may start a two-step action (edit or
// reject) on submission id before any input is collected. The checks run in
// the same order as Review. A stale submission is expired on the spot and
// the returned error wraps model.ErrExpired.
func (s *Service) BeginReview(ctx context.Context, actor model.Actor, id string) (model.Submission, error) {
	const op = "service.begin_review"

	sub, ok, err := s.submission(ctx, id)
	if err != nil {
		return model.Submission{}, storeErr(op, err)
	}
	switch {
	case !ok:
		return model.Submission{}, model.NewKind(op, model.ErrNotFound)
	case !actor.Moderator && !actor.System:
		return model.Submission{}, model.NewKind(op, model.ErrForbidden)
	case sub.Status.Terminal():
		return sub, &review.ResolvedError{Status: sub.Status}
	case s.machine.Stale(sub):
		res, err := s.Review(ctx, model.SystemActor, review.Expire{ID: id})
		if err != nil {
			return model.Submission{}, err
		}
		return res.Submission, model.NewKind(op, model.ErrExpired)
	}
	return sub, nil
}

func (s *Service) reviewHooks(actor model.Actor, res review.Result) hook.Batch {
	sub := res.Submission
	b := hook.NewBatch("review." + string(res.Outcome))
	b.Add("update_review", s.updateReviewHook(sub.ID))
	if !sub.Status.Terminal() {
		return b
	}
	b.Add("notify_member", s.notifyHook(sub))
	b.Add("audit", s.auditHook(auditLine(actor, sub)))
	if res.Outcome == review.OutcomeApproved {
		b.Add("publish_card", s.publishCardHook(sub.MemberID, actor.Tag))
		b.Add("grant_role", s.roleHook(sub.MemberID, true))
		b.Add("leaderboard", s.publishLeaderboard)
	}
	return b
}

func auditLine(actor model.Actor, sub model.Submission) string {
	switch sub.Status {
	case model.StatusApproved:
		return fmt.Sprintf("APPROVED %s score=%d tier=%s by %s (submission %s)",
			sub.MemberID, sub.Score, sub.Tier, actor.Tag, sub.ID)
	case model.StatusRejected:
		return fmt.Sprintf("REJECTED %s score=%d by %s: %s (submission %s)",
			sub.MemberID, sub.Score, actor.Tag, sub.RejectReason, sub.ID)
	default:
		return fmt.Sprintf("%s %s score=%d (submission %s)",
			string(sub.Status), sub.MemberID, sub.Score, sub.ID)
	}
}

// Pending lists the review queue for a moderator. Stale submissions found
// while listing are expired first.
func (s *Service) Pending(ctx context.Context, actor model.Actor) (PendingView, error) {
	const op = "service.pending"

	if err := requireModerator(op, actor); err != nil {
		return PendingView{}, err
	}

	var (
		view    PendingView
		expired []review.Result
	)
	err := s.store.Update(ctx, func(tx repository.Tx) error {
		expired = expired[:0]
		all, err := tx.Pending(ctx)
		if err != nil {
			return err
		}
		live := all[:0]
		for _, sub := range all {
			if !s.machine.Stale(sub) {
				live = append(live, sub)
				continue
			}
			res, err := s.machine.Apply(ctx, tx, model.SystemActor, review.Expire{ID: sub.ID})
			if err != nil {
				return err
			}
			expired = append(expired, res)
		}
		view = PendingView{Total: len(live), Expired: len(expired)}
		if len(live) > PendingLimit {
			live = live[:PendingLimit]
		}
		view.Items = append([]model.Submission(nil), live...)
		return nil
	})
	if err != nil {
		return PendingView{}, storeErr(op, err)
	}

	for _, res := range expired {
		metrics.RecordTransition(string(res.Outcome))
		s.runner.Run(ctx, s.reviewHooks(model.SystemActor, res))
	}
	return view, nil
}

// ListPending returns the newest pending submissions without expiring any.
func (s *Service) ListPending(ctx context.Context, limit int) ([]model.Submission, int, error) {
	var all []model.Submission
	err := s.store.View(ctx, func(tx repository.Tx) error {
		var err error
		all, err = tx.Pending(ctx)
		return err
	})
	if err != nil {
		return nil, 0, storeErr("service.list_pending", err)
	}
	total := len(all)
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, total, nil
}

func kindLabel(err error) string {
	var resolved *review.ResolvedError
	if errors.As(err, &resolved) {
		return "already_resolved"
	}
	switch model.KindOf(err) {
	case model.ErrInvalidInput:
		return "invalid_input"
	case model.ErrDuplicateState:
		return "duplicate_state"
	case model.ErrForbidden:
		return "forbidden"
	case model.ErrNotFound:
		return "not_found"
	case model.ErrAlreadyResolved:
		return "already_resolved"
	case model.ErrExpired:
		return "expired"
	case model.ErrNotConfirmed:
		return "not_confirmed"
	default:
		return "collaborator"
	}
}
