package service

import (
	"context"
	"errors"

	"github.com/okian/tierboard/internal/adapters/repository"
	"github.com/okian/tierboard/internal/domain/hook"
	"github.com/okian/tierboard/internal/domain/intake"
	"github.com/okian/tierboard/internal/domain/model"
	"github.com/okian/tierboard/pkg/logger"
	"github.com/okian/tierboard/pkg/metrics"
)

// Submit runs a candidate through the intake gate. messageID identifies the
// inbound platform message; a message seen before yields ErrRedelivered.
// A refusal is an *intake.Rejection. On acceptance the review surface is
// published after the submission and cooldown have committed.
func (s *Service) Submit(ctx context.Context, messageID string, cand model.Candidate) (model.Submission, error) {
	const op = "service.submit"

	if messageID != "" && s.deduper.SeenAndRecord(ctx, messageID) {
		metrics.RecordMessageDuplicate()
		return model.Submission{}, ErrRedelivered
	}

	var sub model.Submission
	err := s.store.Update(ctx, func(tx repository.Tx) error {
		var err error
		sub, err = s.gate.Admit(ctx, tx, cand)
		return err
	})

	var rej *intake.Rejection
	switch {
	case errors.As(err, &rej):
		metrics.RecordIntakeRejection(string(rej.Reason))
		s.logger.Debug(ctx, "submission refused",
			logger.String("member_id", cand.MemberID),
			logger.String("reason", string(rej.Reason)),
			logger.Duration("remaining", rej.Remaining))
		return model.Submission{}, err
	case err != nil:
		// Nothing committed; let a redelivery try again.
		if messageID != "" {
			s.deduper.Unrecord(ctx, messageID)
		}
		s.logger.Error(ctx, "intake failed", logger.String("member_id", cand.MemberID), logger.Error(err))
		return model.Submission{}, storeErr(op, err)
	}

	metrics.RecordSubmissionAccepted()
	s.logger.Info(ctx, "submission accepted",
		logger.String("submission_id", sub.ID),
		logger.String("member_id", sub.MemberID),
		logger.Int("score", sub.Score),
		logger.String("tier", sub.Tier.String()))

	b := hook.NewBatch(op)
	b.Add("publish_review", s.publishReviewHook(sub.ID))
	s.runner.Run(ctx, b)
	return sub, nil
}
