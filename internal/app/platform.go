package service

import (
	"context"

	"github.com/okian/tierboard/internal/domain/leaderboard"
	"github.com/okian/tierboard/internal/domain/model"
)

// Platform is the chat-platform collaborator the service drives after a
// state change commits. Every call is best-effort.
type Platform interface {
	// PublishReview posts the moderator review surface for a new submission.
	PublishReview(ctx context.Context, sub model.Submission) (model.SurfaceRef, error)
	// UpdateReview re-renders sub.Review to reflect the current state.
	UpdateReview(ctx context.Context, sub model.Submission) error
	// NotifyMember tells the submitter how their claim was resolved.
	NotifyMember(ctx context.Context, sub model.Submission) error
	// Audit appends one line to the moderation log.
	Audit(ctx context.Context, line string) error
	// PublishCard renders r, editing r.Card in place when it still exists.
	PublishCard(ctx context.Context, r model.Rating, reviewer string, settings model.Settings) (model.SurfaceRef, error)
	// DeleteCard removes a rendered rating card.
	DeleteCard(ctx context.Context, ref model.SurfaceRef) error
	// SetTierRole grants or releases the tier participant role.
	SetTierRole(ctx context.Context, memberID string, grant bool) error
	// PublishLeaderboard renders board into the index message at ref, or a
	// new one when ref is missing, and returns where it lives.
	PublishLeaderboard(ctx context.Context, board leaderboard.Board, ref model.SurfaceRef) (model.SurfaceRef, error)
}

// nopPlatform is used while no gateway is attached.
type nopPlatform struct{}

func (nopPlatform) PublishReview(context.Context, model.Submission) (model.SurfaceRef, error) {
	return model.SurfaceRef{}, nil
}
func (nopPlatform) UpdateReview(context.Context, model.Submission) error { return nil }
func (nopPlatform) NotifyMember(context.Context, model.Submission) error { return nil }
func (nopPlatform) Audit(context.Context, string) error                  { return nil }
func (nopPlatform) PublishCard(context.Context, model.Rating, string, model.Settings) (model.SurfaceRef, error) {
	return model.SurfaceRef{}, nil
}
func (nopPlatform) DeleteCard(context.Context, model.SurfaceRef) error { return nil }
func (nopPlatform) SetTierRole(context.Context, string, bool) error    { return nil }
func (nopPlatform) PublishLeaderboard(_ context.Context, _ leaderboard.Board, ref model.SurfaceRef) (model.SurfaceRef, error) {
	return ref, nil
}
