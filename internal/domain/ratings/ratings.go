// Package ratings owns the member to current-rating mapping.
package ratings

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/tierboard/internal/domain/classify"
	"github.com/okian/tierboard/internal/domain/model"
)

// ConfirmToken must be passed verbatim to WipeAll.
const ConfirmToken = "WIPE"

// WipeMode selects what WipeAll clears besides the stored ratings.
type WipeMode string

const (
	// WipeSoft clears the stored ratings only.
	WipeSoft WipeMode = "soft"
	// WipeHard also deletes every rendered card.
	WipeHard WipeMode = "hard"
)

// ParseWipeMode validates a mode name.
func ParseWipeMode(s string) (WipeMode, error) {
	switch WipeMode(s) {
	case WipeSoft, WipeHard:
		return WipeMode(s), nil
	default:
		return "", fmt.Errorf("%w: unknown wipe mode %q", model.ErrInvalidInput, s)
	}
}

// Records is the slice of the repository the rating store needs.
type Records interface {
	Rating(ctx context.Context, memberID string) (model.Rating, bool, error)
	PutRating(ctx context.Context, r model.Rating) error
	DeleteRating(ctx context.Context, memberID string) (bool, error)
	Ratings(ctx context.Context) ([]model.Rating, error)
	DeleteRatings(ctx context.Context) (int, error)
}

// Input carries the fields an approval publishes.
type Input struct {
	MemberID    string
	DisplayName string
	AvatarURL   string
	Score       int
	// Tier is ignored; the stored tier is always derived from Score.
	Tier     model.Tier
	ProofURL string
}

// Option applies a configuration option to the Store.
type Option func(*Store)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// Store applies rating mutations through Records.
type Store struct {
	classifier *classify.Classifier
	now        func() time.Time
}

// New creates a Store that derives tiers with c.
func New(c *classify.Classifier, opts ...Option) *Store {
	if c == nil {
		c = classify.New()
	}
	s := &Store{classifier: c, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Upsert creates or overwrites the member's rating. The card pointer of an
// existing rating is kept so the card can be edited in place.
func (s *Store) Upsert(ctx context.Context, rec Records, in Input) (model.Rating, error) {
	const op = "ratings.upsert"

	tier := s.classifier.TierOf(in.Score)
	if in.MemberID == "" || !tier.Valid() {
		return model.Rating{}, model.WrapKind(op, model.ErrInvalidInput,
			fmt.Errorf("score %d is below floor %d", in.Score, s.classifier.Floor()))
	}
	prev, _, err := rec.Rating(ctx, in.MemberID)
	if err != nil {
		return model.Rating{}, model.Wrap(op, err)
	}
	r := model.Rating{
		MemberID:    in.MemberID,
		DisplayName: in.DisplayName,
		AvatarURL:   in.AvatarURL,
		Score:       in.Score,
		Tier:        tier,
		ProofURL:    in.ProofURL,
		UpdatedAt:   s.now(),
		Card:        prev.Card,
	}
	if r.AvatarURL == "" {
		r.AvatarURL = prev.AvatarURL
	}
	if err := rec.PutRating(ctx, r); err != nil {
		return model.Rating{}, model.Wrap(op, err)
	}
	return r, nil
}

// Remove deletes the member's rating and returns it so the caller can
// delete its card and release the participant role.
func (s *Store) Remove(ctx context.Context, rec Records, memberID string) (model.Rating, error) {
	const op = "ratings.remove"

	r, ok, err := rec.Rating(ctx, memberID)
	if err != nil {
		return model.Rating{}, model.Wrap(op, err)
	}
	if !ok {
		return model.Rating{}, model.NewKind(op, model.ErrNotFound)
	}
	if _, err := rec.DeleteRating(ctx, memberID); err != nil {
		return model.Rating{}, model.Wrap(op, err)
	}
	return r, nil
}

// WipeAll deletes every rating once confirm equals ConfirmToken and returns
// what was deleted. Permission checks are the caller's job.
func (s *Store) WipeAll(ctx context.Context, rec Records, mode WipeMode, confirm string) ([]model.Rating, error) {
	const op = "ratings.wipe"

	if confirm != ConfirmToken {
		return nil, model.NewKind(op, model.ErrNotConfirmed)
	}
	if _, err := ParseWipeMode(string(mode)); err != nil {
		return nil, model.Wrap(op, err)
	}
	all, err := rec.Ratings(ctx)
	if err != nil {
		return nil, model.Wrap(op, err)
	}
	if _, err := rec.DeleteRatings(ctx); err != nil {
		return nil, model.Wrap(op, err)
	}
	return all, nil
}
