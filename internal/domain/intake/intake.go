// Package intake decides whether an inbound score claim becomes a pending
// submission.
package intake

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/okian/tierboard/internal/domain/classify"
	"github.com/okian/tierboard/internal/domain/model"
)

// DefaultCooldown is the minimum gap between two accepted submissions.
const DefaultCooldown = 120 * time.Second

// Records is the slice of the repository the gate reads and writes. Both
// writes must land in the same transaction.
type Records interface {
	Rating(ctx context.Context, memberID string) (model.Rating, bool, error)
	PendingOf(ctx context.Context, memberID string) (model.Submission, bool, error)
	Cooldown(ctx context.Context, memberID string) (time.Time, bool, error)
	PutSubmission(ctx context.Context, sub model.Submission) error
	PutCooldown(ctx context.Context, memberID string, at time.Time) error
}

// Reason is the user-facing cause of a rejected candidate.
type Reason string

const (
	ReasonInvalid        Reason = "need image + score"
	ReasonDuplicateScore Reason = "duplicate score"
	ReasonPending        Reason = "already under review"
	ReasonCooldown       Reason = "cooldown"
)

// Rejection is returned by Admit when a candidate is refused.
type Rejection struct {
	Reason Reason
	// Kind is model.ErrInvalidInput or model.ErrDuplicateState.
	Kind error
	// Remaining is set for cooldown rejections.
	Remaining time.Duration
}

func (r *Rejection) Error() string {
	if r.Reason == ReasonCooldown {
		return fmt.Sprintf("%s: %ds left", r.Reason, int64(r.Remaining/time.Second))
	}
	return string(r.Reason)
}

func (r *Rejection) Unwrap() error { return r.Kind }

// Option applies a configuration option to the Gate.
type Option func(*Gate)

// WithCooldown sets the cooldown window. Zero disables the check.
func WithCooldown(d time.Duration) Option {
	return func(g *Gate) {
		if d >= 0 {
			g.cooldown = d
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(g *Gate) {
		if now != nil {
			g.now = now
		}
	}
}

// WithIDGenerator overrides submission id generation.
func WithIDGenerator(gen func() string) Option {
	return func(g *Gate) {
		if gen != nil {
			g.newID = gen
		}
	}
}

// Gate validates candidates in a fixed order: format, duplicate score,
// pending submission, cooldown. The first failing check wins.
type Gate struct {
	classifier *classify.Classifier
	cooldown   time.Duration
	now        func() time.Time
	newID      func() string
}

// New creates a Gate using c for classification.
func New(c *classify.Classifier, opts ...Option) *Gate {
	if c == nil {
		c = classify.New()
	}
	g := &Gate{
		classifier: c,
		cooldown:   DefaultCooldown,
		now:        time.Now,
		newID:      uuid.NewString,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Admit evaluates cand against rec. On acceptance the pending submission and
// the member's cooldown stamp are written through rec and the submission is
// returned. A refusal is a *Rejection and writes nothing.
func (g *Gate) Admit(ctx context.Context, rec Records, cand model.Candidate) (model.Submission, error) {
	const op = "intake.admit"

	if !classify.IsImage(cand.Attachment) {
		return model.Submission{}, &Rejection{Reason: ReasonInvalid, Kind: model.ErrInvalidInput}
	}
	score, tier, ok := g.classifier.Classify(cand.Text)
	if !ok {
		return model.Submission{}, &Rejection{Reason: ReasonInvalid, Kind: model.ErrInvalidInput}
	}

	current, rated, err := rec.Rating(ctx, cand.MemberID)
	if err != nil {
		return model.Submission{}, model.Wrap(op, err)
	}
	if rated && current.Score == score {
		return model.Submission{}, &Rejection{Reason: ReasonDuplicateScore, Kind: model.ErrDuplicateState}
	}

	if _, pending, err := rec.PendingOf(ctx, cand.MemberID); err != nil {
		return model.Submission{}, model.Wrap(op, err)
	} else if pending {
		return model.Submission{}, &Rejection{Reason: ReasonPending, Kind: model.ErrDuplicateState}
	}

	now := g.now()
	if g.cooldown > 0 {
		last, seen, err := rec.Cooldown(ctx, cand.MemberID)
		if err != nil {
			return model.Submission{}, model.Wrap(op, err)
		}
		if seen {
			// Whole elapsed seconds, so a claim 119.9s later still waits 1s.
			left := g.cooldown/time.Second - now.Sub(last)/time.Second
			if left > 0 {
				return model.Submission{}, &Rejection{
					Reason:    ReasonCooldown,
					Kind:      model.ErrDuplicateState,
					Remaining: left * time.Second,
				}
			}
		}
	}

	sub := model.Submission{
		ID:          g.newID(),
		MemberID:    cand.MemberID,
		DisplayName: cand.DisplayName,
		AvatarURL:   cand.AvatarURL,
		Score:       score,
		Tier:        tier,
		ProofURL:    cand.Attachment.URL,
		MessageURL:  cand.MessageURL,
		CreatedAt:   now,
		Status:      model.StatusPending,
	}
	if err := rec.PutSubmission(ctx, sub); err != nil {
		return model.Submission{}, model.Wrap(op, err)
	}
	if err := rec.PutCooldown(ctx, cand.MemberID, now); err != nil {
		return model.Submission{}, model.Wrap(op, err)
	}
	return sub, nil
}
