// Package review implements the submission state machine.
//
// A submission starts pending and ends approved, rejected or expired. Every
// request re-reads the submission inside the caller's transaction and checks
// existence, capability, status and age before it writes, in that order.
package review

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/okian/tierboard/internal/domain/classify"
	"github.com/okian/tierboard/internal/domain/model"
	"github.com/okian/tierboard/internal/domain/ratings"
)

// Defaults.
const (
	DefaultExpiry    = 48 * time.Hour
	DefaultReasonMax = 800
)

// BelowFloorReason is stored when an approval finds the score ineligible.
const BelowFloorReason = "below floor"

// Records is the slice of the repository the machine reads and writes.
type Records interface {
	ratings.Records
	Submission(ctx context.Context, id string) (model.Submission, bool, error)
	PutSubmission(ctx context.Context, sub model.Submission) error
}

// Outcome names what a successful Apply did.
type Outcome string

const (
	OutcomeApproved   Outcome = "approved"
	OutcomeRejected   Outcome = "rejected"
	OutcomeBelowFloor Outcome = "below_floor"
	OutcomeEdited     Outcome = "edited"
	OutcomeExpired    Outcome = "expired"
)

// Result is the state after a transition.
type Result struct {
	Submission model.Submission
	Outcome    Outcome
	// Rating is set when the submission was approved.
	Rating *model.Rating
}

// ResolvedError reports an action on a submission that is no longer pending.
type ResolvedError struct {
	Status model.Status
}

func (e *ResolvedError) Error() string {
	return fmt.Sprintf("already resolved: %s", e.Status)
}

func (e *ResolvedError) Unwrap() error { return model.ErrAlreadyResolved }

// Option applies a configuration option to the Machine.
type Option func(*Machine)

// WithExpiry sets the pending expiry window.
func WithExpiry(d time.Duration) Option {
	return func(m *Machine) {
		if d > 0 {
			m.expiry = d
		}
	}
}

// WithReasonMax bounds stored rejection reasons, in characters.
func WithReasonMax(n int) Option {
	return func(m *Machine) {
		if n > 0 {
			m.reasonMax = n
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Machine) {
		if now != nil {
			m.now = now
		}
	}
}

// Machine applies requests to submissions.
type Machine struct {
	classifier *classify.Classifier
	ratings    *ratings.Store
	expiry     time.Duration
	reasonMax  int
	now        func() time.Time
}

// New creates a Machine. c must be the classifier intake uses; rs receives
// approvals.
func New(c *classify.Classifier, rs *ratings.Store, opts ...Option) *Machine {
	if c == nil {
		c = classify.New()
	}
	if rs == nil {
		rs = ratings.New(c)
	}
	m := &Machine{
		classifier: c,
		ratings:    rs,
		expiry:     DefaultExpiry,
		reasonMax:  DefaultReasonMax,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Expiry returns the configured expiry window.
func (m *Machine) Expiry() time.Duration { return m.expiry }

// Stale reports whether sub is pending and older than the expiry window.
func (m *Machine) Stale(sub model.Submission) bool {
	return sub.Status == model.StatusPending && m.now().Sub(sub.CreatedAt) > m.expiry
}

// Apply runs req for actor against rec. rec must be a write transaction;
// the caller commits it whenever the returned Result carries a changed
// submission, including the expired case where err wraps model.ErrExpired.
func (m *Machine) Apply(ctx context.Context, rec Records, actor model.Actor, req Request) (Result, error) {
	const op = "review.apply"

	sub, ok, err := rec.Submission(ctx, req.SubmissionID())
	if err != nil {
		return Result{}, model.Wrap(op, err)
	}
	if !ok {
		return Result{}, model.NewKind(op, model.ErrNotFound)
	}
	if !actor.Moderator {
		return Result{}, model.NewKind(op, model.ErrForbidden)
	}
	if sub.Status != model.StatusPending {
		return Result{Submission: sub}, &ResolvedError{Status: sub.Status}
	}

	now := m.now()
	if now.Sub(sub.CreatedAt) > m.expiry {
		sub.Status = model.StatusExpired
		sub.ReviewedAt = now
		if err := rec.PutSubmission(ctx, sub); err != nil {
			return Result{}, model.Wrap(op, err)
		}
		res := Result{Submission: sub, Outcome: OutcomeExpired}
		if _, ok := req.(Expire); ok {
			return res, nil
		}
		return res, model.NewKind(op, model.ErrExpired)
	}

	switch r := req.(type) {
	case EditScore:
		return m.edit(ctx, rec, sub, r)
	case Approve:
		return m.approve(ctx, rec, actor, sub, now)
	case Reject:
		return m.reject(ctx, rec, actor, sub, r, now)
	case Expire:
		return Result{Submission: sub}, model.WrapKind(op, model.ErrInvalidInput,
			fmt.Errorf("submission is younger than %s", m.expiry))
	default:
		return Result{}, model.WrapKind(op, model.ErrInvalidInput, fmt.Errorf("unknown request %T", req))
	}
}

func (m *Machine) edit(ctx context.Context, rec Records, sub model.Submission, r EditScore) (Result, error) {
	const op = "review.edit"

	score, tier, ok := m.classifier.Classify(r.Text)
	if !ok {
		return Result{Submission: sub}, model.WrapKind(op, model.ErrInvalidInput,
			fmt.Errorf("need score ≥ %d", m.classifier.Floor()))
	}
	sub.Score = score
	sub.Tier = tier
	if err := rec.PutSubmission(ctx, sub); err != nil {
		return Result{}, model.Wrap(op, err)
	}
	return Result{Submission: sub, Outcome: OutcomeEdited}, nil
}

func (m *Machine) approve(ctx context.Context, rec Records, actor model.Actor, sub model.Submission, now time.Time) (Result, error) {
	const op = "review.approve"

	sub.ReviewedBy = actor.Tag
	sub.ReviewedAt = now

	tier := m.classifier.TierOf(sub.Score)
	if !tier.Valid() {
		sub.Status = model.StatusRejected
		sub.Tier = model.TierNone
		sub.RejectReason = BelowFloorReason
		if err := rec.PutSubmission(ctx, sub); err != nil {
			return Result{}, model.Wrap(op, err)
		}
		return Result{Submission: sub, Outcome: OutcomeBelowFloor}, nil
	}

	// Rating first: a failed upsert leaves the submission pending.
	rating, err := m.ratings.Upsert(ctx, rec, ratings.Input{
		MemberID:    sub.MemberID,
		DisplayName: sub.DisplayName,
		AvatarURL:   sub.AvatarURL,
		Score:       sub.Score,
		Tier:        tier,
		ProofURL:    sub.ProofURL,
	})
	if err != nil {
		return Result{}, model.Wrap(op, err)
	}
	sub.Tier = tier
	sub.Status = model.StatusApproved
	if err := rec.PutSubmission(ctx, sub); err != nil {
		return Result{}, model.Wrap(op, err)
	}
	return Result{Submission: sub, Outcome: OutcomeApproved, Rating: &rating}, nil
}

func (m *Machine) reject(ctx context.Context, rec Records, actor model.Actor, sub model.Submission, r Reject, now time.Time) (Result, error) {
	const op = "review.reject"

	reason := truncate(strings.TrimSpace(r.Reason), m.reasonMax)
	if reason == "" {
		return Result{Submission: sub}, model.WrapKind(op, model.ErrInvalidInput, fmt.Errorf("reason is required"))
	}
	sub.Status = model.StatusRejected
	sub.ReviewedBy = actor.Tag
	sub.ReviewedAt = now
	sub.RejectReason = reason
	if err := rec.PutSubmission(ctx, sub); err != nil {
		return Result{}, model.Wrap(op, err)
	}
	return Result{Submission: sub, Outcome: OutcomeRejected}, nil
}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max])
}
