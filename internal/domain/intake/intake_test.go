package intake_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/okian/tierboard/internal/adapters/repository"
	"github.com/okian/tierboard/internal/domain/classify"
	"github.com/okian/tierboard/internal/domain/intake"
	"github.com/okian/tierboard/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func candidate(text string) model.Candidate {
	return model.Candidate{
		MemberID:    "m1",
		DisplayName: "Member",
		Text:        text,
		Attachment:  &model.Attachment{URL: "https://cdn/shot.png", ContentType: "image/png"},
		MessageURL:  "https://chat/msg/1",
	}
}

func TestAdmit(t *testing.T) {
	Convey("Given an intake gate over an empty store", t, func() {
		ctx := context.Background()
		store := repository.NewMemoryStore()
		now := t0
		ids := 0
		gate := intake.New(classify.New(),
			intake.WithClock(func() time.Time { return now }),
			intake.WithIDGenerator(func() string { ids++; return []string{"", "s1", "s2", "s3"}[ids] }),
		)

		admit := func(c model.Candidate) (model.Submission, error) {
			var sub model.Submission
			err := store.Update(ctx, func(tx repository.Tx) error {
				var err error
				sub, err = gate.Admit(ctx, tx, c)
				return err
			})
			return sub, err
		}
		submissions := func() map[model.Status]int {
			var counts map[model.Status]int
			_ = store.View(ctx, func(tx repository.Tx) error {
				var err error
				counts, err = tx.CountSubmissions(ctx)
				return err
			})
			return counts
		}
		cooldownSet := func() bool {
			var ok bool
			_ = store.View(ctx, func(tx repository.Tx) error {
				var err error
				_, ok, err = tx.Cooldown(ctx, "m1")
				return err
			})
			return ok
		}
		rejection := func(err error) *intake.Rejection {
			var r *intake.Rejection
			So(errors.As(err, &r), ShouldBeTrue)
			return r
		}

		Convey("When a valid claim of 73 arrives", func() {
			sub, err := admit(candidate("73"))

			Convey("Then a pending tier 3 submission is created with a cooldown", func() {
				So(err, ShouldBeNil)
				So(sub.ID, ShouldEqual, "s1")
				So(sub.Score, ShouldEqual, 73)
				So(sub.Tier, ShouldEqual, model.Tier(3))
				So(sub.Status, ShouldEqual, model.StatusPending)
				So(sub.CreatedAt, ShouldEqual, t0)
				So(sub.ProofURL, ShouldEqual, "https://cdn/shot.png")
				So(submissions()[model.StatusPending], ShouldEqual, 1)
				So(cooldownSet(), ShouldBeTrue)
			})

			Convey("And a second claim while pending is a duplicate", func() {
				now = t0.Add(time.Hour)
				_, err := admit(candidate("80"))
				r := rejection(err)
				So(r.Reason, ShouldEqual, intake.ReasonPending)
				So(errors.Is(err, model.ErrDuplicateState), ShouldBeTrue)
				So(submissions()[model.StatusPending], ShouldEqual, 1)
			})
		})

		Convey("When the attachment is missing or not an image", func() {
			c := candidate("73")
			c.Attachment = nil
			_, errMissing := admit(c)
			c.Attachment = &model.Attachment{URL: "https://cdn/notes.txt", ContentType: "text/plain"}
			_, errText := admit(c)

			Convey("Then both are invalid input and nothing is written", func() {
				So(rejection(errMissing).Reason, ShouldEqual, intake.ReasonInvalid)
				So(rejection(errText).Reason, ShouldEqual, intake.ReasonInvalid)
				So(errors.Is(errText, model.ErrInvalidInput), ShouldBeTrue)
				So(len(submissions()), ShouldEqual, 0)
				So(cooldownSet(), ShouldBeFalse)
			})
		})

		Convey("When the text has no score or one below the floor", func() {
			_, errNone := admit(candidate("look at this"))
			_, errLow := admit(candidate("10"))

			Convey("Then both share the invalid reason", func() {
				So(rejection(errNone).Reason, ShouldEqual, intake.ReasonInvalid)
				So(rejection(errLow).Reason, ShouldEqual, intake.ReasonInvalid)
				So(cooldownSet(), ShouldBeFalse)
			})
		})

		Convey("When the member already has a rating of 50", func() {
			So(store.Update(ctx, func(tx repository.Tx) error {
				return tx.PutRating(ctx, model.Rating{MemberID: "m1", Score: 50, Tier: 2})
			}), ShouldBeNil)

			Convey("Then claiming 50 again is a duplicate score", func() {
				_, err := admit(candidate("50"))
				So(rejection(err).Reason, ShouldEqual, intake.ReasonDuplicateScore)
				So(errors.Is(err, model.ErrDuplicateState), ShouldBeTrue)
				So(len(submissions()), ShouldEqual, 0)
			})

			Convey("Then claiming 51 is accepted", func() {
				_, err := admit(candidate("51"))
				So(err, ShouldBeNil)
			})
		})

		Convey("When a previous claim was resolved 30 seconds ago", func() {
			_, err := admit(candidate("73"))
			So(err, ShouldBeNil)
			So(store.Update(ctx, func(tx repository.Tx) error {
				s, _, err := tx.Submission(ctx, "s1")
				if err != nil {
					return err
				}
				s.Status = model.StatusRejected
				return tx.PutSubmission(ctx, s)
			}), ShouldBeNil)
			now = t0.Add(30*time.Second + 500*time.Millisecond)

			Convey("Then a new claim waits out the cooldown", func() {
				_, err := admit(candidate("73"))
				r := rejection(err)
				So(r.Reason, ShouldEqual, intake.ReasonCooldown)
				So(r.Remaining, ShouldEqual, 90*time.Second)
				So(err.Error(), ShouldEqual, "cooldown: 90s left")
			})

			Convey("Then after the cooldown the identical claim is accepted", func() {
				now = t0.Add(intake.DefaultCooldown)
				sub, err := admit(candidate("73"))
				So(err, ShouldBeNil)
				So(sub.ID, ShouldEqual, "s2")
			})
		})

		Convey("When a claim is rejected by a moderator and immediately resubmitted", func() {
			_, err := admit(candidate("73"))
			So(err, ShouldBeNil)
			now = t0.Add(10 * time.Minute)
			So(store.Update(ctx, func(tx repository.Tx) error {
				s, _, err := tx.Submission(ctx, "s1")
				if err != nil {
					return err
				}
				s.Status = model.StatusRejected
				return tx.PutSubmission(ctx, s)
			}), ShouldBeNil)

			sub, err := admit(candidate("73"))

			Convey("Then the resubmission is accepted", func() {
				So(err, ShouldBeNil)
				So(sub.Status, ShouldEqual, model.StatusPending)
				So(submissions()[model.StatusRejected], ShouldEqual, 1)
				So(submissions()[model.StatusPending], ShouldEqual, 1)
			})
		})

		Convey("When rejected claims are retried", func() {
			for i := 0; i < 3; i++ {
				_, _ = admit(candidate("1"))
			}

			Convey("Then rejections never start a cooldown", func() {
				So(cooldownSet(), ShouldBeFalse)
				_, err := admit(candidate("73"))
				So(err, ShouldBeNil)
			})
		})
	})

	Convey("Given a gate with the cooldown disabled", t, func() {
		ctx := context.Background()
		store := repository.NewMemoryStore()
		gate := intake.New(nil, intake.WithCooldown(0))

		So(store.Update(ctx, func(tx repository.Tx) error {
			if err := tx.PutCooldown(ctx, "m1", time.Now()); err != nil {
				return err
			}
			_, err := gate.Admit(ctx, tx, candidate("73"))
			return err
		}), ShouldBeNil)
	})
}
