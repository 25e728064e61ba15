package repository_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/okian/tierboard/internal/adapters/repository"
	"github.com/okian/tierboard/internal/domain/model"
	"github.com/okian/tierboard/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMain(m *testing.M) {
	if err := logger.Init(); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

var errBoom = errors.New("boom")

func sub(id, member string, status model.Status, created time.Time) model.Submission {
	return model.Submission{
		ID: id, MemberID: member, DisplayName: member, Score: 73, Tier: 3,
		ProofURL: "https://cdn/p.png", CreatedAt: created, Status: status,
	}
}

// storeContract exercises the behaviour every Store implementation shares.
func storeContract(t *testing.T, name string, open func(t *testing.T) repository.Store) {
	Convey("Given a "+name, t, func() {
		ctx := context.Background()
		store := open(t)
		Reset(func() { _ = store.Close() })

		t0 := time.UnixMilli(1_700_000_000_000).UTC()

		Convey("When a submission is written and read back", func() {
			in := sub("s1", "m1", model.StatusPending, t0)
			in.Review = model.SurfaceRef{ChannelID: "c", MessageID: "m"}
			So(store.Update(ctx, func(tx repository.Tx) error { return tx.PutSubmission(ctx, in) }), ShouldBeNil)

			var got model.Submission
			var found bool
			So(store.View(ctx, func(tx repository.Tx) error {
				var err error
				got, found, err = tx.Submission(ctx, "s1")
				return err
			}), ShouldBeNil)

			Convey("Then every field survives", func() {
				So(found, ShouldBeTrue)
				So(got.MemberID, ShouldEqual, "m1")
				So(got.Tier, ShouldEqual, model.Tier(3))
				So(got.Status, ShouldEqual, model.StatusPending)
				So(got.CreatedAt.Equal(t0), ShouldBeTrue)
				So(got.ReviewedAt.IsZero(), ShouldBeTrue)
				So(got.Review, ShouldResemble, in.Review)
			})

			Convey("Then the member's pending submission is found", func() {
				var p model.Submission
				var ok bool
				_ = store.View(ctx, func(tx repository.Tx) error {
					var err error
					p, ok, err = tx.PendingOf(ctx, "m1")
					return err
				})
				So(ok, ShouldBeTrue)
				So(p.ID, ShouldEqual, "s1")
			})

			Convey("Then a second pending submission for the member is refused", func() {
				err := store.Update(ctx, func(tx repository.Tx) error {
					return tx.PutSubmission(ctx, sub("s2", "m1", model.StatusPending, t0))
				})
				So(errors.Is(err, model.ErrDuplicateState), ShouldBeTrue)
			})
		})

		Convey("When an update fails midway", func() {
			err := store.Update(ctx, func(tx repository.Tx) error {
				if err := tx.PutRating(ctx, model.Rating{MemberID: "m1", Score: 50, Tier: 2, UpdatedAt: t0}); err != nil {
					return err
				}
				return errBoom
			})

			Convey("Then nothing it wrote is visible", func() {
				So(errors.Is(err, errBoom), ShouldBeTrue)
				var ok bool
				_ = store.View(ctx, func(tx repository.Tx) error {
					_, ok, err = tx.Rating(ctx, "m1")
					return err
				})
				So(ok, ShouldBeFalse)
			})
		})

		Convey("When writing inside a view", func() {
			err := store.View(ctx, func(tx repository.Tx) error {
				return tx.PutCooldown(ctx, "m1", t0)
			})

			Convey("Then the write is refused", func() {
				So(errors.Is(err, repository.ErrReadOnly), ShouldBeTrue)
			})
		})

		Convey("When ratings are inserted and overwritten", func() {
			So(store.Update(ctx, func(tx repository.Tx) error {
				for _, id := range []string{"a", "b", "c"} {
					if err := tx.PutRating(ctx, model.Rating{MemberID: id, Score: 40, Tier: 2, UpdatedAt: t0}); err != nil {
						return err
					}
				}
				return tx.PutRating(ctx, model.Rating{MemberID: "a", Score: 130, Tier: 5, UpdatedAt: t0,
					Card: model.SurfaceRef{ChannelID: "t", MessageID: "card"}})
			}), ShouldBeNil)

			var all []model.Rating
			_ = store.View(ctx, func(tx repository.Tx) error {
				var err error
				all, err = tx.Ratings(ctx)
				return err
			})

			Convey("Then insertion order is kept across overwrites", func() {
				So(len(all), ShouldEqual, 3)
				So(all[0].MemberID, ShouldEqual, "a")
				So(all[0].Score, ShouldEqual, 130)
				So(all[0].Card.MessageID, ShouldEqual, "card")
				So(all[1].MemberID, ShouldEqual, "b")
				So(all[2].MemberID, ShouldEqual, "c")
			})

			Convey("Then ratings can be removed one by one or all at once", func() {
				var existed, missing bool
				var n int
				So(store.Update(ctx, func(tx repository.Tx) error {
					var err error
					if existed, err = tx.DeleteRating(ctx, "b"); err != nil {
						return err
					}
					if missing, err = tx.DeleteRating(ctx, "zzz"); err != nil {
						return err
					}
					n, err = tx.DeleteRatings(ctx)
					return err
				}), ShouldBeNil)
				So(existed, ShouldBeTrue)
				So(missing, ShouldBeFalse)
				So(n, ShouldEqual, 2)
			})
		})

		Convey("When cooldowns and settings are stored", func() {
			settings := model.DefaultSettings()
			settings.TierLabels[4] = "Legend"
			settings.Index = model.SurfaceRef{ChannelID: "t", MessageID: "idx"}

			var before model.Settings
			_ = store.View(ctx, func(tx repository.Tx) error {
				var err error
				before, err = tx.Settings(ctx)
				return err
			})
			So(store.Update(ctx, func(tx repository.Tx) error {
				if err := tx.PutCooldown(ctx, "m1", t0); err != nil {
					return err
				}
				return tx.PutSettings(ctx, settings)
			}), ShouldBeNil)

			Convey("Then they read back", func() {
				var at time.Time
				var ok bool
				var after model.Settings
				_ = store.View(ctx, func(tx repository.Tx) error {
					var err error
					if at, ok, err = tx.Cooldown(ctx, "m1"); err != nil {
						return err
					}
					after, err = tx.Settings(ctx)
					return err
				})
				So(before, ShouldResemble, model.DefaultSettings())
				So(ok, ShouldBeTrue)
				So(at.Equal(t0), ShouldBeTrue)
				So(after, ShouldResemble, settings)
			})
		})

		Convey("When listing, counting and pruning submissions", func() {
			So(store.Update(ctx, func(tx repository.Tx) error {
				for _, s := range []model.Submission{
					sub("old-approved", "m1", model.StatusApproved, t0.Add(-100*24*time.Hour)),
					sub("old-pending", "m2", model.StatusPending, t0.Add(-100*24*time.Hour)),
					sub("new-rejected", "m3", model.StatusRejected, t0),
					sub("new-pending", "m4", model.StatusPending, t0),
				} {
					if err := tx.PutSubmission(ctx, s); err != nil {
						return err
					}
				}
				return nil
			}), ShouldBeNil)

			Convey("Then pending ones list newest first", func() {
				var pending []model.Submission
				_ = store.View(ctx, func(tx repository.Tx) error {
					var err error
					pending, err = tx.Pending(ctx)
					return err
				})
				So(len(pending), ShouldEqual, 2)
				So(pending[0].ID, ShouldEqual, "new-pending")
				So(pending[1].ID, ShouldEqual, "old-pending")
			})

			Convey("Then only old resolved ones are pruned", func() {
				var n int
				var counts map[model.Status]int
				So(store.Update(ctx, func(tx repository.Tx) error {
					var err error
					if n, err = tx.PruneSubmissions(ctx, t0.Add(-30*24*time.Hour)); err != nil {
						return err
					}
					counts, err = tx.CountSubmissions(ctx)
					return err
				}), ShouldBeNil)
				So(n, ShouldEqual, 1)
				So(counts[model.StatusPending], ShouldEqual, 2)
				So(counts[model.StatusRejected], ShouldEqual, 1)
				So(counts[model.StatusApproved], ShouldEqual, 0)
			})
		})

		Convey("When the context is cancelled", func() {
			cctx, cancel := context.WithCancel(ctx)
			cancel()
			err := store.Update(cctx, func(tx repository.Tx) error { return nil })

			Convey("Then the transaction does not run", func() {
				So(errors.Is(err, context.Canceled), ShouldBeTrue)
			})
		})
	})
}

func TestMemoryStore(t *testing.T) {
	storeContract(t, "memory store", func(*testing.T) repository.Store {
		return repository.NewMemoryStore()
	})
}

func TestSQLiteStore(t *testing.T) {
	storeContract(t, "sqlite store", func(t *testing.T) repository.Store {
		path := filepath.Join(t.TempDir(), "tierboard.db")
		store, err := repository.OpenSQLite(context.Background(), path)
		if err != nil {
			t.Fatalf("open sqlite: %v", err)
		}
		return store
	})
}

func TestSQLiteStoreReopen(t *testing.T) {
	Convey("Given a sqlite database written by one store", t, func() {
		ctx := context.Background()
		path := filepath.Join(t.TempDir(), "tierboard.db")
		first, err := repository.OpenSQLite(ctx, path)
		So(err, ShouldBeNil)
		So(first.Update(ctx, func(tx repository.Tx) error {
			return tx.PutRating(ctx, model.Rating{MemberID: "m1", Score: 90, Tier: 4, UpdatedAt: time.Now()})
		}), ShouldBeNil)
		So(first.Close(), ShouldBeNil)

		Convey("When it is opened again", func() {
			second, err := repository.OpenSQLite(ctx, path)
			So(err, ShouldBeNil)
			defer func() { _ = second.Close() }()

			Convey("Then migrations are not re-applied and data is kept", func() {
				var r model.Rating
				var ok bool
				So(second.View(ctx, func(tx repository.Tx) error {
					var err error
					r, ok, err = tx.Rating(ctx, "m1")
					return err
				}), ShouldBeNil)
				So(ok, ShouldBeTrue)
				So(r.Score, ShouldEqual, 90)
			})
		})
	})

	Convey("Given an empty path", t, func() {
		_, err := repository.OpenSQLite(context.Background(), "  ")
		So(err, ShouldNotBeNil)
	})
}
