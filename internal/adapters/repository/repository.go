// Package repository persists submissions, ratings, cooldowns and settings.
//
// All reads and writes go through a Tx obtained from Store.Update or
// Store.View. Update transactions are serialized, so a check made inside fn
// still holds when fn writes. When fn returns an error nothing it wrote is
// kept and readers keep seeing the last committed snapshot.
package repository

import (
	"context"
	"time"

	"github.com/okian/tierboard/internal/domain/model"
)

// Store opens transactions over the persisted state.
type Store interface {
	// Update runs fn in a read-write transaction and commits when it returns nil.
	Update(ctx context.Context, fn func(tx Tx) error) error
	// View runs fn in a read-only transaction.
	View(ctx context.Context, fn func(tx Tx) error) error
	// Close releases the underlying resources.
	Close() error
}

// Tx is a typed view of the persisted state inside one transaction.
type Tx interface {
	// Submission returns a submission by id.
	Submission(ctx context.Context, id string) (model.Submission, bool, error)
	// PutSubmission inserts or replaces a submission.
	PutSubmission(ctx context.Context, sub model.Submission) error
	// PendingOf returns the member's pending submission if there is one.
	PendingOf(ctx context.Context, memberID string) (model.Submission, bool, error)
	// Pending returns every pending submission, newest first.
	Pending(ctx context.Context) ([]model.Submission, error)
	// CountSubmissions returns the number of submissions per status.
	CountSubmissions(ctx context.Context) (map[model.Status]int, error)
	// PruneSubmissions deletes resolved submissions created before cutoff.
	PruneSubmissions(ctx context.Context, cutoff time.Time) (int, error)

	// Rating returns the member's rating if there is one.
	Rating(ctx context.Context, memberID string) (model.Rating, bool, error)
	// PutRating inserts or replaces a rating. Replacing keeps its position.
	PutRating(ctx context.Context, r model.Rating) error
	// DeleteRating removes a rating and reports whether it existed.
	DeleteRating(ctx context.Context, memberID string) (bool, error)
	// Ratings returns every rating in insertion order.
	Ratings(ctx context.Context) ([]model.Rating, error)
	// DeleteRatings removes every rating and returns how many there were.
	DeleteRatings(ctx context.Context) (int, error)

	// Cooldown returns the member's last accepted intake time.
	Cooldown(ctx context.Context, memberID string) (time.Time, bool, error)
	// PutCooldown records the member's last accepted intake time.
	PutCooldown(ctx context.Context, memberID string, at time.Time) error

	// Settings returns the stored settings or the defaults.
	Settings(ctx context.Context) (model.Settings, error)
	// PutSettings replaces the settings.
	PutSettings(ctx context.Context, s model.Settings) error
}
