package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/pressly/goose/v3"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/okian/tierboard/internal/adapters/repository/migrations"
	"github.com/okian/tierboard/internal/domain/model"
	"github.com/okian/tierboard/pkg/logger"
	"github.com/okian/tierboard/pkg/metrics"
)

const defaultBusyTimeout = 5 * time.Second

// SQLiteStore persists the state in a SQLite database file.
type SQLiteStore struct {
	db          *sql.DB
	busyTimeout time.Duration
	log         logger.Logger
}

func toMillis(value time.Time) int64 {
	if value.IsZero() {
		return 0
	}
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	if value == 0 {
		return time.Time{}
	}
	return time.UnixMilli(value).UTC()
}

// OpenSQLite opens the database at path and applies the embedded migrations.
func OpenSQLite(ctx context.Context, path string, opts ...Option) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	s := &SQLiteStore{busyTimeout: defaultBusyTimeout}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logger.Get().Named("repository")
	}

	dsn := fmt.Sprintf("%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_txlock=immediate",
		filepath.Clean(path), s.busyTimeout.Milliseconds())
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One connection serializes writers, which the transaction contract needs.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, db, migrations.FS)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init migrations: %w", err)
	}
	results, err := provider.Up(ctx)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	for _, r := range results {
		s.log.Info(ctx, "applied migration",
			logger.String("source", r.Source.Path),
			logger.Duration("took", r.Duration))
	}

	s.db = db
	return s, nil
}

// Close closes the SQLite handle.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Update runs fn in a SQL transaction and commits when it returns nil.
func (s *SQLiteStore) Update(ctx context.Context, fn func(tx Tx) error) error {
	return s.run(ctx, "update", true, fn)
}

// View runs fn in a SQL transaction that is always rolled back.
func (s *SQLiteStore) View(ctx context.Context, fn func(tx Tx) error) error {
	return s.run(ctx, "view", false, fn)
}

func (s *SQLiteStore) run(ctx context.Context, mode string, writable bool, fn func(tx Tx) error) (err error) {
	start := time.Now()
	defer func() { metrics.RecordStoreTx(mode, msSince(start), err != nil) }()

	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.db == nil {
		return ErrClosed
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin %s: %w", mode, err)
	}
	if err := fn(&sqlTx{tx: tx, writable: writable}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if !writable {
		return tx.Rollback()
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

type sqlTx struct {
	tx       *sql.Tx
	writable bool
}

func (t *sqlTx) write(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !t.writable {
		return ErrReadOnly
	}
	return nil
}

const submissionColumns = `id, member_id, display_name, avatar_url, score, tier, proof_url, message_url,
	created_at, status, reviewed_by, reviewed_at, reject_reason, review_channel_id, review_message_id`

type scanner interface {
	Scan(dest ...any) error
}

func scanSubmission(row scanner) (model.Submission, error) {
	var sub model.Submission
	var tier int
	var status string
	var createdAt, reviewedAt int64
	err := row.Scan(
		&sub.ID, &sub.MemberID, &sub.DisplayName, &sub.AvatarURL, &sub.Score, &tier,
		&sub.ProofURL, &sub.MessageURL, &createdAt, &status, &sub.ReviewedBy, &reviewedAt,
		&sub.RejectReason, &sub.Review.ChannelID, &sub.Review.MessageID,
	)
	if err != nil {
		return model.Submission{}, err
	}
	sub.Tier = model.Tier(tier)
	sub.Status = model.Status(status)
	sub.CreatedAt = fromMillis(createdAt)
	sub.ReviewedAt = fromMillis(reviewedAt)
	return sub, nil
}

func (t *sqlTx) Submission(ctx context.Context, id string) (model.Submission, bool, error) {
	if err := ctx.Err(); err != nil {
		return model.Submission{}, false, err
	}
	row := t.tx.QueryRowContext(ctx, `SELECT `+submissionColumns+` FROM submissions WHERE id = ?`, id)
	sub, err := scanSubmission(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Submission{}, false, nil
	}
	if err != nil {
		return model.Submission{}, false, fmt.Errorf("get submission: %w", err)
	}
	return sub, true, nil
}

func (t *sqlTx) PutSubmission(ctx context.Context, sub model.Submission) error {
	if err := t.write(ctx); err != nil {
		return err
	}
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO submissions (`+submissionColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   display_name = excluded.display_name,
		   avatar_url = excluded.avatar_url,
		   score = excluded.score,
		   tier = excluded.tier,
		   proof_url = excluded.proof_url,
		   message_url = excluded.message_url,
		   status = excluded.status,
		   reviewed_by = excluded.reviewed_by,
		   reviewed_at = excluded.reviewed_at,
		   reject_reason = excluded.reject_reason,
		   review_channel_id = excluded.review_channel_id,
		   review_message_id = excluded.review_message_id`,
		sub.ID, sub.MemberID, sub.DisplayName, sub.AvatarURL, sub.Score, int(sub.Tier),
		sub.ProofURL, sub.MessageURL, toMillis(sub.CreatedAt), string(sub.Status), sub.ReviewedBy,
		toMillis(sub.ReviewedAt), sub.RejectReason, sub.Review.ChannelID, sub.Review.MessageID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("put submission %s: %w", sub.ID, model.ErrDuplicateState)
		}
		return fmt.Errorf("put submission: %w", err)
	}
	return nil
}

func (t *sqlTx) PendingOf(ctx context.Context, memberID string) (model.Submission, bool, error) {
	if err := ctx.Err(); err != nil {
		return model.Submission{}, false, err
	}
	row := t.tx.QueryRowContext(ctx,
		`SELECT `+submissionColumns+` FROM submissions WHERE member_id = ? AND status = ?`,
		memberID, string(model.StatusPending))
	sub, err := scanSubmission(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Submission{}, false, nil
	}
	if err != nil {
		return model.Submission{}, false, fmt.Errorf("get pending submission: %w", err)
	}
	return sub, true, nil
}

func (t *sqlTx) Pending(ctx context.Context) ([]model.Submission, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, err := t.tx.QueryContext(ctx,
		`SELECT `+submissionColumns+` FROM submissions WHERE status = ?
		 ORDER BY created_at DESC, rowid DESC`, string(model.StatusPending))
	if err != nil {
		return nil, fmt.Errorf("list pending submissions: %w", err)
	}
	defer rows.Close()

	out := make([]model.Submission, 0)
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, fmt.Errorf("scan submission: %w", err)
		}
		out = append(out, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate submissions: %w", err)
	}
	return out, nil
}

func (t *sqlTx) CountSubmissions(ctx context.Context) (map[model.Status]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, err := t.tx.QueryContext(ctx, `SELECT status, COUNT(*) FROM submissions GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count submissions: %w", err)
	}
	defer rows.Close()

	out := make(map[model.Status]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan submission count: %w", err)
		}
		out[model.Status(status)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate submission counts: %w", err)
	}
	return out, nil
}

func (t *sqlTx) PruneSubmissions(ctx context.Context, cutoff time.Time) (int, error) {
	if err := t.write(ctx); err != nil {
		return 0, err
	}
	res, err := t.tx.ExecContext(ctx,
		`DELETE FROM submissions WHERE status <> ? AND created_at < ?`,
		string(model.StatusPending), toMillis(cutoff))
	if err != nil {
		return 0, fmt.Errorf("prune submissions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune submissions: %w", err)
	}
	return int(n), nil
}

const ratingColumns = `member_id, display_name, avatar_url, score, tier, proof_url, updated_at,
	card_channel_id, card_message_id`

func scanRating(row scanner) (model.Rating, error) {
	var r model.Rating
	var tier int
	var updatedAt int64
	err := row.Scan(&r.MemberID, &r.DisplayName, &r.AvatarURL, &r.Score, &tier, &r.ProofURL,
		&updatedAt, &r.Card.ChannelID, &r.Card.MessageID)
	if err != nil {
		return model.Rating{}, err
	}
	r.Tier = model.Tier(tier)
	r.UpdatedAt = fromMillis(updatedAt)
	return r, nil
}

func (t *sqlTx) Rating(ctx context.Context, memberID string) (model.Rating, bool, error) {
	if err := ctx.Err(); err != nil {
		return model.Rating{}, false, err
	}
	row := t.tx.QueryRowContext(ctx, `SELECT `+ratingColumns+` FROM ratings WHERE member_id = ?`, memberID)
	r, err := scanRating(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Rating{}, false, nil
	}
	if err != nil {
		return model.Rating{}, false, fmt.Errorf("get rating: %w", err)
	}
	return r, true, nil
}

func (t *sqlTx) PutRating(ctx context.Context, r model.Rating) error {
	if err := t.write(ctx); err != nil {
		return err
	}
	// Upsert keeps the rowid, so the rating keeps its encounter order.
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO ratings (`+ratingColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(member_id) DO UPDATE SET
		   display_name = excluded.display_name,
		   avatar_url = excluded.avatar_url,
		   score = excluded.score,
		   tier = excluded.tier,
		   proof_url = excluded.proof_url,
		   updated_at = excluded.updated_at,
		   card_channel_id = excluded.card_channel_id,
		   card_message_id = excluded.card_message_id`,
		r.MemberID, r.DisplayName, r.AvatarURL, r.Score, int(r.Tier), r.ProofURL,
		toMillis(r.UpdatedAt), r.Card.ChannelID, r.Card.MessageID,
	)
	if err != nil {
		return fmt.Errorf("put rating: %w", err)
	}
	return nil
}

func (t *sqlTx) DeleteRating(ctx context.Context, memberID string) (bool, error) {
	if err := t.write(ctx); err != nil {
		return false, err
	}
	res, err := t.tx.ExecContext(ctx, `DELETE FROM ratings WHERE member_id = ?`, memberID)
	if err != nil {
		return false, fmt.Errorf("delete rating: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete rating: %w", err)
	}
	return n > 0, nil
}

func (t *sqlTx) Ratings(ctx context.Context) ([]model.Rating, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, err := t.tx.QueryContext(ctx, `SELECT `+ratingColumns+` FROM ratings ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("list ratings: %w", err)
	}
	defer rows.Close()

	out := make([]model.Rating, 0)
	for rows.Next() {
		r, err := scanRating(rows)
		if err != nil {
			return nil, fmt.Errorf("scan rating: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ratings: %w", err)
	}
	return out, nil
}

func (t *sqlTx) DeleteRatings(ctx context.Context) (int, error) {
	if err := t.write(ctx); err != nil {
		return 0, err
	}
	res, err := t.tx.ExecContext(ctx, `DELETE FROM ratings`)
	if err != nil {
		return 0, fmt.Errorf("delete ratings: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete ratings: %w", err)
	}
	return int(n), nil
}

func (t *sqlTx) Cooldown(ctx context.Context, memberID string) (time.Time, bool, error) {
	if err := ctx.Err(); err != nil {
		return time.Time{}, false, err
	}
	var at int64
	err := t.tx.QueryRowContext(ctx, `SELECT last_at FROM cooldowns WHERE member_id = ?`, memberID).Scan(&at)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("get cooldown: %w", err)
	}
	return fromMillis(at), true, nil
}

func (t *sqlTx) PutCooldown(ctx context.Context, memberID string, at time.Time) error {
	if err := t.write(ctx); err != nil {
		return err
	}
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO cooldowns (member_id, last_at) VALUES (?, ?)
		 ON CONFLICT(member_id) DO UPDATE SET last_at = excluded.last_at`,
		memberID, toMillis(at))
	if err != nil {
		return fmt.Errorf("put cooldown: %w", err)
	}
	return nil
}

func (t *sqlTx) Settings(ctx context.Context) (model.Settings, error) {
	if err := ctx.Err(); err != nil {
		return model.Settings{}, err
	}
	var s model.Settings
	err := t.tx.QueryRowContext(ctx,
		`SELECT tier1_label, tier2_label, tier3_label, tier4_label, tier5_label,
		        index_channel_id, index_message_id
		   FROM settings WHERE id = 1`).
		Scan(&s.TierLabels[0], &s.TierLabels[1], &s.TierLabels[2], &s.TierLabels[3], &s.TierLabels[4],
			&s.Index.ChannelID, &s.Index.MessageID)
	if errors.Is(err, sql.ErrNoRows) {
		return model.DefaultSettings(), nil
	}
	if err != nil {
		return model.Settings{}, fmt.Errorf("get settings: %w", err)
	}
	return s, nil
}

func (t *sqlTx) PutSettings(ctx context.Context, s model.Settings) error {
	if err := t.write(ctx); err != nil {
		return err
	}
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO settings (id, tier1_label, tier2_label, tier3_label, tier4_label, tier5_label,
		                       index_channel_id, index_message_id)
		 VALUES (1, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   tier1_label = excluded.tier1_label,
		   tier2_label = excluded.tier2_label,
		   tier3_label = excluded.tier3_label,
		   tier4_label = excluded.tier4_label,
		   tier5_label = excluded.tier5_label,
		   index_channel_id = excluded.index_channel_id,
		   index_message_id = excluded.index_message_id`,
		s.TierLabels[0], s.TierLabels[1], s.TierLabels[2], s.TierLabels[3], s.TierLabels[4],
		s.Index.ChannelID, s.Index.MessageID)
	if err != nil {
		return fmt.Errorf("put settings: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

var (
	_ Store = (*SQLiteStore)(nil)
	_ Store = (*MemoryStore)(nil)
)
