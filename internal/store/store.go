package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fankserver/meeting-transcriber/internal/segment"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a transcript does not exist
var ErrNotFound = errors.New("transcript not found")

const schema = `
	CREATE TABLE IF NOT EXISTS transcripts (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		language TEXT NOT NULL,
		requestId TEXT NOT NULL DEFAULT '',
		fallback INTEGER NOT NULL DEFAULT 0,
		createdAt REAL NOT NULL,
		committedAt REAL
	);

	CREATE TABLE IF NOT EXISTS segments (
		transcriptId TEXT NOT NULL REFERENCES transcripts(id) ON DELETE CASCADE,
		sequenceNumber INTEGER NOT NULL,
		time TEXT NOT NULL,
		speaker TEXT NOT NULL,
		text TEXT NOT NULL,
		confidence REAL NOT NULL,
		PRIMARY KEY (transcriptId, sequenceNumber)
	);
`

// Store provides read-write access to the transcript database
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path. ":memory:" gives a private
// in-memory database.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// SQLite allows one writer; a single connection also keeps ":memory:"
	// databases from splitting per connection.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	for _, stmt := range []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
		schema,
	} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("prepare database: %w", err)
		}
	}

	logrus.WithField("path", path).Debug("Transcript store opened")
	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveTranscript inserts a transcript and its segments. An empty ID is
// filled in; a zero CreatedAt becomes now.
func (s *Store) SaveTranscript(ctx context.Context, t *Transcript) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}

	return s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO transcripts (id, title, language, requestId, fallback, createdAt, committedAt)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, t.ID, t.Title, t.Language, t.RequestID, t.Fallback, unixFromTime(t.CreatedAt), nullableTime(t.CommittedAt))
		if err != nil {
			return fmt.Errorf("insert transcript: %w", err)
		}
		return insertSegments(ctx, tx, t.ID, t.Segments)
	})
}

// Transcript returns one transcript with its segments
func (s *Store) Transcript(ctx context.Context, id string) (*Transcript, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, title, language, requestId, fallback, createdAt, committedAt
		FROM transcripts
		WHERE id = ?
	`, id)

	var t Transcript
	var createdAt float64
	var committedAt sql.NullFloat64
	if err := row.Scan(&t.ID, &t.Title, &t.Language, &t.RequestID, &t.Fallback, &createdAt, &committedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("scan transcript: %w", err)
	}
	t.CreatedAt = timeFromUnix(createdAt)
	if committedAt.Valid {
		c := timeFromUnix(committedAt.Float64)
		t.CommittedAt = &c
	}

	segments, err := s.segments(ctx, id)
	if err != nil {
		return nil, err
	}
	t.Segments = segments
	return &t, nil
}

func (s *Store) segments(ctx context.Context, transcriptID string) ([]segment.Segment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT time, speaker, text, confidence
		FROM segments
		WHERE transcriptId = ?
		ORDER BY sequenceNumber ASC
	`, transcriptID)
	if err != nil {
		return nil, fmt.Errorf("query segments: %w", err)
	}
	defer rows.Close()

	segments := []segment.Segment{}
	for rows.Next() {
		var seg segment.Segment
		if err := rows.Scan(&seg.Time, &seg.Speaker, &seg.Text, &seg.Confidence); err != nil {
			return nil, fmt.Errorf("scan segment: %w", err)
		}
		segments = append(segments, seg)
	}
	return segments, rows.Err()
}

// ListTranscripts returns the newest transcripts first. limit <= 0 returns
// all of them.
func (s *Store) ListTranscripts(ctx context.Context, limit int) ([]Summary, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.id, t.title, t.language, t.fallback, t.createdAt, t.committedAt,
			(SELECT COUNT(*) FROM segments s WHERE s.transcriptId = t.id)
		FROM transcripts t
		ORDER BY t.createdAt DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query transcripts: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var sum Summary
		var createdAt float64
		var committedAt sql.NullFloat64
		if err := rows.Scan(&sum.ID, &sum.Title, &sum.Language, &sum.Fallback, &createdAt, &committedAt, &sum.Segments); err != nil {
			return nil, fmt.Errorf("scan transcript: %w", err)
		}
		sum.CreatedAt = timeFromUnix(createdAt)
		if committedAt.Valid {
			c := timeFromUnix(committedAt.Float64)
			sum.CommittedAt = &c
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

// ReplaceSegments swaps the stored segments of a transcript for a corrected
// list. When committed is set the transcript is stamped as committed.
func (s *Store) ReplaceSegments(ctx context.Context, id string, segments []segment.Segment, committed bool) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		var exists bool
		if err := tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM transcripts WHERE id = ?)`, id).Scan(&exists); err != nil {
			return fmt.Errorf("lookup transcript: %w", err)
		}
		if !exists {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}

		if committed {
			if _, err := tx.ExecContext(ctx, `UPDATE transcripts SET committedAt = ? WHERE id = ?`, unixFromTime(time.Now()), id); err != nil {
				return fmt.Errorf("update transcript: %w", err)
			}
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM segments WHERE transcriptId = ?`, id); err != nil {
			return fmt.Errorf("delete segments: %w", err)
		}
		return insertSegments(ctx, tx, id, segments)
	})
}

// DeleteTranscript removes a transcript and its segments
func (s *Store) DeleteTranscript(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM transcripts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete transcript: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

func insertSegments(ctx context.Context, tx *sql.Tx, transcriptID string, segments []segment.Segment) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO segments (transcriptId, sequenceNumber, time, speaker, text, confidence)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare segment insert: %w", err)
	}
	defer stmt.Close()

	for i, seg := range segments {
		if _, err := stmt.ExecContext(ctx, transcriptID, i, seg.Time, seg.Speaker, seg.Text, seg.Confidence); err != nil {
			return fmt.Errorf("insert segment %d: %w", i, err)
		}
	}
	return nil
}

func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func unixFromTime(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

func timeFromUnix(ts float64) time.Time {
	sec := int64(ts)
	nsec := int64((ts - float64(sec)) * 1e9)
	return time.Unix(sec, nsec)
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return unixFromTime(*t)
}
