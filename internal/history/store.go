// Package history keeps an optional SQLite journal of completed and failed
// transcriptions. It is fed from the internal event bus and read by the
// history CLI command. Language preferences are never stored here.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/mississippi1/whatsapp-transcripts-server/internal/domain"
)

// Record is one completed transcription.
type Record struct {
	ID                   string
	Channel              string
	Sender               string
	MessageID            string
	Language             string
	Text                 string
	Confidence           float64
	Quality              string
	AudioDurationSeconds float64
	ProcessingTimeMs     int64
	CreatedAt            time.Time
}

// Failure is one audio message that ended in an apology.
type Failure struct {
	ID        string
	Channel   string
	Sender    string
	MessageID string
	Language  string
	Stage     string
	Error     string
	CreatedAt time.Time
}

// Stats summarizes the journal.
type Stats struct {
	Transcripts   int
	Failures      int
	AvgConfidence float64
}

// Store is the SQLite-backed journal.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

func Open(dbPath string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}

	// SQLite allows one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := RunMigrations(db, logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}
	return &Store{db: db, logger: logger}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// SaveTranscript inserts rec, assigning an ID, timestamp and quality when missing.
func (s *Store) SaveTranscript(ctx context.Context, rec Record) (string, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	rec.Confidence = domain.ClampConfidence(rec.Confidence)
	if rec.Quality == "" {
		rec.Quality = (&domain.TranscriptionResult{Confidence: rec.Confidence}).Quality()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO transcripts (id, channel, sender, message_id, language, text, confidence, quality,
		 audio_duration_seconds, processing_time_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Channel, rec.Sender, rec.MessageID, rec.Language, rec.Text, rec.Confidence, rec.Quality,
		rec.AudioDurationSeconds, rec.ProcessingTimeMs, rec.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return "", fmt.Errorf("insert transcript: %w", err)
	}
	return rec.ID, nil
}

// SaveFailure inserts f, assigning an ID and timestamp when missing.
func (s *Store) SaveFailure(ctx context.Context, f Failure) (string, error) {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO failures (id, channel, sender, message_id, language, stage, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		f.ID, f.Channel, f.Sender, f.MessageID, f.Language, f.Stage, f.Error, f.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return "", fmt.Errorf("insert failure: %w", err)
	}
	return f.ID, nil
}

// Recent returns the newest transcripts first. An empty sender matches all.
func (s *Store) Recent(ctx context.Context, sender string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, channel, sender, message_id, language, text, confidence, quality,
		        audio_duration_seconds, processing_time_ms, created_at
		 FROM transcripts WHERE (? = '' OR sender = ?)
		 ORDER BY created_at DESC, rowid DESC LIMIT ?`,
		sender, sender, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			r       Record
			created int64
		)
		if err := rows.Scan(&r.ID, &r.Channel, &r.Sender, &r.MessageID, &r.Language, &r.Text, &r.Confidence,
			&r.Quality, &r.AudioDurationSeconds, &r.ProcessingTimeMs, &created); err != nil {
			return nil, err
		}
		r.CreatedAt = time.UnixMilli(created)
		out = append(out, r)
	}
	return out, rows.Err()
}

// RecentFailures returns the newest failures first.
func (s *Store) RecentFailures(ctx context.Context, limit int) ([]Failure, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, channel, sender, message_id, language, stage, error, created_at
		 FROM failures ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Failure
	for rows.Next() {
		var (
			f       Failure
			created int64
		)
		if err := rows.Scan(&f.ID, &f.Channel, &f.Sender, &f.MessageID, &f.Language, &f.Stage, &f.Error, &created); err != nil {
			return nil, err
		}
		f.CreatedAt = time.UnixMilli(created)
		out = append(out, f)
	}
	return out, rows.Err()
}

// Stats counts journal rows and averages transcript confidence.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(AVG(confidence), 0) FROM transcripts`,
	).Scan(&st.Transcripts, &st.AvgConfidence); err != nil {
		return st, err
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM failures`).Scan(&st.Failures); err != nil {
		return st, err
	}
	return st, nil
}

// Prune deletes rows older than retention and returns how many were removed.
func (s *Store) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention).UnixMilli()

	var total int64
	for _, table := range []string{"transcripts", "failures"} {
		res, err := s.db.ExecContext(ctx, "DELETE FROM "+table+" WHERE created_at < ?", cutoff)
		if err != nil {
			return total, fmt.Errorf("prune %s: %w", table, err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	if total > 0 {
		s.logger.Info("history pruned", "rows", total, "retention", retention)
	}
	return total, nil
}
