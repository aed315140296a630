package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/pressly/goose/v3"
	"modernc.org/sqlite"

	"github.com/podscribe/podscribe/internal/domain"
	"github.com/podscribe/podscribe/internal/port"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Store is the durable JobStore variant. Job records, segments and topics
// live in SQLite; segments and topics are append-only rows, matching the
// append-only log semantics of the live view.
type Store struct {
	db *sql.DB
}

var hookOnce sync.Once

func registerHook() {
	hookOnce.Do(func() {
		sqlite.RegisterConnectionHook(func(conn sqlite.ExecQuerierContext, dsn string) error {
			pragmas := []string{
				"PRAGMA journal_mode = WAL",
				"PRAGMA busy_timeout = 5000",
				"PRAGMA synchronous = NORMAL",
				"PRAGMA foreign_keys = ON",
			}
			for _, p := range pragmas {
				if _, err := conn.ExecContext(context.Background(), p, nil); err != nil {
					return fmt.Errorf("execute %s: %w", p, err)
				}
			}
			return nil
		})
	})
}

func NewStore(dataDir string) (*Store, error) {
	registerHook()

	dbPath := filepath.Join(dataDir, "podscribe.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Single connection for SQLite (WAL allows concurrent reads but only one writer)
	db.SetMaxOpenConns(1)

	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Create(job *domain.Job) error {
	_, err := s.db.Exec(`
		INSERT INTO jobs (id, source_label, is_demo, source_path, source_size, state, progress, elapsed_media_time, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.SourceLabel, job.IsDemo, job.SourcePath, job.SourceSize,
		string(job.State), job.Progress, job.ElapsedMediaTime, job.CreatedAt,
	)
	return err
}

func (s *Store) Snapshot(id string) (*domain.Job, error) {
	job, err := s.getJob(id)
	if err != nil {
		return nil, err
	}
	if err := s.loadPartials(job); err != nil {
		return nil, err
	}
	return job, nil
}

func (s *Store) List() ([]*domain.Job, error) {
	rows, err := s.db.Query(jobColumns + ` FROM jobs ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	var out []*domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, job := range out {
		if err := s.loadPartials(job); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *Store) Count() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM jobs`).Scan(&n)
	return n, err
}

func (s *Store) ClaimQueued() (*domain.Job, error) {
	row := s.db.QueryRow(`
		UPDATE jobs SET state = ?, started_at = ?
		WHERE id = (SELECT id FROM jobs WHERE state = ? ORDER BY created_at, id LIMIT 1)
		RETURNING id`,
		string(domain.JobStateProcessing), time.Now().UTC(), string(domain.JobStateQueued),
	)
	var id string
	if err := row.Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return s.Snapshot(id)
}

func (s *Store) AppendProgress(id string, delta domain.ProgressDelta) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	job, err := s.getJobTx(tx, id)
	if err != nil {
		return err
	}
	if job.State.Terminal() {
		return domain.ErrJobTerminal
	}
	if job.State != domain.JobStateProcessing {
		return fmt.Errorf("cannot append progress in state %s", job.State)
	}
	if delta.Progress < job.Progress || delta.ElapsedMediaTime < job.ElapsedMediaTime {
		return domain.ErrProgressRegression
	}

	for _, seg := range delta.Segments {
		if _, err := tx.Exec(`INSERT INTO segments (job_id, start_sec, end_sec, text) VALUES (?, ?, ?, ?)`,
			id, seg.Start, seg.End, seg.Text); err != nil {
			return err
		}
	}
	for _, topic := range delta.Topics {
		if _, err := tx.Exec(`
			INSERT INTO topics (job_id, topic_id, name, category, start_sec, end_sec, text, confidence)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			id, topic.ID, topic.Name, topic.Category, topic.Start, topic.End, topic.Text, topic.Confidence); err != nil {
			return err
		}
	}
	if _, err := tx.Exec(`UPDATE jobs SET progress = ?, elapsed_media_time = ? WHERE id = ?`,
		delta.Progress, delta.ElapsedMediaTime, id); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) Complete(id string, result *domain.AnalysisResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	return s.finalize(id, domain.JobStateComplete, func(tx *sql.Tx) error {
		_, err := tx.Exec(`UPDATE jobs SET result_json = ?, progress = 100 WHERE id = ?`, string(resultJSON), id)
		return err
	})
}

func (s *Store) Fail(id string, reason string) error {
	return s.finalize(id, domain.JobStateFailed, func(tx *sql.Tx) error {
		_, err := tx.Exec(`UPDATE jobs SET error_message = ? WHERE id = ?`, reason, id)
		return err
	})
}

func (s *Store) Cancel(id string, reason string) error {
	err := s.finalize(id, domain.JobStateCancelled, func(tx *sql.Tx) error {
		_, err := tx.Exec(`UPDATE jobs SET error_message = ? WHERE id = ?`, reason, id)
		return err
	})
	if errors.Is(err, domain.ErrJobTerminal) {
		return domain.ErrJobNotCancellable
	}
	return err
}

func (s *Store) Delete(id string) error {
	res, err := s.db.Exec(`DELETE FROM jobs WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrJobNotFound
	}
	return nil
}

func (s *Store) finalize(id string, to domain.JobState, apply func(*sql.Tx) error) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	job, err := s.getJobTx(tx, id)
	if err != nil {
		return err
	}
	if job.State.Terminal() {
		return domain.ErrJobTerminal
	}
	if !domain.ValidTransition(job.State, to) {
		return fmt.Errorf("invalid transition: %s -> %s", job.State, to)
	}
	if _, err := tx.Exec(`UPDATE jobs SET state = ?, completed_at = ? WHERE id = ?`,
		string(to), time.Now().UTC(), id); err != nil {
		return err
	}
	if err := apply(tx); err != nil {
		return err
	}
	return tx.Commit()
}

const jobColumns = `
	SELECT id, source_label, is_demo, source_path, source_size, state, progress,
	       elapsed_media_time, error_message, result_json, created_at, started_at, completed_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*domain.Job, error) {
	var (
		job        domain.Job
		state      string
		resultJSON string
		started    sql.NullTime
		completed  sql.NullTime
	)
	err := row.Scan(&job.ID, &job.SourceLabel, &job.IsDemo, &job.SourcePath, &job.SourceSize,
		&state, &job.Progress, &job.ElapsedMediaTime, &job.ErrorMessage, &resultJSON,
		&job.CreatedAt, &started, &completed)
	if err != nil {
		return nil, err
	}
	job.State = domain.JobState(state)
	if started.Valid {
		job.StartedAt = started.Time
	}
	if completed.Valid {
		job.CompletedAt = completed.Time
	}
	if resultJSON != "" {
		var result domain.AnalysisResult
		if err := json.Unmarshal([]byte(resultJSON), &result); err != nil {
			return nil, fmt.Errorf("unmarshal result: %w", err)
		}
		job.Result = &result
	}
	return &job, nil
}

func (s *Store) getJob(id string) (*domain.Job, error) {
	job, err := scanJob(s.db.QueryRow(jobColumns+` FROM jobs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrJobNotFound
	}
	return job, err
}

func (s *Store) getJobTx(tx *sql.Tx, id string) (*domain.Job, error) {
	job, err := scanJob(tx.QueryRow(jobColumns+` FROM jobs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrJobNotFound
	}
	return job, err
}

func (s *Store) loadPartials(job *domain.Job) error {
	segRows, err := s.db.Query(`SELECT start_sec, end_sec, text FROM segments WHERE job_id = ? ORDER BY id`, job.ID)
	if err != nil {
		return err
	}
	defer segRows.Close() //nolint:errcheck
	for segRows.Next() {
		var seg domain.TranscriptSegment
		if err := segRows.Scan(&seg.Start, &seg.End, &seg.Text); err != nil {
			return err
		}
		job.Segments = append(job.Segments, seg)
	}
	if err := segRows.Err(); err != nil {
		return err
	}

	topicRows, err := s.db.Query(`
		SELECT topic_id, name, category, start_sec, end_sec, text, confidence
		FROM topics WHERE job_id = ? ORDER BY id`, job.ID)
	if err != nil {
		return err
	}
	defer topicRows.Close() //nolint:errcheck
	for topicRows.Next() {
		var topic domain.TopicSegment
		if err := topicRows.Scan(&topic.ID, &topic.Name, &topic.Category, &topic.Start, &topic.End, &topic.Text, &topic.Confidence); err != nil {
			return err
		}
		job.Topics = append(job.Topics, topic)
	}
	return topicRows.Err()
}

var _ port.JobStore = (*Store)(nil)
