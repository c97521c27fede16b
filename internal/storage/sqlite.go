package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/kaiwa/internal/models"
)

// SQLiteStore implements Store using SQLite. Sessions and feedback entries are stored as JSON
// documents next to the columns used for lookup.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStore{db: db, now: time.Now}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		state TEXT NOT NULL,
		data TEXT NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		expires_at INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_user_id ON sessions(user_id);

	CREATE TABLE IF NOT EXISTS personalized_rags (
		rag_id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		status TEXT NOT NULL,
		question_count INTEGER NOT NULL,
		categories TEXT,
		focus_areas TEXT,
		created_at TIMESTAMP NOT NULL,
		expires_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_rags_user_id ON personalized_rags(user_id);

	CREATE TABLE IF NOT EXISTS feedback (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		data TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_feedback_session ON feedback(session_id, id);
	`
	_, err := db.Exec(schema)
	return err
}

// SaveSession inserts or replaces a session. A positive ttl expires it ttl after now.
func (s *SQLiteStore) SaveSession(ctx context.Context, sess *models.Session, ttl time.Duration) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	now := s.now()
	var expires int64
	if ttl > 0 {
		expires = now.Add(ttl).UnixNano()
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, user_id, state, data, updated_at, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   user_id = excluded.user_id, state = excluded.state, data = excluded.data,
		   updated_at = excluded.updated_at, expires_at = excluded.expires_at`,
		sess.ID, sess.UserID, string(sess.State), string(data), now, expires,
	)
	return err
}

// GetSession returns a session by ID. Expired rows are removed and reported as not found.
func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*models.Session, error) {
	var data string
	var expires int64
	err := s.db.QueryRowContext(ctx,
		`SELECT data, expires_at FROM sessions WHERE id = ?`, id,
	).Scan(&data, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.NewNotFound("session", id)
	}
	if err != nil {
		return nil, err
	}
	if expires > 0 && s.now().UnixNano() > expires {
		_ = s.DeleteSession(ctx, id)
		return nil, models.NewNotFound("session", id)
	}

	var sess models.Session
	if err := json.Unmarshal([]byte(data), &sess); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &sess, nil
}

// DeleteSession removes a session and its feedback.
func (s *SQLiteStore) DeleteSession(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM feedback WHERE session_id = ?`, id); err != nil {
		return err
	}
	return tx.Commit()
}

// SaveRAG inserts or replaces a personalized bank entry.
func (s *SQLiteStore) SaveRAG(ctx context.Context, rag *models.PersonalizedRAG) error {
	categories, err := json.Marshal(rag.CategoriesCovered)
	if err != nil {
		return fmt.Errorf("failed to marshal categories: %w", err)
	}
	focus, err := json.Marshal(rag.FocusAreas)
	if err != nil {
		return fmt.Errorf("failed to marshal focus areas: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO personalized_rags
		 (rag_id, user_id, status, question_count, categories, focus_areas, created_at, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rag.RAGID, rag.UserID, rag.Status, rag.QuestionCount, string(categories), string(focus),
		rag.CreatedAt.UTC(), rag.ExpiresAt.UTC(),
	)
	return err
}

// GetRAG returns a personalized bank entry, expired or not.
func (s *SQLiteStore) GetRAG(ctx context.Context, ragID string) (*models.PersonalizedRAG, error) {
	var rag models.PersonalizedRAG
	var categories, focus sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT rag_id, user_id, status, question_count, categories, focus_areas, created_at, expires_at
		 FROM personalized_rags WHERE rag_id = ?`, ragID,
	).Scan(&rag.RAGID, &rag.UserID, &rag.Status, &rag.QuestionCount, &categories, &focus,
		&rag.CreatedAt, &rag.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.NewNotFound("personalized rag", ragID)
	}
	if err != nil {
		return nil, err
	}
	if categories.Valid && categories.String != "" {
		if err := json.Unmarshal([]byte(categories.String), &rag.CategoriesCovered); err != nil {
			return nil, fmt.Errorf("failed to unmarshal categories: %w", err)
		}
	}
	if focus.Valid && focus.String != "" {
		if err := json.Unmarshal([]byte(focus.String), &rag.FocusAreas); err != nil {
			return nil, fmt.Errorf("failed to unmarshal focus areas: %w", err)
		}
	}
	return &rag, nil
}

// DeleteRAG removes a personalized bank entry.
func (s *SQLiteStore) DeleteRAG(ctx context.Context, ragID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM personalized_rags WHERE rag_id = ?`, ragID)
	return err
}

// CountRAGs returns the number of registered personalized banks.
func (s *SQLiteStore) CountRAGs(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM personalized_rags`).Scan(&count)
	return count, err
}

// AppendFeedback adds one entry to the end of a session's history.
func (s *SQLiteStore) AppendFeedback(ctx context.Context, sessionID, userID string, fb *models.QuestionFeedback) error {
	data, err := json.Marshal(fb)
	if err != nil {
		return fmt.Errorf("failed to marshal feedback: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO feedback (session_id, user_id, data, created_at) VALUES (?, ?, ?, ?)`,
		sessionID, userID, string(data), s.now(),
	)
	return err
}

// LoadFeedback returns a session's history in insertion order.
func (s *SQLiteStore) LoadFeedback(ctx context.Context, sessionID string) (string, []models.QuestionFeedback, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, data FROM feedback WHERE session_id = ? ORDER BY id`, sessionID,
	)
	if err != nil {
		return "", nil, err
	}
	defer rows.Close()

	var userID string
	var history []models.QuestionFeedback
	for rows.Next() {
		var data string
		if err := rows.Scan(&userID, &data); err != nil {
			return "", nil, err
		}
		var fb models.QuestionFeedback
		if err := json.Unmarshal([]byte(data), &fb); err != nil {
			return "", nil, fmt.Errorf("failed to unmarshal feedback: %w", err)
		}
		history = append(history, fb)
	}
	if err := rows.Err(); err != nil {
		return "", nil, err
	}
	if len(history) == 0 {
		return "", nil, models.NewNotFound("feedback", sessionID)
	}
	return userID, history, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
