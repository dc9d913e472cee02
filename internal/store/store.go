// In file: internal/store/store.go

// Package store persists enhancement sessions and status checks. Session
// writes are fire-and-forget from the caller's point of view.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
)

const DefaultStatusLimit = 1000

// Session is one completed enhancement.
type Session struct {
	ID               uuid.UUID         `json:"id"`
	OriginalPrompt   string            `json:"original_prompt"`
	EnhancedPrompt   string            `json:"enhanced_prompt"`
	Mode             string            `json:"mode"`
	EnhancementType  string            `json:"enhancement_type"`
	EnhancementRatio float64           `json:"enhancement_ratio"`
	ComplexityScore  float64           `json:"complexity_score"`
	ModelsUsed       map[string]string `json:"models_used"`
	CreatedAt        time.Time         `json:"created_at"`
}

// StatusCheck records that a client checked in.
type StatusCheck struct {
	ID         uuid.UUID `json:"id"`
	ClientName string    `json:"client_name"`
	Timestamp  time.Time `json:"timestamp"`
}

// SessionSink receives completed sessions.
type SessionSink interface {
	SaveSession(ctx context.Context, s Session) error
}

// StatusStore creates and lists status checks.
type StatusStore interface {
	CreateStatus(ctx context.Context, clientName string) (StatusCheck, error)
	ListStatus(ctx context.Context, limit int) ([]StatusCheck, error)
}

// Store is the Postgres implementation of SessionSink and StatusStore.
type Store struct {
	db *sql.DB
}

var (
	_ SessionSink = (*Store)(nil)
	_ StatusStore = (*Store)(nil)
)

func Open(dsn string) (*Store, error) {
	if dsn == "" {
		return nil, errors.New("missing database dsn")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	return &Store{db: db}, nil
}

func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) SaveSession(ctx context.Context, sess Session) error {
	sess = withDefaults(sess)
	models, err := json.Marshal(sess.ModelsUsed)
	if err != nil {
		return fmt.Errorf("failed to encode models_used: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO enhancement_sessions
		(id, original_prompt, enhanced_prompt, mode, enhancement_type, enhancement_ratio, complexity_score, models_used, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8::jsonb, $9)`,
		sess.ID, sess.OriginalPrompt, sess.EnhancedPrompt, sess.Mode, sess.EnhancementType,
		sess.EnhancementRatio, sess.ComplexityScore, string(models), sess.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save session %s: %w", sess.ID, err)
	}
	return nil
}

func (s *Store) CreateStatus(ctx context.Context, clientName string) (StatusCheck, error) {
	check := StatusCheck{ID: uuid.New(), ClientName: clientName, Timestamp: time.Now().UTC()}
	_, err := s.db.ExecContext(ctx, `INSERT INTO status_checks (id, client_name, created_at) VALUES ($1, $2, $3)`,
		check.ID, check.ClientName, check.Timestamp)
	if err != nil {
		return StatusCheck{}, fmt.Errorf("failed to create status check: %w", err)
	}
	return check, nil
}

// ListStatus returns up to limit checks, newest first.
func (s *Store) ListStatus(ctx context.Context, limit int) ([]StatusCheck, error) {
	if limit <= 0 || limit > DefaultStatusLimit {
		limit = DefaultStatusLimit
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, client_name, created_at FROM status_checks ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list status checks: %w", err)
	}
	defer rows.Close()

	checks := make([]StatusCheck, 0)
	for rows.Next() {
		var c StatusCheck
		if err := rows.Scan(&c.ID, &c.ClientName, &c.Timestamp); err != nil {
			return nil, err
		}
		checks = append(checks, c)
	}
	return checks, rows.Err()
}

// SessionByID loads one session; sql.ErrNoRows when absent.
func (s *Store) SessionByID(ctx context.Context, id uuid.UUID) (Session, error) {
	var (
		sess   Session
		models []byte
	)
	err := s.db.QueryRowContext(ctx, `SELECT id, original_prompt, enhanced_prompt, mode, enhancement_type,
		enhancement_ratio, complexity_score, models_used, created_at FROM enhancement_sessions WHERE id = $1`, id).
		Scan(&sess.ID, &sess.OriginalPrompt, &sess.EnhancedPrompt, &sess.Mode, &sess.EnhancementType,
			&sess.EnhancementRatio, &sess.ComplexityScore, &models, &sess.CreatedAt)
	if err != nil {
		return Session{}, err
	}
	if err := json.Unmarshal(models, &sess.ModelsUsed); err != nil {
		return Session{}, fmt.Errorf("failed to decode models_used: %w", err)
	}
	return sess, nil
}

func withDefaults(sess Session) Session {
	if sess.ID == uuid.Nil {
		sess.ID = uuid.New()
	}
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = time.Now().UTC()
	}
	if sess.ModelsUsed == nil {
		sess.ModelsUsed = map[string]string{}
	}
	return sess
}
