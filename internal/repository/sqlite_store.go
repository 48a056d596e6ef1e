package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/MrMerge8/recursive/internal/domain/models"
	domrepo "github.com/MrMerge8/recursive/internal/domain/repository"
	pkgsqlite "github.com/MrMerge8/recursive/pkg/sqlite"
	applogger "github.com/MrMerge8/recursive/pkg/logger"
)

// SQLiteStore implements Store for one timeframe's database file.
type SQLiteStore struct {
	client       *pkgsqlite.Client
	db           *sqlx.DB
	l            *applogger.Logger
	queryTimeout time.Duration
	now          func() time.Time
}

var _ domrepo.Store = (*SQLiteStore)(nil)

// NewSQLiteStore wraps an open client and applies the schema.
func NewSQLiteStore(ctx context.Context, c *pkgsqlite.Client, queryTimeout time.Duration) (*SQLiteStore, error) {
	if err := c.InitSchema(ctx, sqliteSchema); err != nil {
		return nil, err
	}
	return &SQLiteStore{
		client:       c,
		db:           c.DB(),
		l:            applogger.Nop(),
		queryTimeout: queryTimeout,
		now:          func() time.Time { return time.Now().UTC() },
	}, nil
}

// SetLogger injects a structured logger.
func (s *SQLiteStore) SetLogger(l *applogger.Logger) {
	if l != nil {
		s.l = l.With(applogger.String("db", s.client.Path()))
	}
}

func (s *SQLiteStore) Health(ctx context.Context) error { return s.client.Health(ctx) }

func (s *SQLiteStore) Close() error { return s.client.Close() }

func (s *SQLiteStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.queryTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.queryTimeout)
}

func (s *SQLiteStore) count(ctx context.Context, q string, args ...interface{}) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, q, args...); err != nil {
		return 0, err
	}
	return n, nil
}

// insert runs a named INSERT on ext, the pool or an open transaction.
func (s *SQLiteStore) insert(ctx context.Context, ext sqlx.ExtContext, op string, q string, arg interface{}) (int64, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	res, err := sqlx.NamedExecContext(ctx, ext, q, arg)
	if err != nil {
		s.l.Error("sqlite insert error", applogger.String("op", op), applogger.Error(err))
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("%s: last insert id: %w", op, err)
	}
	return id, nil
}

// guardedUpdate runs an UPDATE whose WHERE clause carries a null-guard and
// maps zero affected rows to ErrNotFound or the supplied conflict error.
func (s *SQLiteStore) guardedUpdate(ctx context.Context, ext sqlx.ExtContext, op, table string, id int64, conflict error, q string, arg interface{}) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	res, err := sqlx.NamedExecContext(ctx, ext, q, arg)
	if err != nil {
		s.l.Error("sqlite update error", applogger.String("op", op), applogger.Int64("id", id), applogger.Error(err))
		return fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: rows affected: %w", op, err)
	}
	if n > 0 {
		return nil
	}
	var exists int
	if err := sqlx.GetContext(ctx, ext, &exists, fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE id = ?", table), id); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if exists == 0 {
		return domrepo.ErrNotFound
	}
	return conflict
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return domrepo.ErrNotFound
	}
	return err
}

func metaTable(pool models.Pool) (string, error) {
	switch pool {
	case models.PoolPrimary:
		return "meta_learnings", nil
	case models.PoolVerifier:
		return "verifier_meta_learnings", nil
	default:
		return "", fmt.Errorf("unsupported rule pool: %s", pool)
	}
}
