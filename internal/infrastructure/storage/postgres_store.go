package storage

import (
	"context"
	"embed"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"DealScanner/internal/domain"
	"DealScanner/internal/ports"
)

//go:embed migrations/*.sql
var migrations embed.FS

const deliveredTable = "delivered_listings"

// pgxDB is the part of *pgxpool.Pool the store uses.
type pgxDB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Close()
}

// PostgresStore persists delivered ids into Postgres.
type PostgresStore struct {
	db   pgxDB
	psql sq.StatementBuilderType
}

var _ ports.LedgerStore = (*PostgresStore)(nil)

// ConnectPostgres opens a pool for dsn, pings it and applies migrations.
func ConnectPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	cfg.MaxConns = 4
	cfg.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return NewPostgresStore(pool), nil
}

// NewPostgresStore wraps an existing pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return newPostgresStore(pool)
}

func newPostgresStore(db pgxDB) *PostgresStore {
	return &PostgresStore{
		db:   db,
		psql: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

// Migrate applies the embedded schema migrations.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

func (s *PostgresStore) LoadAll(ctx context.Context) ([]domain.LedgerEntry, error) {
	query, args, err := s.psql.
		Select("listing_id", "delivered_at").
		From(deliveredTable).
		OrderBy("delivered_at").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query delivered: %w", err)
	}
	defer rows.Close()

	var entries []domain.LedgerEntry
	for rows.Next() {
		var entry domain.LedgerEntry
		if err := rows.Scan(&entry.ID, &entry.DeliveredAt); err != nil {
			return nil, fmt.Errorf("scan delivered: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return entries, nil
}

func (s *PostgresStore) Append(ctx context.Context, entry domain.LedgerEntry) error {
	query, args, err := insertDelivered(s.psql, entry)
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := s.db.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert delivered %s: %w", entry.ID, err)
	}
	return nil
}

func insertDelivered(psql sq.StatementBuilderType, entry domain.LedgerEntry) (string, []any, error) {
	return psql.
		Insert(deliveredTable).
		Columns("listing_id", "delivered_at").
		Values(entry.ID, entry.DeliveredAt.UTC()).
		Suffix("ON CONFLICT (listing_id) DO NOTHING").
		ToSql()
}

// Flush is a no-op; every Append is its own transaction.
func (s *PostgresStore) Flush(context.Context) error { return nil }

func (s *PostgresStore) Close() error {
	s.db.Close()
	return nil
}
