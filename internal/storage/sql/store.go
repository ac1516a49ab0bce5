package sql

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/fgeck/gofleet-homelab/internal/models"
	"github.com/fgeck/gofleet-homelab/internal/storage"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// Store implements the storage.Storage interface using SQL.
type Store struct {
	db     *sqlx.DB
	driver string
}

// New creates a new SQL store and migrates it. The driver is either
// "sqlite3" or "postgres".
func New(driver, dsn string) (*Store, error) {
	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	if driver == "sqlite3" {
		// single writer; avoids SQLITE_BUSY under concurrent job writes
		db.SetMaxOpenConns(1)
	}

	goose.SetBaseFS(embedMigrations)
	if err := goose.SetDialect(driver); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("setting goose dialect: %w", err)
	}

	if err := goose.Up(db.DB, "migrations"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &Store{db: db, driver: driver}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ============================================
// Checkpoints
// ============================================

func (s *Store) SaveCheckpoint(ctx context.Context, cp *models.Checkpoint) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO checkpoints (address, snapshot, job_id, created_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (address) DO UPDATE SET
		   snapshot = excluded.snapshot,
		   job_id = excluded.job_id,
		   created_at = excluded.created_at`,
		cp.Address, cp.Snapshot, cp.JobID, cp.CreatedAt.UTC())
	return err
}

func (s *Store) GetCheckpoint(ctx context.Context, address string) (*models.Checkpoint, error) {
	var cp models.Checkpoint
	err := s.db.GetContext(ctx, &cp,
		`SELECT address, snapshot, job_id, created_at FROM checkpoints WHERE address = $1`, address)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &cp, nil
}

// ============================================
// Jobs
// ============================================

func (s *Store) CreateJob(ctx context.Context, job *models.Job) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO jobs (id, kind, devices, succeeded, failed, dry, started_at, finished_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		job.ID, job.Kind, job.Devices, job.Succeeded, job.Failed, job.Dry,
		job.StartedAt.UTC(), job.FinishedAt.UTC())
	return err
}

func (s *Store) ListJobs(ctx context.Context, limit int) ([]*models.Job, error) {
	if limit <= 0 {
		limit = storage.DefaultJobLimit
	}
	var jobs []*models.Job
	err := s.db.SelectContext(ctx, &jobs,
		`SELECT id, kind, devices, succeeded, failed, dry, started_at, finished_at
		 FROM jobs ORDER BY started_at DESC, id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	return jobs, nil
}
