// Package postgres implements storage.Repository backed by PostgreSQL, so
// fixture state can be shared by generate, revoke and crl runs on different
// machines.
//
// The records table is keyed by (namespace, record_type, record_id), the
// same key space the BBolt and in-memory backends use.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jmcleod/sslfixture/storage"
)

// Store implements storage.Repository backed by PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

var _ storage.Repository = (*Store)(nil)

// NewRepository returns a Repository backed by the given pgx connection pool.
func NewRepository(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// NewRepositoryFromDSN creates a connection pool from a DSN string, ensures
// the schema exists, and returns a new Repository.
func NewRepositoryFromDSN(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if err := EnsureSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensuring schema: %w", err)
	}
	return NewRepository(pool), nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Reset removes every record in namespace.
func (s *Store) Reset(namespace string) error {
	_, err := s.pool.Exec(context.Background(), `DELETE FROM records WHERE namespace = $1`, namespace)
	return err
}

func (s *Store) Put(namespace, recordType, recordID string, record *storage.Record) error {
	_, err := s.pool.Exec(context.Background(),
		`INSERT INTO records (namespace, record_type, record_id, data, version)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (namespace, record_type, record_id)
		 DO UPDATE SET data = $4, version = $5`,
		namespace, recordType, recordID, record.Data, int64(record.Version))
	return err
}

func (s *Store) Get(namespace, recordType, recordID string) (*storage.Record, error) {
	var (
		rec     storage.Record
		version int64
	)
	err := s.pool.QueryRow(context.Background(),
		`SELECT data, version FROM records
		 WHERE namespace = $1 AND record_type = $2 AND record_id = $3`,
		namespace, recordType, recordID).Scan(&rec.Data, &version)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFoundError(context.Background(), s.pool, namespace, recordType, recordID)
	}
	if err != nil {
		return nil, err
	}
	rec.Version = uint64(version)
	return &rec, nil
}

// List returns record IDs of the given type in lexical order.
func (s *Store) List(namespace, recordType string) ([]string, error) {
	rows, err := s.pool.Query(context.Background(),
		`SELECT record_id FROM records WHERE namespace = $1 AND record_type = $2 ORDER BY record_id`,
		namespace, recordType)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func (s *Store) Delete(namespace, recordType, recordID string) error {
	tag, err := s.pool.Exec(context.Background(),
		`DELETE FROM records WHERE namespace = $1 AND record_type = $2 AND record_id = $3`,
		namespace, recordType, recordID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return notFoundError(context.Background(), s.pool, namespace, recordType, recordID)
	}
	return nil
}

func (s *Store) PutCAS(namespace, recordType, recordID string, expectedVersion uint64, record *storage.Record) error {
	ctx := context.Background()
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var current int64
	err = tx.QueryRow(ctx,
		`SELECT version FROM records
		 WHERE namespace = $1 AND record_type = $2 AND record_id = $3
		 FOR UPDATE`,
		namespace, recordType, recordID).Scan(&current)

	switch {
	case errors.Is(err, pgx.ErrNoRows):
		if expectedVersion != 0 {
			return storage.ErrCASFailed
		}
		// A concurrent create loses on the primary key.
		tag, err := tx.Exec(ctx,
			`INSERT INTO records (namespace, record_type, record_id, data, version)
			 VALUES ($1, $2, $3, $4, $5)
			 ON CONFLICT DO NOTHING`,
			namespace, recordType, recordID, record.Data, int64(record.Version))
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return storage.ErrCASFailed
		}
	case err != nil:
		return err
	default:
		if expectedVersion == 0 || uint64(current) != expectedVersion {
			return storage.ErrCASFailed
		}
		if _, err := tx.Exec(ctx,
			`UPDATE records SET data = $4, version = $5
			 WHERE namespace = $1 AND record_type = $2 AND record_id = $3`,
			namespace, recordType, recordID, record.Data, int64(record.Version)); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// notFoundError distinguishes a namespace that was never written from a
// missing record inside an existing one, matching the BBolt backend.
func notFoundError(ctx context.Context, pool *pgxpool.Pool, namespace, recordType, recordID string) error {
	var exists bool
	_ = pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM records WHERE namespace = $1 LIMIT 1)`,
		namespace).Scan(&exists)
	if !exists {
		return fmt.Errorf("%s: %w", namespace, storage.ErrNamespaceNotFound)
	}
	return fmt.Errorf("%s/%s: %w", recordType, recordID, storage.ErrNotFound)
}
