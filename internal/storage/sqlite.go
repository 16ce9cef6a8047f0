//go:build sqlite

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"mlvisuals/internal/model"

	_ "modernc.org/sqlite"
)

func DefaultStoreKind() string {
	return "sqlite"
}

func newSQLiteStore(path string) (Store, error) {
	return NewSQLiteStore(path), nil
}

type SQLiteStore struct {
	path string

	mu sync.RWMutex
	db *sql.DB
}

func NewSQLiteStore(path string) *SQLiteStore {
	return &SQLiteStore{path: path}
}

func (s *SQLiteStore) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" {
		return errors.New("sqlite path is required")
	}
	if s.db != nil {
		return nil
	}

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return err
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return err
	}

	if err := createTables(ctx, db); err != nil {
		_ = db.Close()
		return err
	}

	s.db = db
	return nil
}

func (s *SQLiteStore) SaveLearningCurve(ctx context.Context, curve model.LearningCurve) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	payload, err := EncodeLearningCurve(curve)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO learning_curves (id, schema_version, codec_version, created_at_utc, complete, payload)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			schema_version = excluded.schema_version,
			codec_version = excluded.codec_version,
			complete = excluded.complete,
			payload = excluded.payload
	`, curve.ID, curve.SchemaVersion, curve.CodecVersion, curve.CreatedAtUTC, curve.Complete, payload)
	return err
}

func (s *SQLiteStore) GetLearningCurve(ctx context.Context, id string) (model.LearningCurve, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return model.LearningCurve{}, false, err
	}

	var payload []byte
	err = db.QueryRowContext(ctx, `SELECT payload FROM learning_curves WHERE id = ?`, id).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.LearningCurve{}, false, nil
		}
		return model.LearningCurve{}, false, err
	}

	curve, err := DecodeLearningCurve(payload)
	if err != nil {
		return model.LearningCurve{}, false, fmt.Errorf("decode learning curve %s: %w", id, err)
	}
	return curve, true, nil
}

func (s *SQLiteStore) SaveBoundaryBatch(ctx context.Context, batch model.BoundaryBatch) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	payload, err := EncodeBoundaryBatch(batch)
	if err != nil {
		return err
	}

	record := batchRecord(batch)
	_, err = db.ExecContext(ctx, `
		INSERT INTO boundary_batches (id, kind, schema_version, codec_version, created_at_utc, complete, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			schema_version = excluded.schema_version,
			codec_version = excluded.codec_version,
			complete = excluded.complete,
			payload = excluded.payload
	`, batch.ID, string(record.Kind), batch.SchemaVersion, batch.CodecVersion, batch.CreatedAtUTC, batch.Complete, payload)
	return err
}

func (s *SQLiteStore) GetBoundaryBatch(ctx context.Context, id string) (model.BoundaryBatch, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return model.BoundaryBatch{}, false, err
	}

	var payload []byte
	err = db.QueryRowContext(ctx, `SELECT payload FROM boundary_batches WHERE id = ?`, id).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.BoundaryBatch{}, false, nil
		}
		return model.BoundaryBatch{}, false, err
	}

	batch, err := DecodeBoundaryBatch(payload)
	if err != nil {
		return model.BoundaryBatch{}, false, fmt.Errorf("decode boundary batch %s: %w", id, err)
	}
	return batch, true, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context) ([]model.RunRecord, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `
		SELECT id, ?, complete, created_at_utc FROM learning_curves
		UNION ALL
		SELECT id, kind, complete, created_at_utc FROM boundary_batches
	`, string(model.RunKindLearningCurve))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []model.RunRecord
	for rows.Next() {
		var (
			run  model.RunRecord
			kind string
		)
		if err := rows.Scan(&run.ID, &kind, &run.Complete, &run.CreatedAtUTC); err != nil {
			return nil, err
		}
		run.Kind = model.RunKind(kind)
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sortRuns(runs)
	return runs, nil
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *SQLiteStore) getDB() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, errors.New("store is not initialized")
	}
	return s.db, nil
}

func createTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS learning_curves (
			id TEXT PRIMARY KEY,
			schema_version INTEGER NOT NULL,
			codec_version INTEGER NOT NULL,
			created_at_utc TEXT NOT NULL,
			complete INTEGER NOT NULL,
			payload BLOB NOT NULL
		);
		CREATE TABLE IF NOT EXISTS boundary_batches (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			schema_version INTEGER NOT NULL,
			codec_version INTEGER NOT NULL,
			created_at_utc TEXT NOT NULL,
			complete INTEGER NOT NULL,
			payload BLOB NOT NULL
		);
	`)
	return err
}
