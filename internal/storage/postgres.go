package storage

import (
	"context"
	"database/sql"
	"errors"
	"sync"
)

const (
	createDocumentsTable = `CREATE TABLE IF NOT EXISTS sync_documents (
	namespace  TEXT NOT NULL,
	name       TEXT NOT NULL,
	body       BYTEA NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (namespace, name)
)`
	selectDocument = `SELECT body FROM sync_documents WHERE namespace = $1 AND name = $2`
	upsertDocument = `INSERT INTO sync_documents (namespace, name, body, updated_at) VALUES ($1, $2, $3, NOW())
ON CONFLICT (namespace, name) DO UPDATE SET body = EXCLUDED.body, updated_at = NOW()`
	deleteDocument = `DELETE FROM sync_documents WHERE namespace = $1 AND name = $2`
	existsDocument = `SELECT EXISTS (SELECT 1 FROM sync_documents WHERE namespace = $1 AND name = $2)`
)

// PostgresBackend keeps documents in one keyed table. Each write replaces
// the whole document in a single statement.
type PostgresBackend struct {
	db        *sql.DB
	namespace string

	mu      sync.Mutex
	ensured bool
}

func NewPostgresBackend(db *sql.DB, namespace string) *PostgresBackend {
	return &PostgresBackend{db: db, namespace: namespace}
}

func (p *PostgresBackend) ensureSchema(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ensured {
		return nil
	}
	if _, err := p.db.ExecContext(ctx, createDocumentsTable); err != nil {
		return err
	}
	p.ensured = true
	return nil
}

func (p *PostgresBackend) Get(ctx context.Context, name string) ([]byte, bool, error) {
	if err := p.ensureSchema(ctx); err != nil {
		return nil, false, err
	}
	var body []byte
	err := p.db.QueryRowContext(ctx, selectDocument, p.namespace, name).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return body, true, nil
}

func (p *PostgresBackend) Put(ctx context.Context, name string, data []byte) error {
	if err := p.ensureSchema(ctx); err != nil {
		return err
	}
	_, err := p.db.ExecContext(ctx, upsertDocument, p.namespace, name, data)
	return err
}

func (p *PostgresBackend) Delete(ctx context.Context, name string) error {
	if err := p.ensureSchema(ctx); err != nil {
		return err
	}
	_, err := p.db.ExecContext(ctx, deleteDocument, p.namespace, name)
	return err
}

func (p *PostgresBackend) Exists(ctx context.Context, name string) (bool, error) {
	if err := p.ensureSchema(ctx); err != nil {
		return false, err
	}
	var ok bool
	if err := p.db.QueryRowContext(ctx, existsDocument, p.namespace, name).Scan(&ok); err != nil {
		return false, err
	}
	return ok, nil
}

func (p *PostgresBackend) Durable() bool { return true }

func (p *PostgresBackend) Close() error {
	return p.db.Close()
}
