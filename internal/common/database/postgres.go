package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"survey-sync/internal/common/config"

	_ "github.com/lib/pq"
)

type PostgresClient struct {
	DB *sql.DB
}

func NewPostgres(cfg config.PostgresConfig) (*PostgresClient, error) {
	client, err := NewPostgresFromDSN(cfg.GetDSN())
	if err != nil {
		return nil, err
	}
	client.DB.SetMaxOpenConns(cfg.MaxConnections)
	client.DB.SetMaxIdleConns(cfg.MaxIdle)
	return client, nil
}

// NewPostgresFromDSN opens a pool from a key=value or postgres:// DSN.
func NewPostgresFromDSN(dsn string) (*PostgresClient, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &PostgresClient{DB: db}, nil
}

func (c *PostgresClient) Ping(ctx context.Context) error {
	return c.DB.PingContext(ctx)
}

func (c *PostgresClient) Close() error {
	if c.DB != nil {
		return c.DB.Close()
	}
	return nil
}
