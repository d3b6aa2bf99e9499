package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"cdctrl/config"
	"cdctrl/internal/models"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

const createTableSQL = `
CREATE TABLE IF NOT EXISTS received_logs (
	uuid         TEXT PRIMARY KEY,
	message      TEXT NOT NULL,
	address      TEXT NOT NULL,
	file_name    TEXT NOT NULL,
	line_number  BIGINT NOT NULL,
	warnings     JSONB NOT NULL,
	stack        JSONB,
	code_snippet JSONB,
	language     TEXT,
	received_at  TIMESTAMPTZ NOT NULL
)`

const insertEntrySQL = `
INSERT INTO received_logs
	(uuid, message, address, file_name, line_number, warnings, stack, code_snippet, language, received_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (uuid) DO NOTHING`

// PostgresStore archives entries into a received_logs table.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *log.Logger
}

// NewPostgresStore connects the pool and makes sure the table exists.
func NewPostgresStore(ctx context.Context, cfg config.DatabaseConfig, logger *log.Logger) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database DSN: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxConnections)
	poolCfg.MinConns = int32(cfg.MinConnections)
	idle, lifetime, err := cfg.PoolDurations()
	if err != nil {
		return nil, err
	}
	if idle > 0 {
		poolCfg.MaxConnIdleTime = idle
	}
	if lifetime > 0 {
		poolCfg.MaxConnLifetime = lifetime
	}

	pool, err := pgxpool.ConnectConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if _, err := pool.Exec(ctx, createTableSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create received_logs table: %w", err)
	}

	logger.Println("PostgreSQL archive store initialized.")
	return &PostgresStore{pool: pool, logger: logger}, nil
}

// InsertEntryBatch implements Store using a pgx batch.
func (p *PostgresStore) InsertEntryBatch(ctx context.Context, entries []models.Entry) error {
	if len(entries) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, e := range entries {
		args, err := insertArgs(e)
		if err != nil {
			return err
		}
		batch.Queue(insertEntrySQL, args...)
	}

	results := p.pool.SendBatch(ctx, batch)
	defer results.Close()
	for i := range entries {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("failed to insert entry %s: %w", entries[i].Log.UUID, err)
		}
	}
	return nil
}

// insertArgs flattens an entry into the positional arguments of insertEntrySQL.
func insertArgs(e models.Entry) ([]interface{}, error) {
	warnings := e.Log.Warnings
	if warnings == nil {
		warnings = []string{}
	}
	warningsJSON, err := json.Marshal(warnings)
	if err != nil {
		return nil, fmt.Errorf("failed to encode warnings of %s: %w", e.Log.UUID, err)
	}

	var stackJSON, snippetJSON []byte
	if len(e.Log.Stack) > 0 {
		if stackJSON, err = json.Marshal(e.Log.Stack); err != nil {
			return nil, fmt.Errorf("failed to encode stack of %s: %w", e.Log.UUID, err)
		}
	}
	if len(e.Log.CodeSnippet) > 0 {
		if snippetJSON, err = json.Marshal(e.Log.CodeSnippet); err != nil {
			return nil, fmt.Errorf("failed to encode code snippet of %s: %w", e.Log.UUID, err)
		}
	}

	return []interface{}{
		e.Log.UUID,
		e.Log.Message,
		e.Log.Address,
		e.Log.FileName,
		int64(e.Log.LineNumber),
		warningsJSON,
		stackJSON,
		snippetJSON,
		e.Log.Language,
		e.Received,
	}, nil
}

// Close closes the connection pool.
func (p *PostgresStore) Close() {
	p.logger.Println("Closing PostgreSQL archive store...")
	p.pool.Close()
}

var _ Store = (*PostgresStore)(nil)
