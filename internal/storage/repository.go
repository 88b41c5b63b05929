package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"mev-alerts/internal/model"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	createSubscribersSQL = `CREATE TABLE IF NOT EXISTS subscribers (
        subscriber_id         TEXT PRIMARY KEY,
        notifications_enabled BOOLEAN     NOT NULL DEFAULT FALSE,
        interval_hours        INTEGER     NOT NULL,
        threshold_usd         NUMERIC     NOT NULL,
        config_stage          TEXT        NOT NULL,
        updated_at            TIMESTAMPTZ NOT NULL DEFAULT NOW()
    );`

	upsertSubscriberSQL = `INSERT INTO subscribers (
        subscriber_id,
        notifications_enabled,
        interval_hours,
        threshold_usd,
        config_stage,
        updated_at
    ) VALUES (
        $1,$2,$3,$4,$5,$6
    )
    ON CONFLICT (subscriber_id) DO UPDATE
    SET
        notifications_enabled = EXCLUDED.notifications_enabled,
        interval_hours        = EXCLUDED.interval_hours,
        threshold_usd         = EXCLUDED.threshold_usd,
        config_stage          = EXCLUDED.config_stage,
        updated_at            = EXCLUDED.updated_at;`

	listSubscribersSQL = `SELECT
        subscriber_id,
        notifications_enabled,
        interval_hours,
        threshold_usd::TEXT,
        config_stage,
        updated_at
    FROM subscribers
    ORDER BY subscriber_id;`
)

// PostgresBackend persists subscriber records in PostgreSQL.
type PostgresBackend struct {
	pool *pgxpool.Pool
}

// NewPostgresBackend wires a pgx pool into a backend and ensures the schema exists.
func NewPostgresBackend(ctx context.Context, pool *pgxpool.Pool) (*PostgresBackend, error) {
	b := &PostgresBackend{pool: pool}
	p, err := b.getPool()
	if err != nil {
		return nil, err
	}
	if _, err := p.Exec(ctx, createSubscribersSQL); err != nil {
		return nil, fmt.Errorf("create subscribers table: %w", err)
	}
	return b, nil
}

func (b *PostgresBackend) getPool() (*pgxpool.Pool, error) {
	if b == nil || b.pool == nil {
		return nil, ErrNotConfigured
	}
	return b.pool, nil
}

// Load returns every stored subscriber.
func (b *PostgresBackend) Load(ctx context.Context) ([]model.Subscriber, error) {
	pool, err := b.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listSubscribersSQL)
	if queryErr != nil {
		return nil, fmt.Errorf("list subscribers: %w", queryErr)
	}
	defer rows.Close()

	subs := make([]model.Subscriber, 0)
	for rows.Next() {
		sub, scanErr := scanSubscriber(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		subs = append(subs, sub)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return subs, nil
}

// Put upserts a single subscriber row.
func (b *PostgresBackend) Put(ctx context.Context, sub model.Subscriber) error {
	pool, err := b.getPool()
	if err != nil {
		return err
	}

	updated := sub.UpdatedAt
	if updated.IsZero() {
		updated = time.Now().UTC()
	}

	_, execErr := pool.Exec(ctx, upsertSubscriberSQL,
		sub.ID,
		sub.NotificationsEnabled,
		sub.IntervalHours,
		sub.ThresholdUSD.String(),
		string(sub.Stage),
		updated,
	)
	if execErr != nil {
		return fmt.Errorf("upsert subscriber: %w", execErr)
	}
	return nil
}

// Close releases the underlying pool resources.
func (b *PostgresBackend) Close() error {
	if b == nil || b.pool == nil {
		return nil
	}
	b.pool.Close()
	return nil
}

func scanSubscriber(row pgx.Row) (model.Subscriber, error) {
	var (
		id           string
		enabled      bool
		interval     int
		thresholdStr string
		stage        string
		updatedAt    time.Time
	)

	if err := row.Scan(&id, &enabled, &interval, &thresholdStr, &stage, &updatedAt); err != nil {
		return model.Subscriber{}, err
	}

	threshold, err := decimal.NewFromString(thresholdStr)
	if err != nil {
		return model.Subscriber{}, fmt.Errorf("parse threshold for %s: %w", id, err)
	}

	return model.Subscriber{
		ID:                   id,
		NotificationsEnabled: enabled,
		IntervalHours:        interval,
		ThresholdUSD:         threshold,
		Stage:                model.Stage(stage),
		UpdatedAt:            updatedAt,
	}, nil
}
