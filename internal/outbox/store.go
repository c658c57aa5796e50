package outbox

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Row is one undelivered outbox entry.
type Row struct {
	ID           int64
	EventType    string
	Topic        string
	PartitionKey string
	Payload      []byte
	CreatedAt    time.Time
}

// PgxStore reads and updates outbox rows in Postgres.
type PgxStore struct {
	pool *pgxpool.Pool
}

// NewPgxStore constructs a PgxStore.
func NewPgxStore(pool *pgxpool.Pool) *PgxStore {
	return &PgxStore{pool: pool}
}

// FetchAndClaim locks up to batchSize unpublished rows for this dispatcher
// cycle. SKIP LOCKED lets multiple instances drain the table without
// contending; rows stay claimed only for the transaction, so a crashed
// delivery leaves them available for the next poll.
func (s *PgxStore) FetchAndClaim(ctx context.Context, batchSize int) ([]Row, error) {
	const query = `SELECT id, event_type, topic, partition_key, payload, created_at
        FROM outbox
        WHERE published_at IS NULL
        ORDER BY id
        LIMIT $1
        FOR UPDATE SKIP LOCKED`

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, query, batchSize)
	if err != nil {
		return nil, err
	}

	var claimed []Row
	for rows.Next() {
		var row Row
		if err := rows.Scan(&row.ID, &row.EventType, &row.Topic, &row.PartitionKey, &row.Payload, &row.CreatedAt); err != nil {
			rows.Close()
			return nil, err
		}
		claimed = append(claimed, row)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return claimed, nil
}

// MarkPublished stamps the rows as delivered.
func (s *PgxStore) MarkPublished(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	const stmt = `UPDATE outbox SET published_at = now() WHERE id = ANY($1)`
	_, err := s.pool.Exec(ctx, stmt, ids)
	return err
}
