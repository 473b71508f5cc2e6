package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	coreaudit "github.com/kilianp07/tendering/core/audit"
	"github.com/kilianp07/tendering/core/factory"
	"github.com/kilianp07/tendering/core/model"
)

const connectTimeout = 10 * time.Second

func init() {
	_ = coreaudit.RegisterStore("postgres", func(conf map[string]any) (coreaudit.Store, error) {
		var c struct {
			DSN string `json:"dsn"`
		}
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
		defer cancel()
		return NewPostgresStore(ctx, c.DSN)
	})
}

const postgresSchema = `CREATE TABLE IF NOT EXISTS tender_decisions (
    seq BIGSERIAL PRIMARY KEY,
    id TEXT NOT NULL UNIQUE,
    tender_id TEXT NOT NULL,
    outcome TEXT NOT NULL,
    reason TEXT NOT NULL DEFAULT '',
    actor TEXT NOT NULL DEFAULT '',
    automatic BOOLEAN NOT NULL DEFAULT FALSE,
    bid_id TEXT NOT NULL DEFAULT '',
    carrier_id TEXT NOT NULL DEFAULT '',
    amount DOUBLE PRECISION NOT NULL DEFAULT 0,
    score DOUBLE PRECISION NOT NULL DEFAULT 0,
    strategy TEXT NOT NULL DEFAULT '',
    ledger_version BIGINT NOT NULL DEFAULT 0,
    audit_required BOOLEAN NOT NULL DEFAULT FALSE,
    at TIMESTAMPTZ NOT NULL,
    detail JSONB
);
CREATE INDEX IF NOT EXISTS tender_decisions_tender ON tender_decisions (tender_id);`

// PostgresStore persists decision records in PostgreSQL through a pgx pool.
type PostgresStore struct {
	DB *pgxpool.Pool
}

// NewPostgresStore connects to dsn and ensures the schema exists.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	if dsn == "" {
		return nil, errors.New("audit: postgres dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to reach database: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("audit: migrate: %w", err)
	}
	return &PostgresStore{DB: pool}, nil
}

// Append inserts the record.
func (s *PostgresStore) Append(ctx context.Context, r coreaudit.Record) error {
	d, err := encodeDetail(r)
	if err != nil {
		return err
	}
	insertQuery := `INSERT INTO tender_decisions
        (id, tender_id, outcome, reason, actor, automatic, bid_id, carrier_id, amount, score, strategy, ledger_version, audit_required, at, detail)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`
	_, err = s.DB.Exec(
		ctx,
		insertQuery,
		r.ID,
		r.TenderID,
		string(r.Outcome),
		r.Reason,
		r.Actor,
		r.Automatic,
		r.BidID,
		r.CarrierID,
		r.Amount,
		r.Score,
		string(r.Strategy),
		int64(r.LedgerVersion),
		r.AuditRequired,
		r.At,
		string(d))
	return err
}

// List returns the tender's records in insertion order.
func (s *PostgresStore) List(ctx context.Context, tenderID string) ([]coreaudit.Record, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT id, tender_id, outcome, reason, actor, automatic, bid_id, carrier_id,
		       amount, score, strategy, ledger_version, audit_required, at, detail
		FROM tender_decisions WHERE tender_id = $1 ORDER BY seq`, tenderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []coreaudit.Record
	for rows.Next() {
		var (
			r                 coreaudit.Record
			outcome, strategy string
			version           int64
			d                 []byte
		)
		if err := rows.Scan(&r.ID, &r.TenderID, &outcome, &r.Reason, &r.Actor, &r.Automatic, &r.BidID, &r.CarrierID,
			&r.Amount, &r.Score, &strategy, &version, &r.AuditRequired, &r.At, &d); err != nil {
			return nil, err
		}
		r.Outcome = model.Status(outcome)
		r.Strategy = model.Strategy(strategy)
		r.LedgerVersion = uint64(version)
		r.At = r.At.UTC()
		if err := decodeDetail(d, &r); err != nil {
			return nil, err
		}
		res = append(res, r)
	}
	return res, rows.Err()
}

// Close releases the pool.
func (s *PostgresStore) Close() { s.DB.Close() }
