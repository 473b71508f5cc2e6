package audit

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "modernc.org/sqlite"

	coreaudit "github.com/kilianp07/tendering/core/audit"
	"github.com/kilianp07/tendering/core/factory"
	"github.com/kilianp07/tendering/core/model"
)

func init() {
	_ = coreaudit.RegisterStore("sqlite", func(conf map[string]any) (coreaudit.Store, error) {
		var c struct {
			Path string `json:"path"`
		}
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		return NewSQLiteStore(c.Path)
	})
}

const sqliteSchema = `CREATE TABLE IF NOT EXISTS tender_decisions (
        seq INTEGER PRIMARY KEY AUTOINCREMENT,
        id TEXT NOT NULL UNIQUE,
        tender_id TEXT NOT NULL,
        outcome TEXT NOT NULL,
        reason TEXT,
        actor TEXT,
        automatic INTEGER,
        bid_id TEXT,
        carrier_id TEXT,
        amount REAL,
        score REAL,
        strategy TEXT,
        ledger_version INTEGER,
        audit_required INTEGER,
        at INTEGER,
        detail TEXT
    );
    CREATE INDEX IF NOT EXISTS tender_decisions_tender ON tender_decisions (tender_id);`

// SQLiteStore persists decision records in a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates the database and ensures schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("audit: sqlite path is required")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

// Append inserts the record.
func (s *SQLiteStore) Append(ctx context.Context, r coreaudit.Record) error {
	d, err := encodeDetail(r)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO tender_decisions
        (id, tender_id, outcome, reason, actor, automatic, bid_id, carrier_id, amount, score, strategy, ledger_version, audit_required, at, detail)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.TenderID, string(r.Outcome), r.Reason, r.Actor, r.Automatic, r.BidID, r.CarrierID,
		r.Amount, r.Score, string(r.Strategy), int64(r.LedgerVersion), r.AuditRequired, r.At.UnixNano(), string(d))
	return err
}

// List returns the tender's records in insertion order.
func (s *SQLiteStore) List(ctx context.Context, tenderID string) ([]coreaudit.Record, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, tender_id, outcome, reason, actor, automatic, bid_id, carrier_id,
        amount, score, strategy, ledger_version, audit_required, at, detail
        FROM tender_decisions WHERE tender_id = ? ORDER BY seq`, tenderID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var res []coreaudit.Record
	for rows.Next() {
		var (
			r                 coreaudit.Record
			outcome, strategy string
			version, at       int64
			d                 string
		)
		if err := rows.Scan(&r.ID, &r.TenderID, &outcome, &r.Reason, &r.Actor, &r.Automatic, &r.BidID, &r.CarrierID,
			&r.Amount, &r.Score, &strategy, &version, &r.AuditRequired, &at, &d); err != nil {
			return nil, err
		}
		r.Outcome = model.Status(outcome)
		r.Strategy = model.Strategy(strategy)
		r.LedgerVersion = uint64(version)
		r.At = time.Unix(0, at).UTC()
		if err := decodeDetail([]byte(d), &r); err != nil {
			return nil, err
		}
		res = append(res, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error { return s.db.Close() }
