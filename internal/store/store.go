package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"poolwager/internal/models"
)

//go:embed schema.sql
var schemaSQL string

// Store is a receipt journal backed by SQLite in WAL mode.
type Store struct {
	db *sql.DB
}

// Open creates or opens the database at path and applies the schema.
// ":memory:" is accepted for throwaway journals.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite has a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// WriteReceipt appends a receipt. Writing the same TxID twice is a no-op.
func (s *Store) WriteReceipt(ctx context.Context, r models.Receipt) error {
	events := r.Events
	if events == nil {
		events = []models.Event{}
	}
	eventsJSON, err := json.Marshal(events)
	if err != nil {
		return fmt.Errorf("write receipt: %w", err)
	}
	value := "0"
	if r.Value != nil {
		value = r.Value.String()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO receipts
		(tx_id, contract, from_addr, method, value_wei, block_number, timestamp, status, reason, events)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(tx_id) DO NOTHING
	`,
		r.TxID,
		r.Contract.String(),
		r.From.String(),
		r.Method,
		value,
		int64(r.BlockNumber),
		r.Timestamp.UnixNano(),
		r.Status,
		r.Reason,
		string(eventsJSON),
	)
	if err != nil {
		return fmt.Errorf("write receipt: %w", err)
	}
	return nil
}

// ListReceipts returns every receipt for contract in submission order.
func (s *Store) ListReceipts(ctx context.Context, contract models.Address) ([]models.Receipt, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT tx_id, contract, from_addr, method, value_wei, block_number, timestamp, status, reason, events
		FROM receipts
		WHERE contract = ?
		ORDER BY seq
	`, contract.String())
	if err != nil {
		return nil, fmt.Errorf("list receipts: %w", err)
	}
	defer rows.Close()

	receipts := make([]models.Receipt, 0)
	for rows.Next() {
		r, err := scanReceipt(rows)
		if err != nil {
			return nil, fmt.Errorf("list receipts: %w", err)
		}
		receipts = append(receipts, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list receipts: %w", err)
	}
	return receipts, nil
}

// PruneBefore deletes receipts older than cutoff and reports how many went.
func (s *Store) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM receipts WHERE timestamp < ?`, cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("prune receipts: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune receipts: %w", err)
	}
	return n, nil
}

func scanReceipt(rows *sql.Rows) (models.Receipt, error) {
	var (
		r                     models.Receipt
		contract, from, value string
		block, ts             int64
		events                string
	)
	if err := rows.Scan(&r.TxID, &contract, &from, &r.Method, &value, &block, &ts, &r.Status, &r.Reason, &events); err != nil {
		return r, err
	}

	var err error
	if r.Contract, err = models.ParseAddress(contract); err != nil {
		return r, err
	}
	if r.From, err = models.ParseAddress(from); err != nil {
		return r, err
	}
	v, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return r, fmt.Errorf("corrupt value %q for %s", value, r.TxID)
	}
	r.Value = v
	r.BlockNumber = uint64(block)
	r.Timestamp = time.Unix(0, ts).UTC()
	if err := json.Unmarshal([]byte(events), &r.Events); err != nil {
		return r, err
	}
	if len(r.Events) == 0 {
		r.Events = nil
	}
	return r, nil
}
