// Package fulfillmentdb persists saga instances in Postgres.
package fulfillmentdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"lockstep/internal/fulfillment"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Store is a Postgres-backed fulfillment.Store. Idempotent creation rides on
// the order_id primary key; association lookup rides on the associations
// table's primary key.
type Store struct {
	db *sql.DB
}

// NewStore constructs a Store over the given connection pool.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// NewStoreWithSchema initializes the schema then returns the store.
func NewStoreWithSchema(ctx context.Context, db *sql.DB) (*Store, error) {
	store := NewStore(db)
	if err := store.InitSchema(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

// InitSchema creates saga tables if they do not exist.
func (s *Store) InitSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS saga_instances (
			order_id TEXT PRIMARY KEY,
			product_items JSONB,
			total_price TEXT NOT NULL DEFAULT '0',
			paid BOOLEAN NOT NULL DEFAULT FALSE,
			invoice_id TEXT,
			delivered BOOLEAN NOT NULL DEFAULT FALSE,
			shipment_id TEXT,
			status TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS saga_associations (
			assoc_key TEXT NOT NULL,
			assoc_value TEXT NOT NULL,
			order_id TEXT NOT NULL,
			PRIMARY KEY (assoc_key, assoc_value),
			FOREIGN KEY (order_id) REFERENCES saga_instances(order_id) ON DELETE CASCADE
		)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}

	return nil
}

// CreateIfAbsent inserts a fresh instance for the order id, or returns the
// existing one. A concurrent redelivery of the same order id lands on the
// ON CONFLICT branch and observes the winner's row.
func (s *Store) CreateIfAbsent(ctx context.Context, orderID uuid.UUID) (*fulfillment.Instance, bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO saga_instances (order_id, status)
		VALUES ($1, $2)
		ON CONFLICT (order_id) DO NOTHING`,
		orderID.String(), fulfillment.StatusActive,
	)
	if err != nil {
		return nil, false, err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return nil, false, err
	}
	if affected == 1 {
		if err := s.Associate(ctx, orderID, fulfillment.AssocOrderID, orderID.String()); err != nil {
			return nil, false, err
		}
	}

	inst, err := s.Load(ctx, fulfillment.AssocOrderID, orderID.String())
	if err != nil {
		if errors.Is(err, fulfillment.ErrInstanceNotFound) {
			return nil, false, fmt.Errorf("saga instance not found after insert")
		}
		return nil, false, err
	}
	return inst, affected == 1, nil
}

// Load returns the instance registered under the correlation pair.
func (s *Store) Load(ctx context.Context, key, value string) (*fulfillment.Instance, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT i.order_id, i.product_items, i.total_price, i.paid, i.invoice_id,
		       i.delivered, i.shipment_id, i.status
		FROM saga_instances i
		JOIN saga_associations a ON a.order_id = i.order_id
		WHERE a.assoc_key = $1 AND a.assoc_value = $2`,
		key, value,
	)

	var (
		rawOrderID    string
		rawItems      []byte
		rawPrice      string
		rawInvoiceID  sql.NullString
		rawShipmentID sql.NullString
		status        string
		inst          fulfillment.Instance
	)
	err := row.Scan(&rawOrderID, &rawItems, &rawPrice, &inst.Paid, &rawInvoiceID,
		&inst.Delivered, &rawShipmentID, &status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fulfillment.ErrInstanceNotFound
		}
		return nil, err
	}

	if inst.OrderID, err = uuid.Parse(rawOrderID); err != nil {
		return nil, fmt.Errorf("order_id: %w", err)
	}
	if len(rawItems) > 0 {
		if err := json.Unmarshal(rawItems, &inst.ProductItems); err != nil {
			return nil, fmt.Errorf("product_items: %w", err)
		}
	}
	if inst.TotalPrice, err = decimal.NewFromString(rawPrice); err != nil {
		return nil, fmt.Errorf("total_price: %w", err)
	}
	if rawInvoiceID.Valid {
		id, err := uuid.Parse(rawInvoiceID.String)
		if err != nil {
			return nil, fmt.Errorf("invoice_id: %w", err)
		}
		inst.InvoiceID = &id
	}
	if rawShipmentID.Valid {
		id, err := uuid.Parse(rawShipmentID.String)
		if err != nil {
			return nil, fmt.Errorf("shipment_id: %w", err)
		}
		inst.ShipmentID = &id
	}
	inst.Status = fulfillment.Status(status)

	if inst.Associations, err = s.loadAssociations(ctx, inst.OrderID); err != nil {
		return nil, err
	}
	return &inst, nil
}

// Save persists the full instance state.
func (s *Store) Save(ctx context.Context, inst *fulfillment.Instance) error {
	var items any
	if inst.ProductItems != nil {
		data, err := json.Marshal(inst.ProductItems)
		if err != nil {
			return err
		}
		items = data
	}

	var invoiceID, shipmentID any
	if inst.InvoiceID != nil {
		invoiceID = inst.InvoiceID.String()
	}
	if inst.ShipmentID != nil {
		shipmentID = inst.ShipmentID.String()
	}

	_, err := s.db.ExecContext(ctx, `
		UPDATE saga_instances
		SET product_items = $2, total_price = $3, paid = $4, invoice_id = $5,
		    delivered = $6, shipment_id = $7, status = $8, updated_at = NOW()
		WHERE order_id = $1`,
		inst.OrderID.String(), items, inst.TotalPrice.String(), inst.Paid,
		invoiceID, inst.Delivered, shipmentID, inst.Status,
	)
	return err
}

// Associate registers an additional correlation pair for the instance.
func (s *Store) Associate(ctx context.Context, orderID uuid.UUID, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO saga_associations (assoc_key, assoc_value, order_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (assoc_key, assoc_value) DO NOTHING`,
		key, value, orderID.String(),
	)
	return err
}

// MarkTerminal records the terminal status.
func (s *Store) MarkTerminal(ctx context.Context, orderID uuid.UUID, status fulfillment.Status) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE saga_instances
		SET status = $2, updated_at = NOW()
		WHERE order_id = $1`,
		orderID.String(), status,
	)
	return err
}

func (s *Store) loadAssociations(ctx context.Context, orderID uuid.UUID) ([]fulfillment.Association, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT assoc_key, assoc_value
		FROM saga_associations
		WHERE order_id = $1
		ORDER BY assoc_key`,
		orderID.String(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []fulfillment.Association
	for rows.Next() {
		var a fulfillment.Association
		if err := rows.Scan(&a.Key, &a.Value); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
