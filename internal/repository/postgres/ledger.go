package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/mamadbah2/farmtrace/internal/domain/models"
)

const schema = `
	CREATE TABLE IF NOT EXISTS cost_entries (
		node_id            TEXT PRIMARY KEY,
		costo_adquisicion  DOUBLE PRECISION NOT NULL DEFAULT 0,
		costo_mano_de_obra DOUBLE PRECISION NOT NULL DEFAULT 0,
		costo_insumos      DOUBLE PRECISION NOT NULL DEFAULT 0,
		costo_operativos   DOUBLE PRECISION NOT NULL DEFAULT 0,
		updated_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
`

const selectEntries = `
	SELECT node_id, costo_adquisicion, costo_mano_de_obra, costo_insumos, costo_operativos
	FROM cost_entries
	WHERE node_id = ANY($1)
`

const upsertEntry = `
	INSERT INTO cost_entries (node_id, costo_adquisicion, costo_mano_de_obra, costo_insumos, costo_operativos, updated_at)
	VALUES ($1, $2, $3, $4, $5, NOW())
	ON CONFLICT (node_id) DO UPDATE SET
		costo_adquisicion = EXCLUDED.costo_adquisicion,
		costo_mano_de_obra = EXCLUDED.costo_mano_de_obra,
		costo_insumos = EXCLUDED.costo_insumos,
		costo_operativos = EXCLUDED.costo_operativos,
		updated_at = EXCLUDED.updated_at
`

// LedgerStore keeps the cost ledger in Postgres, for deployments where cost
// entry forms post to the accounting database instead of MongoDB.
type LedgerStore struct {
	db *sql.DB
}

// Open connects to Postgres with the given DSN and ensures the table exists.
func Open(ctx context.Context, dsn string) (*LedgerStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	store := NewLedgerStore(db)
	if err := store.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// NewLedgerStore wraps an existing connection pool.
func NewLedgerStore(db *sql.DB) *LedgerStore {
	return &LedgerStore{db: db}
}

// EnsureSchema creates the cost_entries table when missing.
func (s *LedgerStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create cost_entries table: %w", err)
	}
	return nil
}

// LoadLedger returns the recorded entries of the given nodes.
func (s *LedgerStore) LoadLedger(ctx context.Context, nodeIDs []string) (models.CostLedger, error) {
	ledger := make(models.CostLedger, len(nodeIDs))
	if len(nodeIDs) == 0 {
		return ledger, nil
	}

	rows, err := s.db.QueryContext(ctx, selectEntries, pq.Array(nodeIDs))
	if err != nil {
		return nil, fmt.Errorf("query cost entries: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			nodeID string
			entry  models.CostEntry
		)
		if err := rows.Scan(&nodeID, &entry.CostoAdquisicion, &entry.CostoManoDeObra, &entry.CostoInsumos, &entry.CostoOperativos); err != nil {
			return nil, fmt.Errorf("scan cost entry: %w", err)
		}
		ledger.Set(nodeID, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cost entries: %w", err)
	}
	return ledger, nil
}

// SaveCostEntry upserts the direct costs of a node.
func (s *LedgerStore) SaveCostEntry(ctx context.Context, nodeID string, entry models.CostEntry) error {
	_, err := s.db.ExecContext(ctx, upsertEntry, nodeID,
		entry.CostoAdquisicion, entry.CostoManoDeObra, entry.CostoInsumos, entry.CostoOperativos)
	if err != nil {
		return fmt.Errorf("upsert cost entry %s: %w", nodeID, err)
	}
	return nil
}

// Close closes the database connection.
func (s *LedgerStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
