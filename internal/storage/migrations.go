package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// ExpectedSchemaVersion is the latest schema version the application expects.
const ExpectedSchemaVersion = 3

// Migration represents a database schema migration.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Initial schema",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS invoices (
					id TEXT PRIMARY KEY,
					number TEXT NOT NULL,
					issue_date DATETIME NOT NULL,
					gross_amount REAL NOT NULL,
					net_amount REAL NOT NULL DEFAULT 0,
					vat_amount REAL NOT NULL DEFAULT 0,
					seller_name TEXT NOT NULL DEFAULT '',
					seller_tax_id TEXT NOT NULL,
					seller_tax_id_norm TEXT NOT NULL,
					buyer_name TEXT NOT NULL DEFAULT '',
					buyer_tax_id TEXT NOT NULL DEFAULT '',
					buyer_tax_id_norm TEXT NOT NULL DEFAULT '',
					lines TEXT NOT NULL DEFAULT '[]',
					direction TEXT NOT NULL,
					status TEXT NOT NULL DEFAULT 'new',
					payment_status TEXT NOT NULL DEFAULT 'unpaid',
					assigned_user TEXT,
					assigned_farm TEXT,
					assigned_module TEXT,
					tax_entity_id TEXT,
					created_by TEXT NOT NULL DEFAULT '',
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					modified_by TEXT NOT NULL DEFAULT '',
					modified_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					deleted_by TEXT NOT NULL DEFAULT '',
					deleted_at DATETIME
				)`,
				`CREATE INDEX idx_invoices_number ON invoices(number)`,
				`CREATE INDEX idx_invoices_issue_date ON invoices(issue_date)`,
				`CREATE INDEX idx_invoices_seller_norm ON invoices(seller_tax_id_norm)`,
				`CREATE INDEX idx_invoices_buyer_norm ON invoices(buyer_tax_id_norm)`,

				`CREATE TABLE IF NOT EXISTS assignment_rules (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					kind TEXT NOT NULL,
					name TEXT NOT NULL,
					description TEXT NOT NULL DEFAULT '',
					priority INTEGER NOT NULL,
					include_keywords TEXT NOT NULL DEFAULT '[]',
					exclude_keywords TEXT NOT NULL DEFAULT '[]',
					tax_entity_id TEXT,
					farm_id TEXT,
					module TEXT,
					direction TEXT,
					target TEXT NOT NULL,
					is_active INTEGER NOT NULL DEFAULT 1,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					deleted_at DATETIME
				)`,
				`CREATE INDEX idx_rules_kind_priority ON assignment_rules(kind, priority)`,

				`CREATE TABLE IF NOT EXISTS audit_log (
					id TEXT PRIMARY KEY,
					invoice_id TEXT NOT NULL,
					actor_id TEXT NOT NULL,
					action TEXT NOT NULL,
					field TEXT NOT NULL DEFAULT '',
					old_value TEXT NOT NULL DEFAULT '',
					new_value TEXT NOT NULL DEFAULT '',
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					FOREIGN KEY (invoice_id) REFERENCES invoices(id)
				)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query: %w", err)
				}
			}
			return nil
		},
	},
	{
		Version:     2,
		Description: "Uniqueness backstop for concurrent duplicate imports",
		Up: func(tx *sql.Tx) error {
			// The duplicate detector is a best-effort pre-check; this index
			// closes the race window between two concurrent imports of the
			// same invoice. Rejected and soft-deleted rows stay around for
			// audit and must not block a corrected re-import.
			_, err := tx.Exec(`
				CREATE UNIQUE INDEX IF NOT EXISTS idx_invoices_dedup
				ON invoices(number, seller_tax_id_norm, buyer_tax_id_norm)
				WHERE status != 'rejected' AND deleted_at IS NULL
			`)
			return err
		},
	},
	{
		Version:     3,
		Description: "Index audit log by invoice",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`CREATE INDEX IF NOT EXISTS idx_audit_log_invoice_id ON audit_log(invoice_id)`)
			return err
		},
	},
}

// Migrate applies all pending schema migrations.
func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	current, err := s.schemaVersion(ctx)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}

		slog.Info("Applying migration", "version", m.Version, "description", m.Description)

		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin migration transaction: %w", err)
		}

		if err := m.Up(tx); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", m.Version, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_migrations (version, description) VALUES (?, ?)",
			m.Version, m.Description,
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", m.Version, err)
		}
	}

	final, err := s.schemaVersion(ctx)
	if err != nil {
		return err
	}
	if final != ExpectedSchemaVersion {
		return fmt.Errorf("schema version %d does not match expected %d", final, ExpectedSchemaVersion)
	}

	return nil
}

func (s *SQLiteStorage) schemaVersion(ctx context.Context) (int, error) {
	var version sql.NullInt64
	err := s.db.QueryRowContext(ctx, "SELECT MAX(version) FROM schema_migrations").Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	if !version.Valid {
		return 0, nil
	}
	return int(version.Int64), nil
}
