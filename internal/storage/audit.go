package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/filipbart/farms-manager-invoices/internal/model"
)

// insertAuditEntryTx appends one audit entry inside an open transaction.
// The audit log is append-only; there is no update or delete path.
func insertAuditEntryTx(ctx context.Context, tx *sql.Tx, entry *model.AuditEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO audit_log (id, invoice_id, actor_id, action, field, old_value, new_value, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		entry.ID, entry.InvoiceID, entry.ActorID, entry.Action,
		entry.Field, entry.OldValue, entry.NewValue, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit entry: %w", err)
	}
	return nil
}

// ListAuditEntries returns the audit trail for one invoice, oldest first.
func (s *SQLiteStorage) ListAuditEntries(ctx context.Context, invoiceID string) ([]model.AuditEntry, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(invoiceID, "invoiceID"); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, invoice_id, actor_id, action, field, old_value, new_value, created_at
		FROM audit_log
		WHERE invoice_id = ?
		ORDER BY created_at ASC, id ASC
	`, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []model.AuditEntry
	for rows.Next() {
		var entry model.AuditEntry
		if err := rows.Scan(
			&entry.ID, &entry.InvoiceID, &entry.ActorID, &entry.Action,
			&entry.Field, &entry.OldValue, &entry.NewValue, &entry.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit entries: %w", err)
	}
	return entries, nil
}
