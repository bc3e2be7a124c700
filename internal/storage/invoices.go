package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/filipbart/farms-manager-invoices/internal/common"
	"github.com/filipbart/farms-manager-invoices/internal/model"
)

const invoiceColumns = `id, number, issue_date, gross_amount, net_amount, vat_amount,
	seller_name, seller_tax_id, buyer_name, buyer_tax_id, lines, direction,
	status, payment_status, assigned_user, assigned_farm, assigned_module, tax_entity_id,
	created_by, created_at, modified_by, modified_at, deleted_by, deleted_at`

// InsertInvoice persists a classified invoice together with its creation
// audit entry in one transaction. Tax ids are normalized into the comparison
// columns at write time so both sides of every duplicate query use the
// canonical form. A violation of the dedup backstop index surfaces as
// common.ErrDuplicateEntry.
func (s *SQLiteStorage) InsertInvoice(ctx context.Context, inv *model.Invoice, entry *model.AuditEntry) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateInvoice(inv); err != nil {
		return err
	}

	if inv.ID == "" {
		inv.ID = uuid.NewString()
	}
	if inv.Status == "" {
		inv.Status = model.StatusNew
	}
	if inv.PaymentStatus == "" {
		inv.PaymentStatus = model.PaymentUnpaid
	}

	lines, err := marshalLines(inv.Lines)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO invoices (
			id, number, issue_date, gross_amount, net_amount, vat_amount,
			seller_name, seller_tax_id, seller_tax_id_norm,
			buyer_name, buyer_tax_id, buyer_tax_id_norm,
			lines, direction, status, payment_status,
			assigned_user, assigned_farm, assigned_module, tax_entity_id,
			created_by, modified_by
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		inv.ID, inv.Number, inv.IssueDate, inv.GrossAmount, inv.NetAmount, inv.VATAmount,
		inv.SellerName, inv.SellerTaxID, model.NormalizeTaxID(inv.SellerTaxID),
		inv.BuyerName, inv.BuyerTaxID, model.NormalizeTaxID(inv.BuyerTaxID),
		lines, inv.Direction, inv.Status, inv.PaymentStatus,
		nullString(inv.AssignedUser), nullString(inv.AssignedFarm),
		moduleToNullString(inv.AssignedModule), nullString(inv.TaxEntityID),
		inv.CreatedBy, inv.CreatedBy,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("%w: invoice %s from %s", common.ErrDuplicateEntry, inv.Number, inv.SellerTaxID)
		}
		return fmt.Errorf("failed to insert invoice: %w", err)
	}

	if entry != nil {
		entry.InvoiceID = inv.ID
		if err := insertAuditEntryTx(ctx, tx, entry); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit invoice insert: %w", err)
	}
	return nil
}

// GetInvoice retrieves an invoice by ID.
func (s *SQLiteStorage) GetInvoice(ctx context.Context, id string) (*model.Invoice, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx,
		"SELECT "+invoiceColumns+" FROM invoices WHERE id = ?", id)
	inv, err := scanInvoice(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrInvoiceNotFound
		}
		return nil, fmt.Errorf("failed to get invoice: %w", err)
	}
	return inv, nil
}

// FindExactDuplicate looks for a non-rejected invoice with the same number
// and the same counterparty: matching normalized seller tax id or linked tax
// business entity. The buyer tax id only disambiguates when both sides carry
// one; a missing buyer id on either side never hides a duplicate. Returns nil
// when no duplicate exists.
func (s *SQLiteStorage) FindExactDuplicate(ctx context.Context, inv *model.Invoice) (*model.Invoice, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if inv == nil {
		return nil, fmt.Errorf("%w: invoice", ErrNilParameter)
	}

	sellerNorm := model.NormalizeTaxID(inv.SellerTaxID)
	buyerNorm := model.NormalizeTaxID(inv.BuyerTaxID)
	taxEntity := ""
	if inv.TaxEntityID != nil {
		taxEntity = *inv.TaxEntityID
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT `+invoiceColumns+`
		FROM invoices
		WHERE number = ?
		  AND status != ? AND deleted_at IS NULL
		  AND (seller_tax_id_norm = ? OR (? != '' AND tax_entity_id = ?))
		  AND (? = '' OR buyer_tax_id_norm = '' OR buyer_tax_id_norm = ?)
		ORDER BY created_at ASC
		LIMIT 1
	`, inv.Number, model.StatusRejected, sellerNorm, taxEntity, taxEntity, buyerNorm, buyerNorm)

	dup, err := scanInvoice(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to search exact duplicates: %w", err)
	}
	return dup, nil
}

// FindSimilarInvoices returns non-rejected invoices sharing the seller or
// buyer normalized tax id whose gross amount falls inside [minGross, maxGross]
// and whose issue date falls inside [from, to]. Invoice numbers play no part
// here; hits are review warnings, not rejections.
func (s *SQLiteStorage) FindSimilarInvoices(ctx context.Context, sellerNorm, buyerNorm string, minGross, maxGross float64, from, to time.Time) ([]model.Invoice, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+invoiceColumns+`
		FROM invoices
		WHERE status != ? AND deleted_at IS NULL
		  AND ((? != '' AND seller_tax_id_norm = ?) OR (? != '' AND buyer_tax_id_norm = ?))
		  AND gross_amount >= ? AND gross_amount <= ?
		  AND issue_date >= ? AND issue_date <= ?
		ORDER BY issue_date ASC, id ASC
	`, model.StatusRejected, sellerNorm, sellerNorm, buyerNorm, buyerNorm,
		minGross, maxGross, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to search similar invoices: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var invoices []model.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invoice: %w", err)
		}
		invoices = append(invoices, *inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating invoices: %w", err)
	}
	return invoices, nil
}

// UpdateInvoiceStatus writes a new document status and its audit entry in
// one transaction. Transition legality is the lifecycle tracker's job; this
// only persists.
func (s *SQLiteStorage) UpdateInvoiceStatus(ctx context.Context, id string, status model.InvoiceStatus, actor string, entry *model.AuditEntry) error {
	return s.updateInvoiceField(ctx, id, "status", string(status), actor, entry)
}

// UpdateInvoicePayment writes a new payment status and its audit entry in
// one transaction.
func (s *SQLiteStorage) UpdateInvoicePayment(ctx context.Context, id string, status model.PaymentStatus, actor string, entry *model.AuditEntry) error {
	return s.updateInvoiceField(ctx, id, "payment_status", string(status), actor, entry)
}

func (s *SQLiteStorage) updateInvoiceField(ctx context.Context, id, column, value, actor string, entry *model.AuditEntry) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx,
		"UPDATE invoices SET "+column+" = ?, modified_by = ?, modified_at = CURRENT_TIMESTAMP WHERE id = ?",
		value, actor, id)
	if err != nil {
		return fmt.Errorf("failed to update invoice %s: %w", column, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrInvoiceNotFound
	}

	if entry != nil {
		entry.InvoiceID = id
		if err := insertAuditEntryTx(ctx, tx, entry); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit invoice update: %w", err)
	}
	return nil
}

// UpdateInvoiceAssignments persists the routing fields of inv together with
// the audit entries describing each changed field, atomically.
func (s *SQLiteStorage) UpdateInvoiceAssignments(ctx context.Context, inv *model.Invoice, actor string, entries []model.AuditEntry) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if inv == nil {
		return fmt.Errorf("%w: invoice", ErrNilParameter)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, `
		UPDATE invoices SET
			assigned_user = ?, assigned_farm = ?, assigned_module = ?, tax_entity_id = ?,
			modified_by = ?, modified_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`,
		nullString(inv.AssignedUser), nullString(inv.AssignedFarm),
		moduleToNullString(inv.AssignedModule), nullString(inv.TaxEntityID),
		actor, inv.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update invoice assignments: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrInvoiceNotFound
	}

	for i := range entries {
		entries[i].InvoiceID = inv.ID
		if err := insertAuditEntryTx(ctx, tx, &entries[i]); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit assignment update: %w", err)
	}
	return nil
}

func scanInvoice(row rowScanner) (*model.Invoice, error) {
	var inv model.Invoice
	var lines string
	var assignedUser, assignedFarm, assignedModule, taxEntity sql.NullString
	var deletedAt sql.NullTime

	err := row.Scan(
		&inv.ID, &inv.Number, &inv.IssueDate, &inv.GrossAmount, &inv.NetAmount, &inv.VATAmount,
		&inv.SellerName, &inv.SellerTaxID, &inv.BuyerName, &inv.BuyerTaxID,
		&lines, &inv.Direction, &inv.Status, &inv.PaymentStatus,
		&assignedUser, &assignedFarm, &assignedModule, &taxEntity,
		&inv.CreatedBy, &inv.CreatedAt, &inv.ModifiedBy, &inv.ModifiedAt,
		&inv.DeletedBy, &deletedAt,
	)
	if err != nil {
		return nil, err
	}

	inv.Lines, err = unmarshalLines(lines)
	if err != nil {
		return nil, err
	}
	inv.AssignedUser = stringPtr(assignedUser)
	inv.AssignedFarm = stringPtr(assignedFarm)
	inv.AssignedModule = nullStringToModule(assignedModule)
	inv.TaxEntityID = stringPtr(taxEntity)
	if deletedAt.Valid {
		inv.DeletedAt = &deletedAt.Time
	}
	return &inv, nil
}

func marshalLines(lines []model.InvoiceLine) (string, error) {
	if lines == nil {
		lines = []model.InvoiceLine{}
	}
	data, err := json.Marshal(lines)
	if err != nil {
		return "", fmt.Errorf("failed to marshal invoice lines: %w", err)
	}
	return string(data), nil
}

func unmarshalLines(data string) ([]model.InvoiceLine, error) {
	if data == "" || data == "[]" {
		return nil, nil
	}
	var lines []model.InvoiceLine
	if err := json.Unmarshal([]byte(data), &lines); err != nil {
		return nil, fmt.Errorf("failed to unmarshal invoice lines: %w", err)
	}
	return lines, nil
}
