package engine

import (
	"context"
	"time"

	"github.com/filipbart/farms-manager-invoices/internal/model"
)

// Storage is the persistence surface the engine depends on. It is satisfied
// by *storage.SQLiteStorage.
type Storage interface {
	GetActiveRules(ctx context.Context, kind model.RuleKind) ([]model.AssignmentRule, error)
	InsertInvoice(ctx context.Context, inv *model.Invoice, entry *model.AuditEntry) error
	GetInvoice(ctx context.Context, id string) (*model.Invoice, error)
	UpdateInvoiceStatus(ctx context.Context, id string, status model.InvoiceStatus, actor string, entry *model.AuditEntry) error
	UpdateInvoicePayment(ctx context.Context, id string, status model.PaymentStatus, actor string, entry *model.AuditEntry) error
	UpdateInvoiceAssignments(ctx context.Context, inv *model.Invoice, actor string, entries []model.AuditEntry) error
	FindExactDuplicate(ctx context.Context, inv *model.Invoice) (*model.Invoice, error)
	FindSimilarInvoices(ctx context.Context, sellerNorm, buyerNorm string, minGross, maxGross float64, from, to time.Time) ([]model.Invoice, error)
}
