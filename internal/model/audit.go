package model

import "time"

// Audit action constants.
const (
	AuditActionCreated        = "invoice.created"
	AuditActionStatusChanged  = "invoice.status_changed"
	AuditActionPaymentChanged = "invoice.payment_changed"
	AuditActionReassigned     = "invoice.reassigned"
)

// AuditEntry is an immutable record of a change applied to an invoice.
// Entries are appended by the lifecycle tracker and by every command that
// mutates an invoice; they are never updated or deleted.
type AuditEntry struct {
	CreatedAt time.Time
	ID        string
	InvoiceID string
	ActorID   string
	Action    string
	Field     string
	OldValue  string
	NewValue  string
}
