package engine

import (
	"context"
	"fmt"

	"github.com/filipbart/farms-manager-invoices/internal/common"
	"github.com/filipbart/farms-manager-invoices/internal/model"
)

// Tracker owns the invoice status and payment-status state machines. Every
// transition and every manual reassignment appends an audit entry in the
// same transaction as the mutation.
type Tracker struct {
	store Storage
}

// NewTracker creates a lifecycle tracker.
func NewTracker(store Storage) *Tracker {
	return &Tracker{store: store}
}

// SetStatus transitions the invoice's document status. Rejecting an invoice
// removes it from all future duplicate and assignment matching; earlier
// similarity comparisons against it are not revisited.
func (t *Tracker) SetStatus(ctx context.Context, invoiceID, actor string, next model.InvoiceStatus) error {
	inv, err := t.store.GetInvoice(ctx, invoiceID)
	if err != nil {
		return err
	}

	if !inv.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", common.ErrInvalidTransition, inv.Status, next)
	}

	entry := &model.AuditEntry{
		ActorID:  actor,
		Action:   model.AuditActionStatusChanged,
		Field:    "status",
		OldValue: string(inv.Status),
		NewValue: string(next),
	}
	return t.store.UpdateInvoiceStatus(ctx, invoiceID, next, actor, entry)
}

// SetPaymentStatus transitions the invoice's payment status, which evolves
// independently of document status.
func (t *Tracker) SetPaymentStatus(ctx context.Context, invoiceID, actor string, next model.PaymentStatus) error {
	inv, err := t.store.GetInvoice(ctx, invoiceID)
	if err != nil {
		return err
	}

	if !inv.PaymentStatus.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", common.ErrInvalidTransition, inv.PaymentStatus, next)
	}

	entry := &model.AuditEntry{
		ActorID:  actor,
		Action:   model.AuditActionPaymentChanged,
		Field:    "payment_status",
		OldValue: string(inv.PaymentStatus),
		NewValue: string(next),
	}
	return t.store.UpdateInvoicePayment(ctx, invoiceID, next, actor, entry)
}

// Reassign applies a manual override of the invoice's routing fields and
// records one audit entry per field that actually changed.
func (t *Tracker) Reassign(ctx context.Context, invoiceID, actor string, patch model.InvoicePatch) error {
	inv, err := t.store.GetInvoice(ctx, invoiceID)
	if err != nil {
		return err
	}

	var entries []model.AuditEntry

	newUser := patch.AssignedUser.Apply(inv.AssignedUser)
	if entry := reassignEntry(actor, "assigned_user", strOrEmpty(inv.AssignedUser), strOrEmpty(newUser)); entry != nil {
		entries = append(entries, *entry)
		inv.AssignedUser = newUser
	}

	newFarm := patch.AssignedFarm.Apply(inv.AssignedFarm)
	if entry := reassignEntry(actor, "assigned_farm", strOrEmpty(inv.AssignedFarm), strOrEmpty(newFarm)); entry != nil {
		entries = append(entries, *entry)
		inv.AssignedFarm = newFarm
	}

	newModule := patch.AssignedModule.Apply(inv.AssignedModule)
	if entry := reassignEntry(actor, "assigned_module", moduleOrEmpty(inv.AssignedModule), moduleOrEmpty(newModule)); entry != nil {
		entries = append(entries, *entry)
		inv.AssignedModule = newModule
	}

	newEntity := patch.TaxEntityID.Apply(inv.TaxEntityID)
	if entry := reassignEntry(actor, "tax_entity_id", strOrEmpty(inv.TaxEntityID), strOrEmpty(newEntity)); entry != nil {
		entries = append(entries, *entry)
		inv.TaxEntityID = newEntity
	}

	if len(entries) == 0 {
		return nil
	}
	return t.store.UpdateInvoiceAssignments(ctx, inv, actor, entries)
}

func reassignEntry(actor, field, oldValue, newValue string) *model.AuditEntry {
	if oldValue == newValue {
		return nil
	}
	return &model.AuditEntry{
		ActorID:  actor,
		Action:   model.AuditActionReassigned,
		Field:    field,
		OldValue: oldValue,
		NewValue: newValue,
	}
}

func strOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func moduleOrEmpty(m *model.ModuleType) string {
	if m == nil {
		return ""
	}
	return string(*m)
}
