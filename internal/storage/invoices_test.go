package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/filipbart/farms-manager-invoices/internal/common"
	"github.com/filipbart/farms-manager-invoices/internal/model"
)

func creationEntry(actor string) *model.AuditEntry {
	return &model.AuditEntry{
		ActorID: actor,
		Action:  model.AuditActionCreated,
	}
}

func TestInsertAndGetInvoice(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	inv := newTestInvoice("FV/2026/07/001")
	if err := store.InsertInvoice(ctx, inv, creationEntry("importer")); err != nil {
		t.Fatalf("InsertInvoice() error = %v", err)
	}
	if inv.ID == "" {
		t.Fatal("InsertInvoice() did not assign an ID")
	}
	if inv.Status != model.StatusNew || inv.PaymentStatus != model.PaymentUnpaid {
		t.Errorf("defaults = %s/%s, want new/unpaid", inv.Status, inv.PaymentStatus)
	}

	got, err := store.GetInvoice(ctx, inv.ID)
	if err != nil {
		t.Fatalf("GetInvoice() error = %v", err)
	}
	if got.Number != inv.Number || got.SellerTaxID != inv.SellerTaxID {
		t.Errorf("GetInvoice() = %+v, want fields of %+v", got, inv)
	}
	if got.GrossAmount != 1230 || got.NetAmount != 1000 || got.VATAmount != 230 {
		t.Errorf("amounts = %v/%v/%v, want 1230/1000/230", got.GrossAmount, got.NetAmount, got.VATAmount)
	}
	if len(got.Lines) != 1 || got.Lines[0].Name != "Dostawa gazu" || got.Lines[0].NetAmount != 1000 {
		t.Errorf("lines = %+v, want the inserted line item", got.Lines)
	}

	entries, err := store.ListAuditEntries(ctx, inv.ID)
	if err != nil {
		t.Fatalf("ListAuditEntries() error = %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("audit entries = %d, want 1", len(entries))
	}
	if entries[0].Action != model.AuditActionCreated || entries[0].ActorID != "importer" {
		t.Errorf("audit entry = %+v, want creation entry by importer", entries[0])
	}
}

func TestInsertInvoiceValidates(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(*model.Invoice)
	}{
		{"missing number", func(i *model.Invoice) { i.Number = "" }},
		{"missing issue date", func(i *model.Invoice) { i.IssueDate = time.Time{} }},
		{"missing seller tax id", func(i *model.Invoice) { i.SellerTaxID = "" }},
		{"bad direction", func(i *model.Invoice) { i.Direction = "sideways" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv := newTestInvoice("FV/1")
			tt.mutate(inv)
			if err := store.InsertInvoice(ctx, inv, nil); !errors.Is(err, ErrInvalidInvoice) {
				t.Errorf("InsertInvoice() error = %v, want ErrInvalidInvoice", err)
			}
		})
	}
}

func TestInsertInvoiceDuplicateBackstop(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	first := newTestInvoice("FV/2026/07/001")
	if err := store.InsertInvoice(ctx, first, nil); err != nil {
		t.Fatalf("InsertInvoice() error = %v", err)
	}

	// Different rendering of the same tax ids still violates the index:
	// the normalized columns make both sides canonical.
	second := newTestInvoice("FV/2026/07/001")
	second.SellerTaxID = "1234567819"
	second.BuyerTaxID = "PL 987-654-32-10"
	err := store.InsertInvoice(ctx, second, nil)
	if !errors.Is(err, common.ErrDuplicateEntry) {
		t.Errorf("InsertInvoice() error = %v, want ErrDuplicateEntry", err)
	}
}

func TestRejectedInvoiceDoesNotBlockReimport(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	first := newTestInvoice("FV/2026/07/001")
	if err := store.InsertInvoice(ctx, first, nil); err != nil {
		t.Fatalf("InsertInvoice() error = %v", err)
	}
	if err := store.UpdateInvoiceStatus(ctx, first.ID, model.StatusRejected, "reviewer", nil); err != nil {
		t.Fatalf("UpdateInvoiceStatus() error = %v", err)
	}

	// The rejected row no longer counts as a duplicate, in either check.
	retry := newTestInvoice("FV/2026/07/001")
	dup, err := store.FindExactDuplicate(ctx, retry)
	if err != nil {
		t.Fatalf("FindExactDuplicate() error = %v", err)
	}
	if dup != nil {
		t.Errorf("FindExactDuplicate() = %v, want nil against a rejected invoice", dup.ID)
	}
	if err := store.InsertInvoice(ctx, retry, nil); err != nil {
		t.Errorf("re-import after rejection failed: %v", err)
	}
}

func TestFindExactDuplicate(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	existing := newTestInvoice("FV/2026/07/001")
	if err := store.InsertInvoice(ctx, existing, nil); err != nil {
		t.Fatalf("InsertInvoice() error = %v", err)
	}

	t.Run("same number and seller", func(t *testing.T) {
		candidate := newTestInvoice("FV/2026/07/001")
		candidate.SellerTaxID = "123-456-78-19" // equivalent form
		dup, err := store.FindExactDuplicate(ctx, candidate)
		if err != nil {
			t.Fatalf("FindExactDuplicate() error = %v", err)
		}
		if dup == nil || dup.ID != existing.ID {
			t.Errorf("FindExactDuplicate() = %v, want %s", dup, existing.ID)
		}
	})

	t.Run("different number", func(t *testing.T) {
		candidate := newTestInvoice("FV/2026/07/002")
		dup, err := store.FindExactDuplicate(ctx, candidate)
		if err != nil {
			t.Fatalf("FindExactDuplicate() error = %v", err)
		}
		if dup != nil {
			t.Errorf("FindExactDuplicate() = %v, want nil", dup.ID)
		}
	})

	t.Run("different seller", func(t *testing.T) {
		candidate := newTestInvoice("FV/2026/07/001")
		candidate.SellerTaxID = "5555555555"
		dup, err := store.FindExactDuplicate(ctx, candidate)
		if err != nil {
			t.Fatalf("FindExactDuplicate() error = %v", err)
		}
		if dup != nil {
			t.Errorf("FindExactDuplicate() = %v, want nil", dup.ID)
		}
	})

	t.Run("buyer guard", func(t *testing.T) {
		candidate := newTestInvoice("FV/2026/07/001")
		candidate.BuyerTaxID = "1111111111"
		dup, err := store.FindExactDuplicate(ctx, candidate)
		if err != nil {
			t.Fatalf("FindExactDuplicate() error = %v", err)
		}
		if dup != nil {
			t.Errorf("FindExactDuplicate() = %v, want nil for a different buyer", dup.ID)
		}

		// A candidate without a buyer tax id skips the guard.
		candidate.BuyerTaxID = ""
		dup, err = store.FindExactDuplicate(ctx, candidate)
		if err != nil {
			t.Fatalf("FindExactDuplicate() error = %v", err)
		}
		if dup == nil || dup.ID != existing.ID {
			t.Errorf("FindExactDuplicate() = %v, want %s", dup, existing.ID)
		}
	})
}

func TestFindExactDuplicateBuyerMissingOnExisting(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	// The stored invoice has no buyer tax id; a later delivery of the same
	// invoice that does carry one is still the same document.
	existing := newTestInvoice("FV/2026/07/001")
	existing.BuyerTaxID = ""
	if err := store.InsertInvoice(ctx, existing, nil); err != nil {
		t.Fatalf("InsertInvoice() error = %v", err)
	}

	candidate := newTestInvoice("FV/2026/07/001")
	dup, err := store.FindExactDuplicate(ctx, candidate)
	if err != nil {
		t.Fatalf("FindExactDuplicate() error = %v", err)
	}
	if dup == nil || dup.ID != existing.ID {
		t.Errorf("FindExactDuplicate() = %v, want %s despite the missing buyer id", dup, existing.ID)
	}
}

func TestFindExactDuplicateByTaxEntity(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	entity := "entity-1"
	existing := newTestInvoice("FV/2026/07/001")
	existing.TaxEntityID = &entity
	if err := store.InsertInvoice(ctx, existing, nil); err != nil {
		t.Fatalf("InsertInvoice() error = %v", err)
	}

	// Same entity, different seller tax id: still the same counterparty.
	candidate := newTestInvoice("FV/2026/07/001")
	candidate.SellerTaxID = "5555555555"
	candidate.TaxEntityID = &entity
	dup, err := store.FindExactDuplicate(ctx, candidate)
	if err != nil {
		t.Fatalf("FindExactDuplicate() error = %v", err)
	}
	if dup == nil || dup.ID != existing.ID {
		t.Errorf("FindExactDuplicate() = %v, want %s via tax entity", dup, existing.ID)
	}
}

func TestFindSimilarInvoices(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	issued := time.Date(2026, 7, 15, 0, 0, 0, 0, time.UTC)
	existing := newTestInvoice("FV/2026/07/001")
	existing.IssueDate = issued
	existing.GrossAmount = 1000
	if err := store.InsertInvoice(ctx, existing, nil); err != nil {
		t.Fatalf("InsertInvoice() error = %v", err)
	}

	sellerNorm := model.NormalizeTaxID(existing.SellerTaxID)

	t.Run("inside band and window", func(t *testing.T) {
		got, err := store.FindSimilarInvoices(ctx, sellerNorm, "",
			950, 1050, issued.AddDate(0, 0, -30), issued.AddDate(0, 0, 30))
		if err != nil {
			t.Fatalf("FindSimilarInvoices() error = %v", err)
		}
		if len(got) != 1 || got[0].ID != existing.ID {
			t.Errorf("FindSimilarInvoices() = %+v, want the existing invoice", got)
		}
	})

	t.Run("amount outside band", func(t *testing.T) {
		got, err := store.FindSimilarInvoices(ctx, sellerNorm, "",
			1001, 1050, issued.AddDate(0, 0, -30), issued.AddDate(0, 0, 30))
		if err != nil {
			t.Fatalf("FindSimilarInvoices() error = %v", err)
		}
		if len(got) != 0 {
			t.Errorf("FindSimilarInvoices() = %+v, want none", got)
		}
	})

	t.Run("date outside window", func(t *testing.T) {
		got, err := store.FindSimilarInvoices(ctx, sellerNorm, "",
			950, 1050, issued.AddDate(0, 0, 1), issued.AddDate(0, 0, 31))
		if err != nil {
			t.Fatalf("FindSimilarInvoices() error = %v", err)
		}
		if len(got) != 0 {
			t.Errorf("FindSimilarInvoices() = %+v, want none", got)
		}
	})

	t.Run("matched via buyer", func(t *testing.T) {
		buyerNorm := model.NormalizeTaxID(existing.BuyerTaxID)
		got, err := store.FindSimilarInvoices(ctx, "0000000000", buyerNorm,
			950, 1050, issued.AddDate(0, 0, -30), issued.AddDate(0, 0, 30))
		if err != nil {
			t.Fatalf("FindSimilarInvoices() error = %v", err)
		}
		if len(got) != 1 {
			t.Errorf("FindSimilarInvoices() = %+v, want the existing invoice", got)
		}
	})
}

func TestUpdateInvoiceStatusWritesAudit(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	inv := newTestInvoice("FV/2026/07/001")
	if err := store.InsertInvoice(ctx, inv, creationEntry("importer")); err != nil {
		t.Fatalf("InsertInvoice() error = %v", err)
	}

	entry := &model.AuditEntry{
		ActorID:  "reviewer",
		Action:   model.AuditActionStatusChanged,
		Field:    "status",
		OldValue: string(model.StatusNew),
		NewValue: string(model.StatusAccepted),
	}
	if err := store.UpdateInvoiceStatus(ctx, inv.ID, model.StatusAccepted, "reviewer", entry); err != nil {
		t.Fatalf("UpdateInvoiceStatus() error = %v", err)
	}

	got, err := store.GetInvoice(ctx, inv.ID)
	if err != nil {
		t.Fatalf("GetInvoice() error = %v", err)
	}
	if got.Status != model.StatusAccepted {
		t.Errorf("status = %s, want accepted", got.Status)
	}
	if got.ModifiedBy != "reviewer" {
		t.Errorf("modified_by = %s, want reviewer", got.ModifiedBy)
	}

	entries, err := store.ListAuditEntries(ctx, inv.ID)
	if err != nil {
		t.Fatalf("ListAuditEntries() error = %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("audit entries = %d, want 2", len(entries))
	}
	last := entries[len(entries)-1]
	if last.Action != model.AuditActionStatusChanged || last.NewValue != string(model.StatusAccepted) {
		t.Errorf("audit entry = %+v, want status change to accepted", last)
	}
}

func TestUpdateInvoiceStatusNotFound(t *testing.T) {
	store := newTestStorage(t)

	err := store.UpdateInvoiceStatus(context.Background(), "missing", model.StatusAccepted, "reviewer", nil)
	if !errors.Is(err, ErrInvoiceNotFound) {
		t.Errorf("UpdateInvoiceStatus() error = %v, want ErrInvoiceNotFound", err)
	}
}

func TestUpdateInvoiceAssignments(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	inv := newTestInvoice("FV/2026/07/001")
	if err := store.InsertInvoice(ctx, inv, nil); err != nil {
		t.Fatalf("InsertInvoice() error = %v", err)
	}

	user := "u-7"
	module := model.ModuleFeed
	inv.AssignedUser = &user
	inv.AssignedModule = &module
	entries := []model.AuditEntry{
		{ActorID: "admin", Action: model.AuditActionReassigned, Field: "assigned_user", NewValue: user},
		{ActorID: "admin", Action: model.AuditActionReassigned, Field: "assigned_module", NewValue: string(module)},
	}
	if err := store.UpdateInvoiceAssignments(ctx, inv, "admin", entries); err != nil {
		t.Fatalf("UpdateInvoiceAssignments() error = %v", err)
	}

	got, err := store.GetInvoice(ctx, inv.ID)
	if err != nil {
		t.Fatalf("GetInvoice() error = %v", err)
	}
	if got.AssignedUser == nil || *got.AssignedUser != user {
		t.Errorf("assigned user = %v, want %s", got.AssignedUser, user)
	}
	if got.AssignedModule == nil || *got.AssignedModule != module {
		t.Errorf("assigned module = %v, want %s", got.AssignedModule, module)
	}
	if got.AssignedFarm != nil {
		t.Errorf("assigned farm = %v, want nil", got.AssignedFarm)
	}

	auditTrail, err := store.ListAuditEntries(ctx, inv.ID)
	if err != nil {
		t.Fatalf("ListAuditEntries() error = %v", err)
	}
	if len(auditTrail) != 2 {
		t.Errorf("audit entries = %d, want 2", len(auditTrail))
	}
}

func TestGetInvoiceNotFound(t *testing.T) {
	store := newTestStorage(t)

	_, err := store.GetInvoice(context.Background(), "missing")
	if !errors.Is(err, ErrInvoiceNotFound) {
		t.Errorf("GetInvoice() error = %v, want ErrInvoiceNotFound", err)
	}
	if !errors.Is(err, common.ErrNotFound) {
		t.Errorf("GetInvoice() error = %v, want to match common.ErrNotFound", err)
	}
}
