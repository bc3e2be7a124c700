// Package engine orchestrates duplicate detection, rule matching and
// lifecycle tracking for incoming invoices.
package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/filipbart/farms-manager-invoices/internal/dedup"
	"github.com/filipbart/farms-manager-invoices/internal/model"
	"github.com/filipbart/farms-manager-invoices/internal/rules"
)

// Decision is the classification outcome for one incoming invoice.
type Decision struct {
	AssignedModule *model.ModuleType
	AssignedUser   *string
	AssignedFarm   *string
	InvoiceID      string
	DuplicateOfID  string
	Status         model.InvoiceStatus
	SimilarIDs     []string
	Inserted       bool
}

// Options control a single classification call.
type Options struct {
	// Actor is recorded on the creation audit entry.
	Actor string
	// ForceInsert inserts the invoice even when an exact duplicate exists.
	// The storage uniqueness backstop still applies.
	ForceInsert bool
}

// Engine is the assignment pipeline. It is request-scoped and stateless
// between invocations: every classification reads its own snapshot of the
// rule collections and of candidate duplicates.
type Engine struct {
	store    Storage
	detector *dedup.Detector
}

// New creates a classification engine.
func New(store Storage, detector *dedup.Detector) *Engine {
	return &Engine{store: store, detector: detector}
}

// Classify runs the full pipeline for one normalized invoice: exact
// duplicate check (short-circuiting insertion), fuzzy near-duplicate search,
// then the three independent rule-matcher passes, and finally the insert
// with its creation audit entry. A detected exact duplicate is a structured
// outcome, not an error; the caller decides whether to skip, reconcile, or
// retry with ForceInsert.
func (e *Engine) Classify(ctx context.Context, inv *model.Invoice, opts Options) (*Decision, error) {
	dup, err := e.detector.FindExact(ctx, inv)
	if err != nil {
		return nil, fmt.Errorf("exact duplicate check failed: %w", err)
	}
	if dup != nil && !opts.ForceInsert {
		slog.Info("Invoice is an exact duplicate, skipping insert",
			"number", inv.Number, "duplicate_of", dup.ID)
		return &Decision{DuplicateOfID: dup.ID}, nil
	}

	similar, err := e.detector.FindSimilar(ctx, inv)
	if err != nil {
		return nil, fmt.Errorf("similar invoice search failed: %w", err)
	}

	decision := &Decision{Status: model.StatusNew}
	if dup != nil {
		// Forced past the duplicate check; keep the reference so the
		// operator can still reconcile the pair afterwards.
		decision.DuplicateOfID = dup.ID
		slog.Warn("Force-inserting over an exact duplicate",
			"number", inv.Number, "duplicate_of", dup.ID)
	}
	for _, s := range similar {
		decision.SimilarIDs = append(decision.SimilarIDs, s.ID)
	}

	// One snapshot of all three collections before any matching, so a
	// concurrent rule edit cannot apply to half of this invoice's passes.
	userRules, err := e.store.GetActiveRules(ctx, model.RuleKindUser)
	if err != nil {
		return nil, fmt.Errorf("failed to load user rules: %w", err)
	}
	farmRules, err := e.store.GetActiveRules(ctx, model.RuleKindFarm)
	if err != nil {
		return nil, fmt.Errorf("failed to load farm rules: %w", err)
	}
	moduleRules, err := e.store.GetActiveRules(ctx, model.RuleKindModule)
	if err != nil {
		return nil, fmt.Errorf("failed to load module rules: %w", err)
	}

	// The three passes are independent and all evaluate the invoice as
	// delivered by ingestion; one pass's outcome never feeds another's
	// scoping filters.
	if match := rules.FirstMatch(inv, userRules); match != nil {
		target := match.Target
		decision.AssignedUser = &target
		slog.Debug("Matched user rule", "rule", match.Name, "priority", match.Priority)
	}
	if match := rules.FirstMatch(inv, farmRules); match != nil {
		target := match.Target
		decision.AssignedFarm = &target
		slog.Debug("Matched farm rule", "rule", match.Name, "priority", match.Priority)
	}
	if match := rules.FirstMatch(inv, moduleRules); match != nil {
		target := model.ModuleType(match.Target)
		decision.AssignedModule = &target
		slog.Debug("Matched module rule", "rule", match.Name, "priority", match.Priority)
	}

	inv.AssignedUser = decision.AssignedUser
	inv.AssignedFarm = decision.AssignedFarm
	inv.AssignedModule = decision.AssignedModule
	inv.Status = model.StatusNew
	inv.PaymentStatus = model.PaymentUnpaid
	if inv.CreatedBy == "" {
		inv.CreatedBy = opts.Actor
	}

	entry := &model.AuditEntry{
		ActorID: opts.Actor,
		Action:  model.AuditActionCreated,
	}
	if err := e.store.InsertInvoice(ctx, inv, entry); err != nil {
		return nil, err
	}

	decision.InvoiceID = inv.ID
	decision.Inserted = true
	return decision, nil
}

// ClassifyBatch classifies invoices sequentially. Duplicates are reported
// in their decisions, not as errors; any other failure aborts the batch.
func (e *Engine) ClassifyBatch(ctx context.Context, invoices []model.Invoice, opts Options) ([]Decision, error) {
	decisions := make([]Decision, 0, len(invoices))
	for i := range invoices {
		select {
		case <-ctx.Done():
			return decisions, ctx.Err()
		default:
		}

		decision, err := e.Classify(ctx, &invoices[i], opts)
		if err != nil {
			return decisions, fmt.Errorf("failed to classify invoice %q: %w", invoices[i].Number, err)
		}
		decisions = append(decisions, *decision)
	}
	return decisions, nil
}
