// Package dedup detects exact and fuzzy duplicate invoices.
package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/filipbart/farms-manager-invoices/internal/common"
	"github.com/filipbart/farms-manager-invoices/internal/model"
)

// Store is the subset of storage the detector queries.
type Store interface {
	FindExactDuplicate(ctx context.Context, inv *model.Invoice) (*model.Invoice, error)
	FindSimilarInvoices(ctx context.Context, sellerNorm, buyerNorm string, minGross, maxGross float64, from, to time.Time) ([]model.Invoice, error)
}

// Config holds the fuzzy-match parameters. The defaults come from the
// original system and are not known to be tuned; both are configurable.
type Config struct {
	// AmountTolerance widens the gross-amount band to
	// [gross*(1-tol), gross*(1+tol)].
	AmountTolerance float64
	// DateWindowDays widens the issue-date window to +/- N days.
	DateWindowDays int
}

// DefaultConfig returns the default fuzzy-match parameters.
func DefaultConfig() Config {
	return Config{
		AmountTolerance: 0.05,
		DateWindowDays:  30,
	}
}

// Validate rejects non-positive parameters.
func (c Config) Validate() error {
	if c.AmountTolerance <= 0 {
		return fmt.Errorf("%w: amount tolerance must be positive", common.ErrInvalidConfig)
	}
	if c.DateWindowDays <= 0 {
		return fmt.Errorf("%w: date window must be positive", common.ErrInvalidConfig)
	}
	return nil
}

// Detector searches existing invoices for exact and fuzzy duplicates of a
// candidate. Both checks run at insertion time only and skip rejected
// invoices; the storage uniqueness index remains the backstop for races the
// pre-check cannot see.
type Detector struct {
	store Store
	cfg   Config
}

// New creates a detector with the given configuration.
func New(store Store, cfg Config) (*Detector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Detector{store: store, cfg: cfg}, nil
}

// FindExact returns the already-known invoice the candidate duplicates, or
// nil. Same invoice number plus same counterparty (normalized seller tax id
// or linked tax entity; buyer tax ids must match only when both sides carry
// one) is a true duplicate.
func (d *Detector) FindExact(ctx context.Context, inv *model.Invoice) (*model.Invoice, error) {
	return d.store.FindExactDuplicate(ctx, inv)
}

// FindSimilar returns near-duplicates of the candidate: invoices sharing
// the seller or buyer tax id whose gross amount and issue date fall inside
// the configured band and window. Matches are warnings for manual review.
func (d *Detector) FindSimilar(ctx context.Context, inv *model.Invoice) ([]model.Invoice, error) {
	sellerNorm := model.NormalizeTaxID(inv.SellerTaxID)
	buyerNorm := model.NormalizeTaxID(inv.BuyerTaxID)
	if sellerNorm == "" && buyerNorm == "" {
		return nil, nil
	}

	minGross := inv.GrossAmount * (1 - d.cfg.AmountTolerance)
	maxGross := inv.GrossAmount * (1 + d.cfg.AmountTolerance)
	from := inv.IssueDate.AddDate(0, 0, -d.cfg.DateWindowDays)
	to := inv.IssueDate.AddDate(0, 0, d.cfg.DateWindowDays)

	candidates, err := d.store.FindSimilarInvoices(ctx, sellerNorm, buyerNorm, minGross, maxGross, from, to)
	if err != nil {
		return nil, err
	}

	// The candidate itself may already be persisted when re-checking.
	similar := candidates[:0]
	for _, c := range candidates {
		if inv.ID != "" && c.ID == inv.ID {
			continue
		}
		similar = append(similar, c)
	}
	return similar, nil
}
