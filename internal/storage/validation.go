package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/filipbart/farms-manager-invoices/internal/common"
	"github.com/filipbart/farms-manager-invoices/internal/model"
)

// Validation and lookup errors. The not-found sentinels wrap
// common.ErrNotFound so callers can match either the specific or the
// general form.
var (
	ErrNilContext      = errors.New("context cannot be nil")
	ErrEmptyString     = errors.New("string parameter cannot be empty")
	ErrNilParameter    = errors.New("parameter cannot be nil")
	ErrInvalidInvoice  = errors.New("invalid invoice")
	ErrRuleNotFound    = fmt.Errorf("assignment rule %w", common.ErrNotFound)
	ErrInvoiceNotFound = fmt.Errorf("invoice %w", common.ErrNotFound)
)

// validateContext ensures the context is not nil.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// validateString ensures a string parameter is not empty.
func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

// validateInvoice validates the fields every persisted invoice must carry.
func validateInvoice(inv *model.Invoice) error {
	if inv == nil {
		return fmt.Errorf("%w: invoice", ErrNilParameter)
	}
	if inv.Number == "" {
		return fmt.Errorf("%w: missing number", ErrInvalidInvoice)
	}
	if inv.IssueDate.IsZero() {
		return fmt.Errorf("%w: missing issue date", ErrInvalidInvoice)
	}
	if inv.SellerTaxID == "" {
		return fmt.Errorf("%w: missing seller tax id", ErrInvalidInvoice)
	}
	if inv.Direction != model.DirectionPurchase && inv.Direction != model.DirectionSales {
		return fmt.Errorf("%w: invalid direction %q", ErrInvalidInvoice, inv.Direction)
	}
	return nil
}
