// Package model defines the core data structures for the invoice engine.
package model

import (
	"strings"
	"time"
)

// InvoiceDirection indicates whether an invoice is a purchase or a sale
// relative to the operating entity.
type InvoiceDirection string

// Invoice direction constants.
const (
	DirectionPurchase InvoiceDirection = "purchase"
	DirectionSales    InvoiceDirection = "sales"
)

// InvoiceStatus represents the document lifecycle state of an invoice.
type InvoiceStatus string

// Invoice status constants.
const (
	StatusNew          InvoiceStatus = "new"
	StatusAccepted     InvoiceStatus = "accepted"
	StatusRejected     InvoiceStatus = "rejected"
	StatusSentToOffice InvoiceStatus = "sent_to_office"
)

// CanTransitionTo reports whether the status machine permits moving to next.
// New fans out to the three other states; everything else is terminal.
func (s InvoiceStatus) CanTransitionTo(next InvoiceStatus) bool {
	if s != StatusNew {
		return false
	}
	switch next {
	case StatusAccepted, StatusRejected, StatusSentToOffice:
		return true
	}
	return false
}

// PaymentStatus tracks settlement independently of document status.
type PaymentStatus string

// Payment status constants.
const (
	PaymentUnpaid        PaymentStatus = "unpaid"
	PaymentPartiallyPaid PaymentStatus = "partially_paid"
	PaymentSuspended     PaymentStatus = "suspended"
	PaymentPaidCash      PaymentStatus = "paid_cash"
	PaymentPaidTransfer  PaymentStatus = "paid_transfer"
)

// CanTransitionTo reports whether the payment machine permits moving to next.
// The two fully-paid states are terminal.
func (p PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	if p != PaymentUnpaid && p != PaymentPartiallyPaid && p != PaymentSuspended {
		return false
	}
	switch next {
	case PaymentPartiallyPaid, PaymentSuspended, PaymentPaidCash, PaymentPaidTransfer:
		return next != p
	}
	return false
}

// ModuleType identifies the accounting module an invoice is routed to.
type ModuleType string

// Accounting module constants.
const (
	ModuleFeed     ModuleType = "feed"
	ModuleSales    ModuleType = "sales"
	ModuleExpenses ModuleType = "expenses"
	ModulePayroll  ModuleType = "payroll"
	ModuleMedia    ModuleType = "media"
)

// ValidModule reports whether m is a known accounting module.
func ValidModule(m ModuleType) bool {
	switch m {
	case ModuleFeed, ModuleSales, ModuleExpenses, ModulePayroll, ModuleMedia:
		return true
	}
	return false
}

// InvoiceLine is a single free-text line item; its name participates in
// keyword matching.
type InvoiceLine struct {
	Name      string  `json:"name"`
	NetAmount float64 `json:"net_amount"`
}

// Invoice is the unit being classified. Sellers and buyers are identified by
// tax ids; the normalized forms are derived at persistence time and used for
// every comparison.
type Invoice struct {
	IssueDate      time.Time
	CreatedAt      time.Time
	ModifiedAt     time.Time
	DeletedAt      *time.Time
	AssignedUser   *string
	AssignedFarm   *string
	AssignedModule *ModuleType
	TaxEntityID    *string
	ID             string
	Number         string
	SellerName     string
	SellerTaxID    string
	BuyerName      string
	BuyerTaxID     string
	CreatedBy      string
	ModifiedBy     string
	DeletedBy      string
	Lines          []InvoiceLine
	GrossAmount    float64
	NetAmount      float64
	VATAmount      float64
	Direction      InvoiceDirection
	Status         InvoiceStatus
	PaymentStatus  PaymentStatus
}

// MatchableText returns the lower-cased text rule keywords are matched
// against: seller name, buyer name, invoice number and line-item names.
func (i *Invoice) MatchableText() string {
	parts := make([]string, 0, 3+len(i.Lines))
	parts = append(parts, i.SellerName, i.BuyerName, i.Number)
	for _, line := range i.Lines {
		parts = append(parts, line.Name)
	}
	return strings.ToLower(strings.Join(parts, " "))
}

// Rejected reports whether the invoice has been rejected and is therefore
// excluded from duplicate and assignment matching.
func (i *Invoice) Rejected() bool {
	return i.Status == StatusRejected
}
