package model

import (
	"fmt"
	"time"
)

// RuleKind identifies which assignment target a rule collection routes to.
type RuleKind string

// Rule collection kinds. Priorities are independent per kind.
const (
	RuleKindUser   RuleKind = "user"
	RuleKindFarm   RuleKind = "farm"
	RuleKindModule RuleKind = "module"
)

// ValidRuleKind reports whether k names one of the three rule collections.
func ValidRuleKind(k RuleKind) bool {
	return k == RuleKindUser || k == RuleKindFarm || k == RuleKindModule
}

// AssignmentRule is an administrator-defined predicate that routes invoices
// to a target. The three collections (user, farm, module) share this shape;
// Target holds a user id, a farm id, or a module name depending on Kind.
type AssignmentRule struct {
	CreatedAt       time.Time
	UpdatedAt       time.Time
	DeletedAt       *time.Time
	TaxEntityID     *string
	FarmID          *string
	Module          *ModuleType
	Direction       *InvoiceDirection
	Name            string
	Description     string
	Target          string
	Kind            RuleKind
	IncludeKeywords []string
	ExcludeKeywords []string
	ID              int64
	Priority        int
	IsActive        bool
}

// Validate ensures the rule carries the fields matching requires.
func (r *AssignmentRule) Validate() error {
	if !ValidRuleKind(r.Kind) {
		return fmt.Errorf("invalid rule kind: %q", r.Kind)
	}
	if r.Name == "" {
		return fmt.Errorf("rule name is required")
	}
	if r.Target == "" {
		return fmt.Errorf("rule target is required")
	}
	if r.Kind == RuleKindModule && !ValidModule(ModuleType(r.Target)) {
		return fmt.Errorf("invalid module target: %q", r.Target)
	}
	if r.Module != nil && !ValidModule(*r.Module) {
		return fmt.Errorf("invalid module filter: %q", *r.Module)
	}
	if r.Direction != nil && *r.Direction != DirectionPurchase && *r.Direction != DirectionSales {
		return fmt.Errorf("invalid direction filter: %q", *r.Direction)
	}
	return nil
}
