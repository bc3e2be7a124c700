// Package rules implements first-match-wins evaluation of assignment rules.
package rules

import (
	"strings"

	"github.com/filipbart/farms-manager-invoices/internal/model"
)

// FirstMatch evaluates an invoice against one priority-ordered rule
// collection and returns the first rule that accepts it, or nil when none
// does. The slice must already be ordered by ascending priority (the order
// GetActiveRules returns); because priorities are unique within a
// collection, ties cannot occur. One pass serves all three rule kinds —
// the caller reads the target off the winning rule.
func FirstMatch(inv *model.Invoice, ordered []model.AssignmentRule) *model.AssignmentRule {
	text := inv.MatchableText()

	for i := range ordered {
		rule := &ordered[i]
		if !rule.IsActive || rule.DeletedAt != nil {
			continue
		}
		if !matchesScope(inv, rule) {
			continue
		}
		if !matchesKeywords(text, rule) {
			continue
		}
		return rule
	}
	return nil
}

// matchesScope checks the rule's optional scoping filters. A filter applies
// only when set on the rule; when set it must equal the invoice attribute.
func matchesScope(inv *model.Invoice, rule *model.AssignmentRule) bool {
	if rule.TaxEntityID != nil {
		if inv.TaxEntityID == nil {
			return false
		}
		if model.NormalizeTaxID(*rule.TaxEntityID) != model.NormalizeTaxID(*inv.TaxEntityID) {
			return false
		}
	}
	if rule.FarmID != nil {
		if inv.AssignedFarm == nil || *inv.AssignedFarm != *rule.FarmID {
			return false
		}
	}
	if rule.Module != nil {
		if inv.AssignedModule == nil || *inv.AssignedModule != *rule.Module {
			return false
		}
	}
	if rule.Direction != nil && inv.Direction != *rule.Direction {
		return false
	}
	return true
}

// matchesKeywords applies the include/exclude keyword sets to the invoice's
// matchable text. An empty include set accepts everything; any matching
// exclude keyword suppresses the rule.
func matchesKeywords(text string, rule *model.AssignmentRule) bool {
	if len(rule.IncludeKeywords) > 0 {
		included := false
		for _, kw := range rule.IncludeKeywords {
			kw = strings.ToLower(strings.TrimSpace(kw))
			if kw != "" && strings.Contains(text, kw) {
				included = true
				break
			}
		}
		if !included {
			return false
		}
	}

	for _, kw := range rule.ExcludeKeywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" && strings.Contains(text, kw) {
			return false
		}
	}
	return true
}
