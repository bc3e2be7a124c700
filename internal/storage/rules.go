package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/filipbart/farms-manager-invoices/internal/model"
)

const ruleColumns = `id, kind, name, description, priority, include_keywords, exclude_keywords,
	tax_entity_id, farm_id, module, direction, target, is_active, created_at, updated_at, deleted_at`

// CreateRule inserts a new assignment rule at the end of its collection:
// priority becomes max(active priorities of the kind)+1, or 1 when the
// collection is empty. Priority assignment and insert happen in one
// transaction so concurrent creates cannot share a priority.
func (s *SQLiteStorage) CreateRule(ctx context.Context, rule *model.AssignmentRule) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if rule == nil {
		return fmt.Errorf("%w: rule", ErrNilParameter)
	}
	if err := rule.Validate(); err != nil {
		return err
	}

	include, err := marshalKeywords(rule.IncludeKeywords)
	if err != nil {
		return err
	}
	exclude, err := marshalKeywords(rule.ExcludeKeywords)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var maxPriority sql.NullInt64
	err = tx.QueryRowContext(ctx,
		"SELECT MAX(priority) FROM assignment_rules WHERE kind = ? AND deleted_at IS NULL",
		rule.Kind).Scan(&maxPriority)
	if err != nil {
		return fmt.Errorf("failed to read max priority: %w", err)
	}
	rule.Priority = int(maxPriority.Int64) + 1

	result, err := tx.ExecContext(ctx, `
		INSERT INTO assignment_rules (
			kind, name, description, priority, include_keywords, exclude_keywords,
			tax_entity_id, farm_id, module, direction, target, is_active
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rule.Kind, rule.Name, rule.Description, rule.Priority, include, exclude,
		nullString(rule.TaxEntityID), nullString(rule.FarmID),
		moduleToNullString(rule.Module), directionToNullString(rule.Direction),
		rule.Target, rule.IsActive,
	)
	if err != nil {
		return fmt.Errorf("failed to create rule: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get rule ID: %w", err)
	}
	rule.ID = id

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit rule creation: %w", err)
	}
	return nil
}

// GetRule retrieves an assignment rule by ID, soft-deleted rules included.
func (s *SQLiteStorage) GetRule(ctx context.Context, id int64) (*model.AssignmentRule, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx,
		"SELECT "+ruleColumns+" FROM assignment_rules WHERE id = ?", id)
	rule, err := scanRule(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrRuleNotFound
		}
		return nil, fmt.Errorf("failed to get rule: %w", err)
	}
	return rule, nil
}

// GetActiveRules retrieves the active, non-deleted rules of one collection
// ordered by ascending priority. This is the snapshot the matcher runs over.
func (s *SQLiteStorage) GetActiveRules(ctx context.Context, kind model.RuleKind) ([]model.AssignmentRule, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if !model.ValidRuleKind(kind) {
		return nil, fmt.Errorf("invalid rule kind: %q", kind)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+ruleColumns+`
		FROM assignment_rules
		WHERE kind = ? AND is_active = 1 AND deleted_at IS NULL
		ORDER BY priority ASC, id ASC
	`, kind)
	if err != nil {
		return nil, fmt.Errorf("failed to get active rules: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var rules []model.AssignmentRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		rules = append(rules, *rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rules: %w", err)
	}
	return rules, nil
}

// UpdateRule applies a partial update. Nullable associations use tri-state
// patch fields, so clearing a filter is distinct from leaving it unchanged.
// Validation runs against the patched rule before anything is written.
func (s *SQLiteStorage) UpdateRule(ctx context.Context, id int64, patch model.RulePatch) (*model.AssignmentRule, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx,
		"SELECT "+ruleColumns+" FROM assignment_rules WHERE id = ? AND deleted_at IS NULL", id)
	rule, err := scanRule(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrRuleNotFound
		}
		return nil, fmt.Errorf("failed to get rule: %w", err)
	}

	applyRulePatch(rule, patch)
	if err := rule.Validate(); err != nil {
		return nil, err
	}

	include, err := marshalKeywords(rule.IncludeKeywords)
	if err != nil {
		return nil, err
	}
	exclude, err := marshalKeywords(rule.ExcludeKeywords)
	if err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE assignment_rules SET
			name = ?, description = ?, include_keywords = ?, exclude_keywords = ?,
			tax_entity_id = ?, farm_id = ?, module = ?, direction = ?,
			target = ?, is_active = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`,
		rule.Name, rule.Description, include, exclude,
		nullString(rule.TaxEntityID), nullString(rule.FarmID),
		moduleToNullString(rule.Module), directionToNullString(rule.Direction),
		rule.Target, rule.IsActive, id,
	); err != nil {
		return nil, fmt.Errorf("failed to update rule: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit rule update: %w", err)
	}
	return rule, nil
}

// DeleteRule soft-deletes a rule. Remaining rules keep their priorities;
// gaps are tolerated until the next explicit reorder.
func (s *SQLiteStorage) DeleteRule(ctx context.Context, id int64) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE assignment_rules
		SET deleted_at = CURRENT_TIMESTAMP, is_active = 0, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND deleted_at IS NULL
	`, id)
	if err != nil {
		return fmt.Errorf("failed to delete rule: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrRuleNotFound
	}
	return nil
}

// ReorderRules renumbers one collection to the dense sequence 1..N following
// the given id order. Ids that do not name an existing rule of the kind are
// skipped without failing the batch, so a stale admin view cannot wedge a
// reorder. The whole renumbering is one transaction: a concurrent matcher
// pass sees either the old ordering or the new one, never a mix.
func (s *SQLiteStorage) ReorderRules(ctx context.Context, kind model.RuleKind, orderedIDs []int64) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if !model.ValidRuleKind(kind) {
		return fmt.Errorf("invalid rule kind: %q", kind)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx,
		"SELECT id FROM assignment_rules WHERE kind = ? AND deleted_at IS NULL", kind)
	if err != nil {
		return fmt.Errorf("failed to list rule ids: %w", err)
	}
	existing := make(map[int64]bool)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			_ = rows.Close()
			return fmt.Errorf("failed to scan rule id: %w", err)
		}
		existing[id] = true
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return fmt.Errorf("error iterating rule ids: %w", err)
	}
	_ = rows.Close()

	priority := 0
	for _, id := range orderedIDs {
		if !existing[id] {
			continue
		}
		priority++
		if _, err := tx.ExecContext(ctx, `
			UPDATE assignment_rules
			SET priority = ?, updated_at = CURRENT_TIMESTAMP
			WHERE id = ? AND kind = ?
		`, priority, id, kind); err != nil {
			return fmt.Errorf("failed to reorder rule %d: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit reorder: %w", err)
	}
	return nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRule(row rowScanner) (*model.AssignmentRule, error) {
	var rule model.AssignmentRule
	var include, exclude string
	var taxEntity, farm, module, direction sql.NullString
	var deletedAt sql.NullTime

	err := row.Scan(
		&rule.ID, &rule.Kind, &rule.Name, &rule.Description, &rule.Priority,
		&include, &exclude, &taxEntity, &farm, &module, &direction,
		&rule.Target, &rule.IsActive, &rule.CreatedAt, &rule.UpdatedAt, &deletedAt,
	)
	if err != nil {
		return nil, err
	}

	rule.IncludeKeywords, err = unmarshalKeywords(include)
	if err != nil {
		return nil, err
	}
	rule.ExcludeKeywords, err = unmarshalKeywords(exclude)
	if err != nil {
		return nil, err
	}
	rule.TaxEntityID = stringPtr(taxEntity)
	rule.FarmID = stringPtr(farm)
	rule.Module = nullStringToModule(module)
	rule.Direction = nullStringToDirection(direction)
	if deletedAt.Valid {
		rule.DeletedAt = &deletedAt.Time
	}
	return &rule, nil
}

func applyRulePatch(rule *model.AssignmentRule, patch model.RulePatch) {
	if patch.Name != nil {
		rule.Name = *patch.Name
	}
	if patch.Description != nil {
		rule.Description = *patch.Description
	}
	if patch.Target != nil {
		rule.Target = *patch.Target
	}
	if patch.IsActive != nil {
		rule.IsActive = *patch.IsActive
	}
	if patch.IncludeKeywords != nil {
		rule.IncludeKeywords = *patch.IncludeKeywords
	}
	if patch.ExcludeKeywords != nil {
		rule.ExcludeKeywords = *patch.ExcludeKeywords
	}
	rule.TaxEntityID = patch.TaxEntityID.Apply(rule.TaxEntityID)
	rule.FarmID = patch.FarmID.Apply(rule.FarmID)
	rule.Module = patch.Module.Apply(rule.Module)
	rule.Direction = patch.Direction.Apply(rule.Direction)
}

func marshalKeywords(keywords []string) (string, error) {
	if keywords == nil {
		keywords = []string{}
	}
	data, err := json.Marshal(keywords)
	if err != nil {
		return "", fmt.Errorf("failed to marshal keywords: %w", err)
	}
	return string(data), nil
}

func unmarshalKeywords(data string) ([]string, error) {
	if data == "" || data == "[]" {
		return nil, nil
	}
	var keywords []string
	if err := json.Unmarshal([]byte(data), &keywords); err != nil {
		return nil, fmt.Errorf("failed to unmarshal keywords: %w", err)
	}
	return keywords, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func moduleToNullString(m *model.ModuleType) sql.NullString {
	if m == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(*m), Valid: true}
}

func nullStringToModule(ns sql.NullString) *model.ModuleType {
	if !ns.Valid {
		return nil
	}
	m := model.ModuleType(ns.String)
	return &m
}

func directionToNullString(d *model.InvoiceDirection) sql.NullString {
	if d == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(*d), Valid: true}
}

func nullStringToDirection(ns sql.NullString) *model.InvoiceDirection {
	if !ns.Valid {
		return nil
	}
	d := model.InvoiceDirection(ns.String)
	return &d
}
