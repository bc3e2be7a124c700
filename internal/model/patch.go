package model

// Field is a tri-state patch value for a nullable association. The zero
// value means "leave unchanged"; SetField carries a new value; ClearField
// explicitly nulls the association. This keeps partial updates unambiguous:
// omitting a field is never confused with clearing it.
type Field[T any] struct {
	value   T
	set     bool
	cleared bool
}

// SetField returns a patch field carrying v.
func SetField[T any](v T) Field[T] {
	return Field[T]{value: v, set: true}
}

// ClearField returns a patch field that nulls the association.
func ClearField[T any]() Field[T] {
	return Field[T]{cleared: true}
}

// Value returns the carried value and whether one was set.
func (f Field[T]) Value() (T, bool) {
	return f.value, f.set
}

// Cleared reports whether the field should be nulled.
func (f Field[T]) Cleared() bool {
	return f.cleared
}

// Apply resolves the patch against the current pointer value.
func (f Field[T]) Apply(current *T) *T {
	switch {
	case f.cleared:
		return nil
	case f.set:
		v := f.value
		return &v
	}
	return current
}

// RulePatch describes a partial update to an assignment rule. Pointer fields
// follow the usual nil-means-unchanged convention; the nullable associations
// use Field so that clearing is an explicit, separate signal.
type RulePatch struct {
	Name            *string
	Description     *string
	Target          *string
	IsActive        *bool
	IncludeKeywords *[]string
	ExcludeKeywords *[]string
	TaxEntityID     Field[string]
	FarmID          Field[string]
	Module          Field[ModuleType]
	Direction       Field[InvoiceDirection]
}

// InvoicePatch describes a manual reassignment of an invoice's routing
// fields. Every field is independently settable or clearable.
type InvoicePatch struct {
	AssignedUser   Field[string]
	AssignedFarm   Field[string]
	AssignedModule Field[ModuleType]
	TaxEntityID    Field[string]
}
