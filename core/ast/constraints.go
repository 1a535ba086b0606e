package ast

// NewPrimaryKeyConstraint creates a table-level primary key constraint.
//
// Example:
//
//	// Composite primary key
//	pk := NewPrimaryKeyConstraint("invoice_id", "line_nbr")
func NewPrimaryKeyConstraint(columns ...string) *ConstraintNode {
	return &ConstraintNode{
		Type:    PrimaryKeyConstraint,
		Columns: columns,
	}
}

// NewUniqueConstraint creates a named table-level unique constraint.
//
// Example:
//
//	unique := NewUniqueConstraint("uk_customer_code", "tenant_id", "code")
func NewUniqueConstraint(name string, columns ...string) *ConstraintNode {
	return &ConstraintNode{
		Type:    UniqueConstraint,
		Name:    name,
		Columns: columns,
	}
}

// NewForeignKeyConstraint creates a named table-level foreign key constraint.
// columns and ref.Columns are matched position by position.
//
// Example:
//
//	fk := NewForeignKeyConstraint("fk_invoice_line_invoice", []string{"invoice_id"},
//		&ForeignKeyRef{Table: "invoice", Columns: []string{"id"}, OnDelete: "CASCADE"})
func NewForeignKeyConstraint(name string, columns []string, ref *ForeignKeyRef) *ConstraintNode {
	return &ConstraintNode{
		Type:      ForeignKeyConstraint,
		Name:      name,
		Columns:   columns,
		Reference: ref,
	}
}
