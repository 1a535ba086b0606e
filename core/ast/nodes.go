// Package ast models the DDL statements formkit renders for the tables of
// persisted forms.
//
// The nodes are dialect neutral. Column types are carried as already mapped
// type names and the dialect specific parts (auto increment syntax, default
// expressions) are decided by the renderer that visits the nodes.
package ast

// Node represents any SQL AST node that can be visited by a Visitor.
type Node interface {
	// Accept implements the visitor pattern for rendering
	Accept(visitor Visitor) error
}

// Visitor renders nodes. Implementations write dialect specific SQL.
type Visitor interface {
	VisitCreateTable(node *CreateTableNode) error
	VisitColumn(node *ColumnNode) error
	VisitConstraint(node *ConstraintNode) error
}

// CreateTableNode represents a CREATE TABLE statement with all its components.
//
// It supports a fluent API for construction:
//
//	table := NewCreateTable("invoice").
//		AddColumn(NewColumn("id", "BIGINT").SetNotNull().SetAutoIncrement()).
//		AddConstraint(NewPrimaryKeyConstraint("id"))
type CreateTableNode struct {
	// Name is the name of the table to create
	Name string
	// Columns contains all column definitions for the table
	Columns []*ColumnNode
	// Constraints contains table-level constraints (PRIMARY KEY, UNIQUE, FOREIGN KEY)
	Constraints []*ConstraintNode
	// Comment is an optional table comment, rendered as a SQL comment line
	Comment string
}

// NewCreateTable creates a new CREATE TABLE node with the specified table name.
func NewCreateTable(name string) *CreateTableNode {
	return &CreateTableNode{Name: name}
}

// Accept implements the Node interface for CreateTableNode.
func (n *CreateTableNode) Accept(visitor Visitor) error {
	return visitor.VisitCreateTable(n)
}

// AddColumn adds a column to the table and returns the table for chaining.
func (n *CreateTableNode) AddColumn(column *ColumnNode) *CreateTableNode {
	n.Columns = append(n.Columns, column)
	return n
}

// AddConstraint adds a table-level constraint and returns the table for chaining.
func (n *CreateTableNode) AddConstraint(constraint *ConstraintNode) *CreateTableNode {
	n.Constraints = append(n.Constraints, constraint)
	return n
}

// Column returns the column with the given name.
func (n *CreateTableNode) Column(name string) (*ColumnNode, bool) {
	for _, c := range n.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return nil, false
}

// ColumnNode represents a column definition.
type ColumnNode struct {
	// Name is the column name
	Name string
	// Type is the column data type (e.g., "BIGINT", "VARCHAR(255)", "TIMESTAMP")
	Type string
	// Nullable indicates whether the column allows NULL values (default: true)
	Nullable bool
	// AutoInc indicates whether the database generates the column value
	AutoInc bool
	// Default contains the default value specification (literal or function)
	Default *DefaultValue
	// Comment is an optional column comment
	Comment string
}

// NewColumn creates a nullable column of the given type.
func NewColumn(name, dataType string) *ColumnNode {
	return &ColumnNode{
		Name:     name,
		Type:     dataType,
		Nullable: true,
	}
}

// Accept implements the Node interface for ColumnNode.
func (n *ColumnNode) Accept(visitor Visitor) error {
	return visitor.VisitColumn(n)
}

// SetNotNull marks the column as NOT NULL.
func (n *ColumnNode) SetNotNull() *ColumnNode {
	n.Nullable = false
	return n
}

// SetAutoIncrement marks the column as generated by the database. Auto
// increment columns are NOT NULL.
func (n *ColumnNode) SetAutoIncrement() *ColumnNode {
	n.AutoInc = true
	n.Nullable = false
	return n
}

// SetDefault sets a literal default value.
func (n *ColumnNode) SetDefault(value string) *ColumnNode {
	n.Default = &DefaultValue{Value: value}
	return n
}

// SetDefaultExpression sets a function or expression as default (e.g. CURRENT_TIMESTAMP).
func (n *ColumnNode) SetDefaultExpression(fn string) *ColumnNode {
	n.Default = &DefaultValue{Expression: fn}
	return n
}

func (n *ColumnNode) SetComment(comment string) *ColumnNode {
	n.Comment = comment
	return n
}

// DefaultValue is either a literal Value, rendered quoted, or an Expression,
// rendered as is.
type DefaultValue struct {
	Value      string
	Expression string
}

// ConstraintType is the kind of a table-level constraint.
type ConstraintType int

const (
	PrimaryKeyConstraint ConstraintType = iota
	UniqueConstraint
	ForeignKeyConstraint
)

func (t ConstraintType) String() string {
	switch t {
	case PrimaryKeyConstraint:
		return "PRIMARY KEY"
	case UniqueConstraint:
		return "UNIQUE"
	case ForeignKeyConstraint:
		return "FOREIGN KEY"
	default:
		return "UNKNOWN"
	}
}

// ConstraintNode represents a table-level constraint.
type ConstraintNode struct {
	// Type specifies the constraint type (PRIMARY KEY, UNIQUE, etc.)
	Type ConstraintType
	// Name is the constraint name (optional for primary keys)
	Name string
	// Columns contains the list of column names involved in the constraint
	Columns []string
	// Reference contains foreign key reference information (only for FOREIGN KEY constraints)
	Reference *ForeignKeyRef
}

// Accept implements the Node interface for ConstraintNode.
func (n *ConstraintNode) Accept(visitor Visitor) error {
	return visitor.VisitConstraint(n)
}

// ForeignKeyRef is the target of a foreign key.
type ForeignKeyRef struct {
	Table    string
	Columns  []string
	OnDelete string
}
