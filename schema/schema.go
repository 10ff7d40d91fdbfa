// Package schema holds the declarative model of tables and sequences and
// computes change operations against an observed database structure.
// It never touches a live connection; reads needed during diffing go
// through narrow interfaces supplied by the caller.
package schema

// Category is the execution phase a change operation belongs to.
// Categories run in declaration order of these constants.
type Category int

const (
	CategorySequences Category = iota
	CategoryTables
	CategoryExtensions
	CategorySeeds
	CategorySequenceValues
)

// Categories lists all categories in execution order.
var Categories = []Category{
	CategorySequences,
	CategoryTables,
	CategoryExtensions,
	CategorySeeds,
	CategorySequenceValues,
}

func (c Category) String() string {
	switch c {
	case CategorySequences:
		return "sequences"
	case CategoryTables:
		return "tables"
	case CategoryExtensions:
		return "extensions"
	case CategorySeeds:
		return "seeds"
	case CategorySequenceValues:
		return "sequence values"
	default:
		return "unknown"
	}
}

// ChangeOperation is one generated statement. Operations are recomputed
// from scratch on every sync and discarded after execution.
type ChangeOperation struct {
	Category  Category
	Operation string // e.g. "drop foreignKey", "create sequence"
	SQL       string
}

// ExtensionKind discriminates the five table extension variants.
type ExtensionKind int

const (
	ExtensionIndex ExtensionKind = iota
	ExtensionCheck
	ExtensionUnique
	ExtensionPrimaryKey
	ExtensionForeignKey
)

func (k ExtensionKind) String() string {
	switch k {
	case ExtensionIndex:
		return "index"
	case ExtensionCheck:
		return "check"
	case ExtensionUnique:
		return "unique"
	case ExtensionPrimaryKey:
		return "primaryKey"
	case ExtensionForeignKey:
		return "foreignKey"
	default:
		return "unknown"
	}
}

// Creation order: keys depend on unique/index structures existing first.
// Cleanup runs in the exact reverse so dependents are dropped before the
// structures they depend on.
var (
	extensionCreateOrder = []ExtensionKind{
		ExtensionIndex,
		ExtensionCheck,
		ExtensionUnique,
		ExtensionPrimaryKey,
		ExtensionForeignKey,
	}
	extensionCleanupOrder = []ExtensionKind{
		ExtensionForeignKey,
		ExtensionPrimaryKey,
		ExtensionUnique,
		ExtensionCheck,
		ExtensionIndex,
	}
)

// ForeignKeyReference is the target side of a foreign key.
type ForeignKeyReference struct {
	Table   string
	Columns []string
}

// Extension is a normalized table extension of any variant. Name is only
// populated on observed extensions, where it identifies the live
// constraint or index for DROP statements.
type Extension struct {
	Type       ExtensionKind
	Columns    []string
	References *ForeignKeyReference // foreignKey only
	OnDelete   string               // foreignKey only
	OnUpdate   string               // foreignKey only
	Condition  string               // check only
	Name       string               // observed only
}

// SequenceAttributes are the five diffable sequence properties. A zero
// value means the attribute was explicitly cleared ("no minvalue" etc.).
type SequenceAttributes struct {
	Start     int64
	Min       int64
	Max       int64
	Increment int64
	Cycle     bool
}

// Column is a normalized column definition.
type Column struct {
	Name          string
	Type          string // canonical type with original modifiers
	Nullable      bool
	Default       *string // encoded literal or raw expression
	AutoIncrement *SequenceAttributes
	FormerNames   []string
}

// Table is a normalized table definition, immutable once registered.
type Table struct {
	Name       string // schema-qualified
	Columns    []Column
	Extensions map[ExtensionKind][]Extension
	Seeds      []map[string]any
	Cleanable  map[ExtensionKind]bool
	Force      bool
}

// Sequence is a normalized sequence definition, immutable once registered.
type Sequence struct {
	Name       string // schema-qualified
	Attributes SequenceAttributes
	Force      bool

	// Owner is set for sequences backing an auto-increment column.
	Owner *SequenceOwner
}

// SequenceOwner names the table column a backing sequence belongs to.
type SequenceOwner struct {
	Table  string
	Column string
}

// Column returns the column definition with the given name, or nil.
func (t *Table) Column(name string) *Column {
	for i := range t.Columns {
		if t.Columns[i].Name == name {
			return &t.Columns[i]
		}
	}
	return nil
}
