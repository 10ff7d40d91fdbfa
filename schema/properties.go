package schema

// Declarative descriptors accepted by the registration API. They are
// validated and normalized once, at registration time; the resulting
// Table and Sequence definitions are treated as immutable afterwards.

// TableProperties describes a desired table.
type TableProperties struct {
	Name        string
	Columns     []ColumnProperties
	Indexes     []IndexProperties
	Unique      []IndexProperties
	ForeignKeys []ForeignKeyProperties
	PrimaryKeys []IndexProperties
	Checks      []CheckProperties
	Seeds       []map[string]any

	// Cleanable is keyed by extension variant name ("index", "check",
	// "unique", "primaryKey", "foreignKey") and overrides the default
	// drop policy for extensions present live but absent here.
	Cleanable map[string]bool

	// Force drops and recreates the table instead of diffing it.
	Force bool
}

// ColumnProperties describes a desired column. Nullable defaults to
// true, matching what PostgreSQL does for a bare column definition.
type ColumnProperties struct {
	Name          string
	Type          string
	Nullable      *bool
	Default       any
	AutoIncrement *AutoIncrementProperties
	PrimaryKey    bool
	Unique        bool
	FormerNames   []string
}

// AutoIncrementProperties configures the backing sequence of an
// auto-increment column. A zero value selects all defaults; set fields
// are merged over them.
type AutoIncrementProperties struct {
	Name      string
	Start     *int64
	Min       *int64
	Max       *int64
	Increment *int64
	Cycle     *bool
}

// IndexProperties describes an index, unique or primary key extension.
type IndexProperties struct {
	Columns []string
}

// ForeignKeyProperties describes a foreign key extension.
type ForeignKeyProperties struct {
	Columns    []string
	References ForeignKeyReference
	OnDelete   string
	OnUpdate   string
}

// CheckProperties describes a check extension.
type CheckProperties struct {
	Condition string
}

// SequenceProperties describes a desired sequence. Nil attributes take
// the PostgreSQL defaults; an explicit zero clears the attribute
// ("no minvalue" and friends).
type SequenceProperties struct {
	Name      string
	Start     *int64
	Min       *int64
	Max       *int64
	Increment *int64
	Cycle     *bool
	Force     bool
}
