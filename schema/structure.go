package schema

// TableStructure is the live-observed shape of a table, supplied by a
// structure reader. The differ treats it as read-only.
type TableStructure struct {
	Name       string
	Columns    []ColumnStructure
	Extensions map[ExtensionKind][]Extension
}

// ColumnStructure is one observed column. Default carries the raw
// expression text as reported by information_schema.
type ColumnStructure struct {
	Name     string
	Type     string
	Nullable bool
	Default  string
}

// SequenceStructure is the live-observed shape of a sequence.
type SequenceStructure struct {
	Name       string
	Attributes SequenceAttributes
}

// Column returns the observed column with the given name, or nil.
func (t *TableStructure) Column(name string) *ColumnStructure {
	for i := range t.Columns {
		if t.Columns[i].Name == name {
			return &t.Columns[i]
		}
	}
	return nil
}
