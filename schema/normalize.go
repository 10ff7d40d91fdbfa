package schema

import (
	"fmt"
	"math"
	"strings"
)

// defaultSequenceAttributes are PostgreSQL's own sequence defaults,
// also used when autoIncrement is enabled without options.
var defaultSequenceAttributes = SequenceAttributes{
	Start:     1,
	Min:       1,
	Max:       math.MaxInt64,
	Increment: 1,
	Cycle:     false,
}

// defaultCleanable is the per-variant drop policy applied when the
// caller does not override it. Only primary keys may be dropped when
// absent from the desired definition.
var defaultCleanable = map[ExtensionKind]bool{
	ExtensionIndex:      false,
	ExtensionCheck:      false,
	ExtensionUnique:     false,
	ExtensionPrimaryKey: true,
	ExtensionForeignKey: false,
}

var extensionKindsByName = map[string]ExtensionKind{
	"index":      ExtensionIndex,
	"check":      ExtensionCheck,
	"unique":     ExtensionUnique,
	"primaryKey": ExtensionPrimaryKey,
	"foreignKey": ExtensionForeignKey,
}

// NormalizeTable validates a table descriptor and turns it into a
// canonical definition: types normalized, defaults encoded,
// auto-increment options expanded, column-level extension flags merged
// into the per-variant extension lists.
func NormalizeTable(p TableProperties, defaultSchema string) (*Table, error) {
	if p.Name == "" {
		return nil, validationErrorf("name", "table name is required")
	}

	table := &Table{
		Name:       QualifyName(p.Name, defaultSchema),
		Extensions: map[ExtensionKind][]Extension{},
		Seeds:      p.Seeds,
		Force:      p.Force,
	}

	seen := map[string]bool{}
	for i, cp := range p.Columns {
		path := fmt.Sprintf("columns[%d]", i)
		if cp.Name == "" {
			return nil, validationErrorf(path+".name", "column name is required")
		}
		if cp.Type == "" {
			return nil, validationErrorf(path+".type", "column type is required")
		}
		if seen[cp.Name] {
			return nil, validationErrorf(path+".name", "duplicate column %q", cp.Name)
		}
		seen[cp.Name] = true

		column := Column{
			Name:        cp.Name,
			Type:        NormalizeType(cp.Type),
			Nullable:    cp.Nullable == nil || *cp.Nullable,
			FormerNames: cp.FormerNames,
		}
		if cp.AutoIncrement != nil {
			attributes, name := normalizeAutoIncrement(*cp.AutoIncrement, table.Name, cp.Name, defaultSchema)
			column.AutoIncrement = &attributes
			expr := fmt.Sprintf("nextval('%s'::regclass)", name)
			column.Default = &expr
			column.Nullable = false
		} else if cp.Default != nil {
			encoded := EncodeValue(cp.Default)
			column.Default = &encoded
		}
		table.Columns = append(table.Columns, column)

		// Boolean column flags become single-column extensions and are
		// concatenated with the explicitly declared lists below.
		if cp.PrimaryKey {
			table.Extensions[ExtensionPrimaryKey] = append(table.Extensions[ExtensionPrimaryKey],
				Extension{Type: ExtensionPrimaryKey, Columns: []string{cp.Name}})
		}
		if cp.Unique {
			table.Extensions[ExtensionUnique] = append(table.Extensions[ExtensionUnique],
				Extension{Type: ExtensionUnique, Columns: []string{cp.Name}})
		}
	}

	if err := appendIndexExtensions(table, ExtensionIndex, "indexes", p.Indexes); err != nil {
		return nil, err
	}
	if err := appendIndexExtensions(table, ExtensionUnique, "unique", p.Unique); err != nil {
		return nil, err
	}
	if err := appendIndexExtensions(table, ExtensionPrimaryKey, "primaryKeys", p.PrimaryKeys); err != nil {
		return nil, err
	}
	for i, fk := range p.ForeignKeys {
		path := fmt.Sprintf("foreignKeys[%d]", i)
		if len(fk.Columns) == 0 {
			return nil, validationErrorf(path+".columns", "at least one column is required")
		}
		if err := checkColumnsExist(table, path+".columns", fk.Columns); err != nil {
			return nil, err
		}
		if fk.References.Table == "" {
			return nil, validationErrorf(path+".references.table", "target table is required")
		}
		if len(fk.References.Columns) == 0 {
			return nil, validationErrorf(path+".references.columns", "target columns are required")
		}
		table.Extensions[ExtensionForeignKey] = append(table.Extensions[ExtensionForeignKey], Extension{
			Type:    ExtensionForeignKey,
			Columns: fk.Columns,
			References: &ForeignKeyReference{
				Table:   QualifyName(fk.References.Table, defaultSchema),
				Columns: fk.References.Columns,
			},
			OnDelete: normalizeReferentialAction(fk.OnDelete),
			OnUpdate: normalizeReferentialAction(fk.OnUpdate),
		})
	}
	for i, check := range p.Checks {
		if check.Condition == "" {
			return nil, validationErrorf(fmt.Sprintf("checks[%d].condition", i), "condition is required")
		}
		table.Extensions[ExtensionCheck] = append(table.Extensions[ExtensionCheck],
			Extension{Type: ExtensionCheck, Condition: check.Condition})
	}

	cleanable, err := normalizeCleanable(p.Cleanable)
	if err != nil {
		return nil, err
	}
	table.Cleanable = cleanable

	for i, seed := range p.Seeds {
		for column := range seed {
			if table.Column(column) == nil {
				return nil, validationErrorf(fmt.Sprintf("seeds[%d]", i), "unknown column %q", column)
			}
		}
	}

	return table, nil
}

// NormalizeSequence validates a sequence descriptor and applies the
// PostgreSQL attribute defaults.
func NormalizeSequence(p SequenceProperties, defaultSchema string) (*Sequence, error) {
	if p.Name == "" {
		return nil, validationErrorf("name", "sequence name is required")
	}
	return &Sequence{
		Name: QualifyName(p.Name, defaultSchema),
		Attributes: mergeSequenceAttributes(defaultSequenceAttributes, AutoIncrementProperties{
			Start:     p.Start,
			Min:       p.Min,
			Max:       p.Max,
			Increment: p.Increment,
			Cycle:     p.Cycle,
		}),
		Force: p.Force,
	}, nil
}

// BackingSequence derives the sequence definition backing an
// auto-increment column. The name comes from the column's nextval
// default, falling back to <table>_<column>_seq.
func BackingSequence(table *Table, column *Column, defaultSchema string) *Sequence {
	var name string
	if column.Default != nil {
		if n, ok := SequenceNameFromDefault(*column.Default); ok {
			name = QualifyName(n, defaultSchema)
		}
	}
	if name == "" {
		schemaName, tableName := SplitQualifiedName(table.Name, defaultSchema)
		name = fmt.Sprintf("%s.%s_%s_seq", schemaName, tableName, column.Name)
	}
	return &Sequence{
		Name:       name,
		Attributes: *column.AutoIncrement,
		Owner:      &SequenceOwner{Table: table.Name, Column: column.Name},
	}
}

func normalizeAutoIncrement(p AutoIncrementProperties, tableName, columnName, defaultSchema string) (SequenceAttributes, string) {
	attributes := mergeSequenceAttributes(defaultSequenceAttributes, p)
	name := p.Name
	if name == "" {
		schemaName, table := SplitQualifiedName(tableName, defaultSchema)
		name = fmt.Sprintf("%s.%s_%s_seq", schemaName, table, columnName)
	} else {
		name = QualifyName(name, defaultSchema)
	}
	return attributes, name
}

func mergeSequenceAttributes(defaults SequenceAttributes, p AutoIncrementProperties) SequenceAttributes {
	merged := defaults
	if p.Start != nil {
		merged.Start = *p.Start
	}
	if p.Min != nil {
		merged.Min = *p.Min
	}
	if p.Max != nil {
		merged.Max = *p.Max
	}
	if p.Increment != nil {
		merged.Increment = *p.Increment
	}
	if p.Cycle != nil {
		merged.Cycle = *p.Cycle
	}
	return merged
}

func normalizeCleanable(overrides map[string]bool) (map[ExtensionKind]bool, error) {
	cleanable := make(map[ExtensionKind]bool, len(defaultCleanable))
	for kind, allowed := range defaultCleanable {
		cleanable[kind] = allowed
	}
	for name, allowed := range overrides {
		kind, ok := extensionKindsByName[name]
		if !ok {
			return nil, validationErrorf("cleanable."+name, "unknown extension variant")
		}
		cleanable[kind] = allowed
	}
	return cleanable, nil
}

func appendIndexExtensions(table *Table, kind ExtensionKind, field string, list []IndexProperties) error {
	for i, properties := range list {
		path := fmt.Sprintf("%s[%d].columns", field, i)
		if len(properties.Columns) == 0 {
			return validationErrorf(path, "at least one column is required")
		}
		if err := checkColumnsExist(table, path, properties.Columns); err != nil {
			return err
		}
		table.Extensions[kind] = append(table.Extensions[kind],
			Extension{Type: kind, Columns: properties.Columns})
	}
	return nil
}

func checkColumnsExist(table *Table, path string, columns []string) error {
	for _, name := range columns {
		if table.Column(name) == nil {
			return validationErrorf(path, "unknown column %q", name)
		}
	}
	return nil
}

func normalizeReferentialAction(action string) string {
	if action == "" {
		return "NO ACTION"
	}
	return strings.ToUpper(action)
}
