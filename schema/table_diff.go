package schema

import (
	"fmt"
	"reflect"
	"strings"
)

const indent = "    "

// TableDiffConfig carries connection-level facts the table differ
// depends on.
type TableDiffConfig struct {
	DefaultSchema string

	// SeedsEnabled is false when the server is too old for idempotent
	// inserts (< 9.5); seed rows are then skipped entirely.
	SeedsEnabled bool
}

// DiffTable compares a desired table against its observed structure and
// returns the operations needed to reconcile them, spread over the
// Tables, Extensions, Seeds and SequenceValues categories.
func DiffTable(desired *Table, observed *TableStructure, config TableDiffConfig) []ChangeOperation {
	var ops []ChangeOperation

	if desired.Force && observed != nil {
		ops = append(ops, ChangeOperation{
			Category:  CategoryTables,
			Operation: "drop table",
			SQL:       fmt.Sprintf("DROP TABLE IF EXISTS %s CASCADE", desired.Name),
		})
		observed = nil
	}

	if observed == nil {
		ops = append(ops, createTableOperation(desired))
	} else {
		ops = append(ops, diffColumns(desired, observed, config)...)
	}

	ops = append(ops, diffExtensions(desired, observed)...)
	if observed != nil {
		ops = append(ops, identityOperations(desired, observed, config)...)
	}
	if config.SeedsEnabled {
		ops = append(ops, seedOperations(desired)...)
	}
	// Actualization only accompanies actual changes; an unchanged table
	// emits nothing at all.
	if len(ops) > 0 {
		ops = append(ops, sequenceValueOperations(desired)...)
	}

	return ops
}

func createTableOperation(desired *Table) ChangeOperation {
	var builder strings.Builder
	fmt.Fprintf(&builder, "CREATE TABLE %s (", desired.Name)
	for i, column := range desired.Columns {
		if i > 0 {
			builder.WriteString(",")
		}
		builder.WriteString("\n" + indent + columnDefinition(column))
	}
	builder.WriteString("\n)")
	return ChangeOperation{
		Category:  CategoryTables,
		Operation: "create table",
		SQL:       builder.String(),
	}
}

func columnDefinition(column Column) string {
	definition := column.Name + " " + column.Type
	if !column.Nullable {
		definition += " NOT NULL"
	}
	if column.Default != nil {
		definition += " DEFAULT " + *column.Default
	}
	return definition
}

func diffColumns(desired *Table, observed *TableStructure, config TableDiffConfig) []ChangeOperation {
	var ops []ChangeOperation
	matched := map[string]bool{}

	for _, column := range desired.Columns {
		observedColumn := observed.Column(column.Name)
		if observedColumn == nil {
			// Rename detection falls back to the former-names list.
			for _, former := range column.FormerNames {
				if candidate := observed.Column(former); candidate != nil {
					ops = append(ops, ChangeOperation{
						Category:  CategoryTables,
						Operation: "rename column",
						SQL:       fmt.Sprintf("ALTER TABLE %s RENAME COLUMN %s TO %s", desired.Name, former, column.Name),
					})
					observedColumn = candidate
					matched[former] = true
					break
				}
			}
		} else {
			matched[column.Name] = true
		}

		if observedColumn == nil {
			ops = append(ops, ChangeOperation{
				Category:  CategoryTables,
				Operation: "add column",
				SQL:       fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", desired.Name, columnDefinition(column)),
			})
			continue
		}
		ops = append(ops, diffColumn(desired.Name, column, observedColumn, config)...)
	}

	// Columns are always droppable, unlike extensions.
	for _, observedColumn := range observed.Columns {
		if matched[observedColumn.Name] {
			continue
		}
		ops = append(ops, ChangeOperation{
			Category:  CategoryTables,
			Operation: "drop column",
			SQL:       fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", desired.Name, observedColumn.Name),
		})
	}

	return ops
}

func diffColumn(tableName string, desired Column, observed *ColumnStructure, config TableDiffConfig) []ChangeOperation {
	var ops []ChangeOperation
	alter := func(operation, sql string) {
		ops = append(ops, ChangeOperation{Category: CategoryTables, Operation: operation, SQL: sql})
	}

	// Statements target the desired name: a pending rename has already
	// been emitted ahead of these in the same category.
	if NormalizeType(observed.Type) != desired.Type {
		alter("alter column", fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s TYPE %s", tableName, desired.Name, desired.Type))
	}

	// Sequence-backed defaults belong to the identity path.
	if desired.AutoIncrement == nil && !isSequenceDefault(observed.Default) {
		observedDefault := DefaultValueInformationSchema(observed.Default, config.DefaultSchema)
		switch {
		case desired.Default == nil && observed.Default != "":
			alter("alter column", fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s DROP DEFAULT", tableName, desired.Name))
		case desired.Default != nil && !defaultsEqual(*desired.Default, observedDefault, desired.Type):
			alter("alter column", fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s SET DEFAULT %s", tableName, desired.Name, *desired.Default))
		}
	}

	if desired.Nullable && !observed.Nullable {
		alter("alter column", fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s DROP NOT NULL", tableName, desired.Name))
	} else if !desired.Nullable && observed.Nullable {
		alter("alter column", fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s SET NOT NULL", tableName, desired.Name))
	}

	return ops
}

// defaultsEqual decodes both sides into comparable values. Opaque
// expressions compare only as text.
func defaultsEqual(desired, observed, typeName string) bool {
	return reflect.DeepEqual(DecodeValue(desired, typeName), DecodeValue(observed, typeName))
}

func isSequenceDefault(expr string) bool {
	_, ok := SequenceNameFromDefault(expr)
	return ok
}

// findObservedColumn resolves the live column for a desired one,
// following the former-names list so a pending rename still matches.
func findObservedColumn(observed *TableStructure, column Column) *ColumnStructure {
	if c := observed.Column(column.Name); c != nil {
		return c
	}
	for _, former := range column.FormerNames {
		if c := observed.Column(former); c != nil {
			return c
		}
	}
	return nil
}

func diffExtensions(desired *Table, observed *TableStructure) []ChangeOperation {
	var ops []ChangeOperation

	for _, kind := range extensionCreateOrder {
		var observedList []Extension
		if observed != nil {
			observedList = observed.Extensions[kind]
		}
		for _, extension := range desired.Extensions[kind] {
			if findExtension(observedList, extension) == nil {
				ops = append(ops, addExtensionOperation(desired.Name, extension))
			}
		}
	}

	if observed == nil {
		return ops
	}

	for _, kind := range extensionCleanupOrder {
		if !desired.Cleanable[kind] {
			continue
		}
		for _, extension := range observed.Extensions[kind] {
			if findExtension(desired.Extensions[kind], extension) == nil {
				ops = append(ops, dropExtensionOperation(desired.Name, extension))
			}
		}
	}

	return ops
}

// findExtension matches by structure, never by name: live names are
// generated by the database and absent from desired definitions.
func findExtension(list []Extension, target Extension) *Extension {
	for i := range list {
		if extensionsEqual(list[i], target) {
			return &list[i]
		}
	}
	return nil
}

func extensionsEqual(a, b Extension) bool {
	if a.Type != b.Type || !reflect.DeepEqual(a.Columns, b.Columns) {
		return false
	}
	switch a.Type {
	case ExtensionForeignKey:
		return reflect.DeepEqual(a.References, b.References) &&
			a.OnDelete == b.OnDelete && a.OnUpdate == b.OnUpdate
	case ExtensionCheck:
		return a.Condition == b.Condition
	default:
		return true
	}
}

func addExtensionOperation(tableName string, extension Extension) ChangeOperation {
	var sql string
	columns := strings.Join(extension.Columns, ", ")
	switch extension.Type {
	case ExtensionIndex:
		sql = fmt.Sprintf("CREATE INDEX ON %s (%s)", tableName, columns)
	case ExtensionUnique:
		sql = fmt.Sprintf("ALTER TABLE %s ADD UNIQUE (%s)", tableName, columns)
	case ExtensionPrimaryKey:
		sql = fmt.Sprintf("ALTER TABLE %s ADD PRIMARY KEY (%s)", tableName, columns)
	case ExtensionForeignKey:
		sql = fmt.Sprintf("ALTER TABLE %s ADD FOREIGN KEY (%s) REFERENCES %s (%s) ON UPDATE %s ON DELETE %s",
			tableName, columns,
			extension.References.Table, strings.Join(extension.References.Columns, ", "),
			extension.OnUpdate, extension.OnDelete)
	case ExtensionCheck:
		sql = fmt.Sprintf("ALTER TABLE %s ADD CHECK (%s)", tableName, extension.Condition)
	}
	return ChangeOperation{
		Category:  CategoryExtensions,
		Operation: "add " + extension.Type.String(),
		SQL:       sql,
	}
}

func dropExtensionOperation(tableName string, extension Extension) ChangeOperation {
	var sql string
	if extension.Type == ExtensionIndex {
		schemaName, _ := SplitQualifiedName(tableName, DefaultSchema)
		sql = fmt.Sprintf("DROP INDEX %s", QualifyName(extension.Name, schemaName))
	} else {
		sql = fmt.Sprintf("ALTER TABLE %s DROP CONSTRAINT %s", tableName, extension.Name)
	}
	return ChangeOperation{
		Category:  CategoryExtensions,
		Operation: "drop " + extension.Type.String(),
		SQL:       sql,
	}
}

// identityOperations attaches, alters or detaches the backing sequence
// of auto-increment columns. They land in the SequenceValues category
// so they run after table and extension changes, once the backing
// sequence already has its final shape.
func identityOperations(desired *Table, observed *TableStructure, config TableDiffConfig) []ChangeOperation {
	var ops []ChangeOperation
	identity := func(operation, sql string) {
		ops = append(ops, ChangeOperation{Category: CategorySequenceValues, Operation: operation, SQL: sql})
	}

	for _, column := range desired.Columns {
		observedColumn := findObservedColumn(observed, column)
		if observedColumn == nil {
			continue
		}
		observedDefault := DefaultValueInformationSchema(observedColumn.Default, config.DefaultSchema)

		if column.AutoIncrement != nil {
			if column.Default != nil && observedDefault != *column.Default {
				sequenceName, _ := SequenceNameFromDefault(*column.Default)
				identity("identity update", fmt.Sprintf("ALTER SEQUENCE %s OWNED BY %s.%s", sequenceName, desired.Name, column.Name))
				identity("identity update", fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s SET DEFAULT %s", desired.Name, column.Name, *column.Default))
			}
			continue
		}

		if sequenceName, ok := SequenceNameFromDefault(observedDefault); ok {
			identity("identity update", fmt.Sprintf("ALTER SEQUENCE %s OWNED BY NONE", QualifyName(sequenceName, config.DefaultSchema)))
			if column.Default != nil {
				identity("identity update", fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s SET DEFAULT %s", desired.Name, column.Name, *column.Default))
			} else {
				identity("identity update", fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s DROP DEFAULT", desired.Name, column.Name))
			}
		}
	}

	return ops
}

// seedOperations emits one idempotent insert per declared seed row.
// ON CONFLICT DO NOTHING requires server 9.5, checked by the caller.
func seedOperations(desired *Table) []ChangeOperation {
	var ops []ChangeOperation
	for _, seed := range desired.Seeds {
		var columns, values []string
		for _, column := range desired.Columns {
			value, ok := seed[column.Name]
			if !ok {
				continue
			}
			columns = append(columns, column.Name)
			values = append(values, EncodeValue(value))
		}
		if len(columns) == 0 {
			continue
		}
		ops = append(ops, ChangeOperation{
			Category:  CategorySeeds,
			Operation: "insert seed",
			SQL: fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT DO NOTHING",
				desired.Name, strings.Join(columns, ", "), strings.Join(values, ", ")),
		})
	}
	return ops
}

// sequenceValueOperations moves every backing sequence to at least the
// maximum value present in its column, so future inserts never collide
// with seeded or pre-existing rows.
func sequenceValueOperations(desired *Table) []ChangeOperation {
	var ops []ChangeOperation
	for _, column := range desired.Columns {
		if column.AutoIncrement == nil || column.Default == nil {
			continue
		}
		sequenceName, ok := SequenceNameFromDefault(*column.Default)
		if !ok {
			continue
		}
		floor := column.AutoIncrement.Start
		if floor == 0 {
			floor = 1
		}
		ops = append(ops, ChangeOperation{
			Category:  CategorySequenceValues,
			Operation: "actualize sequence",
			SQL: fmt.Sprintf("SELECT setval('%s'::regclass, (SELECT GREATEST(COALESCE(MAX(%s), %d), %d) FROM %s))",
				sequenceName, column.Name, floor, floor, desired.Name),
		})
	}
	return ops
}
