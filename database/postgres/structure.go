package postgres

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/mitar/pg-differ/database"
	"github.com/mitar/pg-differ/schema"
)

// StructureReader introspects live tables and sequences through
// pg_catalog and information_schema, producing read-only snapshots. It
// shares the client's session so snapshot reads and execution happen
// on the same connection.
type StructureReader struct {
	client        *Client
	defaultSchema string
}

func NewStructureReader(client *Client, defaultSchema string) *StructureReader {
	if defaultSchema == "" {
		defaultSchema = schema.DefaultSchema
	}
	return &StructureReader{client: client, defaultSchema: defaultSchema}
}

var _ database.StructureReader = (*StructureReader)(nil)

func (r *StructureReader) ReadTable(name string) (*schema.TableStructure, error) {
	db := r.client.DB()
	if db == nil {
		return nil, fmt.Errorf("structure reader is not connected")
	}
	schemaName, tableName := schema.SplitQualifiedName(name, r.defaultSchema)

	columns, err := r.readColumns(db, schemaName, tableName)
	if err != nil {
		return nil, fmt.Errorf("reading columns of %s: %w", name, err)
	}
	if columns == nil {
		return nil, nil
	}

	structure := &schema.TableStructure{
		Name:       schemaName + "." + tableName,
		Columns:    columns,
		Extensions: map[schema.ExtensionKind][]schema.Extension{},
	}
	if err := r.readConstraints(db, schemaName, tableName, structure); err != nil {
		return nil, fmt.Errorf("reading constraints of %s: %w", name, err)
	}
	if err := r.readIndexes(db, schemaName, tableName, structure); err != nil {
		return nil, fmt.Errorf("reading indexes of %s: %w", name, err)
	}
	return structure, nil
}

func (r *StructureReader) ReadSequence(name string) (*schema.SequenceStructure, error) {
	db := r.client.DB()
	if db == nil {
		return nil, fmt.Errorf("structure reader is not connected")
	}
	schemaName, sequenceName := schema.SplitQualifiedName(name, r.defaultSchema)

	const query = `
		SELECT start_value, minimum_value, maximum_value, increment, cycle_option
		FROM information_schema.sequences
		WHERE sequence_schema = $1 AND sequence_name = $2`
	var attributes schema.SequenceAttributes
	var cycle string
	err := db.QueryRow(query, schemaName, sequenceName).Scan(
		&attributes.Start, &attributes.Min, &attributes.Max, &attributes.Increment, &cycle)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading sequence %s: %w", name, err)
	}
	attributes.Cycle = cycle == "YES"
	return &schema.SequenceStructure{
		Name:       schemaName + "." + sequenceName,
		Attributes: attributes,
	}, nil
}

func (r *StructureReader) readColumns(db *sql.DB, schemaName, tableName string) ([]schema.ColumnStructure, error) {
	const query = `
		SELECT f.attname,
		       format_type(f.atttypid, f.atttypmod),
		       NOT f.attnotnull,
		       COALESCE(pg_get_expr(d.adbin, d.adrelid), '')
		FROM pg_attribute f
		JOIN pg_class c ON c.oid = f.attrelid
		JOIN pg_namespace n ON n.oid = c.relnamespace
		LEFT JOIN pg_attrdef d ON d.adrelid = c.oid AND d.adnum = f.attnum
		WHERE c.relkind IN ('r', 'p')
		AND n.nspname = $1
		AND c.relname = $2
		AND f.attnum > 0
		AND NOT f.attisdropped
		ORDER BY f.attnum`

	rows, err := db.Query(query, schemaName, tableName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var columns []schema.ColumnStructure
	for rows.Next() {
		var column schema.ColumnStructure
		if err := rows.Scan(&column.Name, &column.Type, &column.Nullable, &column.Default); err != nil {
			return nil, err
		}
		columns = append(columns, column)
	}
	return columns, rows.Err()
}

func (r *StructureReader) readConstraints(db *sql.DB, schemaName, tableName string, structure *schema.TableStructure) error {
	const query = `
		SELECT con.conname,
		       con.contype::text,
		       ARRAY(SELECT att.attname FROM unnest(con.conkey) WITH ORDINALITY k(attnum, ord)
		             JOIN pg_attribute att ON att.attrelid = con.conrelid AND att.attnum = k.attnum
		             ORDER BY k.ord)::text[],
		       COALESCE(con.confrelid::regclass::text, ''),
		       ARRAY(SELECT att.attname FROM unnest(con.confkey) WITH ORDINALITY k(attnum, ord)
		             JOIN pg_attribute att ON att.attrelid = con.confrelid AND att.attnum = k.attnum
		             ORDER BY k.ord)::text[],
		       con.confupdtype::text,
		       con.confdeltype::text,
		       pg_get_constraintdef(con.oid)
		FROM pg_constraint con
		JOIN pg_class cls ON cls.oid = con.conrelid
		JOIN pg_namespace nsp ON nsp.oid = con.connamespace
		WHERE nsp.nspname = $1
		AND cls.relname = $2
		AND con.contype IN ('p', 'u', 'f', 'c')
		ORDER BY con.conname`

	rows, err := db.Query(query, schemaName, tableName)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var name, contype, referencedTable, updateAction, deleteAction, definition string
		var columns, referencedColumns []string
		err := rows.Scan(&name, &contype, pq.Array(&columns), &referencedTable,
			pq.Array(&referencedColumns), &updateAction, &deleteAction, &definition)
		if err != nil {
			return err
		}

		extension := schema.Extension{Name: name, Columns: columns}
		switch contype {
		case "p":
			extension.Type = schema.ExtensionPrimaryKey
		case "u":
			extension.Type = schema.ExtensionUnique
		case "f":
			extension.Type = schema.ExtensionForeignKey
			extension.References = &schema.ForeignKeyReference{
				Table:   schema.QualifyName(referencedTable, r.defaultSchema),
				Columns: referencedColumns,
			}
			extension.OnUpdate = referentialAction(updateAction)
			extension.OnDelete = referentialAction(deleteAction)
		case "c":
			extension.Type = schema.ExtensionCheck
			extension.Columns = nil
			extension.Condition = checkCondition(definition)
		}
		structure.Extensions[extension.Type] = append(structure.Extensions[extension.Type], extension)
	}
	return rows.Err()
}

func (r *StructureReader) readIndexes(db *sql.DB, schemaName, tableName string, structure *schema.TableStructure) error {
	// Indexes backing primary keys, unique or exclusion constraints are
	// reported with those constraints instead.
	const query = `
		SELECT i.relname,
		       ARRAY(SELECT att.attname FROM unnest(x.indkey::int2[]) WITH ORDINALITY k(attnum, ord)
		             JOIN pg_attribute att ON att.attrelid = x.indrelid AND att.attnum = k.attnum
		             ORDER BY k.ord)::text[]
		FROM pg_index x
		JOIN pg_class i ON i.oid = x.indexrelid
		JOIN pg_class t ON t.oid = x.indrelid
		JOIN pg_namespace n ON n.oid = t.relnamespace
		WHERE n.nspname = $1
		AND t.relname = $2
		AND NOT x.indisprimary
		AND NOT x.indisunique
		AND NOT EXISTS (SELECT 1 FROM pg_constraint c WHERE c.conindid = x.indexrelid)
		ORDER BY i.relname`

	rows, err := db.Query(query, schemaName, tableName)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var name string
		var columns []string
		if err := rows.Scan(&name, pq.Array(&columns)); err != nil {
			return err
		}
		structure.Extensions[schema.ExtensionIndex] = append(structure.Extensions[schema.ExtensionIndex],
			schema.Extension{Type: schema.ExtensionIndex, Name: name, Columns: columns})
	}
	return rows.Err()
}

func referentialAction(code string) string {
	switch code {
	case "r":
		return "RESTRICT"
	case "c":
		return "CASCADE"
	case "n":
		return "SET NULL"
	case "d":
		return "SET DEFAULT"
	default:
		return "NO ACTION"
	}
}

// checkCondition extracts the bare condition from pg_get_constraintdef
// output like "CHECK ((price > 0))".
func checkCondition(definition string) string {
	condition := strings.TrimSpace(strings.TrimPrefix(definition, "CHECK"))
	for strings.HasPrefix(condition, "(") && strings.HasSuffix(condition, ")") && balancedParens(condition[1:len(condition)-1]) {
		condition = strings.TrimSpace(condition[1 : len(condition)-1])
	}
	return condition
}

func balancedParens(s string) bool {
	depth := 0
	for _, r := range s {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
			if depth < 0 {
				return false
			}
		}
	}
	return depth == 0
}
