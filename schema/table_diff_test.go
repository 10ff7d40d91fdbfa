package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testDiffConfig = TableDiffConfig{DefaultSchema: "public", SeedsEnabled: true}

func normalizedTable(t *testing.T, properties TableProperties) *Table {
	t.Helper()
	table, err := NormalizeTable(properties, "public")
	require.NoError(t, err)
	return table
}

func statements(ops []ChangeOperation) []string {
	out := make([]string, len(ops))
	for i, op := range ops {
		out[i] = op.SQL
	}
	return out
}

func TestDiffTableCreate(t *testing.T) {
	table := normalizedTable(t, TableProperties{
		Name: "users",
		Columns: []ColumnProperties{
			{Name: "id", Type: "integer", AutoIncrement: &AutoIncrementProperties{}, PrimaryKey: true},
			{Name: "name", Type: "varchar(255)"},
		},
	})

	ops := DiffTable(table, nil, testDiffConfig)
	require.NotEmpty(t, ops)
	assert.Equal(t, "create table", ops[0].Operation)
	assert.Equal(t, "CREATE TABLE public.users (\n"+
		"    id int4 NOT NULL DEFAULT nextval('public.users_id_seq'::regclass),\n"+
		"    name varchar(255)\n"+
		")", ops[0].SQL)
	assert.Equal(t, "add primaryKey", ops[1].Operation)
	assert.Equal(t, "ALTER TABLE public.users ADD PRIMARY KEY (id)", ops[1].SQL)
}

func TestDiffTableForceRecreates(t *testing.T) {
	table := normalizedTable(t, TableProperties{
		Name:    "users",
		Columns: []ColumnProperties{{Name: "id", Type: "integer"}},
		Force:   true,
	})
	observed := &TableStructure{
		Name:       "public.users",
		Columns:    []ColumnStructure{{Name: "id", Type: "integer", Nullable: true}},
		Extensions: map[ExtensionKind][]Extension{},
	}

	ops := DiffTable(table, observed, testDiffConfig)
	require.Len(t, ops, 2)
	assert.Equal(t, "DROP TABLE IF EXISTS public.users CASCADE", ops[0].SQL)
	assert.Equal(t, "create table", ops[1].Operation)
}

func TestDiffTableUnchangedEmitsNothing(t *testing.T) {
	table := normalizedTable(t, TableProperties{
		Name: "users",
		Columns: []ColumnProperties{
			{Name: "id", Type: "integer", AutoIncrement: &AutoIncrementProperties{}},
			{Name: "name", Type: "varchar(255)"},
		},
	})
	observed := &TableStructure{
		Name: "public.users",
		Columns: []ColumnStructure{
			{Name: "id", Type: "integer", Nullable: false, Default: "nextval('users_id_seq'::regclass)"},
			{Name: "name", Type: "character varying(255)", Nullable: true},
		},
		Extensions: map[ExtensionKind][]Extension{},
	}

	ops := DiffTable(table, observed, testDiffConfig)
	assert.Empty(t, ops)
}

func TestDiffTableColumnChanges(t *testing.T) {
	table := normalizedTable(t, TableProperties{
		Name: "users",
		Columns: []ColumnProperties{
			{Name: "id", Type: "integer"},
			{Name: "email", Type: "varchar(255)", Nullable: boolp(false)},
			{Name: "role", Type: "varchar(40)", Default: "member"},
		},
	})
	observed := &TableStructure{
		Name: "public.users",
		Columns: []ColumnStructure{
			{Name: "id", Type: "integer", Nullable: false},
			{Name: "role", Type: "character varying(20)", Nullable: true, Default: "'guest'::character varying"},
			{Name: "legacy", Type: "text", Nullable: true},
		},
		Extensions: map[ExtensionKind][]Extension{},
	}

	ops := DiffTable(table, observed, testDiffConfig)
	sqls := statements(ops)
	assert.Contains(t, sqls, "ALTER TABLE public.users ALTER COLUMN id DROP NOT NULL")
	assert.Contains(t, sqls, "ALTER TABLE public.users ADD COLUMN email varchar(255) NOT NULL")
	assert.Contains(t, sqls, "ALTER TABLE public.users ALTER COLUMN role TYPE varchar(40)")
	assert.Contains(t, sqls, "ALTER TABLE public.users ALTER COLUMN role SET DEFAULT 'member'")
	assert.Contains(t, sqls, "ALTER TABLE public.users DROP COLUMN legacy")
}

func TestDiffTableUnchangedDefaultNotReapplied(t *testing.T) {
	table := normalizedTable(t, TableProperties{
		Name: "users",
		Columns: []ColumnProperties{
			{Name: "role", Type: "varchar(40)", Default: "member"},
		},
	})
	observed := &TableStructure{
		Name: "public.users",
		Columns: []ColumnStructure{
			{Name: "role", Type: "character varying(40)", Nullable: true, Default: "'member'::character varying"},
		},
		Extensions: map[ExtensionKind][]Extension{},
	}

	ops := DiffTable(table, observed, testDiffConfig)
	assert.Empty(t, ops)
}

func TestDiffTableRenameViaFormerNames(t *testing.T) {
	table := normalizedTable(t, TableProperties{
		Name: "users",
		Columns: []ColumnProperties{
			{Name: "full_name", Type: "varchar(255)", FormerNames: []string{"name"}},
		},
	})
	observed := &TableStructure{
		Name: "public.users",
		Columns: []ColumnStructure{
			{Name: "name", Type: "character varying(255)", Nullable: true},
		},
		Extensions: map[ExtensionKind][]Extension{},
	}

	ops := DiffTable(table, observed, testDiffConfig)
	sqls := statements(ops)
	assert.Contains(t, sqls, "ALTER TABLE public.users RENAME COLUMN name TO full_name")
	assert.NotContains(t, sqls, "ALTER TABLE public.users DROP COLUMN name")
}

func TestDiffTableRenameWithChanges(t *testing.T) {
	table := normalizedTable(t, TableProperties{
		Name: "users",
		Columns: []ColumnProperties{
			{Name: "full_name", Type: "varchar(500)", Nullable: boolp(false), FormerNames: []string{"name"}},
		},
	})
	observed := &TableStructure{
		Name: "public.users",
		Columns: []ColumnStructure{
			{Name: "name", Type: "character varying(255)", Nullable: true},
		},
		Extensions: map[ExtensionKind][]Extension{},
	}

	ops := DiffTable(table, observed, testDiffConfig)
	sqls := statements(ops)
	// The rename runs first, so every follow-up targets the new name.
	assert.Equal(t, "ALTER TABLE public.users RENAME COLUMN name TO full_name", sqls[0])
	assert.Contains(t, sqls, "ALTER TABLE public.users ALTER COLUMN full_name TYPE varchar(500)")
	assert.Contains(t, sqls, "ALTER TABLE public.users ALTER COLUMN full_name SET NOT NULL")
	for _, sql := range sqls[1:] {
		assert.NotContains(t, sql, "COLUMN name")
	}
}

func TestDiffTableBackslashDefaultNotReapplied(t *testing.T) {
	table := normalizedTable(t, TableProperties{
		Name: "paths",
		Columns: []ColumnProperties{
			{Name: "prefix", Type: "varchar(100)", Default: `C:\data`},
		},
	})
	observed := &TableStructure{
		Name: "public.paths",
		Columns: []ColumnStructure{
			{Name: "prefix", Type: "character varying(100)", Nullable: true, Default: `'C:\data'::character varying`},
		},
		Extensions: map[ExtensionKind][]Extension{},
	}

	ops := DiffTable(table, observed, testDiffConfig)
	assert.Empty(t, ops)
}

func TestDiffTableExtensionAddAndCleanup(t *testing.T) {
	table := normalizedTable(t, TableProperties{
		Name: "orders",
		Columns: []ColumnProperties{
			{Name: "id", Type: "integer", PrimaryKey: true},
			{Name: "user_id", Type: "integer"},
		},
		ForeignKeys: []ForeignKeyProperties{{
			Columns:    []string{"user_id"},
			References: ForeignKeyReference{Table: "users", Columns: []string{"id"}},
			OnDelete:   "cascade",
		}},
	})
	observed := &TableStructure{
		Name: "public.orders",
		Columns: []ColumnStructure{
			{Name: "id", Type: "integer", Nullable: false},
			{Name: "user_id", Type: "integer", Nullable: true},
		},
		Extensions: map[ExtensionKind][]Extension{
			ExtensionPrimaryKey: {
				{Type: ExtensionPrimaryKey, Columns: []string{"user_id"}, Name: "orders_pkey"},
			},
		},
	}

	ops := DiffTable(table, observed, testDiffConfig)
	sqls := statements(ops)
	assert.Contains(t, sqls, "ALTER TABLE public.orders ADD PRIMARY KEY (id)")
	assert.Contains(t, sqls,
		"ALTER TABLE public.orders ADD FOREIGN KEY (user_id) REFERENCES public.users (id) ON UPDATE NO ACTION ON DELETE CASCADE")
	// Primary keys are cleanable by default, so the stale one goes away.
	assert.Contains(t, sqls, "ALTER TABLE public.orders DROP CONSTRAINT orders_pkey")
}

func TestDiffTableCleanablePolicyBlocksDrops(t *testing.T) {
	table := normalizedTable(t, TableProperties{
		Name:    "orders",
		Columns: []ColumnProperties{{Name: "id", Type: "integer"}},
	})
	observed := &TableStructure{
		Name:    "public.orders",
		Columns: []ColumnStructure{{Name: "id", Type: "integer", Nullable: true}},
		Extensions: map[ExtensionKind][]Extension{
			ExtensionIndex: {
				{Type: ExtensionIndex, Columns: []string{"id"}, Name: "orders_id_idx"},
			},
		},
	}

	ops := DiffTable(table, observed, testDiffConfig)
	assert.Empty(t, ops)

	table.Cleanable[ExtensionIndex] = true
	ops = DiffTable(table, observed, testDiffConfig)
	sqls := statements(ops)
	assert.Contains(t, sqls, "DROP INDEX public.orders_id_idx")
}

func TestDiffTableExtensionOrdering(t *testing.T) {
	table := normalizedTable(t, TableProperties{
		Name: "t",
		Columns: []ColumnProperties{
			{Name: "a", Type: "integer"},
			{Name: "b", Type: "integer"},
		},
		Indexes:     []IndexProperties{{Columns: []string{"a"}}},
		Unique:      []IndexProperties{{Columns: []string{"a", "b"}}},
		PrimaryKeys: []IndexProperties{{Columns: []string{"a"}}},
	})

	ops := DiffTable(table, nil, testDiffConfig)
	var tags []string
	for _, op := range ops {
		if op.Category == CategoryExtensions {
			tags = append(tags, op.Operation)
		}
	}
	// Creation order is fixed: index before unique before primaryKey.
	assert.Equal(t, []string{"add index", "add unique", "add primaryKey"}, tags)
}

func TestDiffTableSeeds(t *testing.T) {
	table := normalizedTable(t, TableProperties{
		Name: "roles",
		Columns: []ColumnProperties{
			{Name: "id", Type: "integer"},
			{Name: "name", Type: "varchar(40)"},
		},
		Seeds: []map[string]any{
			{"id": 1, "name": "admin"},
			{"id": 2, "name": "member"},
		},
	})

	ops := DiffTable(table, nil, testDiffConfig)
	sqls := statements(ops)
	assert.Contains(t, sqls, "INSERT INTO public.roles (id, name) VALUES (1, 'admin') ON CONFLICT DO NOTHING")
	assert.Contains(t, sqls, "INSERT INTO public.roles (id, name) VALUES (2, 'member') ON CONFLICT DO NOTHING")

	gated := DiffTable(table, nil, TableDiffConfig{DefaultSchema: "public", SeedsEnabled: false})
	for _, op := range gated {
		assert.NotEqual(t, CategorySeeds, op.Category)
	}
}

func TestDiffTableSequenceValueActualization(t *testing.T) {
	table := normalizedTable(t, TableProperties{
		Name: "users",
		Columns: []ColumnProperties{
			{Name: "id", Type: "integer", AutoIncrement: &AutoIncrementProperties{}},
		},
	})

	ops := DiffTable(table, nil, testDiffConfig)
	last := ops[len(ops)-1]
	assert.Equal(t, CategorySequenceValues, last.Category)
	assert.Equal(t, "actualize sequence", last.Operation)
	assert.Equal(t,
		"SELECT setval('public.users_id_seq'::regclass, (SELECT GREATEST(COALESCE(MAX(id), 1), 1) FROM public.users))",
		last.SQL)
}

func TestDiffTableIdentityAttach(t *testing.T) {
	table := normalizedTable(t, TableProperties{
		Name: "users",
		Columns: []ColumnProperties{
			{Name: "id", Type: "integer", AutoIncrement: &AutoIncrementProperties{}},
		},
	})
	observed := &TableStructure{
		Name: "public.users",
		Columns: []ColumnStructure{
			{Name: "id", Type: "integer", Nullable: false},
		},
		Extensions: map[ExtensionKind][]Extension{},
	}

	ops := DiffTable(table, observed, testDiffConfig)
	sqls := statements(ops)
	assert.Contains(t, sqls, "ALTER SEQUENCE public.users_id_seq OWNED BY public.users.id")
	assert.Contains(t, sqls,
		"ALTER TABLE public.users ALTER COLUMN id SET DEFAULT nextval('public.users_id_seq'::regclass)")
}

func TestDiffTableIdentityDetach(t *testing.T) {
	table := normalizedTable(t, TableProperties{
		Name: "users",
		Columns: []ColumnProperties{
			{Name: "id", Type: "integer", Nullable: boolp(false)},
		},
	})
	observed := &TableStructure{
		Name: "public.users",
		Columns: []ColumnStructure{
			{Name: "id", Type: "integer", Nullable: false, Default: "nextval('users_id_seq'::regclass)"},
		},
		Extensions: map[ExtensionKind][]Extension{},
	}

	ops := DiffTable(table, observed, testDiffConfig)
	sqls := statements(ops)
	assert.Contains(t, sqls, "ALTER SEQUENCE public.users_id_seq OWNED BY NONE")
	assert.Contains(t, sqls, "ALTER TABLE public.users ALTER COLUMN id DROP DEFAULT")
}

func TestDiffTableIdentityDetachWithRename(t *testing.T) {
	table := normalizedTable(t, TableProperties{
		Name: "users",
		Columns: []ColumnProperties{
			{Name: "legacy_id", Type: "integer", Nullable: boolp(false), FormerNames: []string{"id"}},
		},
	})
	observed := &TableStructure{
		Name: "public.users",
		Columns: []ColumnStructure{
			{Name: "id", Type: "integer", Nullable: false, Default: "nextval('users_id_seq'::regclass)"},
		},
		Extensions: map[ExtensionKind][]Extension{},
	}

	ops := DiffTable(table, observed, testDiffConfig)
	sqls := statements(ops)
	// The detach happens on the same sync as the rename, not the next one.
	assert.Contains(t, sqls, "ALTER TABLE public.users RENAME COLUMN id TO legacy_id")
	assert.Contains(t, sqls, "ALTER SEQUENCE public.users_id_seq OWNED BY NONE")
	assert.Contains(t, sqls, "ALTER TABLE public.users ALTER COLUMN legacy_id DROP DEFAULT")
}
