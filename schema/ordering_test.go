package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderOperationsCategoryOrder(t *testing.T) {
	ops := []ChangeOperation{
		{Category: CategorySeeds, Operation: "insert seed", SQL: "INSERT 1"},
		{Category: CategoryExtensions, Operation: "add index", SQL: "CREATE INDEX i"},
		{Category: CategorySequenceValues, Operation: "actualize sequence", SQL: "SELECT setval(...)"},
		{Category: CategoryTables, Operation: "create table", SQL: "CREATE TABLE t"},
		{Category: CategorySequences, Operation: "create sequence", SQL: "CREATE SEQUENCE s"},
	}

	ordered := OrderOperations(ops)
	require.Len(t, ordered, 5)
	assert.Equal(t, []Category{
		CategorySequences,
		CategoryTables,
		CategoryExtensions,
		CategorySeeds,
		CategorySequenceValues,
	}, categories(ordered))
}

func TestOrderOperationsDeduplicates(t *testing.T) {
	ops := []ChangeOperation{
		{Category: CategorySequences, Operation: "create sequence", SQL: "CREATE SEQUENCE s"},
		{Category: CategorySequences, Operation: "create sequence", SQL: "CREATE SEQUENCE s"},
		{Category: CategoryTables, Operation: "create table", SQL: "CREATE SEQUENCE s"},
	}

	ordered := OrderOperations(ops)
	// Duplicates collapse within a category only.
	require.Len(t, ordered, 2)
	assert.Equal(t, CategorySequences, ordered[0].Category)
	assert.Equal(t, CategoryTables, ordered[1].Category)
}

func TestOrderOperationsExtensionPriorities(t *testing.T) {
	ops := []ChangeOperation{
		{Category: CategoryExtensions, Operation: "add unique", SQL: "u1"},
		{Category: CategoryExtensions, Operation: "add index", SQL: "i1"},
		{Category: CategoryExtensions, Operation: "drop foreignKey", SQL: "f1"},
		{Category: CategoryExtensions, Operation: "add unique", SQL: "u2"},
		{Category: CategoryExtensions, Operation: "drop primaryKey", SQL: "p1"},
		{Category: CategoryExtensions, Operation: "drop foreignKey", SQL: "f2"},
		{Category: CategoryExtensions, Operation: "drop unique", SQL: "du1"},
	}

	ordered := OrderOperations(ops)
	tags := make([]string, len(ordered))
	for i, op := range ordered {
		tags[i] = op.Operation
	}
	assert.Equal(t, []string{
		"drop foreignKey",
		"drop foreignKey",
		"drop primaryKey",
		"drop unique",
		"add unique",
		"add unique",
	}, tags[:6])
	// The stable sort keeps same-tag operations in input order, and
	// unlisted tags sink below every listed one.
	assert.Equal(t, "f1", ordered[0].SQL)
	assert.Equal(t, "f2", ordered[1].SQL)
	assert.Equal(t, "u1", ordered[4].SQL)
	assert.Equal(t, "u2", ordered[5].SQL)
	assert.Equal(t, "add index", ordered[6].Operation)
}

func categories(ops []ChangeOperation) []Category {
	out := make([]Category, len(ops))
	for i, op := range ops {
		out[i] = op.Category
	}
	return out
}
