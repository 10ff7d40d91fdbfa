package schema

import "sort"

// extensionPriorities fixes the relative order of Extensions-category
// operations. Tags not listed here keep their original relative order
// after the listed ones.
var extensionPriorities = map[string]int{
	"drop foreignKey": 0,
	"drop primaryKey": 1,
	"drop unique":     2,
	"delete rows":     3,
	"add unique":      4,
}

// OrderOperations flattens per-entity differ output into the final
// execution list: operations are grouped by category in execution
// order, exact-duplicate statements are removed, and the Extensions
// category is stably sorted by tag priority. All other categories keep
// entity-registration order untouched.
func OrderOperations(ops []ChangeOperation) []ChangeOperation {
	byCategory := map[Category][]ChangeOperation{}
	seen := map[Category]map[string]bool{}

	for _, op := range ops {
		if seen[op.Category] == nil {
			seen[op.Category] = map[string]bool{}
		}
		if seen[op.Category][op.SQL] {
			continue
		}
		seen[op.Category][op.SQL] = true
		byCategory[op.Category] = append(byCategory[op.Category], op)
	}

	sortExtensionOperations(byCategory[CategoryExtensions])

	var ordered []ChangeOperation
	for _, category := range Categories {
		ordered = append(ordered, byCategory[category]...)
	}
	return ordered
}

func sortExtensionOperations(ops []ChangeOperation) {
	unlisted := len(extensionPriorities)
	priority := func(op ChangeOperation) int {
		if p, ok := extensionPriorities[op.Operation]; ok {
			return p
		}
		return unlisted
	}
	sort.SliceStable(ops, func(i, j int) bool {
		return priority(ops[i]) < priority(ops[j])
	})
}
