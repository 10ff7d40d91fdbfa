package database

import (
	"fmt"

	"github.com/mitar/pg-differ/schema"
)

// SyncResult reports what an execution run actually did.
type SyncResult struct {
	// Statements lists every executed statement in execution order,
	// excluding the transaction wrapper.
	Statements []string

	// InsertedSeeds is the summed affected-row count of all executed
	// seed inserts.
	InsertedSeeds int64
}

// RunOperations executes an ordered operation list strictly
// sequentially on one connection. The run is wrapped in BEGIN/COMMIT
// unless transaction wrapping is disabled; the first failure triggers
// ROLLBACK and surfaces the original error. An empty list opens no
// transaction at all.
func RunOperations(client Client, ops []schema.ChangeOperation, transaction bool, logger Logger) (*SyncResult, error) {
	result := &SyncResult{}
	if len(ops) == 0 {
		logger.Println("-- Nothing is modified --")
		return result, nil
	}

	if transaction {
		if _, err := client.Query("BEGIN"); err != nil {
			return nil, err
		}
	}

	for _, op := range ops {
		logger.Printf("%s;\n", op.SQL)
		results, err := client.Query(op.SQL)
		if err != nil {
			if transaction {
				// Keep the statement error, not the rollback's.
				client.Query("ROLLBACK")
			}
			return nil, fmt.Errorf("executing %q: %w", op.SQL, err)
		}
		result.Statements = append(result.Statements, op.SQL)
		if op.Category == schema.CategorySeeds {
			for _, r := range results {
				result.InsertedSeeds += r.RowCount
			}
		}
	}

	if transaction {
		if _, err := client.Query("COMMIT"); err != nil {
			client.Query("ROLLBACK")
			return nil, err
		}
	}

	return result, nil
}
