package schema

import (
	"fmt"
	"strconv"
	"strings"
)

// ValueReader runs read-only correctness-check queries during diff
// computation. It must never be used to mutate database state.
type ValueReader interface {
	ReadValue(query string) (string, error)
}

// sequenceAttributeNames fixes the clause order of generated CREATE
// and ALTER SEQUENCE statements.
var sequenceAttributeNames = []string{"start", "increment", "min", "max", "cycle"}

// DiffSequence compares a desired sequence against its observed
// structure and returns the operations needed to reconcile them. The
// reader is only consulted when min or max changed, to decide whether
// the sequence must also be restarted into the new bounds.
func DiffSequence(desired *Sequence, observed *SequenceStructure, reader ValueReader) ([]ChangeOperation, error) {
	if desired.Force {
		return []ChangeOperation{
			{
				Category:  CategorySequences,
				Operation: "drop sequence",
				SQL:       fmt.Sprintf("DROP SEQUENCE IF EXISTS %s CASCADE", desired.Name),
			},
			createSequenceOperation(desired),
		}, nil
	}
	if observed == nil {
		return []ChangeOperation{createSequenceOperation(desired)}, nil
	}

	changed := changedSequenceAttributes(desired.Attributes, observed.Attributes)
	if len(changed) == 0 {
		return nil, nil
	}

	var current *int64
	if changed["min"] || changed["max"] {
		inRange, err := currentValueInRange(desired, reader)
		if err != nil {
			return nil, err
		}
		if !inRange {
			// A cleared minimum still leaves the sequence with an
			// effective minvalue of 1, which a restart must respect.
			restart := desired.Attributes.Min
			if restart == 0 {
				restart = 1
			}
			current = &restart
		}
	}

	var clauses []string
	for _, name := range sequenceAttributeNames {
		if changed[name] {
			clauses = append(clauses, sequenceAttributeClause(name, desired.Attributes))
		}
	}
	if current != nil {
		clauses = append(clauses, fmt.Sprintf("restart with %d", *current))
	}

	return []ChangeOperation{{
		Category:  CategorySequences,
		Operation: "alter sequence",
		SQL:       fmt.Sprintf("ALTER SEQUENCE %s %s", desired.Name, strings.Join(clauses, " ")),
	}}, nil
}

func createSequenceOperation(desired *Sequence) ChangeOperation {
	var clauses []string
	for _, name := range sequenceAttributeNames {
		clauses = append(clauses, sequenceAttributeClause(name, desired.Attributes))
	}
	return ChangeOperation{
		Category:  CategorySequences,
		Operation: "create sequence",
		SQL:       fmt.Sprintf("CREATE SEQUENCE %s %s", desired.Name, strings.Join(clauses, " ")),
	}
}

// changedSequenceAttributes string-compares each attribute, matching
// how the catalog reports them.
func changedSequenceAttributes(desired, observed SequenceAttributes) map[string]bool {
	changed := map[string]bool{}
	compare := func(name string, a, b int64) {
		if strconv.FormatInt(a, 10) != strconv.FormatInt(b, 10) {
			changed[name] = true
		}
	}
	compare("start", desired.Start, observed.Start)
	compare("increment", desired.Increment, observed.Increment)
	compare("min", desired.Min, observed.Min)
	compare("max", desired.Max, observed.Max)
	if desired.Cycle != observed.Cycle {
		changed["cycle"] = true
	}
	return changed
}

// sequenceAttributeClause renders one attribute. A zero value means the
// attribute was cleared; increment has no "no" form and falls back to
// the system default of 1.
func sequenceAttributeClause(name string, a SequenceAttributes) string {
	switch name {
	case "start":
		if a.Start == 0 {
			return "no start"
		}
		return fmt.Sprintf("start %d", a.Start)
	case "increment":
		if a.Increment == 0 {
			return "increment 1"
		}
		return fmt.Sprintf("increment %d", a.Increment)
	case "min":
		if a.Min == 0 {
			return "no minvalue"
		}
		return fmt.Sprintf("minvalue %d", a.Min)
	case "max":
		if a.Max == 0 {
			return "no maxvalue"
		}
		return fmt.Sprintf("maxvalue %d", a.Max)
	case "cycle":
		if a.Cycle {
			return "cycle"
		}
		return "no cycle"
	default:
		return ""
	}
}

func currentValueInRange(desired *Sequence, reader ValueReader) (bool, error) {
	raw, err := reader.ReadValue(fmt.Sprintf("SELECT last_value FROM %s", desired.Name))
	if err != nil {
		return false, fmt.Errorf("checking current value of sequence %s: %w", desired.Name, err)
	}
	last, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return false, fmt.Errorf("unexpected current value %q for sequence %s: %w", raw, desired.Name, err)
	}
	if desired.Attributes.Min != 0 && last < desired.Attributes.Min {
		return false, nil
	}
	if desired.Attributes.Max != 0 && last > desired.Attributes.Max {
		return false, nil
	}
	return true, nil
}
