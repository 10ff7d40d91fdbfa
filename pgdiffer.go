// Package pgdiffer reconciles a live PostgreSQL database with
// declarative table and sequence definitions. Definitions are
// registered through Define, then Sync computes the minimal ordered
// statement list and executes it transactionally.
package pgdiffer

import (
	"fmt"
	"log/slog"

	"github.com/mitar/pg-differ/database"
	"github.com/mitar/pg-differ/schema"
	"github.com/mitar/pg-differ/util"
)

// ObjectKind is the closed set of entity kinds the registry accepts.
type ObjectKind int

const (
	KindTable ObjectKind = iota
	KindSequence
)

func (k ObjectKind) String() string {
	switch k {
	case KindTable:
		return "table"
	case KindSequence:
		return "sequence"
	default:
		return "unknown"
	}
}

// Options configures one Differ instance. Client and Reader are
// required; database/postgres has the default implementations.
type Options struct {
	Client database.Client
	Reader database.StructureReader
	Logger database.Logger
	Retry  database.RetryPolicy

	// DefaultSchema is substituted into unqualified names ("public"
	// when empty).
	DefaultSchema string

	// DiffConcurrency bounds the diff-phase fan-out; <= 0 means no
	// limit.
	DiffConcurrency int
}

// SyncOptions controls one Sync call.
type SyncOptions struct {
	// WithoutTransaction disables the BEGIN/COMMIT wrapper.
	WithoutTransaction bool

	// DryRun computes and returns the statement list without executing.
	DryRun bool
}

// ReadOptions names the object to read.
type ReadOptions struct {
	Name string
}

// Differ owns one registry of definitions and one database session.
// Independent instances never interfere; there is no process-wide
// state.
type Differ struct {
	client        database.Client
	reader        database.StructureReader
	logger        database.Logger
	retry         database.RetryPolicy
	defaultSchema string
	concurrency   int

	tables    []*schema.Table
	sequences []*schema.Sequence
	names     map[string]bool
}

// New creates a Differ. It fails when the client or reader is missing.
func New(options Options) (*Differ, error) {
	if options.Client == nil {
		return nil, fmt.Errorf("pgdiffer: a database client is required")
	}
	if options.Reader == nil {
		return nil, fmt.Errorf("pgdiffer: a structure reader is required")
	}
	logger := options.Logger
	if logger == nil {
		logger = database.StdoutLogger{}
	}
	defaultSchema := options.DefaultSchema
	if defaultSchema == "" {
		defaultSchema = schema.DefaultSchema
	}
	return &Differ{
		client:        options.Client,
		reader:        options.Reader,
		logger:        logger,
		retry:         options.Retry,
		defaultSchema: defaultSchema,
		concurrency:   options.DiffConcurrency,
		names:         map[string]bool{},
	}, nil
}

// Define validates and registers one definition. Properties must be a
// schema.TableProperties for KindTable and a schema.SequenceProperties
// for KindSequence; anything else fails fast without partial
// registration.
func (d *Differ) Define(kind ObjectKind, properties any) error {
	switch kind {
	case KindTable:
		p, ok := properties.(schema.TableProperties)
		if !ok {
			return &schema.ValidationError{Path: "properties", Message: fmt.Sprintf("expected schema.TableProperties, got %T", properties)}
		}
		table, err := schema.NormalizeTable(p, d.defaultSchema)
		if err != nil {
			return err
		}
		if err := d.claimName(table.Name); err != nil {
			return err
		}
		d.tables = append(d.tables, table)
		return nil
	case KindSequence:
		p, ok := properties.(schema.SequenceProperties)
		if !ok {
			return &schema.ValidationError{Path: "properties", Message: fmt.Sprintf("expected schema.SequenceProperties, got %T", properties)}
		}
		sequence, err := schema.NormalizeSequence(p, d.defaultSchema)
		if err != nil {
			return err
		}
		if err := d.claimName(sequence.Name); err != nil {
			return err
		}
		d.sequences = append(d.sequences, sequence)
		return nil
	default:
		return &schema.ValidationError{Path: "kind", Message: fmt.Sprintf("unknown object kind %d", kind)}
	}
}

// DefineTable registers a table definition.
//
// Deprecated: use Define(KindTable, properties).
func (d *Differ) DefineTable(properties schema.TableProperties) error {
	return d.Define(KindTable, properties)
}

// DefineSequence registers a sequence definition.
//
// Deprecated: use Define(KindSequence, properties).
func (d *Differ) DefineSequence(properties schema.SequenceProperties) error {
	return d.Define(KindSequence, properties)
}

func (d *Differ) claimName(name string) error {
	if d.names[name] {
		return &schema.ValidationError{Path: "name", Message: fmt.Sprintf("%q is already defined", name)}
	}
	d.names[name] = true
	return nil
}

// Sync diffs every registered definition against the live structure
// and executes the resulting statement list. Diff computation fans out
// concurrently and only reads; execution is strictly sequential on the
// same connection. The executed statements are reported in order.
func (d *Differ) Sync(options SyncOptions) (*database.SyncResult, error) {
	if err := database.Connect(d.client, d.retry, d.logger); err != nil {
		return nil, err
	}

	ops, err := d.computeOperations()
	if err != nil {
		return nil, err
	}
	ordered := schema.OrderOperations(ops)

	if options.DryRun {
		return &database.SyncResult{
			Statements: util.TransformSlice(ordered, func(op schema.ChangeOperation) string {
				return op.SQL
			}),
		}, nil
	}

	result, err := database.RunOperations(d.client, ordered, !options.WithoutTransaction, d.logger)
	if err != nil {
		d.client.Close()
		return nil, err
	}
	if result.InsertedSeeds > 0 {
		d.logger.Printf("-- Inserted %d seed rows --\n", result.InsertedSeeds)
	}
	return result, nil
}

// Read returns the live structure snapshot of one object, or nil when
// it does not exist.
func (d *Differ) Read(kind ObjectKind, options ReadOptions) (any, error) {
	if options.Name == "" {
		return nil, &schema.ValidationError{Path: "name", Message: "object name is required"}
	}
	if err := database.Connect(d.client, d.retry, d.logger); err != nil {
		return nil, err
	}
	name := schema.QualifyName(options.Name, d.defaultSchema)
	switch kind {
	case KindTable:
		return d.reader.ReadTable(name)
	case KindSequence:
		return d.reader.ReadSequence(name)
	default:
		return nil, &schema.ValidationError{Path: "kind", Message: fmt.Sprintf("unknown object kind %d", kind)}
	}
}

// computeOperations is the fan-out/fan-in diff phase: every entity
// diffs concurrently, each issuing only reads, and results are
// collected in registration order before anything executes.
func (d *Differ) computeOperations() ([]schema.ChangeOperation, error) {
	config := schema.TableDiffConfig{DefaultSchema: d.defaultSchema}
	if d.anySeeds() {
		version, err := d.serverVersion()
		if err != nil {
			return nil, err
		}
		config.SeedsEnabled = version.AtLeast(9, 5)
		if !config.SeedsEnabled {
			slog.Warn("seed synchronization requires PostgreSQL 9.5 or newer, skipping seeds",
				"server_version", version.String())
		}
	}

	reader := clientValueReader{client: d.client}
	var tasks []func() ([]schema.ChangeOperation, error)

	for _, sequence := range d.allSequences() {
		sequence := sequence
		tasks = append(tasks, func() ([]schema.ChangeOperation, error) {
			observed, err := d.reader.ReadSequence(sequence.Name)
			if err != nil {
				return nil, err
			}
			return schema.DiffSequence(sequence, observed, reader)
		})
	}
	for _, table := range d.tables {
		table := table
		tasks = append(tasks, func() ([]schema.ChangeOperation, error) {
			observed, err := d.reader.ReadTable(table.Name)
			if err != nil {
				return nil, err
			}
			return schema.DiffTable(table, observed, config), nil
		})
	}

	results, err := database.ConcurrentMap(tasks, d.concurrency, func(task func() ([]schema.ChangeOperation, error)) ([]schema.ChangeOperation, error) {
		return task()
	})
	if err != nil {
		return nil, err
	}

	var ops []schema.ChangeOperation
	for _, entityOps := range results {
		ops = append(ops, entityOps...)
	}
	return ops, nil
}

// allSequences returns registered sequences followed by the backing
// sequences derived from auto-increment columns, skipping any name the
// caller registered explicitly.
func (d *Differ) allSequences() []*schema.Sequence {
	sequences := make([]*schema.Sequence, len(d.sequences))
	copy(sequences, d.sequences)
	for _, table := range d.tables {
		for i := range table.Columns {
			column := &table.Columns[i]
			if column.AutoIncrement == nil {
				continue
			}
			backing := schema.BackingSequence(table, column, d.defaultSchema)
			if !d.names[backing.Name] {
				sequences = append(sequences, backing)
			}
		}
	}
	return sequences
}

func (d *Differ) anySeeds() bool {
	for _, table := range d.tables {
		if len(table.Seeds) > 0 {
			return true
		}
	}
	return false
}

func (d *Differ) serverVersion() (database.ServerVersion, error) {
	results, err := d.client.Query("SHOW server_version")
	if err != nil {
		return database.ServerVersion{}, err
	}
	if len(results) == 0 || len(results[0].Rows) == 0 {
		return database.ServerVersion{}, fmt.Errorf("server did not report a version")
	}
	return database.ParseServerVersion(results[0].Rows[0]["server_version"])
}

// clientValueReader adapts the client to the differ's read-only
// single-value queries.
type clientValueReader struct {
	client database.Client
}

func (r clientValueReader) ReadValue(query string) (string, error) {
	results, err := r.client.Query(query)
	if err != nil {
		return "", err
	}
	if len(results) == 0 || len(results[0].Rows) == 0 {
		return "", fmt.Errorf("query %q returned no rows", query)
	}
	for _, value := range results[0].Rows[0] {
		return value, nil
	}
	return "", fmt.Errorf("query %q returned no columns", query)
}
