package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"

	"github.com/mitar/pg-differ/schema"
)

// schemaFile is the on-disk YAML shape of a set of definitions.
type schemaFile struct {
	Sequences []sequenceEntry `yaml:"sequences"`
	Tables    []tableEntry    `yaml:"tables"`
}

type sequenceEntry struct {
	Name      string `yaml:"name"`
	Start     *int64 `yaml:"start"`
	Min       *int64 `yaml:"min"`
	Max       *int64 `yaml:"max"`
	Increment *int64 `yaml:"increment"`
	Cycle     *bool  `yaml:"cycle"`
	Force     bool   `yaml:"force"`
}

type tableEntry struct {
	Name        string            `yaml:"name"`
	Columns     []columnEntry     `yaml:"columns"`
	Indexes     []indexEntry      `yaml:"indexes"`
	Unique      []indexEntry      `yaml:"unique"`
	ForeignKeys []foreignKeyEntry `yaml:"foreignKeys"`
	PrimaryKeys []indexEntry      `yaml:"primaryKeys"`
	Checks      []checkEntry      `yaml:"checks"`
	Seeds       []map[string]any  `yaml:"seeds"`
	Cleanable   map[string]bool   `yaml:"cleanable"`
	Force       bool              `yaml:"force"`
}

type columnEntry struct {
	Name          string              `yaml:"name"`
	Type          string              `yaml:"type"`
	Nullable      *bool               `yaml:"nullable"`
	Default       any                 `yaml:"default"`
	AutoIncrement *autoIncrementEntry `yaml:"autoIncrement"`
	PrimaryKey    bool                `yaml:"primaryKey"`
	Unique        bool                `yaml:"unique"`
	FormerNames   []string            `yaml:"formerNames"`
}

// autoIncrementEntry accepts either a plain boolean or an options map.
type autoIncrementEntry struct {
	enabled bool
	options schema.AutoIncrementProperties
}

func (e *autoIncrementEntry) UnmarshalYAML(unmarshal func(any) error) error {
	var flag bool
	if err := unmarshal(&flag); err == nil {
		e.enabled = flag
		return nil
	}
	var options struct {
		Name      string `yaml:"name"`
		Start     *int64 `yaml:"start"`
		Min       *int64 `yaml:"min"`
		Max       *int64 `yaml:"max"`
		Increment *int64 `yaml:"increment"`
		Cycle     *bool  `yaml:"cycle"`
	}
	if err := unmarshal(&options); err != nil {
		return err
	}
	e.enabled = true
	e.options = schema.AutoIncrementProperties{
		Name:      options.Name,
		Start:     options.Start,
		Min:       options.Min,
		Max:       options.Max,
		Increment: options.Increment,
		Cycle:     options.Cycle,
	}
	return nil
}

type indexEntry struct {
	Columns []string `yaml:"columns"`
}

type foreignKeyEntry struct {
	Columns    []string `yaml:"columns"`
	References struct {
		Table   string   `yaml:"table"`
		Columns []string `yaml:"columns"`
	} `yaml:"references"`
	OnDelete string `yaml:"onDelete"`
	OnUpdate string `yaml:"onUpdate"`
}

type checkEntry struct {
	Condition string `yaml:"condition"`
}

type definitions struct {
	Sequences []schema.SequenceProperties
	Tables    []schema.TableProperties
}

func loadSchemaFile(path string) (*definitions, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var file schemaFile
	if err := yaml.UnmarshalStrict(buf, &file); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	loaded := &definitions{}
	for _, entry := range file.Sequences {
		loaded.Sequences = append(loaded.Sequences, schema.SequenceProperties{
			Name:      entry.Name,
			Start:     entry.Start,
			Min:       entry.Min,
			Max:       entry.Max,
			Increment: entry.Increment,
			Cycle:     entry.Cycle,
			Force:     entry.Force,
		})
	}
	for _, entry := range file.Tables {
		loaded.Tables = append(loaded.Tables, tableProperties(entry))
	}
	return loaded, nil
}

func tableProperties(entry tableEntry) schema.TableProperties {
	properties := schema.TableProperties{
		Name:      entry.Name,
		Cleanable: entry.Cleanable,
		Force:     entry.Force,
	}
	for _, column := range entry.Columns {
		cp := schema.ColumnProperties{
			Name:        column.Name,
			Type:        column.Type,
			Nullable:    column.Nullable,
			Default:     normalizeYAMLValue(column.Default),
			PrimaryKey:  column.PrimaryKey,
			Unique:      column.Unique,
			FormerNames: column.FormerNames,
		}
		if column.AutoIncrement != nil && column.AutoIncrement.enabled {
			options := column.AutoIncrement.options
			cp.AutoIncrement = &options
		}
		properties.Columns = append(properties.Columns, cp)
	}
	for _, index := range entry.Indexes {
		properties.Indexes = append(properties.Indexes, schema.IndexProperties{Columns: index.Columns})
	}
	for _, unique := range entry.Unique {
		properties.Unique = append(properties.Unique, schema.IndexProperties{Columns: unique.Columns})
	}
	for _, pk := range entry.PrimaryKeys {
		properties.PrimaryKeys = append(properties.PrimaryKeys, schema.IndexProperties{Columns: pk.Columns})
	}
	for _, fk := range entry.ForeignKeys {
		properties.ForeignKeys = append(properties.ForeignKeys, schema.ForeignKeyProperties{
			Columns: fk.Columns,
			References: schema.ForeignKeyReference{
				Table:   fk.References.Table,
				Columns: fk.References.Columns,
			},
			OnDelete: fk.OnDelete,
			OnUpdate: fk.OnUpdate,
		})
	}
	for _, check := range entry.Checks {
		properties.Checks = append(properties.Checks, schema.CheckProperties{Condition: check.Condition})
	}
	for _, seed := range entry.Seeds {
		row := make(map[string]any, len(seed))
		for column, value := range seed {
			row[column] = normalizeYAMLValue(value)
		}
		properties.Seeds = append(properties.Seeds, row)
	}
	return properties
}

// normalizeYAMLValue rewrites yaml.v2's map[interface{}]interface{}
// into map[string]any so values survive JSON encoding.
func normalizeYAMLValue(value any) any {
	switch value := value.(type) {
	case map[any]any:
		normalized := make(map[string]any, len(value))
		for k, v := range value {
			normalized[fmt.Sprint(k)] = normalizeYAMLValue(v)
		}
		return normalized
	case []any:
		normalized := make([]any, len(value))
		for i, v := range value {
			normalized[i] = normalizeYAMLValue(v)
		}
		return normalized
	default:
		return value
	}
}
