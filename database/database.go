// Package database holds the database access layer: the client
// abstraction, the transactional executor, connection retry and the
// structure-reader capability. It never constructs DDL.
package database

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/mitar/pg-differ/schema"
)

// Config describes how to reach the target database.
type Config struct {
	DbName   string
	User     string
	Password string
	Host     string
	Port     int
	SslMode  string
}

// Result is the outcome of one executed statement.
type Result struct {
	// Rows holds the textual row data of read queries.
	Rows []map[string]string

	// RowCount is the number of rows returned or affected.
	RowCount int64
}

// Client is a connected database session. Query may return more than
// one result when the statement text expands to several statements;
// callers aggregating row counts must sum across the slice. The session
// is exclusively owned by one sync call at a time.
type Client interface {
	Connect() error
	Query(query string, args ...any) ([]Result, error)
	Close() error
}

// StructureReader supplies read-only snapshots of live tables and
// sequences. Absence is reported as a nil snapshot, not an error. The
// concrete introspection mechanism is swappable; database/postgres has
// the default one.
type StructureReader interface {
	ReadTable(name string) (*schema.TableStructure, error)
	ReadSequence(name string) (*schema.SequenceStructure, error)
}

// ServerVersion is the server-reported major.minor version.
type ServerVersion struct {
	Major int
	Minor int
}

func (v ServerVersion) AtLeast(major, minor int) bool {
	if v.Major != major {
		return v.Major > major
	}
	return v.Minor >= minor
}

func (v ServerVersion) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// ParseServerVersion parses strings like "9.6.24", "14.2" or
// "16beta1" as reported by SHOW server_version.
func ParseServerVersion(raw string) (ServerVersion, error) {
	fields := strings.FieldsFunc(strings.TrimSpace(raw), func(r rune) bool {
		return r == '.' || r == ' '
	})
	if len(fields) == 0 {
		return ServerVersion{}, fmt.Errorf("unexpected server version %q", raw)
	}
	major, err := strconv.Atoi(leadingDigits(fields[0]))
	if err != nil {
		return ServerVersion{}, fmt.Errorf("unexpected server version %q: %w", raw, err)
	}
	version := ServerVersion{Major: major}
	if len(fields) > 1 {
		if minor, err := strconv.Atoi(leadingDigits(fields[1])); err == nil {
			version.Minor = minor
		}
	}
	return version, nil
}

func leadingDigits(s string) string {
	for i, r := range s {
		if r < '0' || r > '9' {
			return s[:i]
		}
	}
	return s
}
