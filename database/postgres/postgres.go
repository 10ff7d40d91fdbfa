// Package postgres implements the database client and the structure
// reader against a live PostgreSQL server.
package postgres

import (
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"strings"

	_ "github.com/lib/pq"

	"github.com/mitar/pg-differ/database"
)

// Client wraps one lib/pq connection behind the database.Client
// interface. One sync call owns the session exclusively.
type Client struct {
	config database.Config
	db     *sql.DB
}

func NewClient(config database.Config) *Client {
	return &Client{config: config}
}

func (c *Client) Connect() error {
	if c.db != nil {
		return nil
	}
	db, err := sql.Open("postgres", buildDSN(c.config))
	if err != nil {
		return err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return err
	}
	// One session: the executor depends on statement order and
	// transaction state staying on a single connection.
	db.SetMaxOpenConns(1)
	c.db = db
	return nil
}

// DB exposes the underlying handle for the structure reader.
func (c *Client) DB() *sql.DB {
	return c.db
}

func (c *Client) Close() error {
	if c.db == nil {
		return nil
	}
	err := c.db.Close()
	c.db = nil
	return err
}

func (c *Client) Query(query string, args ...any) ([]database.Result, error) {
	if c.db == nil {
		return nil, fmt.Errorf("client is not connected")
	}
	if isReadQuery(query) {
		result, err := c.readQuery(query, args...)
		if err != nil {
			return nil, err
		}
		return []database.Result{result}, nil
	}
	res, err := c.db.Exec(query, args...)
	if err != nil {
		return nil, err
	}
	count, err := res.RowsAffected()
	if err != nil {
		// Some DDL reports no row count; treat it as zero.
		count = 0
	}
	return []database.Result{{RowCount: count}}, nil
}

func (c *Client) readQuery(query string, args ...any) (database.Result, error) {
	rows, err := c.db.Query(query, args...)
	if err != nil {
		return database.Result{}, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return database.Result{}, err
	}

	result := database.Result{}
	for rows.Next() {
		values := make([]sql.NullString, len(columns))
		scans := make([]any, len(columns))
		for i := range values {
			scans[i] = &values[i]
		}
		if err := rows.Scan(scans...); err != nil {
			return database.Result{}, err
		}
		row := make(map[string]string, len(columns))
		for i, column := range columns {
			row[column] = values[i].String
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return database.Result{}, err
	}
	result.RowCount = int64(len(result.Rows))
	return result, nil
}

// ServerVersion reports the connected server's major.minor version.
func (c *Client) ServerVersion() (database.ServerVersion, error) {
	results, err := c.Query("SHOW server_version")
	if err != nil {
		return database.ServerVersion{}, err
	}
	if len(results) == 0 || len(results[0].Rows) == 0 {
		return database.ServerVersion{}, fmt.Errorf("server did not report a version")
	}
	return database.ParseServerVersion(results[0].Rows[0]["server_version"])
}

func isReadQuery(query string) bool {
	first := strings.ToUpper(strings.Fields(strings.TrimSpace(query))[0])
	switch first {
	case "SELECT", "SHOW", "WITH", "VALUES", "TABLE":
		return true
	default:
		return false
	}
}

func buildDSN(config database.Config) string {
	var options []string
	if config.SslMode != "" {
		options = append(options, fmt.Sprintf("sslmode=%s", config.SslMode))
	} else if sslmode, ok := os.LookupEnv("PGSSLMODE"); ok {
		options = append(options, fmt.Sprintf("sslmode=%s", sslmode))
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?%s",
		url.QueryEscape(config.User), url.QueryEscape(config.Password),
		config.Host, config.Port, config.DbName, strings.Join(options, "&"))
}
