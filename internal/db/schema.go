package db

import (
	_ "embed"
	"strconv"
	"strings"
)

//go:embed schema.sql
var Schema string

type Dialect int

const (
	DialectSQLite Dialect = iota
	DialectPostgres
	DialectLibsql
)

func (d Dialect) String() string {
	switch d {
	case DialectPostgres:
		return "postgres"
	case DialectLibsql:
		return "libsql"
	}
	return "sqlite"
}

// DriverName is the database/sql driver registered for the dialect.
func (d Dialect) DriverName() string {
	switch d {
	case DialectPostgres:
		return "pgx"
	case DialectLibsql:
		return "libsql"
	}
	return "sqlite"
}

// Rebind rewrites ? placeholders into the dialect's own syntax.
func (d Dialect) Rebind(query string) string {
	if d != DialectPostgres {
		return query
	}
	out := strings.Builder{}
	n := 0
	for _, r := range query {
		if r != '?' {
			out.WriteRune(r)
			continue
		}
		n++
		out.WriteString("$")
		out.WriteString(strconv.Itoa(n))
	}
	return out.String()
}

// statements splits Schema so drivers that refuse multi-statement execs
// (pgx with arguments, some libsql servers) can apply it one by one.
func statements() []string {
	out := []string{}
	for _, stmt := range strings.Split(Schema, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt != "" {
			out = append(out, stmt)
		}
	}
	return out
}

const (
	RunStatusRunning = "running"
	RunStatusOK      = "ok"
	RunStatusFailed  = "failed"
)
