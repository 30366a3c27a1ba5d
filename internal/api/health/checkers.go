package health

import (
	"context"
	"database/sql"
	"errors"
)

// DBChecker pings a SQL database.
type DBChecker struct {
	name string
	db   *sql.DB
}

// NewDBChecker creates a checker named after the SQL dialect.
func NewDBChecker(name string, db *sql.DB) *DBChecker {
	return &DBChecker{name: name, db: db}
}

// Name returns the checker name.
func (c *DBChecker) Name() string {
	return c.name
}

// Check verifies the database answers a ping.
func (c *DBChecker) Check(ctx context.Context) error {
	if c.db == nil {
		return errors.New("database not initialized")
	}
	return c.db.PingContext(ctx)
}

// FuncChecker adapts a function, such as a broker ping, to Checker.
type FuncChecker struct {
	name  string
	check func(ctx context.Context) error
}

// NewFuncChecker creates a named checker around fn.
func NewFuncChecker(name string, fn func(ctx context.Context) error) *FuncChecker {
	return &FuncChecker{name: name, check: fn}
}

// Name returns the checker name.
func (c *FuncChecker) Name() string {
	return c.name
}

// Check runs the wrapped function.
func (c *FuncChecker) Check(ctx context.Context) error {
	if c.check == nil {
		return errors.New(c.name + " not configured")
	}
	return c.check(ctx)
}
