package catalog

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/zeebo/errs"
)

// ErrSchemaChanged is the error class for schema changes detected during a rebuild.
var ErrSchemaChanged = errs.Class("schema changed")

// LockMode describes the lock the caller holds on the source table.
type LockMode int

const (
	LockNone LockMode = iota
	LockShared
	LockExclusive
)

func (m LockMode) String() string {
	switch m {
	case LockNone:
		return "none"
	case LockShared:
		return "shared"
	case LockExclusive:
		return "exclusive"
	}
	return fmt.Sprintf("lock(%d)", int(m))
}

// Checker compares a table against the descriptor captured when the rebuild
// started.
type Checker struct {
	db         *sql.DB
	conn       *sql.Conn
	checkpoint *Descriptor
}

// NewChecker captures the current descriptor of table as the checkpoint.
func NewChecker(ctx context.Context, db *sql.DB, table string) (*Checker, error) {
	d, err := Load(ctx, db, table)
	if err != nil {
		return nil, err
	}
	return &Checker{db: db, checkpoint: d}, nil
}

// WithConn sets the connection that holds the caller's exclusive lock. Under
// an exclusive lock other connections of the pool would block, so checks made
// with LockExclusive run on conn.
func (c *Checker) WithConn(conn *sql.Conn) *Checker {
	c.conn = conn
	return c
}

// Checkpoint returns the descriptor the table is compared against.
func (c *Checker) Checkpoint() *Descriptor { return c.checkpoint }

// Check returns an ErrSchemaChanged error if the columns, identity index or
// indexes of the table changed since the checkpoint. Schema changes to other
// objects only advance the checkpoint version.
func (c *Checker) Check(ctx context.Context, held LockMode) error {
	q, err := c.queryer(held)
	if err != nil {
		return err
	}
	var version int64
	if err := q.QueryRowContext(ctx, "PRAGMA schema_version").Scan(&version); err != nil {
		return Error.Wrap(err)
	}
	if version == c.checkpoint.SchemaVersion {
		return nil
	}
	current, err := Load(ctx, q, c.checkpoint.Table)
	if err != nil {
		if ErrNotFound.Has(err) {
			return ErrSchemaChanged.New("table %q was dropped", c.checkpoint.Table)
		}
		return err
	}
	if what := c.checkpoint.diff(current); what != "" {
		return ErrSchemaChanged.New("table %q: %s changed", c.checkpoint.Table, what)
	}
	next := *c.checkpoint
	next.SchemaVersion = version
	c.checkpoint = &next
	return nil
}

func (c *Checker) queryer(held LockMode) (Queryer, error) {
	if held < LockExclusive {
		return c.db, nil
	}
	if c.conn == nil {
		return nil, Error.New("exclusive lock held but no lock-holding connection configured")
	}
	return c.conn, nil
}
