package squeezeadmin

import (
    "context"
    "database/sql"
    "fmt"
    "strings"

    "github.com/viant/sqlite-squeeze/catalog"
    "github.com/viant/sqlite-squeeze/changelog"
    "modernc.org/sqlite/vtab"
)

// Module provides change log maintenance via a virtual table.
// Usage:
//   CREATE VIRTUAL TABLE squeeze_admin USING squeeze_admin(op);
//   SELECT op FROM squeeze_admin WHERE op MATCH 'squeeze'; -- truncate up to the slot position
// Returns a single row with op='truncated:<count>' on success.
type Module struct {
    db  *sql.DB
    cfg changelog.Config
}

type Table struct {
    db  *sql.DB
    cfg changelog.Config
}

type Cursor struct {
    table *Table
    rows  []string
    pos   int
}

// Register makes the squeeze_admin module and the squeeze_invalidate(table)
// function available. cfg names the log and slot tables; its Slot is ignored
// in favour of the MATCH argument.
func Register(db *sql.DB, cfg changelog.Config) error {
    if err := catalog.RegisterFunctions(); err != nil { return err }
    if err := vtab.RegisterModule(db, "squeeze_admin", &Module{db: db, cfg: cfg}); err != nil {
        if !strings.Contains(err.Error(), "already registered") { return err }
    }
    return nil
}

func (m *Module) Create(ctx vtab.Context, args []string) (vtab.Table, error) { return m.Connect(ctx, args) }

func (m *Module) Connect(ctx vtab.Context, args []string) (vtab.Table, error) {
    if len(args) < 3 { return nil, fmt.Errorf("squeeze_admin: need at least 3 args") }
    if err := ctx.Declare(fmt.Sprintf("CREATE TABLE %s(op)", args[2])); err != nil { return nil, err }
    return &Table{db: m.db, cfg: m.cfg}, nil
}

func (t *Table) BestIndex(info *vtab.IndexInfo) error {
    for i := range info.Constraints {
        c := &info.Constraints[i]
        if !c.Usable { continue }
        if c.Column == 0 && c.Op == vtab.OpMATCH { c.ArgIndex = 0; c.Omit = true; info.IdxNum = 1; break }
    }
    return nil
}

func (t *Table) Open() (vtab.Cursor, error) { return &Cursor{table: t}, nil }
func (t *Table) Disconnect() error { return nil }
func (t *Table) Destroy() error { return nil }

func (c *Cursor) Filter(idxNum int, idxStr string, vals []vtab.Value) error {
    c.rows = nil
    c.pos = 0
    if idxNum != 1 || len(vals) == 0 || vals[0] == nil { return nil }
    slot, ok := vals[0].(string)
    if !ok { return fmt.Errorf("squeeze_admin: MATCH expects a slot name as TEXT") }
    n, err := truncate(context.Background(), c.table.db, c.table.cfg, slot)
    if err != nil { return err }
    c.rows = []string{fmt.Sprintf("truncated:%d", n)}
    return nil
}

func (c *Cursor) Next() error { if c.pos < len(c.rows) { c.pos++ }; return nil }
func (c *Cursor) Eof() bool { return c.pos >= len(c.rows) }
func (c *Cursor) Column(col int) (vtab.Value, error) {
    if c.pos < 0 || c.pos >= len(c.rows) { return nil, fmt.Errorf("squeeze_admin: Column out of range") }
    if col == 0 { return c.rows[c.pos], nil }
    return nil, nil
}
func (c *Cursor) Rowid() (int64, error) { return int64(c.pos + 1), nil }
func (c *Cursor) Close() error { c.rows = nil; c.pos = 0; return nil }

// truncate removes the log records the slot has confirmed. A slot that has
// not confirmed anything keeps the whole log.
func truncate(ctx context.Context, db *sql.DB, cfg changelog.Config, slot string) (int64, error) {
    cfg.Slot = slot
    reader := changelog.NewReader(db, cfg)
    s, err := reader.Slot(ctx)
    if err != nil { return 0, err }
    if !s.ConfirmedLSN.Valid() { return 0, nil }
    return reader.Truncate(ctx, s.ConfirmedLSN)
}
