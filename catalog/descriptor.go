package catalog

import (
	"context"
	"database/sql"
	"sort"

	"github.com/zeebo/errs"
)

var (
	// Error is the error class for catalog failures.
	Error = errs.Class("catalog")
	// ErrNotFound is the error class for missing tables.
	ErrNotFound = errs.Class("table not found")
)

// Queryer is satisfied by *sql.DB, *sql.Conn and *sql.Tx.
type Queryer interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Column describes a table column.
type Column struct {
	Name       string
	Type       string
	NotNull    bool
	PrimaryKey int
}

// IndexInfo describes an index by the ordinals of its key columns.
type IndexInfo struct {
	Name    string
	Columns []int
	Unique  bool
}

// Descriptor is the shape of a table at a given schema version.
type Descriptor struct {
	Table         string
	Columns       []Column
	Indexes       []IndexInfo
	Identity      IndexInfo
	SchemaVersion int64
}

// ColumnNames returns the column names in ordinal order.
func (d *Descriptor) ColumnNames() []string {
	names := make([]string, len(d.Columns))
	for i, c := range d.Columns {
		names[i] = c.Name
	}
	return names
}

// IdentityColumns returns the names of the identity key columns.
func (d *Descriptor) IdentityColumns() []string {
	names := make([]string, len(d.Identity.Columns))
	for i, c := range d.Identity.Columns {
		names[i] = d.Columns[c].Name
	}
	return names
}

// Equal compares two descriptors ignoring the schema version.
func (d *Descriptor) Equal(o *Descriptor) bool {
	return d.diff(o) == ""
}

func (d *Descriptor) diff(o *Descriptor) string {
	if d.Table != o.Table {
		return "table name"
	}
	if len(d.Columns) != len(o.Columns) {
		return "column count"
	}
	for i := range d.Columns {
		if d.Columns[i] != o.Columns[i] {
			return "column " + d.Columns[i].Name
		}
	}
	if !sameIndex(d.Identity, o.Identity) {
		return "identity index"
	}
	if len(d.Indexes) != len(o.Indexes) {
		return "index count"
	}
	for i := range d.Indexes {
		if !sameIndex(d.Indexes[i], o.Indexes[i]) {
			return "index " + d.Indexes[i].Name
		}
	}
	return ""
}

func sameIndex(a, b IndexInfo) bool {
	if a.Name != b.Name || a.Unique != b.Unique || len(a.Columns) != len(b.Columns) {
		return false
	}
	for i := range a.Columns {
		if a.Columns[i] != b.Columns[i] {
			return false
		}
	}
	return true
}

// Load reads the descriptor of table. The identity index is the primary key
// or, failing that, the first unique index over NOT NULL columns.
func Load(ctx context.Context, q Queryer, table string) (*Descriptor, error) {
	d := &Descriptor{Table: table}
	if err := q.QueryRowContext(ctx, "PRAGMA schema_version").Scan(&d.SchemaVersion); err != nil {
		return nil, Error.Wrap(err)
	}
	if err := loadColumns(ctx, q, d); err != nil {
		return nil, err
	}
	if len(d.Columns) == 0 {
		return nil, ErrNotFound.New("%s", table)
	}
	if err := loadIndexes(ctx, q, d); err != nil {
		return nil, err
	}
	return d, nil
}

func loadColumns(ctx context.Context, q Queryer, d *Descriptor) error {
	rows, err := q.QueryContext(ctx, `SELECT name, type, "notnull", pk FROM pragma_table_info(?) ORDER BY cid`, d.Table)
	if err != nil {
		return Error.Wrap(err)
	}
	defer rows.Close()
	for rows.Next() {
		var c Column
		if err := rows.Scan(&c.Name, &c.Type, &c.NotNull, &c.PrimaryKey); err != nil {
			return Error.Wrap(err)
		}
		d.Columns = append(d.Columns, c)
	}
	return Error.Wrap(rows.Err())
}

type indexListEntry struct {
	name    string
	unique  bool
	origin  string
	partial bool
}

func loadIndexes(ctx context.Context, q Queryer, d *Descriptor) error {
	rows, err := q.QueryContext(ctx, `SELECT name, "unique", origin, partial FROM pragma_index_list(?) ORDER BY name`, d.Table)
	if err != nil {
		return Error.Wrap(err)
	}
	var list []indexListEntry
	for rows.Next() {
		var e indexListEntry
		if err := rows.Scan(&e.name, &e.unique, &e.origin, &e.partial); err != nil {
			rows.Close()
			return Error.Wrap(err)
		}
		list = append(list, e)
	}
	if err := errs.Combine(rows.Err(), rows.Close()); err != nil {
		return Error.Wrap(err)
	}

	pk := -1
	for _, e := range list {
		if e.partial {
			continue
		}
		cols, ok, err := indexColumns(ctx, q, e.name)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		info := IndexInfo{Name: e.name, Columns: cols, Unique: e.unique}
		d.Indexes = append(d.Indexes, info)
		if e.origin == "pk" {
			pk = len(d.Indexes) - 1
		}
	}

	switch {
	case pk >= 0:
		d.Identity = d.Indexes[pk]
	case len(d.primaryKey()) > 0:
		// INTEGER PRIMARY KEY aliases the rowid and has no index of its own.
		d.Identity = IndexInfo{Name: d.Table + "_pkey", Columns: d.primaryKey(), Unique: true}
		d.Indexes = append([]IndexInfo{d.Identity}, d.Indexes...)
	default:
		for _, idx := range d.Indexes {
			if idx.Unique && d.allNotNull(idx.Columns) {
				d.Identity = idx
				break
			}
		}
	}
	if d.Identity.Name == "" {
		return Error.New("table %q has no identity index", d.Table)
	}
	return nil
}

func indexColumns(ctx context.Context, q Queryer, name string) ([]int, bool, error) {
	rows, err := q.QueryContext(ctx, `SELECT cid FROM pragma_index_info(?) ORDER BY seqno`, name)
	if err != nil {
		return nil, false, Error.Wrap(err)
	}
	defer rows.Close()
	var cols []int
	supported := true
	for rows.Next() {
		var cid int
		if err := rows.Scan(&cid); err != nil {
			return nil, false, Error.Wrap(err)
		}
		if cid < 0 {
			supported = false
		}
		cols = append(cols, cid)
	}
	if err := rows.Err(); err != nil {
		return nil, false, Error.Wrap(err)
	}
	return cols, supported && len(cols) > 0, nil
}

func (d *Descriptor) primaryKey() []int {
	var cols []int
	for i, c := range d.Columns {
		if c.PrimaryKey > 0 {
			cols = append(cols, i)
		}
	}
	sort.Slice(cols, func(a, b int) bool {
		return d.Columns[cols[a]].PrimaryKey < d.Columns[cols[b]].PrimaryKey
	})
	return cols
}

func (d *Descriptor) allNotNull(cols []int) bool {
	for _, c := range cols {
		if !d.Columns[c].NotNull {
			return false
		}
	}
	return true
}
