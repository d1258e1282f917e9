package changelog

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/viant/sqlite-squeeze/catalog"
	"github.com/zeebo/errs"
)

// Error is the error class for change log failures.
var Error = errs.Class("changelog")

// LogTableDDL returns the DDL for the change log table. AUTOINCREMENT keeps
// LSNs strictly increasing even after old records are truncated.
func LogTableDDL(logTable string) string {
	return `CREATE TABLE IF NOT EXISTS ` + quoteIdent(logTable) + ` (
    lsn        INTEGER PRIMARY KEY AUTOINCREMENT,
    relation   TEXT NOT NULL,
    op         TEXT NOT NULL,
    old_row    BLOB,
    new_row    BLOB,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);`
}

// SlotTableDDL returns the DDL for the slot table.
func SlotTableDDL(slotTable string) string {
	return `CREATE TABLE IF NOT EXISTS ` + quoteIdent(slotTable) + ` (
    name          TEXT PRIMARY KEY,
    confirmed_lsn INTEGER NOT NULL,
    updated_at    INTEGER NOT NULL DEFAULT (unixepoch())
);`
}

// SQLiteCaptureTriggers returns the trigger DDL statements that capture
// inserts, updates and deletes against the table described by desc into
// logTable. Updates log the old image only when an identity column changed.
func SQLiteCaptureTriggers(desc *catalog.Descriptor, logTable string) []string {
	if logTable == "" {
		logTable = DefaultLogTable
	}
	base := sanitizeIdentifier(desc.Table)
	table := quoteIdent(desc.Table)
	log := quoteIdent(logTable)
	relation := quoteLiteral(desc.Table)
	image := func(alias string) string {
		cols := make([]string, len(desc.Columns))
		for i, c := range desc.Columns {
			cols[i] = alias + "." + quoteIdent(c.Name)
		}
		return "squeeze_pack(" + strings.Join(cols, ", ") + ")"
	}
	var keyChanged []string
	for _, name := range desc.IdentityColumns() {
		col := quoteIdent(name)
		keyChanged = append(keyChanged, "OLD."+col+" IS NOT NEW."+col)
	}

	insertTrig := fmt.Sprintf(`CREATE TRIGGER IF NOT EXISTS %s_squeeze_ai AFTER INSERT ON %s
BEGIN
    INSERT INTO %s(relation, op, new_row)
    VALUES (%s, 'insert', %s);
END;`, base, table, log, relation, image("NEW"))

	updateTrig := fmt.Sprintf(`CREATE TRIGGER IF NOT EXISTS %s_squeeze_au AFTER UPDATE ON %s
BEGIN
    INSERT INTO %s(relation, op, old_row, new_row)
    VALUES (
        %s,
        'update',
        CASE WHEN %s THEN %s END,
        %s
    );
END;`, base, table, log, relation, strings.Join(keyChanged, " OR "), image("OLD"), image("NEW"))

	deleteTrig := fmt.Sprintf(`CREATE TRIGGER IF NOT EXISTS %s_squeeze_ad AFTER DELETE ON %s
BEGIN
    INSERT INTO %s(relation, op, old_row)
    VALUES (%s, 'delete', %s);
END;`, base, table, log, relation, image("OLD"))

	return []string{insertTrig, updateTrig, deleteTrig}
}

// Install creates the log and slot tables and the capture triggers of desc's
// table in one transaction.
func Install(ctx context.Context, db *sql.DB, desc *catalog.Descriptor, cfg Config) (err error) {
	cfg = cfg.withDefaults()
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return Error.Wrap(err)
	}
	defer func() {
		if err != nil {
			err = errs.Combine(err, tx.Rollback())
		}
	}()
	stmts := append([]string{LogTableDDL(cfg.LogTable), SlotTableDDL(cfg.SlotTable)}, SQLiteCaptureTriggers(desc, cfg.LogTable)...)
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return Error.New("install capture for %s: %v", desc.Table, err)
		}
	}
	return Error.Wrap(tx.Commit())
}

// Uninstall drops the capture triggers of table. Log and slot tables are kept.
func Uninstall(ctx context.Context, db *sql.DB, table string) error {
	base := sanitizeIdentifier(table)
	for _, suffix := range []string{"_squeeze_ai", "_squeeze_au", "_squeeze_ad"} {
		if _, err := db.ExecContext(ctx, "DROP TRIGGER IF EXISTS "+quoteIdent(base+suffix)); err != nil {
			return Error.Wrap(err)
		}
	}
	return nil
}

func sanitizeIdentifier(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func quoteLiteral(s string) string {
	return `'` + strings.ReplaceAll(s, `'`, `''`) + `'`
}
