package squeezeadmin

import (
    "context"
    "path/filepath"
    "strings"
    "testing"
    "time"

    "github.com/viant/sqlite-squeeze/catalog"
    "github.com/viant/sqlite-squeeze/changelog"
    "github.com/viant/sqlite-squeeze/engine"
)

func TestSqueezeAdminTruncate(t *testing.T) {
    dbPath := filepath.Join(t.TempDir(), "squeeze_admin.sqlite")
    db, err := engine.Open(engine.DSN(dbPath, 5*time.Second))
    if err != nil { t.Fatalf("engine.Open failed: %v", err) }
    defer db.Close()
    if err := Register(db, changelog.Config{}); err != nil { t.Fatalf("squeezeadmin.Register failed: %v", err) }

    ctx := context.Background()
    if _, err := db.Exec(`CREATE TABLE items(id INTEGER PRIMARY KEY, v TEXT)`); err != nil {
        t.Fatalf("create items failed: %v", err)
    }
    desc, err := catalog.Load(ctx, db, "items")
    if err != nil { t.Fatalf("catalog.Load failed: %v", err) }
    if err := changelog.Install(ctx, db, desc, changelog.Config{}); err != nil { t.Fatalf("changelog.Install failed: %v", err) }
    if _, err := db.Exec(`INSERT INTO items VALUES (1,'a'),(2,'b'),(3,'c')`); err != nil {
        t.Fatalf("insert failed: %v", err)
    }
    if _, err := db.Exec(`CREATE VIRTUAL TABLE squeeze_admin USING squeeze_admin(op)`); err != nil {
        if strings.Contains(err.Error(), "no such module") {
            t.Skipf("skipping: squeeze_admin vtab not available (%v)", err)
        }
        t.Fatalf("CREATE VIRTUAL TABLE squeeze_admin failed: %v", err)
    }

    admin := func() string {
        rows, err := db.QueryContext(ctx, `SELECT op FROM squeeze_admin WHERE op MATCH 'squeeze'`)
        if err != nil { t.Fatalf("squeeze_admin MATCH failed: %v", err) }
        defer rows.Close()
        if !rows.Next() { t.Fatalf("expected one result from squeeze_admin") }
        var op string
        if err := rows.Scan(&op); err != nil { t.Fatalf("scan op: %v", err) }
        return op
    }

    // nothing confirmed yet
    if op := admin(); op != "truncated:0" { t.Fatalf("unexpected result %q", op) }

    reader := changelog.NewReader(db, changelog.Config{})
    if err := reader.Confirm(ctx, 3); err != nil { t.Fatalf("Confirm failed: %v", err) }
    if op := admin(); op != "truncated:2" { t.Fatalf("unexpected result %q", op) }

    var left int
    if err := db.QueryRow(`SELECT COUNT(*) FROM squeeze_log`).Scan(&left); err != nil { t.Fatalf("count failed: %v", err) }
    if left != 1 { t.Fatalf("expected 1 record left, got %d", left) }

    if _, err := catalog.Shared.Get(ctx, db, "items"); err != nil { t.Fatalf("cache load failed: %v", err) }
    var dropped int64
    if err := db.QueryRow(`SELECT squeeze_invalidate('items')`).Scan(&dropped); err != nil {
        t.Fatalf("squeeze_invalidate failed: %v", err)
    }
    if dropped != 1 { t.Fatalf("expected 1 dropped descriptor, got %d", dropped) }
}
