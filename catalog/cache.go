package catalog

import (
	"context"
	"database/sql/driver"
	"sync"

	sqlite "modernc.org/sqlite"
)

// Cache holds table descriptors for reuse across readers of one database.
type Cache struct {
	mu      sync.RWMutex
	byTable map[string]*Descriptor
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{byTable: make(map[string]*Descriptor)}
}

// Shared is the process-wide descriptor cache.
var Shared = NewCache()

// Get returns the cached descriptor of table, loading it through q on a miss.
func (c *Cache) Get(ctx context.Context, q Queryer, table string) (*Descriptor, error) {
	c.mu.RLock()
	d := c.byTable[table]
	c.mu.RUnlock()
	if d != nil {
		return d, nil
	}
	d, err := Load(ctx, q, table)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	if cached := c.byTable[table]; cached != nil {
		d = cached
	} else {
		c.byTable[table] = d
	}
	c.mu.Unlock()
	return d, nil
}

// Invalidate drops every cached descriptor and returns how many were dropped.
func (c *Cache) Invalidate() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(c.byTable)
	c.byTable = make(map[string]*Descriptor)
	return n
}

// InvalidateTable drops the descriptor of table.
func (c *Cache) InvalidateTable(table string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.byTable[table]; !ok {
		return 0
	}
	delete(c.byTable, table)
	return 1
}

var (
	registerOnce sync.Once
	registerErr  error
)

// RegisterFunctions registers squeeze_invalidate(table) with the driver for
// connections opened after this call. It clears Shared for one table, or
// entirely when table is NULL or empty, and returns the number of dropped
// descriptors.
func RegisterFunctions() error {
	registerOnce.Do(func() {
		registerErr = sqlite.RegisterScalarFunction("squeeze_invalidate", 1, invalidateFunc)
	})
	return registerErr
}

func invalidateFunc(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	var table string
	switch v := args[0].(type) {
	case string:
		table = v
	case []byte:
		table = string(v)
	case nil:
	default:
		return int64(0), nil
	}
	if table == "" {
		return int64(Shared.Invalidate()), nil
	}
	return int64(Shared.InvalidateTable(table)), nil
}
