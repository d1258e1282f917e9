package changelog

import (
	"time"

	"github.com/viant/sqlite-squeeze/catalog"
	"github.com/viant/sqlite-squeeze/row"
)

// LSN is a position in the change log. Record n ends at LSN n+1.
type LSN uint64

// InvalidLSN marks an unset position.
const InvalidLSN LSN = 0

// Valid reports whether l is set.
func (l LSN) Valid() bool { return l != InvalidLSN }

// Action is the kind of row mutation a record carries.
type Action string

const (
	ActionInsert Action = "insert"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Change is one decoded row mutation. Old is set for deletes and for updates
// that changed the identity key; New is set for inserts and updates. Large
// values may reference reader memory that is released when the handler
// returns.
type Change struct {
	LSN      LSN
	Relation string
	Action   Action
	Old      row.Row
	New      row.Row
}

// Handler receives the changes of a record.
type Handler func(c *Change) error

// Slot is the persisted read position of one consumer.
type Slot struct {
	Name         string
	ConfirmedLSN LSN
	UpdatedAt    time.Time
}

const (
	// DefaultLogTable is the table triggers append change records to.
	DefaultLogTable = "squeeze_log"
	// DefaultSlotTable stores confirmed positions per slot.
	DefaultSlotTable = "squeeze_slot"
	// DefaultSlot is the slot name used when Config leaves it unset.
	DefaultSlot = "squeeze"
)

// Config captures the settings of capture and decoding.
type Config struct {
	// LogTable and SlotTable name the log and slot tables.
	LogTable  string
	SlotTable string

	// Slot names the consumer whose position is persisted.
	Slot string

	// Prefetch controls how many log rows are fetched per query.
	Prefetch int

	// InlineLimit is the payload size above which text and blob values are
	// handed to the handler by reference.
	InlineLimit int

	// Cache resolves relation descriptors; catalog.Shared when nil.
	Cache *catalog.Cache
}

func (c Config) withDefaults() Config {
	if c.LogTable == "" {
		c.LogTable = DefaultLogTable
	}
	if c.SlotTable == "" {
		c.SlotTable = DefaultSlotTable
	}
	if c.Slot == "" {
		c.Slot = DefaultSlot
	}
	if c.Prefetch <= 0 {
		c.Prefetch = 256
	}
	if c.InlineLimit <= 0 {
		c.InlineLimit = 1024
	}
	if c.Cache == nil {
		c.Cache = catalog.Shared
	}
	return c
}
