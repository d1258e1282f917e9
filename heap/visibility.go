package heap

// CommandID numbers the statements of the writing transaction.
type CommandID uint32

// InvalidCommandID marks a version that has not been superseded.
const InvalidCommandID CommandID = 0

// Snapshot determines which tuple versions a statement can see.
type Snapshot struct {
	CommandID CommandID
}

func (s Snapshot) visible(t *tuple) bool {
	if t.xmin >= s.CommandID {
		return false
	}
	return t.xmax == InvalidCommandID || t.xmax >= s.CommandID
}

// CommandCounter hands out command ids to the single writer of a relation.
type CommandCounter struct {
	current CommandID
	used    bool
}

// NewCommandCounter returns a counter positioned at the first command.
func NewCommandCounter() *CommandCounter {
	return &CommandCounter{current: 1}
}

// Current returns the id of the running command; used marks that the
// command wrote something.
func (c *CommandCounter) Current(used bool) CommandID {
	if used {
		c.used = true
	}
	return c.current
}

// Increment makes the effects of the running command visible to later
// snapshots. It is a no-op when the running command wrote nothing.
func (c *CommandCounter) Increment() {
	if !c.used {
		return
	}
	c.current++
	c.used = false
}

// Snapshot returns a snapshot for the running command.
func (c *CommandCounter) Snapshot() Snapshot {
	return Snapshot{CommandID: c.current}
}
