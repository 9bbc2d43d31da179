package dataaccess

// Kind names a logical database. Connections and transactions carry their
// kind as a type parameter, so a Querier[Reports] cannot be handed where a
// Querier[Billing] is expected. Kinds are empty marker types.
type Kind interface {
	// Name is the key a Factory registers targets under.
	Name() string

	// ReadOnly reports whether connections of this kind refuse writes.
	ReadOnly() bool
}

// ReadWrite is the kind of the primary, writable database.
type ReadWrite struct{}

func (ReadWrite) Name() string   { return "read_write" }
func (ReadWrite) ReadOnly() bool { return false }

// ReadOnly is the kind of a read-only replica or a read-only session on the
// primary database.
type ReadOnly struct{}

func (ReadOnly) Name() string   { return "read_only" }
func (ReadOnly) ReadOnly() bool { return true }
