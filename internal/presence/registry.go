package presence

import "context"

// Conn is a live connection handle that can receive pushed frames.
type Conn interface {
	// Deliver queues data for the connection without blocking. It returns
	// false when the frame could not be queued.
	Deliver(data []byte) bool
	Close()
}

// Registry maps an identity to at most one live connection. A later
// Register for the same identity replaces the earlier mapping.
type Registry interface {
	// Register maps identity to conn and returns the handle it replaced,
	// if any.
	Register(ctx context.Context, identity string, conn Conn) (Conn, error)
	// Unregister removes the mapping only while it still points at conn.
	// It reports whether a mapping was removed.
	Unregister(ctx context.Context, identity string, conn Conn) (bool, error)
	Lookup(ctx context.Context, identity string) (Conn, bool)
	// ListOnline returns the online identities in ascending order.
	ListOnline(ctx context.Context) ([]string, error)
}
