package worker

import "github.com/cuemby/workerman/pkg/eventloop"

// Connection binds an accepted connection to the worker that owns it.
// Per-byte handling belongs to the external event-loop collaborator;
// Connection exists only so the worker can track and force-close its
// connection set.
type Connection struct {
	ID       uint64
	Accepted *eventloop.AcceptedConnection
	Worker   int
}
