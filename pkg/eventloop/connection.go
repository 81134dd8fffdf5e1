package eventloop

import (
	"net"
	"sync"

	"github.com/cuemby/workerman/pkg/types"
)

// AcceptedConnection is the handle Worker's accept path hands to the
// external event-loop/decoder collaborator. workerman
// itself never reads or writes connection bytes; it only tags the
// connection with the listener's protocol and transport and tracks it
// for its connection counters.
type AcceptedConnection struct {
	ID        uint64
	Conn      net.Conn
	Protocol  types.ProtocolTag
	Transport types.Transport

	// OnClose, if set, runs exactly once the first time Close is
	// called, whichever side calls it: a worker force-closing every
	// connection on a hard stop, or the external decoder closing this
	// connection once it observes the peer hang up. Worker wires this
	// to forget the connection without ever touching its bytes itself.
	OnClose func()

	closeOnce sync.Once
}

// Close closes the underlying connection. Worker calls this during a
// hard stop (force-close every connection); the external collaborator
// calls it when a connection closes itself during graceful drain.
func (c *AcceptedConnection) Close() error {
	err := c.Conn.Close()
	c.closeOnce.Do(func() {
		if c.OnClose != nil {
			c.OnClose()
		}
	})
	return err
}
