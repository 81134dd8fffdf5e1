// Package listener implements workerman's Listener: one
// configured (transport, address, protocol, worker_count) bundle,
// optionally shared via SO_REUSEPORT. A Listener never decodes bytes;
// transport and protocol are opaque tags forwarded to the external
// event-loop collaborator (pkg/eventloop).
package listener

import (
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	reuseport "github.com/kavu/go_reuseport"

	"github.com/cuemby/workerman/pkg/eventloop"
	"github.com/cuemby/workerman/pkg/log"
	"github.com/cuemby/workerman/pkg/types"
	"github.com/cuemby/workerman/pkg/werrors"
)

// DefaultBacklog is the default listen backlog applied when a
// ListenerConfig doesn't specify one.
const DefaultBacklog = 102400

// Listener owns one listening address. Construction is cheap and
// immutable after construction; Build/BuildInWorker perform the
// actual bind and are idempotent per process.
type Listener struct {
	Config *types.ListenerConfig

	mu         sync.Mutex
	stream     net.Listener
	packet     net.PacketConn
	built      bool
	accepting  int32
	acceptDone chan struct{}
}

// New returns a Listener for cfg, filling in DefaultBacklog when
// cfg.Backlog is zero. Transport and protocol tags are not validated,
// here or in Build: Build binds nothing for a transport it does not
// recognize and still reports success.
func New(cfg *types.ListenerConfig) *Listener {
	if cfg.Backlog == 0 {
		cfg.Backlog = DefaultBacklog
	}
	return &Listener{Config: cfg}
}

// Build binds the listening socket in the master process (the default
// path: reuse_port = false). Idempotent per process. A second call
// after a successful first is a no-op.
func (l *Listener) Build() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.built || l.Config.ReusePort {
		return nil
	}

	logger := log.WithListener(l.Config.Name)
	switch l.Config.Transport {
	case types.TransportTCP, types.TransportSSL:
		ln, err := bindStreamTCP(l.Config.Address, l.Config.Backlog, false)
		if err != nil {
			return &werrors.BindError{Listener: l.Config.Name, Address: l.Config.Address, Cause: err}
		}
		l.stream = ln
	case types.TransportUnix:
		ln, err := bindStreamUnix(l.Config.Address, l.Config.Backlog)
		if err != nil {
			return &werrors.BindError{Listener: l.Config.Name, Address: l.Config.Address, Cause: err}
		}
		l.stream = ln
	case types.TransportUDP:
		addr, err := net.ResolveUDPAddr("udp", l.Config.Address)
		if err != nil {
			return &werrors.BindError{Listener: l.Config.Name, Address: l.Config.Address, Cause: err}
		}
		pc, err := net.ListenUDP("udp", addr)
		if err != nil {
			return &werrors.BindError{Listener: l.Config.Name, Address: l.Config.Address, Cause: err}
		}
		l.packet = pc
	}
	l.built = true
	logger.Info().Str("address", l.Config.Address).Msg("listener bound in master")
	return nil
}

// BuildInWorker binds the listening socket independently in each
// worker when reuse_port = true; the kernel load-balances accepts
// across every worker bound to the same address.
func (l *Listener) BuildInWorker() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.built || !l.Config.ReusePort {
		return nil
	}

	switch l.Config.Transport {
	case types.TransportTCP, types.TransportSSL:
		ln, err := reuseport.NewReusablePortListener("tcp", l.Config.Address)
		if err != nil {
			return &werrors.BindError{Listener: l.Config.Name, Address: l.Config.Address, Cause: err}
		}
		l.stream = ln
	case types.TransportUDP:
		pc, err := reuseport.NewReusablePortPacketConn("udp", l.Config.Address)
		if err != nil {
			return &werrors.BindError{Listener: l.Config.Name, Address: l.Config.Address, Cause: err}
		}
		l.packet = pc
	case types.TransportUnix:
		// Unix domain sockets have no SO_REUSEPORT equivalent; only
		// one worker can own the path, so reuse_port degrades to a
		// plain bind for this transport.
		ln, err := bindStreamUnix(l.Config.Address, l.Config.Backlog)
		if err != nil {
			return &werrors.BindError{Listener: l.Config.Name, Address: l.Config.Address, Cause: err}
		}
		l.stream = ln
	}
	l.built = true
	return nil
}

// File returns the raw *os.File backing the bound socket so the
// master can pass it to a forked worker via exec.Cmd.ExtraFiles. Only
// meaningful for non-reuse_port listeners built in the master.
func (l *Listener) File() (*os.File, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch {
	case l.stream != nil:
		if f, ok := l.stream.(interface{ File() (*os.File, error) }); ok {
			return f.File()
		}
	case l.packet != nil:
		if f, ok := l.packet.(interface{ File() (*os.File, error) }); ok {
			return f.File()
		}
	}
	return nil, werrors.NewLifecycleError("listener %s has no fd to hand off", l.Config.Name)
}

// AdoptFile reconstructs a Listener from an inherited fd: the worker
// receives every pre-bound listener fd from its parent via ExtraFiles
// positional ordering before it decides which ones to keep.
func (l *Listener) AdoptFile(f *os.File) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch l.Config.Transport {
	case types.TransportUDP:
		pc, err := net.FilePacketConn(f)
		if err != nil {
			return &werrors.BindError{Listener: l.Config.Name, Address: l.Config.Address, Cause: err}
		}
		l.packet = pc
	default:
		ln, err := net.FileListener(f)
		if err != nil {
			return &werrors.BindError{Listener: l.Config.Name, Address: l.Config.Address, Cause: err}
		}
		l.stream = ln
	}
	l.built = true
	return nil
}

// DropCompetingState releases this listener's fd when a worker did not
// claim it: only the assigned worker may
// accept on a given pre-bound listener.
func (l *Listener) DropCompetingState() error {
	return l.Teardown()
}

// ResumeAccept registers the accept handler on loop. onAccept receives
// each accepted connection already tagged with this listener's
// protocol and transport; it owns the connection from that point.
func (l *Listener) ResumeAccept(loop eventloop.EventLoop, onAccept func(*eventloop.AcceptedConnection)) error {
	atomic.StoreInt32(&l.accepting, 1)
	l.acceptDone = make(chan struct{})

	// The default Loop never reads fd itself — it only runs onReadable
	// in a loop — so there is nothing here to hand it beyond a
	// placeholder. Resolving a real fd via File().Fd() would clear
	// O_NONBLOCK on the listener's underlying file description and
	// break the SetDeadline-based polling acceptOnce relies on.
	return loop.RegisterFD(-1, func() {
		if atomic.LoadInt32(&l.accepting) == 0 {
			time.Sleep(50 * time.Millisecond)
			return
		}
		l.acceptOnce(onAccept)
	})
}

func (l *Listener) acceptOnce(onAccept func(*eventloop.AcceptedConnection)) {
	l.mu.Lock()
	stream := l.stream
	packet := l.packet
	l.mu.Unlock()

	switch {
	case stream != nil:
		if tc, ok := stream.(*net.TCPListener); ok {
			tc.SetDeadline(time.Now().Add(200 * time.Millisecond))
		}
		conn, err := stream.Accept()
		if err != nil {
			// EAGAIN / timeout under thundering-herd loss or a
			// deliberately short accept deadline: return silently.
			return
		}
		onAccept(&eventloop.AcceptedConnection{Conn: conn, Protocol: l.Config.Protocol, Transport: l.Config.Transport})
	case packet != nil:
		// UDP has no per-connection Accept; callers that need
		// per-client state build it from the datagram's source
		// address, which is an external collaborator's job, not this
		// package's.
	}
}

// PauseAccept stops handing new connections to onAccept without
// closing the socket.
func (l *Listener) PauseAccept() {
	atomic.StoreInt32(&l.accepting, 0)
}

// Accepting reports whether the listener is currently handing off new
// connections.
func (l *Listener) Accepting() bool {
	return atomic.LoadInt32(&l.accepting) == 1
}

// Teardown closes the listening socket. Idempotent.
func (l *Listener) Teardown() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var err error
	if l.stream != nil {
		err = l.stream.Close()
		l.stream = nil
	}
	if l.packet != nil {
		if e := l.packet.Close(); e != nil && err == nil {
			err = e
		}
		l.packet = nil
	}
	l.built = false
	return err
}
