// Package types holds the data model shared across workerman's
// master, worker, controller and output packages: listener
// configuration, the master-side worker record, and the status row
// schema written to rendezvous files.
package types

import (
	"encoding/hex"
	"time"

	"github.com/google/uuid"
)

// Transport identifies the socket family a Listener binds.
type Transport string

const (
	TransportTCP  Transport = "tcp"
	TransportUDP  Transport = "udp"
	TransportSSL  Transport = "ssl"
	TransportUnix Transport = "unix"
)

// ProtocolTag is an opaque application-protocol identifier forwarded
// to the external event-loop/decoder collaborator. workerman never
// decodes bytes itself.
type ProtocolTag string

const (
	ProtocolFrame     ProtocolTag = "frame"
	ProtocolText      ProtocolTag = "text"
	ProtocolHTTP      ProtocolTag = "http"
	ProtocolWebSocket ProtocolTag = "websocket"
	ProtocolRaw       ProtocolTag = "raw"
)

// DeadWorkerHandler tags which reap-time branch the master takes for a
// worker pid it was expecting to die. Modeled as an enum rather than a
// dispatch-by-method-name string.
type DeadWorkerHandler int

const (
	HandlerNone DeadWorkerHandler = iota
	HandlerStop
	HandlerReload
)

func (h DeadWorkerHandler) String() string {
	switch h {
	case HandlerStop:
		return "stop"
	case HandlerReload:
		return "reload"
	default:
		return "none"
	}
}

// ListenerConfig is the immutable, user-supplied description of one
// listening address. A process-global, ordered registry of these is
// the authoritative inventory of what the master binds and what each
// worker accepts on.
type ListenerConfig struct {
	Name        string
	Transport   Transport
	Address     string
	Protocol    ProtocolTag
	WorkerCount int
	ReusePort   bool
	Backlog     int            // default 102400, applied by listener.New
	SocketOpts  map[string]any // opaque bag forwarded to the platform socket layer
}

// WorkerRecord is the master's bookkeeping entry for one worker
// process. id is assigned once per master lifetime and never reused;
// hash doubles as the worker's rendezvous filename.
type WorkerRecord struct {
	PID           int
	ID            int
	ListenerIndex int
	Hash          string
	RestartCount  int
	StartTime     time.Time
}

// NewHash returns a random 16+ byte hex token suitable as a
// rendezvous filename. A UUIDv4 supplies 16 bytes of randomness; its
// raw bytes (not the dashed string form) are hex-encoded to keep the
// token filesystem-safe and free of characters that would need
// escaping in a shell-driven CLI.
func NewHash() string {
	id := uuid.New()
	return hex.EncodeToString(id[:])
}

// StatusRow is the JSON object written to a per-process rendezvous
// file and rendered by the controller's status table.
type StatusRow struct {
	ID          string `json:"id"` // decimal worker id, or "M" for the master
	Listen      string `json:"listen"`
	Name        string `json:"name"`
	Memory      string `json:"memory"`      // MB with two decimals and "M" suffix
	PeakMemory  string `json:"peak_memory"` // same format
	StartTime   string `json:"start_time"`  // "(<restart_count>) <uptime>"
	Connections string `json:"connections"` // "<active>/<total>"
	Timers      int    `json:"timers"`
}
