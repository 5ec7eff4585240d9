// Package unet implements UNIX-domain sockets (spec §4.13): stream
// and seqpacket connections sharing one ring-buffer-backed connection
// type, a listen/accept/connect handshake, and a short-name bind
// table.
//
// The per-direction ring buffers are this repo's own circbuf package,
// adapted from biscuit's circbuf.go for exactly this purpose. The
// listen-queue handshake (connect pushes a slot and blocks on its
// flag, accept pops a slot and sets the flag to wake the connecting
// client) is a direct transliteration of spec §4.13's own prose, since
// no socket implementation of any kind survives in the retrieval pack
// (biscuit's own net/tcp stack is presently disk-of-reference only,
// stubbed out of this pack's go.mod with no source).
package unet

import (
	"sync"
	"sync/atomic"

	"circbuf"
	"defs"
)

// Flavour selects stream or seqpacket semantics for a connection.
type Flavour int

const (
	Stream Flavour = iota
	SeqPacket
)

const pageSize = 4096

// Conn is the shared connection object both a stream and a seqpacket
// pair of endpoints are built on: two ring buffers capped at one page
// each, plus (seqpacket only) a queue of message boundaries per
// direction.
type Conn struct {
	mu       sync.Mutex
	flavour  Flavour
	toServer *circbuf.Buf // client -> server
	toClient *circbuf.Buf // server -> client

	toServerLens []int // seqpacket message boundaries, client -> server
	toClientLens []int // seqpacket message boundaries, server -> client

	dropped atomic.Bool
}

func newConn(flavour Flavour) *Conn {
	return &Conn{flavour: flavour, toServer: circbuf.New(pageSize), toClient: circbuf.New(pageSize)}
}

// AvailableServer reports bytes (stream) or whole messages (seqpacket)
// currently available for the server endpoint to read.
func (c *Conn) AvailableServer() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.flavour == SeqPacket {
		return len(c.toServerLens)
	}
	return c.toServer.Used()
}

// AvailableCli mirrors AvailableServer for the client endpoint.
func (c *Conn) AvailableCli() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.flavour == SeqPacket {
		return len(c.toClientLens)
	}
	return c.toClient.Used()
}

// ConnDropped reports whether either peer has closed.
func (c *Conn) ConnDropped() bool { return c.dropped.Load() }

// Drop marks the connection closed; every blocked reader/writer on
// either end observes ConnDropped and wakes.
func (c *Conn) Drop() { c.dropped.Store(true) }

func (c *Conn) readReady(forServer bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.flavour == SeqPacket {
		if forServer {
			return len(c.toServerLens) > 0
		}
		return len(c.toClientLens) > 0
	}
	if forServer {
		return !c.toServer.Empty()
	}
	return !c.toClient.Empty()
}

func (c *Conn) writeReady(forServer bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	buf := c.toClient
	if !forServer {
		buf = c.toServer
	}
	return !buf.Full()
}

// ReadyReason is the WaitingForSocketReady(flag) block reason spec §3
// names; check captures whatever readiness predicate (a connection's
// read/write side, or a pending connect's accepted flag) the caller is
// waiting on.
type ReadyReason struct {
	check func() bool
}

// Lifted reports whether the awaited condition now holds.
func (r ReadyReason) Lifted() bool { return r.check() }

// ServerEnd is the server side of one connection.
type ServerEnd struct{ conn *Conn }

// ClientEnd is the client side of one connection.
type ClientEnd struct{ conn *Conn }

// Conn exposes the shared connection, e.g. so a caller can attach a
// ReadyReason before blocking.
func (e *ServerEnd) Conn() *Conn { return e.conn }
func (e *ClientEnd) Conn() *Conn { return e.conn }

// ReadWaitReason returns the reason to block on before retrying Read.
func (e *ServerEnd) ReadWaitReason() ReadyReason {
	return ReadyReason{check: func() bool { return e.conn.ConnDropped() || e.conn.readReady(true) }}
}
func (e *ClientEnd) ReadWaitReason() ReadyReason {
	return ReadyReason{check: func() bool { return e.conn.ConnDropped() || e.conn.readReady(false) }}
}

// WriteWaitReason returns the reason to block on before retrying
// Write.
func (e *ServerEnd) WriteWaitReason() ReadyReason {
	return ReadyReason{check: func() bool { return e.conn.ConnDropped() || e.conn.writeReady(true) }}
}
func (e *ClientEnd) WriteWaitReason() ReadyReason {
	return ReadyReason{check: func() bool { return e.conn.ConnDropped() || e.conn.writeReady(false) }}
}

// Write writes data to the peer, returning EWOULDBLOCK (WouldBlockFull)
// if no room is currently available, ETOOLARGE if a seqpacket message
// can never fit the buffer, or ECONNCLOSED if the peer is gone.
func (e *ServerEnd) Write(data []byte) (int, defs.Err_t) { return writeTo(e.conn, true, data) }
func (e *ClientEnd) Write(data []byte) (int, defs.Err_t) { return writeTo(e.conn, false, data) }

func writeTo(c *Conn, forServer bool, data []byte) (int, defs.Err_t) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dropped.Load() {
		return 0, defs.ECONNCLOSED
	}
	buf := c.toClient
	if !forServer {
		buf = c.toServer
	}
	if c.flavour == SeqPacket {
		if len(data) > buf.Bufsz() {
			return 0, defs.ETOOLARGE
		}
		if buf.Left() < len(data) {
			return 0, defs.EWOULDBLOCK
		}
		n := buf.Write(data)
		if forServer {
			c.toClientLens = append(c.toClientLens, n)
		} else {
			c.toServerLens = append(c.toServerLens, n)
		}
		return n, 0
	}
	n := buf.Write(data)
	if n == 0 {
		return 0, defs.EWOULDBLOCK
	}
	return n, 0
}

// Read reads from the peer, returning EWOULDBLOCK (WouldBlockEmpty) if
// nothing is currently available, or ECONNCLOSED once the peer is gone
// and no buffered data remains.
func (e *ServerEnd) Read(buf []byte) (int, defs.Err_t) { return readFrom(e.conn, true, buf) }
func (e *ClientEnd) Read(buf []byte) (int, defs.Err_t) { return readFrom(e.conn, false, buf) }

func readFrom(c *Conn, forServer bool, dst []byte) (int, defs.Err_t) {
	c.mu.Lock()
	defer c.mu.Unlock()
	src := c.toServer
	lens := &c.toServerLens
	if !forServer {
		src = c.toClient
		lens = &c.toClientLens
	}
	if c.flavour == SeqPacket {
		if len(*lens) == 0 {
			if c.dropped.Load() {
				return 0, defs.ECONNCLOSED
			}
			return 0, defs.EWOULDBLOCK
		}
		msgLen := (*lens)[0]
		if len(dst) < msgLen {
			return 0, defs.ETOOLARGE
		}
		n := src.Read(dst[:msgLen])
		*lens = (*lens)[1:]
		return n, 0
	}
	n := src.Read(dst)
	if n == 0 {
		if c.dropped.Load() {
			return 0, defs.ECONNCLOSED
		}
		return 0, defs.EWOULDBLOCK
	}
	return n, 0
}

// PendingConnect is the listen-queue slot spec §4.13 names: connect
// pushes one and blocks on its own readiness flag; accept pops one,
// builds both endpoints, and sets the flag to hand the client end over
// and wake the connecting thread.
type PendingConnect struct {
	ready   atomic.Bool
	dropped atomic.Bool
	Client  *ClientEnd
}

// WaitReason is the WaitingForSocketReady reason a connecting thread
// blocks on until Accept or socket teardown lifts it.
func (p *PendingConnect) WaitReason() ReadyReason {
	return ReadyReason{check: func() bool { return p.ready.Load() || p.dropped.Load() }}
}

// Ready reports whether Accept has produced a Client endpoint, or the
// socket was dropped before that happened.
func (p *PendingConnect) Ready() (client *ClientEnd, connDropped bool) {
	return p.Client, p.dropped.Load()
}

// Socket is a server-owned listening object: a listen queue of
// PendingConnect slots plus a dropped flag (spec §4.13's Socket).
type Socket struct {
	mu          sync.Mutex
	Domain      string
	Flavour     Flavour
	listenQueue []*PendingConnect
	dropped     atomic.Bool
}

// NewSocket creates an unbound, un-listened socket of the given
// domain name and flavour.
func NewSocket(domain string, flavour Flavour) *Socket {
	return &Socket{Domain: domain, Flavour: flavour}
}

// Connect pushes a new listen-queue slot; the caller blocks its
// current thread on the returned slot's WaitReason until Accept (or
// teardown) lifts it.
func (s *Socket) Connect() (*PendingConnect, defs.Err_t) {
	if s.dropped.Load() {
		return nil, defs.ECONNCLOSED
	}
	p := &PendingConnect{}
	s.mu.Lock()
	s.listenQueue = append(s.listenQueue, p)
	s.mu.Unlock()
	return p, 0
}

// Accept pops the oldest pending connect, builds both endpoints of a
// fresh Conn, and wakes the connecting thread. Returns EWOULDBLOCK if
// the listen queue is currently empty.
func (s *Socket) Accept() (*ServerEnd, defs.Err_t) {
	s.mu.Lock()
	if len(s.listenQueue) == 0 {
		s.mu.Unlock()
		if s.dropped.Load() {
			return nil, defs.ECONNCLOSED
		}
		return nil, defs.EWOULDBLOCK
	}
	p := s.listenQueue[0]
	s.listenQueue = s.listenQueue[1:]
	s.mu.Unlock()

	conn := newConn(s.Flavour)
	server := &ServerEnd{conn: conn}
	p.Client = &ClientEnd{conn: conn}
	p.ready.Store(true)
	return server, 0
}

// Drop tears the socket down: every pending connect is woken with
// dropped=true, the listen queue is emptied, and the socket itself is
// marked dropped (spec §4.13: "socket_dropped is set, every waiting
// client wake-flag is set").
func (s *Socket) Drop() {
	s.dropped.Store(true)
	s.mu.Lock()
	pending := s.listenQueue
	s.listenQueue = nil
	s.mu.Unlock()
	for _, p := range pending {
		p.dropped.Store(true)
	}
}

// BindTable maps short domain names to listening sockets (spec
// §4.13's "abstract bind table").
type BindTable struct {
	mu    sync.Mutex
	table map[string]*Socket
}

// NewBindTable creates an empty bind table.
func NewBindTable() *BindTable {
	return &BindTable{table: map[string]*Socket{}}
}

// Bind registers s under name, failing with EEXIST if already taken.
func (b *BindTable) Bind(name string, s *Socket) defs.Err_t {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.table[name]; exists {
		return defs.EEXIST
	}
	b.table[name] = s
	return 0
}

// Lookup resolves a bound name to its socket.
func (b *BindTable) Lookup(name string) (*Socket, defs.Err_t) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.table[name]
	if !ok {
		return nil, defs.ENOTFOUND
	}
	return s, 0
}

// Unbind removes name from the table, if present.
func (b *BindTable) Unbind(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.table, name)
}
