// Package sock implements the Unix-domain stream socket of spec.md
// §4.10: a bind/listen/connect/accept state machine where each connected
// peer owns its own receive buffer, and the two peers share one
// connection mutex. Grounded on
// original_source/kernel/include/dennix/kernel/streamsocket.h
// (StreamSocket's receiveBuffer/receiveCond/sendCond/ConnectionMutex
// fields) and the shared-mutex-pair idiom biscuit/src/vm uses for
// locking two related objects under one lock.
package sock

import (
	"dennix/circbuf"
	"dennix/defs"
	"dennix/kmutex"
	"dennix/refcount"
	"dennix/stat"
	"dennix/vfs"
)

// bufSize is the per-socket receive buffer capacity. Not spec-mandated;
// chosen to match the pipe's PIPE_BUF-scale buffering, spec.md §4.8.
const bufSize = 4096

type state int

const (
	stateUnbound state = iota
	stateBound
	stateListening
	stateConnecting
	stateConnected
	stateClosed
)

// connMutex is the lock two connected peers share, spec.md §4.10:
// "allocates a new server-side socket sharing a ConnectionMutex with the
// peer." It is itself reference counted since either peer closing first
// must not invalidate the other's still-live lock.
type connMutex struct {
	refcount.Counted
	mu kmutex.Mutex
}

// addrSpace is the bind namespace: a flat map from address string to the
// bound/listening socket that owns it, guarded by its own mutex since it
// is process-wide rather than per-socket state.
type addrSpace struct {
	mu    kmutex.Mutex
	bound map[string]*Socket
}

var namespace = addrSpace{bound: make(map[string]*Socket)}

// Socket is one endpoint of a Unix-domain stream socket.
type Socket struct {
	refcount.Counted
	mu    kmutex.Mutex
	state state
	addr  string

	// Listening-socket accept queue.
	acceptCond kmutex.Cond
	pending    []*Socket
	backlog    int

	// Connecting-socket handshake.
	connectCond kmutex.Cond
	refused     bool

	// Connected-socket data path. recvBuf is filled by the peer's Write
	// and drained by this socket's own Read; conn is shared with peer.
	conn        *connMutex
	peer        *Socket
	recvBuf     *circbuf.Circbuf
	receiveCond kmutex.Cond // broadcast when recvBuf gains data
	sendCond    kmutex.Cond // broadcast when recvBuf gains room
	peerClosed  bool
	selfClosed  bool
}

// New constructs an unbound, unconnected socket.
func New() *Socket {
	s := &Socket{}
	s.Init()
	return s
}

func (s *Socket) IsDir() bool { return false }

func (s *Socket) Stat() (stat.Stat_t, defs.Err_t) {
	return stat.Stat_t{Mode: stat.IFSOCK | 0777}, 0
}

// Bind transitions unbound -> bound, spec.md §4.10, failing if addr is
// already taken.
func (s *Socket) Bind(addr string) defs.Err_t {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != stateUnbound {
		return -defs.EINVAL
	}
	namespace.mu.Lock()
	defer namespace.mu.Unlock()
	if _, taken := namespace.bound[addr]; taken {
		return -defs.EADDRINUSE
	}
	namespace.bound[addr] = s
	s.addr = addr
	s.state = stateBound
	return 0
}

// Listen transitions bound -> listening and initializes the accept
// queue, spec.md §4.10.
func (s *Socket) Listen(backlog int) defs.Err_t {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != stateBound {
		return -defs.EINVAL
	}
	if backlog <= 0 {
		backlog = 1
	}
	s.backlog = backlog
	s.state = stateListening
	return 0
}

// Connect transitions unbound/bound -> connecting -> connected once the
// server-side Accept consumes the queued request, spec.md §4.10.
func (s *Socket) Connect(addr string) defs.Err_t {
	s.mu.Lock()
	if s.state != stateUnbound && s.state != stateBound {
		s.mu.Unlock()
		return -defs.EISCONN
	}
	s.mu.Unlock()

	namespace.mu.Lock()
	target, ok := namespace.bound[addr]
	namespace.mu.Unlock()
	if !ok {
		return -defs.ECONNREFUSED
	}

	target.mu.Lock()
	if target.state != stateListening {
		target.mu.Unlock()
		return -defs.ECONNREFUSED
	}
	if len(target.pending) >= target.backlog {
		target.mu.Unlock()
		return -defs.ECONNREFUSED
	}

	s.mu.Lock()
	s.state = stateConnecting
	s.mu.Unlock()

	target.pending = append(target.pending, s)
	target.acceptCond.Signal()
	target.mu.Unlock()

	s.mu.Lock()
	for s.state == stateConnecting {
		s.connectCond.Wait(&s.mu)
	}
	refused := s.refused
	s.mu.Unlock()
	if refused {
		return -defs.ECONNREFUSED
	}
	return 0
}

// Accept pops the first queued connecting peer, allocates a new
// server-side socket sharing a ConnectionMutex with it, and returns that
// new socket, spec.md §4.10. The listening socket itself remains
// listening.
func (s *Socket) Accept() (*Socket, defs.Err_t) {
	s.mu.Lock()
	if s.state != stateListening {
		s.mu.Unlock()
		return nil, -defs.EINVAL
	}
	for len(s.pending) == 0 {
		s.acceptCond.Wait(&s.mu)
		if s.state != stateListening {
			s.mu.Unlock()
			return nil, -defs.EINVAL
		}
	}
	client := s.pending[0]
	s.pending = s.pending[1:]
	s.mu.Unlock()

	server := New()
	conn := &connMutex{}
	conn.Init()
	server.conn = conn
	server.recvBuf = circbuf.New(bufSize)
	server.peer = client
	server.state = stateConnected

	client.mu.Lock()
	client.conn = conn
	client.recvBuf = circbuf.New(bufSize)
	client.peer = server
	client.state = stateConnected
	client.connectCond.Broadcast()
	client.mu.Unlock()

	return server, 0
}

// Read consumes from this socket's own receive buffer, blocking until
// data arrives or the peer closes (returning end-of-file), spec.md
// §4.10.
func (s *Socket) Read(dst []byte) (int, defs.Err_t) {
	if len(dst) == 0 {
		return 0, 0
	}
	s.mu.Lock()
	if s.state != stateConnected {
		s.mu.Unlock()
		return 0, -defs.ENOTCONN
	}
	conn := s.conn
	s.mu.Unlock()

	conn.mu.Lock()
	defer conn.mu.Unlock()
	for s.recvBuf.Empty() && !s.peerClosed {
		s.receiveCond.Wait(&conn.mu)
	}
	if s.recvBuf.Empty() {
		return 0, 0 // peer closed with nothing left buffered: end-of-file
	}
	n := s.recvBuf.Read(dst)
	s.sendCond.Broadcast()
	return n, 0
}

// Write appends to the peer's receive buffer, blocking while it is full,
// spec.md §4.10. Returns EPIPE if the peer has already closed.
func (s *Socket) Write(src []byte) (int, defs.Err_t) {
	s.mu.Lock()
	if s.state != stateConnected {
		s.mu.Unlock()
		return 0, -defs.ENOTCONN
	}
	conn, peer := s.conn, s.peer
	s.mu.Unlock()

	conn.mu.Lock()
	defer conn.mu.Unlock()
	if s.peerClosed {
		return 0, -defs.EPIPE
	}
	total := 0
	for total < len(src) {
		for peer.recvBuf.Left() == 0 {
			if s.peerClosed {
				if total > 0 {
					return total, 0
				}
				return 0, -defs.EPIPE
			}
			peer.sendCond.Wait(&conn.mu)
		}
		n := peer.recvBuf.Write(src[total:])
		total += n
		peer.receiveCond.Broadcast()
	}
	return total, 0
}

// Close tears down the socket: releases any bound address, and for a
// connected socket, marks itself closed to the peer and wakes it so a
// blocked Read observes end-of-file and a blocked Write observes EPIPE.
func (s *Socket) Close() {
	s.mu.Lock()
	addr, wasBound := s.addr, s.state == stateBound || s.state == stateListening
	wasListening := s.state == stateListening
	conn := s.conn
	peer := s.peer
	pending := s.pending
	s.pending = nil
	s.state = stateClosed
	s.mu.Unlock()

	if wasBound {
		namespace.mu.Lock()
		delete(namespace.bound, addr)
		namespace.mu.Unlock()
	}
	if wasListening {
		s.acceptCond.Broadcast() // wake a thread blocked in Accept
	}

	// A listening socket may still have connecting peers queued; refuse
	// them rather than leaving Connect blocked forever.
	for _, client := range pending {
		client.mu.Lock()
		if client.state == stateConnecting {
			client.refused = true
			client.state = stateClosed
			client.connectCond.Broadcast()
		}
		client.mu.Unlock()
	}

	if conn == nil {
		return
	}
	conn.mu.Lock()
	s.selfClosed = true
	if peer != nil {
		peer.peerClosed = true
		peer.receiveCond.Broadcast()
		peer.sendCond.Broadcast()
	}
	conn.mu.Unlock()
}

// Poll implements vfs.Poller. A listening socket is readable once a
// connection is queued to Accept; a connected socket is readable once
// its receive buffer holds data or the peer has closed (end-of-file
// reads as ready), and writable once the peer's buffer has room or the
// peer has closed (ready-for-EPIPE). POLLHUP is reported once the peer
// has closed a connected socket, regardless of events.
func (s *Socket) Poll(events uint16) uint16 {
	s.mu.Lock()
	state := s.state
	var raw uint16
	switch state {
	case stateListening:
		if len(s.pending) > 0 {
			raw |= vfs.POLLIN | vfs.POLLRDNORM
		}
		s.mu.Unlock()
	case stateConnected:
		conn, peer := s.conn, s.peer
		s.mu.Unlock()
		conn.mu.Lock()
		if !s.recvBuf.Empty() || s.peerClosed {
			raw |= vfs.POLLIN | vfs.POLLRDNORM
		}
		if peer.recvBuf.Left() > 0 || s.peerClosed {
			raw |= vfs.POLLOUT | vfs.POLLWRNORM
		}
		if s.peerClosed {
			raw |= vfs.POLLHUP
		}
		conn.mu.Unlock()
	default:
		s.mu.Unlock()
		raw |= vfs.POLLNVAL
	}
	return (raw & events) | (raw & (vfs.POLLERR | vfs.POLLHUP | vfs.POLLNVAL))
}
