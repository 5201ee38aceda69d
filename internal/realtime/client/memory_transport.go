package client

import (
	"context"
	"errors"
	"sync"

	"rentme-realtime/internal/realtime/wire"
)

var errMemoryClosed = errors.New("memory transport: connection closed")

// MemoryTransport connects sessions to an in-process peer. Each successful
// Dial produces a MemoryPeer that plays the server side.
type MemoryTransport struct {
	mu        sync.Mutex
	authorize func(credential string) error
	failures  []error
	peers     chan *MemoryPeer
	dials     int
}

func NewMemoryTransport() *MemoryTransport {
	return &MemoryTransport{peers: make(chan *MemoryPeer, 16)}
}

// Authorize installs a credential check run on every dial.
func (t *MemoryTransport) Authorize(fn func(credential string) error) {
	t.mu.Lock()
	t.authorize = fn
	t.mu.Unlock()
}

// FailNext makes the next dial return err.
func (t *MemoryTransport) FailNext(err error) {
	t.mu.Lock()
	t.failures = append(t.failures, err)
	t.mu.Unlock()
}

// Dials counts dial attempts, failed ones included.
func (t *MemoryTransport) Dials() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dials
}

func (t *MemoryTransport) Dial(ctx context.Context, credential string) (Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, &TransportError{Op: "dial", Err: err}
	}
	t.mu.Lock()
	t.dials++
	if len(t.failures) > 0 {
		err := t.failures[0]
		t.failures = t.failures[1:]
		t.mu.Unlock()
		return nil, err
	}
	authorize := t.authorize
	t.mu.Unlock()
	if credential == "" {
		return nil, &AuthError{Reason: "missing credential"}
	}
	if authorize != nil {
		if err := authorize(credential); err != nil {
			return nil, &AuthError{Reason: "rejected", Err: err}
		}
	}
	peer := &MemoryPeer{
		Credential: credential,
		toServer:   make(chan []byte, 1024),
		toClient:   make(chan []byte, 1024),
		closed:     make(chan struct{}),
	}
	select {
	case t.peers <- peer:
	default:
		return nil, &TransportError{Op: "dial", Err: errors.New("memory transport: accept backlog full")}
	}
	return &memoryConn{peer: peer}, nil
}

// Accept waits for the next dialed peer.
func (t *MemoryTransport) Accept(ctx context.Context) (*MemoryPeer, error) {
	select {
	case p := <-t.peers:
		return p, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// MemoryPeer is the server end of an in-memory connection.
type MemoryPeer struct {
	Credential string

	toServer chan []byte
	toClient chan []byte
	once     sync.Once
	closed   chan struct{}
	authErr  error
}

// Recv returns the next event written by the client.
func (p *MemoryPeer) Recv(ctx context.Context) (wire.Event, error) {
	select {
	case frame := <-p.toServer:
		return wire.Decode(frame)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Send encodes ev and queues it for the client.
func (p *MemoryPeer) Send(ev wire.Event) error {
	frame, err := wire.Encode(ev)
	if err != nil {
		return err
	}
	return p.SendRaw(frame)
}

// SendRaw queues an arbitrary frame, valid or not.
func (p *MemoryPeer) SendRaw(frame []byte) error {
	select {
	case <-p.closed:
		return errMemoryClosed
	default:
	}
	select {
	case p.toClient <- frame:
		return nil
	case <-p.closed:
		return errMemoryClosed
	}
}

// Drop severs the connection as a network failure would.
func (p *MemoryPeer) Drop() {
	p.once.Do(func() { close(p.closed) })
}

// Revoke severs the connection with an auth failure.
func (p *MemoryPeer) Revoke() {
	p.once.Do(func() {
		p.authErr = &AuthError{Reason: "session revoked"}
		close(p.closed)
	})
}

// Closed is closed once either side ends the connection.
func (p *MemoryPeer) Closed() <-chan struct{} {
	return p.closed
}

type memoryConn struct {
	peer *MemoryPeer
}

func (c *memoryConn) Read(ctx context.Context) ([]byte, error) {
	select {
	case frame := <-c.peer.toClient:
		return frame, nil
	default:
	}
	select {
	case frame := <-c.peer.toClient:
		return frame, nil
	case <-c.peer.closed:
		if c.peer.authErr != nil {
			return nil, c.peer.authErr
		}
		return nil, &TransportError{Op: "read", Err: errMemoryClosed}
	case <-ctx.Done():
		return nil, &TransportError{Op: "read", Err: ctx.Err()}
	}
}

func (c *memoryConn) Write(ctx context.Context, frame []byte) error {
	select {
	case <-c.peer.closed:
		return &TransportError{Op: "write", Err: errMemoryClosed}
	default:
	}
	select {
	case c.peer.toServer <- frame:
		return nil
	case <-c.peer.closed:
		return &TransportError{Op: "write", Err: errMemoryClosed}
	case <-ctx.Done():
		return &TransportError{Op: "write", Err: ctx.Err()}
	}
}

func (c *memoryConn) Close() error {
	c.peer.Drop()
	return nil
}
