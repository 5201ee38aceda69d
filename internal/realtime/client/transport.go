package client

import "context"

// Transport opens authenticated connections to the realtime gateway.
type Transport interface {
	Dial(ctx context.Context, credential string) (Conn, error)
}

// Conn is one live socket. Read blocks until a frame arrives. Write is
// called by one goroutine at a time.
type Conn interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, frame []byte) error
	Close() error
}
