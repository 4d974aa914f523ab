package transport

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"go.uber.org/zap"
)

// ErrClosed is returned by Send when the Connection has already been
// closed.
var ErrClosed = errors.New("transport: connection closed")

// receiveBuffer bounds the queue of packets read before Start() is called
// and drained by the dispatch goroutine. Sized generously since this is a
// local IPC channel, not a network link under backpressure.
const receiveBuffer = 4096

// Handler is invoked once per received packet, in arrival order, from the
// Connection's single dispatch goroutine. Per spec §9 Design Notes
// (Observer rewrite), a Handler must not re-entrantly call back into the
// Connection that invoked it.
type Handler func(packet []byte)

// Connection moves opaque byte-array packets between the broker and one
// peer, preserving order, for as long as the underlying net.Conn stays
// open. It is not reusable after Close.
//
// Incoming bytes are buffered from the moment Open is called so that a
// newly built Server can finish wiring its handlers before Start begins
// dispatching — matching the source's open()/start() split (spec §4.2).
type Connection struct {
	conn   net.Conn
	logger *zap.Logger

	writeMu sync.Mutex

	mu       sync.Mutex
	isOpen   bool
	started  bool
	received chan []byte
	done     chan struct{}
	closeErr error
}

// Open wraps an already-established net.Conn (e.g. accepted from a Unix
// domain socket listener) and immediately begins reading framed packets
// into an internal buffer.
func Open(conn net.Conn, logger *zap.Logger) *Connection {
	c := &Connection{
		conn:     conn,
		logger:   logger,
		isOpen:   true,
		received: make(chan []byte, receiveBuffer),
		done:     make(chan struct{}),
	}
	go c.readLoop()
	return c
}

func (c *Connection) readLoop() {
	defer close(c.received)
	for {
		packet, err := readFrame(c.conn)
		if err != nil {
			var mismatch *VersionMismatchError
			if errors.As(err, &mismatch) {
				c.logger.Warn("transport: aborting session on protocol version mismatch", zap.Error(mismatch))
			} else if !errors.Is(err, io.EOF) {
				c.logger.Debug("transport: read loop ended", zap.Error(err))
			}
			c.setCloseErr(err)
			return
		}
		select {
		case c.received <- packet:
		case <-c.done:
			return
		}
	}
}

func (c *Connection) setCloseErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closeErr == nil {
		c.closeErr = err
	}
}

// Start begins delivering buffered and subsequent packets to handler, in
// arrival order, on a dedicated goroutine. Must be called at most once.
func (c *Connection) Start(handler Handler) {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return
	}
	c.started = true
	c.mu.Unlock()

	go func() {
		for packet := range c.received {
			handler(packet)
		}
	}()
}

// Send writes a packet to the peer. Safe to call concurrently with itself
// and with the read side.
func (c *Connection) Send(packet []byte) error {
	c.mu.Lock()
	open := c.isOpen
	c.mu.Unlock()
	if !open {
		return ErrClosed
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := writeFrame(c.conn, packet); err != nil {
		return fmt.Errorf("transport: send: %w", err)
	}
	return nil
}

// IsOpen reports whether the connection has not yet been closed.
func (c *Connection) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isOpen
}

// Close tears down the underlying transport. Safe to call more than once;
// only the first call has effect.
func (c *Connection) Close() error {
	c.mu.Lock()
	if !c.isOpen {
		c.mu.Unlock()
		return nil
	}
	c.isOpen = false
	c.mu.Unlock()

	close(c.done)
	return c.conn.Close()
}
