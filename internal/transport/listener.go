package transport

import (
	"fmt"
	"net"
	"os"

	"go.uber.org/zap"
)

// Listener binds to a single named IPC endpoint and emits one Connection
// per accepted peer. Exactly one Listener exists per broker, per spec §4.2.
//
// The endpoint name is a filesystem path to a Unix domain socket. The
// broker binary is named `MoleQueue`; test harnesses use
// `MoleQueue-testing` so that a developer's real broker and its test suite
// never collide on the same socket (spec §6).
type Listener struct {
	name     string
	listener net.Listener
	logger   *zap.Logger
}

// Listen binds a Listener to name, removing any stale socket file left
// behind by a previous unclean shutdown before binding.
func Listen(name string, logger *zap.Logger) (*Listener, error) {
	if err := os.Remove(name); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("transport: clear stale socket %s: %w", name, err)
	}

	ln, err := net.Listen("unix", name)
	if err != nil {
		return nil, fmt.Errorf("transport: listen on %s: %w", name, err)
	}
	return &Listener{name: name, listener: ln, logger: logger}, nil
}

// Accept blocks until a peer connects and returns its opened Connection.
// Per spec, the returned Connection buffers incoming packets until the
// caller invokes Start.
func (l *Listener) Accept() (*Connection, error) {
	conn, err := l.listener.Accept()
	if err != nil {
		return nil, fmt.Errorf("transport: accept: %w", err)
	}
	return Open(conn, l.logger), nil
}

// Close stops accepting new connections and releases the socket file.
func (l *Listener) Close() error {
	err := l.listener.Close()
	_ = os.Remove(l.name)
	return err
}

// Name returns the endpoint name this Listener is bound to.
func (l *Listener) Name() string { return l.name }
