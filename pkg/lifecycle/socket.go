package lifecycle

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// Binder creates the listening socket at construction time.
type Binder interface {
	Bind(host string, port int) (net.Listener, error)
}

// TCPBinder binds plain TCP sockets.
type TCPBinder struct{}

// Bind implements the Binder interface.
func (TCPBinder) Bind(host string, port int) (net.Listener, error) {
	return net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
}

// HTTPServer is the HTTP layer serving the bound socket. *http.Server
// implements it.
type HTTPServer interface {
	Serve(l net.Listener) error
	Shutdown(ctx context.Context) error
	Close() error
}

var _ HTTPServer = (*http.Server)(nil)

// deadliner is implemented by *net.TCPListener and *net.UnixListener.
// SetDeadline fails once the listener is closed.
type deadliner interface {
	SetDeadline(t time.Time) error
}

// checkOpen reports an error if l is known to be closed.
func checkOpen(l net.Listener) error {
	if d, ok := l.(deadliner); ok {
		return d.SetDeadline(time.Time{})
	}
	return nil
}

// acceptNotifier closes accepting the first time the HTTP layer calls Accept.
type acceptNotifier struct {
	net.Listener
	once      sync.Once
	accepting chan struct{}
}

func newAcceptNotifier(l net.Listener) *acceptNotifier {
	return &acceptNotifier{Listener: l, accepting: make(chan struct{})}
}

func (n *acceptNotifier) Accept() (net.Conn, error) {
	n.once.Do(func() { close(n.accepting) })
	return n.Listener.Accept()
}

// noContent answers every request with 204.
func noContent(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}
