package kerberos

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ansel1/merry"
	"github.com/gemalto/flume"
	"github.com/gemalto/kerberos-go/ber"
	"github.com/jcmturner/gokrb5/v8/iana/errorcode"
)

var serverLog = flume.New("krb_server")

// DefaultMaxMessageSize is the largest request the server reads, if
// Server.MaxMessageSize is not set.
const DefaultMaxMessageSize = 1 << 20

// ErrServerClosed is returned by the Server's Serve method after a call to
// Shutdown or Close.
var ErrServerClosed = errors.New("kerberos: Server closed")

// ErrMessageTooLarge is returned when a TCP length prefix exceeds the maximum
// message size.
var ErrMessageTooLarge = errors.New("message too large")

// ErrReservedLengthBit is returned when the high bit of a TCP length prefix is
// set.  RFC 4120 reserves it for extensions.
var ErrReservedLengthBit = errors.New("reserved bit set in length prefix")

// Server serves Kerberos over TCP.  Each message is preceded by its length,
// as a 4 byte big-endian integer.
type Server struct {
	Handler ProtocolHandler
	// MaxMessageSize defaults to DefaultMaxMessageSize.
	MaxMessageSize int
	// IdleTimeout closes connections which send nothing for this long.  Zero
	// means no timeout.
	IdleTimeout time.Duration

	mu         sync.Mutex
	listeners  map[*net.Listener]struct{}
	activeConn map[*conn]struct{}
	inShutdown int32 // accessed atomically (non-zero means we're in Shutdown)
}

// Serve accepts incoming connections on the Listener l, creating a
// new service goroutine for each. The service goroutines read requests and
// then call srv.Handler to reply to them.
//
// Serve always returns a non-nil error and closes l.
// After Shutdown or Close, the returned error is ErrServerClosed.
func (srv *Server) Serve(l net.Listener) error {
	l = &onceCloseListener{Listener: l}
	defer l.Close()

	if !srv.trackListener(&l, true) {
		return ErrServerClosed
	}
	defer srv.trackListener(&l, false)

	var tempDelay time.Duration // how long to sleep on accept failure
	ctx := context.Background()
	for {
		rw, e := l.Accept()
		if e != nil {
			if srv.shuttingDown() {
				return ErrServerClosed
			}
			var ne net.Error
			if errors.As(e, &ne) && ne.Timeout() {
				if tempDelay == 0 {
					tempDelay = 5 * time.Millisecond
				} else {
					tempDelay *= 2
				}
				if max := 1 * time.Second; tempDelay > max {
					tempDelay = max
				}
				serverLog.Error("accept error", "error", e, "retryIn", tempDelay)
				time.Sleep(tempDelay)
				continue
			}
			return e
		}
		tempDelay = 0
		c := &conn{server: srv, rwc: rw}
		srv.trackConn(c, true)
		go c.serve(ctx)
	}
}

// ListenAndServe listens on the TCP address addr and then calls Serve.
func (srv *Server) ListenAndServe(addr string) error {
	if srv.shuttingDown() {
		return ErrServerClosed
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return srv.Serve(ln)
}

// Close immediately closes all active net.Listeners and connections.  For a
// graceful shutdown, use Shutdown.
func (srv *Server) Close() error {
	atomic.StoreInt32(&srv.inShutdown, 1)
	srv.mu.Lock()
	defer srv.mu.Unlock()
	err := srv.closeListenersLocked()
	for c := range srv.activeConn {
		c.rwc.Close()
		delete(srv.activeConn, c)
	}
	return err
}

// shutdownPollInterval is how often we poll for quiescence
// during Server.Shutdown.
var shutdownPollInterval = 500 * time.Millisecond

// Shutdown gracefully shuts down the server without interrupting any
// active requests.  Shutdown closes all open listeners, then waits for
// connections to finish their current request.  Idle connections are closed.
// If the provided context expires before the shutdown is complete,
// Shutdown returns the context's error, otherwise it returns any
// error returned from closing the Server's underlying Listener(s).
func (srv *Server) Shutdown(ctx context.Context) error {
	atomic.StoreInt32(&srv.inShutdown, 1)

	srv.mu.Lock()
	lnerr := srv.closeListenersLocked()
	srv.mu.Unlock()

	ticker := time.NewTicker(shutdownPollInterval)
	defer ticker.Stop()
	for {
		if srv.closeIdleConns() {
			return lnerr
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (srv *Server) closeListenersLocked() error {
	var err error
	for ln := range srv.listeners {
		if cerr := (*ln).Close(); cerr != nil && err == nil {
			err = cerr
		}
		delete(srv.listeners, ln)
	}
	return err
}

// closeIdleConns closes connections which are waiting for a request, and
// reports whether all connections are closed.
func (srv *Server) closeIdleConns() bool {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	quiescent := true
	for c := range srv.activeConn {
		if atomic.LoadInt32(&c.busy) != 0 {
			quiescent = false
			continue
		}
		c.rwc.Close()
		delete(srv.activeConn, c)
	}
	return quiescent
}

// trackListener adds or removes a net.Listener to the set of tracked
// listeners.
//
// We store a pointer to interface in the map set, in case the
// net.Listener is not comparable. This is safe because we only call
// trackListener via Serve and can track+defer untrack the same
// pointer to local variable there. We never need to compare a
// Listener from another caller.
//
// It reports whether the server is still up (not Shutdown or Closed).
func (srv *Server) trackListener(ln *net.Listener, add bool) bool {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	if srv.listeners == nil {
		srv.listeners = make(map[*net.Listener]struct{})
	}
	if add {
		if srv.shuttingDown() {
			return false
		}
		srv.listeners[ln] = struct{}{}
	} else {
		delete(srv.listeners, ln)
	}
	return true
}

func (srv *Server) trackConn(c *conn, add bool) {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	if srv.activeConn == nil {
		srv.activeConn = make(map[*conn]struct{})
	}
	if add {
		srv.activeConn[c] = struct{}{}
	} else {
		delete(srv.activeConn, c)
	}
}

func (srv *Server) shuttingDown() bool {
	return atomic.LoadInt32(&srv.inShutdown) != 0
}

func (srv *Server) maxMessageSize() int {
	if srv.MaxMessageSize > 0 {
		return srv.MaxMessageSize
	}
	return DefaultMaxMessageSize
}

type conn struct {
	rwc        net.Conn
	remoteAddr string
	localAddr  string
	// busy is non-zero while a request is being handled.  Accessed atomically.
	busy int32

	// bufr reads from rwc.
	bufr *bufio.Reader

	server *Server
}

func (c *conn) close() {
	c.rwc.Close()
}

// Serve a new connection.
func (c *conn) serve(ctx context.Context) {
	c.remoteAddr = c.rwc.RemoteAddr().String()
	c.localAddr = c.rwc.LocalAddr().String()

	logger := serverLog.With("remoteAddr", c.remoteAddr)
	ctx = flume.WithLogger(ctx, logger)
	ctx, cancelCtx := context.WithCancel(ctx)

	defer func() {
		if err := recover(); err != nil {
			const size = 64 << 10
			buf := make([]byte, size)
			buf = buf[:runtime.Stack(buf, false)]
			if e, ok := err.(error); ok {
				logger.Error("panic serving connection", "error", Details(e), "stack", string(buf))
			} else {
				logger.Error("panic serving connection", "error", err, "stack", string(buf))
			}
		}
		cancelCtx()
		c.close()
		c.server.trackConn(c, false)
	}()

	c.bufr = bufio.NewReader(c.rwc)

	for {
		if d := c.server.IdleTimeout; d != 0 {
			_ = c.rwc.SetReadDeadline(time.Now().Add(d))
		}

		req, err := c.readRequest(ctx)
		if err != nil {
			switch {
			case errors.Is(err, io.EOF):
				logger.Debug("client closed connection")
			case merry.Is(err, ErrMessageTooLarge, ErrReservedLengthBit):
				// RFC 4120 7.2.2: reply, then close
				logger.Error("rejecting request", "error", err)
				c.writeError(ctx, errorcode.KRB_ERR_FIELD_TOOLONG, err)
			default:
				logger.Debug("read error", "error", err)
			}
			return
		}
		_ = c.rwc.SetReadDeadline(time.Time{})

		h := c.server.Handler
		if h == nil {
			h = DefaultProtocolHandler
		}

		var resp bytes.Buffer
		h.ServeKerberos(ctx, req, &resp)
		err = writeFrame(c.rwc, resp.Bytes())

		atomic.StoreInt32(&c.busy, 0)

		if err != nil {
			logger.Error("error writing response", "error", err)
			return
		}

		if c.server.shuttingDown() {
			return
		}
	}
}

func (c *conn) writeError(ctx context.Context, code int32, err error) {
	kerr := newKrbError(code, "", merry.Message(err))
	if h, ok := c.server.Handler.(*StandardProtocolHandler); ok {
		kerr.complete(h.Realm, h.ServerName)
	} else {
		kerr.complete("", PrincipalName{})
	}
	b, merr := Marshal(kerr)
	if merr != nil {
		flume.FromContext(ctx).Error("error marshaling KRB-ERROR", "error", merr)
		return
	}
	_ = writeFrame(c.rwc, b)
}

// Read next request from connection.
// readRequest waits for the next frame.  The connection counts as busy from
// the frame's first octet, so Shutdown does not close it mid request.
func (c *conn) readRequest(ctx context.Context) (*Request, error) {
	if _, err := c.bufr.Peek(1); err != nil {
		return nil, err
	}
	atomic.StoreInt32(&c.busy, 1)

	msg, err := readFrame(c.bufr, c.server.maxMessageSize())
	if err != nil {
		return nil, err
	}

	return &Request{
		Message:    msg,
		RemoteAddr: c.remoteAddr,
		LocalAddr:  c.localAddr,
	}, nil
}

// Request is a message received by the server.
type Request struct {
	// Message is the raw request, without the length prefix.
	Message []byte
	// MessageType and Value are set by the protocol handler, once the
	// message is decoded.  Value is a pointer, e.g. *AsReq.
	MessageType MessageType
	Value       interface{}

	RemoteAddr string
	LocalAddr  string
}

// readFrame reads one length prefixed message.
func readFrame(r io.Reader, max int) ([]byte, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(hdr[:])
	if n&0x80000000 != 0 {
		return nil, merry.Here(ErrReservedLengthBit).Appendf("length prefix %#x", n)
	}
	if int64(n) > int64(max) {
		return nil, merry.Here(ErrMessageTooLarge).Appendf("%d bytes, max is %d", n, max)
	}
	msg := make([]byte, n)
	if _, err := io.ReadFull(r, msg); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, merry.Prepend(err, "reading message")
	}
	return msg, nil
}

// writeFrame writes msg preceded by its length.
func writeFrame(w io.Writer, msg []byte) error {
	b := make([]byte, 4, 4+len(msg))
	binary.BigEndian.PutUint32(b, uint32(len(msg)))
	b = append(b, msg...)
	_, err := w.Write(b)
	return err
}

// onceCloseListener wraps a net.Listener, protecting it from
// multiple Close calls.
type onceCloseListener struct {
	net.Listener
	once     sync.Once
	closeErr error
}

func (oc *onceCloseListener) Close() error {
	oc.once.Do(oc.close)
	return oc.closeErr
}

func (oc *onceCloseListener) close() { oc.closeErr = oc.Listener.Close() }

// used for traffic logs
func tlvString(b []byte) string {
	return ber.TLV(b).String()
}
