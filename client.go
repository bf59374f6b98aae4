package kerberos

import (
	"context"
	"net"
	"sync"

	"github.com/ansel1/merry"
)

// Client sends requests to a KDC over TCP.  Requests on one Client are sent one
// at a time.
type Client struct {
	// MaxMessageSize limits the size of replies.  Defaults to
	// DefaultMaxMessageSize.
	MaxMessageSize int
	Decoder        Decoder

	mu   sync.Mutex
	conn net.Conn
}

// Dial connects to the KDC at addr.
func Dial(ctx context.Context, addr string) (*Client, error) {
	var d net.Dialer
	c, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, merry.Prepend(err, "dialing KDC")
	}
	return &Client{conn: c}, nil
}

// NewClient returns a Client using an existing connection.
func NewClient(c net.Conn) *Client {
	return &Client{conn: c}
}

func (c *Client) Close() error {
	return c.conn.Close()
}

// Do sends the message req, e.g. an *AsReq, and decodes the reply.
func (c *Client) Do(ctx context.Context, req interface{}) (MessageType, interface{}, error) {
	b, err := Marshal(req)
	if err != nil {
		return MessageTypeUnknown, nil, err
	}
	resp, err := c.RoundTrip(ctx, b)
	if err != nil {
		return MessageTypeUnknown, nil, err
	}
	return c.Decoder.DecodeAny(resp)
}

// RoundTrip sends an encoded message and returns the encoded reply.
func (c *Client) RoundTrip(ctx context.Context, msg []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// zero if ctx has no deadline
	deadline, _ := ctx.Deadline()
	if err := c.conn.SetDeadline(deadline); err != nil {
		return nil, merry.Wrap(err)
	}

	if err := writeFrame(c.conn, msg); err != nil {
		return nil, merry.Prepend(err, "sending request")
	}

	max := c.MaxMessageSize
	if max <= 0 {
		max = DefaultMaxMessageSize
	}
	resp, err := readFrame(c.conn, max)
	if err != nil {
		return nil, merry.Prepend(err, "reading reply")
	}
	return resp, nil
}
