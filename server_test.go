package kerberos

import (
	"bytes"
	"context"
	"io"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ansel1/merry"
	"github.com/gemalto/flume/flumetest"
	"github.com/jcmturner/gokrb5/v8/iana/errorcode"
	"github.com/jcmturner/gokrb5/v8/iana/msgtype"
	"github.com/jcmturner/gokrb5/v8/iana/nametype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testRealm = "EXAMPLE.COM"

func startServer(t *testing.T, srv *Server) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go srv.Serve(ln)
	t.Cleanup(func() {
		srv.Close()
	})
	return ln.Addr().String()
}

func dial(t *testing.T, addr string) *Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := Dial(ctx, addr)
	require.NoError(t, err)
	t.Cleanup(func() {
		c.Close()
	})
	return c
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func requireKrbError(t *testing.T, mt MessageType, v interface{}, code int32) *KrbError {
	t.Helper()
	require.Equal(t, MessageTypeKrbError, mt)
	kerr, ok := v.(*KrbError)
	require.True(t, ok, "%T", v)
	assert.Equal(t, code, kerr.ErrorCode, kerr.EText)
	return kerr
}

func testMux() *MessageMux {
	mux := &MessageMux{}
	mux.HandleFunc(MessageTypeAsReq, func(ctx context.Context, req *Request) (interface{}, error) {
		asReq := req.Value.(*AsReq)
		kerr := NewKrbError(errorcode.KDC_ERR_PREAUTH_REQUIRED, asReq.ReqBody.Realm, *asReq.ReqBody.SName, "")
		kerr.CRealm = asReq.ReqBody.Realm
		kerr.CName = asReq.ReqBody.CName
		return kerr, nil
	})
	mux.HandleFunc(MessageTypeTgsReq, func(ctx context.Context, req *Request) (interface{}, error) {
		return nil, WithErrorCode(merry.New("no such service").WithUserMessage("service unknown"), errorcode.KDC_ERR_S_PRINCIPAL_UNKNOWN)
	})
	mux.HandleFunc(MessageTypeApReq, func(ctx context.Context, req *Request) (interface{}, error) {
		return &ApRep{
			Pvno:    5,
			MsgType: msgtype.KRB_AP_REP,
			EncPart: EncryptedData{EType: 18, Cipher: []byte("ok")},
		}, nil
	})
	return mux
}

func TestServer(t *testing.T) {
	defer flumetest.Start(t)()

	addr := startServer(t, &Server{Handler: &StandardProtocolHandler{
		MessageHandler: testMux(),
		Realm:          testRealm,
		LogTraffic:     true,
	}})
	client := dial(t, addr)
	ctx := testContext(t)

	t.Run("handled", func(t *testing.T) {
		mt, v, err := client.Do(ctx, &AsReq{KdcReq: sampleKdcReq(msgtype.KRB_AS_REQ)})
		require.NoError(t, err)
		kerr := requireKrbError(t, mt, v, errorcode.KDC_ERR_PREAUTH_REQUIRED)
		assert.Equal(t, "ATHENA.MIT.EDU", kerr.Realm)
		assert.Equal(t, sampleSrv, kerr.SName)
		assert.Equal(t, &sampleName, kerr.CName)
		assert.False(t, kerr.STime.IsZero())
	})

	t.Run("reply", func(t *testing.T) {
		mt, v, err := client.Do(ctx, &ApReq{
			Pvno:          5,
			MsgType:       msgtype.KRB_AP_REQ,
			Ticket:        sampleTicket,
			Authenticator: sampleEncData,
		})
		require.NoError(t, err)
		require.Equal(t, MessageTypeApRep, mt)
		assert.Equal(t, []byte("ok"), v.(*ApRep).EncPart.Cipher)
	})

	t.Run("handler error", func(t *testing.T) {
		mt, v, err := client.Do(ctx, &TgsReq{KdcReq: sampleKdcReq(msgtype.KRB_TGS_REQ)})
		require.NoError(t, err)
		kerr := requireKrbError(t, mt, v, errorcode.KDC_ERR_S_PRINCIPAL_UNKNOWN)
		assert.Equal(t, "service unknown", kerr.EText)
		// filled in by the protocol handler
		assert.Equal(t, testRealm, kerr.Realm)
		assert.Equal(t, NewPrincipalName(nametype.KRB_NT_SRV_INST, "krbtgt", testRealm), kerr.SName)
	})

	t.Run("no handler", func(t *testing.T) {
		mt, v, err := client.Do(ctx, &AsRep{KdcRep: withMsgType(sampleKdcRep, msgtype.KRB_AS_REP)})
		require.NoError(t, err)
		requireKrbError(t, mt, v, errorcode.KRB_AP_ERR_MSG_TYPE)
	})

	t.Run("garbage", func(t *testing.T) {
		b, err := client.RoundTrip(ctx, []byte{0x6A, 0x02, 0x30})
		require.NoError(t, err)
		mt, v, err := DecodeAny(b)
		require.NoError(t, err)
		kerr := requireKrbError(t, mt, v, errorcode.KRB_ERR_GENERIC)
		assert.Contains(t, kerr.EText, "failed to parse message")
	})

	// the connection is still usable after errors
	t.Run("reuse", func(t *testing.T) {
		_, _, err := client.Do(ctx, &AsReq{KdcReq: sampleKdcReq(msgtype.KRB_AS_REQ)})
		require.NoError(t, err)
	})
}

func TestServer_oversizedMessage(t *testing.T) {
	defer flumetest.Start(t)()

	addr := startServer(t, &Server{
		Handler:        &StandardProtocolHandler{MessageHandler: testMux(), Realm: testRealm},
		MaxMessageSize: 64,
	})

	tests := []struct {
		name   string
		header []byte
	}{
		{"reserved bit", []byte{0x80, 0, 0, 5}},
		{"too large", []byte{0, 0, 0, 65}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			conn, err := net.Dial("tcp", addr)
			require.NoError(t, err)
			defer conn.Close()
			require.NoError(t, conn.SetDeadline(time.Now().Add(5*time.Second)))

			_, err = conn.Write(tc.header)
			require.NoError(t, err)

			b, err := readFrame(conn, DefaultMaxMessageSize)
			require.NoError(t, err)
			mt, v, err := DecodeAny(b)
			require.NoError(t, err)
			kerr := requireKrbError(t, mt, v, errorcode.KRB_ERR_FIELD_TOOLONG)
			assert.Equal(t, testRealm, kerr.Realm)

			// then the server hangs up
			_, err = readFrame(conn, DefaultMaxMessageSize)
			assert.ErrorIs(t, err, io.EOF)
		})
	}
}

func TestServer_Shutdown(t *testing.T) {
	defer flumetest.Start(t)()

	srv := &Server{Handler: &StandardProtocolHandler{MessageHandler: testMux()}}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	errc := make(chan error, 1)
	go func() {
		errc <- srv.Serve(ln)
	}()

	client := dial(t, ln.Addr().String())
	_, _, err = client.Do(testContext(t), &AsReq{KdcReq: sampleKdcReq(msgtype.KRB_AS_REQ)})
	require.NoError(t, err)

	require.NoError(t, srv.Shutdown(testContext(t)))

	select {
	case err := <-errc:
		assert.Equal(t, ErrServerClosed, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return")
	}

	// idle connections are closed
	_, err = client.RoundTrip(testContext(t), []byte{0x30, 0x00})
	assert.Error(t, err)

	assert.Equal(t, ErrServerClosed, srv.ListenAndServe("127.0.0.1:0"))
}

func busyConns(srv *Server) int {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	var n int
	for c := range srv.activeConn {
		if atomic.LoadInt32(&c.busy) != 0 {
			n++
		}
	}
	return n
}

func TestServer_Shutdown_requestInFlight(t *testing.T) {
	defer flumetest.Start(t)()

	srv := &Server{Handler: &StandardProtocolHandler{MessageHandler: testMux()}}
	addr := startServer(t, srv)

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetDeadline(time.Now().Add(10*time.Second)))

	req, err := Marshal(&AsReq{KdcReq: sampleKdcReq(msgtype.KRB_AS_REQ)})
	require.NoError(t, err)
	var frame bytes.Buffer
	require.NoError(t, writeFrame(&frame, req))
	b := frame.Bytes()

	// the length prefix and the start of the message
	_, err = conn.Write(b[:6])
	require.NoError(t, err)
	require.Eventually(t, func() bool { return busyConns(srv) == 1 }, 5*time.Second, 10*time.Millisecond)

	ctx := testContext(t)
	shutdownErr := make(chan error, 1)
	go func() {
		shutdownErr <- srv.Shutdown(ctx)
	}()
	require.Eventually(t, srv.shuttingDown, 5*time.Second, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)

	// the connection survives the shutdown, and the request is answered
	_, err = conn.Write(b[6:])
	require.NoError(t, err)
	reply, err := readFrame(conn, DefaultMaxMessageSize)
	require.NoError(t, err)
	_, _, err = DecodeAny(reply)
	require.NoError(t, err)

	select {
	case err := <-shutdownErr:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Shutdown did not return")
	}

	// then the server hangs up
	_, err = readFrame(conn, DefaultMaxMessageSize)
	assert.Error(t, err)
}

func TestFrames(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeFrame(&buf, []byte("abc")))
	assert.Equal(t, []byte{0, 0, 0, 3, 'a', 'b', 'c'}, buf.Bytes())

	msg, err := readFrame(&buf, 3)
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), msg)

	_, err = readFrame(&buf, 3)
	assert.Equal(t, io.EOF, err)

	_, err = readFrame(bytes.NewReader([]byte{0, 0, 0, 4, 'a'}), 10)
	assert.True(t, merry.Is(err, io.ErrUnexpectedEOF), "%v", err)

	_, err = readFrame(bytes.NewReader([]byte{0, 0, 0, 4, 'a', 'b', 'c', 'd'}), 3)
	assert.True(t, merry.Is(err, ErrMessageTooLarge), "%v", err)

	_, err = readFrame(bytes.NewReader([]byte{0xFF, 0, 0, 0}), 10)
	assert.True(t, merry.Is(err, ErrReservedLengthBit), "%v", err)

	// empty messages are framed like any other
	buf.Reset()
	require.NoError(t, writeFrame(&buf, nil))
	msg, err = readFrame(&buf, 3)
	require.NoError(t, err)
	assert.Empty(t, msg)
}

func TestDefaultErrorHandler(t *testing.T) {
	kerr := DefaultErrorHandler.HandleError(merry.New("boom"))
	assert.Equal(t, errorcode.KRB_ERR_GENERIC, kerr.ErrorCode)
	assert.Equal(t, "boom", kerr.EText)

	kerr = DefaultErrorHandler.HandleError(WithErrorCode(merry.New("boom").WithUserMessage("bang"), errorcode.KDC_ERR_PREAUTH_FAILED))
	assert.Equal(t, errorcode.KDC_ERR_PREAUTH_FAILED, kerr.ErrorCode)
	assert.Equal(t, "bang", kerr.EText)

	// incomplete errors can't be encoded until the server fills them in
	_, err := Marshal(kerr)
	assert.True(t, Is(err, ErrMissingField))
	kerr.complete(testRealm, PrincipalName{})
	_, err = Marshal(kerr)
	assert.NoError(t, err)
}
