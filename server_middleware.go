package kerberos

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/ansel1/merry"
	"github.com/gemalto/flume"
	"github.com/google/uuid"
	"github.com/jcmturner/gokrb5/v8/iana"
	"github.com/jcmturner/gokrb5/v8/iana/errorcode"
	"github.com/jcmturner/gokrb5/v8/iana/msgtype"
	"github.com/jcmturner/gokrb5/v8/iana/nametype"
)

type ResponseWriter interface {
	io.Writer
}

type ProtocolHandler interface {
	ServeKerberos(ctx context.Context, req *Request, resp ResponseWriter)
}

// MessageHandler handles a decoded request, and returns the reply message,
// e.g. an *AsRep or a *KrbError.
type MessageHandler interface {
	HandleMessage(ctx context.Context, req *Request) (interface{}, error)
}

type ProtocolHandlerFunc func(context.Context, *Request, ResponseWriter)

func (f ProtocolHandlerFunc) ServeKerberos(ctx context.Context, r *Request, w ResponseWriter) {
	f(ctx, r, w)
}

type MessageHandlerFunc func(context.Context, *Request) (interface{}, error)

func (f MessageHandlerFunc) HandleMessage(ctx context.Context, req *Request) (interface{}, error) {
	return f(ctx, req)
}

var DefaultProtocolHandler = &StandardProtocolHandler{
	MessageHandler: DefaultMessageMux,
}

var DefaultMessageMux = &MessageMux{}

// StandardProtocolHandler decodes requests, passes them to MessageHandler, and
// encodes the replies.  Errors are returned to the client as KRB-ERROR
// messages.
type StandardProtocolHandler struct {
	MessageHandler MessageHandler
	// Realm and ServerName fill the realm and sname of KRB-ERROR replies.
	Realm      string
	ServerName PrincipalName
	// ErrorHandler converts handler errors into KRB-ERROR replies.  Defaults
	// to DefaultErrorHandler.
	ErrorHandler ErrorHandler
	Decoder      Decoder
	LogTraffic   bool
}

func (h *StandardProtocolHandler) handleRequest(ctx context.Context, req *Request) (reply interface{}, err error) {
	mt, v, err := h.Decoder.DecodeAny(req.Message)
	if err != nil {
		return nil, WithErrorCode(merry.Prepend(err, "failed to parse message"), errorcode.KRB_ERR_GENERIC)
	}
	req.MessageType = mt
	req.Value = v

	flume.FromContext(ctx).Debug("handling request", "messageType", mt.String())

	return h.MessageHandler.HandleMessage(ctx, req)
}

func (h *StandardProtocolHandler) ServeKerberos(ctx context.Context, req *Request, writer ResponseWriter) {
	// create a server correlation value, which is like a unique transaction ID
	scv := uuid.New().String()

	// create a logger for the transaction, seeded with the scv
	logger := flume.FromContext(ctx).With("scv", scv)
	// attach the logger to the context, so it is available to the handling chain
	ctx = flume.WithLogger(ctx, logger)

	reply, err := h.handleRequest(ctx, req)
	if err == nil && reply == nil {
		err = merry.New("handler returned no reply")
	}
	if err != nil {
		reply = h.errorReply(ctx, err)
	}

	b, err := Marshal(reply)
	if err != nil {
		logger.Error("failed to encode reply", "error", Details(err))
		b, err = Marshal(h.errorReply(ctx, err))
		if err != nil {
			panic(err)
		}
	}

	if h.LogTraffic {
		logger.Debug("traffic log", "request", tlvString(req.Message), "response", tlvString(b))
	}

	if _, err := writer.Write(b); err != nil {
		panic(err)
	}
}

func (h *StandardProtocolHandler) errorReply(ctx context.Context, err error) *KrbError {
	eh := h.ErrorHandler
	if eh == nil {
		eh = DefaultErrorHandler
	}
	kerr := eh.HandleError(err)
	if kerr == nil {
		flume.FromContext(ctx).Error("unhandled error", "error", Details(err))
		kerr = newKrbError(errorcode.KRB_ERR_GENERIC, "", "")
	}
	kerr.complete(h.Realm, h.ServerName)
	return kerr
}

// newKrbError builds a KRB-ERROR with the current server time.
func newKrbError(code int32, realm string, text string) *KrbError {
	now := time.Now().UTC()
	return &KrbError{
		Pvno:      iana.PVNO,
		MsgType:   msgtype.KRB_ERROR,
		STime:     now.Truncate(time.Second),
		Susec:     int32(now.Nanosecond() / 1000),
		ErrorCode: code,
		Realm:     realm,
		EText:     text,
	}
}

// defaultErrorRealm is used in KRB-ERROR replies when the server has no realm.
const defaultErrorRealm = "UNKNOWN"

// complete fills mandatory fields which are still empty.
func (e *KrbError) complete(realm string, sname PrincipalName) {
	if e.Realm == "" {
		e.Realm = realm
	}
	if e.Realm == "" {
		e.Realm = defaultErrorRealm
	}
	if len(e.SName.NameString) == 0 {
		e.SName = sname
	}
	if len(e.SName.NameString) == 0 {
		e.SName = NewPrincipalName(nametype.KRB_NT_SRV_INST, "krbtgt", e.Realm)
	}
}

// NewKrbError returns a KRB-ERROR message for replying to a request.
func NewKrbError(code int32, realm string, sname PrincipalName, text string) *KrbError {
	e := newKrbError(code, realm, text)
	e.SName = sname
	return e
}

type ErrorHandler interface {
	HandleError(err error) *KrbError
}

type ErrorHandlerFunc func(err error) *KrbError

func (f ErrorHandlerFunc) HandleError(err error) *KrbError {
	return f(err)
}

var DefaultErrorHandler = ErrorHandlerFunc(func(err error) *KrbError {
	code := GetErrorCode(err)
	if code == 0 {
		code = errorcode.KRB_ERR_GENERIC
	}

	// prefer user message, but fall back on message
	msg := merry.UserMessage(err)
	if msg == "" {
		msg = merry.Message(err)
	}
	return newKrbError(code, "", msg)
})

// MessageMux routes requests to handlers by message type.
type MessageMux struct {
	mu       sync.RWMutex
	handlers map[MessageType]MessageHandler
}

func (m *MessageMux) HandleMessage(ctx context.Context, req *Request) (interface{}, error) {
	h := m.handlerFor(req.MessageType)
	if h == nil {
		return nil, WithErrorCode(merry.Errorf("no handler for %v", req.MessageType), errorcode.KRB_AP_ERR_MSG_TYPE)
	}
	return h.HandleMessage(ctx, req)
}

func (m *MessageMux) Handle(mt MessageType, handler MessageHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.handlers == nil {
		m.handlers = map[MessageType]MessageHandler{}
	}

	m.handlers[mt] = handler
}

func (m *MessageMux) HandleFunc(mt MessageType, f func(context.Context, *Request) (interface{}, error)) {
	m.Handle(mt, MessageHandlerFunc(f))
}

func (m *MessageMux) handlerFor(mt MessageType) MessageHandler {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.handlers[mt]
}
