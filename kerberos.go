package kerberos

import (
	"reflect"

	"github.com/ansel1/merry"
	"github.com/gemalto/flume"
	"github.com/gemalto/kerberos-go/ber"
)

var codecLog = flume.New("kerberos_codec")

type codec interface {
	name() string
	newValue() interface{}
	decode(env *decodeEnv, b []byte, v interface{}) error
	size(v interface{}) (*encoder, error)
	encode(v interface{}, buf []byte) (int, error)
}

type messageCodec[T any] struct {
	m *Message[T]
}

func (c messageCodec[T]) name() string {
	return c.m.name
}

func (c messageCodec[T]) newValue() interface{} {
	return new(T)
}

func (c messageCodec[T]) ptr(v interface{}) (*T, error) {
	if p, ok := v.(*T); ok && p != nil {
		return p, nil
	}
	if t, ok := v.(T); ok {
		return &t, nil
	}
	return nil, merry.Here(ErrUnsupportedType).Appendf("%T is not a %s", v, c.m.name)
}

func (c messageCodec[T]) decode(env *decodeEnv, b []byte, v interface{}) error {
	p, ok := v.(*T)
	if !ok || p == nil {
		return merry.Here(ErrUnsupportedType).Appendf("can't unmarshal %s into %T", c.m.name, v)
	}
	// decode into a temporary, so v is left alone on error
	var tmp T
	if err := c.m.decodeRegion(env, 0, b, 0, len(b), &tmp); err != nil {
		return err
	}
	*p = tmp
	return nil
}

func (c messageCodec[T]) size(v interface{}) (*encoder, error) {
	p, err := c.ptr(v)
	if err != nil {
		return nil, err
	}
	return sizeMessage(c.m, p)
}

func (c messageCodec[T]) encode(v interface{}, buf []byte) (int, error) {
	p, err := c.ptr(v)
	if err != nil {
		return 0, err
	}
	return encodeMessage(c.m, p, buf)
}

var codecs = map[MessageType]codec{}
var codecTypes = map[reflect.Type]MessageType{}

func register[T any](mt MessageType, m *Message[T]) {
	codecs[mt] = messageCodec[T]{m: m}
	codecTypes[reflect.TypeOf((*T)(nil)).Elem()] = mt
}

func init() {
	register(MessageTypeTicket, ticketMsg)
	register(MessageTypeAuthenticator, authenticatorMsg)
	register(MessageTypeEncTicketPart, encTicketPartMsg)
	register(MessageTypeAsReq, asReqMsg)
	register(MessageTypeAsRep, asRepMsg)
	register(MessageTypeTgsReq, tgsReqMsg)
	register(MessageTypeTgsRep, tgsRepMsg)
	register(MessageTypeApReq, apReqMsg)
	register(MessageTypeApRep, apRepMsg)
	register(MessageTypeEncAsRepPart, encAsRepPartMsg)
	register(MessageTypeEncTgsRepPart, encTgsRepPartMsg)
	register(MessageTypeEncApRepPart, encApRepPartMsg)
	register(MessageTypeKrbError, krbErrorMsg)
	register(MessageTypeMethodData, methodDataMsg)
	register(MessageTypePrincipalName, principalNameMsg)
	register(MessageTypeEncryptedData, encryptedDataMsg)
	register(MessageTypeEncryptionKey, encryptionKeyMsg)
	register(MessageTypeKdcReqBody, kdcReqBodyMsg)
	register(MessageTypeEncKdcRepPart, encKdcRepPartMsg)
}

// MessageTypeOf returns the message type of v, which may be a message value
// or a pointer to one.
func MessageTypeOf(v interface{}) (MessageType, bool) {
	t := reflect.TypeOf(v)
	if t == nil {
		return MessageTypeUnknown, false
	}
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	mt, ok := codecTypes[t]
	return mt, ok
}

func codecFor(mt MessageType) (codec, error) {
	c, ok := codecs[mt]
	if !ok {
		return nil, merry.Here(ErrUnsupportedType).Appendf("no codec for %v", mt)
	}
	return c, nil
}

func codecOf(v interface{}) (codec, error) {
	mt, ok := MessageTypeOf(v)
	if !ok {
		return nil, merry.Here(ErrUnsupportedType).Appendf("%T", v)
	}
	return codecFor(mt)
}

// Decoder decodes Kerberos messages.  The zero value is ready to use.
type Decoder struct {
	// Logger receives a debug message for every grammar transition.  Defaults
	// to the package logger.
	Logger flume.Logger
	// MaxDepth limits message nesting.  Defaults to DefaultMaxDepth.
	MaxDepth int
}

func (d *Decoder) env() *decodeEnv {
	env := &decodeEnv{logger: d.Logger, maxDepth: d.MaxDepth}
	if env.logger == nil {
		env.logger = codecLog
	}
	if env.maxDepth <= 0 {
		env.maxDepth = DefaultMaxDepth
	}
	return env
}

// Decode decodes b, which must contain exactly one message of type mt.  It
// returns a pointer to the message, e.g. *AsRep.
func (d *Decoder) Decode(mt MessageType, b []byte) (interface{}, error) {
	c, err := codecFor(mt)
	if err != nil {
		return nil, err
	}
	v := c.newValue()
	if err := c.decode(d.env(), b, v); err != nil {
		return nil, err
	}
	return v, nil
}

// DecodeAny decodes an application tagged message, choosing the message type
// from the tag.
func (d *Decoder) DecodeAny(b []byte) (MessageType, interface{}, error) {
	tag, _, err := ber.ReadTag(b)
	if err != nil {
		return MessageTypeUnknown, nil, merry.WithValue(err, errorKeyOffset, 0)
	}
	mt, ok := MessageTypeUnknown, false
	if tag.Class == ber.ClassApplication {
		mt, ok = MessageTypeForApp(tag.Number)
	}
	if !ok {
		return MessageTypeUnknown, nil, merry.Here(ErrUnexpectedTag).
			Appendf("%v is not a Kerberos message tag", tag).
			WithValue(errorKeyOffset, 0).
			WithValue(errorKeyTag, tag)
	}
	v, err := d.Decode(mt, b)
	if err != nil {
		return mt, nil, err
	}
	return mt, v, nil
}

// Unmarshal decodes b into v, which must be a pointer to a message type.  On
// error, v is not modified.
func (d *Decoder) Unmarshal(b []byte, v interface{}) error {
	c, err := codecOf(v)
	if err != nil {
		return err
	}
	return c.decode(d.env(), b, v)
}

var defaultDecoder Decoder

func Decode(mt MessageType, b []byte) (interface{}, error) {
	return defaultDecoder.Decode(mt, b)
}

func DecodeAny(b []byte) (MessageType, interface{}, error) {
	return defaultDecoder.DecodeAny(b)
}

func Unmarshal(b []byte, v interface{}) error {
	return defaultDecoder.Unmarshal(b, v)
}

// ComputeLength returns the length of v's encoding.
func ComputeLength(v interface{}) (int, error) {
	c, err := codecOf(v)
	if err != nil {
		return 0, err
	}
	e, err := c.size(v)
	if err != nil {
		return 0, err
	}
	return e.total, nil
}

// Encode writes v into buf and returns the number of bytes written.  buf must be
// at least ComputeLength(v) long.
func Encode(v interface{}, buf []byte) (int, error) {
	c, err := codecOf(v)
	if err != nil {
		return 0, err
	}
	return c.encode(v, buf)
}

func Marshal(v interface{}) ([]byte, error) {
	n, err := ComputeLength(v)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	n, err = Encode(v, buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}
