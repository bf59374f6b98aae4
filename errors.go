package kerberos

import (
	"errors"
	"fmt"

	"github.com/ansel1/merry"
	"github.com/gemalto/kerberos-go/ber"
)

func Is(err error, originals ...error) bool {
	return merry.Is(err, originals...)
}

func Details(err error) string {
	return merry.Details(err)
}

var ErrEmptyTLV = errors.New("zero length TLV")
var ErrUnexpectedTag = errors.New("unexpected tag")
var ErrLengthOverrun = errors.New("TLV extends past the end of its parent")
var ErrLengthUnderrun = errors.New("TLV does not fill its parent")
var ErrTrailingData = errors.New("trailing data after message")
var ErrMissingField = errors.New("missing mandatory field")
var ErrMaxDepth = errors.New("max nesting depth exceeded")
var ErrBufferTooSmall = errors.New("output buffer too small")
var ErrLengthMismatch = errors.New("encoded length does not match computed length")
var ErrInvalidMessageType = errors.New("invalid message type")
var ErrUnsupportedType = errors.New("marshaling/unmarshaling is not supported for this type")

type errKey int

const (
	errorKeyOffset errKey = iota
	errorKeyTag
	errorKeyState
	errorKeyGrammar
	errorKeyErrorCode
)

func init() {
	merry.RegisterDetail("Offset", errorKeyOffset)
	merry.RegisterDetail("Tag", errorKeyTag)
	merry.RegisterDetail("State", errorKeyState)
	merry.RegisterDetail("Grammar", errorKeyGrammar)
	merry.RegisterDetail("Error Code", errorKeyErrorCode)
}

// ErrorOffset returns the offset, from the start of the decoded buffer, of the
// TLV which caused err, or -1.
func ErrorOffset(err error) int {
	if off, ok := merry.Value(err, errorKeyOffset).(int); ok {
		return off
	}
	return -1
}

// ErrorTag returns the tag of the TLV which caused err, if known.
func ErrorTag(err error) (ber.Tag, bool) {
	tag, ok := merry.Value(err, errorKeyTag).(ber.Tag)
	return tag, ok
}

// WithErrorCode attaches a KRB-ERROR error code to err.  Server handlers use it
// to choose the code of the error reply.
func WithErrorCode(err error, code int32) error {
	return merry.WithValue(err, errorKeyErrorCode, code)
}

func GetErrorCode(err error) int32 {
	v := merry.Value(err, errorKeyErrorCode)
	switch t := v.(type) {
	case nil:
		return 0
	case int32:
		return t
	default:
		panic(fmt.Sprintf("err error code attribute's value was wrong type, expected int32, got %T", v))
	}
}
