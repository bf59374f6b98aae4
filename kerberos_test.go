package kerberos

import (
	"encoding/hex"
	"sync"
	"testing"
	"time"

	"github.com/gemalto/flume"
	"github.com/gemalto/flume/flumetest"
	"github.com/gemalto/kerberos-go/ber"
	"github.com/jcmturner/gokrb5/v8/iana/msgtype"
	"github.com/jcmturner/gokrb5/v8/test/testdata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// a full EncASRepPart, with two last-req entries and no optional fields
var encAsRepPartSample = ber.Hex2bytes(`
79 81 9F
  30 81 9C
    A0 11
      30 0F
        A0 03 | 02 01 11
        A1 08 | 04 06 | 61 62 63 64 65 66
    A1 36
      30 34
        30 18
          A0 03 | 02 01 02
          A1 11 | 18 0F | 32 30 31 30 31 31 32 35 31 36 31 32 35 39 5A
        30 18
          A0 03 | 02 01 02
          A1 11 | 18 0F | 32 30 31 30 31 31 32 35 31 36 31 32 35 39 5A
    A2 03 | 02 01 01
    A4 07 | 03 05 | 00 40 00 00 00
    A5 11 | 18 0F | 32 30 31 30 31 31 32 35 31 36 31 32 35 39 5A
    A7 11 | 18 0F | 32 30 31 30 31 31 32 35 31 36 31 32 35 39 5A
    A9 06 | 1B 04 | 61 62 63 64
    AA 13
      30 11
        A0 03 | 02 01 01
        A1 0A
          30 08
            1B 06 | 61 62 63 64 65 66
`)

func mustHex(t *testing.T, s string) []byte {
	b, err := hex.DecodeString(s)
	require.NoError(t, err)
	return b
}

func encAsRepPartValue() *EncAsRepPart {
	tm := time.Date(2010, 11, 25, 16, 12, 59, 0, time.UTC)
	return &EncAsRepPart{EncKdcRepPart{
		Key: EncryptionKey{KeyType: 17, KeyValue: []byte("abcdef")},
		LastReq: []LastReqEntry{
			{LrType: 2, LrValue: tm},
			{LrType: 2, LrValue: tm},
		},
		Nonce:    1,
		Flags:    NewKerberosFlags(1),
		AuthTime: tm,
		EndTime:  tm,
		SRealm:   "abcd",
		SName:    PrincipalName{NameType: 1, NameString: []string{"abcdef"}},
	}}
}

func TestDecode_encAsRepPart(t *testing.T) {
	defer flumetest.Start(t)()

	require.Len(t, encAsRepPartSample, 0xA2)

	v, err := Decode(MessageTypeEncAsRepPart, encAsRepPartSample)
	require.NoError(t, err, Details(err))
	assert.Equal(t, encAsRepPartValue(), v)

	l, err := ComputeLength(v)
	require.NoError(t, err)
	assert.Equal(t, 0xA2, l)

	buf := make([]byte, l)
	n, err := Encode(v, buf)
	require.NoError(t, err)
	assert.Equal(t, 0xA2, n)
	assert.Equal(t, encAsRepPartSample, buf)
}

// Decoders and encoders share grammars and field tables, so they must be safe
// to run from many goroutines at once.
func TestDecode_concurrent(t *testing.T) {
	const goroutines, iterations = 16, 200

	exp := encAsRepPartValue()
	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < iterations; i++ {
				v, err := Decode(MessageTypeEncAsRepPart, encAsRepPartSample)
				if !assert.NoError(t, err, Details(err)) || !assert.Equal(t, exp, v) {
					return
				}
				b, err := Marshal(v)
				if !assert.NoError(t, err) || !assert.Equal(t, encAsRepPartSample, b) {
					return
				}
			}
		}()
	}
	wg.Wait()
}

// assertTruncationDetected decodes every proper prefix of b, which must fail
// with a truncation error.
func assertTruncationDetected(t *testing.T, mt MessageType, b []byte) {
	t.Helper()
	for i := 0; i < len(b); i++ {
		_, err := Decode(mt, b[:i])
		if !assert.Error(t, err, "truncated at %d", i) {
			continue
		}
		assert.True(t, Is(err, ber.ErrHeaderTruncated, ber.ErrValueTruncated), "truncated at %d: %v", i, err)
	}
}

func TestDecode_truncated(t *testing.T) {
	assertTruncationDetected(t, MessageTypeEncAsRepPart, encAsRepPartSample)
}

func TestDecode_errors(t *testing.T) {
	tests := []struct {
		name   string
		mt     MessageType
		in     string
		err    error
		offset int
	}{
		{
			name: "empty application tag",
			mt:   MessageTypeEncAsRepPart,
			in:   "79 00",
			err:  ErrEmptyTLV,
		},
		{
			name:   "empty EncKDCRepPart",
			mt:     MessageTypeEncAsRepPart,
			in:     "79 02 | 30 00",
			err:    ErrEmptyTLV,
			offset: 2,
		},
		{
			name:   "child overruns parent",
			mt:     MessageTypeEncAsRepPart,
			in:     "79 03 | 30 05 | A0 03 02 01 11",
			err:    ErrLengthOverrun,
			offset: 2,
		},
		{
			name: "nested message does not fill its field",
			mt:   MessageTypeTicket,
			in: `61 30 30 2E
				A0 03 02 01 05
				A1 06 1B 04 54 45 53 54
				A2 11 | 30 0C A0 03 02 01 01 A1 05 30 03 1B 01 61 | 02 01 00
				A3 0C | 30 0A A0 03 02 01 00 A2 03 04 01 FF`,
			err:    ErrLengthUnderrun,
			offset: 33,
		},
		{
			name:   "trailing data",
			mt:     MessageTypeEncryptionKey,
			in:     "30 0D A0 03 02 01 01 A1 06 04 04 31 32 33 34 | 00",
			err:    ErrTrailingData,
			offset: 15,
		},
		{
			name:   "missing mandatory field",
			mt:     MessageTypeEncryptionKey,
			in:     "30 05 A0 03 02 01 01",
			err:    ErrMissingField,
			offset: 7,
		},
		{
			name:   "fields out of order",
			mt:     MessageTypeEncryptionKey,
			in:     "30 0D A1 06 04 04 31 32 33 34 A0 03 02 01 01",
			err:    ErrUnexpectedTag,
			offset: 2,
		},
		{
			name:   "wrong primitive type",
			mt:     MessageTypeEncryptionKey,
			in:     "30 0D A0 03 04 01 01 A1 06 04 04 31 32 33 34",
			err:    ErrUnexpectedTag,
			offset: 4,
		},
		{
			name:   "wrong application tag",
			mt:     MessageTypeAsRep,
			in:     "6A 02 30 00",
			err:    ErrUnexpectedTag,
			offset: 0,
		},
		{
			name:   "empty realm",
			mt:     MessageTypeTicket,
			in:     "61 0B 30 09 A0 03 02 01 05 A1 02 1B 00",
			err:    ErrEmptyTLV,
			offset: 11,
		},
		{
			name:   "indefinite length",
			mt:     MessageTypeEncryptionKey,
			in:     "30 80 A0 03 02 01 01 00 00",
			err:    ber.ErrIndefiniteLength,
			offset: 0,
		},
		{
			name:   "bad integer",
			mt:     MessageTypeEncryptionKey,
			in:     "30 12 A0 08 02 06 01 02 03 04 05 06 A1 06 04 04 31 32 33 34",
			err:    ber.ErrIntOverflow,
			offset: 4,
		},
		{
			name:   "padded integer",
			mt:     MessageTypeEncryptionKey,
			in:     "30 0E A0 04 02 02 00 01 A1 06 04 04 31 32 33 34",
			err:    ber.ErrInvalidInteger,
			offset: 4,
		},
		{
			name:   "long form tag for a short number",
			mt:     MessageTypeEncryptionKey,
			in:     "30 0E A0 04 1F 02 01 01 A1 06 04 04 31 32 33 34",
			err:    ber.ErrInvalidTag,
			offset: 4,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			v, err := Decode(tc.mt, ber.Hex2bytes(tc.in))
			require.Error(t, err)
			assert.Nil(t, v)
			assert.True(t, Is(err, tc.err), "expected %v, got %v", tc.err, Details(err))
			assert.Equal(t, tc.offset, ErrorOffset(err), Details(err))
		})
	}
}

func TestDecode_ticket(t *testing.T) {
	// the same Ticket as in the underrun case above, without the extra TLV
	in := ber.Hex2bytes(`61 2D 30 2B
		A0 03 02 01 05
		A1 06 1B 04 54 45 53 54
		A2 0E | 30 0C A0 03 02 01 01 A1 05 30 03 1B 01 61
		A3 0C | 30 0A A0 03 02 01 00 A2 03 04 01 FF`)

	var tkt Ticket
	require.NoError(t, Unmarshal(in, &tkt))
	assert.Equal(t, Ticket{
		TktVno:  5,
		Realm:   "TEST",
		SName:   PrincipalName{NameType: 1, NameString: []string{"a"}},
		EncPart: EncryptedData{Cipher: []byte{0xFF}},
	}, tkt)
}

func TestErrorTag(t *testing.T) {
	_, err := Decode(MessageTypeEncryptionKey, ber.Hex2bytes("30 0D A1 06 04 04 31 32 33 34 A0 03 02 01 01"))
	require.Error(t, err)
	tag, ok := ErrorTag(err)
	require.True(t, ok)
	assert.Equal(t, ber.Context(1), tag)

	_, ok = ErrorTag(ErrEmptyTLV)
	assert.False(t, ok)
	assert.Equal(t, -1, ErrorOffset(ErrEmptyTLV))
}

func TestUnmarshal_leavesValueOnError(t *testing.T) {
	k := EncryptionKey{KeyType: 3, KeyValue: []byte{1}}
	err := Unmarshal(ber.Hex2bytes("30 0D A0 03 02 01 01 A1 06 04 04 31 32"), &k)
	require.Error(t, err)
	assert.Equal(t, EncryptionKey{KeyType: 3, KeyValue: []byte{1}}, k)

	err = Unmarshal(ber.Hex2bytes("30 00"), k)
	assert.True(t, Is(err, ErrUnsupportedType))
}

func TestDecoder_maxDepth(t *testing.T) {
	b := mustHex(t, testdata.MarshaledKRB5as_rep)

	// AS-REP > KDC-REP > PrincipalName
	d := Decoder{MaxDepth: 1}
	_, err := d.Decode(MessageTypeAsRep, b)
	require.Error(t, err)
	assert.True(t, Is(err, ErrMaxDepth), Details(err))

	d.MaxDepth = 3
	_, err = d.Decode(MessageTypeAsRep, b)
	require.NoError(t, err)
}

func TestDecoder_logger(t *testing.T) {
	defer flumetest.Start(t)()

	d := Decoder{Logger: flume.New("kerberos_test")}
	_, err := d.Decode(MessageTypeEncAsRepPart, encAsRepPartSample)
	require.NoError(t, err)
}

func TestDecode_invalidMessageType(t *testing.T) {
	b := mustHex(t, testdata.MarshaledKRB5as_rep)
	// msg-type is the second field of KDC-REP
	require.Equal(t, byte(msgtype.KRB_AS_REP), b[15])
	b[15] = msgtype.KRB_TGS_REP

	_, err := Decode(MessageTypeAsRep, b)
	require.Error(t, err)
	assert.True(t, Is(err, ErrInvalidMessageType), Details(err))

	// the same bytes, with the other application tag, are a valid TGS-REP
	b[0] = 0x6D
	_, err = Decode(MessageTypeTgsRep, b)
	require.NoError(t, err)
}

func TestDecodeAny(t *testing.T) {
	mt, v, err := DecodeAny(encAsRepPartSample)
	require.NoError(t, err)
	assert.Equal(t, MessageTypeEncAsRepPart, mt)
	assert.IsType(t, &EncAsRepPart{}, v)

	_, _, err = DecodeAny(ber.Hex2bytes("30 0D A0 03 02 01 01 A1 06 04 04 31 32 33 34"))
	assert.True(t, Is(err, ErrUnexpectedTag))

	// application 4 is not a Kerberos message
	_, _, err = DecodeAny(ber.Hex2bytes("64 02 30 00"))
	assert.True(t, Is(err, ErrUnexpectedTag))

	_, _, err = DecodeAny(nil)
	assert.True(t, Is(err, ber.ErrHeaderTruncated))
}

func TestEncode_errors(t *testing.T) {
	key := &EncryptionKey{KeyType: 1, KeyValue: []byte("1234")}

	_, err := Encode(key, make([]byte, 5))
	assert.True(t, Is(err, ErrBufferTooSmall), Details(err))

	n, err := Encode(key, make([]byte, 100))
	require.NoError(t, err)
	assert.Equal(t, 15, n)

	_, err = Marshal(&Ticket{TktVno: 5})
	assert.True(t, Is(err, ErrMissingField), Details(err))

	_, err = Marshal(MethodData{})
	assert.True(t, Is(err, ErrMissingField), Details(err))

	_, err = Marshal(&PrincipalName{NameType: 1, NameString: []string{"a", ""}})
	assert.True(t, Is(err, ErrMissingField), Details(err))

	_, err = Marshal(&ApRep{Pvno: 5, MsgType: msgtype.KRB_AP_REQ, EncPart: EncryptedData{Cipher: []byte{1}}})
	assert.True(t, Is(err, ErrInvalidMessageType), Details(err))

	// KerberosTime only has four year digits
	far := &EncApRepPart{CTime: time.Date(10000, 1, 1, 0, 0, 0, 0, time.UTC)}
	_, err = Marshal(far)
	assert.True(t, Is(err, ber.ErrInvalidTime), Details(err))
	_, err = ComputeLength(far)
	assert.True(t, Is(err, ber.ErrInvalidTime), Details(err))

	_, err = Marshal(42)
	assert.True(t, Is(err, ErrUnsupportedType))

	_, err = ComputeLength((*Ticket)(nil))
	assert.True(t, Is(err, ErrUnsupportedType))
}

func TestMessageTypeOf(t *testing.T) {
	mt, ok := MessageTypeOf(&AsReq{})
	assert.True(t, ok)
	assert.Equal(t, MessageTypeAsReq, mt)

	mt, ok = MessageTypeOf(MethodData{})
	assert.True(t, ok)
	assert.Equal(t, MessageTypeMethodData, mt)

	_, ok = MessageTypeOf(KdcReq{})
	assert.False(t, ok)

	_, ok = MessageTypeOf(nil)
	assert.False(t, ok)
}
