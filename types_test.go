package kerberos

import (
	"testing"

	"github.com/gemalto/kerberos-go/ber"
	"github.com/jcmturner/gofork/encoding/asn1"
	"github.com/jcmturner/gokrb5/v8/iana/flags"
	"github.com/jcmturner/gokrb5/v8/iana/nametype"
	"github.com/jcmturner/gokrb5/v8/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKerberosFlags(t *testing.T) {
	f := NewKerberosFlags(flags.Forwardable, flags.Renewable)
	assert.True(t, f.Has(flags.Forwardable))
	assert.True(t, f.Has(flags.Renewable))
	assert.False(t, f.Has(flags.Proxiable))
	assert.Equal(t, KerberosFlags(0x40800000), f)
	assert.Equal(t, "forwardable|renewable", f.String())

	f.Unset(flags.Forwardable)
	f.Set(20)
	assert.Equal(t, KerberosFlags(0x00800800), f)
	assert.Equal(t, "renewable|20", f.String())

	// out of range bits are ignored
	f.Set(32)
	f.Set(-1)
	assert.False(t, f.Has(32))
	assert.Equal(t, KerberosFlags(0x00800800), f)

	assert.Equal(t, "0", KerberosFlags(0).String())
}

func TestKerberosFlags_bitOrder(t *testing.T) {
	f := NewKerberosFlags(flags.Forwardable, flags.Renewable, flags.PreAuthent)
	b := ber.AppendFlags(ber.AppendHeader(nil, ber.TagBitString, ber.FlagsLen), uint32(f))

	// gokrb5 numbers bits the same way
	var bs asn1.BitString
	_, err := asn1.Unmarshal(b, &bs)
	require.NoError(t, err)
	assert.True(t, types.IsFlagSet(&bs, flags.Forwardable))
	assert.True(t, types.IsFlagSet(&bs, flags.Renewable))
	assert.True(t, types.IsFlagSet(&bs, flags.PreAuthent))
	assert.False(t, types.IsFlagSet(&bs, flags.Proxiable))

	kf := types.NewKrbFlags()
	types.SetFlag(&kf, flags.Forwardable)
	types.SetFlag(&kf, flags.Renewable)
	types.SetFlag(&kf, flags.PreAuthent)
	exp, err := asn1.Marshal(kf)
	require.NoError(t, err)
	assert.Equal(t, exp, b)

	parsed, err := ber.ParseFlags(ber.TLV(exp).ValueRaw())
	require.NoError(t, err)
	assert.Equal(t, f, KerberosFlags(parsed))
}

func TestPrincipalName(t *testing.T) {
	tests := []struct {
		in  string
		exp PrincipalName
	}{
		{"alice", PrincipalName{NameType: nametype.KRB_NT_PRINCIPAL, NameString: []string{"alice"}}},
		{"HTTP/www.example.com", PrincipalName{NameType: nametype.KRB_NT_SRV_INST, NameString: []string{"HTTP", "www.example.com"}}},
		{"hftsai/extra", PrincipalName{NameType: nametype.KRB_NT_SRV_INST, NameString: []string{"hftsai", "extra"}}},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			p := ParsePrincipalName(tc.in)
			assert.Equal(t, tc.exp, p)
			assert.Equal(t, tc.in, p.String())

			gp := types.NewPrincipalName(tc.exp.NameType, tc.in)
			assert.Equal(t, gp.NameString, p.NameString)
		})
	}
}

func TestMessageType(t *testing.T) {
	assert.Equal(t, "AS-REQ", MessageTypeAsReq.String())
	assert.Equal(t, "KRB-ERROR", MessageTypeKrbError.String())
	assert.Equal(t, "METHOD-DATA", MessageTypeMethodData.String())
	assert.Equal(t, "MessageType(99)", MessageType(99).String())

	app, ok := MessageTypeAsRep.AppTag()
	assert.True(t, ok)
	assert.Equal(t, uint32(11), app)
	_, ok = MessageTypeKdcReqBody.AppTag()
	assert.False(t, ok)
	_, ok = MessageType(99).AppTag()
	assert.False(t, ok)

	mt, ok := MessageTypeForApp(30)
	assert.True(t, ok)
	assert.Equal(t, MessageTypeKrbError, mt)
	for _, app := range []uint32{0, 5, 16, 99, 1001} {
		_, ok := MessageTypeForApp(app)
		assert.False(t, ok, app)
	}
}

func TestParseMessageType(t *testing.T) {
	tests := []struct {
		in  string
		exp MessageType
	}{
		{"AS-REQ", MessageTypeAsReq},
		{"as_req", MessageTypeAsReq},
		{"AsReq", MessageTypeAsReq},
		{"KRB_AS_REQ", MessageTypeAsReq},
		{"krb-error", MessageTypeKrbError},
		{"KRB_ERROR", MessageTypeKrbError},
		{"EncTGSRepPart", MessageTypeEncTgsRepPart},
		{"method-data", MessageTypeMethodData},
		{"kdc_req_body", MessageTypeKdcReqBody},
		{"10", MessageTypeAsReq},
		{"0x1e", MessageTypeKrbError},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			mt, err := ParseMessageType(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.exp, mt)
		})
	}

	for _, s := range []string{"", "foo", "0", "16", "1001", "-10"} {
		_, err := ParseMessageType(s)
		assert.True(t, Is(err, ErrUnsupportedType), "%q: %v", s, err)
	}
}
