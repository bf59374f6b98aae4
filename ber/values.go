package ber

import (
	"math"
	"time"

	"github.com/ansel1/merry"
)

// GeneralizedTimeFormat is the only GeneralizedTime form Kerberos allows: UTC,
// with no fractional seconds.
const GeneralizedTimeFormat = "20060102150405Z"

// FlagsLen is the length of an encoded 32 bit KerberosFlags value: the unused
// bits octet, then four octets of flags.
const FlagsLen = 5

// ParseInt64 decodes a two's complement INTEGER value.  The encoding must be
// minimal: a leading 00 or FF octet is only allowed when it carries the sign.
func ParseInt64(v []byte) (int64, error) {
	if len(v) == 0 {
		return 0, merry.Here(ErrInvalidInteger).Append("empty value")
	}
	if len(v) > 1 && ((v[0] == 0x00 && v[1]&0x80 == 0) || (v[0] == 0xFF && v[1]&0x80 != 0)) {
		return 0, merry.Here(ErrInvalidInteger).Append("non-minimal encoding")
	}
	if len(v) > 8 {
		return 0, merry.Here(ErrLongIntOverflow)
	}
	var n int64
	for _, c := range v {
		n = n<<8 | int64(c)
	}
	// sign extend
	shift := uint(64 - 8*len(v))
	return n << shift >> shift, nil
}

// ParseInt32 decodes an INTEGER that must fit in an Int32.
func ParseInt32(v []byte) (int32, error) {
	n, err := ParseInt64(v)
	if err != nil {
		return 0, err
	}
	if n < math.MinInt32 || n > math.MaxInt32 {
		return 0, merry.Here(ErrIntOverflow).Appendf("%d does not fit in Int32", n)
	}
	return int32(n), nil
}

// ParseUint32 decodes an INTEGER that must fit in a UInt32, like Kerberos nonces
// and sequence numbers.
func ParseUint32(v []byte) (uint32, error) {
	n, err := ParseInt64(v)
	if err != nil {
		return 0, err
	}
	if n < 0 || n > math.MaxUint32 {
		return 0, merry.Here(ErrIntOverflow).Appendf("%d does not fit in UInt32", n)
	}
	return uint32(n), nil
}

// IntLen returns the number of octets in the minimal two's complement encoding of i.
func IntLen(i int64) int {
	n := 1
	for i > 127 || i < -128 {
		n++
		i >>= 8
	}
	return n
}

// AppendInt appends the minimal two's complement encoding of i to b.
func AppendInt(b []byte, i int64) []byte {
	for j := IntLen(i) - 1; j >= 0; j-- {
		b = append(b, byte(i>>(8*uint(j))))
	}
	return b
}

// ParseGeneralizedTime decodes a KerberosTime value.
func ParseGeneralizedTime(v []byte) (time.Time, error) {
	if len(v) != len(GeneralizedTimeFormat) || v[len(v)-1] != 'Z' {
		return time.Time{}, merry.Here(ErrInvalidTime).Appendf("%q", v)
	}
	t, err := time.Parse(GeneralizedTimeFormat, string(v))
	if err != nil {
		return time.Time{}, merry.Here(ErrInvalidTime).Append(err.Error())
	}
	return t.UTC(), nil
}

// AppendGeneralizedTime appends t, in UTC and truncated to the second.  Years
// outside 0000-9999 have no four digit form and are rejected.
func AppendGeneralizedTime(b []byte, t time.Time) ([]byte, error) {
	t = t.UTC()
	if y := t.Year(); y < 0 || y > 9999 {
		return b, merry.Here(ErrInvalidTime).Appendf("year %d out of range", y)
	}
	return t.AppendFormat(b, GeneralizedTimeFormat), nil
}

// ParseFlags decodes a KerberosFlags BIT STRING.  Bit 0 of the BIT STRING is
// the most significant bit of the result.  Longer BIT STRINGs are accepted as
// long as no bit past 31 is set.
func ParseFlags(v []byte) (uint32, error) {
	if len(v) == 0 {
		return 0, merry.Here(ErrInvalidBitString).Append("empty value")
	}
	unused := v[0]
	if unused > 7 || (len(v) == 1 && unused != 0) {
		return 0, merry.Here(ErrInvalidBitString).Appendf("invalid unused bits count %d", unused)
	}
	var f uint32
	for i, c := range v[1:] {
		if i >= 4 {
			if c != 0 {
				return 0, merry.Here(ErrInvalidBitString).Append("bits past 31 are set")
			}
			continue
		}
		f |= uint32(c) << (24 - 8*uint(i))
	}
	return f, nil
}

// AppendFlags appends the 32 bit BIT STRING encoding of f.
func AppendFlags(b []byte, f uint32) []byte {
	return append(b, 0, byte(f>>24), byte(f>>16), byte(f>>8), byte(f))
}
