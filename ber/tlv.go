package ber

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/ansel1/merry"
)

const lengthLongForm = 0x80
const maxLengthOctets = 4

// Header is a parsed TLV header.  Length is the length of the value, HeaderLen is
// the combined length of the identifier and length octets.
type Header struct {
	Tag       Tag
	Length    int
	HeaderLen int
}

// FullLen returns the length of the whole TLV: header plus value.
func (h Header) FullLen() int {
	return h.HeaderLen + h.Length
}

// ReadHeader parses the TLV header at the start of b.  It does not check
// whether b holds the whole value.
func ReadHeader(b []byte) (Header, error) {
	tag, tn, err := ReadTag(b)
	if err != nil {
		return Header{}, err
	}
	l, ln, err := ReadLength(b[tn:])
	if err != nil {
		return Header{}, err
	}
	return Header{Tag: tag, Length: l, HeaderLen: tn + ln}, nil
}

// ReadLength parses the length octets at the start of b, in short or long
// definite form.  It returns the length and the number of octets read.
func ReadLength(b []byte) (int, int, error) {
	if len(b) < 1 {
		return 0, 0, merry.Here(ErrHeaderTruncated)
	}
	first := b[0]
	if first < lengthLongForm {
		return int(first), 1, nil
	}
	if first == lengthLongForm {
		return 0, 0, merry.Here(ErrIndefiniteLength)
	}
	n := int(first &^ lengthLongForm)
	if n > maxLengthOctets {
		return 0, 0, merry.Here(ErrLengthTooLarge).Appendf("%d length octets", n)
	}
	if len(b) < 1+n {
		return 0, 0, merry.Here(ErrHeaderTruncated).Append("long form length")
	}
	var l uint64
	for _, c := range b[1 : 1+n] {
		l = l<<8 | uint64(c)
	}
	if l > math.MaxInt32 {
		return 0, 0, merry.Here(ErrLengthTooLarge)
	}
	return int(l), 1 + n, nil
}

// LengthLen returns the number of octets in the shortest definite encoding
// of length n.
func LengthLen(n int) int {
	if n < lengthLongForm {
		return 1
	}
	l := 1
	for v := n; v > 0; v >>= 8 {
		l++
	}
	return l
}

// AppendLength appends the shortest definite encoding of n to b.
func AppendLength(b []byte, n int) []byte {
	if n < lengthLongForm {
		return append(b, byte(n))
	}
	octets := LengthLen(n) - 1
	b = append(b, lengthLongForm|byte(octets))
	for i := octets - 1; i >= 0; i-- {
		b = append(b, byte(n>>(8*uint(i))))
	}
	return b
}

// HeaderLen returns the size of the header for a TLV with tag t and a value of
// length n.
func HeaderLen(t Tag, n int) int {
	return t.Len() + LengthLen(n)
}

// Size returns the full size of a TLV with tag t and a value of length n.
func Size(t Tag, n int) int {
	return HeaderLen(t, n) + n
}

// AppendHeader appends the tag and length octets to b.
func AppendHeader(b []byte, t Tag, n int) []byte {
	return AppendLength(AppendTag(b, t), n)
}

// TLV is a single BER encoded element.  The accessors are tolerant of malformed
// input: they return zero values rather than panic.  Use Valid to check the
// encoding.
type TLV []byte

func (t TLV) header() Header {
	h, _ := ReadHeader(t)
	return h
}

func (t TLV) Tag() Tag {
	return t.header().Tag
}

func (t TLV) Len() int {
	return t.header().Length
}

func (t TLV) HeaderLen() int {
	return t.header().HeaderLen
}

func (t TLV) FullLen() int {
	return t.header().FullLen()
}

func (t TLV) ValueRaw() []byte {
	h, err := ReadHeader(t)
	if err != nil {
		return nil
	}
	// don't panic if the value is truncated
	if len(t) < h.FullLen() {
		return t[h.HeaderLen:]
	}
	return t[h.HeaderLen:h.FullLen()]
}

// Valid checks the header, that the buffer holds the full value, and recursively
// that the children of a constructed TLV exactly fill its value.
func (t TLV) Valid() error {
	h, err := ReadHeader(t)
	if err != nil {
		return err
	}
	if len(t) < h.FullLen() {
		return merry.Here(ErrValueTruncated)
	}
	if h.Tag.Constructed {
		inner := TLV(t[h.HeaderLen:h.FullLen()])
		for len(inner) > 0 {
			if err := inner.Valid(); err != nil {
				return merry.Prepend(err, h.Tag.String())
			}
			inner = inner[inner.FullLen():]
		}
	}
	return nil
}

// Next returns the TLV following t in the same buffer, or nil.
func (t TLV) Next() TLV {
	if t.Valid() != nil {
		return nil
	}
	n := t[t.FullLen():]
	if len(n) == 0 {
		return nil
	}
	return n
}

func (t TLV) String() string {
	buf := bytes.NewBuffer(nil)
	_ = Print(buf, "", "  ", t)
	return buf.String()
}

// Print writes a human readable tree of t, one TLV per line.
func Print(w io.Writer, prefix, indent string, t TLV) (err error) {
	h, err := ReadHeader(t)
	if err != nil {
		fmt.Fprintf(w, "%s(%s) %#x", prefix, err.Error(), []byte(t))
		return err
	}

	fmt.Fprintf(w, "%s%v (%d):", prefix, h.Tag, h.Length)

	if len(t) < h.FullLen() {
		err = merry.Here(ErrValueTruncated)
		fmt.Fprintf(w, " (%s) %#x", ErrValueTruncated.Error(), t.ValueRaw())
		return err
	}

	v := t.ValueRaw()
	if h.Tag.Constructed {
		s := TLV(v)
		for len(s) > 0 {
			fmt.Fprint(w, "\n")
			if err = Print(w, prefix+indent, indent, s); err != nil {
				// there are no markers to pick back up again, so we have to give up
				return
			}
			s = s[s.FullLen():]
		}
		return nil
	}

	fmt.Fprint(w, " ", formatPrimitive(h.Tag, v))
	return nil
}

func formatPrimitive(tag Tag, v []byte) string {
	if tag.Class == ClassUniversal {
		switch tag.Number {
		case NumberInteger:
			if i, err := ParseInt64(v); err == nil {
				return strconv.FormatInt(i, 10)
			}
		case NumberGeneralString:
			return strconv.Quote(string(v))
		case NumberGeneralizedTime:
			return string(v)
		}
	}
	if len(v) == 0 {
		return "0x"
	}
	return fmt.Sprintf("%#x", v)
}

// PrintPrettyHex writes t as hex, with the tag, length, and value separated by
// pipes, and one TLV per line.  The output is still valid input for Hex2bytes.
func PrintPrettyHex(w io.Writer, prefix, indent string, t TLV) error {
	h, err := ReadHeader(t)
	if err != nil {
		fmt.Fprintf(w, "%s%x", prefix, []byte(t))
		return err
	}
	_, tn, _ := ReadTag(t)
	fmt.Fprintf(w, "%s%x | %x", prefix, []byte(t[:tn]), []byte(t[tn:h.HeaderLen]))
	if len(t) < h.FullLen() {
		fmt.Fprintf(w, " | %x", []byte(t[h.HeaderLen:]))
		return merry.Here(ErrValueTruncated)
	}
	v := t[h.HeaderLen:h.FullLen()]
	if !h.Tag.Constructed {
		if len(v) > 0 {
			fmt.Fprintf(w, " | %x", []byte(v))
		}
		return nil
	}
	for len(v) > 0 {
		fmt.Fprint(w, "\n")
		if err := PrintPrettyHex(w, prefix+indent, indent, v); err != nil {
			return err
		}
		v = v[v.FullLen():]
	}
	return nil
}

// Hex2bytes converts hex string to bytes.  Any non-hex characters in the string are stripped first.
// panics on error
func Hex2bytes(s string) []byte {
	// strip non hex bytes
	s = strings.Map(func(r rune) rune {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'A' && r <= 'F':
		case r >= 'a' && r <= 'f':
		default:
			return -1 // drop
		}
		return r
	}, s)
	b, err := hex.DecodeString(s)
	if err != nil {
		panic(err)
	}
	return b
}
