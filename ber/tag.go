package ber

import (
	"fmt"
	"math"

	"github.com/ansel1/merry"
)

// Class is the tag class, held in the two high bits of the first identifier octet.
type Class byte

const (
	ClassUniversal       Class = 0x00
	ClassApplication     Class = 0x40
	ClassContextSpecific Class = 0x80
	ClassPrivate         Class = 0xC0
)

func (c Class) String() string {
	switch c {
	case ClassUniversal:
		return "UNIVERSAL"
	case ClassApplication:
		return "APPLICATION"
	case ClassContextSpecific:
		return "CONTEXT"
	case ClassPrivate:
		return "PRIVATE"
	}
	return fmt.Sprintf("%#02x", byte(c))
}

const constructedBit = 0x20
const longTagMarker = 0x1F

// Universal tag numbers used by Kerberos.
const (
	NumberBoolean         uint32 = 1
	NumberInteger         uint32 = 2
	NumberBitString       uint32 = 3
	NumberOctetString     uint32 = 4
	NumberNull            uint32 = 5
	NumberSequence        uint32 = 16
	NumberGeneralizedTime uint32 = 24
	NumberGeneralString   uint32 = 27
)

var universalNames = map[uint32]string{
	NumberBoolean:         "BOOLEAN",
	NumberInteger:         "INTEGER",
	NumberBitString:       "BIT STRING",
	NumberOctetString:     "OCTET STRING",
	NumberNull:            "NULL",
	NumberSequence:        "SEQUENCE",
	NumberGeneralizedTime: "GeneralizedTime",
	NumberGeneralString:   "GeneralString",
}

// Tag identifies a TLV.  Tag values are comparable, and are used as map keys
// in grammar tables.
type Tag struct {
	Class       Class
	Constructed bool
	Number      uint32
}

var (
	TagInteger         = Tag{Class: ClassUniversal, Number: NumberInteger}
	TagBitString       = Tag{Class: ClassUniversal, Number: NumberBitString}
	TagOctetString     = Tag{Class: ClassUniversal, Number: NumberOctetString}
	TagSequence        = Tag{Class: ClassUniversal, Constructed: true, Number: NumberSequence}
	TagGeneralizedTime = Tag{Class: ClassUniversal, Number: NumberGeneralizedTime}
	TagGeneralString   = Tag{Class: ClassUniversal, Number: NumberGeneralString}
)

// Application returns the constructed [APPLICATION n] tag.
func Application(n uint32) Tag {
	return Tag{Class: ClassApplication, Constructed: true, Number: n}
}

// Context returns the constructed context-specific [n] tag used for explicitly
// tagged fields.
func Context(n uint32) Tag {
	return Tag{Class: ClassContextSpecific, Constructed: true, Number: n}
}

func (t Tag) String() string {
	switch t.Class {
	case ClassUniversal:
		if s, ok := universalNames[t.Number]; ok {
			return s
		}
		return fmt.Sprintf("UNIVERSAL %d", t.Number)
	case ClassContextSpecific:
		return fmt.Sprintf("[%d]", t.Number)
	default:
		return fmt.Sprintf("[%s %d]", t.Class, t.Number)
	}
}

// Len returns the number of identifier octets needed to encode the tag.
func (t Tag) Len() int {
	if t.Number < longTagMarker {
		return 1
	}
	n := 1
	for v := t.Number; v > 0; v >>= 7 {
		n++
	}
	return n
}

// AppendTag appends the identifier octets of t to b.
func AppendTag(b []byte, t Tag) []byte {
	first := byte(t.Class)
	if t.Constructed {
		first |= constructedBit
	}
	if t.Number < longTagMarker {
		return append(b, first|byte(t.Number))
	}
	b = append(b, first|longTagMarker)
	for i := t.Len() - 2; i >= 0; i-- {
		c := byte(t.Number>>(7*uint(i))) & 0x7F
		if i > 0 {
			c |= 0x80
		}
		b = append(b, c)
	}
	return b
}

// ReadTag parses the identifier octets at the start of b.  It returns the tag and
// the number of octets read.
func ReadTag(b []byte) (Tag, int, error) {
	if len(b) < 1 {
		return Tag{}, 0, merry.Here(ErrHeaderTruncated)
	}
	t := Tag{
		Class:       Class(b[0] & 0xC0),
		Constructed: b[0]&constructedBit != 0,
	}
	if b[0]&longTagMarker != longTagMarker {
		t.Number = uint32(b[0] & longTagMarker)
		return t, 1, nil
	}

	var n uint32
	for i := 1; ; i++ {
		if i >= len(b) {
			return Tag{}, 0, merry.Here(ErrHeaderTruncated).Append("long form tag number")
		}
		if n > math.MaxUint32>>7 {
			return Tag{}, 0, merry.Here(ErrTagTooLarge)
		}
		c := b[i]
		if i == 1 && c == 0x80 {
			return Tag{}, 0, merry.Here(ErrInvalidTag).Append("leading zero in long form tag number")
		}
		n = n<<7 | uint32(c&0x7F)
		if c&0x80 == 0 {
			if n < longTagMarker {
				return Tag{}, 0, merry.Here(ErrInvalidTag).Appendf("tag number %d must use the short form", n)
			}
			t.Number = n
			return t, i + 1, nil
		}
	}
}
