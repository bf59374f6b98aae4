package krbutil

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"

	"github.com/ansel1/merry"
)

var ErrInvalidHexString = errors.New("invalid hex string")

// ParseInt32 parses an integer value from a string.  The string
// may be a number, or a hex string, prefixed with "0x".
func ParseInt32(s string) (int32, error) {
	if strings.HasPrefix(s, "0x") {
		b, err := hex.DecodeString(s[2:])
		if err != nil {
			return 0, merry.Here(ErrInvalidHexString).WithCause(err)
		}
		if len(b) > 4 {
			return 0, merry.Here(ErrInvalidHexString).Append("must be max 4 bytes (8 hex characters)")
		}
		b = append(make([]byte, 4-len(b)), b...)
		return int32(binary.BigEndian.Uint32(b)), nil
	}
	i, err := strconv.ParseInt(s, 10, 32)
	if err != nil {
		return 0, merry.Wrap(err)
	}
	return int32(i), nil
}

// ParseHex decodes hex input which may contain whitespace, and the "|"
// separators written by the pretty hex printer.
func ParseHex(s string) ([]byte, error) {
	s = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\r', '\n', '|':
			return -1
		}
		return r
	}, s)
	s = strings.TrimPrefix(s, "0x")
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, merry.Here(ErrInvalidHexString).WithCause(err)
	}
	return b, nil
}
