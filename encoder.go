package kerberos

import (
	"github.com/ansel1/merry"
	"github.com/gemalto/kerberos-go/ber"
)

// encoder writes a message in two passes.  BER puts the length of a
// constructed TLV in front of its content, so the first pass walks the message
// and records the content length of every constructed TLV, in the order they
// are opened.  The second pass walks the message again, writing headers from
// the recorded lengths.
type encoder struct {
	sizing  bool
	lengths []int
	next    int
	total   int

	buf     []byte
	scratch []byte
}

func (e *encoder) constructed(tag ber.Tag, body func() error) error {
	if e.sizing {
		slot := len(e.lengths)
		e.lengths = append(e.lengths, 0)
		start := e.total
		if err := body(); err != nil {
			return err
		}
		n := e.total - start
		e.lengths[slot] = n
		e.total += ber.HeaderLen(tag, n)
		return nil
	}

	if e.next >= len(e.lengths) {
		return merry.Here(ErrLengthMismatch).Appendf("no length recorded for %v", tag)
	}
	n := e.lengths[e.next]
	e.next++
	e.buf = ber.AppendHeader(e.buf, tag, n)
	start := len(e.buf)
	if err := body(); err != nil {
		return err
	}
	if written := len(e.buf) - start; written != n {
		return merry.Here(ErrLengthMismatch).Appendf("%v: wrote %d bytes, expected %d", tag, written, n)
	}
	return nil
}

func (e *encoder) primitive(tag ber.Tag, v []byte) {
	if e.sizing {
		e.total += ber.Size(tag, len(v))
		return
	}
	e.buf = ber.AppendHeader(e.buf, tag, len(v))
	e.buf = append(e.buf, v...)
}

// sizeMessage runs the first pass.
func sizeMessage[T any](m *Message[T], v *T) (*encoder, error) {
	e := &encoder{sizing: true}
	if err := m.encode(e, v); err != nil {
		return nil, err
	}
	return e, nil
}

// encodeMessage writes v into buf, which must be at least as long as the
// encoding.
func encodeMessage[T any](m *Message[T], v *T, buf []byte) (int, error) {
	e, err := sizeMessage(m, v)
	if err != nil {
		return 0, err
	}
	n := e.total
	if len(buf) < n {
		return 0, merry.Here(ErrBufferTooSmall).Appendf("%s needs %d bytes, buffer has %d", m.name, n, len(buf))
	}

	e.sizing = false
	e.buf = buf[:0]
	if err := m.encode(e, v); err != nil {
		return 0, err
	}
	if len(e.buf) != n {
		return 0, merry.Here(ErrLengthMismatch).Appendf("%s: wrote %d bytes, expected %d", m.name, len(e.buf), n)
	}
	return n, nil
}
