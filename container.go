package kerberos

import (
	"github.com/ansel1/merry"
	"github.com/gemalto/kerberos-go/ber"
	"github.com/gemalto/flume"
)

// DefaultMaxDepth limits how many messages may be nested inside each other,
// e.g. a Ticket inside a KdcRep inside an AsRep.
const DefaultMaxDepth = 32

type frame struct {
	tag       ber.Tag
	remaining int
}

type decodeEnv struct {
	logger   flume.Logger
	maxDepth int
}

// Container holds the state of one decode: the value being built, the grammar
// state, and a stack of the constructed TLVs which are currently open.
//
// Nested messages are decoded by their own Container, over a region of the
// same buffer.
type Container[T any] struct {
	Value *T

	grammar *Grammar[T]
	env     *decodeEnv
	depth   int

	buf    []byte
	off    int
	limit  int
	state  State
	frames []frame

	cur    ber.TLV
	curOff int
}

func newContainer[T any](g *Grammar[T], env *decodeEnv, depth int, buf []byte, start, end int, into *T) *Container[T] {
	return &Container[T]{
		Value:   into,
		grammar: g,
		env:     env,
		depth:   depth,
		buf:     buf,
		off:     start,
		limit:   end,
		state:   StateStart,
	}
}

// State returns the grammar state.  While an action runs, this is still the
// state the transition started from.
func (c *Container[T]) State() State {
	return c.state
}

// Current returns the TLV the engine read last.
func (c *Container[T]) Current() ber.TLV {
	return c.cur
}

// Offset returns the offset of the current TLV in the decoded buffer.
func (c *Container[T]) Offset() int {
	return c.curOff
}

// Depth returns the number of open constructed TLVs.
func (c *Container[T]) Depth() int {
	return len(c.frames)
}

func (c *Container[T]) fail(kind error, off int, format string, args ...interface{}) merry.Error {
	return merry.WrapSkipping(kind, 1).
		Appendf(format, args...).
		WithValue(errorKeyOffset, off).
		WithValue(errorKeyGrammar, c.grammar.name).
		WithValue(errorKeyState, c.grammar.StateName(c.state))
}

// decode runs the grammar over buf[off:limit], which must hold exactly one
// message.
func (c *Container[T]) decode() error {
	if c.depth > c.env.maxDepth {
		return c.fail(ErrMaxDepth, c.off, "max depth %d", c.env.maxDepth)
	}

	if err := c.run(); err != nil {
		return err
	}

	if c.off != c.limit {
		if c.depth == 0 {
			return c.fail(ErrTrailingData, c.off, "%d bytes after %s", c.limit-c.off, c.grammar.name)
		}
		return c.fail(ErrLengthUnderrun, c.off, "%d bytes left after %s", c.limit-c.off, c.grammar.name)
	}
	return nil
}

func (c *Container[T]) run() error {
	for {
		off := c.off
		h, err := ber.ReadHeader(c.buf[off:])
		if err != nil {
			return merry.WithValue(err, errorKeyOffset, off).WithValue(errorKeyGrammar, c.grammar.name)
		}

		end := off + h.FullLen()
		if end > len(c.buf) {
			return c.fail(ber.ErrValueTruncated, off, "%v needs %d bytes, %d available", h.Tag, h.FullLen(), len(c.buf)-off).
				WithValue(errorKeyTag, h.Tag)
		}

		bound := c.limit
		if n := len(c.frames); n > 0 {
			bound = off + c.frames[n-1].remaining
		}
		if end > bound {
			return c.fail(ErrLengthOverrun, off, "%v needs %d bytes, parent has %d left", h.Tag, h.FullLen(), bound-off).
				WithValue(errorKeyTag, h.Tag)
		}

		t, ok := c.grammar.Lookup(c.state, h.Tag)
		if !ok || t.Depth != len(c.frames) {
			return c.fail(ErrUnexpectedTag, off, "%v in state %s", h.Tag, c.grammar.StateName(c.state)).
				WithValue(errorKeyTag, h.Tag)
		}

		if h.Length == 0 && !t.AllowEmpty {
			return c.fail(ErrEmptyTLV, off, "%v (%s)", h.Tag, t.Desc).
				WithValue(errorKeyTag, h.Tag)
		}

		if n := len(c.frames); n > 0 {
			c.frames[n-1].remaining -= h.FullLen()
		}

		c.cur = ber.TLV(c.buf[off:end])
		c.curOff = off

		if t.Enter {
			c.frames = append(c.frames, frame{tag: h.Tag, remaining: h.Length})
			c.off = off + h.HeaderLen
		} else {
			c.off = end
		}

		if c.env.logger.IsDebug() {
			c.env.logger.Debug("transition",
				"grammar", c.grammar.name,
				"from", c.grammar.StateName(c.state),
				"to", c.grammar.StateName(t.To),
				"tag", h.Tag.String(),
				"offset", off,
				"len", h.Length,
			)
		}

		if t.Action != nil {
			if err := t.Action(c, c.cur); err != nil {
				if _, ok := merry.Value(err, errorKeyOffset).(int); ok {
					return err
				}
				return merry.Wrap(err).WithValue(errorKeyOffset, off).WithValue(errorKeyTag, h.Tag).WithValue(errorKeyGrammar, c.grammar.name)
			}
		}
		c.state = t.To

		for len(c.frames) > 0 && c.frames[len(c.frames)-1].remaining == 0 {
			c.frames = c.frames[:len(c.frames)-1]
		}
		if len(c.frames) == 0 {
			break
		}
	}

	if !c.grammar.Accepting(c.state) {
		return c.fail(ErrMissingField, c.off, "%s ended before %s", c.grammar.name, c.grammar.expect[c.state])
	}
	return nil
}
