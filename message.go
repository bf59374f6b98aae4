package kerberos

import (
	"github.com/ansel1/merry"
	"github.com/gemalto/kerberos-go/ber"
)

// Message is the codec for one type: its grammar, for decoding, and the field
// definitions the encoder walks.
type Message[T any] struct {
	name    string
	tag     ber.Tag
	grammar *Grammar[T]
	encode  func(e *encoder, v *T) error
	// check runs after decoding, and before encoding.
	check func(v *T) error
}

func (m *Message[T]) Name() string {
	return m.name
}

// Tag is the outer tag of the message's encoding.
func (m *Message[T]) Tag() ber.Tag {
	return m.tag
}

func (m *Message[T]) Grammar() *Grammar[T] {
	return m.grammar
}

// newSequence defines a message encoded as a SEQUENCE of context tagged
// fields.
func newSequence[T any](name string, fields ...field[T]) *Message[T] {
	m := &Message[T]{name: name, tag: ber.TagSequence}
	m.compile(fields, false)
	return m
}

// newApplication defines a message encoded as a SEQUENCE of context tagged
// fields, wrapped in an application tag.
func newApplication[T any](name string, app uint32, fields ...field[T]) *Message[T] {
	m := &Message[T]{name: name, tag: ber.Application(app)}
	m.compile(fields, true)
	return m
}

func (m *Message[T]) compile(fields []field[T], app bool) {
	g := newGrammar[T](m.name)
	from, depth := StateStart, 0
	if app {
		open := g.addState(m.name + " " + m.tag.String())
		g.add(Transition[T]{From: StateStart, To: open, Tag: m.tag, Enter: true})
		from, depth = open, 1
	}
	seq := g.addState(m.name + " SEQUENCE")
	g.add(Transition[T]{From: from, To: seq, Tag: ber.TagSequence, Depth: depth, Enter: true})

	preds := []State{seq}
	for i := range fields {
		f := &fields[i]
		if !f.optional {
			for _, p := range preds {
				if _, ok := g.expect[p]; !ok {
					g.expect[p] = f.label()
				}
			}
		}
		done := f.compile(g, preds, depth+1)
		if f.optional {
			preds = append(preds[:len(preds):len(preds)], done)
		} else {
			preds = []State{done}
		}
	}
	for _, s := range preds {
		g.accepting[s] = true
	}
	m.grammar = g

	m.encode = func(e *encoder, v *T) error {
		if m.check != nil {
			if err := m.check(v); err != nil {
				return err
			}
		}
		body := func() error {
			return e.constructed(ber.TagSequence, func() error {
				for i := range fields {
					if err := fields[i].encodeField(e, v, m.name); err != nil {
						return err
					}
				}
				return nil
			})
		}
		if app {
			return e.constructed(m.tag, body)
		}
		return body()
	}
}

// newWrapper defines an application tagged message whose content is another
// message, like AS-REP around KDC-REP.
func newWrapper[T, U any](name string, app uint32, inner *Message[U], get func(*T) *U, check func(*T) error) *Message[T] {
	m := &Message[T]{name: name, tag: ber.Application(app), check: check}

	g := newGrammar[T](name)
	open := g.addState(name + " " + m.tag.String())
	done := g.addState(name + " " + inner.name)
	g.add(Transition[T]{From: StateStart, To: open, Tag: m.tag, Enter: true})
	g.add(Transition[T]{From: open, To: done, Tag: inner.tag, Depth: 1,
		Action: func(c *Container[T], tlv ber.TLV) error {
			return decodeNested(c, inner, c.Offset(), c.Offset()+tlv.FullLen(), get(c.Value))
		},
	})
	g.expect[open] = inner.name
	g.accepting[done] = true
	m.grammar = g

	m.encode = func(e *encoder, v *T) error {
		if check != nil {
			if err := check(v); err != nil {
				return err
			}
		}
		return e.constructed(m.tag, func() error {
			return inner.encode(e, get(v))
		})
	}
	return m
}

// newSequenceOf defines a message which is a bare SEQUENCE OF another message.
func newSequenceOf[T, U any](name string, item *Message[U], get func(*T) *[]U) *Message[T] {
	m := &Message[T]{name: name, tag: ber.TagSequence}

	g := newGrammar[T](name)
	open := g.addState(name + " SEQUENCE")
	done := g.addState(name + " " + item.name)
	decodeItem := func(c *Container[T], tlv ber.TLV) error {
		var u U
		if err := decodeNested(c, item, c.Offset(), c.Offset()+tlv.FullLen(), &u); err != nil {
			return err
		}
		*get(c.Value) = append(*get(c.Value), u)
		return nil
	}
	g.add(Transition[T]{From: StateStart, To: open, Tag: ber.TagSequence, Enter: true})
	g.add(Transition[T]{From: open, To: done, Tag: item.tag, Depth: 1, Action: decodeItem})
	g.add(Transition[T]{From: done, To: done, Tag: item.tag, Depth: 1, Action: decodeItem})
	g.expect[open] = item.name
	g.accepting[done] = true
	m.grammar = g

	m.encode = func(e *encoder, v *T) error {
		items := *get(v)
		if len(items) == 0 {
			return merry.Here(ErrMissingField).Appendf("%s is empty", name)
		}
		return e.constructed(ber.TagSequence, func() error {
			for i := range items {
				if err := item.encode(e, &items[i]); err != nil {
					return err
				}
			}
			return nil
		})
	}
	return m
}

// decodeRegion decodes one message from buf[start:end] into v.
func (m *Message[T]) decodeRegion(env *decodeEnv, depth int, buf []byte, start, end int, v *T) error {
	c := newContainer(m.grammar, env, depth, buf, start, end, v)
	if err := c.decode(); err != nil {
		return err
	}
	if m.check != nil {
		if err := m.check(v); err != nil {
			return merry.Wrap(err).WithValue(errorKeyOffset, start).WithValue(errorKeyGrammar, m.name)
		}
	}
	return nil
}

// decodeNested decodes a message embedded in the TLV currently being read by c.
func decodeNested[T, U any](c *Container[T], m *Message[U], start, end int, v *U) error {
	if err := m.decodeRegion(c.env, c.depth+1, c.buf, start, end, v); err != nil {
		return merry.Prepend(err, m.name)
	}
	return nil
}
