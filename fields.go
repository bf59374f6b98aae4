package kerberos

import (
	"fmt"
	"time"

	"github.com/ansel1/merry"
	"github.com/gemalto/kerberos-go/ber"
)

// primitive describes how a Go value is stored in a universal primitive TLV.
type primitive[V any] struct {
	tag        ber.Tag
	allowEmpty bool
	parse      func(v []byte) (V, error)
	append     func(b []byte, v V) ([]byte, error)
	// empty values are omitted from optional fields
	empty func(v V) bool
	// if set, an empty value in a mandatory field is an error
	emptyIsMissing bool
}

var int32Value = primitive[int32]{
	tag:   ber.TagInteger,
	parse: ber.ParseInt32,
	append: func(b []byte, v int32) ([]byte, error) {
		return ber.AppendInt(b, int64(v)), nil
	},
	empty: func(v int32) bool { return v == 0 },
}

var uint32Value = primitive[uint32]{
	tag:   ber.TagInteger,
	parse: ber.ParseUint32,
	append: func(b []byte, v uint32) ([]byte, error) {
		return ber.AppendInt(b, int64(v)), nil
	},
	empty: func(v uint32) bool { return v == 0 },
}

// KerberosString values must not be empty.
var stringValue = primitive[string]{
	tag: ber.TagGeneralString,
	parse: func(v []byte) (string, error) {
		return string(v), nil
	},
	append: func(b []byte, v string) ([]byte, error) {
		return append(b, v...), nil
	},
	empty:          func(v string) bool { return v == "" },
	emptyIsMissing: true,
}

var octetsValue = primitive[[]byte]{
	tag:        ber.TagOctetString,
	allowEmpty: true,
	parse: func(v []byte) ([]byte, error) {
		if len(v) == 0 {
			return nil, nil
		}
		return append([]byte(nil), v...), nil
	},
	append: func(b []byte, v []byte) ([]byte, error) {
		return append(b, v...), nil
	},
	empty: func(v []byte) bool { return len(v) == 0 },
}

var timeValue = primitive[time.Time]{
	tag:            ber.TagGeneralizedTime,
	parse:          ber.ParseGeneralizedTime,
	append:         ber.AppendGeneralizedTime,
	empty:          func(v time.Time) bool { return v.IsZero() },
	emptyIsMissing: true,
}

var flagsValue = primitive[KerberosFlags]{
	tag: ber.TagBitString,
	parse: func(v []byte) (KerberosFlags, error) {
		f, err := ber.ParseFlags(v)
		return KerberosFlags(f), err
	},
	append: func(b []byte, v KerberosFlags) ([]byte, error) {
		return ber.AppendFlags(b, uint32(v)), nil
	},
	empty: func(v KerberosFlags) bool { return v == 0 },
}

type fieldKind int

const (
	// [n] { primitive }
	kindValue fieldKind = iota
	// [n] { message }
	kindNested
	// [n] { SEQUENCE OF primitive }
	kindValueList
	// [n] { SEQUENCE OF message }
	kindNestedList
)

// field is one context tagged component of a SEQUENCE.
type field[T any] struct {
	num        uint32
	name       string
	optional   bool
	kind       fieldKind
	elem       ber.Tag
	allowEmpty bool

	// decode is the action for the TLV carrying the value: the primitive
	// for value kinds, the [n] TLV for nested fields, and each item for lists.
	decode Action[T]
	// encode writes the content of the [n] TLV.
	encode func(e *encoder, v *T) error
	omit   func(v *T) bool
	unset  func(v *T) bool
}

func (f field[T]) opt() field[T] {
	f.optional = true
	return f
}

func (f field[T]) label() string {
	return fmt.Sprintf("[%d] %s", f.num, f.name)
}

func valueField[T, V any](num uint32, name string, p primitive[V], get func(*T) *V) field[T] {
	f := field[T]{
		num:        num,
		name:       name,
		kind:       kindValue,
		elem:       p.tag,
		allowEmpty: p.allowEmpty,
		decode: func(c *Container[T], tlv ber.TLV) error {
			v, err := p.parse(tlv.ValueRaw())
			if err != nil {
				return err
			}
			*get(c.Value) = v
			return nil
		},
		encode: func(e *encoder, v *T) error {
			b, err := p.append(e.scratch[:0], *get(v))
			if err != nil {
				return merry.Prepend(err, name)
			}
			e.scratch = b
			e.primitive(p.tag, e.scratch)
			return nil
		},
		omit: func(v *T) bool {
			return p.empty(*get(v))
		},
	}
	if p.emptyIsMissing {
		f.unset = f.omit
	}
	return f
}

func valueListField[T, V any](num uint32, name string, p primitive[V], get func(*T) *[]V) field[T] {
	return field[T]{
		num:        num,
		name:       name,
		kind:       kindValueList,
		elem:       p.tag,
		allowEmpty: p.allowEmpty,
		decode: func(c *Container[T], tlv ber.TLV) error {
			v, err := p.parse(tlv.ValueRaw())
			if err != nil {
				return err
			}
			*get(c.Value) = append(*get(c.Value), v)
			return nil
		},
		encode: func(e *encoder, v *T) error {
			return e.constructed(ber.TagSequence, func() error {
				for _, item := range *get(v) {
					if p.emptyIsMissing && p.empty(item) {
						return merry.Here(ErrMissingField).Appendf("empty %s item", name)
					}
					b, err := p.append(e.scratch[:0], item)
					if err != nil {
						return merry.Prependf(err, "%s item", name)
					}
					e.scratch = b
					e.primitive(p.tag, e.scratch)
				}
				return nil
			})
		},
		omit:  func(v *T) bool { return len(*get(v)) == 0 },
		unset: func(v *T) bool { return len(*get(v)) == 0 },
	}
}

func intField[T any](num uint32, name string, get func(*T) *int32) field[T] {
	return valueField(num, name, int32Value, get)
}

func uintField[T any](num uint32, name string, get func(*T) *uint32) field[T] {
	return valueField(num, name, uint32Value, get)
}

func stringField[T any](num uint32, name string, get func(*T) *string) field[T] {
	return valueField(num, name, stringValue, get)
}

func octetsField[T any](num uint32, name string, get func(*T) *[]byte) field[T] {
	return valueField(num, name, octetsValue, get)
}

func timeField[T any](num uint32, name string, get func(*T) *time.Time) field[T] {
	return valueField(num, name, timeValue, get)
}

func flagsField[T any](num uint32, name string, get func(*T) *KerberosFlags) field[T] {
	return valueField(num, name, flagsValue, get)
}

func stringsField[T any](num uint32, name string, get func(*T) *[]string) field[T] {
	return valueListField(num, name, stringValue, get)
}

func intsField[T any](num uint32, name string, get func(*T) *[]int32) field[T] {
	return valueListField(num, name, int32Value, get)
}

func nestedField[T, U any](num uint32, name string, m *Message[U], get func(*T) *U) field[T] {
	return field[T]{
		num:  num,
		name: name,
		kind: kindNested,
		decode: func(c *Container[T], tlv ber.TLV) error {
			start := c.Offset() + tlv.HeaderLen()
			return decodeNested(c, m, start, start+tlv.Len(), get(c.Value))
		},
		encode: func(e *encoder, v *T) error {
			return m.encode(e, get(v))
		},
	}
}

// optNestedField is an optional nested message, held by pointer.
func optNestedField[T, U any](num uint32, name string, m *Message[U], get func(*T) **U) field[T] {
	return field[T]{
		num:      num,
		name:     name,
		optional: true,
		kind:     kindNested,
		decode: func(c *Container[T], tlv ber.TLV) error {
			start := c.Offset() + tlv.HeaderLen()
			u := new(U)
			if err := decodeNested(c, m, start, start+tlv.Len(), u); err != nil {
				return err
			}
			*get(c.Value) = u
			return nil
		},
		encode: func(e *encoder, v *T) error {
			return m.encode(e, *get(v))
		},
		omit: func(v *T) bool { return *get(v) == nil },
	}
}

func listField[T, U any](num uint32, name string, m *Message[U], get func(*T) *[]U) field[T] {
	return field[T]{
		num:  num,
		name: name,
		kind: kindNestedList,
		elem: m.tag,
		decode: func(c *Container[T], tlv ber.TLV) error {
			var u U
			if err := decodeNested(c, m, c.Offset(), c.Offset()+tlv.FullLen(), &u); err != nil {
				return err
			}
			*get(c.Value) = append(*get(c.Value), u)
			return nil
		},
		encode: func(e *encoder, v *T) error {
			return e.constructed(ber.TagSequence, func() error {
				items := *get(v)
				for i := range items {
					if err := m.encode(e, &items[i]); err != nil {
						return err
					}
				}
				return nil
			})
		},
		omit:  func(v *T) bool { return len(*get(v)) == 0 },
		unset: func(v *T) bool { return len(*get(v)) == 0 },
	}
}

// compile adds the transitions for f, entered from any of preds at depth, and
// returns the state reached once f is complete.
func (f *field[T]) compile(g *Grammar[T], preds []State, depth int) State {
	tag := ber.Context(f.num)
	label := g.name + " " + f.label()

	enter := func(to State) {
		for _, p := range preds {
			g.add(Transition[T]{From: p, To: to, Tag: tag, Depth: depth, Enter: true})
		}
	}

	switch f.kind {
	case kindNested:
		done := g.addState(label)
		for _, p := range preds {
			g.add(Transition[T]{From: p, To: done, Tag: tag, Depth: depth, Action: f.decode})
		}
		return done
	case kindValue:
		open := g.addState(label + " tag")
		done := g.addState(label)
		enter(open)
		g.add(Transition[T]{From: open, To: done, Tag: f.elem, Depth: depth + 1, AllowEmpty: f.allowEmpty, Action: f.decode})
		return done
	default:
		open := g.addState(label + " tag")
		list := g.addState(label + " SEQUENCE")
		done := g.addState(label)
		enter(open)
		g.add(Transition[T]{From: open, To: list, Tag: ber.TagSequence, Depth: depth + 1, Enter: true})
		g.add(Transition[T]{From: list, To: done, Tag: f.elem, Depth: depth + 2, AllowEmpty: f.allowEmpty, Action: f.decode})
		g.add(Transition[T]{From: done, To: done, Tag: f.elem, Depth: depth + 2, AllowEmpty: f.allowEmpty, Action: f.decode})
		return done
	}
}

func (f *field[T]) encodeField(e *encoder, v *T, msg string) error {
	if f.optional {
		if f.omit(v) {
			return nil
		}
	} else if f.unset != nil && f.unset(v) {
		return merry.Here(ErrMissingField).Appendf("%s %s", msg, f.label())
	}
	return e.constructed(ber.Context(f.num), func() error {
		return f.encode(e, v)
	})
}
