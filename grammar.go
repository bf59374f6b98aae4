package kerberos

import (
	"fmt"
	"sort"

	"github.com/gemalto/kerberos-go/ber"
)

// State identifies what a grammar expects next.  Each grammar numbers its own
// states, starting at StateStart.
type State int

const StateStart State = 0

// Action is invoked by the engine when a transition fires.  tlv is the TLV which
// triggered the transition.
type Action[T any] func(c *Container[T], tlv ber.TLV) error

// Transition is an entry in a grammar table.
//
// Depth is the number of frames which must be open when the tag is read.  Enter
// transitions push a frame over the TLV's value, so the engine reads its
// children next.  Other transitions consume the whole TLV.
type Transition[T any] struct {
	From, To   State
	Tag        ber.Tag
	Depth      int
	Enter      bool
	AllowEmpty bool
	Action     Action[T]
	Desc       string
}

type transitionKey struct {
	state State
	tag   ber.Tag
}

// Grammar is the transition table for one message type.  Grammars are built
// once, at init, and are read only afterwards.
type Grammar[T any] struct {
	name        string
	states      []string
	transitions map[transitionKey]*Transition[T]
	accepting   map[State]bool
	expect      map[State]string
}

func newGrammar[T any](name string) *Grammar[T] {
	return &Grammar[T]{
		name:        name,
		states:      []string{name + " start"},
		transitions: map[transitionKey]*Transition[T]{},
		accepting:   map[State]bool{},
		expect:      map[State]string{},
	}
}

func (g *Grammar[T]) addState(name string) State {
	g.states = append(g.states, name)
	return State(len(g.states) - 1)
}

func (g *Grammar[T]) add(t Transition[T]) {
	k := transitionKey{state: t.From, tag: t.Tag}
	if _, ok := g.transitions[k]; ok {
		panic(fmt.Sprintf("kerberos: grammar %s has two transitions from %q on %v", g.name, g.StateName(t.From), t.Tag))
	}
	if t.Desc == "" {
		t.Desc = g.StateName(t.To)
	}
	g.transitions[k] = &t
}

func (g *Grammar[T]) Name() string {
	return g.name
}

// Lookup returns the transition for tag in state s.
func (g *Grammar[T]) Lookup(s State, tag ber.Tag) (*Transition[T], bool) {
	t, ok := g.transitions[transitionKey{state: s, tag: tag}]
	return t, ok
}

// States returns all the states of the grammar, in the order they were defined.
func (g *Grammar[T]) States() []State {
	states := make([]State, len(g.states))
	for i := range states {
		states[i] = State(i)
	}
	return states
}

// Tags returns the tags with a transition out of state s, sorted.
func (g *Grammar[T]) Tags(s State) []ber.Tag {
	var tags []ber.Tag
	for k := range g.transitions {
		if k.state == s {
			tags = append(tags, k.tag)
		}
	}
	sort.Slice(tags, func(i, j int) bool {
		a, b := tags[i], tags[j]
		if a.Class != b.Class {
			return a.Class < b.Class
		}
		if a.Number != b.Number {
			return a.Number < b.Number
		}
		return !a.Constructed && b.Constructed
	})
	return tags
}

func (g *Grammar[T]) StateName(s State) string {
	if int(s) < 0 || int(s) >= len(g.states) {
		return fmt.Sprintf("%s state %d", g.name, int(s))
	}
	return g.states[s]
}

// Accepting reports whether decoding may end in state s.
func (g *Grammar[T]) Accepting(s State) bool {
	return g.accepting[s]
}
