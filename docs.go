// Package kerberos decodes and encodes Kerberos V5 messages (RFC 4120).
//
// Decoding is driven by grammars: transition tables, keyed by decoder state
// and BER tag, built once per message type from a list of field definitions.
// The engine reads one TLV at a time, looks up the transition for the current
// state and tag, and runs the transition's action.  Nested messages, like the
// Ticket in a KDC-REP, are decoded by their own grammar over the region of the
// buffer which holds them.  Lengths are checked at every level: a TLV which
// extends past its parent, or a parent which isn't filled by its children, is
// an error.
//
// Encoding makes two passes over a message.  The first computes the length of
// every constructed TLV, the second writes the encoding into the caller's
// buffer.
//
// Messages
//
// Every message type has a Go struct.  Optional fields are pointers (for
// nested messages) or are absent when zero or empty (for everything else).
// Encrypted parts are carried as opaque EncryptedData: this package does no
// cryptography.
//
// Transport
//
// Server and Client implement the RFC 4120 TCP transport, where each message
// is preceded by its 4 byte length.  Requests are routed to handlers by
// message type with a MessageMux.
package kerberos
