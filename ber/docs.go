// Package ber reads and writes the ASN.1 Basic Encoding Rules wire format used by
// Kerberos messages.
//
// The core representation of an encoded value is the ber.TLV type, which is a []byte
// holding a single tag-length-value element.  TLV has accessors for the header
// fields and the raw value, and can be printed in a human readable tree form
// (Print) or an annotated hex form (PrintPrettyHex).
//
// Only the definite length forms are supported.  The indefinite length marker (0x80)
// is rejected when reading headers, and the writers always emit the shortest
// valid length encoding.
//
// Primitive values are mapped to go types:
//
// | BER type        | Golang type |
// | --------------- | ----------- |
// | INTEGER         | int32, uint32, int64 |
// | OCTET STRING    | []byte |
// | GeneralString   | string |
// | GeneralizedTime | time.Time (UTC, "YYYYMMDDHHMMSSZ") |
// | BIT STRING      | uint32 (KerberosFlags, bit 0 is the most significant bit) |
//
// This package doesn't know anything about message grammars.  Grammars, and the
// state machine which drives them, live in the kerberos package.
package ber
