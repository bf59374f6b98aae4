package kerberos

import (
	"fmt"

	"github.com/ansel1/merry"
	"github.com/gemalto/kerberos-go/internal/krbutil"
	"github.com/jcmturner/gokrb5/v8/iana/asnAppTag"
)

// MessageType identifies a top level Kerberos message.  Message types
// with an application tag use the tag number.
type MessageType int

const (
	MessageTypeUnknown       MessageType = 0
	MessageTypeTicket        MessageType = asnAppTag.Ticket
	MessageTypeAuthenticator MessageType = asnAppTag.Authenticator
	MessageTypeEncTicketPart MessageType = asnAppTag.EncTicketPart
	MessageTypeAsReq         MessageType = asnAppTag.ASREQ
	MessageTypeAsRep         MessageType = asnAppTag.ASREP
	MessageTypeTgsReq        MessageType = asnAppTag.TGSREQ
	MessageTypeTgsRep        MessageType = asnAppTag.TGSREP
	MessageTypeApReq         MessageType = asnAppTag.APREQ
	MessageTypeApRep         MessageType = asnAppTag.APREP
	MessageTypeEncAsRepPart  MessageType = asnAppTag.EncASRepPart
	MessageTypeEncTgsRepPart MessageType = asnAppTag.EncTGSRepPart
	MessageTypeEncApRepPart  MessageType = asnAppTag.EncAPRepPart
	MessageTypeKrbError      MessageType = asnAppTag.KRBError

	// These have no application tag.
	MessageTypeMethodData    MessageType = 1001
	MessageTypePrincipalName MessageType = 1002
	MessageTypeEncryptedData MessageType = 1003
	MessageTypeEncryptionKey MessageType = 1004
	MessageTypeKdcReqBody    MessageType = 1005
	MessageTypeEncKdcRepPart MessageType = 1006
)

var messageTypeNames = map[MessageType]string{
	MessageTypeTicket:        "Ticket",
	MessageTypeAuthenticator: "Authenticator",
	MessageTypeEncTicketPart: "EncTicketPart",
	MessageTypeAsReq:         "AS-REQ",
	MessageTypeAsRep:         "AS-REP",
	MessageTypeTgsReq:        "TGS-REQ",
	MessageTypeTgsRep:        "TGS-REP",
	MessageTypeApReq:         "AP-REQ",
	MessageTypeApRep:         "AP-REP",
	MessageTypeEncAsRepPart:  "EncASRepPart",
	MessageTypeEncTgsRepPart: "EncTGSRepPart",
	MessageTypeEncApRepPart:  "EncAPRepPart",
	MessageTypeKrbError:      "KRB-ERROR",
	MessageTypeMethodData:    "METHOD-DATA",
	MessageTypePrincipalName: "PrincipalName",
	MessageTypeEncryptedData: "EncryptedData",
	MessageTypeEncryptionKey: "EncryptionKey",
	MessageTypeKdcReqBody:    "KDC-REQ-BODY",
	MessageTypeEncKdcRepPart: "EncKDCRepPart",
}

var messageTypesByName = func() map[string]MessageType {
	m := map[string]MessageType{}
	for mt, name := range messageTypeNames {
		m[krbutil.NormalizeName(name)] = mt
	}
	return m
}()

func (t MessageType) String() string {
	if s, ok := messageTypeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("MessageType(%d)", int(t))
}

// AppTag returns the application tag number of the message type, or false if
// the type is not application tagged.
func (t MessageType) AppTag() (uint32, bool) {
	if t > 0 && t < 1000 {
		if _, ok := messageTypeNames[t]; ok {
			return uint32(t), true
		}
	}
	return 0, false
}

// MessageTypeForApp returns the message type carried by an application tag.
func MessageTypeForApp(app uint32) (MessageType, bool) {
	if app == 0 || app >= 1000 {
		return MessageTypeUnknown, false
	}
	mt := MessageType(app)
	_, ok := messageTypeNames[mt]
	return mt, ok
}

// ParseMessageType parses a message type name, like "AS-REP", "as_rep" or
// "KRB_AS_REP", or an application tag number.
func ParseMessageType(s string) (MessageType, error) {
	if mt, ok := messageTypesByName[krbutil.NormalizeName(s)]; ok {
		return mt, nil
	}
	i, err := krbutil.ParseInt32(s)
	if err == nil {
		if mt, ok := MessageTypeForApp(uint32(i)); ok && i > 0 {
			return mt, nil
		}
	}
	return MessageTypeUnknown, merry.Here(ErrUnsupportedType).Appendf("unknown message type %q", s)
}
