package kerberos

import (
	"time"

	"github.com/ansel1/merry"
	"github.com/jcmturner/gokrb5/v8/iana/asnAppTag"
	"github.com/jcmturner/gokrb5/v8/iana/msgtype"
)

// Components

var principalNameMsg = newSequence("PrincipalName",
	intField(0, "name-type", func(v *PrincipalName) *int32 { return &v.NameType }),
	stringsField(1, "name-string", func(v *PrincipalName) *[]string { return &v.NameString }),
)

var encryptedDataMsg = newSequence("EncryptedData",
	intField(0, "etype", func(v *EncryptedData) *int32 { return &v.EType }),
	uintField(1, "kvno", func(v *EncryptedData) *uint32 { return &v.Kvno }).opt(),
	octetsField(2, "cipher", func(v *EncryptedData) *[]byte { return &v.Cipher }),
)

var encryptionKeyMsg = newSequence("EncryptionKey",
	intField(0, "keytype", func(v *EncryptionKey) *int32 { return &v.KeyType }),
	octetsField(1, "keyvalue", func(v *EncryptionKey) *[]byte { return &v.KeyValue }),
)

var checksumMsg = newSequence("Checksum",
	intField(0, "cksumtype", func(v *Checksum) *int32 { return &v.CksumType }),
	octetsField(1, "checksum", func(v *Checksum) *[]byte { return &v.Checksum }),
)

var hostAddressMsg = newSequence("HostAddress",
	intField(0, "addr-type", func(v *HostAddress) *int32 { return &v.AddrType }),
	octetsField(1, "address", func(v *HostAddress) *[]byte { return &v.Address }),
)

var authorizationDataEntryMsg = newSequence("AuthorizationData",
	intField(0, "ad-type", func(v *AuthorizationDataEntry) *int32 { return &v.ADType }),
	octetsField(1, "ad-data", func(v *AuthorizationDataEntry) *[]byte { return &v.ADData }),
)

var paDataMsg = newSequence("PA-DATA",
	intField(1, "padata-type", func(v *PaData) *int32 { return &v.PaDataType }),
	octetsField(2, "padata-value", func(v *PaData) *[]byte { return &v.PaDataValue }),
)

var lastReqEntryMsg = newSequence("LastReq",
	intField(0, "lr-type", func(v *LastReqEntry) *int32 { return &v.LrType }),
	timeField(1, "lr-value", func(v *LastReqEntry) *time.Time { return &v.LrValue }),
)

var transitedEncodingMsg = newSequence("TransitedEncoding",
	intField(0, "tr-type", func(v *TransitedEncoding) *int32 { return &v.TrType }),
	octetsField(1, "contents", func(v *TransitedEncoding) *[]byte { return &v.Contents }),
)

var methodDataMsg = newSequenceOf("METHOD-DATA", paDataMsg, func(v *MethodData) *[]PaData { return (*[]PaData)(v) })

func hostAddresses[T any](get func(*T) *HostAddresses) func(*T) *[]HostAddress {
	return func(v *T) *[]HostAddress { return (*[]HostAddress)(get(v)) }
}

func authorizationData[T any](get func(*T) *AuthorizationData) func(*T) *[]AuthorizationDataEntry {
	return func(v *T) *[]AuthorizationDataEntry { return (*[]AuthorizationDataEntry)(get(v)) }
}

// Tickets and authenticators

var ticketMsg = newApplication("Ticket", asnAppTag.Ticket,
	intField(0, "tkt-vno", func(v *Ticket) *int32 { return &v.TktVno }),
	stringField(1, "realm", func(v *Ticket) *string { return &v.Realm }),
	nestedField(2, "sname", principalNameMsg, func(v *Ticket) *PrincipalName { return &v.SName }),
	nestedField(3, "enc-part", encryptedDataMsg, func(v *Ticket) *EncryptedData { return &v.EncPart }),
)

var encTicketPartMsg = newApplication("EncTicketPart", asnAppTag.EncTicketPart,
	flagsField(0, "flags", func(v *EncTicketPart) *KerberosFlags { return &v.Flags }),
	nestedField(1, "key", encryptionKeyMsg, func(v *EncTicketPart) *EncryptionKey { return &v.Key }),
	stringField(2, "crealm", func(v *EncTicketPart) *string { return &v.CRealm }),
	nestedField(3, "cname", principalNameMsg, func(v *EncTicketPart) *PrincipalName { return &v.CName }),
	nestedField(4, "transited", transitedEncodingMsg, func(v *EncTicketPart) *TransitedEncoding { return &v.Transited }),
	timeField(5, "authtime", func(v *EncTicketPart) *time.Time { return &v.AuthTime }),
	timeField(6, "starttime", func(v *EncTicketPart) *time.Time { return &v.StartTime }).opt(),
	timeField(7, "endtime", func(v *EncTicketPart) *time.Time { return &v.EndTime }),
	timeField(8, "renew-till", func(v *EncTicketPart) *time.Time { return &v.RenewTill }).opt(),
	listField(9, "caddr", hostAddressMsg, hostAddresses(func(v *EncTicketPart) *HostAddresses { return &v.CAddr })).opt(),
	listField(10, "authorization-data", authorizationDataEntryMsg, authorizationData(func(v *EncTicketPart) *AuthorizationData { return &v.AuthorizationData })).opt(),
)

var authenticatorMsg = newApplication("Authenticator", asnAppTag.Authenticator,
	intField(0, "authenticator-vno", func(v *Authenticator) *int32 { return &v.AuthenticatorVno }),
	stringField(1, "crealm", func(v *Authenticator) *string { return &v.CRealm }),
	nestedField(2, "cname", principalNameMsg, func(v *Authenticator) *PrincipalName { return &v.CName }),
	optNestedField(3, "cksum", checksumMsg, func(v *Authenticator) **Checksum { return &v.Cksum }),
	intField(4, "cusec", func(v *Authenticator) *int32 { return &v.Cusec }),
	timeField(5, "ctime", func(v *Authenticator) *time.Time { return &v.CTime }),
	optNestedField(6, "subkey", encryptionKeyMsg, func(v *Authenticator) **EncryptionKey { return &v.SubKey }),
	uintField(7, "seq-number", func(v *Authenticator) *uint32 { return &v.SeqNumber }).opt(),
	listField(8, "authorization-data", authorizationDataEntryMsg, authorizationData(func(v *Authenticator) *AuthorizationData { return &v.AuthorizationData })).opt(),
)

// KDC exchanges

var kdcReqBodyMsg = newSequence("KDC-REQ-BODY",
	flagsField(0, "kdc-options", func(v *KdcReqBody) *KerberosFlags { return &v.KdcOptions }),
	optNestedField(1, "cname", principalNameMsg, func(v *KdcReqBody) **PrincipalName { return &v.CName }),
	stringField(2, "realm", func(v *KdcReqBody) *string { return &v.Realm }),
	optNestedField(3, "sname", principalNameMsg, func(v *KdcReqBody) **PrincipalName { return &v.SName }),
	timeField(4, "from", func(v *KdcReqBody) *time.Time { return &v.From }).opt(),
	timeField(5, "till", func(v *KdcReqBody) *time.Time { return &v.Till }),
	timeField(6, "rtime", func(v *KdcReqBody) *time.Time { return &v.RTime }).opt(),
	uintField(7, "nonce", func(v *KdcReqBody) *uint32 { return &v.Nonce }),
	intsField(8, "etype", func(v *KdcReqBody) *[]int32 { return &v.EType }),
	listField(9, "addresses", hostAddressMsg, hostAddresses(func(v *KdcReqBody) *HostAddresses { return &v.Addresses })).opt(),
	optNestedField(10, "enc-authorization-data", encryptedDataMsg, func(v *KdcReqBody) **EncryptedData { return &v.EncAuthorizationData }),
	listField(11, "additional-tickets", ticketMsg, func(v *KdcReqBody) *[]Ticket { return &v.AdditionalTickets }).opt(),
)

var kdcReqMsg = newSequence("KDC-REQ",
	intField(1, "pvno", func(v *KdcReq) *int32 { return &v.Pvno }),
	intField(2, "msg-type", func(v *KdcReq) *int32 { return &v.MsgType }),
	listField(3, "padata", paDataMsg, func(v *KdcReq) *[]PaData { return &v.PaData }).opt(),
	nestedField(4, "req-body", kdcReqBodyMsg, func(v *KdcReq) *KdcReqBody { return &v.ReqBody }),
)

var kdcRepMsg = newSequence("KDC-REP",
	intField(0, "pvno", func(v *KdcRep) *int32 { return &v.Pvno }),
	intField(1, "msg-type", func(v *KdcRep) *int32 { return &v.MsgType }),
	listField(2, "padata", paDataMsg, func(v *KdcRep) *[]PaData { return &v.PaData }).opt(),
	stringField(3, "crealm", func(v *KdcRep) *string { return &v.CRealm }),
	nestedField(4, "cname", principalNameMsg, func(v *KdcRep) *PrincipalName { return &v.CName }),
	nestedField(5, "ticket", ticketMsg, func(v *KdcRep) *Ticket { return &v.Ticket }),
	nestedField(6, "enc-part", encryptedDataMsg, func(v *KdcRep) *EncryptedData { return &v.EncPart }),
)

var encKdcRepPartMsg = newSequence("EncKDCRepPart",
	nestedField(0, "key", encryptionKeyMsg, func(v *EncKdcRepPart) *EncryptionKey { return &v.Key }),
	listField(1, "last-req", lastReqEntryMsg, func(v *EncKdcRepPart) *[]LastReqEntry { return &v.LastReq }),
	uintField(2, "nonce", func(v *EncKdcRepPart) *uint32 { return &v.Nonce }),
	timeField(3, "key-expiration", func(v *EncKdcRepPart) *time.Time { return &v.KeyExpiration }).opt(),
	flagsField(4, "flags", func(v *EncKdcRepPart) *KerberosFlags { return &v.Flags }),
	timeField(5, "authtime", func(v *EncKdcRepPart) *time.Time { return &v.AuthTime }),
	timeField(6, "starttime", func(v *EncKdcRepPart) *time.Time { return &v.StartTime }).opt(),
	timeField(7, "endtime", func(v *EncKdcRepPart) *time.Time { return &v.EndTime }),
	timeField(8, "renew-till", func(v *EncKdcRepPart) *time.Time { return &v.RenewTill }).opt(),
	stringField(9, "srealm", func(v *EncKdcRepPart) *string { return &v.SRealm }),
	nestedField(10, "sname", principalNameMsg, func(v *EncKdcRepPart) *PrincipalName { return &v.SName }),
	listField(11, "caddr", hostAddressMsg, hostAddresses(func(v *EncKdcRepPart) *HostAddresses { return &v.CAddr })).opt(),
	listField(12, "encrypted-pa-data", paDataMsg, func(v *EncKdcRepPart) *[]PaData { return &v.EncPaData }).opt(),
)

func checkMsgType(name string, got, want int32) error {
	if got != want {
		return merry.Here(ErrInvalidMessageType).Appendf("%s has msg-type %d, expected %d", name, got, want)
	}
	return nil
}

var asReqMsg = newWrapper("AS-REQ", asnAppTag.ASREQ, kdcReqMsg,
	func(v *AsReq) *KdcReq { return &v.KdcReq },
	func(v *AsReq) error { return checkMsgType("AS-REQ", v.MsgType, msgtype.KRB_AS_REQ) },
)

var tgsReqMsg = newWrapper("TGS-REQ", asnAppTag.TGSREQ, kdcReqMsg,
	func(v *TgsReq) *KdcReq { return &v.KdcReq },
	func(v *TgsReq) error { return checkMsgType("TGS-REQ", v.MsgType, msgtype.KRB_TGS_REQ) },
)

var asRepMsg = newWrapper("AS-REP", asnAppTag.ASREP, kdcRepMsg,
	func(v *AsRep) *KdcRep { return &v.KdcRep },
	func(v *AsRep) error { return checkMsgType("AS-REP", v.MsgType, msgtype.KRB_AS_REP) },
)

var tgsRepMsg = newWrapper("TGS-REP", asnAppTag.TGSREP, kdcRepMsg,
	func(v *TgsRep) *KdcRep { return &v.KdcRep },
	func(v *TgsRep) error { return checkMsgType("TGS-REP", v.MsgType, msgtype.KRB_TGS_REP) },
)

var encAsRepPartMsg = newWrapper[EncAsRepPart, EncKdcRepPart]("EncASRepPart", asnAppTag.EncASRepPart, encKdcRepPartMsg,
	func(v *EncAsRepPart) *EncKdcRepPart { return &v.EncKdcRepPart }, nil,
)

var encTgsRepPartMsg = newWrapper[EncTgsRepPart, EncKdcRepPart]("EncTGSRepPart", asnAppTag.EncTGSRepPart, encKdcRepPartMsg,
	func(v *EncTgsRepPart) *EncKdcRepPart { return &v.EncKdcRepPart }, nil,
)

// Client/server exchanges

var apReqMsg = newApplication("AP-REQ", asnAppTag.APREQ,
	intField(0, "pvno", func(v *ApReq) *int32 { return &v.Pvno }),
	intField(1, "msg-type", func(v *ApReq) *int32 { return &v.MsgType }),
	flagsField(2, "ap-options", func(v *ApReq) *KerberosFlags { return &v.ApOptions }),
	nestedField(3, "ticket", ticketMsg, func(v *ApReq) *Ticket { return &v.Ticket }),
	nestedField(4, "authenticator", encryptedDataMsg, func(v *ApReq) *EncryptedData { return &v.Authenticator }),
)

var apRepMsg = newApplication("AP-REP", asnAppTag.APREP,
	intField(0, "pvno", func(v *ApRep) *int32 { return &v.Pvno }),
	intField(1, "msg-type", func(v *ApRep) *int32 { return &v.MsgType }),
	nestedField(2, "enc-part", encryptedDataMsg, func(v *ApRep) *EncryptedData { return &v.EncPart }),
)

var encApRepPartMsg = newApplication("EncAPRepPart", asnAppTag.EncAPRepPart,
	timeField(0, "ctime", func(v *EncApRepPart) *time.Time { return &v.CTime }),
	intField(1, "cusec", func(v *EncApRepPart) *int32 { return &v.Cusec }),
	optNestedField(2, "subkey", encryptionKeyMsg, func(v *EncApRepPart) **EncryptionKey { return &v.SubKey }),
	uintField(3, "seq-number", func(v *EncApRepPart) *uint32 { return &v.SeqNumber }).opt(),
)

var krbErrorMsg = newApplication("KRB-ERROR", asnAppTag.KRBError,
	intField(0, "pvno", func(v *KrbError) *int32 { return &v.Pvno }),
	intField(1, "msg-type", func(v *KrbError) *int32 { return &v.MsgType }),
	timeField(2, "ctime", func(v *KrbError) *time.Time { return &v.CTime }).opt(),
	intField(3, "cusec", func(v *KrbError) *int32 { return &v.Cusec }).opt(),
	timeField(4, "stime", func(v *KrbError) *time.Time { return &v.STime }),
	intField(5, "susec", func(v *KrbError) *int32 { return &v.Susec }),
	intField(6, "error-code", func(v *KrbError) *int32 { return &v.ErrorCode }),
	stringField(7, "crealm", func(v *KrbError) *string { return &v.CRealm }).opt(),
	optNestedField(8, "cname", principalNameMsg, func(v *KrbError) **PrincipalName { return &v.CName }),
	stringField(9, "realm", func(v *KrbError) *string { return &v.Realm }),
	nestedField(10, "sname", principalNameMsg, func(v *KrbError) *PrincipalName { return &v.SName }),
	stringField(11, "e-text", func(v *KrbError) *string { return &v.EText }).opt(),
	octetsField(12, "e-data", func(v *KrbError) *[]byte { return &v.EData }).opt(),
)

func init() {
	apReqMsg.check = func(v *ApReq) error { return checkMsgType("AP-REQ", v.MsgType, msgtype.KRB_AP_REQ) }
	apRepMsg.check = func(v *ApRep) error { return checkMsgType("AP-REP", v.MsgType, msgtype.KRB_AP_REP) }
	krbErrorMsg.check = func(v *KrbError) error { return checkMsgType("KRB-ERROR", v.MsgType, msgtype.KRB_ERROR) }
}
