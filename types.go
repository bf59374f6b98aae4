package kerberos

import (
	"strconv"
	"strings"
	"time"

	"github.com/jcmturner/gokrb5/v8/iana/flags"
	"github.com/jcmturner/gokrb5/v8/iana/nametype"
)

// KerberosFlags is a 32 bit Kerberos BIT STRING.  Bit numbers are the RFC 4120
// ones, as defined in the gokrb5 iana/flags package: bit 0 is the most
// significant bit.
type KerberosFlags uint32

func NewKerberosFlags(bits ...int) KerberosFlags {
	var f KerberosFlags
	for _, b := range bits {
		f.Set(b)
	}
	return f
}

func (f KerberosFlags) Has(bit int) bool {
	return bit >= 0 && bit < 32 && f&(1<<(31-uint(bit))) != 0
}

func (f *KerberosFlags) Set(bit int) {
	if bit >= 0 && bit < 32 {
		*f |= 1 << (31 - uint(bit))
	}
}

func (f *KerberosFlags) Unset(bit int) {
	if bit >= 0 && bit < 32 {
		*f &^= 1 << (31 - uint(bit))
	}
}

var ticketFlagNames = map[int]string{
	flags.Forwardable:            "forwardable",
	flags.Forwarded:              "forwarded",
	flags.Proxiable:              "proxiable",
	flags.Proxy:                  "proxy",
	flags.MayPostDate:            "may-postdate",
	flags.PostDated:              "postdated",
	flags.Invalid:                "invalid",
	flags.Renewable:              "renewable",
	flags.Initial:                "initial",
	flags.PreAuthent:             "pre-authent",
	flags.HWAuthent:              "hw-authent",
	flags.TransitedPolicyChecked: "transited-policy-checked",
	flags.OKAsDelegate:           "ok-as-delegate",
	flags.Canonicalize:           "canonicalize",
	flags.DisableTransitedCheck:  "disable-transited-check",
	flags.RenewableOK:            "renewable-ok",
	flags.EncTktInSkey:           "enc-tkt-in-skey",
	flags.Renew:                  "renew",
	flags.Validate:               "validate",
}

// String lists the set bits, using the ticket flag and KDC option names.
func (f KerberosFlags) String() string {
	var names []string
	for bit := 0; bit < 32; bit++ {
		if !f.Has(bit) {
			continue
		}
		if n, ok := ticketFlagNames[bit]; ok {
			names = append(names, n)
		} else {
			names = append(names, strconv.Itoa(bit))
		}
	}
	if len(names) == 0 {
		return "0"
	}
	return strings.Join(names, "|")
}

type PrincipalName struct {
	NameType   int32
	NameString []string
}

func NewPrincipalName(nameType int32, components ...string) PrincipalName {
	return PrincipalName{NameType: nameType, NameString: components}
}

// ParsePrincipalName splits a name like "HTTP/www.example.com" into its
// components.  Names with more than one component are service instances.
func ParsePrincipalName(s string) PrincipalName {
	parts := strings.Split(s, "/")
	nt := nametype.KRB_NT_PRINCIPAL
	if len(parts) > 1 {
		nt = nametype.KRB_NT_SRV_INST
	}
	return NewPrincipalName(nt, parts...)
}

func (p PrincipalName) String() string {
	return strings.Join(p.NameString, "/")
}

type EncryptedData struct {
	EType  int32
	Kvno   uint32
	Cipher []byte
}

type EncryptionKey struct {
	KeyType  int32
	KeyValue []byte
}

type Checksum struct {
	CksumType int32
	Checksum  []byte
}

type HostAddress struct {
	AddrType int32
	Address  []byte
}

type HostAddresses []HostAddress

type AuthorizationDataEntry struct {
	ADType int32
	ADData []byte
}

type AuthorizationData []AuthorizationDataEntry

type PaData struct {
	PaDataType  int32
	PaDataValue []byte
}

// MethodData is the SEQUENCE OF PA-DATA a KDC returns in the e-data of a
// KDC_ERR_PREAUTH_REQUIRED error.
type MethodData []PaData

type LastReqEntry struct {
	LrType  int32
	LrValue time.Time
}

type TransitedEncoding struct {
	TrType   int32
	Contents []byte
}

type Ticket struct {
	TktVno  int32
	Realm   string
	SName   PrincipalName
	EncPart EncryptedData
}

type EncTicketPart struct {
	Flags             KerberosFlags
	Key               EncryptionKey
	CRealm            string
	CName             PrincipalName
	Transited         TransitedEncoding
	AuthTime          time.Time
	StartTime         time.Time
	EndTime           time.Time
	RenewTill         time.Time
	CAddr             HostAddresses
	AuthorizationData AuthorizationData
}

type Authenticator struct {
	AuthenticatorVno  int32
	CRealm            string
	CName             PrincipalName
	Cksum             *Checksum
	Cusec             int32
	CTime             time.Time
	SubKey            *EncryptionKey
	SeqNumber         uint32
	AuthorizationData AuthorizationData
}

type KdcReqBody struct {
	KdcOptions           KerberosFlags
	CName                *PrincipalName
	Realm                string
	SName                *PrincipalName
	From                 time.Time
	Till                 time.Time
	RTime                time.Time
	Nonce                uint32
	EType                []int32
	Addresses            HostAddresses
	EncAuthorizationData *EncryptedData
	AdditionalTickets    []Ticket
}

type KdcReq struct {
	Pvno    int32
	MsgType int32
	PaData  []PaData
	ReqBody KdcReqBody
}

type AsReq struct {
	KdcReq
}

type TgsReq struct {
	KdcReq
}

type KdcRep struct {
	Pvno    int32
	MsgType int32
	PaData  []PaData
	CRealm  string
	CName   PrincipalName
	Ticket  Ticket
	EncPart EncryptedData
}

type AsRep struct {
	KdcRep
}

type TgsRep struct {
	KdcRep
}

type EncKdcRepPart struct {
	Key           EncryptionKey
	LastReq       []LastReqEntry
	Nonce         uint32
	KeyExpiration time.Time
	Flags         KerberosFlags
	AuthTime      time.Time
	StartTime     time.Time
	EndTime       time.Time
	RenewTill     time.Time
	SRealm        string
	SName         PrincipalName
	CAddr         HostAddresses
	EncPaData     []PaData
}

type EncAsRepPart struct {
	EncKdcRepPart
}

type EncTgsRepPart struct {
	EncKdcRepPart
}

type ApReq struct {
	Pvno          int32
	MsgType       int32
	ApOptions     KerberosFlags
	Ticket        Ticket
	Authenticator EncryptedData
}

type ApRep struct {
	Pvno    int32
	MsgType int32
	EncPart EncryptedData
}

type EncApRepPart struct {
	CTime     time.Time
	Cusec     int32
	SubKey    *EncryptionKey
	SeqNumber uint32
}

type KrbError struct {
	Pvno      int32
	MsgType   int32
	CTime     time.Time
	Cusec     int32
	STime     time.Time
	Susec     int32
	ErrorCode int32
	CRealm    string
	CName     *PrincipalName
	Realm     string
	SName     PrincipalName
	EText     string
	EData     []byte
}
