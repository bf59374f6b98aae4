// Package compliance checks the codec against the MIT krb5 ASN.1 reference
// encodings, as published in the gokrb5 test data.
package compliance

import (
	"github.com/gemalto/kerberos-go"
	"github.com/jcmturner/gokrb5/v8/test/testdata"
)

// Vector is a reference encoding of one message.
type Vector struct {
	Name        string
	MessageType kerberos.MessageType
	Hex         string
}

// Vectors are the reference encodings the codec must decode, and re-encode
// to the same bytes.
var Vectors = []Vector{
	{"authenticator", kerberos.MessageTypeAuthenticator, testdata.MarshaledKRB5authenticator},
	{"authenticator optionals empty", kerberos.MessageTypeAuthenticator, testdata.MarshaledKRB5authenticatorOptionalsEmpty},
	{"authenticator optionals null", kerberos.MessageTypeAuthenticator, testdata.MarshaledKRB5authenticatorOptionalsNULL},
	{"ticket", kerberos.MessageTypeTicket, testdata.MarshaledKRB5ticket},
	{"keyblock", kerberos.MessageTypeEncryptionKey, testdata.MarshaledKRB5keyblock},
	{"enc tkt part", kerberos.MessageTypeEncTicketPart, testdata.MarshaledKRB5enc_tkt_part},
	{"enc tkt part optionals null", kerberos.MessageTypeEncTicketPart, testdata.MarshaledKRB5enc_tkt_partOptionalsNULL},
	{"enc kdc rep part", kerberos.MessageTypeEncTgsRepPart, testdata.MarshaledKRB5enc_kdc_rep_part},
	{"enc kdc rep part optionals null", kerberos.MessageTypeEncTgsRepPart, testdata.MarshaledKRB5enc_kdc_rep_partOptionalsNULL},
	{"as rep", kerberos.MessageTypeAsRep, testdata.MarshaledKRB5as_rep},
	{"as rep optionals null", kerberos.MessageTypeAsRep, testdata.MarshaledKRB5as_repOptionalsNULL},
	{"tgs rep", kerberos.MessageTypeTgsRep, testdata.MarshaledKRB5tgs_rep},
	{"tgs rep optionals null", kerberos.MessageTypeTgsRep, testdata.MarshaledKRB5tgs_repOptionalsNULL},
	{"ap req", kerberos.MessageTypeApReq, testdata.MarshaledKRB5ap_req},
	{"ap rep", kerberos.MessageTypeApRep, testdata.MarshaledKRB5ap_rep},
	{"ap rep enc part", kerberos.MessageTypeEncApRepPart, testdata.MarshaledKRB5ap_rep_enc_part},
	{"ap rep enc part optionals null", kerberos.MessageTypeEncApRepPart, testdata.MarshaledKRB5ap_rep_enc_partOptionalsNULL},
	{"as req", kerberos.MessageTypeAsReq, testdata.MarshaledKRB5as_req},
	{"as req optionals null except second ticket", kerberos.MessageTypeAsReq, testdata.MarshaledKRB5as_reqOptionalsNULLexceptsecond_ticket},
	{"as req optionals null except server", kerberos.MessageTypeAsReq, testdata.MarshaledKRB5as_reqOptionalsNULLexceptserver},
	{"tgs req", kerberos.MessageTypeTgsReq, testdata.MarshaledKRB5tgs_req},
	{"tgs req optionals null except second ticket", kerberos.MessageTypeTgsReq, testdata.MarshaledKRB5tgs_reqOptionalsNULLexceptsecond_ticket},
	{"tgs req optionals null except server", kerberos.MessageTypeTgsReq, testdata.MarshaledKRB5tgs_reqOptionalsNULLexceptserver},
	{"kdc req body", kerberos.MessageTypeKdcReqBody, testdata.MarshaledKRB5kdc_req_body},
	{"kdc req body optionals null except second ticket", kerberos.MessageTypeKdcReqBody, testdata.MarshaledKRB5kdc_req_bodyOptionalsNULLexceptsecond_ticket},
	{"kdc req body optionals null except server", kerberos.MessageTypeKdcReqBody, testdata.MarshaledKRB5kdc_req_bodyOptionalsNULLexceptserver},
	{"error", kerberos.MessageTypeKrbError, testdata.MarshaledKRB5error},
	{"error optionals null", kerberos.MessageTypeKrbError, testdata.MarshaledKRB5errorOptionalsNULL},
	{"padata sequence", kerberos.MessageTypeMethodData, testdata.MarshaledKRB5padata_sequence},
	{"enc data", kerberos.MessageTypeEncryptedData, testdata.MarshaledKRB5enc_data},
}

// Rejected are reference encodings which are valid DER but outside what the
// codec accepts.
var Rejected = []Vector{
	// kvno is a UInt32
	{"enc data kvno msb set", kerberos.MessageTypeEncryptedData, testdata.MarshaledKRB5enc_dataMSBSetkvno},
	{"enc data kvno -1", kerberos.MessageTypeEncryptedData, testdata.MarshaledKRB5enc_dataKVNONegOne},
	// METHOD-DATA must not be empty
	{"padata sequence empty", kerberos.MessageTypeMethodData, testdata.MarshaledKRB5padataSequenceEmpty},
}
