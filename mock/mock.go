// Package mock is an in-memory KDC.  It knows principal names but no keys, so
// it answers the AS exchange with the replies a real KDC sends before any
// cryptography is involved.  It is used by the compliance tests and the
// kdcserver command, and can be used as a reference for writing handlers.
package mock

import (
	"context"
	"crypto/rand"
	"sync"

	"github.com/ansel1/merry"
	"github.com/gemalto/flume"
	"github.com/gemalto/kerberos-go"
	"github.com/jcmturner/gokrb5/v8/iana"
	"github.com/jcmturner/gokrb5/v8/iana/errorcode"
	"github.com/jcmturner/gokrb5/v8/iana/msgtype"
	"github.com/jcmturner/gokrb5/v8/iana/nametype"
	"github.com/jcmturner/gokrb5/v8/iana/patype"
)

func NewMockKDC(realm string, principals ...string) *MockKDC {
	m := MockKDC{
		Realm:      realm,
		principals: map[string]bool{},
	}
	for _, p := range principals {
		m.AddPrincipal(p)
	}
	m.Handle(kerberos.MessageTypeAsReq, kerberos.MessageHandlerFunc(m.handleAsReq))

	return &m
}

type MockKDC struct {
	kerberos.MessageMux
	Realm string

	mu         sync.RWMutex
	principals map[string]bool
}

func (m *MockKDC) AddPrincipal(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.principals[name] = true
}

func (m *MockKDC) known(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.principals[name]
}

// TGSName is the principal name of the realm's ticket granting service.
func (m *MockKDC) TGSName() kerberos.PrincipalName {
	return kerberos.NewPrincipalName(nametype.KRB_NT_SRV_INST, "krbtgt", m.Realm)
}

func (m *MockKDC) krbError(code int32, text string) *kerberos.KrbError {
	return kerberos.NewKrbError(code, m.Realm, m.TGSName(), text)
}

// PreauthMethods is the METHOD-DATA sent with KDC_ERR_PREAUTH_REQUIRED.
var PreauthMethods = kerberos.MethodData{
	{PaDataType: patype.PA_ENC_TIMESTAMP},
}

func (m *MockKDC) handleAsReq(ctx context.Context, req *kerberos.Request) (interface{}, error) {
	asReq, ok := req.Value.(*kerberos.AsReq)
	if !ok {
		return nil, merry.Errorf("expected *AsReq, got %T", req.Value)
	}
	body := &asReq.ReqBody
	log := flume.FromContext(ctx)

	if body.Realm != m.Realm {
		return m.krbError(errorcode.KDC_ERR_WRONG_REALM, "unknown realm "+body.Realm), nil
	}
	if body.CName == nil || !m.known(body.CName.String()) {
		return m.krbError(errorcode.KDC_ERR_C_PRINCIPAL_UNKNOWN, "client not found"), nil
	}

	if !hasPaData(asReq.PaData, patype.PA_ENC_TIMESTAMP) {
		log.Debug("requesting preauth", "cname", body.CName.String())
		edata, err := kerberos.Marshal(PreauthMethods)
		if err != nil {
			return nil, err
		}
		kerr := m.krbError(errorcode.KDC_ERR_PREAUTH_REQUIRED, "")
		kerr.CRealm = body.Realm
		kerr.CName = body.CName
		kerr.EData = edata
		return kerr, nil
	}

	return m.issue(asReq)
}

func hasPaData(pa []kerberos.PaData, typ int32) bool {
	for _, p := range pa {
		if p.PaDataType == typ {
			return true
		}
	}
	return false
}

// issue returns an AS-REP.  The mock has no keys, so the encrypted parts are
// random bytes tagged with the first etype the client asked for.
func (m *MockKDC) issue(asReq *kerberos.AsReq) (*kerberos.AsRep, error) {
	body := &asReq.ReqBody
	var etype int32
	if len(body.EType) > 0 {
		etype = body.EType[0]
	}

	ticketCipher, err := randomBytes(64)
	if err != nil {
		return nil, err
	}
	repCipher, err := randomBytes(64)
	if err != nil {
		return nil, err
	}

	sname := m.TGSName()
	if body.SName != nil {
		sname = *body.SName
	}

	return &kerberos.AsRep{KdcRep: kerberos.KdcRep{
		Pvno:    iana.PVNO,
		MsgType: msgtype.KRB_AS_REP,
		CRealm:  m.Realm,
		CName:   *body.CName,
		Ticket: kerberos.Ticket{
			TktVno:  iana.PVNO,
			Realm:   m.Realm,
			SName:   sname,
			EncPart: kerberos.EncryptedData{EType: etype, Kvno: 1, Cipher: ticketCipher},
		},
		EncPart: kerberos.EncryptedData{EType: etype, Kvno: 1, Cipher: repCipher},
	}}, nil
}

func randomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, merry.Wrap(err)
	}
	return b, nil
}
