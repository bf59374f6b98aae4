package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"time"

	"github.com/gemalto/kerberos-go"
	"github.com/gemalto/kerberos-go/ber"
	"github.com/jcmturner/gokrb5/v8/iana"
	"github.com/jcmturner/gokrb5/v8/iana/errorcode"
	"github.com/jcmturner/gokrb5/v8/iana/etypeID"
	"github.com/jcmturner/gokrb5/v8/iana/flags"
	"github.com/jcmturner/gokrb5/v8/iana/msgtype"
	"github.com/jcmturner/gokrb5/v8/iana/nametype"
)

func main() {
	var addr, realm, cname string
	flag.StringVar(&addr, "addr", "127.0.0.1:8088", "KDC address")
	flag.StringVar(&realm, "realm", "EXAMPLE.COM", "realm")
	flag.StringVar(&cname, "cname", "alice", "client principal")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	c, err := kerberos.Dial(ctx, addr)
	if err != nil {
		panic(err)
	}
	defer c.Close()

	fmt.Println("connected")

	client := kerberos.ParsePrincipalName(cname)
	req := kerberos.AsReq{KdcReq: kerberos.KdcReq{
		Pvno:    iana.PVNO,
		MsgType: msgtype.KRB_AS_REQ,
		ReqBody: kerberos.KdcReqBody{
			KdcOptions: kerberos.NewKerberosFlags(flags.Forwardable, flags.Renewable),
			CName:      &client,
			Realm:      realm,
			SName: &kerberos.PrincipalName{
				NameType:   nametype.KRB_NT_SRV_INST,
				NameString: []string{"krbtgt", realm},
			},
			Till:  time.Now().Add(24 * time.Hour).UTC(),
			Nonce: uint32(rand.Int31()),
			EType: []int32{etypeID.AES256_CTS_HMAC_SHA1_96, etypeID.AES128_CTS_HMAC_SHA1_96},
		},
	}}

	mreq, err := kerberos.Marshal(&req)
	if err != nil {
		panic(err)
	}

	fmt.Println("== REQUEST ==")
	fmt.Println("")
	fmt.Println(ber.TLV(mreq))
	fmt.Println("")

	resp, err := c.RoundTrip(ctx, mreq)
	if err != nil {
		panic(err)
	}

	fmt.Println("== RESPONSE ==")
	fmt.Println("")
	fmt.Println(ber.TLV(resp))
	fmt.Println("")

	mt, v, err := kerberos.DecodeAny(resp)
	if err != nil {
		panic(kerberos.Details(err))
	}

	switch r := v.(type) {
	case *kerberos.KrbError:
		fmt.Println(mt, errorcode.Lookup(r.ErrorCode), r.EText)
		if len(r.EData) > 0 {
			var methods kerberos.MethodData
			if err := kerberos.Unmarshal(r.EData, &methods); err == nil {
				for _, m := range methods {
					fmt.Println("  preauth method:", m.PaDataType)
				}
			}
		}
	case *kerberos.AsRep:
		fmt.Println(mt, "ticket for", r.Ticket.SName.String()+"@"+r.Ticket.Realm, "etype", r.EncPart.EType)
	default:
		fmt.Println(mt)
	}
}
