package main

import (
	"flag"
	"fmt"
	"strings"

	"github.com/gemalto/flume"
	"github.com/gemalto/kerberos-go"
	"github.com/gemalto/kerberos-go/mock"
)

func main() {
	flume.Configure(flume.Config{
		Development:  true,
		DefaultLevel: flume.DebugLevel,
	})

	var addr, realm, principals string
	flag.StringVar(&addr, "addr", "127.0.0.1:8088", "listen address")
	flag.StringVar(&realm, "realm", "EXAMPLE.COM", "realm")
	flag.StringVar(&principals, "principals", "alice,bob", "comma separated list of known client principals")
	flag.Parse()

	kdc := mock.NewMockKDC(realm, strings.Split(principals, ",")...)

	srv := kerberos.Server{
		Handler: &kerberos.StandardProtocolHandler{
			Realm:          realm,
			MessageHandler: kdc,
			LogTraffic:     true,
		},
	}

	fmt.Println("server: listening on", addr)

	panic(srv.ListenAndServe(addr))
}
