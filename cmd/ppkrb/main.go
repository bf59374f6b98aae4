package main

import (
	"bufio"
	"bytes"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"io/ioutil"
	"os"
	"strings"

	"github.com/gemalto/kerberos-go"
	"github.com/gemalto/kerberos-go/ber"
	"github.com/gemalto/kerberos-go/internal/krbutil"
)

func main() {
	flag.Usage = func() {
		s := `ppkrb - kerberos pretty printer

Usage:  ppkrb [options] [input]

Pretty prints DER encoded Kerberos messages, given as hex.  Prints them
out as text, raw hex, pretty printed hex, or json.

The input argument should be a string.  If not present, input will
be read from standard in.

Any non-hex characters, such as whitespace or embedded formatting
characters, will be ignored.  The 'prettyhex' output format embeds
such characters, but because they are ignored, 'prettyhex' output is
still valid input.

The default output format is "text", which shows the raw TLV structure.
The "json" format decodes the message.  Application tagged messages are
detected from their tag; other types must be named with -t.

Examples:

    ppkrb 7903020105
    echo "300da003020101a106040401020304" | ppkrb -t EncryptionKey -o json

Output (in 'text' format):

    [APPLICATION 25] (3):
      INTEGER (1): 5

prettyhex format:

    79 | 03
      02 | 01 | 05
`
		_, _ = fmt.Fprintln(flag.CommandLine.Output(), s)
		flag.PrintDefaults()
	}

	var outFormat string
	var msgType string
	var inFile string
	flag.StringVar(&outFormat, "o", "", "output format: text|hex|prettyhex|json, defaults to text")
	flag.StringVar(&msgType, "t", "", "message type for json output, e.g. AS-REQ or EncryptionKey, defaults to auto detect")
	flag.StringVar(&inFile, "f", "", "input file name, defaults to stdin")

	flag.Parse()

	buf := bytes.NewBuffer(nil)

	if inFile != "" {
		file, err := ioutil.ReadFile(inFile)
		if err != nil {
			fail("error reading input file", err)
		}
		buf = bytes.NewBuffer(file)
	} else if inArg := flag.Arg(0); inArg != "" {
		buf.WriteString(inArg)
	} else {
		scanner := bufio.NewScanner(os.Stdin)

		for scanner.Scan() {
			buf.Write(scanner.Bytes())
		}

		if err := scanner.Err(); err != nil {
			fail("error reading standard input", err)
		}
	}

	outFormat = strings.ToLower(outFormat)
	if outFormat == "" {
		outFormat = "text"
	}

	mt := kerberos.MessageTypeUnknown
	if msgType != "" {
		var err error
		mt, err = kerberos.ParseMessageType(msgType)
		if err != nil {
			fail("invalid message type", err)
		}
	}

	b, err := krbutil.ParseHex(buf.String())
	if err != nil {
		fail("error parsing hex", err)
	}

	raw := ber.TLV(b)
	var count int
	for len(raw) > 0 {
		if err := raw.Valid(); err != nil {
			fail("invalid input", err)
		}
		printTLV(outFormat, mt, raw[:raw.FullLen()], count)
		count++
		raw = raw.Next()
	}
}

func printTLV(outFormat string, mt kerberos.MessageType, raw ber.TLV, count int) {
	if count > 0 {
		fmt.Println("")
	}
	switch outFormat {
	case "text":
		if err := ber.Print(os.Stdout, "", "  ", raw); err != nil {
			fail("error printing", err)
		}
	case "json":
		var v interface{}
		var err error
		if mt == kerberos.MessageTypeUnknown {
			mt, v, err = kerberos.DecodeAny(raw)
		} else {
			v, err = kerberos.Decode(mt, raw)
		}
		if err != nil {
			fail("error decoding message", fmt.Errorf("%s", kerberos.Details(err)))
		}
		s, err := json.MarshalIndent(map[string]interface{}{
			"type":  mt.String(),
			"value": v,
		}, "", "  ")
		if err != nil {
			fail("error printing JSON", err)
		}
		fmt.Print(string(s))
	case "hex":
		fmt.Print(hex.EncodeToString(raw))
	case "prettyhex":
		if err := ber.PrintPrettyHex(os.Stdout, "", "  ", raw); err != nil {
			fail("error printing", err)
		}
	default:
		fail("invalid output format: "+outFormat, nil)
	}
}

func fail(msg string, err error) {
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, msg+":", err)
	} else {
		_, _ = fmt.Fprintln(os.Stderr, msg)
	}
	os.Exit(1)
}
