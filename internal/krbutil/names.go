package krbutil

import (
	"strings"

	"golang.org/x/text/cases"
)

var fold = cases.Fold()

// NormalizeName reduces a message or constant name to a canonical form, so that
// "AS-REQ", "as_req", "AsReq" and "KRB_AS_REQ" can be matched against each
// other.
func NormalizeName(s string) string {
	// 1. Drop everything but letters and digits
	s = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		default:
			return -1
		}
		return r
	}, s)

	// 2. Fold case
	s = fold.String(s)

	// 3. Strip the prefix used by the IANA constant names
	if strings.HasPrefix(s, "krb") && len(s) > 3 && s != "krberror" {
		s = s[3:]
	}
	return s
}
