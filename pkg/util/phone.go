package util

import "strings"

// NormalizePhone keeps digits only.
func NormalizePhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// PhonesMatch compares the trailing ten digits of both numbers so that
// country-code and trunk-prefix variants of the same subscriber match.
func PhonesMatch(a, b string) bool {
	da, db := NormalizePhone(a), NormalizePhone(b)
	if len(da) < 7 || len(db) < 7 {
		return false
	}
	return lastN(da, 10) == lastN(db, 10)
}

func lastN(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
