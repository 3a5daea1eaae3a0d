package utils

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
)

// GenerateCode returns an uppercase hex string of 2n characters, used as the
// human-readable reference on journal rows.
func GenerateCode(n int) (string, error) {
	byt := make([]byte, n)
	if _, err := rand.Read(byt); err != nil {
		return "", err
	}
	return strings.ToUpper(hex.EncodeToString(byt)), nil
}

// ReferenceCode builds a prefixed reference such as "TR-1A2B3C4D". It never
// fails the caller: if the random source is unavailable the prefix alone is
// returned.
func ReferenceCode(prefix string) string {
	code, err := GenerateCode(4)
	if err != nil {
		return prefix
	}
	return prefix + "-" + code
}
