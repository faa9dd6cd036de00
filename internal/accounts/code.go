package accounts

import (
	"crypto/rand"
	"math/big"
	"strings"
)

const (
	referralCodeLength   = 8
	referralCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
)

// NewReferralCode returns a random upper-case code without look-alike characters.
func NewReferralCode() (string, error) {
	base := big.NewInt(int64(len(referralCodeAlphabet)))
	var b strings.Builder
	b.Grow(referralCodeLength)
	for i := 0; i < referralCodeLength; i++ {
		n, err := rand.Int(rand.Reader, base)
		if err != nil {
			return "", err
		}
		b.WriteByte(referralCodeAlphabet[n.Int64()])
	}
	return b.String(), nil
}

// NormalizeReferralCode trims and upper-cases user input.
func NormalizeReferralCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
