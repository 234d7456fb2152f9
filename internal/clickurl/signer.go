// Package clickurl signs and verifies the destination of click-tracking links.
package clickurl

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// SignatureLength is the number of hex characters kept from the HMAC.
const SignatureLength = 16

// Signer computes HMAC-SHA256 signatures over a token and its destination.
type Signer struct {
	secret []byte
}

func NewSigner(secret string) *Signer {
	return &Signer{secret: []byte(secret)}
}

// message binds the destination to the token, so a signature cannot be replayed
// onto another link.
func message(token, destination string) string {
	return token + "|" + destination
}

func (s *Signer) Sign(token, destination string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(message(token, destination)))
	return hex.EncodeToString(mac.Sum(nil))[:SignatureLength]
}

// Verify reports whether signature was produced by Sign for token and destination.
func (s *Signer) Verify(token, destination, signature string) bool {
	if signature == "" {
		return false
	}
	return hmac.Equal([]byte(s.Sign(token, destination)), []byte(signature))
}
