// Package token issues the opaque single-use credentials embedded in invite
// links and verifies a presented credential against a stored digest. Only the
// digest is ever persisted.
package token

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
)

// credential entropy in bytes before encoding
const length = 24

// Generate produces a high-entropy URL-safe credential.
func Generate() (string, error) {
	rb := make([]byte, length)
	if _, err := rand.Read(rb); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(rb), nil
}

// Digest computes the one-way digest persisted in place of the credential.
func Digest(credential string) string {
	sum := sha256.Sum256([]byte(credential))
	return hex.EncodeToString(sum[:])
}

// Issue generates a credential together with its digest. The caller persists
// the digest and hands the plaintext to the invitee exactly once.
func Issue() (credential, digest string, err error) {
	credential, err = Generate()
	if err != nil {
		return "", "", err
	}
	return credential, Digest(credential), nil
}

// Verify recomputes the digest of the presented credential and compares it to
// the stored digest in constant time.
func Verify(presented, storedDigest string) bool {
	if presented == "" || storedDigest == "" {
		return false
	}
	computed := Digest(presented)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(storedDigest)) == 1
}
