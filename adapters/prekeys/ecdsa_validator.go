// Package prekeys implements pre-key signature validation. Each pre-key carries
// a signature by the account's identity key over the pre-key's public key bytes.
package prekeys

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"crypto/x509"

	"github.com/quillwire/devlink/core"
	"github.com/quillwire/devlink/ports"
)

// ECDSAValidator verifies pre-key signatures as ASN.1 ECDSA signatures over the
// SHA-256 digest of the pre-key's public key, with the identity key supplied in
// PKIX form.
type ECDSAValidator struct{}

// NewECDSAValidator creates a new validator.
func NewECDSAValidator() ports.PreKeyValidator {
	return &ECDSAValidator{}
}

// ValidatePreKeySignatures reports whether every pre-key's signature verifies
// under the given identity key. Any parse failure counts as invalid.
func (v *ECDSAValidator) ValidatePreKeySignatures(identityKey []byte, preKeys []core.SignedPreKey) bool {
	parsed, err := x509.ParsePKIXPublicKey(identityKey)
	if err != nil {
		return false
	}

	publicKey, ok := parsed.(*ecdsa.PublicKey)
	if !ok {
		return false
	}

	for _, preKey := range preKeys {
		digest := sha256.Sum256(preKey.PublicKey)
		if !ecdsa.VerifyASN1(publicKey, digest[:], preKey.Signature) {
			return false
		}
	}

	return true
}
