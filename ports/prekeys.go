package ports

import "github.com/quillwire/devlink/core"

// PreKeyValidator verifies pre-key signatures against an identity key.
type PreKeyValidator interface {
	// ValidatePreKeySignatures reports whether every pre-key's signature verifies
	// under the given identity key.
	ValidatePreKeySignatures(identityKey []byte, preKeys []core.SignedPreKey) bool
}
