// Package token implements the device-linking token codec. The wire format is
// fixed for interop: "<aci>.<epochMillis>:<base64url(HMAC-SHA256 signature)>",
// with the signature covering exactly the bytes of "<aci>.<epochMillis>".
package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/quillwire/devlink/core"
)

// DefaultValidity is the window during which an issued token may be redeemed.
const DefaultValidity = 10 * time.Minute

// Codec encodes and verifies link tokens with a process-wide secret fixed at
// construction. Both operations are pure: no I/O, no shared state.
type Codec struct {
	secret   []byte
	validity time.Duration
}

// NewCodec creates a codec from the server-wide signing secret. An empty secret
// is rejected here so a misconfigured process fails at startup rather than
// minting unverifiable tokens. A non-positive validity selects DefaultValidity.
func NewCodec(secret []byte, validity time.Duration) (*Codec, error) {
	if len(secret) == 0 {
		return nil, errors.New("link device secret must not be empty")
	}
	if validity <= 0 {
		validity = DefaultValidity
	}

	key := make([]byte, len(secret))
	copy(key, secret)

	return &Codec{secret: key, validity: validity}, nil
}

// Validity returns the token validity window.
func (c *Codec) Validity() time.Duration {
	return c.validity
}

// Encode builds the signed token for the given account identity and issue time.
// Deterministic given its inputs; the caller supplies issuedAt (typically now).
func (c *Codec) Encode(aci uuid.UUID, issuedAt time.Time) string {
	claims := aci.String() + "." + strconv.FormatInt(issuedAt.UnixMilli(), 10)
	return claims + ":" + base64.URLEncoding.EncodeToString(c.sign(claims))
}

// Decode verifies the token's format, signature, and validity window against
// now, and returns the embedded account identity.
func (c *Codec) Decode(encoded string, now time.Time) (uuid.UUID, error) {
	claimsAndSignature := strings.SplitN(encoded, ":", 2)
	if len(claimsAndSignature) != 2 {
		return uuid.Nil, core.ErrInvalidToken
	}

	providedSignature, err := base64.URLEncoding.DecodeString(claimsAndSignature[1])
	if err != nil {
		return uuid.Nil, core.ErrInvalidSignature
	}

	// hmac.Equal is constant-time
	if !hmac.Equal(c.sign(claimsAndSignature[0]), providedSignature) {
		return uuid.Nil, core.ErrInvalidSignature
	}

	aciAndTimestamp := strings.SplitN(claimsAndSignature[0], ".", 2)
	if len(aciAndTimestamp) != 2 {
		return uuid.Nil, core.ErrInvalidToken
	}

	aci, err := uuid.Parse(aciAndTimestamp[0])
	if err != nil {
		return uuid.Nil, core.ErrInvalidToken
	}

	issuedMillis, err := strconv.ParseInt(aciAndTimestamp[1], 10, 64)
	if err != nil {
		return uuid.Nil, core.ErrInvalidToken
	}

	if time.UnixMilli(issuedMillis).Add(c.validity).Before(now) {
		return uuid.Nil, core.ErrTokenExpired
	}

	return aci, nil
}

func (c *Codec) sign(claims string) []byte {
	mac := hmac.New(sha256.New, c.secret)
	mac.Write([]byte(claims))
	return mac.Sum(nil)
}
