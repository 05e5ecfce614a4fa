// Package signature verifies secp256k1 ECDSA signatures over SHA-256 message digests.
package signature

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"

	"commons-governance/errs"
)

// Verifier checks that signature was produced over message by publicKey.
// Malformed inputs return a Crypto error; a well-formed but wrong signature
// returns false with a nil error.
type Verifier interface {
	Verify(message, signature, publicKey string) (bool, error)
}

// Secp256k1Verifier accepts hex public keys (33 or 65 bytes) and hex
// signatures in DER or 64-byte compact r||s form.
type Secp256k1Verifier struct{}

func NewSecp256k1Verifier() *Secp256k1Verifier { return &Secp256k1Verifier{} }

func (Secp256k1Verifier) Verify(message, signature, publicKey string) (bool, error) {
	const op = "signature.Verify"
	pub, err := ParsePublicKey(publicKey)
	if err != nil {
		return false, err
	}
	sig, err := parseSignature(signature)
	if err != nil {
		return false, errs.Wrap(errs.Crypto, op, err, "invalid signature encoding")
	}
	digest := sha256.Sum256([]byte(message))
	return sig.Verify(digest[:], pub), nil
}

// ParsePublicKey decodes a hex secp256k1 public key.
func ParsePublicKey(publicKey string) (*btcec.PublicKey, error) {
	const op = "signature.ParsePublicKey"
	raw, err := hex.DecodeString(strings.TrimSpace(publicKey))
	if err != nil {
		return nil, errs.Wrap(errs.Crypto, op, err, "public key is not hex")
	}
	pub, err := btcec.ParsePubKey(raw)
	if err != nil {
		return nil, errs.Wrap(errs.Crypto, op, err, "invalid secp256k1 public key")
	}
	return pub, nil
}

func parseSignature(signature string) (*ecdsa.Signature, error) {
	raw, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil {
		return nil, err
	}
	if len(raw) == 64 {
		var r, s btcec.ModNScalar
		if overflow := r.SetByteSlice(raw[:32]); overflow {
			return nil, errs.New(errs.Crypto, "signature.parse", "r overflows curve order")
		}
		if overflow := s.SetByteSlice(raw[32:]); overflow {
			return nil, errs.New(errs.Crypto, "signature.parse", "s overflows curve order")
		}
		return ecdsa.NewSignature(&r, &s), nil
	}
	return ecdsa.ParseDERSignature(raw)
}

// Sign produces a hex DER signature over SHA-256(message).
func Sign(key *btcec.PrivateKey, message string) string {
	digest := sha256.Sum256([]byte(message))
	return hex.EncodeToString(ecdsa.Sign(key, digest[:]).Serialize())
}

// PublicKeyHex returns the compressed hex encoding of key's public half.
func PublicKeyHex(key *btcec.PrivateKey) string {
	return EncodePublicKey(key.PubKey())
}

// EncodePublicKey returns the compressed hex encoding of pub.
func EncodePublicKey(pub *btcec.PublicKey) string {
	return hex.EncodeToString(pub.SerializeCompressed())
}
