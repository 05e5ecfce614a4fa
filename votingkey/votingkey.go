// Package votingkey derives per-proposal voting keys from a node's
// registration key so that signals cannot be linked to the registration.
//
// Derivation path: m/0'/<proposal>'/<signal index>'. Every step is hardened,
// so a voting key cannot be derived from the registration public key alone.
package votingkey

import (
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"

	"commons-governance/errs"
)

// governancePurpose is the first (hardened) path element.
const governancePurpose = 0

// ChainCodeSize is the BIP32 chain code length.
const ChainCodeSize = 32

// xprv version bytes; only used to shape the extended key, never serialized.
var privateVersion = []byte{0x04, 0x88, 0xad, 0xe4}

// Path returns the derivation path string for a proposal and signal index.
func Path(proposalID int64, signalIndex uint32) string {
	return fmt.Sprintf("m/%d'/%d'/%d'", governancePurpose, proposalID, signalIndex)
}

// Derive returns the voting private key for a proposal and signal index.
func Derive(registration *btcec.PrivateKey, chainCode []byte, proposalID int64, signalIndex uint32) (*btcec.PrivateKey, error) {
	const op = "votingkey.Derive"
	if len(chainCode) != ChainCodeSize {
		return nil, errs.New(errs.Validation, op, "chain code must be %d bytes, got %d", ChainCodeSize, len(chainCode))
	}
	if proposalID < 0 || proposalID >= hdkeychain.HardenedKeyStart {
		return nil, errs.New(errs.Validation, op, "proposal id %d out of hardened range", proposalID)
	}
	if signalIndex >= hdkeychain.HardenedKeyStart {
		return nil, errs.New(errs.Validation, op, "signal index %d out of hardened range", signalIndex)
	}

	key := hdkeychain.NewExtendedKey(privateVersion, registration.Serialize(), chainCode, []byte{0, 0, 0, 0}, 0, 0, true)
	for _, idx := range []uint32{governancePurpose, uint32(proposalID), signalIndex} {
		child, err := key.Derive(hdkeychain.HardenedKeyStart + idx)
		if err != nil {
			return nil, errs.Wrap(errs.Crypto, op, err, "derive %s", Path(proposalID, signalIndex))
		}
		key = child
	}
	priv, err := key.ECPrivKey()
	if err != nil {
		return nil, errs.Wrap(errs.Crypto, op, err, "extract private key")
	}
	return priv, nil
}

// DerivePublicHex is Derive followed by compressed hex encoding of the public key.
func DerivePublicHex(registration *btcec.PrivateKey, chainCode []byte, proposalID int64, signalIndex uint32) (string, error) {
	priv, err := Derive(registration, chainCode, proposalID, signalIndex)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(priv.PubKey().SerializeCompressed()), nil
}

// VerifyDerivation reports whether votingPublicKey (hex) was derived from the
// registration key at the given position. Hardened derivation needs the
// private registration key.
func VerifyDerivation(registration *btcec.PrivateKey, chainCode []byte, votingPublicKey string, proposalID int64, signalIndex uint32) (bool, error) {
	derived, err := DerivePublicHex(registration, chainCode, proposalID, signalIndex)
	if err != nil {
		return false, err
	}
	return derived == votingPublicKey, nil
}
