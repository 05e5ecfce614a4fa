package votingkey

import (
	"bytes"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/stretchr/testify/require"

	"commons-governance/errs"
)

var chainCode = bytes.Repeat([]byte{0x42}, ChainCodeSize)

func TestPath(t *testing.T) {
	require.Equal(t, "m/0'/123'/0'", Path(123, 0))
}

func TestDeriveDiffersFromRegistration(t *testing.T) {
	reg, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	voting, err := Derive(reg, chainCode, 123, 0)
	require.NoError(t, err)
	require.NotEqual(t, reg.Serialize(), voting.Serialize())
}

func TestDeriveIsDeterministic(t *testing.T) {
	reg, _ := btcec.NewPrivateKey()
	a, err := DerivePublicHex(reg, chainCode, 7, 1)
	require.NoError(t, err)
	b, err := DerivePublicHex(reg, chainCode, 7, 1)
	require.NoError(t, err)
	require.Equal(t, a, b)

	ok, err := VerifyDerivation(reg, chainCode, a, 7, 1)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestDifferentProposalsAndIndices(t *testing.T) {
	reg, _ := btcec.NewPrivateKey()
	p100, _ := DerivePublicHex(reg, chainCode, 100, 0)
	p200, _ := DerivePublicHex(reg, chainCode, 200, 0)
	p100i1, _ := DerivePublicHex(reg, chainCode, 100, 1)

	require.NotEqual(t, p100, p200)
	require.NotEqual(t, p100, p100i1)

	ok, err := VerifyDerivation(reg, chainCode, p100, 200, 0)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestDeriveRejectsBadInput(t *testing.T) {
	reg, _ := btcec.NewPrivateKey()

	_, err := Derive(reg, []byte{1, 2, 3}, 1, 0)
	require.True(t, errs.IsKind(err, errs.Validation))

	_, err = Derive(reg, chainCode, -1, 0)
	require.True(t, errs.IsKind(err, errs.Validation))
}
