package evm

import (
	"encoding/hex"
	"math/big"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/stablecoin_bootstrap/internal/chain"
)

func TestSelector_KnownSignatures(t *testing.T) {
	tests := map[string]string{
		sigApprove:           "095ea7b3",
		sigOwner:             "8da5cb5b",
		sigBalanceOf:         "70a08231",
		sigTotalSupply:       "18160ddd",
		sigTransferOwnership: "f2fde38b",
		sigAllowance:         "dd62ed3e",
	}
	for sig, want := range tests {
		assert.Equal(t, want, hex.EncodeToString(selector(sig)), sig)
	}
}

func TestEncodeCall_AddressAndUint(t *testing.T) {
	spender := chain.MustParseAddress("0x5fbdb2315678afecb367f032d93f642f64180aa3")
	data, err := encodeCall(sigApprove, spender, big.NewInt(255))
	require.NoError(t, err)

	raw := strings.TrimPrefix(data, "0x")
	require.Len(t, raw, 8+64+64)
	assert.Equal(t, "095ea7b3", raw[:8])
	assert.Equal(t, strings.Repeat("0", 24)+"5fbdb2315678afecb367f032d93f642f64180aa3", raw[8:72])
	assert.Equal(t, strings.Repeat("0", 62)+"ff", raw[72:])
}

func TestEncodeArgs_RejectsOutOfRange(t *testing.T) {
	_, err := encodeArgs(big.NewInt(-1))
	assert.Error(t, err)

	_, err = encodeArgs(new(big.Int).Lsh(big.NewInt(1), 256))
	assert.Error(t, err)

	_, err = encodeArgs("nope")
	assert.Error(t, err)
}

func TestDecodeReturnValues(t *testing.T) {
	word := "0x000000000000000000000000f39fd6e51aad88f6f4ce6ab8827279cfffb92266"
	addr, err := decodeAddress(word)
	require.NoError(t, err)
	assert.Equal(t, chain.Address("0xf39fd6e51aad88f6f4ce6ab8827279cfffb92266"), addr)

	v, err := decodeUint("0x" + strings.Repeat("0", 60) + "03e8")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), v.Int64())

	_, err = decodeUint("0x01")
	assert.Error(t, err)
}

func TestQuantities(t *testing.T) {
	assert.Equal(t, "0x0", hexQuantity(nil))
	assert.Equal(t, "0x0", hexQuantity(new(big.Int)))
	assert.Equal(t, "0x3e8", hexQuantity(big.NewInt(1000)))

	v, err := parseQuantity("0x3e8")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), v.Int64())

	v, err = parseQuantity("0x")
	require.NoError(t, err)
	assert.Zero(t, v.Sign())

	_, err = parseQuantity("0xzz")
	assert.Error(t, err)
}
