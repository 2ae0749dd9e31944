package evm

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"golang.org/x/crypto/sha3"

	"github.com/R3E-Network/stablecoin_bootstrap/internal/chain"
)

// Function signatures used by the bootstrap plan.
const (
	sigMintTo            = "mintTo(address,uint256)"
	sigApprove           = "approve(address,uint256)"
	sigTransferOwnership = "transferOwnership(address)"
	sigOwner             = "owner()"
	sigBalanceOf         = "balanceOf(address)"
	sigAllowance         = "allowance(address,address)"
	sigTotalSupply       = "totalSupply()"
	sigInit              = "init(uint256)"
	sigTotalLiquidity    = "totalLiquidity()"
)

var maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

func keccak(data []byte) []byte {
	h := sha3.NewLegacyKeccak256()
	h.Write(data)
	return h.Sum(nil)
}

// selector returns the 4-byte function selector of sig.
func selector(sig string) []byte {
	return keccak([]byte(sig))[:4]
}

// encodeArgs ABI-encodes static arguments. Only addresses and uint256 values
// are needed by the bootstrap plan.
func encodeArgs(args ...interface{}) ([]byte, error) {
	out := make([]byte, 0, 32*len(args))
	for i, arg := range args {
		word := make([]byte, 32)
		switch v := arg.(type) {
		case chain.Address:
			copy(word[12:], v.Bytes())
		case *big.Int:
			if v == nil || v.Sign() < 0 || v.Cmp(maxUint256) > 0 {
				return nil, fmt.Errorf("argument %d: value out of uint256 range", i)
			}
			v.FillBytes(word)
		default:
			return nil, fmt.Errorf("argument %d: unsupported type %T", i, arg)
		}
		out = append(out, word...)
	}
	return out, nil
}

// encodeCall returns 0x-prefixed calldata for sig with args.
func encodeCall(sig string, args ...interface{}) (string, error) {
	encoded, err := encodeArgs(args...)
	if err != nil {
		return "", fmt.Errorf("encode %s: %w", sig, err)
	}
	return "0x" + hex.EncodeToString(append(selector(sig), encoded...)), nil
}

func decodeHex(s string) ([]byte, error) {
	s = strings.TrimPrefix(s, "0x")
	if len(s)%2 == 1 {
		s = "0" + s
	}
	return hex.DecodeString(s)
}

// decodeUint decodes a single uint256 return value.
func decodeUint(s string) (*big.Int, error) {
	b, err := decodeHex(s)
	if err != nil {
		return nil, err
	}
	if len(b) < 32 {
		return nil, fmt.Errorf("short return data: %d bytes", len(b))
	}
	return new(big.Int).SetBytes(b[:32]), nil
}

// decodeAddress decodes a single address return value.
func decodeAddress(s string) (chain.Address, error) {
	b, err := decodeHex(s)
	if err != nil {
		return "", err
	}
	if len(b) < 32 {
		return "", fmt.Errorf("short return data: %d bytes", len(b))
	}
	return chain.AddressFromBytes(b[12:32]), nil
}

// hexQuantity encodes v as a JSON-RPC quantity (no leading zeros).
func hexQuantity(v *big.Int) string {
	if v == nil || v.Sign() == 0 {
		return "0x0"
	}
	return "0x" + v.Text(16)
}

// parseQuantity decodes a JSON-RPC quantity.
func parseQuantity(s string) (*big.Int, error) {
	raw := strings.TrimPrefix(s, "0x")
	if raw == "" {
		return new(big.Int), nil
	}
	v, ok := new(big.Int).SetString(raw, 16)
	if !ok {
		return nil, fmt.Errorf("invalid quantity %q", s)
	}
	return v, nil
}
