package pawn

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil/bech32"
	"golang.org/x/crypto/ripemd160" //nolint:staticcheck // address format fixes the hash

	"github.com/Additional-Code/pawnshop/pkg/errorbank"
)

// DefaultAddressPrefix is the bech32 human-readable part of escrow handles.
const DefaultAddressPrefix = "pawn"

// AddressDeriver turns order ids into stable escrow handles.
type AddressDeriver struct {
	Prefix string
	Salt   []byte
}

// Derive returns the bech32 handle for the escrow of orderID.
func (d AddressDeriver) Derive(orderID uint64) (string, error) {
	if d.Prefix == "" {
		return "", errors.New("bech32 prefix is not configured")
	}

	var id [8]byte
	binary.BigEndian.PutUint64(id[:], orderID)

	hash := sha256.New()
	_, _ = hash.Write(d.Salt)
	_, _ = hash.Write(id[:])

	rip := ripemd160.New()
	_, _ = rip.Write(hash.Sum(nil))
	addr := rip.Sum(nil)

	converted, err := bech32.ConvertBits(addr, 8, 5, true)
	if err != nil {
		return "", err
	}
	return bech32.Encode(d.Prefix, converted)
}

// Validate checks that handle is a well-formed address under this prefix.
func (d AddressDeriver) Validate(handle string) error {
	hrp, data, err := bech32.Decode(handle)
	if err != nil {
		return errorbank.InvalidInput("malformed escrow address", errorbank.WithCause(err))
	}
	if hrp != d.Prefix {
		return errorbank.InvalidInput(fmt.Sprintf("escrow address prefix %q, want %q", hrp, d.Prefix))
	}
	raw, err := bech32.ConvertBits(data, 5, 8, false)
	if err != nil {
		return errorbank.InvalidInput("malformed escrow address", errorbank.WithCause(err))
	}
	if len(raw) != ripemd160.Size {
		return errorbank.InvalidInput("escrow address has wrong length")
	}
	return nil
}
