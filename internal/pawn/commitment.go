package pawn

import (
	"crypto/sha256"
	"database/sql/driver"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/Additional-Code/pawnshop/pkg/errorbank"
)

// Hash is a 32-byte shipment commitment. The zero value means "not set".
type Hash [32]byte

// Commit hashes the 32-byte big-endian encoding of a tracking number.
func Commit(trackingNumber *big.Int) (Hash, error) {
	if trackingNumber == nil || trackingNumber.Sign() < 0 || trackingNumber.BitLen() > 256 {
		return Hash{}, errorbank.InvalidInput("tracking number must be an unsigned 256-bit integer")
	}
	var word [32]byte
	trackingNumber.FillBytes(word[:])
	return sha256.Sum256(word[:]), nil
}

// ParseTrackingNumber reads a decimal tracking number.
func ParseTrackingNumber(s string) (*big.Int, error) {
	n, ok := new(big.Int).SetString(strings.TrimSpace(s), 10)
	if !ok {
		return nil, errorbank.InvalidInput(fmt.Sprintf("invalid tracking number %q", s))
	}
	return n, nil
}

func (h Hash) IsSet() bool {
	return h != Hash{}
}

// Matches reports whether trackingNumber opens this commitment.
func (h Hash) Matches(trackingNumber *big.Int) bool {
	if !h.IsSet() {
		return false
	}
	c, err := Commit(trackingNumber)
	return err == nil && c == h
}

// String renders the hash as 0x-prefixed hex.
func (h Hash) String() string {
	return "0x" + hex.EncodeToString(h[:])
}

// ParseHash reads a 0x-prefixed or bare hex hash.
func ParseHash(s string) (Hash, error) {
	var h Hash
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	if s == "" {
		return h, nil
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return h, fmt.Errorf("parse hash: %w", err)
	}
	if len(raw) != len(h) {
		return h, fmt.Errorf("parse hash: want %d bytes, got %d", len(h), len(raw))
	}
	copy(h[:], raw)
	return h, nil
}

func (h Hash) MarshalJSON() ([]byte, error) {
	return json.Marshal(h.String())
}

func (h *Hash) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseHash(s)
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

func (h Hash) Value() (driver.Value, error) {
	return h.String(), nil
}

func (h *Hash) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*h = Hash{}
		return nil
	case string:
		parsed, err := ParseHash(v)
		*h = parsed
		return err
	case []byte:
		parsed, err := ParseHash(string(v))
		*h = parsed
		return err
	default:
		return fmt.Errorf("scan hash: unsupported type %T", src)
	}
}
