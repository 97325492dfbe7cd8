//nolint:dupl
package db

import (
	"database/sql"
	"fmt"
	"math/big"
	"strings"

	"github.com/russross/meddler"
)

func init() {
	// Register custom meddler converter for *big.Int backed columns.
	meddler.Register("bigint", BigIntMeddler{})
}

// bigIntHexWidth is the number of hex digits needed to hold a full 256-bit
// unsigned value, zero-padded so that plain TEXT comparison in SQL still
// orders values numerically.
const bigIntHexWidth = 64

// BigIntMeddler stores *big.Int columns (block numbers, wei amounts,
// signature components, and other chain-native "big integers") as
// fixed-width zero-padded lowercase hex text, so SQLite's native TEXT
// ordering doubles as numeric ordering without a native 256-bit type.
type BigIntMeddler struct{}

func (b BigIntMeddler) PreRead(fieldAddr interface{}) (scanTarget interface{}, err error) {
	return new(sql.NullString), nil
}

func (b BigIntMeddler) PostRead(fieldAddr, scanTarget interface{}) error {
	ns, ok := scanTarget.(*sql.NullString)
	if !ok {
		return fmt.Errorf("expected *sql.NullString, got %T", scanTarget)
	}

	ptr, ok := fieldAddr.(**big.Int)
	if !ok {
		return fmt.Errorf("expected **big.Int, got %T", fieldAddr)
	}

	if !ns.Valid {
		*ptr = nil
		return nil
	}

	v, ok := new(big.Int).SetString(strings.TrimPrefix(ns.String, "0x"), 16)
	if !ok {
		return fmt.Errorf("invalid bigint hex value %q", ns.String)
	}
	*ptr = v
	return nil
}

func (b BigIntMeddler) PreWrite(field interface{}) (saveValue interface{}, err error) {
	v, ok := field.(*big.Int)
	if !ok {
		return nil, fmt.Errorf("expected *big.Int, got %T", field)
	}
	if v == nil {
		return nil, nil
	}
	return fmt.Sprintf("%0*x", bigIntHexWidth, v), nil
}

// EncodeBigInt renders v in the same fixed-width hex form used by the
// bigint meddler, for callers that need to build raw SQL predicates (range
// comparisons, interval merges) outside of meddler-mapped structs.
func EncodeBigInt(v *big.Int) string {
	if v == nil {
		v = new(big.Int)
	}
	return fmt.Sprintf("%0*x", bigIntHexWidth, v)
}

// EncodeUint64 is EncodeBigInt for the common case of a block number or
// other chain-native counter that fits in a uint64.
func EncodeUint64(v uint64) string {
	return EncodeBigInt(new(big.Int).SetUint64(v))
}

// DecodeBigInt parses a fixed-width hex column value written by
// EncodeBigInt/the bigint meddler back into a *big.Int.
func DecodeBigInt(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(strings.TrimPrefix(s, "0x"), 16)
	if !ok {
		return nil, fmt.Errorf("invalid bigint hex value %q", s)
	}
	return v, nil
}
