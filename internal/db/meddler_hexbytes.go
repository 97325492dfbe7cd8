//nolint:dupl
package db

import (
	"database/sql"
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/russross/meddler"
)

func init() {
	// Register custom meddler converter for []byte columns that must be
	// persisted as lowercase 0x-prefixed hex text rather than a raw BLOB.
	meddler.Register("hexbytes", HexBytesMeddler{})
}

// HexBytesMeddler handles conversion between []byte and a 0x-prefixed hex
// TEXT column, matching the wire representation spec'd for log data,
// transaction input, and other byte-string fields.
type HexBytesMeddler struct{}

func (h HexBytesMeddler) PreRead(fieldAddr interface{}) (scanTarget interface{}, err error) {
	return new(sql.NullString), nil
}

func (h HexBytesMeddler) PostRead(fieldAddr, scanTarget interface{}) error {
	ns, ok := scanTarget.(*sql.NullString)
	if !ok {
		return fmt.Errorf("expected *sql.NullString, got %T", scanTarget)
	}

	ptr, ok := fieldAddr.(*[]byte)
	if !ok {
		return fmt.Errorf("expected *[]byte, got %T", fieldAddr)
	}

	if !ns.Valid || ns.String == "" {
		*ptr = nil
		return nil
	}

	decoded, err := hexutil.Decode(ns.String)
	if err != nil {
		return fmt.Errorf("invalid hex bytes %q: %w", ns.String, err)
	}
	*ptr = decoded
	return nil
}

func (h HexBytesMeddler) PreWrite(field interface{}) (saveValue interface{}, err error) {
	b, ok := field.([]byte)
	if !ok {
		return nil, fmt.Errorf("expected []byte, got %T", field)
	}
	if b == nil {
		return nil, nil
	}
	return hexutil.Encode(b), nil
}

// EncodeHexBytes renders b the same way HexBytesMeddler.PreWrite does, for
// callers building raw WHERE clauses against a hexbytes column.
func EncodeHexBytes(b []byte) string {
	return hexutil.Encode(b)
}
