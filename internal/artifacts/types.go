// Package artifacts implements the chain artifact store (blocks,
// transactions, logs), deduplicated by their chain-native identifiers.
package artifacts

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// TxType tags which transaction envelope a Transaction carries, mirroring
// go-ethereum's legacy/2930/1559/4844 type codes.
type TxType uint8

const (
	TxTypeLegacy TxType = 0
	TxType2930   TxType = 1
	TxType1559   TxType = 2
	TxType4844   TxType = 3
)

// Block is a chain block header, identified by (ChainID, BlockHash).
type Block struct {
	ChainID          uint64
	BlockHash        common.Hash
	BlockNumber      *big.Int
	ParentHash       common.Hash
	Timestamp        *big.Int
	BaseFee          *big.Int
	Difficulty       *big.Int
	GasLimit         uint64
	GasUsed          uint64
	Miner            common.Address
	Nonce            uint64
	MixHash          common.Hash
	LogsBloom        []byte
	ReceiptsRoot     common.Hash
	Sha3Uncles       common.Hash
	Size             uint64
	StateRoot        common.Hash
	TotalDifficulty  *big.Int
	TransactionsRoot common.Hash
	ExtraData        []byte
}

// AccessTuple mirrors go-ethereum's types.AccessTuple for EIP-2930 access
// lists, kept as a plain struct so it round-trips through JSON without
// pulling rlp-specific encoding into the storage layer.
type AccessTuple struct {
	Address     common.Address `json:"address"`
	StorageKeys []common.Hash  `json:"storageKeys"`
}

// Transaction is a chain transaction, identified by (ChainID, TxHash).
// Fields not applicable to a given Type are left at their zero value;
// see TxType for the type-selector semantics.
type Transaction struct {
	ChainID   uint64
	TxHash    common.Hash
	BlockHash common.Hash
	Type      TxType
	TxIndex   uint

	From  common.Address
	To    *common.Address // nil for contract-creation transactions
	Input []byte
	Value *big.Int
	Nonce uint64
	Gas   uint64

	// GasPrice is set for legacy/2930 transactions.
	GasPrice *big.Int
	// MaxFeePerGas/MaxPriorityFeePerGas are set for 1559/4844 transactions.
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int

	AccessList []AccessTuple

	// BlobVersionedHashes is set only for 4844 transactions.
	BlobVersionedHashes []common.Hash

	V, R, S *big.Int
}

// Log is a single event log, identified by (ChainID, BlockHash, LogIndex).
type Log struct {
	ChainID     uint64
	BlockHash   common.Hash
	LogIndex    uint
	TxHash      common.Hash
	TxIndex     uint
	BlockNumber *big.Int
	Address     common.Address
	Topics      []common.Hash // 0-4 entries
	Data        []byte
	Removed     bool
}

// ID is the derived stable event identifier downstream consumers key on:
// {blockHash}-{hex(logIndex)}, lowercase hex with no leading zeros on the
// logIndex part.
func (l Log) ID() string {
	return fmt.Sprintf("%s-%s", lowerHex(l.BlockHash), fmt.Sprintf("0x%x", l.LogIndex))
}

func lowerHex(h common.Hash) string {
	return h.Hex()
}

// Topic returns the topic at position i, or the zero hash if the log has
// fewer than i+1 topics.
func (l Log) Topic(i int) common.Hash {
	if i < 0 || i >= len(l.Topics) {
		return common.Hash{}
	}
	return l.Topics[i]
}
