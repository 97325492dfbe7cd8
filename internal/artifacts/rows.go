package artifacts

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// blockRow is the meddler-mapped row shape for the blocks table.
type blockRow struct {
	ChainID          uint64         `meddler:"chain_id"`
	BlockHash        common.Hash    `meddler:"block_hash,hash"`
	BlockNumber      *big.Int       `meddler:"block_number,bigint"`
	ParentHash       common.Hash    `meddler:"parent_hash,hash"`
	Timestamp        *big.Int       `meddler:"timestamp,bigint"`
	BaseFee          *big.Int       `meddler:"base_fee,bigint"`
	Difficulty       *big.Int       `meddler:"difficulty,bigint"`
	GasLimit         uint64         `meddler:"gas_limit"`
	GasUsed          uint64         `meddler:"gas_used"`
	Miner            common.Address `meddler:"miner,address"`
	Nonce            uint64         `meddler:"nonce"`
	MixHash          common.Hash    `meddler:"mix_hash,hash"`
	LogsBloom        []byte         `meddler:"logs_bloom,hexbytes"`
	ReceiptsRoot     common.Hash    `meddler:"receipts_root,hash"`
	Sha3Uncles       common.Hash    `meddler:"sha3_uncles,hash"`
	Size             uint64         `meddler:"size"`
	StateRoot        common.Hash    `meddler:"state_root,hash"`
	TotalDifficulty  *big.Int       `meddler:"total_difficulty,bigint"`
	TransactionsRoot common.Hash    `meddler:"transactions_root,hash"`
	ExtraData        []byte         `meddler:"extra_data,hexbytes"`
	CreatedAt        string         `meddler:"created_at"`
}

func blockToRow(b *Block) *blockRow {
	// logs_bloom is NOT NULL; an absent bloom is stored as empty bytes.
	logsBloom := b.LogsBloom
	if logsBloom == nil {
		logsBloom = []byte{}
	}
	return &blockRow{
		ChainID:          b.ChainID,
		BlockHash:        b.BlockHash,
		BlockNumber:      b.BlockNumber,
		ParentHash:       b.ParentHash,
		Timestamp:        b.Timestamp,
		BaseFee:          b.BaseFee,
		Difficulty:       b.Difficulty,
		GasLimit:         b.GasLimit,
		GasUsed:          b.GasUsed,
		Miner:            b.Miner,
		Nonce:            b.Nonce,
		MixHash:          b.MixHash,
		LogsBloom:        logsBloom,
		ReceiptsRoot:     b.ReceiptsRoot,
		Sha3Uncles:       b.Sha3Uncles,
		Size:             b.Size,
		StateRoot:        b.StateRoot,
		TotalDifficulty:  b.TotalDifficulty,
		TransactionsRoot: b.TransactionsRoot,
		ExtraData:        b.ExtraData,
	}
}

func rowToBlock(r *blockRow) *Block {
	return &Block{
		ChainID:          r.ChainID,
		BlockHash:        r.BlockHash,
		BlockNumber:      r.BlockNumber,
		ParentHash:       r.ParentHash,
		Timestamp:        r.Timestamp,
		BaseFee:          r.BaseFee,
		Difficulty:       r.Difficulty,
		GasLimit:         r.GasLimit,
		GasUsed:          r.GasUsed,
		Miner:            r.Miner,
		Nonce:            r.Nonce,
		MixHash:          r.MixHash,
		LogsBloom:        r.LogsBloom,
		ReceiptsRoot:     r.ReceiptsRoot,
		Sha3Uncles:       r.Sha3Uncles,
		Size:             r.Size,
		StateRoot:        r.StateRoot,
		TotalDifficulty:  r.TotalDifficulty,
		TransactionsRoot: r.TransactionsRoot,
		ExtraData:        r.ExtraData,
	}
}

// txRow is the meddler-mapped row shape for the transactions table.
type txRow struct {
	ChainID              uint64         `meddler:"chain_id"`
	TxHash               common.Hash    `meddler:"tx_hash,hash"`
	BlockHash            common.Hash    `meddler:"block_hash,hash"`
	Type                 uint8          `meddler:"tx_type"`
	TxIndex              uint           `meddler:"tx_index"`
	From                 common.Address `meddler:"from_address,address"`
	To                   *common.Address `meddler:"to_address,address"`
	Input                []byte         `meddler:"input,hexbytes"`
	Value                *big.Int       `meddler:"value,bigint"`
	Nonce                uint64         `meddler:"nonce"`
	Gas                  uint64         `meddler:"gas"`
	GasPrice             *big.Int       `meddler:"gas_price,bigint"`
	MaxFeePerGas         *big.Int       `meddler:"max_fee_per_gas,bigint"`
	MaxPriorityFeePerGas *big.Int       `meddler:"max_priority_fee_per_gas,bigint"`
	AccessList           *string        `meddler:"access_list"`
	BlobVersionedHashes  *string        `meddler:"blob_versioned_hashes"`
	V                    *big.Int       `meddler:"v,bigint"`
	R                    *big.Int       `meddler:"r,bigint"`
	S                    *big.Int       `meddler:"s,bigint"`
	CreatedAt            string         `meddler:"created_at"`
}

func txToRow(t *Transaction) (*txRow, error) {
	row := &txRow{
		ChainID:              t.ChainID,
		TxHash:               t.TxHash,
		BlockHash:            t.BlockHash,
		Type:                 uint8(t.Type),
		TxIndex:              t.TxIndex,
		From:                 t.From,
		To:                   t.To,
		Input:                t.Input,
		Value:                t.Value,
		Nonce:                t.Nonce,
		Gas:                  t.Gas,
		GasPrice:             t.GasPrice,
		MaxFeePerGas:         t.MaxFeePerGas,
		MaxPriorityFeePerGas: t.MaxPriorityFeePerGas,
		V:                    t.V,
		R:                    t.R,
		S:                    t.S,
	}

	if len(t.AccessList) > 0 {
		b, err := json.Marshal(t.AccessList)
		if err != nil {
			return nil, fmt.Errorf("marshal access list: %w", err)
		}
		s := string(b)
		row.AccessList = &s
	}

	if len(t.BlobVersionedHashes) > 0 {
		b, err := json.Marshal(t.BlobVersionedHashes)
		if err != nil {
			return nil, fmt.Errorf("marshal blob versioned hashes: %w", err)
		}
		s := string(b)
		row.BlobVersionedHashes = &s
	}

	return row, nil
}

func rowToTx(r *txRow) (*Transaction, error) {
	tx := &Transaction{
		ChainID:              r.ChainID,
		TxHash:               r.TxHash,
		BlockHash:            r.BlockHash,
		Type:                 TxType(r.Type),
		TxIndex:              r.TxIndex,
		From:                 r.From,
		To:                   r.To,
		Input:                r.Input,
		Value:                r.Value,
		Nonce:                r.Nonce,
		Gas:                  r.Gas,
		GasPrice:             r.GasPrice,
		MaxFeePerGas:         r.MaxFeePerGas,
		MaxPriorityFeePerGas: r.MaxPriorityFeePerGas,
		V:                    r.V,
		R:                    r.R,
		S:                    r.S,
	}

	if r.AccessList != nil {
		if err := json.Unmarshal([]byte(*r.AccessList), &tx.AccessList); err != nil {
			return nil, fmt.Errorf("unmarshal access list: %w", err)
		}
	}
	if r.BlobVersionedHashes != nil {
		if err := json.Unmarshal([]byte(*r.BlobVersionedHashes), &tx.BlobVersionedHashes); err != nil {
			return nil, fmt.Errorf("unmarshal blob versioned hashes: %w", err)
		}
	}

	return tx, nil
}

// logRow is the meddler-mapped row shape for the logs table.
type logRow struct {
	ChainID     uint64         `meddler:"chain_id"`
	BlockHash   common.Hash    `meddler:"block_hash,hash"`
	LogIndex    uint           `meddler:"log_index"`
	TxHash      common.Hash    `meddler:"tx_hash,hash"`
	TxIndex     uint           `meddler:"tx_index"`
	BlockNumber *big.Int       `meddler:"block_number,bigint"`
	Address     common.Address `meddler:"address,address"`
	Topic0      *common.Hash   `meddler:"topic0,hash"`
	Topic1      *common.Hash   `meddler:"topic1,hash"`
	Topic2      *common.Hash   `meddler:"topic2,hash"`
	Topic3      *common.Hash   `meddler:"topic3,hash"`
	Data        []byte         `meddler:"data,hexbytes"`
	Removed     bool           `meddler:"removed"`
	CreatedAt   string         `meddler:"created_at"`
}

func logToRow(l *Log) *logRow {
	row := &logRow{
		ChainID:     l.ChainID,
		BlockHash:   l.BlockHash,
		LogIndex:    l.LogIndex,
		TxHash:      l.TxHash,
		TxIndex:     l.TxIndex,
		BlockNumber: l.BlockNumber,
		Address:     l.Address,
		Data:        l.Data,
		Removed:     l.Removed,
	}

	if t := l.Topic(0); len(l.Topics) > 0 {
		row.Topic0 = &t
	}
	if len(l.Topics) > 1 {
		t := l.Topics[1]
		row.Topic1 = &t
	}
	if len(l.Topics) > 2 {
		t := l.Topics[2]
		row.Topic2 = &t
	}
	if len(l.Topics) > 3 {
		t := l.Topics[3]
		row.Topic3 = &t
	}

	return row
}

func rowToLog(r *logRow) *Log {
	l := &Log{
		ChainID:     r.ChainID,
		BlockHash:   r.BlockHash,
		LogIndex:    r.LogIndex,
		TxHash:      r.TxHash,
		TxIndex:     r.TxIndex,
		BlockNumber: r.BlockNumber,
		Address:     r.Address,
		Data:        r.Data,
		Removed:     r.Removed,
	}

	if r.Topic0 != nil {
		l.Topics = append(l.Topics, *r.Topic0)
	}
	if r.Topic1 != nil {
		l.Topics = append(l.Topics, *r.Topic1)
	}
	if r.Topic2 != nil {
		l.Topics = append(l.Topics, *r.Topic2)
	}
	if r.Topic3 != nil {
		l.Topics = append(l.Topics, *r.Topic3)
	}

	return l
}
