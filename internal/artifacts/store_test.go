package artifacts

import (
	"fmt"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/goran-ethernal/eventstore/internal/storeerr"
	"github.com/goran-ethernal/eventstore/tests/helpers"
	"github.com/stretchr/testify/require"
)

func testBlock(chainID uint64, hash common.Hash, number int64) *Block {
	return &Block{
		ChainID:     chainID,
		BlockHash:   hash,
		BlockNumber: big.NewInt(number),
		ParentHash:  common.Hash{},
		Timestamp:   big.NewInt(number * 10),
		BaseFee:     big.NewInt(1),
		Difficulty:  big.NewInt(0),
		GasLimit:    1_000_000,
		GasUsed:     500,
		Miner:       common.HexToAddress("0x1000000000000000000000000000000000000001"),
		Size:        1024,
	}
}

func TestInsertAndGetBlock(t *testing.T) {
	sdb := helpers.NewTestDB(t, "artifacts_block")
	s := New(nil)

	hash := common.HexToHash("0xaa")
	require.NoError(t, s.InsertBlock(sdb, testBlock(1, hash, 10)))

	got, found, err := s.GetBlock(sdb, 1, hash)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, int64(10), got.BlockNumber.Int64())
}

func TestInsertBlockIsIdempotent(t *testing.T) {
	sdb := helpers.NewTestDB(t, "artifacts_block_dup")
	s := New(nil)

	hash := common.HexToHash("0xbb")
	require.NoError(t, s.InsertBlock(sdb, testBlock(1, hash, 5)))
	require.NoError(t, s.InsertBlock(sdb, testBlock(1, hash, 5)))

	got, found, err := s.GetBlock(sdb, 1, hash)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, int64(5), got.BlockNumber.Int64())
}

func TestGetBlockNotFound(t *testing.T) {
	sdb := helpers.NewTestDB(t, "artifacts_block_missing")
	s := New(nil)

	_, found, err := s.GetBlock(sdb, 1, common.HexToHash("0xcc"))
	require.NoError(t, err)
	require.False(t, found)
}

func TestInsertTransactionReferentialViolation(t *testing.T) {
	sdb := helpers.NewTestDB(t, "artifacts_tx_orphan")
	s := New(nil)

	err := s.InsertTransaction(sdb, &Transaction{
		ChainID:   1,
		TxHash:    common.HexToHash("0xdd"),
		BlockHash: common.HexToHash("0xdeadbeef"),
		Type:      TxTypeLegacy,
		From:      common.HexToAddress("0x2000000000000000000000000000000000000002"),
		Value:     big.NewInt(0),
		GasPrice:  big.NewInt(1),
	})
	require.Error(t, err)
	require.True(t, storeerr.Is(err, storeerr.KindReferentialViolation))
}

func TestInsertLogReferentialViolation(t *testing.T) {
	sdb := helpers.NewTestDB(t, "artifacts_log_orphan")
	s := New(nil)

	err := s.InsertLog(sdb, &Log{
		ChainID:     1,
		BlockHash:   common.HexToHash("0xee"),
		LogIndex:    0,
		TxHash:      common.HexToHash("0xff"),
		BlockNumber: big.NewInt(1),
		Address:     common.HexToAddress("0x3000000000000000000000000000000000000003"),
	})
	require.Error(t, err)
	require.True(t, storeerr.Is(err, storeerr.KindReferentialViolation))
}

func TestInsertTransactionAndLogAfterBlock(t *testing.T) {
	sdb := helpers.NewTestDB(t, "artifacts_full")
	s := New(nil)

	blockHash := common.HexToHash("0x11")
	txHash := common.HexToHash("0x22")
	require.NoError(t, s.InsertBlock(sdb, testBlock(1, blockHash, 1)))

	to := common.HexToAddress("0x4000000000000000000000000000000000000004")
	require.NoError(t, s.InsertTransaction(sdb, &Transaction{
		ChainID:   1,
		TxHash:    txHash,
		BlockHash: blockHash,
		Type:      TxType1559,
		From:      common.HexToAddress("0x5000000000000000000000000000000000000005"),
		To:        &to,
		Value:     big.NewInt(42),
		GasPrice:  big.NewInt(0),
	}))

	gotTx, found, err := s.GetTransaction(sdb, 1, txHash)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, int64(42), gotTx.Value.Int64())
	require.Equal(t, to, *gotTx.To)

	addr := common.HexToAddress("0x6000000000000000000000000000000000000006")
	require.NoError(t, s.InsertLog(sdb, &Log{
		ChainID:     1,
		BlockHash:   blockHash,
		LogIndex:    3,
		TxHash:      txHash,
		BlockNumber: big.NewInt(1),
		Address:     addr,
		Topics:      []common.Hash{common.HexToHash("0x77")},
		Data:        []byte{0x01, 0x02},
	}))

	gotLog, found, err := s.GetLog(sdb, 1, blockHash, 3)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, addr, gotLog.Address)
	require.Equal(t, common.HexToHash("0x77"), gotLog.Topic(0))
	require.Equal(t, fmt.Sprintf("%s-0x3", blockHash.Hex()), gotLog.ID())
}

func TestDeleteFromBlockRemovesAtAndAboveCursor(t *testing.T) {
	sdb := helpers.NewTestDB(t, "artifacts_delete")
	s := New(nil)

	for i := int64(1); i <= 3; i++ {
		bh := common.BigToHash(big.NewInt(i))
		require.NoError(t, s.InsertBlock(sdb, testBlock(1, bh, i)))
	}

	require.NoError(t, s.DeleteFromBlock(sdb, 1, 2))

	_, found, err := s.GetBlock(sdb, 1, common.BigToHash(big.NewInt(1)))
	require.NoError(t, err)
	require.True(t, found)

	_, found, err = s.GetBlock(sdb, 1, common.BigToHash(big.NewInt(2)))
	require.NoError(t, err)
	require.False(t, found)

	_, found, err = s.GetBlock(sdb, 1, common.BigToHash(big.NewInt(3)))
	require.NoError(t, err)
	require.False(t, found)
}
