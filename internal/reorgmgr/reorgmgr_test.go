package reorgmgr

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/goran-ethernal/eventstore/internal/artifacts"
	"github.com/goran-ethernal/eventstore/internal/factoryindex"
	"github.com/goran-ethernal/eventstore/internal/intervals"
	"github.com/goran-ethernal/eventstore/tests/helpers"
	"github.com/stretchr/testify/require"
)

func TestDeleteRealtimeDataRollsBackEverything(t *testing.T) {
	sdb := helpers.NewTestDB(t, "reorgmgr")

	as := artifacts.New(nil)
	is := intervals.New(nil)
	fs := factoryindex.New(nil)
	mgr := New(as, is, fs, nil)

	addr := common.HexToAddress("0xcccccccccccccccccccccccccccccccccccccccc")
	blockHash := common.HexToHash("0x0a")
	txHash := common.HexToHash("0x0b")

	block := &artifacts.Block{
		ChainID: 1, BlockHash: blockHash, BlockNumber: big.NewInt(50),
		Timestamp: big.NewInt(1000), GasLimit: 1, GasUsed: 1, Size: 1,
	}
	tx := &artifacts.Transaction{
		ChainID: 1, TxHash: txHash, BlockHash: blockHash, Type: artifacts.TxTypeLegacy,
		From: addr, Value: big.NewInt(0), GasPrice: big.NewInt(1),
	}
	log := &artifacts.Log{ChainID: 1, BlockHash: blockHash, LogIndex: 0, TxHash: txHash, BlockNumber: big.NewInt(50), Address: addr}

	require.NoError(t, mgr.InsertRealtimeBlock(sdb, block, []*artifacts.Transaction{tx}, []*artifacts.Log{log}))

	criteria, err := intervals.NewCriteria([]string{addr.Hex()}, nil)
	require.NoError(t, err)
	require.NoError(t, mgr.InsertRealtimeInterval(sdb, 1, criteria, big.NewInt(1), big.NewInt(100)))

	require.NoError(t, mgr.DeleteRealtimeData(sdb, 1, 50))

	_, found, err := as.GetBlock(sdb, 1, blockHash)
	require.NoError(t, err)
	require.False(t, found)

	filterID, err := is.EnsureFilter(sdb, 1, criteria)
	require.NoError(t, err)
	ivs, err := is.GetIntervals(sdb, 1, filterID)
	require.NoError(t, err)
	require.Len(t, ivs, 1)
	require.Equal(t, int64(49), ivs[0].End.Int64())
}

func TestInsertRealtimeFactoryIntervalAlsoInsertsSyntheticLogFilter(t *testing.T) {
	sdb := helpers.NewTestDB(t, "reorgmgr_factory_interval")

	as := artifacts.New(nil)
	is := intervals.New(nil)
	fs := factoryindex.New(nil)
	mgr := New(as, is, fs, nil)

	factoryAddr := common.HexToAddress("0xf0f0f0f0f0f0f0f0f0f0f0f0f0f0f0f0f0f0f0f0")
	selector := common.HexToHash("0xdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeef")

	require.NoError(t, fs.RegisterFactory(sdb, &factoryindex.Factory{
		ChainID: 1, FactoryID: "fac-1", Address: factoryAddr, EventSelector: selector,
		ChildAddressLocation: factoryindex.Topic(1),
	}))

	require.NoError(t, mgr.InsertRealtimeFactoryInterval(sdb, 1, "fac-1", big.NewInt(1), big.NewInt(100)))

	factoryIvs, err := fs.GetIntervals(sdb, 1, "fac-1")
	require.NoError(t, err)
	require.Len(t, factoryIvs, 1)

	synthetic, err := intervals.NewCriteria([]string{factoryAddr.Hex()}, [][]string{{selector.Hex()}})
	require.NoError(t, err)
	syntheticID, err := is.EnsureFilter(sdb, 1, synthetic)
	require.NoError(t, err)
	logFilterIvs, err := is.GetIntervals(sdb, 1, syntheticID)
	require.NoError(t, err)
	require.Len(t, logFilterIvs, 1)
	require.Equal(t, int64(1), logFilterIvs[0].Start.Int64())
	require.Equal(t, int64(100), logFilterIvs[0].End.Int64())
}
