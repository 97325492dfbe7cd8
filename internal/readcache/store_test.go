package readcache

import (
	"context"
	"math/big"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/goran-ethernal/eventstore/tests/helpers"
	"github.com/stretchr/testify/require"
)

func TestGetContractReadResultMiss(t *testing.T) {
	db := helpers.NewTestDB(t, "readcache_miss")
	s := New(nil)

	_, found, err := s.GetContractReadResult(db, 1, common.Address{}, big.NewInt(1), []byte{0x01})
	require.NoError(t, err)
	require.False(t, found)
}

func TestInsertAndGetContractReadResult(t *testing.T) {
	db := helpers.NewTestDB(t, "readcache_hit")
	s := New(nil)

	addr := common.HexToAddress("0xdddddddddddddddddddddddddddddddddddddddd")
	require.NoError(t, s.InsertContractReadResult(db, &ReadResult{
		ChainID: 1, Address: addr, BlockNumber: big.NewInt(100), CallData: []byte{0xaa}, Result: []byte{0xbb, 0xcc},
	}))
	// idempotent
	require.NoError(t, s.InsertContractReadResult(db, &ReadResult{
		ChainID: 1, Address: addr, BlockNumber: big.NewInt(100), CallData: []byte{0xaa}, Result: []byte{0xbb, 0xcc},
	}))

	result, found, err := s.GetContractReadResult(db, 1, addr, big.NewInt(100), []byte{0xaa})
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []byte{0xbb, 0xcc}, result)
}

func TestInsertContractReadResultReplacesOnConflict(t *testing.T) {
	db := helpers.NewTestDB(t, "readcache_replace")
	s := New(nil)

	addr := common.HexToAddress("0xffffffffffffffffffffffffffffffffffffffff")
	key := &ReadResult{ChainID: 1, Address: addr, BlockNumber: big.NewInt(7), CallData: []byte{0x01}}

	key.Result = []byte{0x01}
	require.NoError(t, s.InsertContractReadResult(db, key))

	key.Result = []byte{0x02}
	require.NoError(t, s.InsertContractReadResult(db, key))

	result, found, err := s.GetContractReadResult(db, 1, addr, big.NewInt(7), []byte{0x01})
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []byte{0x02}, result)
}

func TestGetOrFetchDeduplicatesConcurrentMisses(t *testing.T) {
	db := helpers.NewTestDB(t, "readcache_singleflight")
	s := New(nil)

	addr := common.HexToAddress("0xeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeee")
	var calls atomic.Int32

	fetch := func(ctx context.Context) ([]byte, error) {
		calls.Add(1)
		return []byte{0x42}, nil
	}

	var wg sync.WaitGroup
	results := make([][]byte, 10)
	for i := 0; i < 10; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, err := s.GetOrFetch(context.Background(), db, 1, addr, big.NewInt(5), []byte{0x01}, fetch)
			require.NoError(t, err)
			results[i] = r
		}()
	}
	wg.Wait()

	for _, r := range results {
		require.Equal(t, []byte{0x42}, r)
	}
	require.Equal(t, int32(1), calls.Load())
	require.GreaterOrEqual(t, calls.Load(), int32(1))
}
