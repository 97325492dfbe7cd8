// Package readcache implements the contract read cache: a keyed store of
// eth_call results, with singleflight-deduplicated read-through so that
// concurrent lookups for the same (chain, address, block, call data) miss
// only trigger one caller-supplied fetch.
package readcache

import (
	"context"
	"database/sql"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	edb "github.com/goran-ethernal/eventstore/internal/db"
	"github.com/goran-ethernal/eventstore/internal/logger"
	"github.com/goran-ethernal/eventstore/internal/storeerr"
	"github.com/goran-ethernal/eventstore/internal/storemetrics"
	"github.com/russross/meddler"
	"golang.org/x/sync/singleflight"
)

// ReadResult is a single cached contract read.
type ReadResult struct {
	ChainID     uint64
	Address     common.Address
	BlockNumber *big.Int
	CallData    []byte
	Result      []byte
}

type readResultRow struct {
	ChainID     uint64         `meddler:"chain_id"`
	Address     common.Address `meddler:"address,address"`
	BlockNumber *big.Int       `meddler:"block_number,bigint"`
	CallData    []byte         `meddler:"call_data,hexbytes"`
	Result      []byte         `meddler:"result,hexbytes"`
}

// Store is the contract read cache.
type Store struct {
	log   *logger.Logger
	flite singleflight.Group
}

// New builds a read cache Store.
func New(log *logger.Logger) *Store {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Store{log: log.WithComponent("read-cache")}
}

func cacheKey(chainID uint64, addr common.Address, block *big.Int, callData []byte) string {
	return addr.Hex() + "|" + edb.EncodeBigInt(block) + "|" + string(callData) + "|" + edb.EncodeUint64(chainID)
}

// InsertContractReadResult upserts a cached read: on conflict on
// (chainId, address, blockNumber, callData) the stored result is
// replaced with r.Result, per spec.
func (s *Store) InsertContractReadResult(exec edb.Execer, r *ReadResult) error {
	_, err := exec.Exec(
		`INSERT INTO contract_read_results (chain_id, address, block_number, call_data, result)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (chain_id, address, block_number, call_data) DO UPDATE SET result = excluded.result`,
		r.ChainID, r.Address.Hex(), edb.EncodeBigInt(r.BlockNumber), edb.EncodeHexBytes(r.CallData), edb.EncodeHexBytes(r.Result),
	)
	if err != nil {
		return storeerr.New(storeerr.KindConnectionLost, "readcache.InsertContractReadResult", err)
	}
	return nil
}

// GetContractReadResult returns the cached result for the given key, and
// whether it was found. A miss is not an error.
func (s *Store) GetContractReadResult(exec edb.Execer, chainID uint64, addr common.Address, block *big.Int, callData []byte) ([]byte, bool, error) {
	row := new(readResultRow)
	err := meddler.QueryRow(exec, row,
		"SELECT * FROM contract_read_results WHERE chain_id = ? AND address = ? AND block_number = ? AND call_data = ?",
		chainID, addr.Hex(), edb.EncodeBigInt(block), edb.EncodeHexBytes(callData),
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			storemetrics.CacheMiss()
			return nil, false, nil
		}
		return nil, false, storeerr.New(storeerr.KindConnectionLost, "readcache.GetContractReadResult", err)
	}
	storemetrics.CacheHit()
	return row.Result, true, nil
}

// Fetcher is supplied by the caller to compute a value on a cache miss.
type Fetcher func(ctx context.Context) ([]byte, error)

// GetOrFetch returns the cached result for the key if present; otherwise
// it calls fetch exactly once even if many goroutines race on the same
// key (singleflight), stores the result, and returns it to every waiter.
func (s *Store) GetOrFetch(ctx context.Context, exec edb.Execer, chainID uint64, addr common.Address, block *big.Int, callData []byte, fetch Fetcher) ([]byte, error) {
	if result, found, err := s.GetContractReadResult(exec, chainID, addr, block, callData); err != nil {
		return nil, err
	} else if found {
		return result, nil
	}

	key := cacheKey(chainID, addr, block, callData)
	v, err, _ := s.flite.Do(key, func() (interface{}, error) {
		// A flight that starts after an earlier one for the same key has
		// finished finds that flight's stored result here.
		if result, found, err := s.GetContractReadResult(exec, chainID, addr, block, callData); err != nil {
			return nil, err
		} else if found {
			return result, nil
		}
		result, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		if err := s.InsertContractReadResult(exec, &ReadResult{
			ChainID: chainID, Address: addr, BlockNumber: block, CallData: callData, Result: result,
		}); err != nil {
			return nil, err
		}
		return result, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}
