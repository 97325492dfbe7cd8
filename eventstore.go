// Package eventstore is the storage core of a blockchain event indexing
// engine: a durable, chain-agnostic ledger of blocks, transactions, and
// logs, the coverage bookkeeping that lets callers know what has already
// been indexed, and the read paths (replay, factory child-address
// lookup, contract-read caching) built on top of that ledger.
package eventstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/goran-ethernal/eventstore/internal/artifacts"
	internalcommon "github.com/goran-ethernal/eventstore/internal/common"
	"github.com/goran-ethernal/eventstore/internal/db"
	"github.com/goran-ethernal/eventstore/internal/factoryindex"
	"github.com/goran-ethernal/eventstore/internal/intervals"
	"github.com/goran-ethernal/eventstore/internal/logger"
	"github.com/goran-ethernal/eventstore/internal/migrations"
	"github.com/goran-ethernal/eventstore/internal/readcache"
	"github.com/goran-ethernal/eventstore/internal/reorgmgr"
	"github.com/goran-ethernal/eventstore/internal/replay"
	"github.com/goran-ethernal/eventstore/internal/storeerr"
	"github.com/goran-ethernal/eventstore/internal/storemetrics"
	"github.com/goran-ethernal/eventstore/pkg/config"
)

// Store is the event store facade: a single entry point onto the
// artifact store, interval ledger, factory index, replay iterator,
// reorg manager, and contract read cache, all sharing one SQLite
// database and one retry/transaction policy.
type Store struct {
	sqlDB *sql.DB
	cfg   config.EventStoreConfig
	log   *logger.Logger

	artifacts *artifacts.Store
	intervals *intervals.Store
	factories *factoryindex.Store
	replay    *replay.Store
	reorg     *reorgmgr.Manager
	readcache *readcache.Store

	maintenance db.Maintenance
}

// Open brings a database at cfg.DB.Path up to the current schema and
// returns a ready-to-use Store. The caller owns the returned Store's
// lifetime and must call Close when done with it.
func Open(cfg config.EventStoreConfig) (*Store, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("eventstore: invalid configuration: %w", err)
	}

	if err := migrations.RunMigrations(cfg.DB); err != nil {
		return nil, fmt.Errorf("eventstore: running migrations: %w", err)
	}

	sqlDB, err := db.NewSQLiteDBFromConfig(cfg.DB)
	if err != nil {
		return nil, fmt.Errorf("eventstore: opening database: %w", err)
	}

	facadeLog := logger.NewComponentLoggerFromConfig(internalcommon.ComponentFacade, cfg.Logging)

	s := &Store{
		sqlDB:     sqlDB,
		cfg:       cfg,
		log:       facadeLog,
		artifacts: artifacts.New(logger.NewComponentLoggerFromConfig(internalcommon.ComponentArtifactStore, cfg.Logging)),
		intervals: intervals.New(logger.NewComponentLoggerFromConfig(internalcommon.ComponentIntervalLedger, cfg.Logging)),
		factories: factoryindex.New(logger.NewComponentLoggerFromConfig(internalcommon.ComponentFactoryIndex, cfg.Logging)),
		replay:    replay.New(logger.NewComponentLoggerFromConfig(internalcommon.ComponentReplay, cfg.Logging)),
		readcache: readcache.New(logger.NewComponentLoggerFromConfig(internalcommon.ComponentReadCache, cfg.Logging)),
	}
	s.reorg = reorgmgr.New(s.artifacts, s.intervals, s.factories, logger.NewComponentLoggerFromConfig(internalcommon.ComponentReorgManager, cfg.Logging))

	s.maintenance = db.NewMaintenanceCoordinator(cfg.DB.Path, sqlDB, cfg.Maintenance, logger.NewComponentLoggerFromConfig(internalcommon.ComponentMaintenance, cfg.Logging))
	if err := s.maintenance.Start(context.Background()); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("eventstore: starting maintenance: %w", err)
	}

	for component := range internalcommon.AllComponents {
		storemetrics.ComponentHealthSet(component, true)
	}

	facadeLog.Infow("event store opened", "path", cfg.DB.Path)
	return s, nil
}

// Close stops background maintenance and releases the underlying
// database connection.
func (s *Store) Close() error {
	for component := range internalcommon.AllComponents {
		storemetrics.ComponentHealthSet(component, false)
	}
	if err := s.maintenance.Stop(); err != nil {
		s.log.Warnw("maintenance stop failed", "error", err)
	}
	return s.sqlDB.Close()
}

// DB exposes the underlying *sql.DB for test setup and introspection
// callers. Not for use by ordinary callers, who
// should go through the Store's own methods so writes pick up retry and
// component-error accounting.
func (s *Store) DB() *sql.DB {
	return s.sqlDB
}

// withWriteTx runs fn inside a serializable SQLite transaction, retrying
// automatically on a serialization conflict per s.cfg.Retry.
func (s *Store) withWriteTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	if fn == nil {
		return errNilTxFunc
	}

	unlock := s.maintenance.AcquireOperationLock()
	defer unlock()

	return retryWithBackoff(ctx, s.cfg.Retry, op, func() error {
		tx, err := s.sqlDB.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback() //nolint:errcheck

		if err := fn(tx); err != nil {
			storemetrics.ErrorInc(internalcommon.ComponentFacade, classifyErrKind(err))
			return err
		}
		return tx.Commit()
	})
}

// --- C1: chain artifact store ---

// InsertBlock records a block, its transactions, and its logs atomically.
func (s *Store) InsertBlock(ctx context.Context, b *artifacts.Block, txs []*artifacts.Transaction, logs []*artifacts.Log) error {
	return s.withWriteTx(ctx, "InsertBlock", func(tx *sql.Tx) error {
		return s.reorg.InsertRealtimeBlock(tx, b, txs, logs)
	})
}

// GetBlock fetches a block by its natural key.
func (s *Store) GetBlock(chainID uint64, hash common.Hash) (*artifacts.Block, bool, error) {
	return s.artifacts.GetBlock(s.sqlDB, chainID, hash)
}

// GetTransaction fetches a transaction by its natural key.
func (s *Store) GetTransaction(chainID uint64, hash common.Hash) (*artifacts.Transaction, bool, error) {
	return s.artifacts.GetTransaction(s.sqlDB, chainID, hash)
}

// GetLog fetches a log by its natural key.
func (s *Store) GetLog(chainID uint64, blockHash common.Hash, logIndex uint) (*artifacts.Log, bool, error) {
	return s.artifacts.GetLog(s.sqlDB, chainID, blockHash, logIndex)
}

// --- C2: interval ledger ---

// InsertLogFilterInterval records [start, end] as indexed for criteria
// under chainID, merging with any existing coverage.
func (s *Store) InsertLogFilterInterval(ctx context.Context, chainID uint64, criteria intervals.LogFilterCriteria, start, end *big.Int) error {
	return s.withWriteTx(ctx, "InsertLogFilterInterval", func(tx *sql.Tx) error {
		return s.reorg.InsertRealtimeInterval(tx, chainID, criteria, start, end)
	})
}

// GetLogFilterIntervals returns the disjoint merged union of intervals
// from every stored filter whose criteria is a superset of the given
// criteria, per spec.md Invariant 3 / §8 P3: a narrower query transparently
// reuses coverage recorded under a broader filter.
func (s *Store) GetLogFilterIntervals(chainID uint64, criteria intervals.LogFilterCriteria) ([]intervals.Interval, error) {
	return s.intervals.GetIntervalsForCriteria(s.sqlDB, chainID, criteria)
}

// CoveredLogFilterRanges returns the sub-ranges of [from, to] already
// known to be fully indexed for criteria under chainID.
func (s *Store) CoveredLogFilterRanges(chainID uint64, criteria intervals.LogFilterCriteria, from, to *big.Int) ([]intervals.Interval, error) {
	return s.intervals.CoveredRanges(s.sqlDB, chainID, criteria, from, to)
}

// --- C3: factory child-address index ---

// RegisterFactory registers a factory contract's child-address location.
func (s *Store) RegisterFactory(ctx context.Context, f *factoryindex.Factory) error {
	return s.withWriteTx(ctx, "RegisterFactory", func(tx *sql.Tx) error {
		return s.factories.RegisterFactory(tx, f)
	})
}

// InsertFactoryInterval records [start, end] as scanned for factoryID.
func (s *Store) InsertFactoryInterval(ctx context.Context, chainID uint64, factoryID string, start, end *big.Int) error {
	return s.withWriteTx(ctx, "InsertFactoryInterval", func(tx *sql.Tx) error {
		return s.reorg.InsertRealtimeFactoryInterval(tx, chainID, factoryID, start, end)
	})
}

// RecordFactoryChildAddress extracts and stores a factory's child
// address from a matching log per f's configured location.
func (s *Store) RecordFactoryChildAddress(ctx context.Context, f *factoryindex.Factory, l *artifacts.Log) error {
	addr, err := factoryindex.ExtractChildAddress(f.ChildAddressLocation, l.Topics, l.Data)
	if err != nil {
		return err
	}
	return s.withWriteTx(ctx, "RecordFactoryChildAddress", func(tx *sql.Tx) error {
		return s.factories.RecordChildAddress(tx, &factoryindex.ChildAddress{
			ChainID:     f.ChainID,
			FactoryID:   f.FactoryID,
			Address:     addr,
			BlockNumber: l.BlockNumber.Uint64(),
			LogIndex:    l.LogIndex,
		})
	})
}

// GetFactoryChildAddresses opens a paginated iterator over factoryID's
// child contracts discovered at or before upToBlockNumber.
func (s *Store) GetFactoryChildAddresses(chainID uint64, factoryID string, upToBlockNumber *big.Int) *factoryindex.ChildAddressPages {
	return s.factories.GetFactoryChildAddresses(s.sqlDB, chainID, factoryID, upToBlockNumber)
}

// --- C4: event replay iterator ---

// GetLogEvents opens a paginated, globally-ordered iterator merging
// events from every given source, restricted to blocks whose timestamp
// falls in [fromTimestamp, toTimestamp] (either end may be nil).
func (s *Store) GetLogEvents(sources []replay.EventSource, fromTimestamp, toTimestamp *big.Int) *replay.EventPages {
	return s.replay.GetLogEvents(s.sqlDB, sources, replay.TimeRange{FromTimestamp: fromTimestamp, ToTimestamp: toTimestamp})
}

// --- C5: realtime reorg manager ---

// DeleteRealtimeData rolls back every artifact, interval, and factory
// child address at or beyond fromBlock for chainID.
func (s *Store) DeleteRealtimeData(ctx context.Context, chainID uint64, fromBlock uint64) error {
	return s.withWriteTx(ctx, "DeleteRealtimeData", func(tx *sql.Tx) error {
		return s.reorg.DeleteRealtimeData(tx, chainID, fromBlock)
	})
}

// --- C6: contract read cache ---

// GetContractReadResult returns a cached eth_call result, if present.
func (s *Store) GetContractReadResult(chainID uint64, addr common.Address, block *big.Int, callData []byte) ([]byte, bool, error) {
	return s.readcache.GetContractReadResult(s.sqlDB, chainID, addr, block, callData)
}

// GetOrFetchContractReadResult returns the cached result for the given
// key, computing and storing it via fetch on a miss. Concurrent misses
// for the same key collapse into a single fetch call.
func (s *Store) GetOrFetchContractReadResult(ctx context.Context, chainID uint64, addr common.Address, block *big.Int, callData []byte, fetch readcache.Fetcher) ([]byte, error) {
	return s.readcache.GetOrFetch(ctx, s.sqlDB, chainID, addr, block, callData, fetch)
}

// classifyErrKind extracts the storeerr.Kind label from err for the
// per-component error counter, falling back to "unknown" for errors
// that never passed through the storeerr taxonomy.
func classifyErrKind(err error) string {
	var se *storeerr.Error
	if errors.As(err, &se) {
		return se.Kind.String()
	}
	return "unknown"
}
