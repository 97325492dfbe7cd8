// Package reorgmgr implements the realtime reorg manager: recording
// freshly-fetched blocks and their covered intervals, and rolling both
// back atomically when a fork invalidates a range of blocks. Grounded in
// the teacher's reorg detector transaction pattern.
package reorgmgr

import (
	"fmt"
	"math/big"

	"github.com/goran-ethernal/eventstore/internal/artifacts"
	edb "github.com/goran-ethernal/eventstore/internal/db"
	"github.com/goran-ethernal/eventstore/internal/factoryindex"
	"github.com/goran-ethernal/eventstore/internal/intervals"
	"github.com/goran-ethernal/eventstore/internal/logger"
	"github.com/goran-ethernal/eventstore/internal/storeerr"
)

// Manager coordinates the artifact store and interval ledgers (direct
// and factory-scoped) so that realtime ingestion and reorg rollback
// happen against a single consistent view.
type Manager struct {
	artifacts *artifacts.Store
	intervals *intervals.Store
	factories *factoryindex.Store
	log       *logger.Logger
}

// New builds a reorg Manager over the given component stores.
func New(artifactStore *artifacts.Store, intervalStore *intervals.Store, factoryStore *factoryindex.Store, log *logger.Logger) *Manager {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Manager{
		artifacts: artifactStore,
		intervals: intervalStore,
		factories: factoryStore,
		log:       log.WithComponent("reorg-manager"),
	}
}

// InsertRealtimeBlock records a freshly-fetched block, transactions, and
// logs. Callers are expected to run this inside the facade's write
// transaction alongside InsertRealtimeInterval for the same page.
func (m *Manager) InsertRealtimeBlock(exec edb.Execer, b *artifacts.Block, txs []*artifacts.Transaction, logs []*artifacts.Log) error {
	if err := m.artifacts.InsertBlock(exec, b); err != nil {
		return err
	}
	for _, tx := range txs {
		if err := m.artifacts.InsertTransaction(exec, tx); err != nil {
			return err
		}
	}
	for _, l := range logs {
		if err := m.artifacts.InsertLog(exec, l); err != nil {
			return err
		}
	}
	return nil
}

// InsertRealtimeInterval records [start, end] as indexed for a direct log
// filter under chainID, merging with existing coverage.
func (m *Manager) InsertRealtimeInterval(exec edb.Execer, chainID uint64, criteria intervals.LogFilterCriteria, start, end *big.Int) error {
	filterID, err := m.intervals.EnsureFilter(exec, chainID, criteria)
	if err != nil {
		return err
	}
	return m.intervals.InsertInterval(exec, chainID, filterID, start, end)
}

// InsertRealtimeFactoryInterval records [start, end] as scanned for a
// registered factory under chainID. Per spec.md §4.4, this additionally
// inserts a log-filter interval under the synthetic filter
// {address: factory.address, topics: [factory.eventSelector]}, so the
// raw parent-emission coverage stays queryable through the ordinary
// log-filter path, not just the factory-specific table.
func (m *Manager) InsertRealtimeFactoryInterval(exec edb.Execer, chainID uint64, factoryID string, start, end *big.Int) error {
	f, found, err := m.factories.GetFactory(exec, chainID, factoryID)
	if err != nil {
		return err
	}
	if !found {
		return storeerr.InvalidCriteria("reorgmgr.InsertRealtimeFactoryInterval",
			fmt.Errorf("factory %q not registered under chain %d", factoryID, chainID))
	}

	synthetic, err := intervals.NewCriteria([]string{f.Address.Hex()}, [][]string{{f.EventSelector.Hex()}})
	if err != nil {
		return err
	}
	if err := m.InsertRealtimeInterval(exec, chainID, synthetic, start, end); err != nil {
		return err
	}

	return m.factories.InsertInterval(exec, chainID, factoryID, start, end)
}

// DeleteRealtimeData rolls back every artifact, interval, and discovered
// factory child address at or beyond fromBlock for chainID, the atomic
// unit of reorg recovery. Callers run this inside the facade's
// serializable write transaction.
func (m *Manager) DeleteRealtimeData(exec edb.Execer, chainID uint64, fromBlock uint64) error {
	from := new(big.Int).SetUint64(fromBlock)

	if err := m.artifacts.DeleteFromBlock(exec, chainID, fromBlock); err != nil {
		return err
	}
	if err := m.intervals.TruncateFrom(exec, chainID, from); err != nil {
		return err
	}
	if err := m.factories.TruncateFrom(exec, chainID, from); err != nil {
		return err
	}

	m.log.Infow("realtime data rolled back", "chain_id", chainID, "from_block", fromBlock)
	return nil
}
