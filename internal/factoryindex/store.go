package factoryindex

import (
	"context"
	"database/sql"
	"errors"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	edb "github.com/goran-ethernal/eventstore/internal/db"
	"github.com/goran-ethernal/eventstore/internal/intervals"
	"github.com/goran-ethernal/eventstore/internal/logger"
	"github.com/goran-ethernal/eventstore/internal/storeerr"
	"github.com/goran-ethernal/eventstore/internal/storemetrics"
	"github.com/russross/meddler"
)

// Store tracks registered factories, the child contracts they have
// deployed, and which block ranges have been scanned for each factory.
type Store struct {
	log *logger.Logger
}

// New builds a factory-index Store.
func New(log *logger.Logger) *Store {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Store{log: log.WithComponent("factory-index")}
}

func isUniqueConstraintErr(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// RegisterFactory records a factory's identity, event selector, and
// child-address location, no-op if already registered under this id.
func (s *Store) RegisterFactory(exec edb.Execer, f *Factory) error {
	row := &factoryRow{
		ChainID:              f.ChainID,
		FactoryID:            f.FactoryID,
		Address:              f.Address,
		EventSelector:        f.EventSelector,
		ChildAddressLocation: f.ChildAddressLocation.String(),
	}
	if err := meddler.Insert(exec, "factories", row); err != nil {
		if isUniqueConstraintErr(err) {
			return nil
		}
		return storeerr.New(storeerr.KindConnectionLost, "factoryindex.RegisterFactory", err)
	}
	return nil
}

// GetFactory looks up a registered factory by its id.
func (s *Store) GetFactory(exec edb.Execer, chainID uint64, factoryID string) (*Factory, bool, error) {
	row := new(factoryRow)
	err := meddler.QueryRow(exec, row, "SELECT * FROM factories WHERE chain_id = ? AND factory_id = ?", chainID, factoryID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, storeerr.New(storeerr.KindConnectionLost, "factoryindex.GetFactory", err)
	}

	loc, err := ParseChildAddressLocation(row.ChildAddressLocation)
	if err != nil {
		return nil, false, storeerr.InvalidCriteria("factoryindex.GetFactory", err)
	}

	return &Factory{
		ChainID:              row.ChainID,
		FactoryID:            row.FactoryID,
		Address:              row.Address,
		EventSelector:        row.EventSelector,
		ChildAddressLocation: loc,
	}, true, nil
}

// RecordChildAddress stores a discovered child address, idempotent on
// (chainID, factoryID, address).
func (s *Store) RecordChildAddress(exec edb.Execer, c *ChildAddress) error {
	row := &childAddressRow{
		ChainID:     c.ChainID,
		FactoryID:   c.FactoryID,
		Address:     c.Address,
		BlockNumber: new(big.Int).SetUint64(c.BlockNumber),
		LogIndex:    c.LogIndex,
	}
	if err := meddler.Insert(exec, "factory_child_addresses", row); err != nil {
		if isUniqueConstraintErr(err) {
			return nil
		}
		if strings.Contains(err.Error(), "FOREIGN KEY constraint failed") {
			return storeerr.ReferentialViolation("factoryindex.RecordChildAddress", err)
		}
		return storeerr.New(storeerr.KindConnectionLost, "factoryindex.RecordChildAddress", err)
	}
	return nil
}

// InsertInterval records [start, end] as scanned for factoryID under
// chainID, merging with any overlapping/adjacent interval on file.
func (s *Store) InsertInterval(exec edb.Execer, chainID uint64, factoryID string, start, end *big.Int) error {
	startedAt := time.Now()

	var existing []*factoryIntervalRow
	if err := meddler.QueryAll(exec, &existing,
		"SELECT * FROM factory_log_filter_intervals WHERE chain_id = ? AND factory_id = ? ORDER BY start_block ASC",
		chainID, factoryID,
	); err != nil {
		return storeerr.New(storeerr.KindConnectionLost, "factoryindex.InsertInterval", err)
	}

	merged := intervals.Interval{Start: start, End: end}
	var toDelete []int64
	var survivors []intervals.Interval
	for _, row := range existing {
		iv := intervals.Interval{Start: row.StartBlock, End: row.EndBlock}
		if merged.Overlaps(iv) {
			merged = merged.Union(iv)
			toDelete = append(toDelete, row.ID)
		} else {
			survivors = append(survivors, iv)
		}
	}
	changed := true
	for changed {
		changed = false
		for i := 0; i < len(survivors); i++ {
			if merged.Overlaps(survivors[i]) {
				merged = merged.Union(survivors[i])
				survivors = append(survivors[:i], survivors[i+1:]...)
				changed = true
				break
			}
		}
	}

	for _, id := range toDelete {
		if _, err := exec.Exec("DELETE FROM factory_log_filter_intervals WHERE id = ?", id); err != nil {
			return storeerr.New(storeerr.KindConnectionLost, "factoryindex.InsertInterval(delete)", err)
		}
	}

	row := &factoryIntervalRow{ChainID: chainID, FactoryID: factoryID, StartBlock: merged.Start, EndBlock: merged.End}
	if err := meddler.Insert(exec, "factory_log_filter_intervals", row); err != nil {
		return storeerr.New(storeerr.KindConnectionLost, "factoryindex.InsertInterval(insert)", err)
	}

	storemetrics.IntervalMergeObserve("factory-index", time.Since(startedAt))
	return nil
}

// GetIntervals returns the scanned intervals on file for factoryID.
func (s *Store) GetIntervals(exec edb.Execer, chainID uint64, factoryID string) ([]intervals.Interval, error) {
	var rows []*factoryIntervalRow
	if err := meddler.QueryAll(exec, &rows,
		"SELECT * FROM factory_log_filter_intervals WHERE chain_id = ? AND factory_id = ? ORDER BY start_block ASC",
		chainID, factoryID,
	); err != nil {
		return nil, storeerr.New(storeerr.KindConnectionLost, "factoryindex.GetIntervals", err)
	}
	out := make([]intervals.Interval, 0, len(rows))
	for _, r := range rows {
		out = append(out, intervals.Interval{Start: r.StartBlock, End: r.EndBlock})
	}
	return out, nil
}

// TruncateFrom drops the portion of every stored factory interval at or
// beyond fromBlock, under chainID, mirroring intervals.Store.TruncateFrom.
// It also removes discovered child addresses at or beyond fromBlock,
// since their provenance log no longer exists after the rollback.
func (s *Store) TruncateFrom(exec edb.Execer, chainID uint64, fromBlock *big.Int) error {
	var rows []*factoryIntervalRow
	if err := meddler.QueryAll(exec, &rows,
		"SELECT * FROM factory_log_filter_intervals WHERE chain_id = ? AND end_block >= ?",
		chainID, edb.EncodeBigInt(fromBlock),
	); err != nil {
		return storeerr.New(storeerr.KindConnectionLost, "factoryindex.TruncateFrom", err)
	}

	for _, row := range rows {
		if row.StartBlock.Cmp(fromBlock) >= 0 {
			if _, err := exec.Exec("DELETE FROM factory_log_filter_intervals WHERE id = ?", row.ID); err != nil {
				return storeerr.New(storeerr.KindConnectionLost, "factoryindex.TruncateFrom(delete)", err)
			}
			continue
		}
		newEnd := new(big.Int).Sub(fromBlock, big.NewInt(1))
		if _, err := exec.Exec(
			"UPDATE factory_log_filter_intervals SET end_block = ? WHERE id = ?",
			edb.EncodeBigInt(newEnd), row.ID,
		); err != nil {
			return storeerr.New(storeerr.KindConnectionLost, "factoryindex.TruncateFrom(update)", err)
		}
	}

	if _, err := exec.Exec(
		"DELETE FROM factory_child_addresses WHERE chain_id = ? AND block_number >= ?",
		chainID, edb.EncodeBigInt(fromBlock),
	); err != nil {
		return storeerr.New(storeerr.KindConnectionLost, "factoryindex.TruncateFrom(children)", err)
	}
	return nil
}

// pageSize bounds a single ChildAddressPages.Next call.
const pageSize = 500

// ChildAddressPages is a forward-only, block-order iterator over a
// factory's discovered child addresses.
type ChildAddressPages struct {
	exec            edb.Execer
	chainID         uint64
	factoryID       string
	upToBlockNumber *big.Int
	lastBlock       *big.Int
	lastLog         uint
	done            bool
}

// GetFactoryChildAddresses opens a paginated iterator over factoryID's
// child addresses discovered at or before upToBlockNumber, ordered by
// (block_number, log_index), per spec.md §4.2's upToBlockNumber predicate.
func (s *Store) GetFactoryChildAddresses(exec edb.Execer, chainID uint64, factoryID string, upToBlockNumber *big.Int) *ChildAddressPages {
	return &ChildAddressPages{
		exec:            exec,
		chainID:         chainID,
		factoryID:       factoryID,
		upToBlockNumber: upToBlockNumber,
	}
}

// Next fetches the next page of addresses, in ascending discovery order.
// The returned bool is true with every non-empty page, including a final
// short one, and false (with a nil page) once the iterator is exhausted.
func (p *ChildAddressPages) Next(ctx context.Context) ([]common.Address, bool, error) {
	if p.done {
		return nil, false, nil
	}

	startedAt := time.Now()
	defer func() { storemetrics.FactoryPageObserve(time.Since(startedAt)) }()

	var rows []*childAddressRow
	var err error
	if p.lastBlock == nil {
		err = meddler.QueryAll(p.exec, &rows,
			`SELECT * FROM factory_child_addresses
			 WHERE chain_id = ? AND factory_id = ? AND block_number <= ?
			 ORDER BY block_number ASC, log_index ASC
			 LIMIT ?`,
			p.chainID, p.factoryID, edb.EncodeBigInt(p.upToBlockNumber), pageSize,
		)
	} else {
		err = meddler.QueryAll(p.exec, &rows,
			`SELECT * FROM factory_child_addresses
			 WHERE chain_id = ? AND factory_id = ? AND block_number <= ?
			   AND (block_number > ? OR (block_number = ? AND log_index > ?))
			 ORDER BY block_number ASC, log_index ASC
			 LIMIT ?`,
			p.chainID, p.factoryID, edb.EncodeBigInt(p.upToBlockNumber),
			edb.EncodeBigInt(p.lastBlock), edb.EncodeBigInt(p.lastBlock), p.lastLog,
			pageSize,
		)
	}
	if err != nil {
		return nil, false, storeerr.New(storeerr.KindConnectionLost, "factoryindex.ChildAddressPages.Next", err)
	}

	if len(rows) == 0 {
		p.done = true
		return nil, false, nil
	}

	out := make([]common.Address, len(rows))
	for i, r := range rows {
		out[i] = r.Address
	}
	last := rows[len(rows)-1]
	p.lastBlock = last.BlockNumber
	p.lastLog = last.LogIndex

	if len(rows) < pageSize {
		p.done = true
	}
	return out, true, nil
}

// Close releases the iterator. It holds no resources beyond the cursor
// state, so this is a no-op kept for interface symmetry with the replay
// iterator.
func (p *ChildAddressPages) Close() error {
	p.done = true
	return nil
}
