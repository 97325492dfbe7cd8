package intervals

import (
	"encoding/json"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"time"

	edb "github.com/goran-ethernal/eventstore/internal/db"
	"github.com/goran-ethernal/eventstore/internal/logger"
	"github.com/goran-ethernal/eventstore/internal/storeerr"
	"github.com/goran-ethernal/eventstore/internal/storemetrics"
	"github.com/russross/meddler"
)

// Store tracks, per chain and log filter, which block ranges have already
// been indexed under that filter's criteria.
type Store struct {
	log *logger.Logger
}

// New builds an interval Store.
func New(log *logger.Logger) *Store {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Store{log: log.WithComponent("interval-store")}
}

// EnsureFilter registers criteria under chainID if not already known,
// returning its canonical filter id either way.
func (s *Store) EnsureFilter(exec edb.Execer, chainID uint64, criteria LogFilterCriteria) (string, error) {
	id, err := FilterID(chainID, criteria)
	if err != nil {
		return "", storeerr.InvalidCriteria("intervals.EnsureFilter", err)
	}

	payload, err := criteria.CanonicalJSON()
	if err != nil {
		return "", storeerr.InvalidCriteria("intervals.EnsureFilter", err)
	}

	row := &filterRow{ChainID: chainID, LogFilterID: id, CriteriaJSON: payload}
	if err := meddler.Insert(exec, "log_filters", row); err != nil {
		if isUniqueConstraintErr(err) {
			return id, nil
		}
		return "", storeerr.New(storeerr.KindConnectionLost, "intervals.EnsureFilter", err)
	}
	return id, nil
}

func isUniqueConstraintErr(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// loadIntervals returns the stored intervals for filterID under chainID,
// sorted ascending by start.
func (s *Store) loadIntervals(exec edb.Execer, chainID uint64, filterID string) ([]*intervalRow, error) {
	var rows []*intervalRow
	if err := meddler.QueryAll(exec, &rows,
		"SELECT * FROM log_filter_intervals WHERE chain_id = ? AND log_filter_id = ? ORDER BY start_block ASC",
		chainID, filterID,
	); err != nil {
		return nil, storeerr.New(storeerr.KindConnectionLost, "intervals.loadIntervals", err)
	}
	return rows, nil
}

// InsertInterval records [start, end] as indexed for filterID under
// chainID, merging with any overlapping or adjacent interval already on
// file so the stored set stays maximally coalesced (spec Invariant 1/2).
func (s *Store) InsertInterval(exec edb.Execer, chainID uint64, filterID string, start, end *big.Int) error {
	if start.Cmp(end) > 0 {
		return storeerr.InvalidCriteria("intervals.InsertInterval", fmt.Errorf("start %s > end %s", start, end))
	}
	startedAt := time.Now()

	existing, err := s.loadIntervals(exec, chainID, filterID)
	if err != nil {
		return err
	}

	merged := Interval{Start: start, End: end}
	var toDelete []int64
	var survivors []Interval
	for _, row := range existing {
		iv := row.interval()
		if merged.Overlaps(iv) {
			merged = merged.Union(iv)
			toDelete = append(toDelete, row.ID)
		} else {
			survivors = append(survivors, iv)
		}
	}

	// A newly-merged span might now bridge two previously non-adjacent
	// survivors; re-fold until stable.
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
		if _, err := exec.Exec("DELETE FROM log_filter_intervals WHERE id = ?", id); err != nil {
			return storeerr.New(storeerr.KindConnectionLost, "intervals.InsertInterval(delete)", err)
		}
	}

	row := &intervalRow{ChainID: chainID, LogFilterID: filterID, StartBlock: merged.Start, EndBlock: merged.End}
	if err := meddler.Insert(exec, "log_filter_intervals", row); err != nil {
		return storeerr.New(storeerr.KindConnectionLost, "intervals.InsertInterval(insert)", err)
	}

	storemetrics.IntervalMergeObserve("interval-ledger", time.Since(startedAt))
	return nil
}

// GetIntervalsForCriteria returns the disjoint merged union of intervals
// from every stored filter B such that criteria is a subset of B (spec
// Invariant 3 / §8 P3): a narrower query reuses coverage recorded under a
// broader filter it was always implicitly covered by.
func (s *Store) GetIntervalsForCriteria(exec edb.Execer, chainID uint64, criteria LogFilterCriteria) ([]Interval, error) {
	supersets, err := s.supersetIntervals(exec, chainID, criteria)
	if err != nil {
		return nil, err
	}
	return coalesce(supersets), nil
}

// supersetIntervals returns, unmerged, every interval recorded under a
// stored filter whose criteria is a superset of criteria.
func (s *Store) supersetIntervals(exec edb.Execer, chainID uint64, criteria LogFilterCriteria) ([]Interval, error) {
	var filterRows []*filterRow
	if err := meddler.QueryAll(exec, &filterRows, "SELECT * FROM log_filters WHERE chain_id = ?", chainID); err != nil {
		return nil, storeerr.New(storeerr.KindConnectionLost, "intervals.supersetIntervals", err)
	}

	var out []Interval
	for _, fr := range filterRows {
		candidate, err := decodeCriteria(fr.CriteriaJSON)
		if err != nil {
			s.log.Warnw("skipping filter with undecodable criteria", "log_filter_id", fr.LogFilterID, "error", err)
			continue
		}
		if !criteria.Subset(candidate) {
			continue
		}

		ivs, err := s.loadIntervals(exec, chainID, fr.LogFilterID)
		if err != nil {
			return nil, err
		}
		for _, ivRow := range ivs {
			out = append(out, ivRow.interval())
		}
	}
	return out, nil
}

// GetIntervals returns all stored intervals for filterID under chainID.
func (s *Store) GetIntervals(exec edb.Execer, chainID uint64, filterID string) ([]Interval, error) {
	rows, err := s.loadIntervals(exec, chainID, filterID)
	if err != nil {
		return nil, err
	}
	out := make([]Interval, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.interval())
	}
	return out, nil
}

// TruncateFrom drops the portion of every stored interval at or beyond
// fromBlock, across all filters under chainID: intervals entirely at or
// beyond fromBlock are deleted, intervals straddling fromBlock are
// shortened to end at fromBlock-1. Used by the reorg manager to roll
// back interval coverage alongside the artifacts it invalidates.
func (s *Store) TruncateFrom(exec edb.Execer, chainID uint64, fromBlock *big.Int) error {
	var rows []*intervalRow
	if err := meddler.QueryAll(exec, &rows,
		"SELECT * FROM log_filter_intervals WHERE chain_id = ? AND end_block >= ?",
		chainID, edb.EncodeBigInt(fromBlock),
	); err != nil {
		return storeerr.New(storeerr.KindConnectionLost, "intervals.TruncateFrom", err)
	}

	for _, row := range rows {
		if row.StartBlock.Cmp(fromBlock) >= 0 {
			if _, err := exec.Exec("DELETE FROM log_filter_intervals WHERE id = ?", row.ID); err != nil {
				return storeerr.New(storeerr.KindConnectionLost, "intervals.TruncateFrom(delete)", err)
			}
			continue
		}
		newEnd := new(big.Int).Sub(fromBlock, big.NewInt(1))
		if _, err := exec.Exec(
			"UPDATE log_filter_intervals SET end_block = ? WHERE id = ?",
			edb.EncodeBigInt(newEnd), row.ID,
		); err != nil {
			return storeerr.New(storeerr.KindConnectionLost, "intervals.TruncateFrom(update)", err)
		}
	}
	return nil
}

// CoveredRanges returns the maximal sub-ranges of [reqStart, reqEnd] known
// to already be fully indexed for criteria under chainID: the union, over
// every on-file filter whose criteria is a superset of the requested
// criteria (so its indexed data is guaranteed to contain every log the
// requested criteria would match), of that filter's intervals intersected
// with the request range.
func (s *Store) CoveredRanges(exec edb.Execer, chainID uint64, criteria LogFilterCriteria, reqStart, reqEnd *big.Int) ([]Interval, error) {
	supersets, err := s.supersetIntervals(exec, chainID, criteria)
	if err != nil {
		return nil, err
	}

	request := Interval{Start: reqStart, End: reqEnd}
	var covered []Interval
	for _, iv := range supersets {
		if piece, ok := request.Intersect(iv); ok {
			covered = append(covered, piece)
		}
	}
	return coalesce(covered), nil
}

func coalesce(ivs []Interval) []Interval {
	if len(ivs) == 0 {
		return nil
	}
	sort.Slice(ivs, func(i, j int) bool { return ivs[i].Start.Cmp(ivs[j].Start) < 0 })

	out := []Interval{ivs[0]}
	for _, iv := range ivs[1:] {
		last := &out[len(out)-1]
		if iv.Overlaps(*last) {
			*last = last.Union(iv)
			continue
		}
		out = append(out, iv)
	}
	return out
}

// decodeCriteria parses the canonical JSON form written by
// LogFilterCriteria.CanonicalJSON back into a LogFilterCriteria.
func decodeCriteria(payload string) (LogFilterCriteria, error) {
	var form struct {
		Address []string    `json:"address"`
		Topics  [4][]string `json:"topics"`
	}
	if err := json.Unmarshal([]byte(payload), &form); err != nil {
		return LogFilterCriteria{}, err
	}
	topics := make([][]string, 4)
	for i := range form.Topics {
		topics[i] = form.Topics[i]
	}
	return NewCriteria(form.Address, topics)
}
