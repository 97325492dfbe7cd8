package replay

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/goran-ethernal/eventstore/internal/artifacts"
	edb "github.com/goran-ethernal/eventstore/internal/db"
	"github.com/goran-ethernal/eventstore/internal/intervals"
	"github.com/goran-ethernal/eventstore/internal/logger"
	"github.com/goran-ethernal/eventstore/internal/storeerr"
	"github.com/goran-ethernal/eventstore/internal/storemetrics"
	"github.com/russross/meddler"
	"golang.org/x/sync/errgroup"
)

// Store queries enriched, globally-ordered event pages across one or more
// chains and filters.
type Store struct {
	log *logger.Logger
}

// New builds a replay Store.
func New(log *logger.Logger) *Store {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Store{log: log.WithComponent("replay")}
}

const fetchBatch = 256

// sourceCursor is the per-source pagination position: the last event
// consumed from that source, as (blockNumber, logIndex).
type sourceCursor struct {
	block    *big.Int
	logIndex uint
	started  bool
	done     bool
}

// TimeRange bounds a replay query to block timestamps in
// [FromTimestamp, ToTimestamp]; either end may be nil for unbounded.
type TimeRange struct {
	FromTimestamp *big.Int
	ToTimestamp   *big.Int
}

// EventPages is a forward-only, globally-ordered iterator produced by
// Store.GetLogEvents.
type EventPages struct {
	store   *Store
	exec    edb.Execer
	sources []EventSource
	window  TimeRange
	buffers [][]EnrichedEvent
	cursors []sourceCursor
}

// GetLogEvents opens a paginated iterator merging every source's logs in
// (timestamp, chainId, blockNumber, logIndex) order, restricted to blocks
// whose timestamp falls in window and, per source, to its own
// [FromBlock, unbounded) range.
func (s *Store) GetLogEvents(exec edb.Execer, sources []EventSource, window TimeRange) *EventPages {
	return &EventPages{
		store:   s,
		exec:    exec,
		sources: sources,
		window:  window,
		buffers: make([][]EnrichedEvent, len(sources)),
		cursors: make([]sourceCursor, len(sources)),
	}
}

// Next returns the next page of up to limit globally-ordered events.
// False is returned once every source is exhausted.
func (p *EventPages) Next(ctx context.Context, limit int) ([]EnrichedEvent, bool, error) {
	startedAt := time.Now()
	defer func() { storemetrics.ReplayPageObserve(time.Since(startedAt)) }()

	if err := p.refill(ctx); err != nil {
		return nil, false, err
	}

	var out []EnrichedEvent
	for len(out) < limit {
		idx := p.minBufferIndex()
		if idx < 0 {
			break
		}
		ev := p.buffers[idx][0]
		p.buffers[idx] = p.buffers[idx][1:]
		p.cursors[idx] = sourceCursor{block: ev.BlockNumber, logIndex: ev.Log.LogIndex, started: true, done: p.cursors[idx].done}
		out = append(out, ev)

		if len(p.buffers[idx]) == 0 {
			if err := p.refillOne(ctx, idx); err != nil {
				return nil, false, err
			}
		}
	}

	more := false
	for i := range p.sources {
		if len(p.buffers[i]) > 0 || !p.cursors[i].done {
			more = true
			break
		}
	}
	return out, more, nil
}

// minBufferIndex returns the index of the source whose buffer head sorts
// earliest, ties broken by source order (lower index wins), or -1 if
// every buffer is empty.
func (p *EventPages) minBufferIndex() int {
	best := -1
	for i, buf := range p.buffers {
		if len(buf) == 0 {
			continue
		}
		if best == -1 || less(buf[0], p.buffers[best][0]) {
			best = i
		}
	}
	return best
}

// refill tops up every empty, non-exhausted source buffer concurrently.
func (p *EventPages) refill(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := range p.sources {
		if len(p.buffers[i]) > 0 || p.cursors[i].done {
			continue
		}
		i := i
		g.Go(func() error { return p.fetchInto(ctx, i) })
	}
	return g.Wait()
}

func (p *EventPages) refillOne(ctx context.Context, i int) error {
	if p.cursors[i].done {
		return nil
	}
	return p.fetchInto(ctx, i)
}

// fetchInto queries the next batch of events for source i and appends
// them to its buffer.
func (p *EventPages) fetchInto(ctx context.Context, i int) error {
	src := p.sources[i]
	cur := p.cursors[i]

	query, args, err := buildLogsQuery(src, p.window, cur)
	if err != nil {
		return err
	}
	var logRows []*replayLogRow
	if err := meddler.QueryAll(p.exec, &logRows, query, args...); err != nil {
		return storeerr.New(storeerr.KindConnectionLost, "replay.fetchInto", err)
	}

	events := make([]EnrichedEvent, 0, len(logRows))
	for _, r := range logRows {
		events = append(events, EnrichedEvent{
			EventSourceName: src.Name,
			ChainID:         src.ChainID,
			Log:             r.toLog(src.ChainID),
			BlockTime:       r.Timestamp,
			TxFrom:          r.TxFrom,
			TxTo:            r.TxTo,
			BlockNumber:     r.BlockNumber,
		})
	}

	p.buffers[i] = append(p.buffers[i], events...)
	if len(logRows) < fetchBatch {
		p.cursors[i].done = true
	}
	return nil
}

// buildLogsQuery renders the SQL selecting the next batch of logs for src
// after cursor cur, applying src.Criteria's address/topic constraints via
// case-insensitive matching (stored hex text may be checksummed), src's
// block/timestamp bounds, and, for a factory source, the additional join
// against the factory's discovered child addresses as of each log's own
// block (spec.md §4.3's factory arm).
func buildLogsQuery(src EventSource, window TimeRange, cur sourceCursor) (string, []interface{}, error) {
	if src.Kind == SourceFactory && src.FactoryID == "" {
		return "", nil, storeerr.InvalidCriteria("replay.buildLogsQuery", fmt.Errorf("factory source %q missing FactoryID", src.Name))
	}

	var b strings.Builder
	var args []interface{}

	b.WriteString(`
		SELECT l.block_number AS block_number, l.log_index AS log_index,
		       l.block_hash AS block_hash, l.tx_hash AS tx_hash, l.tx_index AS tx_index,
		       l.address AS address, l.topic0 AS topic0, l.topic1 AS topic1,
		       l.topic2 AS topic2, l.topic3 AS topic3, l.data AS data, l.removed AS removed,
		       b.timestamp AS timestamp, t.from_address AS tx_from, t.to_address AS tx_to
		FROM logs l
		JOIN blocks b ON b.chain_id = l.chain_id AND b.block_hash = l.block_hash
		JOIN transactions t ON t.chain_id = l.chain_id AND t.tx_hash = l.tx_hash`)

	if src.Kind == SourceFactory {
		b.WriteString(`
		JOIN factory_child_addresses fca
		  ON fca.chain_id = l.chain_id AND fca.factory_id = ? AND fca.child_address = l.address
		  AND fca.block_number <= l.block_number`)
		args = append(args, src.FactoryID)
	}

	b.WriteString(`
		WHERE l.chain_id = ?`)
	args = append(args, src.ChainID)

	if src.Kind == SourceLogFilter {
		appendSlotFilter(&b, &args, "l.address", src.Criteria.Address)
	}

	topics := src.Criteria.Topics
	if src.IncludeEventSelectors != nil {
		if len(src.IncludeEventSelectors) == 0 {
			// A present-but-empty override matches nothing.
			b.WriteString(" AND 1 = 0")
		} else if intersected, empty := topics[0].Intersect(intervals.Set(src.IncludeEventSelectors...)); empty {
			// The override and the source's own topic0 criterion share no
			// values, so the combined filter matches nothing.
			b.WriteString(" AND 1 = 0")
		} else {
			topics[0] = intersected
		}
	}
	for i, slot := range topics {
		appendSlotFilter(&b, &args, fmt.Sprintf("l.topic%d", i), slot)
	}

	if src.FromBlock != nil {
		b.WriteString(" AND l.block_number >= ?")
		args = append(args, edb.EncodeBigInt(src.FromBlock))
	}
	if window.FromTimestamp != nil {
		b.WriteString(" AND b.timestamp >= ?")
		args = append(args, edb.EncodeBigInt(window.FromTimestamp))
	}
	if window.ToTimestamp != nil {
		b.WriteString(" AND b.timestamp <= ?")
		args = append(args, edb.EncodeBigInt(window.ToTimestamp))
	}

	if cur.started {
		b.WriteString(" AND (l.block_number > ? OR (l.block_number = ? AND l.log_index > ?))")
		args = append(args, edb.EncodeBigInt(cur.block), edb.EncodeBigInt(cur.block), cur.logIndex)
	}

	b.WriteString(" ORDER BY l.block_number ASC, l.log_index ASC LIMIT ?")
	args = append(args, fetchBatch)

	return b.String(), args, nil
}

func appendSlotFilter(b *strings.Builder, args *[]interface{}, column string, slot intervals.Slot) {
	if slot.Wildcard || len(slot.Values) == 0 {
		return
	}
	placeholders := make([]string, len(slot.Values))
	for i, v := range slot.Values {
		placeholders[i] = "LOWER(?)"
		*args = append(*args, v)
	}
	fmt.Fprintf(b, " AND LOWER(%s) IN (%s)", column, strings.Join(placeholders, ","))
}

// replayLogRow is the hand-joined row shape for a single log plus its
// parent block timestamp and transaction sender/recipient.
type replayLogRow struct {
	BlockNumber *big.Int        `meddler:"block_number,bigint"`
	LogIndex    uint            `meddler:"log_index"`
	BlockHash   common.Hash     `meddler:"block_hash,hash"`
	TxHash      common.Hash     `meddler:"tx_hash,hash"`
	TxIndex     uint            `meddler:"tx_index"`
	Address     common.Address  `meddler:"address,address"`
	Topic0      *common.Hash    `meddler:"topic0,hash"`
	Topic1      *common.Hash    `meddler:"topic1,hash"`
	Topic2      *common.Hash    `meddler:"topic2,hash"`
	Topic3      *common.Hash    `meddler:"topic3,hash"`
	Data        []byte          `meddler:"data,hexbytes"`
	Removed     bool            `meddler:"removed"`
	Timestamp   *big.Int        `meddler:"timestamp,bigint"`
	TxFrom      common.Address  `meddler:"tx_from,address"`
	TxTo        *common.Address `meddler:"tx_to,address"`
}

func (r replayLogRow) toLog(chainID uint64) artifacts.Log {
	l := artifacts.Log{
		ChainID:     chainID,
		BlockHash:   r.BlockHash,
		LogIndex:    r.LogIndex,
		TxHash:      r.TxHash,
		TxIndex:     r.TxIndex,
		BlockNumber: r.BlockNumber,
		Address:     r.Address,
		Data:        r.Data,
		Removed:     r.Removed,
	}
	for _, t := range []*common.Hash{r.Topic0, r.Topic1, r.Topic2, r.Topic3} {
		if t != nil {
			l.Topics = append(l.Topics, *t)
		}
	}
	return l
}
