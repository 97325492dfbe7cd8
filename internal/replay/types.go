// Package replay implements the event replay iterator: a globally
// ordered, paginated merge of log events across one or more chains and
// filters, enriched with their parent block and transaction context.
package replay

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/goran-ethernal/eventstore/internal/artifacts"
	"github.com/goran-ethernal/eventstore/internal/intervals"
)

// SourceKind distinguishes the two event-source arms a query can mix:
// a direct log filter, or a factory whose child-contract membership
// gates the address match instead of a fixed criteria.Address slot.
type SourceKind int

const (
	// SourceLogFilter matches logs directly against Criteria.
	SourceLogFilter SourceKind = iota
	// SourceFactory matches logs whose address is a child discovered by
	// FactoryID at or before the log's own block (C3's discovery set),
	// with Criteria.Topics still applied; Criteria.Address is ignored.
	SourceFactory
)

// EventSource is one (name, chain, filter, range) descriptor to merge
// events from. FromBlock is inclusive and may be nil for unbounded. A log
// matching multiple sources appears once per matching source, tagged with
// that source's Name; when two sources tie on every ordering field the
// source earlier in the input slice sorts first.
type EventSource struct {
	Name    string
	Kind    SourceKind
	ChainID uint64

	// Criteria supplies the topic match for both arms. Its Address slot
	// is used only when Kind == SourceLogFilter; the factory arm's
	// address match instead comes from FactoryID's discovered children.
	Criteria  intervals.LogFilterCriteria
	FromBlock *big.Int

	// FactoryID names the registered factory gating this source's
	// address match. Required when Kind == SourceFactory.
	FactoryID string

	// IncludeEventSelectors, when non-nil, intersects position 0 of
	// Criteria.Topics: nil (the zero value) means no override; a
	// non-nil empty slice means zero events match this source
	// regardless of its other criteria.
	IncludeEventSelectors []string
}

// EnrichedEvent is a log paired with the timestamp and transaction
// context of the block it was emitted in and the name of the event
// source it matched under — the unit GetLogEvents streams.
type EnrichedEvent struct {
	EventSourceName string
	ChainID         uint64
	Log             artifacts.Log
	BlockTime       *big.Int
	TxFrom          common.Address
	TxTo            *common.Address
	BlockNumber     *big.Int
}

// sortKey is the global ordering tuple: (timestamp, chainId, blockNumber,
// logIndex), per spec.md's cross-chain replay ordering rule.
func (e EnrichedEvent) sortKey() (ts *big.Int, chainID uint64, blockNumber *big.Int, logIndex uint) {
	return e.BlockTime, e.ChainID, e.BlockNumber, e.Log.LogIndex
}

// less reports whether a sorts strictly before b under the global order.
func less(a, b EnrichedEvent) bool {
	at, ac, ab, al := a.sortKey()
	bt, bc, bb, bl := b.sortKey()

	if c := at.Cmp(bt); c != 0 {
		return c < 0
	}
	if ac != bc {
		return ac < bc
	}
	if c := ab.Cmp(bb); c != 0 {
		return c < 0
	}
	return al < bl
}
