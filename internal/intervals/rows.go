package intervals

import "math/big"

// filterRow is the meddler-mapped row for log_filters.
type filterRow struct {
	ChainID      uint64 `meddler:"chain_id"`
	LogFilterID  string `meddler:"log_filter_id"`
	CriteriaJSON string `meddler:"criteria_json"`
}

// intervalRow is the meddler-mapped row for log_filter_intervals.
type intervalRow struct {
	ID          int64    `meddler:"id,pk"`
	ChainID     uint64   `meddler:"chain_id"`
	LogFilterID string   `meddler:"log_filter_id"`
	StartBlock  *big.Int `meddler:"start_block,bigint"`
	EndBlock    *big.Int `meddler:"end_block,bigint"`
}

func (r intervalRow) interval() Interval {
	return Interval{Start: r.StartBlock, End: r.EndBlock}
}
