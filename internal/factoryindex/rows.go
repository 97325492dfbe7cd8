package factoryindex

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

type factoryRow struct {
	ChainID              uint64         `meddler:"chain_id"`
	FactoryID            string         `meddler:"factory_id"`
	Address              common.Address `meddler:"address,address"`
	EventSelector        common.Hash    `meddler:"event_selector,hash"`
	ChildAddressLocation string         `meddler:"child_address_location"`
}

type childAddressRow struct {
	ID          int64          `meddler:"id,pk"`
	ChainID     uint64         `meddler:"chain_id"`
	FactoryID   string         `meddler:"factory_id"`
	Address     common.Address `meddler:"child_address,address"`
	BlockNumber *big.Int       `meddler:"block_number,bigint"`
	LogIndex    uint           `meddler:"log_index"`
}

type factoryIntervalRow struct {
	ID         int64    `meddler:"id,pk"`
	ChainID    uint64   `meddler:"chain_id"`
	FactoryID  string   `meddler:"factory_id"`
	StartBlock *big.Int `meddler:"start_block,bigint"`
	EndBlock   *big.Int `meddler:"end_block,bigint"`
}
