package artifacts

import (
	"database/sql"
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	edb "github.com/goran-ethernal/eventstore/internal/db"
	"github.com/goran-ethernal/eventstore/internal/logger"
	"github.com/goran-ethernal/eventstore/internal/storeerr"
	"github.com/russross/meddler"
)

// Store performs dedup-insert and lookup of blocks, transactions, and logs
// against whatever Execer the caller supplies (a bare *sql.DB for reads, or
// a *sql.Tx for the facade's write transactions).
type Store struct {
	log *logger.Logger
}

// New builds an artifact Store. log may be nil, in which case a no-op
// logger is used.
func New(log *logger.Logger) *Store {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Store{log: log.WithComponent("artifact-store")}
}

func isUniqueConstraintErr(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// InsertBlock upserts a block, ignoring a duplicate natural key per P7
// (idempotent artifact insert).
func (s *Store) InsertBlock(exec edb.Execer, b *Block) error {
	if err := meddler.Insert(exec, "blocks", blockToRow(b)); err != nil {
		if isUniqueConstraintErr(err) {
			return nil
		}
		return storeerr.New(storeerr.KindConnectionLost, "artifacts.InsertBlock", err)
	}
	return nil
}

// InsertTransaction upserts a transaction. Returns a ReferentialViolation
// if the database rejects the insert because the referenced block is
// missing (enforced by the transactions table's foreign key).
func (s *Store) InsertTransaction(exec edb.Execer, t *Transaction) error {
	row, err := txToRow(t)
	if err != nil {
		return storeerr.InvalidCriteria("artifacts.InsertTransaction", err)
	}
	if err := meddler.Insert(exec, "transactions", row); err != nil {
		if isUniqueConstraintErr(err) {
			return nil
		}
		if strings.Contains(err.Error(), "FOREIGN KEY constraint failed") {
			return storeerr.ReferentialViolation("artifacts.InsertTransaction", err)
		}
		return storeerr.New(storeerr.KindConnectionLost, "artifacts.InsertTransaction", err)
	}
	return nil
}

// InsertLog upserts a log. Returns a ReferentialViolation if its block or
// transaction is missing from the same database state (Invariant 4).
func (s *Store) InsertLog(exec edb.Execer, l *Log) error {
	if err := meddler.Insert(exec, "logs", logToRow(l)); err != nil {
		if isUniqueConstraintErr(err) {
			return nil
		}
		if strings.Contains(err.Error(), "FOREIGN KEY constraint failed") {
			return storeerr.ReferentialViolation("artifacts.InsertLog", err)
		}
		return storeerr.New(storeerr.KindConnectionLost, "artifacts.InsertLog", err)
	}
	return nil
}

// GetBlock fetches a block by its natural key. Returns (nil, false, nil) if
// no such block exists.
func (s *Store) GetBlock(exec edb.Execer, chainID uint64, hash common.Hash) (*Block, bool, error) {
	row := new(blockRow)
	err := meddler.QueryRow(exec, row, "SELECT * FROM blocks WHERE chain_id = ? AND block_hash = ?", chainID, hash.Hex())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, storeerr.New(storeerr.KindConnectionLost, "artifacts.GetBlock", err)
	}
	return rowToBlock(row), true, nil
}

// GetTransaction fetches a transaction by its natural key.
func (s *Store) GetTransaction(exec edb.Execer, chainID uint64, hash common.Hash) (*Transaction, bool, error) {
	row := new(txRow)
	err := meddler.QueryRow(exec, row, "SELECT * FROM transactions WHERE chain_id = ? AND tx_hash = ?", chainID, hash.Hex())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, storeerr.New(storeerr.KindConnectionLost, "artifacts.GetTransaction", err)
	}
	tx, err := rowToTx(row)
	if err != nil {
		return nil, false, storeerr.New(storeerr.KindConnectionLost, "artifacts.GetTransaction", err)
	}
	return tx, true, nil
}

// GetLog fetches a log by its natural key.
func (s *Store) GetLog(exec edb.Execer, chainID uint64, blockHash common.Hash, logIndex uint) (*Log, bool, error) {
	row := new(logRow)
	err := meddler.QueryRow(exec, row,
		"SELECT * FROM logs WHERE chain_id = ? AND block_hash = ? AND log_index = ?",
		chainID, blockHash.Hex(), logIndex)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, storeerr.New(storeerr.KindConnectionLost, "artifacts.GetLog", err)
	}
	return rowToLog(row), true, nil
}

// DeleteFromBlock removes all logs, transactions, and blocks with
// BlockNumber >= fromBlock for the given chain. Used by the reorg manager
// (C5); kept here because it is a straightforward artifact-table
// operation, not reorg-specific merge logic.
func (s *Store) DeleteFromBlock(exec edb.Execer, chainID uint64, fromBlock uint64) error {
	fromHex := edb.EncodeUint64(fromBlock)

	if _, err := exec.Exec(
		"DELETE FROM logs WHERE chain_id = ? AND block_number >= ?", chainID, fromHex,
	); err != nil {
		return storeerr.New(storeerr.KindConnectionLost, "artifacts.DeleteFromBlock(logs)", err)
	}

	if _, err := exec.Exec(
		`DELETE FROM transactions WHERE chain_id = ? AND block_hash IN (
			SELECT block_hash FROM blocks WHERE chain_id = ? AND block_number >= ?
		)`, chainID, chainID, fromHex,
	); err != nil {
		return storeerr.New(storeerr.KindConnectionLost, "artifacts.DeleteFromBlock(transactions)", err)
	}

	if _, err := exec.Exec(
		"DELETE FROM blocks WHERE chain_id = ? AND block_number >= ?", chainID, fromHex,
	); err != nil {
		return storeerr.New(storeerr.KindConnectionLost, "artifacts.DeleteFromBlock(blocks)", err)
	}

	return nil
}
