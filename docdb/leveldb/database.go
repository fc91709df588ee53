// Package leveldb implements the contract document store on top of
// goleveldb. Writes made during a block go through a Tx, which sees its own
// writes and is committed or discarded as a whole.
package leveldb

import (
	"errors"
	"sync"

	"github.com/VictoriaMetrics/fastcache"
	lru "github.com/hashicorp/golang-lru"
	log "github.com/inconshreveable/log15"
	"github.com/syndtr/goleveldb/leveldb"
	lerrors "github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/filter"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/tos-network/ssc/docdb"
)

const (
	// minCache is the minimum amount of memory in megabytes to allocate to
	// leveldb read and write caching, split half and half.
	minCache = 16

	// minHandles is the minimum number of files handles to allocate to the
	// open database files.
	minHandles = 16

	// contractCacheSize is the number of decoded contract records kept.
	contractCacheSize = 256

	// blockCacheBytes bounds the block record cache.
	blockCacheBytes = 4 * 1024 * 1024
)

var (
	// ErrTxOpen is returned when a block transaction is begun while another
	// one is still open.
	ErrTxOpen = errors.New("leveldb: transaction already open")

	// ErrTxClosed is returned when a committed or discarded Tx is used.
	ErrTxClosed = errors.New("leveldb: transaction closed")
)

// Database is a persistent document store. Its own docdb.Database methods
// write straight to disk; block processing should use Begin.
type Database struct {
	fn string      // filename for reporting
	db *leveldb.DB // LevelDB instance

	*store

	lock sync.Mutex
	tx   *Tx
}

// New returns a wrapped LevelDB object.
func New(file string, cache int, handles int, readonly bool) (*Database, error) {
	logger := log.New("database", file)

	if cache < minCache {
		cache = minCache
	}
	if handles < minHandles {
		handles = minHandles
	}
	logger.Info("Allocated cache and file handles", "cache", cache, "handles", handles, "readonly", readonly)

	db, err := leveldb.OpenFile(file, &opt.Options{
		OpenFilesCacheCapacity: handles,
		BlockCacheCapacity:     cache / 2 * opt.MiB,
		WriteBuffer:            cache / 4 * opt.MiB,
		Filter:                 filter.NewBloomFilter(10),
		ReadOnly:               readonly,
	})
	if _, corrupted := err.(*lerrors.ErrCorrupted); corrupted {
		logger.Warn("Recovering corrupted database", "err", err)
		db, err = leveldb.RecoverFile(file, nil)
	}
	if err != nil {
		return nil, err
	}
	return wrap(file, db, logger)
}

// NewMemory returns a store backed by memory only.
func NewMemory() (*Database, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, err
	}
	return wrap("", db, log.New("database", "memory"))
}

func wrap(fn string, db *leveldb.DB, logger log.Logger) (*Database, error) {
	contracts, err := lru.NewARC(contractCacheSize)
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Database{
		fn: fn,
		db: db,
		store: &store{
			kv:        db,
			contracts: contracts,
			blocks:    fastcache.New(blockCacheBytes),
			log:       logger,
		},
	}, nil
}

// Close discards an open transaction and closes the database.
func (db *Database) Close() error {
	db.lock.Lock()
	tx := db.tx
	db.lock.Unlock()
	if tx != nil {
		tx.Discard()
	}
	db.blocks.Reset()
	return db.db.Close()
}

// PutBlockInfo records the block with the given number outside any block
// transaction. It fails with ErrTxOpen while one is open; Tx.PutBlockInfo
// records a block atomically with the block's writes.
func (db *Database) PutBlockInfo(number uint64, info docdb.Document) error {
	db.lock.Lock()
	defer db.lock.Unlock()

	if db.tx != nil {
		return ErrTxOpen
	}
	return db.putBlockInfo(number, info)
}

// Begin opens the block transaction. Only one may be open at a time.
func (db *Database) Begin() (*Tx, error) {
	db.lock.Lock()
	defer db.lock.Unlock()

	if db.tx != nil {
		return nil, ErrTxOpen
	}
	ltx, err := db.db.OpenTransaction()
	if err != nil {
		return nil, err
	}
	db.tx = &Tx{
		parent: db,
		ltx:    ltx,
		store: &store{
			kv:        ltx,
			contracts: db.contracts,
			blocks:    db.blocks,
			touched:   make(map[string]struct{}),
			pending:   make(map[string]struct{}),
			log:       db.log,
		},
	}
	return db.tx, nil
}

// Tx is a block transaction. It implements docdb.Database; reads observe
// the transaction's own writes.
type Tx struct {
	*store

	parent *Database
	ltx    *leveldb.Transaction
	closed bool
}

// PutBlockInfo records the block with the given number as part of the
// transaction.
func (tx *Tx) PutBlockInfo(number uint64, info docdb.Document) error {
	if tx.closed {
		return ErrTxClosed
	}
	return tx.putBlockInfo(number, info)
}

// Commit makes the writes of the transaction durable.
func (tx *Tx) Commit() error {
	if tx.closed {
		return ErrTxClosed
	}
	err := tx.ltx.Commit()
	for name := range tx.touched {
		tx.contracts.Remove(name)
	}
	tx.close()
	return err
}

// Discard drops the writes of the transaction. It is a no-op once the
// transaction is closed.
func (tx *Tx) Discard() {
	if tx.closed {
		return
	}
	tx.ltx.Discard()
	tx.close()
}

func (tx *Tx) close() {
	tx.closed = true
	tx.parent.lock.Lock()
	if tx.parent.tx == tx {
		tx.parent.tx = nil
	}
	tx.parent.lock.Unlock()
}
