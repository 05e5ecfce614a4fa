package db

import (
	"errors"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/iterator"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// ErrNotFound is returned when a key is absent.
var ErrNotFound = leveldb.ErrNotFound

// ErrKeyExists is returned by PutIfAbsent when the key is already present.
var ErrKeyExists = errors.New("key already exists")

// LevelDB wraps the actual LevelDB connection
type LevelDB struct {
	conn *leveldb.DB
}

// NewLevelDB opens (or creates) a LevelDB instance at the given path
func NewLevelDB(path string) (*LevelDB, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, err
	}
	return &LevelDB{conn: db}, nil
}

// NewMemoryLevelDB opens a LevelDB instance backed by memory, used by tests
func NewMemoryLevelDB() (*LevelDB, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, err
	}
	return &LevelDB{conn: db}, nil
}

// Close safely closes the LevelDB connection
func (l *LevelDB) Close() error {
	return l.conn.Close()
}

// Get retrieves the value for a given key
func (l *LevelDB) Get(key []byte) ([]byte, error) {
	return l.conn.Get(key, nil)
}

// NewPrefixIterator returns an iterator over keys starting with prefix
func (l *LevelDB) NewPrefixIterator(prefix []byte) iterator.Iterator {
	return l.conn.NewIterator(util.BytesPrefix(prefix), nil)
}

// Txn is the view handed to Update callbacks.
type Txn struct {
	tr *leveldb.Transaction
}

func (t *Txn) Get(key []byte) ([]byte, error) { return t.tr.Get(key, nil) }

func (t *Txn) Put(key, value []byte) error { return t.tr.Put(key, value, nil) }

// PutIfAbsent writes value only when key is missing, otherwise ErrKeyExists.
func (t *Txn) PutIfAbsent(key, value []byte) error {
	ok, err := t.tr.Has(key, nil)
	if err != nil {
		return err
	}
	if ok {
		return ErrKeyExists
	}
	return t.tr.Put(key, value, nil)
}

// commit is swapped out by tests to simulate a failing write.
var commit = func(tr *leveldb.Transaction) error { return tr.Commit() }

// Update runs fn inside a LevelDB transaction. Only one transaction is open
// at a time, so reads and writes made through the Txn are atomic. The
// transaction is discarded if fn or the commit fails; an open transaction
// holds the write lock.
func (l *LevelDB) Update(fn func(tx *Txn) error) error {
	tr, err := l.conn.OpenTransaction()
	if err != nil {
		return err
	}
	if err := fn(&Txn{tr: tr}); err != nil {
		tr.Discard()
		return err
	}
	if err := commit(tr); err != nil {
		tr.Discard()
		return err
	}
	return nil
}
