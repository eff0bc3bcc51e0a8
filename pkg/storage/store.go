// Package storage persists the block DAG that blockcache.Cache keeps in
// memory. It is the cache's first source across restarts: on startup the
// node loads the most recent on-chain blocks from here and feeds them to
// blockcache.Cache.InitializeFromList (falling back to a replay of the
// chain's own block store when this one yields nothing), then every
// subsequent on-chain block is written back as it is confirmed.
package storage

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/pkg/errors"

	"github.com/chronodrachma/chrd/pkg/blockcache"
)

// ErrBlockNotFound is returned when a lookup misses the store entirely,
// distinct from blockcache.ErrNotFound which is scoped to the in-memory
// cache.
var ErrBlockNotFound = errors.New("storage: block not found")

// Store persists on-chain blocks and the canonical height index.
type Store interface {
	SaveBlock(b blockcache.Block) error
	GetBlockByHash(h blockcache.IndepHash) (blockcache.Block, error)
	GetBlockByHeight(height uint64) (blockcache.Block, error)

	SetCanonical(height uint64, h blockcache.IndepHash) error
	SaveHead(h blockcache.IndepHash) error
	GetHead() (blockcache.IndepHash, error)

	// LoadRecent returns up to n on-chain blocks walking back from head,
	// newest-first, in the shape blockcache.Cache.InitializeFromList
	// expects.
	LoadRecent(n int) ([]blockcache.Block, error)

	Close() error
}

// BadgerStore implements Store on top of BadgerDB.
type BadgerStore struct {
	db *badger.DB
	mu sync.RWMutex
}

// Keys:
// block by hash:   "block:hash:<hash>"   -> gob(blockcache.Block)
// block by height: "block:height:<h>"    -> hash
// head:            "chain:head"          -> hash

// NewBadgerStore creates or opens a BadgerDB store at path. An empty path
// opens an in-memory store, used by tests and InitializeFromList fixtures.
func NewBadgerStore(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Wrap(err, "storage: open badger")
	}
	return &BadgerStore{db: db}, nil
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}

func blockKey(h blockcache.IndepHash) []byte {
	return []byte(fmt.Sprintf("block:hash:%x", h))
}

func heightKey(height uint64) []byte {
	return []byte(fmt.Sprintf("block:height:%d", height))
}

func (s *BadgerStore) SaveBlock(b blockcache.Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.db.Update(func(txn *badger.Txn) error {
		var buf bytes.Buffer
		if err := gob.NewEncoder(&buf).Encode(b); err != nil {
			return errors.Wrap(err, "storage: encode block")
		}
		return txn.Set(blockKey(b.IndepHash), buf.Bytes())
	})
}

func (s *BadgerStore) GetBlockByHash(h blockcache.IndepHash) (blockcache.Block, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var b blockcache.Block
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(blockKey(h))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return ErrBlockNotFound
			}
			return err
		}
		return item.Value(func(val []byte) error {
			return gob.NewDecoder(bytes.NewReader(val)).Decode(&b)
		})
	})
	if err != nil {
		return blockcache.Block{}, err
	}
	return b, nil
}

func (s *BadgerStore) GetBlockByHeight(height uint64) (blockcache.Block, error) {
	s.mu.RLock()
	var h blockcache.IndepHash
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(heightKey(height))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return ErrBlockNotFound
			}
			return err
		}
		return item.Value(func(val []byte) error {
			copy(h[:], val)
			return nil
		})
	})
	s.mu.RUnlock()
	if err != nil {
		return blockcache.Block{}, err
	}
	return s.GetBlockByHash(h)
}

func (s *BadgerStore) SetCanonical(height uint64, h blockcache.IndepHash) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(heightKey(height), h[:])
	})
}

func (s *BadgerStore) SaveHead(h blockcache.IndepHash) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte("chain:head"), h[:])
	})
}

func (s *BadgerStore) GetHead() (blockcache.IndepHash, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var h blockcache.IndepHash
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte("chain:head"))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return ErrBlockNotFound
			}
			return err
		}
		return item.Value(func(val []byte) error {
			copy(h[:], val)
			return nil
		})
	})
	return h, err
}

// LoadRecent follows PreviousBlock links backward from the head block,
// returning at most n blocks newest-first. A fresh chain with
// fewer than n on-chain blocks returns everything it has.
func (s *BadgerStore) LoadRecent(n int) ([]blockcache.Block, error) {
	head, err := s.GetHead()
	if err != nil {
		return nil, err
	}

	out := make([]blockcache.Block, 0, n)
	cur := head
	for i := 0; i < n; i++ {
		b, err := s.GetBlockByHash(cur)
		if err != nil {
			if errors.Is(err, ErrBlockNotFound) {
				break
			}
			return nil, err
		}
		out = append(out, b)
		if b.PreviousBlock.IsZero() {
			break
		}
		cur = b.PreviousBlock
	}
	if len(out) == 0 {
		return nil, ErrBlockNotFound
	}
	return out, nil
}
