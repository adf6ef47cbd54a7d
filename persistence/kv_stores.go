// Copyright 2018 The klaytn Authors
// This file is part of the klaytn library.
//
// The klaytn library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The klaytn library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the klaytn library. If not, see <http://www.gnu.org/licenses/>.

package persistence

import (
	"github.com/dgraph-io/badger"
	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"

	"github.com/klaytn/hnode/headstate"
)

// stateKey is the single key both KV backends store the latest persisted
// state under; neither backend needs more than one key for C2's contract.
var stateKey = []byte("head-state")

// BadgerStore backs C2 with a badger.DB, for operators who already run
// badger elsewhere in their deployment and want one less storage engine
// to operate (the same option the teacher's ServiceContext.OpenDatabase
// offers for its own chain database).
type BadgerStore struct {
	db *badger.DB
}

// NewBadgerStore opens (creating if absent) a badger database rooted at
// dir.
func NewBadgerStore(dir string) (*BadgerStore, error) {
	opts := badger.DefaultOptions
	opts.Dir = dir
	opts.ValueDir = dir
	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Wrapf(err, "persistence: failed to open badger store at %s", dir)
	}
	return &BadgerStore{db: db}, nil
}

func (s *BadgerStore) Load() (*headstate.Persisted, error) {
	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(stateKey)
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, errors.Wrap(err, "persistence: badger load failed")
	}
	if data == nil {
		return nil, nil
	}
	return decode(data)
}

func (s *BadgerStore) Save(state headstate.Persisted) error {
	data, err := encode(state)
	if err != nil {
		return errors.Wrap(err, "persistence: failed to encode state")
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(stateKey, data)
	})
	if err != nil {
		return errors.Wrap(err, "persistence: badger save failed")
	}
	return nil
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}

// LevelDBStore backs C2 with a goleveldb database, matching the other
// storage engine the teacher's ServiceContext.OpenDatabase supports.
type LevelDBStore struct {
	db *leveldb.DB
}

// NewLevelDBStore opens (creating if absent) a leveldb database rooted at
// dir.
func NewLevelDBStore(dir string) (*LevelDBStore, error) {
	db, err := leveldb.OpenFile(dir, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "persistence: failed to open leveldb store at %s", dir)
	}
	return &LevelDBStore{db: db}, nil
}

func (s *LevelDBStore) Load() (*headstate.Persisted, error) {
	data, err := s.db.Get(stateKey, nil)
	if err == leveldb.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "persistence: leveldb load failed")
	}
	return decode(data)
}

func (s *LevelDBStore) Save(state headstate.Persisted) error {
	data, err := encode(state)
	if err != nil {
		return errors.Wrap(err, "persistence: failed to encode state")
	}
	if err := s.db.Put(stateKey, data, nil); err != nil {
		return errors.Wrap(err, "persistence: leveldb save failed")
	}
	return nil
}

func (s *LevelDBStore) Close() error {
	return s.db.Close()
}
