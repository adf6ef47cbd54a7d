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
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/klaytn/hnode/headstate"
	"github.com/klaytn/hnode/internal/hlog"
)

var logger = hlog.NewModuleLogger("persistence")

// FileStore is the default Store: a single state file inside a directory,
// written via write-temp-then-rename-and-fsync so a crash mid-write never
// leaves a corrupt file in place (§6: "atomicity holds under crash").
type FileStore struct {
	dir      string
	fileName string
}

const defaultStateFile = "head-state.json"

// NewFileStore ensures dir exists and returns a store rooted there.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrapf(err, "persistence: failed to create state dir %s", dir)
	}
	return &FileStore{dir: dir, fileName: defaultStateFile}, nil
}

func (s *FileStore) path() string {
	return filepath.Join(s.dir, s.fileName)
}

// Load reads the last persisted state, or returns (nil, nil) if the
// directory has never been written to.
func (s *FileStore) Load() (*headstate.Persisted, error) {
	data, err := ioutil.ReadFile(s.path())
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "persistence: failed to read state file")
	}
	state, err := decode(data)
	if err != nil {
		return nil, errors.Wrap(err, "persistence: failed to decode state file")
	}
	return state, nil
}

// Save atomically replaces the prior state: write to a temp file in the
// same directory (so the rename is on the same filesystem), fsync it,
// then rename over the canonical path, and finally fsync the directory so
// the rename itself is durable.
//
// Persistence I/O failures are fatal per §7: a party that cannot durably
// record its state risks signing divergent snapshots. Callers (the node
// runtime) are expected to exit the process on a non-nil error here.
func (s *FileStore) Save(state headstate.Persisted) error {
	data, err := encode(state)
	if err != nil {
		return errors.Wrap(err, "persistence: failed to encode state")
	}
	tmp, err := ioutil.TempFile(s.dir, ".head-state-*.tmp")
	if err != nil {
		return errors.Wrap(err, "persistence: failed to create temp state file")
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return errors.Wrap(err, "persistence: failed to write temp state file")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return errors.Wrap(err, "persistence: failed to fsync temp state file")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return errors.Wrap(err, "persistence: failed to close temp state file")
	}
	if err := os.Rename(tmpPath, s.path()); err != nil {
		os.Remove(tmpPath)
		return errors.Wrap(err, "persistence: failed to rename temp state file into place")
	}
	if dir, err := os.Open(s.dir); err == nil {
		dir.Sync()
		dir.Close()
	}
	return nil
}

func (s *FileStore) Close() error {
	return nil
}
