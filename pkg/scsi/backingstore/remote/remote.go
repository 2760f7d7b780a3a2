/*
Copyright 2016 The GoStor Authors All rights reserved.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package remote adapts storage served by another process to a backing
// store. Remote stores are handed to the target by name instead of being
// created from the backing store registry.
package remote

import (
	"fmt"

	"github.com/gostor/samtgt/pkg/api"
	"github.com/gostor/samtgt/pkg/scsi"
	log "github.com/sirupsen/logrus"
)

const RemoteBackingStorage = "remote"

type RemoteBackingStore struct {
	scsi.BaseBackingStore
	// remote server exposing read, write and sync
	rs api.RemoteBackingStore
}

// New wraps rs as a backing store of size bytes.
func New(rs api.RemoteBackingStore, size uint64) *RemoteBackingStore {
	return &RemoteBackingStore{
		BaseBackingStore: scsi.BaseBackingStore{
			Name:     RemoteBackingStorage,
			DataSize: size,
		},
		rs: rs,
	}
}

func (bs *RemoteBackingStore) Open(path string) error {
	if bs.rs == nil {
		return fmt.Errorf("remote backing store %q is not attached", path)
	}
	if bs.DataSize == 0 {
		return fmt.Errorf("remote backing store %q: size is not initialized", path)
	}
	return nil
}

func (bs *RemoteBackingStore) Close() error {
	return nil
}

func (bs *RemoteBackingStore) Read(offset, tl int64) ([]byte, error) {
	tmpbuf := make([]byte, tl)
	length, err := bs.rs.ReadAt(tmpbuf, offset)
	if err != nil {
		return nil, err
	}
	if length != len(tmpbuf) {
		return nil, fmt.Errorf("incomplete read expected:%d actual:%d", tl, length)
	}
	return tmpbuf, nil
}

func (bs *RemoteBackingStore) Write(wbuf []byte, offset int64) error {
	length, err := bs.rs.WriteAt(wbuf, offset)
	if err != nil {
		log.Error(err)
		return err
	}
	if length != len(wbuf) {
		return fmt.Errorf("incomplete write expected:%d actual:%d", len(wbuf), length)
	}
	return nil
}

func (bs *RemoteBackingStore) DataSync(offset, length int64) error {
	_, err := bs.rs.Sync()
	return err
}
