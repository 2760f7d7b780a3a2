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

package backingstore

import (
	"fmt"
	"strconv"
	"sync"

	"github.com/gostor/samtgt/pkg/api"
	"github.com/gostor/samtgt/pkg/scsi"
)

const (
	NullBackingStorage   = "null"
	MemoryBackingStorage = "mem"
)

func init() {
	scsi.RegisterBackingStore(NullBackingStorage, newNull)
	scsi.RegisterBackingStore(MemoryBackingStorage, newMemory)
}

// NullBackingStore discards writes and reads zeroes. Its path is the size
// in bytes.
type NullBackingStore struct {
	scsi.BaseBackingStore
}

func newNull() (api.BackingStore, error) {
	return &NullBackingStore{
		BaseBackingStore: scsi.BaseBackingStore{
			Name: NullBackingStorage,
		},
	}, nil
}

func parseSize(path string) (uint64, error) {
	if path == "" {
		return 0, nil
	}
	size, err := strconv.ParseUint(path, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("bad parameter: size %q: %v", path, err)
	}
	return size, nil
}

func (bs *NullBackingStore) Open(path string) (err error) {
	bs.DataSize, err = parseSize(path)
	return err
}

func (bs *NullBackingStore) Close() error {
	return nil
}

func (bs *NullBackingStore) Read(offset, tl int64) ([]byte, error) {
	return make([]byte, tl), nil
}

func (bs *NullBackingStore) Write(wbuf []byte, offset int64) error {
	return nil
}

func (bs *NullBackingStore) DataSync(offset, tl int64) error {
	return nil
}

// MemoryBackingStore keeps blocks in memory. Its path is the size in bytes.
type MemoryBackingStore struct {
	scsi.BaseBackingStore
	mu   sync.RWMutex
	data []byte
}

func newMemory() (api.BackingStore, error) {
	return &MemoryBackingStore{
		BaseBackingStore: scsi.BaseBackingStore{
			Name: MemoryBackingStorage,
		},
	}, nil
}

func (bs *MemoryBackingStore) Open(path string) error {
	size, err := parseSize(path)
	if err != nil {
		return err
	}
	bs.mu.Lock()
	bs.data = make([]byte, size)
	bs.DataSize = size
	bs.mu.Unlock()
	return nil
}

func (bs *MemoryBackingStore) Close() error {
	bs.mu.Lock()
	bs.data = nil
	bs.mu.Unlock()
	return nil
}

func (bs *MemoryBackingStore) bounds(offset, tl int64) error {
	if offset < 0 || tl < 0 || offset+tl > int64(len(bs.data)) {
		return fmt.Errorf("access [%d, %d) beyond %d bytes", offset, offset+tl, len(bs.data))
	}
	return nil
}

func (bs *MemoryBackingStore) Read(offset, tl int64) ([]byte, error) {
	bs.mu.RLock()
	defer bs.mu.RUnlock()
	if err := bs.bounds(offset, tl); err != nil {
		return nil, err
	}
	buf := make([]byte, tl)
	copy(buf, bs.data[offset:])
	return buf, nil
}

func (bs *MemoryBackingStore) Write(wbuf []byte, offset int64) error {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	if err := bs.bounds(offset, int64(len(wbuf))); err != nil {
		return err
	}
	copy(bs.data[offset:], wbuf)
	return nil
}

func (bs *MemoryBackingStore) DataSync(offset, tl int64) error {
	return nil
}
