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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gostor/samtgt/pkg/scsi"
)

func TestRegistered(t *testing.T) {
	names := scsi.BackingStores()
	for _, name := range []string{FileBackingStorage, NullBackingStorage, MemoryBackingStorage, Qcow2BackingStorage} {
		assert.Contains(t, names, name)
	}
	_, err := scsi.NewBackingStore("nope")
	assert.Error(t, err)
}

func TestMemoryBackingStore(t *testing.T) {
	bs, err := scsi.NewBackingStore(MemoryBackingStorage)
	require.NoError(t, err)
	require.NoError(t, bs.Open("4096"))
	defer bs.Close()
	assert.Equal(t, uint64(4096), bs.Size())

	require.NoError(t, bs.Write([]byte("hello"), 512))
	got, err := bs.Read(512, 5)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))

	assert.Error(t, bs.Write([]byte("x"), 4096))
	_, err = bs.Read(4000, 100)
	assert.Error(t, err)
	assert.Error(t, bs.Open("lots"))
}

func TestNullBackingStore(t *testing.T) {
	bs, err := scsi.NewBackingStore(NullBackingStorage)
	require.NoError(t, err)
	require.NoError(t, bs.Open("1048576"))
	assert.Equal(t, uint64(1<<20), bs.Size())
	require.NoError(t, bs.Write([]byte{1, 2, 3}, 0))
	got, err := bs.Read(0, 3)
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 0, 0}, got)
}

func TestFileBackingStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "disk.img")
	require.NoError(t, os.WriteFile(path, make([]byte, 8192), 0600))

	bs, err := scsi.NewBackingStore(FileBackingStorage)
	require.NoError(t, err)
	require.NoError(t, bs.Open(path))
	assert.Equal(t, uint64(8192), bs.Size())

	require.NoError(t, bs.Write([]byte("block"), 4096))
	require.NoError(t, bs.DataSync(0, 0))
	got, err := bs.Read(4096, 5)
	require.NoError(t, err)
	assert.Equal(t, "block", string(got))

	_, err = bs.Read(8190, 10)
	assert.Error(t, err)

	require.NoError(t, bs.Close())
	_, err = bs.Read(0, 1)
	assert.Error(t, err)

	assert.Error(t, bs.Open(filepath.Join(t.TempDir(), "missing")))
}
