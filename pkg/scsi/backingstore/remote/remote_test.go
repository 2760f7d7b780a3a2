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

package remote

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memRemote struct {
	data  []byte
	syncs int
}

func (m *memRemote) ReadAt(p []byte, off int64) (int, error) {
	return copy(p, m.data[off:]), nil
}

func (m *memRemote) WriteAt(p []byte, off int64) (int, error) {
	return copy(m.data[off:], p), nil
}

func (m *memRemote) Sync() (int, error) {
	m.syncs++
	return 0, nil
}

func TestRemoteBackingStore(t *testing.T) {
	rs := &memRemote{data: make([]byte, 1024)}
	bs := New(rs, 1024)
	require.NoError(t, bs.Open("vol0"))
	assert.Equal(t, uint64(1024), bs.Size())

	require.NoError(t, bs.Write([]byte("abc"), 10))
	got, err := bs.Read(10, 3)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))

	// short write at the end of the remote buffer
	assert.Error(t, bs.Write([]byte("abcd"), 1022))
	_, err = bs.Read(1020, 8)
	assert.Error(t, err)

	require.NoError(t, bs.DataSync(0, 0))
	assert.Equal(t, 1, rs.syncs)
}

func TestRemoteBackingStoreOpen(t *testing.T) {
	assert.Error(t, New(nil, 1024).Open("vol0"))
	assert.Error(t, New(&memRemote{}, 0).Open("vol0"))
}
