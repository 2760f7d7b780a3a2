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

package port

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gostor/samtgt/pkg/api"
)

func TestLocalPortExchange(t *testing.T) {
	p := NewLocalPort("local", WithHistory())
	ctx := context.Background()
	nexus := api.NewITLQNexus("init", "tgt", 0, 7)

	done := p.Expect(nexus, 1, []byte("abcdef"))
	buf := make([]byte, 4)
	require.NoError(t, p.ReadData(ctx, nexus, 1, buf))
	assert.Equal(t, "abcd", string(buf))
	assert.Error(t, p.ReadData(ctx, nexus, 1, buf))

	require.NoError(t, p.WriteData(ctx, nexus, 1, []byte("xy")))
	require.NoError(t, p.WriteData(ctx, nexus, 1, []byte("z")))
	p.WriteResponse(nexus, 1, api.SAMStatGood, nil)

	select {
	case r := <-done:
		assert.Equal(t, api.SAMStatGood, r.Status)
		assert.Equal(t, "xyz", string(r.Data))
	case <-time.After(time.Second):
		t.Fatal("no response")
	}
	assert.Len(t, p.ResponsesFor(nexus, 1), 1)
	assert.Len(t, p.Responses(), 1)

	r, err := p.Wait(ctx, nexus, 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), r.CRN)

	p.Reset()
	assert.Empty(t, p.Responses())
}

func TestLocalPortKeepsNoHistory(t *testing.T) {
	p := NewLocalPort("local")
	ctx := context.Background()
	nexus := api.NewITLQNexus("init", "tgt", 0, 1)

	for crn := uint64(1); crn <= 200; crn++ {
		done := p.Expect(nexus, crn, nil)
		require.NoError(t, p.WriteData(ctx, nexus, crn, []byte("data-in")))
		p.WriteResponse(nexus, crn, api.SAMStatGood, nil)
		assert.Equal(t, "data-in", string((<-done).Data))
	}
	assert.Empty(t, p.Responses())
	assert.Equal(t, 0, p.Pending())
}

func TestLocalPortForget(t *testing.T) {
	p := NewLocalPort("local")
	nexus := api.NewITLQNexus("init", "tgt", 0, 1)

	p.Expect(nexus, 5, []byte("out"))
	assert.Equal(t, 1, p.Pending())
	p.Forget(nexus, 5)
	assert.Equal(t, 0, p.Pending())

	// late data-in of a forgotten command opens no new exchange
	err := p.WriteData(context.Background(), nexus, 5, []byte("x"))
	assert.True(t, errors.Is(err, ErrTransferTerminated))
	assert.Equal(t, 0, p.Pending())
}

func TestLocalPortNoDataOut(t *testing.T) {
	p := NewLocalPort("local")
	nexus := api.NewITLQNexus("init", "tgt", 0, 1)
	err := p.ReadData(context.Background(), nexus, 9, make([]byte, 1))
	assert.True(t, errors.Is(err, ErrNoDataOut))
}

func TestLocalPortTerminate(t *testing.T) {
	p := NewLocalPort("local")
	ctx := context.Background()
	nexus := api.NewITLQNexus("init", "tgt", 0, 1)

	p.Expect(nexus, 2, []byte("data"))
	p.TerminateDataTransfer(nexus, 2)
	assert.True(t, errors.Is(p.ReadData(ctx, nexus, 2, make([]byte, 1)), ErrTransferTerminated))
	assert.True(t, errors.Is(p.WriteData(ctx, nexus, 2, []byte("x")), ErrTransferTerminated))
}

func TestLocalPortWaitCancelled(t *testing.T) {
	p := NewLocalPort("local")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.Wait(ctx, api.NewITLQNexus("init", "tgt", 0, 1), 3)
	assert.Equal(t, context.Canceled, err)

	cctx, ccancel := context.WithCancel(context.Background())
	ccancel()
	assert.Error(t, p.WriteData(cctx, api.NewITLQNexus("init", "tgt", 0, 1), 3, []byte("x")))
}
