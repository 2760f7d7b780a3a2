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

package scsi

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gostor/samtgt/pkg/api"
)

const (
	testInitiator = "iqn.2016-09.com.example:init"
	testTarget    = "iqn.2016-09.com.gostor:tgt"
)

type response struct {
	nexus  api.Nexus
	crn    uint64
	status api.SAMStat
	sense  []byte
}

// recordingPort records everything tasks send to the transport.
type recordingPort struct {
	mu         sync.Mutex
	responses  []response
	data       map[uint64][]byte
	terminated map[uint64]int
}

func newRecordingPort() *recordingPort {
	return &recordingPort{
		data:       make(map[uint64][]byte),
		terminated: make(map[uint64]int),
	}
}

func (p *recordingPort) ReadData(ctx context.Context, nexus api.Nexus, crn uint64, buf []byte) error {
	return nil
}

func (p *recordingPort) WriteData(ctx context.Context, nexus api.Nexus, crn uint64, data []byte) error {
	p.mu.Lock()
	p.data[crn] = append(p.data[crn], data...)
	p.mu.Unlock()
	return nil
}

func (p *recordingPort) TerminateDataTransfer(nexus api.Nexus, crn uint64) {
	p.mu.Lock()
	p.terminated[crn]++
	p.mu.Unlock()
}

func (p *recordingPort) WriteResponse(nexus api.Nexus, crn uint64, status api.SAMStat, senseData []byte) {
	p.mu.Lock()
	p.responses = append(p.responses, response{nexus: nexus, crn: crn, status: status, sense: senseData})
	p.mu.Unlock()
}

func (p *recordingPort) all() []response {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]response(nil), p.responses...)
}

func (p *recordingPort) of(crn uint64) []response {
	var out []response
	for _, r := range p.all() {
		if r.crn == crn {
			out = append(out, r)
		}
	}
	return out
}

func (p *recordingPort) dataOf(crn uint64) []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.data[crn]
}

func (p *recordingPort) terminations(crn uint64) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.terminated[crn]
}

// waitResponses waits until n responses have been recorded.
func (p *recordingPort) waitResponses(t *testing.T, n int) []response {
	t.Helper()
	require.Eventually(t, func() bool { return len(p.all()) >= n }, 2*time.Second, 5*time.Millisecond)
	return p.all()
}

var crnCounter uint64

func newCommand(lun, tag int64, attr api.TaskAttribute, cdb ...byte) *api.Command {
	if len(cdb) == 0 {
		cdb = []byte{byte(api.TEST_UNIT_READY), 0, 0, 0, 0, 0}
	}
	return &api.Command{
		Nexus:                  api.NewITLQNexus(testInitiator, testTarget, lun, tag),
		CommandReferenceNumber: atomic.AddUint64(&crnCounter, 1),
		TaskAttribute:          attr,
		CDB:                    cdb,
	}
}

func newTask(port api.TargetTransportPort, lun, tag int64, attr api.TaskAttribute) *BaseTask {
	return NewBaseTask("test", port, newCommand(lun, tag, attr), nil)
}

// gate blocks task bodies until it is opened.
type gate struct {
	once    sync.Once
	open    chan struct{}
	started chan struct{}
}

func newGate() *gate {
	return &gate{open: make(chan struct{}), started: make(chan struct{}, 64)}
}

func (g *gate) release() {
	g.once.Do(func() { close(g.open) })
}

// exec waits for the gate or for the task to be aborted.
func (g *gate) exec(ctx context.Context) error {
	g.started <- struct{}{}
	select {
	case <-g.open:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// stubborn waits for the gate only.
func (g *gate) stubborn(ctx context.Context) error {
	g.started <- struct{}{}
	<-g.open
	return nil
}

func (g *gate) waitStarted(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-g.started:
		case <-time.After(2 * time.Second):
			t.Fatalf("only %d of %d task bodies started", i, n)
		}
	}
}

// gatedFactory builds tasks whose bodies wait on g.
func gatedFactory(g *gate) TaskFactory {
	return TaskFactoryFunc(func(port api.TargetTransportPort, cmd *api.Command) (Task, error) {
		if cmd.Opcode() != api.TEST_UNIT_READY {
			return nil, InvalidOpcodeError(byte(cmd.Opcode()))
		}
		return NewBaseTask("gated", port, cmd, g.exec), nil
	})
}

func takeWithin(t *testing.T, s TaskSet, d time.Duration) (Task, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	return s.Take(ctx)
}

func mustTake(t *testing.T, s TaskSet) Task {
	t.Helper()
	task, err := takeWithin(t, s, time.Second)
	require.NoError(t, err)
	return task
}

func assertBlocked(t *testing.T, s TaskSet) {
	t.Helper()
	task, err := takeWithin(t, s, 30*time.Millisecond)
	require.ErrorIs(t, err, context.DeadlineExceeded, "unexpected dispatch of %v", task)
}
