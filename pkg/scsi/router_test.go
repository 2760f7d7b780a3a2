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
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gostor/samtgt/pkg/api"
	"github.com/gostor/samtgt/pkg/metrics"
	"github.com/gostor/samtgt/pkg/util"
)

func newTestRouter(t *testing.T, g *gate, luns ...int64) *DefaultTaskRouter {
	t.Helper()
	r := NewTaskRouter(RouterConfig{Threads: 2, QueueLength: 8})
	for _, lun := range luns {
		lu := NewLogicalUnit(lun, gatedFactory(g), LogicalUnitConfig{Threads: 2, QueueLength: 8})
		require.NoError(t, r.RegisterLogicalUnit(lun, lu))
	}
	return r
}

func reportLunsCDB(alloc uint32) []byte {
	cdb := make([]byte, 12)
	cdb[0] = byte(api.REPORT_LUNS)
	copy(cdb[6:10], util.MarshalUint32(alloc))
	return cdb
}

func TestRouterUnknownLUN(t *testing.T) {
	p := newRecordingPort()
	r := newTestRouter(t, newGate(), 0)
	r.Enqueue(p, newCommand(5, 1, api.Simple))

	resps := p.all()
	require.Len(t, resps, 1)
	assert.Equal(t, api.SAMStatCheckCondition, resps[0].status)
	assert.Equal(t, byte(ILLEGAL_REQUEST), resps[0].sense[2])
	assert.Equal(t, byte(ASC_LUN_NOT_SUPPORTED>>8), resps[0].sense[12])
}

func TestRouterReportLuns(t *testing.T) {
	p := newRecordingPort()
	r := newTestRouter(t, newGate(), 3, 0, 300)
	require.NoError(t, r.Start())
	defer r.Stop()
	assert.Equal(t, []int64{0, 3, 300}, r.LogicalUnits())

	// addressed to a LUN that does not exist
	cmd := newCommand(7, 1, api.Simple, reportLunsCDB(64)...)
	r.Enqueue(p, cmd)
	resps := p.waitResponses(t, 1)
	assert.Equal(t, api.SAMStatGood, resps[0].status)

	want := ReportLuns([]int64{0, 3, 300})
	assert.Equal(t, want, p.dataOf(cmd.CommandReferenceNumber))
	assert.Equal(t, uint32(24), util.GetUnalignedUint32(want[0:4]))

	bad := newCommand(api.NoLUN, 2, api.Simple, reportLunsCDB(8)...)
	r.Enqueue(p, bad)
	resps = p.waitResponses(t, 2)
	assert.Equal(t, api.SAMStatCheckCondition, resps[1].status)
}

func TestRouterDispatchesToUnit(t *testing.T) {
	p := newRecordingPort()
	g := newGate()
	g.release()
	r := newTestRouter(t, g, 1)
	require.NoError(t, r.Start())
	defer r.Stop()
	assert.True(t, r.Running())

	r.Enqueue(p, newCommand(1, 1, api.Simple))
	resps := p.waitResponses(t, 1)
	assert.Equal(t, api.SAMStatGood, resps[0].status)

	// opcode not served by the unit
	r.Enqueue(p, newCommand(1, 2, api.Simple, byte(api.READ_10), 0, 0, 0, 0, 0, 0, 0, 1, 0))
	resps = p.waitResponses(t, 2)
	assert.Equal(t, api.SAMStatCheckCondition, resps[1].status)
	assert.Equal(t, byte(ASC_INVALID_OP_CODE>>8), resps[1].sense[12])
}

func TestRouterRegistration(t *testing.T) {
	r := newTestRouter(t, newGate(), 1)
	lu := NewLogicalUnit(1, gatedFactory(newGate()), LogicalUnitConfig{})
	err := r.RegisterLogicalUnit(1, lu)
	assert.True(t, errors.Is(err, ErrLogicalUnitExists))
	assert.Error(t, r.RegisterLogicalUnit(-1, lu))

	_, err = r.RemoveLogicalUnit(9)
	assert.True(t, errors.Is(err, ErrNoSuchLogicalUnit))

	got, ok := r.LogicalUnit(1)
	require.True(t, ok)
	removed, err := r.RemoveLogicalUnit(1)
	require.NoError(t, err)
	assert.Equal(t, got, removed)
	assert.Empty(t, r.LogicalUnits())
}

func TestRouterRemoveLogicalUnit(t *testing.T) {
	p := newRecordingPort()
	g := newGate()
	r := newTestRouter(t, g, 1)
	require.NoError(t, r.Start())
	defer r.Stop()

	pending := newCommand(1, 1, api.Simple)
	r.Enqueue(p, pending)
	g.waitStarted(t, 1)

	_, err := r.RemoveLogicalUnit(1)
	require.NoError(t, err)

	// the unit is gone: in-flight work is aborted and new commands fail
	resps := p.waitResponses(t, 1)
	assert.Equal(t, api.SAMStatTaskAborted, resps[0].status)
	r.Enqueue(p, newCommand(1, 2, api.Simple))
	resps = p.waitResponses(t, 2)
	assert.Equal(t, api.SAMStatCheckCondition, resps[1].status)
	assert.Equal(t, byte(ASC_LUN_NOT_SUPPORTED>>8), resps[1].sense[12])
}

func TestRouterTargetReset(t *testing.T) {
	p := newRecordingPort()
	reg := prometheus.NewRegistry()
	c := metrics.NewCollector(reg)
	r := NewTaskRouter(RouterConfig{Metrics: c})
	g := newGate()
	units := map[int64]*DefaultLogicalUnit{}
	for _, lun := range []int64{0, 1} {
		units[lun] = NewLogicalUnit(lun, gatedFactory(g), LogicalUnitConfig{Metrics: c})
		require.NoError(t, r.RegisterLogicalUnit(lun, units[lun]))
	}
	// nothing is started: every task stays queued
	for _, lun := range []int64{0, 1} {
		for tag := int64(1); tag <= 2; tag++ {
			r.Enqueue(p, newCommand(lun, tag, api.Simple))
		}
		assert.Equal(t, 2, units[lun].TaskSet().Len())
	}

	resp := r.Execute(context.Background(), api.NewITNexus(testInitiator, testTarget), api.TargetReset)
	assert.Equal(t, api.FunctionComplete, resp)
	for _, lu := range units {
		assert.Equal(t, 0, lu.TaskSet().Len())
	}
	resps := p.all()
	require.Len(t, resps, 4)
	for _, r := range resps {
		assert.Equal(t, api.SAMStatTaskAborted, r.status)
	}
	n, err := testutil.GatherAndCount(reg, "samtgt_task_management_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRouterTaskManagement(t *testing.T) {
	p := newRecordingPort()
	r := newTestRouter(t, newGate(), 0)
	ctx := context.Background()
	lu, _ := r.LogicalUnit(0)

	r.Enqueue(p, newCommand(0, 1, api.Simple))
	r.Enqueue(p, newCommand(0, 2, api.Simple))
	require.Equal(t, 2, lu.TaskSet().Len())

	tests := []struct {
		name  string
		nexus api.Nexus
		fn    api.TaskManagementFunction
		want  api.TaskServiceResponse
	}{
		{"abort task without tag", api.NewITLNexus(testInitiator, testTarget, 0), api.AbortTask, api.FunctionRejected},
		{"abort task unknown lun", api.NewITLQNexus(testInitiator, testTarget, 4, 1), api.AbortTask, api.FunctionRejected},
		{"abort task", api.NewITLQNexus(testInitiator, testTarget, 0, 1), api.AbortTask, api.FunctionComplete},
		{"abort missing task", api.NewITLQNexus(testInitiator, testTarget, 0, 1), api.AbortTask, api.FunctionComplete},
		{"abort task set without lun", api.NewITNexus(testInitiator, testTarget), api.AbortTaskSet, api.FunctionRejected},
		{"clear aca", api.NewITLNexus(testInitiator, testTarget, 0), api.ClearACA, api.FunctionRejected},
		{"wakeup", api.NewITNexus(testInitiator, testTarget), api.Wakeup, api.FunctionRejected},
		{"clear task set", api.NewITLNexus(testInitiator, testTarget, 0), api.ClearTaskSet, api.FunctionComplete},
		{"lu reset unknown lun", api.NewITLNexus(testInitiator, testTarget, 4), api.LogicalUnitReset, api.FunctionRejected},
		{"lu reset", api.NewITLNexus(testInitiator, testTarget, 0), api.LogicalUnitReset, api.FunctionComplete},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, r.Execute(ctx, tt.nexus, tt.fn))
		})
	}
	assert.Equal(t, 0, lu.TaskSet().Len())
	assert.Len(t, p.all(), 2)
}

func TestRouterNexusLost(t *testing.T) {
	p := newRecordingPort()
	r := newTestRouter(t, newGate(), 0, 1)
	mine := newCommand(0, 1, api.Simple)
	other := &api.Command{
		Nexus:                  api.NewITLQNexus("iqn.other", testTarget, 1, 1),
		CommandReferenceNumber: 1 << 41,
		TaskAttribute:          api.Simple,
		CDB:                    []byte{0, 0, 0, 0, 0, 0},
	}
	r.Enqueue(p, mine)
	r.Enqueue(p, newCommand(1, 2, api.Simple))
	r.Enqueue(p, other)

	r.NexusLost(api.NewITNexus(testInitiator, testTarget))
	resps := p.all()
	require.Len(t, resps, 2)
	for _, resp := range resps {
		assert.Equal(t, testInitiator, resp.nexus.InitiatorPort)
	}
	lu, _ := r.LogicalUnit(1)
	assert.Equal(t, 1, lu.TaskSet().Len())
}

func TestRouterStopIdempotent(t *testing.T) {
	r := newTestRouter(t, newGate(), 0)
	r.Stop()
	require.NoError(t, r.Start())
	require.NoError(t, r.Start())
	r.Stop()
	r.Stop()
	assert.False(t, r.Running())

	// units registered while running are started
	require.NoError(t, r.Start())
	defer r.Stop()
	g := newGate()
	g.release()
	require.NoError(t, r.RegisterLogicalUnit(2, NewLogicalUnit(2, gatedFactory(g), LogicalUnitConfig{})))
	p := newRecordingPort()
	r.Enqueue(p, newCommand(2, 1, api.Simple))
	require.Eventually(t, func() bool { return len(p.all()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, api.SAMStatGood, p.all()[0].status)
}

func TestRouterStartFailureStopsUnits(t *testing.T) {
	r := NewTaskRouter(RouterConfig{})
	units := map[int64]*DefaultLogicalUnit{}
	for _, lun := range []int64{0, 1, 2, 3} {
		units[lun] = NewLogicalUnit(lun, gatedFactory(newGate()), LogicalUnitConfig{})
		require.NoError(t, r.RegisterLogicalUnit(lun, units[lun]))
	}
	require.NoError(t, r.RegisterLogicalUnit(4, brokenUnit{NewLogicalUnit(4, gatedFactory(newGate()), LogicalUnitConfig{})}))

	assert.Error(t, r.Start())
	assert.False(t, r.Running())
	for lun, lu := range units {
		assert.False(t, lu.manager.Running(), "lun %d left running", lun)
	}
}

// brokenUnit is a logical unit that cannot be started.
type brokenUnit struct {
	*DefaultLogicalUnit
}

func (brokenUnit) Start() error {
	return errors.New("medium not present")
}

func TestRouterStoppedTargetScope(t *testing.T) {
	p := newRecordingPort()
	r := newTestRouter(t, newGate(), 0)
	require.NoError(t, r.Start())
	r.Stop()

	r.Enqueue(p, newCommand(api.NoLUN, 1, api.Simple))
	r.Enqueue(p, newCommand(0, 2, api.Simple, reportLunsCDB(64)...))
	resps := p.all()
	require.Len(t, resps, 2)
	for _, resp := range resps {
		assert.Equal(t, api.SAMStatBusy, resp.status)
	}
	assert.Equal(t, 0, r.TaskSet().Len())

	// a unit registered while the router is stopped rejects commands
	require.NoError(t, r.RegisterLogicalUnit(1, NewLogicalUnit(1, gatedFactory(newGate()), LogicalUnitConfig{})))
	r.Enqueue(p, newCommand(1, 3, api.Simple))
	resps = p.all()
	require.Len(t, resps, 3)
	assert.Equal(t, byte(ASC_LUN_NOT_SUPPORTED>>8), resps[2].sense[12])

	require.NoError(t, r.Start())
	defer r.Stop()
	r.Enqueue(p, newCommand(api.NoLUN, 4, api.Simple))
	resps = p.waitResponses(t, 4)
	assert.Equal(t, api.SAMStatGood, resps[3].status)
}

func TestRouterStopDuringTargetEnqueue(t *testing.T) {
	p := newRecordingPort()
	building := make(chan struct{})
	release := make(chan struct{})
	r := NewTaskRouter(RouterConfig{Factory: TaskFactoryFunc(func(port api.TargetTransportPort, cmd *api.Command) (Task, error) {
		close(building)
		<-release
		return NewBaseTask("slow", port, cmd, nil), nil
	})})
	require.NoError(t, r.Start())

	go r.Enqueue(p, newCommand(api.NoLUN, 1, api.Simple))
	<-building
	stopped := make(chan struct{})
	go func() {
		r.Stop()
		close(stopped)
	}()
	time.Sleep(20 * time.Millisecond)
	close(release)

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("stop did not return")
	}
	resps := p.waitResponses(t, 1)
	assert.Contains(t, []api.SAMStat{api.SAMStatGood, api.SAMStatTaskAborted}, resps[0].status)
	require.Eventually(t, func() bool { return r.TaskSet().Len() == 0 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, p.all(), 1)
}

func TestRouterTargetResetIdempotent(t *testing.T) {
	p := newRecordingPort()
	r := newTestRouter(t, newGate(), 0, 1)
	ctx := context.Background()
	r.Enqueue(p, newCommand(0, 1, api.Simple))
	r.Enqueue(p, newCommand(1, 2, api.Ordered))
	r.Enqueue(p, newCommand(api.NoLUN, 3, api.Simple))

	nexus := api.NewITNexus(testInitiator, testTarget)
	for i := 0; i < 2; i++ {
		assert.Equal(t, api.FunctionComplete, r.Execute(ctx, nexus, api.TargetReset))
		for _, lun := range r.LogicalUnits() {
			lu, _ := r.LogicalUnit(lun)
			assert.Equal(t, 0, lu.TaskSet().Len(), "lun %d", lun)
		}
		assert.Equal(t, 0, r.TaskSet().Len())
		assert.Len(t, p.all(), 3)
	}
}
