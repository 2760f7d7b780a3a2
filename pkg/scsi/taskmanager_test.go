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
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gostor/samtgt/pkg/api"
	"github.com/gostor/samtgt/pkg/metrics"
)

func waitDone(t *testing.T, tasks ...Task) {
	t.Helper()
	for _, task := range tasks {
		select {
		case <-task.Done():
		case <-time.After(2 * time.Second):
			t.Fatalf("task %v did not finish", task.Command())
		}
	}
}

func TestTaskManagerRunsTasks(t *testing.T) {
	p := newRecordingPort()
	s := NewTaskSet(16)
	m := NewTaskManager(2, s)
	require.NoError(t, m.Start())
	defer m.Shutdown()
	assert.True(t, errors.Is(m.Start(), ErrManagerRunning))

	var tasks []Task
	for tag := int64(1); tag <= 10; tag++ {
		attr := api.Simple
		if tag%4 == 0 {
			attr = api.Ordered
		}
		task := newTask(p, 0, tag, attr)
		require.NoError(t, s.Offer(task))
		tasks = append(tasks, task)
	}
	waitDone(t, tasks...)
	for _, r := range p.waitResponses(t, 10) {
		assert.Equal(t, api.SAMStatGood, r.status)
	}
	require.Eventually(t, func() bool { return s.Len() == 0 }, time.Second, 5*time.Millisecond)
}

func TestTaskManagerConcurrency(t *testing.T) {
	p := newRecordingPort()
	s := NewTaskSet(16)
	m := NewTaskManager(3, s)
	require.NoError(t, m.Start())
	defer m.Shutdown()

	g := newGate()
	var tasks []Task
	for tag := int64(1); tag <= 3; tag++ {
		task := NewBaseTask("gated", p, newCommand(0, tag, api.Simple), g.exec)
		require.NoError(t, s.Offer(task))
		tasks = append(tasks, task)
	}
	// all three bodies run at the same time
	g.waitStarted(t, 3)
	assert.Equal(t, 3, s.Running())
	g.release()
	waitDone(t, tasks...)
}

func TestTaskManagerShutdown(t *testing.T) {
	p := newRecordingPort()
	s := NewTaskSet(16)
	m := NewTaskManager(1, s)
	require.NoError(t, m.Start())

	g := newGate()
	running := NewBaseTask("gated", p, newCommand(0, 1, api.Simple), g.exec)
	require.NoError(t, s.Offer(running))
	g.waitStarted(t, 1)

	// the single worker is busy: these stay queued or in hand
	queued := []Task{newTask(p, 0, 2, api.Simple), newTask(p, 0, 3, api.Ordered)}
	for _, task := range queued {
		require.NoError(t, s.Offer(task))
	}

	m.Shutdown()
	assert.False(t, m.Running())
	assert.NoError(t, m.Err())

	waitDone(t, append(queued, running)...)
	for _, task := range append(queued, running) {
		assert.Equal(t, TaskAborted, task.State())
		resps := p.of(task.Command().CommandReferenceNumber)
		require.Len(t, resps, 1)
		assert.Equal(t, api.SAMStatTaskAborted, resps[0].status)
	}
	require.Eventually(t, func() bool { return s.Len() == 0 }, time.Second, 5*time.Millisecond)

	// a stopped manager can be started again
	require.NoError(t, m.Start())
	task := newTask(p, 0, 4, api.Simple)
	require.NoError(t, s.Offer(task))
	waitDone(t, task)
	assert.Equal(t, TaskCompleted, task.State())
	m.Shutdown()
}

func TestTaskManagerRun(t *testing.T) {
	s := NewTaskSet(4)
	m := NewTaskManager(1, s)
	errc := make(chan error, 1)
	go func() { errc <- m.Run() }()
	require.Eventually(t, m.Running, time.Second, time.Millisecond)

	m.Shutdown()
	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("run did not return")
	}
}

// brokenSet fails every Take.
type brokenSet struct {
	TaskSet
}

func (brokenSet) Take(ctx context.Context) (Task, error) {
	return nil, errors.New("corrupted")
}

func (brokenSet) ClearAll() {}

func TestTaskManagerLoopFailure(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := metrics.NewCollector(reg)
	m := NewTaskManager(1, brokenSet{}, WithManagerDomain("3"), WithManagerMetrics(c))
	require.NoError(t, m.Start())
	require.Eventually(t, func() bool { return !m.Running() }, time.Second, time.Millisecond)
	m.Shutdown()

	require.Error(t, m.Err())
	assert.Contains(t, m.Err().Error(), "corrupted")
	n, err := testutil.GatherAndCount(reg, "samtgt_manager_loop_failures_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

// journal records when task bodies start and end.
type journal struct {
	mu     sync.Mutex
	events []string
}

func (j *journal) body(tag int64) ExecFunc {
	return func(ctx context.Context) error {
		j.add(fmt.Sprintf("start %d", tag))
		time.Sleep(10 * time.Millisecond)
		j.add(fmt.Sprintf("end %d", tag))
		return nil
	}
}

func (j *journal) add(event string) {
	j.mu.Lock()
	j.events = append(j.events, event)
	j.mu.Unlock()
}

func (j *journal) index(event string) int {
	j.mu.Lock()
	defer j.mu.Unlock()
	for i, e := range j.events {
		if e == event {
			return i
		}
	}
	return -1
}

func TestTaskManagerOrderedBarrier(t *testing.T) {
	p := newRecordingPort()
	s := NewTaskSet(16)
	m := NewTaskManager(4, s)
	require.NoError(t, m.Start())
	defer m.Shutdown()

	j := &journal{}
	attrs := []api.TaskAttribute{api.Simple, api.Simple, api.Simple, api.Ordered, api.Simple, api.Simple, api.Ordered, api.Simple}
	var tasks []Task
	for i, attr := range attrs {
		tag := int64(i + 1)
		task := NewBaseTask("journaled", p, newCommand(0, tag, attr), j.body(tag))
		require.NoError(t, s.Offer(task))
		tasks = append(tasks, task)
	}
	waitDone(t, tasks...)

	for i, attr := range attrs {
		if attr != api.Ordered {
			continue
		}
		tag := int64(i + 1)
		start, end := j.index(fmt.Sprintf("start %d", tag)), j.index(fmt.Sprintf("end %d", tag))
		require.True(t, start >= 0 && end > start)
		for k := range attrs {
			other := int64(k + 1)
			switch {
			case other < tag:
				assert.Less(t, j.index(fmt.Sprintf("end %d", other)), start, "task %d ended after ordered %d started", other, tag)
			case other > tag:
				assert.Greater(t, j.index(fmt.Sprintf("start %d", other)), end, "task %d started before ordered %d ended", other, tag)
			}
		}
	}
	for _, task := range tasks {
		assert.Equal(t, TaskCompleted, task.State())
	}
}
