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

package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilCollectorIsNoop(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.TaskOffered("0", "SIMPLE")
		c.TaskRejected("0", "full")
		c.TaskFinished("0", "completed")
		c.SetTasksInSet("0", 3)
		c.TaskManagement("ABORT_TASK", "FUNCTION_COMPLETE")
		c.LoopFailure("0")
		c.TransferStage("read")
	})
	assert.NotNil(t, c.Handler())
}

func TestCollectorCounts(t *testing.T) {
	c := NewCollector(prometheus.NewRegistry())

	c.TaskOffered("1", "SIMPLE")
	c.TaskOffered("1", "SIMPLE")
	c.TaskOffered("1", "ORDERED")
	c.TaskRejected("1", "task_set_full")
	c.SetTasksInSet("1", 2)
	c.TaskManagement("TARGET_RESET", "FUNCTION_COMPLETE")

	assert.Equal(t, 2.0, testutil.ToFloat64(c.tasksOffered.WithLabelValues("1", "SIMPLE")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.tasksOffered.WithLabelValues("1", "ORDERED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.tasksRejected.WithLabelValues("1", "task_set_full")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.tasksQueued.WithLabelValues("1")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.tmfExecuted.WithLabelValues("TARGET_RESET", "FUNCTION_COMPLETE")))
}

func TestHandlerServesMetrics(t *testing.T) {
	c := NewCollector(nil)
	c.LoopFailure("target")

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `samtgt_manager_loop_failures_total{domain="target"} 1`)
}
