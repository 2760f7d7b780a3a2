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
	"fmt"
	"sort"
	"sync"

	"github.com/gostor/samtgt/pkg/api"
	"github.com/gostor/samtgt/pkg/metrics"
	log "github.com/sirupsen/logrus"
)

// TaskRouter dispatches commands to logical units and executes task
// management functions.
type TaskRouter interface {
	Enqueue(port api.TargetTransportPort, cmd *api.Command)
	Execute(ctx context.Context, nexus api.Nexus, fn api.TaskManagementFunction) api.TaskServiceResponse
	RegisterLogicalUnit(lun int64, lu LogicalUnit) error
	RemoveLogicalUnit(lun int64) (LogicalUnit, error)
	LogicalUnits() []int64
	NexusLost(nexus api.Nexus)
	Start() error
	Stop()
}

// RouterConfig sizes the target-scope scheduler. A nil Factory serves
// REPORT LUNS, INQUIRY and TEST UNIT READY for commands without a LUN.
type RouterConfig struct {
	Threads     int
	QueueLength int
	Factory     TaskFactory
	Metrics     *metrics.Collector
}

const targetDomain = "target"

// DefaultTaskRouter owns the LUN map and the task set for commands that
// address no logical unit.
type DefaultTaskRouter struct {
	factory TaskFactory
	set     *DefaultTaskSet
	manager *DefaultTaskManager
	metrics *metrics.Collector

	// mu serializes start, stop and registration. Target-scope enqueues
	// hold it shared.
	mu      sync.RWMutex
	running bool
	stopped bool

	unitsMu sync.RWMutex
	units   map[int64]LogicalUnit
}

func NewTaskRouter(cfg RouterConfig) *DefaultTaskRouter {
	set := NewTaskSet(cfg.QueueLength, WithDomain(targetDomain), WithTaskSetMetrics(cfg.Metrics))
	r := &DefaultTaskRouter{
		set:     set,
		manager: NewTaskManager(cfg.Threads, set, WithManagerDomain(targetDomain), WithManagerMetrics(cfg.Metrics)),
		metrics: cfg.Metrics,
		units:   make(map[int64]LogicalUnit),
	}
	r.factory = cfg.Factory
	if r.factory == nil {
		r.factory = NewTargetTaskFactory(r)
	}
	return r
}

func (r *DefaultTaskRouter) lookup(lun int64) (LogicalUnit, bool) {
	r.unitsMu.RLock()
	defer r.unitsMu.RUnlock()
	lu, ok := r.units[lun]
	return lu, ok
}

func (r *DefaultTaskRouter) snapshot() []LogicalUnit {
	r.unitsMu.RLock()
	defer r.unitsMu.RUnlock()
	units := make([]LogicalUnit, 0, len(r.units))
	for _, lu := range r.units {
		units = append(units, lu)
	}
	return units
}

// LogicalUnit returns the unit registered under lun.
func (r *DefaultTaskRouter) LogicalUnit(lun int64) (LogicalUnit, bool) {
	return r.lookup(lun)
}

func (r *DefaultTaskRouter) LogicalUnits() []int64 {
	r.unitsMu.RLock()
	luns := make([]int64, 0, len(r.units))
	for lun := range r.units {
		luns = append(luns, lun)
	}
	r.unitsMu.RUnlock()
	sort.Slice(luns, func(i, j int) bool { return luns[i] < luns[j] })
	return luns
}

// TaskSet returns the target-scope task set.
func (r *DefaultTaskRouter) TaskSet() TaskSet {
	return r.set
}

func (r *DefaultTaskRouter) Enqueue(port api.TargetTransportPort, cmd *api.Command) {
	// REPORT LUNS is answered by the target whatever the LUN
	if !cmd.Nexus.HasLUN() || cmd.Opcode() == api.REPORT_LUNS {
		r.mu.RLock()
		defer r.mu.RUnlock()
		if r.stopped {
			respondError(port, cmd, ErrStopped, r.metrics, targetDomain)
			return
		}
		enqueue(r.factory, r.set, port, cmd, r.metrics, targetDomain)
		return
	}
	lu, ok := r.lookup(cmd.Nexus.LUN)
	if !ok {
		respondError(port, cmd, LUNNotSupportedError(cmd.Nexus.LUN), r.metrics, targetDomain)
		return
	}
	lu.Enqueue(port, cmd)
}

func (r *DefaultTaskRouter) Execute(ctx context.Context, nexus api.Nexus, fn api.TaskManagementFunction) (resp api.TaskServiceResponse) {
	defer func() {
		r.metrics.TaskManagement(fn.String(), resp.String())
		entry := log.WithFields(log.Fields{"nexus": nexus.String(), "function": fn.String()})
		if resp == api.FunctionComplete {
			entry.Infof("task management: %s", resp)
		} else {
			entry.Warnf("task management: %s", resp)
		}
	}()

	switch fn {
	case api.AbortTask:
		if !nexus.HasTaskTag() {
			return api.FunctionRejected
		}
		lu, ok := r.unitFor(nexus)
		if !ok {
			return api.FunctionRejected
		}
		return lu.AbortTask(ctx, nexus)
	case api.AbortTaskSet:
		lu, ok := r.unitFor(nexus)
		if !ok {
			return api.FunctionRejected
		}
		return lu.AbortTaskSet(ctx, nexus)
	case api.ClearTaskSet:
		lu, ok := r.unitFor(nexus)
		if !ok {
			return api.FunctionRejected
		}
		return lu.ClearTaskSet(ctx, nexus)
	case api.LogicalUnitReset:
		lu, ok := r.unitFor(nexus)
		if !ok {
			return api.FunctionRejected
		}
		return lu.Reset(ctx)
	case api.TargetReset:
		for _, lu := range r.snapshot() {
			if resp := lu.Reset(ctx); resp != api.FunctionComplete {
				log.Warnf("target reset: logical unit reset returned %s", resp)
			}
		}
		r.set.ClearAll()
		return api.FunctionComplete
	default:
		return api.FunctionRejected
	}
}

// unitFor returns the registered unit named by an I_T_L nexus.
func (r *DefaultTaskRouter) unitFor(nexus api.Nexus) (LogicalUnit, bool) {
	if !nexus.HasLUN() {
		return nil, false
	}
	return r.lookup(nexus.LUN)
}

func (r *DefaultTaskRouter) NexusLost(nexus api.Nexus) {
	for _, lu := range r.snapshot() {
		lu.NexusLost(nexus)
	}
	r.set.AbortNexus(nexus)
}

func (r *DefaultTaskRouter) RegisterLogicalUnit(lun int64, lu LogicalUnit) error {
	if lun < 0 {
		return fmt.Errorf("bad parameter: invalid lun %d", lun)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.unitsMu.Lock()
	if _, ok := r.units[lun]; ok {
		r.unitsMu.Unlock()
		return fmt.Errorf("lun %d: %w", lun, ErrLogicalUnitExists)
	}
	r.units[lun] = lu
	r.unitsMu.Unlock()

	switch {
	case r.running:
		if err := lu.Start(); err != nil {
			r.unitsMu.Lock()
			delete(r.units, lun)
			r.unitsMu.Unlock()
			return err
		}
	case r.stopped:
		// rejects commands until the router is started again
		lu.Stop()
	}
	log.Infof("registered logical unit %d", lun)
	return nil
}

func (r *DefaultTaskRouter) RemoveLogicalUnit(lun int64) (LogicalUnit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.unitsMu.Lock()
	lu, ok := r.units[lun]
	delete(r.units, lun)
	r.unitsMu.Unlock()
	if !ok {
		return nil, fmt.Errorf("lun %d: %w", lun, ErrNoSuchLogicalUnit)
	}
	lu.Stop()
	log.Infof("removed logical unit %d", lun)
	return lu, nil
}

func (r *DefaultTaskRouter) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return nil
	}
	var started []LogicalUnit
	for _, lu := range r.snapshot() {
		if err := lu.Start(); err != nil {
			stopAll(started)
			return err
		}
		started = append(started, lu)
	}
	if err := r.manager.Start(); err != nil {
		stopAll(started)
		return err
	}
	r.running = true
	r.stopped = false
	log.Info("task router started")
	return nil
}

func (r *DefaultTaskRouter) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.running {
		return
	}
	r.running = false
	r.stopped = true
	stopAll(r.snapshot())
	r.manager.Shutdown()
	log.Info("task router stopped")
}

func (r *DefaultTaskRouter) Running() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.running
}

func stopAll(units []LogicalUnit) {
	for _, lu := range units {
		lu.Stop()
	}
}
