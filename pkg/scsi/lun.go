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

	"github.com/gostor/samtgt/pkg/api"
	"github.com/gostor/samtgt/pkg/metrics"
	log "github.com/sirupsen/logrus"
)

// TaskFactory builds the task executing a command. It fails with a
// *SenseError when the command is malformed or not supported.
type TaskFactory interface {
	GetInstance(port api.TargetTransportPort, cmd *api.Command) (Task, error)
}

// TaskFactoryFunc adapts a function to TaskFactory.
type TaskFactoryFunc func(port api.TargetTransportPort, cmd *api.Command) (Task, error)

func (f TaskFactoryFunc) GetInstance(port api.TargetTransportPort, cmd *api.Command) (Task, error) {
	return f(port, cmd)
}

// LogicalUnit schedules the commands addressed to one LUN and answers the
// task management functions scoped to it.
type LogicalUnit interface {
	Start() error
	Stop()
	Enqueue(port api.TargetTransportPort, cmd *api.Command)
	AbortTask(ctx context.Context, nexus api.Nexus) api.TaskServiceResponse
	AbortTaskSet(ctx context.Context, nexus api.Nexus) api.TaskServiceResponse
	ClearTaskSet(ctx context.Context, nexus api.Nexus) api.TaskServiceResponse
	Reset(ctx context.Context) api.TaskServiceResponse
	// NexusLost aborts the tasks of an I_T nexus that went away.
	NexusLost(nexus api.Nexus)
	TaskSet() TaskSet
}

type luState int

const (
	luIdle luState = iota
	luRunning
	luStopped
)

// LogicalUnitConfig sizes the scheduler of a logical unit.
type LogicalUnitConfig struct {
	Threads     int
	QueueLength int
	Metrics     *metrics.Collector
}

// DefaultLogicalUnit owns a task set, the task manager draining it and the
// factory turning commands into tasks.
type DefaultLogicalUnit struct {
	lun     int64
	domain  string
	factory TaskFactory
	set     *DefaultTaskSet
	manager *DefaultTaskManager
	metrics *metrics.Collector

	mu    sync.RWMutex
	state luState
}

func NewLogicalUnit(lun int64, factory TaskFactory, cfg LogicalUnitConfig) *DefaultLogicalUnit {
	domain := fmt.Sprintf("%d", lun)
	set := NewTaskSet(cfg.QueueLength, WithDomain(domain), WithTaskSetMetrics(cfg.Metrics))
	return &DefaultLogicalUnit{
		lun:     lun,
		domain:  domain,
		factory: factory,
		set:     set,
		manager: NewTaskManager(cfg.Threads, set, WithManagerDomain(domain), WithManagerMetrics(cfg.Metrics)),
		metrics: cfg.Metrics,
	}
}

func (lu *DefaultLogicalUnit) LUN() int64 {
	return lu.lun
}

func (lu *DefaultLogicalUnit) TaskSet() TaskSet {
	return lu.set
}

func (lu *DefaultLogicalUnit) Start() error {
	lu.mu.Lock()
	defer lu.mu.Unlock()
	if lu.state == luRunning {
		return nil
	}
	if err := lu.manager.Start(); err != nil {
		return err
	}
	lu.state = luRunning
	log.Infof("logical unit %d started", lu.lun)
	return nil
}

// Stop shuts the task manager down. A stopped unit rejects new commands
// until it is started again.
func (lu *DefaultLogicalUnit) Stop() {
	lu.mu.Lock()
	if lu.state == luStopped {
		lu.mu.Unlock()
		return
	}
	lu.state = luStopped
	lu.mu.Unlock()

	lu.manager.Shutdown()
	log.Infof("logical unit %d stopped", lu.lun)
}

// Enqueue holds the state lock until the task is in the set, so a
// concurrent Stop either rejects the command or aborts the queued task.
func (lu *DefaultLogicalUnit) Enqueue(port api.TargetTransportPort, cmd *api.Command) {
	lu.mu.RLock()
	defer lu.mu.RUnlock()
	if lu.state == luStopped {
		respondError(port, cmd, LUNNotSupportedError(lu.lun), lu.metrics, lu.domain)
		return
	}
	enqueue(lu.factory, lu.set, port, cmd, lu.metrics, lu.domain)
}

func (lu *DefaultLogicalUnit) AbortTask(ctx context.Context, nexus api.Nexus) api.TaskServiceResponse {
	err := lu.set.Remove(nexus)
	switch {
	case err == nil, errors.Is(err, ErrNoSuchTask):
		return api.FunctionComplete
	default:
		log.Warnf("abort task %s: %v", nexus, err)
		return api.FunctionRejected
	}
}

func (lu *DefaultLogicalUnit) AbortTaskSet(ctx context.Context, nexus api.Nexus) api.TaskServiceResponse {
	if err := lu.set.Abort(nexus); err != nil {
		log.Warnf("abort task set %s: %v", nexus, err)
		return api.FunctionRejected
	}
	return api.FunctionComplete
}

func (lu *DefaultLogicalUnit) ClearTaskSet(ctx context.Context, nexus api.Nexus) api.TaskServiceResponse {
	if err := lu.set.Clear(nexus); err != nil {
		log.Warnf("clear task set %s: %v", nexus, err)
		return api.FunctionRejected
	}
	return lu.drain(ctx)
}

func (lu *DefaultLogicalUnit) Reset(ctx context.Context) api.TaskServiceResponse {
	lu.set.ClearAll()
	return lu.drain(ctx)
}

func (lu *DefaultLogicalUnit) NexusLost(nexus api.Nexus) {
	lu.set.AbortNexus(nexus)
}

func (lu *DefaultLogicalUnit) drain(ctx context.Context) api.TaskServiceResponse {
	if err := lu.set.Drain(ctx); err != nil {
		log.Warnf("logical unit %d: waiting for aborted tasks: %v", lu.lun, err)
		return api.ServiceDeliveryOrTargetFailure
	}
	return api.FunctionComplete
}

// enqueue builds the task for cmd and offers it to set. Every failure is
// answered through the port.
func enqueue(factory TaskFactory, set TaskSet, port api.TargetTransportPort, cmd *api.Command, m *metrics.Collector, domain string) {
	task, err := factory.GetInstance(port, cmd)
	if err != nil {
		respondError(port, cmd, err, m, domain)
		return
	}
	if err := set.Offer(task); err != nil {
		respondError(port, cmd, err, m, domain)
	}
}

// respondError answers a command that never became a running task.
func respondError(port api.TargetTransportPort, cmd *api.Command, err error, m *metrics.Collector, domain string) {
	var (
		status = api.SAMStatCheckCondition
		sense  []byte
		reason string
		serr   *SenseError
	)
	switch {
	case errors.Is(err, ErrTaskSetFull):
		status, reason = api.SAMStatTaskSetFull, "task_set_full"
	case errors.Is(err, ErrACAActive):
		status, reason = api.SAMStatAcaActive, "aca_active"
	case errors.Is(err, ErrStopped):
		status, reason = api.SAMStatBusy, "busy"
	case errors.Is(err, ErrOverlappedCommand):
		sense, reason = OverlappedCommandsError(cmd.Nexus.TaskTag).Encode(), "overlapped"
	case errors.Is(err, ErrInvalidNexus):
		sense, reason = InvalidFieldError("%v", err).Encode(), "invalid_nexus"
	case errors.As(err, &serr):
		sense, reason = serr.Encode(), "check_condition"
		if serr.ASC == ASC_LUN_NOT_SUPPORTED {
			reason = "lun_not_supported"
		}
	default:
		sense, reason = InternalFailureError(err).Encode(), "internal"
	}
	log.WithFields(log.Fields{
		"nexus": cmd.Nexus.String(),
		"crn":   cmd.CommandReferenceNumber,
	}).Warnf("command rejected: %v", err)
	m.TaskRejected(domain, reason)
	port.WriteResponse(cmd.Nexus, cmd.CommandReferenceNumber, status, sense)
}
