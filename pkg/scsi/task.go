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
	log "github.com/sirupsen/logrus"
)

type TaskState int32

const (
	TaskCreated TaskState = iota
	TaskQueued
	TaskRunning
	TaskCompleted
	TaskAborted
	TaskFailed
)

var taskStateNames = [...]string{"created", "queued", "running", "completed", "aborted", "failed"}

func (s TaskState) String() string {
	if int(s) < len(taskStateNames) {
		return taskStateNames[s]
	}
	return fmt.Sprintf("TaskState(%d)", int32(s))
}

// Final reports whether no further transition can happen.
func (s TaskState) Final() bool {
	return s >= TaskCompleted
}

// Task is the executable unit bound to one command.
type Task interface {
	Command() *api.Command
	Port() api.TargetTransportPort
	// Run executes the task body and delivers its status. It returns at
	// once if the task has been aborted.
	Run()
	// Abort stops the task. It may be called concurrently with Run and
	// returns true only for the call that aborted the task.
	Abort() bool
	State() TaskState
	// Done is closed once the task reaches a final state.
	Done() <-chan struct{}
}

// ExecFunc is the body of a task. A nil error completes the command with
// GOOD status; a *SenseError completes it with CHECK CONDITION.
type ExecFunc func(ctx context.Context) error

// BaseTask implements the task life cycle around an ExecFunc.
type BaseTask struct {
	name    string
	port    api.TargetTransportPort
	command *api.Command
	exec    ExecFunc

	mu     sync.Mutex
	state  TaskState
	cancel context.CancelFunc
	done   chan struct{}
}

func NewBaseTask(name string, port api.TargetTransportPort, cmd *api.Command, exec ExecFunc) *BaseTask {
	return &BaseTask{
		name:    name,
		port:    port,
		command: cmd,
		exec:    exec,
		done:    make(chan struct{}),
	}
}

func (t *BaseTask) Command() *api.Command {
	return t.command
}

func (t *BaseTask) Port() api.TargetTransportPort {
	return t.port
}

func (t *BaseTask) Name() string {
	return t.name
}

func (t *BaseTask) State() TaskState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *BaseTask) Done() <-chan struct{} {
	return t.done
}

func (t *BaseTask) String() string {
	return fmt.Sprintf("%s task %s", t.name, t.command)
}

func (t *BaseTask) markQueued() {
	t.mu.Lock()
	if t.state == TaskCreated {
		t.state = TaskQueued
	}
	t.mu.Unlock()
}

// finish moves the task to a final state unless it already has one.
// The caller holds t.mu.
func (t *BaseTask) finish(state TaskState) bool {
	if t.state.Final() {
		return false
	}
	t.state = state
	if t.cancel != nil {
		t.cancel()
	}
	close(t.done)
	return true
}

func (t *BaseTask) Run() {
	t.mu.Lock()
	if t.state != TaskCreated && t.state != TaskQueued {
		t.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel
	t.state = TaskRunning
	t.mu.Unlock()

	err := t.execute(ctx)

	t.mu.Lock()
	state := TaskCompleted
	if err != nil {
		state = TaskFailed
	}
	if !t.finish(state) {
		// abort won; it already answered the initiator
		t.mu.Unlock()
		return
	}
	t.mu.Unlock()

	cmd := t.command
	if err == nil {
		t.port.WriteResponse(cmd.Nexus, cmd.CommandReferenceNumber, api.SAMStatGood, nil)
		return
	}
	if errors.Is(err, ErrReservationConflict) {
		t.port.WriteResponse(cmd.Nexus, cmd.CommandReferenceNumber, api.SAMStatReservationConflict, nil)
		return
	}
	var serr *SenseError
	if !errors.As(err, &serr) {
		serr = InternalFailureError(err)
	}
	log.WithFields(log.Fields{
		"nexus": cmd.Nexus.String(),
		"crn":   cmd.CommandReferenceNumber,
	}).Debugf("%s failed: %v", t.name, err)
	t.port.WriteResponse(cmd.Nexus, cmd.CommandReferenceNumber, api.SAMStatCheckCondition, serr.Encode())
}

func (t *BaseTask) execute(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("%s panicked: %v", t, r)
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	if t.exec == nil {
		return nil
	}
	return t.exec(ctx)
}

func (t *BaseTask) Abort() bool {
	t.mu.Lock()
	wasRunning := t.state == TaskRunning
	if !t.finish(TaskAborted) {
		t.mu.Unlock()
		return false
	}
	t.mu.Unlock()

	cmd := t.command
	if wasRunning {
		t.port.TerminateDataTransfer(cmd.Nexus, cmd.CommandReferenceNumber)
	}
	t.port.WriteResponse(cmd.Nexus, cmd.CommandReferenceNumber, api.SAMStatTaskAborted, nil)
	log.Debugf("%s aborted", t)
	return true
}
