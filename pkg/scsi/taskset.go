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
	"sync"

	"github.com/gostor/samtgt/pkg/api"
	"github.com/gostor/samtgt/pkg/metrics"
	log "github.com/sirupsen/logrus"
)

// DefaultTaskSetCapacity is used when a task set is created without an
// explicit queue depth.
const DefaultTaskSetCapacity = 64

// TaskSet orders the tasks of one scheduling domain according to their
// SAM-2 task attributes.
type TaskSet interface {
	// Offer admits a task without blocking.
	Offer(task Task) error
	// Take blocks until a task may be dispatched.
	Take(ctx context.Context) (Task, error)
	// Remove aborts the task identified by an I_T_L_Q nexus.
	Remove(nexus api.Nexus) error
	// Abort aborts every task of the I_T nexus within an I_T_L nexus.
	Abort(nexus api.Nexus) error
	// Clear aborts every task in the set on behalf of an I_T_L nexus.
	Clear(nexus api.Nexus) error
	// ClearAll aborts every task in the set.
	ClearAll()
	// Drain waits until no dispatched task is still running.
	Drain(ctx context.Context) error
	// Len returns the number of queued and running tasks.
	Len() int
}

type taskKey struct {
	initiator string
	target    string
	tag       int64
}

func keyOf(n api.Nexus) taskKey {
	return taskKey{initiator: n.InitiatorPort, target: n.TargetPort, tag: n.TaskTag}
}

// taskEntry is a task held by a DefaultTaskSet. Running it reports the
// completion back so that ordering barriers are released.
type taskEntry struct {
	Task
	set  *DefaultTaskSet
	key  taskKey
	attr api.TaskAttribute
}

func (e *taskEntry) Run() {
	defer e.set.finished(e)
	e.Task.Run()
}

type TaskSetOption func(*DefaultTaskSet)

// WithDomain names the scheduling domain in logs and metrics.
func WithDomain(domain string) TaskSetOption {
	return func(s *DefaultTaskSet) {
		s.domain = domain
	}
}

func WithTaskSetMetrics(c *metrics.Collector) TaskSetOption {
	return func(s *DefaultTaskSet) {
		s.metrics = c
	}
}

// DefaultTaskSet is a bounded SAM-2 task set.
//
// Head of queue tasks are admitted LIFO and dispatched before anything
// else. Simple and ordered tasks share one FIFO list: an ordered task is
// dispatched only once every earlier task has finished, and a simple task
// is held back while an ordered or head of queue task is running. The
// command priority does not reorder tasks.
type DefaultTaskSet struct {
	domain   string
	capacity int
	metrics  *metrics.Collector

	mu sync.Mutex
	// changed is closed and replaced on every state change.
	changed     chan struct{}
	tasks       map[taskKey]*taskEntry
	acaQueue    []*taskEntry
	headOfQueue []*taskEntry
	dormant     []*taskEntry
	enabled     map[*taskEntry]struct{}
	// barriers counts enabled tasks that are not simple.
	barriers int
	aca      *taskEntry
}

func NewTaskSet(capacity int, opts ...TaskSetOption) *DefaultTaskSet {
	if capacity <= 0 {
		capacity = DefaultTaskSetCapacity
	}
	s := &DefaultTaskSet{
		domain:   "target",
		capacity: capacity,
		changed:  make(chan struct{}),
		tasks:    make(map[taskKey]*taskEntry),
		enabled:  make(map[*taskEntry]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// signal wakes every goroutine waiting on the set. The caller holds s.mu.
func (s *DefaultTaskSet) signal() {
	close(s.changed)
	s.changed = make(chan struct{})
	s.metrics.SetTasksInSet(s.domain, len(s.tasks))
}

func (s *DefaultTaskSet) Offer(task Task) error {
	if task == nil {
		return fmt.Errorf("%w: nil task", ErrInvalidNexus)
	}
	cmd := task.Command()
	attr := cmd.TaskAttribute
	key := keyOf(cmd.Nexus)

	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case !cmd.Nexus.HasTaskTag() && attr != api.Simple:
		return fmt.Errorf("%w: untagged %s task", ErrInvalidNexus, attr)
	case len(s.tasks) >= s.capacity:
		return ErrTaskSetFull
	case s.tasks[key] != nil:
		return fmt.Errorf("%w: %s", ErrOverlappedCommand, cmd.Nexus)
	case attr == api.ACA && s.aca != nil:
		return ErrACAActive
	}

	e := &taskEntry{Task: task, set: s, key: key, attr: attr}
	s.tasks[key] = e
	switch attr {
	case api.HeadOfQueue:
		s.headOfQueue = append([]*taskEntry{e}, s.headOfQueue...)
	case api.ACA:
		s.aca = e
		s.acaQueue = append(s.acaQueue, e)
	default:
		s.dormant = append(s.dormant, e)
	}
	if q, ok := task.(interface{ markQueued() }); ok {
		q.markQueued()
	}
	log.WithFields(log.Fields{
		"domain": s.domain,
		"nexus":  cmd.Nexus.String(),
		"crn":    cmd.CommandReferenceNumber,
	}).Debugf("admitted %s task (priority %d, %d in set)", attr, cmd.Priority, len(s.tasks))
	s.metrics.TaskOffered(s.domain, attr.String())
	s.signal()
	return nil
}

// next picks the task to dispatch, or nil. The caller holds s.mu.
func (s *DefaultTaskSet) next() *taskEntry {
	if len(s.acaQueue) > 0 {
		e := s.acaQueue[0]
		s.acaQueue = s.acaQueue[1:]
		return e
	}
	if len(s.headOfQueue) > 0 {
		e := s.headOfQueue[0]
		s.headOfQueue = s.headOfQueue[1:]
		return e
	}
	if len(s.dormant) == 0 {
		return nil
	}
	e := s.dormant[0]
	switch e.attr {
	case api.Ordered:
		if len(s.enabled) > 0 {
			return nil
		}
	default:
		if s.barriers > 0 {
			return nil
		}
	}
	s.dormant = s.dormant[1:]
	return e
}

func (s *DefaultTaskSet) Take(ctx context.Context) (Task, error) {
	for {
		s.mu.Lock()
		if e := s.next(); e != nil {
			s.enabled[e] = struct{}{}
			if e.attr != api.Simple {
				s.barriers++
			}
			s.mu.Unlock()
			return e, nil
		}
		changed := s.changed
		s.mu.Unlock()

		select {
		case <-changed:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// finished releases the ordering slot held by a dispatched task.
func (s *DefaultTaskSet) finished(e *taskEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.enabled[e]; ok {
		delete(s.enabled, e)
		if e.attr != api.Simple {
			s.barriers--
		}
	}
	if s.tasks[e.key] == e {
		delete(s.tasks, e.key)
	}
	if s.aca == e {
		s.aca = nil
	}
	s.metrics.TaskFinished(s.domain, e.State().String())
	s.signal()
}

// detach drops e from the queues. A running task keeps its slot in
// s.enabled and its task tag until it finishes, so the tag cannot be
// reused while the body still runs. The caller holds s.mu.
func (s *DefaultTaskSet) detach(e *taskEntry) {
	if _, running := s.enabled[e]; !running && s.tasks[e.key] == e {
		delete(s.tasks, e.key)
	}
	if s.aca == e {
		s.aca = nil
	}
	s.acaQueue = without(s.acaQueue, e)
	s.headOfQueue = without(s.headOfQueue, e)
	s.dormant = without(s.dormant, e)
}

func without(list []*taskEntry, e *taskEntry) []*taskEntry {
	for i, x := range list {
		if x == e {
			return append(list[:i:i], list[i+1:]...)
		}
	}
	return list
}

func (s *DefaultTaskSet) Remove(nexus api.Nexus) error {
	if !nexus.HasTaskTag() {
		return fmt.Errorf("%w: %s has no task tag", ErrInvalidNexus, nexus)
	}
	s.mu.Lock()
	e, ok := s.tasks[keyOf(nexus)]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNoSuchTask, nexus)
	}
	s.detach(e)
	s.signal()
	s.mu.Unlock()

	e.Abort()
	return nil
}

func (s *DefaultTaskSet) Abort(nexus api.Nexus) error {
	if !nexus.HasLUN() {
		return fmt.Errorf("%w: %s has no logical unit", ErrInvalidNexus, nexus)
	}
	s.abortMatching(func(e *taskEntry) bool {
		return e.key.initiator == nexus.InitiatorPort && e.key.target == nexus.TargetPort
	})
	return nil
}

func (s *DefaultTaskSet) Clear(nexus api.Nexus) error {
	if !nexus.HasLUN() {
		return fmt.Errorf("%w: %s has no logical unit", ErrInvalidNexus, nexus)
	}
	s.ClearAll()
	return nil
}

func (s *DefaultTaskSet) ClearAll() {
	s.abortMatching(func(*taskEntry) bool { return true })
}

// AbortNexus aborts every task of an I_T nexus, whatever its logical unit.
func (s *DefaultTaskSet) AbortNexus(nexus api.Nexus) {
	s.abortMatching(func(e *taskEntry) bool {
		return e.key.initiator == nexus.InitiatorPort && e.key.target == nexus.TargetPort
	})
}

func (s *DefaultTaskSet) abortMatching(match func(*taskEntry) bool) {
	var victims []*taskEntry
	s.mu.Lock()
	for _, e := range s.tasks {
		if match(e) {
			victims = append(victims, e)
		}
	}
	for _, e := range victims {
		s.detach(e)
	}
	if len(victims) > 0 {
		s.signal()
	}
	s.mu.Unlock()

	for _, e := range victims {
		e.Abort()
	}
	if len(victims) > 0 {
		log.Debugf("%s: aborted %d task(s)", s.domain, len(victims))
	}
}

func (s *DefaultTaskSet) Drain(ctx context.Context) error {
	for {
		s.mu.Lock()
		if len(s.enabled) == 0 {
			s.mu.Unlock()
			return nil
		}
		changed := s.changed
		s.mu.Unlock()

		select {
		case <-changed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *DefaultTaskSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// Running returns the number of dispatched tasks that have not finished.
func (s *DefaultTaskSet) Running() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.enabled)
}
