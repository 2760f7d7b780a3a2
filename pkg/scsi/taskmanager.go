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

	"github.com/gostor/samtgt/pkg/metrics"
	log "github.com/sirupsen/logrus"
)

// DefaultThreads is the worker count used when none is configured.
const DefaultThreads = 4

var ErrManagerRunning = errors.New("task manager already running")

// TaskManager drains a task set into a pool of workers.
type TaskManager interface {
	// Start launches the driving loop on its own goroutine.
	Start() error
	// Run starts the driving loop and blocks until it stops.
	Run() error
	// Shutdown stops the loop and aborts every task still queued.
	Shutdown()
	// Err returns the error that stopped the loop, if any.
	Err() error
}

// workerPool runs tasks on a fixed number of goroutines. Tasks are handed
// over an unbuffered channel, so a submit blocks while every worker is busy.
type workerPool struct {
	tasks chan Task
	wg    sync.WaitGroup
}

func newWorkerPool(size int) *workerPool {
	p := &workerPool{tasks: make(chan Task)}
	for i := 0; i < size; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	return p
}

func (p *workerPool) worker(id int) {
	defer p.wg.Done()
	for task := range p.tasks {
		runTask(id, task)
	}
}

func runTask(id int, task Task) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("worker %d: task %v panicked: %v", id, task.Command(), r)
		}
	}()
	task.Run()
}

func (p *workerPool) submit(ctx context.Context, task Task) error {
	select {
	case p.tasks <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// stop lets the workers exit once their current task returns.
func (p *workerPool) stop() {
	close(p.tasks)
}

type TaskManagerOption func(*DefaultTaskManager)

func WithManagerDomain(domain string) TaskManagerOption {
	return func(m *DefaultTaskManager) {
		m.domain = domain
	}
}

func WithManagerMetrics(c *metrics.Collector) TaskManagerOption {
	return func(m *DefaultTaskManager) {
		m.metrics = c
	}
}

// DefaultTaskManager takes tasks from a TaskSet and runs up to threads of
// them at once. It never waits for a task before taking the next one.
type DefaultTaskManager struct {
	threads int
	set     TaskSet
	domain  string
	metrics *metrics.Collector

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
	err     error
}

func NewTaskManager(threads int, set TaskSet, opts ...TaskManagerOption) *DefaultTaskManager {
	if threads <= 0 {
		threads = DefaultThreads
	}
	m := &DefaultTaskManager{
		threads: threads,
		set:     set,
		domain:  "target",
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *DefaultTaskManager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return ErrManagerRunning
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.running = true
	m.cancel = cancel
	m.done = make(chan struct{})
	m.err = nil
	go m.drive(ctx, m.done)
	log.Debugf("%s: task manager started with %d workers", m.domain, m.threads)
	return nil
}

func (m *DefaultTaskManager) Run() error {
	if err := m.Start(); err != nil {
		return err
	}
	m.mu.Lock()
	done := m.done
	m.mu.Unlock()
	<-done
	return m.Err()
}

func (m *DefaultTaskManager) drive(ctx context.Context, done chan struct{}) {
	pool := newWorkerPool(m.threads)
	err := m.loop(ctx, pool)
	pool.stop()

	m.mu.Lock()
	m.running = false
	m.err = err
	m.mu.Unlock()
	if err != nil {
		log.Errorf("%s: task manager stopped: %v", m.domain, err)
		m.metrics.LoopFailure(m.domain)
	} else {
		log.Debugf("%s: task manager stopped", m.domain)
	}
	close(done)
}

func (m *DefaultTaskManager) loop(ctx context.Context, pool *workerPool) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("driving loop panic: %v", r)
		}
	}()
	for {
		task, err := m.set.Take(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if err := pool.submit(ctx, task); err != nil {
			// shut down with a task in hand; running an aborted task only
			// releases its slot in the task set
			task.Abort()
			task.Run()
			return nil
		}
	}
}

func (m *DefaultTaskManager) Shutdown() {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel = nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	m.set.ClearAll()
}

func (m *DefaultTaskManager) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *DefaultTaskManager) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}
