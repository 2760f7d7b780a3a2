/*
Copyright 2017 The GoStor Authors All rights reserved.

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

package iscsit

import (
	"container/heap"
	"errors"
	"fmt"
	"sync"

	"github.com/gostor/samtgt/pkg/util"
	log "github.com/sirupsen/logrus"
)

const (
	MAX_QUEUE_CMD_MIN = 1
	MAX_QUEUE_CMD_DEF = 128
	MAX_QUEUE_CMD_MAX = 512
)

var (
	ErrCmdSNOutOfWindow = errors.New("cmdsn outside command window")
	ErrDuplicateCmdSN   = errors.New("cmdsn already pending")
)

type pendingCommand struct {
	cmdSN   util.SerialNumber
	deliver func()
}

type pendingQueue []*pendingCommand

func (q pendingQueue) Len() int { return len(q) }

func (q pendingQueue) Less(i, j int) bool {
	return q[i].cmdSN.Less(q[j].cmdSN)
}

func (q pendingQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
}

func (q *pendingQueue) Push(x interface{}) {
	*q = append(*q, x.(*pendingCommand))
}

func (q *pendingQueue) Pop() interface{} {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[0 : n-1]
	return item
}

// CommandSequencer delivers the commands of a session in CmdSN order.
// Commands ahead of ExpCmdSN wait until the gap is filled; commands outside
// [ExpCmdSN, MaxCmdSN] are refused.
type CommandSequencer struct {
	mu       sync.Mutex
	expCmdSN util.SerialNumber
	window   uint32
	pending  pendingQueue
	seen     map[util.SerialNumber]bool
}

// NewCommandSequencer expects expCmdSN next and accepts up to window
// commands beyond it.
func NewCommandSequencer(expCmdSN util.SerialNumber, window uint32) *CommandSequencer {
	if window < MAX_QUEUE_CMD_MIN {
		window = MAX_QUEUE_CMD_DEF
	}
	if window > MAX_QUEUE_CMD_MAX {
		window = MAX_QUEUE_CMD_MAX
	}
	return &CommandSequencer{
		expCmdSN: expCmdSN,
		window:   window,
		seen:     make(map[util.SerialNumber]bool),
	}
}

func (s *CommandSequencer) ExpCmdSN() util.SerialNumber {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expCmdSN
}

// MaxCmdSN is the last CmdSN the initiator may use.
func (s *CommandSequencer) MaxCmdSN() util.SerialNumber {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expCmdSN.Add(s.window - 1)
}

// Pending returns the number of commands waiting for a gap to fill.
func (s *CommandSequencer) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Submit delivers a command once every command before it was delivered.
// Immediate commands are delivered at once and do not advance ExpCmdSN.
// deliver runs with the sequencer locked and must not block.
func (s *CommandSequencer) Submit(cmdSN util.SerialNumber, immediate bool, deliver func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if immediate {
		deliver()
		return nil
	}
	d := cmdSN.Compare(s.expCmdSN)
	if d < 0 || d >= int64(s.window) {
		return fmt.Errorf("%w: %s not in [%s, %s]", ErrCmdSNOutOfWindow, cmdSN, s.expCmdSN, s.expCmdSN.Add(s.window-1))
	}
	if d > 0 {
		if s.seen[cmdSN] {
			return fmt.Errorf("%w: %s", ErrDuplicateCmdSN, cmdSN)
		}
		log.Debugf("cmdsn %s queued, expecting %s", cmdSN, s.expCmdSN)
		s.seen[cmdSN] = true
		heap.Push(&s.pending, &pendingCommand{cmdSN: cmdSN, deliver: deliver})
		return nil
	}

	deliver()
	s.expCmdSN.Increment()
	for len(s.pending) > 0 && s.pending[0].cmdSN == s.expCmdSN {
		next := heap.Pop(&s.pending).(*pendingCommand)
		delete(s.seen, next.cmdSN)
		next.deliver()
		s.expCmdSN.Increment()
	}
	return nil
}

// Discard drops every pending command and returns how many were dropped.
func (s *CommandSequencer) Discard() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.pending)
	s.pending = nil
	s.seen = make(map[util.SerialNumber]bool)
	return n
}
