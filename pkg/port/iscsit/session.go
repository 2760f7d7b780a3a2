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

// Package iscsit binds iSCSI sessions to the scheduling core: CmdSN
// ordering, I_T nexus naming and task management code mapping.
package iscsit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	uuid "github.com/satori/go.uuid"
	log "github.com/sirupsen/logrus"

	"github.com/gostor/samtgt/pkg/api"
	"github.com/gostor/samtgt/pkg/port"
	"github.com/gostor/samtgt/pkg/util"
)

var ErrSessionClosed = errors.New("session closed")

// SessionConfig names the two ends of a session.
type SessionConfig struct {
	Initiator string
	ISID      uint64
	Target    string
	TPGT      uint16
	// ExpCmdSN is the CmdSN negotiated at login.
	ExpCmdSN util.SerialNumber
	// MaxQueueCommand bounds the command window.
	MaxQueueCommand uint32
}

// InitiatorPortName returns the SCSI initiator port name of an iSCSI
// initiator: name + ",i," + ISID.
func InitiatorPortName(initiator string, isid uint64) string {
	return fmt.Sprintf("%s,i,0x%012x", initiator, isid)
}

// TargetPortName returns the SCSI target port name of an iSCSI target:
// name + ",t," + portal group tag.
func TargetPortName(target string, tpgt uint16) string {
	return fmt.Sprintf("%s,t,0x%04x", target, tpgt)
}

// Session is one I_T nexus. It numbers commands, orders them by CmdSN and
// hands them to the dispatcher.
type Session struct {
	ID         uuid.UUID
	nexus      api.Nexus
	dispatcher port.Dispatcher
	transport  api.TargetTransportPort
	sequencer  *CommandSequencer
	crn        uint64

	mu     sync.RWMutex
	closed bool
}

func NewSession(cfg SessionConfig, d port.Dispatcher, transport api.TargetTransportPort) *Session {
	s := &Session{
		ID: uuid.NewV4(),
		nexus: api.NewITNexus(
			InitiatorPortName(cfg.Initiator, cfg.ISID),
			TargetPortName(cfg.Target, cfg.TPGT),
		),
		dispatcher: d,
		transport:  transport,
		sequencer:  NewCommandSequencer(cfg.ExpCmdSN, cfg.MaxQueueCommand),
	}
	log.WithFields(log.Fields{"session": s.ID.String(), "nexus": s.nexus.String()}).Info("session opened")
	return s
}

// Nexus returns the I_T nexus of the session.
func (s *Session) Nexus() api.Nexus {
	return s.nexus
}

func (s *Session) Sequencer() *CommandSequencer {
	return s.sequencer
}

// NewCommand builds a command of this session with the next command
// reference number.
func (s *Session) NewCommand(lun, tag int64, attr api.TaskAttribute, cdb []byte, length uint32) *api.Command {
	return &api.Command{
		Nexus:                  api.NewITLQNexus(s.nexus.InitiatorPort, s.nexus.TargetPort, lun, tag),
		CommandReferenceNumber: atomic.AddUint64(&s.crn, 1),
		TaskAttribute:          attr,
		CDB:                    cdb,
		TransferLength:         length,
	}
}

// Submit hands cmd to the dispatcher in CmdSN order.
func (s *Session) Submit(cmdSN util.SerialNumber, immediate bool, cmd *api.Command) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrSessionClosed
	}
	return s.sequencer.Submit(cmdSN, immediate, func() {
		s.dispatcher.Enqueue(s.transport, cmd)
	})
}

// Execute runs a task management function on behalf of this session.
func (s *Session) Execute(ctx context.Context, fn api.TaskManagementFunction, lun, tag int64) api.TaskServiceResponse {
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return api.FunctionRejected
	}
	nexus := api.NewITLQNexus(s.nexus.InitiatorPort, s.nexus.TargetPort, lun, tag)
	return s.dispatcher.Execute(ctx, nexus, fn)
}

// TaskManagement serves an iSCSI task management request and returns the
// response code.
func (s *Session) TaskManagement(ctx context.Context, flags byte, lun, referencedTag int64) byte {
	fn, err := TaskFunction(flags)
	if err != nil {
		log.Warnf("session %s: %v", s.ID, err)
		return ISCSI_TMF_RSP_NOT_SUPPORTED
	}
	return TaskResponse(s.Execute(ctx, fn, lun, referencedTag))
}

// Close drops pending commands and aborts every task of the nexus.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	if n := s.sequencer.Discard(); n > 0 {
		log.Debugf("session %s: dropped %d pending command(s)", s.ID, n)
	}
	s.dispatcher.NexusLost(s.nexus)
	log.WithFields(log.Fields{"session": s.ID.String(), "nexus": s.nexus.String()}).Info("session closed")
}
