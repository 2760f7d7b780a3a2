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

package api

import (
	"context"
	"errors"
	"io"
)

type SCSICommandType byte

const (
	TEST_UNIT_READY      SCSICommandType = 0x00
	REQUEST_SENSE        SCSICommandType = 0x03
	READ_6               SCSICommandType = 0x08
	WRITE_6              SCSICommandType = 0x0a
	INQUIRY              SCSICommandType = 0x12
	RESERVE              SCSICommandType = 0x16
	RELEASE              SCSICommandType = 0x17
	MODE_SENSE           SCSICommandType = 0x1a
	START_STOP           SCSICommandType = 0x1b
	READ_CAPACITY        SCSICommandType = 0x25
	READ_10              SCSICommandType = 0x28
	WRITE_10             SCSICommandType = 0x2a
	VERIFY_10            SCSICommandType = 0x2f
	SYNCHRONIZE_CACHE    SCSICommandType = 0x35
	READ_16              SCSICommandType = 0x88
	WRITE_16             SCSICommandType = 0x8a
	SYNCHRONIZE_CACHE_16 SCSICommandType = 0x91
	SERVICE_ACTION_IN    SCSICommandType = 0x9e
	REPORT_LUNS          SCSICommandType = 0xa0
	READ_12              SCSICommandType = 0xa8
	WRITE_12             SCSICommandType = 0xaa
)

// Service actions of SERVICE ACTION IN(16).
const (
	SAI_READ_CAPACITY_16 byte = 0x10
)

const (
	SAM_STAT_GOOD                       byte = 0x00
	SAM_STAT_CHECK_CONDITION            byte = 0x02
	SAM_STAT_CONDITION_MET              byte = 0x04
	SAM_STAT_BUSY                       byte = 0x08
	SAM_STAT_INTERMEDIATE               byte = 0x10
	SAM_STAT_INTERMEDIATE_CONDITION_MET byte = 0x14
	SAM_STAT_RESERVATION_CONFLICT       byte = 0x18
	SAM_STAT_COMMAND_TERMINATED         byte = 0x22
	SAM_STAT_TASK_SET_FULL              byte = 0x28
	SAM_STAT_ACA_ACTIVE                 byte = 0x30
	SAM_STAT_TASK_ABORTED               byte = 0x40
)

// SAMStat is the status of a completed SCSI command.
type SAMStat struct {
	Stat byte
	Err  error
}

var (
	SAMStatGood                     = SAMStat{SAM_STAT_GOOD, nil}
	SAMStatCheckCondition           = SAMStat{SAM_STAT_CHECK_CONDITION, errors.New("check condition")}
	SAMStatConditionMet             = SAMStat{SAM_STAT_CONDITION_MET, errors.New("condition met")}
	SAMStatBusy                     = SAMStat{SAM_STAT_BUSY, errors.New("busy")}
	SAMStatIntermediate             = SAMStat{SAM_STAT_INTERMEDIATE, errors.New("intermediate")}
	SAMStatIntermediateConditionMet = SAMStat{SAM_STAT_INTERMEDIATE_CONDITION_MET, errors.New("intermediate condition met")}
	SAMStatReservationConflict      = SAMStat{SAM_STAT_RESERVATION_CONFLICT, errors.New("reservation conflict")}
	SAMStatCommandTerminated        = SAMStat{SAM_STAT_COMMAND_TERMINATED, errors.New("command terminated")}
	SAMStatTaskSetFull              = SAMStat{SAM_STAT_TASK_SET_FULL, errors.New("task set full")}
	SAMStatAcaActive                = SAMStat{SAM_STAT_ACA_ACTIVE, errors.New("aca active")}
	SAMStatTaskAborted              = SAMStat{SAM_STAT_TASK_ABORTED, errors.New("task aborted")}
)

func (s SAMStat) String() string {
	if s.Err == nil {
		return "good"
	}
	return s.Err.Error()
}

// TargetTransportPort is the transport side of a target. Tasks move their
// data and deliver their final status through it.
type TargetTransportPort interface {
	// ReadData fills buf with data-out sent by the initiator.
	ReadData(ctx context.Context, nexus Nexus, crn uint64, buf []byte) error
	// WriteData sends data-in to the initiator.
	WriteData(ctx context.Context, nexus Nexus, crn uint64, data []byte) error
	// TerminateDataTransfer cancels outstanding transfers of a command.
	TerminateDataTransfer(nexus Nexus, crn uint64)
	// WriteResponse delivers the final status of a command.
	WriteResponse(nexus Nexus, crn uint64, status SAMStat, senseData []byte)
}

// BackingStore is the storage a logical unit reads and writes blocks from.
type BackingStore interface {
	Open(path string) error
	Close() error
	Size() uint64
	Read(offset, tl int64) ([]byte, error)
	Write([]byte, int64) error
	DataSync(offset, tl int64) error
}

type ReaderWriterAt interface {
	io.ReaderAt
	io.WriterAt
}

// RemoteBackingStore is storage served by another process, plugged in
// through the "remote" backing store.
type RemoteBackingStore interface {
	ReaderWriterAt
	Sync() (int, error)
}
