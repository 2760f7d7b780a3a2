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
	"errors"
	"fmt"
)

// Sense keys.
const (
	NO_SENSE        byte = 0x00
	RECOVERED_ERROR byte = 0x01
	NOT_READY       byte = 0x02
	MEDIUM_ERROR    byte = 0x03
	HARDWARE_ERROR  byte = 0x04
	ILLEGAL_REQUEST byte = 0x05
	UNIT_ATTENTION  byte = 0x06
	DATA_PROTECT    byte = 0x07
	ABORTED_COMMAND byte = 0x0b
	MISCOMPARE      byte = 0x0e
)

var senseKeyNames = map[byte]string{
	NO_SENSE:        "no sense",
	RECOVERED_ERROR: "recovered error",
	NOT_READY:       "not ready",
	MEDIUM_ERROR:    "medium error",
	HARDWARE_ERROR:  "hardware error",
	ILLEGAL_REQUEST: "illegal request",
	UNIT_ATTENTION:  "unit attention",
	DATA_PROTECT:    "data protect",
	ABORTED_COMMAND: "aborted command",
	MISCOMPARE:      "miscompare",
}

// SCSISubError is an additional sense code (high byte) and qualifier (low byte).
type SCSISubError uint16

const (
	ASC_WRITE_ERROR             SCSISubError = 0x0c00
	ASC_READ_ERROR              SCSISubError = 0x1100
	ASC_PARAMETER_LIST_LENGTH   SCSISubError = 0x1a00
	ASC_INVALID_OP_CODE         SCSISubError = 0x2000
	ASC_LBA_OUT_OF_RANGE        SCSISubError = 0x2100
	ASC_INVALID_FIELD_IN_CDB    SCSISubError = 0x2400
	ASC_LUN_NOT_SUPPORTED       SCSISubError = 0x2500
	ASC_INTERNAL_TGT_FAILURE    SCSISubError = 0x4400
	ASC_OVERLAPPED_COMMANDS     SCSISubError = 0x4e00
	ASC_COMMANDS_CLEARED_BY_TMF SCSISubError = 0x2f00
)

// Errors returned by task sets and logical units.
var (
	ErrTaskSetFull       = errors.New("task set full")
	ErrACAActive         = errors.New("aca task already in task set")
	ErrOverlappedCommand = errors.New("overlapped command: task tag in use")
	ErrNoSuchTask        = errors.New("no such task")
	ErrInvalidNexus      = errors.New("invalid nexus")
	ErrNoSuchLogicalUnit = errors.New("no such logical unit")
	ErrLogicalUnitExists = errors.New("conflict: logical unit already registered")
	ErrStopped           = errors.New("stopped")

	// ErrReservationConflict completes a command with RESERVATION CONFLICT.
	ErrReservationConflict = errors.New("reservation conflict")
)

// SenseError is a failed command together with the sense data describing it.
type SenseError struct {
	Key byte
	ASC SCSISubError
	msg string
}

func NewSenseError(key byte, asc SCSISubError, format string, args ...interface{}) *SenseError {
	return &SenseError{Key: key, ASC: asc, msg: fmt.Sprintf(format, args...)}
}

func (e *SenseError) Error() string {
	name := senseKeyNames[e.Key]
	if name == "" {
		name = fmt.Sprintf("sense key %#x", e.Key)
	}
	if e.msg == "" {
		return fmt.Sprintf("%s (asc %#04x)", name, uint16(e.ASC))
	}
	return fmt.Sprintf("%s (asc %#04x): %s", name, uint16(e.ASC), e.msg)
}

// Encode returns fixed format sense data, current error.
func (e *SenseError) Encode() []byte {
	return BuildSenseData(e.Key, e.ASC)
}

// BuildSenseData builds 18 bytes of fixed format sense data.
func BuildSenseData(key byte, asc SCSISubError) []byte {
	sense := make([]byte, 18)
	sense[0] = 0x70
	sense[2] = key & 0x0f
	// additional sense length
	sense[7] = 0x0a
	sense[12] = byte(asc >> 8)
	sense[13] = byte(asc)
	return sense
}

func InvalidOpcodeError(op byte) *SenseError {
	return NewSenseError(ILLEGAL_REQUEST, ASC_INVALID_OP_CODE, "invalid opcode %#x", op)
}

func InvalidFieldError(format string, args ...interface{}) *SenseError {
	return NewSenseError(ILLEGAL_REQUEST, ASC_INVALID_FIELD_IN_CDB, format, args...)
}

func LBAOutOfRangeError(lba uint64, blocks uint32) *SenseError {
	return NewSenseError(ILLEGAL_REQUEST, ASC_LBA_OUT_OF_RANGE, "lba %d + %d out of range", lba, blocks)
}

func LUNNotSupportedError(lun int64) *SenseError {
	return NewSenseError(ILLEGAL_REQUEST, ASC_LUN_NOT_SUPPORTED, "lun %d not supported", lun)
}

func OverlappedCommandsError(tag int64) *SenseError {
	return NewSenseError(ABORTED_COMMAND, ASC_OVERLAPPED_COMMANDS, "tag %#x in use", tag)
}

func InternalFailureError(err error) *SenseError {
	return NewSenseError(HARDWARE_ERROR, ASC_INTERNAL_TGT_FAILURE, "%v", err)
}

func ReadError(err error) *SenseError {
	return NewSenseError(MEDIUM_ERROR, ASC_READ_ERROR, "%v", err)
}

func WriteError(err error) *SenseError {
	return NewSenseError(MEDIUM_ERROR, ASC_WRITE_ERROR, "%v", err)
}
