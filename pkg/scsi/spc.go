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
	"bytes"
	"context"

	"github.com/gostor/samtgt/pkg/api"
	"github.com/gostor/samtgt/pkg/util"
)

var (
	SCSIVendorID  = "GOSTOR"
	SCSIProductID = "SAMTGT"
	SCSIVersion   = "1.0"
)

// peripheral qualifier 011b, device type 1fh: no logical unit here
const inquiryNoDevice = byte(TYPE_NO_LUN)

// DataInFunc builds the data-in payload of a command.
type DataInFunc func() ([]byte, error)

// NewDataInTask returns a task that sends the payload built by fn,
// truncated to allocation bytes.
func NewDataInTask(name string, port api.TargetTransportPort, cmd *api.Command, allocation int, fn DataInFunc) *BaseTask {
	return NewBaseTask(name, port, cmd, func(ctx context.Context) error {
		data, err := fn()
		if err != nil {
			return err
		}
		if allocation >= 0 && len(data) > allocation {
			data = data[:allocation]
		}
		if len(data) == 0 {
			return nil
		}
		return port.WriteData(ctx, cmd.Nexus, cmd.CommandReferenceNumber, data)
	})
}

// InquiryAllocationLength returns the allocation length of an INQUIRY CDB.
func InquiryAllocationLength(cdb []byte) (int, error) {
	if len(cdb) < 6 {
		return 0, InvalidFieldError("inquiry cdb too short: %d", len(cdb))
	}
	return int(util.GetUnalignedUint16(cdb[3:5])), nil
}

// StandardInquiry builds standard INQUIRY data with the given peripheral
// byte.
func StandardInquiry(peripheral byte) []byte {
	buf := &bytes.Buffer{}
	buf.WriteByte(peripheral)
	buf.WriteByte(0x00)
	// SPC-3
	buf.WriteByte(0x05)
	// response data format 2, HiSup
	buf.WriteByte(0x12)
	// additional length, fixed below
	buf.WriteByte(0x00)
	buf.WriteByte(0x00)
	buf.WriteByte(0x00)
	// CmdQue
	buf.WriteByte(0x02)
	buf.Write(util.StringToByte(SCSIVendorID, 8))
	buf.Write(util.StringToByte(SCSIProductID, 16))
	buf.Write(util.StringToByte(SCSIVersion, 4))
	data := buf.Bytes()
	data[4] = byte(len(data) - 5)
	return data
}

// ReportLuns encodes a REPORT LUNS parameter list. LUNs below 256 use
// peripheral device addressing and larger ones flat space addressing.
func ReportLuns(luns []int64) []byte {
	buf := &bytes.Buffer{}
	buf.Write(util.MarshalUint32(uint32(8 * len(luns))))
	buf.Write(make([]byte, 4))
	for _, lun := range luns {
		entry := make([]byte, 8)
		if lun < 256 {
			entry[1] = byte(lun)
		} else {
			entry[0] = 0x40 | byte(lun>>8)&0x3f
			entry[1] = byte(lun)
		}
		buf.Write(entry)
	}
	return buf.Bytes()
}

// LUNLister lists the logical units known to a target.
type LUNLister interface {
	LogicalUnits() []int64
}

// NewTargetTaskFactory serves commands that address no logical unit.
func NewTargetTaskFactory(luns LUNLister) TaskFactory {
	return TaskFactoryFunc(func(port api.TargetTransportPort, cmd *api.Command) (Task, error) {
		cdb := cmd.CDB
		switch cmd.Opcode() {
		case api.TEST_UNIT_READY:
			return NewBaseTask("test unit ready", port, cmd, nil), nil
		case api.INQUIRY:
			alloc, err := InquiryAllocationLength(cdb)
			if err != nil {
				return nil, err
			}
			if cdb[1]&0x01 != 0 {
				return nil, InvalidFieldError("no vital product data without a logical unit")
			}
			return NewDataInTask("inquiry", port, cmd, alloc, func() ([]byte, error) {
				return StandardInquiry(inquiryNoDevice), nil
			}), nil
		case api.REPORT_LUNS:
			if len(cdb) < 12 {
				return nil, InvalidFieldError("report luns cdb too short: %d", len(cdb))
			}
			alloc := util.GetUnalignedUint32(cdb[6:10])
			if alloc < 16 {
				return nil, InvalidFieldError("report luns allocation length %d", alloc)
			}
			return NewDataInTask("report luns", port, cmd, int(alloc), func() ([]byte, error) {
				return ReportLuns(luns.LogicalUnits()), nil
			}), nil
		case api.REQUEST_SENSE:
			if len(cdb) < 6 {
				return nil, InvalidFieldError("request sense cdb too short: %d", len(cdb))
			}
			return NewDataInTask("request sense", port, cmd, int(cdb[4]), func() ([]byte, error) {
				return BuildSenseData(NO_SENSE, 0), nil
			}), nil
		}
		return nil, InvalidOpcodeError(byte(cmd.Opcode()))
	})
}
