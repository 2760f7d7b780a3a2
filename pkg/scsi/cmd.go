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
	"github.com/gostor/samtgt/pkg/api"
	"github.com/gostor/samtgt/pkg/util"
)

const (
	CBD_GROUPID_0 = iota
	CBD_GROUPID_1
	CBD_GROUPID_2
	CBD_GROUPID_3
	CBD_GROUPID_4
	CBD_GROUPID_5
	CBD_GROUPID_6
	CBD_GROUPID_7
)

func SCSICDBGroupID(opcode byte) byte {
	return ((opcode >> 5) & 0x7)
}

// SCSICDBLength returns the CDB length implied by the opcode group.
func SCSICDBLength(opcode byte) (int, bool) {
	switch SCSICDBGroupID(opcode) {
	case CBD_GROUPID_0:
		return 6, true
	case CBD_GROUPID_1, CBD_GROUPID_2:
		return 10, true
	case CBD_GROUPID_4:
		return 16, true
	case CBD_GROUPID_5:
		return 12, true
	}
	return 0, false
}

// SCSICDBBufXLength returns the allocation or transfer length field of a CDB.
func SCSICDBBufXLength(scb []byte) (int64, bool) {
	var (
		opcode byte
		length int64
		group  byte
		ok     bool = true
	)
	if len(scb) == 0 {
		return 0, false
	}
	opcode = scb[0]
	group = SCSICDBGroupID(opcode)
	if n, known := SCSICDBLength(opcode); known && len(scb) < n {
		return 0, false
	}

	switch group {
	case CBD_GROUPID_0:
		length = int64(scb[4])
	case CBD_GROUPID_1, CBD_GROUPID_2:
		length = int64(util.GetUnalignedUint16(scb[7:9]))
	case CBD_GROUPID_4:
		length = int64(util.GetUnalignedUint32(scb[10:14]))
	case CBD_GROUPID_5:
		length = int64(util.GetUnalignedUint32(scb[6:10]))
	default:
		ok = false
	}
	return length, ok
}

// ReadWriteParams are the addressing fields of a READ or WRITE CDB.
type ReadWriteParams struct {
	LBA    uint64
	Blocks uint32
	FUA    bool
}

// ParseReadWrite decodes READ/WRITE 6, 10, 12 and 16.
func ParseReadWrite(cdb []byte) (ReadWriteParams, error) {
	var p ReadWriteParams
	if len(cdb) == 0 {
		return p, InvalidFieldError("empty cdb")
	}
	op := api.SCSICommandType(cdb[0])
	n, _ := SCSICDBLength(cdb[0])
	if len(cdb) < n {
		return p, InvalidFieldError("cdb too short for opcode %#x: %d", cdb[0], len(cdb))
	}
	switch op {
	case api.READ_6, api.WRITE_6:
		p.LBA = uint64(util.GetUnalignedUint32(cdb[0:4]) & 0x1fffff)
		p.Blocks = uint32(cdb[4])
		// a transfer length of 0 means 256 blocks
		if p.Blocks == 0 {
			p.Blocks = 256
		}
	case api.READ_10, api.WRITE_10:
		p.LBA = uint64(util.GetUnalignedUint32(cdb[2:6]))
		p.Blocks = uint32(util.GetUnalignedUint16(cdb[7:9]))
		p.FUA = cdb[1]&0x08 != 0
	case api.READ_12, api.WRITE_12:
		p.LBA = uint64(util.GetUnalignedUint32(cdb[2:6]))
		p.Blocks = util.GetUnalignedUint32(cdb[6:10])
		p.FUA = cdb[1]&0x08 != 0
	case api.READ_16, api.WRITE_16:
		p.LBA = util.GetUnalignedUint64(cdb[2:10])
		p.Blocks = util.GetUnalignedUint32(cdb[10:14])
		p.FUA = cdb[1]&0x08 != 0
	default:
		return p, InvalidOpcodeError(cdb[0])
	}
	return p, nil
}
