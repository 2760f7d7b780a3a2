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

// Package sbc implements a block device logical unit over a backing store.
package sbc

import (
	"context"
	"fmt"

	"github.com/gostor/samtgt/pkg/api"
	"github.com/gostor/samtgt/pkg/metrics"
	"github.com/gostor/samtgt/pkg/scsi"
	"github.com/gostor/samtgt/pkg/transfer"
	"github.com/gostor/samtgt/pkg/util"
	log "github.com/sirupsen/logrus"
)

// constructor builds the task of one opcode.
type constructor func(d *Device, port api.TargetTransportPort, cmd *api.Command) (scsi.Task, error)

var commands = map[api.SCSICommandType]constructor{
	api.TEST_UNIT_READY:      testUnitReady,
	api.REQUEST_SENSE:        requestSense,
	api.INQUIRY:              inquiry,
	api.RESERVE:              reserve,
	api.RELEASE:              release,
	api.MODE_SENSE:           modeSense,
	api.START_STOP:           startStop,
	api.READ_CAPACITY:        readCapacity,
	api.SERVICE_ACTION_IN:    serviceActionIn,
	api.VERIFY_10:            verify,
	api.READ_6:               read,
	api.READ_10:              read,
	api.READ_12:              read,
	api.READ_16:              read,
	api.WRITE_6:              write,
	api.WRITE_10:             write,
	api.WRITE_12:             write,
	api.WRITE_16:             write,
	api.SYNCHRONIZE_CACHE:    syncCache,
	api.SYNCHRONIZE_CACHE_16: syncCache,
}

// opcodes allowed while another I_T nexus holds the reservation
var unreserved = map[api.SCSICommandType]bool{
	api.INQUIRY:       true,
	api.REQUEST_SENSE: true,
	api.RELEASE:       true,
	api.READ_CAPACITY: true,
}

// Device turns commands addressed to one block logical unit into tasks.
type Device struct {
	lun         int64
	store       api.BackingStore
	blockShift  uint
	serial      string
	reservation scsi.Reservation
	metrics     *metrics.Collector
}

func blockShift(blockSize uint32) (uint, error) {
	if blockSize == 0 {
		return scsi.DefaultBlockShift, nil
	}
	if blockSize < 512 || blockSize&(blockSize-1) != 0 {
		return 0, fmt.Errorf("bad parameter: block size %d is not a power of two of at least 512", blockSize)
	}
	var shift uint
	for 1<<shift < blockSize {
		shift++
	}
	return shift, nil
}

// NewDevice returns the task factory of a block device backed by an open
// store. A zero blockSize selects 512 bytes.
func NewDevice(lun int64, store api.BackingStore, blockSize uint32) (*Device, error) {
	if store == nil {
		return nil, fmt.Errorf("bad parameter: lun %d has no backing store", lun)
	}
	shift, err := blockShift(blockSize)
	if err != nil {
		return nil, err
	}
	return &Device{
		lun:        lun,
		store:      store,
		blockShift: shift,
		serial:     fmt.Sprintf("%s%08x", scsi.SCSIProductID, lun),
	}, nil
}

func (d *Device) BlockSize() uint32 {
	return 1 << d.blockShift
}

// Blocks returns the number of logical blocks of the store.
func (d *Device) Blocks() uint64 {
	return d.store.Size() >> d.blockShift
}

func (d *Device) Store() api.BackingStore {
	return d.store
}

func (d *Device) Reservation() *scsi.Reservation {
	return &d.reservation
}

func (d *Device) GetInstance(port api.TargetTransportPort, cmd *api.Command) (scsi.Task, error) {
	op := cmd.Opcode()
	build, ok := commands[op]
	if !ok {
		return nil, scsi.InvalidOpcodeError(byte(op))
	}
	if !unreserved[op] {
		if err := d.reservation.Check(cmd.Nexus); err != nil {
			return newStatusTask(port, cmd, err), nil
		}
	}
	return build(d, port, cmd)
}

// newStatusTask completes cmd with the status err maps to once it runs.
func newStatusTask(port api.TargetTransportPort, cmd *api.Command, err error) scsi.Task {
	return scsi.NewBaseTask("status", port, cmd, func(context.Context) error {
		return err
	})
}

// checkRange fails unless blocks blocks starting at lba lie on the device.
func (d *Device) checkRange(lba uint64, blocks uint32) error {
	total := d.Blocks()
	if lba > total || uint64(blocks) > total-lba {
		return scsi.LBAOutOfRangeError(lba, blocks)
	}
	return nil
}

func (d *Device) offset(lba uint64) int64 {
	return int64(lba << d.blockShift)
}

func testUnitReady(d *Device, port api.TargetTransportPort, cmd *api.Command) (scsi.Task, error) {
	return scsi.NewBaseTask("test unit ready", port, cmd, nil), nil
}

func startStop(d *Device, port api.TargetTransportPort, cmd *api.Command) (scsi.Task, error) {
	return scsi.NewBaseTask("start stop unit", port, cmd, nil), nil
}

func requestSense(d *Device, port api.TargetTransportPort, cmd *api.Command) (scsi.Task, error) {
	if len(cmd.CDB) < 6 {
		return nil, scsi.InvalidFieldError("request sense cdb too short: %d", len(cmd.CDB))
	}
	return scsi.NewDataInTask("request sense", port, cmd, int(cmd.CDB[4]), func() ([]byte, error) {
		return scsi.BuildSenseData(scsi.NO_SENSE, 0), nil
	}), nil
}

func inquiry(d *Device, port api.TargetTransportPort, cmd *api.Command) (scsi.Task, error) {
	alloc, err := scsi.InquiryAllocationLength(cmd.CDB)
	if err != nil {
		return nil, err
	}
	evpd := cmd.CDB[1]&0x01 != 0
	page := cmd.CDB[2]
	peripheral := byte(scsi.TYPE_DISK)
	if !evpd {
		if page != 0 {
			return nil, scsi.InvalidFieldError("page code %#x without evpd", page)
		}
		return scsi.NewDataInTask("inquiry", port, cmd, alloc, func() ([]byte, error) {
			return scsi.StandardInquiry(peripheral), nil
		}), nil
	}
	var data []byte
	switch page {
	case 0x00:
		// supported pages
		data = []byte{peripheral, 0x00, 0x00, 0x02, 0x00, 0x80}
	case 0x80:
		// unit serial number
		serial := []byte(d.serial)
		data = append([]byte{peripheral, 0x80, 0x00, byte(len(serial))}, serial...)
	default:
		return nil, scsi.InvalidFieldError("unsupported vpd page %#x", page)
	}
	return scsi.NewDataInTask("inquiry vpd", port, cmd, alloc, func() ([]byte, error) {
		return data, nil
	}), nil
}

func modeSense(d *Device, port api.TargetTransportPort, cmd *api.Command) (scsi.Task, error) {
	if len(cmd.CDB) < 6 {
		return nil, scsi.InvalidFieldError("mode sense cdb too short: %d", len(cmd.CDB))
	}
	// header only: no block descriptors, no pages
	return scsi.NewDataInTask("mode sense", port, cmd, int(cmd.CDB[4]), func() ([]byte, error) {
		return []byte{0x03, 0x00, 0x00, 0x00}, nil
	}), nil
}

func reserve(d *Device, port api.TargetTransportPort, cmd *api.Command) (scsi.Task, error) {
	return scsi.NewBaseTask("reserve", port, cmd, func(context.Context) error {
		return d.reservation.Reserve(cmd.Nexus)
	}), nil
}

func release(d *Device, port api.TargetTransportPort, cmd *api.Command) (scsi.Task, error) {
	return scsi.NewBaseTask("release", port, cmd, func(context.Context) error {
		d.reservation.Release(cmd.Nexus)
		return nil
	}), nil
}

func readCapacity(d *Device, port api.TargetTransportPort, cmd *api.Command) (scsi.Task, error) {
	if len(cmd.CDB) < 10 {
		return nil, scsi.InvalidFieldError("read capacity cdb too short: %d", len(cmd.CDB))
	}
	return scsi.NewDataInTask("read capacity", port, cmd, 8, func() ([]byte, error) {
		last := lastLBA(d.Blocks())
		if last > 0xffffffff {
			last = 0xffffffff
		}
		data := append(util.MarshalUint32(uint32(last)), util.MarshalUint32(d.BlockSize())...)
		return data, nil
	}), nil
}

func lastLBA(blocks uint64) uint64 {
	if blocks == 0 {
		return 0
	}
	return blocks - 1
}

func serviceActionIn(d *Device, port api.TargetTransportPort, cmd *api.Command) (scsi.Task, error) {
	if len(cmd.CDB) < 16 {
		return nil, scsi.InvalidFieldError("service action in cdb too short: %d", len(cmd.CDB))
	}
	if sa := cmd.CDB[1] & 0x1f; sa != api.SAI_READ_CAPACITY_16 {
		return nil, scsi.InvalidFieldError("unsupported service action %#x", sa)
	}
	alloc := int(util.GetUnalignedUint32(cmd.CDB[10:14]))
	return scsi.NewDataInTask("read capacity 16", port, cmd, alloc, func() ([]byte, error) {
		data := make([]byte, 32)
		copy(data[0:8], util.MarshalUint64(lastLBA(d.Blocks())))
		copy(data[8:12], util.MarshalUint32(d.BlockSize()))
		return data, nil
	}), nil
}

func verify(d *Device, port api.TargetTransportPort, cmd *api.Command) (scsi.Task, error) {
	if len(cmd.CDB) < 10 {
		return nil, scsi.InvalidFieldError("verify cdb too short: %d", len(cmd.CDB))
	}
	lba := uint64(util.GetUnalignedUint32(cmd.CDB[2:6]))
	blocks := uint32(util.GetUnalignedUint16(cmd.CDB[7:9]))
	if err := d.checkRange(lba, blocks); err != nil {
		return nil, err
	}
	return scsi.NewBaseTask("verify", port, cmd, nil), nil
}

// transferLength caps a transfer at the expected data length of cmd.
func transferLength(cmd *api.Command) int64 {
	if cmd.TransferLength == 0 {
		return -1
	}
	return int64(cmd.TransferLength)
}

func read(d *Device, port api.TargetTransportPort, cmd *api.Command) (scsi.Task, error) {
	p, err := scsi.ParseReadWrite(cmd.CDB)
	if err != nil {
		return nil, err
	}
	if err := d.checkRange(p.LBA, p.Blocks); err != nil {
		return nil, err
	}
	stages := transfer.Plan(transfer.Read, p.LBA, p.Blocks, d.BlockSize(), transferLength(cmd))
	return scsi.NewBaseTask("read", port, cmd, func(ctx context.Context) error {
		return transfer.Execute(ctx, stages, func(ctx context.Context, s transfer.Stage) error {
			buf, err := d.store.Read(d.offset(s.LBA), s.Length)
			if err != nil {
				log.Errorf("lun %d: %s: %v", d.lun, s, err)
				return scsi.ReadError(err)
			}
			d.stage(transfer.Read)
			return port.WriteData(ctx, cmd.Nexus, cmd.CommandReferenceNumber, buf)
		})
	}), nil
}

func write(d *Device, port api.TargetTransportPort, cmd *api.Command) (scsi.Task, error) {
	p, err := scsi.ParseReadWrite(cmd.CDB)
	if err != nil {
		return nil, err
	}
	if err := d.checkRange(p.LBA, p.Blocks); err != nil {
		return nil, err
	}
	stages := transfer.Plan(transfer.Write, p.LBA, p.Blocks, d.BlockSize(), transferLength(cmd))
	return scsi.NewBaseTask("write", port, cmd, func(ctx context.Context) error {
		err := transfer.Execute(ctx, stages, func(ctx context.Context, s transfer.Stage) error {
			buf := make([]byte, s.Length)
			if err := port.ReadData(ctx, cmd.Nexus, cmd.CommandReferenceNumber, buf); err != nil {
				return err
			}
			if err := d.store.Write(buf, d.offset(s.LBA)); err != nil {
				log.Errorf("lun %d: %s: %v", d.lun, s, err)
				return scsi.WriteError(err)
			}
			d.stage(transfer.Write)
			return nil
		})
		if err != nil || !p.FUA {
			return err
		}
		if err := d.store.DataSync(d.offset(p.LBA), int64(p.Blocks)<<d.blockShift); err != nil {
			return scsi.WriteError(err)
		}
		return nil
	}), nil
}

func syncCache(d *Device, port api.TargetTransportPort, cmd *api.Command) (scsi.Task, error) {
	var (
		lba    uint64
		blocks uint32
		cdb    = cmd.CDB
	)
	switch cmd.Opcode() {
	case api.SYNCHRONIZE_CACHE:
		if len(cdb) < 10 {
			return nil, scsi.InvalidFieldError("synchronize cache cdb too short: %d", len(cdb))
		}
		lba = uint64(util.GetUnalignedUint32(cdb[2:6]))
		blocks = uint32(util.GetUnalignedUint16(cdb[7:9]))
	default:
		if len(cdb) < 16 {
			return nil, scsi.InvalidFieldError("synchronize cache 16 cdb too short: %d", len(cdb))
		}
		lba = util.GetUnalignedUint64(cdb[2:10])
		blocks = util.GetUnalignedUint32(cdb[10:14])
	}
	if err := d.checkRange(lba, blocks); err != nil {
		return nil, err
	}
	return scsi.NewBaseTask("synchronize cache", port, cmd, func(context.Context) error {
		// zero blocks means up to the end of the device
		length := int64(blocks) << d.blockShift
		if blocks == 0 {
			length = int64(d.store.Size()) - d.offset(lba)
		}
		if err := d.store.DataSync(d.offset(lba), length); err != nil {
			return scsi.WriteError(err)
		}
		return nil
	}), nil
}

func (d *Device) stage(dir transfer.Direction) {
	d.metrics.TransferStage(dir.String())
}
