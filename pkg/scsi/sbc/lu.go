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

package sbc

import (
	"context"

	"github.com/gostor/samtgt/pkg/api"
	"github.com/gostor/samtgt/pkg/scsi"
)

// LogicalUnit is a buffered block logical unit: a scheduling core whose
// tasks read and write a backing store.
type LogicalUnit struct {
	*scsi.DefaultLogicalUnit
	device *Device
}

type Option func(*Device)

// WithSerial sets the unit serial number reported in VPD page 0x80.
func WithSerial(serial string) Option {
	return func(d *Device) {
		d.serial = serial
	}
}

// NewBufferedLogicalUnit builds a logical unit over an open store.
func NewBufferedLogicalUnit(lun int64, store api.BackingStore, blockSize uint32, cfg scsi.LogicalUnitConfig, opts ...Option) (*LogicalUnit, error) {
	d, err := NewDevice(lun, store, blockSize)
	if err != nil {
		return nil, err
	}
	d.metrics = cfg.Metrics
	for _, opt := range opts {
		opt(d)
	}
	return &LogicalUnit{
		DefaultLogicalUnit: scsi.NewLogicalUnit(lun, d, cfg),
		device:             d,
	}, nil
}

func (lu *LogicalUnit) Device() *Device {
	return lu.device
}

// Reset aborts every task and drops the reservation.
func (lu *LogicalUnit) Reset(ctx context.Context) api.TaskServiceResponse {
	resp := lu.DefaultLogicalUnit.Reset(ctx)
	lu.device.reservation.Clear()
	return resp
}

// NexusLost aborts the tasks of nexus and releases its reservation.
func (lu *LogicalUnit) NexusLost(nexus api.Nexus) {
	lu.DefaultLogicalUnit.NexusLost(nexus)
	lu.device.reservation.Release(nexus)
}

// Close stops the unit and closes its backing store.
func (lu *LogicalUnit) Close() error {
	lu.Stop()
	return lu.device.store.Close()
}
