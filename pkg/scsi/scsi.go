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

// Package scsi schedules SCSI commands. Commands are routed to logical
// units, ordered per SAM-2 task attributes in task sets, and executed by
// task managers on bounded worker pools.
package scsi

var (
	DefaultBlockShift uint = 9
	DefaultBlockSize       = uint32(1) << DefaultBlockShift
)

type SCSIDeviceType byte

const (
	TYPE_DISK      SCSIDeviceType = 0x00
	TYPE_TAPE      SCSIDeviceType = 0x01
	TYPE_PROCESSOR SCSIDeviceType = 0x03
	TYPE_MMC       SCSIDeviceType = 0x05
	TYPE_RBC       SCSIDeviceType = 0x0e
	TYPE_NO_LUN    SCSIDeviceType = 0x7f
)
