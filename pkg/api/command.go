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
	"fmt"
	"strings"
)

// TaskAttribute is the SAM-2 task attribute of a command.
type TaskAttribute int

const (
	Simple TaskAttribute = iota
	Ordered
	HeadOfQueue
	ACA
)

var taskAttributeNames = map[TaskAttribute]string{
	Simple:      "SIMPLE",
	Ordered:     "ORDERED",
	HeadOfQueue: "HEAD_OF_QUEUE",
	ACA:         "ACA",
}

func (a TaskAttribute) String() string {
	if s, ok := taskAttributeNames[a]; ok {
		return s
	}
	return fmt.Sprintf("TaskAttribute(%d)", int(a))
}

func ParseTaskAttribute(s string) (TaskAttribute, error) {
	for a, name := range taskAttributeNames {
		if strings.EqualFold(s, name) {
			return a, nil
		}
	}
	return Simple, fmt.Errorf("bad parameter: unknown task attribute %q", s)
}

// Command is a decoded SCSI command. It is never modified once created.
type Command struct {
	Nexus Nexus
	// CommandReferenceNumber is unique per process; it is not the wire CmdSN.
	CommandReferenceNumber uint64
	TaskAttribute          TaskAttribute
	// Priority 0 means no priority was requested.
	Priority uint8
	// CDB is the command descriptor block.
	CDB []byte
	// TransferLength is the expected data transfer length in bytes.
	TransferLength uint32
}

func (c *Command) Opcode() SCSICommandType {
	if len(c.CDB) == 0 {
		return TEST_UNIT_READY
	}
	return SCSICommandType(c.CDB[0])
}

func (c *Command) String() string {
	return fmt.Sprintf("cmd %d %s op=%#x attr=%s", c.CommandReferenceNumber, c.Nexus, byte(c.Opcode()), c.TaskAttribute)
}
