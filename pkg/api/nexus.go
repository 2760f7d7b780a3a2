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

const (
	// NoLUN marks a nexus that addresses no logical unit.
	NoLUN int64 = -1
	// NoTaskTag marks a nexus without a task tag (I_T or I_T_L).
	NoTaskTag int64 = -1
)

// Nexus identifies the scope of a command or a task management function:
// I_T, I_T_L or I_T_L_Q depending on which parts are set.
type Nexus struct {
	InitiatorPort string `json:"initiator"`
	TargetPort    string `json:"target"`
	LUN           int64  `json:"lun"`
	TaskTag       int64  `json:"tag"`
}

func NewITNexus(initiator, target string) Nexus {
	return Nexus{InitiatorPort: initiator, TargetPort: target, LUN: NoLUN, TaskTag: NoTaskTag}
}

func NewITLNexus(initiator, target string, lun int64) Nexus {
	return Nexus{InitiatorPort: initiator, TargetPort: target, LUN: lun, TaskTag: NoTaskTag}
}

func NewITLQNexus(initiator, target string, lun, tag int64) Nexus {
	return Nexus{InitiatorPort: initiator, TargetPort: target, LUN: lun, TaskTag: tag}
}

func (n Nexus) HasLUN() bool {
	return n.LUN >= 0
}

func (n Nexus) HasTaskTag() bool {
	return n.TaskTag >= 0
}

// ITNexus returns n reduced to its initiator and target ports.
func (n Nexus) ITNexus() Nexus {
	return NewITNexus(n.InitiatorPort, n.TargetPort)
}

// SameIT reports whether n and o share initiator and target ports.
func (n Nexus) SameIT(o Nexus) bool {
	return n.InitiatorPort == o.InitiatorPort && n.TargetPort == o.TargetPort
}

func (n Nexus) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "I_T")
	if n.HasLUN() {
		fmt.Fprintf(&b, "_L")
	}
	if n.HasTaskTag() {
		fmt.Fprintf(&b, "_Q")
	}
	fmt.Fprintf(&b, "[%s,%s", n.InitiatorPort, n.TargetPort)
	if n.HasLUN() {
		fmt.Fprintf(&b, ",%d", n.LUN)
	}
	if n.HasTaskTag() {
		fmt.Fprintf(&b, ",%#x", n.TaskTag)
	}
	b.WriteString("]")
	return b.String()
}
