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

// TaskManagementFunction is a SAM-2 task management function.
type TaskManagementFunction int

const (
	AbortTask TaskManagementFunction = iota
	AbortTaskSet
	ClearACA
	ClearTaskSet
	LogicalUnitReset
	TargetReset
	Wakeup
)

var tmfNames = map[TaskManagementFunction]string{
	AbortTask:        "ABORT_TASK",
	AbortTaskSet:     "ABORT_TASK_SET",
	ClearACA:         "CLEAR_ACA",
	ClearTaskSet:     "CLEAR_TASK_SET",
	LogicalUnitReset: "LOGICAL_UNIT_RESET",
	TargetReset:      "TARGET_RESET",
	Wakeup:           "WAKEUP",
}

func (f TaskManagementFunction) String() string {
	if s, ok := tmfNames[f]; ok {
		return s
	}
	return fmt.Sprintf("TaskManagementFunction(%d)", int(f))
}

// ParseTaskManagementFunction accepts the function name in any case, with
// dashes or underscores.
func ParseTaskManagementFunction(s string) (TaskManagementFunction, error) {
	norm := strings.ReplaceAll(strings.ToUpper(s), "-", "_")
	for f, name := range tmfNames {
		if name == norm {
			return f, nil
		}
	}
	return AbortTask, fmt.Errorf("bad parameter: unknown task management function %q", s)
}

// TaskServiceResponse is the outcome of a task management function.
type TaskServiceResponse int

const (
	FunctionComplete TaskServiceResponse = iota
	FunctionRejected
	ServiceDeliveryOrTargetFailure
)

func (r TaskServiceResponse) String() string {
	switch r {
	case FunctionComplete:
		return "FUNCTION_COMPLETE"
	case FunctionRejected:
		return "FUNCTION_REJECTED"
	case ServiceDeliveryOrTargetFailure:
		return "SERVICE_DELIVERY_OR_TARGET_FAILURE"
	}
	return fmt.Sprintf("TaskServiceResponse(%d)", int(r))
}
