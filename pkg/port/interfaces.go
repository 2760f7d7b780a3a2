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

// Package port holds the transport side of the target: in-process ports
// and the sessions feeding commands to the scheduling core.
package port

import (
	"context"

	"github.com/gostor/samtgt/pkg/api"
)

// Dispatcher accepts decoded commands and task management functions.
// The task router of a target implements it.
type Dispatcher interface {
	Enqueue(port api.TargetTransportPort, cmd *api.Command)
	Execute(ctx context.Context, nexus api.Nexus, fn api.TaskManagementFunction) api.TaskServiceResponse
	NexusLost(nexus api.Nexus)
}
