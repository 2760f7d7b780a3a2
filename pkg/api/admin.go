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

// TargetInfo describes the running target.
type TargetInfo struct {
	Name    string  `json:"name"`
	ID      string  `json:"id"`
	Running bool    `json:"running"`
	LUNs    []int64 `json:"luns"`
}

// LogicalUnitCreateRequest asks the target to create a buffered logical unit.
type LogicalUnitCreateRequest struct {
	LUN         int64  `json:"lun"`
	Storage     string `json:"storage"`
	Path        string `json:"path"`
	BlockSize   uint32 `json:"block_size,omitempty"`
	Size        uint64 `json:"size,omitempty"`
	Threads     int    `json:"threads,omitempty"`
	QueueLength int    `json:"queue_length,omitempty"`
}

// LogicalUnitInfo describes a registered logical unit.
type LogicalUnitInfo struct {
	LUN       int64  `json:"lun"`
	Storage   string `json:"storage"`
	Path      string `json:"path"`
	BlockSize uint32 `json:"block_size"`
	Blocks    uint64 `json:"blocks"`
	Tasks     int    `json:"tasks"`
}

// LogicalUnitRemoveOptions holds parameters to remove a logical unit.
type LogicalUnitRemoveOptions struct {
	LUN int64
}

// TaskManagementRequest carries a task management function and its nexus.
type TaskManagementRequest struct {
	Function string `json:"function"`
	Nexus    Nexus  `json:"nexus"`
}

// TaskManagementResponse reports the outcome of a task management function.
type TaskManagementResponse struct {
	Function string `json:"function"`
	Response string `json:"response"`
}

// CommandRequest submits a raw CDB to the target through an in-process
// session. Data holds the data-out buffer of write commands.
type CommandRequest struct {
	Initiator     string `json:"initiator"`
	LUN           int64  `json:"lun"`
	TaskTag       int64  `json:"tag"`
	TaskAttribute string `json:"attribute,omitempty"`
	CDB           []byte `json:"cdb"`
	Data          []byte `json:"data,omitempty"`
	Length        uint32 `json:"length,omitempty"`
}

// CommandResponse is the completion of a CommandRequest.
type CommandResponse struct {
	Status byte   `json:"status"`
	Sense  []byte `json:"sense,omitempty"`
	Data   []byte `json:"data,omitempty"`
}

// Version describes the running daemon.
type Version struct {
	Version    string `json:"version"`
	APIVersion string `json:"api_version"`
	GitCommit  string `json:"git_commit"`
	GoVersion  string `json:"go_version"`
	Os         string `json:"os"`
	Arch       string `json:"arch"`
}
