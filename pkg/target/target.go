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

// Package target assembles a SCSI target: a task router, the buffered
// logical units behind it and in-process sessions for the admin API.
package target

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	uuid "github.com/satori/go.uuid"
	log "github.com/sirupsen/logrus"

	"github.com/gostor/samtgt/pkg/api"
	"github.com/gostor/samtgt/pkg/metrics"
	"github.com/gostor/samtgt/pkg/port"
	"github.com/gostor/samtgt/pkg/port/iscsit"
	"github.com/gostor/samtgt/pkg/scsi"
	_ "github.com/gostor/samtgt/pkg/scsi/backingstore" /* init lib */
	"github.com/gostor/samtgt/pkg/scsi/backingstore/remote"
	"github.com/gostor/samtgt/pkg/scsi/sbc"
	"github.com/gostor/samtgt/pkg/util"
)

const localPortName = "local"

// Options configures a Target.
type Options struct {
	Name string
	// Threads and QueueLength size the target-scope scheduler.
	Threads     int
	QueueLength int
	// Registry receives the target metrics. A nil registry uses a
	// private one.
	Registry *prometheus.Registry
	// RemoteStores are the stores a "remote" logical unit can attach to,
	// by name.
	RemoteStores map[string]api.RemoteBackingStore
}

type unit struct {
	lu      *sbc.LogicalUnit
	storage string
	path    string
}

type session struct {
	*iscsit.Session
	mu    sync.Mutex
	cmdSN util.SerialNumber
}

// next returns the CmdSN of the next command of the session.
func (s *session) next() util.SerialNumber {
	s.mu.Lock()
	defer s.mu.Unlock()
	sn := s.cmdSN
	s.cmdSN.Increment()
	return sn
}

// Target is a SCSI target device.
type Target struct {
	id      uuid.UUID
	name    string
	router  *scsi.DefaultTaskRouter
	metrics *metrics.Collector
	remotes map[string]api.RemoteBackingStore
	port    *port.LocalPort

	mu       sync.Mutex
	units    map[int64]*unit
	sessions map[string]*session
}

func New(opts Options) *Target {
	if opts.Name == "" {
		opts.Name = "iqn.2016-09.com.gostor:samtgt"
	}
	c := metrics.NewCollector(opts.Registry)
	t := &Target{
		id:       uuid.NewV4(),
		name:     opts.Name,
		metrics:  c,
		remotes:  opts.RemoteStores,
		port:     port.NewLocalPort(localPortName),
		units:    make(map[int64]*unit),
		sessions: make(map[string]*session),
	}
	t.router = scsi.NewTaskRouter(scsi.RouterConfig{
		Threads:     opts.Threads,
		QueueLength: opts.QueueLength,
		Metrics:     c,
	})
	return t
}

func (t *Target) Name() string {
	return t.name
}

// Router returns the task router; transports enqueue commands there.
func (t *Target) Router() *scsi.DefaultTaskRouter {
	return t.router
}

// MetricsHandler serves the target metrics.
func (t *Target) MetricsHandler() http.Handler {
	return t.metrics.Handler()
}

func (t *Target) Start() error {
	if err := t.router.Start(); err != nil {
		return err
	}
	log.WithFields(log.Fields{"target": t.name, "id": t.id.String()}).Info("target started")
	return nil
}

// Close ends every session, stops the router and closes the backing
// stores.
func (t *Target) Close() error {
	t.mu.Lock()
	sessions := t.sessions
	t.sessions = make(map[string]*session)
	units := t.units
	t.units = make(map[int64]*unit)
	t.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
	t.router.Stop()
	var firstErr error
	for lun, u := range units {
		if _, err := t.router.RemoveLogicalUnit(lun); err != nil {
			log.Warnf("target %s: %v", t.name, err)
		}
		if err := u.lu.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("lun %d: %v", lun, err)
		}
	}
	log.Infof("target %s stopped", t.name)
	return firstErr
}

func (t *Target) Info() api.TargetInfo {
	return api.TargetInfo{
		Name:    t.name,
		ID:      t.id.String(),
		Running: t.router.Running(),
		LUNs:    t.router.LogicalUnits(),
	}
}

func (t *Target) openStore(req api.LogicalUnitCreateRequest) (api.BackingStore, error) {
	if req.Storage == remote.RemoteBackingStorage {
		rs, ok := t.remotes[req.Path]
		if !ok {
			return nil, fmt.Errorf("remote store %q not found", req.Path)
		}
		store := remote.New(rs, req.Size)
		return store, store.Open(req.Path)
	}
	store, err := scsi.NewBackingStore(req.Storage)
	if err != nil {
		return nil, err
	}
	if err := store.Open(req.Path); err != nil {
		return nil, fmt.Errorf("bad parameter: %s %q: %v", req.Storage, req.Path, err)
	}
	return store, nil
}

// CreateLogicalUnit opens the backing store of req and registers a
// buffered logical unit over it.
func (t *Target) CreateLogicalUnit(req api.LogicalUnitCreateRequest) (api.LogicalUnitInfo, error) {
	if req.Storage == "" {
		return api.LogicalUnitInfo{}, fmt.Errorf("bad parameter: lun %d has no storage type", req.LUN)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.units[req.LUN]; ok {
		return api.LogicalUnitInfo{}, fmt.Errorf("lun %d: %w", req.LUN, scsi.ErrLogicalUnitExists)
	}

	store, err := t.openStore(req)
	if err != nil {
		return api.LogicalUnitInfo{}, err
	}
	lu, err := sbc.NewBufferedLogicalUnit(req.LUN, store, req.BlockSize, scsi.LogicalUnitConfig{
		Threads:     req.Threads,
		QueueLength: req.QueueLength,
		Metrics:     t.metrics,
	})
	if err != nil {
		store.Close()
		return api.LogicalUnitInfo{}, err
	}
	if err := t.router.RegisterLogicalUnit(req.LUN, lu); err != nil {
		lu.Close()
		return api.LogicalUnitInfo{}, err
	}
	u := &unit{lu: lu, storage: req.Storage, path: req.Path}
	t.units[req.LUN] = u
	log.WithFields(log.Fields{
		"lun":     req.LUN,
		"storage": req.Storage,
		"path":    req.Path,
	}).Infof("logical unit created: %d blocks of %d bytes", lu.Device().Blocks(), lu.Device().BlockSize())
	return u.info(req.LUN), nil
}

func (u *unit) info(lun int64) api.LogicalUnitInfo {
	d := u.lu.Device()
	return api.LogicalUnitInfo{
		LUN:       lun,
		Storage:   u.storage,
		Path:      u.path,
		BlockSize: d.BlockSize(),
		Blocks:    d.Blocks(),
		Tasks:     u.lu.TaskSet().Len(),
	}
}

// RemoveLogicalUnit unregisters a logical unit, aborting its tasks, and
// closes its store.
func (t *Target) RemoveLogicalUnit(lun int64) error {
	t.mu.Lock()
	u, ok := t.units[lun]
	delete(t.units, lun)
	t.mu.Unlock()
	if !ok {
		return fmt.Errorf("lun %d: %w", lun, scsi.ErrNoSuchLogicalUnit)
	}
	if _, err := t.router.RemoveLogicalUnit(lun); err != nil {
		return err
	}
	return u.lu.Close()
}

// LogicalUnits lists the logical units by LUN.
func (t *Target) LogicalUnits() []api.LogicalUnitInfo {
	t.mu.Lock()
	defer t.mu.Unlock()
	infos := make([]api.LogicalUnitInfo, 0, len(t.units))
	for lun, u := range t.units {
		infos = append(infos, u.info(lun))
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].LUN < infos[j].LUN })
	return infos
}

// session returns the in-process session of an initiator, opening it on
// first use.
func (t *Target) session(initiator string) (*session, error) {
	if initiator == "" {
		return nil, fmt.Errorf("bad parameter: initiator name is required")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sessions[initiator]
	if !ok {
		s = &session{
			Session: iscsit.NewSession(iscsit.SessionConfig{
				Initiator:       initiator,
				Target:          t.name,
				TPGT:            1,
				MaxQueueCommand: iscsit.MAX_QUEUE_CMD_DEF,
			}, t.router, t.port),
		}
		t.sessions[initiator] = s
	}
	return s, nil
}

// CloseSession logs an initiator out, aborting its tasks.
func (t *Target) CloseSession(initiator string) error {
	t.mu.Lock()
	s, ok := t.sessions[initiator]
	delete(t.sessions, initiator)
	t.mu.Unlock()
	if !ok {
		return fmt.Errorf("no such session for %q", initiator)
	}
	s.Close()
	return nil
}

// TaskManagement runs a task management function on behalf of the
// initiator named in the request.
func (t *Target) TaskManagement(ctx context.Context, req api.TaskManagementRequest) (api.TaskManagementResponse, error) {
	fn, err := api.ParseTaskManagementFunction(req.Function)
	if err != nil {
		return api.TaskManagementResponse{}, err
	}
	s, err := t.session(req.Nexus.InitiatorPort)
	if err != nil {
		return api.TaskManagementResponse{}, err
	}
	resp := s.Execute(ctx, fn, req.Nexus.LUN, req.Nexus.TaskTag)
	return api.TaskManagementResponse{Function: fn.String(), Response: resp.String()}, nil
}

// Submit runs one CDB through the session of req.Initiator and waits for
// its completion. A cancelled ctx aborts the task.
func (t *Target) Submit(ctx context.Context, req api.CommandRequest) (api.CommandResponse, error) {
	if len(req.CDB) == 0 {
		return api.CommandResponse{}, fmt.Errorf("bad parameter: empty cdb")
	}
	attr := api.Simple
	if req.TaskAttribute != "" {
		var err error
		if attr, err = api.ParseTaskAttribute(req.TaskAttribute); err != nil {
			return api.CommandResponse{}, err
		}
	}
	s, err := t.session(req.Initiator)
	if err != nil {
		return api.CommandResponse{}, err
	}

	length := req.Length
	if length == 0 {
		length = uint32(len(req.Data))
	}
	cmd := s.NewCommand(req.LUN, req.TaskTag, attr, req.CDB, length)
	done := t.port.Expect(cmd.Nexus, cmd.CommandReferenceNumber, req.Data)
	if err := s.Submit(s.next(), false, cmd); err != nil {
		t.port.Forget(cmd.Nexus, cmd.CommandReferenceNumber)
		return api.CommandResponse{}, err
	}

	select {
	case resp := <-done:
		return api.CommandResponse{
			Status: resp.Status.Stat,
			Sense:  resp.Sense,
			Data:   resp.Data,
		}, nil
	case <-ctx.Done():
		if cmd.Nexus.HasTaskTag() {
			s.Execute(context.Background(), api.AbortTask, cmd.Nexus.LUN, cmd.Nexus.TaskTag)
		}
		t.port.Forget(cmd.Nexus, cmd.CommandReferenceNumber)
		return api.CommandResponse{}, ctx.Err()
	}
}
