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

package target

import (
	"net/http"

	"golang.org/x/net/context"

	"github.com/gostor/samtgt/pkg/api"
	"github.com/gostor/samtgt/pkg/apiserver/httputils"
	"github.com/gostor/samtgt/pkg/apiserver/router"
)

// Backend is the target served by the router.
type Backend interface {
	Info() api.TargetInfo
	TaskManagement(ctx context.Context, req api.TaskManagementRequest) (api.TaskManagementResponse, error)
	Submit(ctx context.Context, req api.CommandRequest) (api.CommandResponse, error)
}

// targetRouter is a router to talk with the target
type targetRouter struct {
	backend Backend
	routes  []router.Route
}

// NewRouter initializes a new target router
func NewRouter(b Backend) router.Router {
	r := &targetRouter{backend: b}
	r.initRoutes()
	return r
}

// Routes returns the available routes to the target
func (r *targetRouter) Routes() []router.Route {
	return r.routes
}

// initRoutes initializes the routes in target router
func (r *targetRouter) initRoutes() {
	r.routes = []router.Route{
		// GET
		router.NewGetRoute("/target/info", r.getTargetInfo),
		// POST
		router.NewPostRoute("/target/tmf", r.postTaskManagement),
		router.NewPostRoute("/target/command", r.postCommand),
	}
}

func (r *targetRouter) getTargetInfo(ctx context.Context, w http.ResponseWriter, req *http.Request, vars map[string]string) error {
	return httputils.WriteJSON(w, http.StatusOK, r.backend.Info())
}

func (r *targetRouter) postTaskManagement(ctx context.Context, w http.ResponseWriter, req *http.Request, vars map[string]string) error {
	tmf := api.TaskManagementRequest{Nexus: api.NewITNexus("", "")}
	if err := httputils.ReadJSON(req, &tmf); err != nil {
		return err
	}
	resp, err := r.backend.TaskManagement(ctx, tmf)
	if err != nil {
		return err
	}
	return httputils.WriteJSON(w, http.StatusOK, resp)
}

func (r *targetRouter) postCommand(ctx context.Context, w http.ResponseWriter, req *http.Request, vars map[string]string) error {
	cmd := api.CommandRequest{TaskTag: api.NoTaskTag}
	if err := httputils.ReadJSON(req, &cmd); err != nil {
		return err
	}
	resp, err := r.backend.Submit(ctx, cmd)
	if err != nil {
		return err
	}
	return httputils.WriteJSON(w, http.StatusOK, resp)
}
