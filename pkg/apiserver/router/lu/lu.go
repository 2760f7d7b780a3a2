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

package lu

import (
	"net/http"

	log "github.com/sirupsen/logrus"
	"golang.org/x/net/context"

	"github.com/gostor/samtgt/pkg/api"
	"github.com/gostor/samtgt/pkg/apiserver/httputils"
	"github.com/gostor/samtgt/pkg/apiserver/router"
)

// Backend manages the logical units of the target.
type Backend interface {
	CreateLogicalUnit(req api.LogicalUnitCreateRequest) (api.LogicalUnitInfo, error)
	RemoveLogicalUnit(lun int64) error
	LogicalUnits() []api.LogicalUnitInfo
}

// luRouter is a router to talk with the logical unit backend
type luRouter struct {
	backend Backend
	routes  []router.Route
}

// NewRouter initializes a new logical unit router
func NewRouter(b Backend) router.Router {
	r := &luRouter{backend: b}
	r.initRoutes()
	return r
}

// Routes returns the available routes to the logical unit backend
func (r *luRouter) Routes() []router.Route {
	return r.routes
}

// initRoutes initializes the routes in lu router
func (r *luRouter) initRoutes() {
	r.routes = []router.Route{
		// GET
		router.NewGetRoute("/lu/list", r.getLuList),
		// POST
		router.NewPostRoute("/lu/create", r.postLuCreate),
		// DELETE
		router.NewDeleteRoute("/lu/{lun:[0-9]+}", r.deleteLu),
	}
}

func (r *luRouter) getLuList(ctx context.Context, w http.ResponseWriter, req *http.Request, vars map[string]string) error {
	return httputils.WriteJSON(w, http.StatusOK, r.backend.LogicalUnits())
}

func (r *luRouter) postLuCreate(ctx context.Context, w http.ResponseWriter, req *http.Request, vars map[string]string) error {
	var create api.LogicalUnitCreateRequest
	if err := httputils.ReadJSON(req, &create); err != nil {
		return err
	}
	info, err := r.backend.CreateLogicalUnit(create)
	if err != nil {
		return err
	}
	return httputils.WriteJSON(w, http.StatusCreated, info)
}

func (r *luRouter) deleteLu(ctx context.Context, w http.ResponseWriter, req *http.Request, vars map[string]string) error {
	lun, err := httputils.LUNVar(vars)
	if err != nil {
		return err
	}
	if err := r.backend.RemoveLogicalUnit(lun); err != nil {
		return err
	}
	log.Debugf("logical unit %d removed by api request", lun)
	w.WriteHeader(http.StatusNoContent)
	return nil
}
