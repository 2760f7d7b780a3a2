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

package system

import (
	"net/http"
	"runtime"

	"golang.org/x/net/context"

	"github.com/gostor/samtgt/pkg/api"
	"github.com/gostor/samtgt/pkg/apiserver/httputils"
	"github.com/gostor/samtgt/pkg/apiserver/router"
	"github.com/gostor/samtgt/pkg/version"
)

type systemRouter struct {
	metrics http.Handler
	routes  []router.Route
}

// NewRouter serves the daemon version and, when metrics is not nil, the
// Prometheus metrics.
func NewRouter(metrics http.Handler) router.Router {
	r := &systemRouter{metrics: metrics}
	r.routes = []router.Route{
		router.NewGetRoute("/version", r.getVersion),
	}
	if metrics != nil {
		r.routes = append(r.routes, router.NewGetRoute("/metrics", r.getMetrics))
	}
	return r
}

func (r *systemRouter) Routes() []router.Route {
	return r.routes
}

func (r *systemRouter) getVersion(ctx context.Context, w http.ResponseWriter, req *http.Request, vars map[string]string) error {
	return httputils.WriteJSON(w, http.StatusOK, api.Version{
		Version:    version.VERSION,
		APIVersion: httputils.VersionFromContext(ctx),
		GitCommit:  version.GitCommit,
		GoVersion:  runtime.Version(),
		Os:         runtime.GOOS,
		Arch:       runtime.GOARCH,
	})
}

func (r *systemRouter) getMetrics(ctx context.Context, w http.ResponseWriter, req *http.Request, vars map[string]string) error {
	r.metrics.ServeHTTP(w, req)
	return nil
}
