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

package httputils

import (
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"strings"

	log "github.com/sirupsen/logrus"
	"golang.org/x/net/context"

	"github.com/gostor/samtgt/pkg/version"
)

type apiVersionKey struct{}

// APIVersionKey is the context key of the client's requested API version.
var APIVersionKey = apiVersionKey{}

// APIFunc is an adapter to allow the use of ordinary functions as API endpoints.
// Any function that has the appropriate signature can be register as a API endpoint (e.g. getVersion).
type APIFunc func(ctx context.Context, w http.ResponseWriter, r *http.Request, vars map[string]string) error

// MatchesContentType validates the content type against the expected one
func MatchesContentType(contentType, expectedType string) bool {
	mimetype, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		log.Errorf("Error parsing media type: %s error: %v", contentType, err)
	}
	return err == nil && mimetype == expectedType
}

// CheckForJSON makes sure that the request's Content-Type is application/json.
func CheckForJSON(r *http.Request) error {
	ct := r.Header.Get("Content-Type")

	// No Content-Type header is ok as long as there's no Body
	if ct == "" {
		if r.Body == nil || r.ContentLength == 0 {
			return nil
		}
	}

	// Otherwise it better be json
	if MatchesContentType(ct, "application/json") {
		return nil
	}
	return fmt.Errorf("bad parameter: Content-Type specified (%s) must be 'application/json'", ct)
}

// ReadJSON decodes the JSON body of r into v.
func ReadJSON(r *http.Request, v interface{}) error {
	if err := CheckForJSON(r); err != nil {
		return err
	}
	if r.Body == nil {
		return fmt.Errorf("bad parameter: request body is empty")
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("bad parameter: %v", err)
	}
	return nil
}

// ParseForm ensures the request form is parsed even with invalid content types.
// If we don't do this, POST method without Content-type (even with empty body) will fail.
func ParseForm(r *http.Request) error {
	if r == nil {
		return nil
	}
	if err := r.ParseForm(); err != nil && !strings.HasPrefix(err.Error(), "mime:") {
		return err
	}
	return nil
}

// StatusCode maps an error to the HTTP status of its response.
func StatusCode(err error) int {
	// If we need to differentiate between different possible error types,
	// we should create appropriate error types with clearly defined meaning
	errStr := strings.ToLower(err.Error())
	for _, m := range []struct {
		keyword string
		status  int
	}{
		{"not found", http.StatusNotFound},
		{"no such", http.StatusNotFound},
		{"bad parameter", http.StatusBadRequest},
		{"conflict", http.StatusConflict},
		{"already registered", http.StatusConflict},
		{"impossible", http.StatusNotAcceptable},
		{"session closed", http.StatusGone},
	} {
		if strings.Contains(errStr, m.keyword) {
			return m.status
		}
	}
	return http.StatusInternalServerError
}

// WriteError sends err in the response with the status derived from its
// message.
func WriteError(w http.ResponseWriter, err error) {
	if err == nil || w == nil {
		log.WithFields(log.Fields{"error": err, "writer": w}).Error("unexpected HTTP error handling")
		return
	}
	http.Error(w, err.Error(), StatusCode(err))
}

// WriteJSON writes the value v to the http response stream as json with standard json encoding.
func WriteJSON(w http.ResponseWriter, code int, v interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	return json.NewEncoder(w).Encode(v)
}

// VersionFromContext returns an API version from the context using APIVersionKey.
func VersionFromContext(ctx context.Context) string {
	if ctx == nil {
		return version.APIVersion
	}
	val, ok := ctx.Value(APIVersionKey).(string)
	if !ok || val == "" {
		return version.APIVersion
	}
	return val
}
