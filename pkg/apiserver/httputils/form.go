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
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

// BoolValue transforms a form value in different formats into a boolean type.
func BoolValue(r *http.Request, k string) bool {
	s := strings.ToLower(strings.TrimSpace(r.FormValue(k)))
	return !(s == "" || s == "0" || s == "no" || s == "false" || s == "none")
}

// Int64ValueOrDefault parses a form value into an int64 type. If there is an
// error, returns the error. If there is no value returns the default value.
func Int64ValueOrDefault(r *http.Request, field string, def int64) (int64, error) {
	if r.Form.Get(field) != "" {
		value, err := strconv.ParseInt(r.Form.Get(field), 10, 64)
		if err != nil {
			return value, fmt.Errorf("bad parameter: %s: %v", field, err)
		}
		return value, nil
	}
	return def, nil
}

// LUNVar parses the {lun} path variable.
func LUNVar(vars map[string]string) (int64, error) {
	s, ok := vars["lun"]
	if !ok || s == "" {
		return 0, fmt.Errorf("bad parameter: 'lun' cannot be empty")
	}
	lun, err := strconv.ParseInt(s, 10, 64)
	if err != nil || lun < 0 {
		return 0, fmt.Errorf("bad parameter: invalid lun %q", s)
	}
	return lun, nil
}
