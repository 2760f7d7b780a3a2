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

package scsi

import (
	"fmt"
	"sort"

	"github.com/gostor/samtgt/pkg/api"
)

type BaseBackingStore struct {
	Name     string
	DataSize uint64
}

func (bs *BaseBackingStore) Size() uint64 {
	return bs.DataSize
}

type BackingStoreFunc func() (api.BackingStore, error)

// registeredBSPlugins is filled by init functions of the backing store
// packages and only read afterwards.
var registeredBSPlugins = map[string]BackingStoreFunc{}

func RegisterBackingStore(name string, f BackingStoreFunc) {
	registeredBSPlugins[name] = f
}

func NewBackingStore(name string) (api.BackingStore, error) {
	f, ok := registeredBSPlugins[name]
	if !ok {
		return nil, fmt.Errorf("backend storage %q not found", name)
	}
	return f()
}

// BackingStores returns the names of the registered backing stores.
func BackingStores() []string {
	names := make([]string, 0, len(registeredBSPlugins))
	for name := range registeredBSPlugins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
