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
	"sync"

	"github.com/gostor/samtgt/pkg/api"
	log "github.com/sirupsen/logrus"
)

// Reservation is the SPC-2 RESERVE/RELEASE state of one logical unit. At
// most one I_T nexus holds it.
type Reservation struct {
	mu     sync.Mutex
	holder *api.Nexus
}

// Reserve grants the reservation to the I_T nexus of n. Reserving again
// from the holder succeeds.
func (r *Reservation) Reserve(n api.Nexus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.holder != nil && !r.holder.SameIT(n) {
		return fmt.Errorf("%w: held by %s", ErrReservationConflict, r.holder)
	}
	it := n.ITNexus()
	r.holder = &it
	return nil
}

// Release drops the reservation if n holds it. Releasing a reservation
// held by someone else is not an error.
func (r *Reservation) Release(n api.Nexus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.holder != nil && r.holder.SameIT(n) {
		r.holder = nil
	}
}

// Check fails with ErrReservationConflict if another nexus holds the
// reservation.
func (r *Reservation) Check(n api.Nexus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.holder != nil && !r.holder.SameIT(n) {
		return ErrReservationConflict
	}
	return nil
}

// Holder returns the reserving I_T nexus.
func (r *Reservation) Holder() (api.Nexus, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.holder == nil {
		return api.Nexus{}, false
	}
	return *r.holder, true
}

// Clear drops the reservation whoever holds it.
func (r *Reservation) Clear() {
	r.mu.Lock()
	if r.holder != nil {
		log.Debugf("reservation of %s cleared", r.holder)
	}
	r.holder = nil
	r.mu.Unlock()
}
