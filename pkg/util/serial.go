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

package util

import "fmt"

const serialHalf = int64(1) << 31

// SerialNumber is a 32-bit sequence number compared with RFC 1982 serial
// arithmetic, such as CmdSN, StatSN or DataSN.
type SerialNumber uint32

// Increment advances the number by one, wrapping 0xFFFFFFFF to 0.
func (s *SerialNumber) Increment() {
	*s++
}

// Add returns s+n modulo 2^32.
func (s SerialNumber) Add(n uint32) SerialNumber {
	return s + SerialNumber(n)
}

// Value returns the raw 32-bit value.
func (s SerialNumber) Value() uint32 {
	return uint32(s)
}

// Compare returns the signed distance from o to s, folded into the range
// (-2^31, 2^31]. A positive result means s is ahead of o.
func (s SerialNumber) Compare(o SerialNumber) int64 {
	d := int64(uint32(s - o))
	if d > serialHalf {
		d -= 1 << 32
	}
	return d
}

// Less reports whether s precedes o. Numbers exactly 2^31 apart are
// unordered.
func (s SerialNumber) Less(o SerialNumber) bool {
	d := s.Compare(o)
	return d < 0
}

// Greater reports whether s follows o. Numbers exactly 2^31 apart are
// unordered.
func (s SerialNumber) Greater(o SerialNumber) bool {
	d := s.Compare(o)
	return d > 0 && d != serialHalf
}

// InWindow reports whether s lies in the closed window [low, high].
func (s SerialNumber) InWindow(low, high SerialNumber) bool {
	return !s.Less(low) && !s.Greater(high)
}

func (s SerialNumber) String() string {
	return fmt.Sprintf("%d", uint32(s))
}
