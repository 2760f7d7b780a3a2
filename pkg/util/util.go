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

// Package util provides some basic util functions.
package util

import (
	"encoding/binary"
)

func GetUnalignedUint16(u8 []uint8) uint16 {
	return binary.BigEndian.Uint16(u8)
}

func GetUnalignedUint32(u8 []uint8) uint32 {
	return binary.BigEndian.Uint32(u8)
}

func GetUnalignedUint64(u8 []uint8) uint64 {
	return binary.BigEndian.Uint64(u8)
}

func MarshalUint16(i uint16) []byte {
	data := make([]byte, 2)
	binary.BigEndian.PutUint16(data, i)
	return data
}

func MarshalUint32(i uint32) []byte {
	data := make([]byte, 4)
	binary.BigEndian.PutUint32(data, i)
	return data
}

func MarshalUint64(v uint64) []byte {
	data := make([]byte, 8)
	binary.BigEndian.PutUint64(data, v)
	return data
}

// StringToByte copies str into a space padded field of exactly length bytes,
// truncating when str is longer.
func StringToByte(str string, length int) []byte {
	data := make([]byte, length)
	for i := range data {
		data[i] = ' '
	}
	copy(data, str)
	return data
}
