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

package backingstore

import (
	"fmt"

	"github.com/dypflying/go-qcow2lib/qcow2"
	log "github.com/sirupsen/logrus"

	"github.com/gostor/samtgt/pkg/api"
	"github.com/gostor/samtgt/pkg/scsi"
)

const (
	Qcow2BackingStorage = "qcow2"
)

func init() {
	scsi.RegisterBackingStore(Qcow2BackingStorage, newQcow2)
}

type qcow2Store struct {
	scsi.BaseBackingStore
	child *qcow2.BdrvChild
}

func newQcow2() (api.BackingStore, error) {
	return &qcow2Store{
		BaseBackingStore: scsi.BaseBackingStore{
			Name: Qcow2BackingStorage,
		},
	}, nil
}

func (bs *qcow2Store) Open(path string) error {
	var err error
	opts := map[string]any{
		qcow2.OPT_FILENAME: path,
		qcow2.OPT_FMT:      "qcow2",
	}
	log.Debugf("open qcow2 image %s", path)
	if bs.child, err = qcow2.Blk_Open(path, opts, qcow2.BDRV_O_RDWR); err != nil {
		return err
	}
	if bs.DataSize, err = qcow2.Blk_Getlength(bs.child); err != nil {
		qcow2.Blk_Close(bs.child)
		bs.child = nil
		return err
	}
	return nil
}

func (bs *qcow2Store) Close() error {
	if bs.child != nil {
		qcow2.Blk_Close(bs.child)
		bs.child = nil
	}
	return nil
}

func (bs *qcow2Store) Read(offset, tl int64) ([]byte, error) {
	if bs.child == nil {
		return nil, fmt.Errorf("qcow2 image is not open")
	}
	tmpbuf := make([]byte, tl)
	_, err := qcow2.Blk_Pread(bs.child, uint64(offset), tmpbuf, uint64(tl))
	return tmpbuf, err
}

func (bs *qcow2Store) Write(wbuf []byte, offset int64) error {
	if bs.child == nil {
		return fmt.Errorf("qcow2 image is not open")
	}
	_, err := qcow2.Blk_Pwrite(bs.child, uint64(offset), wbuf, uint64(len(wbuf)), 0)
	return err
}

// DataSync is a no-op; the library writes through.
func (bs *qcow2Store) DataSync(offset, tl int64) error {
	return nil
}
