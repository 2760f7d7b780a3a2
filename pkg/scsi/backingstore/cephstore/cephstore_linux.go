//go:build ceph
// +build ceph

/*
Copyright 2018 The GoStor Authors All rights reserved.

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
package cephstore

import (
	"fmt"
	"strings"

	"github.com/ceph/go-ceph/rados"
	"github.com/ceph/go-ceph/rbd"
	log "github.com/sirupsen/logrus"

	"github.com/gostor/samtgt/pkg/api"
	"github.com/gostor/samtgt/pkg/scsi"
)

// path format: poolname/imagename
const (
	CephBackingStorage = "ceph-rbd"
)

func init() {
	scsi.RegisterBackingStore(CephBackingStorage, newCeph)
}

type CephBackingStore struct {
	scsi.BaseBackingStore
	conn  *rados.Conn
	ioctx *rados.IOContext
	image *rbd.Image
}

func newCeph() (api.BackingStore, error) {
	return &CephBackingStore{
		BaseBackingStore: scsi.BaseBackingStore{
			Name: CephBackingStorage,
		},
	}, nil
}

func (bs *CephBackingStore) Open(path string) (err error) {
	pathinfo := strings.SplitN(path, "/", 2)
	if len(pathinfo) != 2 {
		return fmt.Errorf("bad parameter: invalid device path %q", path)
	}
	poolName, imageName := pathinfo[0], pathinfo[1]
	log.Debugf("open ceph image %s", path)

	if bs.conn, err = rados.NewConn(); err != nil {
		return err
	}
	defer func() {
		if err != nil {
			log.Error(err)
			bs.release()
		}
	}()
	if err = bs.conn.ReadDefaultConfigFile(); err != nil {
		return err
	}
	if err = bs.conn.Connect(); err != nil {
		return err
	}
	if bs.ioctx, err = bs.conn.OpenIOContext(poolName); err != nil {
		return err
	}
	image := rbd.GetImage(bs.ioctx, imageName)
	if image == nil {
		return fmt.Errorf("no rbd image %s in pool %s", imageName, poolName)
	}
	if err = image.Open(); err != nil {
		return err
	}
	bs.image = image
	bs.DataSize, err = bs.image.GetSize()
	return err
}

func (bs *CephBackingStore) release() {
	if bs.image != nil {
		bs.image.Close()
		bs.image = nil
	}
	if bs.ioctx != nil {
		bs.ioctx.Destroy()
		bs.ioctx = nil
	}
	if bs.conn != nil {
		bs.conn.Shutdown()
		bs.conn = nil
	}
}

func (bs *CephBackingStore) Close() error {
	var err error
	if bs.image != nil {
		err = bs.image.Close()
		bs.image = nil
	}
	bs.release()
	return err
}

func (bs *CephBackingStore) Read(offset, tl int64) ([]byte, error) {
	tmpbuf := make([]byte, tl)
	_, err := bs.image.ReadAt(tmpbuf, offset)
	return tmpbuf, err
}

func (bs *CephBackingStore) Write(wbuf []byte, offset int64) error {
	_, err := bs.image.WriteAt(wbuf, offset)
	return err
}

func (bs *CephBackingStore) DataSync(offset, tl int64) error {
	return bs.image.Flush()
}
