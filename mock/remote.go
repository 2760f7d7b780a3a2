// Package mock runs a target over an in-memory remote backing store, the
// way a replicated volume controller plugs its storage into samtgt.
package mock

import (
	"fmt"
	"sync"

	uuid "github.com/satori/go.uuid"
	"github.com/sirupsen/logrus"

	"github.com/gostor/samtgt/pkg/api"
	"github.com/gostor/samtgt/pkg/scsi/backingstore/remote"
	"github.com/gostor/samtgt/pkg/target"
)

type remoteBs struct {
	Volume     string
	Size       int64
	SectorSize int

	mu   sync.RWMutex
	data []byte
	isUp bool

	tgtName  string
	lhbsName string
	target   *target.Target
}

var _ api.RemoteBackingStore = (*remoteBs)(nil)

func (r *remoteBs) ReadAt(data []byte, off int64) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if off < 0 || off+int64(len(data)) > int64(len(r.data)) {
		return 0, fmt.Errorf("read of %d bytes at %d beyond volume end", len(data), off)
	}
	return copy(data, r.data[off:]), nil
}

func (r *remoteBs) WriteAt(data []byte, off int64) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if off < 0 || off+int64(len(data)) > int64(len(r.data)) {
		return 0, fmt.Errorf("write of %d bytes at %d beyond volume end", len(data), off)
	}
	return copy(r.data[off:], data), nil
}

func (r *remoteBs) Sync() (int, error) {
	return 0, nil
}

// Startup starts a target exporting the volume as LUN 0.
func (r *remoteBs) Startup(name string, size, sectorSize int64) error {
	if r.isUp {
		return fmt.Errorf("volume %s is already up", r.Volume)
	}
	r.tgtName = "iqn.2016-09.com.gostor.samtgt:" + name
	r.lhbsName = "RemBs:" + name
	r.Volume = name
	r.Size = size
	r.SectorSize = int(sectorSize)
	r.data = make([]byte, size)

	logrus.Info("Start SCSI target")
	if err := r.startScsiTarget(); err != nil {
		return err
	}
	r.isUp = true
	return nil
}

// Shutdown stop scsi target
func (r *remoteBs) Shutdown() error {
	if r.Volume != "" {
		r.Volume = ""
	}

	if err := r.stopScsiTarget(); err != nil {
		return fmt.Errorf("Failed to stop scsi target, err: %v", err)
	}
	r.isUp = false

	return nil
}

// State provides info whether scsi target is up or down
func (r *remoteBs) State() string {
	if r.isUp {
		return "Up"
	}
	return "Down"
}

// Stats returns the logical unit of the volume.
func (r *remoteBs) Stats() (api.LogicalUnitInfo, error) {
	if !r.isUp {
		return api.LogicalUnitInfo{}, fmt.Errorf("Volume is not up")
	}
	luns := r.target.LogicalUnits()
	if len(luns) == 0 {
		return api.LogicalUnitInfo{}, fmt.Errorf("Volume has no logical unit")
	}
	return luns[0], nil
}

// Target returns the running target.
func (r *remoteBs) Target() *target.Target {
	return r.target
}

func (r *remoteBs) startScsiTarget() error {
	r.target = target.New(target.Options{
		Name:         r.tgtName,
		RemoteStores: map[string]api.RemoteBackingStore{r.lhbsName: r},
	})
	_, err := r.target.CreateLogicalUnit(api.LogicalUnitCreateRequest{
		LUN:       0,
		Storage:   remote.RemoteBackingStorage,
		Path:      r.lhbsName,
		BlockSize: uint32(r.SectorSize),
		Size:      uint64(r.Size),
	})
	if err == nil {
		err = r.target.Start()
	}
	if err != nil {
		r.target.Close()
		r.target = nil
		return err
	}
	logrus.WithField("id", uuid.NewV4().String()).Infof("SCSI device created for %s", r.tgtName)
	return nil
}

func (r *remoteBs) stopScsiTarget() error {
	if r.target == nil {
		return fmt.Errorf("target of volume is not running")
	}
	logrus.Infof("Stopping target %v ...", r.tgtName)
	if err := r.target.Close(); err != nil {
		return err
	}
	r.target = nil
	logrus.Infof("Target %v stopped", r.tgtName)
	return nil
}
