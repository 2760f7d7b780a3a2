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

// Package transfer splits one logical read or write into stages of growing
// size so a connection ramps up before the full transfer is outstanding.
package transfer

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"
)

type Direction int

const (
	Read Direction = iota
	Write
)

func (d Direction) String() string {
	if d == Write {
		return "write"
	}
	return "read"
}

var (
	// ReadStages are the block counts of the first three read stages. The
	// last one repeats until the transfer is done.
	ReadStages = [3]uint32{64, 128, 256}
	// WriteStages are the block counts of the first three write stages.
	WriteStages = [3]uint32{1024, 2048, 4096}
)

// Stage is one bounded sub-transfer.
type Stage struct {
	Index int
	// LBA is the first logical block of the stage.
	LBA    uint64
	Blocks uint32
	// Offset is the byte offset of the stage inside the whole transfer.
	Offset int64
	// Length is the number of bytes moved by the stage.
	Length int64
}

func (s Stage) String() string {
	return fmt.Sprintf("stage %d lba=%d blocks=%d off=%d len=%d", s.Index, s.LBA, s.Blocks, s.Offset, s.Length)
}

func stageSizes(dir Direction) [3]uint32 {
	if dir == Write {
		return WriteStages
	}
	return ReadStages
}

// Plan computes the stages for moving blocks blocks of blockSize bytes
// starting at lba. length caps the total number of bytes moved; a
// negative length means blocks*blockSize.
func Plan(dir Direction, lba uint64, blocks uint32, blockSize uint32, length int64) []Stage {
	if blocks == 0 || blockSize == 0 {
		return nil
	}
	total := int64(blocks) * int64(blockSize)
	if length < 0 || length > total {
		length = total
	}
	sizes := stageSizes(dir)

	var (
		stages          []Stage
		remainingBlocks = blocks
		remainingBytes  = length
		offset          int64
	)
	for i := 0; remainingBlocks > 0 && remainingBytes > 0; i++ {
		size := sizes[len(sizes)-1]
		if i < len(sizes) {
			size = sizes[i]
		}
		n := size
		if n > remainingBlocks {
			n = remainingBlocks
		}
		bytes := int64(n) * int64(blockSize)
		if bytes > remainingBytes {
			bytes = remainingBytes
		}
		stages = append(stages, Stage{
			Index:  i,
			LBA:    lba,
			Blocks: n,
			Offset: offset,
			Length: bytes,
		})
		lba += uint64(n)
		offset += bytes
		remainingBlocks -= n
		remainingBytes -= bytes
	}
	return stages
}

// StageFunc moves the data of one stage.
type StageFunc func(ctx context.Context, s Stage) error

// Execute runs fn for every stage in order. The context is checked before
// each stage, so a cancelled transfer stops at the next stage boundary.
func Execute(ctx context.Context, stages []Stage, fn StageFunc) error {
	for _, s := range stages {
		if err := ctx.Err(); err != nil {
			log.Debugf("transfer cancelled before %s", s)
			return err
		}
		if err := fn(ctx, s); err != nil {
			return err
		}
	}
	return ctx.Err()
}
