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

package port

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/gostor/samtgt/pkg/api"
	log "github.com/sirupsen/logrus"
)

var (
	ErrNoDataOut          = errors.New("no data-out buffer for command")
	ErrTransferTerminated = errors.New("data transfer terminated")
)

// Response is the final status of one command together with the data-in
// it produced.
type Response struct {
	Nexus  api.Nexus
	CRN    uint64
	Status api.SAMStat
	Sense  []byte
	Data   []byte
}

type commandKey struct {
	initiator string
	target    string
	crn       uint64
}

func keyOf(n api.Nexus, crn uint64) commandKey {
	return commandKey{initiator: n.InitiatorPort, target: n.TargetPort, crn: crn}
}

type exchange struct {
	out        *bytes.Reader
	in         bytes.Buffer
	terminated bool
	done       chan Response
}

// LocalPort is an in-process transport. Data-out buffers are registered
// before a command is submitted and data-in is collected per command until
// its response is delivered.
type LocalPort struct {
	name string
	// history keeps every delivered response.
	history bool

	mu        sync.Mutex
	exchanges map[commandKey]*exchange
	responses []Response
}

type LocalPortOption func(*LocalPort)

// WithHistory records every response for Responses, ResponsesFor and Wait.
// The history grows until Reset is called.
func WithHistory() LocalPortOption {
	return func(p *LocalPort) {
		p.history = true
	}
}

func NewLocalPort(name string, opts ...LocalPortOption) *LocalPort {
	p := &LocalPort{
		name:      name,
		exchanges: make(map[commandKey]*exchange),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *LocalPort) Name() string {
	return p.name
}

func (p *LocalPort) exchange(key commandKey) *exchange {
	x, ok := p.exchanges[key]
	if !ok {
		x = &exchange{done: make(chan Response, 1)}
		p.exchanges[key] = x
	}
	return x
}

// Expect registers the data-out of a command about to be submitted. The
// returned channel receives its response.
func (p *LocalPort) Expect(nexus api.Nexus, crn uint64, dataOut []byte) <-chan Response {
	p.mu.Lock()
	defer p.mu.Unlock()
	x := p.exchange(keyOf(nexus, crn))
	if dataOut != nil {
		x.out = bytes.NewReader(dataOut)
	}
	return x.done
}

// Forget drops the exchange of a command whose response is no longer
// awaited. Data-in sent for it afterwards is refused.
func (p *LocalPort) Forget(nexus api.Nexus, crn uint64) {
	p.mu.Lock()
	delete(p.exchanges, keyOf(nexus, crn))
	p.mu.Unlock()
}

// Pending returns the number of commands with an open exchange.
func (p *LocalPort) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.exchanges)
}

func (p *LocalPort) ReadData(ctx context.Context, nexus api.Nexus, crn uint64, buf []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	x, ok := p.exchanges[keyOf(nexus, crn)]
	switch {
	case !ok || x.out == nil:
		return fmt.Errorf("%w: %s crn %d", ErrNoDataOut, nexus, crn)
	case x.terminated:
		return ErrTransferTerminated
	}
	if _, err := io.ReadFull(x.out, buf); err != nil {
		return fmt.Errorf("data-out of %s crn %d: %v", nexus, crn, err)
	}
	return nil
}

func (p *LocalPort) WriteData(ctx context.Context, nexus api.Nexus, crn uint64, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	x, ok := p.exchanges[keyOf(nexus, crn)]
	if !ok || x.terminated {
		return ErrTransferTerminated
	}
	x.in.Write(data)
	return nil
}

func (p *LocalPort) TerminateDataTransfer(nexus api.Nexus, crn uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if x, ok := p.exchanges[keyOf(nexus, crn)]; ok {
		x.terminated = true
	}
}

func (p *LocalPort) WriteResponse(nexus api.Nexus, crn uint64, status api.SAMStat, senseData []byte) {
	p.mu.Lock()
	key := keyOf(nexus, crn)
	x := p.exchange(key)
	delete(p.exchanges, key)
	resp := Response{
		Nexus:  nexus,
		CRN:    crn,
		Status: status,
		Sense:  senseData,
	}
	if x.in.Len() > 0 {
		resp.Data = append([]byte(nil), x.in.Bytes()...)
	}
	if p.history {
		p.responses = append(p.responses, resp)
	}
	p.mu.Unlock()

	log.WithFields(log.Fields{
		"port":  p.name,
		"nexus": nexus.String(),
		"crn":   crn,
	}).Debugf("response: %s", status)
	select {
	case x.done <- resp:
	default:
		log.Warnf("%s: extra response for %s crn %d dropped from channel", p.name, nexus, crn)
	}
}

// Wait blocks until the response of a command arrives. It competes with
// readers of the channel returned by Expect. Without history it only sees
// responses delivered after it is called.
func (p *LocalPort) Wait(ctx context.Context, nexus api.Nexus, crn uint64) (Response, error) {
	p.mu.Lock()
	for _, r := range p.responses {
		if keyOf(r.Nexus, r.CRN) == keyOf(nexus, crn) {
			p.mu.Unlock()
			return r, nil
		}
	}
	done := p.exchange(keyOf(nexus, crn)).done
	p.mu.Unlock()

	select {
	case r := <-done:
		return r, nil
	case <-ctx.Done():
		return Response{}, ctx.Err()
	}
}

// Responses returns every response delivered so far, in order.
func (p *LocalPort) Responses() []Response {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Response(nil), p.responses...)
}

// ResponsesFor returns the responses delivered for one command.
func (p *LocalPort) ResponsesFor(nexus api.Nexus, crn uint64) []Response {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []Response
	for _, r := range p.responses {
		if keyOf(r.Nexus, r.CRN) == keyOf(nexus, crn) {
			out = append(out, r)
		}
	}
	return out
}

// Reset forgets every recorded response.
func (p *LocalPort) Reset() {
	p.mu.Lock()
	p.responses = nil
	p.mu.Unlock()
}
