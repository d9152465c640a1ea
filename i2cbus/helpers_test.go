// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package i2cbus

import (
	"errors"
	"sync"
	"testing"

	"periph.io/x/conn/v3/physic"
	"tinygo.org/x/drivers"
)

// mutexCounter is a MutexFactory that counts allocations and can be told to
// fail a given allocation (1-based).
type mutexCounter struct {
	mu    sync.Mutex
	calls int
	fail  map[int]bool
}

func (c *mutexCounter) New() (Mutex, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.fail[c.calls] {
		return nil, errors.New("no memory for semaphore")
	}
	return NewMutex()
}

func (c *mutexCounter) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// registerBus is a loopback device with a 256 byte register file. The first
// byte written selects the register, the following bytes are stored from
// there on and reads return the register file from the selected register.
type registerBus struct {
	mu    sync.Mutex
	addr  uint16
	reg   byte
	mem   [256]byte
	speed physic.Frequency
}

func (b *registerBus) String() string { return "registerBus" }

func (b *registerBus) Tx(addr uint16, w, r []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if addr != b.addr {
		return errors.New("registerBus: NACK")
	}
	if len(w) > 0 {
		b.reg = w[0]
		for ix, v := range w[1:] {
			b.mem[byte(int(b.reg)+ix)] = v
		}
	}
	for ix := range r {
		r[ix] = b.mem[byte(int(b.reg)+ix)]
	}
	return nil
}

func (b *registerBus) SetSpeed(f physic.Frequency) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.speed = f
	return nil
}

// blockingBus blocks every Tx until release is closed.
type blockingBus struct {
	entered chan struct{}
	release chan struct{}
}

func newBlockingBus() *blockingBus {
	return &blockingBus{entered: make(chan struct{}, 16), release: make(chan struct{})}
}

func (b *blockingBus) Tx(addr uint16, w, r []byte) error {
	b.entered <- struct{}{}
	<-b.release
	return nil
}

// failingBus fails the first n transactions.
type failingBus struct {
	mu sync.Mutex
	n  int
}

func (b *failingBus) Tx(addr uint16, w, r []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.n > 0 {
		b.n--
		return errors.New("ESP_FAIL")
	}
	return nil
}

// newInstalled returns a registry with port 0 installed on bus.
func newInstalled(t *testing.T, bus drivers.I2C) *Registry {
	t.Helper()
	r := NewRegistry(&Opts{Opener: BusOpener{0: bus}})
	if err := r.Init(0, PortConfig{SDA: "GPIO21", SCL: "GPIO22"}); err != nil {
		t.Fatal(err)
	}
	return r
}
