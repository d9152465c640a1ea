// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package lcdsim

import (
	"errors"
	"fmt"
	"sync"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
)

// ErrNACK is returned for transactions to an address with nothing attached.
var ErrNACK = errors.New("lcdsim: no acknowledge")

// Bus is an I²C bus with emulated LCD backpacks.
type Bus struct {
	name string

	mu    sync.Mutex
	lcds  map[uint16]*LCD
	speed physic.Frequency
}

// NewBus returns an empty bus.
func NewBus(name string) *Bus {
	return &Bus{name: name, lcds: map[uint16]*LCD{}}
}

// Attach connects a new display at addr, replacing any previous one.
func (b *Bus) Attach(addr uint16, rows, cols int) *LCD {
	l := NewLCD(rows, cols)
	b.mu.Lock()
	b.lcds[addr] = l
	b.mu.Unlock()
	return l
}

// LCD returns the display at addr, or nil.
func (b *Bus) LCD(addr uint16) *LCD {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lcds[addr]
}

// Tx implements i2c.Bus.
//
// Each written byte is a latch update. Reads return the current latch.
func (b *Bus) Tx(addr uint16, w, r []byte) error {
	l := b.LCD(addr)
	if l == nil {
		return fmt.Errorf("%w: 0x%02x on %s", ErrNACK, addr, b.name)
	}
	for _, c := range w {
		l.write(c)
	}
	if len(r) != 0 {
		latch := l.Latch()
		for i := range r {
			r[i] = latch
		}
	}
	return nil
}

// SetSpeed implements i2c.Bus.
func (b *Bus) SetSpeed(f physic.Frequency) error {
	if f <= 0 {
		return fmt.Errorf("lcdsim: invalid speed %s", f)
	}
	b.mu.Lock()
	b.speed = f
	b.mu.Unlock()
	return nil
}

// Speed returns the last speed set.
func (b *Bus) Speed() physic.Frequency {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.speed
}

// Close implements i2c.BusCloser.
func (b *Bus) Close() error {
	return nil
}

func (b *Bus) String() string {
	return b.name
}

var _ i2c.BusCloser = &Bus{}
